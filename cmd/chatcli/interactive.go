package main

import (
	"bufio"
	"context"
	"io"
	"strings"

	"corpflow-chat/backend/conversation/session"
)

const helpText = `commands:
  /list            refresh and show conversations
  /open <id>       switch to a conversation
  /new [agent]     start a conversation
  /retry [id]      resend a failed message (latest when no id)
  /dismiss <id>    forget a failed message
  /quit            leave
anything else is sent to the active conversation
`

// parseLine splits a prompt line into a slash command and its argument.
// Plain text comes back with an empty command.
func parseLine(line string) (cmd, arg string) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		return "", line
	}
	cmd, arg, _ = strings.Cut(line[1:], " ")
	return strings.ToLower(cmd), strings.TrimSpace(arg)
}

func runInteractive(ctx context.Context, s *session.Session, in io.Reader, out io.Writer) error {
	r := newRenderer(out)
	s.OnChange(r.render)

	r.printConversations(s.ListConversations(ctx), "")
	r.printf("%s", helpText)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := handleLine(ctx, s, r, line); quit {
				return nil
			}
		}
	}
}

func handleLine(ctx context.Context, s *session.Session, r *renderer, line string) bool {
	cmd, arg := parseLine(line)
	switch cmd {
	case "":
		s.SetInput(arg)
		if err := s.SubmitInput(ctx); err != nil {
			r.printf("error: %v\n", err)
		}
	case "quit", "exit", "q":
		return true
	case "list":
		list := s.ListConversations(ctx)
		if err := s.Snapshot().LastError; err != nil {
			r.printf("error: %v\n", err)
		}
		r.printConversations(list, s.Snapshot().ActiveID())
	case "open":
		if arg == "" {
			r.printf("usage: /open <id>\n")
			return false
		}
		if _, err := s.SelectConversation(ctx, arg); err != nil {
			r.printf("error: %v\n", err)
		}
	case "new":
		if _, err := s.CreateConversation(ctx, arg); err != nil {
			r.printf("error: %v\n", err)
		}
	case "retry":
		id := arg
		if id == "" {
			failed := s.Snapshot().Failed
			if len(failed) == 0 {
				r.printf("nothing to retry\n")
				return false
			}
			id = failed[len(failed)-1].ID
		}
		if err := s.RetryFailed(ctx, id); err != nil {
			r.printf("error: %v\n", err)
		}
	case "dismiss":
		if !s.DismissFailed(arg) {
			r.printf("no failed message %q\n", arg)
		}
	default:
		r.printf("%s", helpText)
	}
	return false
}
