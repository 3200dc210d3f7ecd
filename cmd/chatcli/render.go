package main

import (
	"fmt"
	"io"
	"sync"

	"corpflow-chat/backend/conversation/models"
	"corpflow-chat/backend/conversation/session"
)

// renderer prints what changed between snapshots. It is driven by the
// session's change listener and by the prompt loop, so writes are locked.
type renderer struct {
	mu      sync.Mutex
	out     io.Writer
	active  string
	printed map[string]bool
	channel session.ChannelState
	failed  int
}

func newRenderer(out io.Writer) *renderer {
	return &renderer{out: out, printed: make(map[string]bool)}
}

func (r *renderer) printf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, format, args...)
}

func (r *renderer) render(snap session.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id := snap.ActiveID(); id != r.active {
		r.active = id
		r.printed = make(map[string]bool)
		r.failed = 0
		if snap.Active != nil {
			fmt.Fprintf(r.out, "== %s (%s) ==\n", snap.Active.DisplayTitle(), id)
		}
	}

	if snap.Channel != r.channel {
		r.channel = snap.Channel
		fmt.Fprintf(r.out, "-- push channel %s\n", snap.Channel)
	}

	for _, e := range snap.Entries {
		if r.printed[e.Message.ID] {
			continue
		}
		r.printed[e.Message.ID] = true
		suffix := ""
		if e.Status == session.StatusPending {
			suffix = " (sending)"
		}
		fmt.Fprintf(r.out, "[%s] %s: %s%s\n", e.Message.CreatedAt.Local().Format("15:04:05"), speaker(e.Message), e.Message.Content, suffix)
	}

	if len(snap.Failed) > r.failed {
		for _, f := range snap.Failed[r.failed:] {
			fmt.Fprintf(r.out, "!! not sent: %q (%v). /retry %s\n", f.Content, f.Err, f.ID)
		}
	}
	r.failed = len(snap.Failed)
}

func speaker(m models.Message) string {
	if m.Sender == models.SenderUser {
		return "you"
	}
	return string(m.Sender)
}

func (r *renderer) printConversations(list []models.Conversation, active string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	printConversations(r.out, list, active)
}

func printConversations(out io.Writer, list []models.Conversation, active string) {
	if len(list) == 0 {
		fmt.Fprintln(out, "no conversations")
		return
	}
	for _, c := range list {
		marker := " "
		if c.ID == active {
			marker = "*"
		}
		fmt.Fprintf(out, "%s %s  %-30s  %s  %s\n", marker, c.ID, c.DisplayTitle(), c.UpdatedAt.Local().Format("2006-01-02 15:04"), c.LastMessage)
	}
}
