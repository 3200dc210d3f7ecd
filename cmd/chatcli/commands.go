package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"corpflow-chat/backend/conversation/client"
	"corpflow-chat/backend/conversation/session"
	"corpflow-chat/backend/pkg/config"
	"corpflow-chat/backend/pkg/logger"
	"corpflow-chat/backend/pkg/resilience"
	"corpflow-chat/backend/pkg/ws"

	"github.com/spf13/cobra"
)

type options struct {
	server  string
	wsURL   string
	user    string
	agent   string
	timeout time.Duration
	noPush  bool
	verbose bool

	cfg *config.Config
}

func newRootCommand() *cobra.Command {
	cfg := config.New()
	opts := &options{
		server:  cfg.Client.BaseURL,
		wsURL:   cfg.Client.WSURL,
		user:    cfg.Client.UserID,
		agent:   cfg.Client.AgentID,
		timeout: cfg.Client.HTTPTimeout,
		cfg:     cfg,
	}

	root := &cobra.Command{
		Use:           "chatcli",
		Short:         "Terminal client for the corpflow chat backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.user == "" {
				return fmt.Errorf("--user is required (or set CHAT_USER_ID)")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			s := opts.newSession(cmd.ErrOrStderr())
			defer s.Close()
			return runInteractive(cmd.Context(), s, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.server, "server", opts.server, "chat API base URL")
	flags.StringVar(&opts.wsURL, "ws", opts.wsURL, "push channel URL")
	flags.StringVar(&opts.user, "user", opts.user, "user id")
	flags.StringVar(&opts.agent, "agent", opts.agent, "agent id for new conversations")
	flags.DurationVar(&opts.timeout, "timeout", opts.timeout, "HTTP request timeout")
	flags.BoolVar(&opts.noPush, "no-push", false, "do not open the realtime channel")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging to stderr")

	root.AddCommand(newListCommand(opts), newOpenCommand(opts), newNewCommand(opts))
	return root
}

func newListCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List conversations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := opts.newSession(cmd.ErrOrStderr())
			defer s.Close()

			list := s.ListConversations(cmd.Context())
			if err := s.Snapshot().LastError; err != nil {
				return err
			}
			printConversations(cmd.OutOrStdout(), list, "")
			return nil
		},
	}
}

func newOpenCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "open <conversation-id>",
		Short: "Print a conversation transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := opts.newSession(cmd.ErrOrStderr())
			defer s.Close()

			if _, err := s.OpenConversation(cmd.Context(), args[0]); err != nil {
				return err
			}
			r := newRenderer(cmd.OutOrStdout())
			r.render(s.Snapshot())
			return nil
		},
	}
}

func newNewCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "new",
		Short: "Create a conversation and print its id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := opts.newSession(cmd.ErrOrStderr())
			defer s.Close()

			conv, err := s.CreateConversation(cmd.Context(), opts.agent)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), conv.ID)
			return nil
		},
	}
}

func (o *options) newSession(stderr io.Writer) *session.Session {
	logCfg := logger.DefaultConfig()
	logCfg.Output = stderr
	logCfg.JSON = false
	logCfg.Level = string(logger.LevelWarn)
	if o.verbose {
		logCfg.Level = string(logger.LevelDebug)
	}
	log := logger.New(logCfg)

	breaker := resilience.DefaultCircuitBreakerConfig("chat-api")
	breaker.FailureThreshold = o.cfg.Breaker.FailureThreshold
	breaker.SuccessThreshold = o.cfg.Breaker.SuccessThreshold
	breaker.RetryTimeout = o.cfg.Breaker.RetryTimeout
	breaker.Timeout = 0

	backend := client.New(client.Options{
		BaseURL: o.server,
		Timeout: o.timeout,
		Breaker: breaker,
		Logger:  log,
	})

	var dialer session.Dialer
	if !o.noPush {
		d := ws.NewDialer(o.wsURL, log)
		dialer = session.DialerFunc(func(ctx context.Context, userID, conversationID string) (session.Channel, error) {
			conn, err := d.Dial(ctx, userID, conversationID)
			if err != nil {
				return nil, err
			}
			return conn, nil
		})
	}

	return session.New(session.Options{
		UserID:  o.user,
		AgentID: o.agent,
		Backend: backend,
		Dialer:  dialer,
		Backoff: resilience.BackoffConfig{
			InitialInterval: o.cfg.Realtime.InitialInterval,
			MaxInterval:     o.cfg.Realtime.MaxInterval,
			Multiplier:      o.cfg.Realtime.Multiplier,
			Jitter:          0.5,
			MaxRetries:      o.cfg.Realtime.MaxRetries,
		},
		Logger: log,
	})
}
