package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/zulandar/supportchat/internal/chat"
	"github.com/zulandar/supportchat/internal/config"
	"github.com/zulandar/supportchat/internal/models"
)

type askFlags struct {
	serviceID      string
	userID         string
	conversationID string
	language       string
	join           bool
}

func newAskCmd() *cobra.Command {
	var f askFlags

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Chat with the support agent from the terminal",
		Long: `Sends a question and prints the agent's answer. With no argument, reads
questions line by line from stdin until EOF. --join waits for the next agent
message of an existing conversation instead of asking.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd, f, strings.Join(args, " "))
		},
	}

	cmd.Flags().StringVarP(&f.serviceID, "service", "s", "", "service id (default chat.service_id)")
	cmd.Flags().StringVarP(&f.userID, "user", "u", "", "user id (default chat.user_id)")
	cmd.Flags().StringVar(&f.conversationID, "conversation", "", "continue an existing conversation")
	cmd.Flags().StringVarP(&f.language, "language", "l", "", "language sent to the engine (default chat.language)")
	cmd.Flags().BoolVar(&f.join, "join", false, "wait for the next agent message of --conversation")
	return cmd
}

func runAsk(cmd *cobra.Command, f askFlags, question string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if f.join && f.conversationID == "" {
		return fmt.Errorf("--join requires --conversation")
	}
	if !f.join {
		if err := cfg.RequireWebhook(); err != nil {
			return err
		}
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	sess, err := newSession(ctx, cfg, f)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if f.join {
		return printReply(out, sess, sess.Join(ctx, f.conversationID))
	}
	if question != "" {
		return printReply(out, sess, sess.Send(ctx, question))
	}
	return askLoop(ctx, cmd.InOrStdin(), out, sess, isTTY(cmd.InOrStdin()))
}

func newSession(ctx context.Context, cfg *config.Config, f askFlags) (*chat.Session, error) {
	store, err := newStore(cfg)
	if err != nil {
		return nil, err
	}
	dispatcher, err := newDispatcher(cfg)
	if err != nil {
		return nil, err
	}
	notifier, err := newNotifier(cfg)
	if err != nil {
		return nil, err
	}
	waiter, _, err := newPolling(cfg, store)
	if err != nil {
		return nil, err
	}

	serviceID := firstNonEmpty(f.serviceID, cfg.Chat.ServiceID)
	svc := models.Service{ID: serviceID}
	if serviceID != "" {
		found, err := store.Service(ctx, serviceID)
		if err != nil {
			return nil, fmt.Errorf("look up service %s: %w", serviceID, err)
		}
		svc = *found
	}

	opts := chat.Opts{
		Store:           store,
		Waiter:          waiter,
		Notifier:        notifier,
		Service:         svc,
		User:            models.User{ID: firstNonEmpty(f.userID, cfg.Chat.UserID)},
		Language:        firstNonEmpty(f.language, cfg.Chat.Language),
		ConversationID:  f.conversationID,
		FallbackTimeout: cfg.Chat.FallbackTimeout,
		FallbackGeneric: cfg.Chat.FallbackGeneric,
	}
	if dispatcher != nil {
		opts.Dispatcher = dispatcher
	}
	return chat.New(opts)
}

// askLoop sends each non-empty input line and prints the answer. The prompt
// is only shown on a terminal.
func askLoop(ctx context.Context, in io.Reader, out io.Writer, sess *chat.Session, prompt bool) error {
	scanner := bufio.NewScanner(in)
	for {
		if prompt {
			fmt.Fprint(out, "> ")
		}
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := printReply(out, sess, sess.Send(ctx, line)); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func printReply(out io.Writer, sess *chat.Session, r chat.Reply) error {
	fmt.Fprintln(out, r.Text())
	if r.Err != nil && sess.ConversationID() == "" {
		// Nothing was stored; there is no conversation to resume.
		return r.Err
	}
	return nil
}

func isTTY(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
