package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/zulandar/supportchat/internal/models"
)

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch <conversation-id>",
		Short: "Print new messages of a conversation as they arrive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, args[0])
		},
	}
	return cmd
}

func runWatch(cmd *cobra.Command, conversationID string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	store, err := newStore(cfg)
	if err != nil {
		return err
	}
	_, sub, err := newPolling(cfg, store)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	out := cmd.OutOrStdout()
	errOut := cmd.ErrOrStderr()
	fmt.Fprintf(errOut, "Watching %s (Ctrl-C to stop)\n", conversationID)

	s := sub.Subscribe(ctx, conversationID,
		func(m models.Message) { printMessage(out, m) },
		func(err error) { fmt.Fprintf(errOut, "poll failed: %v\n", err) },
	)
	<-s.Done()
	return nil
}

func printMessage(w io.Writer, m models.Message) {
	fmt.Fprintf(w, "[%s] %-5s %s\n", m.DateCreated.Local().Format(time.TimeOnly), m.Type, m.Content)
}
