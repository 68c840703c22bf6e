package main

import (
	"github.com/spf13/cobra"

	"github.com/zulandar/supportchat/internal/server"
)

func newServeCmd() *cobra.Command {
	var (
		host string
		port int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the chat API server",
		Long:  "Serves the workflow engine webhook, message, reply-wait, event stream and services endpoints.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, host, port)
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "interface to listen on (default all)")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (default from config, 4321)")
	return cmd
}

func runServe(cmd *cobra.Command, host string, port int) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if host == "" {
		host = cfg.Server.Host
	}
	if port == 0 {
		port = cfg.Server.Port
	}

	store, err := newStore(cfg)
	if err != nil {
		return err
	}
	cat, err := newCatalog(cfg, store)
	if err != nil {
		return err
	}
	defer cat.Close()
	dispatcher, err := newDispatcher(cfg)
	if err != nil {
		return err
	}
	notifier, err := newNotifier(cfg)
	if err != nil {
		return err
	}
	waiter, sub, err := newPolling(cfg, store)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	go cat.Run(ctx)

	opts := server.Opts{
		Store:           store,
		Catalog:         cat,
		Waiter:          waiter,
		Subscriber:      sub,
		Notifier:        notifier,
		Language:        cfg.Chat.Language,
		FallbackTimeout: cfg.Chat.FallbackTimeout,
		FallbackGeneric: cfg.Chat.FallbackGeneric,
	}
	if dispatcher != nil {
		opts.Dispatcher = dispatcher
	}
	return server.Start(ctx, server.StartOpts{
		Opts: opts,
		Host: host,
		Port: port,
		Out:  cmd.OutOrStdout(),
	})
}
