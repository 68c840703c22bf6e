package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/zulandar/supportchat/internal/catalog"
	"github.com/zulandar/supportchat/internal/config"
	"github.com/zulandar/supportchat/internal/directus"
	"github.com/zulandar/supportchat/internal/logging"
	"github.com/zulandar/supportchat/internal/notify"
	"github.com/zulandar/supportchat/internal/poll"
	"github.com/zulandar/supportchat/internal/webhook"
)

const defaultConfigPath = "supportchat.yaml"

// loadConfig loads the dotenv file, then the YAML config, then initialises
// the global logger. A missing default config file is not an error: the
// environment alone may configure everything.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	envFile, _ := cmd.Flags().GetString("env-file")
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	}

	path, _ := cmd.Flags().GetString("config")
	if !cmd.Flags().Changed("config") {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			path = ""
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logging.Init(cfg.Log)
	return cfg, nil
}

func newStore(cfg *config.Config) (*directus.Client, error) {
	return directus.New(directus.ClientOpts{
		BaseURL:        cfg.Directus.URL,
		Token:          cfg.Directus.Token,
		Timeout:        cfg.Directus.Timeout,
		Conversations:  cfg.Directus.Collections.Conversations,
		Messages:       cfg.Directus.Collections.Messages,
		Services:       cfg.Directus.Collections.Services,
		DocumentsField: cfg.Directus.DocumentsField,
	})
}

// newCatalog caches src in redis when an address is configured, in memory
// otherwise.
func newCatalog(cfg *config.Config, src catalog.Source) (*catalog.Catalog, error) {
	var cache catalog.Cache = catalog.NewMemoryCache()
	if r := cfg.Catalog.Redis; r.Address != "" {
		rc, err := catalog.NewRedisCache(catalog.RedisOpts{
			Address:  r.Address,
			Password: r.Password,
			DB:       r.DB,
		})
		if err != nil {
			return nil, err
		}
		cache = rc
	}
	return catalog.New(catalog.Opts{
		Source:  src,
		Cache:   cache,
		TTL:     cfg.Catalog.TTL,
		Prefix:  cfg.Catalog.Redis.Prefix,
		Refresh: cfg.Catalog.Refresh,
	})
}

// newDispatcher returns nil when no workflow engine is configured.
func newDispatcher(cfg *config.Config) (*webhook.Dispatcher, error) {
	if cfg.Webhook.URL == "" {
		return nil, nil
	}
	return webhook.New(webhook.Opts{
		URL:     cfg.Webhook.URL,
		Token:   cfg.Webhook.Token,
		Timeout: cfg.Webhook.Timeout,
	})
}

func newNotifier(cfg *config.Config) (notify.Notifier, error) {
	if !cfg.NotifyOnTimeout() {
		return notify.Nop{}, nil
	}
	var out notify.Multi
	if s := cfg.Notify.Slack; s.BotToken != "" {
		n, err := notify.NewSlack(notify.SlackOpts{BotToken: s.BotToken, ChannelID: s.ChannelID})
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	if d := cfg.Notify.Discord; d.BotToken != "" {
		n, err := notify.NewDiscord(notify.DiscordOpts{BotToken: d.BotToken, ChannelID: d.ChannelID})
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	switch len(out) {
	case 0:
		return notify.Nop{}, nil
	case 1:
		return out[0], nil
	}
	return out, nil
}

func newPolling(cfg *config.Config, store poll.MessageLister) (*poll.Waiter, *poll.Subscriber, error) {
	w, err := poll.NewWaiter(poll.WaiterOpts{
		Store:    store,
		Interval: cfg.Polling.Interval,
		MaxWait:  cfg.Polling.MaxWait,
	})
	if err != nil {
		return nil, nil, err
	}
	s, err := poll.NewSubscriber(poll.SubscriberOpts{
		Store:    store,
		Interval: cfg.Polling.Interval,
	})
	if err != nil {
		return nil, nil, err
	}
	return w, s, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(cmd.Context())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			fmt.Fprintf(cmd.ErrOrStderr(), "\nReceived %s, shutting down...\n", sig)
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}
