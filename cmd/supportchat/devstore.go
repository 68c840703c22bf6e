package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zulandar/supportchat/internal/db"
	"github.com/zulandar/supportchat/internal/devstore"
)

func newDevStoreCmd() *cobra.Command {
	var (
		seedPath string
		port     int
	)

	cmd := &cobra.Command{
		Use:   "devstore",
		Short: "Run a local Directus-compatible store",
		Long: `Runs a local item store speaking the subset of the Directus REST API the
chat backend uses. Data lives in sqlite by default (devstore.driver: mysql
switches to MySQL). --seed loads services from a YAML file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDevStore(cmd, seedPath, port)
		},
	}

	cmd.Flags().StringVar(&seedPath, "seed", "", "YAML file with services to upsert on start")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (default from config, 8055)")
	return cmd
}

func runDevStore(cmd *cobra.Command, seedPath string, port int) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if port == 0 {
		port = cfg.DevStore.Port
	}

	gormDB, err := db.Connect(cfg.DevStore.Driver, cfg.DevStore.DSN)
	if err != nil {
		return err
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}

	if seedPath != "" {
		services, err := devstore.LoadSeed(seedPath)
		if err != nil {
			return err
		}
		if err := db.SeedServices(gormDB, services); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d services from %s\n", len(services), seedPath)
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	return devstore.Start(ctx, devstore.StartOpts{
		Opts: devstore.Opts{
			DB:             gormDB,
			Token:          cfg.DevStore.Token,
			Conversations:  cfg.Directus.Collections.Conversations,
			Messages:       cfg.Directus.Collections.Messages,
			Services:       cfg.Directus.Collections.Services,
			DocumentsField: cfg.Directus.DocumentsField,
		},
		Port: port,
		Out:  cmd.OutOrStdout(),
	})
}
