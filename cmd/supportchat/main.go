package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version info set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "supportchat",
		Short:        "supportchat: support chat backend",
		Long:         "supportchat relays user questions to a workflow engine and delivers the agent's answers back through a Directus message store.",
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringP("config", "c", defaultConfigPath, "path to supportchat config file")
	cmd.PersistentFlags().String("env-file", ".env", "dotenv file loaded before the config")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newDevStoreCmd())
	cmd.AddCommand(newAskCmd())
	cmd.AddCommand(newWatchCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "supportchat %s (commit: %s, built: %s)\n", Version, Commit, Date)
		},
	}
}

func execute(cmd *cobra.Command) int {
	if err := cmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func main() {
	os.Exit(execute(newRootCmd()))
}
