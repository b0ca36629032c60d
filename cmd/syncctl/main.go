// Command syncctl manages a running sync engine over its HTTP API and runs
// local maintenance against the configured database.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	serverURL  string
	apiKey     string
	configPath string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "syncctl",
		Short:         "Control the sports data sync engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&serverURL, "server", envOr("SYNCCTL_SERVER", "http://localhost:8080"), "sync engine base URL")
	root.PersistentFlags().StringVar(&apiKey, "api-key", os.Getenv("SYNCCTL_API_KEY"), "API key sent in the x-api-key header")
	root.PersistentFlags().StringVar(&configPath, "config", envOr("CONFIG_PATH", "configs/config.yaml"), "config file for local commands")

	root.AddCommand(
		newJobsCmd(),
		newQueueCmd(),
		newSyncCmd(),
		newMigrateCmd(),
		newBackupCmd(),
	)
	return root
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
