package main

import (
	"fmt"

	"sportsync/internal/config"
	"sportsync/internal/database"
	"sportsync/internal/logging"

	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and seed reference data",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, closer, err := logging.New(cfg.Logging, cfg.App)
			if err != nil {
				return err
			}
			if closer != nil {
				defer closer.Close()
			}
			db, err := database.Open(cmd.Context(), cfg.Database, logger)
			if err != nil {
				return err
			}
			defer db.Close()

			counts, err := db.EntityCounts(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "database ready (%s): %v\n", db.Driver(), counts)
			return nil
		},
	}
}

func newBackupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Back up the sqlite database and prune old backups",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if !cfg.Backup.Enabled {
				return fmt.Errorf("backups are disabled in %s", configPath)
			}
			logger, closer, err := logging.New(cfg.Logging, cfg.App)
			if err != nil {
				return err
			}
			if closer != nil {
				defer closer.Close()
			}
			db, err := database.Open(cmd.Context(), cfg.Database, logger)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := database.NewBackupService(db, cfg.Backup, logger).Run(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "backup written to %s\n", cfg.Backup.StoragePath)
			return nil
		},
	}
}
