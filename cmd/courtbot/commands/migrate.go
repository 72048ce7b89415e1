package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"courtbot/internal/config"
	"courtbot/internal/db"
)

func NewMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			gdb, err := db.Connect(cfg.DatabaseURL)
			if err != nil {
				return err
			}
			if sqlDB, err := gdb.DB(); err == nil {
				defer sqlDB.Close()
			}
			if err := db.AutoMigrateAndIndexes(gdb); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return nil
		},
	}
}
