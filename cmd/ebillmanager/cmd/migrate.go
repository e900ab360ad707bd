package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bher20/ebillmanager/internal/migrate"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the database schema",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := rootCmd.PersistentPreRunE(cmd, args); err != nil {
			return err
		}
		if cfg.Database.Driver == "memory" {
			return errors.New("database.driver is memory; nothing to migrate")
		}
		return nil
	},
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := migrate.Up(cmd.Context(), cfg.Database.Driver, cfg.Database.DSN); err != nil {
			return err
		}
		return printVersion(cmd)
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the most recent migration",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := migrate.Down(cmd.Context(), cfg.Database.Driver, cfg.Database.DSN); err != nil {
			return err
		}
		return printVersion(cmd)
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show applied and pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return migrate.Status(cmd.Context(), cfg.Database.Driver, cfg.Database.DSN)
	},
}

func printVersion(cmd *cobra.Command) error {
	v, err := migrate.Version(cmd.Context(), cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "schema version %d\n", v)
	return nil
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateStatusCmd)
}
