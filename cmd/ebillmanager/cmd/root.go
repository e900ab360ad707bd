// Package cmd provides the CLI commands for ebillmanager.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bher20/ebillmanager/internal/config"
	"github.com/bher20/ebillmanager/internal/logging"
)

var (
	cfgFile string
	verbose bool

	// cfg is loaded before any subcommand runs.
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "ebillmanager",
	Short: "Electricity bill calculation service",
	Long: `ebillmanager turns daily electricity consumption into itemized bills.

It serves the bill API and web UI, runs the scheduled billing job against
the analytics backend and calculates bills offline.

Examples:
  ebillmanager serve
  ebillmanager bill --values 10,12.5,9 --tariff msedcl-residential
  ebillmanager worker --once
  ebillmanager migrate up`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		if verbose {
			c.Logging.Level = "debug"
		}
		if err := logging.Initialize(c.Logging); err != nil {
			return fmt.Errorf("init logging: %w", err)
		}
		cfg = c
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./ebillmanager.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}
