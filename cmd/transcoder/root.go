package main

import (
	"os"

	"github.com/dmitrijs2005/transcoder/internal/logging"
	"github.com/dmitrijs2005/transcoder/internal/server/config"
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "transcoder",
		Short:         "Multi-tenant media transcoding service",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	config.RegisterFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newMigrateCommand())
	rootCmd.AddCommand(newTokenCommand())
	rootCmd.AddCommand(newEncodeCommand())
	rootCmd.AddCommand(newAssetsCommand())
	rootCmd.AddCommand(newPutCommand())

	return rootCmd
}

// loadConfig reads the layered configuration for cmd. The merged flag set
// carries the persistent flags the user actually set.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	return config.Load(cmd.Flags())
}

func newLogger(cfg *config.Config) (logging.Logger, error) {
	return logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
}
