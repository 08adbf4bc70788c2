package main

import (
	"fmt"

	"github.com/dmitrijs2005/transcoder/internal/server/repositories/repomanager"
	"github.com/spf13/cobra"
)

func newMigrateCommand() *cobra.Command {
	var fromLedger string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply schema migrations and optionally import a ledger file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}

			rm, err := repomanager.Open(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer rm.Close()

			if err := rm.RunMigrations(ctx); err != nil {
				return fmt.Errorf("migrations: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s metadata store is up to date\n", cfg.MetadataBackend)

			if fromLedger == "" {
				return nil
			}
			records, err := repomanager.Ledger(fromLedger).List(ctx, "")
			if err != nil {
				return fmt.Errorf("read ledger: %w", err)
			}
			n, err := rm.Import(ctx, records)
			if err != nil {
				return fmt.Errorf("import ledger: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d asset records from %s\n", n, fromLedger)
			return nil
		},
	}

	cmd.Flags().StringVar(&fromLedger, "from-ledger", "", "JSON ledger file to import after migrating")
	return cmd
}
