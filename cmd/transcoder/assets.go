package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/transcoder/internal/server/models"
	"github.com/dmitrijs2005/transcoder/internal/server/repositories/repomanager"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newAssetsCommand() *cobra.Command {
	var owner string

	cmd := &cobra.Command{
		Use:   "assets",
		Short: "List catalog records",
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
				return err
			}

			list, err := rm.Assets().List(ctx, owner)
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No assets")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderAssets(list, time.Now()))
			return nil
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "only this owner's assets")
	return cmd
}

func renderAssets(list []*models.Asset, now time.Time) string {
	headers := []string{"Owner", "Filename", "Size", "Uploaded", "Variants", "Last failure"}
	aligns := []columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignRight, alignLeft}

	rows := make([][]string, 0, len(list))
	for _, a := range list {
		failure := ""
		if a.LastFailure != nil {
			failure = a.LastFailure.Variant + ": " + truncate(a.LastFailure.Reason, 40)
		}
		rows = append(rows, []string{
			a.OwnerID,
			a.Filename,
			humanize.IBytes(uint64(max(a.Size, 0))),
			humanize.RelTime(a.UploadedAt, now, "ago", "from now"),
			strconv.Itoa(len(a.Processed)),
			failure,
		})
	}
	return renderTable(headers, rows, aligns)
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
