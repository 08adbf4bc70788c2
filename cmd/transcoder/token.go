package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/transcoder/internal/server/auth"
	"github.com/spf13/cobra"
)

func newTokenCommand() *cobra.Command {
	var (
		id  auth.Identity
		ttl time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development access token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if id.Username == "" && id.Email == "" {
				return errors.New("--username or --email is required")
			}
			if ttl <= 0 {
				ttl = cfg.TokenTTL
			}

			issuer := auth.NewIssuer([]byte(cfg.Secrets()[0]), cfg.JWTIssuer, cfg.JWTAudience, ttl)
			token, err := issuer.Issue(id)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVarP(&id.Username, "username", "u", "", "token subject")
	cmd.Flags().StringVar(&id.Email, "email", "", "email claim")
	cmd.Flags().StringSliceVarP(&id.Groups, "group", "g", nil, "group membership, repeatable (admin grants the global scope)")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (defaults to --token-ttl)")
	return cmd
}
