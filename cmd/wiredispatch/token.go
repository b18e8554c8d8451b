package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/wiredispatch/internal/auth"
	"github.com/vovakirdan/wiredispatch/internal/config"
	transporthttp "github.com/vovakirdan/wiredispatch/internal/transport/http"
)

func tokenCmd(root *rootOptions) *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an admin API bearer token",
		Long:  `Sign a token carrying the admin scope with the configured admin secret.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(root, config.Config{})
			if err != nil {
				return err
			}
			if cfg.Admin.Secret == "" {
				return errors.New("admin.secret is not configured")
			}

			jwtConfig := transporthttp.AdminJWTConfig(&cfg)
			if ttl > 0 {
				jwtConfig.TTL = ttl
			}

			token, err := auth.GenerateToken(jwtConfig, subject, auth.ScopeAdmin)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "admin", "Token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Token lifetime (default admin.token_ttl)")

	return cmd
}
