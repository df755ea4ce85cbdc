package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/programmedstyle/livechat/internal/config"
	"github.com/programmedstyle/livechat/internal/gateway"
)

func newTokenCmd() *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an admin bearer token from the configured JWT secret",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(paths.Config)
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret == "" {
				return fmt.Errorf("auth.jwtSecret is not configured")
			}

			auth := gateway.NewAuthenticator(cfg.Auth.JWTSecret, log)
			token, err := auth.MintToken(subject, ttl)
			if err != nil {
				return fmt.Errorf("minting token: %w", err)
			}

			fmt.Println(token)
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "admin", "token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")

	return cmd
}
