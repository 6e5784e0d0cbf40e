package commands

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/conduit-lang/querykit/internal/web/auth"
)

// NewTokenCommand creates the token command
func NewTokenCommand() *cobra.Command {
	var (
		subject string
		roles   []string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token signed with the configured secret",
		Long: `Issue an HS256 bearer token for the serve command. Roles in the token
decide conditional filterability, e.g. attributes declared with
filterable: {role: admin}.`,
		Example: `  querykit token --sub alice --role admin`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret == "" {
				return errors.New("auth.jwt_secret is not configured")
			}
			if !cmd.Flags().Changed("ttl") {
				ttl = cfg.Auth.TokenTTL
			}

			token, err := auth.NewTokenService(cfg.Auth.JWTSecret, ttl).GenerateToken(subject, roles)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "sub", "", "principal the token is issued to")
	cmd.Flags().StringSliceVar(&roles, "role", nil, "roles carried by the token (repeatable)")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	cmd.MarkFlagRequired("sub")
	return cmd
}
