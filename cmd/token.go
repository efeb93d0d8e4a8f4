package cmd

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"chatrelay/internal/auth"
	"chatrelay/internal/config"
)

var (
	tokenConfigPath string
	tokenUser       string
	tokenTTL        time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a bearer token for a user (development only)",
	RunE: func(cmd *cobra.Command, _ []string) error {
		user := strings.TrimSpace(tokenUser)
		if user == "" {
			return errors.New("--user is required")
		}

		cfg, err := config.Load(tokenConfigPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		ttl := cfg.Auth.TokenTTL
		if tokenTTL > 0 {
			ttl = tokenTTL
		}
		token, err := auth.NewIssuer(cfg.Auth.JWTSecret, ttl).Issue(user)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVarP(&tokenConfigPath, "config", "c", "", "Path to YAML configuration file")
	tokenCmd.Flags().StringVarP(&tokenUser, "user", "u", "", "User id the token identifies")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "Token lifetime (defaults to auth.token_ttl)")
}
