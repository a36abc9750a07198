package main

import (
	"fmt"
	"time"

	"fms/internal/server/service"

	"github.com/spf13/cobra"
)

var (
	tokenAdmin bool
	tokenTTL   time.Duration
)

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.Flags().BoolVar(&tokenAdmin, "admin", false, "grant the admin role (credit top-ups, clearing usage, any account)")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "token lifetime (default from config)")
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue an API bearer token for the account",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		auth, err := newAuthService(appCfg.Server.Auth)
		if err != nil {
			return err
		}
		role := service.RoleUser
		if tokenAdmin {
			role = service.RoleAdmin
		}
		ttl := tokenTTL
		if ttl <= 0 {
			ttl = appCfg.Server.Auth.TokenTTL
		}
		token, err := auth.Issue(appCfg.Ledger.User, role, ttl)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}
