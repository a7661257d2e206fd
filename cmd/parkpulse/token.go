package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/parkpulse/parkpulse/internal/api"
	"github.com/parkpulse/parkpulse/internal/config"
)

var (
	tokenWallet string
	tokenRole   string
	tokenTTL    time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint an operator token for the protected API endpoints",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		token, err := api.NewToken([]byte(cfg.JWTSecret), tokenWallet, tokenRole, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenWallet, "wallet", "", "operator wallet address (e.g. 0.0.1234)")
	tokenCmd.Flags().StringVar(&tokenRole, "role", "operator", "role claim")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
	_ = tokenCmd.MarkFlagRequired("wallet")
}
