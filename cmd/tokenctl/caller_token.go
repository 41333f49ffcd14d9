package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/congo-pay/tokenledger/internal/auth"
	"github.com/congo-pay/tokenledger/internal/ledger"
)

func callerTokenCommand() *cobra.Command {
	var (
		account uint64
		secret  string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "caller-token",
		Short: "Sign a bearer token for an account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if secret == "" {
				secret = os.Getenv("JWT_SECRET")
			}
			if secret == "" {
				return fmt.Errorf("--secret or JWT_SECRET is required")
			}
			token, err := auth.SignCaller(ledger.AccountID(account), []byte(secret), ttl, time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().Uint64Var(&account, "account", 0, "account named in the token")
	cmd.Flags().StringVar(&secret, "secret", "", "HS256 secret, defaults to JWT_SECRET")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime, 0 for no expiry")
	_ = cmd.MarkFlagRequired("account")
	return cmd
}
