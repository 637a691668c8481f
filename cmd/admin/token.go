package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"AttendGate/pkg/token"
)

var (
	tokenUser string
	tokenRole string
	tokenTTL  time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue an access token for a user",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := token.Init(token.Settings{
			Secret:        cfg.JWTSecret,
			ExpireMinutes: cfg.JWTExpireMinutes,
			RefreshDays:   cfg.JWTRefreshDays,
		}); err != nil {
			return err
		}

		tok, expiresAt, err := token.GenerateAccessToken(tokenUser, tokenRole, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		fmt.Fprintf(cmd.ErrOrStderr(), "expires at %s\n", expiresAt.Local().Format(time.RFC3339))
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenUser, "user", "", "user id")
	tokenCmd.Flags().StringVar(&tokenRole, "role", token.RoleEmployee, "employee or admin")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "token lifetime (default: JWT_EXPIRE_MINUTES)")
	_ = tokenCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(tokenCmd)
}
