package main

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/SOCR-470/hr-docs-pro-sub000/pkg/authn"
	"github.com/SOCR-470/hr-docs-pro-sub000/services/esign/internal/lifecycle"
)

var (
	operatorSecret string
	operatorIssuer string
	operatorID     string
	operatorRoles  []string
	operatorTTL    time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint tokens for local development",
}

var tokenAccessCmd = &cobra.Command{
	Use:   "access",
	Short: "Print a fresh signing access token",
	RunE: func(cmd *cobra.Command, args []string) error {
		tok, err := lifecycle.NewAccessToken()
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), map[string]any{"token": tok})
	},
}

var tokenOperatorCmd = &cobra.Command{
	Use:   "operator",
	Short: "Mint an operator bearer token signed with the shared secret",
	RunE: func(cmd *cobra.Command, args []string) error {
		if operatorSecret == "" {
			return errors.New("--secret or OPERATOR_JWT_SECRET is required")
		}
		if operatorID == "" {
			return errors.New("--id is required")
		}
		a := authn.NewOperatorAuthenticator(operatorSecret, operatorIssuer)
		tok, err := a.Issue(authn.Operator{ID: operatorID, Roles: operatorRoles}, operatorTTL)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"token":      tok,
			"operator":   operatorID,
			"expires_at": time.Now().UTC().Add(operatorTTL).Truncate(time.Second),
		})
	},
}

func init() {
	tokenOperatorCmd.Flags().StringVar(&operatorSecret, "secret", envOr("OPERATOR_JWT_SECRET", ""), "HS256 secret shared with the server")
	tokenOperatorCmd.Flags().StringVar(&operatorIssuer, "issuer", envOr("OPERATOR_JWT_ISSUER", "hr-docs"), "Token issuer")
	tokenOperatorCmd.Flags().StringVar(&operatorID, "id", "", "Operator id recorded as actor")
	tokenOperatorCmd.Flags().StringSliceVar(&operatorRoles, "role", nil, "Operator roles")
	tokenOperatorCmd.Flags().DurationVar(&operatorTTL, "ttl", time.Hour, "Token lifetime")
	tokenCmd.AddCommand(tokenAccessCmd, tokenOperatorCmd)
	rootCmd.AddCommand(tokenCmd)
}
