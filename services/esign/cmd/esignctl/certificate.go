package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/SOCR-470/hr-docs-pro-sub000/services/esign/internal/certificate"
)

var bundleOut string

var certificateCmd = &cobra.Command{
	Use:   "certificate",
	Short: "Fetch and verify signature certificates",
}

var certificateGetCmd = &cobra.Command{
	Use:   "get <document-id>",
	Short: "Fetch the certificate of a signed document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := withTimeout(cmd)
		defer cancel()
		res, err := newClient().Certificate(ctx, args[0])
		if err != nil {
			return err
		}
		if bundleOut != "" {
			if len(res.Bundle) == 0 {
				return errors.New("service returned no bundle")
			}
			if err := os.WriteFile(bundleOut, res.Bundle, 0o600); err != nil {
				return fmt.Errorf("write bundle: %w", err)
			}
		}
		return printJSON(cmd.OutOrStdout(), map[string]any{"certificate": res.Certificate, "verified": res.Verified})
	},
}

var certificateVerifyCmd = &cobra.Command{
	Use:   "verify <bundle.json>",
	Short: "Recompute a certificate offline from its bundle",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		var b certificate.Bundle
		if err := json.Unmarshal(raw, &b); err != nil {
			return fmt.Errorf("parse bundle: %w", err)
		}
		report, err := certificate.VerifyBundle(b)
		if err != nil {
			return err
		}
		if err := printJSON(cmd.OutOrStdout(), map[string]any{
			"document_id": b.Certificate.DocumentID,
			"digest":      b.Certificate.Digest,
			"report":      report,
			"ok":          report.OK(),
		}); err != nil {
			return err
		}
		if !report.OK() {
			return errors.New("certificate does not match its bundle")
		}
		return nil
	},
}

func init() {
	certificateGetCmd.Flags().StringVar(&bundleOut, "bundle-out", "", "Write the verification bundle to this file")
	certificateCmd.AddCommand(certificateGetCmd, certificateVerifyCmd)
	rootCmd.AddCommand(certificateCmd)
}
