package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/SOCR-470/hr-docs-pro-sub000/pkg/client"
)

var (
	modelID        string
	employeeID     string
	expirationDays int
	idempotencyKey string
	cancelReason   string
)

func withTimeout(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), timeout)
}

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Render a template for an employee without creating a document",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := withTimeout(cmd)
		defer cancel()
		content, err := newClient().Preview(ctx, modelID, employeeID)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), map[string]any{"model_id": modelID, "employee_id": employeeID, "content": content})
	},
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a draft document and its signing link",
	RunE: func(cmd *cobra.Command, args []string) error {
		if modelID == "" || employeeID == "" {
			return errors.New("--model and --employee are required")
		}
		key := idempotencyKey
		if key == "" {
			key = client.NewIdempotencyKey()
		}
		ctx, cancel := withTimeout(cmd)
		defer cancel()
		g, err := newClient().Generate(ctx, modelID, employeeID, expirationDays, key)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"document_id":     g.Document.ID,
			"status":          g.Document.Status,
			"expires_at":      g.Document.ExpiresAt,
			"sign_url":        g.SignURL,
			"idempotency_key": key,
		})
	},
}

func documentCommand(use, short string, call func(ctx context.Context, c *client.Client, id string) (*client.DocumentResult, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <document-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := withTimeout(cmd)
			defer cancel()
			res, err := call(ctx, newClient(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
}

var sendCmd = documentCommand("send", "Send (or resend) a document to its employee", func(ctx context.Context, c *client.Client, id string) (*client.DocumentResult, error) {
	return c.Send(ctx, id)
})

var requestSignatureCmd = documentCommand("request-signature", "Mark a document as awaiting signature", func(ctx context.Context, c *client.Client, id string) (*client.DocumentResult, error) {
	return c.RequestSignature(ctx, id)
})

var cancelCmd = documentCommand("cancel", "Cancel a document and revoke its signing link", func(ctx context.Context, c *client.Client, id string) (*client.DocumentResult, error) {
	return c.Cancel(ctx, id, cancelReason)
})

var getCmd = documentCommand("get", "Show a document", func(ctx context.Context, c *client.Client, id string) (*client.DocumentResult, error) {
	return c.Get(ctx, id)
})

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the documents of an employee",
	RunE: func(cmd *cobra.Command, args []string) error {
		if employeeID == "" {
			return errors.New("--employee is required")
		}
		ctx, cancel := withTimeout(cmd)
		defer cancel()
		docs, err := newClient().ListByEmployee(ctx, employeeID)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), map[string]any{"employee_id": employeeID, "documents": docs})
	},
}

var eventsCmd = &cobra.Command{
	Use:   "events <document-id>",
	Short: "Show the audit trail of a document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := withTimeout(cmd)
		defer cancel()
		events, err := newClient().Events(ctx, args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), map[string]any{"document_id": args[0], "events": events})
	},
}

func init() {
	for _, c := range []*cobra.Command{previewCmd, generateCmd} {
		c.Flags().StringVar(&modelID, "model", "", "Template id")
		c.Flags().StringVar(&employeeID, "employee", "", "Employee id")
	}
	generateCmd.Flags().IntVar(&expirationDays, "days", 0, "Days until the signing link expires (server default when 0)")
	generateCmd.Flags().StringVar(&idempotencyKey, "idempotency-key", "", "Reuse a key to make retries safe")
	listCmd.Flags().StringVar(&employeeID, "employee", "", "Employee id")
	cancelCmd.Flags().StringVar(&cancelReason, "reason", "", "Reason recorded in the audit trail")

	rootCmd.AddCommand(previewCmd, generateCmd, sendCmd, requestSignatureCmd, cancelCmd, getCmd, listCmd, eventsCmd)
}
