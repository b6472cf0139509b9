package commands

import (
	"fmt"

	"github.com/rpattn/ledgerflow/internal/tenant"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newReverseStatementCommand(opts *globalOptions) *cobra.Command {
	var tenantID, statement string

	cmd := &cobra.Command{
		Use:   "reverse-statement",
		Short: "Unpost every transaction posted into a statement before it is deleted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := tenant.New(tenantID)
			if err != nil {
				return err
			}
			statementID, err := uuid.Parse(statement)
			if err != nil {
				return fmt.Errorf("invalid statement id %q: %w", statement, err)
			}

			e, ctx, err := openEnv(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer e.Close()

			reversal, reverseErr := e.services.Posting.ReverseStatement(ctx, t, statementID)
			if err := printJSON(cmd.OutOrStdout(), reversal); err != nil {
				return err
			}
			return reverseErr
		},
	}

	cmd.Flags().StringVar(&tenantID, "tenant", "", "tenant id (required)")
	cmd.Flags().StringVar(&statement, "statement", "", "statement id (required)")
	_ = cmd.MarkFlagRequired("tenant")
	_ = cmd.MarkFlagRequired("statement")

	return cmd
}
