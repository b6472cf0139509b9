package commands

import (
	"errors"
	"fmt"
	"time"

	"github.com/rpattn/ledgerflow/internal/tenant"

	"github.com/spf13/cobra"
)

func newReapCommand(opts *globalOptions) *cobra.Command {
	var tenants []string
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "reap",
		Short: "Recover imports stuck in processing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, ctx, err := openEnv(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer e.Close()

			if olderThan <= 0 {
				olderThan = e.cfg.Import.StuckAfter
			}

			var errs []error
			for _, id := range tenants {
				t, err := tenant.New(id)
				if err != nil {
					return err
				}
				settled, err := e.services.Logs.ReapStuck(ctx, t, olderThan)
				if err != nil {
					errs = append(errs, fmt.Errorf("tenant %s: %w", t.ID, err))
				}
				for _, log := range settled {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", t.ID, log.ID, log.Status)
				}
			}
			return errors.Join(errs...)
		},
	}

	cmd.Flags().StringSliceVar(&tenants, "tenant", nil, "tenants to sweep (repeatable, required)")
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "processing age that counts as stuck (defaults to import.stuck_after)")
	_ = cmd.MarkFlagRequired("tenant")

	return cmd
}
