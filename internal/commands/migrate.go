package commands

import (
	"fmt"

	"github.com/rpattn/ledgerflow/internal/db"
	"github.com/rpattn/ledgerflow/internal/tenant"

	"github.com/spf13/cobra"
)

func newMigrateCommand(opts *globalOptions) *cobra.Command {
	var tenants []string
	var down bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply schema migrations to the control database and tenant databases",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(opts)
			if err != nil {
				return err
			}

			targets := []db.Config{cfg.Database}
			names := []string{"control"}
			for _, id := range tenants {
				t, err := tenant.New(id)
				if err != nil {
					return err
				}
				targets = append(targets, cfg.Database.ForTenant(t.ID))
				names = append(names, t.ID)
			}

			for i, target := range targets {
				if down {
					if err := db.MigrateDown(target); err != nil {
						return fmt.Errorf("%s: %w", names[i], err)
					}
					log.Info().Str("database", target.DBName).Msg("migrations rolled back")
					continue
				}
				version, err := db.Migrate(target)
				if err != nil {
					return fmt.Errorf("%s: %w", names[i], err)
				}
				log.Info().Str("database", target.DBName).Uint("version", version).Msg("migrations applied")
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\tversion %d\n", names[i], target.DBName, version)
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&tenants, "tenant", nil, "tenant databases to migrate as well (repeatable)")
	cmd.Flags().BoolVar(&down, "down", false, "roll back every migration instead")

	return cmd
}
