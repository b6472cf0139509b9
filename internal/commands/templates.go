package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newTemplatesCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "templates",
		Short: "Manage column-mapping templates",
	}
	cmd.AddCommand(newTemplatesSeedCommand(opts), newTemplatesListCommand(opts))
	return cmd
}

func newTemplatesSeedCommand(opts *globalOptions) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Store the built-in templates, or those in --file, that are not present yet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, ctx, err := openEnv(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer e.Close()

			if file == "" {
				file = e.cfg.Templates.SeedFile
			}
			created, err := e.services.SeedTemplates(ctx, file)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d templates created\n", created)
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "YAML seed file (defaults to templates.seed_file, then the built-in set)")
	return cmd
}

func newTemplatesListCommand(opts *globalOptions) *cobra.Command {
	var all, builtin bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List templates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			open := openEnv
			if builtin {
				open = openDryRunEnv
			}
			e, ctx, err := open(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer e.Close()

			tpls, err := e.services.Templates.List(ctx, all)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tSOURCE\tFORMAT\tVERSION\tACTIVE")
			for _, tpl := range tpls {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%t\n", tpl.ID, tpl.Name, tpl.SourceType, tpl.FileFormat, tpl.Version, tpl.Active)
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "include inactive versions")
	cmd.Flags().BoolVar(&builtin, "builtin", false, "list the built-in seed without a database")
	return cmd
}
