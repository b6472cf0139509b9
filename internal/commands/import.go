package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rpattn/ledgerflow/internal/ingestion"
	"github.com/rpattn/ledgerflow/internal/templates"
	"github.com/rpattn/ledgerflow/internal/tenant"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newImportCommand(opts *globalOptions) *cobra.Command {
	var tenantID, templateRef, file string
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a CSV or Excel file into a tenant's staging area",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := tenant.New(tenantID)
			if err != nil {
				return err
			}

			open := openEnv
			if dryRun {
				open = openDryRunEnv
			}
			e, ctx, err := open(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer e.Close()

			templateID, err := resolveTemplate(ctx, e.services.Templates, templateRef)
			if err != nil {
				return err
			}

			f, err := os.Open(file)
			if err != nil {
				return fmt.Errorf("opening %s: %w", file, err)
			}
			defer f.Close()

			result, importErr := e.services.Ingestion.Import(ctx, ingestion.Request{
				Tenant:     t,
				TemplateID: templateID,
				FileName:   filepath.Base(file),
				Data:       f,
			})
			if result.ImportLogID != uuid.Nil {
				if err := printJSON(cmd.OutOrStdout(), result); err != nil {
					return err
				}
			}
			return importErr
		},
	}

	cmd.Flags().StringVar(&tenantID, "tenant", "", "tenant id (required)")
	cmd.Flags().StringVar(&templateRef, "template", "", "template id or active template name (required)")
	cmd.Flags().StringVar(&file, "file", "", "path of the file to import (required)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate against in-memory stores and the built-in templates")
	_ = cmd.MarkFlagRequired("tenant")
	_ = cmd.MarkFlagRequired("template")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

// resolveTemplate accepts a template id or the name of an active template.
func resolveTemplate(ctx context.Context, registry *templates.Registry, ref string) (uuid.UUID, error) {
	if id, err := uuid.Parse(ref); err == nil {
		return id, nil
	}
	tpl, err := registry.GetByName(ctx, ref)
	if err != nil {
		return uuid.Nil, fmt.Errorf("template %q: %w", ref, err)
	}
	return tpl.ID, nil
}
