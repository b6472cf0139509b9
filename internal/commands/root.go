// Package commands holds the ledgerctl operator CLI.
package commands

import (
	"encoding/json"
	"io"

	"github.com/spf13/cobra"
)

type globalOptions struct {
	configPath string
	logLevel   string
}

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	opts := &globalOptions{}
	rootCmd := &cobra.Command{
		Use:   "ledgerctl",
		Short: "Operate the ledgerflow import pipeline",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "directory containing config.yaml")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override log.level")

	rootCmd.AddCommand(
		newMigrateCommand(opts),
		newTemplatesCommand(opts),
		newImportCommand(opts),
		newReapCommand(opts),
		newReverseStatementCommand(opts),
	)

	return rootCmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
