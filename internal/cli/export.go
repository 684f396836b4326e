package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/lineage/internal/graph"
)

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the provenance graph to a SQLite database",
		Long: `Write a snapshot of the loaded provenance graph into a SQLite
database for ad-hoc SQL analysis. The database is a derived artifact:
the graph is always rebuilt from the record store, never from a
previous export.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(rootOpts, out, cmd)
		},
	}
	cmd.Flags().StringVar(&out, "out", "lineage.db", "destination database file")
	return cmd
}

func runExport(opts *RootOptions, out string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	g, err := loadGraph(opts, cmd)
	if err != nil {
		_ = formatter.Error(ErrCodeStore, err.Error())
		return err
	}

	if err := graph.ExportSQLite(cmd.Context(), out, g); err != nil {
		_ = formatter.Error(ErrCodeExport, err.Error())
		return WrapExitError(ExitCommandError, "export failed", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(map[string]any{
			"database": out,
			"steps":    len(g.Steps()),
			"files":    len(g.Files()),
		})
	}
	fmt.Fprintf(formatter.Writer, "exported %d step(s) and %d file(s) to %s\n",
		len(g.Steps()), len(g.Files()), out)
	return nil
}
