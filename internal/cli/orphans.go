package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// OrphansReport is the JSON payload of the orphans command.
type OrphansReport struct {
	Count int      `json:"count"`
	Paths []string `json:"paths"`
}

// NewOrphansCommand creates the orphans command.
func NewOrphansCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "orphans",
		Short: "List files that exist on disk but have no recorded origin",
		Long: `List every file that appears in the provenance graph as a consumed
input, still exists on disk, and has no recorded producing step even
after repair. These are the gaps in recording coverage.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOrphans(rootOpts, cmd)
		},
	}
	return cmd
}

func runOrphans(opts *RootOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	g, err := loadGraph(opts, cmd)
	if err != nil {
		_ = formatter.Error(ErrCodeStore, err.Error())
		return err
	}

	paths := g.UnknownOrigin()
	report := OrphansReport{Count: len(paths), Paths: paths}

	if formatter.Format == "json" {
		return formatter.Success(report)
	}

	if report.Count == 0 {
		fmt.Fprintln(formatter.Writer, "no files of unknown origin")
		return nil
	}
	fmt.Fprintf(formatter.Writer, "%d file(s) of unknown origin:\n", report.Count)
	for _, p := range report.Paths {
		fmt.Fprintf(formatter.Writer, "  %s\n", p)
	}
	return nil
}
