package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/lineage/internal/graph"
)

// NewDotCommand creates the dot command.
func NewDotCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		out        string
		ignoreCmds []string
		ignoreExts []string
		title      string
	)

	cmd := &cobra.Command{
		Use:   "dot",
		Short: "Render the provenance graph as GraphViz dot",
		Long: `Render the loaded provenance graph in GraphViz dot format, to stdout
or a file. Step nodes draw as invhouse, file nodes as oval; edges are
labeled with the argument that carried the file.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDot(rootOpts, out, ignoreCmds, ignoreExts, title, cmd)
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "destination file (default stdout)")
	cmd.Flags().StringSliceVar(&ignoreCmds, "ignore-cmd", nil, "step names to omit")
	cmd.Flags().StringSliceVar(&ignoreExts, "ignore-ext", nil, "file extensions to omit")
	cmd.Flags().StringVar(&title, "title", "", "graph title")
	return cmd
}

func runDot(opts *RootOptions, out string, ignoreCmds, ignoreExts []string, title string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	g, err := loadGraph(opts, cmd)
	if err != nil {
		_ = formatter.Error(ErrCodeStore, err.Error())
		return err
	}

	w := cmd.OutOrStdout()
	if out != "" {
		f, err := os.Create(out)
		if err != nil {
			_ = formatter.Error(ErrCodeExport, err.Error())
			return WrapExitError(ExitCommandError, "cannot create output file", err)
		}
		defer f.Close()
		w = f
	}

	dotOpts := graph.DOTOptions{
		IgnoreCmds: ignoreCmds,
		IgnoreExts: ignoreExts,
		Title:      title,
	}
	if err := g.WriteDOT(w, dotOpts); err != nil {
		_ = formatter.Error(ErrCodeExport, err.Error())
		return WrapExitError(ExitCommandError, "dot rendering failed", err)
	}
	if out != "" {
		fmt.Fprintf(formatter.GetErrWriter(), "wrote %s\n", out)
	}
	return nil
}
