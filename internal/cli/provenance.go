package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/lineage/internal/graph"
)

// ProvenanceStep is one entry of a provenance chain in JSON output.
type ProvenanceStep struct {
	StepID     string `json:"step_id"`
	StepName   string `json:"step_name"`
	BegTimeMs  int64  `json:"beg_time_ms"`
	RecordFile string `json:"record_file"`
}

// ProvenanceReport is the JSON payload of the provenance command.
type ProvenanceReport struct {
	Path      string           `json:"path"`
	RealPath  string           `json:"realpath"`
	Hash      string           `json:"hash"`
	Heuristic bool             `json:"heuristic"`
	Steps     []ProvenanceStep `json:"steps"`
}

// NewProvenanceCommand creates the provenance command.
func NewProvenanceCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "provenance <file>",
		Short: "Show the chain of recorded steps that produced a file",
		Long: `Resolve a file to its current content identity and print the ordered
chain of recorded steps that produced it, producers first. When the
exact file state was never recorded as an output, the chain is
reconstructed from an earlier equivalent state and marked heuristic.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProvenance(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runProvenance(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	g, err := loadGraph(opts, cmd)
	if err != nil {
		_ = formatter.Error(ErrCodeStore, err.Error())
		return err
	}
	formatter.VerboseLog("graph loaded: %d steps, %d files", len(g.Steps()), len(g.Files()))

	res, err := g.Provenance(path)
	if err != nil {
		code := ErrCodeStore
		exit := ExitCommandError
		if errors.Is(err, graph.ErrNoProvenance) {
			code = ErrCodeNoProvenance
			exit = ExitFailure
		}
		_ = formatter.Error(code, err.Error())
		return WrapExitError(exit, "provenance query failed", err)
	}

	report := ProvenanceReport{
		Path:      path,
		RealPath:  res.File.RealPath,
		Hash:      res.File.Hash,
		Heuristic: res.Heuristic,
	}
	for _, s := range res.Steps {
		report.Steps = append(report.Steps, ProvenanceStep{
			StepID:     s.ID,
			StepName:   s.StepName,
			BegTimeMs:  s.Record.RunInfo.BegTimeMillis,
			RecordFile: s.RecordFile,
		})
	}

	if formatter.Format == "json" {
		return formatter.Success(report)
	}

	fmt.Fprintf(formatter.Writer, "provenance of %s", path)
	if report.Heuristic {
		fmt.Fprint(formatter.Writer, " (heuristic)")
	}
	fmt.Fprintln(formatter.Writer)
	for i, s := range report.Steps {
		fmt.Fprintf(formatter.Writer, "%3d. %s (%s)\n", i+1, s.StepName, s.StepID)
	}
	return nil
}
