package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/lineage/internal/comp"
)

// CompEntry is one computation in JSON output.
type CompEntry struct {
	MainInput  string `json:"main_input"`
	MainOutput string `json:"main_output"`
}

// CompGroup is one group of computations sharing identical main inputs.
type CompGroup struct {
	Comps []CompEntry `json:"comps"`

	// Diffs holds, for each comp after the first, the "name=value"
	// attribute pairs present in exactly one of (first comp, this comp).
	Diffs [][]string `json:"diffs,omitempty"`
}

// CompReport is the JSON payload of the report command.
type CompReport struct {
	Profile string      `json:"profile"`
	Groups  []CompGroup `json:"groups"`
}

// NewReportCommand creates the report command.
func NewReportCommand(rootOpts *RootOptions) *cobra.Command {
	var profilePath string

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Group computations by main input and diff their parameters",
		Long: `Extract computations matching a profile, group them by the content of
their main inputs, and for every group with more than one member print
the parameter differences against the group's first member. This
answers "same input, different output: what changed?".`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(rootOpts, profilePath, cmd)
		},
	}
	cmd.Flags().StringVar(&profilePath, "profile", "", "extraction profile (YAML)")
	_ = cmd.MarkFlagRequired("profile")
	return cmd
}

func runReport(opts *RootOptions, profilePath string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	profile, err := comp.LoadProfile(profilePath)
	if err != nil {
		_ = formatter.Error(ErrCodeProfile, err.Error())
		return WrapExitError(ExitCommandError, "cannot load profile", err)
	}

	g, err := loadGraph(opts, cmd)
	if err != nil {
		_ = formatter.Error(ErrCodeStore, err.Error())
		return err
	}

	comps := comp.Extract(g, profile, slog.Default())
	formatter.VerboseLog("extracted %d computation(s)", len(comps))

	report := CompReport{Profile: profile.Name}
	for _, group := range comp.Group(comps) {
		cg := CompGroup{}
		for _, c := range group {
			cg.Comps = append(cg.Comps, CompEntry{
				MainInput:  c.MainInputs[0].RealPath,
				MainOutput: c.MainOutputs[0].RealPath,
			})
		}
		if len(group) > 1 {
			base := comp.Attrs(g, group[0], profile)
			for _, c := range group[1:] {
				cg.Diffs = append(cg.Diffs, comp.DiffAttrs(base, comp.Attrs(g, c, profile)))
			}
		}
		report.Groups = append(report.Groups, cg)
	}

	if formatter.Format == "json" {
		return formatter.Success(report)
	}

	for i, cg := range report.Groups {
		fmt.Fprintf(formatter.Writer, "group %d (%d comp(s)):\n", i+1, len(cg.Comps))
		for _, c := range cg.Comps {
			fmt.Fprintf(formatter.Writer, "  %s -> %s\n", c.MainInput, c.MainOutput)
		}
		for j, diff := range cg.Diffs {
			fmt.Fprintf(formatter.Writer, "  diff vs first (comp %d):\n", j+2)
			if len(diff) == 0 {
				fmt.Fprintln(formatter.Writer, "    (identical parameters)")
			}
			for _, line := range diff {
				fmt.Fprintf(formatter.Writer, "    %s\n", line)
			}
		}
	}
	return nil
}
