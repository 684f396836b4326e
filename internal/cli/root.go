// Package cli implements the lineage command-line interface: queries and
// reports over a directory of step records.
package cli

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/lineage/internal/graph"
	"github.com/roach88/lineage/internal/store"
)

// Error codes used in JSON error responses.
const (
	ErrCodeStore        = "E001" // store unreadable or graph load failed
	ErrCodeNoProvenance = "E002" // no provenance resolvable for the file
	ErrCodeProfile      = "E003" // bad extraction profile
	ErrCodeExport       = "E004" // export destination failure
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Store   string
	Format  string // "json" | "text"
	Verbose bool
	MaxAge  time.Duration
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the lineage CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "lineage",
		Short: "Query and report on recorded command provenance",
		Long: `lineage reads a directory of step records (one immutable JSON record
per recorded command execution) and answers provenance questions over
them: where a file came from, which files have no recorded origin, and
how two runs over the same inputs differed.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			level := slog.LevelWarn
			if opts.Verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(),
				&slog.HandlerOptions{Level: level})))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Store, "store", defaultStore(), "directory holding step records")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().DurationVar(&opts.MaxAge, "max-age", 0, "ignore records older than this (0 = no limit)")

	cmd.AddCommand(NewProvenanceCommand(opts))
	cmd.AddCommand(NewOrphansCommand(opts))
	cmd.AddCommand(NewReportCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))
	cmd.AddCommand(NewDotCommand(opts))

	return cmd
}

// defaultStore resolves the record directory: the LINEAGE_STORE
// environment variable, falling back to ./lineage.
func defaultStore() string {
	if dir := os.Getenv("LINEAGE_STORE"); dir != "" {
		return dir
	}
	return "lineage"
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// loadGraph opens the record store and assembles the provenance graph,
// translating failures into command-level exit errors.
func loadGraph(opts *RootOptions, cmd *cobra.Command) (*graph.Graph, error) {
	st, err := store.Open(opts.Store)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "cannot open record store", err)
	}
	g, err := graph.Load(cmd.Context(), st, graph.LoadOptions{MaxAge: opts.MaxAge})
	if err != nil {
		return nil, WrapExitError(ExitFailure, "cannot load provenance graph", err)
	}
	return g, nil
}

// newFormatter builds the per-command output formatter from the global
// flags and the command's writers.
func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}
