package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lineage/internal/testutil"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// runCLI executes the root command with args and returns stdout.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootRejectsInvalidFormat(t *testing.T) {
	_, err := runCLI(t, "--format", "xml", "orphans")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestOrphansEmptyStore(t *testing.T) {
	out, err := runCLI(t, "--store", t.TempDir(), "orphans")
	require.NoError(t, err)
	assert.Contains(t, out, "no files of unknown origin")
}

func TestOrphansJSON(t *testing.T) {
	out, err := runCLI(t, "--store", t.TempDir(), "--format", "json", "orphans")
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestProvenanceCommand(t *testing.T) {
	dir := t.TempDir()
	st := testutil.OpenStore(t)

	in := testutil.DiskFile(t, filepath.Join(dir, "reads.bam"), "raw reads")
	out := testutil.DiskFile(t, filepath.Join(dir, "out.fasta"), "assembly")
	testutil.WriteStep(t, st, testutil.StepFixture{
		StepID:   "sA",
		StepName: "align",
		BegMs:    1700000000000,
		Outputs:  map[string]testutil.FileState{"outBam": in},
	})
	testutil.WriteStep(t, st, testutil.StepFixture{
		StepID:   "sB",
		StepName: "assemble",
		BegMs:    1700000200000,
		Inputs:   map[string]testutil.FileState{"inBam": in},
		Outputs:  map[string]testutil.FileState{"outFasta": out},
	})

	stdout, err := runCLI(t, "--store", st.Location(), "provenance", out.Path)
	require.NoError(t, err)
	assert.Contains(t, stdout, "align")
	assert.Contains(t, stdout, "assemble")
	assert.NotContains(t, stdout, "heuristic")

	stdout, err = runCLI(t, "--store", st.Location(), "--format", "json", "provenance", out.Path)
	require.NoError(t, err)
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestProvenanceUnknownFileExitCode(t *testing.T) {
	dir := t.TempDir()
	stray := testutil.DiskFile(t, filepath.Join(dir, "stray.txt"), "never recorded")

	_, err := runCLI(t, "--store", t.TempDir(), "provenance", stray.Path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestExportCommand(t *testing.T) {
	st := testutil.OpenStore(t)
	testutil.WriteStep(t, st, testutil.StepFixture{
		StepID:   "sA",
		StepName: "align",
		BegMs:    1700000000000,
		Outputs: map[string]testutil.FileState{"outBam": {
			Path: "/d/f1.bam", Hash: "sha1_h1", Mtime: 1700000100, Size: 10,
		}},
	})

	dbPath := filepath.Join(t.TempDir(), "lineage.db")
	out, err := runCLI(t, "--store", st.Location(), "export", "--out", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "exported 1 step(s)")
	assert.FileExists(t, dbPath)
}

func TestDotCommand(t *testing.T) {
	st := testutil.OpenStore(t)
	testutil.WriteStep(t, st, testutil.StepFixture{
		StepID:   "sA",
		StepName: "align",
		BegMs:    1700000000000,
		Outputs: map[string]testutil.FileState{"outBam": {
			Path: "/d/f1.bam", Hash: "sha1_h1", Mtime: 1700000100, Size: 10,
		}},
	})

	out, err := runCLI(t, "--store", st.Location(), "dot", "--title", "t")
	require.NoError(t, err)
	assert.Contains(t, out, "digraph G {")
	assert.Contains(t, out, `"align"`)
}

func TestReportCommand(t *testing.T) {
	st := testutil.OpenStore(t)
	reads := testutil.FileState{Path: "/data/00_raw/a.bam", Hash: "sha1_r", Mtime: 1700000100, Size: 10}
	fasta := testutil.FileState{Path: "/data/02_assembly/a.fasta", Hash: "sha1_f", Mtime: 1700000300, Size: 5}
	testutil.WriteStep(t, st, testutil.StepFixture{
		StepID:   "asm",
		StepName: "assemble",
		BegMs:    1700000000000,
		Inputs:   map[string]testutil.FileState{"inBam": reads},
		Outputs:  map[string]testutil.FileState{"outFasta": fasta},
	})

	profile := filepath.Join(t.TempDir(), "assembly.yaml")
	writeFile(t, profile, `
name: assembly
output_pattern: "*/02_assembly/*.fasta"
input_pattern: "*/00_raw/*.bam"
`)

	out, err := runCLI(t, "--store", st.Location(), "report", "--profile", profile)
	require.NoError(t, err)
	assert.Contains(t, out, "group 1 (1 comp(s)):")
	assert.Contains(t, out, "/data/00_raw/a.bam -> /data/02_assembly/a.fasta")
}

func TestReportMissingProfile(t *testing.T) {
	_, err := runCLI(t, "--store", t.TempDir(), "report",
		"--profile", filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestExitErrors(t *testing.T) {
	err := NewExitError(ExitCommandError, "bad input")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Equal(t, "bad input", err.Error())

	wrapped := WrapExitError(ExitFailure, "load failed", errors.New("io error"))
	assert.Equal(t, ExitFailure, GetExitCode(wrapped))
	assert.ErrorContains(t, wrapped, "io error")

	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
}
