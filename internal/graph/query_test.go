package graph

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lineage/internal/testutil"
)

func TestProvenanceExactMatch(t *testing.T) {
	dir := t.TempDir()
	st := testutil.OpenStore(t)

	in := testutil.DiskFile(t, filepath.Join(dir, "reads.bam"), "raw reads")
	out := testutil.DiskFile(t, filepath.Join(dir, "out.fasta"), "assembly")

	testutil.WriteStep(t, st, testutil.StepFixture{
		StepID:   "sA",
		StepName: "align",
		BegMs:    begA,
		Outputs:  map[string]testutil.FileState{"outBam": in},
	})
	testutil.WriteStep(t, st, testutil.StepFixture{
		StepID:   "sB",
		StepName: "assemble",
		BegMs:    begB,
		Inputs:   map[string]testutil.FileState{"inBam": in},
		Outputs:  map[string]testutil.FileState{"outFasta": out},
	})

	g, err := Load(context.Background(), st, LoadOptions{Log: quietLoadOptions().Log})
	require.NoError(t, err)

	res, err := g.Provenance(out.Path)
	require.NoError(t, err)
	assert.False(t, res.Heuristic)
	require.Len(t, res.Steps, 2)
	assert.Equal(t, "sA", res.Steps[0].ID)
	assert.Equal(t, "sB", res.Steps[1].ID)
	assert.Equal(t, out.Hash, res.File.Hash)
}

func TestProvenanceHeuristicFallback(t *testing.T) {
	dir := t.TempDir()
	st := testutil.OpenStore(t)

	out := testutil.DiskFile(t, filepath.Join(dir, "out.fasta"), "assembly")

	// The recorded output state has an older mtime than the live file
	// (the file was touched after the step ran).
	stale := out
	stale.Mtime = out.Mtime - 50
	testutil.WriteStep(t, st, testutil.StepFixture{
		StepID:   "sA",
		StepName: "assemble",
		BegMs:    begA,
		Outputs:  map[string]testutil.FileState{"outFasta": stale},
	})

	g, err := Load(context.Background(), st, LoadOptions{Log: quietLoadOptions().Log})
	require.NoError(t, err)

	res, err := g.Provenance(out.Path)
	require.NoError(t, err)
	assert.True(t, res.Heuristic)
	require.Len(t, res.Steps, 1)
	assert.Equal(t, "sA", res.Steps[0].ID)
	assert.Equal(t, stale.Mtime, res.File.Mtime)
}

func TestProvenanceUnknownFile(t *testing.T) {
	dir := t.TempDir()
	st := testutil.OpenStore(t)

	stray := testutil.DiskFile(t, filepath.Join(dir, "stray.txt"), "never recorded")
	testutil.WriteStep(t, st, testutil.StepFixture{
		StepID:   "sA",
		StepName: "align",
		BegMs:    begA,
		Outputs:  map[string]testutil.FileState{"outBam": f1},
	})

	g, err := Load(context.Background(), st, quietLoadOptions())
	require.NoError(t, err)

	_, err = g.Provenance(stray.Path)
	assert.ErrorIs(t, err, ErrNoProvenance)
}

func TestProvenanceMissingFile(t *testing.T) {
	g := New()
	_, err := g.Provenance(filepath.Join(t.TempDir(), "does-not-exist"))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoProvenance)
}
