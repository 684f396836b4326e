package graph

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lineage/internal/record"
	"github.com/roach88/lineage/internal/store"
	"github.com/roach88/lineage/internal/testutil"
)

// Epoch-scale fixture times: mtimes are unix seconds, step times unix
// millis, and repair compares across the two.
const (
	begA = int64(1700000000000)
	begB = int64(1700000200000)
)

var (
	f1 = testutil.FileState{Path: "/d/f1.bam", Hash: "sha1_h1", Mtime: 1700000100, Size: 10}
	f2 = testutil.FileState{Path: "/d/f2.fasta", Hash: "sha1_h2", Mtime: 1700000300, Size: 5}
)

func quietLoadOptions() LoadOptions {
	return LoadOptions{
		Log:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		SameFile:   func(a, b string) bool { return false },
		PathExists: func(path string) bool { return false },
	}
}

// chainStore writes the two-step fixture: align produces f1, assemble
// consumes f1 and produces f2.
func chainStore(t *testing.T) *store.DirStore {
	t.Helper()
	st := testutil.OpenStore(t)
	testutil.WriteStep(t, st, testutil.StepFixture{
		StepID:   "sA",
		StepName: "align",
		BegMs:    begA,
		Outputs:  map[string]testutil.FileState{"outBam": f1},
	})
	testutil.WriteStep(t, st, testutil.StepFixture{
		StepID:   "sB",
		StepName: "assemble",
		BegMs:    begB,
		Inputs:   map[string]testutil.FileState{"inBam": f1},
		Outputs:  map[string]testutil.FileState{"outFasta": f2},
		Metadata: map[string]string{"file.inBam.sample": "S42"},
	})
	return st
}

func fid(fs testutil.FileState) FileID {
	return FileID{RealPath: fs.Path, Hash: fs.Hash, Mtime: fs.Mtime}
}

func TestLoadBuildsBipartiteChain(t *testing.T) {
	g, err := Load(context.Background(), chainStore(t), quietLoadOptions())
	require.NoError(t, err)

	require.Len(t, g.Steps(), 2)
	require.Len(t, g.Files(), 2)

	assert.Equal(t, "align", g.Step("sA").StepName)
	assert.Equal(t, "assemble", g.Step("sB").StepName)

	// f1: produced by align, consumed by assemble.
	n1 := FileNodeID(fid(f1))
	assert.Equal(t, 1, g.InDegree(n1))
	assert.Equal(t, []NodeID{StepNodeID("sA")}, g.Preds(n1))
	assert.Equal(t, []NodeID{StepNodeID("sB")}, g.Succs(n1))

	e := g.EdgeBetween(n1, StepNodeID("sB"))
	require.NotNil(t, e)
	assert.Equal(t, "inBam", e.Arg)
	assert.False(t, e.Reconstructed)
	assert.Equal(t, map[string]string{"sample": "S42"}, e.Metadata)

	// Ancestry of the final output covers the whole chain.
	ancs := g.Ancestors(FileNodeID(fid(f2)))
	assert.Equal(t, map[NodeID]bool{
		StepNodeID("sA"): true,
		StepNodeID("sB"): true,
		n1:               true,
	}, ancs)
}

func TestLoadSkipsFailedAndNestedSteps(t *testing.T) {
	st := testutil.OpenStore(t)
	testutil.WriteStep(t, st, testutil.StepFixture{
		StepID:    "failed",
		StepName:  "align",
		BegMs:     begA,
		Outputs:   map[string]testutil.FileState{"outBam": f1},
		Exception: "boom",
	})
	testutil.WriteStep(t, st, testutil.StepFixture{
		StepID:    "nested",
		StepName:  "align",
		BegMs:     begA,
		Outputs:   map[string]testutil.FileState{"outBam": f1},
		Enclosing: []string{"outer"},
	})

	g, err := Load(context.Background(), st, quietLoadOptions())
	require.NoError(t, err)
	assert.Empty(t, g.Steps())
	assert.Empty(t, g.Files())
}

func TestLoadSkipsInvalidRecords(t *testing.T) {
	st := testutil.OpenStore(t)
	require.NoError(t, st.Write(context.Background(), "junk.crc32_00000000.json", []byte("not json")))
	testutil.WriteStep(t, st, testutil.StepFixture{
		StepID:   "sA",
		StepName: "align",
		BegMs:    begA,
		Outputs:  map[string]testutil.FileState{"outBam": f1},
	})

	g, err := Load(context.Background(), st, quietLoadOptions())
	require.NoError(t, err)
	assert.Len(t, g.Steps(), 1)
}

func TestLoadMaxAge(t *testing.T) {
	st := chainStore(t)

	opts := quietLoadOptions()
	opts.MaxAge = 100 * time.Millisecond
	opts.Now = func() time.Time { return time.UnixMilli(begB + 50) }

	g, err := Load(context.Background(), st, opts)
	require.NoError(t, err)

	// Only the newer step survives the age cutoff.
	require.Len(t, g.Steps(), 1)
	assert.Equal(t, "sB", g.Steps()[0].ID)
}

func TestLoadSkipsUncapturedFileEntries(t *testing.T) {
	st := testutil.OpenStore(t)

	// An output ref whose files were never hashed (failed capture) must
	// not become a node.
	rec := &record.Record{
		StepID:    "sX",
		CmdModule: "fixtures",
		CmdName:   "align",
		Args: map[string]record.Value{
			"out": record.FileRef{Val: "/d/f1.bam", Mode: record.Write, Files: []record.FileInfo{{
				Fname:    "/d/f1.bam",
				AbsPath:  "/d/f1.bam",
				RealPath: "/d/f1.bam",
			}}},
		},
		RunInfo: record.RunInfo{BegTimeMillis: begA, EndTimeMillis: begA + 1, DurationMillis: 1},
	}
	data, err := rec.Marshal()
	require.NoError(t, err)
	require.NoError(t, st.Write(context.Background(), record.Filename("sX", data), data))

	g, err := Load(context.Background(), st, quietLoadOptions())
	require.NoError(t, err)
	assert.Len(t, g.Steps(), 1)
	assert.Empty(t, g.Files())
}

func TestUnknownOrigin(t *testing.T) {
	st := testutil.OpenStore(t)
	testutil.WriteStep(t, st, testutil.StepFixture{
		StepID:   "sB",
		StepName: "assemble",
		BegMs:    begB,
		Inputs:   map[string]testutil.FileState{"inBam": f1},
	})

	opts := quietLoadOptions()
	opts.PathExists = func(path string) bool { return path == f1.Path }

	g, err := Load(context.Background(), st, opts)
	require.NoError(t, err)
	assert.Equal(t, []string{f1.Path}, g.UnknownOrigin())
}

func TestLoadRejectsCyclicGraph(t *testing.T) {
	st := testutil.OpenStore(t)

	fa := testutil.FileState{Path: "/d/a.bam", Hash: "sha1_a", Mtime: 1700000100, Size: 1}
	fb := testutil.FileState{Path: "/d/b.bam", Hash: "sha1_b", Mtime: 1700000100, Size: 1}

	// Two steps recorded as feeding each other cannot both be true; the
	// load refuses the graph rather than serving impossible ancestry.
	testutil.WriteStep(t, st, testutil.StepFixture{
		StepID:   "sX",
		StepName: "align",
		BegMs:    begA,
		Inputs:   map[string]testutil.FileState{"inBam": fb},
		Outputs:  map[string]testutil.FileState{"outBam": fa},
	})
	testutil.WriteStep(t, st, testutil.StepFixture{
		StepID:   "sY",
		StepName: "assemble",
		BegMs:    begB,
		Inputs:   map[string]testutil.FileState{"inBam": fa},
		Outputs:  map[string]testutil.FileState{"outBam": fb},
	})

	_, err := Load(context.Background(), st, quietLoadOptions())
	require.ErrorIs(t, err, ErrCyclic)
}

func TestLoadWarnsOnMultipleProducers(t *testing.T) {
	st := testutil.OpenStore(t)

	// Two steps claim to have written the identical file state.
	testutil.WriteStep(t, st, testutil.StepFixture{
		StepID:   "sA",
		StepName: "align",
		BegMs:    begA,
		Outputs:  map[string]testutil.FileState{"outBam": f1},
	})
	testutil.WriteStep(t, st, testutil.StepFixture{
		StepID:   "sC",
		StepName: "realign",
		BegMs:    begB,
		Outputs:  map[string]testutil.FileState{"outBam": f1},
	})

	var logBuf bytes.Buffer
	opts := quietLoadOptions()
	opts.Log = slog.New(slog.NewTextHandler(&logBuf, nil))

	g, err := Load(context.Background(), st, opts)
	require.NoError(t, err)

	assert.Equal(t, 2, g.InDegree(FileNodeID(fid(f1))))
	assert.Contains(t, logBuf.String(), "claimed by multiple producers")
}

func TestTopoStepsOrdersProducersFirst(t *testing.T) {
	g, err := Load(context.Background(), chainStore(t), quietLoadOptions())
	require.NoError(t, err)

	nodes := map[NodeID]bool{FileNodeID(fid(f2)): true}
	for n := range g.Ancestors(FileNodeID(fid(f2))) {
		nodes[n] = true
	}
	steps := g.topoSteps(nodes)
	require.Len(t, steps, 2)
	assert.Equal(t, "sA", steps[0].ID)
	assert.Equal(t, "sB", steps[1].ID)
}
