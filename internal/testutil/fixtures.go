// Package testutil holds shared test fixtures: a deterministic clock and
// builders that write synthetic step records into a store.
package testutil

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/lineage/internal/record"
	"github.com/roach88/lineage/internal/store"
)

// FileState describes one synthetic file state referenced by a fixture
// step.
type FileState struct {
	Path  string
	Hash  string
	Mtime int64 // unix seconds
	Size  int64
}

// Ref builds the captured FileRef for the state.
func (fs FileState) Ref(mode record.Mode) record.FileRef {
	return record.FileRef{
		Val:  fs.Path,
		Mode: mode,
		Files: []record.FileInfo{{
			Fname:    fs.Path,
			AbsPath:  fs.Path,
			RealPath: fs.Path,
			Hash:     fs.Hash,
			HasHash:  true,
			Size:     fs.Size,
			Mtime:    fs.Mtime,
			Owner:    "tester",
			HasStat:  true,
		}},
	}
}

// StepFixture describes one synthetic recorded step.
type StepFixture struct {
	StepID   string
	StepName string
	BegMs    int64

	Inputs  map[string]FileState
	Outputs map[string]FileState

	// Args holds additional plain argument values.
	Args map[string]record.Value

	// Metrics become metadata_from_cmd_return.
	Metrics map[string]string

	// Metadata entries are merged into metadata_from_cmd_line next to the
	// step name.
	Metadata map[string]string

	// Exception marks the step failed.
	Exception string

	// Enclosing marks the step as a nested sub-invocation.
	Enclosing []string
}

// WriteStep serializes the fixture as a real step record and writes it
// into the store under its canonical filename.
func WriteStep(t *testing.T, st store.Store, fx StepFixture) {
	t.Helper()

	rec := &record.Record{
		StepID:    fx.StepID,
		RunID:     "run_" + fx.StepID,
		CmdModule: "fixtures",
		CmdName:   fx.StepName,
		Args:      map[string]record.Value{},
		RunInfo: record.RunInfo{
			BegTimeMillis:  fx.BegMs,
			EndTimeMillis:  fx.BegMs + 1000,
			DurationMillis: 1000,
			Exception:      fx.Exception,
			Argv:           []string{"lineage-test"},
		},
		RunEnv: record.RunEnv{
			Platform:      "linux/amd64",
			CPUs:          1,
			StoreLocation: st.Location(),
		},
		MetadataCmdLine:   metadataWithStepName(fx),
		MetadataCmdReturn: fx.Metrics,
		EnclosingSteps:    fx.Enclosing,
		VersionInfo:       record.VersionInfo{Version: "test"},
	}
	for arg, fs := range fx.Inputs {
		rec.Args[arg] = fs.Ref(record.Read)
	}
	for arg, fs := range fx.Outputs {
		rec.Args[arg] = fs.Ref(record.Write)
	}
	for arg, v := range fx.Args {
		rec.Args[arg] = v
	}

	data, err := rec.Marshal()
	require.NoError(t, err)
	name := record.Filename(fx.StepID, data)
	require.NoError(t, st.Write(context.Background(), name, data))
}

func metadataWithStepName(fx StepFixture) map[string]string {
	meta := map[string]string{"step_name": fx.StepName}
	for k, v := range fx.Metadata {
		meta[k] = v
	}
	return meta
}

// DiskFile writes content to path, then returns its real captured state
// (live hash and mtime), so fixtures can reference files that actually
// exist on disk.
func DiskFile(t *testing.T, path, content string) FileState {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	info, err := os.Stat(path)
	require.NoError(t, err)
	h := record.Hasher{}
	return FileState{
		Path:  record.Realpath(path),
		Hash:  h.Hash(path),
		Mtime: info.ModTime().Unix(),
		Size:  info.Size(),
	}
}

// OpenStore creates a record store under a test temp dir.
func OpenStore(t *testing.T) *store.DirStore {
	t.Helper()
	st, err := store.Open(t.TempDir())
	require.NoError(t, err)
	return st
}
