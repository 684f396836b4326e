package graph

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/roach88/lineage/internal/record"
	"github.com/roach88/lineage/internal/store"
)

// LoadOptions configures a graph load.
type LoadOptions struct {
	// MaxAge drops records whose step began more than this long before
	// Now. Zero means no age limit.
	MaxAge time.Duration

	// Now is the load-time clock; defaults to time.Now.
	Now func() time.Time

	// Log defaults to slog.Default().
	Log *slog.Logger

	// SameFile overrides the OS-level same-file check (tests).
	SameFile func(a, b string) bool

	// PathExists overrides the on-disk existence check (tests).
	PathExists func(path string) bool
}

// Load reads every record in the store and assembles the provenance graph:
//
//  1. records failing the structural check are skipped with a warning;
//  2. failed steps, nested sub-invocations and records older than MaxAge
//     contribute no nodes or edges;
//  3. file nodes are keyed by (realpath, hash, mtime) and merged across
//     records;
//  4. file nodes claimed by more than one producer are logged as
//     anomalies;
//  5. consumed files with no recorded producer are reconnected to an
//     earlier equivalent file state where the repair heuristic allows;
//  6. a cycle surviving repair is a fatal integrity error (ErrCyclic).
//
// The load is a single-threaded batch pass over a point-in-time snapshot
// of the store listing; it may run concurrently with ongoing recording.
func Load(ctx context.Context, st store.Store, opts LoadOptions) (*Graph, error) {
	g := New()
	if opts.Log != nil {
		g.log = opts.Log
	}
	if opts.SameFile != nil {
		g.sameFile = opts.SameFile
	}
	if opts.PathExists != nil {
		g.pathExists = opts.PathExists
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	names, err := st.List(ctx)
	if err != nil {
		return nil, err
	}

	for _, name := range names {
		data, err := st.Read(ctx, name)
		if err != nil {
			g.log.Warn("unreadable step record", "record", name, "err", err)
			continue
		}
		rec, err := record.Parse(data)
		if err != nil {
			g.log.Warn("skipping invalid step record", "record", name, "err", err)
			continue
		}
		if rec.RunInfo.Failed() {
			continue // failed steps produce no trusted edges
		}
		if len(rec.EnclosingSteps) > 0 {
			continue // only outermost steps carry trusted edges
		}
		if opts.MaxAge > 0 {
			beg := time.UnixMilli(rec.RunInfo.BegTimeMillis)
			if now().Sub(beg) > opts.MaxAge {
				continue
			}
		}

		g.addRecord(name, rec)
	}

	g.warnAnomalies()
	g.repair()

	if !g.isAcyclic() {
		return nil, ErrCyclic
	}

	if orphans := g.UnknownOrigin(); len(orphans) > 0 {
		g.log.Warn("files of unknown origin", "count", len(orphans), "paths", orphans)
	}
	return g, nil
}

// addRecord adds one step record's node and edges to the graph.
func (g *Graph) addRecord(recordFile string, rec *record.Record) {
	step := &StepNode{
		ID:         rec.StepID,
		StepName:   rec.StepName(),
		RecordFile: recordFile,
		Record:     rec,
	}
	g.addStep(step)
	stepNode := StepNodeID(step.ID)

	for arg, val := range rec.Args {
		for _, ref := range record.GatherFileRefs(val) {
			for _, fi := range ref.Files {
				// A node needs a captured identity: hash attempt plus
				// stat. Entries without them (outputs of partially
				// captured runs) are not representable states.
				if !fi.HasHash || !fi.HasStat {
					continue
				}
				id := FileID{RealPath: fi.RealPath, Hash: fi.Hash, Mtime: fi.Mtime}
				g.addFile(&FileNode{
					ID:    id,
					Fname: fi.Fname,
					Size:  fi.Size,
					Owner: fi.Owner,
				})

				fileNode := FileNodeID(id)
				edge := &Edge{Arg: arg}
				if ref.Mode == record.Read {
					edge.From, edge.To = fileNode, stepNode
				} else {
					edge.From, edge.To = stepNode, fileNode
				}
				edge.Metadata = argMetadata(rec.MetadataCmdLine, arg)
				g.addEdge(edge)
			}
		}
	}
}

// argMetadata extracts per-file metadata overrides for one argument:
// "file.<arg>.<name>" invocation metadata becomes {name: value} on the
// edge.
func argMetadata(meta map[string]string, arg string) map[string]string {
	prefix := "file." + arg + "."
	var out map[string]string
	for k, v := range meta {
		if strings.HasPrefix(k, prefix) {
			if out == nil {
				out = map[string]string{}
			}
			out[strings.TrimPrefix(k, prefix)] = v
		}
	}
	return out
}

// warnAnomalies logs every file node claiming more than one producer: two
// steps recorded writing an identical (path, hash, mtime) state.
func (g *Graph) warnAnomalies() {
	for _, f := range g.Files() {
		n := FileNodeID(f.ID)
		if g.InDegree(n) > 1 {
			g.log.Warn("anomaly: file state claimed by multiple producers",
				"path", f.ID.RealPath, "hash", f.ID.Hash,
				"producers", g.InDegree(n))
		}
	}
}

// UnknownOrigin returns the realpaths of file nodes that still have no
// producer after repair but whose path exists on disk.
func (g *Graph) UnknownOrigin() []string {
	var out []string
	for _, f := range g.Files() {
		if g.InDegree(FileNodeID(f.ID)) == 0 && g.pathExists(f.ID.RealPath) {
			out = append(out, f.ID.RealPath)
		}
	}
	return out
}
