// Package reuse detects equivalent prior runs of a command. The index is
// advisory: it reports whether an identical earlier invocation exists and
// logs what differs, but it never substitutes a cached result for actual
// execution.
package reuse

import (
	"context"
	"log/slog"
	"sort"

	"github.com/roach88/lineage/internal/record"
	"github.com/roach88/lineage/internal/store"
)

// PendingOutput is the sentinel normalized value for write-mode file
// arguments: the content identity of an output is unknown before the step
// runs, so all outputs compare equal.
const PendingOutput = "_out_file_arg"

// Index scans the record store for prior invocations of a command whose
// normalized arguments match the current ones.
type Index struct {
	Store  store.Store
	Hasher record.Hasher
	Log    *slog.Logger
}

func (ix *Index) log() *slog.Logger {
	if ix.Log != nil {
		return ix.Log
	}
	return slog.Default()
}

// Check looks for a prior record of cmdModule.cmdName whose normalized
// arguments equal the given ones. A match is logged as reusable; a
// near-miss is logged with the symmetric difference of the differing
// entries. Returns true if any match was found.
func (ix *Index) Check(ctx context.Context, cmdModule, cmdName string, args map[string]record.Value) (bool, error) {
	cur := ix.Normalize(args)

	names, err := ix.Store.List(ctx)
	if err != nil {
		return false, err
	}

	matched := false
	for _, name := range names {
		data, err := ix.Store.Read(ctx, name)
		if err != nil {
			ix.log().Warn("reuse check: unreadable record", "record", name, "err", err)
			continue
		}
		rec, err := record.Parse(data)
		if err != nil {
			continue // malformed or legacy record
		}
		if rec.RunInfo.Failed() || len(rec.EnclosingSteps) > 0 {
			continue
		}
		if rec.CmdModule != cmdModule || rec.CmdName != cmdName {
			continue
		}

		prior := ix.Normalize(rec.Args)
		if equalEntries(cur, prior) {
			ix.log().Info("found reusable prior step",
				"record", name, "cmd", cmdModule+"."+cmdName)
			matched = true
		} else {
			ix.log().Info("prior step differs",
				"record", name, "diff", DiffEntries(cur, prior))
		}
	}
	return matched, nil
}

// Normalize maps each argument to a comparison key: input FileRefs become
// the ordered list of their files' content hashes, output FileRefs become
// the PendingOutput sentinel, and plain values are serialized canonically.
func (ix *Index) Normalize(args map[string]record.Value) map[string]string {
	out := make(map[string]string, len(args))
	for name, v := range args {
		out[name] = record.Stringify(ix.normalizeValue(v))
	}
	return out
}

func (ix *Index) normalizeValue(v record.Value) record.Value {
	if ref, ok := asFileRef(v); ok {
		if ref.Mode == record.Write {
			return record.String(PendingOutput)
		}
		hashes := record.List{}
		if len(ref.Files) > 0 {
			for _, fi := range ref.Files {
				hashes = append(hashes, record.String(fi.Hash))
			}
		} else {
			for _, path := range ref.Paths() {
				hashes = append(hashes, record.String(ix.Hasher.Hash(path)))
			}
		}
		return hashes
	}
	if list, ok := v.(record.List); ok {
		out := make(record.List, len(list))
		for i, elem := range list {
			out[i] = ix.normalizeValue(elem)
		}
		return out
	}
	return v
}

func asFileRef(v record.Value) (record.FileRef, bool) {
	if ref, ok := v.(record.FileRef); ok {
		return ref, true
	}
	return record.AsFileRef(v)
}

func equalEntries(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if bv, ok := b[k]; !ok || bv != v {
			return false
		}
	}
	return true
}

// DiffEntries returns the symmetric difference of two normalized argument
// maps as sorted "name=value" strings.
func DiffEntries(a, b map[string]string) []string {
	var diff []string
	for k, v := range a {
		if bv, ok := b[k]; !ok || bv != v {
			diff = append(diff, k+"="+v)
		}
	}
	for k, v := range b {
		if av, ok := a[k]; !ok || av != v {
			diff = append(diff, k+"="+v)
		}
	}
	sort.Strings(diff)
	return diff
}
