package graph

import (
	"os"
	"sort"
)

// repair reconnects consumed files that have no recorded producer. For
// every such orphan, candidate producers are earlier states of the same
// file: nodes sharing both the content hash and path equivalence (direct
// path match, or OS-level same-file across hardlinks and bind mounts) with
// a strictly earlier mtime. Each consumer edge is rewired to the latest
// candidate that still precedes the consumer's start time.
//
// Best-effort by design: the tie-break is a heuristic, not proof of
// causality, so rewired edges are marked Reconstructed.
func (g *Graph) repair() {
	hashIdx, pathIdx := g.fileIndices()

	for _, f := range g.Files() {
		orphan := FileNodeID(f.ID)
		if g.InDegree(orphan) != 0 || len(g.succ[orphan]) == 0 {
			continue
		}

		candidates := g.repairCandidates(f.ID, hashIdx, pathIdx, true)
		if len(candidates) == 0 {
			continue
		}

		for _, consumer := range g.Succs(orphan) {
			step := g.steps[consumer.Step()]
			if step == nil {
				continue
			}
			begSec := step.Record.RunInfo.BegTimeMillis / 1000

			var chosen *FileID
			for i := range candidates {
				if candidates[i].Mtime < begSec {
					chosen = &candidates[i] // candidates sorted by mtime asc
				}
			}
			if chosen == nil {
				continue
			}

			old := g.EdgeBetween(orphan, consumer)
			g.addEdge(&Edge{
				From:          FileNodeID(*chosen),
				To:            consumer,
				Arg:           old.Arg,
				Metadata:      old.Metadata,
				Reconstructed: true,
			})
			g.removeEdge(orphan, consumer)
			g.log.Info("reconnected consumer to earlier file state",
				"path", chosen.RealPath, "step", consumer.Step())
		}
	}
}

// repairCandidates returns the file states equivalent to id (same hash,
// path-equivalent), sorted by mtime ascending. With earlierOnly, only
// strictly earlier states qualify.
func (g *Graph) repairCandidates(id FileID, hashIdx, pathIdx map[string][]FileID, earlierOnly bool) []FileID {
	inPath := map[FileID]bool{}
	for _, pid := range pathIdx[id.RealPath] {
		inPath[pid] = true
	}

	var out []FileID
	for _, cand := range hashIdx[id.Hash] {
		if cand == id || !inPath[cand] {
			continue
		}
		if earlierOnly && cand.Mtime >= id.Mtime {
			continue
		}
		out = append(out, cand)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Mtime < out[j].Mtime })
	return out
}

// fileIndices builds the hash and realpath indices over all file nodes.
// The path index is extended transitively: same-hash nodes whose paths the
// OS reports as the same underlying file share each other's entries.
func (g *Graph) fileIndices() (hashIdx, pathIdx map[string][]FileID) {
	hashIdx = map[string][]FileID{}
	pathIdx = map[string][]FileID{}
	for id := range g.files {
		hashIdx[id.Hash] = append(hashIdx[id.Hash], id)
		pathIdx[id.RealPath] = append(pathIdx[id.RealPath], id)
	}

	for _, group := range hashIdx {
		if len(group) < 2 {
			continue
		}
		for _, f1 := range group {
			for _, f2 := range group {
				if f1.RealPath == f2.RealPath {
					continue
				}
				if g.sameFile(f1.RealPath, f2.RealPath) {
					pathIdx[f1.RealPath] = append(pathIdx[f1.RealPath], f2)
					pathIdx[f2.RealPath] = append(pathIdx[f2.RealPath], f1)
				}
			}
		}
	}
	return hashIdx, pathIdx
}

// findEarlierState is the single-node variant of the repair heuristic used
// by point queries: the latest other state of the same file with the same
// content, regardless of mtime ordering against the query node.
func (g *Graph) findEarlierState(id FileID) (FileID, bool) {
	hashIdx, pathIdx := g.fileIndices()
	candidates := g.repairCandidates(id, hashIdx, pathIdx, false)
	if len(candidates) == 0 {
		return FileID{}, false
	}
	return candidates[len(candidates)-1], true
}

func osSameFile(a, b string) bool {
	ai, err := os.Stat(a)
	if err != nil {
		return false
	}
	bi, err := os.Stat(b)
	if err != nil {
		return false
	}
	return os.SameFile(ai, bi)
}

func osPathExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
