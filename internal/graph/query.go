package graph

import (
	"fmt"
	"os"

	"github.com/roach88/lineage/internal/record"
)

// ProvenanceResult is the answer to a point query: the chain of steps that
// produced a file, producers first.
type ProvenanceResult struct {
	// File is the graph node the query resolved to. It may be an earlier
	// equivalent state of the queried path when repair kicked in.
	File FileID

	// Steps are the producing steps in topological order (the step that
	// directly produced File is last).
	Steps []*StepNode

	// Heuristic is true when the result rests on a reconstructed edge or
	// on single-node repair, i.e. the chain is heuristically
	// reconstructed rather than directly recorded.
	Heuristic bool
}

// Provenance resolves a path to its current (realpath, hash, mtime)
// identity and returns the ordered ancestor chain of producing steps.
// A file whose producer cannot be resolved even by the repair heuristic
// yields ErrNoProvenance.
func (g *Graph) Provenance(path string) (*ProvenanceResult, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("provenance of %s: %w", path, err)
	}
	id := FileID{
		RealPath: record.Realpath(path),
		Hash:     record.Hasher{Log: g.log}.Hash(path),
		Mtime:    info.ModTime().Unix(),
	}

	heuristic := false
	start := id
	if _, known := g.files[id]; !known || g.InDegree(FileNodeID(id)) == 0 {
		// Same heuristic as the load-time repair pass, applied to just
		// this node.
		cand, ok := g.findEarlierState(id)
		if !ok || g.InDegree(FileNodeID(cand)) == 0 {
			return nil, fmt.Errorf("%w: %s", ErrNoProvenance, path)
		}
		start = cand
		heuristic = true
	}

	startNode := FileNodeID(start)
	ancs := g.Ancestors(startNode)

	closure := map[NodeID]bool{startNode: true}
	for n := range ancs {
		closure[n] = true
	}
	if g.closureReconstructed(closure) {
		heuristic = true
	}

	return &ProvenanceResult{
		File:      start,
		Steps:     g.topoSteps(closure),
		Heuristic: heuristic,
	}, nil
}

// closureReconstructed reports whether any edge inside the node set was
// rewired by the repair heuristic.
func (g *Graph) closureReconstructed(nodes map[NodeID]bool) bool {
	for n := range nodes {
		for p, e := range g.pred[n] {
			if nodes[p] && e.Reconstructed {
				return true
			}
		}
	}
	return false
}
