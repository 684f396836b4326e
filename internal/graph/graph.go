// Package graph reconstructs a provenance graph from a store of
// independently written step records. The graph is bipartite: step nodes
// (one execution of one command) and file nodes (one observed state of one
// file), with edges from input files to steps and from steps to output
// files.
//
// The graph is rebuilt from scratch on every load; nothing here persists
// between passes.
package graph

import (
	"errors"
	"log/slog"
	"sort"

	"github.com/roach88/lineage/internal/record"
)

// ErrCyclic reports that the loaded graph is not acyclic after repair.
// This signals a recording or repair defect, not a recoverable condition.
var ErrCyclic = errors.New("provenance graph contains a cycle")

// ErrNoProvenance reports that a point query could not resolve a producer
// for the requested file.
var ErrNoProvenance = errors.New("no provenance recorded for file")

// FileID identifies one observed state of a file. Three records naming the
// same path with different content or modification time yield three
// distinct nodes.
type FileID struct {
	RealPath string
	Hash     string
	Mtime    int64 // unix seconds
}

type nodeKind uint8

const (
	kindStep nodeKind = iota + 1
	kindFile
)

// NodeID is the tagged identity of a graph node: either a step id or a
// FileID, never both. Step and file identities can never compare equal.
type NodeID struct {
	kind nodeKind
	step string
	file FileID
}

// StepNodeID builds the node identity for a step.
func StepNodeID(stepID string) NodeID {
	return NodeID{kind: kindStep, step: stepID}
}

// FileNodeID builds the node identity for a file state.
func FileNodeID(id FileID) NodeID {
	return NodeID{kind: kindFile, file: id}
}

// IsStep reports whether the node is a step node.
func (n NodeID) IsStep() bool { return n.kind == kindStep }

// IsFile reports whether the node is a file node.
func (n NodeID) IsFile() bool { return n.kind == kindFile }

// Step returns the step id; empty for file nodes.
func (n NodeID) Step() string { return n.step }

// File returns the file identity; zero for step nodes.
func (n NodeID) File() FileID { return n.file }

// StepNode carries the full step record as node attributes.
type StepNode struct {
	ID         string
	StepName   string
	RecordFile string
	Record     *record.Record
}

// FileNode carries the captured metadata of one file state.
type FileNode struct {
	ID    FileID
	Fname string
	Size  int64
	Owner string
}

// Edge links a file to a consuming step or a step to a produced file,
// labeled by the argument that carried the file.
type Edge struct {
	From NodeID
	To   NodeID

	// Arg is the argument name on the step side of the edge.
	Arg string

	// Metadata holds per-argument overrides supplied at invocation time
	// ("file.<arg>.<name>" keys).
	Metadata map[string]string

	// Reconstructed marks edges rewired by the repair heuristic. Reports
	// built on such an edge are only heuristically grounded.
	Reconstructed bool
}

// Graph is the in-memory bipartite provenance DAG.
type Graph struct {
	steps map[string]*StepNode
	files map[FileID]*FileNode
	succ  map[NodeID]map[NodeID]*Edge
	pred  map[NodeID]map[NodeID]*Edge

	log *slog.Logger

	// sameFile reports whether two paths name the same underlying file
	// (hardlinks, bind mounts). Injected so tests can simulate it.
	sameFile func(a, b string) bool

	// pathExists reports whether a path currently exists on disk.
	pathExists func(path string) bool
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		steps:      map[string]*StepNode{},
		files:      map[FileID]*FileNode{},
		succ:       map[NodeID]map[NodeID]*Edge{},
		pred:       map[NodeID]map[NodeID]*Edge{},
		log:        slog.Default(),
		sameFile:   osSameFile,
		pathExists: osPathExists,
	}
}

// Step returns the step node with the given id, or nil.
func (g *Graph) Step(id string) *StepNode { return g.steps[id] }

// File returns the file node with the given identity, or nil.
func (g *Graph) File(id FileID) *FileNode { return g.files[id] }

// Steps returns all step nodes, ordered by step id.
func (g *Graph) Steps() []*StepNode {
	out := make([]*StepNode, 0, len(g.steps))
	for _, s := range g.steps {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Files returns all file nodes, ordered by identity.
func (g *Graph) Files() []*FileNode {
	out := make([]*FileNode, 0, len(g.files))
	for _, f := range g.files {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return lessFileID(out[i].ID, out[j].ID) })
	return out
}

func lessFileID(a, b FileID) bool {
	if a.RealPath != b.RealPath {
		return a.RealPath < b.RealPath
	}
	if a.Hash != b.Hash {
		return a.Hash < b.Hash
	}
	return a.Mtime < b.Mtime
}

func (g *Graph) addStep(node *StepNode) {
	g.steps[node.ID] = node
}

// addFile adds or merges a file node: an already-present identity keeps its
// node, refreshing empty attributes.
func (g *Graph) addFile(node *FileNode) *FileNode {
	if existing, ok := g.files[node.ID]; ok {
		if existing.Fname == "" {
			existing.Fname = node.Fname
		}
		if existing.Size == 0 {
			existing.Size = node.Size
		}
		if existing.Owner == "" {
			existing.Owner = node.Owner
		}
		return existing
	}
	g.files[node.ID] = node
	return node
}

func (g *Graph) addEdge(e *Edge) {
	if g.succ[e.From] == nil {
		g.succ[e.From] = map[NodeID]*Edge{}
	}
	if g.pred[e.To] == nil {
		g.pred[e.To] = map[NodeID]*Edge{}
	}
	g.succ[e.From][e.To] = e
	g.pred[e.To][e.From] = e
}

func (g *Graph) removeEdge(from, to NodeID) {
	delete(g.succ[from], to)
	delete(g.pred[to], from)
}

// InDegree returns the number of incoming edges of a node.
func (g *Graph) InDegree(n NodeID) int { return len(g.pred[n]) }

// Preds returns the predecessor node ids of a node.
func (g *Graph) Preds(n NodeID) []NodeID { return sortedKeys(g.pred[n]) }

// Succs returns the successor node ids of a node.
func (g *Graph) Succs(n NodeID) []NodeID { return sortedKeys(g.succ[n]) }

// EdgeBetween returns the edge from one node to another, or nil.
func (g *Graph) EdgeBetween(from, to NodeID) *Edge {
	return g.succ[from][to]
}

func sortedKeys(m map[NodeID]*Edge) []NodeID {
	out := make([]NodeID, 0, len(m))
	for n := range m {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return lessNodeID(out[i], out[j]) })
	return out
}

func lessNodeID(a, b NodeID) bool {
	if a.kind != b.kind {
		return a.kind < b.kind
	}
	if a.kind == kindStep {
		return a.step < b.step
	}
	return lessFileID(a.file, b.file)
}

// Ancestors returns the predecessor closure of a node (the node itself is
// not included).
func (g *Graph) Ancestors(n NodeID) map[NodeID]bool {
	out := map[NodeID]bool{}
	stack := []NodeID{n}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for p := range g.pred[cur] {
			if !out[p] {
				out[p] = true
				stack = append(stack, p)
			}
		}
	}
	return out
}

// isAcyclic verifies the DAG invariant via Kahn's algorithm.
func (g *Graph) isAcyclic() bool {
	indeg := map[NodeID]int{}
	var queue []NodeID
	forEachNode(g, func(n NodeID) {
		indeg[n] = len(g.pred[n])
		if indeg[n] == 0 {
			queue = append(queue, n)
		}
	})

	visited := 0
	for len(queue) > 0 {
		cur := queue[len(queue)-1]
		queue = queue[:len(queue)-1]
		visited++
		for s := range g.succ[cur] {
			indeg[s]--
			if indeg[s] == 0 {
				queue = append(queue, s)
			}
		}
	}
	return visited == len(g.steps)+len(g.files)
}

func forEachNode(g *Graph, fn func(NodeID)) {
	for id := range g.steps {
		fn(StepNodeID(id))
	}
	for id := range g.files {
		fn(FileNodeID(id))
	}
}

// topoSteps orders the step nodes of a node set topologically (producers
// before consumers). Ties break by step id for determinism.
func (g *Graph) topoSteps(nodes map[NodeID]bool) []*StepNode {
	indeg := map[NodeID]int{}
	for n := range nodes {
		d := 0
		for p := range g.pred[n] {
			if nodes[p] {
				d++
			}
		}
		indeg[n] = d
	}

	var ready []NodeID
	for n, d := range indeg {
		if d == 0 {
			ready = append(ready, n)
		}
	}
	sort.Slice(ready, func(i, j int) bool { return lessNodeID(ready[i], ready[j]) })

	var steps []*StepNode
	for len(ready) > 0 {
		cur := ready[0]
		ready = ready[1:]
		if cur.IsStep() {
			steps = append(steps, g.steps[cur.Step()])
		}
		var next []NodeID
		for s := range g.succ[cur] {
			if !nodes[s] {
				continue
			}
			indeg[s]--
			if indeg[s] == 0 {
				next = append(next, s)
			}
		}
		sort.Slice(next, func(i, j int) bool { return lessNodeID(next[i], next[j]) })
		ready = append(ready, next...)
	}
	return steps
}
