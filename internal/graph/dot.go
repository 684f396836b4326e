package graph

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// DOTOptions selects and labels the subgraph written by WriteDOT.
type DOTOptions struct {
	// Nodes restricts output to the given node set. Nil means the whole
	// graph.
	Nodes map[NodeID]bool

	// IgnoreCmds drops step nodes with these step names, plus their
	// incident edges.
	IgnoreCmds []string

	// IgnoreExts drops file nodes whose fname carries one of these
	// extensions, plus their incident edges.
	IgnoreExts []string

	// Title is appended to the graph label.
	Title string

	// Now stamps the graph label; defaults to time.Now.
	Now func() time.Time
}

// WriteDOT renders the graph (or the selected subgraph) as GraphViz dot.
// Step nodes draw as invhouse, file nodes as oval; edges carry the
// argument name as label. Output is deterministic for a given graph.
func (g *Graph) WriteDOT(w io.Writer, opts DOTOptions) error {
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	ignoreCmd := map[string]bool{}
	for _, c := range opts.IgnoreCmds {
		ignoreCmd[c] = true
	}

	names := map[NodeID]string{}
	fixName := func(n NodeID) string {
		if name, ok := names[n]; ok {
			return name
		}
		name := fmt.Sprintf("n%d", len(names))
		names[n] = name
		return name
	}
	selected := func(n NodeID) bool {
		return opts.Nodes == nil || opts.Nodes[n]
	}

	var b strings.Builder
	b.WriteString("digraph G {\n")

	ignored := map[NodeID]bool{}
	for _, s := range g.Steps() {
		n := StepNodeID(s.ID)
		if !selected(n) {
			continue
		}
		if ignoreCmd[s.StepName] {
			ignored[n] = true
			continue
		}
		fmt.Fprintf(&b, "%s [label=%q, shape=invhouse];\n", fixName(n), s.StepName)
	}
	for _, f := range g.Files() {
		n := FileNodeID(f.ID)
		if !selected(n) {
			continue
		}
		label := f.Fname
		if label == "" {
			label = "noname"
		}
		if hasExt(label, opts.IgnoreExts) {
			ignored[n] = true
			continue
		}
		fmt.Fprintf(&b, "%s [label=%q, shape=oval];\n", fixName(n), label)
	}

	for _, e := range g.edgesSorted() {
		if !selected(e.From) || !selected(e.To) {
			continue
		}
		if ignored[e.From] || ignored[e.To] {
			continue
		}
		fmt.Fprintf(&b, "%s -> %s [label=%q];\n", fixName(e.From), fixName(e.To), e.Arg)
	}

	b.WriteString("labelloc=\"t\";\n")
	fmt.Fprintf(&b, "label=%q;\n", now().Format(time.ANSIC)+"\n"+opts.Title)
	b.WriteString("}\n")

	_, err := io.WriteString(w, b.String())
	return err
}

func hasExt(name string, exts []string) bool {
	for _, e := range exts {
		if strings.HasSuffix(name, e) {
			return true
		}
	}
	return false
}

// edgesSorted returns every edge ordered by (from, to) node identity.
func (g *Graph) edgesSorted() []*Edge {
	var out []*Edge
	forEachNodeSorted(g, func(n NodeID) {
		for _, to := range g.Succs(n) {
			out = append(out, g.succ[n][to])
		}
	})
	return out
}

func forEachNodeSorted(g *Graph, fn func(NodeID)) {
	for _, s := range g.Steps() {
		fn(StepNodeID(s.ID))
	}
	for _, f := range g.Files() {
		fn(FileNodeID(f.ID))
	}
}
