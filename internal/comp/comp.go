// Package comp extracts computations from a provenance graph: the
// subgraph of steps and files that turned a recognized main input into a
// recognized main output. Computations with identical main inputs can then
// be grouped and their step parameters diffed, which pinpoints why two
// runs over the same data produced different results.
package comp

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/roach88/lineage/internal/graph"
	"github.com/roach88/lineage/internal/record"
)

// Comp is one extracted computation.
type Comp struct {
	// Nodes is the full subgraph: the main output, its ancestor closure,
	// and the optional metrics step.
	Nodes map[graph.NodeID]bool

	// MainInputs are the recognized input files, ordered by identity.
	MainInputs []graph.FileID

	// MainOutputs are the recognized output files (currently always one).
	MainOutputs []graph.FileID
}

func (c *Comp) String() string {
	ins := make([]string, len(c.MainInputs))
	for i, f := range c.MainInputs {
		ins[i] = f.RealPath
	}
	outs := make([]string, len(c.MainOutputs))
	for i, f := range c.MainOutputs {
		outs[i] = f.RealPath
	}
	return fmt.Sprintf("Comp(main_inputs=%v, main_outputs=%v)", ins, outs)
}

// Extract walks the graph and returns one Comp per main-output file whose
// ancestry contains exactly one main-input file. Outputs with zero
// matching ancestors are not computations of this kind; outputs with more
// than one are ambiguous and skipped with a warning.
func Extract(g *graph.Graph, p *Profile, log *slog.Logger) []*Comp {
	if log == nil {
		log = slog.Default()
	}

	inputs := map[graph.FileID]bool{}
	for _, f := range g.Files() {
		if matchPattern(p.InputPattern, f.ID.RealPath) {
			inputs[f.ID] = true
		}
	}

	var out []*Comp
	for _, f := range g.Files() {
		if !matchPattern(p.OutputPattern, f.ID.RealPath) {
			continue
		}
		end := graph.FileNodeID(f.ID)

		nodes := map[graph.NodeID]bool{end: true}
		for n := range g.Ancestors(end) {
			nodes[n] = true
		}

		var mainIn []graph.FileID
		for id := range inputs {
			if nodes[graph.FileNodeID(id)] {
				mainIn = append(mainIn, id)
			}
		}
		if len(mainIn) == 0 {
			continue
		}
		if len(mainIn) > 1 {
			log.Warn("ambiguous computation: multiple main inputs for one output",
				"output", f.ID.RealPath, "inputs", len(mainIn))
			continue
		}

		if m := latestMetricsStep(g, end, p.MetricsStep); m != nil {
			nodes[graph.StepNodeID(m.ID)] = true
		}

		out = append(out, &Comp{
			Nodes:       nodes,
			MainInputs:  mainIn,
			MainOutputs: []graph.FileID{f.ID},
		})
	}
	return out
}

// latestMetricsStep finds the most recently started consumer of the output
// with the given step name, or nil.
func latestMetricsStep(g *graph.Graph, output graph.NodeID, stepName string) *graph.StepNode {
	if stepName == "" {
		return nil
	}
	var latest *graph.StepNode
	for _, succ := range g.Succs(output) {
		s := g.Step(succ.Step())
		if s == nil || s.StepName != stepName {
			continue
		}
		if latest == nil || s.Record.RunInfo.BegTimeMillis > latest.Record.RunInfo.BegTimeMillis {
			latest = s
		}
	}
	return latest
}

// Group partitions computations by the content of their main inputs: two
// computations land in the same group exactly when their ordered main
// input hashes match. Groups and their members come back in deterministic
// order.
func Group(comps []*Comp) [][]*Comp {
	byKey := map[string][]*Comp{}
	for _, c := range comps {
		byKey[c.inputKey()] = append(byKey[c.inputKey()], c)
	}

	keys := make([]string, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([][]*Comp, 0, len(keys))
	for _, k := range keys {
		g := byKey[k]
		sort.Slice(g, func(i, j int) bool {
			return g[i].MainOutputs[0].RealPath < g[j].MainOutputs[0].RealPath
		})
		out = append(out, g)
	}
	return out
}

func (c *Comp) inputKey() string {
	hashes := make([]string, len(c.MainInputs))
	for i, f := range c.MainInputs {
		hashes[i] = f.Hash
	}
	return strings.Join(hashes, "\x00")
}

// Attrs flattens the parameters of every step in the computation into one
// attribute map keyed "<step_name>.<arg>". File-valued arguments and
// profile-excluded arguments are dropped; step-returned metrics are
// included the same way.
func Attrs(g *graph.Graph, c *Comp, p *Profile) map[string]string {
	attrs := map[string]string{}
	for n := range c.Nodes {
		if !n.IsStep() {
			continue
		}
		s := g.Step(n.Step())
		if s == nil {
			continue
		}
		for arg, v := range s.Record.Args {
			if len(record.GatherFileRefs(v)) > 0 {
				continue
			}
			if p.excluded(arg) {
				continue
			}
			attrs[s.StepName+"."+arg] = record.Stringify(v)
		}
		for k, v := range s.Record.MetadataCmdReturn {
			attrs[s.StepName+"."+k] = v
		}
	}
	return attrs
}

// DiffAttrs returns the symmetric difference of two attribute maps as
// sorted "name=value" lines: every pair present in exactly one of the two.
func DiffAttrs(a, b map[string]string) []string {
	var out []string
	for k, v := range a {
		if bv, ok := b[k]; !ok || bv != v {
			out = append(out, k+"="+v)
		}
	}
	for k, v := range b {
		if av, ok := a[k]; !ok || av != v {
			out = append(out, k+"="+v)
		}
	}
	sort.Strings(out)
	return out
}

// matchPattern matches a glob against a path, with '*' and '?' crossing
// directory separators ('*/data/*.bam' matches any depth).
func matchPattern(pattern, path string) bool {
	return matchFrom(pattern, path)
}

func matchFrom(pattern, s string) bool {
	for len(pattern) > 0 {
		switch pattern[0] {
		case '*':
			for i := len(s); i >= 0; i-- {
				if matchFrom(pattern[1:], s[i:]) {
					return true
				}
			}
			return false
		case '?':
			if len(s) == 0 {
				return false
			}
			pattern, s = pattern[1:], s[1:]
		default:
			if len(s) == 0 || s[0] != pattern[0] {
				return false
			}
			pattern, s = pattern[1:], s[1:]
		}
	}
	return len(s) == 0
}
