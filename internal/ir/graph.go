package ir

import (
	"cmp"
	"container/heap"
	"fmt"
	"slices"
	"strings"
)

// DefaultEdgeType labels edges derived from dependency references and
// edges coarsened by structural sealing.
const DefaultEdgeType = "dep"

// Edge is a directed dependency From -> To. From depends on To.
type Edge struct {
	From string `json:"from" yaml:"from"`
	To   string `json:"to" yaml:"to"`
	Type string `json:"type,omitempty" yaml:"type,omitempty"`
}

func compareEdges(a, b Edge) int {
	if c := strings.Compare(a.From, b.From); c != 0 {
		return c
	}
	if c := strings.Compare(a.To, b.To); c != 0 {
		return c
	}
	return strings.Compare(a.Type, b.Type)
}

// DependencyGraph is a directed graph over canonical keys (or, once sealed,
// over aliases). Structural sealing requires it to be acyclic.
type DependencyGraph struct {
	Nodes []string `json:"nodes" yaml:"nodes"`
	Edges []Edge   `json:"edges" yaml:"edges"`
}

// GraphFromRecords derives a graph from dependency references. Every record
// becomes a node; references become edges of DefaultEdgeType.
func GraphFromRecords(records []PaperRecord) DependencyGraph {
	var g DependencyGraph
	for _, r := range records {
		g.Nodes = append(g.Nodes, r.CanonicalKey)
		for _, dep := range r.Dependencies {
			g.Edges = append(g.Edges, Edge{From: r.CanonicalKey, To: dep, Type: DefaultEdgeType})
		}
	}
	return g.Normalize()
}

// Normalize returns a copy with sorted unique nodes and sorted unique edges.
// Edges with an empty type are given DefaultEdgeType.
func (g DependencyGraph) Normalize() DependencyGraph {
	nodes := slices.Clone(g.Nodes)
	slices.Sort(nodes)
	nodes = slices.Compact(nodes)

	edges := make([]Edge, 0, len(g.Edges))
	for _, e := range g.Edges {
		if e.Type == "" {
			e.Type = DefaultEdgeType
		}
		edges = append(edges, e)
	}
	slices.SortFunc(edges, compareEdges)
	edges = slices.CompactFunc(edges, func(a, b Edge) bool { return a.From == b.From && a.To == b.To })
	return DependencyGraph{Nodes: nodes, Edges: edges}
}

// DanglingEdges returns edges whose endpoints are not nodes of g.
func (g DependencyGraph) DanglingEdges() []Edge {
	known := make(map[string]bool, len(g.Nodes))
	for _, n := range g.Nodes {
		known[n] = true
	}
	var out []Edge
	for _, e := range g.Edges {
		if !known[e.From] || !known[e.To] {
			out = append(out, e)
		}
	}
	return out
}

// indexed is an adjacency view of a normalized graph. Node i is g.Nodes[i].
type indexed struct {
	nodes    []string
	outgoing [][]int
	indeg    []int
	outdeg   []int
}

func (g DependencyGraph) index() indexed {
	n := g.Normalize()
	pos := make(map[string]int, len(n.Nodes))
	for i, name := range n.Nodes {
		pos[name] = i
	}
	ix := indexed{
		nodes:    n.Nodes,
		outgoing: make([][]int, len(n.Nodes)),
		indeg:    make([]int, len(n.Nodes)),
		outdeg:   make([]int, len(n.Nodes)),
	}
	for _, e := range n.Edges {
		from, okFrom := pos[e.From]
		to, okTo := pos[e.To]
		if !okFrom || !okTo {
			continue
		}
		ix.outgoing[from] = append(ix.outgoing[from], to)
		ix.outdeg[from]++
		ix.indeg[to]++
	}
	return ix
}

type intMinHeap []int

func (h intMinHeap) Len() int           { return len(h) }
func (h intMinHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h intMinHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *intMinHeap) Push(x any)        { *h = append(*h, x.(int)) }
func (h *intMinHeap) Pop() any {
	old := *h
	x := old[len(old)-1]
	*h = old[:len(old)-1]
	return x
}

// TopoOrder returns a deterministic topological order (Kahn's algorithm with
// the ready set ordered by node name). Dangling edges are ignored; check
// DanglingEdges first. A cyclic graph yields KindCyclicDependency carrying
// one witness cycle.
func (g DependencyGraph) TopoOrder() ([]string, error) {
	ix := g.index()
	indeg := slices.Clone(ix.indeg)

	ready := &intMinHeap{}
	for i, d := range indeg {
		if d == 0 {
			heap.Push(ready, i)
		}
	}

	order := make([]string, 0, len(ix.nodes))
	for ready.Len() > 0 {
		n := heap.Pop(ready).(int)
		order = append(order, ix.nodes[n])
		for _, m := range ix.outgoing[n] {
			indeg[m]--
			if indeg[m] == 0 {
				heap.Push(ready, m)
			}
		}
	}
	if len(order) == len(ix.nodes) {
		return order, nil
	}

	cycle := ix.findCycle()
	return nil, &Error{
		Kind:    KindCyclicDependency,
		Subject: strings.Join(cycle, " -> "),
		Message: "dependency graph is not acyclic",
		Details: map[string]string{"cycle_length": fmt.Sprintf("%d", max(len(cycle)-1, 0))},
	}
}

// IsDAG reports whether g has no directed cycle.
func (g DependencyGraph) IsDAG() bool {
	_, err := g.TopoOrder()
	return err == nil
}

// FindCycle returns one cycle as a closed path [v, ..., v], or nil.
func (g DependencyGraph) FindCycle() []string {
	return g.index().findCycle()
}

// findCycle runs a DFS in node order and returns the first back-edge cycle.
func (ix indexed) findCycle() []string {
	const (
		white = iota
		gray
		black
	)
	color := make([]int, len(ix.nodes))
	parent := make([]int, len(ix.nodes))
	for i := range parent {
		parent[i] = -1
	}

	var cycle []int
	var dfs func(u int) bool
	dfs = func(u int) bool {
		color[u] = gray
		for _, v := range ix.outgoing[u] {
			switch color[v] {
			case white:
				parent[v] = u
				if dfs(v) {
					return true
				}
			case gray:
				cycle = append(cycle, v)
				for cur := u; cur != -1 && cur != v; cur = parent[cur] {
					cycle = append(cycle, cur)
				}
				cycle = append(cycle, v)
				return true
			}
		}
		color[u] = black
		return false
	}

	for i := range ix.nodes {
		if color[i] == white && dfs(i) {
			break
		}
	}
	if len(cycle) == 0 {
		return nil
	}
	out := make([]string, len(cycle))
	for i, idx := range cycle {
		out[len(cycle)-1-i] = ix.nodes[idx]
	}
	return out
}

// DegreeClass coarsens a degree into the class structural sealing preserves.
func DegreeClass(d int) string {
	switch {
	case d <= 0:
		return "0"
	case d == 1:
		return "1"
	case d <= 3:
		return "2-3"
	default:
		return "4+"
	}
}

// ReachabilitySignature is the name-independent shape of a graph that
// downstream utility scoring depends on. Structural sealing must leave it
// unchanged.
type ReachabilitySignature struct {
	Nodes   int      `json:"nodes"`
	Edges   int      `json:"edges"`
	Acyclic bool     `json:"acyclic"`
	Sources int      `json:"sources"`
	Sinks   int      `json:"sinks"`
	Degrees []string `json:"degrees"`
}

// Signature computes the ReachabilitySignature of g. Degrees is the sorted
// multiset of "in/out" degree classes.
func (g DependencyGraph) Signature() ReachabilitySignature {
	ix := g.index()
	sig := ReachabilitySignature{Nodes: len(ix.nodes), Acyclic: g.IsDAG()}
	for i := range ix.nodes {
		sig.Edges += ix.outdeg[i]
		if ix.indeg[i] == 0 {
			sig.Sources++
		}
		if ix.outdeg[i] == 0 {
			sig.Sinks++
		}
		sig.Degrees = append(sig.Degrees, DegreeClass(ix.indeg[i])+"/"+DegreeClass(ix.outdeg[i]))
	}
	slices.SortFunc(sig.Degrees, cmp.Compare[string])
	return sig
}

// Degrees returns exact in- and out-degree per node name.
func (g DependencyGraph) Degrees() (in, out map[string]int) {
	ix := g.index()
	in = make(map[string]int, len(ix.nodes))
	out = make(map[string]int, len(ix.nodes))
	for i, name := range ix.nodes {
		in[name] = ix.indeg[i]
		out[name] = ix.outdeg[i]
	}
	return in, out
}
