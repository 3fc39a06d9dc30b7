package seal

import (
	"slices"

	"github.com/roach88/sealbench/internal/codebook"
	"github.com/roach88/sealbench/internal/ir"
)

// coarsenAt is the strength from which edge labels collapse to
// ir.DefaultEdgeType.
const coarsenAt = 0.5

// swapsPerEdge scales the number of swap attempts at strength 1.
const swapsPerEdge = 4

type structuralOp struct{}

func (structuralOp) kind() ir.OperatorKind { return ir.OpStructural }

// apply shuffles edges by double-edge swaps inside equivalence classes.
// A swap of a->b and c->d into a->d and c->b keeps every node's in and out
// degree. Both edges must share the class (primary tag of source, primary
// tag of target), and both new edges must point forward in the canonical
// topological order, so the result stays acyclic.
func (structuralOp) apply(w *working, strength float64, key []byte) error {
	digest, err := codebook.StructuralDigest(w.digestKey, w.graph)
	if err != nil {
		return err
	}
	w.digests.Structural = digest

	edges := slices.Clone(w.graph.Edges)
	if strength > 0 {
		edges = shuffleEdges(edges, w.topo, primaryTags(w.records), strength, key)
	}
	if strength >= coarsenAt {
		for i := range edges {
			edges[i].Type = ir.DefaultEdgeType
		}
	}
	w.edges = w.aliasEdges(edges)
	return nil
}

func primaryTags(records []ir.PaperRecord) map[string]string {
	out := make(map[string]string, len(records))
	for _, r := range records {
		out[r.CanonicalKey] = r.PrimaryTag()
	}
	return out
}

type edgeClass struct{ from, to string }

func shuffleEdges(edges []ir.Edge, topo []string, tag map[string]string, strength float64, key []byte) []ir.Edge {
	pos := make(map[string]int, len(topo))
	for i, n := range topo {
		pos[n] = i
	}
	present := make(map[[2]string]bool, len(edges))
	classes := make(map[edgeClass][]int)
	for i, e := range edges {
		present[[2]string{e.From, e.To}] = true
		c := edgeClass{tag[e.From], tag[e.To]}
		classes[c] = append(classes[c], i)
	}

	rng := newRand(key, "structural")
	attempts := int(strength * float64(swapsPerEdge*len(edges)))
	for range attempts {
		i := rng.IntN(len(edges))
		members := classes[edgeClass{tag[edges[i].From], tag[edges[i].To]}]
		j := members[rng.IntN(len(members))]
		if i == j {
			continue
		}
		a, b := edges[i].From, edges[i].To
		c, d := edges[j].From, edges[j].To
		if a == c || b == d {
			continue
		}
		if pos[a] >= pos[d] || pos[c] >= pos[b] {
			continue
		}
		if present[[2]string{a, d}] || present[[2]string{c, b}] {
			continue
		}
		delete(present, [2]string{a, b})
		delete(present, [2]string{c, d})
		present[[2]string{a, d}] = true
		present[[2]string{c, b}] = true
		edges[i].To, edges[j].To = d, b
	}
	return edges
}
