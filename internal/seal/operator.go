package seal

import (
	"fmt"

	"github.com/roach88/sealbench/internal/codebook"
	"github.com/roach88/sealbench/internal/ir"
)

// operator is one sealing stage. The set is closed: operatorFor is the only
// constructor and its switch must name every ir.OperatorKind.
type operator interface {
	kind() ir.OperatorKind
	apply(w *working, strength float64, key []byte) error
}

func operatorFor(k ir.OperatorKind) operator {
	switch k {
	case ir.OpIdentifier:
		return identifierOp{}
	case ir.OpLexical:
		return lexicalOp{}
	case ir.OpStructural:
		return structuralOp{}
	case ir.OpNumeric:
		return numericOp{}
	default:
		panic(fmt.Sprintf("seal: unhandled operator %q", k))
	}
}

// working is the mutable state threaded through one sealing run. It never
// escapes Seal.
type working struct {
	cfg ir.SealConfig

	// records are the accepted canonical records, sorted by canonical key.
	records []ir.PaperRecord
	// graph is the accepted canonical graph, normalized.
	graph ir.DependencyGraph
	// topo is graph's canonical topological order.
	topo []string

	// alias maps canonical key to alias; filled by the identifier operator.
	alias    map[string]string
	aliasSet map[string]bool

	// out is aligned with records.
	out   []ir.SealedRecord
	edges []ir.Edge

	digestKey []byte
	digests   codebook.Digests
}

func newWorking(cfg ir.SealConfig, records []ir.PaperRecord, g ir.DependencyGraph, topo []string, digestKey []byte) *working {
	w := &working{
		cfg:       cfg,
		records:   records,
		graph:     g,
		topo:      topo,
		alias:     make(map[string]string, len(records)),
		aliasSet:  make(map[string]bool, len(records)),
		out:       make([]ir.SealedRecord, len(records)),
		digestKey: digestKey,
		digests: codebook.Digests{
			Lexical: make(map[string]string),
			Numeric: make(map[string]string),
		},
	}
	for i, r := range records {
		w.out[i] = ir.SealedRecord{
			Title:       r.Title,
			Description: r.Description,
			Tags:        append([]string(nil), r.Tags...),
		}
	}
	return w
}

// aliasEdges maps the canonical graph's edges onto aliases unchanged.
func (w *working) aliasEdges(edges []ir.Edge) []ir.Edge {
	out := make([]ir.Edge, len(edges))
	for i, e := range edges {
		out[i] = ir.Edge{From: w.alias[e.From], To: w.alias[e.To], Type: e.Type}
	}
	return out
}

// identifierMap returns alias -> canonical key.
func (w *working) identifierMap() map[string]string {
	out := make(map[string]string, len(w.alias))
	for key, a := range w.alias {
		out[a] = key
	}
	return out
}
