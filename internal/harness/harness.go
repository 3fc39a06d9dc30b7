package harness

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"

	"github.com/roach88/sealbench/internal/audit"
	"github.com/roach88/sealbench/internal/codebook"
	"github.com/roach88/sealbench/internal/export"
	"github.com/roach88/sealbench/internal/ir"
	"github.com/roach88/sealbench/internal/pareto"
	"github.com/roach88/sealbench/internal/seal"
	"github.com/roach88/sealbench/internal/store"
	"github.com/roach88/sealbench/internal/sweep"
	"github.com/roach88/sealbench/internal/testutil"
)

// Harness is the scenario execution engine. Every scenario seals under the
// same fixed master secret, so runs are reproducible.
type Harness struct {
	store   *store.Store
	engine  *seal.Engine
	auditor *audit.Auditor
	logger  *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
//
// Execution flow:
//  1. Sweep every (config, seed) cell through seal, audit and reporting
//  2. Re-seal each cell independently and derive its facts
//  3. Ask the pareto reporter for a recommendation when a floor is set
//  4. Evaluate assertions against every cell
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // Suppress logs in tests
	engine, err := seal.New(testutil.Master, seal.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	h := &Harness{
		store:  st,
		engine: engine,
		auditor: audit.New(
			audit.NewRetrievalProxy(scenario.reference.Records, 0),
			audit.WithLogger(logger),
			audit.WithPolicy(audit.ProbePolicy{}),
		),
		logger: logger,
	}

	configs := make([]ir.SealConfig, len(scenario.Configs))
	for i, c := range scenario.Configs {
		if configs[i], err = c.Resolve(); err != nil {
			return nil, fmt.Errorf("configs[%d]: %w", i, err)
		}
	}

	runner := &sweep.Runner{
		Engine:  h.engine,
		Auditor: h.auditor,
		Budgets: scenario.Budgets,
		Reports: h.store,
		Logger:  h.logger,
	}
	results, err := runner.Run(ctx, sweep.Tasks(scenario.dataset, scenario.Seeds, configs))
	if err != nil {
		return nil, fmt.Errorf("failed to run sweep: %w", err)
	}

	byName := make(map[string]ir.SealConfig, len(configs))
	for _, c := range configs {
		byName[c.Name] = c
	}
	result := NewResult()
	for _, r := range results {
		run := Cell{Result: r}
		if r.Err == nil {
			if run.Facts, err = h.facts(ctx, scenario.dataset, byName[r.Config], r); err != nil {
				return nil, fmt.Errorf("%s@%s: %w", r.Config, r.Seed, err)
			}
		}
		result.Cells = append(result.Cells, run)
	}

	if scenario.Floor != nil {
		_, err := pareto.Recommend(pareto.Aggregate(sweep.Points(results)), *scenario.Floor)
		feasible := err == nil
		if err != nil && !ir.IsKind(err, ir.KindNoFeasiblePoint) {
			return nil, err
		}
		result.Feasible = &feasible
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

// facts re-seals one cell with the harness engine and checks the result
// against the world the sweep produced.
func (h *Harness) facts(ctx context.Context, ds ir.Dataset, cfg ir.SealConfig, r sweep.Result) (Facts, error) {
	world, cb, rep, err := h.engine.Seal(ds, cfg, r.Seed)
	if err != nil {
		return Facts{}, err
	}
	books := codebook.NewStore(codebook.StoreOptions{Logger: h.logger})
	if err := books.Register(ctx, cb); err != nil {
		return Facts{}, err
	}

	deterministic, err := sameWorld(r.World, world)
	if err != nil {
		return Facts{}, err
	}
	mapping := make(map[string]string, cb.Len())
	for _, alias := range cb.Aliases() {
		key, err := books.Lookup(cb, alias)
		if err != nil {
			return Facts{}, err
		}
		mapping[alias] = key
	}
	leaks, err := audit.CheckMinimality(books, world, cb)
	if err != nil {
		return Facts{}, err
	}
	reports, err := h.store.ReportsForWorld(ctx, r.BlackBox.WorldHash)
	if err != nil {
		return Facts{}, err
	}

	f := Facts{
		Records:       len(world.Records),
		Skipped:       len(rep.Skipped),
		Edges:         len(world.Edges),
		DroppedEdges:  rep.DroppedEdges,
		DAG:           world.Graph().IsDAG(),
		Deterministic: deterministic,
		VerifyMapping: books.Verify(cb, mapping),
		VerifySwapped: books.Verify(cb, swapFirstPair(cb.Aliases(), mapping)),
		Leaks:         len(leaks),
		Reports:       len(reports),
		CurveMonotone: true,
		Numeric:       numericFacts(ds, world, mapping),
	}
	for i, p := range r.BlackBox.Curve {
		f.CurveBudgets = append(f.CurveBudgets, p.Budget)
		if i > 0 && p.SuccessRate < r.BlackBox.Curve[i-1].SuccessRate {
			f.CurveMonotone = false
		}
	}
	return f, nil
}

// sameWorld reports whether two seals agree byte for byte and the
// published encoding decodes back to the same world.
func sameWorld(a, b *ir.SealedWorld) (bool, error) {
	encoded, err := export.EncodeWorld(a)
	if err != nil {
		return false, err
	}
	decoded, err := export.DecodeWorld(encoded)
	if err != nil {
		return false, err
	}
	ha, err := decoded.Hash()
	if err != nil {
		return false, err
	}
	hb, err := b.Hash()
	if err != nil {
		return false, err
	}
	return ha == hb, nil
}

// swapFirstPair returns mapping with the keys of the first two aliases
// exchanged. With fewer than two aliases there is nothing to swap and the
// result is empty, which never verifies.
func swapFirstPair(aliases []string, mapping map[string]string) map[string]string {
	if len(aliases) < 2 {
		return map[string]string{}
	}
	out := maps.Clone(mapping)
	out[aliases[0]], out[aliases[1]] = mapping[aliases[1]], mapping[aliases[0]]
	return out
}

// numericFacts checks every bucketed result field: buckets never decrease
// as values grow, and differing buckets never invert the value order.
func numericFacts(ds ir.Dataset, world *ir.SealedWorld, mapping map[string]string) map[string]NumericFacts {
	type pair struct {
		value  float64
		bucket int64
	}
	canonical := ir.Index(ds.Records)
	pairs := make(map[string][]pair)
	for _, rec := range world.Records {
		src := canonical[mapping[rec.Alias]]
		for field, v := range rec.Results {
			if v.Bucket == nil {
				continue
			}
			pairs[field] = append(pairs[field], pair{src.Results[field], *v.Bucket})
		}
	}

	out := make(map[string]NumericFacts, len(pairs))
	for field, ps := range pairs {
		slices.SortFunc(ps, func(a, b pair) int {
			return cmp.Or(cmp.Compare(a.value, b.value), cmp.Compare(a.bucket, b.bucket))
		})
		n := NumericFacts{Bucketed: len(ps), Monotone: true, OrderPreserved: true}
		for i := 1; i < len(ps); i++ {
			if ps[i].bucket < ps[i-1].bucket {
				n.Monotone = false
			}
		}
		for _, a := range ps {
			for _, b := range ps {
				if a.bucket < b.bucket && !(a.value < b.value) {
					n.OrderPreserved = false
				}
			}
		}
		out[field] = n
	}
	return out
}
