package harness

import (
	"github.com/roach88/sealbench/internal/ir"
	"github.com/roach88/sealbench/internal/sweep"
)

// Cell is one (config, seed) run of a scenario.
type Cell struct {
	// Result is the sweep outcome for this cell.
	Result sweep.Result

	// Facts are the checks the harness derived from the sealed world.
	// Zero when Result.Err is set.
	Facts Facts
}

// Facts are the deterministic properties of one sealed world. They never
// carry hashes or attack rates, so summaries stay stable across releases.
type Facts struct {
	Records       int
	Skipped       int
	Edges         int
	DroppedEdges  int
	DAG           bool
	Deterministic bool
	VerifyMapping bool
	VerifySwapped bool
	Leaks         int
	Reports       int
	CurveBudgets  []int
	CurveMonotone bool
	Numeric       map[string]NumericFacts
}

// NumericFacts summarize one bucketed result field.
type NumericFacts struct {
	Bucketed       int
	Monotone       bool
	OrderPreserved bool
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall test success.
	Pass bool

	// Cells holds every (config, seed) run, in sweep order.
	Cells []Cell

	// Feasible is set when the scenario has a floor: whether the pareto
	// reporter found a recommendation.
	Feasible *bool

	// Errors contains assertion failure messages.
	// Empty if Pass is true.
	Errors []string
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Cells:  []Cell{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Summary is the golden form of a result: canonical-JSON-ready values only.
func (r *Result) Summary(name string) map[string]any {
	runs := make([]any, len(r.Cells))
	for i, c := range r.Cells {
		runs[i] = c.summary()
	}
	out := map[string]any{
		"name": name,
		"runs": runs,
	}
	if r.Feasible != nil {
		out["feasible"] = *r.Feasible
	}
	return out
}

func (run Cell) summary() map[string]any {
	out := map[string]any{
		"config": run.Result.Config,
		"seed":   run.Result.Seed,
	}
	if run.Result.Err != nil {
		kind := string(ir.KindOf(run.Result.Err))
		if kind == "" {
			kind = "error"
		}
		out["error"] = kind
		return out
	}
	f := run.Facts
	out["records"] = f.Records
	out["skipped"] = f.Skipped
	out["edges"] = f.Edges
	out["dropped_edges"] = f.DroppedEdges
	out["dag"] = f.DAG
	out["deterministic"] = f.Deterministic
	out["verify_mapping"] = f.VerifyMapping
	out["verify_swapped"] = f.VerifySwapped
	out["leaks"] = f.Leaks
	out["reports"] = f.Reports
	budgets := make([]any, len(f.CurveBudgets))
	for i, b := range f.CurveBudgets {
		budgets[i] = b
	}
	out["curve"] = map[string]any{"budgets": budgets, "monotone": f.CurveMonotone}
	if len(f.Numeric) > 0 {
		numeric := make(map[string]any, len(f.Numeric))
		for field, n := range f.Numeric {
			numeric[field] = map[string]any{
				"bucketed":        n.Bucketed,
				"monotone":        n.Monotone,
				"order_preserved": n.OrderPreserved,
			}
		}
		out["numeric"] = numeric
	}
	return out
}
