// Package sweep fans sealing and auditing out over (track, seed, config)
// tasks with a bounded worker pool.
package sweep

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/sealbench/internal/audit"
	"github.com/roach88/sealbench/internal/codebook"
	"github.com/roach88/sealbench/internal/ir"
	"github.com/roach88/sealbench/internal/pareto"
	"github.com/roach88/sealbench/internal/seal"
)

// DefaultWorkers bounds concurrency when Runner.Workers is unset.
const DefaultWorkers = 4

// Task is one sealing run to perform.
type Task struct {
	Seed    string
	Config  ir.SealConfig
	Dataset ir.Dataset
}

// Track is the task's track, taken from its dataset.
func (t Task) Track() string { return t.Dataset.Track }

// Result is the outcome of one task. Err is set when the task failed; the
// other fields are then partial.
type Result struct {
	Track    string          `json:"track"`
	Seed     string          `json:"seed"`
	Config   string          `json:"config"`
	World    *ir.SealedWorld `json:"-"`
	Skipped  int             `json:"skipped"`
	BlackBox audit.Report    `json:"black_box"`
	WhiteBox audit.Report    `json:"white_box"`
	Point    pareto.Point    `json:"point"`
	Err      error           `json:"-"`
}

// UtilityFunc scores a sealed world against its canonical dataset. It stands
// in for an external utility grader.
type UtilityFunc func(ctx context.Context, ds ir.Dataset, world *ir.SealedWorld) (float64, error)

// ReportSink receives every completed audit report.
type ReportSink interface {
	SaveReport(ctx context.Context, r audit.Report) error
}

// Runner runs tasks. Engine and Auditor are required.
type Runner struct {
	Workers int
	Engine  *seal.Engine
	Auditor *audit.Auditor
	Budgets []int
	Utility UtilityFunc
	Reports ReportSink
	Logger  *slog.Logger

	mu     sync.Mutex
	stores map[string]*codebook.Store
}

// store returns the codebook store for one config. Codebooks are write-once
// per (dataset_version, seed), so each config keeps its own namespace.
func (r *Runner) store(config string) *codebook.Store {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stores == nil {
		r.stores = make(map[string]*codebook.Store)
	}
	s, ok := r.stores[config]
	if !ok {
		s = codebook.NewStore(codebook.StoreOptions{Logger: r.logger()})
		r.stores[config] = s
	}
	return s
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

// Run executes tasks on at most Workers goroutines and returns results
// ordered by (track, seed, config) whatever the completion order. A failing
// task reports its error in Result.Err and does not stop the others.
//
// If ctx is cancelled, no new task starts, tasks cut short are dropped, and
// every task completed before that is returned alongside ctx.Err().
func (r *Runner) Run(ctx context.Context, tasks []Task) ([]Result, error) {
	if r.Engine == nil || r.Auditor == nil {
		return nil, errors.New("sweep: runner needs an engine and an auditor")
	}
	if err := audit.ValidateBudgets(r.Budgets); err != nil {
		return nil, err
	}
	workers := r.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}

	var (
		mu      sync.Mutex
		results []Result
	)
	var g errgroup.Group
	g.SetLimit(workers)
	for _, task := range tasks {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			res := r.runOne(ctx, task)
			if res.Err != nil && ctx.Err() != nil {
				return nil
			}
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	slices.SortFunc(results, compareResults)
	r.logger().Info("sweep finished",
		"tasks", len(tasks),
		"completed", len(results),
		"workers", workers,
	)
	return results, ctx.Err()
}

func (r *Runner) runOne(ctx context.Context, task Task) Result {
	res := Result{Track: task.Track(), Seed: task.Seed, Config: task.Config.Name}
	fail := func(stage string, err error) Result {
		res.Err = fmt.Errorf("%s %s@%s: %s: %w", res.Track, res.Config, res.Seed, stage, err)
		r.logger().Warn("sweep task failed",
			"track", res.Track,
			"seed", res.Seed,
			"config", res.Config,
			"stage", stage,
			"error", err,
		)
		return res
	}
	if err := ctx.Err(); err != nil {
		return fail("start", err)
	}

	world, cb, rep, err := r.Engine.SealChecked(task.Dataset, task.Config, task.Seed)
	if err != nil {
		return fail("seal", err)
	}
	res.World = world
	res.Skipped = len(rep.Skipped)

	store := r.store(task.Config.Name)
	if err := store.Register(ctx, cb); err != nil {
		return fail("register", err)
	}

	curve, err := r.Auditor.RunBudgetAttack(ctx, world, audit.CodebookJudge{Verifier: store, Codebook: cb}, r.Budgets)
	if err != nil {
		return fail("black-box audit", err)
	}
	verdict := audit.RunRecoveryAudit(store, world, cb, audit.TopClaims(curve.Claims))

	if res.BlackBox, err = audit.NewBlackBoxReport(world, curve); err != nil {
		return fail("report", err)
	}
	if res.WhiteBox, err = audit.NewWhiteBoxReport(world, verdict); err != nil {
		return fail("report", err)
	}
	if r.Reports != nil {
		for _, rpt := range []audit.Report{res.BlackBox, res.WhiteBox} {
			if err := r.Reports.SaveReport(ctx, rpt); err != nil {
				return fail("save report", err)
			}
		}
	}

	utility := r.Utility
	if utility == nil {
		utility = NumericRetention
	}
	u, err := utility(ctx, task.Dataset, world)
	if err != nil {
		return fail("utility", err)
	}
	res.Point = pareto.Point{
		Config:   task.Config.Name,
		Seed:     task.Seed,
		Utility:  u,
		BlackBox: curve.Final(),
		WhiteBox: verdict.Rate,
	}
	return res
}

func compareResults(a, b Result) int {
	if c := strings.Compare(a.Track, b.Track); c != 0 {
		return c
	}
	if c := CompareSeeds(a.Seed, b.Seed); c != 0 {
		return c
	}
	return strings.Compare(a.Config, b.Config)
}

// CompareSeeds orders integer seeds numerically and everything else
// lexically, integers first.
func CompareSeeds(a, b string) int {
	ai, aErr := strconv.ParseInt(a, 10, 64)
	bi, bErr := strconv.ParseInt(b, 10, 64)
	switch {
	case aErr == nil && bErr == nil:
		return cmp.Compare(ai, bi)
	case aErr == nil:
		return -1
	case bErr == nil:
		return 1
	}
	return strings.Compare(a, b)
}

// Points returns the pareto points of successful results.
func Points(results []Result) []pareto.Point {
	var out []pareto.Point
	for _, r := range results {
		if r.Err == nil {
			out = append(out, r.Point)
		}
	}
	return out
}

// Tasks expands the cross product of seeds and configs over ds, in a
// deterministic order.
func Tasks(ds ir.Dataset, seeds []string, configs []ir.SealConfig) []Task {
	out := make([]Task, 0, len(seeds)*len(configs))
	for _, seed := range seeds {
		for _, cfg := range configs {
			out = append(out, Task{Seed: seed, Config: cfg, Dataset: ds})
		}
	}
	return out
}
