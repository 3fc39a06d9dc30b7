package audit

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/roach88/sealbench/internal/ir"
)

// Auditor runs attacks through one Prober under one ProbePolicy. It holds no
// per-attack state and is safe for concurrent use when its Prober is.
type Auditor struct {
	prober Prober
	policy ProbePolicy
	logger *slog.Logger
}

// Option configures an Auditor.
type Option func(*Auditor)

// WithPolicy sets the per-probe timeout and retry policy.
func WithPolicy(p ProbePolicy) Option {
	return func(a *Auditor) { a.policy = p }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Auditor) {
		if l != nil {
			a.logger = l
		}
	}
}

// New creates an Auditor over prober.
func New(prober Prober, opts ...Option) *Auditor {
	a := &Auditor{
		prober: prober,
		policy: DefaultProbePolicy,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// CurvePoint is one (budget, success rate) measurement.
type CurvePoint struct {
	Budget      int     `json:"budget"`
	Probes      int     `json:"probes"`
	Identified  int     `json:"identified"`
	SuccessRate float64 `json:"success_rate"`
}

// Claim is an attacker's proposed alias -> canonical key mapping entry.
type Claim struct {
	Alias        string `json:"alias"`
	CanonicalKey string `json:"canonical_key"`
}

// Curve is an attack budget curve plus the adversary's top-1 guesses, which
// feed the white-box audit.
type Curve struct {
	Points []CurvePoint `json:"points"`
	Claims []Claim      `json:"claims,omitempty"`
}

// Monotone reports whether success rates never decrease with budget.
func (c Curve) Monotone() bool {
	for i := 1; i < len(c.Points); i++ {
		if c.Points[i].SuccessRate < c.Points[i-1].SuccessRate {
			return false
		}
	}
	return true
}

// Final is the last point's success rate, or 0 for an empty curve.
func (c Curve) Final() float64 {
	if len(c.Points) == 0 {
		return 0
	}
	return c.Points[len(c.Points)-1].SuccessRate
}

// ValidateBudgets requires a non-empty, non-negative, strictly ascending
// budget list.
func ValidateBudgets(budgets []int) error {
	if len(budgets) == 0 {
		return ir.Errorf(ir.KindInvalidBudget, "", "no budgets given")
	}
	for i, b := range budgets {
		if b < 0 {
			return ir.Errorf(ir.KindInvalidBudget, fmt.Sprint(b), "budget must not be negative")
		}
		if i > 0 && b <= budgets[i-1] {
			return ir.Errorf(ir.KindInvalidBudget, fmt.Sprint(b), "budgets must be strictly ascending, %d follows %d", b, budgets[i-1])
		}
	}
	return nil
}

// Plan is the adversary's full probe sequence for world: every variant in
// turn, each across all items in alias order. Budget B runs the first B
// queries, so a larger budget runs a superset of a smaller one.
func Plan(world *ir.SealedWorld) []Query {
	records := slices.Clone(world.Records)
	slices.SortFunc(records, func(a, b ir.SealedRecord) int { return strings.Compare(a.Alias, b.Alias) })

	byAlias := make(map[string]ir.SealedRecord, len(records))
	neighbours := make(map[string][]string, len(records))
	for _, r := range records {
		byAlias[r.Alias] = r
	}
	for _, e := range world.Edges {
		neighbours[e.From] = append(neighbours[e.From], e.To)
		neighbours[e.To] = append(neighbours[e.To], e.From)
	}

	plan := make([]Query, 0, len(Variants)*len(records))
	for _, v := range Variants {
		for _, r := range records {
			plan = append(plan, Query{Alias: r.Alias, Variant: v, Text: queryText(v, r, neighbours[r.Alias], byAlias)})
		}
	}
	return plan
}

func queryText(v Variant, r ir.SealedRecord, neighbours []string, byAlias map[string]ir.SealedRecord) string {
	switch v {
	case VariantDescription:
		return r.Description
	case VariantDescriptionTags:
		return r.Description + " " + joinFields(r.Tags)
	case VariantContext:
		parts := []string{r.Title, joinFields(r.Tags)}
		for _, n := range slices.Sorted(slices.Values(neighbours)) {
			parts = append(parts, byAlias[n].Description)
		}
		return strings.Join(parts, " ")
	default:
		panic(fmt.Sprintf("audit: unhandled variant %q", v))
	}
}

func joinFields(fields []string) string {
	return strings.Join(fields, " ")
}

// RunBudgetAttack measures the black-box success rate at each budget. An
// item counts as identified once any executed probe's top-1 candidate is
// judged correct. Probe progress carries over from one budget to the next.
//
// On cancellation the points completed so far are returned with the
// context error; they remain valid.
func (a *Auditor) RunBudgetAttack(ctx context.Context, world *ir.SealedWorld, judge Judge, budgets []int) (Curve, error) {
	if err := ValidateBudgets(budgets); err != nil {
		return Curve{}, err
	}
	plan := Plan(world)
	total := len(world.Records)

	var (
		curve      Curve
		next       int
		identified = make(map[string]bool)
	)
	for _, budget := range budgets {
		for next < budget && next < len(plan) {
			if err := ctx.Err(); err != nil {
				return curve, err
			}
			q := plan[next]
			cands, err := a.probe(ctx, q)
			if err != nil {
				if ctx.Err() != nil {
					return curve, ctx.Err()
				}
				a.logger.Warn("probe abandoned", "alias", q.Alias, "variant", string(q.Variant), "error", err)
				next++
				continue
			}
			next++
			if len(cands) == 0 {
				continue
			}
			top := cands[0].Key
			curve.Claims = append(curve.Claims, Claim{Alias: q.Alias, CanonicalKey: top})
			if judge.Correct(q.Alias, top) {
				identified[q.Alias] = true
			}
		}
		curve.Points = append(curve.Points, CurvePoint{
			Budget:      budget,
			Probes:      next,
			Identified:  len(identified),
			SuccessRate: rate(len(identified), total),
		})
	}

	a.logger.Debug("budget attack complete",
		"seed", world.Seed,
		"config_fingerprint", world.ConfigFingerprint,
		"budgets", len(budgets),
		"final_rate", curve.Final(),
	)
	return curve, nil
}

func rate(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total)
}
