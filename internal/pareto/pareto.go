// Package pareto chooses release configurations by trading utility against
// leakage.
package pareto

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/roach88/sealbench/internal/ir"
)

// AggregateSeed is the Seed of a point averaged across seeds.
const AggregateSeed = "aggregate"

// Point is one (config, seed) measurement. Utility is maximized; both
// leakage rates are minimized.
type Point struct {
	Config   string  `json:"config" yaml:"config"`
	Seed     string  `json:"seed" yaml:"seed"`
	Utility  float64 `json:"utility" yaml:"utility"`
	BlackBox float64 `json:"black_box" yaml:"black_box"`
	WhiteBox float64 `json:"white_box" yaml:"white_box"`
}

// Validate rejects non-finite metrics and leakage outside [0,1].
func (p Point) Validate() error {
	subject := p.Config + "@" + p.Seed
	for name, v := range map[string]float64{"utility": p.Utility, "black_box": p.BlackBox, "white_box": p.WhiteBox} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("point %s: %s is not finite", subject, name)
		}
	}
	if p.BlackBox < 0 || p.BlackBox > 1 || p.WhiteBox < 0 || p.WhiteBox > 1 {
		return fmt.Errorf("point %s: leakage outside [0,1]", subject)
	}
	return nil
}

// Dominates reports whether a is at least as good as b on every objective
// and strictly better on one.
func Dominates(a, b Point) bool {
	if a.Utility < b.Utility || a.BlackBox > b.BlackBox || a.WhiteBox > b.WhiteBox {
		return false
	}
	return a.Utility > b.Utility || a.BlackBox < b.BlackBox || a.WhiteBox < b.WhiteBox
}

// compare orders by white-box leakage, black-box leakage, utility
// descending, then config and seed.
func compare(a, b Point) int {
	if c := cmp.Compare(a.WhiteBox, b.WhiteBox); c != 0 {
		return c
	}
	if c := cmp.Compare(a.BlackBox, b.BlackBox); c != 0 {
		return c
	}
	if c := cmp.Compare(b.Utility, a.Utility); c != 0 {
		return c
	}
	if c := strings.Compare(a.Config, b.Config); c != 0 {
		return c
	}
	return strings.Compare(a.Seed, b.Seed)
}

// Aggregate returns the non-dominated points in a stable order. Points
// with identical metrics do not dominate each other and are all kept.
func Aggregate(points []Point) []Point {
	var frontier []Point
	for i, p := range points {
		dominated := false
		for j, q := range points {
			if i != j && Dominates(q, p) {
				dominated = true
				break
			}
		}
		if !dominated {
			frontier = append(frontier, p)
		}
	}
	slices.SortFunc(frontier, compare)
	return frontier
}

// AggregateSeeds averages each config's points across seeds. The result
// holds one point per config with Seed set to AggregateSeed, sorted by
// config.
func AggregateSeeds(points []Point) []Point {
	type acc struct {
		n                           int
		utility, blackBox, whiteBox float64
	}
	sums := make(map[string]*acc)
	for _, p := range points {
		a, ok := sums[p.Config]
		if !ok {
			a = &acc{}
			sums[p.Config] = a
		}
		a.n++
		a.utility += p.Utility
		a.blackBox += p.BlackBox
		a.whiteBox += p.WhiteBox
	}
	out := make([]Point, 0, len(sums))
	for config, a := range sums {
		n := float64(a.n)
		out = append(out, Point{
			Config:   config,
			Seed:     AggregateSeed,
			Utility:  a.utility / n,
			BlackBox: a.blackBox / n,
			WhiteBox: a.whiteBox / n,
		})
	}
	slices.SortFunc(out, func(a, b Point) int { return strings.Compare(a.Config, b.Config) })
	return out
}

// Recommend selects the minimum-leakage point whose utility is at least
// floor: lowest white-box leakage, then lowest black-box leakage, then
// highest utility. It fails with NO_FEASIBLE_POINT when no point qualifies.
func Recommend(frontier []Point, floor float64) (Point, error) {
	var feasible []Point
	for _, p := range frontier {
		if p.Utility >= floor {
			feasible = append(feasible, p)
		}
	}
	if len(feasible) == 0 {
		err := ir.Errorf(ir.KindNoFeasiblePoint, fmt.Sprintf("floor=%v", floor), "no point reaches the utility floor")
		err.Details = map[string]string{"candidates": fmt.Sprint(len(frontier))}
		return Point{}, err
	}
	return slices.MinFunc(feasible, compare), nil
}
