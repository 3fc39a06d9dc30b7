package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/sealbench/internal/ir"
)

// AssertionError is returned when an assertion fails.
// It names the cell so a failing sweep points at the exact run.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Cell     string // config@seed, empty for scenario-wide assertions
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s", e.Type)
	if e.Cell != "" {
		fmt.Fprintf(&buf, " [%s]", e.Cell)
	}
	fmt.Fprintf(&buf, "\n  Expected: %s\n  Actual: %s\n", e.Expected, e.Actual)
	return buf.String()
}

// EvaluateAssertions checks every assertion against every cell and returns
// the failure messages. error_kind expects each cell to have failed with
// that kind; every other per-cell assertion expects the cell to have
// succeeded.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	for _, a := range assertions {
		if a.Type == AssertFeasible {
			if err := assertFeasible(result); err != nil {
				errs = append(errs, err.Error())
			}
			continue
		}
		for _, c := range result.Cells {
			if err := evaluateCell(c, a); err != nil {
				errs = append(errs, err.Error())
			}
		}
	}
	return errs
}

func assertFeasible(result *Result) error {
	if result.Feasible != nil && *result.Feasible {
		return nil
	}
	return &AssertionError{
		Type:     AssertFeasible,
		Expected: "a recommendation at the scenario floor",
		Actual:   "no feasible frontier point",
	}
}

func evaluateCell(c Cell, a Assertion) error {
	name := c.Result.Config + "@" + c.Result.Seed
	fail := func(expected, actual string) error {
		return &AssertionError{Type: a.Type, Cell: name, Expected: expected, Actual: actual}
	}

	if a.Type == AssertErrorKind {
		if got := ir.KindOf(c.Result.Err); string(got) != a.Kind {
			return fail("error kind "+a.Kind, fmt.Sprintf("%q (err: %v)", got, c.Result.Err))
		}
		return nil
	}
	if c.Result.Err != nil {
		return fail("successful run", c.Result.Err.Error())
	}

	f := c.Facts
	check := func(ok bool, expected, actual string) error {
		if ok {
			return nil
		}
		return fail(expected, actual)
	}
	switch a.Type {
	case AssertRecordCount:
		return check(f.Records == a.Count, fmt.Sprintf("%d records", a.Count), fmt.Sprintf("%d records", f.Records))
	case AssertEdgeCount:
		return check(f.Edges == a.Count, fmt.Sprintf("%d edges", a.Count), fmt.Sprintf("%d edges", f.Edges))
	case AssertDeterministic:
		return check(f.Deterministic, "identical bytes on re-seal", "worlds differ")
	case AssertVerifyMapping:
		return check(f.VerifyMapping, "true mapping verifies", "verify returned false")
	case AssertVerifySwapped:
		return check(!f.VerifySwapped, "swapped mapping is rejected", "verify returned true")
	case AssertNoLeaks:
		return check(f.Leaks == 0, "no canonical key published", fmt.Sprintf("%d leak(s)", f.Leaks))
	case AssertCurvePoints:
		return check(len(f.CurveBudgets) == a.Count,
			fmt.Sprintf("%d curve points", a.Count), fmt.Sprintf("%d curve points", len(f.CurveBudgets)))
	case AssertCurveMonotone:
		return check(f.CurveMonotone, "non-decreasing success rates", fmt.Sprintf("curve over %v decreases", f.CurveBudgets))
	case AssertBucketsMonotone, AssertOrderPreserved:
		n, ok := f.Numeric[a.Field]
		if !ok {
			return fail("bucketed field "+a.Field, "field not bucketed")
		}
		if a.Type == AssertBucketsMonotone {
			return check(n.Monotone, "buckets non-decreasing in value", "bucket order inverted")
		}
		return check(n.OrderPreserved, "distinct buckets keep value order", "value order inverted")
	}
	return fail("known assertion type", a.Type)
}
