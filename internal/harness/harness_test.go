package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/roach88/sealbench/internal/ir"
	"github.com/roach88/sealbench/internal/testutil"
)

func TestRun_Chain(t *testing.T) {
	defer goleak.VerifyNone(t)

	scenario, err := LoadScenario("testdata/scenarios/chain_level2.yaml")
	require.NoError(t, err)

	result, err := Run(t.Context(), scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Nil(t, result.Feasible)

	require.Len(t, result.Cells, 1)
	c := result.Cells[0]
	require.NoError(t, c.Result.Err)
	assert.Equal(t, "level-2", c.Result.Config)
	assert.Equal(t, "42", c.Result.Seed)

	f := c.Facts
	assert.Equal(t, 3, f.Records)
	assert.Equal(t, 2, f.Edges)
	assert.True(t, f.DAG)
	assert.True(t, f.Deterministic)
	assert.True(t, f.VerifyMapping)
	assert.False(t, f.VerifySwapped)
	assert.Zero(t, f.Leaks)
	assert.Equal(t, 2, f.Reports, "black-box and white-box reports stored")
	assert.Equal(t, []int{8, 16, 32}, f.CurveBudgets)
	assert.Equal(t, NumericFacts{Bucketed: 3, Monotone: true, OrderPreserved: true}, f.Numeric["accuracy"])
}

func TestRun_FailedCellIsReported(t *testing.T) {
	defer goleak.VerifyNone(t)

	scenario, err := LoadScenario("testdata/scenarios/cyclic_rejected.yaml")
	require.NoError(t, err)

	result, err := Run(t.Context(), scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass)
	require.Len(t, result.Cells, 1)
	assert.True(t, ir.IsKind(result.Cells[0].Result.Err, ir.KindCyclicDependency))
	assert.Equal(t, Facts{}, result.Cells[0].Facts)

	summary := result.Summary("cyclic_rejected")
	runs := summary["runs"].([]any)
	assert.Equal(t, map[string]any{"config": "level-1", "seed": "1", "error": "CYCLIC_DEPENDENCY"}, runs[0])
}

func TestRun_FailingAssertionsFailResult(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/chain_level2.yaml")
	require.NoError(t, err)
	scenario.Assertions = []Assertion{
		{Type: AssertEdgeCount, Count: 5},
		{Type: AssertErrorKind, Kind: string(ir.KindCyclicDependency)},
	}

	result, err := Run(t.Context(), scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "edge_count [level-2@42]")
	assert.Contains(t, result.Errors[0], "Expected: 5 edges")
	assert.Contains(t, result.Errors[0], "Actual: 2 edges")
	assert.Contains(t, result.Errors[1], "error kind CYCLIC_DEPENDENCY")
}

func TestRun_Infeasible(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/chain_level2.yaml")
	require.NoError(t, err)
	floor := 2.0
	scenario.Floor = &floor
	scenario.Assertions = []Assertion{{Type: AssertFeasible}}

	result, err := Run(t.Context(), scenario)
	require.NoError(t, err)
	require.NotNil(t, result.Feasible)
	assert.False(t, *result.Feasible)
	assert.False(t, result.Pass)
	assert.Equal(t, false, result.Summary("x")["feasible"])
}

func TestSwapFirstPair(t *testing.T) {
	mapping := map[string]string{"a": "1", "b": "2", "c": "3"}
	swapped := swapFirstPair([]string{"a", "b", "c"}, mapping)
	assert.Equal(t, map[string]string{"a": "2", "b": "1", "c": "3"}, swapped)
	assert.Equal(t, "1", mapping["a"], "input untouched")

	assert.Empty(t, swapFirstPair([]string{"a"}, map[string]string{"a": "1"}))
}

func TestNumericFacts(t *testing.T) {
	ds := testutil.NumericDataset()
	mapping := make(map[string]string)
	world := &ir.SealedWorld{}
	// buckets invert the order of the first two values
	for i, r := range ds.Records {
		alias := "s-" + r.CanonicalKey
		mapping[alias] = r.CanonicalKey
		bucket := int64(i / 2)
		switch i {
		case 0:
			bucket = 1
		case 1:
			bucket = 0
		}
		world.Records = append(world.Records, ir.SealedRecord{
			Alias:   alias,
			Results: map[string]ir.SealedValue{"score": ir.BucketValue(bucket), "raw": {Exact: "1"}},
		})
	}

	facts := numericFacts(ds, world, mapping)
	require.Contains(t, facts, "score")
	assert.NotContains(t, facts, "raw", "exact values are not bucketed")
	assert.Equal(t, 10, facts["score"].Bucketed)
	assert.False(t, facts["score"].Monotone)
	assert.False(t, facts["score"].OrderPreserved)
}
