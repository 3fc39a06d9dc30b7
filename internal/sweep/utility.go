package sweep

import (
	"context"
	"maps"
	"slices"
	"strconv"

	"github.com/roach88/sealbench/internal/ir"
)

// NumericRetention is the default utility: the share of record pairs with
// distinct canonical values that remain distinguishable after sealing,
// averaged over result fields. Records without the field are ignored. A
// dataset with nothing to compare scores 1.
func NumericRetention(_ context.Context, ds ir.Dataset, world *ir.SealedWorld) (float64, error) {
	canonical := make(map[string][]float64)
	for _, r := range ds.Records {
		for field, v := range r.Results {
			canonical[field] = append(canonical[field], v)
		}
	}
	sealed := make(map[string][]string)
	for _, r := range world.Records {
		for field, v := range r.Results {
			sealed[field] = append(sealed[field], sealedKey(v))
		}
	}

	var sum float64
	var fields int
	// Fields are summed in sorted order so the float result is reproducible.
	for _, field := range slices.Sorted(maps.Keys(canonical)) {
		want := distinctPairs(canonical[field])
		if want == 0 {
			continue
		}
		fields++
		got := distinctPairs(sealed[field])
		sum += min(1, float64(got)/float64(want))
	}
	if fields == 0 {
		return 1, nil
	}
	return sum / float64(fields), nil
}

func sealedKey(v ir.SealedValue) string {
	if v.Bucket != nil {
		return "b" + strconv.FormatInt(*v.Bucket, 10)
	}
	return "e" + v.Exact
}

// distinctPairs counts unordered pairs with different values.
func distinctPairs[T comparable](values []T) int {
	counts := make(map[T]int)
	for _, v := range values {
		counts[v]++
	}
	n := len(values)
	same := 0
	for _, c := range counts {
		same += c * (c - 1) / 2
	}
	return n*(n-1)/2 - same
}
