package seal

import (
	"cmp"
	"fmt"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sealbench/internal/codebook"
	"github.com/roach88/sealbench/internal/ir"
	"github.com/roach88/sealbench/internal/testutil"
)

func TestNumeric_BucketsPreserveOrder(t *testing.T) {
	ds := testutil.NumericDataset()
	cfg := testutil.Config(2)
	cfg.Numeric = 0.5
	cfg.Buckets = 5

	sealed := sealedByKey(t, ds, cfg, "42")
	require.Len(t, sealed, 10)

	type pair struct {
		value  float64
		bucket int64
	}
	var pairs []pair
	for _, r := range ds.Records {
		v := sealed[r.CanonicalKey].Results["score"]
		require.NotNil(t, v.Bucket, r.CanonicalKey)
		assert.Empty(t, v.Exact)
		pairs = append(pairs, pair{r.Results["score"], *v.Bucket})
	}
	slices.SortFunc(pairs, func(a, b pair) int { return cmp.Compare(a.value, b.value) })

	assert.Equal(t, int64(0), pairs[0].bucket)
	assert.Equal(t, int64(4), pairs[len(pairs)-1].bucket)
	for i := 1; i < len(pairs); i++ {
		assert.LessOrEqual(t, pairs[i-1].bucket, pairs[i].bucket,
			"%v -> %d but %v -> %d", pairs[i-1].value, pairs[i-1].bucket, pairs[i].value, pairs[i].bucket)
	}
	for i := range pairs {
		for j := range pairs {
			if pairs[i].bucket < pairs[j].bucket {
				assert.Less(t, pairs[i].value, pairs[j].value)
			}
		}
	}
}

func TestBucketBoundaries_StrictlyMonotonic(t *testing.T) {
	values := make([]float64, 100)
	for i := range values {
		values[i] = float64(i + 1)
	}
	for _, strength := range []float64{0.1, 0.5, 1} {
		for _, buckets := range []int{2, 5, 10, 50} {
			for f := range 20 {
				field := fmt.Sprintf("field-%d", f)
				b := BucketBoundaries(values, buckets, strength, testutil.Master[:32], field)
				require.Len(t, b, buckets-1)
				width := 99.0 / float64(buckets)
				for i := range b {
					nominal := 1 + float64(i+1)*width
					assert.LessOrEqual(t, b[i]-nominal, strength*width/2+1e-9)
					assert.GreaterOrEqual(t, b[i]-nominal, -strength*width/2-1e-9)
					if i > 0 {
						assert.Less(t, b[i-1], b[i], "strength=%v buckets=%d %s", strength, buckets, field)
					}
				}
			}
		}
	}
}

func TestBucketBoundaries_Degenerate(t *testing.T) {
	assert.Nil(t, BucketBoundaries(nil, 5, 0.5, testutil.Master[:32], "f"))
	assert.Nil(t, BucketBoundaries([]float64{3, 3, 3}, 5, 0.5, testutil.Master[:32], "f"))
	assert.Nil(t, BucketBoundaries([]float64{1, 2}, 1, 0.5, testutil.Master[:32], "f"))
	assert.Equal(t, 0, Bucket(nil, 42))
}

func TestBucket_Monotone(t *testing.T) {
	bounds := []float64{10, 20, 30}
	assert.Equal(t, 0, Bucket(bounds, 5))
	assert.Equal(t, 1, Bucket(bounds, 10))
	assert.Equal(t, 1, Bucket(bounds, 19.9))
	assert.Equal(t, 3, Bucket(bounds, 30))
	assert.Equal(t, 3, Bucket(bounds, 1e9))
}

func TestNumeric_ZeroStrengthIsExact(t *testing.T) {
	ds := testutil.NumericDataset()
	cfg := testutil.Config(0)
	for key, r := range sealedByKey(t, ds, cfg, "1") {
		v := r.Results["score"]
		assert.Nil(t, v.Bucket)
		assert.Equal(t, codebook.FormatNumber(ir.Index(ds.Records)[key].Results["score"]), v.Exact)
	}
}
