package seal

import (
	"slices"
	"sort"

	"github.com/roach88/sealbench/internal/codebook"
	"github.com/roach88/sealbench/internal/ir"
)

type numericOp struct{}

func (numericOp) kind() ir.OperatorKind { return ir.OpNumeric }

// apply buckets every result field. At strength 0 values are published
// exactly, as shortest decimal strings.
func (numericOp) apply(w *working, strength float64, key []byte) error {
	values := make(map[string][]float64)
	for _, r := range w.records {
		for field, v := range r.Results {
			values[field] = append(values[field], v)
		}
	}
	bounds := make(map[string][]float64, len(values))
	if strength > 0 {
		for field, vs := range values {
			bounds[field] = BucketBoundaries(vs, w.cfg.Buckets, strength, key, field)
		}
	}

	for i, r := range w.records {
		if len(r.Results) == 0 {
			continue
		}
		alias := w.out[i].Alias
		results := make(map[string]ir.SealedValue, len(r.Results))
		for field, v := range r.Results {
			w.digests.Numeric[codebook.NumericKey(alias, field)] = codebook.NumericDigest(w.digestKey, alias, field, v)
			if strength == 0 {
				results[field] = ir.SealedValue{Exact: codebook.FormatNumber(v)}
				continue
			}
			results[field] = ir.BucketValue(int64(Bucket(bounds[field], v)))
		}
		w.out[i].Results = results
	}
	return nil
}

// exactResults publishes every value unchanged; used when the numeric
// operator is disabled.
func exactResults(w *working) {
	for i, r := range w.records {
		if len(r.Results) == 0 {
			continue
		}
		results := make(map[string]ir.SealedValue, len(r.Results))
		for field, v := range r.Results {
			results[field] = ir.SealedValue{Exact: codebook.FormatNumber(v)}
		}
		w.out[i].Results = results
	}
}

// BucketBoundaries returns the buckets-1 interior boundaries of equal-width
// buckets over [min(values), max(values)], each moved by a keyed offset in
// [-strength*width/2, strength*width/2). Consecutive offsets differ by less
// than one width, so the boundaries are strictly increasing whenever the
// range is non-empty. A degenerate range yields no boundaries.
func BucketBoundaries(values []float64, buckets int, strength float64, key []byte, field string) []float64 {
	if len(values) == 0 || buckets < 2 {
		return nil
	}
	lo, hi := slices.Min(values), slices.Max(values)
	if hi <= lo {
		return nil
	}
	width := (hi - lo) / float64(buckets)
	rng := newRand(key, "numeric", field)
	out := make([]float64, buckets-1)
	for i := range out {
		jitter := (2*rng.Float64() - 1) * strength * width / 2
		out[i] = lo + float64(i+1)*width + jitter
	}
	return out
}

// Bucket is the number of boundaries at or below v: 0 for the lowest bucket.
// It is monotone non-decreasing in v.
func Bucket(bounds []float64, v float64) int {
	return sort.Search(len(bounds), func(i int) bool { return bounds[i] > v })
}
