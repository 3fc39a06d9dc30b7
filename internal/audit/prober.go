package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/sealbench/internal/ir"
)

// Variant selects how a probe query is built from a sealed record.
type Variant string

const (
	// VariantDescription queries with the sealed description alone.
	VariantDescription Variant = "description"
	// VariantDescriptionTags adds the record's tags.
	VariantDescriptionTags Variant = "description+tags"
	// VariantContext uses title, tags and the descriptions of graph
	// neighbours.
	VariantContext Variant = "context"
)

// Variants is the round-robin order of the adversary plan.
var Variants = []Variant{VariantDescription, VariantDescriptionTags, VariantContext}

// Query is one probe against the system under evaluation.
type Query struct {
	Alias   string  `json:"alias"`
	Variant Variant `json:"variant"`
	Text    string  `json:"text"`
}

// Candidate is a ranked guess at the canonical key behind a query.
type Candidate struct {
	Key   string  `json:"key"`
	Score float64 `json:"score"`
}

// Prober is the target system: a model under evaluation or a retrieval
// proxy standing in for it. Candidates are ordered best first.
type Prober interface {
	Probe(ctx context.Context, q Query) ([]Candidate, error)
}

// ProbePolicy bounds each external call.
type ProbePolicy struct {
	// Timeout applies to a single attempt. Zero means no per-call limit.
	Timeout time.Duration
	// Retries is the number of extra attempts after a failure.
	Retries int
	// Backoff is the delay before the first retry; it doubles each time.
	Backoff time.Duration
}

// DefaultProbePolicy is used when none is configured.
var DefaultProbePolicy = ProbePolicy{Timeout: 10 * time.Second, Retries: 2, Backoff: 250 * time.Millisecond}

// RetrievalProxy is a BM25 index over reference records: the adversary's
// background knowledge of the real literature.
type RetrievalProxy struct {
	index *bm25Index
	limit int
}

// NewRetrievalProxy indexes reference. Title and description weigh twice as
// much as tags.
func NewRetrievalProxy(reference []ir.PaperRecord, limit int) *RetrievalProxy {
	docs := make([]document, len(reference))
	for i, r := range reference {
		docs[i] = document{
			Name: r.CanonicalKey,
			Fields: []field{
				{Text: r.Title, Weight: 2},
				{Text: r.Description, Weight: 2},
				{Text: joinFields(r.Tags), Weight: 1},
			},
		}
	}
	if limit <= 0 {
		limit = 5
	}
	return &RetrievalProxy{index: newBM25(docs), limit: limit}
}

// Probe implements Prober.
func (p *RetrievalProxy) Probe(ctx context.Context, q Query) ([]Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	hits := p.index.search(q.Text, p.limit)
	out := make([]Candidate, len(hits))
	for i, h := range hits {
		out[i] = Candidate{Key: h.Name, Score: h.Score}
	}
	return out, nil
}

// probe calls the prober under policy. Parent context cancellation stops
// retries immediately.
func (a *Auditor) probe(ctx context.Context, q Query) ([]Candidate, error) {
	attempts := a.policy.Retries + 1
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			backoff := a.policy.Backoff << (attempt - 1)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		cands, err := a.probeOnce(ctx, q)
		if err == nil {
			return cands, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
		a.logger.Warn("probe failed, retrying",
			"alias", q.Alias,
			"variant", string(q.Variant),
			"attempt", attempt+1,
			"error", err,
		)
	}
	return nil, fmt.Errorf("probe %s/%s: %d attempts: %w", q.Alias, q.Variant, attempts, lastErr)
}

func (a *Auditor) probeOnce(ctx context.Context, q Query) ([]Candidate, error) {
	if a.policy.Timeout <= 0 {
		return a.prober.Probe(ctx, q)
	}
	callCtx, cancel := context.WithTimeout(ctx, a.policy.Timeout)
	defer cancel()
	cands, err := a.prober.Probe(callCtx, q)
	if err == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return nil, callCtx.Err()
	}
	return cands, err
}
