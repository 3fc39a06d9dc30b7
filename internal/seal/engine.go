package seal

import (
	"bytes"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"

	"github.com/roach88/sealbench/internal/codebook"
	"github.com/roach88/sealbench/internal/ir"
)

// SkippedRecord is one record dropped by the skip path.
type SkippedRecord struct {
	CanonicalKey string `json:"canonical_key"`
	Reason       string `json:"reason"`
}

// Report describes what a sealing run accepted and dropped.
type Report struct {
	Total        int             `json:"total"`
	Sealed       int             `json:"sealed"`
	Skipped      []SkippedRecord `json:"skipped,omitempty"`
	DroppedEdges int             `json:"dropped_edges"`
}

// SkipRate is skipped records over input records.
func (r Report) SkipRate() float64 {
	if r.Total == 0 {
		return 0
	}
	return float64(len(r.Skipped)) / float64(r.Total)
}

// Engine seals datasets. It holds the master secret and is safe for
// concurrent use: Seal shares no mutable state between calls.
type Engine struct {
	master []byte
	logger *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the structured logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// New creates an Engine. master is the root secret every per-seed key is
// derived from; it is copied.
func New(master []byte, opts ...Option) (*Engine, error) {
	if len(master) < MinMasterSize {
		return nil, ir.Errorf(ir.KindSealConfig, "master", "master secret must be at least %d bytes, got %d", MinMasterSize, len(master))
	}
	e := &Engine{
		master: slices.Clone(master),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// SeedString formats an integer seed the way every component expects.
func SeedString(n int64) string {
	return strconv.FormatInt(n, 10)
}

// Seal transforms ds under cfg and seed into a public world and a private
// codebook. Config errors and cycles abort before any transformation.
// Invalid records are skipped and logged unless the skip rate exceeds
// cfg.SkipThreshold.
func (e *Engine) Seal(ds ir.Dataset, cfg ir.SealConfig, seed string) (*ir.SealedWorld, *codebook.Codebook, Report, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, Report{}, err
	}
	if seed == "" {
		return nil, nil, Report{}, ir.Errorf(ir.KindSealConfig, "seed", "seed must not be empty")
	}

	records, graph, rep := e.admit(ds)
	if rep.SkipRate() > cfg.SkipThreshold {
		err := ir.Errorf(ir.KindInvalidRecord, ds.Version, "%d of %d records invalid, above skip threshold %v",
			len(rep.Skipped), rep.Total, cfg.SkipThreshold)
		err.Details = map[string]string{"first_skipped": rep.Skipped[0].CanonicalKey, "reason": rep.Skipped[0].Reason}
		return nil, nil, rep, err
	}
	topo, err := graph.TopoOrder()
	if err != nil {
		return nil, nil, rep, err
	}

	keys, err := deriveKeys(e.master, ds.Version, seed)
	if err != nil {
		return nil, nil, rep, err
	}

	w := newWorking(cfg, records, graph, topo, keys.digest)
	for _, k := range ir.OperatorOrder {
		if !cfg.Enabled(k) {
			continue
		}
		op := operatorFor(k)
		if err := op.apply(w, cfg.Strength(k), keys.forOperator(op.kind())); err != nil {
			return nil, nil, rep, fmt.Errorf("%s sealing: %w", k, err)
		}
	}
	if !cfg.Enabled(ir.OpStructural) {
		w.edges = w.aliasEdges(graph.Edges)
	}
	if !cfg.Enabled(ir.OpNumeric) {
		exactResults(w)
	}

	world := w.world(ds, cfg, seed)
	cb, err := codebook.New(
		codebook.ID{DatasetVersion: ds.Version, Seed: seed},
		ds.Track,
		cfg,
		w.identifierMap(),
		codebook.Material{IdentifierKey: keys.identifier, DigestKey: keys.digest, Digests: w.digests},
	)
	if err != nil {
		return nil, nil, rep, err
	}
	rep.Sealed = len(world.Records)

	e.logger.Debug("dataset sealed",
		"dataset_version", ds.Version,
		"track", ds.Track,
		"seed", seed,
		"config", cfg.Name,
		"records", rep.Sealed,
		"skipped", len(rep.Skipped),
		"edges", len(world.Edges),
	)
	return world, cb, rep, nil
}

// SealChecked seals twice and fails with NON_DETERMINISTIC_OUTPUT if the
// two runs disagree on any byte of the world or the codebook.
func (e *Engine) SealChecked(ds ir.Dataset, cfg ir.SealConfig, seed string) (*ir.SealedWorld, *codebook.Codebook, Report, error) {
	world, cb, rep, err := e.Seal(ds, cfg, seed)
	if err != nil {
		return nil, nil, rep, err
	}
	again, cbAgain, _, err := e.Seal(ds, cfg, seed)
	if err != nil {
		return nil, nil, rep, err
	}
	if err := sameBytes("world", world.CanonicalBytes, again.CanonicalBytes); err != nil {
		return nil, nil, rep, err
	}
	if err := sameBytes("codebook", cb.CanonicalBytes, cbAgain.CanonicalBytes); err != nil {
		return nil, nil, rep, err
	}
	return world, cb, rep, nil
}

func sameBytes(subject string, a, b func() ([]byte, error)) error {
	first, err := a()
	if err != nil {
		return err
	}
	second, err := b()
	if err != nil {
		return err
	}
	if !bytes.Equal(first, second) {
		return ir.Errorf(ir.KindNonDeterministic, subject, "re-sealing identical input produced different bytes")
	}
	return nil
}

// admit validates records and the graph. It returns the accepted records
// sorted by canonical key and the graph restricted to them. A record is
// skipped when it fails validation, repeats a canonical key, or depends on a
// key that is not in the dataset, whether the dependency is listed on the
// record or declared in the graph. A declared graph node without a record is
// reported on the skip path too. Edges touching a skipped record are dropped
// with it.
func (e *Engine) admit(ds ir.Dataset) ([]ir.PaperRecord, ir.DependencyGraph, Report) {
	rep := Report{Total: len(ds.Records)}
	skip := func(key, reason string) {
		rep.Skipped = append(rep.Skipped, SkippedRecord{CanonicalKey: key, Reason: reason})
		e.logger.Warn("record skipped",
			"dataset_version", ds.Version,
			"canonical_key", key,
			"reason", reason,
		)
	}

	present := make(map[string]bool, len(ds.Records))
	for _, r := range ds.Records {
		present[r.CanonicalKey] = true
	}

	accepted := make(map[string]ir.PaperRecord, len(ds.Records))
	for _, r := range ds.Records {
		if err := r.Validate(); err != nil {
			skip(r.CanonicalKey, err.Error())
			continue
		}
		if _, dup := accepted[r.CanonicalKey]; dup {
			skip(r.CanonicalKey, "duplicate canonical_key")
			continue
		}
		if i := slices.IndexFunc(r.Dependencies, func(dep string) bool { return !present[dep] }); i >= 0 {
			skip(r.CanonicalKey, fmt.Sprintf("dangling dependency %q", r.Dependencies[i]))
			continue
		}
		accepted[r.CanonicalKey] = r
	}

	full := ds.ResolveGraph()
	orphans := make(map[string]bool)
	orphan := func(key string) {
		if !orphans[key] {
			orphans[key] = true
			skip(key, "graph node has no record")
		}
	}
	for _, n := range full.Nodes {
		if !present[n] {
			orphan(n)
		}
	}
	for _, edge := range full.Edges {
		if !present[edge.From] {
			orphan(edge.From)
		}
		if present[edge.To] {
			continue
		}
		if _, ok := accepted[edge.From]; ok {
			skip(edge.From, fmt.Sprintf("dangling dependency %q", edge.To))
			delete(accepted, edge.From)
		} else if !present[edge.From] {
			orphan(edge.To)
		}
	}

	var g ir.DependencyGraph
	for key := range accepted {
		g.Nodes = append(g.Nodes, key)
	}
	for _, edge := range full.Edges {
		_, fromOK := accepted[edge.From]
		_, toOK := accepted[edge.To]
		if fromOK && toOK {
			g.Edges = append(g.Edges, edge)
		} else {
			rep.DroppedEdges++
		}
	}
	g = g.Normalize()

	records := make([]ir.PaperRecord, 0, len(g.Nodes))
	for _, key := range g.Nodes {
		records = append(records, accepted[key])
	}
	return records, g, rep
}

// world assembles the public artifact. Records are ordered by alias so that
// their order carries no trace of the canonical order.
func (w *working) world(ds ir.Dataset, cfg ir.SealConfig, seed string) *ir.SealedWorld {
	edges := ir.DependencyGraph{Edges: w.edges}.Normalize().Edges
	byAlias := make(map[string]int, len(w.out))
	for i, r := range w.out {
		byAlias[r.Alias] = i
	}
	for _, e := range edges {
		i := byAlias[e.From]
		w.out[i].Dependencies = append(w.out[i].Dependencies, e.To)
	}

	records := slices.Clone(w.out)
	for i := range records {
		slices.Sort(records[i].Tags)
		records[i].Tags = slices.Compact(records[i].Tags)
		slices.Sort(records[i].Dependencies)
	}
	slices.SortFunc(records, func(a, b ir.SealedRecord) int {
		return strings.Compare(a.Alias, b.Alias)
	})

	return &ir.SealedWorld{
		FormatVersion:     ir.FormatVersion,
		DatasetVersion:    ds.Version,
		Track:             ds.Track,
		Seed:              seed,
		ConfigFingerprint: cfg.Fingerprint(),
		Records:           records,
		Edges:             edges,
	}
}
