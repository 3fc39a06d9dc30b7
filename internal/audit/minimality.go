package audit

import (
	"maps"
	"slices"
	"strings"

	"github.com/roach88/sealbench/internal/codebook"
	"github.com/roach88/sealbench/internal/ir"
)

// Leak locates a canonical key found verbatim in a published field. It names
// the alias whose key leaked, never the key itself.
type Leak struct {
	LeakedAlias string `json:"leaked_alias"`
	Record      string `json:"record"`
	Field       string `json:"field"`
}

// KeyResolver resolves aliases through the codebook store.
type KeyResolver interface {
	Lookup(cb *codebook.Codebook, alias string) (string, error)
}

// CheckMinimality scans every field of world for any canonical key held by
// cb. An empty result means no identifier mapping value is published.
func CheckMinimality(r KeyResolver, world *ir.SealedWorld, cb *codebook.Codebook) ([]Leak, error) {
	type secret struct{ alias, key string }
	var secrets []secret
	for _, alias := range cb.Aliases() {
		key, err := r.Lookup(cb, alias)
		if err != nil {
			return nil, err
		}
		secrets = append(secrets, secret{alias, key})
	}

	var leaks []Leak
	check := func(record, field, text string) {
		for _, s := range secrets {
			if strings.Contains(text, s.key) {
				leaks = append(leaks, Leak{LeakedAlias: s.alias, Record: record, Field: field})
			}
		}
	}
	check("", "dataset_version", world.DatasetVersion)
	check("", "track", world.Track)
	for _, rec := range world.Records {
		check(rec.Alias, "alias", rec.Alias)
		check(rec.Alias, "title", rec.Title)
		check(rec.Alias, "description", rec.Description)
		for _, tag := range rec.Tags {
			check(rec.Alias, "tags", tag)
		}
		for _, dep := range rec.Dependencies {
			check(rec.Alias, "dependencies", dep)
		}
		for _, field := range slices.Sorted(maps.Keys(rec.Results)) {
			check(rec.Alias, "results", field)
			check(rec.Alias, "results."+field, rec.Results[field].Exact)
		}
	}
	for _, e := range world.Edges {
		check(e.From, "edges", e.From+" "+e.To+" "+e.Type)
	}
	return leaks, nil
}
