package ir

import "fmt"

// SealedValue is a sealed numeric field: a bucket index, or the exact
// decimal string when numeric sealing is off.
type SealedValue struct {
	Bucket *int64 `json:"bucket,omitempty"`
	Exact  string `json:"exact,omitempty"`
}

// BucketValue returns a SealedValue holding bucket b.
func BucketValue(b int64) SealedValue {
	return SealedValue{Bucket: &b}
}

func (v SealedValue) canonical() Object {
	if v.Bucket != nil {
		return Object{"bucket": Int(*v.Bucket)}
	}
	return Object{"exact": Str(v.Exact)}
}

// SealedRecord is the public form of a PaperRecord.
type SealedRecord struct {
	Alias        string                 `json:"alias"`
	Title        string                 `json:"title,omitempty"`
	Description  string                 `json:"description"`
	Tags         []string               `json:"tags,omitempty"`
	Dependencies []string               `json:"dependencies,omitempty"`
	Results      map[string]SealedValue `json:"results,omitempty"`
}

func (r SealedRecord) canonical() Object {
	obj := Object{
		"alias":        Str(r.Alias),
		"description":  Str(r.Description),
		"tags":         Strs(r.Tags),
		"dependencies": Strs(r.Dependencies),
	}
	if r.Title != "" {
		obj["title"] = Str(r.Title)
	}
	results := make(Object, len(r.Results))
	for k, v := range r.Results {
		results[k] = v.canonical()
	}
	obj["results"] = results
	return obj
}

// SealedWorld is the public artifact for one (dataset_version, seed, config).
// It is immutable once produced; re-sealing yields a new instance.
type SealedWorld struct {
	FormatVersion     string         `json:"format_version"`
	DatasetVersion    string         `json:"dataset_version"`
	Track             string         `json:"track"`
	Seed              string         `json:"seed"`
	ConfigFingerprint string         `json:"config_fingerprint"`
	Records           []SealedRecord `json:"records"`
	Edges             []Edge         `json:"edges"`
}

// Canonical returns the canonical object form.
func (w *SealedWorld) Canonical() Object {
	records := make(List, len(w.Records))
	for i, r := range w.Records {
		records[i] = r.canonical()
	}
	edges := make(List, len(w.Edges))
	for i, e := range w.Edges {
		edges[i] = Object{"from": Str(e.From), "to": Str(e.To), "type": Str(e.Type)}
	}
	return Object{
		"format_version":     Str(w.FormatVersion),
		"dataset_version":    Str(w.DatasetVersion),
		"track":              Str(w.Track),
		"seed":               Str(w.Seed),
		"config_fingerprint": Str(w.ConfigFingerprint),
		"records":            records,
		"edges":              edges,
	}
}

// CanonicalBytes is the exact published byte sequence (without trailing
// newline).
func (w *SealedWorld) CanonicalBytes() ([]byte, error) {
	data, err := MarshalCanonical(w.Canonical())
	if err != nil {
		return nil, fmt.Errorf("sealed world: %w", err)
	}
	return data, nil
}

// Hash is the domain-separated content hash of CanonicalBytes.
func (w *SealedWorld) Hash() (string, error) {
	data, err := w.CanonicalBytes()
	if err != nil {
		return "", err
	}
	return HashWithDomain(DomainWorld, data), nil
}

// Graph returns the sealed dependency graph over aliases.
func (w *SealedWorld) Graph() DependencyGraph {
	g := DependencyGraph{Edges: w.Edges}
	for _, r := range w.Records {
		g.Nodes = append(g.Nodes, r.Alias)
	}
	return g.Normalize()
}

// Aliases returns every sealed identifier in record order.
func (w *SealedWorld) Aliases() []string {
	out := make([]string, len(w.Records))
	for i, r := range w.Records {
		out[i] = r.Alias
	}
	return out
}

// Record returns the sealed record with the given alias.
func (w *SealedWorld) Record(alias string) (SealedRecord, bool) {
	for _, r := range w.Records {
		if r.Alias == alias {
			return r, true
		}
	}
	return SealedRecord{}, false
}
