package ir

import (
	"math"
	"slices"
	"strings"
)

// PaperRecord is one canonical research-history record as delivered by the
// upstream source. Records are immutable once produced.
type PaperRecord struct {
	CanonicalKey string             `json:"canonical_key" yaml:"canonical_key"`
	Title        string             `json:"title,omitempty" yaml:"title,omitempty"`
	Description  string             `json:"description" yaml:"description"`
	Tags         []string           `json:"tags,omitempty" yaml:"tags,omitempty"`
	Dependencies []string           `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	Results      map[string]float64 `json:"results,omitempty" yaml:"results,omitempty"`
}

// Validate reports missing required fields as KindInvalidRecord.
func (r PaperRecord) Validate() error {
	if strings.TrimSpace(r.CanonicalKey) == "" {
		return Errorf(KindInvalidRecord, "", "record has no canonical_key")
	}
	if strings.TrimSpace(r.Description) == "" {
		return Errorf(KindInvalidRecord, r.CanonicalKey, "record has no description")
	}
	for _, field := range r.ResultFields() {
		if v := r.Results[field]; math.IsNaN(v) || math.IsInf(v, 0) {
			return Errorf(KindInvalidRecord, r.CanonicalKey, "result %q is not a finite number", field)
		}
	}
	return nil
}

// PrimaryTag is the lexicographically smallest mechanism tag, or "" when the
// record is untagged. It names the record's structural equivalence class.
func (r PaperRecord) PrimaryTag() string {
	if len(r.Tags) == 0 {
		return ""
	}
	return slices.Min(r.Tags)
}

// ResultFields returns the record's numeric field names in sorted order.
func (r PaperRecord) ResultFields() []string {
	fields := make([]string, 0, len(r.Results))
	for k := range r.Results {
		fields = append(fields, k)
	}
	slices.Sort(fields)
	return fields
}

// Dataset is the input boundary: an ordered record sequence plus its
// dependency graph, tagged with version and track. The upstream source
// has already deduplicated and canonicalized it.
type Dataset struct {
	Version string           `json:"dataset_version" yaml:"dataset_version"`
	Track   string           `json:"track" yaml:"track"`
	Records []PaperRecord    `json:"records" yaml:"records"`
	Graph   *DependencyGraph `json:"graph,omitempty" yaml:"graph,omitempty"`
}

// ResolveGraph returns the declared graph, or one derived from the records'
// dependency references when none was declared.
func (d Dataset) ResolveGraph() DependencyGraph {
	if d.Graph != nil {
		return d.Graph.Normalize()
	}
	return GraphFromRecords(d.Records)
}

// Index maps canonical keys to records.
func Index(records []PaperRecord) map[string]PaperRecord {
	out := make(map[string]PaperRecord, len(records))
	for _, r := range records {
		out[r.CanonicalKey] = r
	}
	return out
}
