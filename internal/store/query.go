package store

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/roach88/sealbench/internal/audit"
)

// validIdentifier matches valid SQL identifiers (column names).
// Only allows alphanumeric and underscore, must start with letter or underscore.
// This prevents SQL injection via identifier interpolation.
var validIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// reportOrder is the stable key every report query sorts by. The id column
// is unique, so ties never depend on insertion order.
const reportOrder = "dataset_version COLLATE BINARY ASC, seed COLLATE BINARY ASC, " +
	"threat_model COLLATE BINARY ASC, id COLLATE BINARY ASC"

// ReportQuery selects stored audit reports. Zero-valued fields match
// everything.
type ReportQuery struct {
	DatasetVersion    string
	Seed              string
	Track             string
	ThreatModel       audit.ThreatModel
	ConfigFingerprint string

	// MaxLeakage keeps reports whose headline leakage is at most this value.
	MaxLeakage *float64

	// Limit caps the number of reports returned; 0 means no cap.
	Limit int
}

// predicate is one parameterized filter term: column op ?.
type predicate struct {
	column string
	op     string
	value  any
}

func (q ReportQuery) predicates() []predicate {
	var ps []predicate
	eq := func(column, value string) {
		if value != "" {
			ps = append(ps, predicate{column: column, op: "=", value: value})
		}
	}
	eq("dataset_version", q.DatasetVersion)
	eq("seed", q.Seed)
	eq("track", q.Track)
	eq("threat_model", string(q.ThreatModel))
	eq("config_fingerprint", q.ConfigFingerprint)
	if q.MaxLeakage != nil {
		ps = append(ps, predicate{column: "leakage", op: "<=", value: *q.MaxLeakage})
	}
	return ps
}

// compile converts q to parameterized SQL. Values are always bound, never
// interpolated, and the result always carries ORDER BY.
func (q ReportQuery) compile() (string, []any, error) {
	if q.Limit < 0 {
		return "", nil, fmt.Errorf("limit must be non-negative, got %d", q.Limit)
	}
	var where []string
	var params []any
	for _, p := range q.predicates() {
		if !validIdentifier.MatchString(p.column) {
			return "", nil, fmt.Errorf("invalid column name: %q", p.column)
		}
		where = append(where, p.column+" "+p.op+" ?")
		params = append(params, p.value)
	}

	var b strings.Builder
	b.WriteString("SELECT body FROM audit_reports")
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY ")
	b.WriteString(reportOrder)
	if q.Limit > 0 {
		b.WriteString(" LIMIT ?")
		params = append(params, q.Limit)
	}
	return b.String(), params, nil
}

// QueryReports returns the reports matching q in a stable order.
func (s *Store) QueryReports(ctx context.Context, q ReportQuery) ([]audit.Report, error) {
	query, params, err := q.compile()
	if err != nil {
		return nil, fmt.Errorf("compile report query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("query reports: %w", err)
	}
	return scanReports(rows)
}
