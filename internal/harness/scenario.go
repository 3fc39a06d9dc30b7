package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/roach88/sealbench/internal/audit"
	"github.com/roach88/sealbench/internal/ir"
	"github.com/roach88/sealbench/internal/testutil"
)

// Scenario defines a conformance scenario: one dataset sealed under every
// config and seed, audited, and checked against assertions.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Dataset is a YAML dataset file, relative to the scenario file.
	Dataset string `yaml:"dataset,omitempty"`

	// Fixture names a built-in dataset instead: chain, numeric or corpus.
	Fixture string `yaml:"fixture,omitempty"`

	// Reference is the adversary's background corpus. Defaults to the
	// sealed dataset itself.
	Reference string `yaml:"reference,omitempty"`

	// Configs are the seal configs to sweep.
	Configs []ConfigSpec `yaml:"configs"`

	// Seeds are the seeds to sweep.
	Seeds []string `yaml:"seeds"`

	// Budgets are the black-box probe budgets, ascending.
	Budgets []int `yaml:"budgets"`

	// Floor, when set, asks the pareto reporter for a recommendation at
	// this utility floor.
	Floor *float64 `yaml:"floor,omitempty"`

	// Assertions validate every run of the scenario.
	Assertions []Assertion `yaml:"assertions"`

	dataset   ir.Dataset
	reference ir.Dataset
}

// ConfigSpec is a level preset with optional overrides.
type ConfigSpec struct {
	Name       string   `yaml:"name,omitempty"`
	Level      int      `yaml:"level"`
	Identifier *float64 `yaml:"identifier,omitempty"`
	Lexical    *float64 `yaml:"lexical,omitempty"`
	Structural *float64 `yaml:"structural,omitempty"`
	Numeric    *float64 `yaml:"numeric,omitempty"`
	Buckets    *int     `yaml:"buckets,omitempty"`
	Operators  []string `yaml:"operators,omitempty"`
}

// Resolve expands the spec into a full seal config.
func (c ConfigSpec) Resolve() (ir.SealConfig, error) {
	cfg, err := ir.LevelPreset(c.Level)
	if err != nil {
		return ir.SealConfig{}, err
	}
	if c.Name != "" {
		cfg.Name = c.Name
	}
	set := func(dst *float64, v *float64) {
		if v != nil {
			*dst = *v
		}
	}
	set(&cfg.Identifier, c.Identifier)
	set(&cfg.Lexical, c.Lexical)
	set(&cfg.Structural, c.Structural)
	set(&cfg.Numeric, c.Numeric)
	if c.Buckets != nil {
		cfg.Buckets = *c.Buckets
	}
	cfg.Operators = c.Operators
	return cfg, cfg.Validate()
}

// Assertion validates the runs of a scenario.
type Assertion struct {
	// Type specifies the assertion type; see the Assert constants.
	Type string `yaml:"type"`

	// Count is the expected number (record_count, edge_count, curve_points).
	Count int `yaml:"count,omitempty"`

	// Field is the numeric result field (buckets_monotone, order_preserved).
	Field string `yaml:"field,omitempty"`

	// Kind is the expected error kind (error_kind).
	Kind string `yaml:"kind,omitempty"`
}

// Assertion type constants.
const (
	AssertRecordCount     = "record_count"
	AssertEdgeCount       = "edge_count"
	AssertDeterministic   = "deterministic"
	AssertVerifyMapping   = "verify_mapping"
	AssertVerifySwapped   = "verify_swapped_fails"
	AssertNoLeaks         = "no_leaks"
	AssertBucketsMonotone = "buckets_monotone"
	AssertOrderPreserved  = "order_preserved"
	AssertCurvePoints     = "curve_points"
	AssertCurveMonotone   = "curve_monotone"
	AssertFeasible        = "feasible"
	AssertErrorKind       = "error_kind"
)

var fixtures = map[string]func() ir.Dataset{
	"chain":   testutil.ChainDataset,
	"numeric": testutil.NumericDataset,
	"corpus":  testutil.CorpusDataset,
}

// LoadScenario reads and parses a scenario YAML file and loads its
// datasets. Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	base := filepath.Dir(path)
	if scenario.Fixture != "" {
		scenario.dataset = fixtures[scenario.Fixture]()
	} else if scenario.dataset, err = loadDataset(filepath.Join(base, scenario.Dataset)); err != nil {
		return nil, err
	}
	scenario.reference = scenario.dataset
	if scenario.Reference != "" {
		if scenario.reference, err = loadDataset(filepath.Join(base, scenario.Reference)); err != nil {
			return nil, err
		}
	}
	return &scenario, nil
}

func loadDataset(path string) (ir.Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ir.Dataset{}, fmt.Errorf("failed to read dataset: %w", err)
	}
	var ds ir.Dataset
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&ds); err != nil {
		return ir.Dataset{}, fmt.Errorf("failed to parse dataset %s: %w", path, err)
	}
	if ds.Version == "" {
		return ir.Dataset{}, fmt.Errorf("dataset %s: dataset_version is required", path)
	}
	return ds, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	switch {
	case s.Dataset == "" && s.Fixture == "":
		return fmt.Errorf("one of dataset or fixture is required")
	case s.Dataset != "" && s.Fixture != "":
		return fmt.Errorf("dataset and fixture are mutually exclusive")
	case s.Fixture != "" && fixtures[s.Fixture] == nil:
		return fmt.Errorf("unknown fixture %q", s.Fixture)
	}

	if len(s.Configs) == 0 {
		return fmt.Errorf("configs list is required and must be non-empty")
	}
	for i, c := range s.Configs {
		if _, err := c.Resolve(); err != nil {
			return fmt.Errorf("configs[%d]: %w", i, err)
		}
	}

	if len(s.Seeds) == 0 {
		return fmt.Errorf("seeds list is required and must be non-empty")
	}
	if slices.Contains(s.Seeds, "") {
		return fmt.Errorf("seeds must not be empty strings")
	}

	if err := audit.ValidateBudgets(s.Budgets); err != nil {
		return fmt.Errorf("budgets: %w", err)
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}
	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion, s); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, s *Scenario) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertRecordCount, AssertEdgeCount, AssertCurvePoints:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for %s", index, a.Type)
		}
	case AssertBucketsMonotone, AssertOrderPreserved:
		if a.Field == "" {
			return fmt.Errorf("assertions[%d]: field is required for %s", index, a.Type)
		}
	case AssertErrorKind:
		if a.Kind == "" {
			return fmt.Errorf("assertions[%d]: kind is required for error_kind", index)
		}
	case AssertFeasible:
		if s.Floor == nil {
			return fmt.Errorf("assertions[%d]: feasible needs a scenario floor", index)
		}
	case AssertDeterministic, AssertVerifyMapping, AssertVerifySwapped, AssertNoLeaks, AssertCurveMonotone:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
