package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sealbench/internal/ir"
)

func writeScenario(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadScenario_Valid(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/chain_level2.yaml")
	require.NoError(t, err)

	assert.Equal(t, "chain_level2", scenario.Name)
	assert.Equal(t, []string{"42"}, scenario.Seeds)
	assert.Equal(t, []int{8, 16, 32}, scenario.Budgets)
	assert.Equal(t, "chain-v1", scenario.dataset.Version)
	assert.Len(t, scenario.dataset.Records, 3)
	assert.Equal(t, scenario.dataset, scenario.reference, "reference defaults to the dataset")
	require.Len(t, scenario.Assertions, 6)
	assert.Equal(t, AssertRecordCount, scenario.Assertions[0].Type)
	assert.Equal(t, 3, scenario.Assertions[0].Count)
}

func TestLoadScenario_Fixture(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/numeric_buckets.yaml")
	require.NoError(t, err)
	assert.Equal(t, "numeric-v1", scenario.dataset.Version)

	cfg, err := scenario.Configs[0].Resolve()
	require.NoError(t, err)
	assert.Equal(t, "numeric-half", cfg.Name)
	assert.Equal(t, 0.5, cfg.Numeric)
	assert.Equal(t, 5, cfg.Buckets)
	assert.Equal(t, 0.5, cfg.Lexical, "unset strengths keep the level preset")
}

func TestLoadScenario_Reference(t *testing.T) {
	dir := t.TempDir()
	ref := filepath.Join(dir, "ref.yaml")
	require.NoError(t, os.WriteFile(ref, []byte("dataset_version: ref-v1\ntrack: main\nrecords: []\n"), 0o644))
	path := filepath.Join(dir, "s.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`name: s
description: d
fixture: chain
reference: ref.yaml
configs: [{level: 0}]
seeds: ["1"]
budgets: [1]
assertions: [{type: deterministic}]
`), 0o644))

	scenario, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, "chain-v1", scenario.dataset.Version)
	assert.Equal(t, "ref-v1", scenario.reference.Version)
}

func TestLoadScenario_Errors(t *testing.T) {
	const valid = `name: s
description: d
fixture: chain
configs: [{level: 1}]
seeds: ["1"]
budgets: [4]
`
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"missing name", "description: d\n", "name is required"},
		{"missing description", "name: s\n", "description is required"},
		{"no dataset", "name: s\ndescription: d\n", "one of dataset or fixture"},
		{"both datasets", "name: s\ndescription: d\nfixture: chain\ndataset: x.yaml\n", "mutually exclusive"},
		{"unknown fixture", "name: s\ndescription: d\nfixture: nope\n", `unknown fixture "nope"`},
		{"no configs", "name: s\ndescription: d\nfixture: chain\n", "configs list is required"},
		{"bad level", "name: s\ndescription: d\nfixture: chain\nconfigs: [{level: 9}]\n", "configs[0]"},
		{"bad strength", "name: s\ndescription: d\nfixture: chain\nconfigs: [{level: 1, lexical: 2}]\n", "configs[0]"},
		{"no seeds", "name: s\ndescription: d\nfixture: chain\nconfigs: [{level: 1}]\n", "seeds list is required"},
		{"empty seed", "name: s\ndescription: d\nfixture: chain\nconfigs: [{level: 1}]\nseeds: [\"\"]\n", "empty strings"},
		{"descending budgets", "name: s\ndescription: d\nfixture: chain\nconfigs: [{level: 1}]\nseeds: [\"1\"]\nbudgets: [8, 4]\n", "budgets"},
		{"no assertions", valid, "assertions list is required"},
		{"unknown assertion", valid + "assertions: [{type: vibes}]\n", `unknown assertion type "vibes"`},
		{"field missing", valid + "assertions: [{type: order_preserved}]\n", "field is required"},
		{"kind missing", valid + "assertions: [{type: error_kind}]\n", "kind is required"},
		{"feasible without floor", valid + "assertions: [{type: feasible}]\n", "needs a scenario floor"},
		{"unknown field", valid + "assertion: []\n", "failed to parse YAML"},
		{"missing dataset file", "name: s\ndescription: d\ndataset: nope.yaml\nconfigs: [{level: 1}]\nseeds: [\"1\"]\nbudgets: [4]\nassertions: [{type: deterministic}]\n", "failed to read dataset"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadScenario(writeScenario(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadScenario_FileNotFound(t *testing.T) {
	_, err := LoadScenario("testdata/scenarios/does-not-exist.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestConfigSpec_Resolve(t *testing.T) {
	buckets := 8
	off := 0.0
	cfg, err := ConfigSpec{Level: 3, Buckets: &buckets, Structural: &off, Operators: []string{"identifier", "numeric"}}.Resolve()
	require.NoError(t, err)
	assert.Equal(t, "level-3", cfg.Name)
	assert.Equal(t, 8, cfg.Buckets)
	assert.Equal(t, 0.0, cfg.Structural)
	assert.Equal(t, 1.0, cfg.Numeric)
	assert.False(t, cfg.Enabled(ir.OpLexical))

	_, err = ConfigSpec{Level: 1, Operators: []string{"bogus"}}.Resolve()
	assert.True(t, ir.IsKind(err, ir.KindSealConfig))
}
