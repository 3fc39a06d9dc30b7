package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/roach88/sealbench/internal/testutil"
)

const twoConfigs = `
configs: {
	"level-0": {level: 0}
	"level-3": {
		level:   3
		buckets: 4
	}
}
`

const oneConfig = `
configs: light: {
	level:   1
	lexical: 0.3
}
`

// fixture is a workspace with a dataset, configs and a master secret.
type fixture struct {
	dir     string
	dataset string
	configs string
	config  string
	master  string
	public  string
	db      string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	dir := t.TempDir()
	f := fixture{
		dir:     dir,
		dataset: filepath.Join(dir, "dataset.yaml"),
		configs: filepath.Join(dir, "configs.cue"),
		config:  filepath.Join(dir, "light.cue"),
		master:  filepath.Join(dir, "master.key"),
		public:  filepath.Join(dir, "public"),
		db:      filepath.Join(dir, "private", "codebooks.db"),
	}

	data, err := yaml.Marshal(testutil.CorpusDataset())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(f.dataset, data, 0o644))
	require.NoError(t, os.WriteFile(f.configs, []byte(twoConfigs), 0o644))
	require.NoError(t, os.WriteFile(f.config, []byte(oneConfig), 0o644))
	require.NoError(t, os.WriteFile(f.master, append(testutil.Master, '\n'), 0o600))
	require.NoError(t, os.MkdirAll(filepath.Dir(f.db), 0o700))
	return f
}

// execute runs the root command with args and returns stdout and the error.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// decodeData unmarshals the data field of a JSON CLI response into v.
func decodeData(t *testing.T, out string, v any) CLIResponse {
	t.Helper()
	var resp struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
		Error  *CLIError       `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), "output: %s", out)
	if v != nil && len(resp.Data) > 0 {
		require.NoError(t, json.Unmarshal(resp.Data, v))
	}
	return CLIResponse{Status: resp.Status, Error: resp.Error}
}

func (f fixture) seal(t *testing.T, seed string, extra ...string) (SealResult, error) {
	t.Helper()
	args := append([]string{"--format", "json", "seal",
		"--dataset", f.dataset,
		"--config", f.config,
		"--seed", seed,
		"--out", filepath.Join(f.public, seed),
		"--db", f.db,
		"--master-file", f.master,
	}, extra...)
	out, err := execute(t, args...)
	var res SealResult
	if err == nil {
		decodeData(t, out, &res)
	}
	return res, err
}
