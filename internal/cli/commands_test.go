package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"filippo.io/age"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sealbench/internal/codebook"
	"github.com/roach88/sealbench/internal/export"
	"github.com/roach88/sealbench/internal/ir"
	"github.com/roach88/sealbench/internal/store"
)

func TestSeal_WritesPublicAndPrivateSides(t *testing.T) {
	f := newFixture(t)

	res, err := f.seal(t, "42")
	require.NoError(t, err)
	assert.Equal(t, 12, res.Records+res.Skipped)
	assert.Equal(t, "light", res.Config)
	assert.Equal(t, "corpus-v1@42", res.Codebook)

	world, err := export.ReadWorld(res.World)
	require.NoError(t, err)
	hash, err := world.Hash()
	require.NoError(t, err)
	assert.Equal(t, res.WorldHash, hash)

	entries, err := os.ReadDir(filepath.Dir(res.World))
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{export.WorldFile, export.ManifestFile}, names)

	db, err := store.Open(f.db)
	require.NoError(t, err)
	defer db.Close()
	ids, err := db.CodebookIDs(t.Context(), "corpus-v1")
	require.NoError(t, err)
	assert.Equal(t, []codebook.ID{{DatasetVersion: "corpus-v1", Seed: "42"}}, ids)
	m, err := db.ReadManifest(t.Context(), res.WorldID)
	require.NoError(t, err)
	assert.Equal(t, res.CID, m.CID)
}

func TestSeal_CodebookIsWriteOnce(t *testing.T) {
	f := newFixture(t)

	_, err := f.seal(t, "42")
	require.NoError(t, err)

	_, err = f.seal(t, "42")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.True(t, ir.IsKind(err, ir.KindCodebookExists))
}

func TestSeal_EncryptedEnvelope(t *testing.T) {
	f := newFixture(t)
	id, err := age.GenerateX25519Identity()
	require.NoError(t, err)

	res, err := f.seal(t, "7", "--recipient", id.Recipient().String())
	require.NoError(t, err)
	require.NotEmpty(t, res.Envelope)
	assert.Equal(t, filepath.Dir(f.db), filepath.Dir(res.Envelope))
	assert.True(t, codebook.IsCodebookName(res.Envelope))

	env, err := os.ReadFile(res.Envelope)
	require.NoError(t, err)
	assert.True(t, codebook.ContainsMarker(env))
	cb, err := codebook.Import(env, id)
	require.NoError(t, err)
	assert.Equal(t, "7", cb.Seed())
	assert.Positive(t, cb.Len())
}

func TestSeal_RefusesPrivateDirInsidePublic(t *testing.T) {
	f := newFixture(t)
	id, err := age.GenerateX25519Identity()
	require.NoError(t, err)

	_, err = f.seal(t, "7",
		"--recipient", id.Recipient().String(),
		"--private-dir", filepath.Join(f.public, "7", "keys"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestSeal_CommandErrors(t *testing.T) {
	f := newFixture(t)

	_, err := execute(t, "seal", "--dataset", f.dataset, "--config", f.configs, "--seed", "1",
		"--out", f.public, "--db", f.db, "--master-file", f.master)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err), "ambiguous config file")

	_, err = execute(t, "seal", "--dataset", f.dataset, "--config", f.config, "--seed", "1",
		"--out", f.public, "--db", f.db, "--master-file", filepath.Join(f.dir, "nope"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = execute(t, "seal", "--dataset", f.dataset)
	require.Error(t, err, "required flags")
}

func TestAudit_EndToEnd(t *testing.T) {
	f := newFixture(t)
	res, err := f.seal(t, "42")
	require.NoError(t, err)

	out, err := execute(t, "--format", "json", "audit",
		"--world", res.World,
		"--db", f.db,
		"--reference", f.dataset,
		"--budgets", "6,12,36",
	)
	require.NoError(t, err, out)

	var got AuditResult
	resp := decodeData(t, out, &got)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "reported", got.Stage)
	assert.Equal(t, res.WorldHash, got.WorldHash)
	require.Len(t, got.Curve, 3)
	for i := 1; i < len(got.Curve); i++ {
		assert.GreaterOrEqual(t, got.Curve[i].SuccessRate, got.Curve[i-1].SuccessRate)
	}
	assert.Empty(t, got.Leaks)
	require.Len(t, got.Reports, 2)

	db, err := store.Open(f.db)
	require.NoError(t, err)
	defer db.Close()
	reports, err := db.ReportsForWorld(t.Context(), res.WorldHash)
	require.NoError(t, err)
	assert.Len(t, reports, 2)
}

func TestAudit_EncryptedCodebookNeedsIdentity(t *testing.T) {
	f := newFixture(t)
	id, err := age.GenerateX25519Identity()
	require.NoError(t, err)
	identityFile := filepath.Join(f.dir, "identity.txt")
	require.NoError(t, os.WriteFile(identityFile, []byte(id.String()+"\n"), 0o600))

	// sealing with a recipient stores the envelope encrypted
	res, err := f.seal(t, "3", "--recipient", id.Recipient().String())
	require.NoError(t, err)

	args := []string{"audit", "--world", res.World, "--db", f.db, "--reference", f.dataset, "--budgets", "4"}
	_, err = execute(t, args...)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = execute(t, append(args, "--identity", identityFile)...)
	require.NoError(t, err)
}

func TestAudit_RejectsBadBudgets(t *testing.T) {
	f := newFixture(t)
	res, err := f.seal(t, "1")
	require.NoError(t, err)

	out, err := execute(t, "--format", "json", "audit", "--world", res.World, "--db", f.db,
		"--reference", f.dataset, "--budgets", "16,8")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	resp := decodeData(t, out, nil)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeInvalidBudget, resp.Error.Code)
}

func TestVerify(t *testing.T) {
	f := newFixture(t)
	res, err := f.seal(t, "42")
	require.NoError(t, err)

	base := []string{"verify", "--dataset", f.dataset, "--config", f.config, "--seed", "42", "--master-file", f.master}

	out, err := execute(t, base...)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Deterministic")

	out, err = execute(t, append(base, "--world", res.World)...)
	require.NoError(t, err)
	assert.Contains(t, out, "matches published world")

	data, err := os.ReadFile(res.World)
	require.NoError(t, err)
	drifted := filepath.Join(f.dir, "drifted.json")
	require.NoError(t, os.WriteFile(drifted, bytes.Replace(data, []byte(`"seed":"42"`), []byte(`"seed":"43"`), 1), 0o644))

	_, err = execute(t, append(base, "--world", drifted)...)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.True(t, ir.IsKind(err, ir.KindNonDeterministic))
}

func TestPareto(t *testing.T) {
	points := writeFile(t, "points.yaml", `points:
  - {config: level-0, seed: "1", utility: 1.0, black_box: 0.9, white_box: 0.8}
  - {config: level-2, seed: "1", utility: 0.8, black_box: 0.3, white_box: 0.2}
  - {config: level-3, seed: "1", utility: 0.4, black_box: 0.1, white_box: 0.0}
  - {config: worse, seed: "1", utility: 0.7, black_box: 0.4, white_box: 0.3}
`)

	out, err := execute(t, "--format", "json", "pareto", "--points", points, "--floor", "0.75")
	require.NoError(t, err)
	var got ParetoResult
	decodeData(t, out, &got)
	assert.Len(t, got.Frontier, 3)
	require.NotNil(t, got.Recommendation)
	assert.Equal(t, "level-2", got.Recommendation.Config)

	out, err = execute(t, "pareto", "--points", points, "--floor", "1.5")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.True(t, ir.IsKind(err, ir.KindNoFeasiblePoint))
	assert.Contains(t, out, "Frontier (3 point(s))")
	assert.Contains(t, out, ErrCodeNoFeasiblePoint)
}

func TestSweep(t *testing.T) {
	f := newFixture(t)
	pointsOut := filepath.Join(f.dir, "points.yaml")
	dbPath := filepath.Join(f.dir, "reports.db")

	out, err := execute(t, "--format", "json", "sweep",
		"--dataset", f.dataset,
		"--config", f.configs,
		"--seeds", "2,1",
		"--workers", "3",
		"--budgets", "12,36",
		"--master-file", f.master,
		"--db", dbPath,
		"--points-out", pointsOut,
	)
	require.NoError(t, err, out)

	var got SweepResult
	decodeData(t, out, &got)
	require.Len(t, got.Rows, 4)
	assert.False(t, got.Partial)
	order := make([][2]string, len(got.Rows))
	for i, r := range got.Rows {
		assert.Empty(t, r.Error)
		order[i] = [2]string{r.Seed, r.Config}
	}
	assert.Equal(t, [][2]string{
		{"1", "level-0"}, {"1", "level-3"},
		{"2", "level-0"}, {"2", "level-3"},
	}, order)
	assert.NotEmpty(t, got.Frontier)

	points, err := LoadPoints(pointsOut)
	require.NoError(t, err)
	assert.Len(t, points, 4)

	out, err = execute(t, "--format", "json", "pareto", "--points", pointsOut, "--aggregate")
	require.NoError(t, err, out)
}

func TestReports(t *testing.T) {
	f := newFixture(t)
	for _, seed := range []string{"1", "2"} {
		res, err := f.seal(t, seed)
		require.NoError(t, err)
		_, err = execute(t, "audit", "--world", res.World, "--db", f.db, "--reference", f.dataset, "--budgets", "8")
		require.NoError(t, err)
	}

	out, err := execute(t, "--format", "json", "reports", "--db", f.db)
	require.NoError(t, err, out)
	var all ReportsResult
	decodeData(t, out, &all)
	require.Len(t, all.Reports, 4)
	assert.Equal(t, "1", all.Reports[0].Seed)
	assert.Equal(t, "black_box", all.Reports[0].ThreatModel)
	assert.Equal(t, "white_box", all.Reports[1].ThreatModel)
	assert.Equal(t, "2", all.Reports[3].Seed)

	out, err = execute(t, "--format", "json", "reports", "--db", f.db, "--seed", "2", "--threat-model", "white_box")
	require.NoError(t, err, out)
	var one ReportsResult
	decodeData(t, out, &one)
	require.Len(t, one.Reports, 1)
	assert.Equal(t, "corpus-v1", one.Reports[0].DatasetVersion)

	out, err = execute(t, "reports", "--db", f.db, "--limit", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "1 report(s)")

	_, err = execute(t, "reports", "--db", f.db, "--threat-model", "grey_box")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
