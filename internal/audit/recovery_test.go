package audit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sealbench/internal/ir"
	"github.com/roach88/sealbench/internal/testutil"
)

func TestRunRecoveryAudit_FullMapping(t *testing.T) {
	f := sealCorpus(t, testutil.Config(2), "42")
	v := RunRecoveryAudit(f.store, f.world, f.cb, ClaimsFromMapping(f.trueMapping(t)))
	assert.Equal(t, 12, v.Total)
	assert.Equal(t, 12, v.Verified)
	assert.Equal(t, 1.0, v.Rate)
	for _, c := range v.Claims {
		assert.Equal(t, StatusVerified, c.Status)
	}
}

func TestRunRecoveryAudit_ExactMatchOnly(t *testing.T) {
	f := sealCorpus(t, testutil.Config(2), "42")
	mapping := f.trueMapping(t)
	aliases := f.cb.Aliases()

	claims := []Claim{
		{Alias: aliases[0], CanonicalKey: mapping[aliases[0]]},
		{Alias: aliases[1], CanonicalKey: mapping[aliases[1]] + " "},
		{Alias: aliases[2], CanonicalKey: mapping[aliases[3]]},
	}
	v := RunRecoveryAudit(f.store, f.world, f.cb, claims)
	assert.Equal(t, 1, v.Verified)
	assert.InDelta(t, 1.0/12.0, v.Rate, 1e-12)

	status := make(map[string]ClaimStatus)
	for _, c := range v.Claims {
		status[c.Alias] = c.Status
	}
	assert.Equal(t, StatusVerified, status[aliases[0]])
	assert.Equal(t, StatusRejected, status[aliases[1]])
	assert.Equal(t, StatusRejected, status[aliases[2]])
}

func TestRunRecoveryAudit_AmbiguousNeverCounts(t *testing.T) {
	f := sealCorpus(t, testutil.Config(2), "42")
	mapping := f.trueMapping(t)
	a := f.cb.Aliases()[0]

	v := RunRecoveryAudit(f.store, f.world, f.cb, []Claim{
		{Alias: a, CanonicalKey: mapping[a]},
		{Alias: a, CanonicalKey: "arxiv:0000.00000"},
		{Alias: a, CanonicalKey: mapping[a]},
	})
	require.Len(t, v.Claims, 1)
	assert.Equal(t, StatusAmbiguous, v.Claims[0].Status)
	assert.Len(t, v.Claims[0].Claims, 2, "duplicates collapse")
	assert.Equal(t, 0, v.Verified)
}

func TestRunRecoveryAudit_UnknownAliasAndEmpty(t *testing.T) {
	f := sealCorpus(t, testutil.Config(1), "1")
	v := RunRecoveryAudit(f.store, f.world, f.cb, []Claim{{Alias: "s-notreal", CanonicalKey: "arxiv:1706.03762"}})
	require.Len(t, v.Claims, 1)
	assert.Equal(t, StatusUnknownAlias, v.Claims[0].Status)
	assert.Equal(t, 0.0, v.Rate)

	empty := RunRecoveryAudit(f.store, f.world, f.cb, nil)
	assert.Equal(t, 0, empty.Verified)
	assert.Empty(t, empty.Claims)
}

func TestRunRecoveryAudit_FromAttackClaims(t *testing.T) {
	open := testutil.Config(2)
	open.Lexical = 0
	f := sealCorpus(t, open, "9")
	curve, err := newProxyAuditor().RunBudgetAttack(context.Background(), f.world, f.judge(), []int{36})
	require.NoError(t, err)

	v := RunRecoveryAudit(f.store, f.world, f.cb, TopClaims(curve.Claims))
	assert.LessOrEqual(t, v.Rate, curve.Final())
	assert.Positive(t, v.Verified)
}

func TestTopClaims(t *testing.T) {
	got := TopClaims([]Claim{{"a", "1"}, {"b", "2"}, {"a", "3"}})
	assert.Equal(t, []Claim{{"a", "1"}, {"b", "2"}}, got)
}

func TestCheckMinimality(t *testing.T) {
	for level := 0; level <= ir.MaxLevel; level++ {
		f := sealCorpus(t, testutil.Config(level), "2")
		leaks, err := CheckMinimality(f.store, f.world, f.cb)
		require.NoError(t, err)
		assert.Empty(t, leaks, "level %d", level)
	}
}

func TestCheckMinimality_DetectsLeak(t *testing.T) {
	f := sealCorpus(t, testutil.Config(1), "2")
	mapping := f.trueMapping(t)
	a := f.cb.Aliases()[0]

	leaky := *f.world
	leaky.Records = append([]ir.SealedRecord(nil), f.world.Records...)
	leaky.Records[3].Description += " see " + mapping[a]

	leaks, err := CheckMinimality(f.store, &leaky, f.cb)
	require.NoError(t, err)
	require.Len(t, leaks, 1)
	assert.Equal(t, a, leaks[0].LeakedAlias)
	assert.Equal(t, "description", leaks[0].Field)
	assert.Equal(t, leaky.Records[3].Alias, leaks[0].Record)
}
