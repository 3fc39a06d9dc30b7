package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sealbench/internal/testutil"
)

func TestReport_IDIsNameBased(t *testing.T) {
	f := sealCorpus(t, testutil.Config(2), "42")
	curve, err := newProxyAuditor().RunBudgetAttack(context.Background(), f.world, f.judge(), []int{8})
	require.NoError(t, err)

	a, err := NewBlackBoxReport(f.world, curve)
	require.NoError(t, err)
	b, err := NewBlackBoxReport(f.world, curve)
	require.NoError(t, err)
	assert.Equal(t, a.ID, b.ID)

	w, err := NewWhiteBoxReport(f.world, RunRecoveryAudit(f.store, f.world, f.cb, nil))
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, w.ID)

	other := sealCorpus(t, testutil.Config(2), "43")
	c, err := NewBlackBoxReport(other.world, curve)
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, c.ID)
}

func TestReport_Fields(t *testing.T) {
	f := sealCorpus(t, testutil.Config(2), "42")
	hash, err := f.world.Hash()
	require.NoError(t, err)

	v := RunRecoveryAudit(f.store, f.world, f.cb, ClaimsFromMapping(f.trueMapping(t)))
	r, err := NewWhiteBoxReport(f.world, v)
	require.NoError(t, err)
	assert.Equal(t, WhiteBox, r.ThreatModel)
	assert.Equal(t, hash, r.WorldHash)
	assert.Equal(t, "42", r.Seed)
	assert.Equal(t, f.world.ConfigFingerprint, r.ConfigFingerprint)
	assert.Equal(t, 1.0, r.Leakage())
	assert.Nil(t, r.Curve)

	bb, err := NewBlackBoxReport(f.world, Curve{Points: []CurvePoint{{Budget: 1, SuccessRate: 0.25}}, Claims: []Claim{{"x", "y"}}})
	require.NoError(t, err)
	assert.Equal(t, 0.25, bb.Leakage())
	assert.Nil(t, bb.RecoveryRate)
}

func TestLifecycle_ForwardOnly(t *testing.T) {
	f := sealCorpus(t, testutil.Config(1), "1")
	l := NewLifecycle()
	assert.Equal(t, StageUnsealed, l.Stage())

	assert.True(t, errors.Is(l.Reported(), ErrInvalidTransition))

	require.NoError(t, l.Sealed(f.world))
	assert.Equal(t, StageSealed, l.Stage())
	assert.True(t, errors.Is(l.Sealed(f.world), ErrInvalidTransition), "re-sealing produces a new instance")
	assert.True(t, errors.Is(l.Reported(), ErrInvalidTransition))

	r, err := NewWhiteBoxReport(f.world, RunRecoveryAudit(f.store, f.world, f.cb, nil))
	require.NoError(t, err)
	require.NoError(t, l.Attach(r))
	require.NoError(t, l.Attach(r))
	assert.Equal(t, StageAudited, l.Stage())
	assert.Len(t, l.Reports(), 2)

	require.NoError(t, l.Reported())
	assert.Equal(t, StageReported, l.Stage())
	assert.True(t, errors.Is(l.Attach(r), ErrInvalidTransition))
	assert.Equal(t, "reported", l.Stage().String())
}

func TestLifecycle_RejectsForeignReport(t *testing.T) {
	f := sealCorpus(t, testutil.Config(1), "1")
	other := sealCorpus(t, testutil.Config(1), "2")

	l := NewLifecycle()
	require.NoError(t, l.Sealed(f.world))
	r, err := NewWhiteBoxReport(other.world, RunRecoveryAudit(other.store, other.world, other.cb, nil))
	require.NoError(t, err)
	assert.True(t, errors.Is(l.Attach(r), ErrInvalidTransition))
	assert.Equal(t, StageSealed, l.Stage())
}
