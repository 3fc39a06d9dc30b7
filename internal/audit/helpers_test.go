package audit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/sealbench/internal/codebook"
	"github.com/roach88/sealbench/internal/ir"
	"github.com/roach88/sealbench/internal/seal"
	"github.com/roach88/sealbench/internal/testutil"
)

type sealedFixture struct {
	world *ir.SealedWorld
	cb    *codebook.Codebook
	store *codebook.Store
}

func sealCorpus(t *testing.T, cfg ir.SealConfig, seed string) sealedFixture {
	t.Helper()
	e, err := seal.New(testutil.Master, seal.WithLogger(testutil.DiscardLogger()))
	require.NoError(t, err)
	w, cb, _, err := e.Seal(testutil.CorpusDataset(), cfg, seed)
	require.NoError(t, err)
	store := codebook.NewStore(codebook.StoreOptions{Logger: testutil.DiscardLogger()})
	require.NoError(t, store.Register(context.Background(), cb))
	return sealedFixture{world: w, cb: cb, store: store}
}

func (f sealedFixture) judge() Judge {
	return CodebookJudge{Verifier: f.store, Codebook: f.cb}
}

// trueMapping recovers alias -> key through the store, as an omniscient
// attacker would.
func (f sealedFixture) trueMapping(t *testing.T) map[string]string {
	t.Helper()
	out := make(map[string]string)
	for _, alias := range f.cb.Aliases() {
		key, err := f.store.Lookup(f.cb, alias)
		require.NoError(t, err)
		out[alias] = key
	}
	return out
}

func newProxyAuditor() *Auditor {
	proxy := NewRetrievalProxy(testutil.CorpusDataset().Records, 5)
	return New(proxy, WithLogger(testutil.DiscardLogger()), WithPolicy(ProbePolicy{}))
}
