package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/sealbench/internal/codebook"
	"github.com/roach88/sealbench/internal/ir"
	"github.com/roach88/sealbench/internal/seal"
	"github.com/roach88/sealbench/internal/testutil"
)

// createTestStore creates a new store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// sealChain seals the chain fixture at the given level and seed.
func sealChain(t *testing.T, level int, seed string) (*ir.SealedWorld, *codebook.Codebook) {
	t.Helper()
	e, err := seal.New(testutil.Master, seal.WithLogger(testutil.DiscardLogger()))
	if err != nil {
		t.Fatalf("seal.New() failed: %v", err)
	}
	w, cb, _, err := e.Seal(testutil.ChainDataset(), testutil.Config(level), seed)
	if err != nil {
		t.Fatalf("Seal() failed: %v", err)
	}
	return w, cb
}

// createTestEntry creates an entry with a placeholder envelope.
func createTestEntry(datasetVersion, seed string) codebook.Entry {
	return codebook.Entry{
		ID:                codebook.ID{DatasetVersion: datasetVersion, Seed: seed},
		Track:             "main",
		ConfigFingerprint: "cfg-" + seed,
		KeyFingerprint:    "key-" + seed,
		Envelope:          []byte(codebook.Marker + "\nencoding: zstd\n\nplaceholder"),
	}
}
