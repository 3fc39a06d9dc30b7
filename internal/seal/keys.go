package seal

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"
	"math/rand/v2"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/hkdf"

	"github.com/roach88/sealbench/internal/ir"
)

// keySize is the length of every derived key.
const keySize = 32

// MinMasterSize is the shortest accepted master secret.
const MinMasterSize = 16

// HKDF info labels. Changing one changes every sealed output.
const (
	labelIdentifier = "sealbench/key/identifier/v1"
	labelLexical    = "sealbench/key/lexical/v1"
	labelStructural = "sealbench/key/structural/v1"
	labelNumeric    = "sealbench/key/numeric/v1"
	labelDigest     = "sealbench/key/digest/v1"
)

// seedKeys holds the per-seed key of each operator plus the digest key.
type seedKeys struct {
	identifier []byte
	lexical    []byte
	structural []byte
	numeric    []byte
	digest     []byte
}

// deriveKeys expands master into per-seed keys. The salt binds the dataset
// version and seed, so two seeds never share key material.
func deriveKeys(master []byte, datasetVersion, seed string) (seedKeys, error) {
	salt := lengthPrefixed("sealbench/seed/v1", datasetVersion, seed)
	var ks seedKeys
	for _, slot := range []struct {
		label string
		dst   *[]byte
	}{
		{labelIdentifier, &ks.identifier},
		{labelLexical, &ks.lexical},
		{labelStructural, &ks.structural},
		{labelNumeric, &ks.numeric},
		{labelDigest, &ks.digest},
	} {
		key := make([]byte, keySize)
		if _, err := io.ReadFull(hkdf.New(sha256.New, master, salt, []byte(slot.label)), key); err != nil {
			return seedKeys{}, fmt.Errorf("derive %s: %w", slot.label, err)
		}
		*slot.dst = key
	}
	return ks, nil
}

// forOperator returns the key for k.
func (ks seedKeys) forOperator(k ir.OperatorKind) []byte {
	switch k {
	case ir.OpIdentifier:
		return ks.identifier
	case ir.OpLexical:
		return ks.lexical
	case ir.OpStructural:
		return ks.structural
	case ir.OpNumeric:
		return ks.numeric
	default:
		panic(fmt.Sprintf("seal: unhandled operator %q", k))
	}
}

func lengthPrefixed(parts ...string) []byte {
	var out []byte
	for _, p := range parts {
		out = binary.BigEndian.AppendUint64(out, uint64(len(p)))
		out = append(out, p...)
	}
	return out
}

// prf is the keyed BLAKE3 pseudo-random function over length-prefixed parts.
func prf(key []byte, parts ...string) [32]byte {
	h, err := blake3.NewKeyed(key)
	if err != nil {
		panic(fmt.Sprintf("seal: prf key: %v", err))
	}
	h.Write(lengthPrefixed(parts...))
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// newRand returns a deterministic stream keyed by key and scoped by parts.
func newRand(key []byte, parts ...string) *rand.Rand {
	return rand.New(rand.NewChaCha8(prf(key, parts...)))
}
