package codebook

import (
	"crypto/subtle"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/zeebo/blake3"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/sealbench/internal/ir"
)

// Digest domains, one per verifiable operator.
const (
	domainLexical    = "sealbench/digest/lexical/v1"
	domainNumeric    = "sealbench/digest/numeric/v1"
	domainStructural = "sealbench/digest/structural/v1"
)

// digest computes a keyed BLAKE3 over length-prefixed parts. key must be
// 32 bytes.
func digest(key []byte, domain string, parts ...string) string {
	h, err := blake3.NewKeyed(key)
	if err != nil {
		panic(fmt.Sprintf("codebook: digest key: %v", err))
	}
	var n [8]byte
	for _, p := range append([]string{domain}, parts...) {
		binary.BigEndian.PutUint64(n[:], uint64(len(p)))
		h.Write(n[:])
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// LexicalDigest binds alias to its canonical text (title and description).
func LexicalDigest(key []byte, alias, title, description string) string {
	return digest(key, domainLexical, alias, norm.NFC.String(title), norm.NFC.String(description))
}

// NumericDigest binds alias/field to the exact value.
func NumericDigest(key []byte, alias, field string, value float64) string {
	return digest(key, domainNumeric, alias, field, FormatNumber(value))
}

// StructuralDigest binds the canonical graph. Callers pass the graph over
// canonical keys; its canonical JSON is what gets digested.
func StructuralDigest(key []byte, g ir.DependencyGraph) (string, error) {
	claim, err := StructuralClaim(g)
	if err != nil {
		return "", err
	}
	return digest(key, domainStructural, claim), nil
}

// StructuralClaim renders g in the canonical form a structural claim uses.
func StructuralClaim(g ir.DependencyGraph) (string, error) {
	n := g.Normalize()
	edges := make(ir.List, len(n.Edges))
	for i, e := range n.Edges {
		edges[i] = ir.Object{"from": ir.Str(e.From), "to": ir.Str(e.To), "type": ir.Str(e.Type)}
	}
	data, err := ir.MarshalCanonical(ir.Object{"nodes": ir.Strs(n.Nodes), "edges": edges})
	if err != nil {
		return "", fmt.Errorf("structural claim: %w", err)
	}
	return string(data), nil
}

// NumericKey is the Digests.Numeric map key for alias and field.
func NumericKey(alias, field string) string {
	return alias + "/" + field
}

// FormatNumber renders a float in its shortest exact decimal form.
func FormatNumber(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func secureEqual(a, b string) bool {
	return a != "" && subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
