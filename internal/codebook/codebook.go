package codebook

import (
	"encoding/hex"
	"fmt"
	"maps"
	"slices"

	"github.com/zeebo/blake3"

	"github.com/roach88/sealbench/internal/ir"
)

// ID names a codebook: one per (dataset_version, seed).
type ID struct {
	DatasetVersion string
	Seed           string
}

func (id ID) String() string {
	return id.DatasetVersion + "@" + id.Seed
}

// Digests are the keyed, non-reversible verification digests.
type Digests struct {
	// Lexical maps alias to the digest of the canonical text.
	Lexical map[string]string
	// Numeric maps "alias/field" to the digest of the exact value.
	Numeric map[string]string
	// Structural is the digest of the canonical edge list.
	Structural string
}

// Material is the secret material produced by the sealing engine.
type Material struct {
	// IdentifierKey keys the alias PRF.
	IdentifierKey []byte
	// DigestKey keys the verification digests.
	DigestKey []byte
	Digests   Digests
}

// Codebook is the private artifact for one sealing run. It is immutable.
type Codebook struct {
	id                ID
	track             string
	configFingerprint string
	identifierKey     []byte
	keyFingerprint    string
	digestKey         []byte
	aliases           map[string]string
	digests           Digests
}

// New builds a codebook. It does not register it; see Store.Create.
// identifierMap maps alias to canonical key and must be injective.
func New(id ID, track string, cfg ir.SealConfig, identifierMap map[string]string, material Material) (*Codebook, error) {
	if id.Seed == "" {
		return nil, fmt.Errorf("codebook: empty seed")
	}
	if len(material.IdentifierKey) == 0 || len(material.DigestKey) == 0 {
		return nil, fmt.Errorf("codebook %s: missing key material", id)
	}
	seen := make(map[string]string, len(identifierMap))
	for alias, key := range identifierMap {
		if prev, ok := seen[key]; ok {
			return nil, ir.Errorf(ir.KindAliasCollision, alias, "aliases %s and %s map to the same canonical key", prev, alias)
		}
		seen[key] = alias
	}
	return &Codebook{
		id:                id,
		track:             track,
		configFingerprint: cfg.Fingerprint(),
		identifierKey:     slices.Clone(material.IdentifierKey),
		keyFingerprint:    KeyFingerprint(material.IdentifierKey),
		digestKey:         slices.Clone(material.DigestKey),
		aliases:           maps.Clone(identifierMap),
		digests:           cloneDigests(material.Digests),
	}, nil
}

func cloneDigests(d Digests) Digests {
	return Digests{
		Lexical:    maps.Clone(d.Lexical),
		Numeric:    maps.Clone(d.Numeric),
		Structural: d.Structural,
	}
}

// KeyFingerprint identifies key material without revealing it.
func KeyFingerprint(key []byte) string {
	sum := blake3.Sum256(append([]byte("sealbench/key-fingerprint/v1\x00"), key...))
	return hex.EncodeToString(sum[:16])
}

func (c *Codebook) ID() ID                    { return c.id }
func (c *Codebook) Seed() string              { return c.id.Seed }
func (c *Codebook) DatasetVersion() string    { return c.id.DatasetVersion }
func (c *Codebook) Track() string             { return c.track }
func (c *Codebook) ConfigFingerprint() string { return c.configFingerprint }
func (c *Codebook) KeyFingerprint() string    { return c.keyFingerprint }

// Len is the number of sealed identifiers.
func (c *Codebook) Len() int { return len(c.aliases) }

// Aliases returns the sealed identifiers in sorted order. Aliases are
// public; the canonical keys they map to are not.
func (c *Codebook) Aliases() []string {
	return slices.Sorted(maps.Keys(c.aliases))
}

func (c *Codebook) lookup(alias string) (string, bool) {
	key, ok := c.aliases[alias]
	return key, ok
}

// String never prints mapping content.
func (c *Codebook) String() string {
	return fmt.Sprintf("codebook(%s, entries=%d, key=%s)", c.id, len(c.aliases), c.keyFingerprint)
}

// GoString never prints mapping content.
func (c *Codebook) GoString() string {
	return c.String()
}

// MarshalJSON refuses: codebooks never travel through generic encoders.
func (c *Codebook) MarshalJSON() ([]byte, error) {
	return nil, accessViolation(c, "json")
}

// MarshalText refuses for the same reason.
func (c *Codebook) MarshalText() ([]byte, error) {
	return nil, accessViolation(c, "text")
}

// MarshalYAML refuses for the same reason.
func (c *Codebook) MarshalYAML() (any, error) {
	return nil, accessViolation(c, "yaml")
}

func accessViolation(c *Codebook, channel string) error {
	return &ir.Error{
		Kind:    ir.KindCodebookAccessViolation,
		Subject: c.id.String(),
		Message: "codebook content cannot be serialized through a generic encoder",
		Details: map[string]string{"channel": channel},
	}
}
