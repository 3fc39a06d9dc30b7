// Package export is the public side of sealbench: it serializes sealed
// worlds, describes them with content manifests, and writes them through a
// sink that refuses codebook material.
package export

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"

	"github.com/roach88/sealbench/internal/ir"
)

// worldNamespace scopes world IDs.
var worldNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://sealbench.invalid/sealed-world/v1"))

// EncodeWorld returns the published bytes of w: canonical JSON followed by a
// single newline. Equal worlds always encode to equal bytes.
func EncodeWorld(w *ir.SealedWorld) ([]byte, error) {
	data, err := w.CanonicalBytes()
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// DecodeWorld parses published world bytes. Input that does not re-encode
// byte for byte is rejected, so a decoded world is always the world that was
// published.
func DecodeWorld(data []byte) (*ir.SealedWorld, error) {
	var w ir.SealedWorld
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&w); err != nil {
		return nil, fmt.Errorf("decode world: %w", err)
	}
	if w.FormatVersion != ir.FormatVersion {
		return nil, fmt.Errorf("decode world: unsupported format version %q", w.FormatVersion)
	}
	again, err := EncodeWorld(&w)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(again, data) {
		return nil, fmt.Errorf("decode world: input is not in canonical form")
	}
	return &w, nil
}

// Manifest describes one published world file. Downstream tooling compares
// SHA256 and CID against the bytes on disk to detect drift.
type Manifest struct {
	WorldID        string `json:"world_id"`
	SHA256         string `json:"sha256"`
	CID            string `json:"cid"`
	Bytes          int    `json:"bytes"`
	Seed           string `json:"seed"`
	DatasetVersion string `json:"dataset_version"`
	Track          string `json:"track"`
	FormatVersion  string `json:"format_version"`
}

// NewManifest describes the encoded bytes of w.
func NewManifest(w *ir.SealedWorld, encoded []byte) (Manifest, error) {
	sum := sha256.Sum256(encoded)
	id, err := rawCID(encoded)
	if err != nil {
		return Manifest{}, err
	}
	return Manifest{
		WorldID:        uuid.NewSHA1(worldNamespace, sum[:]).String(),
		SHA256:         hex.EncodeToString(sum[:]),
		CID:            id.String(),
		Bytes:          len(encoded),
		Seed:           w.Seed,
		DatasetVersion: w.DatasetVersion,
		Track:          w.Track,
		FormatVersion:  w.FormatVersion,
	}, nil
}

// Verify reports drift between m and the bytes it claims to describe.
func (m Manifest) Verify(encoded []byte) error {
	if len(encoded) != m.Bytes {
		return fmt.Errorf("manifest %s: size %d, want %d", m.WorldID, len(encoded), m.Bytes)
	}
	sum := sha256.Sum256(encoded)
	if got := hex.EncodeToString(sum[:]); got != m.SHA256 {
		return fmt.Errorf("manifest %s: sha256 %s, want %s", m.WorldID, got, m.SHA256)
	}
	want, err := cid.Decode(m.CID)
	if err != nil {
		return fmt.Errorf("manifest %s: %w", m.WorldID, err)
	}
	got, err := rawCID(encoded)
	if err != nil {
		return err
	}
	if !got.Equals(want) {
		return fmt.Errorf("manifest %s: cid %s, want %s", m.WorldID, got, want)
	}
	return nil
}

// rawCID is a CIDv1 with the raw codec and a sha2-256 multihash.
func rawCID(data []byte) (cid.Cid, error) {
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, sum), nil
}
