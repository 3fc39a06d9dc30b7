package codebook

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"

	"filippo.io/age"
	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"

	"github.com/roach88/sealbench/internal/ir"
)

// Marker is the first line of every exported codebook. Export tooling
// refuses to publish anything that contains it.
const Marker = "SEALBENCH-PRIVATE-CODEBOOK/v1"

// FileSuffix is the file name suffix for exported codebooks.
const FileSuffix = ".codebook.age"

const (
	encodingAge   = "age"
	encodingPlain = "zstd"
)

// payloadVersion is bumped on incompatible payload changes.
const payloadVersion = 1

// payload is the CBOR form of a codebook.
type payload struct {
	Version           int               `cbor:"1,keyasint"`
	DatasetVersion    string            `cbor:"2,keyasint"`
	Track             string            `cbor:"3,keyasint"`
	Seed              string            `cbor:"4,keyasint"`
	ConfigFingerprint string            `cbor:"5,keyasint"`
	KeyFingerprint    string            `cbor:"6,keyasint"`
	IdentifierKey     []byte            `cbor:"7,keyasint,omitempty"`
	DigestKey         []byte            `cbor:"8,keyasint"`
	Aliases           map[string]string `cbor:"9,keyasint"`
	Lexical           map[string]string `cbor:"10,keyasint"`
	Numeric           map[string]string `cbor:"11,keyasint"`
	Structural        string            `cbor:"12,keyasint"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	// Core Deterministic Encoding: sorted map keys, shortest integers.
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codebook: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("codebook: CBOR decoder initialization failed: " + err.Error())
	}
}

func (c *Codebook) payload(includeKey bool) payload {
	p := payload{
		Version:           payloadVersion,
		DatasetVersion:    c.id.DatasetVersion,
		Track:             c.track,
		Seed:              c.id.Seed,
		ConfigFingerprint: c.configFingerprint,
		KeyFingerprint:    c.keyFingerprint,
		DigestKey:         c.digestKey,
		Aliases:           c.aliases,
		Lexical:           c.digests.Lexical,
		Numeric:           c.digests.Numeric,
		Structural:        c.digests.Structural,
	}
	if includeKey {
		p.IdentifierKey = c.identifierKey
	}
	return p
}

// CanonicalBytes is the deterministic CBOR encoding of the full codebook,
// key included. Two sealing runs over identical input must agree on it.
// The bytes are private; they exist for determinism checks.
func (c *Codebook) CanonicalBytes() ([]byte, error) {
	return encMode.Marshal(c.payload(true))
}

// ExportOptions controls Export.
type ExportOptions struct {
	// Recipients encrypt the envelope. With none the body is only
	// compressed, which is acceptable for a private store on disk.
	Recipients []age.Recipient

	// IncludeKey embeds the raw identifier key. Leave unset unless the
	// consuming audit process needs to re-derive aliases.
	IncludeKey bool
}

// Export renders the private envelope:
//
//	SEALBENCH-PRIVATE-CODEBOOK/v1
//	encoding: age|zstd
//	<blank line>
//	body = [age](zstd(cbor(payload)))
func Export(c *Codebook, opts ExportOptions) ([]byte, error) {
	raw, err := encMode.Marshal(c.payload(opts.IncludeKey))
	if err != nil {
		return nil, fmt.Errorf("export codebook %s: encode: %w", c.id, err)
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("export codebook %s: zstd: %w", c.id, err)
	}
	body := enc.EncodeAll(raw, nil)
	enc.Close()

	encoding := encodingPlain
	if len(opts.Recipients) > 0 {
		encoding = encodingAge
		var sealed bytes.Buffer
		w, err := age.Encrypt(&sealed, opts.Recipients...)
		if err != nil {
			return nil, fmt.Errorf("export codebook %s: age: %w", c.id, err)
		}
		if _, err := w.Write(body); err != nil {
			return nil, fmt.Errorf("export codebook %s: age write: %w", c.id, err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("export codebook %s: age close: %w", c.id, err)
		}
		body = sealed.Bytes()
	}

	var out bytes.Buffer
	fmt.Fprintf(&out, "%s\nencoding: %s\n\n", Marker, encoding)
	out.Write(body)
	return out.Bytes(), nil
}

// Import parses an envelope produced by Export. Identities are required
// when the envelope is age-encrypted.
func Import(data []byte, identities ...age.Identity) (*Codebook, error) {
	r := bufio.NewReader(bytes.NewReader(data))
	header, err := readHeader(r)
	if err != nil {
		return nil, err
	}

	var body io.Reader = r
	switch header {
	case encodingPlain:
	case encodingAge:
		if len(identities) == 0 {
			return nil, fmt.Errorf("import codebook: envelope is encrypted and no identity was supplied")
		}
		body, err = age.Decrypt(r, identities...)
		if err != nil {
			return nil, fmt.Errorf("import codebook: decrypt: %w", err)
		}
	default:
		return nil, fmt.Errorf("import codebook: unknown encoding %q", header)
	}

	compressed, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("import codebook: read: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("import codebook: zstd: %w", err)
	}
	defer dec.Close()
	raw, err := dec.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("import codebook: decompress: %w", err)
	}

	var p payload
	if err := decMode.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("import codebook: decode: %w", err)
	}
	if p.Version != payloadVersion {
		return nil, fmt.Errorf("import codebook: unsupported payload version %d", p.Version)
	}
	return &Codebook{
		id:                ID{DatasetVersion: p.DatasetVersion, Seed: p.Seed},
		track:             p.Track,
		configFingerprint: p.ConfigFingerprint,
		identifierKey:     p.IdentifierKey,
		keyFingerprint:    p.KeyFingerprint,
		digestKey:         p.DigestKey,
		aliases:           p.Aliases,
		digests:           Digests{Lexical: p.Lexical, Numeric: p.Numeric, Structural: p.Structural},
	}, nil
}

func readHeader(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil || strings.TrimSuffix(line, "\n") != Marker {
		return "", fmt.Errorf("import codebook: missing %s marker", Marker)
	}
	line, err = r.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("import codebook: truncated header: %w", err)
	}
	encoding, ok := strings.CutPrefix(strings.TrimSuffix(line, "\n"), "encoding: ")
	if !ok {
		return "", fmt.Errorf("import codebook: malformed encoding line %q", line)
	}
	if blank, err := r.ReadString('\n'); err != nil || blank != "\n" {
		return "", fmt.Errorf("import codebook: malformed header terminator")
	}
	return encoding, nil
}

// ContainsMarker reports whether data carries codebook content.
func ContainsMarker(data []byte) bool {
	return bytes.Contains(data, []byte(Marker))
}

// IsCodebookName reports whether a file name follows the codebook pattern.
func IsCodebookName(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), FileSuffix) || strings.Contains(strings.ToLower(name), ".codebook")
}

// violation builds the access violation error for a public channel.
func violation(subject, reason string) error {
	return &ir.Error{Kind: ir.KindCodebookAccessViolation, Subject: subject, Message: reason}
}

// GuardPublic rejects payloads or names that look like codebook content.
// Every public sink must call it before writing.
func GuardPublic(name string, data []byte) error {
	if IsCodebookName(name) {
		return violation(name, "codebook file names cannot be published")
	}
	if ContainsMarker(data) {
		return violation(name, "payload carries the private codebook marker")
	}
	return nil
}
