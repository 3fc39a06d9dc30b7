package export

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/roach88/sealbench/internal/codebook"
	"github.com/roach88/sealbench/internal/ir"
)

// File names used by WriteWorld.
const (
	WorldFile    = "world.json"
	ManifestFile = "world.manifest.json"
)

// ErrImmutable is returned when a public file already exists with different
// content.
var ErrImmutable = errors.New("export: published file is immutable")

// PublicSink writes files destined for publication under Dir. Every write
// passes through codebook.GuardPublic first.
type PublicSink struct {
	Dir string
}

// Write stores data as name under Dir and returns the full path. Rewriting
// identical bytes is a no-op; different bytes fail with ErrImmutable.
func (s PublicSink) Write(name string, data []byte) (string, error) {
	if err := codebook.GuardPublic(name, data); err != nil {
		return "", err
	}
	if s.Dir == "" {
		return "", errors.New("export: sink directory is required")
	}
	if name == "" || filepath.Base(name) != name {
		return "", fmt.Errorf("export: invalid file name %q", name)
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", err
	}

	path := filepath.Join(s.Dir, name)
	if existing, err := os.ReadFile(path); err == nil {
		if !bytes.Equal(existing, data) {
			return "", fmt.Errorf("%w: %s", ErrImmutable, path)
		}
		return path, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", err
	}

	tmp, err := os.CreateTemp(s.Dir, "."+name+".tmp-*")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return "", err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", err
	}
	return path, nil
}

// WriteWorld publishes w and its manifest.
func (s PublicSink) WriteWorld(w *ir.SealedWorld) (Manifest, error) {
	encoded, err := EncodeWorld(w)
	if err != nil {
		return Manifest{}, err
	}
	m, err := NewManifest(w, encoded)
	if err != nil {
		return Manifest{}, err
	}
	if _, err := s.Write(WorldFile, encoded); err != nil {
		return Manifest{}, err
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return Manifest{}, err
	}
	if _, err := s.Write(ManifestFile, append(data, '\n')); err != nil {
		return Manifest{}, err
	}
	return m, nil
}

// ReadWorld loads a published world. A file named WorldFile is checked
// against the ManifestFile next to it, if any.
func ReadWorld(path string) (*ir.SealedWorld, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if filepath.Base(path) != WorldFile {
		return DecodeWorld(data)
	}
	manifestPath := filepath.Join(filepath.Dir(path), ManifestFile)
	if raw, err := os.ReadFile(manifestPath); err == nil {
		var m Manifest
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("read manifest: %w", err)
		}
		if err := m.Verify(data); err != nil {
			return nil, err
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	return DecodeWorld(data)
}
