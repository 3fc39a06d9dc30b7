package codebook

import (
	"context"
	"log/slog"
	"sync"

	"filippo.io/age"

	"github.com/roach88/sealbench/internal/ir"
)

// Entry is the persisted form of a codebook.
type Entry struct {
	ID                ID
	Track             string
	ConfigFingerprint string
	KeyFingerprint    string
	Envelope          []byte
}

// Persister stores envelopes durably. SaveCodebook must fail with
// ir.KindCodebookExists when the ID is taken and LoadCodebook with
// ir.KindNotFound when it is absent.
type Persister interface {
	SaveCodebook(ctx context.Context, e Entry) error
	LoadCodebook(ctx context.Context, id ID) (Entry, error)
}

// StoreOptions configures a Store.
type StoreOptions struct {
	// Persister is optional. Without it codebooks live in memory only.
	Persister Persister

	// Recipients encrypt persisted envelopes; Identities decrypt them.
	Recipients []age.Recipient
	Identities []age.Identity

	Logger *slog.Logger
}

// Store is the CodebookStore: single writer per ID, unlimited readers.
type Store struct {
	mu      sync.RWMutex
	books   map[ID]*Codebook
	persist Persister
	recips  []age.Recipient
	idents  []age.Identity
	logger  *slog.Logger
}

// NewStore creates an empty store.
func NewStore(opts StoreOptions) *Store {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		books:   make(map[ID]*Codebook),
		persist: opts.Persister,
		recips:  opts.Recipients,
		idents:  opts.Identities,
		logger:  logger,
	}
}

// Create builds and registers a codebook in one step.
func (s *Store) Create(ctx context.Context, id ID, track string, cfg ir.SealConfig, identifierMap map[string]string, material Material) (*Codebook, error) {
	cb, err := New(id, track, cfg, identifierMap, material)
	if err != nil {
		return nil, err
	}
	if err := s.Register(ctx, cb); err != nil {
		return nil, err
	}
	return cb, nil
}

// Register stores cb. A second registration for the same ID is an error,
// never an overwrite.
func (s *Store) Register(ctx context.Context, cb *Codebook) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.books[cb.id]; ok {
		return ir.Errorf(ir.KindCodebookExists, cb.id.String(), "codebook already exists")
	}
	if s.persist != nil {
		env, err := Export(cb, ExportOptions{Recipients: s.recips, IncludeKey: true})
		if err != nil {
			return err
		}
		err = s.persist.SaveCodebook(ctx, Entry{
			ID:                cb.id,
			Track:             cb.track,
			ConfigFingerprint: cb.configFingerprint,
			KeyFingerprint:    cb.keyFingerprint,
			Envelope:          env,
		})
		if err != nil {
			return err
		}
	}
	s.books[cb.id] = cb
	s.logger.Info("codebook registered",
		"codebook", cb.id.String(),
		"entries", len(cb.aliases),
		"key_fingerprint", cb.keyFingerprint,
	)
	return nil
}

// Get returns the codebook for id, loading it from the persister on a miss.
func (s *Store) Get(ctx context.Context, id ID) (*Codebook, error) {
	s.mu.RLock()
	cb, ok := s.books[id]
	s.mu.RUnlock()
	if ok {
		return cb, nil
	}
	if s.persist == nil {
		return nil, ir.Errorf(ir.KindNotFound, id.String(), "no codebook")
	}

	entry, err := s.persist.LoadCodebook(ctx, id)
	if err != nil {
		return nil, err
	}
	cb, err = Import(entry.Envelope, s.idents...)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.books[id]; ok {
		return existing, nil
	}
	s.books[id] = cb
	return cb, nil
}

// Lookup resolves alias to its canonical key. Only audit code calls this;
// export paths never hold a Store.
func (s *Store) Lookup(cb *Codebook, alias string) (string, error) {
	key, ok := cb.lookup(alias)
	if !ok {
		return "", ir.Errorf(ir.KindNotFound, alias, "alias not in codebook %s", cb.id)
	}
	return key, nil
}

// Verify is the exact-match judgment: true only when candidate is non-empty
// and every entry matches the stored mapping. It has no side effects.
func (s *Store) Verify(cb *Codebook, candidate map[string]string) bool {
	if len(candidate) == 0 {
		return false
	}
	for alias, claimed := range candidate {
		key, ok := cb.lookup(alias)
		if !ok || !secureEqual(key, claimed) {
			return false
		}
	}
	return true
}

// DigestClaim asserts canonical content behind a sealed item.
type DigestClaim struct {
	Operator ir.OperatorKind
	Alias    string

	// Title and Description back a lexical claim.
	Title       string
	Description string

	// Field and Value back a numeric claim.
	Field string
	Value float64

	// Graph backs a structural claim.
	Graph ir.DependencyGraph
}

// VerifyDigest checks a content claim against the stored digests. Identifier
// claims go through Verify instead.
func (s *Store) VerifyDigest(cb *Codebook, claim DigestClaim) (bool, error) {
	switch claim.Operator {
	case ir.OpIdentifier:
		return false, ir.Errorf(ir.KindSealConfig, string(claim.Operator), "identifier claims use Verify")
	case ir.OpLexical:
		want := cb.digests.Lexical[claim.Alias]
		return secureEqual(want, LexicalDigest(cb.digestKey, claim.Alias, claim.Title, claim.Description)), nil
	case ir.OpNumeric:
		want := cb.digests.Numeric[NumericKey(claim.Alias, claim.Field)]
		return secureEqual(want, NumericDigest(cb.digestKey, claim.Alias, claim.Field, claim.Value)), nil
	case ir.OpStructural:
		got, err := StructuralDigest(cb.digestKey, claim.Graph)
		if err != nil {
			return false, err
		}
		return secureEqual(cb.digests.Structural, got), nil
	default:
		return false, ir.Errorf(ir.KindSealConfig, string(claim.Operator), "unknown operator")
	}
}
