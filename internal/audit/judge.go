package audit

import "github.com/roach88/sealbench/internal/codebook"

// Judge decides whether a guess names the real referent of an alias. The
// adversary never holds one; only the harness scoring the attack does.
type Judge interface {
	Correct(alias, canonicalKey string) bool
}

// Verifier is the exact-match judgment of the codebook store.
type Verifier interface {
	Verify(cb *codebook.Codebook, candidate map[string]string) bool
}

// CodebookJudge judges through a Verifier, so every black-box success is
// backed by the same exact match the white-box audit uses.
type CodebookJudge struct {
	Verifier Verifier
	Codebook *codebook.Codebook
}

// Correct implements Judge.
func (j CodebookJudge) Correct(alias, canonicalKey string) bool {
	return j.Verifier.Verify(j.Codebook, map[string]string{alias: canonicalKey})
}
