package seal

import (
	"math/rand/v2"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/sealbench/internal/codebook"
	"github.com/roach88/sealbench/internal/ir"
)

// surrogateWidth is the symbol count of a surrogate token, after its "x".
const surrogateWidth = 6

// stopwords are kept unless the n-gram ban forces a replacement.
var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"by": true, "for": true, "from": true, "in": true, "is": true, "it": true,
	"of": true, "on": true, "or": true, "that": true, "the": true, "to": true,
	"with": true,
}

type lexicalOp struct{}

func (lexicalOp) kind() ir.OperatorKind { return ir.OpLexical }

// apply rewrites title and description. At strength 0 the text is left as
// the cross-reference scrub produced it.
func (lexicalOp) apply(w *working, strength float64, key []byte) error {
	for i, r := range w.records {
		alias := w.out[i].Alias
		w.digests.Lexical[alias] = codebook.LexicalDigest(w.digestKey, alias, r.Title, r.Description)
		if strength == 0 {
			continue
		}
		rw := rewriter{
			key:      key,
			strength: strength,
			ngram:    w.cfg.NGramLimit,
			maxRunes: w.cfg.MaxDescriptionRunes,
			keep:     w.isAlias,
		}
		rng := newRand(key, "lexical", r.CanonicalKey)
		w.out[i].Description = rw.rewrite(w.out[i].Description, r.Description, rng)
		if w.out[i].Title != "" {
			w.out[i].Title = rw.rewrite(w.out[i].Title, r.Title, rng)
		}
	}
	return nil
}

// isAlias reports whether token is a sealed reference, ignoring surrounding
// punctuation.
func (w *working) isAlias(token string) bool {
	return w.aliasSet[strings.Trim(token, "()[]{}.,;:!?'\"")]
}

// rewriter performs keyed surrogate substitution on one text field.
type rewriter struct {
	key      []byte
	strength float64
	ngram    int
	maxRunes int
	keep     func(token string) bool
}

// rewrite seals scrubbed, using canonical as the source of banned n-grams.
// Every token is replaced with probability strength; afterwards any window
// of ngram tokens that matches canonical text verbatim has its last token
// replaced, and the result is cut to maxRunes on a token boundary.
func (rw rewriter) rewrite(scrubbed, canonical string, rng *rand.Rand) string {
	canon := strings.Fields(norm.NFC.String(canonical))
	vocab := make(map[string]bool, len(canon))
	for _, t := range canon {
		vocab[t] = true
	}
	banned := ngrams(canon, rw.ngram)

	tokens := strings.Fields(norm.NFC.String(scrubbed))
	for i, t := range tokens {
		// Draw for every token so the stream does not depend on content.
		hit := rng.Float64() < rw.strength
		if !hit || rw.keep(t) || stopwords[strings.ToLower(t)] {
			continue
		}
		tokens[i] = rw.surrogate(t, vocab)
	}
	for i := 0; i+rw.ngram <= len(tokens); i++ {
		if banned[strings.Join(tokens[i:i+rw.ngram], "\x00")] {
			last := i + rw.ngram - 1
			tokens[last] = rw.surrogate(tokens[last], vocab)
		}
	}
	return truncateTokens(tokens, rw.maxRunes, func(t string) bool { return banned[t] })
}

// surrogate maps token to a keyed stand-in that never occurs in vocab. The
// same token always maps to the same surrogate under one key.
func (rw rewriter) surrogate(token string, vocab map[string]bool) string {
	lower := strings.ToLower(token)
	for counter := 0; ; counter++ {
		s := "x" + encodeSymbols(prf(rw.key, "surrogate", lower, strconv.Itoa(counter)), surrogateWidth)
		if !vocab[s] {
			return s
		}
	}
}

func ngrams(tokens []string, n int) map[string]bool {
	out := make(map[string]bool)
	for i := 0; i+n <= len(tokens); i++ {
		out[strings.Join(tokens[i:i+n], "\x00")] = true
	}
	return out
}

// truncateTokens joins tokens with single spaces, stopping before the rune
// budget is exceeded. A lone first token longer than the budget is cut;
// if the cut piece is itself banned it is dropped.
func truncateTokens(tokens []string, maxRunes int, banned func(string) bool) string {
	var b strings.Builder
	used := 0
	for i, t := range tokens {
		n := utf8.RuneCountInString(t)
		if i > 0 {
			n++
		}
		if used+n > maxRunes {
			if i == 0 {
				cut := string([]rune(t)[:maxRunes])
				if banned(cut) {
					return ""
				}
				return cut
			}
			break
		}
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(t)
		used += n
	}
	return b.String()
}
