package seal

import (
	"cmp"
	"math"
	"slices"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/sealbench/internal/ir"
)

// AliasAlphabet is the 32-symbol alias alphabet. It omits l, o, 0 and 1.
const AliasAlphabet = "abcdefghijkmnpqrstuvwxyz23456789"

// AliasPrefix marks every sealed identifier.
const AliasPrefix = "s-"

// maxAliasRehash bounds collision re-keying.
const maxAliasRehash = 64

// AliasWidth is the number of alphabet symbols in an alias at strength s.
func AliasWidth(s float64) int {
	return 8 + int(math.Round(8*s))
}

type identifierOp struct{}

func (identifierOp) kind() ir.OperatorKind { return ir.OpIdentifier }

// apply assigns aliases in canonical key order so that collision resolution
// is deterministic.
func (identifierOp) apply(w *working, strength float64, key []byte) error {
	width := AliasWidth(strength)
	taken := make(map[string]bool, len(w.records))
	for i, r := range w.records {
		a, err := assignAlias(key, r.CanonicalKey, width, taken)
		if err != nil {
			return err
		}
		w.alias[r.CanonicalKey] = a
		w.aliasSet[a] = true
		w.out[i].Alias = a
	}
	w.scrubReferences()
	return nil
}

// assignAlias returns the first alias for canonicalKey not already in taken,
// re-keying with a counter, and marks it taken.
func assignAlias(key []byte, canonicalKey string, width int, taken map[string]bool) (string, error) {
	for counter := range maxAliasRehash {
		a := deriveAlias(key, canonicalKey, counter, width)
		if !taken[a] {
			taken[a] = true
			return a, nil
		}
	}
	return "", ir.Errorf(ir.KindAliasCollision, canonicalKey, "alias space exhausted after %d attempts", maxAliasRehash)
}

// scrubReferences replaces canonical keys quoted in text and tags with their
// aliases, so later operators only see sealed references.
func (w *working) scrubReferences() {
	keys := make([]string, 0, len(w.alias))
	for k := range w.alias {
		keys = append(keys, k)
	}
	// Longest first, so a key never matches inside a longer one.
	slices.SortFunc(keys, func(a, b string) int {
		if c := cmp.Compare(len(b), len(a)); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	})
	for i := range w.out {
		w.out[i].Title = replaceKeys(w.out[i].Title, keys, w.alias)
		w.out[i].Description = replaceKeys(w.out[i].Description, keys, w.alias)
		for j, t := range w.out[i].Tags {
			w.out[i].Tags[j] = replaceKeys(t, keys, w.alias)
		}
	}
}

// replaceKeys substitutes every whole-word occurrence of a key in text. All
// other bytes are left as they are.
func replaceKeys(text string, keys []string, alias map[string]string) string {
	var b strings.Builder
	copied := 0
	for i := 0; i < len(text); {
		if k := keyAt(text, i, keys); k != "" {
			b.WriteString(text[copied:i])
			b.WriteString(alias[k])
			i += len(k)
			copied = i
			continue
		}
		_, size := utf8.DecodeRuneInString(text[i:])
		i += size
	}
	if copied == 0 {
		return text
	}
	b.WriteString(text[copied:])
	return b.String()
}

// keyAt returns the first of keys that occurs at offset i as a whole word:
// the runes on either side, if any, are not word runes.
func keyAt(text string, i int, keys []string) string {
	if i > 0 {
		if r, _ := utf8.DecodeLastRuneInString(text[:i]); isWordRune(r) {
			return ""
		}
	}
	rest := text[i:]
	for _, k := range keys {
		if k == "" || !strings.HasPrefix(rest, k) {
			continue
		}
		if len(k) < len(rest) {
			if r, _ := utf8.DecodeRuneInString(rest[len(k):]); isWordRune(r) {
				continue
			}
		}
		return k
	}
	return ""
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// deriveAlias encodes the keyed PRF of the NFC canonical key.
func deriveAlias(key []byte, canonicalKey string, counter, width int) string {
	sum := prf(key, norm.NFC.String(canonicalKey), strconv.Itoa(counter))
	return AliasPrefix + encodeSymbols(sum, width)
}

// encodeSymbols renders the leading bits of sum in AliasAlphabet, five bits
// per symbol. width must not exceed 51.
func encodeSymbols(sum [32]byte, width int) string {
	buf := make([]byte, 0, width)
	var acc uint32
	var bits int
	i := 0
	for len(buf) < width {
		if bits < 5 {
			acc = acc<<8 | uint32(sum[i])
			bits += 8
			i++
		}
		bits -= 5
		buf = append(buf, AliasAlphabet[(acc>>bits)&31])
	}
	return string(buf)
}
