package audit

import (
	"slices"
	"strings"

	"github.com/roach88/sealbench/internal/codebook"
	"github.com/roach88/sealbench/internal/ir"
)

// ClaimStatus is the outcome for one alias in a recovery audit.
type ClaimStatus string

const (
	StatusVerified     ClaimStatus = "verified"
	StatusRejected     ClaimStatus = "rejected"
	StatusAmbiguous    ClaimStatus = "ambiguous"
	StatusUnknownAlias ClaimStatus = "unknown_alias"
)

// ClaimVerdict is the judgment for one alias.
type ClaimVerdict struct {
	Alias  string      `json:"alias"`
	Claims []string    `json:"claims"`
	Status ClaimStatus `json:"status"`
}

// Verdict is the white-box recovery result.
type Verdict struct {
	Verified int            `json:"verified"`
	Total    int            `json:"total"`
	Rate     float64        `json:"rate"`
	Claims   []ClaimVerdict `json:"claims"`
}

// RunRecoveryAudit verifies claims against cb. Claims are grouped by alias;
// an alias claimed with more than one distinct key is ambiguous and never
// counts. Only exact matches verify. Rate is verified aliases over sealed
// identifiers in world.
func RunRecoveryAudit(v Verifier, world *ir.SealedWorld, cb *codebook.Codebook, claims []Claim) Verdict {
	sealed := make(map[string]bool, len(world.Records))
	for _, r := range world.Records {
		sealed[r.Alias] = true
	}

	grouped := make(map[string][]string)
	for _, c := range claims {
		if !slices.Contains(grouped[c.Alias], c.CanonicalKey) {
			grouped[c.Alias] = append(grouped[c.Alias], c.CanonicalKey)
		}
	}

	aliases := make([]string, 0, len(grouped))
	for alias := range grouped {
		aliases = append(aliases, alias)
	}
	slices.SortFunc(aliases, strings.Compare)

	verdict := Verdict{Total: len(world.Records), Claims: make([]ClaimVerdict, 0, len(aliases))}
	for _, alias := range aliases {
		keys := grouped[alias]
		slices.Sort(keys)
		cv := ClaimVerdict{Alias: alias, Claims: keys}
		switch {
		case !sealed[alias]:
			cv.Status = StatusUnknownAlias
		case len(keys) > 1:
			cv.Status = StatusAmbiguous
		case v.Verify(cb, map[string]string{alias: keys[0]}):
			cv.Status = StatusVerified
			verdict.Verified++
		default:
			cv.Status = StatusRejected
		}
		verdict.Claims = append(verdict.Claims, cv)
	}
	verdict.Rate = rate(verdict.Verified, verdict.Total)
	return verdict
}

// ClaimsFromMapping turns an alias -> key mapping into claims in alias order.
func ClaimsFromMapping(mapping map[string]string) []Claim {
	out := make([]Claim, 0, len(mapping))
	for alias, key := range mapping {
		out = append(out, Claim{Alias: alias, CanonicalKey: key})
	}
	slices.SortFunc(out, func(a, b Claim) int { return strings.Compare(a.Alias, b.Alias) })
	return out
}

// TopClaims keeps, per alias, only the first claim in order. Adversary
// output holds one guess per probe; the first is its best single guess.
func TopClaims(claims []Claim) []Claim {
	seen := make(map[string]bool)
	var out []Claim
	for _, c := range claims {
		if seen[c.Alias] {
			continue
		}
		seen[c.Alias] = true
		out = append(out, c)
	}
	return out
}
