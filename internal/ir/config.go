package ir

import (
	"fmt"
	"math"
	"slices"
)

// OperatorKind names one sealing operator. The set is closed.
type OperatorKind string

const (
	OpIdentifier OperatorKind = "identifier"
	OpLexical    OperatorKind = "lexical"
	OpStructural OperatorKind = "structural"
	OpNumeric    OperatorKind = "numeric"
)

// OperatorOrder is the fixed application order. Lexical and structural
// sealing must observe already-sealed aliases.
var OperatorOrder = []OperatorKind{OpIdentifier, OpLexical, OpStructural, OpNumeric}

// ParseOperatorKind resolves an operator name.
func ParseOperatorKind(name string) (OperatorKind, error) {
	for _, k := range OperatorOrder {
		if string(k) == name {
			return k, nil
		}
	}
	return "", Errorf(KindSealConfig, name, "unknown operator")
}

// Defaults applied by WithDefaults.
const (
	DefaultBuckets             = 5
	DefaultMaxDescriptionRunes = 280
	DefaultNGramLimit          = 4
	DefaultSkipThreshold       = 0.05
	MaxLevel                   = 3
)

// SealConfig fully determines operator behaviour given a seed.
type SealConfig struct {
	Name  string `json:"name" yaml:"name"`
	Level int    `json:"level" yaml:"level"`

	// Per-operator strengths, each in [0,1].
	Identifier float64 `json:"identifier" yaml:"identifier"`
	Lexical    float64 `json:"lexical" yaml:"lexical"`
	Structural float64 `json:"structural" yaml:"structural"`
	Numeric    float64 `json:"numeric" yaml:"numeric"`

	// Buckets is the numeric quantization level count.
	Buckets int `json:"buckets" yaml:"buckets"`

	// MaxDescriptionRunes caps lexically sealed text length.
	MaxDescriptionRunes int `json:"max_description_runes" yaml:"max_description_runes"`

	// NGramLimit bans verbatim token n-grams of this length from canonical text.
	NGramLimit int `json:"ngram_limit" yaml:"ngram_limit"`

	// SkipThreshold is the largest tolerated fraction of skipped records.
	SkipThreshold float64 `json:"skip_threshold" yaml:"skip_threshold"`

	// Operators lists enabled operators by name. Empty enables all.
	Operators []string `json:"operators,omitempty" yaml:"operators,omitempty"`
}

// LevelPreset returns the named seal level with defaults filled in.
// Identifier sealing is active at every level, including 0.
func LevelPreset(level int) (SealConfig, error) {
	var s float64
	switch level {
	case 0:
		s = 0
	case 1:
		s = 0.25
	case 2:
		s = 0.5
	case 3:
		s = 1
	default:
		return SealConfig{}, Errorf(KindSealConfig, fmt.Sprintf("level=%d", level), "unknown seal level")
	}
	cfg := SealConfig{
		Name:       fmt.Sprintf("level-%d", level),
		Level:      level,
		Identifier: s,
		Lexical:    s,
		Structural: s,
		Numeric:    s,
	}
	return cfg.WithDefaults(), nil
}

// WithDefaults fills zero-valued tunables.
func (c SealConfig) WithDefaults() SealConfig {
	if c.Buckets == 0 {
		c.Buckets = DefaultBuckets
	}
	if c.MaxDescriptionRunes == 0 {
		c.MaxDescriptionRunes = DefaultMaxDescriptionRunes
	}
	if c.NGramLimit == 0 {
		c.NGramLimit = DefaultNGramLimit
	}
	if c.SkipThreshold == 0 {
		c.SkipThreshold = DefaultSkipThreshold
	}
	if c.Name == "" {
		c.Name = fmt.Sprintf("level-%d", c.Level)
	}
	return c
}

// Validate rejects out-of-range strengths and unknown operators.
func (c SealConfig) Validate() error {
	if c.Level < 0 || c.Level > MaxLevel {
		return Errorf(KindSealConfig, fmt.Sprintf("level=%d", c.Level), "unknown seal level")
	}
	for _, k := range OperatorOrder {
		s := c.rawStrength(k)
		if math.IsNaN(s) || s < 0 || s > 1 {
			return Errorf(KindSealConfig, string(k), "strength %v outside [0,1]", s)
		}
	}
	if c.Buckets < 1 {
		return Errorf(KindSealConfig, "buckets", "bucket count must be positive, got %d", c.Buckets)
	}
	if c.MaxDescriptionRunes < 1 {
		return Errorf(KindSealConfig, "max_description_runes", "must be positive, got %d", c.MaxDescriptionRunes)
	}
	if c.NGramLimit < 1 {
		return Errorf(KindSealConfig, "ngram_limit", "must be positive, got %d", c.NGramLimit)
	}
	if math.IsNaN(c.SkipThreshold) || c.SkipThreshold < 0 || c.SkipThreshold > 1 {
		return Errorf(KindSealConfig, "skip_threshold", "%v outside [0,1]", c.SkipThreshold)
	}
	if len(c.Operators) > 0 {
		for _, name := range c.Operators {
			if _, err := ParseOperatorKind(name); err != nil {
				return err
			}
		}
		if !slices.Contains(c.Operators, string(OpIdentifier)) {
			return Errorf(KindSealConfig, string(OpIdentifier), "identifier sealing cannot be disabled")
		}
	}
	return nil
}

func (c SealConfig) rawStrength(k OperatorKind) float64 {
	switch k {
	case OpIdentifier:
		return c.Identifier
	case OpLexical:
		return c.Lexical
	case OpStructural:
		return c.Structural
	case OpNumeric:
		return c.Numeric
	default:
		panic(fmt.Sprintf("ir: unhandled operator %q", k))
	}
}

// Enabled reports whether operator k runs.
func (c SealConfig) Enabled(k OperatorKind) bool {
	return len(c.Operators) == 0 || slices.Contains(c.Operators, string(k))
}

// Strength is the effective strength of k: 0 when the operator is disabled.
func (c SealConfig) Strength(k OperatorKind) float64 {
	if !c.Enabled(k) {
		return 0
	}
	return c.rawStrength(k)
}

// PPM encodes a strength as integer parts per million for canonical output.
func PPM(s float64) Int {
	return Int(math.Round(s * 1e6))
}

// Canonical returns the canonical object form used for fingerprinting.
func (c SealConfig) Canonical() Object {
	ops := make([]string, 0, len(OperatorOrder))
	for _, k := range OperatorOrder {
		if c.Enabled(k) {
			ops = append(ops, string(k))
		}
	}
	return Object{
		"name":                  Str(c.Name),
		"level":                 Int(c.Level),
		"identifier_ppm":        PPM(c.Identifier),
		"lexical_ppm":           PPM(c.Lexical),
		"structural_ppm":        PPM(c.Structural),
		"numeric_ppm":           PPM(c.Numeric),
		"buckets":               Int(c.Buckets),
		"max_description_runes": Int(c.MaxDescriptionRunes),
		"ngram_limit":           Int(c.NGramLimit),
		"skip_threshold_ppm":    PPM(c.SkipThreshold),
		"operators":             Strs(ops),
	}
}

// Fingerprint is the domain-separated hash of the canonical config.
func (c SealConfig) Fingerprint() string {
	fp, err := CanonicalHash(DomainConfig, c.Canonical())
	if err != nil {
		// Canonical contains only Str/Int/List values.
		panic(err)
	}
	return fp
}
