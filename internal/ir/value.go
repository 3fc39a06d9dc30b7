package ir

import (
	"slices"
	"unicode/utf16"
)

// Value is a closed set of canonical value types.
// Only Str, Int, Bool, List and Object implement it. There is no float and no
// null: neither has a single canonical byte form.
type Value interface {
	canonicalValue()
}

// Str is a string value. It is NFC normalized when serialized.
type Str string

func (Str) canonicalValue() {}

// Int is an integer value.
type Int int64

func (Int) canonicalValue() {}

// Bool is a boolean value.
type Bool bool

func (Bool) canonicalValue() {}

// List is an ordered sequence of values.
type List []Value

func (List) canonicalValue() {}

// Object maps string keys to values. Use SortedKeys for iteration.
type Object map[string]Value

func (Object) canonicalValue() {}

// Strs converts a string slice to a List, preserving order.
func Strs(values []string) List {
	out := make(List, len(values))
	for i, v := range values {
		out[i] = Str(v)
	}
	return out
}

// SortedKeys returns keys in RFC 8785 order (UTF-16 code units).
// Go's native string order compares UTF-8 bytes, which differs for
// characters outside the BMP.
func (obj Object) SortedKeys() []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareUTF16)
	return keys
}

func compareUTF16(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))
	n := min(len(a16), len(b16))
	for i := 0; i < n; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a16) < len(b16):
		return -1
	case len(a16) > len(b16):
		return 1
	default:
		return 0
	}
}
