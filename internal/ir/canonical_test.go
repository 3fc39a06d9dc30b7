package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonicalSortedKeys(t *testing.T) {
	data, err := MarshalCanonical(Object{
		"zeta":  Int(1),
		"alpha": Str("x"),
		"mid":   Object{"b": Bool(true), "a": Bool(false)},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":"x","mid":{"a":false,"b":true},"zeta":1}`, string(data))
}

func TestMarshalCanonicalUTF16Ordering(t *testing.T) {
	// U+1F600 encodes as surrogate 0xD83D which sorts before U+FFFF in
	// UTF-16, although its UTF-8 form sorts after.
	data, err := MarshalCanonical(Object{
		"\uffff":     Int(1),
		"\U0001F600": Int(2),
	})
	require.NoError(t, err)
	assert.Equal(t, "{\"\U0001F600\":2,\"\uffff\":1}", string(data))
}

func TestMarshalCanonicalNoHTMLEscape(t *testing.T) {
	data, err := MarshalCanonical(Str("<a & b>"))
	require.NoError(t, err)
	assert.Equal(t, `"<a & b>"`, string(data))
}

func TestMarshalCanonicalLineSeparatorsLiteral(t *testing.T) {
	data, err := MarshalCanonical(Str("a\u2028b\u2029c"))
	require.NoError(t, err)
	assert.Equal(t, "\"a\u2028b\u2029c\"", string(data))
}

func TestMarshalCanonicalEscapes(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"quote\"", `"quote\""`},
		{`back\slash`, `"back\\slash"`},
		{"tab\tnl\n", `"tab\tnl\n"`},
		{"\x01", `"\u0001"`},
		{"\x1f", `"\u001f"`},
	}
	for _, tt := range tests {
		data, err := MarshalCanonical(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, string(data), "input %q", tt.in)
	}
}

func TestMarshalCanonicalNFC(t *testing.T) {
	decomposed := "e\u0301"
	data, err := MarshalCanonical(Object{decomposed: Str(decomposed)})
	require.NoError(t, err)
	assert.Equal(t, "{\"\u00e9\":\"\u00e9\"}", string(data))
}

func TestMarshalCanonicalRejectsFloatsAndNull(t *testing.T) {
	_, err := MarshalCanonical(1.5)
	assert.Error(t, err)

	_, err = MarshalCanonical(nil)
	assert.Error(t, err)

	_, err = MarshalCanonical(map[string]any{"x": []any{float32(2)}})
	assert.Error(t, err)
}

func TestMarshalCanonicalGoTypes(t *testing.T) {
	data, err := MarshalCanonical(map[string]any{
		"list": []string{"b", "a"},
		"n":    int64(-3),
		"m":    7,
		"ok":   true,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"list":["b","a"],"m":7,"n":-3,"ok":true}`, string(data))
}

func TestMarshalCanonicalIdempotent(t *testing.T) {
	v := Object{"records": List{Object{"alias": Str("s-1"), "tags": Strs([]string{"x"})}}}
	first, err := MarshalCanonical(v)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := MarshalCanonical(v)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestHashWithDomainSeparates(t *testing.T) {
	data := []byte(`{"a":1}`)
	h1 := HashWithDomain(DomainWorld, data)
	h2 := HashWithDomain(DomainConfig, data)
	assert.Len(t, h1, 64)
	assert.NotEqual(t, h1, h2)
	assert.Equal(t, h1, HashWithDomain(DomainWorld, data))
}
