package canon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalize_KeyOrdering(t *testing.T) {
	a, err := Canonicalize(map[string]any{"b": 1.0, "a": 2.0})
	require.NoError(t, err)
	assert.Equal(t, `{"a":2,"b":1}`, a)
}

func TestCanonicalize_NestedAndArrays(t *testing.T) {
	args := map[string]any{
		"path":  "README.md",
		"flags": []any{"r", "w"},
		"opts":  map[string]any{"z": true, "a": nil},
	}
	out, err := Canonicalize(args)
	require.NoError(t, err)
	assert.Equal(t, `{"flags":["r","w"],"opts":{"a":null,"z":true},"path":"README.md"}`, out)
}

func TestCanonicalize_Idempotent(t *testing.T) {
	args := map[string]any{"to": "boss@acme.com", "body": "hi"}
	first, err := Canonicalize(args)
	require.NoError(t, err)

	second, err := Canonicalize(args)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestCanonicalize_RejectsNaN(t *testing.T) {
	_, err := Canonicalize(map[string]any{"x": nan()})
	require.Error(t, err)
	var ie *IntegrityError
	assert.ErrorAs(t, err, &ie)
}

func TestCanonicalize_RejectsUnsupportedType(t *testing.T) {
	_, err := Canonicalize(map[string]any{"x": struct{}{}})
	require.Error(t, err)
}

func TestCanonicalize_IntegerNoDecimalPoint(t *testing.T) {
	out, err := Canonicalize(map[string]any{"n": 42.0})
	require.NoError(t, err)
	assert.Equal(t, `{"n":42}`, out)
}

func TestCanonicalize_StringEscaping(t *testing.T) {
	out, err := Canonicalize(map[string]any{"s": "a\"b\\c\nd"})
	require.NoError(t, err)
	assert.Equal(t, `{"s":"a\"b\\c\nd"}`, out)
}

func TestHash_MatchesSHA256OfCanonical(t *testing.T) {
	canonical, hash, err := CanonicalizeAndHash(map[string]any{"path": "README.md"})
	require.NoError(t, err)
	assert.Equal(t, Hash(canonical), hash)
	assert.Len(t, hash, 64)
}

func nan() float64 {
	var zero float64
	return zero / zero
}
