// Package canon produces the deterministic, byte-exact serialization of
// tool arguments that the rest of the runtime treats as the sole basis for
// integrity hashing. Two semantically-equal argument maps must canonicalize
// to identical bytes, independent of map iteration order or input key case.
package canon

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// IntegrityError signals that a value could not be canonicalized:
// NaN/Inf, a cyclic structure, a non-string map key, or a type outside
// the permitted set.
type IntegrityError struct {
	Reason string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity error: %s", e.Reason)
}

func newIntegrityError(format string, args ...any) error {
	return &IntegrityError{Reason: fmt.Sprintf(format, args...)}
}

// Canonicalize renders args as a stable, minimal JSON-style string: map
// keys in lexicographic code-point order, no insignificant whitespace,
// numbers in shortest round-trip form, strings NFC-normalized and
// minimally escaped. It fails with *IntegrityError on NaN, Inf, cycles,
// non-string map keys, or unsupported types.
func Canonicalize(args map[string]any) (string, error) {
	var b strings.Builder
	seen := make(map[any]bool)
	if err := writeValue(&b, args, seen, 0); err != nil {
		return "", err
	}
	return b.String(), nil
}

const maxDepth = 64

func writeValue(b *strings.Builder, v any, seen map[any]bool, depth int) error {
	if depth > maxDepth {
		return newIntegrityError("structure exceeds max depth %d (possible cycle)", maxDepth)
	}

	switch val := v.(type) {
	case nil:
		b.WriteString("null")
		return nil
	case bool:
		if val {
			b.WriteString("true")
		} else {
			b.WriteString("false")
		}
		return nil
	case string:
		writeString(b, val)
		return nil
	case float64:
		return writeNumber(b, val)
	case int:
		b.WriteString(strconv.Itoa(val))
		return nil
	case int64:
		b.WriteString(strconv.FormatInt(val, 10))
		return nil
	case map[string]any:
		return writeMap(b, val, seen, depth)
	case []any:
		return writeSlice(b, val, seen, depth)
	default:
		return newIntegrityError("unsupported type %T", v)
	}
}

func writeMap(b *strings.Builder, m map[string]any, seen map[any]bool, depth int) error {
	ptrKey := fmt.Sprintf("%p", m)
	if len(m) > 0 {
		if seen[ptrKey] {
			return newIntegrityError("cyclic structure detected")
		}
		seen[ptrKey] = true
		defer delete(seen, ptrKey)
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		writeString(b, k)
		b.WriteByte(':')
		if err := writeValue(b, m[k], seen, depth+1); err != nil {
			return err
		}
	}
	b.WriteByte('}')
	return nil
}

func writeSlice(b *strings.Builder, s []any, seen map[any]bool, depth int) error {
	ptrKey := fmt.Sprintf("%p", s)
	if len(s) > 0 {
		if seen[ptrKey] {
			return newIntegrityError("cyclic structure detected")
		}
		seen[ptrKey] = true
		defer delete(seen, ptrKey)
	}

	b.WriteByte('[')
	for i, elem := range s {
		if i > 0 {
			b.WriteByte(',')
		}
		if err := writeValue(b, elem, seen, depth+1); err != nil {
			return err
		}
	}
	b.WriteByte(']')
	return nil
}

func writeNumber(b *strings.Builder, f float64) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return newIntegrityError("NaN and Infinity are not permitted")
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		b.WriteString(strconv.FormatFloat(f, 'f', -1, 64))
		return nil
	}
	b.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
	return nil
}

// writeString NFC-normalizes and writes a minimally-escaped, double-quoted
// JSON string.
func writeString(b *strings.Builder, s string) {
	s = norm.NFC.String(s)
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if r < 0x20 {
				fmt.Fprintf(b, `\u%04x`, r)
			} else {
				b.WriteRune(r)
			}
		}
	}
	b.WriteByte('"')
}
