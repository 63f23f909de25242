package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// HashAttributes returns the content hash of a declaration's attributes.
// The hash is computed over a canonical JSON encoding (sorted keys,
// normalized numbers) so it is stable across parse and state round-trips.
func HashAttributes(attrs map[string]any) string {
	sum := sha256.Sum256(canonicalJSON(attrs))
	return hex.EncodeToString(sum[:])
}

// canonicalJSON encodes a value deterministically: object keys sorted,
// integral floats rendered without a fraction.
func canonicalJSON(v any) []byte {
	var b strings.Builder
	writeCanonical(&b, v)
	return []byte(b.String())
}

func writeCanonical(b *strings.Builder, v any) {
	switch val := v.(type) {
	case nil:
		b.WriteString("null")
	case map[string]any:
		b.WriteByte('{')
		keys := sortedKeys(val)
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			kj, _ := json.Marshal(k)
			b.Write(kj)
			b.WriteByte(':')
			writeCanonical(b, val[k])
		}
		b.WriteByte('}')
	case []any:
		b.WriteByte('[')
		for i, e := range val {
			if i > 0 {
				b.WriteByte(',')
			}
			writeCanonical(b, e)
		}
		b.WriteByte(']')
	case float64:
		if val == float64(int64(val)) {
			fmt.Fprintf(b, "%d", int64(val))
			return
		}
		j, _ := json.Marshal(val)
		b.Write(j)
	case int:
		fmt.Fprintf(b, "%d", val)
	case int64:
		fmt.Fprintf(b, "%d", val)
	default:
		j, err := json.Marshal(val)
		if err != nil {
			fmt.Fprintf(b, "%q", fmt.Sprintf("%v", val))
			return
		}
		b.Write(j)
	}
}

// ValuesEqual compares two attribute values by canonical encoding, so an
// int64 from a fresh parse equals the float64 the same number becomes after
// a JSON state round-trip.
func ValuesEqual(a, b any) bool {
	return string(canonicalJSON(a)) == string(canonicalJSON(b))
}
