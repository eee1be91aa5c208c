package dump

import (
	"encoding/json"
	"fmt"
	"math"
)

// Lookup walks decoded JSON objects along path
func Lookup(v any, path ...string) (any, bool) {
	for _, key := range path {
		m, ok := v.(map[string]any)
		if !ok {
			return nil, false
		}
		if v, ok = m[key]; !ok || v == nil {
			return nil, false
		}
	}
	return v, v != nil
}

// Number returns the number at path. Strings and other types are not
// converted.
func Number(v any, path ...string) (float64, bool) {
	v, ok := Lookup(v, path...)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// FirstNumber returns the first of paths that holds a number
func FirstNumber(v any, paths ...[]string) (float64, bool) {
	for _, path := range paths {
		if n, ok := Number(v, path...); ok {
			return n, true
		}
	}
	return 0, false
}

// Round formats n without decimals
func Round(n float64) string {
	return fmt.Sprintf("%d", int64(math.Round(n)))
}
