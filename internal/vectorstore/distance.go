package vectorstore

import (
	"encoding/json"
	"math"
)

// ToSimilarity converts a backend distance into a similarity score in [0, 1].
//
// nil and non-numeric input score 0. Distances at or above 1 score 1 and
// distances at or below 0 score 0; anything in between scores 1 - distance.
// Out-of-range values are clamped, never rejected.
func ToSimilarity(distance any) float64 {
	d, ok := toFloat(distance)
	if !ok || math.IsNaN(d) {
		return 0
	}
	if d >= 1 {
		return 1
	}
	if d <= 0 {
		return 0
	}
	return 1 - d
}

// toFloat widens any Go numeric kind to float64.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case *float64:
		if n == nil {
			return 0, false
		}
		return *n, true
	case *float32:
		if n == nil {
			return 0, false
		}
		return float64(*n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
