package learning

import (
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/brandista/swarm/internal/types"
)

// evaluateCorrectness applies the original's type-specific correctness
// rules in order: numeric values within a margin of max(20% of the
// predicted magnitude, 5 absolute units); booleans by equality; strings
// case-insensitively; lists by set overlap of at least half the union; and
// falls back to deep equality for anything else.
func evaluateCorrectness(predicted, actual types.JSONValue) (correct bool, margin *float64) {
	if pf, ok := toFloat(predicted); ok {
		if af, ok := toFloat(actual); ok {
			m := math.Abs(pf - af)
			threshold := math.Max(math.Abs(pf)*0.2, 5)
			return m <= threshold, &m
		}
	}
	if pb, ok := predicted.(bool); ok {
		if ab, ok := actual.(bool); ok {
			return pb == ab, nil
		}
	}
	if ps, ok := predicted.(string); ok {
		if as, ok := actual.(string); ok {
			return strings.EqualFold(ps, as), nil
		}
	}
	if pl, ok := toStringSlice(predicted); ok {
		if al, ok := toStringSlice(actual); ok {
			return overlapRatio(pl, al) >= 0.5, nil
		}
	}
	return reflect.DeepEqual(predicted, actual), nil
}

func toFloat(v types.JSONValue) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func toStringSlice(v types.JSONValue) ([]string, bool) {
	switch s := v.(type) {
	case []string:
		return s, true
	case []types.JSONValue:
		out := make([]string, len(s))
		for i, e := range s {
			out[i] = fmt.Sprint(e)
		}
		return out, true
	default:
		return nil, false
	}
}

func overlapRatio(a, b []string) float64 {
	setA := make(map[string]struct{}, len(a))
	for _, v := range a {
		setA[v] = struct{}{}
	}
	setB := make(map[string]struct{}, len(b))
	for _, v := range b {
		setB[v] = struct{}{}
	}
	union := make(map[string]struct{}, len(setA)+len(setB))
	overlap := 0
	for v := range setA {
		union[v] = struct{}{}
		if _, ok := setB[v]; ok {
			overlap++
		}
	}
	for v := range setB {
		union[v] = struct{}{}
	}
	if len(union) == 0 {
		return 1
	}
	return float64(overlap) / float64(len(union))
}
