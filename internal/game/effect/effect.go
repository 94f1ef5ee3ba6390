// Package effect canonicalizes the loosely structured effect maps produced
// by the narrative generator into a fixed vocabulary.
package effect

import (
	"encoding/json"
	"math"
	"strconv"
)

// Canonical effect keys.
const (
	KeyPoints           = "points"
	KeyMoney            = "money"
	KeyLifePercent      = "lifePercent"
	KeyChangeUniverseTo = "change_universe_to"
)

// Effect is the canonical form of a generator effect map. Numeric fields are
// nil when the source map carried no matching key. Extra holds unrecognised
// keys copied through unmodified so future effect types survive the round
// trip.
type Effect struct {
	Points           *float64
	Money            *float64
	LifePercent      *float64
	ChangeUniverseTo string
	Extra            map[string]any
}

// IsZero reports whether the effect carries nothing at all.
func (e Effect) IsZero() bool {
	return e.Points == nil && e.Money == nil && e.LifePercent == nil &&
		e.ChangeUniverseTo == "" && len(e.Extra) == 0
}

// Map renders the effect back into its canonical map form, the shape stored
// in event results and history entries. Integral values are emitted as
// integers.
func (e Effect) Map() map[string]any {
	out := make(map[string]any)
	if e.Points != nil {
		out[KeyPoints] = compactNumber(*e.Points)
	}
	if e.Money != nil {
		out[KeyMoney] = compactNumber(*e.Money)
	}
	if e.LifePercent != nil {
		out[KeyLifePercent] = compactNumber(*e.LifePercent)
	}
	if e.ChangeUniverseTo != "" {
		out[KeyChangeUniverseTo] = e.ChangeUniverseTo
	}
	for k, v := range e.Extra {
		out[k] = v
	}
	return out
}

// compactNumber narrows integral floats so JSON output reads "30" not "30.0"
// and map comparisons stay stable across normalization round trips.
func compactNumber(v float64) any {
	if v == math.Trunc(v) && !math.IsInf(v, 0) {
		return int(v)
	}
	return v
}

// asNumber coerces the value shapes that show up in generator output:
// JSON numbers, Go ints from handcrafted maps, and numeric strings.
func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
