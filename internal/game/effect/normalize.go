package effect

import (
	"sort"
	"strings"
)

// Synonym sets recognised by Normalize, matched case-insensitively. Points
// and money synonyms are summed; life and universe-change take the first
// match because life is a gauge, not an accumulator.
var (
	pointsKeys = map[string]struct{}{
		"points": {}, "point": {}, "score": {}, "experiencepoints": {}, "experience": {}, "xp": {},
	}
	moneyKeys = map[string]struct{}{
		"money": {}, "currency": {}, "gold": {}, "coins": {}, "cash": {},
	}
	lifeKeys = map[string]struct{}{
		"lifepercent": {}, "life_percent": {}, "life": {}, "hp": {},
	}
	universeKeys = map[string]struct{}{
		"change_universe_to": {}, "changeuniverse": {}, "move_to_universe": {}, "mueve_a_universo": {},
	}
)

// Normalize canonicalizes a raw effect map. It is a pure function of its
// input, and normalizing an already-canonical map is a no-op.
func Normalize(raw map[string]any) Effect {
	var out Effect
	if len(raw) == 0 {
		return out
	}

	if total, ok := sumMatching(raw, pointsKeys); ok {
		out.Points = &total
	}
	if total, ok := sumMatching(raw, moneyKeys); ok {
		out.Money = &total
	}
	if v, ok := firstMatching(raw, lifeKeys); ok {
		out.LifePercent = &v
	}
	for _, k := range sortedKeys(raw) {
		if _, match := universeKeys[strings.ToLower(k)]; match {
			if s, ok := raw[k].(string); ok && s != "" {
				out.ChangeUniverseTo = s
				break
			}
		}
	}

	for k, v := range raw {
		lk := strings.ToLower(k)
		if _, claimed := pointsKeys[lk]; claimed {
			continue
		}
		if _, claimed := moneyKeys[lk]; claimed {
			continue
		}
		if _, claimed := lifeKeys[lk]; claimed {
			continue
		}
		if _, claimed := universeKeys[lk]; claimed {
			continue
		}
		if out.Extra == nil {
			out.Extra = make(map[string]any)
		}
		out.Extra[k] = v
	}

	return out
}

// sumMatching adds up every numeric value whose key matches the synonym set.
func sumMatching(raw map[string]any, keys map[string]struct{}) (float64, bool) {
	var total float64
	found := false
	for k, v := range raw {
		if _, match := keys[strings.ToLower(k)]; !match {
			continue
		}
		if n, ok := asNumber(v); ok {
			total += n
			found = true
		}
	}
	return total, found
}

// firstMatching returns the first numeric value whose key matches the set,
// scanning keys in deterministic order so duplicate synonyms tie-break
// consistently.
func firstMatching(raw map[string]any, keys map[string]struct{}) (float64, bool) {
	for _, k := range sortedKeys(raw) {
		if _, match := keys[strings.ToLower(k)]; !match {
			continue
		}
		if n, ok := asNumber(raw[k]); ok {
			return n, true
		}
	}
	return 0, false
}

func sortedKeys(raw map[string]any) []string {
	out := make([]string, 0, len(raw))
	for k := range raw {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
