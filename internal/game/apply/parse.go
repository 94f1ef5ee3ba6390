package apply

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// maxNarrativeLength truncates runaway generator output.
const maxNarrativeLength = 800

// generatorResult is the JSON shape the generator is asked to return.
type generatorResult struct {
	Effects   map[string]any `json:"effects"`
	Narrative string         `json:"narrative"`
	Choices   []any          `json:"choices"`
}

// parseResultJSON attempts a strict JSON parse of the raw generator output.
func parseResultJSON(raw string) (generatorResult, bool) {
	var result generatorResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return generatorResult{}, false
	}
	return result, true
}

// instructionFragments are prompt-template lines that leak into free-text
// generator output and carry no narrative value.
var instructionFragments = []string{
	"Return only a JSON object",
	"Provide a single valid JSON object",
	"Respond with a JSON describing effects",
	"Student action:",
	"Player action:",
}

// cleanNarrativeText strips instruction fragments, collapses pathologically
// repeated tokens, and truncates the result.
func cleanNarrativeText(text string) string {
	if text == "" {
		return ""
	}
	text = strings.ReplaceAll(text, "\r", "\n")
	for _, fragment := range instructionFragments {
		text = strings.ReplaceAll(text, fragment, "")
	}

	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		tokens := strings.Fields(line)
		if len(tokens) > 5 && allEqual(tokens[:6]) {
			lines = append(lines, tokens[0])
			continue
		}
		lines = append(lines, line)
	}

	result := strings.TrimSpace(strings.Join(lines, " "))
	if len(result) > maxNarrativeLength {
		result = result[:maxNarrativeLength] + "..."
	}
	return result
}

func allEqual(tokens []string) bool {
	for _, t := range tokens[1:] {
		if t != tokens[0] {
			return false
		}
	}
	return true
}

// Bilingual phrase patterns for heuristic effect extraction from free text.
var (
	gainPointsRe   = regexp.MustCompile(`(?i)gana\s+(\d+)(?:\s+puntos|\s+points)?`)
	losePointsRe   = regexp.MustCompile(`(?i)pierde\s+(\d+)(?:\s+puntos|\s+points)?`)
	barePointsRe   = regexp.MustCompile(`(?i)(\d+)\s+(?:puntos|points)`)
	gainMoneyRe    = regexp.MustCompile(`(?i)gana\s+(\d+)\s+(?:dinero|money|coins)`)
	loseMoneyRe    = regexp.MustCompile(`(?i)pierde\s+(\d+)\s+(?:dinero|money|coins)`)
	bareMoneyRe    = regexp.MustCompile(`(?i)(\d+)\s+(?:dinero|money|coins)`)
	loseLifeRe     = regexp.MustCompile(`(?i)pierde\s+(\d+)%?\s+de\s+vida`)
	absoluteLifeRe = regexp.MustCompile(`(?i)life[:\s-]+(\d+)%`)
	bareLifeRe     = regexp.MustCompile(`(?i)(\d+)%\s+vida`)
	changeKeyRe    = regexp.MustCompile(`(?i)change_universe_to[:\s]+([A-Za-z0-9_\-]+)`)
	changePhraseRe = regexp.MustCompile(`(?i)mueve?s?\s+a\s+universo\s+([A-Za-z0-9_\-]+)`)
)

// extractEffectsFromText pulls numeric effects out of localized narrative
// phrases such as "gana 30 puntos y pierde 10% de vida". It returns an empty
// map when nothing matches.
//
// Life and money phrases are extracted first and stripped from the working
// text: the points patterns accept a bare "gana N" / "pierde N" and would
// otherwise consume "pierde 10% de vida" as a points loss.
func extractEffectsFromText(text string) map[string]any {
	effects := make(map[string]any)
	if text == "" {
		return effects
	}

	if m := loseLifeRe.FindStringSubmatch(text); m != nil {
		effects["lifePercent"] = -mustInt(m[1])
		text = loseLifeRe.ReplaceAllString(text, " ")
	}
	if m := absoluteLifeRe.FindStringSubmatch(text); m != nil {
		effects["lifePercent"] = mustInt(m[1])
		text = absoluteLifeRe.ReplaceAllString(text, " ")
	}
	if _, ok := effects["lifePercent"]; !ok {
		if m := bareLifeRe.FindStringSubmatch(text); m != nil {
			effects["lifePercent"] = mustInt(m[1])
			text = bareLifeRe.ReplaceAllString(text, " ")
		}
	}

	if m := gainMoneyRe.FindStringSubmatch(text); m != nil {
		effects["money"] = mustInt(m[1])
		text = gainMoneyRe.ReplaceAllString(text, " ")
	}
	if m := loseMoneyRe.FindStringSubmatch(text); m != nil {
		current, _ := effects["money"].(int)
		effects["money"] = current - mustInt(m[1])
		text = loseMoneyRe.ReplaceAllString(text, " ")
	}
	if _, ok := effects["money"]; !ok {
		if m := bareMoneyRe.FindStringSubmatch(text); m != nil {
			effects["money"] = mustInt(m[1])
			text = bareMoneyRe.ReplaceAllString(text, " ")
		}
	}

	if m := gainPointsRe.FindStringSubmatch(text); m != nil {
		effects["points"] = mustInt(m[1])
	}
	if m := losePointsRe.FindStringSubmatch(text); m != nil {
		current, _ := effects["points"].(int)
		effects["points"] = current - mustInt(m[1])
	}
	if _, ok := effects["points"]; !ok {
		if m := barePointsRe.FindStringSubmatch(text); m != nil {
			effects["points"] = mustInt(m[1])
		}
	}

	if m := changeKeyRe.FindStringSubmatch(text); m != nil {
		effects["change_universe_to"] = m[1]
	}
	if m := changePhraseRe.FindStringSubmatch(text); m != nil {
		effects["change_universe_to"] = m[1]
	}

	return effects
}

func mustInt(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
