package apply

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/aulaverse/aulaverse/internal/game/effect"
)

// synthesizeNarrative builds a one-sentence outcome description from the
// applied effects when the generator produced none. Falls back to the action
// prompt when the effects carry no numeric change.
func synthesizeNarrative(e effect.Effect, fallback string) string {
	var parts []string

	if e.Points != nil && *e.Points != 0 {
		if *e.Points > 0 {
			parts = append(parts, fmt.Sprintf("gana %s puntos", formatAmount(*e.Points)))
		} else {
			parts = append(parts, fmt.Sprintf("pierde %s puntos", formatAmount(*e.Points)))
		}
	}
	if e.Money != nil && *e.Money != 0 {
		if *e.Money > 0 {
			parts = append(parts, fmt.Sprintf("obtiene %s monedas", formatAmount(*e.Money)))
		} else {
			parts = append(parts, fmt.Sprintf("pierde %s monedas", formatAmount(*e.Money)))
		}
	}
	if e.LifePercent != nil && *e.LifePercent != 0 {
		if *e.LifePercent > 0 {
			parts = append(parts, fmt.Sprintf("recupera %s%% de vida", formatAmount(*e.LifePercent)))
		} else {
			parts = append(parts, fmt.Sprintf("pierde %s%% de vida", formatAmount(*e.LifePercent)))
		}
	}
	if e.ChangeUniverseTo != "" {
		parts = append(parts, fmt.Sprintf("viaja al universo %s", e.ChangeUniverseTo))
	}

	if len(parts) == 0 {
		return strings.TrimSpace(fallback)
	}
	return capitalize(strings.Join(parts, " y ")) + "."
}

// formatAmount renders the magnitude of an effect value, dropping the
// fractional part when it is integral.
func formatAmount(v float64) string {
	v = math.Abs(v)
	if v == math.Trunc(v) {
		return strconv.Itoa(int(v))
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return strings.ToUpper(string(r)) + s[size:]
}
