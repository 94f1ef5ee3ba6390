package narrative

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aulaverse/aulaverse/internal/game/domain"
)

// How much context the prompt builder carries along.
const (
	recentActionLimit  = 3
	recentEventLimit   = 30
	eventSnippetLength = 200
)

// baseInstruction pins the generator to the strict JSON contract the
// applicator parses. Spanish narration keeps the output consistent with the
// synthesized fallback phrases.
const baseInstruction = `Eres un Game Master de un juego de rol multijugador. Responde SOLO con JSON válido, sin texto extra, sin explicaciones, sin markdown.

Formato ESTRICTO: {"effects": {NUMEROS}, "narrative": "TEXTO", "choices": [opciones]}

effects: SOLO estas claves (todas opcionales): 'points', 'money', 'lifePercent'.
  - 'points': entero, rango -500 a +1000.
  - 'money': entero, rango -1000 a +5000.
  - 'lifePercent': DELTA en puntos porcentuales, no absoluto. Usa valores pequeños: -5, -10, +3.
narrative: 1-2 frases breves en español, usando el contexto y la historia del jugador si está disponible.
choices: 2-3 opciones de acción, cada una string o {"description": string, "effects": {...}}.

Ejemplo de respuesta:
{"effects": {"points": 100, "money": 200, "lifePercent": -2}, "narrative": "Encuentras un cofre y obtienes 100 monedas, pero pierdes 2% de vida por una trampa.", "choices": ["Seguir explorando", "Volver al campamento"]}
NO agregues texto antes ni después del JSON. Si no sabes qué responder, usa: {"effects": {}, "narrative": "No puedo responder a eso."}`

// PromptInput gathers the world state rendered into the system prompt.
type PromptInput struct {
	Universe     domain.Universe
	Character    *domain.Character
	RecentEvents []domain.Event
	Knowledge    string
}

// BuildSystemPrompt renders the generator instruction plus the world context:
// character sheet, recent actions, universe rules, and the recent story
// timeline.
func BuildSystemPrompt(input PromptInput) string {
	var lines []string
	lines = append(lines, baseInstruction)
	lines = append(lines, fmt.Sprintf("\nUniverse: %s", input.Universe.Name))

	if ch := input.Character; ch != nil {
		lines = append(lines, fmt.Sprintf("\nCharacter: %s", ch.Name))
		lines = append(lines, fmt.Sprintf("  Life: %.0f%%", domain.NormalizeLife(ch.LifePercent)*100))
		lines = append(lines, fmt.Sprintf("  Points: %v", ch.Points))
		lines = append(lines, fmt.Sprintf("  Money: %v", ch.Money))

		if len(ch.History) > 0 {
			lines = append(lines, "\n  Recent Actions:")
			history := ch.History
			if len(history) > recentActionLimit {
				history = history[len(history)-recentActionLimit:]
			}
			for _, h := range history {
				lines = append(lines, fmt.Sprintf("    - Points: %v, Money: %v, Life: %v",
					effectValue(h.Effects, "points"),
					effectValue(h.Effects, "money"),
					effectValue(h.Effects, "lifePercent")))
			}
		}
	}

	if rules, err := json.MarshalIndent(input.Universe.Rules, "", "  "); err == nil && string(rules) != "{}" {
		lines = append(lines, "\nUniverse Rules:")
		lines = append(lines, string(rules))
	}

	lines = append(lines, "\nRecent Story Events:")
	events := input.RecentEvents
	if len(events) > recentEventLimit {
		events = events[len(events)-recentEventLimit:]
	}
	for _, e := range events {
		narrative := e.Prompt
		var effects map[string]any
		if e.Result != nil {
			if e.Result.Narrative != "" {
				narrative = e.Result.Narrative
			}
			effects = e.Result.Effects
		}
		snippet := strings.ReplaceAll(narrative, "\n", " ")
		if len(snippet) > eventSnippetLength {
			snippet = snippet[:eventSnippetLength]
		}
		student := e.Student
		if student == "" {
			student = "Player"
		}
		if len(effects) > 0 {
			raw, err := json.Marshal(effects)
			if err == nil {
				lines = append(lines, fmt.Sprintf("- %s: %s (effects: %s)", student, snippet, raw))
				continue
			}
		}
		lines = append(lines, fmt.Sprintf("- %s: %s", student, snippet))
	}

	if input.Knowledge != "" {
		lines = append(lines, "\nRelated Lore:")
		lines = append(lines, input.Knowledge)
	}

	return strings.Join(lines, "\n")
}

// MissionPrompt renders the mission briefing used to open a mission scene.
func MissionPrompt(mission domain.Mission, ch domain.Character, universeID string) string {
	context := fmt.Sprintf(
		"Misión: %s\nDescripción: %s\nObjetivo: %s\nRecompensa: %v puntos, %v monedas\nDificultad: %s\nPersonaje: %s\nUniverso: %s",
		mission.Title, mission.Description, mission.Objective,
		mission.RewardPoints, mission.RewardMoney, mission.Difficulty,
		ch.Name, universeID,
	)
	return fmt.Sprintf("INICIA_MISION: %s\n%s", mission.Title, context)
}

func effectValue(effects map[string]any, key string) any {
	if v, ok := effects[key]; ok {
		return v
	}
	return 0
}
