package narrative

import (
	"strings"
	"testing"

	"github.com/aulaverse/aulaverse/internal/game/domain"
)

func TestBuildSystemPromptIncludesContext(t *testing.T) {
	ch := domain.NewCharacter("c1", "Ana", "ana", "u1")
	ch.Points = 120
	ch.History = []domain.HistoryEntry{
		{EventID: "e1", Effects: map[string]any{"points": 10}},
	}

	prompt := BuildSystemPrompt(PromptInput{
		Universe:  domain.Universe{ID: "u1", Name: "Aula Uno"},
		Character: &ch,
		RecentEvents: []domain.Event{
			{
				Student: "bo",
				Prompt:  "explorar la cueva",
				Result:  &domain.EventResult{Narrative: "Encuentra un pasadizo.", Effects: map[string]any{"points": 5}},
			},
		},
		Knowledge: "La cueva esconde un altar antiguo.",
	})

	for _, want := range []string{
		"Responde SOLO con JSON válido",
		"Universe: Aula Uno",
		"Character: Ana",
		"Life: 100%",
		"Recent Actions:",
		"- bo: Encuentra un pasadizo.",
		`"points":5`,
		"Related Lore:",
		"altar antiguo",
	} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestBuildSystemPromptTrimsEventWindow(t *testing.T) {
	events := make([]domain.Event, 40)
	for i := range events {
		events[i] = domain.Event{Student: "s", Prompt: "evento"}
	}
	events[39].Prompt = "el último evento"

	prompt := BuildSystemPrompt(PromptInput{Universe: domain.Universe{Name: "U"}, RecentEvents: events})
	if got := strings.Count(prompt, "- s: "); got != recentEventLimit {
		t.Fatalf("expected %d events in prompt, got %d", recentEventLimit, got)
	}
	if !strings.Contains(prompt, "el último evento") {
		t.Fatal("expected the newest event to survive trimming")
	}
}

func TestBuildSystemPromptWithoutCharacter(t *testing.T) {
	prompt := BuildSystemPrompt(PromptInput{Universe: domain.Universe{Name: "Aula Uno"}})
	if strings.Contains(prompt, "Character:") {
		t.Fatal("expected no character section")
	}
}

func TestMissionPrompt(t *testing.T) {
	mission := domain.Mission{
		Title:        "El Rescate",
		Description:  "Rescatar al profesor.",
		Objective:    "Llegar al laboratorio",
		RewardPoints: 100,
		RewardMoney:  50,
		Difficulty:   "hard",
	}
	ch := domain.NewCharacter("c1", "Ana", "ana", "u1")

	prompt := MissionPrompt(mission, ch, "u1")
	if !strings.HasPrefix(prompt, "INICIA_MISION: El Rescate") {
		t.Fatalf("unexpected prompt prefix: %q", prompt)
	}
	for _, want := range []string{"Misión: El Rescate", "Objetivo: Llegar al laboratorio", "Recompensa: 100 puntos, 50 monedas", "Personaje: Ana", "Universo: u1"} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, prompt)
		}
	}
}
