package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aulaverse/aulaverse/internal/game/action"
	"github.com/aulaverse/aulaverse/internal/game/domain"
	"github.com/aulaverse/aulaverse/internal/narrative"
	"github.com/aulaverse/aulaverse/internal/storage"
	"github.com/aulaverse/aulaverse/internal/storage/jsonfile"
)

type stubGenerator struct {
	reply      string
	err        error
	lastSystem string
	lastUser   string
}

func (s *stubGenerator) Generate(_ context.Context, systemPrompt, userPrompt string) (string, error) {
	s.lastSystem = systemPrompt
	s.lastUser = userPrompt
	return s.reply, s.err
}

func newTestEngine(t *testing.T, gen narrative.Generator) (*Engine, storage.Stores) {
	t.Helper()
	store, err := jsonfile.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	stores := store.Stores()

	seq := 0
	engine := New(stores, gen,
		WithClock(func() time.Time { return time.Unix(1700000000, 0) }),
		WithIDGenerator(func() (string, error) {
			seq++
			return fmt.Sprintf("event-%d", seq), nil
		}),
	)
	return engine, stores
}

func seedWorld(t *testing.T, stores storage.Stores) {
	t.Helper()
	ctx := context.Background()
	err := stores.Universes.Update(ctx, func(records []domain.Universe) ([]domain.Universe, error) {
		return append(records, domain.Universe{ID: "u1", Name: "Aula Uno"}), nil
	})
	if err != nil {
		t.Fatalf("seed universe: %v", err)
	}
	err = stores.Characters.Update(ctx, func(records []domain.Character) ([]domain.Character, error) {
		return append(records,
			domain.NewCharacter("c1", "Ana", "ana", "u1"),
			domain.NewCharacter("c2", "Bo", "bo", "u1"),
		), nil
	})
	if err != nil {
		t.Fatalf("seed characters: %v", err)
	}
}

func TestActFullFlow(t *testing.T) {
	gen := &stubGenerator{reply: `{"effects": {"points": 30}, "narrative": "Ana encuentra la llave."}`}
	engine, stores := newTestEngine(t, gen)
	seedWorld(t, stores)
	ctx := context.Background()

	result, err := engine.Act(ctx, ActionInput{
		Student:     "ana",
		UniverseID:  "u1",
		CharacterID: "c1",
		Prompt:      "buscar la llave",
		ClassNumber: 1,
	})
	if err != nil {
		t.Fatalf("act: %v", err)
	}
	if !result.Decision.Valid {
		t.Fatalf("expected valid decision, got %+v", result.Decision)
	}
	if !result.Outcome.Updated {
		t.Fatalf("expected updated outcome, got %+v", result.Outcome)
	}
	if result.Narrative != "Ana encuentra la llave." {
		t.Fatalf("unexpected narrative %q", result.Narrative)
	}
	if !strings.Contains(gen.lastSystem, "Character: Ana") {
		t.Fatalf("expected character context in system prompt:\n%s", gen.lastSystem)
	}
	if gen.lastUser != "buscar la llave" {
		t.Fatalf("unexpected user prompt %q", gen.lastUser)
	}

	ch, err := stores.Characters.Get(ctx, "c1")
	if err != nil {
		t.Fatalf("get character: %v", err)
	}
	if ch.Points != 30 {
		t.Fatalf("expected 30 points, got %v", ch.Points)
	}

	event, err := stores.Events.Get(ctx, result.Event.ID)
	if err != nil {
		t.Fatalf("get event: %v", err)
	}
	if event.Result == nil || event.Result.Narrative != "Ana encuentra la llave." {
		t.Fatalf("expected persisted result, got %+v", event.Result)
	}
}

func TestActExtractsWrappedJSON(t *testing.T) {
	gen := &stubGenerator{reply: "Claro, aquí tienes:\n{\"effects\": {\"points\": 10}, \"narrative\": \"Bien hecho.\"}\nFin."}
	engine, stores := newTestEngine(t, gen)
	seedWorld(t, stores)

	result, err := engine.Act(context.Background(), ActionInput{
		Student: "ana", UniverseID: "u1", CharacterID: "c1", Prompt: "actuar", ClassNumber: 1,
	})
	if err != nil {
		t.Fatalf("act: %v", err)
	}
	if result.Narrative != "Bien hecho." {
		t.Fatalf("expected JSON extracted from prose, got %q", result.Narrative)
	}
}

func TestActRejectsForbiddenTransfer(t *testing.T) {
	gen := &stubGenerator{reply: `{"effects": {}, "narrative": "n/a"}`}
	engine, stores := newTestEngine(t, gen)
	seedWorld(t, stores)
	ctx := context.Background()

	closed := false
	err := stores.Universes.Update(ctx, func(records []domain.Universe) ([]domain.Universe, error) {
		return append(records, domain.Universe{
			ID:    "u2",
			Name:  "Aula Cerrada",
			Rules: domain.UniverseRules{AllowUniverseChange: &closed},
		}), nil
	})
	if err != nil {
		t.Fatalf("seed universe: %v", err)
	}

	result, err := engine.Act(ctx, ActionInput{
		Student: "ana", UniverseID: "u2", CharacterID: "c1", Prompt: "viajar", ClassNumber: 1,
	})
	if !errors.Is(err, ErrActionInvalid) {
		t.Fatalf("expected ErrActionInvalid, got %v", err)
	}
	if result.Decision.Reason != action.ReasonTransferForbidden {
		t.Fatalf("unexpected reason %q", result.Decision.Reason)
	}
}

func TestActAttachesTransferPreEffects(t *testing.T) {
	gen := &stubGenerator{reply: `{"effects": {}, "narrative": "Llega al aula dos."}`}
	engine, stores := newTestEngine(t, gen)
	seedWorld(t, stores)
	ctx := context.Background()

	err := stores.Universes.Update(ctx, func(records []domain.Universe) ([]domain.Universe, error) {
		return append(records, domain.Universe{ID: "u2", Name: "Aula Dos"}), nil
	})
	if err != nil {
		t.Fatalf("seed universe: %v", err)
	}

	result, err := engine.Act(ctx, ActionInput{
		Student: "ana", UniverseID: "u2", CharacterID: "c1", Prompt: "viajar", ClassNumber: 1,
	})
	if err != nil {
		t.Fatalf("act: %v", err)
	}
	if !result.Decision.ChangeUniverse || result.Decision.ChangeType != action.DefaultChangeType {
		t.Fatalf("expected default transfer decision, got %+v", result.Decision)
	}

	event, err := stores.Events.Get(ctx, result.Event.ID)
	if err != nil {
		t.Fatalf("get event: %v", err)
	}
	if len(event.PreEffects) == 0 {
		t.Fatalf("expected pre-effects on the event, got %+v", event)
	}
}

func TestActRateLimited(t *testing.T) {
	gen := &stubGenerator{reply: `{"effects": {}, "narrative": "n/a"}`}
	rw := narrative.NewRateWindow(1, time.Minute)
	rw.Allow() // consume the only slot

	store, err := jsonfile.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	stores := store.Stores()
	engine := New(stores, gen, WithRateWindow(rw))
	seedWorld(t, stores)

	_, err = engine.Act(context.Background(), ActionInput{
		Student: "ana", UniverseID: "u1", CharacterID: "c1", Prompt: "actuar", ClassNumber: 1,
	})
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestActWithoutGenerator(t *testing.T) {
	engine, stores := newTestEngine(t, nil)
	seedWorld(t, stores)

	_, err := engine.Act(context.Background(), ActionInput{
		Student: "ana", UniverseID: "u1", CharacterID: "c1", Prompt: "actuar", ClassNumber: 1,
	})
	if !errors.Is(err, ErrNoGenerator) {
		t.Fatalf("expected ErrNoGenerator, got %v", err)
	}
}

func TestApplyChoice(t *testing.T) {
	gen := &stubGenerator{reply: `{"effects": {"money": 20}, "narrative": "La apuesta sale bien."}`}
	engine, stores := newTestEngine(t, gen)
	seedWorld(t, stores)
	ctx := context.Background()

	result, err := engine.ApplyChoice(ctx, ChoiceInput{CharacterID: "c1", ChoiceText: "apostar en la taberna"})
	if err != nil {
		t.Fatalf("apply choice: %v", err)
	}
	if !strings.HasPrefix(result.Event.Prompt, "CHOICE: ") {
		t.Fatalf("unexpected event prompt %q", result.Event.Prompt)
	}
	if result.Event.UniverseID != "u1" {
		t.Fatalf("expected universe from character, got %q", result.Event.UniverseID)
	}

	ch, err := stores.Characters.Get(ctx, "c1")
	if err != nil {
		t.Fatalf("get character: %v", err)
	}
	if ch.Money != 20 {
		t.Fatalf("expected 20 money, got %v", ch.Money)
	}
}

func seedMissions(t *testing.T, dir string, missions []domain.Mission) {
	t.Helper()
	payload, err := json.Marshal(missions)
	if err != nil {
		t.Fatalf("encode missions: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "missions.json"), payload, 0o644); err != nil {
		t.Fatalf("write missions: %v", err)
	}
}

func TestStartMission(t *testing.T) {
	gen := &stubGenerator{reply: `{"effects": {"points": 10}, "narrative": "La misión comienza en la muralla."}`}
	dir := t.TempDir()
	store, err := jsonfile.Open(dir)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	stores := store.Stores()
	seq := 0
	engine := New(stores, gen,
		WithClock(func() time.Time { return time.Unix(1700000000, 0) }),
		WithIDGenerator(func() (string, error) {
			seq++
			return fmt.Sprintf("event-%d", seq), nil
		}),
	)
	seedWorld(t, stores)
	seedMissions(t, dir, []domain.Mission{{
		ID:           "m1",
		Title:        "El Rescate",
		Description:  "Un aldeano desapareció en la muralla.",
		Objective:    "Encontrar al aldeano",
		RewardPoints: 100,
		RewardMoney:  50,
		Difficulty:   "normal",
	}})
	ctx := context.Background()

	result, err := engine.StartMission(ctx, MissionInput{MissionID: "m1", CharacterID: "c1"})
	if err != nil {
		t.Fatalf("start mission: %v", err)
	}
	if !strings.HasPrefix(result.Event.Prompt, "INICIA_MISION: El Rescate") {
		t.Fatalf("unexpected event prompt %q", result.Event.Prompt)
	}
	if result.Event.UniverseID != "u1" {
		t.Fatalf("expected universe from character, got %q", result.Event.UniverseID)
	}
	if result.Event.Student != "ana" {
		t.Fatalf("expected student from character, got %q", result.Event.Student)
	}
	if !strings.Contains(gen.lastUser, "Misión: El Rescate") {
		t.Fatalf("expected mission briefing in user prompt:\n%s", gen.lastUser)
	}
	if result.Narrative != "La misión comienza en la muralla." {
		t.Fatalf("unexpected narrative %q", result.Narrative)
	}

	ch, err := stores.Characters.Get(ctx, "c1")
	if err != nil {
		t.Fatalf("get character: %v", err)
	}
	if ch.Points != 10 {
		t.Fatalf("expected 10 points, got %v", ch.Points)
	}
}

func TestStartMissionUnknownMission(t *testing.T) {
	engine, stores := newTestEngine(t, nil)
	seedWorld(t, stores)

	_, err := engine.StartMission(context.Background(), MissionInput{MissionID: "ghost", CharacterID: "c1"})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSubmitEvaluationAndEvaluateCharacter(t *testing.T) {
	engine, stores := newTestEngine(t, nil)
	seedWorld(t, stores)
	ctx := context.Background()

	saved, err := engine.SubmitEvaluation(ctx, domain.CreateEvaluationInput{
		CharacterID: "c1",
		Student:     "bo",
		Kind:        domain.EvaluationHetero,
		Score:       80,
	})
	if err != nil {
		t.Fatalf("submit evaluation: %v", err)
	}
	if saved.ID != "0_c1_hetero" {
		t.Fatalf("unexpected evaluation id %q", saved.ID)
	}

	if _, err := engine.SubmitEvaluation(ctx, domain.CreateEvaluationInput{
		CharacterID: "c1", Kind: "bogus", Score: 50,
	}); !errors.Is(err, domain.ErrInvalidEvaluationKind) {
		t.Fatalf("expected ErrInvalidEvaluationKind, got %v", err)
	}

	report, err := engine.EvaluateCharacter(ctx, "c1")
	if err != nil {
		t.Fatalf("evaluate character: %v", err)
	}
	if report.Grade <= 0 {
		t.Fatalf("expected positive grade, got %v", report.Grade)
	}
	if report.Metrics["hetero"] != 0.8 {
		t.Fatalf("expected hetero metric 0.8, got %v", report.Metrics["hetero"])
	}
	if report.Student != "ana" {
		t.Fatalf("unexpected student %q", report.Student)
	}
}

func TestEvaluateUnknownCharacter(t *testing.T) {
	engine, _ := newTestEngine(t, nil)
	if _, err := engine.EvaluateCharacter(context.Background(), "ghost"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestForkUniverseThroughEngine(t *testing.T) {
	engine, stores := newTestEngine(t, nil)
	seedWorld(t, stores)

	forked, err := engine.ForkUniverse(context.Background(), "u1", "ensayo")
	if err != nil {
		t.Fatalf("fork universe: %v", err)
	}
	if !strings.HasPrefix(forked.ID, "u1_fork_") {
		t.Fatalf("unexpected fork id %q", forked.ID)
	}

	universes, err := stores.Universes.List(context.Background())
	if err != nil {
		t.Fatalf("list universes: %v", err)
	}
	if len(universes) != 2 {
		t.Fatalf("expected source plus fork, got %d", len(universes))
	}
}
