package apply

import (
	"context"
	"math"
	"testing"

	"github.com/aulaverse/aulaverse/internal/game/domain"
	"github.com/aulaverse/aulaverse/internal/storage"
	"github.com/aulaverse/aulaverse/internal/storage/jsonfile"
)

func newTestApplicator(t *testing.T) (*Applicator, storage.Stores) {
	t.Helper()
	store, err := jsonfile.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	stores := store.Stores()
	applicator := &Applicator{
		Characters: stores.Characters,
		Universes:  stores.Universes,
		Events:     stores.Events,
	}
	return applicator, stores
}

func seedUniverse(t *testing.T, stores storage.Stores, universe domain.Universe) {
	t.Helper()
	err := stores.Universes.Update(context.Background(), func(records []domain.Universe) ([]domain.Universe, error) {
		return append(records, universe), nil
	})
	if err != nil {
		t.Fatalf("seed universe: %v", err)
	}
}

func closeTo(got, want float64) bool {
	return math.Abs(got-want) < 1e-9
}

func TestApplyClampsOversizedEffects(t *testing.T) {
	applicator, stores := newTestApplicator(t)
	ctx := context.Background()
	seedUniverse(t, stores, domain.Universe{ID: "u1", Name: "Aula Uno"})

	event := domain.Event{ID: "e1", UniverseID: "u1", CharacterID: "c1", Student: "ana", Prompt: "saquear la bóveda"}
	outcome, err := applicator.Apply(ctx, event, `{"effects": {"points": 120, "money": -600}, "narrative": "La bóveda cede."}`)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !outcome.Updated {
		t.Fatalf("expected updated outcome, got %+v", outcome)
	}

	ch, err := stores.Characters.Get(ctx, "c1")
	if err != nil {
		t.Fatalf("get character: %v", err)
	}
	if ch.Points != 100 {
		t.Fatalf("expected points clamped to 100, got %v", ch.Points)
	}
	if ch.Money != -500 {
		t.Fatalf("expected money clamped to -500, got %v", ch.Money)
	}
	if len(ch.History) != 1 || ch.History[0].EventID != "e1" {
		t.Fatalf("expected one history entry for e1, got %+v", ch.History)
	}

	u, err := stores.Universes.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("get universe: %v", err)
	}
	if u.TotalPoints != 100 || u.TotalMoney != -500 {
		t.Fatalf("unexpected universe totals %v/%v", u.TotalPoints, u.TotalMoney)
	}
	if len(u.Timeline) != 1 {
		t.Fatalf("expected one timeline entry, got %+v", u.Timeline)
	}

	stored, err := stores.Events.Get(ctx, "e1")
	if err != nil {
		t.Fatalf("get event: %v", err)
	}
	if stored.Result == nil || stored.Result.Narrative != "La bóveda cede." {
		t.Fatalf("expected persisted result, got %+v", stored.Result)
	}
}

func TestApplyScalesHardDifficulty(t *testing.T) {
	applicator, stores := newTestApplicator(t)
	ctx := context.Background()
	seedUniverse(t, stores, domain.Universe{
		ID:    "u1",
		Name:  "Aula Dura",
		Rules: domain.UniverseRules{Difficulty: domain.DifficultyHard},
	})

	event := domain.Event{ID: "e1", UniverseID: "u1", CharacterID: "c1", Student: "ana", Prompt: "cruzar el abismo"}
	outcome, err := applicator.Apply(ctx, event, `{"effects": {"lifePercent": -40, "points": 50}, "narrative": "Cruza a duras penas."}`)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !outcome.Updated {
		t.Fatalf("expected updated outcome, got %+v", outcome)
	}

	ch, err := stores.Characters.Get(ctx, "c1")
	if err != nil {
		t.Fatalf("get character: %v", err)
	}
	if !closeTo(ch.LifePercent, 0.40) {
		t.Fatalf("expected life 0.40 after scaled -60 penalty, got %v", ch.LifePercent)
	}
	if ch.Points != 35 {
		t.Fatalf("expected points scaled to 35, got %v", ch.Points)
	}
}

func TestApplyHardDifficultyKeepsFractionalLifePenalty(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		life float64
	}{
		{"odd delta scales to half point", `{"effects": {"lifePercent": -5}, "narrative": "Tropieza."}`, 0.925},
		{"sub-point delta survives", `{"effects": {"lifePercent": -0.5}, "narrative": "Roza la trampa."}`, 0.9925},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			applicator, stores := newTestApplicator(t)
			ctx := context.Background()
			seedUniverse(t, stores, domain.Universe{
				ID:    "u1",
				Name:  "Aula Dura",
				Rules: domain.UniverseRules{Difficulty: domain.DifficultyHard},
			})

			event := domain.Event{ID: "e1", UniverseID: "u1", CharacterID: "c1", Student: "ana", Prompt: "avanzar"}
			if _, err := applicator.Apply(ctx, event, tc.raw); err != nil {
				t.Fatalf("apply: %v", err)
			}

			ch, err := stores.Characters.Get(ctx, "c1")
			if err != nil {
				t.Fatalf("get character: %v", err)
			}
			if !closeTo(ch.LifePercent, tc.life) {
				t.Fatalf("expected life %v, got %v", tc.life, ch.LifePercent)
			}
		})
	}
}

func TestApplyStoresChoicesOnEvent(t *testing.T) {
	applicator, stores := newTestApplicator(t)
	ctx := context.Background()
	seedUniverse(t, stores, domain.Universe{ID: "u1", Name: "Aula Uno"})

	event := domain.Event{ID: "e1", UniverseID: "u1", CharacterID: "c1", Student: "ana", Prompt: "explorar"}
	if err := stores.Events.Append(ctx, event); err != nil {
		t.Fatalf("append event: %v", err)
	}

	raw := `{"effects": {"points": 10}, "narrative": "Un cruce de caminos.", "choices": ["Ir al norte", "Ir al sur"]}`
	if _, err := applicator.Apply(ctx, event, raw); err != nil {
		t.Fatalf("apply: %v", err)
	}

	stored, err := stores.Events.Get(ctx, "e1")
	if err != nil {
		t.Fatalf("get event: %v", err)
	}
	if len(stored.Choices) != 2 {
		t.Fatalf("expected choices on the event, got %+v", stored.Choices)
	}
	if stored.Result == nil || len(stored.Result.Choices) != 2 {
		t.Fatalf("expected choices on the result, got %+v", stored.Result)
	}
}

func TestApplyExtractsEffectsFromFreeText(t *testing.T) {
	applicator, stores := newTestApplicator(t)
	ctx := context.Background()
	seedUniverse(t, stores, domain.Universe{ID: "u1", Name: "Aula Uno"})

	event := domain.Event{ID: "e1", UniverseID: "u1", CharacterID: "c1", Student: "ana", Prompt: "esquivar"}
	outcome, err := applicator.Apply(ctx, event, "El héroe esquiva el golpe, gana 30 puntos y pierde 10% de vida.")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !outcome.Updated {
		t.Fatalf("expected updated outcome, got %+v", outcome)
	}

	ch, err := stores.Characters.Get(ctx, "c1")
	if err != nil {
		t.Fatalf("get character: %v", err)
	}
	if ch.Points != 30 {
		t.Fatalf("expected 30 points, got %v", ch.Points)
	}
	if !closeTo(ch.LifePercent, 0.90) {
		t.Fatalf("expected life 0.90, got %v", ch.LifePercent)
	}
}

func TestApplyNarrativeOnly(t *testing.T) {
	applicator, stores := newTestApplicator(t)
	ctx := context.Background()
	seedUniverse(t, stores, domain.Universe{ID: "u1", Name: "Aula Uno"})

	event := domain.Event{ID: "e1", UniverseID: "u1", CharacterID: "c1", Student: "ana", Prompt: "observar"}
	outcome, err := applicator.Apply(ctx, event, "La noche transcurre sin incidentes.")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if outcome.Updated {
		t.Fatalf("expected narrative-only outcome, got %+v", outcome)
	}
	if outcome.Note != NoteNarrativeOnly {
		t.Fatalf("unexpected note %q", outcome.Note)
	}

	if _, err := stores.Characters.Get(ctx, "c1"); err == nil {
		t.Fatal("expected no character to be created")
	}

	stored, err := stores.Events.Get(ctx, "e1")
	if err != nil {
		t.Fatalf("get event: %v", err)
	}
	if stored.Result == nil || stored.Result.Narrative == "" {
		t.Fatalf("expected persisted narrative, got %+v", stored.Result)
	}
}

func TestApplyLifeLegacyAbsoluteValue(t *testing.T) {
	applicator, stores := newTestApplicator(t)
	ctx := context.Background()
	seedUniverse(t, stores, domain.Universe{ID: "u1", Name: "Aula Uno"})

	err := stores.Characters.Update(ctx, func(records []domain.Character) ([]domain.Character, error) {
		ch := domain.NewCharacter("c1", "Ana", "ana", "u1")
		ch.LifePercent = 0.2
		return append(records, ch), nil
	})
	if err != nil {
		t.Fatalf("seed character: %v", err)
	}

	event := domain.Event{ID: "e1", UniverseID: "u1", CharacterID: "c1", Student: "ana", Prompt: "renacer"}
	if _, err := applicator.Apply(ctx, event, `{"effects": {"lifePercent": 150}, "narrative": "Renace."}`); err != nil {
		t.Fatalf("apply: %v", err)
	}

	ch, err := stores.Characters.Get(ctx, "c1")
	if err != nil {
		t.Fatalf("get character: %v", err)
	}
	if ch.LifePercent != 1.0 {
		t.Fatalf("expected legacy absolute value to clamp life to 1.0, got %v", ch.LifePercent)
	}
}

func TestApplyUniverseChangeEffect(t *testing.T) {
	applicator, stores := newTestApplicator(t)
	ctx := context.Background()
	seedUniverse(t, stores, domain.Universe{ID: "u1", Name: "Aula Uno"})
	seedUniverse(t, stores, domain.Universe{ID: "u2", Name: "Aula Dos"})

	event := domain.Event{ID: "e1", UniverseID: "u1", CharacterID: "c1", Student: "ana", Prompt: "cruzar el portal"}
	if _, err := applicator.Apply(ctx, event, `{"effects": {"change_universe_to": "u2"}, "narrative": "El portal se cierra tras ella."}`); err != nil {
		t.Fatalf("apply: %v", err)
	}

	ch, err := stores.Characters.Get(ctx, "c1")
	if err != nil {
		t.Fatalf("get character: %v", err)
	}
	if ch.CurrentUniverse != "u2" {
		t.Fatalf("expected character moved to u2, got %q", ch.CurrentUniverse)
	}
}

func TestApplyClampsUniverseTotals(t *testing.T) {
	applicator, stores := newTestApplicator(t)
	ctx := context.Background()
	seedUniverse(t, stores, domain.Universe{ID: "u1", Name: "Aula Uno", TotalPoints: 4950})

	event := domain.Event{ID: "e1", UniverseID: "u1", CharacterID: "c1", Student: "ana", Prompt: "triunfar"}
	if _, err := applicator.Apply(ctx, event, `{"effects": {"points": 100}, "narrative": "Triunfo total."}`); err != nil {
		t.Fatalf("apply: %v", err)
	}

	u, err := stores.Universes.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("get universe: %v", err)
	}
	if u.TotalPoints != domain.MaxTotalPoints {
		t.Fatalf("expected universe total clamped to %d, got %v", domain.MaxTotalPoints, u.TotalPoints)
	}
}

func TestApplySynthesizesNarrativeFromEffects(t *testing.T) {
	applicator, stores := newTestApplicator(t)
	ctx := context.Background()
	seedUniverse(t, stores, domain.Universe{ID: "u1", Name: "Aula Uno"})

	event := domain.Event{ID: "e1", UniverseID: "u1", CharacterID: "c1", Student: "ana", Prompt: "recoger la recompensa"}
	outcome, err := applicator.ApplyEffects(ctx, event, map[string]any{"points": 30, "lifePercent": -10})
	if err != nil {
		t.Fatalf("apply effects: %v", err)
	}
	if outcome.Result == nil || outcome.Result.Narrative != "Gana 30 puntos y pierde 10% de vida." {
		t.Fatalf("unexpected synthesized narrative %+v", outcome.Result)
	}
}
