// Package apply resolves raw generator output into persisted state changes:
// parsing, effect extraction, difficulty scaling, clamping, and the mutation
// of characters, universes, and the event journal.
package apply

import (
	"context"
	"errors"
	"log"
	"math"

	"github.com/aulaverse/aulaverse/internal/game/domain"
	"github.com/aulaverse/aulaverse/internal/game/effect"
	"github.com/aulaverse/aulaverse/internal/storage"
)

// Per-event effect magnitude limits.
const (
	MaxPointsDelta = 100
	MaxMoneyDelta  = 500
)

// Hard-difficulty multipliers. Scaled point and money rewards are truncated
// toward zero; life penalties keep their fraction.
const (
	hardPenaltyFactor = 1.5
	hardRewardFactor  = 0.7
)

// NoteNarrativeOnly marks an outcome whose effects changed no state.
const NoteNarrativeOnly = "narrative only"

// Outcome reports the result of applying generator output to the world.
type Outcome struct {
	Updated   bool                `json:"updated"`
	Note      string              `json:"note,omitempty"`
	Character *domain.Character   `json:"character,omitempty"`
	Result    *domain.EventResult `json:"result,omitempty"`
}

// Applicator mutates world state from event results. All writes go through
// the store Update callbacks, so each collection mutation is atomic.
type Applicator struct {
	Characters storage.CharacterStore
	Universes  storage.UniverseStore
	Events     storage.EventStore
}

// Apply resolves raw generator output for an event. Strict JSON output is
// taken at face value; anything else is treated as free text and mined for
// effect phrases.
func (a *Applicator) Apply(ctx context.Context, event domain.Event, raw string) (Outcome, error) {
	var (
		rawEffects map[string]any
		narrative  string
		choices    []any
	)
	if parsed, ok := parseResultJSON(raw); ok {
		rawEffects = parsed.Effects
		narrative = cleanNarrativeText(parsed.Narrative)
		choices = parsed.Choices
	} else {
		narrative = cleanNarrativeText(raw)
		rawEffects = extractEffectsFromText(narrative)
	}
	return a.resolve(ctx, event, rawEffects, narrative, choices)
}

// ApplyEffects applies an already-structured effect map to the world, used
// for pre-validated action costs, selected choices, and consumed items.
func (a *Applicator) ApplyEffects(ctx context.Context, event domain.Event, effects map[string]any) (Outcome, error) {
	return a.resolve(ctx, event, effects, "", nil)
}

func (a *Applicator) resolve(ctx context.Context, event domain.Event, rawEffects map[string]any, narrative string, choices []any) (Outcome, error) {
	norm := effect.Normalize(rawEffects)

	if norm.IsZero() {
		if narrative == "" {
			narrative = event.Prompt
		}
		result := &domain.EventResult{Narrative: narrative, Choices: choices}
		if err := a.storeResult(ctx, event, result); err != nil {
			return Outcome{}, err
		}
		return Outcome{Updated: false, Note: NoteNarrativeOnly, Result: result}, nil
	}

	difficulty := ""
	universeKnown := false
	if universe, err := a.Universes.Get(ctx, event.UniverseID); err == nil {
		difficulty = universe.Rules.Difficulty
		universeKnown = true
	} else if !errors.Is(err, storage.ErrNotFound) {
		return Outcome{}, err
	}

	norm = scaleForDifficulty(norm, difficulty)
	norm = clampDeltas(event.ID, norm)
	applied := norm.Map()

	var updated domain.Character
	err := a.Characters.Update(ctx, func(records []domain.Character) ([]domain.Character, error) {
		idx := -1
		for i := range records {
			if records[i].ID == event.CharacterID {
				idx = i
				break
			}
		}
		if idx < 0 {
			records = append(records, domain.NewCharacter(event.CharacterID, event.CharacterID, event.Student, event.UniverseID))
			idx = len(records) - 1
		}

		ch := &records[idx]
		if norm.Points != nil {
			ch.Points += *norm.Points
		}
		if norm.Money != nil {
			ch.Money += *norm.Money
		}
		if norm.LifePercent != nil {
			ch.LifePercent = applyLifeEffect(ch.LifePercent, *norm.LifePercent)
		}
		if norm.ChangeUniverseTo != "" {
			ch.CurrentUniverse = norm.ChangeUniverseTo
		}
		ch.History = append(ch.History, domain.HistoryEntry{EventID: event.ID, Effects: applied})
		updated = *ch
		return records, nil
	})
	if err != nil {
		return Outcome{}, err
	}

	if universeKnown {
		err = a.Universes.Update(ctx, func(records []domain.Universe) ([]domain.Universe, error) {
			for i := range records {
				if records[i].ID != event.UniverseID {
					continue
				}
				if norm.Points != nil {
					records[i].TotalPoints = domain.ClampTotal(records[i].TotalPoints+*norm.Points, domain.MaxTotalPoints)
				}
				if norm.Money != nil {
					records[i].TotalMoney = domain.ClampTotal(records[i].TotalMoney+*norm.Money, domain.MaxTotalMoney)
				}
				records[i].Timeline = append(records[i].Timeline, domain.HistoryEntry{EventID: event.ID, Effects: applied})
				break
			}
			return records, nil
		})
		if err != nil {
			return Outcome{}, err
		}
	}

	if narrative == "" {
		narrative = synthesizeNarrative(norm, event.Prompt)
	}
	result := &domain.EventResult{Effects: applied, Narrative: narrative, Choices: choices}
	if err := a.storeResult(ctx, event, result); err != nil {
		return Outcome{}, err
	}

	return Outcome{Updated: true, Character: &updated, Result: result}, nil
}

// storeResult records the resolved result on the journal entry, appending the
// event when it was not persisted beforehand. Offered choices are mirrored
// onto the event itself so replay readers need not unwrap the result.
func (a *Applicator) storeResult(ctx context.Context, event domain.Event, result *domain.EventResult) error {
	return a.Events.Update(ctx, func(records []domain.Event) ([]domain.Event, error) {
		for i := range records {
			if records[i].ID == event.ID {
				records[i].Result = result
				records[i].Choices = result.Choices
				return records, nil
			}
		}
		event.Result = result
		event.Choices = result.Choices
		return append(records, event), nil
	})
}

// applyLifeEffect interprets a life effect value against the current gauge.
// Magnitudes up to 100 are percentage-point deltas; larger values are legacy
// absolute percentages.
func applyLifeEffect(current, eff float64) float64 {
	if math.Abs(eff) <= 100 {
		return domain.ClampFraction(domain.NormalizeLife(current) + eff/100)
	}
	return domain.ClampFraction(eff / 100)
}

// scaleForDifficulty adjusts effects for hard universes: life penalties bite
// harder, point and money rewards shrink.
func scaleForDifficulty(e effect.Effect, difficulty string) effect.Effect {
	if difficulty != domain.DifficultyHard {
		return e
	}
	if e.LifePercent != nil && *e.LifePercent < 0 {
		v := *e.LifePercent * hardPenaltyFactor
		e.LifePercent = &v
	}
	if e.Points != nil && *e.Points > 0 {
		v := math.Trunc(*e.Points * hardRewardFactor)
		e.Points = &v
	}
	if e.Money != nil && *e.Money > 0 {
		v := math.Trunc(*e.Money * hardRewardFactor)
		e.Money = &v
	}
	return e
}

// clampDeltas bounds per-event point and money effects to their limits.
func clampDeltas(eventID string, e effect.Effect) effect.Effect {
	if e.Points != nil {
		if c := domain.ClampTotal(*e.Points, MaxPointsDelta); c != *e.Points {
			log.Printf("event %s: points effect %v clamped to %v", eventID, *e.Points, c)
			e.Points = &c
		}
	}
	if e.Money != nil {
		if c := domain.ClampTotal(*e.Money, MaxMoneyDelta); c != *e.Money {
			log.Printf("event %s: money effect %v clamped to %v", eventID, *e.Money, c)
			e.Money = &c
		}
	}
	return e
}
