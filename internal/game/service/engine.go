// Package service wires the stores, the validator, the applicator, the fork
// engine, and the narrative generator into the engine facade callers use.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/aulaverse/aulaverse/internal/game/action"
	"github.com/aulaverse/aulaverse/internal/game/apply"
	"github.com/aulaverse/aulaverse/internal/game/domain"
	"github.com/aulaverse/aulaverse/internal/game/fork"
	"github.com/aulaverse/aulaverse/internal/game/grade"
	"github.com/aulaverse/aulaverse/internal/narrative"
	"github.com/aulaverse/aulaverse/internal/platform/id"
	"github.com/aulaverse/aulaverse/internal/storage"
)

var (
	// ErrActionInvalid indicates the validator rejected the action.
	ErrActionInvalid = errors.New("action invalid")
	// ErrRateLimited indicates the generator call budget is exhausted.
	ErrRateLimited = errors.New("generator rate limit exceeded")
	// ErrNoGenerator indicates no narrative generator is configured.
	ErrNoGenerator = errors.New("narrative generator is not configured")
)

// Default generator budget, calls per rolling minute.
const defaultGeneratorRPM = 80

// Engine is the facade over the whole state-update pipeline.
type Engine struct {
	stores      storage.Stores
	generator   narrative.Generator
	applicator  *apply.Applicator
	forker      *fork.Forker
	limiter     *narrative.RateWindow
	knowledge   *narrative.KnowledgeBase
	clock       func() time.Time
	idGenerator func() (string, error)
	tracer      trace.Tracer
}

// Option adjusts engine construction.
type Option func(*Engine)

// WithClock replaces the engine time source.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.clock = clock }
}

// WithIDGenerator replaces the engine id source.
func WithIDGenerator(gen func() (string, error)) Option {
	return func(e *Engine) { e.idGenerator = gen }
}

// WithRateWindow replaces the generator call limiter.
func WithRateWindow(rw *narrative.RateWindow) Option {
	return func(e *Engine) { e.limiter = rw }
}

// New builds an engine over the given stores. The generator may be nil, in
// which case Act and ApplyChoice fail with ErrNoGenerator while the rest of
// the operations keep working.
func New(stores storage.Stores, generator narrative.Generator, opts ...Option) *Engine {
	e := &Engine{
		stores:    stores,
		generator: generator,
		applicator: &apply.Applicator{
			Characters: stores.Characters,
			Universes:  stores.Universes,
			Events:     stores.Events,
		},
		limiter:     narrative.NewRateWindow(defaultGeneratorRPM, time.Minute),
		knowledge:   &narrative.KnowledgeBase{},
		clock:       time.Now,
		idGenerator: id.NewID,
		tracer:      otel.Tracer("aulaverse/engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.forker = &fork.Forker{
		Characters: stores.Characters,
		Universes:  stores.Universes,
		Clock:      e.clock,
	}
	return e
}

// Applicator exposes the engine's applicator for components that share its
// pipeline, such as the market shop.
func (e *Engine) Applicator() *apply.Applicator {
	return e.applicator
}

// ActionInput is the payload behind ValidateAction, Act, and CreateEvent.
type ActionInput struct {
	Student     string
	UniverseID  string
	CharacterID string
	Prompt      string
	ClassNumber int
	ChangeType  string
}

// ActResult bundles everything an action resolution produced.
type ActResult struct {
	Event     domain.Event    `json:"event"`
	Decision  action.Decision `json:"decision"`
	Outcome   apply.Outcome   `json:"outcome"`
	Narrative string          `json:"narrative"`
}

// ValidateAction checks the action against universe rules and occupancy.
func (e *Engine) ValidateAction(ctx context.Context, input ActionInput) (action.Decision, error) {
	var char *domain.Character
	if ch, err := e.stores.Characters.Get(ctx, input.CharacterID); err == nil {
		char = &ch
	} else if !errors.Is(err, storage.ErrNotFound) {
		return action.Decision{}, err
	}

	var universe *domain.Universe
	if u, err := e.stores.Universes.Get(ctx, input.UniverseID); err == nil {
		universe = &u
	} else if !errors.Is(err, storage.ErrNotFound) {
		return action.Decision{}, err
	}

	residents := 0
	all, err := e.stores.Characters.List(ctx)
	if err != nil {
		return action.Decision{}, err
	}
	for _, c := range all {
		if c.CurrentUniverse == input.UniverseID {
			residents++
		}
	}

	return action.Validate(action.Input{
		Character:        char,
		Universe:         universe,
		TargetUniverseID: input.UniverseID,
		ChangeType:       input.ChangeType,
		ResidentCount:    residents,
	}), nil
}

// CreateEvent validates and persists a new unresolved event for the action.
func (e *Engine) CreateEvent(ctx context.Context, input ActionInput) (domain.Event, error) {
	event, err := domain.CreateEvent(domain.CreateEventInput{
		Student:     input.Student,
		UniverseID:  input.UniverseID,
		CharacterID: input.CharacterID,
		Prompt:      input.Prompt,
		ClassNumber: input.ClassNumber,
	}, e.clock, e.idGenerator)
	if err != nil {
		return domain.Event{}, err
	}
	if err := e.stores.Events.Append(ctx, event); err != nil {
		return domain.Event{}, err
	}
	return event, nil
}

// ApplyEventResult resolves raw generator output against a stored event.
func (e *Engine) ApplyEventResult(ctx context.Context, eventID, raw string) (apply.Outcome, error) {
	event, err := e.stores.Events.Get(ctx, eventID)
	if err != nil {
		return apply.Outcome{}, fmt.Errorf("event %s: %w", eventID, err)
	}
	return e.applicator.Apply(ctx, event, raw)
}

// Act runs the full action flow: validate, journal the event, build the
// generator prompt from world context, generate, and apply the result.
func (e *Engine) Act(ctx context.Context, input ActionInput) (ActResult, error) {
	ctx, span := e.tracer.Start(ctx, "engine.act")
	defer span.End()

	decision, err := e.ValidateAction(ctx, input)
	if err != nil {
		return ActResult{}, err
	}
	if !decision.Valid {
		return ActResult{Decision: decision}, fmt.Errorf("%w: %s", ErrActionInvalid, decision.Reason)
	}

	event, err := domain.CreateEvent(domain.CreateEventInput{
		Student:     input.Student,
		UniverseID:  input.UniverseID,
		CharacterID: input.CharacterID,
		Prompt:      input.Prompt,
		ClassNumber: input.ClassNumber,
	}, e.clock, e.idGenerator)
	if err != nil {
		return ActResult{Decision: decision}, err
	}
	if decision.ChangeUniverse {
		event.PreEffects = decision.Effects
	}
	if err := e.stores.Events.Append(ctx, event); err != nil {
		return ActResult{Decision: decision}, err
	}

	raw, err := e.generate(ctx, event, input.Prompt)
	if err != nil {
		return ActResult{Event: event, Decision: decision}, err
	}

	outcome, err := e.applicator.Apply(ctx, event, narrative.ExtractJSONBlock(raw))
	if err != nil {
		return ActResult{Event: event, Decision: decision}, err
	}
	e.remember(outcome)

	return ActResult{
		Event:     event,
		Decision:  decision,
		Outcome:   outcome,
		Narrative: outcome.Result.Narrative,
	}, nil
}

// ChoiceInput describes the selection of a previously offered choice.
type ChoiceInput struct {
	CharacterID string
	ChoiceText  string
	Student     string
	UniverseID  string
	ClassNumber int
}

// ApplyChoice replays a selected choice as a new event: the choice text goes
// back through the generator with the character's context.
func (e *Engine) ApplyChoice(ctx context.Context, input ChoiceInput) (ActResult, error) {
	ctx, span := e.tracer.Start(ctx, "engine.apply_choice")
	defer span.End()

	if input.ChoiceText == "" {
		return ActResult{}, fmt.Errorf("choice text is required")
	}

	student := input.Student
	universeID := input.UniverseID
	if ch, err := e.stores.Characters.Get(ctx, input.CharacterID); err == nil {
		if student == "" {
			student = ch.Student
		}
		if universeID == "" {
			universeID = ch.CurrentUniverse
		}
	} else if !errors.Is(err, storage.ErrNotFound) {
		return ActResult{}, err
	}
	if student == "" {
		student = input.CharacterID
	}
	classNumber := input.ClassNumber
	if classNumber == 0 {
		classNumber = 1
	}

	event, err := domain.CreateEvent(domain.CreateEventInput{
		Student:     student,
		UniverseID:  universeID,
		CharacterID: input.CharacterID,
		Prompt:      "CHOICE: " + input.ChoiceText,
		ClassNumber: classNumber,
	}, e.clock, e.idGenerator)
	if err != nil {
		return ActResult{}, err
	}
	if err := e.stores.Events.Append(ctx, event); err != nil {
		return ActResult{}, err
	}

	raw, err := e.generate(ctx, event, input.ChoiceText)
	if err != nil {
		return ActResult{Event: event}, err
	}
	outcome, err := e.applicator.Apply(ctx, event, narrative.ExtractJSONBlock(raw))
	if err != nil {
		return ActResult{Event: event}, err
	}
	e.remember(outcome)

	return ActResult{Event: event, Outcome: outcome, Narrative: outcome.Result.Narrative}, nil
}

// generate builds the world-context prompt for an event and calls the
// generator under the rate window.
func (e *Engine) generate(ctx context.Context, event domain.Event, userPrompt string) (string, error) {
	if e.generator == nil {
		return "", ErrNoGenerator
	}
	if !e.limiter.Allow() {
		return "", ErrRateLimited
	}

	var universe domain.Universe
	if u, err := e.stores.Universes.Get(ctx, event.UniverseID); err == nil {
		universe = u
	} else if !errors.Is(err, storage.ErrNotFound) {
		return "", err
	}

	var char *domain.Character
	if ch, err := e.stores.Characters.Get(ctx, event.CharacterID); err == nil {
		char = &ch
	} else if !errors.Is(err, storage.ErrNotFound) {
		return "", err
	}

	all, err := e.stores.Events.List(ctx)
	if err != nil {
		return "", err
	}
	var recent []domain.Event
	for _, ev := range all {
		if ev.UniverseID == event.UniverseID && ev.ID != event.ID {
			recent = append(recent, ev)
		}
	}

	knowledge := ""
	if text, _, ok := e.knowledge.MostSimilar(userPrompt, 0.2); ok {
		knowledge = text
	}

	systemPrompt := narrative.BuildSystemPrompt(narrative.PromptInput{
		Universe:     universe,
		Character:    char,
		RecentEvents: recent,
		Knowledge:    knowledge,
	})
	return e.generator.Generate(ctx, systemPrompt, userPrompt)
}

// remember feeds resolved narratives into the lore index for future prompts.
func (e *Engine) remember(outcome apply.Outcome) {
	if outcome.Result != nil && outcome.Result.Narrative != "" {
		e.knowledge.Add(outcome.Result.Narrative)
	}
}

// MissionInput identifies the mission and the character opening it.
type MissionInput struct {
	MissionID   string
	CharacterID string
	Student     string
	ClassNumber int
}

// StartMission opens a mission scene for a character: the mission briefing is
// journaled as a new event in the character's universe and narrated by the
// generator like any other action.
func (e *Engine) StartMission(ctx context.Context, input MissionInput) (ActResult, error) {
	ctx, span := e.tracer.Start(ctx, "engine.start_mission")
	defer span.End()

	mission, err := e.stores.Missions.Get(ctx, input.MissionID)
	if err != nil {
		return ActResult{}, fmt.Errorf("mission %s: %w", input.MissionID, err)
	}
	ch, err := e.stores.Characters.Get(ctx, input.CharacterID)
	if err != nil {
		return ActResult{}, fmt.Errorf("character %s: %w", input.CharacterID, err)
	}

	student := input.Student
	if student == "" {
		student = ch.Student
	}
	if student == "" {
		student = ch.Name
	}
	classNumber := input.ClassNumber
	if classNumber == 0 {
		classNumber = 1
	}

	prompt := narrative.MissionPrompt(mission, ch, ch.CurrentUniverse)
	event, err := domain.CreateEvent(domain.CreateEventInput{
		Student:     student,
		UniverseID:  ch.CurrentUniverse,
		CharacterID: input.CharacterID,
		Prompt:      prompt,
		ClassNumber: classNumber,
	}, e.clock, e.idGenerator)
	if err != nil {
		return ActResult{}, err
	}
	if err := e.stores.Events.Append(ctx, event); err != nil {
		return ActResult{}, err
	}

	raw, err := e.generate(ctx, event, prompt)
	if err != nil {
		return ActResult{Event: event}, err
	}
	outcome, err := e.applicator.Apply(ctx, event, narrative.ExtractJSONBlock(raw))
	if err != nil {
		return ActResult{Event: event}, err
	}
	e.remember(outcome)

	return ActResult{Event: event, Outcome: outcome, Narrative: outcome.Result.Narrative}, nil
}

// ForkUniverse duplicates a universe and its residents.
func (e *Engine) ForkUniverse(ctx context.Context, universeID, reason string) (domain.Universe, error) {
	ctx, span := e.tracer.Start(ctx, "engine.fork_universe")
	defer span.End()
	return e.forker.Fork(ctx, universeID, reason)
}

// SubmitEvaluation validates and stores an evaluation record.
func (e *Engine) SubmitEvaluation(ctx context.Context, input domain.CreateEvaluationInput) (domain.Evaluation, error) {
	var saved domain.Evaluation
	err := e.stores.Evaluations.Update(ctx, func(records []domain.Evaluation) ([]domain.Evaluation, error) {
		record, err := domain.CreateEvaluation(input, len(records))
		if err != nil {
			return nil, err
		}
		saved = record
		return append(records, record), nil
	})
	if err != nil {
		return domain.Evaluation{}, err
	}
	return saved, nil
}

// GradeReport is the full grading output for one character.
type GradeReport struct {
	CharacterID string             `json:"character_id"`
	Student     string             `json:"student"`
	Grade       float64            `json:"grade"`
	Metrics     map[string]float64 `json:"metrics"`
	Evaluation  grade.Result       `json:"evaluation"`
	Character   domain.Character   `json:"character"`
}

// EvaluateCharacter computes the weighted final grade for a character from
// its play state and submitted evaluations.
func (e *Engine) EvaluateCharacter(ctx context.Context, characterID string) (GradeReport, error) {
	ch, err := e.stores.Characters.Get(ctx, characterID)
	if err != nil {
		return GradeReport{}, fmt.Errorf("character %s: %w", characterID, err)
	}

	var universe *domain.Universe
	if u, err := e.stores.Universes.Get(ctx, ch.CurrentUniverse); err == nil {
		universe = &u
	} else if !errors.Is(err, storage.ErrNotFound) {
		return GradeReport{}, err
	}

	multiverse, err := e.stores.Multiverse.Get(ctx)
	if err != nil {
		return GradeReport{}, err
	}
	evaluations, err := e.stores.Evaluations.List(ctx)
	if err != nil {
		return GradeReport{}, err
	}

	metrics := grade.CharacterMetrics(ch, universe, multiverse, evaluations)
	result := grade.FinalGrade(metrics, nil)

	student := ch.Student
	if student == "" {
		student = ch.Name
	}
	return GradeReport{
		CharacterID: characterID,
		Student:     student,
		Grade:       result.Value(),
		Metrics:     metrics,
		Evaluation:  result,
		Character:   ch,
	}, nil
}

// Character returns one character snapshot.
func (e *Engine) Character(ctx context.Context, id string) (domain.Character, error) {
	return e.stores.Characters.Get(ctx, id)
}

// Universe returns one universe snapshot.
func (e *Engine) Universe(ctx context.Context, id string) (domain.Universe, error) {
	return e.stores.Universes.Get(ctx, id)
}

// Universes lists every universe.
func (e *Engine) Universes(ctx context.Context) ([]domain.Universe, error) {
	return e.stores.Universes.List(ctx)
}

// Multiverse returns the top-level aggregate.
func (e *Engine) Multiverse(ctx context.Context) (domain.Multiverse, error) {
	return e.stores.Multiverse.Get(ctx)
}

// MarketItems lists the purchasable items.
func (e *Engine) MarketItems(ctx context.Context) ([]domain.MarketItem, error) {
	return e.stores.Market.List(ctx)
}

// Missions lists the available missions.
func (e *Engine) Missions(ctx context.Context) ([]domain.Mission, error) {
	return e.stores.Missions.List(ctx)
}
