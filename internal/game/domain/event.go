package domain

import (
	"errors"
	"strings"
	"time"
)

var (
	// ErrEmptyStudent indicates the student label is required.
	ErrEmptyStudent = errors.New("student is required")
	// ErrEmptyUniverseID indicates the universe id is required.
	ErrEmptyUniverseID = errors.New("universe id is required")
	// ErrEmptyCharacterID indicates the character id is required.
	ErrEmptyCharacterID = errors.New("character id is required")
	// ErrEmptyPrompt indicates the action prompt is required.
	ErrEmptyPrompt = errors.New("prompt is required")
)

// EventResult is the resolved outcome stored on an event. Effects hold the
// normalized, scaled, and clamped effect map as applied; Narrative is always
// populated, synthesized if the generator provided none.
type EventResult struct {
	Effects   map[string]any `json:"effects,omitempty"`
	Narrative string         `json:"narrative"`
	Choices   []any          `json:"choices,omitempty"`
}

// Event records one action taken in a universe. Result stays nil until the
// event is resolved; Embedding is owned by the narrative collaborator and is
// opaque to the engine.
type Event struct {
	ID          string         `json:"id"`
	Timestamp   time.Time      `json:"timestamp"`
	UniverseID  string         `json:"universe_id"`
	CharacterID string         `json:"character_id"`
	Student     string         `json:"student"`
	Prompt      string         `json:"prompt"`
	ClassNumber int            `json:"class_number"`
	Result      *EventResult   `json:"result"`
	Embedding   []float64      `json:"embedding"`
	Choices     []any          `json:"choices,omitempty"`
	PreEffects  map[string]any `json:"pre_effects,omitempty"`
	Image       string         `json:"image,omitempty"`
	ImageNote   string         `json:"image_note,omitempty"`
}

// CreateEventInput describes the action payload behind a new event.
type CreateEventInput struct {
	Student     string
	UniverseID  string
	CharacterID string
	Prompt      string
	ClassNumber int
}

// CreateEvent builds an unresolved event from an action payload.
func CreateEvent(input CreateEventInput, clock func() time.Time, idGenerator func() (string, error)) (Event, error) {
	input.Student = strings.TrimSpace(input.Student)
	if input.Student == "" {
		return Event{}, ErrEmptyStudent
	}
	input.UniverseID = strings.TrimSpace(input.UniverseID)
	if input.UniverseID == "" {
		return Event{}, ErrEmptyUniverseID
	}
	input.CharacterID = strings.TrimSpace(input.CharacterID)
	if input.CharacterID == "" {
		return Event{}, ErrEmptyCharacterID
	}
	if strings.TrimSpace(input.Prompt) == "" {
		return Event{}, ErrEmptyPrompt
	}

	id, err := idGenerator()
	if err != nil {
		return Event{}, err
	}

	return Event{
		ID:          id,
		Timestamp:   clock().UTC(),
		UniverseID:  input.UniverseID,
		CharacterID: input.CharacterID,
		Student:     input.Student,
		Prompt:      input.Prompt,
		ClassNumber: input.ClassNumber,
	}, nil
}
