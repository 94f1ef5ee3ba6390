package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Evaluation kinds.
const (
	EvaluationHetero    = "hetero"
	EvaluationAuto      = "auto"
	EvaluationProfessor = "professor"
)

var (
	// ErrInvalidEvaluationKind indicates an unrecognised evaluation kind.
	ErrInvalidEvaluationKind = errors.New("evaluation kind must be hetero, auto, or professor")
	// ErrInvalidScore indicates a score outside 0..100.
	ErrInvalidScore = errors.New("score must be in range 0..100")
)

// Evaluation is one peer, self, or professor assessment of a character.
type Evaluation struct {
	ID          string  `json:"id"`
	CharacterID string  `json:"character_id"`
	Student     string  `json:"student,omitempty"`
	Kind        string  `json:"kind"`
	Score       float64 `json:"score"`
	Comments    string  `json:"comments,omitempty"`
	ClassNumber int     `json:"class_number,omitempty"`
}

// CreateEvaluationInput describes a submitted evaluation.
type CreateEvaluationInput struct {
	CharacterID string
	Student     string
	Kind        string
	Score       float64
	Comments    string
	ClassNumber int
}

// CreateEvaluation validates and builds an evaluation record. The id encodes
// the submission ordinal so records stay stable-sortable within a collection.
func CreateEvaluation(input CreateEvaluationInput, ordinal int) (Evaluation, error) {
	input.CharacterID = strings.TrimSpace(input.CharacterID)
	if input.CharacterID == "" {
		return Evaluation{}, ErrEmptyCharacterID
	}
	kind := strings.ToLower(strings.TrimSpace(input.Kind))
	switch kind {
	case EvaluationHetero, EvaluationAuto, EvaluationProfessor:
	default:
		return Evaluation{}, ErrInvalidEvaluationKind
	}
	if input.Score < 0 || input.Score > 100 {
		return Evaluation{}, ErrInvalidScore
	}

	return Evaluation{
		ID:          fmt.Sprintf("%d_%s_%s", ordinal, input.CharacterID, kind),
		CharacterID: input.CharacterID,
		Student:     input.Student,
		Kind:        kind,
		Score:       input.Score,
		Comments:    input.Comments,
		ClassNumber: input.ClassNumber,
	}, nil
}
