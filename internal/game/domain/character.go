package domain

// HistoryEntry records one applied event on a character's history or a
// universe's timeline. Effects hold the normalized effect map exactly as it
// was applied, including pass-through keys.
type HistoryEntry struct {
	EventID string         `json:"event_id"`
	Effects map[string]any `json:"effects"`
}

// StatusActive is the lifecycle status assigned to newly created characters.
const StatusActive = "active"

// Character is a long-lived role-play entity owned by a student. Characters
// are created lazily on the first applied effect and never deleted.
type Character struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	Student         string         `json:"student,omitempty"`
	CurrentUniverse string         `json:"currentUniverse,omitempty"`
	LifePercent     float64        `json:"lifePercent"`
	Points          float64        `json:"points"`
	Money           float64        `json:"money"`
	History         []HistoryEntry `json:"history"`
	Inventory       []MarketItem   `json:"inventory,omitempty"`
	OriginCharacter string         `json:"originCharacter,omitempty"`
	Status          string         `json:"status,omitempty"`
}

// NewCharacter returns a character with the documented starting conditions:
// full life, no points, no money.
func NewCharacter(id, name, student, universeID string) Character {
	return Character{
		ID:              id,
		Name:            name,
		Student:         student,
		CurrentUniverse: universeID,
		LifePercent:     1.0,
		Points:          0,
		Money:           0,
		Status:          StatusActive,
	}
}

// NormalizeLife converts stored life values into the canonical 0..1 fraction.
// Collections written by older versions stored whole percentages (0..100).
func NormalizeLife(v float64) float64 {
	if v > 1 {
		v = v / 100.0
	}
	return ClampFraction(v)
}

// ClampFraction bounds v into the inclusive range [0, 1].
func ClampFraction(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
