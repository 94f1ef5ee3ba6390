package domain

// Multiverse is the singleton top-level aggregate. The engine reads it for
// grading context but never mutates it directly.
type Multiverse struct {
	Name        string   `json:"name"`
	Universes   []string `json:"universes"`
	TotalPoints float64  `json:"totalPoints"`
}

// DefaultMultiverse is the value seeded the first time the multiverse
// collection is referenced.
func DefaultMultiverse() Multiverse {
	return Multiverse{
		Name:      "Semestre Demo",
		Universes: []string{},
	}
}
