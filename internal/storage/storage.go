// Package storage defines the collection store contracts shared by the
// JSON-file and bbolt backends.
//
// Every mutation goes through Update, whose callback runs with the
// collection's exclusive lock held for the entire read-modify-write span.
// That lock scope is the correctness contract: two concurrent transactions
// against the same collection are serialized end to end, so neither can
// overwrite the other's update. Different collections may be updated
// concurrently; there is no cross-collection transaction.
package storage

import (
	"context"
	"errors"

	"github.com/aulaverse/aulaverse/internal/game/domain"
)

// ErrNotFound indicates a requested record is missing. It is distinct from
// validation failures and from I/O errors.
var ErrNotFound = errors.New("record not found")

// CharacterStore persists the characters collection.
type CharacterStore interface {
	List(ctx context.Context) ([]domain.Character, error)
	Get(ctx context.Context, id string) (domain.Character, error)
	Update(ctx context.Context, fn func([]domain.Character) ([]domain.Character, error)) error
}

// UniverseStore persists the universes collection.
type UniverseStore interface {
	List(ctx context.Context) ([]domain.Universe, error)
	Get(ctx context.Context, id string) (domain.Universe, error)
	Update(ctx context.Context, fn func([]domain.Universe) ([]domain.Universe, error)) error
}

// EventStore persists the events collection. Append order is chronological
// order.
type EventStore interface {
	List(ctx context.Context) ([]domain.Event, error)
	Get(ctx context.Context, id string) (domain.Event, error)
	Append(ctx context.Context, event domain.Event) error
	Update(ctx context.Context, fn func([]domain.Event) ([]domain.Event, error)) error
}

// EvaluationStore persists the evaluations collection.
type EvaluationStore interface {
	List(ctx context.Context) ([]domain.Evaluation, error)
	Update(ctx context.Context, fn func([]domain.Evaluation) ([]domain.Evaluation, error)) error
}

// MarketStore persists the market item catalog.
type MarketStore interface {
	List(ctx context.Context) ([]domain.MarketItem, error)
	Get(ctx context.Context, id string) (domain.MarketItem, error)
}

// MissionStore lists mission definitions. Missions are read-only content.
type MissionStore interface {
	List(ctx context.Context) ([]domain.Mission, error)
	Get(ctx context.Context, id string) (domain.Mission, error)
}

// MultiverseStore persists the singleton multiverse aggregate.
type MultiverseStore interface {
	Get(ctx context.Context) (domain.Multiverse, error)
	Update(ctx context.Context, fn func(domain.Multiverse) (domain.Multiverse, error)) error
}

// Stores bundles every collection store behind one dependency.
type Stores struct {
	Characters  CharacterStore
	Universes   UniverseStore
	Events      EventStore
	Evaluations EvaluationStore
	Market      MarketStore
	Missions    MissionStore
	Multiverse  MultiverseStore
}
