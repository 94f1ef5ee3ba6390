// Package fork duplicates universes and their residents. Forking is strictly
// additive: the source universe and its characters are never modified.
package fork

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/aulaverse/aulaverse/internal/game/domain"
	"github.com/aulaverse/aulaverse/internal/storage"
)

// forkEventID marks the history entry stamped on duplicated residents.
const forkEventID = "fork"

// Forker creates forked copies of universes.
type Forker struct {
	Characters storage.CharacterStore
	Universes  storage.UniverseStore
	Clock      func() time.Time
}

func (f *Forker) now() time.Time {
	if f.Clock != nil {
		return f.Clock()
	}
	return time.Now()
}

// Fork duplicates the universe and every character currently living in it.
// The copy starts with an empty timeline, records the source state and the
// fork reason, and each duplicated resident points back at its origin.
func (f *Forker) Fork(ctx context.Context, universeID, reason string) (domain.Universe, error) {
	ts := f.now().Unix()
	forkID := fmt.Sprintf("%s_fork_%d", universeID, ts)

	var forked domain.Universe
	err := f.Universes.Update(ctx, func(records []domain.Universe) ([]domain.Universe, error) {
		var source *domain.Universe
		for i := range records {
			if records[i].ID == universeID {
				source = &records[i]
				break
			}
		}
		if source == nil {
			return nil, fmt.Errorf("universe %s: %w", universeID, storage.ErrNotFound)
		}

		forked = *source
		forked.ID = forkID
		forked.Name = source.Name + " (Fork)"
		forked.Timeline = []domain.HistoryEntry{}
		forked.PreviousState = source.Snapshot()
		forked.ForkReason = reason
		return append(records, forked), nil
	})
	if err != nil {
		return domain.Universe{}, err
	}

	err = f.Characters.Update(ctx, func(records []domain.Character) ([]domain.Character, error) {
		var copies []domain.Character
		for _, ch := range records {
			if ch.CurrentUniverse != universeID {
				continue
			}
			dup := ch
			dup.ID = fmt.Sprintf("%s_fork_%d", ch.ID, ts)
			dup.OriginCharacter = ch.ID
			dup.CurrentUniverse = forkID
			dup.Inventory = slices.Clone(ch.Inventory)
			dup.History = append(slices.Clone(ch.History), domain.HistoryEntry{
				EventID: forkEventID,
				Effects: map[string]any{"note": "forked copy"},
			})
			copies = append(copies, dup)
		}
		return append(records, copies...), nil
	})
	if err != nil {
		return domain.Universe{}, err
	}

	return forked, nil
}
