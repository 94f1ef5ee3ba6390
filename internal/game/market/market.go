// Package market sells items to characters and resolves item use through the
// regular event pipeline.
package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aulaverse/aulaverse/internal/game/apply"
	"github.com/aulaverse/aulaverse/internal/game/domain"
	"github.com/aulaverse/aulaverse/internal/platform/id"
	"github.com/aulaverse/aulaverse/internal/storage"
)

var (
	// ErrInsufficientFunds indicates the character cannot afford the item.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrItemNotInInventory indicates the character does not hold the item.
	ErrItemNotInInventory = errors.New("item not in inventory")
)

// Shop performs purchases and item use against the stores.
type Shop struct {
	Characters  storage.CharacterStore
	Market      storage.MarketStore
	Events      storage.EventStore
	Applicator  *apply.Applicator
	Clock       func() time.Time
	IDGenerator func() (string, error)
}

func (s *Shop) now() time.Time {
	if s.Clock != nil {
		return s.Clock()
	}
	return time.Now()
}

func (s *Shop) newID() (string, error) {
	if s.IDGenerator != nil {
		return s.IDGenerator()
	}
	return id.NewID()
}

// Buy deducts the item price from the character and appends the item to its
// inventory. The funds check and the deduction happen inside one store
// transaction.
func (s *Shop) Buy(ctx context.Context, characterID, itemID string) (domain.Character, domain.MarketItem, error) {
	item, err := s.Market.Get(ctx, itemID)
	if err != nil {
		return domain.Character{}, domain.MarketItem{}, fmt.Errorf("market item %s: %w", itemID, err)
	}

	var updated domain.Character
	err = s.Characters.Update(ctx, func(records []domain.Character) ([]domain.Character, error) {
		for i := range records {
			if records[i].ID != characterID {
				continue
			}
			if records[i].Money < item.Price {
				return nil, ErrInsufficientFunds
			}
			records[i].Money -= item.Price
			records[i].Inventory = append(records[i].Inventory, item)
			updated = records[i]
			return records, nil
		}
		return nil, fmt.Errorf("character %s: %w", characterID, storage.ErrNotFound)
	})
	if err != nil {
		return domain.Character{}, domain.MarketItem{}, err
	}
	return updated, item, nil
}

// UseItemInput describes an item-use request.
type UseItemInput struct {
	CharacterID string
	ItemID      string
	Student     string
	ClassNumber int
}

// UseItem records a use event, applies the item's effects through the
// applicator, and removes consumable items from the inventory. The returned
// character reflects both the applied effects and the inventory change.
func (s *Shop) UseItem(ctx context.Context, input UseItemInput) (apply.Outcome, domain.Character, error) {
	ch, err := s.Characters.Get(ctx, input.CharacterID)
	if err != nil {
		return apply.Outcome{}, domain.Character{}, fmt.Errorf("character %s: %w", input.CharacterID, err)
	}

	var item domain.MarketItem
	found := false
	for _, held := range ch.Inventory {
		if held.ID == input.ItemID {
			item = held
			found = true
			break
		}
	}
	if !found {
		return apply.Outcome{}, domain.Character{}, ErrItemNotInInventory
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

	event, err := domain.CreateEvent(domain.CreateEventInput{
		Student:     student,
		UniverseID:  ch.CurrentUniverse,
		CharacterID: input.CharacterID,
		Prompt:      "USE_ITEM: " + item.Name,
		ClassNumber: classNumber,
	}, s.now, s.newID)
	if err != nil {
		return apply.Outcome{}, domain.Character{}, err
	}
	if err := s.Events.Append(ctx, event); err != nil {
		return apply.Outcome{}, domain.Character{}, err
	}

	narrative := item.UseText
	if narrative == "" {
		narrative = "Usas " + item.Name
	}
	raw, err := json.Marshal(map[string]any{"effects": item.Effects, "narrative": narrative})
	if err != nil {
		return apply.Outcome{}, domain.Character{}, fmt.Errorf("encode item result: %w", err)
	}

	outcome, err := s.Applicator.Apply(ctx, event, string(raw))
	if err != nil {
		return apply.Outcome{}, domain.Character{}, fmt.Errorf("apply item effects: %w", err)
	}

	if item.IsConsumable() {
		err = s.Characters.Update(ctx, func(records []domain.Character) ([]domain.Character, error) {
			for i := range records {
				if records[i].ID != input.CharacterID {
					continue
				}
				kept := records[i].Inventory[:0:0]
				for _, held := range records[i].Inventory {
					if held.ID != input.ItemID {
						kept = append(kept, held)
					}
				}
				records[i].Inventory = kept
			}
			return records, nil
		})
		if err != nil {
			return apply.Outcome{}, domain.Character{}, err
		}
	}

	fresh, err := s.Characters.Get(ctx, input.CharacterID)
	if err != nil {
		return apply.Outcome{}, domain.Character{}, err
	}
	return outcome, fresh, nil
}
