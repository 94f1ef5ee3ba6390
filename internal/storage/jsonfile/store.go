// Package jsonfile implements the collection store over one pretty-printed
// JSON file per collection, the canonical human-readable layout.
//
// Each collection is guarded by its own mutex held for the full span of an
// Update call, and writes replace the whole file through a temp-file rename
// so readers never observe a partially written collection.
package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/aulaverse/aulaverse/internal/game/domain"
	"github.com/aulaverse/aulaverse/internal/storage"
)

// Collection file names.
const (
	charactersFile  = "characters.json"
	universesFile   = "universes.json"
	eventsFile      = "events.json"
	evaluationsFile = "evaluations.json"
	marketFile      = "market.json"
	missionsFile    = "missions.json"
	multiverseFile  = "multiverse.json"
)

// Store provides JSON-file-backed collection stores rooted at a data
// directory.
type Store struct {
	characters  *collection[domain.Character]
	universes   *collection[domain.Universe]
	events      *collection[domain.Event]
	evaluations *collection[domain.Evaluation]
	market      *collection[domain.MarketItem]
	missions    *collection[domain.Mission]
	multiverse  *document[domain.Multiverse]
}

// Open prepares the data directory and seeds every collection file that does
// not exist yet with its documented default value.
func Open(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("data directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	s := &Store{
		characters:  newCollection[domain.Character](filepath.Join(dir, charactersFile), func(c domain.Character) string { return c.ID }),
		universes:   newCollection[domain.Universe](filepath.Join(dir, universesFile), func(u domain.Universe) string { return u.ID }),
		events:      newCollection[domain.Event](filepath.Join(dir, eventsFile), func(e domain.Event) string { return e.ID }),
		evaluations: newCollection[domain.Evaluation](filepath.Join(dir, evaluationsFile), func(e domain.Evaluation) string { return e.ID }),
		market:      newCollection[domain.MarketItem](filepath.Join(dir, marketFile), func(m domain.MarketItem) string { return m.ID }),
		missions:    newCollection[domain.Mission](filepath.Join(dir, missionsFile), func(m domain.Mission) string { return m.ID }),
		multiverse:  newDocument(filepath.Join(dir, multiverseFile), domain.DefaultMultiverse()),
	}

	seeds := []func() error{
		s.characters.ensure,
		s.universes.ensure,
		s.events.ensure,
		s.evaluations.ensure,
		s.market.ensure,
		s.missions.ensure,
		s.multiverse.ensure,
	}
	for _, seed := range seeds {
		if err := seed(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Stores returns the typed store bundle backed by this file store.
func (s *Store) Stores() storage.Stores {
	return storage.Stores{
		Characters:  s.characters,
		Universes:   s.universes,
		Events:      s.events,
		Evaluations: s.evaluations,
		Market:      s.market,
		Missions:    s.missions,
		Multiverse:  s.multiverse,
	}
}

// collection is one whole-file-replaced JSON array of records. The mutex
// covers every load and the entire read-modify-write span of Update.
type collection[T any] struct {
	mu   sync.Mutex
	path string
	key  func(T) string
}

func newCollection[T any](path string, key func(T) string) *collection[T] {
	return &collection[T]{path: path, key: key}
}

func (c *collection[T]) ensure() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := os.Stat(c.path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat collection %s: %w", c.path, err)
	}
	return writeFileAtomic(c.path, []T{})
}

func (c *collection[T]) load() ([]T, error) {
	raw, err := os.ReadFile(c.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []T{}, nil
		}
		return nil, fmt.Errorf("read collection %s: %w", c.path, err)
	}
	var records []T
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("decode collection %s: %w", c.path, err)
	}
	return records, nil
}

// List returns the collection in stored order.
func (c *collection[T]) List(ctx context.Context) ([]T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.load()
}

// Get returns the record with the given id, or storage.ErrNotFound.
func (c *collection[T]) Get(ctx context.Context, id string) (T, error) {
	var zero T
	records, err := c.List(ctx)
	if err != nil {
		return zero, err
	}
	for _, record := range records {
		if c.key(record) == id {
			return record, nil
		}
	}
	return zero, storage.ErrNotFound
}

// Append adds one record to the end of the collection.
func (c *collection[T]) Append(ctx context.Context, record T) error {
	return c.Update(ctx, func(records []T) ([]T, error) {
		return append(records, record), nil
	})
}

// Update runs fn on the current records and replaces the collection with its
// result, all under the collection lock. Returning an error from fn aborts
// the transaction without writing.
func (c *collection[T]) Update(ctx context.Context, fn func([]T) ([]T, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	records, err := c.load()
	if err != nil {
		return err
	}
	updated, err := fn(records)
	if err != nil {
		return err
	}
	return writeFileAtomic(c.path, updated)
}

// document is a single JSON object collection, used for the multiverse
// aggregate.
type document[T any] struct {
	mu   sync.Mutex
	path string
	def  T
}

func newDocument[T any](path string, def T) *document[T] {
	return &document[T]{path: path, def: def}
}

func (d *document[T]) ensure() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := os.Stat(d.path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat collection %s: %w", d.path, err)
	}
	return writeFileAtomic(d.path, d.def)
}

func (d *document[T]) load() (T, error) {
	raw, err := os.ReadFile(d.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return d.def, nil
		}
		var zero T
		return zero, fmt.Errorf("read collection %s: %w", d.path, err)
	}
	var value T
	if err := json.Unmarshal(raw, &value); err != nil {
		var zero T
		return zero, fmt.Errorf("decode collection %s: %w", d.path, err)
	}
	return value, nil
}

// Get returns the stored document.
func (d *document[T]) Get(ctx context.Context) (T, error) {
	if err := ctx.Err(); err != nil {
		var zero T
		return zero, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.load()
}

// Update runs fn on the stored document and writes back its result under the
// document lock.
func (d *document[T]) Update(ctx context.Context, fn func(T) (T, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	value, err := d.load()
	if err != nil {
		return err
	}
	updated, err := fn(value)
	if err != nil {
		return err
	}
	return writeFileAtomic(d.path, updated)
}

// writeFileAtomic marshals v and replaces path via a temp file and rename.
func writeFileAtomic(path string, v any) error {
	payload, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode collection %s: %w", path, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", path, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write collection %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close collection %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace collection %s: %w", path, err)
	}
	return nil
}
