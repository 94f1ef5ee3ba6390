// Package bbolt implements the collection store over a single BoltDB file.
//
// Each collection is stored as one JSON document keyed by collection name, so
// the whole-collection-replace contract of the JSON-file backend carries over
// unchanged; bbolt's write transaction is the exclusive lock covering the
// read-modify-write span.
package bbolt

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.etcd.io/bbolt"

	"github.com/aulaverse/aulaverse/internal/game/domain"
	"github.com/aulaverse/aulaverse/internal/storage"
)

const collectionsBucket = "collections"

// Collection keys within the bucket.
const (
	charactersKey  = "characters"
	universesKey   = "universes"
	eventsKey      = "events"
	evaluationsKey = "evaluations"
	marketKey      = "market"
	missionsKey    = "missions"
	multiverseKey  = "multiverse"
)

// Store provides a BoltDB-backed collection store.
type Store struct {
	db *bbolt.DB
}

// Open opens (or creates) the database file at path and seeds the multiverse
// document on first use.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	path = filepath.Clean(path)
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage directory: %w", err)
		}
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open storage db: %w", err)
	}

	store := &Store{db: db}
	if err := store.ensureDefaults(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Stores returns the typed store bundle backed by this database.
func (s *Store) Stores() storage.Stores {
	return storage.Stores{
		Characters:  &collection[domain.Character]{db: s.db, name: charactersKey, key: func(c domain.Character) string { return c.ID }},
		Universes:   &collection[domain.Universe]{db: s.db, name: universesKey, key: func(u domain.Universe) string { return u.ID }},
		Events:      &collection[domain.Event]{db: s.db, name: eventsKey, key: func(e domain.Event) string { return e.ID }},
		Evaluations: &collection[domain.Evaluation]{db: s.db, name: evaluationsKey, key: func(e domain.Evaluation) string { return e.ID }},
		Market:      &collection[domain.MarketItem]{db: s.db, name: marketKey, key: func(m domain.MarketItem) string { return m.ID }},
		Missions:    &collection[domain.Mission]{db: s.db, name: missionsKey, key: func(m domain.Mission) string { return m.ID }},
		Multiverse:  &document[domain.Multiverse]{db: s.db, name: multiverseKey, def: domain.DefaultMultiverse()},
	}
}

func (s *Store) ensureDefaults() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists([]byte(collectionsBucket))
		if err != nil {
			return fmt.Errorf("create collections bucket: %w", err)
		}
		if bucket.Get([]byte(multiverseKey)) == nil {
			payload, err := json.Marshal(domain.DefaultMultiverse())
			if err != nil {
				return fmt.Errorf("encode multiverse default: %w", err)
			}
			if err := bucket.Put([]byte(multiverseKey), payload); err != nil {
				return fmt.Errorf("seed multiverse: %w", err)
			}
		}
		return nil
	})
}

// collection stores one JSON array document under its collection name.
type collection[T any] struct {
	db   *bbolt.DB
	name string
	key  func(T) string
}

func decodeRecords[T any](payload []byte, name string) ([]T, error) {
	if payload == nil {
		return []T{}, nil
	}
	var records []T
	if err := json.Unmarshal(payload, &records); err != nil {
		return nil, fmt.Errorf("decode collection %s: %w", name, err)
	}
	return records, nil
}

// List returns the collection in stored order.
func (c *collection[T]) List(ctx context.Context) ([]T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var records []T
	err := c.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(collectionsBucket))
		if bucket == nil {
			records = []T{}
			return nil
		}
		var err error
		records, err = decodeRecords[T](bucket.Get([]byte(c.name)), c.name)
		return err
	})
	if err != nil {
		return nil, err
	}
	return records, nil
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

// Update runs fn inside a bbolt write transaction, which serializes it
// against every other mutation of the database.
func (c *collection[T]) Update(ctx context.Context, fn func([]T) ([]T, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(collectionsBucket))
		if bucket == nil {
			return fmt.Errorf("collections bucket is missing")
		}
		records, err := decodeRecords[T](bucket.Get([]byte(c.name)), c.name)
		if err != nil {
			return err
		}
		updated, err := fn(records)
		if err != nil {
			return err
		}
		payload, err := json.Marshal(updated)
		if err != nil {
			return fmt.Errorf("encode collection %s: %w", c.name, err)
		}
		return bucket.Put([]byte(c.name), payload)
	})
}

// document stores one JSON object under its collection name.
type document[T any] struct {
	db   *bbolt.DB
	name string
	def  T
}

// Get returns the stored document, or its default when unset.
func (d *document[T]) Get(ctx context.Context) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	value := d.def
	err := d.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(collectionsBucket))
		if bucket == nil {
			return nil
		}
		payload := bucket.Get([]byte(d.name))
		if payload == nil {
			return nil
		}
		if err := json.Unmarshal(payload, &value); err != nil {
			return fmt.Errorf("decode collection %s: %w", d.name, err)
		}
		return nil
	})
	if err != nil {
		return zero, err
	}
	return value, nil
}

// Update runs fn on the stored document inside a write transaction.
func (d *document[T]) Update(ctx context.Context, fn func(T) (T, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(collectionsBucket))
		if bucket == nil {
			return fmt.Errorf("collections bucket is missing")
		}
		value := d.def
		if payload := bucket.Get([]byte(d.name)); payload != nil {
			if err := json.Unmarshal(payload, &value); err != nil {
				return fmt.Errorf("decode collection %s: %w", d.name, err)
			}
		}
		updated, err := fn(value)
		if err != nil {
			return err
		}
		payload, err := json.Marshal(updated)
		if err != nil {
			return fmt.Errorf("encode collection %s: %w", d.name, err)
		}
		return bucket.Put([]byte(d.name), payload)
	})
}
