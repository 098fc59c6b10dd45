package models

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/timshannon/bolthold"
	"go.etcd.io/bbolt"
)

// ErrNotFound is returned when a lookup matches no record
var ErrNotFound = bolthold.ErrNotFound

// Database wraps the bolthold store
type Database struct {
	store *bolthold.Store

	mu          sync.Mutex
	subscribers map[int]chan SubtitleNotFound
	nextSubID   int
}

// NewDatabase creates a new database connection
func NewDatabase(path string) (*Database, error) {
	store, err := bolthold.Open(path, 0600, &bolthold.Options{
		Options: &bbolt.Options{
			Timeout: 1 * time.Second,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &Database{
		store:       store,
		subscribers: make(map[int]chan SubtitleNotFound),
	}, nil
}

// Close closes the database connection and all not-found subscriptions
func (db *Database) Close() error {
	db.mu.Lock()
	for id, ch := range db.subscribers {
		close(ch)
		delete(db.subscribers, id)
	}
	db.mu.Unlock()

	return db.store.Close()
}

// Reference data operations

// SeedReferenceData inserts the default release and subtitle groups that are missing
func (db *Database) SeedReferenceData() error {
	return db.store.Bolt().Update(func(tx *bbolt.Tx) error {
		for _, rg := range DefaultReleaseGroups {
			var existing []ReleaseGroup
			if err := db.store.TxFind(tx, &existing, bolthold.Where("Name").Eq(rg.Name).Index("Name")); err != nil {
				return fmt.Errorf("failed to query release group %s: %w", rg.Name, err)
			}
			if len(existing) > 0 {
				continue
			}
			group := rg
			if err := db.store.TxInsert(tx, bolthold.NextSequence(), &group); err != nil {
				return fmt.Errorf("failed to insert release group %s: %w", rg.Name, err)
			}
		}

		for _, sg := range DefaultSubtitleGroups {
			var existing []SubtitleGroup
			if err := db.store.TxFind(tx, &existing, bolthold.Where("Name").Eq(sg.Name).Index("Name")); err != nil {
				return fmt.Errorf("failed to query subtitle group %s: %w", sg.Name, err)
			}
			if len(existing) > 0 {
				continue
			}
			group := sg
			if err := db.store.TxInsert(tx, bolthold.NextSequence(), &group); err != nil {
				return fmt.Errorf("failed to insert subtitle group %s: %w", sg.Name, err)
			}
		}
		return nil
	})
}

// GetReleaseGroups returns all release groups keyed by name
func (db *Database) GetReleaseGroups() (map[string]ReleaseGroup, error) {
	var groups []ReleaseGroup
	if err := db.store.Find(&groups, nil); err != nil {
		return nil, err
	}

	byName := make(map[string]ReleaseGroup, len(groups))
	for _, g := range groups {
		byName[g.Name] = g
	}
	return byName, nil
}

// GetSubtitleGroups returns all subtitle groups keyed by name
func (db *Database) GetSubtitleGroups() (map[string]SubtitleGroup, error) {
	var groups []SubtitleGroup
	if err := db.store.Find(&groups, nil); err != nil {
		return nil, err
	}

	byName := make(map[string]SubtitleGroup, len(groups))
	for _, g := range groups {
		byName[g.Name] = g
	}
	return byName, nil
}

// Stats counts the records in the store
func (db *Database) Stats() (*Stats, error) {
	var titles []Title
	if err := db.store.Find(&titles, nil); err != nil {
		return nil, err
	}
	var subtitles []Subtitle
	if err := db.store.Find(&subtitles, nil); err != nil {
		return nil, err
	}
	var notFound []SubtitleNotFound
	if err := db.store.Find(&notFound, nil); err != nil {
		return nil, err
	}

	return &Stats{
		Titles:    len(titles),
		Subtitles: len(subtitles),
		NotFound:  len(notFound),
	}, nil
}

// IsNotFound reports whether err means no record matched
func IsNotFound(err error) bool {
	return errors.Is(err, bolthold.ErrNotFound)
}
