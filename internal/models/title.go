package models

import (
	"fmt"
	"time"

	"github.com/timshannon/bolthold"
	"go.etcd.io/bbolt"
)

// FindTitlesByExternalIDs returns the titles whose external id is in ids, in one query
func (db *Database) FindTitlesByExternalIDs(ids []string) ([]*Title, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	values := make([]interface{}, len(ids))
	for i, id := range ids {
		values[i] = id
	}

	var titles []*Title
	err := db.store.Find(&titles, bolthold.Where("ExternalID").In(values...).Index("ExternalID"))
	return titles, err
}

// GetTitleByExternalID retrieves the oldest title with the given external id
func (db *Database) GetTitleByExternalID(externalID string) (*Title, error) {
	var titles []*Title
	err := db.store.Find(&titles, bolthold.Where("ExternalID").Eq(externalID).Index("ExternalID").SortBy("ID").Limit(1))
	if err != nil {
		return nil, err
	}
	if len(titles) == 0 {
		return nil, bolthold.ErrNotFound
	}
	return titles[0], nil
}

// EnsureTitle inserts the title unless one with the same external id exists,
// and returns the stored record.
func (db *Database) EnsureTitle(title *Title) (*Title, error) {
	stored := *title
	err := db.store.Bolt().Update(func(tx *bbolt.Tx) error {
		var existing []Title
		query := bolthold.Where("ExternalID").Eq(title.ExternalID).Index("ExternalID").SortBy("ID").Limit(1)
		if err := db.store.TxFind(tx, &existing, query); err != nil {
			return err
		}
		if len(existing) > 0 {
			stored = existing[0]
			return nil
		}

		stored.CreatedAt = time.Now()
		return db.store.TxInsert(tx, bolthold.NextSequence(), &stored)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to ensure title %s: %w", title.ExternalID, err)
	}
	return &stored, nil
}

// IncrementTitleSearched bumps the search counter of a title
func (db *Database) IncrementTitleSearched(titleID uint64) error {
	return db.store.Bolt().Update(func(tx *bbolt.Tx) error {
		var title Title
		if err := db.store.TxGet(tx, titleID, &title); err != nil {
			return err
		}
		title.SearchedTimes++
		return db.store.TxUpdate(tx, titleID, &title)
	})
}
