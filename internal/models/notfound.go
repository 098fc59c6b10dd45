package models

import (
	"fmt"
	"sort"
	"time"

	"github.com/timshannon/bolthold"
	"go.etcd.io/bbolt"
)

// InsertNotFound records a lookup miss. Subscribers are notified only when
// the file name was not already pending.
func (db *Database) InsertNotFound(fileName string, bytes int64) error {
	entry := SubtitleNotFound{FileName: fileName, Bytes: bytes}
	inserted := false

	err := db.store.Bolt().Update(func(tx *bbolt.Tx) error {
		var existing []SubtitleNotFound
		if err := db.store.TxFind(tx, &existing, bolthold.Where("FileName").Eq(fileName).Index("FileName").Limit(1)); err != nil {
			return err
		}
		if len(existing) > 0 {
			return nil
		}

		entry.CreatedAt = time.Now()
		if err := db.store.TxInsert(tx, bolthold.NextSequence(), &entry); err != nil {
			return err
		}
		inserted = true
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record not found entry for %s: %w", fileName, err)
	}

	if inserted {
		db.publishNotFound(entry)
	}
	return nil
}

// GetNotFound returns all pending not-found entries, oldest first
func (db *Database) GetNotFound() ([]*SubtitleNotFound, error) {
	var entries []*SubtitleNotFound
	if err := db.store.Find(&entries, nil); err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})
	return entries, nil
}

// DeleteNotFound removes every not-found entry for a file name
func (db *Database) DeleteNotFound(fileName string) error {
	return db.store.DeleteMatching(&SubtitleNotFound{}, bolthold.Where("FileName").Eq(fileName).Index("FileName"))
}

// SubscribeNotFound returns a channel receiving newly recorded not-found
// entries and a function that ends the subscription. A full channel drops
// the event; pending entries stay in the ledger for the next sweep.
func (db *Database) SubscribeNotFound(buffer int) (<-chan SubtitleNotFound, func()) {
	ch := make(chan SubtitleNotFound, buffer)

	db.mu.Lock()
	id := db.nextSubID
	db.nextSubID++
	db.subscribers[id] = ch
	db.mu.Unlock()

	cancel := func() {
		db.mu.Lock()
		defer db.mu.Unlock()
		if sub, ok := db.subscribers[id]; ok {
			close(sub)
			delete(db.subscribers, id)
		}
	}
	return ch, cancel
}

func (db *Database) publishNotFound(entry SubtitleNotFound) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, ch := range db.subscribers {
		select {
		case ch <- entry:
		default:
		}
	}
}
