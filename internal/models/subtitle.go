package models

import (
	"fmt"
	"time"

	"github.com/timshannon/bolthold"
	"go.etcd.io/bbolt"
)

func subtitleTupleQuery(sub *Subtitle) *bolthold.Query {
	return bolthold.Where("TitleID").Eq(sub.TitleID).Index("TitleID").
		And("ReleaseGroupID").Eq(sub.ReleaseGroupID).
		And("Resolution").Eq(sub.Resolution).
		And("SubtitleGroupID").Eq(sub.SubtitleGroupID)
}

// SubtitleExists reports whether a subtitle already exists for the
// (title, release group, resolution, subtitle group) tuple of sub.
func (db *Database) SubtitleExists(sub *Subtitle) (bool, error) {
	var existing []Subtitle
	if err := db.store.Find(&existing, subtitleTupleQuery(sub).Limit(1)); err != nil {
		return false, err
	}
	return len(existing) > 0, nil
}

// InsertSubtitleIfAbsent checks the tuple and inserts in one write
// transaction. It returns false when an equivalent subtitle already exists.
func (db *Database) InsertSubtitleIfAbsent(sub *Subtitle) (bool, error) {
	inserted := false
	err := db.store.Bolt().Update(func(tx *bbolt.Tx) error {
		var existing []Subtitle
		if err := db.store.TxFind(tx, &existing, subtitleTupleQuery(sub).Limit(1)); err != nil {
			return err
		}
		if len(existing) > 0 {
			return nil
		}

		sub.CreatedAt = time.Now()
		if err := db.store.TxInsert(tx, bolthold.NextSequence(), sub); err != nil {
			return err
		}
		inserted = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to insert subtitle for %s: %w", sub.FileName, err)
	}
	return inserted, nil
}

// FindSubtitleView returns the subtitle for a file name hash, preferring the
// most recently added subtitle group. When bytes is set, rows with the same
// video size win and the name-only match is the fallback.
func (db *Database) FindSubtitleView(fileNameHash string, bytes int64) (*SubtitleView, error) {
	var subs []Subtitle

	if bytes > 0 {
		query := bolthold.Where("FileNameHash").Eq(fileNameHash).Index("FileNameHash").
			And("Bytes").Eq(bytes).
			SortBy("SubtitleGroupID").Reverse().Limit(1)
		if err := db.store.Find(&subs, query); err != nil {
			return nil, err
		}
	}

	if len(subs) == 0 {
		query := bolthold.Where("FileNameHash").Eq(fileNameHash).Index("FileNameHash").
			SortBy("SubtitleGroupID").Reverse().Limit(1)
		if err := db.store.Find(&subs, query); err != nil {
			return nil, err
		}
	}

	if len(subs) == 0 {
		return nil, bolthold.ErrNotFound
	}
	return db.buildView(subs[0])
}

// FindSubtitleViewsByTitle returns every subtitle of the title with the given external id
func (db *Database) FindSubtitleViewsByTitle(externalID string) ([]*SubtitleView, error) {
	title, err := db.GetTitleByExternalID(externalID)
	if err != nil {
		return nil, err
	}

	var subs []Subtitle
	query := bolthold.Where("TitleID").Eq(title.ID).Index("TitleID").SortBy("SubtitleGroupID").Reverse()
	if err := db.store.Find(&subs, query); err != nil {
		return nil, err
	}

	views := make([]*SubtitleView, 0, len(subs))
	for _, sub := range subs {
		view, err := db.buildView(sub)
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	return views, nil
}

// IncrementQueried bumps the query counters of a subtitle and its title
func (db *Database) IncrementQueried(subtitleID, titleID uint64) error {
	return db.store.Bolt().Update(func(tx *bbolt.Tx) error {
		var sub Subtitle
		if err := db.store.TxGet(tx, subtitleID, &sub); err != nil {
			return err
		}
		sub.QueriedTimes++
		if err := db.store.TxUpdate(tx, subtitleID, &sub); err != nil {
			return err
		}

		var title Title
		if err := db.store.TxGet(tx, titleID, &title); err != nil {
			return err
		}
		title.QueriedTimes++
		return db.store.TxUpdate(tx, titleID, &title)
	})
}

func (db *Database) buildView(sub Subtitle) (*SubtitleView, error) {
	view := &SubtitleView{Subtitle: sub}
	if err := db.store.Get(sub.TitleID, &view.Title); err != nil {
		return nil, fmt.Errorf("failed to load title %d: %w", sub.TitleID, err)
	}
	if err := db.store.Get(sub.ReleaseGroupID, &view.ReleaseGroup); err != nil {
		return nil, fmt.Errorf("failed to load release group %d: %w", sub.ReleaseGroupID, err)
	}
	if err := db.store.Get(sub.SubtitleGroupID, &view.SubtitleGroup); err != nil {
		return nil, fmt.Errorf("failed to load subtitle group %d: %w", sub.SubtitleGroupID, err)
	}
	return view, nil
}
