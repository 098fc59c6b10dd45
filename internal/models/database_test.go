package models

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDatabase(t *testing.T) *Database {
	t.Helper()
	db, err := NewDatabase(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, db.SeedReferenceData())
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSeedReferenceDataIsIdempotent(t *testing.T) {
	db := newTestDatabase(t)
	require.NoError(t, db.SeedReferenceData())

	releaseGroups, err := db.GetReleaseGroups()
	require.NoError(t, err)
	assert.Len(t, releaseGroups, len(DefaultReleaseGroups))
	assert.Contains(t, releaseGroups, "YTS")

	subtitleGroups, err := db.GetSubtitleGroups()
	require.NoError(t, err)
	assert.Len(t, subtitleGroups, len(DefaultSubtitleGroups))
	assert.Less(t, subtitleGroups[SubtitleGroupSubDivX].ID, subtitleGroups[SubtitleGroupOpenSubtitles].ID)
}

func TestEnsureTitle(t *testing.T) {
	db := newTestDatabase(t)

	first, err := db.EnsureTitle(&Title{ExternalID: "tt3359350", Name: "Road House", Year: 2024})
	require.NoError(t, err)
	require.NotZero(t, first.ID)

	second, err := db.EnsureTitle(&Title{ExternalID: "tt3359350", Name: "Road House (dup)", Year: 2024})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Road House", second.Name)

	titles, err := db.FindTitlesByExternalIDs([]string{"tt3359350", "tt0000001"})
	require.NoError(t, err)
	assert.Len(t, titles, 1)
}

func insertSubtitle(t *testing.T, db *Database, titleID uint64, group string, fileName, hash string, bytes int64) bool {
	t.Helper()
	releaseGroups, err := db.GetReleaseGroups()
	require.NoError(t, err)
	subtitleGroups, err := db.GetSubtitleGroups()
	require.NoError(t, err)

	inserted, err := db.InsertSubtitleIfAbsent(&Subtitle{
		TitleID:         titleID,
		ReleaseGroupID:  releaseGroups["YTS"].ID,
		SubtitleGroupID: subtitleGroups[group].ID,
		Resolution:      "1080p",
		RipType:         "WEBRip",
		FileName:        fileName,
		FileNameHash:    hash,
		Bytes:           bytes,
		SubtitleLink:    "http://localhost/subtitles/" + group + ".srt",
	})
	require.NoError(t, err)
	return inserted
}

func TestInsertSubtitleIfAbsentConcurrent(t *testing.T) {
	db := newTestDatabase(t)
	title, err := db.EnsureTitle(&Title{ExternalID: "tt3359350", Name: "Road House", Year: 2024})
	require.NoError(t, err)

	releaseGroups, err := db.GetReleaseGroups()
	require.NoError(t, err)
	subtitleGroups, err := db.GetSubtitleGroups()
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]bool, 8)
	errs := make([]error, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = db.InsertSubtitleIfAbsent(&Subtitle{
				TitleID:         title.ID,
				ReleaseGroupID:  releaseGroups["YTS"].ID,
				SubtitleGroupID: subtitleGroups[SubtitleGroupSubDivX].ID,
				Resolution:      "1080p",
				FileName:        "Road.House.mp4",
				FileNameHash:    "hash",
			})
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	count := 0
	for _, inserted := range results {
		if inserted {
			count++
		}
	}
	assert.Equal(t, 1, count)

	stats, err := db.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Subtitles)
}

func TestFindSubtitleViewPrefersLatestGroupAndBytes(t *testing.T) {
	db := newTestDatabase(t)
	title, err := db.EnsureTitle(&Title{ExternalID: "tt3359350", Name: "Road House", Year: 2024})
	require.NoError(t, err)

	insertSubtitle(t, db, title.ID, SubtitleGroupSubDivX, "Road.House.mp4", "hash", 100)
	insertSubtitle(t, db, title.ID, SubtitleGroupOpenSubtitles, "Road.House.mp4", "hash", 200)

	view, err := db.FindSubtitleView("hash", 0)
	require.NoError(t, err)
	assert.Equal(t, SubtitleGroupOpenSubtitles, view.SubtitleGroup.Name)
	assert.Equal(t, "Road House", view.Title.Name)
	assert.Equal(t, "YTS", view.ReleaseGroup.Name)

	view, err = db.FindSubtitleView("hash", 100)
	require.NoError(t, err)
	assert.Equal(t, SubtitleGroupSubDivX, view.SubtitleGroup.Name)

	// unknown size falls back to the name match
	view, err = db.FindSubtitleView("hash", 999)
	require.NoError(t, err)
	assert.Equal(t, SubtitleGroupOpenSubtitles, view.SubtitleGroup.Name)

	_, err = db.FindSubtitleView("missing", 0)
	assert.True(t, IsNotFound(err))

	views, err := db.FindSubtitleViewsByTitle("tt3359350")
	require.NoError(t, err)
	assert.Len(t, views, 2)
}

func TestIncrementQueried(t *testing.T) {
	db := newTestDatabase(t)
	title, err := db.EnsureTitle(&Title{ExternalID: "tt3359350", Name: "Road House", Year: 2024})
	require.NoError(t, err)
	insertSubtitle(t, db, title.ID, SubtitleGroupSubDivX, "Road.House.mp4", "hash", 0)

	view, err := db.FindSubtitleView("hash", 0)
	require.NoError(t, err)
	require.NoError(t, db.IncrementQueried(view.Subtitle.ID, view.Title.ID))

	view, err = db.FindSubtitleView("hash", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, view.Subtitle.QueriedTimes)
	assert.Equal(t, 1, view.Title.QueriedTimes)
}

func TestNotFoundLedger(t *testing.T) {
	db := newTestDatabase(t)
	events, cancel := db.SubscribeNotFound(4)
	defer cancel()

	require.NoError(t, db.InsertNotFound("The.Matrix.3.2023.1080p.WEBRip-[YTS.MX].mp4", 42))
	require.NoError(t, db.InsertNotFound("The.Matrix.3.2023.1080p.WEBRip-[YTS.MX].mp4", 42))

	select {
	case entry := <-events:
		assert.Equal(t, "The.Matrix.3.2023.1080p.WEBRip-[YTS.MX].mp4", entry.FileName)
		assert.Equal(t, int64(42), entry.Bytes)
	case <-time.After(time.Second):
		t.Fatal("expected a not found event")
	}
	assert.Empty(t, events)

	pending, err := db.GetNotFound()
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	require.NoError(t, db.DeleteNotFound("The.Matrix.3.2023.1080p.WEBRip-[YTS.MX].mp4"))
	pending, err = db.GetNotFound()
	require.NoError(t, err)
	assert.Empty(t, pending)
}
