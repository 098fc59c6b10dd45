package yts

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amaumene/subtis/internal/config"
)

const pageJSON = `{
  "status": "ok",
  "status_message": "Query was successful",
  "data": {
    "movie_count": 101,
    "limit": 50,
    "page_number": 1,
    "movies": [
      {
        "id": 59260,
        "imdb_code": "tt3359350",
        "title": "Road House",
        "year": 2024,
        "rating": 6.2,
        "large_cover_image": "https://img/road-house.jpg",
        "torrents": [
          {"url": "https://yts/torrent/download/AAA", "hash": "AAA", "quality": "720p", "type": "web", "size_bytes": 1073741824},
          {"url": "https://yts/torrent/download/BBB", "hash": "BBB", "quality": "1080p", "type": "web", "size_bytes": 2147483648}
        ]
      }
    ]
  }
}`

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	client, err := NewClient(&config.Config{
		YTSBaseURL:        server.URL,
		YTSPageSize:       50,
		CatalogMaxRetries: 2,
	}, logger)
	require.NoError(t, err)
	client.retryInterval = time.Millisecond
	return client
}

func TestListPage(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/list_movies.json", r.URL.Path)
		assert.Equal(t, "50", r.URL.Query().Get("limit"))
		assert.Equal(t, "1", r.URL.Query().Get("page"))
		assert.Equal(t, userAgent, r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(pageJSON))
	})

	movies, err := client.ListPage(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, movies, 1)
	assert.Equal(t, "tt3359350", movies[0].ImdbCode)
	assert.Equal(t, 2024, movies[0].Year)
	require.Len(t, movies[0].Torrents, 2)
	assert.True(t, movies[0].Torrents[1].MatchesResolution("1080p"))
	assert.False(t, movies[0].Torrents[0].MatchesResolution("1080p"))

	count, pages, err := client.TotalPages(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 101, count)
	assert.Equal(t, 3, pages)
}

func TestSearchFiltersYear(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Road House", r.URL.Query().Get("query_term"))
		_, _ = w.Write([]byte(pageJSON))
	})

	movies, err := client.Search(context.Background(), "Road House", 2024)
	require.NoError(t, err)
	assert.Len(t, movies, 1)

	movies, err = client.Search(context.Background(), "Road House", 1989)
	require.NoError(t, err)
	assert.Empty(t, movies)
}

func TestListPageRetriesThenSucceeds(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(pageJSON))
	})

	movies, err := client.ListPage(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, movies, 1)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestListPageUnavailable(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_, _ = w.Write([]byte(`{"status":"error","status_message":"down"}`))
	})

	_, err := client.ListPage(context.Background(), 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCatalogUnavailable))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestDownloadTorrent(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte("d4:infod4:name5:a.mkvee"))
	})

	data, err := client.DownloadTorrent(context.Background(), client.baseURL+"/torrent")
	require.NoError(t, err)
	assert.Equal(t, "d4:infod4:name5:a.mkvee", string(data))

	_, err = client.DownloadTorrent(context.Background(), client.baseURL+"/missing")
	assert.Error(t, err)
}
