package opensubtitles

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amaumene/subtis/internal/config"
	"github.com/amaumene/subtis/internal/parser"
	"github.com/amaumene/subtis/internal/subtitles"
)

const searchJSON = `{"total_count":3,"data":[
  {"id":"1","attributes":{"language":"es","release":"Road.House.2024.720p.WEBRip.x264-[YTS.MX]","files":[{"file_id":101,"file_name":"a.srt"}]}},
  {"id":"2","attributes":{"language":"es","release":"Road.House.2024.1080p.WEB-DL.DDP5.1-FLUX","files":[{"file_id":102,"file_name":"b.srt"}]}},
  {"id":"3","attributes":{"language":"es","release":"Road.House.2024.1080p.WEBRip.x264.AAC5.1-[YTS.MX]","files":[{"file_id":103,"file_name":"c.srt"}]}}
]}`

type fakeAPI struct {
	logins    int32
	downloads int32
}

func (f *fakeAPI) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&f.logins, 1)
		var req loginRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "someone", req.Username)
		fmt.Fprint(w, `{"token":"tok-123","status":200}`)
	})
	mux.HandleFunc("/subtitles", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key", r.Header.Get("Api-Key"))
		assert.Equal(t, "3359350", r.URL.Query().Get("imdb_id"))
		assert.Equal(t, "es", r.URL.Query().Get("languages"))
		fmt.Fprint(w, searchJSON)
	})
	mux.HandleFunc("/download", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&f.downloads, 1)
		assert.Equal(t, http.MethodPost, r.Method)
		var req downloadRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		fmt.Fprintf(w, `{"link":"https://dl.opensubtitles.com/file/%d/c.srt","file_name":"c.srt","remaining":99}`, req.FileID)
	})
	return mux
}

func newTestClient(t *testing.T, api *fakeAPI, username string) *Client {
	t.Helper()
	server := httptest.NewServer(api.handler(t))
	t.Cleanup(server.Close)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	client, err := NewClient(&config.Config{
		OpenSubtitlesBaseURL:  server.URL,
		OpenSubtitlesAPIKey:   "key",
		OpenSubtitlesUsername: username,
		OpenSubtitlesPassword: "secret",
		SubtitleLanguage:      "es",
		TokenFile:             filepath.Join(t.TempDir(), "token.json"),
	}, logger)
	require.NoError(t, err)
	return client
}

func identity(t *testing.T, fileName string) *parser.MovieIdentity {
	t.Helper()
	id, err := parser.Parse(fileName)
	require.NoError(t, err)
	return id
}

func TestResolvePrefersReleaseGroup(t *testing.T) {
	api := &fakeAPI{}
	client := newTestClient(t, api, "")

	candidate, err := client.Resolve(context.Background(), identity(t, "Road.House.2024.1080p.WEBRip.x264.AAC5.1-[YTS.MX].mp4"), "tt3359350")
	require.NoError(t, err)
	assert.Equal(t, "https://dl.opensubtitles.com/file/103/c.srt", candidate.SourceLink)
	assert.Equal(t, subtitles.KindPlaintext, candidate.Kind)
	assert.Equal(t, int32(0), atomic.LoadInt32(&api.logins))
}

func TestResolveFallsBackToResolution(t *testing.T) {
	api := &fakeAPI{}
	client := newTestClient(t, api, "")

	candidate, err := client.Resolve(context.Background(), identity(t, "Road.House.2024.1080p.BluRay.x264-ETHEL.mkv"), "tt3359350")
	require.NoError(t, err)
	assert.Equal(t, "https://dl.opensubtitles.com/file/102/c.srt", candidate.SourceLink)

	_, err = client.Resolve(context.Background(), identity(t, "Road.House.2024.2160p.BluRay.x265-ETHEL.mkv"), "tt3359350")
	assert.Equal(t, subtitles.NoMatch, subtitles.KindOf(err))
}

func TestLoginTokenIsReused(t *testing.T) {
	api := &fakeAPI{}
	client := newTestClient(t, api, "someone")
	id := identity(t, "Road.House.2024.1080p.WEBRip.x264.AAC5.1-[YTS.MX].mp4")

	_, err := client.Resolve(context.Background(), id, "tt3359350")
	require.NoError(t, err)
	_, err = client.Resolve(context.Background(), id, "tt3359350")
	require.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&api.logins))

	token, err := client.tokenStore.GetToken()
	require.NoError(t, err)
	assert.Equal(t, "tok-123", token.AccessToken)
}

func TestTokenExpired(t *testing.T) {
	now := time.Now()
	assert.False(t, (&Token{ObtainedAt: now.Add(-time.Hour)}).Expired(now))
	assert.True(t, (&Token{ObtainedAt: now.Add(-24 * time.Hour)}).Expired(now))
}
