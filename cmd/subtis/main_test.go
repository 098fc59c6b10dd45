package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amaumene/subtis/internal/api/handlers"
	"github.com/amaumene/subtis/internal/controllers"
)

func newLookupServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req handlers.FileRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		switch req.FileName {
		case "Road.House.2024.1080p.WEBRip.x264.AAC5.1-[YTS.MX].mp4":
			_ = json.NewEncoder(w).Encode(controllers.SubtitleResponse{
				ID:            1,
				Resolution:    "1080p",
				SubtitleLink:  "http://localhost:8080/subtitles/road-house.srt",
				Title:         controllers.TitleResponse{Name: "Road House", Year: 2024},
				ReleaseGroup:  controllers.GroupResponse{Name: "YTS"},
				SubtitleGroup: controllers.GroupResponse{Name: "SubDivX"},
			})
		case "song.mp3":
			w.WriteHeader(http.StatusUnsupportedMediaType)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func runLookup(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"lookup"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestLookupCommand(t *testing.T) {
	server := newLookupServer(t)

	out, err := runLookup(t, "--server", server.URL, "-f", "Road.House.2024.1080p.WEBRip.x264.AAC5.1-[YTS.MX].mp4")
	require.NoError(t, err)
	assert.Contains(t, out, "Road House (2024)")
	assert.Contains(t, out, "1080p YTS by SubDivX")
	assert.Contains(t, out, "road-house.srt")

	_, err = runLookup(t, "--server", server.URL, "-f", "song.mp3")
	require.EqualError(t, err, "File extension not supported")

	_, err = runLookup(t, "--server", server.URL, "-f", "The.Matrix.3.2023.1080p.WEBRip.x264.AAC5.1-[YTS.MX].mp4")
	require.EqualError(t, err, "Subtitle not found for file")

	_, err = runLookup(t, "--server", server.URL)
	require.Error(t, err)
}

func TestLookupCommandDefaultsToServerPort(t *testing.T) {
	server := newLookupServer(t)
	u, err := url.Parse(server.URL)
	require.NoError(t, err)
	t.Setenv("SERVER_PORT", u.Port())

	out, err := runLookup(t, "-f", "Road.House.2024.1080p.WEBRip.x264.AAC5.1-[YTS.MX].mp4")
	require.NoError(t, err)
	assert.Contains(t, out, "Road House (2024)")
}
