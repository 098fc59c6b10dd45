package materializer

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amaumene/subtis/internal/config"
	"github.com/amaumene/subtis/internal/parser"
	"github.com/amaumene/subtis/internal/subtitles"
)

const (
	videoFileName = "Road.House.2024.1080p.WEBRip.x264.AAC5.1-[YTS.MX].mp4"
	srtBody       = "1\n00:00:01,000 --> 00:00:03,000\nBienvenidos al Road House\n"
)

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func newTestMaterializer(t *testing.T, payloads map[string][]byte) (*Materializer, string, string) {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := payloads[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write(body)
	}))
	t.Cleanup(server.Close)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	scratch := t.TempDir()
	m, err := NewMaterializer(&config.Config{ScratchDir: scratch, DownloadTimeout: 5 * time.Second}, logger)
	require.NoError(t, err)
	return m, scratch, server.URL
}

func candidate(t *testing.T, link string, kind subtitles.ContainerKind) subtitles.Candidate {
	t.Helper()
	identity, err := parser.Parse(videoFileName)
	require.NoError(t, err)
	return subtitles.NewCandidate(identity, "SubDivX", link, kind)
}

func listing(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestMaterializeZip(t *testing.T) {
	m, scratch, base := newTestMaterializer(t, map[string][]byte{
		"/sub.zip": buildZip(t, map[string]string{
			"Road.House/Road.House.2024.1080p.srt": srtBody,
			"Road.House/readme.txt":                "www.subdivx.com",
		}),
	})
	before := listing(t, scratch)

	extracted, err := m.Materialize(context.Background(), candidate(t, base+"/sub.zip", subtitles.KindZip), videoFileName)
	require.NoError(t, err)
	assert.Equal(t, srtBody, string(extracted.Content))
	assert.Equal(t, "road-house-1080p-yts-subdivx-"+parser.FileNameHash(videoFileName)[:8]+".srt", extracted.ObjectKey)
	assert.Equal(t, "Road.House.2024.1080p.WEBRip.x264.AAC5.1-[YTS.MX].srt", extracted.DownloadName)

	assert.Equal(t, before, listing(t, scratch))
}

func TestMaterializeRar(t *testing.T) {
	fixture, err := os.ReadFile(filepath.Join("testdata", "sub.rar"))
	require.NoError(t, err)
	m, scratch, base := newTestMaterializer(t, map[string][]byte{"/sub.rar": fixture})
	before := listing(t, scratch)

	extracted, err := m.Materialize(context.Background(), candidate(t, base+"/sub.rar", subtitles.KindRar), videoFileName)
	require.NoError(t, err)
	assert.Equal(t, srtBody, string(extracted.Content))
	assert.Equal(t, "Road.House.2024.1080p.WEBRip.x264.AAC5.1-[YTS.MX].srt", extracted.DownloadName)

	assert.Equal(t, before, listing(t, scratch))
}

func TestMaterializePlaintext(t *testing.T) {
	m, scratch, base := newTestMaterializer(t, map[string][]byte{"/c.srt": []byte(srtBody)})
	before := listing(t, scratch)

	extracted, err := m.Materialize(context.Background(), candidate(t, base+"/c.srt", subtitles.KindPlaintext), videoFileName)
	require.NoError(t, err)
	assert.Equal(t, srtBody, string(extracted.Content))
	assert.Equal(t, before, listing(t, scratch))
}

func TestMaterializeFailuresLeaveScratchClean(t *testing.T) {
	m, scratch, base := newTestMaterializer(t, map[string][]byte{
		"/none.zip":  buildZip(t, map[string]string{"readme.txt": "no subtitles here"}),
		"/two.zip":   buildZip(t, map[string]string{"a.srt": srtBody, "b/b.SRT": srtBody}),
		"/slip.zip":  buildZip(t, map[string]string{"../../evil.srt": srtBody}),
		"/bad.zip":   []byte("not a zip archive"),
		"/bad.rar":   []byte("not a rar archive"),
		"/empty.srt": {},
		"/huge.zip":  buildZip(t, map[string]string{"huge.srt": strings.Repeat("a", maxSrtSize+1)}),
	})
	before := listing(t, scratch)

	tests := []struct {
		path    string
		kind    subtitles.ContainerKind
		wantErr error
	}{
		{"/none.zip", subtitles.KindZip, ErrSrtNotFound},
		{"/two.zip", subtitles.KindZip, ErrSrtNotFound},
		{"/slip.zip", subtitles.KindZip, ErrExtractFailed},
		{"/bad.zip", subtitles.KindZip, ErrExtractFailed},
		{"/bad.rar", subtitles.KindRar, ErrExtractFailed},
		{"/empty.srt", subtitles.KindPlaintext, ErrSrtNotFound},
		{"/huge.zip", subtitles.KindZip, ErrExtractFailed},
		{"/missing.zip", subtitles.KindZip, ErrDownloadFailed},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			_, err := m.Materialize(context.Background(), candidate(t, base+tt.path, tt.kind), videoFileName)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, before, listing(t, scratch))
		})
	}
}
