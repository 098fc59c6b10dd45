package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	s, err := NewStorage(t.TempDir(), "https://subtis.example/", logger)
	require.NoError(t, err)
	return s
}

func TestUploadAndLink(t *testing.T) {
	s := newTestStorage(t)

	key := "road-house-1080p-yts-subdivx-1a2b3c4d.srt"
	require.NoError(t, s.Upload(context.Background(), key, []byte("1\n00:00:01,000 --> 00:00:02,000\nHola\n")))
	assert.True(t, s.Exists(key))

	data, err := os.ReadFile(filepath.Join(s.Root(), key))
	require.NoError(t, err)
	assert.Contains(t, string(data), "Hola")

	link := s.PublicLink(key, "Road.House.2024.1080p.WEBRip.x264.AAC5.1-[YTS.MX].srt")
	assert.Equal(t,
		"https://subtis.example/subtitles/road-house-1080p-yts-subdivx-1a2b3c4d.srt?download=Road.House.2024.1080p.WEBRip.x264.AAC5.1-%5BYTS.MX%5D.srt",
		link)

	entries, err := os.ReadDir(s.Root())
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestUploadRejectsTraversal(t *testing.T) {
	s := newTestStorage(t)
	for _, key := range []string{"", "../x.srt", "a/b.srt", ".hidden"} {
		err := s.Upload(context.Background(), key, []byte("x"))
		assert.ErrorIs(t, err, ErrInvalidKey, key)
	}
}
