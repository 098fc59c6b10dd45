// Package materializer downloads subtitle candidates and extracts their .srt text.
package materializer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/amaumene/subtis/internal/config"
	"github.com/amaumene/subtis/internal/metrics"
	"github.com/amaumene/subtis/internal/parser"
	"github.com/amaumene/subtis/internal/subtitles"
)

const (
	userAgent       = "subtis/1.0"
	maxDownloadSize = 20 * 1024 * 1024 // 20MB
	maxSrtSize      = 10 * 1024 * 1024 // 10MB
)

var (
	ErrDownloadFailed = errors.New("subtitle download failed")
	ErrExtractFailed  = errors.New("subtitle extraction failed")
	// ErrSrtNotFound means the archive held zero or several .srt files
	ErrSrtNotFound = errors.New("srt file not found")
)

// ExtractedSubtitle is the subtitle text ready to be stored
type ExtractedSubtitle struct {
	Content      []byte
	ObjectKey    string // "road-house-1080p-yts-subdivx-1a2b3c4d.srt"
	DownloadName string // video file name with a .srt extension
}

// Materializer downloads and unpacks candidates in a scratch directory
type Materializer struct {
	scratchDir string
	timeout    time.Duration
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewMaterializer creates a materializer working under cfg.ScratchDir
func NewMaterializer(cfg *config.Config, logger *logrus.Logger) (*Materializer, error) {
	if err := os.MkdirAll(cfg.ScratchDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create scratch directory: %w", err)
	}

	return &Materializer{
		scratchDir: cfg.ScratchDir,
		timeout:    cfg.DownloadTimeout,
		httpClient: &http.Client{},
		logger:     logger,
	}, nil
}

// Materialize downloads the candidate and returns its subtitle text for the
// given video file name. Every scratch file it creates is removed before it returns.
func (m *Materializer) Materialize(ctx context.Context, candidate subtitles.Candidate, fileName string) (*ExtractedSubtitle, error) {
	start := time.Now()
	defer func() {
		metrics.MaterializeDuration.WithLabelValues(candidate.Kind.String()).Observe(time.Since(start).Seconds())
	}()

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	scratchName := fmt.Sprintf("%s-%s", candidate.FileNameWithoutExtension, uuid.NewString())
	downloadPath := filepath.Join(m.scratchDir, scratchName+path.Ext(candidate.CompressedFileName))
	extractDir := filepath.Join(m.scratchDir, scratchName)
	defer os.Remove(downloadPath)
	defer os.RemoveAll(extractDir)

	log := m.logger.WithFields(logrus.Fields{
		"file_name":      fileName,
		"subtitle_group": candidate.SubtitleGroup,
		"kind":           candidate.Kind.String(),
	})

	if err := m.download(ctx, candidate.SourceLink, downloadPath); err != nil {
		return nil, err
	}

	var content []byte
	var err error
	switch candidate.Kind {
	case subtitles.KindPlaintext:
		content, err = readLimited(downloadPath)
	case subtitles.KindZip:
		if err = extractZip(downloadPath, extractDir); err == nil {
			content, err = readSingleSrt(extractDir)
		}
	case subtitles.KindRar:
		if err = extractRar(downloadPath, extractDir); err == nil {
			content, err = readSingleSrt(extractDir)
		}
	default:
		err = fmt.Errorf("%w: unknown container kind %s", ErrExtractFailed, candidate.Kind)
	}
	if err != nil {
		return nil, err
	}

	log.WithField("size_bytes", len(content)).Debug("Subtitle materialized")

	return &ExtractedSubtitle{
		Content:      content,
		ObjectKey:    ObjectKey(candidate, fileName),
		DownloadName: DownloadName(fileName),
	}, nil
}

// ObjectKey names the stored object after the candidate and the video file name hash
func ObjectKey(candidate subtitles.Candidate, fileName string) string {
	return fmt.Sprintf("%s-%s.srt", candidate.FileNameWithoutExtension, parser.FileNameHash(fileName)[:8])
}

// DownloadName replaces the video extension of fileName with .srt
func DownloadName(fileName string) string {
	return strings.TrimSuffix(fileName, path.Ext(fileName)) + ".srt"
}

func (m *Materializer) download(ctx context.Context, link, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrDownloadFailed, resp.StatusCode)
	}

	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	defer f.Close()

	n, err := io.Copy(f, io.LimitReader(resp.Body, maxDownloadSize+1))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	if n > maxDownloadSize {
		return fmt.Errorf("%w: larger than %d bytes", ErrDownloadFailed, maxDownloadSize)
	}
	return f.Close()
}

// readSingleSrt returns the only .srt file below dir
func readSingleSrt(dir string) ([]byte, error) {
	var found []string
	err := filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(p), ".srt") {
			found = append(found, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtractFailed, err)
	}
	if len(found) != 1 {
		return nil, fmt.Errorf("%w: %d candidates in archive", ErrSrtNotFound, len(found))
	}
	return readLimited(found[0])
}

func readLimited(p string) ([]byte, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtractFailed, err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxSrtSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtractFailed, err)
	}
	if len(data) > maxSrtSize {
		return nil, fmt.Errorf("%w: subtitle larger than %d bytes", ErrExtractFailed, maxSrtSize)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty subtitle", ErrSrtNotFound)
	}
	return data, nil
}
