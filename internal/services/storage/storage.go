// Package storage keeps extracted subtitles and builds their public links.
package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// PublicPrefix is the URL path under which stored objects are served
const PublicPrefix = "/subtitles/"

var ErrInvalidKey = errors.New("invalid object key")

// Storage is a filesystem blob store
type Storage struct {
	root          string
	publicBaseURL string
	logger        *logrus.Logger
}

// NewStorage creates a blob store rooted at dir
func NewStorage(dir, publicBaseURL string, logger *logrus.Logger) (*Storage, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	return &Storage{
		root:          dir,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		logger:        logger,
	}, nil
}

// Root returns the directory objects are written to
func (s *Storage) Root() string {
	return s.root
}

// Upload writes content under key. Existing objects are replaced atomically.
func (s *Storage) Upload(ctx context.Context, key string, content []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path, err := s.objectPath(key)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.root, ".upload-*")
	if err != nil {
		return fmt.Errorf("failed to create temp object: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write object %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close object %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to store object %s: %w", key, err)
	}

	s.logger.WithFields(logrus.Fields{
		"key":        key,
		"size_bytes": len(content),
	}).Debug("Subtitle object stored")
	return nil
}

// Exists reports whether an object is stored under key
func (s *Storage) Exists(key string) bool {
	path, err := s.objectPath(key)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// PublicLink returns the download URL of key; downloadName is the file name
// the client should save it as.
func (s *Storage) PublicLink(key, downloadName string) string {
	link := s.publicBaseURL + PublicPrefix + url.PathEscape(key)
	if downloadName != "" {
		link += "?" + url.Values{"download": {downloadName}}.Encode()
	}
	return link
}

func (s *Storage) objectPath(key string) (string, error) {
	if key == "" || key != filepath.Base(key) || strings.HasPrefix(key, ".") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return filepath.Join(s.root, key), nil
}
