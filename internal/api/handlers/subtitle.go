package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/amaumene/subtis/internal/controllers"
	"github.com/amaumene/subtis/internal/parser"
)

// Lookuper answers subtitle lookups
type Lookuper interface {
	Lookup(ctx context.Context, fileName string, bytes int64) (*controllers.SubtitleResponse, error)
	SubtitlesByTitle(ctx context.Context, externalID string) ([]*controllers.SubtitleResponse, error)
	RecordNotFound(fileName string, bytes int64)
}

// SubtitleHandler serves POST /v1/subtitle
type SubtitleHandler struct {
	lookup Lookuper
	logger *logrus.Logger
}

// NewSubtitleHandler creates a new subtitle handler
func NewSubtitleHandler(lookup Lookuper, logger *logrus.Logger) *SubtitleHandler {
	return &SubtitleHandler{
		lookup: lookup,
		logger: logger,
	}
}

// ServeHTTP handles the subtitle lookup endpoint
func (h *SubtitleHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	req, ok := decodeFileRequest(w, r)
	if !ok {
		return
	}

	subtitle, err := h.lookup.Lookup(r.Context(), req.FileName, req.Bytes)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, subtitle)
	case errors.Is(err, parser.ErrUnsupportedExtension):
		writeMessage(w, http.StatusUnsupportedMediaType, MessageUnsupportedExtension)
	default:
		// misses feed on-demand indexing
		h.lookup.RecordNotFound(req.FileName, req.Bytes)
		h.logger.WithField("file_name", req.FileName).Debug("Subtitle not found")
		writeMessage(w, http.StatusNotFound, MessageSubtitleNotFound)
	}
}

// MovieSubtitlesHandler serves GET /v1/subtitles/movie/{imdbId}
type MovieSubtitlesHandler struct {
	lookup Lookuper
	logger *logrus.Logger
}

// NewMovieSubtitlesHandler creates a new movie subtitles handler
func NewMovieSubtitlesHandler(lookup Lookuper, logger *logrus.Logger) *MovieSubtitlesHandler {
	return &MovieSubtitlesHandler{
		lookup: lookup,
		logger: logger,
	}
}

// ServeHTTP handles the movie subtitles endpoint
func (h *MovieSubtitlesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	imdbID := r.PathValue("imdbId")
	if imdbID == "" {
		writeJSON(w, http.StatusBadRequest, MessageResponse{Message: MessageRequiredProperty, At: "imdbId"})
		return
	}

	subtitles, err := h.lookup.SubtitlesByTitle(r.Context(), imdbID)
	if err != nil {
		h.logger.WithField("imdb_id", imdbID).Debug("Movie subtitles not found")
		writeMessage(w, http.StatusNotFound, MessageMovieSubtitlesMissing)
		return
	}
	writeJSON(w, http.StatusOK, subtitles)
}
