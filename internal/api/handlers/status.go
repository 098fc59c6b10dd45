package handlers

import (
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/amaumene/subtis/internal/models"
)

// StatsReader reports store contents
type StatsReader interface {
	Stats() (*models.Stats, error)
}

// StatusHandler handles status requests
type StatusHandler struct {
	db        StatsReader
	providers []string
	logger    *logrus.Logger
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(db StatsReader, providers []string, logger *logrus.Logger) *StatusHandler {
	return &StatusHandler{
		db:        db,
		providers: providers,
		logger:    logger,
	}
}

// StatusResponse represents the status response
type StatusResponse struct {
	Titles          int      `json:"titles"`
	Subtitles       int      `json:"subtitles"`
	PendingNotFound int      `json:"pending_not_found"`
	Providers       []string `json:"subtitle_providers"`
}

// ServeHTTP handles the status endpoint
func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats, err := h.db.Stats()
	if err != nil {
		h.logger.WithError(err).Error("Failed to get store stats")
		writeMessage(w, http.StatusInternalServerError, MessageInternalError)
		return
	}

	writeJSON(w, http.StatusOK, StatusResponse{
		Titles:          stats.Titles,
		Subtitles:       stats.Subtitles,
		PendingNotFound: stats.NotFound,
		Providers:       h.providers,
	})
}
