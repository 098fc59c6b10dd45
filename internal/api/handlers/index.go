package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/amaumene/subtis/internal/controllers"
	"github.com/amaumene/subtis/internal/parser"
)

// Indexer indexes one video file name on demand
type Indexer interface {
	IndexFileName(ctx context.Context, fileName string, bytes int64) (*controllers.IndexResult, error)
}

// IndexHandler serves POST /v1/index
type IndexHandler struct {
	indexer Indexer
	logger  *logrus.Logger
}

// NewIndexHandler creates a new index handler
func NewIndexHandler(indexer Indexer, logger *logrus.Logger) *IndexHandler {
	return &IndexHandler{
		indexer: indexer,
		logger:  logger,
	}
}

// ServeHTTP handles the on-demand indexing endpoint
func (h *IndexHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	req, ok := decodeFileRequest(w, r)
	if !ok {
		return
	}

	log := h.logger.WithField("file_name", req.FileName)
	log.Info("Received on-demand index request")

	result, err := h.indexer.IndexFileName(r.Context(), req.FileName, req.Bytes)
	if err == nil {
		writeJSON(w, http.StatusOK, result)
		return
	}

	outcome := controllers.Classify(err)
	log.WithError(err).WithField("outcome", outcome.String()).Info("On-demand indexing did not store a subtitle")

	status, message := statusForOutcome(outcome, err)
	writeMessage(w, status, message)
}

func statusForOutcome(outcome controllers.Outcome, err error) (int, string) {
	switch outcome {
	case controllers.OutcomeValidation:
		if errors.Is(err, parser.ErrUnsupportedExtension) {
			return http.StatusUnsupportedMediaType, MessageUnsupportedExtension
		}
		return http.StatusBadRequest, MessageInvalidFileName
	case controllers.OutcomeNotFound, controllers.OutcomeCorrupt:
		return http.StatusNotFound, MessageSubtitleNotFound
	case controllers.OutcomeUpstream:
		return http.StatusBadGateway, MessageUpstreamFailure
	}
	return http.StatusInternalServerError, MessageInternalError
}
