package controllers

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/amaumene/subtis/internal/models"
	"github.com/amaumene/subtis/internal/parser"
)

// FileIndexer indexes one video file name on demand
type FileIndexer interface {
	IndexFileName(ctx context.Context, fileName string, bytes int64) (*IndexResult, error)
}

// NotFoundLedger is the pending lookup misses
type NotFoundLedger interface {
	SubscribeNotFound(buffer int) (<-chan models.SubtitleNotFound, func())
	GetNotFound() ([]*models.SubtitleNotFound, error)
	DeleteNotFound(fileName string) error
}

// NotFoundWatcher indexes file names that lookups could not answer
type NotFoundWatcher struct {
	ledger  NotFoundLedger
	indexer FileIndexer
	logger  *logrus.Logger
}

// NewNotFoundWatcher creates a new not-found watcher
func NewNotFoundWatcher(ledger NotFoundLedger, indexer FileIndexer, logger *logrus.Logger) *NotFoundWatcher {
	return &NotFoundWatcher{
		ledger:  ledger,
		indexer: indexer,
		logger:  logger,
	}
}

// Run handles new ledger entries until ctx is done
func (w *NotFoundWatcher) Run(ctx context.Context) {
	events, unsubscribe := w.ledger.SubscribeNotFound(64)
	defer unsubscribe()

	w.logger.Info("Not-found watcher started")
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Not-found watcher stopped")
			return
		case entry, ok := <-events:
			if !ok {
				return
			}
			w.handle(ctx, entry)
		}
	}
}

// Sweep retries every pending ledger entry
func (w *NotFoundWatcher) Sweep(ctx context.Context) error {
	entries, err := w.ledger.GetNotFound()
	if err != nil {
		return err
	}

	w.logger.WithField("pending", len(entries)).Info("Sweeping not-found ledger")
	for _, entry := range entries {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		w.handle(ctx, *entry)
	}
	return nil
}

func (w *NotFoundWatcher) handle(ctx context.Context, entry models.SubtitleNotFound) {
	log := w.logger.WithField("file_name", entry.FileName)

	if parser.IsTVShow(entry.FileName) {
		log.Debug("Skipping TV episode")
		return
	}

	result, err := w.indexer.IndexFileName(ctx, entry.FileName, entry.Bytes)
	switch outcome := Classify(err); outcome {
	case OutcomeOK:
		log.WithFields(logrus.Fields{
			"stored":   result.Stored,
			"existing": result.Existing,
		}).Info("Indexed missing subtitle")
		w.delete(entry.FileName)
	case OutcomeValidation:
		// never indexable, retrying cannot help
		log.WithError(err).Info("Dropping invalid not-found entry")
		w.delete(entry.FileName)
	default:
		if errors.Is(err, context.Canceled) {
			return
		}
		log.WithError(err).WithField("outcome", outcome.String()).Info("Missing subtitle still unresolved")
	}
}

func (w *NotFoundWatcher) delete(fileName string) {
	if err := w.ledger.DeleteNotFound(fileName); err != nil {
		w.logger.WithError(err).WithField("file_name", fileName).Warn("Failed to delete not-found entry")
	}
}
