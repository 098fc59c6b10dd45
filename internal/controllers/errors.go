package controllers

import (
	"context"
	"errors"

	"github.com/amaumene/subtis/internal/materializer"
	"github.com/amaumene/subtis/internal/models"
	"github.com/amaumene/subtis/internal/parser"
	"github.com/amaumene/subtis/internal/services/storage"
	"github.com/amaumene/subtis/internal/services/yts"
	"github.com/amaumene/subtis/internal/torrent"
)

var (
	// ErrMissingReference means a provider's subtitle group is absent from reference data
	ErrMissingReference        = errors.New("subtitle group missing from reference data")
	ErrUnsupportedReleaseGroup = errors.New("release group not supported")
	ErrCinemaRecording         = errors.New("cinema recording")
	ErrBlacklisted             = errors.New("release blacklisted")
	ErrTitleNotInCatalog       = errors.New("title not found in catalog")
	ErrNoCandidates            = errors.New("no subtitle candidates")
	ErrSubtitleNotFound        = errors.New("subtitle not found")
	ErrTitleSubtitlesNotFound  = errors.New("subtitles not found for title")
)

// Outcome is the control-flow class of an error
type Outcome int

const (
	OutcomeOK Outcome = iota
	// OutcomeValidation is surfaced to the caller and never retried
	OutcomeValidation
	// OutcomeNotFound ends a unit of work normally
	OutcomeNotFound
	// OutcomeUpstream is a transient failure isolated to its unit
	OutcomeUpstream
	// OutcomeCorrupt is handled like NotFound but logged louder
	OutcomeCorrupt
	// OutcomeFatal halts the current run
	OutcomeFatal
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeValidation:
		return "validation"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeUpstream:
		return "upstream"
	case OutcomeCorrupt:
		return "corrupt"
	case OutcomeFatal:
		return "fatal"
	}
	return "unknown"
}

// Classify maps an error from any pipeline stage to its outcome
func Classify(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, ErrMissingReference),
		errors.Is(err, yts.ErrCatalogUnavailable):
		return OutcomeFatal
	case errors.Is(err, parser.ErrUnsupportedExtension),
		errors.Is(err, parser.ErrYearNotFound),
		errors.Is(err, parser.ErrResolutionNotFound),
		errors.Is(err, parser.ErrTitleNotFound),
		errors.Is(err, storage.ErrInvalidKey):
		return OutcomeValidation
	case errors.Is(err, torrent.ErrCorruptTorrent),
		errors.Is(err, materializer.ErrSrtNotFound),
		errors.Is(err, materializer.ErrExtractFailed):
		return OutcomeCorrupt
	case errors.Is(err, torrent.ErrNoVideoFile),
		errors.Is(err, ErrUnsupportedReleaseGroup),
		errors.Is(err, ErrCinemaRecording),
		errors.Is(err, ErrBlacklisted),
		errors.Is(err, ErrTitleNotInCatalog),
		errors.Is(err, ErrNoCandidates),
		errors.Is(err, ErrSubtitleNotFound),
		errors.Is(err, ErrTitleSubtitlesNotFound),
		models.IsNotFound(err):
		return OutcomeNotFound
	case errors.Is(err, context.Canceled):
		return OutcomeFatal
	}
	return OutcomeUpstream
}

// skipReason is the metrics label for a skipped unit
func skipReason(err error) string {
	switch {
	case errors.Is(err, ErrCinemaRecording):
		return "cinema"
	case errors.Is(err, ErrBlacklisted):
		return "blacklist"
	case errors.Is(err, ErrUnsupportedReleaseGroup):
		return "release_group"
	case errors.Is(err, torrent.ErrNoVideoFile):
		return "no_video"
	case errors.Is(err, ErrNoCandidates):
		return "no_candidates"
	}
	return Classify(err).String()
}
