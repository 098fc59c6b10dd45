package controllers

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/amaumene/subtis/internal/cache"
	"github.com/amaumene/subtis/internal/metrics"
	"github.com/amaumene/subtis/internal/models"
	"github.com/amaumene/subtis/internal/parser"
)

// SubtitleReader is the part of the persisted store the lookup layer reads
type SubtitleReader interface {
	FindSubtitleView(fileNameHash string, bytes int64) (*models.SubtitleView, error)
	FindSubtitleViewsByTitle(externalID string) ([]*models.SubtitleView, error)
	IncrementQueried(subtitleID, titleID uint64) error
	IncrementTitleSearched(titleID uint64) error
	InsertNotFound(fileName string, bytes int64) error
}

// TitleResponse is the title part of a lookup response
type TitleResponse struct {
	ID         uint64  `json:"id"`
	ExternalID string  `json:"imdb_id"`
	Name       string  `json:"title_name"`
	Year       int     `json:"year"`
	Rating     float64 `json:"rating"`
	Poster     string  `json:"poster"`
	Backdrop   string  `json:"backdrop"`
}

// GroupResponse is a release or subtitle group in a lookup response
type GroupResponse struct {
	ID      uint64 `json:"id"`
	Name    string `json:"name"`
	Website string `json:"website"`
}

// SubtitleResponse is the body returned for a subtitle lookup
type SubtitleResponse struct {
	ID            uint64        `json:"id"`
	FileName      string        `json:"current_video_file_name"`
	Resolution    string        `json:"resolution"`
	RipType       string        `json:"rip_type"`
	Bytes         int64         `json:"bytes"`
	SubtitleLink  string        `json:"subtitle_link"`
	QueriedTimes  int           `json:"queried_times"`
	CreatedAt     time.Time     `json:"created_at"`
	Title         TitleResponse `json:"title"`
	ReleaseGroup  GroupResponse `json:"release_group"`
	SubtitleGroup GroupResponse `json:"subtitle_group"`
}

func (r *SubtitleResponse) valid() bool {
	return r.ID != 0 && r.SubtitleLink != "" && r.Title.ExternalID != "" && r.SubtitleGroup.Name != ""
}

func newSubtitleResponse(view *models.SubtitleView) *SubtitleResponse {
	return &SubtitleResponse{
		ID:           view.Subtitle.ID,
		FileName:     view.Subtitle.FileName,
		Resolution:   view.Subtitle.Resolution,
		RipType:      view.Subtitle.RipType,
		Bytes:        view.Subtitle.Bytes,
		SubtitleLink: view.Subtitle.SubtitleLink,
		QueriedTimes: view.Subtitle.QueriedTimes,
		CreatedAt:    view.Subtitle.CreatedAt,
		Title: TitleResponse{
			ID:         view.Title.ID,
			ExternalID: view.Title.ExternalID,
			Name:       view.Title.Name,
			Year:       view.Title.Year,
			Rating:     view.Title.Rating,
			Poster:     view.Title.Poster,
			Backdrop:   view.Title.Backdrop,
		},
		ReleaseGroup: GroupResponse{
			ID:      view.ReleaseGroup.ID,
			Name:    view.ReleaseGroup.Name,
			Website: view.ReleaseGroup.Website,
		},
		SubtitleGroup: GroupResponse{
			ID:      view.SubtitleGroup.ID,
			Name:    view.SubtitleGroup.Name,
			Website: view.SubtitleGroup.Website,
		},
	}
}

// LookupController answers subtitle lookups with a cache in front of the store
type LookupController struct {
	store  SubtitleReader
	cache  cache.Store
	logger *logrus.Logger
}

// NewLookupController creates a new lookup controller
func NewLookupController(store SubtitleReader, cacheStore cache.Store, logger *logrus.Logger) *LookupController {
	return &LookupController{
		store:  store,
		cache:  cacheStore,
		logger: logger,
	}
}

// SubtitleCacheKey returns the cache key of a lookup
func SubtitleCacheKey(fileName string, bytes int64) string {
	if bytes > 0 {
		return fmt.Sprintf("/v1/subtitle/%d/%s", bytes, fileName)
	}
	return "/v1/subtitle/" + fileName
}

// Lookup returns the best subtitle for a video file name. The extension is
// checked before the cache or the store are touched. Store faults are
// reported as a miss.
func (c *LookupController) Lookup(ctx context.Context, fileName string, bytes int64) (*SubtitleResponse, error) {
	fileName = path.Base(strings.TrimSpace(fileName))
	if _, err := parser.ValidateExtension(fileName); err != nil {
		metrics.LookupResults.WithLabelValues("unsupported").Inc()
		return nil, err
	}

	log := c.logger.WithFields(logrus.Fields{
		"file_name": fileName,
		"bytes":     bytes,
	})

	key := SubtitleCacheKey(fileName, bytes)
	if cached, ok := c.cache.Get(key); ok {
		var response SubtitleResponse
		if err := json.Unmarshal(cached, &response); err == nil && response.valid() {
			metrics.LookupResults.WithLabelValues("cache_hit").Inc()
			log.Debug("Subtitle served from cache")
			c.incrementQueried(&response)
			return &response, nil
		}
		log.Warn("Discarding malformed cache entry")
	}

	view, err := c.store.FindSubtitleView(parser.FileNameHash(fileName), bytes)
	if err != nil {
		if !models.IsNotFound(err) {
			log.WithError(err).Error("Subtitle lookup failed")
		}
		metrics.LookupResults.WithLabelValues("miss").Inc()
		return nil, fmt.Errorf("%w: %s", ErrSubtitleNotFound, fileName)
	}

	response := newSubtitleResponse(view)
	if encoded, err := json.Marshal(response); err == nil {
		c.cache.Set(key, encoded)
	}

	metrics.LookupResults.WithLabelValues("store_hit").Inc()
	log.WithField("subtitle_link", response.SubtitleLink).Debug("Subtitle served from store")
	c.incrementQueried(response)
	return response, nil
}

// SubtitlesByTitle returns every subtitle stored for a catalog movie id
func (c *LookupController) SubtitlesByTitle(ctx context.Context, externalID string) ([]*SubtitleResponse, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return nil, fmt.Errorf("%w: empty movie id", ErrTitleSubtitlesNotFound)
	}

	log := c.logger.WithField("imdb_id", externalID)

	key := "/v1/subtitles/movie/" + externalID
	if cached, ok := c.cache.Get(key); ok {
		var responses []*SubtitleResponse
		if err := json.Unmarshal(cached, &responses); err == nil && validAll(responses) {
			metrics.LookupResults.WithLabelValues("cache_hit").Inc()
			c.incrementSearched(responses[0].Title.ID)
			return responses, nil
		}
		log.Warn("Discarding malformed cache entry")
	}

	views, err := c.store.FindSubtitleViewsByTitle(externalID)
	if err != nil || len(views) == 0 {
		if err != nil && !models.IsNotFound(err) {
			log.WithError(err).Error("Title subtitles lookup failed")
		}
		metrics.LookupResults.WithLabelValues("miss").Inc()
		return nil, fmt.Errorf("%w: %s", ErrTitleSubtitlesNotFound, externalID)
	}

	responses := make([]*SubtitleResponse, 0, len(views))
	for _, view := range views {
		responses = append(responses, newSubtitleResponse(view))
	}
	if encoded, err := json.Marshal(responses); err == nil {
		c.cache.Set(key, encoded)
	}

	metrics.LookupResults.WithLabelValues("store_hit").Inc()
	c.incrementSearched(responses[0].Title.ID)
	return responses, nil
}

// RecordNotFound adds a missed file name to the not-found ledger
func (c *LookupController) RecordNotFound(fileName string, bytes int64) {
	fileName = path.Base(strings.TrimSpace(fileName))
	if err := c.store.InsertNotFound(fileName, bytes); err != nil {
		c.logger.WithError(err).WithField("file_name", fileName).Warn("Failed to record missing subtitle")
	}
}

func (c *LookupController) incrementQueried(response *SubtitleResponse) {
	if err := c.store.IncrementQueried(response.ID, response.Title.ID); err != nil {
		c.logger.WithError(err).WithField("subtitle_id", response.ID).Warn("Failed to update query counters")
	}
}

func (c *LookupController) incrementSearched(titleID uint64) {
	if err := c.store.IncrementTitleSearched(titleID); err != nil {
		c.logger.WithError(err).WithField("title_id", titleID).Warn("Failed to update search counter")
	}
}

func validAll(responses []*SubtitleResponse) bool {
	if len(responses) == 0 {
		return false
	}
	for _, r := range responses {
		if r == nil || !r.valid() {
			return false
		}
	}
	return true
}
