package controllers

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/amaumene/subtis/internal/config"
	"github.com/amaumene/subtis/internal/materializer"
	"github.com/amaumene/subtis/internal/metrics"
	"github.com/amaumene/subtis/internal/models"
	"github.com/amaumene/subtis/internal/parser"
	"github.com/amaumene/subtis/internal/services/yts"
	"github.com/amaumene/subtis/internal/subtitles"
	"github.com/amaumene/subtis/internal/torrent"
	"github.com/amaumene/subtis/internal/utils"
)

// Catalog is the paginated movie catalog the indexer crawls
type Catalog interface {
	TotalPages(ctx context.Context) (int, int, error)
	ListPage(ctx context.Context, page int) ([]yts.Movie, error)
	Search(ctx context.Context, query string, year int) ([]yts.Movie, error)
	DownloadTorrent(ctx context.Context, torrentURL string) ([]byte, error)
}

// Resolver returns the subtitle candidates of a release
type Resolver interface {
	ResolveAll(ctx context.Context, identity *parser.MovieIdentity, externalID string) []subtitles.Candidate
	Providers() []string
}

// Materializer turns a candidate into subtitle text
type Materializer interface {
	Materialize(ctx context.Context, candidate subtitles.Candidate, fileName string) (*materializer.ExtractedSubtitle, error)
}

// BlobStorage stores subtitle text and links to it
type BlobStorage interface {
	Upload(ctx context.Context, key string, content []byte) error
	PublicLink(key, downloadName string) string
}

// RunSummary counts what a catalog run did
type RunSummary struct {
	mu       sync.Mutex
	Pages    int
	Releases int
	Variants int
	Indexed  int
	Existing int
	Skipped  int
	Failed   int

	fatal error
}

func (s *RunSummary) addPage(releases int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Pages++
	s.Releases += releases
}

func (s *RunSummary) addVariant(result *IndexResult, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Variants++
	if result != nil {
		s.Indexed += result.Stored
		s.Existing += result.Existing
	}
	switch Classify(err) {
	case OutcomeOK:
	case OutcomeNotFound, OutcomeValidation, OutcomeCorrupt:
		s.Skipped++
	case OutcomeFatal:
		s.Failed++
		if s.fatal == nil {
			s.fatal = err
		}
	default:
		s.Failed++
	}
}

// Err returns the first error that halted the run
func (s *RunSummary) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fatal
}

// IndexResult reports what indexing one video file produced
type IndexResult struct {
	FileName   string `json:"file_name"`
	ExternalID string `json:"external_id"`
	Title      string `json:"title"`
	Stored     int    `json:"stored"`
	Existing   int    `json:"existing"`
}

type references struct {
	releaseGroups  map[string]models.ReleaseGroup
	subtitleGroups map[string]models.SubtitleGroup
}

// IndexController crawls the catalog and indexes subtitles for each release
type IndexController struct {
	db           *models.Database
	catalog      Catalog
	resolver     Resolver
	materializer Materializer
	storage      BlobStorage
	blacklist    *utils.Blacklist
	concurrency  int
	delayMin     time.Duration
	delayMax     time.Duration
	runTimeout   time.Duration
	group        singleflight.Group
	logger       *logrus.Logger
}

// NewIndexController creates a new index controller
func NewIndexController(cfg *config.Config, db *models.Database, catalog Catalog, resolver Resolver, mat Materializer, storage BlobStorage, blacklist *utils.Blacklist, logger *logrus.Logger) *IndexController {
	concurrency := cfg.IndexConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	return &IndexController{
		db:           db,
		catalog:      catalog,
		resolver:     resolver,
		materializer: mat,
		storage:      storage,
		blacklist:    blacklist,
		concurrency:  concurrency,
		delayMin:     cfg.PageDelayMin,
		delayMax:     cfg.PageDelayMax,
		runTimeout:   cfg.ProviderTimeout + cfg.DownloadTimeout + time.Minute,
		logger:       logger,
	}
}

// IndexCatalog walks every catalog page in order. Only a catalog outage,
// missing reference data or cancellation stops the run.
func (c *IndexController) IndexCatalog(ctx context.Context) (*RunSummary, error) {
	summary := &RunSummary{}

	refs, err := c.loadReferences()
	if err != nil {
		return summary, err
	}

	movieCount, pages, err := c.catalog.TotalPages(ctx)
	if err != nil {
		return summary, fmt.Errorf("failed to get catalog size: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"movies": movieCount,
		"pages":  pages,
	}).Info("Starting catalog indexing")

	for page := 1; page <= pages; page++ {
		if err := c.indexPage(ctx, refs, page, summary); err != nil {
			return summary, err
		}

		if page < pages {
			if err := c.delay(ctx); err != nil {
				return summary, err
			}
		}
	}

	c.logger.WithFields(logrus.Fields{
		"pages":    summary.Pages,
		"releases": summary.Releases,
		"variants": summary.Variants,
		"indexed":  summary.Indexed,
		"existing": summary.Existing,
		"skipped":  summary.Skipped,
		"failed":   summary.Failed,
	}).Info("Catalog indexing completed")

	return summary, nil
}

func (c *IndexController) indexPage(ctx context.Context, refs *references, page int, summary *RunSummary) error {
	log := c.logger.WithField("page", page)
	log.Debug("Fetching catalog page")

	movies, err := c.catalog.ListPage(ctx, page)
	if err != nil {
		return fmt.Errorf("failed to fetch catalog page %d: %w", page, err)
	}
	metrics.CatalogPages.Inc()

	fresh, err := c.filterIndexed(movies)
	if err != nil {
		return fmt.Errorf("failed to check indexed titles: %w", err)
	}
	summary.addPage(len(fresh))

	log.WithFields(logrus.Fields{
		"movies": len(movies),
		"fresh":  len(fresh),
	}).Info("Processing catalog page")

	var g errgroup.Group
	g.SetLimit(c.concurrency)
	for _, movie := range fresh {
		movie := movie
		g.Go(func() error {
			c.indexMovie(ctx, refs, movie, summary)
			return nil
		})
	}
	_ = g.Wait()

	if err := summary.Err(); err != nil {
		return err
	}
	return ctx.Err()
}

// filterIndexed drops movies whose title is already stored, with one query per page
func (c *IndexController) filterIndexed(movies []yts.Movie) ([]yts.Movie, error) {
	ids := make([]string, 0, len(movies))
	for _, m := range movies {
		ids = append(ids, m.ImdbCode)
	}

	titles, err := c.db.FindTitlesByExternalIDs(ids)
	if err != nil {
		return nil, err
	}

	known := make(map[string]struct{}, len(titles))
	for _, t := range titles {
		known[t.ExternalID] = struct{}{}
	}

	fresh := make([]yts.Movie, 0, len(movies))
	for _, m := range movies {
		if _, ok := known[m.ImdbCode]; ok {
			continue
		}
		fresh = append(fresh, m)
	}
	return fresh, nil
}

// indexMovie processes the torrent variants of a release one after the other
func (c *IndexController) indexMovie(ctx context.Context, refs *references, movie yts.Movie, summary *RunSummary) {
	for _, t := range movie.Torrents {
		if ctx.Err() != nil || summary.Err() != nil {
			return
		}

		result, err := c.indexVariant(ctx, refs, movie, t)
		summary.addVariant(result, err)
		c.logOutcome(err, logrus.Fields{
			"imdb_id": movie.ImdbCode,
			"title":   movie.Title,
			"quality": t.Quality,
			"hash":    t.Hash,
		})
	}
}

func (c *IndexController) indexVariant(ctx context.Context, refs *references, movie yts.Movie, t yts.Torrent) (*IndexResult, error) {
	data, err := c.catalog.DownloadTorrent(ctx, t.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to download torrent: %w", err)
	}

	entry, err := torrent.ReadVideoEntry(data)
	if err != nil {
		return nil, err
	}

	return c.indexVideo(ctx, refs, movie, entry.Name, entry.Size)
}

// indexVideo runs parse, resolve, materialize and persist for one video
// file. Candidates are persisted concurrently and joined before returning.
func (c *IndexController) indexVideo(ctx context.Context, refs *references, movie yts.Movie, fileName string, bytes int64) (*IndexResult, error) {
	result := &IndexResult{
		FileName:   fileName,
		ExternalID: movie.ImdbCode,
		Title:      movie.Title,
	}

	identity, err := parser.Parse(fileName)
	if err != nil {
		return result, err
	}
	if parser.IsCinemaRecording(fileName) {
		return result, fmt.Errorf("%w: %s", ErrCinemaRecording, fileName)
	}
	if blocked, term := c.blacklist.IsBlacklisted(fileName); blocked {
		return result, fmt.Errorf("%w: %s matched %q", ErrBlacklisted, fileName, term)
	}

	releaseGroup, ok := refs.releaseGroups[identity.ReleaseGroup]
	if !ok {
		return result, fmt.Errorf("%w: %q", ErrUnsupportedReleaseGroup, identity.ReleaseGroup)
	}

	candidates := c.resolver.ResolveAll(ctx, identity, movie.ImdbCode)
	if len(candidates) == 0 {
		return result, fmt.Errorf("%w: %s", ErrNoCandidates, fileName)
	}

	title, err := c.db.EnsureTitle(&models.Title{
		ExternalID: movie.ImdbCode,
		Name:       movie.Title,
		Year:       movie.Year,
		Rating:     movie.Rating,
		Poster:     movie.LargeCoverImage,
		Backdrop:   movie.BackgroundImage,
	})
	if err != nil {
		return result, err
	}

	var mu sync.Mutex
	var g errgroup.Group
	for _, candidate := range candidates {
		candidate := candidate
		g.Go(func() error {
			inserted, err := c.persistCandidate(ctx, refs, title, releaseGroup, identity, candidate, bytes)
			if err != nil {
				c.logOutcome(err, logrus.Fields{
					"file_name":      fileName,
					"subtitle_group": candidate.SubtitleGroup,
					"stage":          "persist",
				})
				return err
			}
			mu.Lock()
			if inserted {
				result.Stored++
			} else {
				result.Existing++
			}
			mu.Unlock()
			return nil
		})
	}
	err = g.Wait()

	if result.Stored+result.Existing > 0 {
		return result, nil
	}
	return result, err
}

// persistCandidate stores one candidate unless its tuple already exists.
// It returns false when nothing new was stored.
func (c *IndexController) persistCandidate(ctx context.Context, refs *references, title *models.Title, releaseGroup models.ReleaseGroup, identity *parser.MovieIdentity, candidate subtitles.Candidate, bytes int64) (bool, error) {
	subtitleGroup, ok := refs.subtitleGroups[candidate.SubtitleGroup]
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrMissingReference, candidate.SubtitleGroup)
	}

	sub := &models.Subtitle{
		TitleID:         title.ID,
		ReleaseGroupID:  releaseGroup.ID,
		SubtitleGroupID: subtitleGroup.ID,
		Resolution:      identity.Resolution,
		RipType:         identity.RipType,
		FileName:        identity.FileName,
		FileNameHash:    parser.FileNameHash(identity.FileName),
		Bytes:           bytes,
	}

	exists, err := c.db.SubtitleExists(sub)
	if err != nil {
		return false, fmt.Errorf("failed to check subtitle: %w", err)
	}
	if exists {
		return false, nil
	}

	extracted, err := c.materializer.Materialize(ctx, candidate, identity.FileName)
	if err != nil {
		return false, err
	}

	if err := c.storage.Upload(ctx, extracted.ObjectKey, extracted.Content); err != nil {
		return false, fmt.Errorf("failed to upload subtitle: %w", err)
	}
	sub.ObjectKey = extracted.ObjectKey
	sub.SubtitleLink = c.storage.PublicLink(extracted.ObjectKey, extracted.DownloadName)

	inserted, err := c.db.InsertSubtitleIfAbsent(sub)
	if err != nil {
		return false, err
	}
	if inserted {
		metrics.SubtitlesIndexed.WithLabelValues(candidate.SubtitleGroup).Inc()
		c.logger.WithFields(logrus.Fields{
			"file_name":      identity.FileName,
			"subtitle_group": candidate.SubtitleGroup,
			"link":           sub.SubtitleLink,
		}).Info("Subtitle indexed")
	}
	return inserted, nil
}

// IndexFileName indexes a single video file name on demand. Concurrent
// calls for the same name share one run. The shared run is detached from
// the caller's cancellation and bounded by its own timeout, so a caller that
// gives up only stops waiting.
func (c *IndexController) IndexFileName(ctx context.Context, fileName string, bytes int64) (*IndexResult, error) {
	ch := c.group.DoChan(fileName, func() (interface{}, error) {
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.runTimeout)
		defer cancel()
		return c.indexFileName(runCtx, fileName, bytes)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Shared {
			c.logger.WithField("file_name", fileName).Debug("Joined in-flight indexing")
		}
		result, _ := res.Val.(*IndexResult)
		return result, res.Err
	}
}

func (c *IndexController) indexFileName(ctx context.Context, fileName string, bytes int64) (*IndexResult, error) {
	identity, err := parser.Parse(fileName)
	if err != nil {
		return nil, err
	}

	refs, err := c.loadReferences()
	if err != nil {
		return nil, err
	}

	movies, err := c.catalog.Search(ctx, identity.Name, identity.Year)
	if err != nil {
		return nil, fmt.Errorf("failed to search catalog: %w", err)
	}
	if len(movies) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrTitleNotInCatalog, identity.SearchableName)
	}

	result, err := c.indexVideo(ctx, refs, movies[0], identity.FileName, bytes)
	c.logOutcome(err, logrus.Fields{
		"file_name": fileName,
		"imdb_id":   movies[0].ImdbCode,
		"stage":     "on_demand",
	})
	return result, err
}

// loadReferences reads reference data once per run and checks every
// provider has its subtitle group.
func (c *IndexController) loadReferences() (*references, error) {
	releaseGroups, err := c.db.GetReleaseGroups()
	if err != nil {
		return nil, fmt.Errorf("failed to load release groups: %w", err)
	}
	subtitleGroups, err := c.db.GetSubtitleGroups()
	if err != nil {
		return nil, fmt.Errorf("failed to load subtitle groups: %w", err)
	}

	for _, name := range c.resolver.Providers() {
		if _, ok := subtitleGroups[name]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrMissingReference, name)
		}
	}

	return &references{
		releaseGroups:  releaseGroups,
		subtitleGroups: subtitleGroups,
	}, nil
}

// delay sleeps a random whole number of seconds between the configured bounds
func (c *IndexController) delay(ctx context.Context) error {
	d := randomDelay(c.delayMin, c.delayMax)
	if d <= 0 {
		return ctx.Err()
	}

	c.logger.WithField("delay", d.String()).Debug("Delaying next catalog page")

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func randomDelay(lo, hi time.Duration) time.Duration {
	minSeconds := int64(lo / time.Second)
	maxSeconds := int64(hi / time.Second)
	if maxSeconds <= minSeconds {
		return lo
	}
	return time.Duration(minSeconds+rand.Int63n(maxSeconds-minSeconds+1)) * time.Second
}

func (c *IndexController) logOutcome(err error, fields logrus.Fields) {
	outcome := Classify(err)
	if outcome != OutcomeOK {
		metrics.ReleasesSkipped.WithLabelValues(skipReason(err)).Inc()
	}

	entry := c.logger.WithFields(fields).WithField("outcome", outcome.String())
	switch outcome {
	case OutcomeOK:
		entry.Debug("Release processed")
	case OutcomeNotFound, OutcomeValidation:
		entry.WithError(err).Info("Release skipped")
	case OutcomeCorrupt:
		entry.WithError(err).Warn("Release skipped, upstream content is malformed")
	default:
		entry.WithError(err).Error("Release failed")
	}
}
