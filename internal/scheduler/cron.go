package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/amaumene/subtis/internal/controllers"
)

// CatalogIndexer runs one full catalog crawl
type CatalogIndexer interface {
	IndexCatalog(ctx context.Context) (*controllers.RunSummary, error)
}

// LedgerSweeper retries pending not-found entries
type LedgerSweeper interface {
	Sweep(ctx context.Context) error
}

// Scheduler manages scheduled tasks
type Scheduler struct {
	cron          *cron.Cron
	indexer       CatalogIndexer
	sweeper       LedgerSweeper
	crawlSchedule string
	sweepSchedule string
	crawlOnStart  bool
	ctx           context.Context
	cancel        context.CancelFunc
	startup       sync.WaitGroup
	logger        *logrus.Logger
}

// NewScheduler creates a new scheduler. Overlapping runs of the same job are skipped.
func NewScheduler(indexer CatalogIndexer, sweeper LedgerSweeper, crawlSchedule, sweepSchedule string, crawlOnStart bool, logger *logrus.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	cronLogger := cron.VerbosePrintfLogger(logger.WithField("component", "cron"))

	return &Scheduler{
		cron:          cron.New(cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger))),
		indexer:       indexer,
		sweeper:       sweeper,
		crawlSchedule: crawlSchedule,
		sweepSchedule: sweepSchedule,
		crawlOnStart:  crawlOnStart,
		ctx:           ctx,
		cancel:        cancel,
		logger:        logger,
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() error {
	s.logger.Info("Starting scheduler")

	crawlID, err := s.cron.AddJob(s.crawlSchedule, cron.FuncJob(s.runCrawl))
	if err != nil {
		return fmt.Errorf("failed to add crawl job: %w", err)
	}
	// wrapped in the same chain as the scheduled runs, so a tick landing
	// during the startup crawl is skipped
	crawl := s.cron.Entry(crawlID).WrappedJob

	if _, err := s.cron.AddFunc(s.sweepSchedule, s.runSweep); err != nil {
		return fmt.Errorf("failed to add not-found sweep job: %w", err)
	}

	s.cron.Start()
	s.logger.WithFields(logrus.Fields{
		"crawl": s.crawlSchedule,
		"sweep": s.sweepSchedule,
	}).Info("Scheduler started")

	if s.crawlOnStart {
		s.startup.Add(1)
		go func() {
			defer s.startup.Done()
			crawl.Run()
		}()
	}

	return nil
}

// Stop cancels running jobs and waits for them to return
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping scheduler")
	s.cancel()
	<-s.cron.Stop().Done()
	s.startup.Wait()
}

// runCrawl executes the catalog crawl job
func (s *Scheduler) runCrawl() {
	s.logger.Info("Running scheduled catalog crawl")
	start := time.Now()

	summary, err := s.indexer.IndexCatalog(s.ctx)
	if err != nil {
		s.logger.WithError(err).WithField("outcome", controllers.Classify(err).String()).Error("Catalog crawl halted")
		return
	}

	s.logger.WithFields(logrus.Fields{
		"duration": time.Since(start).Round(time.Second).String(),
		"indexed":  summary.Indexed,
		"skipped":  summary.Skipped,
		"failed":   summary.Failed,
	}).Info("Catalog crawl completed successfully")
}

// runSweep executes the not-found sweep job
func (s *Scheduler) runSweep() {
	s.logger.Debug("Running not-found sweep")

	if err := s.sweeper.Sweep(s.ctx); err != nil {
		s.logger.WithError(err).Error("Not-found sweep failed")
	}
}
