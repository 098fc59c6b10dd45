package main

import (
	"fmt"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/amaumene/subtis/internal/cache"
	"github.com/amaumene/subtis/internal/config"
	"github.com/amaumene/subtis/internal/controllers"
	"github.com/amaumene/subtis/internal/materializer"
	"github.com/amaumene/subtis/internal/models"
	"github.com/amaumene/subtis/internal/services/argenteam"
	"github.com/amaumene/subtis/internal/services/opensubtitles"
	"github.com/amaumene/subtis/internal/services/storage"
	"github.com/amaumene/subtis/internal/services/subdivx"
	"github.com/amaumene/subtis/internal/services/yts"
	"github.com/amaumene/subtis/internal/subtitles"
	"github.com/amaumene/subtis/internal/utils"
)

// app holds the components shared by every command
type app struct {
	cfg      *config.Config
	logger   *logrus.Logger
	db       *models.Database
	storage  *storage.Storage
	engine   *subtitles.Engine
	indexer  *controllers.IndexController
	lookup   *controllers.LookupController
	notFound *controllers.NotFoundWatcher
}

func newApp() (*app, error) {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	// 2. Setup logger
	logger := utils.NewLogger(cfg.LogLevel, cfg.LogFormat)
	logger.WithField("config_dir", filepath.Dir(cfg.DatabaseFile)).Info("Configuration loaded")

	// 3. Initialize database
	db, err := models.NewDatabase(cfg.DatabaseFile)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if err := db.SeedReferenceData(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to seed reference data: %w", err)
	}
	logger.Info("Database initialized")

	// 4. Load blacklist
	blacklist, err := utils.LoadBlacklist(cfg.BlacklistFile)
	if err != nil {
		logger.WithError(err).Warn("Failed to load blacklist, continuing without it")
		blacklist = utils.NewBlacklist()
	} else {
		logger.WithField("terms", blacklist.Len()).Info("Blacklist loaded")
	}

	// 5. Initialize services
	a, err := buildServices(cfg, db, blacklist, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return a, nil
}

func buildServices(cfg *config.Config, db *models.Database, blacklist *utils.Blacklist, logger *logrus.Logger) (*app, error) {
	catalog, err := yts.NewClient(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize catalog client: %w", err)
	}

	providers, err := buildProviders(cfg, logger)
	if err != nil {
		return nil, err
	}
	engine := subtitles.NewEngine(providers, cfg.ProviderTimeout, logger)
	logger.WithField("providers", engine.Providers()).Info("Subtitle providers initialized")

	mat, err := materializer.NewMaterializer(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize materializer: %w", err)
	}

	blobs, err := storage.NewStorage(cfg.StorageDir, cfg.PublicBaseURL, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	// 6. Initialize controllers
	indexer := controllers.NewIndexController(cfg, db, catalog, engine, mat, blobs, blacklist, logger)
	lookup := controllers.NewLookupController(db, cache.NewMemoryStore(cfg.CacheTTL), logger)
	notFound := controllers.NewNotFoundWatcher(db, indexer, logger)
	logger.Info("Controllers initialized")

	return &app{
		cfg:      cfg,
		logger:   logger,
		db:       db,
		storage:  blobs,
		engine:   engine,
		indexer:  indexer,
		lookup:   lookup,
		notFound: notFound,
	}, nil
}

func buildProviders(cfg *config.Config, logger *logrus.Logger) ([]subtitles.Provider, error) {
	subdivxClient, err := subdivx.NewClient(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SubDivX client: %w", err)
	}

	argenteamClient, err := argenteam.NewClient(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Argenteam client: %w", err)
	}

	providers := []subtitles.Provider{subdivxClient, argenteamClient}

	if cfg.OpenSubtitlesAPIKey == "" {
		logger.Info("OpenSubtitles API key not set, provider disabled")
		return providers, nil
	}

	openSubtitlesClient, err := opensubtitles.NewClient(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenSubtitles client: %w", err)
	}
	return append(providers, openSubtitlesClient), nil
}

func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		a.logger.WithError(err).Error("Failed to close database")
	}
}
