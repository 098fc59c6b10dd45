package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/amaumene/subtis/internal/api/handlers"
	"github.com/amaumene/subtis/internal/api/middleware"
	"github.com/amaumene/subtis/internal/config"
	"github.com/amaumene/subtis/internal/services/storage"
)

// Dependencies are the controllers the HTTP routes call into
type Dependencies struct {
	Lookup     handlers.Lookuper
	Indexer    handlers.Indexer
	Stats      handlers.StatsReader
	Providers  []string
	StorageDir string
}

// Server represents the HTTP server
type Server struct {
	server *http.Server
	logger *logrus.Logger
}

// NewServer creates a new HTTP server
func NewServer(cfg *config.Config, deps Dependencies, logger *logrus.Logger) *Server {
	s := &Server{logger: logger}

	s.server = &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      middleware.Logging(NewRouter(deps, logger), logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2*cfg.ProviderTimeout + cfg.DownloadTimeout,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// NewRouter configures all HTTP routes
func NewRouter(deps Dependencies, logger *logrus.Logger) *http.ServeMux {
	mux := http.NewServeMux()

	mux.Handle("/health", handlers.NewHealthHandler(logger))
	mux.Handle("/status", handlers.NewStatusHandler(deps.Stats, deps.Providers, logger))
	mux.Handle("/metrics", promhttp.Handler())

	mux.Handle("/v1/subtitle", handlers.NewSubtitleHandler(deps.Lookup, logger))
	mux.Handle("GET /v1/subtitles/movie/{imdbId}", handlers.NewMovieSubtitlesHandler(deps.Lookup, logger))
	mux.Handle("/v1/index", handlers.NewIndexHandler(deps.Indexer, logger))

	if deps.StorageDir != "" {
		files := http.FileServer(http.Dir(deps.StorageDir))
		mux.Handle("GET "+storage.PublicPrefix, http.StripPrefix(storage.PublicPrefix, withAttachment(files)))
	}

	return mux
}

// withAttachment names the downloaded file after the ?download= parameter
func withAttachment(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if name := r.URL.Query().Get("download"); name != "" {
			w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
		}
		next.ServeHTTP(w, r)
	})
}

// Start starts the HTTP server
func (s *Server) Start(ctx context.Context) error {
	s.logger.WithField("port", s.server.Addr).Info("Starting HTTP server")

	errChan := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	}
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.server.Shutdown(shutdownCtx)
}
