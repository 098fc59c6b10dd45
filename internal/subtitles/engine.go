package subtitles

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/amaumene/subtis/internal/metrics"
	"github.com/amaumene/subtis/internal/parser"
)

// Engine fans a release out to every provider and keeps the candidates that resolved
type Engine struct {
	providers []Provider
	timeout   time.Duration
	logger    *logrus.Logger
}

// NewEngine creates a resolution engine; timeout bounds each provider call
func NewEngine(providers []Provider, timeout time.Duration, logger *logrus.Logger) *Engine {
	return &Engine{
		providers: providers,
		timeout:   timeout,
		logger:    logger,
	}
}

// Providers returns the registered provider names
func (e *Engine) Providers() []string {
	names := make([]string, len(e.providers))
	for i, p := range e.providers {
		names[i] = p.Name()
	}
	return names
}

// ResolveAll queries all providers concurrently and waits for every one of
// them. Failures are logged and dropped, so an empty result is not an error.
func (e *Engine) ResolveAll(ctx context.Context, identity *parser.MovieIdentity, externalID string) []Candidate {
	results := make([]*Candidate, len(e.providers))

	var g errgroup.Group
	for i, provider := range e.providers {
		i, provider := i, provider
		g.Go(func() error {
			results[i] = e.resolveOne(ctx, provider, identity, externalID)
			return nil
		})
	}
	_ = g.Wait()

	candidates := make([]Candidate, 0, len(results))
	for _, c := range results {
		if c != nil {
			candidates = append(candidates, *c)
		}
	}

	e.logger.WithFields(logrus.Fields{
		"file_name":  identity.FileName,
		"candidates": len(candidates),
		"providers":  len(e.providers),
	}).Debug("Subtitle resolution completed")

	return candidates
}

func (e *Engine) resolveOne(ctx context.Context, provider Provider, identity *parser.MovieIdentity, externalID string) (candidate *Candidate) {
	name := provider.Name()
	log := e.logger.WithFields(logrus.Fields{
		"provider":  name,
		"file_name": identity.FileName,
	})

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	defer func() {
		metrics.ProviderDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	}()

	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Error("Subtitle provider panicked")
			metrics.ProviderResolutions.WithLabelValues(name, UpstreamError.String()).Inc()
			candidate = nil
		}
	}()

	c, err := provider.Resolve(ctx, identity, externalID)
	if err == nil && c == nil {
		err = NewNoMatch(name, "provider returned no candidate")
	}
	if err != nil {
		kind := KindOf(err)
		metrics.ProviderResolutions.WithLabelValues(name, kind.String()).Inc()

		entry := log.WithError(err).WithField("kind", kind.String())
		if kind == NoMatch {
			entry.Debug("No subtitle found by provider")
		} else {
			entry.Warn("Subtitle provider failed")
		}
		return nil
	}

	metrics.ProviderResolutions.WithLabelValues(name, "candidate").Inc()
	log.WithFields(logrus.Fields{
		"kind": c.Kind.String(),
		"link": c.SourceLink,
	}).Debug("Subtitle candidate resolved")
	return c
}
