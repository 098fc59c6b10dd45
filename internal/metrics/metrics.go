// Package metrics holds the Prometheus collectors of the indexing pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ProviderResolutions counts provider calls by provider and outcome
	ProviderResolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "subtis_provider_resolutions_total",
		Help: "Total number of subtitle provider resolutions by outcome",
	}, []string{"provider", "outcome"})

	ProviderDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "subtis_provider_resolution_duration_seconds",
		Help:    "Time spent resolving a candidate per provider",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider"})

	CatalogPages = promauto.NewCounter(prometheus.CounterOpts{
		Name: "subtis_catalog_pages_total",
		Help: "Total number of catalog pages processed",
	})

	// ReleasesSkipped counts releases and variants skipped by reason
	ReleasesSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "subtis_releases_skipped_total",
		Help: "Total number of releases or torrent variants skipped by reason",
	}, []string{"reason"})

	SubtitlesIndexed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "subtis_subtitles_indexed_total",
		Help: "Total number of subtitles stored by subtitle group",
	}, []string{"subtitle_group"})

	MaterializeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "subtis_materialize_duration_seconds",
		Help:    "Time spent downloading and extracting subtitles",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"kind"})

	// LookupResults counts lookups by result: hit, miss, not_found, unsupported
	LookupResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "subtis_lookup_results_total",
		Help: "Total number of subtitle lookups by result",
	}, []string{"result"})

	CacheEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "subtis_lookup_cache_entries",
		Help: "Number of entries in the lookup cache",
	})
)
