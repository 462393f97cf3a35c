// Package metrics defines the Prometheus collectors used by the search
// service and serves them for scraping.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus collectors for the service.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	SearchQueriesTotal   *prometheus.CounterVec
	SearchLatency        *prometheus.HistogramVec
	SearchResultsCount   prometheus.Histogram
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	FitsTotal            *prometheus.CounterVec
	FitDuration          prometheus.Histogram
	VocabularySize       prometheus.Gauge
	IndexedDocuments     prometheus.Gauge
	SnapshotVersion      prometheus.Gauge
}

// New creates all collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		SearchQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "search_queries_total",
				Help: "Total search queries by result type (hit, zero_result, error).",
			},
			[]string{"result_type"},
		),
		SearchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "search_latency_seconds",
				Help:    "Search query latency in seconds.",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"cache_status"},
		),
		SearchResultsCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "search_results_count",
				Help:    "Number of results returned per search query.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100},
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of query cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of query cache misses.",
			},
		),
		FitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "engine_fits_total",
				Help: "Total engine fit cycles by status (success, error, rejected).",
			},
			[]string{"status"},
		),
		FitDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "engine_fit_duration_seconds",
				Help:    "Duration of a full refresh cycle: load, normalize, fit, publish.",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
			},
		),
		VocabularySize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "engine_vocabulary_size",
				Help: "Number of terms in the published vocabulary.",
			},
		),
		IndexedDocuments: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "engine_indexed_documents",
				Help: "Number of documents in the published index.",
			},
		),
		SnapshotVersion: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "engine_snapshot_version",
				Help: "Version of the published engine snapshot.",
			},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.SearchQueriesTotal,
		m.SearchLatency,
		m.SearchResultsCount,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.FitsTotal,
		m.FitDuration,
		m.VocabularySize,
		m.IndexedDocuments,
		m.SnapshotVersion,
	)

	return m
}
