// Package metrics defines the Prometheus metric collectors for the search
// service and the index builder, and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	SearchesTotal      *prometheus.CounterVec
	SearchLatency      *prometheus.HistogramVec
	SearchHitsReturned prometheus.Histogram

	PostingsLookupsTotal *prometheus.CounterVec
	DateUnionDecisions   *prometheus.CounterVec
	RowsHydratedTotal    prometheus.Counter

	CacheHitsTotal   prometheus.Counter
	CacheMissesTotal prometheus.Counter

	BuilderRowsScanned   prometheus.Counter
	BuilderShardsWritten prometheus.Counter
	BuilderShardsSkipped prometheus.Counter
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
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
		SearchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "searches_total",
				Help: "Total searches by outcome (ok, zero_result, client_error, error).",
			},
			[]string{"outcome"},
		),
		SearchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "search_latency_seconds",
				Help:    "Search latency in seconds by cache status.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"cache_status"},
		),
		SearchHitsReturned: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "search_hits_returned",
				Help:    "Number of hits returned per search.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 200},
			},
		),
		PostingsLookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "postings_lookups_total",
				Help: "Postings lookups by index name and source (shard, monolithic, absent).",
			},
			[]string{"index", "source"},
		),
		DateUnionDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "date_union_decisions_total",
				Help: "Date-range planning decisions (materialized, post_filter).",
			},
			[]string{"decision"},
		),
		RowsHydratedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "rows_hydrated_total",
				Help: "Total rows read from the row store during hydration.",
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of search cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of search cache misses.",
			},
		),
		BuilderRowsScanned: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "builder_rows_scanned_total",
				Help: "Rows scanned by the index builder.",
			},
		),
		BuilderShardsWritten: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "builder_shards_written_total",
				Help: "Shard files written by the index builder.",
			},
		),
		BuilderShardsSkipped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "builder_shards_skipped_total",
				Help: "Shard files skipped because they already existed.",
			},
		),
	}

	prometheus.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.SearchesTotal,
		m.SearchLatency,
		m.SearchHitsReturned,
		m.PostingsLookupsTotal,
		m.DateUnionDecisions,
		m.RowsHydratedTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.BuilderRowsScanned,
		m.BuilderShardsWritten,
		m.BuilderShardsSkipped,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
