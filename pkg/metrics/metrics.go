package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	RunsInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "enrich_runs_in_progress",
			Help: "Current number of pipeline runs being processed.",
		},
	)

	RowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enrich_rows_total",
			Help: "Total number of rows assembled, by outcome.",
		},
		[]string{"outcome"}, // ok, search_failed, extraction_failed, render_failed, canceled
	)

	SearchCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enrich_search_calls_total",
			Help: "Total number of search API calls.",
		},
		[]string{"backend", "status", "error_type"}, // status: success, failure
	)

	SearchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "enrich_search_duration_seconds",
			Help:    "Duration of search calls including retries.",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"backend"},
	)

	ExtractionCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enrich_extraction_calls_total",
			Help: "Total number of language-model extraction calls.",
		},
		[]string{"provider", "status", "error_type"},
	)

	ExtractionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "enrich_extraction_duration_seconds",
			Help:    "Duration of extraction calls including retries.",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"provider"},
	)

	RetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enrich_upstream_retries_total",
			Help: "Total number of repeated upstream attempts.",
		},
		[]string{"service"},
	)

	CacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enrich_search_cache_lookups_total",
			Help: "Search cache lookups by result.",
		},
		[]string{"result"}, // hit, miss, error
	)
)
