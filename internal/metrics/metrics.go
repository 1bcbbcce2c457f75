// Package metrics exposes Prometheus instrumentation for radiowatch.
//
// Metrics are registered on the default registry at package init and
// served by the API at GET /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "radiowatch_http_requests_total",
			Help: "Total HTTP requests by method, route pattern and status",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "radiowatch_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// Scoring
	ScoringRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "radiowatch_scoring_runs_total",
			Help: "Batch recompute runs by outcome",
		},
		[]string{"status"}, // "completed", "cancelled", "failed"
	)

	ScoringRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "radiowatch_scoring_run_duration_seconds",
			Help:    "Duration of batch recompute runs",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 900},
		},
	)

	NetworksScoredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "radiowatch_networks_scored_total",
			Help: "Networks scored by resulting threat level",
		},
		[]string{"level"},
	)

	ScoringErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "radiowatch_scoring_errors_total",
			Help: "Networks that failed to score",
		},
	)

	TransparencyErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "radiowatch_transparency_faults_total",
			Help: "Scores classified above NONE with no explaining rule",
		},
	)

	ObservationsIngestedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "radiowatch_observations_ingested_total",
			Help: "Observations accepted by the ingest endpoint",
		},
	)

	IgnoredFiltersTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "radiowatch_ignored_filters_total",
			Help: "Filters reported as ignored by the query builder",
		},
	)

	FilterRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "radiowatch_filter_requests_total",
			Help: "Filtered queries by whether only the enabled filters were applied",
		},
		[]string{"explicit_filters_only"},
	)

	// Cache
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "radiowatch_cache_hits_total",
			Help: "Cache hits by tier",
		},
		[]string{"tier"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "radiowatch_cache_misses_total",
			Help: "Cache misses by tier",
		},
		[]string{"tier"},
	)

	// Circuit breaker
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "radiowatch_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "radiowatch_circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "radiowatch_circuit_breaker_requests_total",
			Help: "Requests through a circuit breaker by result",
		},
		[]string{"name", "result"}, // "success", "failure", "rejected"
	)

	// Event bus
	BusPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "radiowatch_bus_published_total",
			Help: "Messages published by topic",
		},
		[]string{"topic"},
	)

	BusDeliveredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "radiowatch_bus_delivered_total",
			Help: "Messages delivered to handlers by topic",
		},
		[]string{"topic"},
	)
)

// RecordHTTPRequest records one served request.
func RecordHTTPRequest(method, route string, status int, d time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// RecordScoringRun records the outcome of a batch recompute.
func RecordScoringRun(status string, d time.Duration) {
	ScoringRunsTotal.WithLabelValues(status).Inc()
	ScoringRunDuration.Observe(d.Seconds())
}

// RecordNetworkScored counts a persisted score.
func RecordNetworkScored(level string, transparencyError bool) {
	NetworksScoredTotal.WithLabelValues(level).Inc()
	if transparencyError {
		TransparencyErrorsTotal.Inc()
	}
}

// RecordCacheLookup counts a hit or miss on a cache tier.
func RecordCacheLookup(tier string, hit bool) {
	if hit {
		CacheHits.WithLabelValues(tier).Inc()
		return
	}
	CacheMisses.WithLabelValues(tier).Inc()
}

// RecordFilterRequest counts a filtered query and its ignored filters.
func RecordFilterRequest(explicitOnly bool, ignored int) {
	FilterRequestsTotal.WithLabelValues(strconv.FormatBool(explicitOnly)).Inc()
	if ignored > 0 {
		IgnoredFiltersTotal.Add(float64(ignored))
	}
}
