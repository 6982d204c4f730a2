// Oceanus - Oceanographic Point-Data Extraction and Recovery Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/oceanus

// Package metrics provides Prometheus instrumentation for the
// extraction and recovery engine:
//   - point cache efficiency
//   - extraction latency and outcomes per dataset
//   - file resolution scans
//   - integrity validation failures
//   - recovery task outcomes and downloader circuit breaker state
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Point cache metrics
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "point_cache_hits_total",
			Help: "Total number of point cache hits",
		},
	)

	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "point_cache_misses_total",
			Help: "Total number of point cache misses",
		},
	)

	CacheEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "point_cache_evictions_total",
			Help: "Total number of point cache entries evicted under budget pressure",
		},
	)

	CacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "point_cache_entries",
			Help: "Current number of point cache entries",
		},
	)

	CacheCostBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "point_cache_cost_bytes",
			Help: "Approximate resident size of the point cache in bytes",
		},
	)

	// Extraction metrics
	ExtractionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "extraction_duration_seconds",
			Help:    "Duration of point extractions in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"dataset", "source"}, // source: cache, file, no-data
	)

	ExtractionErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "extraction_errors_total",
			Help: "Total number of extraction errors by kind",
		},
		[]string{"dataset", "kind"},
	)

	FallbackAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "extraction_fallback_attempts_total",
			Help: "Total number of dataset fallback attempts",
		},
		[]string{"requested", "fallback", "outcome"},
	)

	// Resolver metrics
	ResolverScanDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "resolver_scan_duration_seconds",
			Help:    "Duration of dataset directory scans in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"dataset"},
	)

	ResolverNoFile = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resolver_no_file_total",
			Help: "Total number of resolutions that found no usable file",
		},
		[]string{"dataset"},
	)

	// Integrity metrics
	IntegrityFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "integrity_failures_total",
			Help: "Total number of files classified as corrupted",
		},
		[]string{"dataset"},
	)

	// Recovery metrics
	RecoveryTasks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recovery_tasks_total",
			Help: "Total number of recovery tasks by kind and terminal state",
		},
		[]string{"dataset", "kind", "state"},
	)

	RecoveryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recovery_attempts_total",
			Help: "Total number of recovery task attempts",
		},
		[]string{"dataset", "outcome"},
	)

	RecoveryQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "recovery_queue_depth",
			Help: "Number of recovery tasks currently queued or retrying",
		},
	)

	// Circuit breaker metrics (downloader collaborator)
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// API metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"endpoint", "method", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "method"},
	)
)

// ObserveExtraction records one completed extraction.
func ObserveExtraction(dataset, source string, d time.Duration) {
	ExtractionDuration.WithLabelValues(dataset, source).Observe(d.Seconds())
}

// SetCacheGauges publishes a cache stats snapshot.
func SetCacheGauges(entries int, costBytes int64) {
	CacheEntries.Set(float64(entries))
	CacheCostBytes.Set(float64(costBytes))
}
