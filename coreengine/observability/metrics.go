// Package observability provides Prometheus metrics instrumentation for the
// compiler core and the live-update layer.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// COMPILER METRICS
// =============================================================================

var (
	compilationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lumora_compilations_total",
			Help: "Total number of source-unit compilations",
		},
		[]string{"dialect", "status"}, // status: success, error, cached
	)

	compileDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lumora_compile_duration_seconds",
			Help:    "Source-unit compile duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2},
		},
		[]string{"dialect"},
	)

	diagnosticsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lumora_diagnostics_total",
			Help: "Recoverable diagnostics attached to produced IRs",
		},
		[]string{"dialect", "severity"},
	)
)

// RecordCompile records one compilation with its outcome and duration.
func RecordCompile(dialect, status string, durationMS int) {
	compilationsTotal.WithLabelValues(dialect, status).Inc()
	if status != "cached" {
		compileDurationSeconds.WithLabelValues(dialect).Observe(float64(durationMS) / 1000.0)
	}
}

// RecordDiagnostic counts one recoverable diagnostic.
func RecordDiagnostic(dialect, severity string) {
	diagnosticsTotal.WithLabelValues(dialect, severity).Inc()
}

// =============================================================================
// CACHE METRICS
// =============================================================================

var (
	cacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lumora_cache_lookups_total",
			Help: "AST cache lookups",
		},
		[]string{"dialect", "result"}, // result: hit, miss
	)
)

// RecordCacheLookup counts one AST cache lookup.
func RecordCacheLookup(dialect string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookupsTotal.WithLabelValues(dialect, result).Inc()
}

// =============================================================================
// SESSION METRICS
// =============================================================================

var (
	sessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lumora_sessions_active",
			Help: "Currently connected preview sessions",
		},
	)

	updatesSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lumora_updates_sent_total",
			Help: "Updates pushed to sessions",
		},
		[]string{"kind"}, // kind: full, incremental
	)

	updateApplySeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lumora_update_apply_seconds",
			Help:    "Client-reported apply duration",
			Buckets: []float64{0.001, 0.005, 0.016, 0.033, 0.05, 0.1, 0.5, 1},
		},
	)

	acksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lumora_acks_total",
			Help: "Acknowledgments received from sessions",
		},
		[]string{"status"}, // status: success, failure
	)
)

// SessionOpened increments the active-session gauge.
func SessionOpened() { sessionsActive.Inc() }

// SessionClosed decrements the active-session gauge.
func SessionClosed() { sessionsActive.Dec() }

// RecordUpdateSent counts one pushed update.
func RecordUpdateSent(kind string) {
	updatesSentTotal.WithLabelValues(kind).Inc()
}

// RecordAck records a client acknowledgment and its apply duration.
func RecordAck(success bool, applyMS int) {
	status := "failure"
	if success {
		status = "success"
	}
	acksTotal.WithLabelValues(status).Inc()
	if success {
		updateApplySeconds.Observe(float64(applyMS) / 1000.0)
	}
}

// =============================================================================
// BUNDLER METRICS
// =============================================================================

var (
	bundlesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lumora_bundles_total",
			Help: "Bundle builds",
		},
		[]string{"status"}, // status: success, error
	)

	bundleBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lumora_bundle_bytes",
			Help:    "Final bundle size in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 8),
		},
	)
)

// RecordBundle records one bundle build.
func RecordBundle(status string, sizeBytes int) {
	bundlesTotal.WithLabelValues(status).Inc()
	if status == "success" {
		bundleBytes.Observe(float64(sizeBytes))
	}
}
