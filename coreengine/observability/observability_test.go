package observability

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// METRICS TESTS
// =============================================================================

func TestRecordCompile(t *testing.T) {
	tests := []struct {
		name       string
		dialect    string
		status     string
		durationMS int
	}{
		{"jsx success", "jsx", "success", 12},
		{"dart success", "dart", "success", 30},
		{"jsx error", "jsx", "error", 5},
		{"jsx cached", "jsx", "cached", 0},
		{"zero duration", "dart", "success", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			RecordCompile(tt.dialect, tt.status, tt.durationMS)

			count := testutil.ToFloat64(compilationsTotal.WithLabelValues(tt.dialect, tt.status))
			assert.Greater(t, count, 0.0)
		})
	}
}

func TestRecordCacheLookup(t *testing.T) {
	RecordCacheLookup("jsx", true)
	RecordCacheLookup("jsx", false)

	hits := testutil.ToFloat64(cacheLookupsTotal.WithLabelValues("jsx", "hit"))
	misses := testutil.ToFloat64(cacheLookupsTotal.WithLabelValues("jsx", "miss"))
	assert.Greater(t, hits, 0.0)
	assert.Greater(t, misses, 0.0)
}

func TestSessionGauge(t *testing.T) {
	before := testutil.ToFloat64(sessionsActive)
	SessionOpened()
	assert.Equal(t, before+1, testutil.ToFloat64(sessionsActive))
	SessionClosed()
	assert.Equal(t, before, testutil.ToFloat64(sessionsActive))
}

func TestRecordUpdateAndAck(t *testing.T) {
	RecordUpdateSent("full")
	RecordUpdateSent("incremental")
	RecordAck(true, 16)
	RecordAck(false, 0)

	full := testutil.ToFloat64(updatesSentTotal.WithLabelValues("full"))
	incr := testutil.ToFloat64(updatesSentTotal.WithLabelValues("incremental"))
	assert.Greater(t, full, 0.0)
	assert.Greater(t, incr, 0.0)

	ok := testutil.ToFloat64(acksTotal.WithLabelValues("success"))
	failed := testutil.ToFloat64(acksTotal.WithLabelValues("failure"))
	assert.Greater(t, ok, 0.0)
	assert.Greater(t, failed, 0.0)
}

func TestRecordBundle(t *testing.T) {
	RecordBundle("success", 2048)
	RecordBundle("error", 0)

	ok := testutil.ToFloat64(bundlesTotal.WithLabelValues("success"))
	failed := testutil.ToFloat64(bundlesTotal.WithLabelValues("error"))
	assert.Greater(t, ok, 0.0)
	assert.Greater(t, failed, 0.0)
}

func TestRecordDiagnostic(t *testing.T) {
	RecordDiagnostic("dart", "warning")
	count := testutil.ToFloat64(diagnosticsTotal.WithLabelValues("dart", "warning"))
	assert.Greater(t, count, 0.0)
}

// =============================================================================
// TRACING TESTS
// =============================================================================

func TestInitTracerReturnsShutdown(t *testing.T) {
	// The OTLP exporter connects lazily, so initialization succeeds even
	// without a collector listening.
	shutdown, err := InitTracer("lumora-core-test", "localhost:4317")
	require.NoError(t, err)
	require.NotNil(t, shutdown)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = shutdown(ctx)
}

func TestInitTracerWithConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  TracerConfig
	}{
		{"sampled production", TracerConfig{
			ServiceName: "lumora-core-test", Endpoint: "localhost:4317",
			SamplingRatio: 0.1, Environment: "production",
		}},
		{"ratio out of range falls back to full sampling", TracerConfig{
			ServiceName: "lumora-core-test", Endpoint: "localhost:4317",
			SamplingRatio: 7, Insecure: true,
		}},
		{"empty environment defaults", TracerConfig{
			ServiceName: "lumora-core-test", Endpoint: "localhost:4317",
			Insecure: true,
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shutdown, err := InitTracerWithConfig(tt.cfg)
			require.NoError(t, err)
			require.NotNil(t, shutdown)

			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			_ = shutdown(ctx)
		})
	}
}
