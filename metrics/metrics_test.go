package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	return New(reg, reg)
}

// TestRecorders verifies counters and gauges move
func TestRecorders(t *testing.T) {
	m := newTestMetrics()

	m.RecordDiscovery("found")
	m.RecordDiscovery("found")
	m.RecordDiscovery("exhausted")
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Discoveries.WithLabelValues("found")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Discoveries.WithLabelValues("exhausted")))

	m.RecordScrape("active", 2*time.Second)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Scrapes.WithLabelValues("active")))

	m.RecordEvents("created", 3)
	m.RecordEvents("created", 0)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.EventsPersisted.WithLabelValues("created")))

	m.RecordStrategy("table", "won", time.Millisecond)
	m.RecordStrategy("list", "skipped", 0)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StrategyAttempts.WithLabelValues("table", "won")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StrategyAttempts.WithLabelValues("list", "skipped")))

	m.RecordRender("ok")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HeadlessRenders.WithLabelValues("ok")))

	m.BatchStarted()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BatchRunning))
	m.BatchFinished(time.Minute)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.BatchRunning))
}

// TestNilMetrics verifies a nil receiver is a no-op
func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordDiscovery("found")
		m.RecordScrape("failed", time.Second)
		m.RecordEvents("filtered", 2)
		m.RecordStrategy("cms", "error", time.Millisecond)
		m.RecordRender("error")
		m.BatchStarted()
		m.BatchFinished(time.Second)
	})
	assert.NotNil(t, m.Handler())
}

// TestHandler verifies the exposition endpoint serves registered metrics
func TestHandler(t *testing.T) {
	m := newTestMetrics()
	m.RecordScrape("active", time.Second)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `eventfed_scrapes_total{status="active"} 1`)
}
