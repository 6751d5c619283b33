// Package metrics exports Prometheus instruments for discovery, scraping
// and the extraction strategies.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "eventfed"

// Metrics holds all eventfed Prometheus metrics. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	// Discovery metrics
	Discoveries *prometheus.CounterVec

	// Scrape metrics
	Scrapes         *prometheus.CounterVec
	ScrapeDuration  prometheus.Histogram
	EventsPersisted *prometheus.CounterVec
	HeadlessRenders *prometheus.CounterVec

	// Strategy metrics
	StrategyAttempts *prometheus.CounterVec
	StrategyDuration *prometheus.HistogramVec

	// Batch metrics
	BatchRunning  prometheus.Gauge
	BatchDuration prometheus.Histogram

	gatherer prometheus.Gatherer
}

// New registers the metrics with reg. Tests pass prometheus.NewRegistry()
// to stay isolated from the default registry.
func New(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	f := promauto.With(reg)
	m := &Metrics{gatherer: gatherer}

	m.Discoveries = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "discoveries_total",
		Help:      "Event-page discoveries by outcome (found, exhausted, error)",
	}, []string{"outcome"})

	m.Scrapes = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "scrapes_total",
		Help:      "Site scrapes by resulting status",
	}, []string{"status"})

	m.ScrapeDuration = f.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "scrape_duration_seconds",
		Help:      "Time to scrape a single site",
		Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 45, 90},
	})

	m.EventsPersisted = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_total",
		Help:      "Extracted events by fate (created, updated, filtered)",
	}, []string{"result"})

	m.HeadlessRenders = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "headless_renders_total",
		Help:      "Headless render attempts by outcome",
	}, []string{"outcome"})

	m.StrategyAttempts = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "strategy_attempts_total",
		Help:      "Extraction strategy runs by outcome (won, events, empty, error, skipped)",
	}, []string{"strategy", "outcome"})

	m.StrategyDuration = f.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "strategy_duration_seconds",
		Help:      "Time spent in a single extraction strategy",
		Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}, []string{"strategy"})

	m.BatchRunning = f.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "batch_running",
		Help:      "1 while a batch scrape is in progress",
	})

	m.BatchDuration = f.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "batch_duration_seconds",
		Help:      "Wall time of a batch scrape",
		Buckets:   prometheus.ExponentialBuckets(5, 2, 10),
	})

	return m
}

// NewDefault registers with the global Prometheus registry.
func NewDefault() *Metrics {
	return New(prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
}

// Handler returns the HTTP handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// RecordDiscovery counts a discovery outcome.
func (m *Metrics) RecordDiscovery(outcome string) {
	if m == nil {
		return
	}
	m.Discoveries.WithLabelValues(outcome).Inc()
}

// RecordScrape counts a finished scrape and its duration.
func (m *Metrics) RecordScrape(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.Scrapes.WithLabelValues(status).Inc()
	m.ScrapeDuration.Observe(d.Seconds())
}

// RecordEvents adds n events with the given fate.
func (m *Metrics) RecordEvents(result string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.EventsPersisted.WithLabelValues(result).Add(float64(n))
}

// RecordRender counts a headless render attempt.
func (m *Metrics) RecordRender(outcome string) {
	if m == nil {
		return
	}
	m.HeadlessRenders.WithLabelValues(outcome).Inc()
}

// RecordStrategy counts one strategy run. Skipped runs carry no duration.
func (m *Metrics) RecordStrategy(strategy, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.StrategyAttempts.WithLabelValues(strategy, outcome).Inc()
	if outcome != "skipped" {
		m.StrategyDuration.WithLabelValues(strategy).Observe(d.Seconds())
	}
}

// BatchStarted marks a batch as running.
func (m *Metrics) BatchStarted() {
	if m == nil {
		return
	}
	m.BatchRunning.Set(1)
}

// BatchFinished clears the running gauge and records the batch duration.
func (m *Metrics) BatchFinished(d time.Duration) {
	if m == nil {
		return
	}
	m.BatchRunning.Set(0)
	m.BatchDuration.Observe(d.Seconds())
}
