// Package metrics provides Prometheus metrics export for the relay.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusExporter exports relay metrics in Prometheus format.
type PrometheusExporter struct {
	registry *prometheus.Registry

	// Exchange metrics
	exchanges       *prometheus.CounterVec
	exchangeLatency *prometheus.HistogramVec
	firstChunk      prometheus.Histogram
	chunks          prometheus.Counter
	active          prometheus.Gauge

	upstreamErrors *prometheus.CounterVec
	rejections     *prometheus.CounterVec

	// LLM token metrics (batch mode reports usage)
	llmTokensUsed *prometheus.CounterVec
}

// Config configures the Prometheus exporter.
type Config struct {
	// Registry to use (if nil, creates a new one)
	Registry *prometheus.Registry

	// Buckets for latency histograms (in seconds)
	LatencyBuckets []float64

	Namespace string
	Subsystem string
}

// DefaultConfig returns default Prometheus configuration.
func DefaultConfig() Config {
	return Config{
		LatencyBuckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		Namespace:      "divinechat",
		Subsystem:      "relay",
	}
}

// NewPrometheusExporter creates a new Prometheus metrics exporter.
func NewPrometheusExporter(cfg Config) *PrometheusExporter {
	defaults := DefaultConfig()
	if len(cfg.LatencyBuckets) == 0 {
		cfg.LatencyBuckets = defaults.LatencyBuckets
	}
	if cfg.Namespace == "" {
		cfg.Namespace = defaults.Namespace
	}
	if cfg.Subsystem == "" {
		cfg.Subsystem = defaults.Subsystem
	}

	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	e := &PrometheusExporter{registry: registry}

	e.exchanges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "exchanges_total",
			Help:      "Total number of exchanges by mode and terminal outcome",
		},
		[]string{"mode", "outcome"},
	)

	e.exchangeLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "exchange_latency_seconds",
			Help:      "Exchange latency from entry to terminal event in seconds",
			Buckets:   cfg.LatencyBuckets,
		},
		[]string{"mode"},
	)

	e.firstChunk = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "first_chunk_latency_seconds",
			Help:      "Time from upstream request to first content increment in seconds",
			Buckets:   cfg.LatencyBuckets,
		},
	)

	e.chunks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "chunks_total",
			Help:      "Total number of content increments relayed",
		},
	)

	e.active = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "active_exchanges",
			Help:      "Number of exchanges in flight",
		},
	)

	e.upstreamErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "upstream_errors_total",
			Help:      "Total number of exchanges that ended in error, by classification",
		},
		[]string{"classification"},
	)

	e.rejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "admission_rejections_total",
			Help:      "Total number of exchanges rejected before entering the relay",
		},
		[]string{"reason"},
	)

	e.llmTokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "llm_tokens_total",
			Help:      "Total LLM tokens consumed",
		},
		[]string{"model", "token_type"},
	)

	// Register all metrics
	registry.MustRegister(
		e.exchanges,
		e.exchangeLatency,
		e.firstChunk,
		e.chunks,
		e.active,
		e.upstreamErrors,
		e.rejections,
		e.llmTokensUsed,
	)

	return e
}

// ExchangeStarted increments the in-flight gauge.
func (e *PrometheusExporter) ExchangeStarted() {
	e.active.Inc()
}

// ExchangeFinished records a terminal outcome ("complete" or "error").
func (e *PrometheusExporter) ExchangeFinished(mode, outcome string, latency time.Duration) {
	e.active.Dec()
	e.exchanges.WithLabelValues(mode, outcome).Inc()
	e.exchangeLatency.WithLabelValues(mode).Observe(latency.Seconds())
}

// RecordFirstChunk records time to first increment.
func (e *PrometheusExporter) RecordFirstChunk(latency time.Duration) {
	e.firstChunk.Observe(latency.Seconds())
}

// RecordChunk counts one relayed increment.
func (e *PrometheusExporter) RecordChunk() {
	e.chunks.Inc()
}

// RecordError counts a failed exchange by classification.
func (e *PrometheusExporter) RecordError(classification string) {
	e.upstreamErrors.WithLabelValues(classification).Inc()
}

// RecordRejection counts an admission rejection ("rate_limited", "busy").
func (e *PrometheusExporter) RecordRejection(reason string) {
	e.rejections.WithLabelValues(reason).Inc()
}

// RecordLLMTokens records LLM token usage.
func (e *PrometheusExporter) RecordLLMTokens(model, tokenType string, count int) {
	if count <= 0 {
		return
	}
	e.llmTokensUsed.WithLabelValues(model, tokenType).Add(float64(count))
}

// Handler returns an HTTP handler for the metrics endpoint.
func (e *PrometheusExporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// ServeHTTP implements http.Handler for the metrics endpoint.
func (e *PrometheusExporter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	e.Handler().ServeHTTP(w, r)
}
