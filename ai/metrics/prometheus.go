// Package metrics provides Prometheus metrics export for the chat pipeline,
// the LLM adapter and the conversation processor.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Exporter exports server metrics in Prometheus format.
type Exporter struct {
	registry *prometheus.Registry

	// Chat metrics
	chatLatency  *prometheus.HistogramVec
	chatRequests *prometheus.CounterVec
	chatActive   prometheus.Gauge

	// LLM call metrics
	llmCalls   *prometheus.CounterVec
	llmLatency *prometheus.HistogramVec

	// Processor metrics
	processorRuns      *prometheus.CounterVec
	processorBatchSize prometheus.Histogram
	processorLatency   prometheus.Histogram

	// Vector search metrics
	vectorSearches *prometheus.CounterVec
}

// Config configures the Prometheus exporter.
type Config struct {
	// Registry to use (if nil, creates a new one)
	Registry *prometheus.Registry

	// Buckets for latency histograms (in seconds)
	LatencyBuckets []float64
}

// DefaultConfig returns default Prometheus configuration.
func DefaultConfig() Config {
	return Config{
		LatencyBuckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}
}

// NewExporter creates a new Prometheus metrics exporter.
func NewExporter(cfg Config) *Exporter {
	if len(cfg.LatencyBuckets) == 0 {
		cfg.LatencyBuckets = DefaultConfig().LatencyBuckets
	}

	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	e := &Exporter{registry: registry}

	e.chatLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mindmesh",
			Subsystem: "chat",
			Name:      "latency_seconds",
			Help:      "Chat turn latency in seconds",
			Buckets:   cfg.LatencyBuckets,
		},
		[]string{"mode"},
	)

	e.chatRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mindmesh",
			Subsystem: "chat",
			Name:      "requests_total",
			Help:      "Total number of chat turns",
		},
		[]string{"mode", "status"},
	)

	e.chatActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "mindmesh",
			Subsystem: "chat",
			Name:      "active",
			Help:      "Number of in-flight chat turns",
		},
	)

	e.llmCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mindmesh",
			Subsystem: "llm",
			Name:      "calls_total",
			Help:      "Total number of LLM calls",
		},
		[]string{"operation", "status"},
	)

	e.llmLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mindmesh",
			Subsystem: "llm",
			Name:      "latency_seconds",
			Help:      "LLM call latency in seconds",
			Buckets:   cfg.LatencyBuckets,
		},
		[]string{"operation"},
	)

	e.processorRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mindmesh",
			Subsystem: "processor",
			Name:      "runs_total",
			Help:      "Total number of processor runs",
		},
		[]string{"status"},
	)

	e.processorBatchSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "mindmesh",
			Subsystem: "processor",
			Name:      "batch_size",
			Help:      "Conversations processed per run",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 10},
		},
	)

	e.processorLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "mindmesh",
			Subsystem: "processor",
			Name:      "run_latency_seconds",
			Help:      "Processor run latency in seconds",
			Buckets:   cfg.LatencyBuckets,
		},
	)

	e.vectorSearches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mindmesh",
			Subsystem: "vector",
			Name:      "searches_total",
			Help:      "Total number of vector index searches",
		},
		[]string{"status"},
	)

	registry.MustRegister(
		e.chatLatency,
		e.chatRequests,
		e.chatActive,
		e.llmCalls,
		e.llmLatency,
		e.processorRuns,
		e.processorBatchSize,
		e.processorLatency,
		e.vectorSearches,
	)

	return e
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// RecordChatRequest records one chat turn. Mode is "blocking" or "stream".
func (e *Exporter) RecordChatRequest(mode string, latency time.Duration, success bool) {
	e.chatRequests.WithLabelValues(mode, status(success)).Inc()
	e.chatLatency.WithLabelValues(mode).Observe(latency.Seconds())
}

// ChatStarted marks a chat turn as in flight; the returned func marks it done.
func (e *Exporter) ChatStarted() func() {
	e.chatActive.Inc()
	return e.chatActive.Dec
}

// RecordLLMCall records one LLM call by operation (chat, chat_stream,
// classify, pii, analyze).
func (e *Exporter) RecordLLMCall(operation string, latency time.Duration, success bool) {
	e.llmCalls.WithLabelValues(operation, status(success)).Inc()
	e.llmLatency.WithLabelValues(operation).Observe(latency.Seconds())
}

// RecordProcessorRun records one processor run.
func (e *Exporter) RecordProcessorRun(processed int, latency time.Duration, success bool) {
	e.processorRuns.WithLabelValues(status(success)).Inc()
	e.processorBatchSize.Observe(float64(processed))
	e.processorLatency.Observe(latency.Seconds())
}

// RecordVectorSearch records one vector index search.
func (e *Exporter) RecordVectorSearch(success bool) {
	e.vectorSearches.WithLabelValues(status(success)).Inc()
}

// Handler returns the HTTP handler for the metrics endpoint.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying Prometheus registry.
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}
