// Package metrics exposes the pipeline's Prometheus collectors. Each Metrics
// owns its registry so tests and multiple servers never share state.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "groundwork"

// Ingestion outcomes.
const (
	OutcomeIngested  = "ingested"
	OutcomeUnchanged = "unchanged"
	OutcomeFailed    = "failed"
)

// Retrieval paths.
const (
	PathPrimary  = "primary"
	PathFallback = "fallback"
)

// Metrics holds the collectors. All methods are safe on a nil receiver so
// components can run without instrumentation.
type Metrics struct {
	reg *prometheus.Registry

	documents      *prometheus.CounterVec
	chunks         prometheus.Counter
	upsertFailures prometheus.Counter
	retrieval      *prometheus.HistogramVec
	fallbacks      prometheus.Counter
	refusals       *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
}

// New registers every collector on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		documents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_ingested_total",
			Help:      "Documents handled by the ingestion pipeline, by outcome.",
		}, []string{"outcome"}),
		chunks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_created_total",
			Help:      "Chunks persisted by the ingestion pipeline.",
		}),
		upsertFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "index_upsert_failures_total",
			Help:      "Chunks that could not be written to the vector index.",
		}),
		retrieval: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieval_duration_seconds",
			Help:      "Candidate search latency, by path.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"path"}),
		fallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retrieval_fallbacks_total",
			Help:      "Searches served by the local similarity fallback.",
		}),
		refusals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refusals_total",
			Help:      "Queries answered with a refusal, by reason.",
		}, []string{"reason"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.documents, m.chunks, m.upsertFailures,
		m.retrieval, m.fallbacks, m.refusals, m.httpDuration,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

// Document counts one processed document.
func (m *Metrics) Document(outcome string) {
	if m == nil {
		return
	}
	m.documents.WithLabelValues(outcome).Inc()
}

// Chunks counts persisted chunks.
func (m *Metrics) Chunks(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.chunks.Add(float64(n))
}

func (m *Metrics) UpsertFailure() {
	if m == nil {
		return
	}
	m.upsertFailures.Inc()
}

// Retrieval observes a search on path that started at start.
func (m *Metrics) Retrieval(path string, start time.Time) {
	if m == nil {
		return
	}
	m.retrieval.WithLabelValues(path).Observe(time.Since(start).Seconds())
}

func (m *Metrics) Fallback() {
	if m == nil {
		return
	}
	m.fallbacks.Inc()
}

// Refusal counts a refused query.
func (m *Metrics) Refusal(reason string) {
	if m == nil || reason == "" {
		return
	}
	m.refusals.WithLabelValues(reason).Inc()
}

// HTTPRequest observes one served request.
func (m *Metrics) HTTPRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}
