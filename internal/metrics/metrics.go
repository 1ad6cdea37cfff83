package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry so tests can build as many as they like.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	chunks        *prometheus.CounterVec
	providerCalls *prometheus.HistogramVec
	sessions      *prometheus.CounterVec
	activeJobs    prometheus.Gauge
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		chunks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "guideline",
			Name:      "chunks_total",
			Help:      "Chunks resolved by the worker pool, by provider and status.",
		}, []string{"provider", "status"}),
		providerCalls: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "guideline",
			Name:      "provider_call_seconds",
			Help:      "Latency of individual provider extract calls.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"provider", "outcome"}),
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "guideline",
			Name:      "sessions_total",
			Help:      "Sessions that reached a terminal state, by kind and status.",
		}, []string{"kind", "status"}),
		activeJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "guideline",
			Name:      "active_jobs",
			Help:      "Jobs currently running.",
		}),
	}
	reg.MustRegister(
		m.chunks,
		m.providerCalls,
		m.sessions,
		m.activeJobs,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) ChunkResolved(provider, status string) {
	if m == nil {
		return
	}
	m.chunks.WithLabelValues(provider, status).Inc()
}

// ProviderCall records one adapter invocation. outcome is "ok" or an error kind.
func (m *Metrics) ProviderCall(provider, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.providerCalls.WithLabelValues(provider, outcome).Observe(elapsed.Seconds())
}

func (m *Metrics) JobStarted() {
	if m == nil {
		return
	}
	m.activeJobs.Inc()
}

func (m *Metrics) JobFinished(kind, status string) {
	if m == nil {
		return
	}
	m.activeJobs.Dec()
	m.sessions.WithLabelValues(kind, status).Inc()
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
