// Package observability provides Prometheus metrics and slog construction.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ppiankov/factrag/internal/model"
)

const metricsNamespace = "factrag"

// Metrics records pipeline activity
type Metrics struct {
	verifications *prometheus.CounterVec
	stageErrors   *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	evidence      prometheus.Histogram

	gatherer prometheus.Gatherer
}

// NewMetrics registers the pipeline metrics on reg. Each registry may hold one Metrics.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		// Labels: verdict (true, false, unverifiable)
		verifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "verifications_total",
			Help:      "Completed verifications by verdict",
		}, []string{"verdict"}),

		// Labels: stage (normalize, retrieve, compare)
		stageErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "stage_errors_total",
			Help:      "Pipeline stage failures that were degraded into a fallback",
		}, []string{"stage"}),

		stageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage latency in seconds",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 120},
		}, []string{"stage"}),

		evidence: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "evidence_retrieved",
			Help:      "Evidence items attached to each verification",
			Buckets:   []float64{0, 1, 2, 3, 5, 10, 20},
		}),

		gatherer: reg,
	}
}

// ObserveStage records a stage duration and, when err is set, a stage error
func (m *Metrics) ObserveStage(stage string, elapsed time.Duration, err error) {
	m.stageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
	if err != nil {
		m.stageErrors.WithLabelValues(stage).Inc()
	}
}

// ObserveVerification records a finished verification
func (m *Metrics) ObserveVerification(verdict model.Verdict, evidence int) {
	m.verifications.WithLabelValues(string(verdict)).Inc()
	m.evidence.Observe(float64(evidence))
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
