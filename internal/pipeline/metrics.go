package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes cycle health counters for the external monitoring
// surface.
type Metrics struct {
	candidates    *prometheus.CounterVec
	cycleDuration prometheus.Summary
	fallbacks     prometheus.Counter
}

// NewMetrics registers the pipeline metrics with the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		candidates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dronewatch",
			Name:      "candidates_total",
			Help:      "Candidates processed per cycle by outcome",
		}, []string{"outcome"}),
		cycleDuration: prometheus.NewSummary(prometheus.SummaryOpts{
			Namespace: "dronewatch",
			Name:      "cycle_duration_seconds",
			Help:      "Time spent running one pipeline cycle",
		}),
		fallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dronewatch",
			Name:      "classifier_fallbacks_total",
			Help:      "Cycles where the external classifier was unavailable and the heuristic verdict was used",
		}),
	}
	reg.MustRegister(m.candidates, m.cycleDuration, m.fallbacks)
	return m
}

// ObserveCycle records one cycle's counts and duration.
func (m *Metrics) ObserveCycle(stats CycleStats, dur time.Duration) {
	m.candidates.WithLabelValues("accepted_new").Add(float64(stats.AcceptedNew))
	m.candidates.WithLabelValues("accepted_merged").Add(float64(stats.AcceptedMerged))
	m.candidates.WithLabelValues("rejected_validation").Add(float64(stats.RejectedValidation))
	m.candidates.WithLabelValues("rejected_geographic").Add(float64(stats.RejectedGeographic))
	m.candidates.WithLabelValues("rejected_content").Add(float64(stats.RejectedContent))
	m.candidates.WithLabelValues("rejected_classifier").Add(float64(stats.RejectedClassifier))
	m.candidates.WithLabelValues("deferred").Add(float64(stats.Deferred))
	m.cycleDuration.Observe(dur.Seconds())
}

// ClassifierFallback counts one degraded-mode classifier fallback.
func (m *Metrics) ClassifierFallback() {
	m.fallbacks.Inc()
}
