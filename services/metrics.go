package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the engine's counters. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	resolutions         *prometheus.CounterVec
	resolutionFailures  prometheus.Counter
	estimatorCalls      *prometheus.CounterVec
	mealAnalyses        *prometheus.CounterVec
	snapshotParseErrors prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		resolutions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nutriscan",
			Name:      "food_resolutions_total",
			Help:      "Successful food resolutions by stage.",
		}, []string{"stage"}),
		resolutionFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: "nutriscan",
			Name:      "food_resolution_failures_total",
			Help:      "Names that could not be matched nor estimated.",
		}),
		estimatorCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nutriscan",
			Name:      "estimator_calls_total",
			Help:      "External estimator calls by outcome.",
		}, []string{"outcome"}),
		mealAnalyses: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nutriscan",
			Name:      "meal_analyses_total",
			Help:      "Meal analyses by resulting status.",
		}, []string{"status"}),
		snapshotParseErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: "nutriscan",
			Name:      "snapshot_parse_errors_total",
			Help:      "Stored analysis snapshots that failed to parse.",
		}),
	}
}

func (m *Metrics) resolved(stage ResolutionStage) {
	if m != nil {
		m.resolutions.WithLabelValues(string(stage)).Inc()
	}
}

func (m *Metrics) resolutionFailed() {
	if m != nil {
		m.resolutionFailures.Inc()
	}
}

func (m *Metrics) estimatorCall(outcome string) {
	if m != nil {
		m.estimatorCalls.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) mealAnalyzed(status string) {
	if m != nil {
		m.mealAnalyses.WithLabelValues(status).Inc()
	}
}

func (m *Metrics) snapshotParseFailed() {
	if m != nil {
		m.snapshotParseErrors.Inc()
	}
}
