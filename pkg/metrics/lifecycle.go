package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Lifecycle action labels.
const (
	LifecycleDecayed      = "decayed"
	LifecycleArchived     = "archived"
	LifecycleConsolidated = "consolidated"
)

// initLifecycleMetrics initializes lifecycle sweep metrics.
func (m *Manager) initLifecycleMetrics(cfg Config) {
	m.sweepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lifecycle_sweep_duration_seconds",
			Help:    "Lifecycle sweep duration in seconds",
			Buckets: cfg.SweepDurationBuckets,
		},
	)

	m.lifecycleActions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lifecycle_actions_total",
			Help: "Total number of lifecycle actions applied to episodes",
		},
		[]string{"action"},
	)

	m.feedbackIngested = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "feedback_ingested_total",
			Help: "Total number of feedback scores folded into episodes",
		},
	)

	m.registry.MustRegister(m.sweepDuration)
	m.registry.MustRegister(m.lifecycleActions)
	m.registry.MustRegister(m.feedbackIngested)
}

// RecordSweep records one lifecycle sweep and its per-action counts.
func (m *Manager) RecordSweep(decayed, archived, consolidated int, duration time.Duration) {
	if !m.enabled {
		return
	}
	m.sweepDuration.Observe(duration.Seconds())
	m.lifecycleActions.WithLabelValues(LifecycleDecayed).Add(float64(decayed))
	m.lifecycleActions.WithLabelValues(LifecycleArchived).Add(float64(archived))
	m.lifecycleActions.WithLabelValues(LifecycleConsolidated).Add(float64(consolidated))
}

// RecordFeedbackIngested records one ingested feedback score.
func (m *Manager) RecordFeedbackIngested() {
	if !m.enabled {
		return
	}
	m.feedbackIngested.Inc()
}
