package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// initEpisodeMetrics initializes segmentation metrics.
func (m *Manager) initEpisodeMetrics(cfg Config) {
	m.episodesClosed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "episodes_closed_total",
			Help: "Total number of closed episodes by boundary reason and summary source",
		},
		[]string{"reason", "summary_source"},
	)

	m.openEpisodes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "episodes_open",
			Help: "Current number of open episodes across all sessions",
		},
	)

	m.turnsIngested = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "turns_ingested_total",
			Help: "Total number of interaction turns appended to open episodes",
		},
	)

	m.publishFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "episode_publish_failures_total",
			Help: "Total number of episode publish attempts deferred to the retry queue",
		},
	)

	m.retryQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "episode_retry_queue_depth",
			Help: "Current number of episodes awaiting a publish retry",
		},
	)

	m.registry.MustRegister(m.episodesClosed)
	m.registry.MustRegister(m.openEpisodes)
	m.registry.MustRegister(m.turnsIngested)
	m.registry.MustRegister(m.publishFailures)
	m.registry.MustRegister(m.retryQueueDepth)
}

// RecordEpisodeClosed records a closed episode.
func (m *Manager) RecordEpisodeClosed(reason, summarySource string) {
	if !m.enabled {
		return
	}
	m.episodesClosed.WithLabelValues(reason, summarySource).Inc()
}

// SetOpenEpisodes sets the current open-episode count.
func (m *Manager) SetOpenEpisodes(n int) {
	if !m.enabled {
		return
	}
	m.openEpisodes.Set(float64(n))
}

// RecordTurnIngested records one appended turn.
func (m *Manager) RecordTurnIngested() {
	if !m.enabled {
		return
	}
	m.turnsIngested.Inc()
}

// RecordPublishFailure records an episode publish failure.
func (m *Manager) RecordPublishFailure() {
	if !m.enabled {
		return
	}
	m.publishFailures.Inc()
}

// SetRetryQueueDepth sets the pending retry count.
func (m *Manager) SetRetryQueueDepth(n int) {
	if !m.enabled {
		return
	}
	m.retryQueueDepth.Set(float64(n))
}
