package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// initRetrievalMetrics initializes retrieval metrics.
func (m *Manager) initRetrievalMetrics(cfg Config) {
	m.retrievalRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retrieval_requests_total",
			Help: "Total number of retrieval requests by mode and outcome",
		},
		[]string{"mode", "outcome"},
	)

	m.retrievalDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "retrieval_duration_seconds",
			Help:    "Retrieval request duration in seconds",
			Buckets: cfg.RetrievalDurationBuckets,
		},
		[]string{"mode"},
	)

	m.retrievalResults = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "retrieval_result_count",
			Help:    "Number of episodes returned per retrieval request",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50, 100},
		},
		[]string{"mode"},
	)

	m.registry.MustRegister(m.retrievalRequests)
	m.registry.MustRegister(m.retrievalDuration)
	m.registry.MustRegister(m.retrievalResults)
}

// RecordRetrieval records one retrieval request.
func (m *Manager) RecordRetrieval(mode, outcome string, results int, duration time.Duration) {
	if !m.enabled {
		return
	}
	m.retrievalRequests.WithLabelValues(mode, outcome).Inc()
	m.retrievalDuration.WithLabelValues(mode).Observe(duration.Seconds())
	m.retrievalResults.WithLabelValues(mode).Observe(float64(results))
}
