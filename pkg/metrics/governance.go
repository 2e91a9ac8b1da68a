package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// initGovernanceMetrics initializes action gating metrics.
func (m *Manager) initGovernanceMetrics(cfg Config) {
	m.gateDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gate_decisions_total",
			Help: "Total number of action gating decisions by decision and complexity tier",
		},
		[]string{"decision", "tier"},
	)

	m.graduationChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "graduation_checks_total",
			Help: "Total number of graduation checks by outcome",
		},
		[]string{"outcome"},
	)

	m.registry.MustRegister(m.gateDecisions)
	m.registry.MustRegister(m.graduationChecks)
}

// RecordGateDecision records one action gating decision.
func (m *Manager) RecordGateDecision(decision, tier string) {
	if !m.enabled {
		return
	}
	m.gateDecisions.WithLabelValues(decision, tier).Inc()
}

// RecordGraduationCheck records one graduation check outcome.
func (m *Manager) RecordGraduationCheck(promoted bool) {
	if !m.enabled {
		return
	}
	outcome := "denied"
	if promoted {
		outcome = "promoted"
	}
	m.graduationChecks.WithLabelValues(outcome).Inc()
}
