// Package governance maintains per-agent maturity state, gates actions
// by complexity, and runs graduation evaluations over the evidentiary
// record accumulated by the memory system.
package governance

import (
	"errors"
	"fmt"
)

// Sentinel errors for governance.
var (
	ErrUnknownAgent    = errors.New("governance: unknown agent")
	ErrInvalidLevel    = errors.New("governance: invalid maturity level")
	ErrInvalidScore    = errors.New("governance: score out of range")
	ErrProfileConflict = errors.New("governance: concurrent profile update")
)

// MaturityLevel is the agent's position on the trust ladder. Levels are
// totally ordered and only ever advance via promotion.
type MaturityLevel int

const (
	Student MaturityLevel = iota
	Intern
	Supervised
	Autonomous
)

var levelNames = map[MaturityLevel]string{
	Student:    "STUDENT",
	Intern:     "INTERN",
	Supervised: "SUPERVISED",
	Autonomous: "AUTONOMOUS",
}

// String returns the canonical level name.
func (l MaturityLevel) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("LEVEL(%d)", int(l))
}

// Valid reports whether l is a defined level.
func (l MaturityLevel) Valid() bool {
	_, ok := levelNames[l]
	return ok
}

// Next returns the next level up and whether one exists.
func (l MaturityLevel) Next() (MaturityLevel, bool) {
	if l >= Autonomous {
		return l, false
	}
	return l + 1, true
}

// ParseLevel parses a canonical level name.
func ParseLevel(s string) (MaturityLevel, error) {
	for l, name := range levelNames {
		if name == s {
			return l, nil
		}
	}
	return Student, fmt.Errorf("%w: %q", ErrInvalidLevel, s)
}

// ComplexityTier classifies how consequential an action type is. The
// mapping from action type to tier is static configuration, never
// mutated at runtime.
type ComplexityTier int

const (
	TierLow ComplexityTier = iota
	TierMedium
	TierHigh
	TierCritical
)

var tierNames = map[ComplexityTier]string{
	TierLow:      "LOW",
	TierMedium:   "MEDIUM",
	TierHigh:     "HIGH",
	TierCritical: "CRITICAL",
}

// String returns the canonical tier name.
func (t ComplexityTier) String() string {
	if name, ok := tierNames[t]; ok {
		return name
	}
	return fmt.Sprintf("TIER(%d)", int(t))
}

// maxComplexity is the highest tier each maturity level may execute
// without human approval.
var maxComplexity = map[MaturityLevel]ComplexityTier{
	Student:    TierLow,
	Intern:     TierMedium,
	Supervised: TierHigh,
	Autonomous: TierCritical,
}

// TierTable maps action types to complexity tiers. Unknown action types
// resolve to CRITICAL so unclassified actions are never under-gated.
type TierTable map[string]ComplexityTier

// Tier resolves the tier for an action type.
func (t TierTable) Tier(actionType string) ComplexityTier {
	if tier, ok := t[actionType]; ok {
		return tier
	}
	return TierCritical
}

// DefaultTierTable is the built-in action classification.
func DefaultTierTable() TierTable {
	return TierTable{
		"read_data":        TierLow,
		"search_memory":    TierLow,
		"summarize":        TierLow,
		"draft_message":    TierMedium,
		"fill_form":        TierMedium,
		"schedule_event":   TierMedium,
		"send_message":     TierHigh,
		"submit_form":      TierHigh,
		"modify_record":    TierHigh,
		"execute_payment":  TierCritical,
		"delete_record":    TierCritical,
		"grant_access":     TierCritical,
		"external_command": TierCritical,
	}
}

// Decision is the outcome of an action gating check.
type Decision string

const (
	// DecisionAllowed lets the action run unsupervised.
	DecisionAllowed Decision = "allowed"

	// DecisionNeedsApproval requires a human in the loop before the
	// action runs.
	DecisionNeedsApproval Decision = "needs_approval"

	// DecisionBlocked rejects the action outright.
	DecisionBlocked Decision = "blocked"
)

// gate applies the gating rule for one level/tier pair. STUDENT agents
// attempting CRITICAL actions are rejected outright; every other
// over-complex action escalates to a human.
func gate(level MaturityLevel, tier ComplexityTier) Decision {
	if tier <= maxComplexity[level] {
		return DecisionAllowed
	}
	if level == Student && tier == TierCritical {
		return DecisionBlocked
	}
	return DecisionNeedsApproval
}
