// Package episode defines the shared data model for the episodic memory
// system: episodes, canvas context, lifecycle status, and detail-level views.
package episode

import (
	"time"
)

// Status is the lifecycle state of an episode.
type Status string

const (
	// StatusActive is a closed episode available to all retrieval modes.
	StatusActive Status = "active"

	// StatusConsolidated marks an episode that absorbed near-duplicates.
	StatusConsolidated Status = "consolidated"

	// StatusArchived marks an episode relocated to the cold keyspace.
	// Archived episodes are excluded from default retrieval.
	StatusArchived Status = "archived"

	// StatusPending marks an episode whose embeddings have not been
	// written yet. Pending episodes are invisible to retrieval.
	StatusPending Status = "pending"
)

// Summary source values recorded in SummarySource.
const (
	SummarySourceLLM      = "llm"
	SummarySourceMetadata = "metadata"
)

// Episode is a bounded, summarized unit of agent/user interaction history.
type Episode struct {
	// ID is the unique identifier for this episode.
	ID string `json:"id"`

	// SessionID groups episodes of one conversation session.
	SessionID string `json:"session_id"`

	// AgentID identifies the agent that participated in the episode.
	AgentID string `json:"agent_id"`

	// UserID scopes the episode to its owner.
	UserID string `json:"user_id"`

	// StartTime is the timestamp of the first turn covered.
	StartTime time.Time `json:"start_time"`

	// EndTime is the timestamp of the last turn covered.
	// Always >= StartTime; episodes of one session never overlap.
	EndTime time.Time `json:"end_time"`

	// SummaryText is the natural-language summary of the episode.
	SummaryText string `json:"summary_text"`

	// SummarySource records how the summary was produced ("llm" or "metadata").
	SummarySource string `json:"summary_source,omitempty"`

	// Embeddings holds one vector per configured embedding provider,
	// keyed by provider name. The primary provider feeds the vector index.
	Embeddings map[string][]float32 `json:"embeddings,omitempty"`

	// RawRef points at the source turns; turn content is never duplicated here.
	RawRef TurnRange `json:"raw_ref"`

	// Canvas is the optional canvas context. Nil when no canvas was shown.
	Canvas *CanvasContext `json:"canvas,omitempty"`

	// FeedbackScore is the running feedback aggregate. Nil until the first
	// feedback event is folded in.
	FeedbackScore *float64 `json:"feedback_score,omitempty"`

	// FeedbackCount is the number of feedback events folded into FeedbackScore.
	FeedbackCount int `json:"feedback_count,omitempty"`

	// AccessCount is incremented every time retrieval returns this episode.
	AccessCount int64 `json:"access_count"`

	// LastAccessedAt is the timestamp of the most recent retrieval hit.
	LastAccessedAt time.Time `json:"last_accessed_at"`

	// Status is the lifecycle state.
	Status Status `json:"status"`

	// DecayScore is in [0,1], non-increasing while untouched, reset
	// upward on access or feedback.
	DecayScore float64 `json:"decay_score"`

	// AbsorbedIDs lists episodes merged into this one by consolidation.
	AbsorbedIDs []string `json:"absorbed_ids,omitempty"`

	// CreatedAt is the persistence timestamp.
	CreatedAt time.Time `json:"created_at"`

	// Version is bumped on every mutation and checked by optimistic
	// lifecycle updates so readers never observe a half-merged episode.
	Version uint64 `json:"version"`
}

// TurnRange references the span of source turns an episode covers.
type TurnRange struct {
	// FirstTurn is the index of the first covered turn in the session stream.
	FirstTurn int `json:"first_turn"`

	// LastTurn is the index of the last covered turn (inclusive).
	LastTurn int `json:"last_turn"`

	// TurnCount is the number of turns covered.
	TurnCount int `json:"turn_count"`
}

// Touch records a retrieval hit: bumps the access counter and resets the
// decay score upward. Callers persist the mutation.
func (e *Episode) Touch(now time.Time) {
	e.AccessCount++
	e.LastAccessedAt = now
	if e.DecayScore < 1.0 {
		e.DecayScore = 1.0
	}
}

// Retrievable reports whether the episode is visible to default retrieval.
func (e *Episode) Retrievable() bool {
	return e.Status == StatusActive || e.Status == StatusConsolidated
}

// FoldFeedback folds one feedback event into the running aggregate and
// nudges the decay score upward by boost, clamped to 1.0.
func (e *Episode) FoldFeedback(score, boost float64) {
	if e.FeedbackScore == nil {
		s := score
		e.FeedbackScore = &s
		e.FeedbackCount = 1
	} else {
		n := float64(e.FeedbackCount)
		folded := (*e.FeedbackScore*n + score) / (n + 1)
		e.FeedbackScore = &folded
		e.FeedbackCount++
	}
	e.DecayScore += boost
	if e.DecayScore > 1.0 {
		e.DecayScore = 1.0
	}
}

// Clone returns a deep copy. Cache tiers hand out clones so concurrent
// readers and writers never share mutable state through a cached row.
func (e *Episode) Clone() *Episode {
	if e == nil {
		return nil
	}
	out := *e
	if e.Embeddings != nil {
		out.Embeddings = make(map[string][]float32, len(e.Embeddings))
		for name, vec := range e.Embeddings {
			cp := make([]float32, len(vec))
			copy(cp, vec)
			out.Embeddings[name] = cp
		}
	}
	if e.FeedbackScore != nil {
		score := *e.FeedbackScore
		out.FeedbackScore = &score
	}
	if e.AbsorbedIDs != nil {
		out.AbsorbedIDs = append([]string(nil), e.AbsorbedIDs...)
	}
	if e.Canvas != nil {
		canvas := *e.Canvas
		if canvas.VisualElements != nil {
			canvas.VisualElements = append([]string(nil), e.Canvas.VisualElements...)
		}
		if canvas.CriticalDataPoints != nil {
			points := make(map[string]string, len(e.Canvas.CriticalDataPoints))
			for k, v := range e.Canvas.CriticalDataPoints {
				points[k] = v
			}
			canvas.CriticalDataPoints = points
		}
		out.Canvas = &canvas
	}
	return &out
}
