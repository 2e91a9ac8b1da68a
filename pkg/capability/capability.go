// Package capability defines the external collaborator seams the platform
// consumes: embedding providers, the summarization capability, and the
// isolated action runner used by graduation exams. Implementations live in
// subpackages; the engines only see these interfaces.
package capability

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors for external capabilities.
var (
	ErrTimeout         = errors.New("capability: call timed out")
	ErrUnavailable     = errors.New("capability: backend unavailable")
	ErrNoProviders     = errors.New("capability: no embedding providers configured")
	ErrUnknownProvider = errors.New("capability: unknown embedding provider")
)

// Embedder turns text into a fixed-length vector. Implementations must be
// idempotent for identical input within their caching window.
type Embedder interface {
	// Embed returns the embedding vector for text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the fixed vector length this provider produces.
	Dimensions() int
}

// SummaryRequest carries everything the summarization capability needs.
type SummaryRequest struct {
	// Interaction is the concatenated turn content of the episode.
	Interaction string

	// AgentTask describes what the agent was doing, if known.
	AgentTask string

	// CanvasState is the presentation summary of the canvas, if any.
	CanvasState string

	// MaxWait caps how long the call may block. The summarizer must
	// return a typed failure on timeout, never hang.
	MaxWait time.Duration
}

// SummaryOutcome classifies how a summary was produced.
type SummaryOutcome int

const (
	// SummaryOK means the external capability produced the summary.
	SummaryOK SummaryOutcome = iota

	// SummaryFallback means the deterministic metadata summary was used.
	SummaryFallback

	// SummaryFailed means no summary could be produced at all.
	SummaryFailed
)

// SummaryResult is the typed result of a summarization attempt. Callers
// branch on Outcome instead of catching errors generically.
type SummaryResult struct {
	Outcome SummaryOutcome
	Text    string
	Reason  string // set for Fallback and Failed
	Err     error  // set for Failed
}

// Summarizer produces a short natural-language summary of an episode.
type Summarizer interface {
	Summarize(ctx context.Context, req SummaryRequest) SummaryResult
}

// ActionRunner replays a representative action in an isolated execution
// context. Used by the graduation exam; out-of-scope systems provide it.
type ActionRunner interface {
	// Replay executes the action and reports whether the outcome passed
	// constitutional validation.
	Replay(ctx context.Context, agentID, actionType string) (passed bool, err error)
}
