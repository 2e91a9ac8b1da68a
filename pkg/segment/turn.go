// Package segment turns chronological session streams into bounded
// episodes using time-gap, topic-shift, and task-completion boundary
// rules, and publishes closed episodes to the store and vector index.
package segment

import (
	"errors"
	"time"

	"github.com/atriumhq/atrium/pkg/episode"
)

// Sentinel errors for segmentation.
var (
	ErrOutOfOrderTurn = errors.New("segment: turn older than open episode")
	ErrNoOpenEpisode  = errors.New("segment: no open episode for session")
)

// Actor identifies who produced a turn.
type Actor string

const (
	ActorUser  Actor = "user"
	ActorAgent Actor = "agent"
)

// SessionMeta identifies the stream a turn belongs to.
type SessionMeta struct {
	SessionID string
	UserID    string
	AgentID   string

	// AgentTask optionally describes what the agent is working on; it
	// feeds the summarizer and the metadata fallback.
	AgentTask string
}

// Turn is one element of the interaction stream.
type Turn struct {
	// Index is the position of the turn in the session stream.
	Index int

	// Timestamp is when the turn occurred.
	Timestamp time.Time

	// Actor is who produced the turn.
	Actor Actor

	// Content is the turn text.
	Content string

	// Terminal marks a task-completion turn (explicit done, approval,
	// rejection). The episode closes after this turn is appended.
	Terminal bool

	// Canvas is the audit record for a canvas shown at this turn, if any.
	Canvas *episode.CanvasAudit

	// Feedback is an optional feedback score attached to this turn.
	Feedback *float64
}
