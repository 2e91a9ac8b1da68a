package episode

import "errors"

// Sentinel errors for the episodic memory system.
var (
	ErrNotFound          = errors.New("episode: not found")
	ErrInvalidUserID     = errors.New("episode: invalid user ID")
	ErrInvalidSessionID  = errors.New("episode: invalid session ID")
	ErrInvalidAgentID    = errors.New("episode: invalid agent ID")
	ErrOverlappingRange  = errors.New("episode: overlapping time range in session")
	ErrArchivedWrite     = errors.New("episode: write to archived episode")
	ErrVersionConflict   = errors.New("episode: version conflict")
	ErrInvalidTimeRange  = errors.New("episode: end time before start time")
	ErrStoreUnavailable  = errors.New("episode: store unavailable")
	ErrIndexUnavailable  = errors.New("episode: vector index unavailable")
	ErrInvalidDetail     = errors.New("episode: unknown detail level")
	ErrInvalidCanvasType = errors.New("episode: unknown canvas type")
)
