// Package store persists episodes in BadgerDB with an in-memory LRU tier
// in front, and owns the database key registry shared by every persisted
// entity.
package store

import (
	"context"
	"time"

	"github.com/atriumhq/atrium/pkg/episode"
)

// ListOptions bound a temporal listing.
type ListOptions struct {
	// From/To bound the episode start time. Zero values mean unbounded.
	From time.Time
	To   time.Time

	// AgentID optionally narrows to one agent.
	AgentID string

	// Limit/Offset paginate. Limit defaults to 20 when <= 0.
	Limit  int
	Offset int
}

// EpisodeStore is the durable record of episodes.
type EpisodeStore interface {
	// Put persists a new episode. The write is rejected when the time
	// range is invalid or overlaps an existing episode of the session.
	Put(ctx context.Context, ep *episode.Episode) error

	// Get returns the episode with the given ID, archived or not.
	Get(ctx context.Context, id string) (*episode.Episode, error)

	// Update applies fn to the current row inside a transaction and
	// persists the result with a bumped version. Conflicting concurrent
	// updates are retried. Updates to archived rows are rejected unless
	// fn is the archival transition itself.
	Update(ctx context.Context, id string, fn func(*episode.Episode) error) (*episode.Episode, error)

	// ListByUser returns active episodes of a user ordered by start time
	// descending, paginated. The int result is the total before paging.
	ListByUser(ctx context.Context, userID string, opts ListOptions) ([]*episode.Episode, int, error)

	// ListBySession returns every episode of a session in chronological
	// order. Archived rows are included only when includeArchived is set.
	ListBySession(ctx context.Context, userID, sessionID string, includeArchived bool) ([]*episode.Episode, error)

	// ForEachActive visits every active episode. Lifecycle sweeps only.
	ForEachActive(ctx context.Context, fn func(*episode.Episode) error) error

	// Archive moves an episode row to the cold keyspace and marks it
	// archived.
	Archive(ctx context.Context, id string) error

	// Delete removes an episode row and its ID index entry.
	Delete(ctx context.Context, id string) error

	// Close releases resources.
	Close() error
}
