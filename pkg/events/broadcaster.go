// Package events fans platform events out to in-process subscribers,
// which the API layer bridges onto websockets.
package events

import (
	"sync"
	"time"
)

// Event types emitted by the engines.
const (
	TypeEpisodeClosed       = "episode.closed"
	TypeEpisodeConsolidated = "episode.consolidated"
	TypeEpisodeArchived     = "episode.archived"
	TypeAgentPromoted       = "agent.promoted"
	TypeActionBlocked       = "action.blocked"
)

// Event is the canonical event payload broadcast to subscribers.
type Event struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// Broadcaster broadcasts events to in-process subscribers.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[chan Event]struct{}
}

// NewBroadcaster creates a broadcaster instance.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[chan Event]struct{}),
	}
}

// Subscribe subscribes to events with a buffered channel.
func (b *Broadcaster) Subscribe(buffer int) chan Event {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)
	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broadcaster) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subscribers[ch]; !ok {
		return
	}
	delete(b.subscribers, ch)
	close(ch)
}

// Broadcast delivers an event to all subscribers without blocking.
func (b *Broadcaster) Broadcast(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	b.mu.RLock()
	subs := make([]chan Event, 0, len(b.subscribers))
	for ch := range b.subscribers {
		subs = append(subs, ch)
	}
	b.mu.RUnlock()

	for _, ch := range subs {
		select {
		case ch <- event:
		default:
			// Drop on overflow to keep publishers non-blocking.
		}
	}
}

// EpisodeClosed emits an episode closure event.
func (b *Broadcaster) EpisodeClosed(episodeID, sessionID, agentID string, turnCount int) {
	b.Broadcast(Event{
		Type: TypeEpisodeClosed,
		Payload: map[string]any{
			"episode_id": episodeID,
			"session_id": sessionID,
			"agent_id":   agentID,
			"turn_count": turnCount,
		},
	})
}

// EpisodeConsolidated emits a consolidation event.
func (b *Broadcaster) EpisodeConsolidated(keptID string, absorbedIDs []string) {
	b.Broadcast(Event{
		Type: TypeEpisodeConsolidated,
		Payload: map[string]any{
			"episode_id":   keptID,
			"absorbed_ids": absorbedIDs,
		},
	})
}

// EpisodeArchived emits an archival event.
func (b *Broadcaster) EpisodeArchived(episodeID string) {
	b.Broadcast(Event{
		Type:    TypeEpisodeArchived,
		Payload: map[string]any{"episode_id": episodeID},
	})
}

// AgentPromoted emits a maturity promotion event.
func (b *Broadcaster) AgentPromoted(agentID, from, to string, readiness float64) {
	b.Broadcast(Event{
		Type: TypeAgentPromoted,
		Payload: map[string]any{
			"agent_id":        agentID,
			"from":            from,
			"to":              to,
			"readiness_score": readiness,
		},
	})
}

// ActionBlocked emits a governance block event.
func (b *Broadcaster) ActionBlocked(agentID, actionType, decision string) {
	b.Broadcast(Event{
		Type: TypeActionBlocked,
		Payload: map[string]any{
			"agent_id":    agentID,
			"action_type": actionType,
			"decision":    decision,
		},
	})
}

// Close closes all subscriber channels.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, ch)
	}
}
