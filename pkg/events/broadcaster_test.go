package events

import (
	"testing"
	"time"
)

func TestBroadcastReachesAllSubscribers(t *testing.T) {
	b := NewBroadcaster()
	defer b.Close()

	a := b.Subscribe(4)
	c := b.Subscribe(4)

	b.EpisodeClosed("ep-1", "sess-1", "agent-1", 5)

	for _, ch := range []chan Event{a, c} {
		select {
		case ev := <-ch:
			if ev.Type != TypeEpisodeClosed {
				t.Fatalf("type = %q, want %q", ev.Type, TypeEpisodeClosed)
			}
			payload, ok := ev.Payload.(map[string]any)
			if !ok {
				t.Fatalf("payload type %T", ev.Payload)
			}
			if payload["episode_id"] != "ep-1" || payload["turn_count"] != 5 {
				t.Fatalf("payload = %v", payload)
			}
			if ev.Timestamp.IsZero() {
				t.Fatal("timestamp not stamped")
			}
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive event")
		}
	}
}

func TestBroadcastDropsOnFullBuffer(t *testing.T) {
	b := NewBroadcaster()
	defer b.Close()

	ch := b.Subscribe(1)
	b.EpisodeArchived("ep-1")
	b.EpisodeArchived("ep-2") // buffer full, dropped

	ev := <-ch
	payload := ev.Payload.(map[string]any)
	if payload["episode_id"] != "ep-1" {
		t.Fatalf("payload = %v", payload)
	}
	select {
	case extra := <-ch:
		t.Fatalf("unexpected second event: %v", extra)
	default:
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := NewBroadcaster()
	defer b.Close()

	ch := b.Subscribe(1)
	b.Unsubscribe(ch)

	if _, open := <-ch; open {
		t.Fatal("channel still open after unsubscribe")
	}
	// Unsubscribing twice must not panic.
	b.Unsubscribe(ch)
	// Broadcasts after unsubscribe go nowhere but must not panic either.
	b.ActionBlocked("agent-1", "execute_payment", "blocked")
}

func TestCloseShutsDownAllSubscribers(t *testing.T) {
	b := NewBroadcaster()
	a := b.Subscribe(1)
	c := b.Subscribe(1)

	b.Close()

	for _, ch := range []chan Event{a, c} {
		if _, open := <-ch; open {
			t.Fatal("channel still open after Close")
		}
	}
}

func TestAgentPromotedPayload(t *testing.T) {
	b := NewBroadcaster()
	defer b.Close()

	ch := b.Subscribe(1)
	b.AgentPromoted("agent-1", "STUDENT", "INTERN", 72.5)

	ev := <-ch
	if ev.Type != TypeAgentPromoted {
		t.Fatalf("type = %q", ev.Type)
	}
	payload := ev.Payload.(map[string]any)
	if payload["from"] != "STUDENT" || payload["to"] != "INTERN" {
		t.Fatalf("payload = %v", payload)
	}
	if payload["readiness_score"] != 72.5 {
		t.Fatalf("readiness = %v", payload["readiness_score"])
	}
}
