package segment

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/atriumhq/atrium/pkg/episode"
	"github.com/atriumhq/atrium/pkg/store"
)

// pendingItem is one queued episode awaiting embeddings and indexing.
type pendingItem struct {
	EpisodeID   string    `json:"episode_id"`
	Attempts    int       `json:"attempts"`
	NextAttempt time.Time `json:"next_attempt"`
	EnqueuedAt  time.Time `json:"enqueued_at"`
}

// RetryQueue is the durable queue of episodes whose publish (embed,
// index, activate) failed. Items survive restarts; the retry worker
// drains them with exponential backoff.
type RetryQueue struct {
	db   *badger.DB
	base time.Duration
	cap  time.Duration
}

// NewRetryQueue creates a queue on the shared database. base is the
// first retry delay and cap bounds the backoff.
func NewRetryQueue(db *badger.DB, base, cap time.Duration) *RetryQueue {
	if base <= 0 {
		base = 2 * time.Second
	}
	if cap <= 0 {
		cap = 5 * time.Minute
	}
	return &RetryQueue{db: db, base: base, cap: cap}
}

// Enqueue adds an episode to the queue. The first attempt is due after
// the base delay. Re-enqueueing an episode already queued resets it.
func (q *RetryQueue) Enqueue(episodeID string, now time.Time) error {
	item := pendingItem{
		EpisodeID:   episodeID,
		NextAttempt: now.Add(q.base),
		EnqueuedAt:  now,
	}
	return q.write(item)
}

// Due returns the items whose next attempt is at or before now.
func (q *RetryQueue) Due(now time.Time) ([]pendingItem, error) {
	var due []pendingItem
	err := q.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = store.PendingPrefix()
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var item pendingItem
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &item)
			}); err != nil {
				return err
			}
			if !item.NextAttempt.After(now) {
				due = append(due, item)
			}
		}
		return nil
	})
	return due, err
}

// Ack removes a completed or abandoned item.
func (q *RetryQueue) Ack(episodeID string) error {
	return q.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(store.PendingKey(episodeID))
	})
}

// Nack reschedules a failed item with doubled, capped backoff.
func (q *RetryQueue) Nack(item pendingItem, now time.Time) error {
	item.Attempts++
	delay := q.base << uint(item.Attempts)
	if delay > q.cap || delay <= 0 {
		delay = q.cap
	}
	item.NextAttempt = now.Add(delay)
	return q.write(item)
}

// Len returns the number of queued items.
func (q *RetryQueue) Len() (int, error) {
	n := 0
	err := q.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = store.PendingPrefix()
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

func (q *RetryQueue) write(item pendingItem) error {
	data, err := json.Marshal(item)
	if err != nil {
		return err
	}
	return q.db.Update(func(txn *badger.Txn) error {
		return txn.Set(store.PendingKey(item.EpisodeID), data)
	})
}

// retryLoop drains the pending queue until the context is cancelled.
func (s *Segmenter) retryLoop(ctx context.Context) {
	interval := s.cfg.RetryInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.flushUnsaved(ctx)
			s.drainPending(ctx)
		}
	}
}

// drainPending retries every due item once.
func (s *Segmenter) drainPending(ctx context.Context) {
	now := s.now()
	due, err := s.retry.Due(now)
	if err != nil {
		s.logger.Error("pending queue scan failed", "error", err)
		return
	}

	for _, item := range due {
		ep, err := s.store.Get(ctx, item.EpisodeID)
		switch {
		case errors.Is(err, episode.ErrNotFound):
			// Row is gone; nothing left to publish.
			_ = s.retry.Ack(item.EpisodeID)
			continue
		case err != nil:
			s.logger.Warn("pending lookup failed",
				"episode_id", item.EpisodeID, "error", err)
			continue
		}

		if ep.Status != episode.StatusPending {
			_ = s.retry.Ack(item.EpisodeID)
			continue
		}

		if err := s.publish(ctx, ep); err != nil {
			s.logger.Warn("pending publish failed",
				"episode_id", item.EpisodeID, "attempts", item.Attempts+1, "error", err)
			if nerr := s.retry.Nack(item, now); nerr != nil {
				s.logger.Error("pending reschedule failed",
					"episode_id", item.EpisodeID, "error", nerr)
			}
			continue
		}

		_ = s.retry.Ack(item.EpisodeID)
		s.logger.Info("pending episode published",
			"episode_id", item.EpisodeID, "attempts", item.Attempts+1)
	}

	if s.metrics != nil {
		if n, err := s.retry.Len(); err == nil {
			s.metrics.SetRetryQueueDepth(n)
		}
	}
}
