package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/dgraph-io/badger/v4"

	"github.com/atriumhq/atrium/pkg/episode"
)

// updateRetries bounds optimistic-concurrency retries on txn conflict.
const updateRetries = 5

// Config holds BadgerDB settings for the episode store.
type Config struct {
	// Path is the database directory. Empty means in-memory (tests).
	Path string

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// CacheSize is the max entries in the L1 LRU tier.
	CacheSize int
}

// BadgerStore is the EpisodeStore implementation over BadgerDB with an
// L1 LRU cache in front of point reads.
type BadgerStore struct {
	db    *badger.DB
	cache *lruCache
	owned bool // whether Close should close the DB
}

// Open opens a BadgerDB at cfg.Path and wraps it in a store.
func Open(cfg Config) (*BadgerStore, error) {
	var opts badger.Options
	if cfg.Path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(cfg.Path).WithSyncWrites(cfg.SyncWrites)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("store: open badger: %w", err)
	}
	s := NewBadgerStore(db, cfg.CacheSize)
	s.owned = true
	return s, nil
}

// NewBadgerStore wraps an externally managed DB.
func NewBadgerStore(db *badger.DB, cacheSize int) *BadgerStore {
	if cacheSize <= 0 {
		cacheSize = 1024
	}
	return &BadgerStore{db: db, cache: newLRUCache(cacheSize)}
}

// DB exposes the underlying database so sibling stores (profiles,
// supervision records, the pending queue) share one instance.
func (s *BadgerStore) DB() *badger.DB {
	return s.db
}

// Put persists a new episode after validating its time range against the
// session's existing episodes.
func (s *BadgerStore) Put(ctx context.Context, ep *episode.Episode) error {
	switch {
	case ep.UserID == "":
		return episode.ErrInvalidUserID
	case ep.SessionID == "":
		return episode.ErrInvalidSessionID
	case ep.EndTime.Before(ep.StartTime):
		return episode.ErrInvalidTimeRange
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		// Episodes of one session must stay pairwise disjoint.
		existing, err := readPrefix(txn, SessionPrefix(ep.UserID, ep.SessionID))
		if err != nil {
			return err
		}
		for _, other := range existing {
			if other.ID == ep.ID {
				continue
			}
			if ep.StartTime.Before(other.EndTime) && other.StartTime.Before(ep.EndTime) {
				return fmt.Errorf("%w: %s overlaps %s", episode.ErrOverlappingRange, ep.ID, other.ID)
			}
		}

		if ep.Version == 0 {
			ep.Version = 1
		}
		rowKey := EpisodeKey(ep.UserID, ep.SessionID, ep.ID)
		if err := writeRow(txn, rowKey, ep); err != nil {
			return err
		}
		return txn.Set(EpisodeIDKey(ep.ID), rowKey)
	})
	if err != nil {
		return err
	}
	s.cache.put(ep.ID, ep)
	return nil
}

// Get returns an episode by ID, checking the L1 tier first.
func (s *BadgerStore) Get(ctx context.Context, id string) (*episode.Episode, error) {
	if ep, ok := s.cache.get(id); ok {
		return ep, nil
	}

	var ep *episode.Episode
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		ep, err = readByID(txn, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.cache.put(id, ep)
	return ep, nil
}

// Update applies fn inside a transaction and retries on conflict, so two
// concurrent mutators never lose an update and readers only ever see the
// pre- or post-transition row.
func (s *BadgerStore) Update(ctx context.Context, id string, fn func(*episode.Episode) error) (*episode.Episode, error) {
	var updated *episode.Episode
	for attempt := 0; ; attempt++ {
		err := s.db.Update(func(txn *badger.Txn) error {
			ep, err := readByID(txn, id)
			if err != nil {
				return err
			}
			if ep.Status == episode.StatusArchived {
				return fmt.Errorf("%w: %s", episode.ErrArchivedWrite, id)
			}
			if err := fn(ep); err != nil {
				return err
			}
			ep.Version++
			updated = ep
			return writeRow(txn, EpisodeKey(ep.UserID, ep.SessionID, ep.ID), ep)
		})
		if errors.Is(err, badger.ErrConflict) && attempt < updateRetries {
			continue
		}
		if err != nil {
			return nil, err
		}
		break
	}
	s.cache.put(id, updated)
	return updated, nil
}

// ListByUser returns active episodes ordered by start time descending.
// Sorting tie-breaks on ID so pagination stays deterministic.
func (s *BadgerStore) ListByUser(ctx context.Context, userID string, opts ListOptions) ([]*episode.Episode, int, error) {
	if userID == "" {
		return nil, 0, episode.ErrInvalidUserID
	}

	var all []*episode.Episode
	err := s.db.View(func(txn *badger.Txn) error {
		rows, err := readPrefix(txn, UserPrefix(userID))
		if err != nil {
			return err
		}
		for _, ep := range rows {
			if !ep.Retrievable() {
				continue
			}
			if opts.AgentID != "" && ep.AgentID != opts.AgentID {
				continue
			}
			if !opts.From.IsZero() && ep.StartTime.Before(opts.From) {
				continue
			}
			if !opts.To.IsZero() && ep.StartTime.After(opts.To) {
				continue
			}
			all = append(all, ep)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	sort.Slice(all, func(i, j int) bool {
		if all[i].StartTime.Equal(all[j].StartTime) {
			return all[i].ID < all[j].ID
		}
		return all[i].StartTime.After(all[j].StartTime)
	})

	total := len(all)
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	if opts.Offset >= total {
		return nil, total, nil
	}
	end := opts.Offset + limit
	if end > total {
		end = total
	}
	return all[opts.Offset:end], total, nil
}

// ListBySession returns the full chronological episode sequence of a
// session. Completeness is the guarantee here; there is no pagination.
func (s *BadgerStore) ListBySession(ctx context.Context, userID, sessionID string, includeArchived bool) ([]*episode.Episode, error) {
	if userID == "" {
		return nil, episode.ErrInvalidUserID
	}
	if sessionID == "" {
		return nil, episode.ErrInvalidSessionID
	}

	var all []*episode.Episode
	err := s.db.View(func(txn *badger.Txn) error {
		rows, err := readPrefix(txn, SessionPrefix(userID, sessionID))
		if err != nil {
			return err
		}
		for _, ep := range rows {
			if ep.Status == episode.StatusPending {
				continue
			}
			all = append(all, ep)
		}
		if includeArchived {
			archived, err := readPrefix(txn, ArchiveSessionPrefix(userID, sessionID))
			if err != nil {
				return err
			}
			all = append(all, archived...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(all, func(i, j int) bool {
		return all[i].StartTime.Before(all[j].StartTime)
	})
	return all, nil
}

// ForEachActive visits every active episode row.
func (s *BadgerStore) ForEachActive(ctx context.Context, fn func(*episode.Episode) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = AllEpisodesPrefix()
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var ep episode.Episode
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &ep)
			}); err != nil {
				return err
			}
			if err := fn(&ep); err != nil {
				return err
			}
		}
		return nil
	})
}

// Archive relocates an episode row to the cold keyspace.
func (s *BadgerStore) Archive(ctx context.Context, id string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		ep, err := readByID(txn, id)
		if err != nil {
			return err
		}
		if ep.Status == episode.StatusArchived {
			return nil
		}
		if err := txn.Delete(EpisodeKey(ep.UserID, ep.SessionID, ep.ID)); err != nil {
			return err
		}
		ep.Status = episode.StatusArchived
		ep.Version++
		coldKey := ArchiveKey(ep.UserID, ep.SessionID, ep.ID)
		if err := writeRow(txn, coldKey, ep); err != nil {
			return err
		}
		return txn.Set(EpisodeIDKey(ep.ID), coldKey)
	})
	if err != nil {
		return err
	}
	s.cache.delete(id)
	return nil
}

// Delete removes an episode row and its ID index entry.
func (s *BadgerStore) Delete(ctx context.Context, id string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		rowKey, err := resolveRowKey(txn, id)
		if errors.Is(err, episode.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := txn.Delete(rowKey); err != nil {
			return err
		}
		return txn.Delete(EpisodeIDKey(id))
	})
	if err != nil {
		return err
	}
	s.cache.delete(id)
	return nil
}

// Ping reports whether the database is still usable.
func (s *BadgerStore) Ping() error {
	if s.db.IsClosed() {
		return fmt.Errorf("store: database closed")
	}
	return nil
}

// Close closes the database when this store owns it.
func (s *BadgerStore) Close() error {
	if s.owned {
		return s.db.Close()
	}
	return nil
}

// --- row helpers ---

func writeRow(txn *badger.Txn, key []byte, ep *episode.Episode) error {
	data, err := json.Marshal(ep)
	if err != nil {
		return fmt.Errorf("store: marshal episode: %w", err)
	}
	return txn.Set(key, data)
}

func resolveRowKey(txn *badger.Txn, id string) ([]byte, error) {
	item, err := txn.Get(EpisodeIDKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, episode.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

func readByID(txn *badger.Txn, id string) (*episode.Episode, error) {
	rowKey, err := resolveRowKey(txn, id)
	if err != nil {
		return nil, err
	}
	item, err := txn.Get(rowKey)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, episode.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var ep episode.Episode
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &ep)
	}); err != nil {
		return nil, err
	}
	return &ep, nil
}

func readPrefix(txn *badger.Txn, prefix []byte) ([]*episode.Episode, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	var rows []*episode.Episode
	for it.Rewind(); it.Valid(); it.Next() {
		if !bytes.HasPrefix(it.Item().Key(), prefix) {
			break
		}
		var ep episode.Episode
		if err := it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &ep)
		}); err != nil {
			return nil, err
		}
		rows = append(rows, &ep)
	}
	return rows, nil
}
