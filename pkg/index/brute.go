package index

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// BruteIndex is a brute-force cosine-similarity index. Fine for per-user
// episode counts in the tens of thousands; swap in the chromem backend for
// larger or durable deployments.
type BruteIndex struct {
	mu        sync.RWMutex
	dimension int
	vectors   map[string][]float32
	owners    map[string]string // entryID -> userID
	sessions  map[string]string // entryID -> sessionID
}

// NewBruteIndex creates an empty in-process index with the given dimension.
func NewBruteIndex(dimension int) *BruteIndex {
	return &BruteIndex{
		dimension: dimension,
		vectors:   make(map[string][]float32),
		owners:    make(map[string]string),
		sessions:  make(map[string]string),
	}
}

// Add inserts or replaces a vector.
func (b *BruteIndex) Add(ctx context.Context, entry Entry) error {
	if len(entry.Vector) != b.dimension {
		return fmt.Errorf("%w: expected %d, got %d", ErrDimensionMismatch, b.dimension, len(entry.Vector))
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.vectors[entry.ID] = entry.Vector
	b.owners[entry.ID] = entry.UserID
	b.sessions[entry.ID] = entry.SessionID
	return nil
}

// Delete removes a vector.
func (b *BruteIndex) Delete(ctx context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.vectors, id)
	delete(b.owners, id)
	delete(b.sessions, id)
	return nil
}

// Get returns the stored vector for id.
func (b *BruteIndex) Get(ctx context.Context, id string) ([]float32, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	vec, ok := b.vectors[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]float32, len(vec))
	copy(out, vec)
	return out, nil
}

// Search scans all vectors of the owner and ranks by cosine similarity.
func (b *BruteIndex) Search(ctx context.Context, query []float32, opts SearchOptions) ([]Match, error) {
	if len(query) != b.dimension {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrDimensionMismatch, b.dimension, len(query))
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	var matches []Match
	for id, vec := range b.vectors {
		if opts.UserID != "" && b.owners[id] != opts.UserID {
			continue
		}
		if opts.SessionID != "" && b.sessions[id] != opts.SessionID {
			continue
		}
		sim := Cosine(query, vec)
		if sim < opts.MinSimilarity {
			continue
		}
		matches = append(matches, Match{ID: id, Similarity: sim})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Similarity == matches[j].Similarity {
			return matches[i].ID < matches[j].ID
		}
		return matches[i].Similarity > matches[j].Similarity
	})

	topK := opts.TopK
	if topK <= 0 {
		topK = 10
	}
	if topK < len(matches) {
		matches = matches[:topK]
	}
	return matches, nil
}

// Len returns the number of indexed vectors.
func (b *BruteIndex) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.vectors)
}

// Close is a no-op for the in-process index.
func (b *BruteIndex) Close() error {
	return nil
}
