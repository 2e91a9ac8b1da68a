package index

import (
	"context"
	"fmt"
	"strings"
	"sync"

	chromem "github.com/philippgille/chromem-go"
)

// collectionPrefix namespaces per-user collections inside the chromem DB.
const collectionPrefix = "user_"

// ChromemIndex is a chromem-go backed index. chromem-go is a pure Go
// embedded vector database, so the index survives restarts when opened
// with a persistence path. Each user gets their own collection for
// namespace isolation; session scoping rides on document metadata, so
// no lookup state lives outside the database itself.
type ChromemIndex struct {
	mu          sync.RWMutex
	db          *chromem.DB
	dimension   int
	collections map[string]*chromem.Collection
	closed      bool
}

// NewChromemIndex opens a persistent index at path. An empty path yields an
// in-memory database. Collections already on disk are picked up on open.
func NewChromemIndex(path string, dimension int) (*ChromemIndex, error) {
	var db *chromem.DB
	if path == "" {
		db = chromem.NewDB()
	} else {
		var err error
		db, err = chromem.NewPersistentDB(path, false)
		if err != nil {
			return nil, fmt.Errorf("index: open chromem at %s: %w", path, err)
		}
	}

	collections := make(map[string]*chromem.Collection)
	for name, col := range db.ListCollections() {
		userID := strings.TrimPrefix(name, collectionPrefix)
		collections[userID] = col
	}

	return &ChromemIndex{
		db:          db,
		dimension:   dimension,
		collections: collections,
	}, nil
}

func (c *ChromemIndex) collection(userID string) (*chromem.Collection, error) {
	c.mu.RLock()
	col, ok := c.collections[userID]
	c.mu.RUnlock()
	if ok {
		return col, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if col, ok := c.collections[userID]; ok {
		return col, nil
	}
	name := collectionPrefix + userID
	col, err := c.db.GetOrCreateCollection(name, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("index: create collection %s: %w", name, err)
	}
	c.collections[userID] = col
	return col, nil
}

// allCollections snapshots the known collections for exact-key scans.
func (c *ChromemIndex) allCollections() []*chromem.Collection {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*chromem.Collection, 0, len(c.collections))
	for _, col := range c.collections {
		out = append(out, col)
	}
	return out
}

// Add inserts or replaces a vector.
func (c *ChromemIndex) Add(ctx context.Context, entry Entry) error {
	if len(entry.Vector) != c.dimension {
		return fmt.Errorf("%w: expected %d, got %d", ErrDimensionMismatch, c.dimension, len(entry.Vector))
	}
	col, err := c.collection(entry.UserID)
	if err != nil {
		return err
	}
	doc := chromem.Document{
		ID:        entry.ID,
		Content:   entry.ID, // content is unused; the store owns the row
		Embedding: entry.Vector,
		Metadata: map[string]string{
			"user_id":    entry.UserID,
			"session_id": entry.SessionID,
		},
	}
	if err := col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("index: add document: %w", err)
	}
	return nil
}

// Delete removes a vector by episode ID. Deleting a missing id is not an
// error; chromem tolerates deletes of absent documents.
func (c *ChromemIndex) Delete(ctx context.Context, id string) error {
	for _, col := range c.allCollections() {
		if err := col.Delete(ctx, nil, nil, id); err != nil {
			return fmt.Errorf("index: delete %s: %w", id, err)
		}
	}
	return nil
}

// Get returns the stored vector for id.
func (c *ChromemIndex) Get(ctx context.Context, id string) ([]float32, error) {
	for _, col := range c.allCollections() {
		doc, err := col.GetByID(ctx, id)
		if err == nil {
			return doc.Embedding, nil
		}
	}
	return nil, ErrNotFound
}

// Search queries the owner's collection and filters by the options.
// Session scoping uses chromem's metadata filter, so it holds across
// restarts.
func (c *ChromemIndex) Search(ctx context.Context, query []float32, opts SearchOptions) ([]Match, error) {
	if len(query) != c.dimension {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrDimensionMismatch, c.dimension, len(query))
	}
	col, err := c.collection(opts.UserID)
	if err != nil {
		return nil, err
	}

	count := col.Count()
	if count == 0 {
		return nil, nil
	}

	var where map[string]string
	if opts.SessionID != "" {
		where = map[string]string{"session_id": opts.SessionID}
	}

	topK := opts.TopK
	if topK <= 0 {
		topK = 10
	}
	// chromem rejects nResults larger than the collection, and metadata
	// filters shrink the eligible set further. Rank the whole collection
	// and trim here; per-user collections stay small enough for that.
	results, err := col.QueryEmbedding(ctx, query, count, where, nil)
	if err != nil {
		return nil, fmt.Errorf("index: query: %w", err)
	}

	matches := make([]Match, 0, topK)
	for _, r := range results {
		sim := float64(r.Similarity)
		if sim < opts.MinSimilarity {
			continue
		}
		matches = append(matches, Match{ID: r.ID, Similarity: sim})
		if len(matches) == topK {
			break
		}
	}
	return matches, nil
}

// Len returns the number of indexed vectors across all users.
func (c *ChromemIndex) Len() int {
	total := 0
	for _, col := range c.allCollections() {
		total += col.Count()
	}
	return total
}

// Close marks the index closed. chromem persists on write, so there is
// nothing to flush.
func (c *ChromemIndex) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}
