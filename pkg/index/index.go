// Package index provides the vector index backing episode semantic search
// and consolidation similarity checks. Two backends are available: an
// in-process brute-force index and a persistent chromem-go index.
package index

import (
	"context"
	"errors"
	"math"
)

// Sentinel errors for the vector index.
var (
	ErrDimensionMismatch = errors.New("index: vector dimension mismatch")
	ErrNotFound          = errors.New("index: entry not found")
	ErrClosed            = errors.New("index: closed")
)

// Entry is one indexed vector, keyed by episode ID.
type Entry struct {
	// ID is the episode ID. Exact-key lookups and deletes use it.
	ID string

	// UserID scopes searches to an owner.
	UserID string

	// SessionID optionally narrows searches to one session.
	SessionID string

	// Vector is the embedding of the episode summary.
	Vector []float32
}

// Match is one nearest-neighbor result.
type Match struct {
	ID         string
	Similarity float64
}

// SearchOptions narrow and bound a nearest-neighbor search.
type SearchOptions struct {
	// UserID is required; searches never cross owners.
	UserID string

	// SessionID, when set, restricts results to one session.
	SessionID string

	// TopK caps the result count. Defaults to 10 when <= 0.
	TopK int

	// MinSimilarity drops matches below the threshold.
	MinSimilarity float64
}

// Index is the nearest-neighbor search surface used by retrieval,
// segmentation, and consolidation.
type Index interface {
	// Add inserts or replaces the vector for entry.ID.
	Add(ctx context.Context, entry Entry) error

	// Delete removes the vector for id. Deleting a missing id is not an error.
	Delete(ctx context.Context, id string) error

	// Get returns the stored vector for id.
	Get(ctx context.Context, id string) ([]float32, error)

	// Search returns the nearest entries ranked by descending similarity.
	Search(ctx context.Context, query []float32, opts SearchOptions) ([]Match, error)

	// Len returns the number of indexed vectors.
	Len() int

	// Close releases backend resources.
	Close() error
}

// Cosine computes the cosine similarity of two vectors. Mismatched or
// zero-norm inputs score 0.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}
	return dot / denom
}
