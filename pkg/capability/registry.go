package capability

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"
)

// EmbedderRegistry holds the configured embedding providers in registration
// order. The first registered provider is the primary one that feeds the
// vector index; all providers contribute a vector to each episode.
//
// The registry is explicitly constructed and injected; Reset exists for
// test isolation.
type EmbedderRegistry struct {
	mu       sync.RWMutex
	names    []string
	backends map[string]Embedder
}

// NewEmbedderRegistry creates an empty registry.
func NewEmbedderRegistry() *EmbedderRegistry {
	return &EmbedderRegistry{backends: make(map[string]Embedder)}
}

// Register adds a named provider. Registering an existing name replaces it
// without changing its position.
func (r *EmbedderRegistry) Register(name string, e Embedder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.backends[name]; !ok {
		r.names = append(r.names, name)
	}
	r.backends[name] = e
}

// Primary returns the first registered provider and its name.
func (r *EmbedderRegistry) Primary() (string, Embedder, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.names) == 0 {
		return "", nil, ErrNoProviders
	}
	name := r.names[0]
	return name, r.backends[name], nil
}

// Get returns the provider registered under name.
func (r *EmbedderRegistry) Get(name string) (Embedder, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.backends[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return e, nil
}

// Names returns the provider names in registration order.
func (r *EmbedderRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// EmbedAll runs every registered provider against text and returns the
// vectors keyed by provider name. Fails on the first provider error so the
// caller can retry the whole episode.
func (r *EmbedderRegistry) EmbedAll(ctx context.Context, text string) (map[string][]float32, error) {
	r.mu.RLock()
	names := make([]string, len(r.names))
	copy(names, r.names)
	r.mu.RUnlock()

	if len(names) == 0 {
		return nil, ErrNoProviders
	}

	vectors := make(map[string][]float32, len(names))
	for _, name := range names {
		e, err := r.Get(name)
		if err != nil {
			return nil, err
		}
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("capability: embed via %s: %w", name, err)
		}
		vectors[name] = vec
	}
	return vectors, nil
}

// Reset removes all providers. Test teardown contract.
func (r *EmbedderRegistry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names = nil
	r.backends = make(map[string]Embedder)
}

// RateLimitedEmbedder wraps an Embedder with a token-bucket limiter so a
// burst of episode closures cannot overload the external backend.
type RateLimitedEmbedder struct {
	inner   Embedder
	limiter *rate.Limiter
}

// NewRateLimitedEmbedder wraps inner with the given sustained rate and burst.
func NewRateLimitedEmbedder(inner Embedder, rps float64, burst int) *RateLimitedEmbedder {
	return &RateLimitedEmbedder{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// Embed waits for limiter capacity, then delegates.
func (e *RateLimitedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return e.inner.Embed(ctx, text)
}

// Dimensions delegates to the wrapped provider.
func (e *RateLimitedEmbedder) Dimensions() int {
	return e.inner.Dimensions()
}
