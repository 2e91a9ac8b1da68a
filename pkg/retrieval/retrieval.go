// Package retrieval serves the four episode query modes: temporal,
// semantic, sequential, and contextual. Retrieval is read-only except
// for the access bookkeeping that feeds decay.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/atriumhq/atrium/config"
	"github.com/atriumhq/atrium/pkg/capability"
	"github.com/atriumhq/atrium/pkg/episode"
	"github.com/atriumhq/atrium/pkg/index"
	"github.com/atriumhq/atrium/pkg/store"
)

// Sentinel errors for retrieval queries.
var (
	ErrEmptyQuery = errors.New("retrieval: empty query text")
)

// retrievalLogger is the minimal logger interface used by the Engine.
type retrievalLogger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(msg string, args ...any) {}
func (nopLogger) Warn(msg string, args ...any)  {}

// Result is an ordered, deduplicated list of episode views.
type Result struct {
	// Episodes are the projected views in mode-specific order.
	Episodes []*episode.View `json:"episodes"`

	// Total is the number of matching episodes before pagination.
	// Only the temporal mode paginates; other modes set it to the
	// returned count.
	Total int `json:"total"`
}

// TemporalQuery filters by time range and paginates.
type TemporalQuery struct {
	UserID  string
	AgentID string
	From    time.Time
	To      time.Time
	Limit   int
	Offset  int
	Detail  episode.DetailLevel
}

// SemanticQuery runs nearest-neighbor search over episode summaries.
type SemanticQuery struct {
	UserID    string
	SessionID string
	Text      string
	Limit     int

	// MinSimilarity overrides the configured floor when > 0.
	MinSimilarity float64
	Detail        episode.DetailLevel
}

// ContextualQuery blends recency and similarity, with optional
// canvas-type and business-data filters.
type ContextualQuery struct {
	UserID    string
	SessionID string
	Text      string
	Limit     int

	// CanvasType keeps only episodes that presented this canvas variant.
	CanvasType episode.CanvasType

	// DataKey/DataValue keep only episodes whose critical data points
	// contain the key (and value, when DataValue is set).
	DataKey   string
	DataValue string

	// BoostFeedback adds the weighted feedback score to the blend.
	BoostFeedback bool

	Detail episode.DetailLevel
}

// Engine answers episode queries against the store and vector index.
type Engine struct {
	// cfgMu guards the hot-reloadable similarity floor.
	cfgMu     sync.RWMutex
	cfg       config.RetrievalConfig
	store     store.EpisodeStore
	index     index.Index
	embedders *capability.EmbedderRegistry
	logger    retrievalLogger
	now       func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l retrievalLogger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithClock overrides the time source. Test hook.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates a retrieval engine.
func NewEngine(cfg config.RetrievalConfig, st store.EpisodeStore, idx index.Index,
	embedders *capability.EmbedderRegistry, opts ...Option) *Engine {

	e := &Engine{
		cfg:       cfg,
		store:     st,
		index:     idx,
		embedders: embedders,
		logger:    nopLogger{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// minSimilarity returns the current semantic similarity floor.
func (e *Engine) minSimilarity() float64 {
	e.cfgMu.RLock()
	defer e.cfgMu.RUnlock()
	return e.cfg.MinSimilarity
}

// Reconfigure applies hot-reloadable retrieval settings. Zero values
// leave the current setting untouched.
func (e *Engine) Reconfigure(minSimilarity float64) {
	e.cfgMu.Lock()
	defer e.cfgMu.Unlock()
	if minSimilarity > 0 {
		e.cfg.MinSimilarity = minSimilarity
	}
}

// Temporal returns episodes in a time range, newest first, paginated.
// Ordering is stable so repeated pages never skip or repeat rows.
func (e *Engine) Temporal(ctx context.Context, q TemporalQuery) (*Result, error) {
	if q.UserID == "" {
		return nil, episode.ErrInvalidUserID
	}
	detail, limit := e.normalize(q.Detail, q.Limit)

	eps, total, err := e.store.ListByUser(ctx, q.UserID, store.ListOptions{
		From:    q.From,
		To:      q.To,
		AgentID: q.AgentID,
		Limit:   limit,
		Offset:  q.Offset,
	})
	if err != nil {
		return nil, fmt.Errorf("retrieval: temporal query: %w", err)
	}

	views := e.project(ctx, dedup(eps), detail, nil)
	return &Result{Episodes: views, Total: total}, nil
}

// Semantic embeds the query text and ranks episodes by similarity
// descending, dropping matches below the similarity floor.
func (e *Engine) Semantic(ctx context.Context, q SemanticQuery) (*Result, error) {
	if q.UserID == "" {
		return nil, episode.ErrInvalidUserID
	}
	if q.Text == "" {
		return nil, ErrEmptyQuery
	}
	detail, limit := e.normalize(q.Detail, q.Limit)

	minSim := q.MinSimilarity
	if minSim <= 0 {
		minSim = e.minSimilarity()
	}

	vec, err := e.embedQuery(ctx, q.Text)
	if err != nil {
		return nil, err
	}

	matches, err := e.index.Search(ctx, vec, index.SearchOptions{
		UserID:        q.UserID,
		SessionID:     q.SessionID,
		TopK:          limit,
		MinSimilarity: minSim,
	})
	if err != nil {
		return nil, fmt.Errorf("retrieval: semantic search: %w", err)
	}

	scores := make(map[string]float64, len(matches))
	eps := make([]*episode.Episode, 0, len(matches))
	for _, m := range matches {
		ep, err := e.store.Get(ctx, m.ID)
		if err != nil {
			if errors.Is(err, episode.ErrNotFound) {
				// Index entry outlived its row; skip.
				continue
			}
			return nil, fmt.Errorf("retrieval: load match %s: %w", m.ID, err)
		}
		if !ep.Retrievable() {
			continue
		}
		scores[ep.ID] = m.Similarity
		eps = append(eps, ep)
	}

	views := e.project(ctx, dedup(eps), detail, scores)
	return &Result{Episodes: views, Total: len(views)}, nil
}

// Sequential returns every episode of a session in chronological order.
// Completeness is the guarantee: no truncation, no pagination.
func (e *Engine) Sequential(ctx context.Context, userID, sessionID string, detail episode.DetailLevel, includeArchived bool) (*Result, error) {
	if userID == "" {
		return nil, episode.ErrInvalidUserID
	}
	if sessionID == "" {
		return nil, episode.ErrInvalidSessionID
	}
	if detail == "" {
		detail = episode.DetailSummary
	}

	eps, err := e.store.ListBySession(ctx, userID, sessionID, includeArchived)
	if err != nil {
		return nil, fmt.Errorf("retrieval: sequential query: %w", err)
	}

	views := e.project(ctx, dedup(eps), detail, nil)
	return &Result{Episodes: views, Total: len(views)}, nil
}

// Contextual blends temporal recency and semantic similarity with the
// configured weights, optionally boosted by feedback, and supports
// canvas-type and critical-data filters.
func (e *Engine) Contextual(ctx context.Context, q ContextualQuery) (*Result, error) {
	if q.UserID == "" {
		return nil, episode.ErrInvalidUserID
	}
	if q.Text == "" {
		return nil, ErrEmptyQuery
	}
	if q.CanvasType != "" && !q.CanvasType.Valid() {
		return nil, episode.ErrInvalidCanvasType
	}
	detail, limit := e.normalize(q.Detail, q.Limit)

	vec, err := e.embedQuery(ctx, q.Text)
	if err != nil {
		return nil, err
	}

	// Over-fetch so post-filters still fill the limit.
	matches, err := e.index.Search(ctx, vec, index.SearchOptions{
		UserID:    q.UserID,
		SessionID: q.SessionID,
		TopK:      limit * 4,
	})
	if err != nil {
		return nil, fmt.Errorf("retrieval: contextual search: %w", err)
	}

	now := e.now()
	scores := make(map[string]float64, len(matches))
	eps := make([]*episode.Episode, 0, len(matches))
	for _, m := range matches {
		ep, err := e.store.Get(ctx, m.ID)
		if err != nil {
			if errors.Is(err, episode.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("retrieval: load match %s: %w", m.ID, err)
		}
		if !ep.Retrievable() || !matchesFilters(ep, q) {
			continue
		}

		score := e.cfg.SimilarityWeight*m.Similarity +
			e.cfg.RecencyWeight*e.recency(now, ep.EndTime)
		if q.BoostFeedback && ep.FeedbackScore != nil {
			score += e.cfg.FeedbackBoostWeight * *ep.FeedbackScore
		}
		// Duplicate suppression keeps the best-scored instance of an ID.
		if prev, seen := scores[ep.ID]; seen {
			if score > prev {
				scores[ep.ID] = score
			}
			continue
		}
		scores[ep.ID] = score
		eps = append(eps, ep)
	}

	eps = dedup(eps)
	sort.SliceStable(eps, func(i, j int) bool {
		si, sj := scores[eps[i].ID], scores[eps[j].ID]
		if si != sj {
			return si > sj
		}
		return eps[i].ID < eps[j].ID
	})
	if len(eps) > limit {
		eps = eps[:limit]
	}

	views := e.project(ctx, eps, detail, scores)
	return &Result{Episodes: views, Total: len(views)}, nil
}

// normalize applies detail and limit defaults and bounds.
func (e *Engine) normalize(detail episode.DetailLevel, limit int) (episode.DetailLevel, int) {
	if detail == "" {
		detail = episode.DetailSummary
	}
	if limit <= 0 {
		limit = e.cfg.DefaultLimit
	}
	if e.cfg.MaxLimit > 0 && limit > e.cfg.MaxLimit {
		limit = e.cfg.MaxLimit
	}
	return detail, limit
}

// recency maps episode age onto (0,1] with an exponential half-life.
func (e *Engine) recency(now, endTime time.Time) float64 {
	halfLife := e.cfg.RecencyHalfLife
	if halfLife <= 0 {
		halfLife = 7 * 24 * time.Hour
	}
	age := now.Sub(endTime)
	if age <= 0 {
		return 1.0
	}
	return math.Exp2(-float64(age) / float64(halfLife))
}

// embedQuery embeds query text with the primary provider.
func (e *Engine) embedQuery(ctx context.Context, text string) ([]float32, error) {
	_, emb, err := e.embedders.Primary()
	if err != nil {
		return nil, err
	}
	vec, err := emb.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", episode.ErrIndexUnavailable, err)
	}
	return vec, nil
}

// project builds views and records the access on each returned episode.
// Access bookkeeping failures are logged, never surfaced.
func (e *Engine) project(ctx context.Context, eps []*episode.Episode, detail episode.DetailLevel, scores map[string]float64) []*episode.View {
	views := make([]*episode.View, 0, len(eps))
	now := e.now().UTC()
	for _, ep := range eps {
		v := episode.Project(ep, detail)
		if scores != nil {
			v.Score = scores[ep.ID]
		}
		views = append(views, v)

		if ep.Status == episode.StatusArchived {
			continue
		}
		if _, err := e.store.Update(ctx, ep.ID, func(row *episode.Episode) error {
			row.Touch(now)
			return nil
		}); err != nil {
			e.logger.Warn("access bookkeeping failed",
				"episode_id", ep.ID, "error", err)
		}
	}
	return views
}

// matchesFilters applies the contextual canvas and business-data filters.
func matchesFilters(ep *episode.Episode, q ContextualQuery) bool {
	if q.CanvasType != "" {
		if ep.Canvas == nil || ep.Canvas.Type != q.CanvasType {
			return false
		}
	}
	if q.DataKey != "" {
		if ep.Canvas == nil {
			return false
		}
		v, ok := ep.Canvas.CriticalDataPoints[q.DataKey]
		if !ok {
			return false
		}
		if q.DataValue != "" && v != q.DataValue {
			return false
		}
	}
	return true
}

// dedup drops repeated episode IDs, keeping first occurrence order.
func dedup(eps []*episode.Episode) []*episode.Episode {
	seen := make(map[string]struct{}, len(eps))
	out := eps[:0]
	for _, ep := range eps {
		if _, ok := seen[ep.ID]; ok {
			continue
		}
		seen[ep.ID] = struct{}{}
		out = append(out, ep)
	}
	return out
}
