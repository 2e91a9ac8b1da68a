package retrieval

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/atriumhq/atrium/config"
	"github.com/atriumhq/atrium/pkg/capability"
	"github.com/atriumhq/atrium/pkg/episode"
	"github.com/atriumhq/atrium/pkg/index"
	"github.com/atriumhq/atrium/pkg/store"
)

var baseTime = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

// stubEmbedder gives queries fixed vectors so rankings are deterministic.
type stubEmbedder struct {
	vectors map[string][]float32
	def     []float32
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := s.vectors[text]; ok {
		return v, nil
	}
	return s.def, nil
}

func (s *stubEmbedder) Dimensions() int { return len(s.def) }

type fixture struct {
	engine *Engine
	store  *store.BadgerStore
	index  *index.BruteIndex
	now    time.Time
}

func newFixture(t *testing.T, emb *stubEmbedder) *fixture {
	t.Helper()

	st, err := store.Open(store.Config{CacheSize: 16})
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	idx := index.NewBruteIndex(4)
	reg := capability.NewEmbedderRegistry()
	reg.Register("stub", emb)

	f := &fixture{store: st, index: idx, now: baseTime}
	cfg := config.RetrievalConfig{
		DefaultLimit:        10,
		MaxLimit:            100,
		MinSimilarity:       0.3,
		RecencyWeight:       0.5,
		SimilarityWeight:    0.5,
		RecencyHalfLife:     7 * 24 * time.Hour,
		FeedbackBoostWeight: 0.1,
	}
	f.engine = NewEngine(cfg, st, idx, reg, WithClock(func() time.Time { return f.now }))
	return f
}

type seed struct {
	id        string
	sessionID string
	start     time.Time
	vector    []float32
	canvas    *episode.CanvasContext
	feedback  *float64
	status    episode.Status
}

func (f *fixture) seed(t *testing.T, s seed) {
	t.Helper()
	if s.status == "" {
		s.status = episode.StatusActive
	}
	ep := &episode.Episode{
		ID:          s.id,
		SessionID:   s.sessionID,
		AgentID:     "agent-1",
		UserID:      "user-1",
		StartTime:   s.start,
		EndTime:     s.start.Add(5 * time.Minute),
		SummaryText: "summary of " + s.id,
		Canvas:      s.canvas,
		FeedbackScore: s.feedback,
		Status:      s.status,
		DecayScore:  1.0,
		CreatedAt:   s.start,
	}
	if err := f.store.Put(context.Background(), ep); err != nil {
		t.Fatalf("seed Put(%s) error = %v", s.id, err)
	}
	if s.vector != nil {
		err := f.index.Add(context.Background(), index.Entry{
			ID: s.id, UserID: "user-1", SessionID: s.sessionID, Vector: s.vector,
		})
		if err != nil {
			t.Fatalf("seed Add(%s) error = %v", s.id, err)
		}
	}
}

func ids(r *Result) []string {
	out := make([]string, len(r.Episodes))
	for i, v := range r.Episodes {
		out[i] = v.ID
	}
	return out
}

func TestTemporalOrderingAndPagination(t *testing.T) {
	f := newFixture(t, &stubEmbedder{def: []float32{1, 0, 0, 0}})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		f.seed(t, seed{
			id:        fmt.Sprintf("ep-%d", i),
			sessionID: fmt.Sprintf("sess-%d", i),
			start:     baseTime.Add(time.Duration(i) * time.Hour),
		})
	}

	page1, err := f.engine.Temporal(ctx, TemporalQuery{UserID: "user-1", Limit: 2})
	if err != nil {
		t.Fatalf("Temporal() error = %v", err)
	}
	if page1.Total != 5 {
		t.Errorf("Total = %d, want 5", page1.Total)
	}
	if got := ids(page1); len(got) != 2 || got[0] != "ep-4" || got[1] != "ep-3" {
		t.Errorf("page1 = %v, want [ep-4 ep-3]", got)
	}

	page2, err := f.engine.Temporal(ctx, TemporalQuery{UserID: "user-1", Limit: 2, Offset: 2})
	if err != nil {
		t.Fatalf("Temporal() error = %v", err)
	}
	if got := ids(page2); len(got) != 2 || got[0] != "ep-2" || got[1] != "ep-1" {
		t.Errorf("page2 = %v, want [ep-2 ep-1]", got)
	}

	// Time-range filter.
	ranged, err := f.engine.Temporal(ctx, TemporalQuery{
		UserID: "user-1",
		From:   baseTime.Add(90 * time.Minute),
		To:     baseTime.Add(4 * time.Hour),
	})
	if err != nil {
		t.Fatalf("Temporal() error = %v", err)
	}
	if got := ids(ranged); len(got) != 3 || got[0] != "ep-4" {
		t.Errorf("ranged = %v, want [ep-4 ep-3 ep-2]", got)
	}
}

func TestTemporalRequiresUserID(t *testing.T) {
	f := newFixture(t, &stubEmbedder{def: []float32{1, 0, 0, 0}})
	_, err := f.engine.Temporal(context.Background(), TemporalQuery{})
	if !errors.Is(err, episode.ErrInvalidUserID) {
		t.Errorf("Temporal() error = %v, want ErrInvalidUserID", err)
	}
}

func TestSemanticRankingAndThreshold(t *testing.T) {
	emb := &stubEmbedder{
		def: []float32{1, 0, 0, 0},
		vectors: map[string][]float32{
			"query": {1, 0, 0, 0},
		},
	}
	f := newFixture(t, emb)
	ctx := context.Background()

	f.seed(t, seed{id: "exact", sessionID: "s1", start: baseTime, vector: []float32{1, 0, 0, 0}})
	f.seed(t, seed{id: "close", sessionID: "s2", start: baseTime.Add(time.Hour), vector: []float32{0.9, 0.43, 0, 0}})
	f.seed(t, seed{id: "far", sessionID: "s3", start: baseTime.Add(2 * time.Hour), vector: []float32{0, 0, 1, 0}})

	res, err := f.engine.Semantic(ctx, SemanticQuery{UserID: "user-1", Text: "query"})
	if err != nil {
		t.Fatalf("Semantic() error = %v", err)
	}

	got := ids(res)
	if len(got) != 2 || got[0] != "exact" || got[1] != "close" {
		t.Errorf("results = %v, want [exact close]", got)
	}
	if res.Episodes[0].Score < res.Episodes[1].Score {
		t.Error("results must be ranked by descending score")
	}
	for _, v := range res.Episodes {
		if v.Score < 0.3 {
			t.Errorf("score %v below threshold leaked into results", v.Score)
		}
	}
}

func TestReconfigureRaisesSimilarityFloor(t *testing.T) {
	emb := &stubEmbedder{
		def: []float32{1, 0, 0, 0},
		vectors: map[string][]float32{
			"query": {1, 0, 0, 0},
		},
	}
	f := newFixture(t, emb)
	ctx := context.Background()

	f.seed(t, seed{id: "exact", sessionID: "s1", start: baseTime, vector: []float32{1, 0, 0, 0}})
	f.seed(t, seed{id: "close", sessionID: "s2", start: baseTime.Add(time.Hour), vector: []float32{0.9, 0.43, 0, 0}})

	f.engine.Reconfigure(0.95)
	res, err := f.engine.Semantic(ctx, SemanticQuery{UserID: "user-1", Text: "query"})
	if err != nil {
		t.Fatalf("Semantic() error = %v", err)
	}
	if got := ids(res); len(got) != 1 || got[0] != "exact" {
		t.Errorf("results = %v, want only [exact] after raising the floor", got)
	}

	// A per-query override still wins over the reconfigured floor.
	res, err = f.engine.Semantic(ctx, SemanticQuery{UserID: "user-1", Text: "query", MinSimilarity: 0.3})
	if err != nil {
		t.Fatalf("Semantic() error = %v", err)
	}
	if got := ids(res); len(got) != 2 {
		t.Errorf("results = %v, want both with the per-query floor", got)
	}
}

func TestSemanticRejectsEmptyQuery(t *testing.T) {
	f := newFixture(t, &stubEmbedder{def: []float32{1, 0, 0, 0}})
	_, err := f.engine.Semantic(context.Background(), SemanticQuery{UserID: "user-1"})
	if !errors.Is(err, ErrEmptyQuery) {
		t.Errorf("Semantic() error = %v, want ErrEmptyQuery", err)
	}
}

func TestSemanticSkipsPendingEpisodes(t *testing.T) {
	emb := &stubEmbedder{def: []float32{1, 0, 0, 0}}
	f := newFixture(t, emb)

	f.seed(t, seed{id: "ready", sessionID: "s1", start: baseTime, vector: []float32{1, 0, 0, 0}})
	f.seed(t, seed{id: "half", sessionID: "s2", start: baseTime.Add(time.Hour),
		vector: []float32{1, 0, 0, 0}, status: episode.StatusPending})

	res, err := f.engine.Semantic(context.Background(), SemanticQuery{UserID: "user-1", Text: "query"})
	if err != nil {
		t.Fatalf("Semantic() error = %v", err)
	}
	if got := ids(res); len(got) != 1 || got[0] != "ready" {
		t.Errorf("results = %v, want only [ready]", got)
	}
}

func TestSequentialCompleteness(t *testing.T) {
	f := newFixture(t, &stubEmbedder{def: []float32{1, 0, 0, 0}})
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		f.seed(t, seed{
			id:        fmt.Sprintf("ep-%d", i),
			sessionID: "sess-1",
			start:     baseTime.Add(time.Duration(i) * time.Hour),
		})
	}

	res, err := f.engine.Sequential(ctx, "user-1", "sess-1", episode.DetailSummary, false)
	if err != nil {
		t.Fatalf("Sequential() error = %v", err)
	}
	got := ids(res)
	if len(got) != 4 {
		t.Fatalf("Sequential() returned %d episodes, want all 4", len(got))
	}
	for i, id := range got {
		if want := fmt.Sprintf("ep-%d", i); id != want {
			t.Errorf("position %d = %s, want %s (chronological)", i, id, want)
		}
	}
}

func TestSequentialIncludesArchivedOnRequest(t *testing.T) {
	f := newFixture(t, &stubEmbedder{def: []float32{1, 0, 0, 0}})
	ctx := context.Background()

	f.seed(t, seed{id: "old", sessionID: "sess-1", start: baseTime})
	f.seed(t, seed{id: "new", sessionID: "sess-1", start: baseTime.Add(time.Hour)})
	if err := f.store.Archive(ctx, "old"); err != nil {
		t.Fatalf("Archive() error = %v", err)
	}

	res, err := f.engine.Sequential(ctx, "user-1", "sess-1", episode.DetailSummary, false)
	if err != nil {
		t.Fatalf("Sequential() error = %v", err)
	}
	if got := ids(res); len(got) != 1 || got[0] != "new" {
		t.Errorf("default results = %v, want [new]", got)
	}

	res, err = f.engine.Sequential(ctx, "user-1", "sess-1", episode.DetailSummary, true)
	if err != nil {
		t.Fatalf("Sequential() error = %v", err)
	}
	if got := ids(res); len(got) != 2 || got[0] != "old" {
		t.Errorf("archived results = %v, want [old new]", got)
	}
}

func TestContextualBlendsRecencyAndSimilarity(t *testing.T) {
	emb := &stubEmbedder{
		def:     []float32{1, 0, 0, 0},
		vectors: map[string][]float32{"query": {1, 0, 0, 0}},
	}
	f := newFixture(t, emb)
	ctx := context.Background()

	// Recent but dissimilar vs old but identical. With 0.5/0.5 weights
	// the fresh episode wins: recency 1.0 beats a decayed exact match.
	f.seed(t, seed{id: "fresh", sessionID: "s1",
		start: baseTime.Add(-10 * time.Minute), vector: []float32{0.72, 0.7, 0, 0}})
	f.seed(t, seed{id: "stale", sessionID: "s2",
		start: baseTime.Add(-28 * 24 * time.Hour), vector: []float32{1, 0, 0, 0}})

	res, err := f.engine.Contextual(ctx, ContextualQuery{UserID: "user-1", Text: "query"})
	if err != nil {
		t.Fatalf("Contextual() error = %v", err)
	}
	got := ids(res)
	if len(got) != 2 || got[0] != "fresh" {
		t.Errorf("results = %v, want fresh ranked first", got)
	}
	if res.Episodes[0].Score <= res.Episodes[1].Score {
		t.Error("scores must be strictly ordered here")
	}
}

// echoIndex wraps an index and re-reports every match a second time with
// halved similarity, mimicking a backend that returns duplicate IDs.
type echoIndex struct {
	index.Index
}

func (e *echoIndex) Search(ctx context.Context, query []float32, opts index.SearchOptions) ([]index.Match, error) {
	matches, err := e.Index.Search(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	out := make([]index.Match, 0, 2*len(matches))
	for _, m := range matches {
		out = append(out, m)
	}
	for _, m := range matches {
		out = append(out, index.Match{ID: m.ID, Similarity: m.Similarity / 2})
	}
	return out, nil
}

func TestContextualDuplicateKeepsBestScore(t *testing.T) {
	emb := &stubEmbedder{
		def:     []float32{1, 0, 0, 0},
		vectors: map[string][]float32{"query": {1, 0, 0, 0}},
	}
	f := newFixture(t, emb)
	ctx := context.Background()

	f.seed(t, seed{id: "ep-1", sessionID: "s1",
		start: baseTime.Add(-10 * time.Minute), vector: []float32{1, 0, 0, 0}})

	reg := capability.NewEmbedderRegistry()
	reg.Register("stub", emb)
	engine := NewEngine(config.RetrievalConfig{
		DefaultLimit:     10,
		MaxLimit:         100,
		MinSimilarity:    0.3,
		RecencyWeight:    0.5,
		SimilarityWeight: 0.5,
		RecencyHalfLife:  7 * 24 * time.Hour,
	}, f.store, &echoIndex{Index: f.index}, reg,
		WithClock(func() time.Time { return f.now }))

	res, err := engine.Contextual(ctx, ContextualQuery{UserID: "user-1", Text: "query"})
	if err != nil {
		t.Fatalf("Contextual() error = %v", err)
	}
	if len(res.Episodes) != 1 {
		t.Fatalf("results = %d, want duplicate suppressed to 1", len(res.Episodes))
	}
	// The kept instance must carry the full-similarity score, not the
	// halved duplicate's (which would land near 0.75 here).
	if res.Episodes[0].Score < 0.9 {
		t.Errorf("Score = %v, want the higher-scored instance kept", res.Episodes[0].Score)
	}
}

func TestContextualCanvasAndDataFilters(t *testing.T) {
	emb := &stubEmbedder{
		def:     []float32{1, 0, 0, 0},
		vectors: map[string][]float32{"query": {1, 0, 0, 0}},
	}
	f := newFixture(t, emb)
	ctx := context.Background()

	f.seed(t, seed{id: "form-ep", sessionID: "s1", start: baseTime,
		vector: []float32{1, 0, 0, 0},
		canvas: &episode.CanvasContext{
			CanvasID: "cv-1", Type: episode.CanvasForm,
			CriticalDataPoints: map[string]string{"invoice": "INV-42"},
		}})
	f.seed(t, seed{id: "chart-ep", sessionID: "s2", start: baseTime,
		vector: []float32{1, 0, 0, 0},
		canvas: &episode.CanvasContext{CanvasID: "cv-2", Type: episode.CanvasChart}})
	f.seed(t, seed{id: "plain-ep", sessionID: "s3", start: baseTime,
		vector: []float32{1, 0, 0, 0}})

	res, err := f.engine.Contextual(ctx, ContextualQuery{
		UserID: "user-1", Text: "query", CanvasType: episode.CanvasForm,
	})
	if err != nil {
		t.Fatalf("Contextual() error = %v", err)
	}
	if got := ids(res); len(got) != 1 || got[0] != "form-ep" {
		t.Errorf("canvas filter results = %v, want [form-ep]", got)
	}

	res, err = f.engine.Contextual(ctx, ContextualQuery{
		UserID: "user-1", Text: "query", DataKey: "invoice", DataValue: "INV-42",
	})
	if err != nil {
		t.Fatalf("Contextual() error = %v", err)
	}
	if got := ids(res); len(got) != 1 || got[0] != "form-ep" {
		t.Errorf("data filter results = %v, want [form-ep]", got)
	}

	res, err = f.engine.Contextual(ctx, ContextualQuery{
		UserID: "user-1", Text: "query", DataKey: "invoice", DataValue: "INV-99",
	})
	if err != nil {
		t.Fatalf("Contextual() error = %v", err)
	}
	if len(res.Episodes) != 0 {
		t.Errorf("mismatched data value returned %v, want empty", ids(res))
	}

	if _, err := f.engine.Contextual(ctx, ContextualQuery{
		UserID: "user-1", Text: "query", CanvasType: "hologram",
	}); !errors.Is(err, episode.ErrInvalidCanvasType) {
		t.Errorf("unknown canvas type error = %v, want ErrInvalidCanvasType", err)
	}
}

func TestContextualFeedbackBoost(t *testing.T) {
	emb := &stubEmbedder{
		def:     []float32{1, 0, 0, 0},
		vectors: map[string][]float32{"query": {1, 0, 0, 0}},
	}
	f := newFixture(t, emb)
	ctx := context.Background()

	liked := 1.0
	f.seed(t, seed{id: "liked", sessionID: "s1", start: baseTime,
		vector: []float32{1, 0, 0, 0}, feedback: &liked})
	f.seed(t, seed{id: "neutral", sessionID: "s2", start: baseTime,
		vector: []float32{1, 0, 0, 0}})

	res, err := f.engine.Contextual(ctx, ContextualQuery{
		UserID: "user-1", Text: "query", BoostFeedback: true,
	})
	if err != nil {
		t.Fatalf("Contextual() error = %v", err)
	}
	if got := ids(res); got[0] != "liked" {
		t.Errorf("results = %v, want liked first with feedback boost", got)
	}
}

func TestRetrievalTouchesEpisodes(t *testing.T) {
	f := newFixture(t, &stubEmbedder{def: []float32{1, 0, 0, 0}})
	ctx := context.Background()

	f.seed(t, seed{id: "ep-1", sessionID: "sess-1", start: baseTime})

	if _, err := f.engine.Temporal(ctx, TemporalQuery{UserID: "user-1"}); err != nil {
		t.Fatalf("Temporal() error = %v", err)
	}

	got, err := f.store.Get(ctx, "ep-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.AccessCount != 1 {
		t.Errorf("AccessCount = %d, want 1", got.AccessCount)
	}
	if got.LastAccessedAt.IsZero() {
		t.Error("LastAccessedAt should be set")
	}
}

func TestDetailLevelDoesNotChangeSelection(t *testing.T) {
	f := newFixture(t, &stubEmbedder{def: []float32{1, 0, 0, 0}})
	ctx := context.Background()

	f.seed(t, seed{id: "ep-1", sessionID: "sess-1", start: baseTime,
		canvas: &episode.CanvasContext{
			CanvasID: "cv-1", Type: episode.CanvasTable,
			VisualElements:     []string{"amount", "vendor"},
			CriticalDataPoints: map[string]string{"total": "120.50"},
		}})

	var lastIDs []string
	for _, detail := range []episode.DetailLevel{episode.DetailSummary, episode.DetailStandard, episode.DetailFull} {
		res, err := f.engine.Temporal(ctx, TemporalQuery{UserID: "user-1", Detail: detail})
		if err != nil {
			t.Fatalf("Temporal(%s) error = %v", detail, err)
		}
		got := ids(res)
		if lastIDs != nil && len(got) != len(lastIDs) {
			t.Errorf("detail %s changed selection: %v vs %v", detail, got, lastIDs)
		}
		lastIDs = got

		v := res.Episodes[0]
		switch detail {
		case episode.DetailSummary:
			if v.VisualElements != nil || v.CriticalDataPoints != nil {
				t.Error("summary view must not carry canvas detail")
			}
		case episode.DetailStandard:
			if len(v.VisualElements) != 2 {
				t.Errorf("standard view VisualElements = %v", v.VisualElements)
			}
			if v.CriticalDataPoints != nil {
				t.Error("standard view must not carry critical data points")
			}
		case episode.DetailFull:
			if v.CriticalDataPoints["total"] != "120.50" {
				t.Errorf("full view CriticalDataPoints = %v", v.CriticalDataPoints)
			}
		}
	}
}
