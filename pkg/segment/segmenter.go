package segment

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/atriumhq/atrium/config"
	"github.com/atriumhq/atrium/pkg/capability"
	"github.com/atriumhq/atrium/pkg/episode"
	"github.com/atriumhq/atrium/pkg/events"
	"github.com/atriumhq/atrium/pkg/index"
	"github.com/atriumhq/atrium/pkg/store"
)

// CloseReason records which boundary rule closed an episode.
type CloseReason string

const (
	CloseTimeGap      CloseReason = "time_gap"
	CloseTopicShift   CloseReason = "topic_shift"
	CloseTaskComplete CloseReason = "task_complete"
	CloseExplicit     CloseReason = "explicit"
	CloseIdleSweep    CloseReason = "idle_sweep"
)

// segmentLogger is the minimal logger interface used by the Segmenter.
type segmentLogger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// nopLogger is a no-op logger.
type nopLogger struct{}

func (nopLogger) Debug(msg string, args ...any) {}
func (nopLogger) Info(msg string, args ...any)  {}
func (nopLogger) Warn(msg string, args ...any)  {}
func (nopLogger) Error(msg string, args ...any) {}

// segmentMetrics is the slice of the metrics manager the segmenter
// reports to.
type segmentMetrics interface {
	RecordEpisodeClosed(reason, summarySource string)
	RecordTurnIngested()
	RecordPublishFailure()
	SetOpenEpisodes(n int)
	SetRetryQueueDepth(n int)
}

// openEpisode accumulates the turns of one session since the last boundary.
type openEpisode struct {
	mu sync.Mutex

	meta   SessionMeta
	turns  []Turn
	audits []*episode.CanvasAudit

	// vecSum/vecCount hold the running topic centroid of the turn
	// embeddings. vecCount can lag len(turns) when embedding a turn
	// failed; the topic rule degrades to "same topic" in that case.
	vecSum   []float32
	vecCount int

	feedbackSum   float64
	feedbackCount int

	lastTurnAt time.Time
}

func (o *openEpisode) centroid() []float32 {
	if o.vecCount == 0 {
		return nil
	}
	c := make([]float32, len(o.vecSum))
	n := float32(o.vecCount)
	for i, v := range o.vecSum {
		c[i] = v / n
	}
	return c
}

func (o *openEpisode) fold(vec []float32) {
	if vec == nil {
		return
	}
	if o.vecSum == nil {
		o.vecSum = make([]float32, len(vec))
	}
	if len(vec) != len(o.vecSum) {
		return
	}
	for i, v := range vec {
		o.vecSum[i] += v
	}
	o.vecCount++
}

// Segmenter turns session turn streams into episodes. One goroutine may
// append per session at a time; appends to distinct sessions run
// concurrently.
// unsavedEpisode is a materialized episode whose store write failed.
// The row itself could not be persisted, so it is held here and retried;
// the durable queue only covers the embed/index half.
type unsavedEpisode struct {
	ep        *episode.Episode
	reason    CloseReason
	turnCount int
}

type Segmenter struct {
	mu       sync.Mutex
	sessions map[string]*openEpisode

	unsavedMu sync.Mutex
	unsaved   map[string]*unsavedEpisode

	// cfgMu guards the hot-reloadable boundary settings.
	cfgMu sync.RWMutex

	cfg            config.SegmentationConfig
	summaryTimeout time.Duration

	store      store.EpisodeStore
	index      index.Index
	embedders  *capability.EmbedderRegistry
	summarizer capability.Summarizer
	retry      *RetryQueue
	events     *events.Broadcaster
	logger     segmentLogger
	metrics    segmentMetrics

	now func() time.Time

	stopCh  chan struct{}
	started bool
}

// Option configures a Segmenter.
type Option func(*Segmenter)

// WithLogger sets the logger.
func WithLogger(l segmentLogger) Option {
	return func(s *Segmenter) { s.logger = l }
}

// WithEvents sets the event broadcaster.
func WithEvents(b *events.Broadcaster) Option {
	return func(s *Segmenter) { s.events = b }
}

// WithRetryQueue sets the durable retry queue for failed publishes.
func WithRetryQueue(q *RetryQueue) Option {
	return func(s *Segmenter) { s.retry = q }
}

// WithMetrics sets the segmentation metrics recorder.
func WithMetrics(rec segmentMetrics) Option {
	return func(s *Segmenter) { s.metrics = rec }
}

// WithSummaryTimeout caps one summarization call.
func WithSummaryTimeout(d time.Duration) Option {
	return func(s *Segmenter) { s.summaryTimeout = d }
}

// WithClock overrides the time source. Test hook.
func WithClock(now func() time.Time) Option {
	return func(s *Segmenter) { s.now = now }
}

// NewSegmenter creates a Segmenter from configuration and collaborators.
// The summarizer may be nil; episodes then always carry metadata summaries.
func NewSegmenter(cfg config.SegmentationConfig, st store.EpisodeStore, idx index.Index,
	embedders *capability.EmbedderRegistry, summarizer capability.Summarizer, opts ...Option) *Segmenter {

	s := &Segmenter{
		sessions:       make(map[string]*openEpisode),
		unsaved:        make(map[string]*unsavedEpisode),
		cfg:            cfg,
		summaryTimeout: 5 * time.Second,
		store:          st,
		index:          idx,
		embedders:      embedders,
		summarizer:     summarizer,
		logger:         nopLogger{},
		now:            time.Now,
		stopCh:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// topicThreshold returns the current topic-shift boundary threshold.
func (s *Segmenter) topicThreshold() float64 {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return s.cfg.TopicThreshold
}

// Reconfigure applies hot-reloadable segmentation settings. Zero values
// leave the current setting untouched.
func (s *Segmenter) Reconfigure(topicThreshold float64) {
	s.cfgMu.Lock()
	defer s.cfgMu.Unlock()
	if topicThreshold > 0 {
		s.cfg.TopicThreshold = topicThreshold
	}
	s.logger.Info("segmentation settings updated",
		"topic_threshold", s.cfg.TopicThreshold)
}

// Start launches the idle sweep and retry workers. It returns immediately.
func (s *Segmenter) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("segment: already started")
	}
	s.started = true

	go s.idleSweepLoop(ctx)
	if s.retry != nil {
		go s.retryLoop(ctx)
	}

	s.logger.Info("segmenter started",
		"idle_gap", s.cfg.IdleGap,
		"topic_threshold", s.cfg.TopicThreshold,
	)
	return nil
}

// Stop closes every open episode and stops the background workers.
func (s *Segmenter) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	close(s.stopCh)
	s.mu.Unlock()

	s.closeAll(ctx, CloseExplicit)
	s.flushUnsaved(ctx)

	s.unsavedMu.Lock()
	if n := len(s.unsaved); n > 0 {
		s.logger.Error("episodes lost at shutdown, store still failing", "count", n)
	}
	s.unsavedMu.Unlock()

	s.logger.Info("segmenter stopped")
	return nil
}

// Append feeds one turn into the session stream. It returns the episode
// that the turn closed, or nil when the episode stays open. Boundary
// rules: a silence longer than the idle gap or a topic shift closes the
// open episode before the turn; a terminal turn closes it after.
func (s *Segmenter) Append(ctx context.Context, meta SessionMeta, turn Turn) (*episode.Episode, error) {
	if meta.UserID == "" {
		return nil, episode.ErrInvalidUserID
	}
	if meta.SessionID == "" {
		return nil, episode.ErrInvalidSessionID
	}
	if meta.AgentID == "" {
		return nil, episode.ErrInvalidAgentID
	}

	open := s.session(meta)
	open.mu.Lock()
	defer open.mu.Unlock()

	if len(open.turns) > 0 && turn.Timestamp.Before(open.lastTurnAt) {
		return nil, fmt.Errorf("%w: turn %d at %s, last %s",
			ErrOutOfOrderTurn, turn.Index, turn.Timestamp.Format(time.RFC3339), open.lastTurnAt.Format(time.RFC3339))
	}

	var closed *episode.Episode

	// Rule 1: idle gap closes the open episode before the new turn.
	if len(open.turns) > 0 && turn.Timestamp.Sub(open.lastTurnAt) > s.cfg.IdleGap {
		closed = s.closeLocked(ctx, open, CloseTimeGap)
	}

	// Rule 2: topic shift against the running centroid.
	vec := s.embedTurn(ctx, turn)
	if closed == nil && len(open.turns) > 0 && vec != nil {
		if c := open.centroid(); c != nil {
			if sim := index.Cosine(c, vec); sim < s.topicThreshold() {
				s.logger.Debug("topic shift boundary",
					"session_id", meta.SessionID, "similarity", sim)
				closed = s.closeLocked(ctx, open, CloseTopicShift)
			}
		}
	}

	open.meta = meta
	open.turns = append(open.turns, turn)
	open.lastTurnAt = turn.Timestamp
	open.fold(vec)
	if turn.Canvas != nil {
		open.audits = append(open.audits, turn.Canvas)
	}
	if turn.Feedback != nil {
		open.feedbackSum += *turn.Feedback
		open.feedbackCount++
	}

	if s.metrics != nil {
		s.metrics.RecordTurnIngested()
	}

	// Rule 3: task completion closes after the turn is appended.
	if turn.Terminal {
		closed = s.closeLocked(ctx, open, CloseTaskComplete)
	}

	return closed, nil
}

// CloseSession force-closes the open episode of a session.
func (s *Segmenter) CloseSession(ctx context.Context, userID, sessionID string) (*episode.Episode, error) {
	s.mu.Lock()
	open, ok := s.sessions[sessionKey(userID, sessionID)]
	s.mu.Unlock()
	if !ok {
		return nil, ErrNoOpenEpisode
	}

	open.mu.Lock()
	defer open.mu.Unlock()
	if len(open.turns) == 0 {
		return nil, ErrNoOpenEpisode
	}
	return s.closeLocked(ctx, open, CloseExplicit), nil
}

// OpenSessions returns the number of sessions with an open episode.
func (s *Segmenter) OpenSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, open := range s.sessions {
		open.mu.Lock()
		if len(open.turns) > 0 {
			n++
		}
		open.mu.Unlock()
	}
	return n
}

// SweepIdle closes every open episode whose last turn is older than the
// idle gap. Returns the number of episodes closed.
func (s *Segmenter) SweepIdle(ctx context.Context) int {
	cutoff := s.now().Add(-s.cfg.IdleGap)

	s.mu.Lock()
	candidates := make([]*openEpisode, 0, len(s.sessions))
	for _, open := range s.sessions {
		candidates = append(candidates, open)
	}
	s.mu.Unlock()

	closed := 0
	for _, open := range candidates {
		open.mu.Lock()
		if len(open.turns) > 0 && open.lastTurnAt.Before(cutoff) {
			s.closeLocked(ctx, open, CloseIdleSweep)
			closed++
		}
		open.mu.Unlock()
	}
	return closed
}

func (s *Segmenter) session(meta SessionMeta) *openEpisode {
	key := sessionKey(meta.UserID, meta.SessionID)
	s.mu.Lock()
	defer s.mu.Unlock()
	open, ok := s.sessions[key]
	if !ok {
		open = &openEpisode{meta: meta}
		s.sessions[key] = open
	}
	return open
}

func sessionKey(userID, sessionID string) string {
	return userID + "/" + sessionID
}

// embedTurn embeds one turn's content with the primary provider. A nil
// return means the topic rule is skipped for this turn.
func (s *Segmenter) embedTurn(ctx context.Context, turn Turn) []float32 {
	if strings.TrimSpace(turn.Content) == "" {
		return nil
	}
	name, emb, err := s.embedders.Primary()
	if err != nil {
		return nil
	}
	vec, err := emb.Embed(ctx, turn.Content)
	if err != nil {
		s.logger.Warn("turn embedding failed, skipping topic check",
			"provider", name, "error", err)
		return nil
	}
	return vec
}

// closeLocked materializes the open episode, persists it, and resets the
// session accumulator. The caller holds open.mu.
func (s *Segmenter) closeLocked(ctx context.Context, open *openEpisode, reason CloseReason) *episode.Episode {
	if len(open.turns) == 0 {
		return nil
	}

	first, last := open.turns[0], open.turns[len(open.turns)-1]
	now := s.now().UTC()

	ep := &episode.Episode{
		ID:         uuid.New().String(),
		SessionID:  open.meta.SessionID,
		AgentID:    open.meta.AgentID,
		UserID:     open.meta.UserID,
		StartTime:  first.Timestamp,
		EndTime:    last.Timestamp,
		RawRef: episode.TurnRange{
			FirstTurn: first.Index,
			LastTurn:  last.Index,
			TurnCount: len(open.turns),
		},
		Canvas:     buildCanvasContext(open.audits),
		Status:     episode.StatusPending,
		DecayScore: 1.0,
		CreatedAt:  now,
	}

	if open.feedbackCount > 0 {
		mean := open.feedbackSum / float64(open.feedbackCount)
		mean = math.Round(mean*1000) / 1000
		ep.FeedbackScore = &mean
		ep.FeedbackCount = open.feedbackCount
	}

	ep.SummaryText, ep.SummarySource = s.summarize(ctx, open, ep)

	// Reset the accumulator before any slow I/O so the session can
	// keep receiving turns.
	turnCount := len(open.turns)
	open.turns = nil
	open.audits = nil
	open.vecSum = nil
	open.vecCount = 0
	open.feedbackSum = 0
	open.feedbackCount = 0

	if err := s.store.Put(ctx, ep); err != nil {
		s.logger.Error("episode persist failed, queued for retry",
			"episode_id", ep.ID, "session_id", ep.SessionID, "error", err)
		if s.metrics != nil {
			s.metrics.RecordPublishFailure()
		}
		s.unsavedMu.Lock()
		s.unsaved[ep.ID] = &unsavedEpisode{ep: ep, reason: reason, turnCount: turnCount}
		s.unsavedMu.Unlock()
		return nil
	}

	if err := s.publish(ctx, ep); err != nil {
		s.logger.Warn("episode publish deferred",
			"episode_id", ep.ID, "error", err)
		if s.metrics != nil {
			s.metrics.RecordPublishFailure()
		}
		if s.retry != nil {
			if qerr := s.retry.Enqueue(ep.ID, s.now()); qerr != nil {
				s.logger.Error("retry enqueue failed",
					"episode_id", ep.ID, "error", qerr)
			}
		}
	}

	s.announceClosed(ep, reason, turnCount)
	return ep
}

// announceClosed emits the closure log line, metric, and event.
func (s *Segmenter) announceClosed(ep *episode.Episode, reason CloseReason, turnCount int) {
	s.logger.Info("episode closed",
		"episode_id", ep.ID,
		"session_id", ep.SessionID,
		"reason", string(reason),
		"turns", turnCount,
		"summary_source", ep.SummarySource,
	)
	if s.metrics != nil {
		s.metrics.RecordEpisodeClosed(string(reason), ep.SummarySource)
	}
	if s.events != nil {
		s.events.EpisodeClosed(ep.ID, ep.SessionID, ep.AgentID, turnCount)
	}
}

// flushUnsaved retries episodes whose store write failed. Rows that
// persist on retry continue through the normal publish path.
func (s *Segmenter) flushUnsaved(ctx context.Context) {
	s.unsavedMu.Lock()
	pending := make([]*unsavedEpisode, 0, len(s.unsaved))
	for _, u := range s.unsaved {
		pending = append(pending, u)
	}
	s.unsavedMu.Unlock()

	for _, u := range pending {
		if err := s.store.Put(ctx, u.ep); err != nil {
			s.logger.Warn("episode persist retry failed",
				"episode_id", u.ep.ID, "error", err)
			continue
		}
		s.unsavedMu.Lock()
		delete(s.unsaved, u.ep.ID)
		s.unsavedMu.Unlock()

		if err := s.publish(ctx, u.ep); err != nil {
			s.logger.Warn("episode publish deferred",
				"episode_id", u.ep.ID, "error", err)
			if s.retry != nil {
				if qerr := s.retry.Enqueue(u.ep.ID, s.now()); qerr != nil {
					s.logger.Error("retry enqueue failed",
						"episode_id", u.ep.ID, "error", qerr)
				}
			}
		}
		s.announceClosed(u.ep, u.reason, u.turnCount)
	}
}

// summarize produces the episode summary, falling back to metadata when
// the external capability fails or times out.
func (s *Segmenter) summarize(ctx context.Context, open *openEpisode, ep *episode.Episode) (text, source string) {
	fallback := capability.FallbackInput{
		AgentID:   ep.AgentID,
		StartTime: ep.StartTime,
		EndTime:   ep.EndTime,
		TurnCount: ep.RawRef.TurnCount,
		AgentTask: open.meta.AgentTask,
	}
	if ep.Canvas != nil {
		fallback.CanvasType = string(ep.Canvas.Type)
	}

	if s.summarizer == nil {
		return capability.MetadataSummary(fallback), episode.SummarySourceMetadata
	}

	req := capability.SummaryRequest{
		Interaction: renderInteraction(open.turns),
		AgentTask:   open.meta.AgentTask,
		MaxWait:     s.summaryTimeout,
	}
	if ep.Canvas != nil {
		req.CanvasState = ep.Canvas.PresentationSummary
	}

	res := s.summarizer.Summarize(ctx, req)
	if res.Outcome == capability.SummaryOK && strings.TrimSpace(res.Text) != "" {
		return res.Text, episode.SummarySourceLLM
	}
	s.logger.Warn("summarizer unavailable, using metadata summary",
		"reason", res.Reason, "error", res.Err)
	return capability.MetadataSummary(fallback), episode.SummarySourceMetadata
}

// publish embeds the summary, indexes the primary vector, and flips the
// episode to active. Until all three succeed the episode stays pending
// and invisible to retrieval.
func (s *Segmenter) publish(ctx context.Context, ep *episode.Episode) error {
	vectors, err := s.embedders.EmbedAll(ctx, ep.SummaryText)
	if err != nil {
		return err
	}

	primary, _, err := s.embedders.Primary()
	if err != nil {
		return err
	}
	if err := s.index.Add(ctx, index.Entry{
		ID:        ep.ID,
		UserID:    ep.UserID,
		SessionID: ep.SessionID,
		Vector:    vectors[primary],
	}); err != nil {
		return fmt.Errorf("segment: index episode %s: %w", ep.ID, err)
	}

	updated, err := s.store.Update(ctx, ep.ID, func(row *episode.Episode) error {
		row.Embeddings = vectors
		row.Status = episode.StatusActive
		return nil
	})
	if err != nil {
		return fmt.Errorf("segment: activate episode %s: %w", ep.ID, err)
	}
	*ep = *updated
	return nil
}

func (s *Segmenter) idleSweepLoop(ctx context.Context) {
	interval := s.cfg.IdleSweepInterval
	if interval <= 0 {
		interval = time.Minute
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
			if n := s.SweepIdle(ctx); n > 0 {
				s.logger.Debug("idle sweep closed episodes", "count", n)
			}
			s.flushUnsaved(ctx)
			if s.metrics != nil {
				s.metrics.SetOpenEpisodes(s.OpenSessions())
			}
		}
	}
}

func (s *Segmenter) closeAll(ctx context.Context, reason CloseReason) {
	s.mu.Lock()
	opens := make([]*openEpisode, 0, len(s.sessions))
	for _, open := range s.sessions {
		opens = append(opens, open)
	}
	s.mu.Unlock()

	for _, open := range opens {
		open.mu.Lock()
		s.closeLocked(ctx, open, reason)
		open.mu.Unlock()
	}
}

// renderInteraction flattens turns into the text handed to the summarizer.
func renderInteraction(turns []Turn) string {
	var b strings.Builder
	for _, t := range turns {
		b.WriteString(string(t.Actor))
		b.WriteString(": ")
		b.WriteString(t.Content)
		b.WriteByte('\n')
	}
	return b.String()
}
