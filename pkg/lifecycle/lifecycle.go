// Package lifecycle runs the periodic episode sweep: decay of untouched
// episodes, archival to the cold keyspace, consolidation of
// near-duplicates, and ingestion of late feedback.
package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/atriumhq/atrium/config"
	"github.com/atriumhq/atrium/pkg/episode"
	"github.com/atriumhq/atrium/pkg/events"
	"github.com/atriumhq/atrium/pkg/index"
	"github.com/atriumhq/atrium/pkg/store"
)

// lifecycleLogger is the minimal logger interface used by the Manager.
type lifecycleLogger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(msg string, args ...any) {}
func (nopLogger) Info(msg string, args ...any)  {}
func (nopLogger) Warn(msg string, args ...any)  {}
func (nopLogger) Error(msg string, args ...any) {}

// sweepMetrics is the slice of the metrics manager the sweep reports to.
type sweepMetrics interface {
	RecordSweep(decayed, archived, consolidated int, duration time.Duration)
	RecordFeedbackIngested()
}

// SweepStats summarizes one sweep pass.
type SweepStats struct {
	Visited      int
	Decayed      int
	Archived     int
	Consolidated int
}

// Manager owns the background lifecycle sweep.
type Manager struct {
	mu sync.Mutex

	// cfgMu guards cfg against hot reload racing a running sweep.
	cfgMu sync.RWMutex

	cfg    config.LifecycleConfig
	store  store.EpisodeStore
	index  index.Index
	events  *events.Broadcaster
	logger  lifecycleLogger
	metrics sweepMetrics
	now     func() time.Time

	cron    *cron.Cron
	entryID cron.EntryID
	started bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l lifecycleLogger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithEvents sets the event broadcaster.
func WithEvents(b *events.Broadcaster) Option {
	return func(m *Manager) { m.events = b }
}

// WithMetrics sets the sweep metrics recorder.
func WithMetrics(rec sweepMetrics) Option {
	return func(m *Manager) { m.metrics = rec }
}

// WithClock overrides the time source. Test hook.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a lifecycle manager.
func NewManager(cfg config.LifecycleConfig, st store.EpisodeStore, idx index.Index, opts ...Option) *Manager {
	m := &Manager{
		cfg:    cfg,
		store:  st,
		index:  idx,
		logger: nopLogger{},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start schedules the sweep on the configured cron spec.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return fmt.Errorf("lifecycle: already started")
	}

	schedule := m.cfg.Schedule
	if schedule == "" {
		schedule = "@every 1h"
	}

	m.cron = cron.New()
	id, err := m.cron.AddFunc(schedule, func() {
		stats, err := m.Sweep(ctx)
		if err != nil {
			m.logger.Error("lifecycle sweep failed", "error", err)
			return
		}
		m.logger.Info("lifecycle sweep complete",
			"visited", stats.Visited,
			"decayed", stats.Decayed,
			"archived", stats.Archived,
			"consolidated", stats.Consolidated,
		)
	})
	if err != nil {
		return fmt.Errorf("lifecycle: invalid schedule %q: %w", schedule, err)
	}
	m.entryID = id
	m.cron.Start()
	m.started = true

	m.logger.Info("lifecycle manager started", "schedule", schedule)
	return nil
}

// Stop halts the cron scheduler, waiting for a running sweep to finish.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started {
		return nil
	}
	stopCtx := m.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	m.started = false
	m.logger.Info("lifecycle manager stopped")
	return nil
}

// snapshot returns the sweep settings as of now.
func (m *Manager) snapshot() config.LifecycleConfig {
	m.cfgMu.RLock()
	defer m.cfgMu.RUnlock()
	return m.cfg
}

// Reconfigure applies hot-reloadable sweep settings. Zero values leave
// the current setting untouched.
func (m *Manager) Reconfigure(decayStep, consolidateSimilarity float64) {
	m.cfgMu.Lock()
	defer m.cfgMu.Unlock()
	if decayStep > 0 {
		m.cfg.DecayStep = decayStep
	}
	if consolidateSimilarity > 0 {
		m.cfg.ConsolidateSimilarity = consolidateSimilarity
	}
	m.logger.Info("lifecycle settings updated",
		"decay_step", m.cfg.DecayStep,
		"consolidate_similarity", m.cfg.ConsolidateSimilarity,
	)
}

// Sweep runs one full pass: decay, archival, then consolidation.
func (m *Manager) Sweep(ctx context.Context) (SweepStats, error) {
	var stats SweepStats
	now := m.now().UTC()
	begin := time.Now()

	cfg := m.snapshot()
	decayCutoff := now.Add(-cfg.DecayAfter)
	archiveCutoff := now.Add(-cfg.ArchiveAfter)

	var toArchive []string
	err := m.store.ForEachActive(ctx, func(ep *episode.Episode) error {
		if !ep.Retrievable() {
			return nil
		}
		stats.Visited++
		touched := lastTouched(ep)

		if touched.Before(archiveCutoff) && ep.DecayScore <= 0 {
			toArchive = append(toArchive, ep.ID)
			return nil
		}
		if touched.Before(decayCutoff) && ep.DecayScore > 0 {
			if err := m.decay(ctx, ep.ID); err != nil {
				m.logger.Warn("decay update failed", "episode_id", ep.ID, "error", err)
				return nil
			}
			stats.Decayed++
		}
		return nil
	})
	if err != nil {
		return stats, fmt.Errorf("lifecycle: sweep scan: %w", err)
	}

	for _, id := range toArchive {
		if err := m.archive(ctx, id); err != nil {
			m.logger.Warn("archival failed", "episode_id", id, "error", err)
			continue
		}
		stats.Archived++
	}

	merged, err := m.consolidate(ctx)
	if err != nil {
		return stats, err
	}
	stats.Consolidated = merged

	if m.metrics != nil {
		m.metrics.RecordSweep(stats.Decayed, stats.Archived, stats.Consolidated, time.Since(begin))
	}
	return stats, nil
}

// IngestFeedback folds a late feedback event into a closed episode.
// Feedback keeps important episodes alive by nudging decay upward.
func (m *Manager) IngestFeedback(ctx context.Context, episodeID string, score float64) (*episode.Episode, error) {
	updated, err := m.store.Update(ctx, episodeID, func(ep *episode.Episode) error {
		ep.FoldFeedback(score, m.snapshot().FeedbackDecayBoost)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("lifecycle: ingest feedback for %s: %w", episodeID, err)
	}
	if m.metrics != nil {
		m.metrics.RecordFeedbackIngested()
	}
	return updated, nil
}

// decay reduces the decay score by one step, floored at 0.
func (m *Manager) decay(ctx context.Context, id string) error {
	_, err := m.store.Update(ctx, id, func(ep *episode.Episode) error {
		ep.DecayScore -= m.snapshot().DecayStep
		if ep.DecayScore < 0 {
			ep.DecayScore = 0
		}
		return nil
	})
	return err
}

// archive moves an episode to the cold keyspace and drops its vector.
func (m *Manager) archive(ctx context.Context, id string) error {
	if err := m.store.Archive(ctx, id); err != nil {
		return err
	}
	if err := m.index.Delete(ctx, id); err != nil {
		m.logger.Warn("archived vector cleanup failed", "episode_id", id, "error", err)
	}
	if m.events != nil {
		m.events.EpisodeArchived(id)
	}
	return nil
}

// lastTouched is the reference point for decay and archival: the most
// recent of last access, feedback-driven creation, and episode end.
func lastTouched(ep *episode.Episode) time.Time {
	t := ep.EndTime
	if ep.CreatedAt.After(t) {
		t = ep.CreatedAt
	}
	if ep.LastAccessedAt.After(t) {
		t = ep.LastAccessedAt
	}
	return t
}
