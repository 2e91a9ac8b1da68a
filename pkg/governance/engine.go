package governance

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/atriumhq/atrium/config"
	"github.com/atriumhq/atrium/pkg/capability"
	"github.com/atriumhq/atrium/pkg/events"
)

// governanceLogger is the minimal logger interface used by the Engine.
type governanceLogger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(msg string, args ...any) {}
func (nopLogger) Info(msg string, args ...any)  {}
func (nopLogger) Warn(msg string, args ...any)  {}

// gateMetrics is the slice of the metrics manager the engine reports to.
type gateMetrics interface {
	RecordGateDecision(decision, tier string)
	RecordGraduationCheck(promoted bool)
}

// GateResult is the structured outcome of an action gating check. A
// disallowed action is a result, never an error.
type GateResult struct {
	Decision Decision `json:"decision"`

	// AgentLevel and ActionTier explain the decision.
	AgentLevel MaturityLevel  `json:"agent_level"`
	ActionTier ComplexityTier `json:"action_tier"`

	// Reason is a human-actionable explanation for non-allowed results.
	Reason string `json:"reason,omitempty"`

	// SupervisionID is the record written for non-allowed results.
	SupervisionID string `json:"supervision_id,omitempty"`
}

// GraduationResult is the structured outcome of a graduation check.
type GraduationResult struct {
	Promoted       bool          `json:"promoted"`
	From           MaturityLevel `json:"from"`
	To             MaturityLevel `json:"to"`
	ReadinessScore float64       `json:"readiness_score"`
	UnmetCriteria  []string      `json:"unmet_criteria,omitempty"`
}

// Engine gates actions and evaluates graduations.
type Engine struct {
	cfg      config.GovernanceConfig
	profiles *ProfileStore
	tiers    TierTable
	runner   capability.ActionRunner
	cache    *ristretto.Cache
	events   *events.Broadcaster
	logger   governanceLogger
	metrics  gateMetrics
	now      func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l governanceLogger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithEvents sets the event broadcaster.
func WithEvents(b *events.Broadcaster) Option {
	return func(e *Engine) { e.events = b }
}

// WithTierTable overrides the action classification table.
func WithTierTable(t TierTable) Option {
	return func(e *Engine) { e.tiers = t }
}

// WithActionRunner provides the isolated runner used by graduation exams.
func WithActionRunner(r capability.ActionRunner) Option {
	return func(e *Engine) { e.runner = r }
}

// WithMetrics sets the gating metrics recorder.
func WithMetrics(rec gateMetrics) Option {
	return func(e *Engine) { e.metrics = rec }
}

// WithClock overrides the time source. Test hook.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates a governance engine. The gating cache keeps the hot
// action path off the database.
func NewEngine(cfg config.GovernanceConfig, profiles *ProfileStore, opts ...Option) (*Engine, error) {
	maxCost := cfg.CacheSize
	if maxCost <= 0 {
		maxCost = 1 << 20
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxCost * 10,
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("governance: gating cache: %w", err)
	}

	e := &Engine{
		cfg:      cfg,
		profiles: profiles,
		tiers:    DefaultTierTable(),
		cache:    cache,
		logger:   nopLogger{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Close releases the gating cache.
func (e *Engine) Close() {
	e.cache.Close()
}

// CanPerformAction gates one action attempt. The maturity lookup is
// served from cache on the hot path; the governed-action counter is
// incremented atomically. Non-allowed outcomes append a supervision
// record and never surface as errors.
func (e *Engine) CanPerformAction(ctx context.Context, agentID, actionType string) (*GateResult, error) {
	level, err := e.maturity(ctx, agentID)
	if err != nil {
		return nil, err
	}

	tier := e.tiers.Tier(actionType)
	decision := gate(level, tier)
	if e.metrics != nil {
		e.metrics.RecordGateDecision(string(decision), tier.String())
	}

	result := &GateResult{
		Decision:   decision,
		AgentLevel: level,
		ActionTier: tier,
	}

	if _, err := e.profiles.Update(ctx, agentID, func(p *AgentProfile) error {
		p.TotalActionCount++
		return nil
	}); err != nil {
		return nil, fmt.Errorf("governance: count action for %s: %w", agentID, err)
	}

	switch decision {
	case DecisionAllowed:
		return result, nil
	case DecisionBlocked:
		result.Reason = fmt.Sprintf("%s agents may not perform %s actions", level, tier)
	case DecisionNeedsApproval:
		result.Reason = fmt.Sprintf("%s exceeds the %s limit of %s agents; a human must approve",
			tier, maxComplexity[level], level)
	}

	rec, err := e.profiles.AppendSupervision(ctx, agentID, SupervisionRecord{
		ActionType: actionType,
		Tier:       tier.String(),
		Decision:   decision,
	})
	if err != nil {
		return nil, fmt.Errorf("governance: record supervision for %s: %w", agentID, err)
	}
	result.SupervisionID = rec.ID

	e.logger.Info("action gated",
		"agent_id", agentID,
		"action_type", actionType,
		"decision", string(decision),
	)
	if e.events != nil {
		e.events.ActionBlocked(agentID, actionType, string(decision))
	}
	return result, nil
}

// RecordIntervention registers a human override of an agent action. It
// appends an immutable record, bumps the intervention counter, and
// invalidates the gating cache since the intervention rate changed.
func (e *Engine) RecordIntervention(ctx context.Context, agentID, actionType, note string) (*SupervisionRecord, error) {
	if _, err := e.profiles.Ensure(ctx, agentID); err != nil {
		return nil, err
	}
	rec, err := e.profiles.AppendSupervision(ctx, agentID, SupervisionRecord{
		ActionType: actionType,
		Tier:       e.tiers.Tier(actionType).String(),
		Decision:   DecisionNeedsApproval,
		Intervened: true,
		Note:       note,
	})
	if err != nil {
		return nil, err
	}

	if _, err := e.profiles.Update(ctx, agentID, func(p *AgentProfile) error {
		p.InterventionCount++
		return nil
	}); err != nil {
		return nil, fmt.Errorf("governance: count intervention for %s: %w", agentID, err)
	}

	e.invalidate(agentID)
	return rec, nil
}

// RecordEpisode credits one closed episode toward the agent's record.
func (e *Engine) RecordEpisode(ctx context.Context, agentID string) error {
	if _, err := e.profiles.Ensure(ctx, agentID); err != nil {
		return err
	}
	_, err := e.profiles.Update(ctx, agentID, func(p *AgentProfile) error {
		p.EpisodeCount++
		return nil
	})
	return err
}

// SetConstitutionalScore stores the latest compliance score in [0,1].
func (e *Engine) SetConstitutionalScore(ctx context.Context, agentID string, score float64) error {
	if score < 0 || score > 1 {
		return fmt.Errorf("%w: constitutional score %v", ErrInvalidScore, score)
	}
	if _, err := e.profiles.Ensure(ctx, agentID); err != nil {
		return err
	}
	_, err := e.profiles.Update(ctx, agentID, func(p *AgentProfile) error {
		p.ConstitutionalScore = score
		return nil
	})
	return err
}

// Watch subscribes the engine to platform events so closed episodes
// credit the acting agent automatically. Blocks until ctx is done.
func (e *Engine) Watch(ctx context.Context, broadcaster *events.Broadcaster) {
	ch := broadcaster.Subscribe(64)
	defer broadcaster.Unsubscribe(ch)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if ev.Type != events.TypeEpisodeClosed {
				continue
			}
			payload, ok := ev.Payload.(map[string]any)
			if !ok {
				continue
			}
			agentID, _ := payload["agent_id"].(string)
			if agentID == "" {
				continue
			}
			if err := e.RecordEpisode(ctx, agentID); err != nil {
				e.logger.Warn("episode credit failed",
					"agent_id", agentID, "error", err)
			}
		}
	}
}

// maturity returns the agent's level, cached. A miss falls through to
// the profile store and fills the cache.
func (e *Engine) maturity(ctx context.Context, agentID string) (MaturityLevel, error) {
	if v, ok := e.cache.Get(agentID); ok {
		if level, ok := v.(MaturityLevel); ok {
			return level, nil
		}
	}

	profile, err := e.profiles.Ensure(ctx, agentID)
	if err != nil {
		return Student, err
	}
	e.cache.Set(agentID, profile.MaturityLevel, 1)
	return profile.MaturityLevel, nil
}

// invalidate drops an agent's cached gating state.
func (e *Engine) invalidate(agentID string) {
	e.cache.Del(agentID)
}
