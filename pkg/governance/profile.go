package governance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/atriumhq/atrium/pkg/store"
)

// profileRetries bounds optimistic-concurrency retries on txn conflict.
const profileRetries = 5

// AgentProfile is the governance state of one agent.
type AgentProfile struct {
	// AgentID identifies the agent.
	AgentID string `json:"agent_id"`

	// MaturityLevel is the current trust level. Only promotion through
	// the governance engine advances it.
	MaturityLevel MaturityLevel `json:"maturity_level"`

	// ConfidenceScore is the agent's self-reported confidence in [0,1].
	ConfidenceScore float64 `json:"confidence_score"`

	// EpisodeCount is the number of closed episodes the agent took part in.
	EpisodeCount int64 `json:"episode_count"`

	// InterventionCount is the number of human overrides of this agent.
	InterventionCount int64 `json:"intervention_count"`

	// TotalActionCount is the number of governed actions attempted.
	TotalActionCount int64 `json:"total_action_count"`

	// ConstitutionalScore is compliance with the behavioral rules in [0,1].
	ConstitutionalScore float64 `json:"constitutional_score"`

	// SupervisionSeq is the next sequence number for supervision records.
	SupervisionSeq uint64 `json:"supervision_seq"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Version is bumped on every mutation.
	Version uint64 `json:"version"`
}

// InterventionRate is interventions over governed actions. Zero before
// any action is attempted.
func (p *AgentProfile) InterventionRate() float64 {
	if p.TotalActionCount == 0 {
		return 0
	}
	return float64(p.InterventionCount) / float64(p.TotalActionCount)
}

// SupervisionRecord is one immutable row per governed action that needed
// a human. Append-only; interventions feed the intervention rate.
type SupervisionRecord struct {
	ID         string    `json:"id"`
	AgentID    string    `json:"agent_id"`
	Seq        uint64    `json:"seq"`
	ActionType string    `json:"action_type"`
	Tier       string    `json:"tier"`
	Decision   Decision  `json:"decision"`
	Intervened bool      `json:"intervened"`
	Note       string    `json:"note,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// ProfileStore persists agent profiles and their supervision trail.
type ProfileStore struct {
	db  *badger.DB
	now func() time.Time
}

// NewProfileStore creates a profile store on the shared database.
func NewProfileStore(db *badger.DB) *ProfileStore {
	return &ProfileStore{db: db, now: time.Now}
}

// Get returns the profile for agentID.
func (s *ProfileStore) Get(ctx context.Context, agentID string) (*AgentProfile, error) {
	var profile *AgentProfile
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		profile, err = readProfile(txn, agentID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return profile, nil
}

// Ensure returns the profile for agentID, creating a STUDENT profile on
// first sight.
func (s *ProfileStore) Ensure(ctx context.Context, agentID string) (*AgentProfile, error) {
	profile, err := s.Get(ctx, agentID)
	if err == nil {
		return profile, nil
	}
	if !errors.Is(err, ErrUnknownAgent) {
		return nil, err
	}

	now := s.now().UTC()
	profile = &AgentProfile{
		AgentID:       agentID,
		MaturityLevel: Student,
		CreatedAt:     now,
		UpdatedAt:     now,
		Version:       1,
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		// First writer wins on a concurrent create.
		if existing, err := readProfile(txn, agentID); err == nil {
			profile = existing
			return nil
		}
		return writeProfile(txn, profile)
	})
	if err != nil {
		return nil, err
	}
	return profile, nil
}

// Update applies fn to the current profile inside a transaction and
// retries on conflict. Counter increments go through here so concurrent
// actions for the same agent never lose updates.
func (s *ProfileStore) Update(ctx context.Context, agentID string, fn func(*AgentProfile) error) (*AgentProfile, error) {
	var updated *AgentProfile
	for attempt := 0; ; attempt++ {
		err := s.db.Update(func(txn *badger.Txn) error {
			profile, err := readProfile(txn, agentID)
			if err != nil {
				return err
			}
			if err := fn(profile); err != nil {
				return err
			}
			profile.UpdatedAt = s.now().UTC()
			profile.Version++
			updated = profile
			return writeProfile(txn, profile)
		})
		if errors.Is(err, badger.ErrConflict) && attempt < profileRetries {
			continue
		}
		if err != nil {
			if errors.Is(err, badger.ErrConflict) {
				return nil, fmt.Errorf("%w: %s", ErrProfileConflict, agentID)
			}
			return nil, err
		}
		return updated, nil
	}
}

// AppendSupervision writes an immutable supervision record and returns
// it. The per-agent sequence comes from the profile row, so records are
// totally ordered even under concurrent appends.
func (s *ProfileStore) AppendSupervision(ctx context.Context, agentID string, rec SupervisionRecord) (*SupervisionRecord, error) {
	rec.ID = uuid.New().String()
	rec.AgentID = agentID
	rec.CreatedAt = s.now().UTC()

	for attempt := 0; ; attempt++ {
		err := s.db.Update(func(txn *badger.Txn) error {
			profile, err := readProfile(txn, agentID)
			if err != nil {
				return err
			}
			rec.Seq = profile.SupervisionSeq
			profile.SupervisionSeq++
			profile.UpdatedAt = s.now().UTC()
			profile.Version++
			if err := writeProfile(txn, profile); err != nil {
				return err
			}

			data, err := json.Marshal(rec)
			if err != nil {
				return err
			}
			return txn.Set(store.SupervisionKey(agentID, rec.Seq), data)
		})
		if errors.Is(err, badger.ErrConflict) && attempt < profileRetries {
			continue
		}
		if err != nil {
			return nil, err
		}
		return &rec, nil
	}
}

// Supervision returns the supervision trail of an agent in append order.
func (s *ProfileStore) Supervision(ctx context.Context, agentID string) ([]*SupervisionRecord, error) {
	var records []*SupervisionRecord
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = store.SupervisionPrefix(agentID)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var rec SupervisionRecord
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return err
			}
			records = append(records, &rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

func readProfile(txn *badger.Txn, agentID string) (*AgentProfile, error) {
	item, err := txn.Get(store.ProfileKey(agentID))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAgent, agentID)
	}
	if err != nil {
		return nil, err
	}
	var profile AgentProfile
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &profile)
	}); err != nil {
		return nil, err
	}
	return &profile, nil
}

func writeProfile(txn *badger.Txn, profile *AgentProfile) error {
	data, err := json.Marshal(profile)
	if err != nil {
		return err
	}
	return txn.Set(store.ProfileKey(profile.AgentID), data)
}
