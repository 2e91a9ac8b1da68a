package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/atriumhq/atrium/config"
	"github.com/atriumhq/atrium/pkg/governance"
	"github.com/atriumhq/atrium/pkg/store"
)

func newGovernanceHandler(t *testing.T) (*GovernanceHandler, *governance.Engine) {
	t.Helper()

	st, err := store.Open(store.Config{CacheSize: 16})
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	engine, err := governance.NewEngine(config.GovernanceConfig{
		CacheSize:   1 << 16,
		ExamTimeout: time.Second,
	}, governance.NewProfileStore(st.DB()))
	if err != nil {
		t.Fatalf("failed to create governance engine: %v", err)
	}
	t.Cleanup(engine.Close)

	return NewGovernanceHandler(engine, nopTestLogger{}), engine
}

func TestCheckActionBlocksNewAgent(t *testing.T) {
	h, _ := newGovernanceHandler(t)

	body := `{"action_type":"delete_records"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/agents/agent-1/actions/check",
		bytes.NewBufferString(body))
	req = withChiURLParam(req, "agentID", "agent-1")
	w := httptest.NewRecorder()

	h.CheckAction(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("CheckAction() status = %d, want %d, body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var result governance.GateResult
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if result.Decision != governance.DecisionBlocked {
		t.Errorf("decision = %q, want %q", result.Decision, governance.DecisionBlocked)
	}
	if result.SupervisionID == "" {
		t.Error("expected a supervision record for a blocked action")
	}
}

func TestCheckActionRequiresActionType(t *testing.T) {
	h, _ := newGovernanceHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/agents/agent-1/actions/check",
		bytes.NewBufferString(`{}`))
	req = withChiURLParam(req, "agentID", "agent-1")
	w := httptest.NewRecorder()

	h.CheckAction(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("CheckAction() status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestRecordInterventionCreatesRecord(t *testing.T) {
	h, _ := newGovernanceHandler(t)

	body := `{"action_type":"send_email","note":"tone was wrong"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/agents/agent-1/interventions",
		bytes.NewBufferString(body))
	req = withChiURLParam(req, "agentID", "agent-1")
	w := httptest.NewRecorder()

	h.RecordIntervention(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("RecordIntervention() status = %d, want %d, body: %s", w.Code, http.StatusCreated, w.Body.String())
	}

	var rec governance.SupervisionRecord
	if err := json.NewDecoder(w.Body).Decode(&rec); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if rec.AgentID != "agent-1" {
		t.Errorf("record agent = %q, want agent-1", rec.AgentID)
	}
}

func TestEvaluateGraduationReportsUnmetCriteria(t *testing.T) {
	h, engine := newGovernanceHandler(t)
	ctx := context.Background()

	// An agent with some history but not enough episodes to advance.
	if err := engine.RecordEpisode(ctx, "agent-1"); err != nil {
		t.Fatal(err)
	}
	if err := engine.SetConstitutionalScore(ctx, "agent-1", 0.9); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/agents/agent-1/graduation", nil)
	req = withChiURLParam(req, "agentID", "agent-1")
	w := httptest.NewRecorder()

	h.EvaluateGraduation(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("EvaluateGraduation() status = %d, want %d, body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var result governance.GraduationResult
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if result.Promoted {
		t.Error("expected no promotion with a single episode")
	}
	if len(result.UnmetCriteria) == 0 {
		t.Error("expected unmet criteria in response")
	}
}

func TestProfileUnknownAgent(t *testing.T) {
	h, _ := newGovernanceHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/agents/ghost/profile", nil)
	req = withChiURLParam(req, "agentID", "ghost")
	w := httptest.NewRecorder()

	h.Profile(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Profile() status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestProfileIncludesReadinessScore(t *testing.T) {
	h, engine := newGovernanceHandler(t)
	ctx := context.Background()

	if err := engine.RecordEpisode(ctx, "agent-1"); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/agents/agent-1/profile", nil)
	req = withChiURLParam(req, "agentID", "agent-1")
	w := httptest.NewRecorder()

	h.Profile(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Profile() status = %d, want %d, body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var resp profileResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Profile == nil || resp.Profile.AgentID != "agent-1" {
		t.Fatalf("profile = %+v, want agent-1", resp.Profile)
	}
	if resp.ReadinessScore < 0 || resp.ReadinessScore > 100 {
		t.Errorf("readiness score = %v, want within [0, 100]", resp.ReadinessScore)
	}
}

func TestSetConstitutionalScoreOutOfRange(t *testing.T) {
	h, _ := newGovernanceHandler(t)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/agents/agent-1/constitutional",
		bytes.NewBufferString(`{"score":1.5}`))
	req = withChiURLParam(req, "agentID", "agent-1")
	w := httptest.NewRecorder()

	h.SetConstitutionalScore(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("SetConstitutionalScore() status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestSetConstitutionalScoreAccepted(t *testing.T) {
	h, _ := newGovernanceHandler(t)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/agents/agent-1/constitutional",
		bytes.NewBufferString(`{"score":0.8}`))
	req = withChiURLParam(req, "agentID", "agent-1")
	w := httptest.NewRecorder()

	h.SetConstitutionalScore(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("SetConstitutionalScore() status = %d, want %d", w.Code, http.StatusNoContent)
	}
}
