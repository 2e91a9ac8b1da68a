package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNewManager(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = true

	m := NewManager(cfg)
	if m == nil {
		t.Fatal("NewManager returned nil")
	}

	if !m.Enabled() {
		t.Error("Expected metrics to be enabled")
	}
}

func TestNewManager_Disabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = false

	m := NewManager(cfg)
	if m == nil {
		t.Fatal("NewManager returned nil")
	}

	if m.Enabled() {
		t.Error("Expected metrics to be disabled")
	}
}

func TestMetricsHandler(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = true

	m := NewManager(cfg)

	// Record some metrics
	m.RecordEpisodeClosed("time_gap", "metadata")
	m.RecordEpisodeClosed("task_complete", "llm")
	m.RecordRetrieval("semantic", "ok", 5, 20*time.Millisecond)
	m.RecordSweep(3, 1, 0, time.Second)
	m.RecordGateDecision("blocked", "CRITICAL")

	// Create test request
	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()

	// Serve metrics
	m.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	body := w.Body.String()
	if body == "" {
		t.Error("Expected non-empty metrics output")
	}

	// Check for expected metrics
	expectedMetrics := []string{
		"episodes_closed_total",
		"retrieval_requests_total",
		"lifecycle_actions_total",
		"gate_decisions_total",
	}

	for _, metric := range expectedMetrics {
		if !strings.Contains(body, metric) {
			t.Errorf("Expected metric %s not found in output", metric)
		}
	}
}

func TestMetricsHandler_Disabled(t *testing.T) {
	m := NoOpManager()

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()

	m.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 for disabled metrics, got %d", w.Code)
	}
}

func TestDisabledManagerRecordsAreNoOps(t *testing.T) {
	m := NoOpManager()

	// None of these should panic on a disabled manager.
	m.RecordEpisodeClosed("time_gap", "metadata")
	m.SetOpenEpisodes(3)
	m.RecordTurnIngested()
	m.RecordPublishFailure()
	m.SetRetryQueueDepth(1)
	m.RecordRetrieval("temporal", "ok", 0, time.Millisecond)
	m.RecordSweep(0, 0, 0, time.Millisecond)
	m.RecordFeedbackIngested()
	m.RecordGateDecision("allowed", "LOW")
	m.RecordGraduationCheck(true)
	m.RecordHTTPRequest("GET", "/healthz", "200", time.Millisecond)
	m.IncActiveConnections()
	m.DecActiveConnections()
}

func TestGraduationCheckOutcomes(t *testing.T) {
	cfg := DefaultConfig()
	m := NewManager(cfg)

	m.RecordGraduationCheck(true)
	m.RecordGraduationCheck(false)

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, req)

	body := w.Body.String()
	for _, want := range []string{`outcome="promoted"`, `outcome="denied"`} {
		if !strings.Contains(body, want) {
			t.Errorf("Expected %s in metrics output", want)
		}
	}
}
