package episode

import (
	"testing"
	"time"
)

func TestTouchResetsDecay(t *testing.T) {
	now := time.Now()
	ep := &Episode{DecayScore: 0.3}

	ep.Touch(now)

	if ep.AccessCount != 1 {
		t.Fatalf("access count = %d, want 1", ep.AccessCount)
	}
	if !ep.LastAccessedAt.Equal(now) {
		t.Fatalf("last accessed = %v, want %v", ep.LastAccessedAt, now)
	}
	if ep.DecayScore != 1.0 {
		t.Fatalf("decay score = %v, want 1.0", ep.DecayScore)
	}
}

func TestFoldFeedbackRunningAverage(t *testing.T) {
	ep := &Episode{DecayScore: 0.5}

	ep.FoldFeedback(1.0, 0.2)
	if ep.FeedbackScore == nil || *ep.FeedbackScore != 1.0 {
		t.Fatalf("first feedback score = %v, want 1.0", ep.FeedbackScore)
	}
	if ep.FeedbackCount != 1 {
		t.Fatalf("feedback count = %d, want 1", ep.FeedbackCount)
	}

	ep.FoldFeedback(0.0, 0.2)
	if *ep.FeedbackScore != 0.5 {
		t.Fatalf("folded score = %v, want 0.5", *ep.FeedbackScore)
	}
	if ep.FeedbackCount != 2 {
		t.Fatalf("feedback count = %d, want 2", ep.FeedbackCount)
	}
}

func TestFoldFeedbackClampsDecay(t *testing.T) {
	ep := &Episode{DecayScore: 0.95}
	ep.FoldFeedback(0.8, 0.2)
	if ep.DecayScore != 1.0 {
		t.Fatalf("decay score = %v, want clamp at 1.0", ep.DecayScore)
	}
}

func TestRetrievable(t *testing.T) {
	tests := []struct {
		status Status
		want   bool
	}{
		{StatusActive, true},
		{StatusConsolidated, true},
		{StatusArchived, false},
		{StatusPending, false},
	}
	for _, tt := range tests {
		ep := &Episode{Status: tt.status}
		if got := ep.Retrievable(); got != tt.want {
			t.Errorf("Retrievable(%s) = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestParseDetail(t *testing.T) {
	tests := []struct {
		in      string
		want    DetailLevel
		wantErr bool
	}{
		{"", DetailSummary, false},
		{"summary", DetailSummary, false},
		{"standard", DetailStandard, false},
		{"full", DetailFull, false},
		{"verbose", "", true},
	}
	for _, tt := range tests {
		got, err := ParseDetail(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseDetail(%q) expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseDetail(%q) unexpected error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseDetail(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCanvasTypeValid(t *testing.T) {
	for _, ct := range []CanvasType{CanvasForm, CanvasChart, CanvasTable, CanvasTerminal, CanvasDocument} {
		if !ct.Valid() {
			t.Errorf("CanvasType(%s).Valid() = false, want true", ct)
		}
	}
	if CanvasType("hologram").Valid() {
		t.Error("unknown canvas type reported valid")
	}
}

func TestProjectDetailLevels(t *testing.T) {
	score := 0.8
	ep := &Episode{
		ID:          "ep-1",
		SessionID:   "sess-1",
		AgentID:     "agent-1",
		StartTime:   time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC),
		EndTime:     time.Date(2026, 4, 1, 10, 30, 0, 0, time.UTC),
		SummaryText: "reviewed the Q1 invoices",
		Status:      StatusActive,
		Canvas: &CanvasContext{
			CanvasID:           "cv-1",
			Type:               CanvasTable,
			VisualElements:     []string{"invoice list", "totals row"},
			UserInteraction:    "approved",
			CriticalDataPoints: map[string]string{"total": "1200.00"},
		},
		FeedbackScore: &score,
		RawRef:        TurnRange{FirstTurn: 0, LastTurn: 4, TurnCount: 5},
	}

	summary := Project(ep, DetailSummary)
	if summary.SummaryText != ep.SummaryText {
		t.Fatalf("summary text = %q", summary.SummaryText)
	}
	if summary.CanvasType != "" || summary.CriticalDataPoints != nil || summary.RawRef != nil {
		t.Fatal("summary view leaked standard or full fields")
	}

	standard := Project(ep, DetailStandard)
	if standard.CanvasType != CanvasTable {
		t.Fatalf("standard canvas type = %q, want table", standard.CanvasType)
	}
	if standard.UserInteraction != "approved" {
		t.Fatalf("standard interaction = %q", standard.UserInteraction)
	}
	if standard.FeedbackScore == nil || *standard.FeedbackScore != score {
		t.Fatal("standard view missing feedback score")
	}
	if standard.CriticalDataPoints != nil || standard.Canvas != nil || standard.RawRef != nil {
		t.Fatal("standard view leaked full fields")
	}

	full := Project(ep, DetailFull)
	if full.CriticalDataPoints["total"] != "1200.00" {
		t.Fatal("full view missing critical data points")
	}
	if full.Canvas == nil || full.Canvas.CanvasID != "cv-1" {
		t.Fatal("full view missing canvas payload")
	}
	if full.RawRef == nil || full.RawRef.TurnCount != 5 {
		t.Fatal("full view missing raw ref")
	}
}

func TestProjectWithoutCanvas(t *testing.T) {
	ep := &Episode{ID: "ep-2", Status: StatusActive}
	v := Project(ep, DetailFull)
	if v.Canvas != nil || v.CanvasType != "" {
		t.Fatal("projection invented canvas data")
	}
}
