package episode

import "time"

// DetailLevel selects how much of each episode is serialized in a result.
// The level never changes which episodes are selected, only the payload shape.
type DetailLevel string

const (
	// DetailSummary returns id, timing, and summary text only.
	DetailSummary DetailLevel = "summary"

	// DetailStandard adds visual elements and the user interaction.
	DetailStandard DetailLevel = "standard"

	// DetailFull adds critical data points and the raw canvas payload.
	DetailFull DetailLevel = "full"
)

// ParseDetail parses a caller-supplied detail level, defaulting to summary.
func ParseDetail(s string) (DetailLevel, error) {
	switch DetailLevel(s) {
	case DetailSummary, "":
		return DetailSummary, nil
	case DetailStandard:
		return DetailStandard, nil
	case DetailFull:
		return DetailFull, nil
	}
	return "", ErrInvalidDetail
}

// View is the serialized projection of an episode at a given detail level.
type View struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	AgentID     string    `json:"agent_id,omitempty"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	SummaryText string    `json:"summary_text"`
	Status      Status    `json:"status"`

	// Standard detail and above.
	CanvasType      CanvasType `json:"canvas_type,omitempty"`
	VisualElements  []string   `json:"visual_elements,omitempty"`
	UserInteraction string     `json:"user_interaction,omitempty"`
	FeedbackScore   *float64   `json:"feedback_score,omitempty"`

	// Full detail only.
	CriticalDataPoints map[string]string `json:"critical_data_points,omitempty"`
	Canvas             *CanvasContext    `json:"canvas,omitempty"`
	RawRef             *TurnRange        `json:"raw_ref,omitempty"`

	// Score is set by scored retrieval modes (semantic, contextual).
	Score float64 `json:"score,omitempty"`
}

// Project builds the view of e at the requested detail level.
func Project(e *Episode, level DetailLevel) *View {
	v := &View{
		ID:          e.ID,
		SessionID:   e.SessionID,
		StartTime:   e.StartTime,
		EndTime:     e.EndTime,
		SummaryText: e.SummaryText,
		Status:      e.Status,
	}
	if level == DetailSummary {
		return v
	}

	v.AgentID = e.AgentID
	v.FeedbackScore = e.FeedbackScore
	if e.Canvas != nil {
		v.CanvasType = e.Canvas.Type
		v.VisualElements = e.Canvas.VisualElements
		v.UserInteraction = e.Canvas.UserInteraction
	}
	if level == DetailStandard {
		return v
	}

	if e.Canvas != nil {
		v.CriticalDataPoints = e.Canvas.CriticalDataPoints
		v.Canvas = e.Canvas
	}
	raw := e.RawRef
	v.RawRef = &raw
	return v
}
