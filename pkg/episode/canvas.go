package episode

import "time"

// CanvasType tags the kind of canvas presented during an episode.
type CanvasType string

const (
	CanvasForm     CanvasType = "form"
	CanvasChart    CanvasType = "chart"
	CanvasTable    CanvasType = "table"
	CanvasTerminal CanvasType = "terminal"
	CanvasDocument CanvasType = "document"
)

// Valid reports whether t is a known canvas type.
func (t CanvasType) Valid() bool {
	switch t {
	case CanvasForm, CanvasChart, CanvasTable, CanvasTerminal, CanvasDocument:
		return true
	}
	return false
}

// CanvasContext is the structured summary of what was visually presented
// to the user during an episode. Derived entirely from the canvas audit
// feed; the segmenter never invents canvas data.
type CanvasContext struct {
	// CanvasID is the identifier of the audited canvas instance.
	CanvasID string `json:"canvas_id"`

	// Type is the canvas variant tag.
	Type CanvasType `json:"type"`

	// PresentationSummary is a one-line description of what was shown.
	PresentationSummary string `json:"presentation_summary"`

	// VisualElements lists element labels in presentation order.
	VisualElements []string `json:"visual_elements,omitempty"`

	// UserInteraction captures the user's decision on the canvas, if any
	// (e.g. "approved", "rejected", "submitted").
	UserInteraction string `json:"user_interaction,omitempty"`

	// CriticalDataPoints are the business values extracted from the audit.
	CriticalDataPoints map[string]string `json:"critical_data_points,omitempty"`
}

// CanvasAudit is one record of the external canvas audit feed. The
// segmentation engine only reads these, never writes them.
type CanvasAudit struct {
	CanvasID           string            `json:"canvas_id"`
	Type               CanvasType        `json:"canvas_type"`
	VisualElements     []string          `json:"visual_elements,omitempty"`
	UserInteraction    string            `json:"user_interaction,omitempty"`
	CriticalDataPoints map[string]string `json:"critical_data_points,omitempty"`
	Timestamp          time.Time         `json:"timestamp"`
}
