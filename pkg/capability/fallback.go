package capability

import (
	"fmt"
	"strings"
	"time"
)

// FallbackInput is the episode metadata available when the external
// summarizer is unavailable.
type FallbackInput struct {
	AgentID    string
	StartTime  time.Time
	EndTime    time.Time
	TurnCount  int
	CanvasType string
	AgentTask  string
}

// MetadataSummary builds a deterministic summary from episode metadata.
// Used whenever the LLM summarizer times out or fails; segmentation must
// never block on an external dependency.
func MetadataSummary(in FallbackInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Interaction of %d turns", in.TurnCount)
	if in.AgentID != "" {
		fmt.Fprintf(&b, " with agent %s", in.AgentID)
	}
	if !in.StartTime.IsZero() {
		fmt.Fprintf(&b, " from %s to %s",
			in.StartTime.UTC().Format(time.RFC3339),
			in.EndTime.UTC().Format(time.RFC3339))
	}
	if in.AgentTask != "" {
		fmt.Fprintf(&b, "; task: %s", in.AgentTask)
	}
	if in.CanvasType != "" {
		fmt.Fprintf(&b, "; presented a %s canvas", in.CanvasType)
	}
	b.WriteString(".")
	return b.String()
}
