package segment

import (
	"fmt"

	"github.com/atriumhq/atrium/pkg/episode"
)

// buildCanvasContext derives the episode's canvas context from the audit
// records observed during it. Returns nil when no canvas was shown. Every
// field is taken from the audits; nothing is invented.
func buildCanvasContext(audits []*episode.CanvasAudit) *episode.CanvasContext {
	if len(audits) == 0 {
		return nil
	}

	// The last audit wins for identity and type; elements and data points
	// accumulate across the episode in order.
	last := audits[len(audits)-1]

	ctx := &episode.CanvasContext{
		CanvasID: last.CanvasID,
		Type:     last.Type,
	}

	seen := make(map[string]struct{})
	for _, a := range audits {
		for _, el := range a.VisualElements {
			if _, ok := seen[el]; ok {
				continue
			}
			seen[el] = struct{}{}
			ctx.VisualElements = append(ctx.VisualElements, el)
		}
		if a.UserInteraction != "" {
			ctx.UserInteraction = a.UserInteraction
		}
		for k, v := range a.CriticalDataPoints {
			if ctx.CriticalDataPoints == nil {
				ctx.CriticalDataPoints = make(map[string]string)
			}
			ctx.CriticalDataPoints[k] = v
		}
	}

	ctx.PresentationSummary = presentationSummary(ctx)
	return ctx
}

// presentationSummary renders a one-line description per canvas variant.
// The switch is exhaustive over episode.CanvasType.
func presentationSummary(ctx *episode.CanvasContext) string {
	n := len(ctx.VisualElements)
	switch ctx.Type {
	case episode.CanvasForm:
		s := fmt.Sprintf("form with %d fields", n)
		if ctx.UserInteraction != "" {
			s += ", " + ctx.UserInteraction + " by user"
		}
		return s
	case episode.CanvasChart:
		return fmt.Sprintf("chart presenting %d series", n)
	case episode.CanvasTable:
		return fmt.Sprintf("table with %d columns", n)
	case episode.CanvasTerminal:
		return fmt.Sprintf("terminal session with %d command blocks", n)
	case episode.CanvasDocument:
		return fmt.Sprintf("document with %d sections", n)
	default:
		return fmt.Sprintf("canvas with %d elements", n)
	}
}
