// Package anthropic adapts the Anthropic Messages API to the platform's
// Summarizer capability. Calls are bounded by the request's MaxWait and
// surface typed failures instead of hanging the segmenter.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/atriumhq/atrium/pkg/capability"
)

const (
	defaultModel    = string(sdk.ModelClaude3_5HaikuLatest)
	defaultMaxWait  = 5 * time.Second
	maxSummaryChars = 4000

	systemPrompt = "You summarize one bounded agent/user interaction into a " +
		"single short paragraph. Mention the task, the outcome, and any user " +
		"decision. Plain text only."
)

// Summarizer calls the Anthropic Messages API.
type Summarizer struct {
	client sdk.Client
	model  string
}

// Option configures the Summarizer.
type Option func(*Summarizer)

// WithModel overrides the default model.
func WithModel(model string) Option {
	return func(s *Summarizer) { s.model = model }
}

// New creates a Summarizer using the given SDK client.
func New(client sdk.Client, opts ...Option) *Summarizer {
	s := &Summarizer{client: client, model: defaultModel}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Summarize sends the episode content to the model. Returns SummaryOK with
// the model text, or SummaryFailed with a classified reason on timeout or
// API error. Fallback synthesis is the caller's decision.
func (s *Summarizer) Summarize(ctx context.Context, req capability.SummaryRequest) capability.SummaryResult {
	wait := req.MaxWait
	if wait <= 0 {
		wait = defaultMaxWait
	}
	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	resp, err := s.client.Messages.New(ctx, sdk.MessageNewParams{
		Model:     sdk.Model(s.model),
		MaxTokens: 300,
		System: []sdk.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(buildPrompt(req))),
		},
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return capability.SummaryResult{
				Outcome: capability.SummaryFailed,
				Reason:  "timeout",
				Err:     fmt.Errorf("%w: %v", capability.ErrTimeout, err),
			}
		}
		return capability.SummaryResult{
			Outcome: capability.SummaryFailed,
			Reason:  "api_error",
			Err:     fmt.Errorf("%w: %v", capability.ErrUnavailable, err),
		}
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	out := strings.TrimSpace(text.String())
	if out == "" {
		return capability.SummaryResult{
			Outcome: capability.SummaryFailed,
			Reason:  "empty_response",
			Err:     capability.ErrUnavailable,
		}
	}
	return capability.SummaryResult{Outcome: capability.SummaryOK, Text: out}
}

func buildPrompt(req capability.SummaryRequest) string {
	var b strings.Builder
	if req.AgentTask != "" {
		fmt.Fprintf(&b, "Agent task: %s\n", req.AgentTask)
	}
	if req.CanvasState != "" {
		fmt.Fprintf(&b, "Canvas shown: %s\n", req.CanvasState)
	}
	interaction := req.Interaction
	if len(interaction) > maxSummaryChars {
		interaction = interaction[:maxSummaryChars]
	}
	fmt.Fprintf(&b, "Interaction:\n%s", interaction)
	return b.String()
}
