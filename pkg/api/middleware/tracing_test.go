package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

// withSpanRecorder swaps the global tracer provider for an in-memory
// recorder and restores the previous one on cleanup.
func withSpanRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()

	prevProvider := otel.GetTracerProvider()
	prevPropagator := otel.GetTextMapPropagator()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(prevProvider)
		otel.SetTextMapPropagator(prevPropagator)
	})
	return recorder
}

func endedSpans(recorder *tracetest.SpanRecorder, min int, timeout time.Duration) []sdktrace.ReadOnlySpan {
	deadline := time.Now().Add(timeout)
	for {
		spans := recorder.Ended()
		if len(spans) >= min || time.Now().After(deadline) {
			return spans
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func serveTraced(status int, target string, headers map[string]string) *httptest.ResponseRecorder {
	handler := Tracing(DefaultTracingOptions())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
	}))
	req := httptest.NewRequest(http.MethodPost, target, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func TestTracingContinuesInboundTrace(t *testing.T) {
	recorder := withSpanRecorder(t)

	parent := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{0xa, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1},
		SpanID:     trace.SpanID{0xb, 2, 2, 2, 2, 2, 2, 2},
		TraceFlags: trace.FlagsSampled,
	})
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(
		trace.ContextWithSpanContext(context.Background(), parent), carrier)

	serveTraced(http.StatusOK, "/api/v1/sessions/sess-1/turns", carrier)

	spans := endedSpans(recorder, 1, 500*time.Millisecond)
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if got, want := spans[0].Parent().TraceID(), parent.TraceID(); got != want {
		t.Fatalf("continued trace id = %s, want %s", got, want)
	}
}

func TestTracingStartsRootWithoutInboundHeaders(t *testing.T) {
	recorder := withSpanRecorder(t)

	serveTraced(http.StatusOK, "/api/v1/memory/semantic", nil)

	spans := endedSpans(recorder, 1, 500*time.Millisecond)
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Parent().IsValid() {
		t.Fatal("expected a root span when no inbound trace headers are present")
	}
}

func TestTracingRecordsStatus(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   otelcodes.Code
	}{
		{"episode closed", http.StatusOK, otelcodes.Ok},
		{"unknown agent", http.StatusNotFound, otelcodes.Error},
		{"sweep failed", http.StatusInternalServerError, otelcodes.Error},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := withSpanRecorder(t)

			serveTraced(tt.status, "/api/v1/memory/contextual", nil)

			spans := endedSpans(recorder, 1, 500*time.Millisecond)
			if len(spans) != 1 {
				t.Fatalf("expected 1 span, got %d", len(spans))
			}
			if got := spans[0].Status().Code; got != tt.want {
				t.Fatalf("span status = %v, want %v", got, tt.want)
			}
			if !spanHasIntAttr(spans[0].Attributes(), "http.response.status_code", int64(tt.status)) {
				t.Fatalf("missing http.response.status_code=%d", tt.status)
			}
		})
	}
}

func TestTracingSkipsProbesAndWebsocket(t *testing.T) {
	for _, path := range []string{"/health", "/ready", "/ws/events"} {
		t.Run(path, func(t *testing.T) {
			recorder := withSpanRecorder(t)

			serveTraced(http.StatusOK, path, nil)

			if spans := endedSpans(recorder, 1, 100*time.Millisecond); len(spans) != 0 {
				t.Fatalf("expected no spans for %s, got %d", path, len(spans))
			}
		})
	}
}

func TestInjectOutboundTraceContext(t *testing.T) {
	withSpanRecorder(t)

	ctx, span := otel.Tracer("test").Start(context.Background(), "summarize-episode")
	defer span.End()

	req := httptest.NewRequest(http.MethodPost, "http://summarizer.test/v1/messages", nil).WithContext(ctx)
	req.Header.Set("anthropic-version", "2023-06-01")
	injected := InjectOutboundTraceContext(req)
	if injected == nil {
		t.Fatal("expected non-nil request")
	}
	if injected.Header.Get("traceparent") == "" {
		t.Fatal("expected traceparent header to be injected")
	}
	if injected.Header.Get("anthropic-version") != "2023-06-01" {
		t.Fatal("expected existing headers to be preserved")
	}
}

func TestNewTracingRequest(t *testing.T) {
	withSpanRecorder(t)

	ctx, span := otel.Tracer("test").Start(context.Background(), "outbound")
	defer span.End()

	req, err := NewTracingRequest(ctx, http.MethodGet, "http://summarizer.test/v1/models", nil)
	if err != nil {
		t.Fatalf("NewTracingRequest() error = %v", err)
	}
	if req.Header.Get("traceparent") == "" {
		t.Fatal("expected traceparent header on new request")
	}
}

func spanHasIntAttr(attrs []attribute.KeyValue, key string, want int64) bool {
	for _, attr := range attrs {
		if string(attr.Key) == key && attr.Value.AsInt64() == want {
			return true
		}
	}
	return false
}
