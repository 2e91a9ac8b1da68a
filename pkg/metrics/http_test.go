package metrics

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel/trace"
)

func scrape(t *testing.T, m *Manager) string {
	t.Helper()
	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	return w.Body.String()
}

func TestRecordHTTPRequestLabels(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = true
	m := NewManager(cfg)

	m.RecordHTTPRequest("POST", "/api/v1/sessions/:id/turns", "201", 8*time.Millisecond)
	m.RecordHTTPRequest("POST", "/api/v1/sessions/:id/turns", "201", 12*time.Millisecond)
	m.RecordHTTPRequest("GET", "/api/v1/memory/temporal", "200", 3*time.Millisecond)

	body := scrape(t, m)
	if !strings.Contains(body, `http_requests_total{method="POST",path="/api/v1/sessions/:id/turns",status="201"} 2`) {
		t.Errorf("turn-append counter missing or wrong:\n%s", body)
	}
	if !strings.Contains(body, `http_requests_total{method="GET",path="/api/v1/memory/temporal",status="200"} 1`) {
		t.Errorf("temporal query counter missing:\n%s", body)
	}
	if !strings.Contains(body, "http_request_duration_seconds") {
		t.Error("duration histogram missing")
	}
}

func TestActiveConnectionsGauge(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = true
	m := NewManager(cfg)

	m.IncActiveConnections()
	m.IncActiveConnections()
	m.DecActiveConnections()

	if !strings.Contains(scrape(t, m), "http_active_connections 1") {
		t.Error("active connections gauge != 1")
	}
}

func TestRecordHTTPRequestWithContextFallsBackWithoutSpan(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = true
	m := NewManager(cfg)

	m.RecordHTTPRequestWithContext(context.Background(), "GET", "/api/v1/agents/:id/profile", "200", time.Millisecond)

	if !strings.Contains(scrape(t, m), `http_requests_total{method="GET",path="/api/v1/agents/:id/profile",status="200"} 1`) {
		t.Error("context-aware recording without a span must still count")
	}
}

func TestRecordHTTPRequestWithSampledSpan(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = true
	m := NewManager(cfg)

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16},
		SpanID:     trace.SpanID{9, 8, 7, 6, 5, 4, 3, 2},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	m.RecordHTTPRequestWithContext(ctx, "POST", "/api/v1/memory/semantic", "200", 5*time.Millisecond)

	if !strings.Contains(scrape(t, m), `http_requests_total{method="POST",path="/api/v1/memory/semantic",status="200"} 1`) {
		t.Error("span-correlated recording must still count")
	}
}

func TestTraceExemplarLabels(t *testing.T) {
	sampled := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16},
		SpanID:     trace.SpanID{9, 8, 7, 6, 5, 4, 3, 2},
		TraceFlags: trace.FlagsSampled,
	})

	labels, ok := traceExemplarLabels(trace.ContextWithSpanContext(context.Background(), sampled))
	if !ok {
		t.Fatal("expected labels from a sampled span")
	}
	if labels["trace_id"] != sampled.TraceID().String() {
		t.Errorf("trace_id = %s, want %s", labels["trace_id"], sampled.TraceID().String())
	}
	if labels["span_id"] != sampled.SpanID().String() {
		t.Errorf("span_id = %s, want %s", labels["span_id"], sampled.SpanID().String())
	}

	unsampled := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: sampled.TraceID(),
		SpanID:  sampled.SpanID(),
	})
	if _, ok := traceExemplarLabels(trace.ContextWithSpanContext(context.Background(), unsampled)); ok {
		t.Error("unsampled span must not produce exemplar labels")
	}

	if _, ok := traceExemplarLabels(context.Background()); ok {
		t.Error("no span must not produce exemplar labels")
	}
}
