package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func runRequestID(t *testing.T, header string) (contextID, responseID string) {
	t.Helper()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contextID = GetRequestID(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/sessions/s-1/turns", nil)
	if header != "" {
		req.Header.Set("X-Request-ID", header)
	}
	w := httptest.NewRecorder()
	RequestID()(handler).ServeHTTP(w, req)

	return contextID, w.Header().Get("X-Request-ID")
}

func TestRequestIDMintedWhenAbsent(t *testing.T) {
	ctxID, respID := runRequestID(t, "")

	if ctxID == "" || respID == "" {
		t.Fatal("request ID missing from context or response header")
	}
	if ctxID != respID {
		t.Errorf("context ID %q != response header %q", ctxID, respID)
	}
	if _, err := uuid.Parse(ctxID); err != nil {
		t.Errorf("minted ID %q is not a UUID: %v", ctxID, err)
	}
}

func TestRequestIDHonorsClientHeader(t *testing.T) {
	ctxID, respID := runRequestID(t, "agent-run-4711")

	if ctxID != "agent-run-4711" {
		t.Errorf("context ID = %q, want the client-supplied value", ctxID)
	}
	if respID != "agent-run-4711" {
		t.Errorf("response ID = %q, want the client-supplied value", respID)
	}
}

func TestRequestIDRejectsHostileHeader(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"oversized", strings.Repeat("x", 200)},
		{"newline injection", "id\nfake-log-line"},
		{"embedded space", "id with spaces"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctxID, _ := runRequestID(t, tt.header)
			if ctxID == tt.header {
				t.Fatal("hostile header value must be replaced")
			}
			if _, err := uuid.Parse(ctxID); err != nil {
				t.Errorf("replacement ID %q is not a UUID: %v", ctxID, err)
			}
		})
	}
}

func TestGetRequestIDWithoutMiddleware(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if got := GetRequestID(req.Context()); got != "" {
		t.Errorf("GetRequestID = %q, want empty without middleware", got)
	}
}
