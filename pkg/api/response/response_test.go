package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/atriumhq/atrium/pkg/capability"
	"github.com/atriumhq/atrium/pkg/episode"
	"github.com/atriumhq/atrium/pkg/governance"
)

func TestJSONWritesBodyAndContentType(t *testing.T) {
	w := httptest.NewRecorder()
	JSON(w, http.StatusCreated, map[string]any{"episode_id": "ep-1", "turn_count": 3})

	if w.Code != http.StatusCreated {
		t.Errorf("status = %d, want 201", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	if body["episode_id"] != "ep-1" {
		t.Errorf("episode_id = %v, want ep-1", body["episode_id"])
	}
}

func TestJSONNilDataWritesNoBody(t *testing.T) {
	w := httptest.NewRecorder()
	JSON(w, http.StatusNoContent, nil)

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", w.Code)
	}
	if w.Body.Len() != 0 {
		t.Errorf("body = %q, want empty", w.Body.String())
	}
}

func TestJSONEncodeFailureIsCleanError(t *testing.T) {
	w := httptest.NewRecorder()
	// Channels are not JSON-encodable; the body must still be a single
	// well-formed error document.
	JSON(w, http.StatusOK, map[string]any{"ch": make(chan int)})

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("fallback body is not JSON: %v\n%s", err, w.Body.String())
	}
	if resp.Error.Code != ErrCodeInternalServer {
		t.Errorf("code = %q, want %q", resp.Error.Code, ErrCodeInternalServer)
	}
}

func TestErrorCarriesRequestID(t *testing.T) {
	w := httptest.NewRecorder()
	Error(w, http.StatusBadRequest, ErrCodeValidationFailed, "user_id is required", "req-42")

	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if resp.Error.Code != ErrCodeValidationFailed {
		t.Errorf("code = %q, want %q", resp.Error.Code, ErrCodeValidationFailed)
	}
	if resp.Error.Message != "user_id is required" {
		t.Errorf("message = %q", resp.Error.Message)
	}
	if resp.Error.RequestID != "req-42" {
		t.Errorf("request_id = %q, want req-42", resp.Error.RequestID)
	}
}

func TestErrorWithDetails(t *testing.T) {
	w := httptest.NewRecorder()
	ErrorWithDetails(w, http.StatusBadRequest, ErrCodeValidationFailed, "invalid query",
		map[string]interface{}{"field": "from", "reason": "must be RFC 3339"}, "req-7")

	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if resp.Error.Details["field"] != "from" {
		t.Errorf("details = %v, want field=from", resp.Error.Details)
	}
}

func TestHTTPStatusFromError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{episode.ErrNotFound, http.StatusNotFound},
		{governance.ErrUnknownAgent, http.StatusNotFound},
		{episode.ErrInvalidUserID, http.StatusBadRequest},
		{episode.ErrInvalidSessionID, http.StatusBadRequest},
		{episode.ErrInvalidTimeRange, http.StatusBadRequest},
		{governance.ErrInvalidScore, http.StatusBadRequest},
		{episode.ErrVersionConflict, http.StatusConflict},
		{episode.ErrArchivedWrite, http.StatusConflict},
		{governance.ErrAtMaxLevel, http.StatusConflict},
		{episode.ErrStoreUnavailable, http.StatusServiceUnavailable},
		{capability.ErrNoProviders, http.StatusServiceUnavailable},
		{capability.ErrTimeout, http.StatusGatewayTimeout},
		{errors.New("something else"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			if got := HTTPStatusFromError(tt.err); got != tt.want {
				t.Errorf("HTTPStatusFromError(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestHTTPStatusFromWrappedError(t *testing.T) {
	wrapped := fmt.Errorf("retrieval: load match ep-1: %w", episode.ErrNotFound)
	if got := HTTPStatusFromError(wrapped); got != http.StatusNotFound {
		t.Errorf("HTTPStatusFromError(wrapped) = %d, want 404", got)
	}
}

func TestHandleErrorHidesInternalMessage(t *testing.T) {
	w := httptest.NewRecorder()
	HandleError(w, errors.New("badger: transaction aborted at key ep/user-1"), "req-9")

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if resp.Error.Message != "internal server error" {
		t.Errorf("message = %q, internals must not leak", resp.Error.Message)
	}
}

func TestHandleErrorKeepsClientFacingMessage(t *testing.T) {
	w := httptest.NewRecorder()
	HandleError(w, episode.ErrInvalidUserID, "req-10")

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if resp.Error.Code != ErrCodeBadRequest {
		t.Errorf("code = %q, want %q", resp.Error.Code, ErrCodeBadRequest)
	}
	if resp.Error.Message != episode.ErrInvalidUserID.Error() {
		t.Errorf("message = %q, want the sentinel text", resp.Error.Message)
	}
}

func TestErrorCodeFromStatus(t *testing.T) {
	tests := []struct {
		status int
		want   string
	}{
		{http.StatusBadRequest, ErrCodeBadRequest},
		{http.StatusNotFound, ErrCodeNotFound},
		{http.StatusConflict, ErrCodeConflict},
		{http.StatusServiceUnavailable, ErrCodeServiceUnavailable},
		{http.StatusGatewayTimeout, ErrCodeGatewayTimeout},
		{999, ErrCodeInternalServer},
	}
	for _, tt := range tests {
		if got := ErrorCodeFromStatus(tt.status); got != tt.want {
			t.Errorf("ErrorCodeFromStatus(%d) = %q, want %q", tt.status, got, tt.want)
		}
	}
}
