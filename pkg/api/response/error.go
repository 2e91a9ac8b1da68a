package response

import (
	"errors"
	"net/http"

	"github.com/atriumhq/atrium/pkg/capability"
	"github.com/atriumhq/atrium/pkg/episode"
	"github.com/atriumhq/atrium/pkg/governance"
)

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error information.
type ErrorDetail struct {
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	RequestID string                 `json:"request_id"`
}

// Common error codes
const (
	ErrCodeBadRequest         = "BAD_REQUEST"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeForbidden          = "FORBIDDEN"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
	ErrCodeConflict           = "CONFLICT"
	ErrCodeValidationFailed   = "VALIDATION_FAILED"
	ErrCodeInternalServer     = "INTERNAL_SERVER_ERROR"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	ErrCodeGatewayTimeout     = "GATEWAY_TIMEOUT"
)

// HTTPStatusFromError maps the domain sentinel errors onto HTTP status
// codes. Anything unrecognized is a 500.
func HTTPStatusFromError(err error) int {
	switch {
	case errors.Is(err, episode.ErrNotFound),
		errors.Is(err, governance.ErrUnknownAgent):
		return http.StatusNotFound
	case errors.Is(err, episode.ErrInvalidUserID),
		errors.Is(err, episode.ErrInvalidSessionID),
		errors.Is(err, episode.ErrInvalidAgentID),
		errors.Is(err, episode.ErrInvalidTimeRange),
		errors.Is(err, episode.ErrInvalidDetail),
		errors.Is(err, episode.ErrInvalidCanvasType),
		errors.Is(err, governance.ErrInvalidLevel),
		errors.Is(err, governance.ErrInvalidScore):
		return http.StatusBadRequest
	case errors.Is(err, episode.ErrVersionConflict),
		errors.Is(err, episode.ErrOverlappingRange),
		errors.Is(err, episode.ErrArchivedWrite),
		errors.Is(err, governance.ErrProfileConflict),
		errors.Is(err, governance.ErrAtMaxLevel):
		return http.StatusConflict
	case errors.Is(err, episode.ErrStoreUnavailable),
		errors.Is(err, episode.ErrIndexUnavailable),
		errors.Is(err, capability.ErrUnavailable),
		errors.Is(err, capability.ErrNoProviders):
		return http.StatusServiceUnavailable
	case errors.Is(err, capability.ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// ErrorCodeFromStatus returns an error code for the given HTTP status.
func ErrorCodeFromStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return ErrCodeBadRequest
	case http.StatusUnauthorized:
		return ErrCodeUnauthorized
	case http.StatusForbidden:
		return ErrCodeForbidden
	case http.StatusNotFound:
		return ErrCodeNotFound
	case http.StatusMethodNotAllowed:
		return ErrCodeMethodNotAllowed
	case http.StatusConflict:
		return ErrCodeConflict
	case http.StatusServiceUnavailable:
		return ErrCodeServiceUnavailable
	case http.StatusGatewayTimeout:
		return ErrCodeGatewayTimeout
	default:
		return ErrCodeInternalServer
	}
}

// HandleError writes the response a domain error maps to. Validation
// errors keep their message; everything 500-level gets a generic one so
// internals never leak to clients.
func HandleError(w http.ResponseWriter, err error, requestID string) {
	status := HTTPStatusFromError(err)
	code := ErrorCodeFromStatus(status)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal server error"
	}
	Error(w, status, code, msg, requestID)
}
