// Package handlers provides HTTP request handlers.
package handlers

import (
	"context"

	"github.com/atriumhq/atrium/pkg/api/middleware"
)

// handlerLogger is the minimal logger interface used by handlers.
type handlerLogger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// getRequestID extracts request ID from context
func getRequestID(ctx context.Context) string {
	if reqID := middleware.GetRequestID(ctx); reqID != "" {
		return reqID
	}
	return "unknown"
}
