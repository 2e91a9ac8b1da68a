package handlers

import (
	"net/http"

	"github.com/atriumhq/atrium/pkg/api/response"
	"github.com/atriumhq/atrium/pkg/version"
)

// ComponentChecker reports whether one subsystem is serving.
type ComponentChecker func() error

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	components map[string]ComponentChecker
}

// NewHealthHandler creates a health handler. components maps subsystem
// names to readiness checks; a nil map means always ready.
func NewHealthHandler(components map[string]ComponentChecker) *HealthHandler {
	return &HealthHandler{components: components}
}

// Health handles the /health endpoint (liveness probe).
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Ready handles the /ready endpoint (readiness probe).
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	for name, check := range h.components {
		if err := check(); err != nil {
			response.JSON(w, http.StatusServiceUnavailable, map[string]any{
				"ready":     false,
				"component": name,
				"error":     err.Error(),
			})
			return
		}
	}
	response.JSON(w, http.StatusOK, map[string]bool{
		"ready": true,
	})
}

// Status handles the /status endpoint (detailed status).
func (h *HealthHandler) Status(w http.ResponseWriter, r *http.Request) {
	components := make(map[string]string, len(h.components))
	for name, check := range h.components {
		if err := check(); err != nil {
			components[name] = err.Error()
			continue
		}
		components[name] = "ok"
	}
	response.JSON(w, http.StatusOK, map[string]any{
		"version":    version.Info(),
		"components": components,
	})
}
