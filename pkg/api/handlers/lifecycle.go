package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/atriumhq/atrium/pkg/api/response"
	"github.com/atriumhq/atrium/pkg/episode"
	"github.com/atriumhq/atrium/pkg/lifecycle"
)

// LifecycleHandler serves feedback ingestion and manual sweep endpoints.
type LifecycleHandler struct {
	manager *lifecycle.Manager
	logger  handlerLogger
}

// NewLifecycleHandler creates a lifecycle handler.
func NewLifecycleHandler(mgr *lifecycle.Manager, log handlerLogger) *LifecycleHandler {
	return &LifecycleHandler{
		manager: mgr,
		logger:  log,
	}
}

type feedbackRequest struct {
	Score float64 `json:"score"`
}

// IngestFeedback handles POST /api/v1/episodes/{episodeID}/feedback
func (h *LifecycleHandler) IngestFeedback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	episodeID := chi.URLParam(r, "episodeID")

	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, "Invalid request body", getRequestID(ctx))
		return
	}
	if req.Score < 0 || req.Score > 1 {
		response.Error(w, http.StatusBadRequest, response.ErrCodeValidationFailed, "score must be in [0, 1]", getRequestID(ctx))
		return
	}

	updated, err := h.manager.IngestFeedback(ctx, episodeID, req.Score)
	if err != nil {
		if errors.Is(err, episode.ErrNotFound) {
			response.Error(w, http.StatusNotFound, response.ErrCodeNotFound, "Episode not found", getRequestID(ctx))
			return
		}
		h.logger.Error("feedback ingest failed", "episode_id", episodeID, "error", err)
		response.Error(w, http.StatusInternalServerError, response.ErrCodeInternalServer, "Failed to ingest feedback", getRequestID(ctx))
		return
	}

	response.JSON(w, http.StatusOK, updated)
}

// Sweep handles POST /api/v1/lifecycle/sweep. It runs a maintenance pass
// on demand, outside the regular schedule.
func (h *LifecycleHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	stats, err := h.manager.Sweep(ctx)
	if err != nil {
		h.logger.Error("manual sweep failed", "error", err)
		response.Error(w, http.StatusInternalServerError, response.ErrCodeInternalServer, "Sweep failed", getRequestID(ctx))
		return
	}

	h.logger.Info("manual sweep completed",
		"decayed", stats.Decayed,
		"archived", stats.Archived,
		"consolidated", stats.Consolidated)
	response.JSON(w, http.StatusOK, stats)
}
