package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/atriumhq/atrium/pkg/api/response"
	"github.com/atriumhq/atrium/pkg/governance"
)

// GovernanceHandler serves action gating and graduation endpoints.
type GovernanceHandler struct {
	engine *governance.Engine
	logger handlerLogger
}

// NewGovernanceHandler creates a governance handler.
func NewGovernanceHandler(eng *governance.Engine, log handlerLogger) *GovernanceHandler {
	return &GovernanceHandler{
		engine: eng,
		logger: log,
	}
}

// --- Request/Response types ---

type checkActionRequest struct {
	ActionType string `json:"action_type"`
}

type interventionRequest struct {
	ActionType string `json:"action_type"`
	Note       string `json:"note,omitempty"`
}

type constitutionalRequest struct {
	Score float64 `json:"score"`
}

type profileResponse struct {
	Profile        *governance.AgentProfile `json:"profile"`
	ReadinessScore float64                  `json:"readiness_score"`
}

// CheckAction handles POST /api/v1/agents/{agentID}/actions/check
func (h *GovernanceHandler) CheckAction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	agentID := chi.URLParam(r, "agentID")

	var req checkActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, "Invalid request body", getRequestID(ctx))
		return
	}
	if req.ActionType == "" {
		response.Error(w, http.StatusBadRequest, response.ErrCodeValidationFailed, "action_type is required", getRequestID(ctx))
		return
	}

	result, err := h.engine.CanPerformAction(ctx, agentID, req.ActionType)
	if err != nil {
		h.logger.Error("action check failed", "agent_id", agentID, "error", err)
		response.Error(w, http.StatusInternalServerError, response.ErrCodeInternalServer, "Action check failed", getRequestID(ctx))
		return
	}

	response.JSON(w, http.StatusOK, result)
}

// RecordIntervention handles POST /api/v1/agents/{agentID}/interventions
func (h *GovernanceHandler) RecordIntervention(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	agentID := chi.URLParam(r, "agentID")

	var req interventionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, "Invalid request body", getRequestID(ctx))
		return
	}
	if req.ActionType == "" {
		response.Error(w, http.StatusBadRequest, response.ErrCodeValidationFailed, "action_type is required", getRequestID(ctx))
		return
	}

	rec, err := h.engine.RecordIntervention(ctx, agentID, req.ActionType, req.Note)
	if err != nil {
		h.logger.Error("intervention record failed", "agent_id", agentID, "error", err)
		response.Error(w, http.StatusInternalServerError, response.ErrCodeInternalServer, "Failed to record intervention", getRequestID(ctx))
		return
	}

	response.JSON(w, http.StatusCreated, rec)
}

// EvaluateGraduation handles POST /api/v1/agents/{agentID}/graduation
func (h *GovernanceHandler) EvaluateGraduation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	agentID := chi.URLParam(r, "agentID")

	result, err := h.engine.EvaluateGraduation(ctx, agentID)
	if err != nil {
		h.logger.Error("graduation check failed", "agent_id", agentID, "error", err)
		response.Error(w, http.StatusInternalServerError, response.ErrCodeInternalServer, "Graduation check failed", getRequestID(ctx))
		return
	}

	response.JSON(w, http.StatusOK, result)
}

// Profile handles GET /api/v1/agents/{agentID}/profile
func (h *GovernanceHandler) Profile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	agentID := chi.URLParam(r, "agentID")

	profile, readiness, err := h.engine.Profile(ctx, agentID)
	if err != nil {
		if errors.Is(err, governance.ErrUnknownAgent) {
			response.Error(w, http.StatusNotFound, response.ErrCodeNotFound, "Unknown agent", getRequestID(ctx))
			return
		}
		h.logger.Error("profile lookup failed", "agent_id", agentID, "error", err)
		response.Error(w, http.StatusInternalServerError, response.ErrCodeInternalServer, "Profile lookup failed", getRequestID(ctx))
		return
	}

	response.JSON(w, http.StatusOK, profileResponse{
		Profile:        profile,
		ReadinessScore: readiness,
	})
}

// SetConstitutionalScore handles PUT /api/v1/agents/{agentID}/constitutional
func (h *GovernanceHandler) SetConstitutionalScore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	agentID := chi.URLParam(r, "agentID")

	var req constitutionalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, "Invalid request body", getRequestID(ctx))
		return
	}

	if err := h.engine.SetConstitutionalScore(ctx, agentID, req.Score); err != nil {
		if errors.Is(err, governance.ErrInvalidScore) {
			response.Error(w, http.StatusBadRequest, response.ErrCodeValidationFailed, err.Error(), getRequestID(ctx))
			return
		}
		h.logger.Error("constitutional score update failed", "agent_id", agentID, "error", err)
		response.Error(w, http.StatusInternalServerError, response.ErrCodeInternalServer, "Failed to update score", getRequestID(ctx))
		return
	}

	response.JSON(w, http.StatusNoContent, nil)
}
