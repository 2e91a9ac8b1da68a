package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/atriumhq/atrium/pkg/api/response"
	"github.com/atriumhq/atrium/pkg/episode"
	"github.com/atriumhq/atrium/pkg/segment"
)

// SessionHandler ingests session turn streams into the segmenter.
type SessionHandler struct {
	segmenter *segment.Segmenter
	logger    handlerLogger
}

// NewSessionHandler creates a session handler.
func NewSessionHandler(seg *segment.Segmenter, log handlerLogger) *SessionHandler {
	return &SessionHandler{
		segmenter: seg,
		logger:    log,
	}
}

// --- Request/Response types ---

type appendTurnRequest struct {
	UserID    string `json:"user_id"`
	AgentID   string `json:"agent_id"`
	AgentTask string `json:"agent_task,omitempty"`

	Index     int                  `json:"index"`
	Timestamp time.Time            `json:"timestamp"`
	Actor     string               `json:"actor"`
	Content   string               `json:"content"`
	Terminal  bool                 `json:"terminal,omitempty"`
	Canvas    *episode.CanvasAudit `json:"canvas,omitempty"`
	Feedback  *float64             `json:"feedback,omitempty"`
}

type appendTurnResponse struct {
	// ClosedEpisode is set when the turn closed an episode.
	ClosedEpisode *episode.Episode `json:"closed_episode,omitempty"`
}

type closeSessionRequest struct {
	UserID string `json:"user_id"`
}

// AppendTurn handles POST /api/v1/sessions/{sessionID}/turns
func (h *SessionHandler) AppendTurn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := chi.URLParam(r, "sessionID")

	var req appendTurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, "Invalid request body", getRequestID(ctx))
		return
	}
	if req.Timestamp.IsZero() {
		req.Timestamp = time.Now().UTC()
	}

	meta := segment.SessionMeta{
		SessionID: sessionID,
		UserID:    req.UserID,
		AgentID:   req.AgentID,
		AgentTask: req.AgentTask,
	}
	turn := segment.Turn{
		Index:     req.Index,
		Timestamp: req.Timestamp,
		Actor:     segment.Actor(req.Actor),
		Content:   req.Content,
		Terminal:  req.Terminal,
		Canvas:    req.Canvas,
		Feedback:  req.Feedback,
	}

	closed, err := h.segmenter.Append(ctx, meta, turn)
	if err != nil {
		switch {
		case errors.Is(err, episode.ErrInvalidUserID),
			errors.Is(err, episode.ErrInvalidSessionID),
			errors.Is(err, episode.ErrInvalidAgentID),
			errors.Is(err, segment.ErrOutOfOrderTurn):
			response.Error(w, http.StatusBadRequest, response.ErrCodeValidationFailed, err.Error(), getRequestID(ctx))
		default:
			h.logger.Error("turn ingestion failed", "session_id", sessionID, "error", err)
			response.Error(w, http.StatusInternalServerError, response.ErrCodeInternalServer, "Failed to ingest turn", getRequestID(ctx))
		}
		return
	}

	status := http.StatusAccepted
	if closed != nil {
		status = http.StatusCreated
	}
	response.JSON(w, status, appendTurnResponse{ClosedEpisode: closed})
}

// CloseSession handles POST /api/v1/sessions/{sessionID}/close
func (h *SessionHandler) CloseSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := chi.URLParam(r, "sessionID")

	var req closeSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, "Invalid request body", getRequestID(ctx))
		return
	}
	if req.UserID == "" {
		response.Error(w, http.StatusBadRequest, response.ErrCodeValidationFailed, "user_id is required", getRequestID(ctx))
		return
	}

	closed, err := h.segmenter.CloseSession(ctx, req.UserID, sessionID)
	if err != nil {
		if errors.Is(err, segment.ErrNoOpenEpisode) {
			response.Error(w, http.StatusNotFound, response.ErrCodeNotFound, "No open episode for session", getRequestID(ctx))
			return
		}
		h.logger.Error("session close failed", "session_id", sessionID, "error", err)
		response.Error(w, http.StatusInternalServerError, response.ErrCodeInternalServer, "Failed to close session", getRequestID(ctx))
		return
	}

	response.JSON(w, http.StatusOK, appendTurnResponse{ClosedEpisode: closed})
}
