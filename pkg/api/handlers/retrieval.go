package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/atriumhq/atrium/pkg/api/response"
	"github.com/atriumhq/atrium/pkg/episode"
	"github.com/atriumhq/atrium/pkg/retrieval"
)

// retrievalMetrics is the slice of the metrics manager retrieval
// requests are recorded against.
type retrievalMetrics interface {
	RecordRetrieval(mode, outcome string, results int, duration time.Duration)
}

// RetrievalHandler serves the four episode query modes.
type RetrievalHandler struct {
	engine  *retrieval.Engine
	metrics retrievalMetrics
	logger  handlerLogger
}

// NewRetrievalHandler creates a retrieval handler. metrics may be nil.
func NewRetrievalHandler(eng *retrieval.Engine, metrics retrievalMetrics, log handlerLogger) *RetrievalHandler {
	return &RetrievalHandler{
		engine:  eng,
		metrics: metrics,
		logger:  log,
	}
}

// --- Request types ---

type semanticRequest struct {
	UserID        string  `json:"user_id"`
	SessionID     string  `json:"session_id,omitempty"`
	Query         string  `json:"query"`
	Limit         int     `json:"limit,omitempty"`
	MinSimilarity float64 `json:"min_similarity,omitempty"`
	Detail        string  `json:"detail,omitempty"`
}

type contextualRequest struct {
	UserID        string `json:"user_id"`
	SessionID     string `json:"session_id,omitempty"`
	Query         string `json:"query"`
	Limit         int    `json:"limit,omitempty"`
	CanvasType    string `json:"canvas_type,omitempty"`
	DataKey       string `json:"data_key,omitempty"`
	DataValue     string `json:"data_value,omitempty"`
	BoostFeedback bool   `json:"boost_feedback,omitempty"`
	Detail        string `json:"detail,omitempty"`
}

// Temporal handles GET /api/v1/memory/temporal
func (h *RetrievalHandler) Temporal(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	params := r.URL.Query()

	detail, err := episode.ParseDetail(params.Get("detail"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, response.ErrCodeValidationFailed, err.Error(), getRequestID(ctx))
		return
	}

	q := retrieval.TemporalQuery{
		UserID:  params.Get("user_id"),
		AgentID: params.Get("agent_id"),
		Limit:   intParam(params.Get("limit")),
		Offset:  intParam(params.Get("offset")),
		Detail:  detail,
	}
	if from := params.Get("from"); from != "" {
		t, err := time.Parse(time.RFC3339, from)
		if err != nil {
			response.Error(w, http.StatusBadRequest, response.ErrCodeValidationFailed, "from must be RFC 3339", getRequestID(ctx))
			return
		}
		q.From = t
	}
	if to := params.Get("to"); to != "" {
		t, err := time.Parse(time.RFC3339, to)
		if err != nil {
			response.Error(w, http.StatusBadRequest, response.ErrCodeValidationFailed, "to must be RFC 3339", getRequestID(ctx))
			return
		}
		q.To = t
	}

	begin := time.Now()
	result, err := h.engine.Temporal(ctx, q)
	h.record("temporal", result, err, begin)
	if err != nil {
		h.writeQueryError(w, r, "temporal", err)
		return
	}
	response.JSON(w, http.StatusOK, result)
}

// Semantic handles POST /api/v1/memory/semantic
func (h *RetrievalHandler) Semantic(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req semanticRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, "Invalid request body", getRequestID(ctx))
		return
	}
	detail, err := episode.ParseDetail(req.Detail)
	if err != nil {
		response.Error(w, http.StatusBadRequest, response.ErrCodeValidationFailed, err.Error(), getRequestID(ctx))
		return
	}

	begin := time.Now()
	result, err := h.engine.Semantic(ctx, retrieval.SemanticQuery{
		UserID:        req.UserID,
		SessionID:     req.SessionID,
		Text:          req.Query,
		Limit:         req.Limit,
		MinSimilarity: req.MinSimilarity,
		Detail:        detail,
	})
	h.record("semantic", result, err, begin)
	if err != nil {
		h.writeQueryError(w, r, "semantic", err)
		return
	}
	response.JSON(w, http.StatusOK, result)
}

// Sequential handles GET /api/v1/memory/sessions/{sessionID}
func (h *RetrievalHandler) Sequential(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := chi.URLParam(r, "sessionID")
	params := r.URL.Query()

	detail, err := episode.ParseDetail(params.Get("detail"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, response.ErrCodeValidationFailed, err.Error(), getRequestID(ctx))
		return
	}
	includeArchived := params.Get("include_archived") == "true"

	begin := time.Now()
	result, err := h.engine.Sequential(ctx, params.Get("user_id"), sessionID, detail, includeArchived)
	h.record("sequential", result, err, begin)
	if err != nil {
		h.writeQueryError(w, r, "sequential", err)
		return
	}
	response.JSON(w, http.StatusOK, result)
}

// Contextual handles POST /api/v1/memory/contextual
func (h *RetrievalHandler) Contextual(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req contextualRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, "Invalid request body", getRequestID(ctx))
		return
	}
	detail, err := episode.ParseDetail(req.Detail)
	if err != nil {
		response.Error(w, http.StatusBadRequest, response.ErrCodeValidationFailed, err.Error(), getRequestID(ctx))
		return
	}

	begin := time.Now()
	result, err := h.engine.Contextual(ctx, retrieval.ContextualQuery{
		UserID:        req.UserID,
		SessionID:     req.SessionID,
		Text:          req.Query,
		Limit:         req.Limit,
		CanvasType:    episode.CanvasType(req.CanvasType),
		DataKey:       req.DataKey,
		DataValue:     req.DataValue,
		BoostFeedback: req.BoostFeedback,
		Detail:        detail,
	})
	h.record("contextual", result, err, begin)
	if err != nil {
		h.writeQueryError(w, r, "contextual", err)
		return
	}
	response.JSON(w, http.StatusOK, result)
}

func (h *RetrievalHandler) record(mode string, result *retrieval.Result, err error, begin time.Time) {
	if h.metrics == nil {
		return
	}
	outcome := "ok"
	results := 0
	if err != nil {
		outcome = "error"
	} else if result != nil {
		results = len(result.Episodes)
	}
	h.metrics.RecordRetrieval(mode, outcome, results, time.Since(begin))
}

func (h *RetrievalHandler) writeQueryError(w http.ResponseWriter, r *http.Request, mode string, err error) {
	ctx := r.Context()
	switch {
	case errors.Is(err, episode.ErrInvalidUserID),
		errors.Is(err, episode.ErrInvalidSessionID),
		errors.Is(err, episode.ErrInvalidCanvasType),
		errors.Is(err, retrieval.ErrEmptyQuery):
		response.Error(w, http.StatusBadRequest, response.ErrCodeValidationFailed, err.Error(), getRequestID(ctx))
	case errors.Is(err, episode.ErrIndexUnavailable):
		response.Error(w, http.StatusServiceUnavailable, response.ErrCodeServiceUnavailable, "Vector search unavailable", getRequestID(ctx))
	default:
		h.logger.Error("retrieval failed", "mode", mode, "error", err)
		response.Error(w, http.StatusInternalServerError, response.ErrCodeInternalServer, "Retrieval failed", getRequestID(ctx))
	}
}

func intParam(s string) int {
	if s == "" {
		return 0
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return 0
	}
	return v
}
