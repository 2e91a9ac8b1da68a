// Package api provides HTTP API server components.
package api

import (
	"github.com/go-chi/chi/v5"

	"github.com/atriumhq/atrium/config"
	"github.com/atriumhq/atrium/pkg/api/handlers"
	"github.com/atriumhq/atrium/pkg/api/middleware"
	"github.com/atriumhq/atrium/pkg/logger"
)

// Handlers holds all HTTP handlers.
type Handlers struct {
	// Session handles turn ingestion endpoints
	Session *handlers.SessionHandler

	// Retrieval handles memory query endpoints
	Retrieval *handlers.RetrievalHandler

	// Governance handles action gating and graduation endpoints
	Governance *handlers.GovernanceHandler

	// Lifecycle handles feedback and sweep endpoints
	Lifecycle *handlers.LifecycleHandler

	// Health handles health check endpoints
	Health *handlers.HealthHandler

	// WebSocket streams platform events to clients
	WebSocket *handlers.WebSocketHandler

	// Metrics is the optional metrics recorder
	Metrics middleware.MetricsRecorder
}

// NewRouter creates a new chi router with middleware and routes.
func NewRouter(cfg *config.Config, log logger.Logger, handlers *Handlers) chi.Router {
	r := chi.NewRouter()

	// Register global middleware
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(log))
	r.Use(middleware.Recovery(log))

	if cfg.Tracing.Enabled {
		r.Use(middleware.Tracing(middleware.DefaultTracingOptions()))
	}

	// Add metrics middleware if provided
	if handlers.Metrics != nil {
		r.Use(middleware.Metrics(handlers.Metrics))
	}

	if cfg.Server.CORS.Enabled {
		r.Use(middleware.CORS(&cfg.Server.CORS))
	}
	r.Use(middleware.Timeout(cfg.Server.ReadTimeout))

	// Register routes
	RegisterRoutes(r, handlers)

	return r
}

// RegisterRoutes registers all API routes.
func RegisterRoutes(r chi.Router, handlers *Handlers) {
	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Session ingestion routes
		if handlers.Session != nil {
			r.Route("/sessions/{sessionID}", func(r chi.Router) {
				r.Post("/turns", handlers.Session.AppendTurn)
				r.Post("/close", handlers.Session.CloseSession)
			})
		}

		// Memory retrieval routes
		if handlers.Retrieval != nil {
			r.Route("/memory", func(r chi.Router) {
				r.Get("/temporal", handlers.Retrieval.Temporal)
				r.Post("/semantic", handlers.Retrieval.Semantic)
				r.Get("/sessions/{sessionID}", handlers.Retrieval.Sequential)
				r.Post("/contextual", handlers.Retrieval.Contextual)
			})
		}

		// Governance routes
		if handlers.Governance != nil {
			r.Route("/agents/{agentID}", func(r chi.Router) {
				r.Post("/actions/check", handlers.Governance.CheckAction)
				r.Post("/interventions", handlers.Governance.RecordIntervention)
				r.Post("/graduation", handlers.Governance.EvaluateGraduation)
				r.Get("/profile", handlers.Governance.Profile)
				r.Put("/constitutional", handlers.Governance.SetConstitutionalScore)
			})
		}

		// Lifecycle routes
		if handlers.Lifecycle != nil {
			r.Post("/episodes/{episodeID}/feedback", handlers.Lifecycle.IngestFeedback)
			r.Post("/lifecycle/sweep", handlers.Lifecycle.Sweep)
		}
	})

	// Event stream (not versioned)
	if handlers.WebSocket != nil {
		r.Get("/ws/events", handlers.WebSocket.ServeHTTP)
	}

	// Health check routes (not versioned)
	if handlers.Health != nil {
		r.Get("/health", handlers.Health.Health)
		r.Get("/ready", handlers.Health.Ready)
		r.Get("/status", handlers.Health.Status)
	}
}
