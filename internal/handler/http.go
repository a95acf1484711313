package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spotbot/internal/auth"
	"github.com/spotbot/internal/domain"
	"github.com/spotbot/internal/metrics"
	"github.com/spotbot/internal/service"
	"github.com/spotbot/internal/websocket"
)

// ActorHeader carries the id of the chat user making the request
const ActorHeader = "X-Actor-ID"

// ReadinessCheck reports whether a dependency can serve traffic
type ReadinessCheck func(ctx context.Context) error

// Handler provides HTTP handlers for the game API
type Handler struct {
	engine      *service.Engine
	hub         *websocket.Hub
	policy      auth.Policy
	metrics     *metrics.Recorder
	metricsPath string
	checks      map[string]ReadinessCheck
	logger      *slog.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(engine *service.Engine, hub *websocket.Hub, policy auth.Policy, logger *slog.Logger) *Handler {
	return &Handler{
		engine: engine,
		hub:    hub,
		policy: policy,
		checks: make(map[string]ReadinessCheck),
		logger: logger,
	}
}

// SetMetrics exposes rec on path and records request metrics
func (h *Handler) SetMetrics(rec *metrics.Recorder, path string) {
	h.metrics = rec
	h.metricsPath = path
}

// AddReadinessCheck registers a dependency probed by /ready
func (h *Handler) AddReadinessCheck(name string, check ReadinessCheck) {
	h.checks[name] = check
}

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Router creates and configures the HTTP router
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(h.requestLogger)
	r.Use(corsMiddleware)
	r.Use(actorMiddleware)

	r.Get("/health", h.HealthCheck)
	r.Get("/ready", h.ReadyCheck)
	if h.metrics != nil && h.metricsPath != "" {
		r.Method(http.MethodGet, h.metricsPath, h.metrics.Handler())
	}

	if h.hub != nil {
		r.Get("/ws", h.HandleWebSocket)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/spots", h.SubmitSpot)
		r.Delete("/events/{eventKey}", h.RetractEvent)
		r.With(h.requireAdmin).Post("/events/{eventKey}/invalidate", h.InvalidateEvent)

		r.Route("/scopes/{scopeID}", func(r chi.Router) {
			r.Get("/leaderboard", h.GetLeaderboard)
			r.Get("/players/{playerID}/stats", h.GetPlayerStats)
			r.Get("/season", h.GetSeason)
			r.With(h.requireAdmin).Post("/season/reset", h.ResetSeason)
			r.Get("/bonus", h.GetBonus)

			r.Route("/ring", func(r chi.Router) {
				r.With(h.requireAdmin).Post("/start", h.StartRing)
				r.With(h.requireAdmin).Post("/abort", h.AbortRing)
				r.Post("/eliminate", h.Eliminate)
				r.Get("/target", h.GetTarget)
				r.Get("/players", h.ListRingPlayers)
				r.Get("/eliminations", h.ListEliminations)
				r.Get("/kills", h.GetTopKills)
			})
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(h.requireAdmin)
			r.Post("/rollover", h.TriggerRollover)
			r.Post("/bonuses/regenerate", h.TriggerBonuses)
		})

		if h.hub != nil {
			r.Get("/ws/stats", h.GetWebSocketStats)
		}
	})

	return r
}

// corsMiddleware adds CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, X-Request-ID, "+ActorHeader)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// actorMiddleware moves the actor header onto the request context
func actorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if actor := r.Header.Get(ActorHeader); actor != "" {
			r = r.WithContext(auth.WithActor(r.Context(), actor))
		}
		next.ServeHTTP(w, r)
	})
}

// requestLogger logs each request through slog and feeds the metrics
func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		h.metrics.RecordHTTPRequest(r.Method, route, status, time.Since(start))
		h.logger.Debug("http request",
			"method", r.Method,
			"route", route,
			"status", status,
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// requireAdmin rejects callers the policy does not allow
func (h *Handler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor := auth.ActorFrom(r.Context())
		scopeID := chi.URLParam(r, "scopeID")
		if h.policy == nil || !h.policy.CanAdminister(r.Context(), actor, scopeID) {
			h.logger.Warn("admin action denied", "actor_id", actor, "scope_id", scopeID, "path", r.URL.Path)
			h.writeError(w, http.StatusForbidden, domain.ErrForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Warn("failed to encode response", "error", err)
	}
}

// writeSuccess writes a successful JSON response
func (h *Handler) writeSuccess(w http.ResponseWriter, data any) {
	h.writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
	})
}

// writeError writes an error JSON response
func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, APIResponse{
		Success: false,
		Error:   err.Error(),
	})
}

// writeDomainError maps engine errors onto HTTP statuses. Unknown errors
// are logged and hidden behind a generic message.
func (h *Handler) writeDomainError(w http.ResponseWriter, op string, err error) {
	switch {
	case domain.IsNotFoundError(err):
		h.writeError(w, http.StatusNotFound, err)
	case errors.Is(err, domain.ErrInvalidRequest):
		h.writeError(w, http.StatusBadRequest, err)
	case domain.IsInputRejection(err):
		h.writeError(w, http.StatusUnprocessableEntity, err)
	case domain.IsStateConflict(err):
		h.writeError(w, http.StatusConflict, err)
	case errors.Is(err, domain.ErrForbidden):
		h.writeError(w, http.StatusForbidden, err)
	default:
		h.logger.Error("request failed", "op", op, "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
	}
}

// decode reads a JSON body into v
func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return domain.ErrInvalidRequest
	}
	return nil
}

// intQuery parses a positive integer query parameter, falling back to def
func intQuery(r *http.Request, name string, def int) int {
	if raw := r.URL.Query().Get(name); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			return v
		}
	}
	return def
}

// HandleWebSocket handles WebSocket upgrade requests
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.ServeWs(h.hub, h.logger, w, r)
}

// GetWebSocketStats returns WebSocket connection statistics
func (h *Handler) GetWebSocketStats(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]any{
		"total_connections": h.hub.TotalConnections(),
	})
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "healthy"})
}

// ReadyCheck probes every registered dependency
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	failed := map[string]string{}
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		h.writeJSON(w, http.StatusServiceUnavailable, APIResponse{
			Success: false,
			Data:    failed,
			Error:   "not ready",
		})
		return
	}
	h.writeSuccess(w, map[string]string{"status": "ready"})
}
