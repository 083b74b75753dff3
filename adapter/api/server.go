// Package api exposes the engine's command surface over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	agingDomain "github.com/felixgeelhaar/gadfly/internal/aging/domain"
	"github.com/felixgeelhaar/gadfly/internal/engine"
	"github.com/felixgeelhaar/gadfly/internal/engine/consumers"
	escalationDomain "github.com/felixgeelhaar/gadfly/internal/escalation/domain"
	nagDomain "github.com/felixgeelhaar/gadfly/internal/nagging/domain"
	"github.com/felixgeelhaar/gadfly/internal/phrases"
	rewardsDomain "github.com/felixgeelhaar/gadfly/internal/rewards/domain"
	rotationDomain "github.com/felixgeelhaar/gadfly/internal/rotation/domain"
	sharedDomain "github.com/felixgeelhaar/gadfly/internal/shared/domain"
	"github.com/felixgeelhaar/gadfly/internal/shared/infrastructure/eventbus"
	"github.com/felixgeelhaar/gadfly/pkg/observability"
)

// Server is the HTTP API server.
type Server struct {
	mux     *http.ServeMux
	server  *http.Server
	logger  *slog.Logger
	handler *Handler
	health  *observability.HealthRegistry
}

// ServerConfig holds configuration for the API server.
type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultServerConfig returns the default server configuration.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:         "127.0.0.1:8380",
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// NewServer creates a new API server. health may be nil.
func NewServer(cfg ServerConfig, handler *Handler, health *observability.HealthRegistry, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if health == nil {
		health = observability.NewHealthRegistry()
	}

	s := &Server{
		mux:     http.NewServeMux(),
		logger:  logger,
		handler: handler,
		health:  health,
	}
	s.registerRoutes()

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

// registerRoutes sets up the API routes.
func (s *Server) registerRoutes() {
	s.mux.Handle("GET /healthz", s.health.Handler())
	s.mux.HandleFunc("GET /metrics", s.handler.Metrics)

	// Nags
	s.mux.HandleFunc("GET /nags", s.handler.ListNags)
	s.mux.HandleFunc("POST /tasks/{id}/schedule", s.handler.ScheduleNag)
	s.mux.HandleFunc("POST /tasks/{id}/cancel", s.handler.CancelNag)
	s.mux.HandleFunc("POST /tasks/{id}/delivery", s.handler.ReportDelivery)
	s.mux.HandleFunc("POST /tick", s.handler.Tick)
	s.mux.HandleFunc("POST /permission/restore", s.handler.RestorePermission)

	// Tasks
	s.mux.HandleFunc("GET /tasks/{id}/aging", s.handler.Aging)
	s.mux.HandleFunc("POST /tasks/{id}/blocker", s.handler.SetBlocker)
	s.mux.HandleFunc("DELETE /tasks/{id}/blocker", s.handler.ClearBlocker)
	s.mux.HandleFunc("POST /tasks/{id}/push", s.handler.PushDue)
	s.mux.HandleFunc("POST /taskstore/events", s.handler.IngestTaskEvent)

	// Escalation and momentum
	s.mux.HandleFunc("POST /rollover", s.handler.Rollover)
	s.mux.HandleFunc("GET /escalation", s.handler.ListEscalation)
	s.mux.HandleFunc("GET /escalation/{scope}", s.handler.GetEscalation)
	s.mux.HandleFunc("GET /momentum", s.handler.Momentum)

	// Ledger
	s.mux.HandleFunc("GET /ledger", s.handler.GetLedger)
	s.mux.HandleFunc("POST /ledger/credit", s.handler.Credit)
	s.mux.HandleFunc("POST /ledger/redeem", s.handler.Redeem)
	s.mux.HandleFunc("GET /rewards", s.handler.ListRewards)
	s.mux.HandleFunc("GET /redemptions", s.handler.ListRedemptions)
	s.mux.HandleFunc("GET /redemptions/{id}", s.handler.GetRedemption)
	s.mux.HandleFunc("POST /redemptions/{id}/{action}", s.handler.DecideRedemption)
	s.mux.HandleFunc("GET /challenges", s.handler.Challenges)

	// Goals
	s.mux.HandleFunc("GET /goals", s.handler.ListGoals)
	s.mux.HandleFunc("POST /goals", s.handler.CreateGoal)
	s.mux.HandleFunc("GET /goals/{id}", s.handler.GetGoal)
	s.mux.HandleFunc("POST /goals/{id}/milestones/complete", s.handler.CompleteMilestone)
	s.mux.HandleFunc("POST /goals/{id}/status", s.handler.SetGoalStatus)

	// Phrases
	s.mux.HandleFunc("POST /speak/{category}", s.handler.Speak)
}

// Handler returns the routed handler with request context attached.
func (s *Server) Handler() http.Handler {
	return withRequestContext(s.mux)
}

// Start starts the API server.
func (s *Server) Start() error {
	s.logger.Info("starting API server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")
	return s.server.Shutdown(ctx)
}

// withRequestContext tags each request with a request ID and the caller's
// X-Correlation-ID, which then flows into outbox event metadata.
func withRequestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		correlationID := r.Header.Get("X-Correlation-ID")
		if _, err := uuid.Parse(correlationID); err != nil {
			correlationID = ""
		}
		ctx := observability.NewRequestContext(r.Context(), correlationID)
		w.Header().Set("X-Request-ID", observability.RequestIDFromContext(ctx))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Log error but can't do much at this point
			slog.Error("failed to encode JSON response", "error", err)
		}
	}
}

// writeAPIError writes a JSON error response.
func writeAPIError(w http.ResponseWriter, e *APIError) {
	writeJSON(w, e.Status, e)
}

// APIError represents an API error.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Common API errors
var (
	ErrBadRequest = &APIError{
		Status:  http.StatusBadRequest,
		Code:    "bad_request",
		Message: "Invalid request",
	}
	ErrNotFound = &APIError{
		Status:  http.StatusNotFound,
		Code:    "not_found",
		Message: "Resource not found",
	}
	ErrInternalServer = &APIError{
		Status:  http.StatusInternalServerError,
		Code:    "internal_error",
		Message: "Internal server error",
	}
)

var errorCodes = []struct {
	err    error
	status int
	code   string
}{
	{rewardsDomain.ErrInsufficientBalance, http.StatusConflict, "insufficient_balance"},
	{rewardsDomain.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
	{escalationDomain.ErrInvalidGoalTransition, http.StatusConflict, "invalid_transition"},
	{escalationDomain.ErrGoalNotActive, http.StatusConflict, "goal_not_active"},
	{rewardsDomain.ErrRedemptionNotFound, http.StatusNotFound, "redemption_not_found"},
	{rewardsDomain.ErrUnknownReward, http.StatusNotFound, "unknown_reward"},
	{agingDomain.ErrTaskNotTracked, http.StatusNotFound, "task_not_tracked"},
	{escalationDomain.ErrGoalNotFound, http.StatusNotFound, "goal_not_found"},
	{rotationDomain.ErrEmptyPool, http.StatusNotFound, "no_phrases"},
	{phrases.ErrNoPhrases, http.StatusNotFound, "no_phrases"},
	{rewardsDomain.ErrInvalidAmount, http.StatusBadRequest, "invalid_amount"},
	{engine.ErrInvalidPush, http.StatusBadRequest, "invalid_push"},
	{nagDomain.ErrInvalidInterval, http.StatusBadRequest, "invalid_interval"},
	{nagDomain.ErrInvalidOutcome, http.StatusBadRequest, "invalid_outcome"},
	{nagDomain.ErrEmptyTaskID, http.StatusBadRequest, "missing_task_id"},
	{agingDomain.ErrEmptyTaskID, http.StatusBadRequest, "missing_task_id"},
	{agingDomain.ErrInvalidBlockerReason, http.StatusBadRequest, "invalid_blocker_reason"},
	{escalationDomain.ErrInvalidScope, http.StatusBadRequest, "invalid_scope"},
	{escalationDomain.ErrInvalidGoalStatus, http.StatusBadRequest, "invalid_goal_status"},
	{escalationDomain.ErrGoalEmptyTitle, http.StatusBadRequest, "invalid_goal"},
	{escalationDomain.ErrGoalNoMilestones, http.StatusBadRequest, "invalid_goal"},
	{escalationDomain.ErrMilestoneEmptyTitle, http.StatusBadRequest, "invalid_goal"},
	{sharedDomain.ErrInvalidPriority, http.StatusBadRequest, "invalid_priority"},
	{consumers.ErrMissingTaskID, http.StatusBadRequest, "missing_task_id"},
	{eventbus.ErrEmptyPayload, http.StatusBadRequest, "empty_payload"},
	{phrases.ErrEmptyCategory, http.StatusBadRequest, "invalid_category"},
}

// toAPIError maps engine sentinel errors to HTTP answers.
func toAPIError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return &APIError{Status: ec.status, Code: ec.code, Message: err.Error()}
		}
	}
	return ErrInternalServer
}

func badRequest(msg string) *APIError {
	return &APIError{Status: http.StatusBadRequest, Code: ErrBadRequest.Code, Message: msg}
}
