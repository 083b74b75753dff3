package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"

	agingDomain "github.com/felixgeelhaar/gadfly/internal/aging/domain"
	"github.com/felixgeelhaar/gadfly/internal/engine"
	escalationDomain "github.com/felixgeelhaar/gadfly/internal/escalation/domain"
	nagDomain "github.com/felixgeelhaar/gadfly/internal/nagging/domain"
	rewardsDomain "github.com/felixgeelhaar/gadfly/internal/rewards/domain"
	sharedDomain "github.com/felixgeelhaar/gadfly/internal/shared/domain"
	"github.com/felixgeelhaar/gadfly/internal/shared/infrastructure/eventbus"
	"github.com/felixgeelhaar/gadfly/pkg/observability"
)

// Handler serves the engine's commands and read models.
type Handler struct {
	engine     *engine.Engine
	taskEvents eventbus.EventConsumer
	metrics    *observability.InMemoryMetrics
	logger     *slog.Logger
}

// HandlerConfig holds dependencies for the handler.
type HandlerConfig struct {
	Engine *engine.Engine
	// TaskEvents receives task-store events posted to /taskstore/events.
	TaskEvents eventbus.EventConsumer
	Metrics    *observability.InMemoryMetrics
	Logger     *slog.Logger
}

// NewHandler creates a new handler.
func NewHandler(cfg HandlerConfig) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Handler{
		engine:     cfg.Engine,
		taskEvents: cfg.TaskEvents,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger,
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := toAPIError(err)
	if apiErr.Status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
	}
	writeAPIError(w, apiErr)
}

// decodeJSON reads an optional JSON body into v.
func decodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return badRequest("malformed JSON body: " + err.Error())
	}
	return nil
}

type nagResponse struct {
	TaskID     string    `json:"task_id"`
	Interval   string    `json:"interval"`
	NextFireAt time.Time `json:"next_fire_at"`
	NextFireIn string    `json:"next_fire_in"`
	Tier       string    `json:"tier"`
	Priority   string    `json:"priority"`
	FireCount  int       `json:"fire_count"`
	Active     bool      `json:"active"`
}

func (h *Handler) nagView(e nagDomain.Entry) nagResponse {
	return nagResponse{
		TaskID:     e.TaskID,
		Interval:   e.Interval.String(),
		NextFireAt: e.NextFireAt,
		NextFireIn: humanize.RelTime(e.NextFireAt, h.engine.Now(), "ago", "from now"),
		Tier:       e.Tier.String(),
		Priority:   e.Priority.String(),
		FireCount:  e.FireCount,
		Active:     e.Active,
	}
}

// ListNags handles GET /nags
func (h *Handler) ListNags(w http.ResponseWriter, r *http.Request) {
	entries := h.engine.Nags()
	out := make([]nagResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, h.nagView(e))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"nags":            out,
		"permission_lost": h.engine.PermissionLost(),
	})
}

type scheduleRequest struct {
	Interval string `json:"interval"`
	Priority string `json:"priority"`
}

// ScheduleNag handles POST /tasks/{id}/schedule
func (h *Handler) ScheduleNag(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	nag := engine.NagRequest{TaskID: r.PathValue("id")}
	if req.Interval != "" {
		d, err := time.ParseDuration(req.Interval)
		if err != nil {
			h.fail(w, r, badRequest("interval: "+err.Error()))
			return
		}
		if d <= 0 {
			h.fail(w, r, nagDomain.ErrInvalidInterval)
			return
		}
		nag.Interval = d
	}
	if req.Priority != "" {
		p, err := sharedDomain.ParsePriority(req.Priority)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		nag.Priority = p
	}

	entry, err := h.engine.ScheduleNag(r.Context(), nag)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.nagView(entry))
}

// CancelNag handles POST /tasks/{id}/cancel
func (h *Handler) CancelNag(w http.ResponseWriter, r *http.Request) {
	cancelled, err := h.engine.CancelNag(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"task_id": r.PathValue("id"), "cancelled": cancelled})
}

// ReportDelivery handles POST /tasks/{id}/delivery
func (h *Handler) ReportDelivery(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Outcome string `json:"outcome"`
	}
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	outcome, err := nagDomain.ParseDeliveryOutcome(req.Outcome)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.engine.ReportDelivery(r.Context(), r.PathValue("id"), outcome); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"task_id":         r.PathValue("id"),
		"outcome":         outcome,
		"permission_lost": h.engine.PermissionLost(),
	})
}

type fireResponse struct {
	TaskID    string `json:"task_id"`
	Message   string `json:"message"`
	Category  string `json:"category"`
	FireCount int    `json:"fire_count"`
	Retry     bool   `json:"retry,omitempty"`
}

// Tick handles POST /tick
func (h *Handler) Tick(w http.ResponseWriter, r *http.Request) {
	res, err := h.engine.Tick(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	fires := make([]fireResponse, 0, len(res.Fires))
	for _, f := range res.Fires {
		fires = append(fires, fireResponse{
			TaskID:    f.TaskID,
			Message:   f.Message,
			Category:  f.Category,
			FireCount: f.FireCount,
			Retry:     f.Retry,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"fired":        fires,
		"suppressed":   res.Suppressed,
		"tier_changes": len(res.TierChanges),
		"dropped":      res.Dropped,
	})
}

// RestorePermission handles POST /permission/restore
func (h *Handler) RestorePermission(w http.ResponseWriter, r *http.Request) {
	restored, err := h.engine.RestorePermission(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"restored": restored})
}

type agingResponse struct {
	engine.AgingView
	Age     string `json:"age"`
	DueIn   string `json:"due_in,omitempty"`
	NagSeen string `json:"last_nag,omitempty"`
}

// Aging handles GET /tasks/{id}/aging
func (h *Handler) Aging(w http.ResponseWriter, r *http.Request) {
	view, err := h.engine.Aging(r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	now := h.engine.Now()
	resp := agingResponse{
		AgingView: view,
		Age:       humanize.RelTime(view.Task.CreatedAt, now, "old", ""),
	}
	if view.Task.DueAt != nil {
		resp.DueIn = humanize.RelTime(*view.Task.DueAt, now, "overdue", "from now")
	}
	if view.Task.LastNagAt != nil {
		resp.NagSeen = humanize.RelTime(*view.Task.LastNagAt, now, "ago", "from now")
	}
	writeJSON(w, http.StatusOK, resp)
}

// SetBlocker handles POST /tasks/{id}/blocker
func (h *Handler) SetBlocker(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
		Note   string `json:"note"`
	}
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	reason, err := agingDomain.ParseBlockerReason(req.Reason)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.engine.SetBlocker(r.Context(), r.PathValue("id"), reason, req.Note); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"task_id": r.PathValue("id"), "blocker": string(reason)})
}

// ClearBlocker handles DELETE /tasks/{id}/blocker
func (h *Handler) ClearBlocker(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.ClearBlocker(r.Context(), r.PathValue("id")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PushDue handles POST /tasks/{id}/push
func (h *Handler) PushDue(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mode  string `json:"mode"`
		Hours int    `json:"hours"`
	}
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	target, err := h.engine.PushDue(r.Context(), r.PathValue("id"), engine.PushRequest{
		Mode:  engine.PushMode(req.Mode),
		Hours: req.Hours,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"task_id":   r.PathValue("id"),
		"requested": target,
		"due":       humanize.RelTime(target, h.engine.Now(), "ago", "from now"),
	})
}

// IngestTaskEvent handles POST /taskstore/events: a task-store lifecycle
// event delivered over HTTP instead of the broker.
func (h *Handler) IngestTaskEvent(w http.ResponseWriter, r *http.Request) {
	if h.taskEvents == nil {
		writeAPIError(w, ErrNotFound)
		return
	}
	var event eventbus.ConsumedEvent
	if err := decodeJSON(r, &event); err != nil {
		h.fail(w, r, err)
		return
	}
	matched := false
	for _, pattern := range h.taskEvents.EventTypes() {
		if eventbus.MatchTopic(pattern, event.RoutingKey) {
			matched = true
			break
		}
	}
	if !matched {
		h.fail(w, r, badRequest("unsupported routing key "+event.RoutingKey))
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = h.engine.Now()
	}
	if err := h.taskEvents.Handle(r.Context(), &event); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"routing_key": event.RoutingKey})
}

// Rollover handles POST /rollover
func (h *Handler) Rollover(w http.ResponseWriter, r *http.Request) {
	res, err := h.engine.Rollover(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"day":     res.Day,
		"rolled":  res.Rolled,
		"changes": res.Changes,
	})
}

type escalationResponse struct {
	escalationDomain.ScopeState
	EffectiveLevel int `json:"effective_level"`
}

// ListEscalation handles GET /escalation
func (h *Handler) ListEscalation(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"scopes":       h.engine.EscalationStates(),
		"global_level": h.engine.CurrentLevel(escalationDomain.GlobalScope),
	})
}

// GetEscalation handles GET /escalation/{scope}
func (h *Handler) GetEscalation(w http.ResponseWriter, r *http.Request) {
	scope, err := escalationDomain.ParseScope(r.PathValue("scope"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	state, level, known := h.engine.EscalationState(scope)
	if !known {
		writeAPIError(w, ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, escalationResponse{ScopeState: state, EffectiveLevel: level})
}

// Momentum handles GET /momentum
func (h *Handler) Momentum(w http.ResponseWriter, r *http.Request) {
	state := h.engine.Momentum()
	writeJSON(w, http.StatusOK, map[string]any{
		"momentum":    state,
		"celebration": h.engine.CelebrationFor(sharedDomain.PriorityMedium).String(),
	})
}

type ledgerResponse struct {
	engine.LedgerView
	BalanceDisplay  string `json:"balance_display"`
	LifetimeDisplay string `json:"lifetime_display"`
}

func ledgerView(v engine.LedgerView) ledgerResponse {
	return ledgerResponse{
		LedgerView:      v,
		BalanceDisplay:  humanize.Comma(v.Balance),
		LifetimeDisplay: humanize.Comma(v.Lifetime),
	}
}

// GetLedger handles GET /ledger
func (h *Handler) GetLedger(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ledgerView(h.engine.Ledger()))
}

// Credit handles POST /ledger/credit
func (h *Handler) Credit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount int64  `json:"amount"`
		Reason string `json:"reason"`
		Ref    string `json:"ref"`
	}
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	view, err := h.engine.Credit(r.Context(), engine.CreditRequest{
		Amount: req.Amount,
		Reason: rewardsDomain.Reason(req.Reason),
		Ref:    req.Ref,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ledgerView(view))
}

// Redeem handles POST /ledger/redeem
func (h *Handler) Redeem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RewardID string `json:"reward_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if req.RewardID == "" {
		h.fail(w, r, badRequest("reward_id is required"))
		return
	}
	redemption, err := h.engine.RequestRedemption(r.Context(), req.RewardID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, redemption)
}

// ListRewards handles GET /rewards
func (h *Handler) ListRewards(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"rewards": h.engine.Rewards()})
}

// ListRedemptions handles GET /redemptions
func (h *Handler) ListRedemptions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"redemptions": h.engine.Redemptions()})
}

// GetRedemption handles GET /redemptions/{id}
func (h *Handler) GetRedemption(w http.ResponseWriter, r *http.Request) {
	redemption, err := h.engine.Redemption(r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, redemption)
}

// DecideRedemption handles POST /redemptions/{id}/{approve|fulfill|deny}
func (h *Handler) DecideRedemption(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var (
		redemption rewardsDomain.Redemption
		err        error
	)
	switch r.PathValue("action") {
	case "approve":
		redemption, err = h.engine.ApproveRedemption(r.Context(), id)
	case "fulfill":
		redemption, err = h.engine.FulfillRedemption(r.Context(), id)
	case "deny":
		redemption, err = h.engine.DenyRedemption(r.Context(), id)
	default:
		writeAPIError(w, ErrNotFound)
		return
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, redemption)
}

// Challenges handles GET /challenges
func (h *Handler) Challenges(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Challenges())
}

// ListGoals handles GET /goals
func (h *Handler) ListGoals(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"goals": h.engine.Goals()})
}

// GetGoal handles GET /goals/{id}
func (h *Handler) GetGoal(w http.ResponseWriter, r *http.Request) {
	goal, err := h.engine.Goal(r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, goal)
}

// CreateGoal handles POST /goals
func (h *Handler) CreateGoal(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title      string `json:"title"`
		Milestones []struct {
			Title    string `json:"title"`
			Estimate string `json:"estimate"`
		} `json:"milestones"`
	}
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	specs := make([]escalationDomain.MilestoneSpec, 0, len(req.Milestones))
	for _, m := range req.Milestones {
		spec := escalationDomain.MilestoneSpec{Title: m.Title}
		if m.Estimate != "" {
			d, err := time.ParseDuration(m.Estimate)
			if err != nil {
				h.fail(w, r, badRequest("estimate: "+err.Error()))
				return
			}
			spec.Estimate = d
		}
		specs = append(specs, spec)
	}
	goal, err := h.engine.CreateGoal(r.Context(), req.Title, specs)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, goal)
}

// CompleteMilestone handles POST /goals/{id}/milestones/complete
func (h *Handler) CompleteMilestone(w http.ResponseWriter, r *http.Request) {
	progress, err := h.engine.CompleteMilestone(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"goal":          progress.Goal,
		"goal_complete": progress.GoalComplete,
		"points":        progress.Points,
		"balance":       progress.Balance,
	})
}

// SetGoalStatus handles POST /goals/{id}/status
func (h *Handler) SetGoalStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status string `json:"status"`
	}
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	status, err := escalationDomain.ParseGoalStatus(req.Status)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	goal, err := h.engine.SetGoalStatus(r.Context(), r.PathValue("id"), status)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, goal)
}

// Speak handles POST /speak/{category}
func (h *Handler) Speak(w http.ResponseWriter, r *http.Request) {
	msg, err := h.engine.Speak(r.Context(), r.PathValue("category"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"category": r.PathValue("category"), "message": msg})
}

// Metrics handles GET /metrics
func (h *Handler) Metrics(w http.ResponseWriter, r *http.Request) {
	if h.metrics == nil {
		writeJSON(w, http.StatusOK, map[string]float64{})
		return
	}
	writeJSON(w, http.StatusOK, h.metrics.Snapshot())
}
