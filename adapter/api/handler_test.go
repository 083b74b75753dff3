package api

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/gadfly/internal/engine"
	"github.com/felixgeelhaar/gadfly/internal/engine/consumers"
	sharedDomain "github.com/felixgeelhaar/gadfly/internal/shared/domain"
	"github.com/felixgeelhaar/gadfly/internal/shared/infrastructure/eventbus"
	"github.com/felixgeelhaar/gadfly/pkg/observability"
)

var t0 = time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)

type testServer struct {
	eng     *engine.Engine
	clock   *sharedDomain.ManualClock
	handler http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	cfg := engine.DefaultConfig()
	cfg.Location = time.UTC
	clock := sharedDomain.NewManualClock(t0)
	metrics := observability.NewInMemoryMetrics()
	eng := engine.New(cfg, engine.Deps{
		Clock:   clock,
		Metrics: metrics,
		UserID:  uuid.New(),
		Random:  func(int) int { return 0 },
	})
	require.NoError(t, eng.Restore(context.Background()))

	h := NewHandler(HandlerConfig{
		Engine:     eng,
		TaskEvents: consumers.NewTaskEventConsumer(eng, nil),
		Metrics:    metrics,
	})
	srv := NewServer(DefaultServerConfig(), h, nil, nil)
	return &testServer{eng: eng, clock: clock, handler: srv.Handler()}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func (s *testServer) createTask(t *testing.T, id string, p sharedDomain.Priority) {
	t.Helper()
	require.NoError(t, s.eng.TaskCreated(context.Background(), engine.TaskSignal{
		ID:        id,
		Title:     "Task " + id,
		Priority:  p,
		CreatedAt: s.clock.Now(),
	}))
}

func TestHandler_NagLifecycle(t *testing.T) {
	s := newTestServer(t)
	s.createTask(t, "t-1", sharedDomain.PriorityHigh)

	rec := s.do(t, http.MethodPost, "/tasks/t-1/schedule", map[string]string{"interval": "5m"})
	require.Equal(t, http.StatusOK, rec.Code)
	nag := decode[nagResponse](t, rec)
	assert.Equal(t, "t-1", nag.TaskID)
	assert.Equal(t, "5m0s", nag.Interval)
	assert.True(t, nag.Active)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	s.clock.Advance(6 * time.Minute)
	rec = s.do(t, http.MethodPost, "/tick", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	tick := decode[struct {
		Fired []fireResponse `json:"fired"`
	}](t, rec)
	require.Len(t, tick.Fired, 1)
	assert.Equal(t, "t-1", tick.Fired[0].TaskID)
	assert.NotEmpty(t, tick.Fired[0].Message)

	rec = s.do(t, http.MethodPost, "/tasks/t-1/cancel", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode[map[string]any](t, rec)["cancelled"])
	assert.False(t, s.eng.IsNagActive("t-1"))
}

func TestHandler_ScheduleValidation(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name string
		body map[string]string
		code string
	}{
		{"negative interval", map[string]string{"interval": "-5m"}, "invalid_interval"},
		{"unparsable interval", map[string]string{"interval": "soon"}, "bad_request"},
		{"bad priority", map[string]string{"priority": "urgent"}, "invalid_priority"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/tasks/t-1/schedule", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.code, decode[APIError](t, rec).Code)
		})
	}
}

func TestHandler_Delivery(t *testing.T) {
	s := newTestServer(t)
	s.createTask(t, "t-1", sharedDomain.PriorityMedium)

	rec := s.do(t, http.MethodPost, "/tasks/t-1/delivery", map[string]string{"outcome": "sideways"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_outcome", decode[APIError](t, rec).Code)

	rec = s.do(t, http.MethodPost, "/tasks/t-1/delivery", map[string]string{"outcome": "permanent"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode[map[string]any](t, rec)["permission_lost"])

	rec = s.do(t, http.MethodPost, "/permission/restore", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]bool{"restored": true}, decode[map[string]bool](t, rec))
}

func TestHandler_LedgerAndRedemptions(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/ledger/redeem", map[string]string{"reward_id": "break"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "insufficient_balance", decode[APIError](t, rec).Code)

	rec = s.do(t, http.MethodPost, "/ledger/credit", map[string]any{"amount": 1200, "ref": "import"})
	require.Equal(t, http.StatusOK, rec.Code)
	ledger := decode[ledgerResponse](t, rec)
	assert.Equal(t, int64(1200), ledger.Balance)
	assert.Equal(t, "1,200", ledger.BalanceDisplay)

	rec = s.do(t, http.MethodPost, "/ledger/credit", map[string]any{"amount": 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_amount", decode[APIError](t, rec).Code)

	rec = s.do(t, http.MethodPost, "/ledger/redeem", map[string]string{"reward_id": "yacht"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "unknown_reward", decode[APIError](t, rec).Code)

	rec = s.do(t, http.MethodPost, "/ledger/redeem", map[string]string{"reward_id": "break"})
	require.Equal(t, http.StatusCreated, rec.Code)
	redemption := decode[map[string]any](t, rec)
	id := redemption["id"].(string)
	assert.Equal(t, "pending", redemption["status"])

	rec = s.do(t, http.MethodPost, "/redemptions/"+id+"/deny", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "denied", decode[map[string]any](t, rec)["status"])
	assert.Equal(t, int64(1200), s.eng.Ledger().Balance)

	rec = s.do(t, http.MethodPost, "/redemptions/"+id+"/approve", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_transition", decode[APIError](t, rec).Code)

	rec = s.do(t, http.MethodPost, "/redemptions/"+id+"/shred", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodGet, "/redemptions/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "redemption_not_found", decode[APIError](t, rec).Code)

	rec = s.do(t, http.MethodPost, "/ledger/credit", map[string]any{"amount": int64(math.MaxInt64)})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_amount", decode[APIError](t, rec).Code)
	assert.Equal(t, int64(1200), s.eng.Ledger().Balance)
}

func TestHandler_Goals(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/goals", map[string]any{"title": "Ship", "milestones": []any{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_goal", decode[APIError](t, rec).Code)

	rec = s.do(t, http.MethodPost, "/goals", map[string]any{
		"title": "Ship",
		"milestones": []map[string]string{
			{"title": "Draft", "estimate": "2h"},
			{"title": "Review"},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode[map[string]any](t, rec)["id"].(string)

	rec = s.do(t, http.MethodPost, "/goals/"+id+"/milestones/complete", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	progress := decode[map[string]any](t, rec)
	assert.Equal(t, false, progress["goal_complete"])
	assert.EqualValues(t, 25, progress["points"])

	rec = s.do(t, http.MethodPost, "/goals/"+id+"/status", map[string]string{"status": "paused"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodPost, "/goals/"+id+"/milestones/complete", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "goal_not_active", decode[APIError](t, rec).Code)

	rec = s.do(t, http.MethodGet, "/goals/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodGet, "/escalation/goal:"+id, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandler_AgingAndBlockers(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/tasks/ghost/aging", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "task_not_tracked", decode[APIError](t, rec).Code)

	s.createTask(t, "t-1", sharedDomain.PriorityLow)
	s.clock.Advance(72 * time.Hour)

	rec = s.do(t, http.MethodGet, "/tasks/t-1/aging", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	aging := decode[map[string]any](t, rec)
	assert.Equal(t, "3 days old", aging["age"])

	rec = s.do(t, http.MethodPost, "/tasks/t-1/blocker", map[string]string{"reason": "bored"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_blocker_reason", decode[APIError](t, rec).Code)

	rec = s.do(t, http.MethodPost, "/tasks/t-1/blocker", map[string]string{"reason": "external_block", "note": "on legal"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodDelete, "/tasks/t-1/blocker", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, http.MethodPost, "/tasks/t-1/push", map[string]any{"mode": "hours", "hours": 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_push", decode[APIError](t, rec).Code)

	rec = s.do(t, http.MethodPost, "/tasks/t-1/push", map[string]any{"mode": "hours", "hours": 3})
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "3 hours from now", decode[map[string]any](t, rec)["due"])
}

func TestHandler_IngestTaskEvent(t *testing.T) {
	s := newTestServer(t)

	payload, err := json.Marshal(consumers.TaskEvent{TaskID: "t-9", Title: "Book dentist", Priority: sharedDomain.PriorityHigh})
	require.NoError(t, err)

	rec := s.do(t, http.MethodPost, "/taskstore/events", eventbus.ConsumedEvent{
		EventID:    uuid.New(),
		RoutingKey: consumers.RoutingKeyTaskCreated,
		Payload:    payload,
	})
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.True(t, s.eng.IsNagActive("t-9"))

	rec = s.do(t, http.MethodPost, "/taskstore/events", eventbus.ConsumedEvent{RoutingKey: "billing.invoice.paid", Payload: payload})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/taskstore/events", eventbus.ConsumedEvent{RoutingKey: consumers.RoutingKeyTaskDeleted})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "empty_payload", decode[APIError](t, rec).Code)

	rec = s.do(t, http.MethodPost, "/taskstore/events", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_ReadModels(t *testing.T) {
	s := newTestServer(t)

	for _, path := range []string{"/nags", "/escalation", "/momentum", "/ledger", "/rewards", "/redemptions", "/challenges", "/goals", "/metrics", "/healthz"} {
		t.Run(path, func(t *testing.T) {
			rec := s.do(t, http.MethodGet, path, nil)
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		})
	}

	rec := s.do(t, http.MethodGet, "/escalation/nonsense", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_scope", decode[APIError](t, rec).Code)

	rec = s.do(t, http.MethodPost, "/rollover", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandler_Speak(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/speak/nag", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, decode[map[string]string](t, rec)["message"])

	rec = s.do(t, http.MethodPost, "/speak/no-such-category", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "no_phrases", decode[APIError](t, rec).Code)
}

func TestWithRequestContext_CorrelationID(t *testing.T) {
	var seen string
	h := withRequestContext(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = observability.CorrelationIDFromContext(r.Context())
	}))

	id := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Correlation-ID", id)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, id, seen)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}
