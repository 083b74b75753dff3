package application_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/gadfly/internal/nagging/application"
	"github.com/felixgeelhaar/gadfly/internal/nagging/domain"
	"github.com/felixgeelhaar/gadfly/internal/shared/infrastructure/eventbus"
	"github.com/felixgeelhaar/gadfly/pkg/observability"
)

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Notify(ctx context.Context, n application.Notification) error {
	return m.Called(ctx, n).Error(0)
}

type mockReporter struct {
	mock.Mock
}

func (m *mockReporter) IsNagActive(taskID string) bool {
	return m.Called(taskID).Bool(0)
}

func (m *mockReporter) ReportDelivery(ctx context.Context, taskID string, outcome domain.DeliveryOutcome) error {
	return m.Called(ctx, taskID, outcome).Error(0)
}

var firedAt = time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)

func firedEvent(t *testing.T, taskID string) *eventbus.ConsumedEvent {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"task_id":    taskID,
		"message":    "still waiting",
		"category":   "nag",
		"fire_count": 2,
	})
	require.NoError(t, err)
	return &eventbus.ConsumedEvent{
		EventID:    uuid.New(),
		RoutingKey: domain.RoutingKeyNagFired,
		OccurredAt: firedAt,
		Payload:    payload,
	}
}

func TestDeliveryConsumer_Outcomes(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		outcome domain.DeliveryOutcome
	}{
		{"delivered", nil, domain.DeliveryDelivered},
		{"transient", errors.New("timeout"), domain.DeliveryTransient},
		{"permission denied", application.ErrPermissionDenied, domain.DeliveryPermanent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			notifier := new(mockNotifier)
			reporter := new(mockReporter)
			metrics := observability.NewInMemoryMetrics()

			reporter.On("IsNagActive", "t1").Return(true)
			notifier.On("Notify", mock.Anything, mock.MatchedBy(func(n application.Notification) bool {
				return n.Kind == application.KindNag && n.TaskID == "t1" && n.FireCount == 2 && n.At.Equal(firedAt)
			})).Return(tt.err)
			reporter.On("ReportDelivery", mock.Anything, "t1", tt.outcome).Return(nil)

			c, err := application.NewDeliveryConsumer(notifier, reporter, application.BreakerConfig{}, metrics, nil)
			require.NoError(t, err)

			require.NoError(t, c.Handle(context.Background(), firedEvent(t, "t1")))

			notifier.AssertExpectations(t)
			reporter.AssertExpectations(t)
			assert.Equal(t, int64(1), metrics.GetCounter(observability.MetricNagDelivery, observability.T("outcome", string(tt.outcome))))
		})
	}
}

func TestDeliveryConsumer_CancelledBeforeDelivery(t *testing.T) {
	notifier := new(mockNotifier)
	reporter := new(mockReporter)
	reporter.On("IsNagActive", "t1").Return(false)

	c, err := application.NewDeliveryConsumer(notifier, reporter, application.BreakerConfig{}, nil, nil)
	require.NoError(t, err)

	require.NoError(t, c.Handle(context.Background(), firedEvent(t, "t1")))

	notifier.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything)
	reporter.AssertNotCalled(t, "ReportDelivery", mock.Anything, mock.Anything, mock.Anything)
}

func TestDeliveryConsumer_BreakerOpens(t *testing.T) {
	notifier := new(mockNotifier)
	reporter := new(mockReporter)
	reporter.On("IsNagActive", mock.Anything).Return(true)
	reporter.On("ReportDelivery", mock.Anything, mock.Anything, domain.DeliveryTransient).Return(nil)
	notifier.On("Notify", mock.Anything, mock.Anything).Return(errors.New("down"))

	c, err := application.NewDeliveryConsumer(notifier, reporter, application.BreakerConfig{
		FailureThreshold: 2,
		Timeout:          time.Hour,
	}, nil, nil)
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		require.NoError(t, c.Handle(context.Background(), firedEvent(t, "t1")))
	}

	notifier.AssertNumberOfCalls(t, "Notify", 2)
	reporter.AssertNumberOfCalls(t, "ReportDelivery", 4)
}

func TestDeliveryConsumer_PermissionDoesNotTripBreaker(t *testing.T) {
	notifier := new(mockNotifier)
	reporter := new(mockReporter)
	reporter.On("IsNagActive", mock.Anything).Return(true)
	reporter.On("ReportDelivery", mock.Anything, mock.Anything, domain.DeliveryPermanent).Return(nil)
	notifier.On("Notify", mock.Anything, mock.Anything).Return(application.ErrPermissionDenied)

	c, err := application.NewDeliveryConsumer(notifier, reporter, application.BreakerConfig{FailureThreshold: 1, Timeout: time.Hour}, nil, nil)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, c.Handle(context.Background(), firedEvent(t, "t1")))
	}
	notifier.AssertNumberOfCalls(t, "Notify", 3)
}

func TestDeliveryConsumer_Withdraw(t *testing.T) {
	notifier := new(mockNotifier)
	reporter := new(mockReporter)
	notifier.On("Notify", mock.Anything, mock.MatchedBy(func(n application.Notification) bool {
		return n.Kind == application.KindWithdraw && n.TaskID == "t1"
	})).Return(errors.New("already gone"))

	c, err := application.NewDeliveryConsumer(notifier, reporter, application.BreakerConfig{}, nil, nil)
	require.NoError(t, err)

	payload, _ := json.Marshal(map[string]string{"task_id": "t1"})
	err = c.Handle(context.Background(), &eventbus.ConsumedEvent{
		RoutingKey: domain.RoutingKeyNagCancelled,
		Payload:    payload,
	})

	assert.NoError(t, err, "withdraw failures are swallowed")
	notifier.AssertExpectations(t)
}

func TestDeliveryConsumer_ReportError(t *testing.T) {
	notifier := new(mockNotifier)
	reporter := new(mockReporter)
	reporter.On("IsNagActive", "t1").Return(true)
	notifier.On("Notify", mock.Anything, mock.Anything).Return(nil)
	reporter.On("ReportDelivery", mock.Anything, "t1", domain.DeliveryDelivered).Return(errors.New("store down"))

	c, err := application.NewDeliveryConsumer(notifier, reporter, application.BreakerConfig{}, nil, nil)
	require.NoError(t, err)

	assert.ErrorContains(t, c.Handle(context.Background(), firedEvent(t, "t1")), "store down")
}

func TestNewDeliveryConsumer_RequiresNotifier(t *testing.T) {
	_, err := application.NewDeliveryConsumer(nil, new(mockReporter), application.BreakerConfig{}, nil, nil)
	assert.ErrorIs(t, err, application.ErrNoNotifier)
}
