package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/felixgeelhaar/gadfly/internal/nagging/domain"
	"github.com/felixgeelhaar/gadfly/internal/shared/infrastructure/eventbus"
	"github.com/felixgeelhaar/gadfly/pkg/observability"
)

// DeliveryReporter is the engine side of delivery: it answers whether a
// nag is still wanted and records how delivery went.
type DeliveryReporter interface {
	IsNagActive(taskID string) bool
	ReportDelivery(ctx context.Context, taskID string, outcome domain.DeliveryOutcome) error
}

// BreakerConfig tunes the circuit breaker around the notifier.
type BreakerConfig struct {
	// FailureThreshold consecutive transient failures open the breaker.
	FailureThreshold uint32
	// Timeout is how long the breaker stays open before probing.
	Timeout time.Duration
}

// DefaultBreakerConfig opens after 5 failures for 30 seconds.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{FailureThreshold: 5, Timeout: 30 * time.Second}
}

func newBreaker(name string, cfg BreakerConfig, logger *slog.Logger) *gobreaker.CircuitBreaker[struct{}] {
	if cfg.FailureThreshold == 0 {
		cfg = DefaultBreakerConfig()
	}
	return gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		// A refused permission is an answer, not an outage.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrPermissionDenied)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info("notifier breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})
}

// DeliveryConsumer hands fired nags to the notifier and reports the
// outcome. A nag whose task was completed or cancelled after the fire was
// queued is dropped here, so a cancel always wins over a pending fire.
type DeliveryConsumer struct {
	notifier Notifier
	reporter DeliveryReporter
	breaker  *gobreaker.CircuitBreaker[struct{}]
	metrics  observability.Metrics
	logger   *slog.Logger
}

// NewDeliveryConsumer creates the consumer. metrics may be nil.
func NewDeliveryConsumer(notifier Notifier, reporter DeliveryReporter, cfg BreakerConfig, metrics observability.Metrics, logger *slog.Logger) (*DeliveryConsumer, error) {
	if notifier == nil {
		return nil, ErrNoNotifier
	}
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}
	return &DeliveryConsumer{
		notifier: notifier,
		reporter: reporter,
		breaker:  newBreaker("nag-delivery", cfg, logger),
		metrics:  metrics,
		logger:   logger,
	}, nil
}

func (c *DeliveryConsumer) EventTypes() []string {
	return []string{domain.RoutingKeyNagFired, domain.RoutingKeyNagCancelled}
}

func (c *DeliveryConsumer) Handle(ctx context.Context, event *eventbus.ConsumedEvent) error {
	switch event.RoutingKey {
	case domain.RoutingKeyNagFired:
		return c.deliver(ctx, event)
	case domain.RoutingKeyNagCancelled:
		return c.withdraw(ctx, event)
	}
	return nil
}

func (c *DeliveryConsumer) deliver(ctx context.Context, event *eventbus.ConsumedEvent) error {
	var fired domain.NagFired
	if err := event.Decode(&fired); err != nil {
		return fmt.Errorf("decode nag: %w", err)
	}

	if !c.reporter.IsNagActive(fired.TaskID) {
		c.logger.DebugContext(ctx, "nag no longer active, dropping",
			"task_id", fired.TaskID,
			"event_id", event.EventID,
		)
		return nil
	}

	_, err := c.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, c.notifier.Notify(ctx, Notification{
			Kind:      KindNag,
			TaskID:    fired.TaskID,
			Message:   fired.Message,
			Category:  fired.Category,
			FireCount: fired.FireCount,
			Retry:     fired.Retry,
			At:        event.OccurredAt,
		})
	})

	outcome := classify(err)
	c.metrics.Counter(observability.MetricNagDelivery, 1, observability.T("outcome", string(outcome)))
	if err != nil {
		c.logger.WarnContext(ctx, "nag delivery failed",
			"task_id", fired.TaskID,
			"outcome", outcome,
			"error", err,
		)
	}

	if err := c.reporter.ReportDelivery(ctx, fired.TaskID, outcome); err != nil {
		return fmt.Errorf("report delivery: %w", err)
	}
	return nil
}

func (c *DeliveryConsumer) withdraw(ctx context.Context, event *eventbus.ConsumedEvent) error {
	var cancelled domain.NagCancelled
	if err := event.Decode(&cancelled); err != nil {
		return fmt.Errorf("decode cancel: %w", err)
	}
	_, err := c.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, c.notifier.Notify(ctx, Notification{
			Kind:   KindWithdraw,
			TaskID: cancelled.TaskID,
			At:     event.OccurredAt,
		})
	})
	if err != nil {
		// Withdrawing is best effort; the nag is already inactive.
		c.logger.DebugContext(ctx, "withdraw failed", "task_id", cancelled.TaskID, "error", err)
	}
	return nil
}

func classify(err error) domain.DeliveryOutcome {
	switch {
	case err == nil:
		return domain.DeliveryDelivered
	case errors.Is(err, ErrPermissionDenied):
		return domain.DeliveryPermanent
	default:
		return domain.DeliveryTransient
	}
}
