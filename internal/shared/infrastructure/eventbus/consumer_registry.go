package eventbus

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/felixgeelhaar/gadfly/pkg/observability"
)

// ConsumerRegistry routes events to consumers by topic pattern.
type ConsumerRegistry struct {
	mu      sync.RWMutex
	byTopic map[string][]EventConsumer
	logger  *slog.Logger
	metrics observability.Metrics
}

// NewConsumerRegistry creates an empty registry.
func NewConsumerRegistry(logger *slog.Logger) *ConsumerRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConsumerRegistry{
		byTopic: make(map[string][]EventConsumer),
		logger:  logger,
		metrics: observability.NoopMetrics{},
	}
}

// Instrument counts handled events per routing key and consumer outcome.
func (r *ConsumerRegistry) Instrument(m observability.Metrics) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics = m
}

// Register adds a consumer under each of its declared patterns.
func (r *ConsumerRegistry) Register(consumer EventConsumer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, pattern := range consumer.EventTypes() {
		r.byTopic[pattern] = append(r.byTopic[pattern], consumer)
		r.logger.Debug("registered consumer", "pattern", pattern)
	}
}

// GetConsumers returns every consumer with a pattern matching routingKey,
// each once, in pattern order.
func (r *ConsumerRegistry) GetConsumers(routingKey string) []EventConsumer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []EventConsumer
	for _, pattern := range r.patternsLocked() {
		if !MatchTopic(pattern, routingKey) {
			continue
		}
		for _, c := range r.byTopic[pattern] {
			if !slices.Contains(matched, c) {
				matched = append(matched, c)
			}
		}
	}
	return matched
}

// Patterns returns every registered pattern, sorted.
func (r *ConsumerRegistry) Patterns() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.patternsLocked()
}

func (r *ConsumerRegistry) patternsLocked() []string {
	out := make([]string, 0, len(r.byTopic))
	for p := range r.byTopic {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}

// Dispatch runs every matching consumer, even after one fails, and joins
// the failures.
func (r *ConsumerRegistry) Dispatch(ctx context.Context, event *ConsumedEvent) error {
	consumers := r.GetConsumers(event.RoutingKey)
	if len(consumers) == 0 {
		r.logger.DebugContext(ctx, "no consumers for event", "routing_key", event.RoutingKey)
		return nil
	}

	r.mu.RLock()
	metrics := r.metrics
	r.mu.RUnlock()

	start := time.Now()
	var errs []error
	for _, consumer := range consumers {
		err := consumer.Handle(ctx, event)
		outcome := "ok"
		if err != nil {
			outcome = "error"
			r.logger.ErrorContext(ctx, "consumer failed to handle event",
				"routing_key", event.RoutingKey,
				"event_id", event.EventID,
				"error", err,
			)
			errs = append(errs, err)
		}
		metrics.Counter(observability.MetricEventsConsumed, 1,
			observability.T("routing_key", event.RoutingKey),
			observability.T("outcome", outcome),
		)
	}
	r.logger.DebugContext(ctx, "event dispatched",
		"routing_key", event.RoutingKey,
		"event_id", event.EventID,
		"consumers", len(consumers),
		observability.DurationKey, time.Since(start).Milliseconds(),
	)
	return errors.Join(errs...)
}
