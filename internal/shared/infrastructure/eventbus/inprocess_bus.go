package eventbus

import (
	"context"
	"log/slog"
)

// InProcessEventBus hands outbox messages straight to the registered
// consumers. It is the Publisher when no RabbitMQ is configured.
type InProcessEventBus struct {
	*ConsumerRegistry
	logger *slog.Logger
}

// NewInProcessEventBus creates a bus with an empty registry.
func NewInProcessEventBus(logger *slog.Logger) *InProcessEventBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &InProcessEventBus{
		ConsumerRegistry: NewConsumerRegistry(logger),
		logger:           logger,
	}
}

// RegisterConsumer adds consumer to the registry.
func (b *InProcessEventBus) RegisterConsumer(consumer EventConsumer) {
	b.Register(consumer)
}

// Publish always succeeds once the message reached the bus: consumer
// failures are logged, because a retry from the outbox would redeliver to
// the consumers that already handled it.
func (b *InProcessEventBus) Publish(ctx context.Context, routingKey string, payload []byte) error {
	event, err := DecodeEnvelope(payload, routingKey)
	if err != nil {
		b.logger.ErrorContext(ctx, "dropping event", "routing_key", routingKey, "error", err)
		return nil
	}
	if err := b.Dispatch(ctx, event); err != nil {
		b.logger.WarnContext(ctx, "in-process dispatch had failures",
			"routing_key", event.RoutingKey,
			"event_id", event.EventID,
			"error", err,
		)
	}
	return nil
}

// Close is a no-op.
func (b *InProcessEventBus) Close() error { return nil }

// Registry returns the underlying consumer registry.
func (b *InProcessEventBus) Registry() *ConsumerRegistry {
	return b.ConsumerRegistry
}
