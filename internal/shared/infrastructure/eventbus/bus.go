// Package eventbus carries engine events between the outbox, the
// notification consumers and the external task store. RabbitMQ is the
// production transport; InProcessEventBus stands in for it locally.
package eventbus

import "context"

// Publisher sends an encoded envelope under a routing key.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload []byte) error
	Close() error
}

// EventConsumer handles the events whose routing key matches one of its
// topic patterns, e.g. "nag.reminder.fired" or "taskstore.task.*".
type EventConsumer interface {
	EventTypes() []string
	Handle(ctx context.Context, event *ConsumedEvent) error
}

// Consumer is a broker-side subscription. Start blocks until ctx is done
// or Close is called.
type Consumer interface {
	Start(ctx context.Context) error
	RegisterConsumer(consumer EventConsumer)
	Close() error
}
