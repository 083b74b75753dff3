package eventbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/felixgeelhaar/gadfly/pkg/observability"
)

// DefaultConsumerQueueName is the durable queue the engine consumes from.
const DefaultConsumerQueueName = "gadfly.engine"

var (
	ErrConsumerRunning  = errors.New("consumer already running")
	ErrDeliveriesClosed = errors.New("rabbitmq closed the delivery channel")
)

// RabbitMQConsumerConfig configures the RabbitMQ consumer. Zero fields get
// the defaults: queue gadfly.engine on exchange gadfly.events, one message
// in flight, and rejected messages parked on "<queue>.dead".
type RabbitMQConsumerConfig struct {
	URL       string
	QueueName string
	Exchange  string
	// Prefetch above 1 lets handlers overlap, which reorders engine calls.
	Prefetch int
	Logger   *slog.Logger
}

func (c RabbitMQConsumerConfig) withDefaults() RabbitMQConsumerConfig {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.QueueName == "" {
		c.QueueName = DefaultConsumerQueueName
	}
	if c.Exchange == "" {
		c.Exchange = ExchangeName
	}
	if c.Prefetch <= 0 {
		c.Prefetch = 1
	}
	return c
}

// RabbitMQConsumer feeds broker deliveries, task store lifecycle events and
// the engine's own events, into a ConsumerRegistry.
type RabbitMQConsumer struct {
	cfg      RabbitMQConsumerConfig
	registry *ConsumerRegistry
	logger   *slog.Logger

	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
	running bool

	closeOnce sync.Once
	closed    chan struct{}
}

// NewRabbitMQConsumer dials RabbitMQ and declares the exchange, the queue
// and its dead-letter queue. A nil registry gets a fresh one.
func NewRabbitMQConsumer(cfg RabbitMQConsumerConfig, registry *ConsumerRegistry) (*RabbitMQConsumer, error) {
	cfg = cfg.withDefaults()
	if registry == nil {
		registry = NewConsumerRegistry(cfg.Logger)
	}

	conn, ch, err := dialExchange(cfg.URL, cfg.Exchange)
	if err != nil {
		return nil, err
	}
	if err := declareQueue(ch, cfg.QueueName); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}

	cfg.Logger.Info("RabbitMQ consumer connected", "queue", cfg.QueueName, "exchange", cfg.Exchange)
	return &RabbitMQConsumer{
		cfg:      cfg,
		registry: registry,
		logger:   cfg.Logger,
		conn:     conn,
		channel:  ch,
		closed:   make(chan struct{}),
	}, nil
}

// declareQueue sets up queue with a sibling "<queue>.dead" that receives
// deliveries nacked without requeue.
func declareQueue(ch *amqp.Channel, queue string) error {
	dead := queue + ".dead"
	if _, err := ch.QueueDeclare(dead, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare dead-letter queue: %w", err)
	}
	args := amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": dead,
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, args); err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}
	return nil
}

// RegisterConsumer adds consumer to the registry and binds its patterns.
func (c *RabbitMQConsumer) RegisterConsumer(consumer EventConsumer) {
	c.registry.Register(consumer)

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, pattern := range consumer.EventTypes() {
		if err := c.channel.QueueBind(c.cfg.QueueName, pattern, c.cfg.Exchange, false, nil); err != nil {
			c.logger.Error("failed to bind queue", "pattern", pattern, "error", err)
			continue
		}
		c.logger.Debug("bound queue", "queue", c.cfg.QueueName, "pattern", pattern)
	}
}

// Start consumes until ctx is cancelled or Close is called.
func (c *RabbitMQConsumer) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return ErrConsumerRunning
	}
	c.running = true
	ch := c.channel
	c.mu.Unlock()

	if err := ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}
	deliveries, err := ch.ConsumeWithContext(ctx, c.cfg.QueueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}
	c.logger.Info("started consuming events", "queue", c.cfg.QueueName, "prefetch", c.cfg.Prefetch)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.closed:
			return nil
		case d, ok := <-deliveries:
			if !ok {
				select {
				case <-c.closed:
					return nil
				default:
					return ErrDeliveriesClosed
				}
			}
			c.settle(ctx, d)
		}
	}
}

// settle acks on success. A failure is requeued once; a failed redelivery
// goes to the dead-letter queue so one bad event cannot wedge the queue.
func (c *RabbitMQConsumer) settle(ctx context.Context, d amqp.Delivery) {
	err := c.handle(ctx, d)
	if err == nil {
		if ackErr := d.Ack(false); ackErr != nil {
			c.logger.Error("failed to ack message", "error", ackErr)
		}
		return
	}

	requeue := !d.Redelivered
	c.logger.Error("failed to process message",
		"routing_key", d.RoutingKey,
		"requeue", requeue,
		"error", err,
	)
	if nackErr := d.Nack(false, requeue); nackErr != nil {
		c.logger.Error("failed to nack message", "error", nackErr)
	}
}

// handle drops bodies that are not envelopes: redelivering them cannot
// help. The AMQP correlation ID fills in for producers that leave the
// envelope's metadata empty.
func (c *RabbitMQConsumer) handle(ctx context.Context, d amqp.Delivery) error {
	event, err := DecodeEnvelope(d.Body, d.RoutingKey)
	if err != nil {
		c.logger.ErrorContext(ctx, "discarding event", "routing_key", d.RoutingKey, "error", err)
		return nil
	}
	if event.Metadata.CorrelationID == uuid.Nil && d.CorrelationId != "" {
		if id, err := uuid.Parse(d.CorrelationId); err == nil {
			event.Metadata.CorrelationID = id
		}
	}
	if id := event.Metadata.CorrelationID; id != uuid.Nil {
		ctx = observability.WithCorrelationID(ctx, id.String())
	}
	return c.registry.Dispatch(ctx, event)
}

// Healthy reports whether the connection is still open.
func (c *RabbitMQConsumer) Healthy(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || c.conn.IsClosed() {
		return errors.New("rabbitmq consumer connection closed")
	}
	return nil
}

// Close stops Start and closes the connection. It is safe to call twice.
func (c *RabbitMQConsumer) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)

		c.mu.Lock()
		defer c.mu.Unlock()
		c.running = false
		if c.channel != nil {
			if cerr := c.channel.Close(); cerr != nil {
				c.logger.Warn("error closing channel", "error", cerr)
			}
		}
		if c.conn != nil {
			err = c.conn.Close()
		}
		c.logger.Info("RabbitMQ consumer closed")
	})
	return err
}
