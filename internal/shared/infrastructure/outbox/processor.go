package outbox

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/gadfly/internal/shared/infrastructure/convert"
	"github.com/felixgeelhaar/gadfly/internal/shared/infrastructure/eventbus"
	"github.com/felixgeelhaar/gadfly/pkg/observability"
)

// ProcessorConfig holds configuration for the outbox processor.
type ProcessorConfig struct {
	PollInterval     time.Duration
	BatchSize        int
	MaxRetries       int
	RetryBackoffBase time.Duration
	RetryBackoffMax  time.Duration
}

// DefaultProcessorConfig polls four times a second: a fired nag should
// reach the notifier well inside the tick that produced it.
func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		PollInterval:     250 * time.Millisecond,
		BatchSize:        100,
		MaxRetries:       5,
		RetryBackoffBase: time.Second,
		RetryBackoffMax:  time.Minute,
	}
}

// withDefaults fills zero fields. MaxRetries is left alone: zero means
// dead-letter on the first failure.
func (c ProcessorConfig) withDefaults() ProcessorConfig {
	d := DefaultProcessorConfig()
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.RetryBackoffBase <= 0 {
		c.RetryBackoffBase = d.RetryBackoffBase
	}
	if c.RetryBackoffMax <= 0 {
		c.RetryBackoffMax = d.RetryBackoffMax
	}
	return c
}

// ProcessorOption customizes a Processor.
type ProcessorOption func(*Processor)

// WithMetrics reports publish, retry and dead-letter counts.
func WithMetrics(m observability.Metrics) ProcessorOption {
	return func(p *Processor) { p.metrics = m }
}

// WithClock replaces time.Now for retry scheduling and stats.
func WithClock(now func() time.Time) ProcessorOption {
	return func(p *Processor) { p.now = now }
}

// Processor moves engine events from the outbox to the bus. The engine only
// ever writes the outbox, so a slow or failing notification layer cannot
// block a tick.
type Processor struct {
	repo      Relay
	publisher eventbus.Publisher
	config    ProcessorConfig
	logger    *slog.Logger
	metrics   observability.Metrics
	now       func() time.Time

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
	// batchMu keeps Drain and the polling loop from publishing the same
	// message twice.
	batchMu sync.Mutex

	statsMu sync.Mutex
	stats   Stats
}

// NewProcessor creates a new outbox processor.
func NewProcessor(repo Relay, publisher eventbus.Publisher, config ProcessorConfig, logger *slog.Logger, opts ...ProcessorOption) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Processor{
		repo:      repo,
		publisher: publisher,
		config:    config.withDefaults(),
		logger:    logger.With("component", "outbox"),
		metrics:   observability.NoopMetrics{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start begins the polling loop in a goroutine.
func (p *Processor) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return nil
	}
	p.running = true
	p.stopChan = make(chan struct{})

	p.wg.Add(1)
	go p.run(ctx, p.stopChan)

	p.logger.Info("outbox processor started",
		"poll_interval", p.config.PollInterval,
		"batch_size", p.config.BatchSize,
		"max_retries", p.config.MaxRetries,
	)
	return nil
}

// Stop stops polling and waits for the in-flight batch.
func (p *Processor) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.stopChan)
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Info("outbox processor stopped")
}

// IsRunning returns true if the processor is running.
func (p *Processor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *Processor) run(ctx context.Context, stop <-chan struct{}) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			if _, err := p.publishBatch(ctx); err != nil {
				p.logger.Error("failed to process outbox batch", "error", err)
			}
		}
	}
}

// ProcessOnce publishes a single batch synchronously.
func (p *Processor) ProcessOnce(ctx context.Context) error {
	_, err := p.publishBatch(ctx)
	return err
}

// Drain publishes batches until one publishes nothing. Failed messages
// stay in the outbox with their retry time for the worker to pick up.
func (p *Processor) Drain(ctx context.Context) (int, error) {
	total := 0
	for {
		n, err := p.publishBatch(ctx)
		total += n
		if err != nil || n == 0 {
			return total, err
		}
		if err := ctx.Err(); err != nil {
			return total, err
		}
	}
}

// publishBatch returns how many messages were published. Publish failures
// are recorded on the message, not returned.
func (p *Processor) publishBatch(ctx context.Context) (int, error) {
	p.batchMu.Lock()
	defer p.batchMu.Unlock()

	messages, err := p.repo.GetUnpublished(ctx, p.config.BatchSize)
	if err != nil {
		p.recordError(err)
		return 0, err
	}
	p.recordProcessed(messages)

	published := 0
	for _, msg := range messages {
		meta := p.metadata(msg)
		msgCtx := ctx
		if meta.CorrelationID != "" {
			msgCtx = observability.WithCorrelationID(ctx, meta.CorrelationID)
		}
		start := p.now()
		if err := p.publisher.Publish(msgCtx, msg.RoutingKey, msg.Payload); err != nil {
			p.handleFailure(msgCtx, msg, meta, err)
			continue
		}
		p.metrics.Timing(observability.MetricOutboxPublish, p.now().Sub(start), observability.T("routing_key", msg.RoutingKey))

		if err := p.repo.MarkPublished(ctx, msg.ID); err != nil {
			p.logger.ErrorContext(ctx, "failed to mark message as published",
				"id", msg.ID,
				"event_id", msg.EventID,
				"error", err,
			)
			continue
		}
		p.metrics.Counter(observability.MetricEventsPublished, 1, observability.T("routing_key", msg.RoutingKey))
		p.statsMu.Lock()
		p.stats.PublishedCount++
		p.statsMu.Unlock()
		published++
	}
	return published, nil
}

// handleFailure schedules a retry with exponential backoff, or moves the
// message to the dead letters once MaxRetries attempts have failed.
func (p *Processor) handleFailure(ctx context.Context, msg *Message, meta messageMeta, err error) {
	dead := p.config.MaxRetries <= 0 || msg.RetryCount+1 >= p.config.MaxRetries
	p.logger.WarnContext(ctx, "failed to publish message",
		"id", msg.ID,
		"routing_key", msg.RoutingKey,
		"event_id", msg.EventID,
		"retry", msg.RetryCount+1,
		"dead_letter", dead,
		"causation_id", meta.CausationID,
		"user_id", meta.UserID,
		"error", err,
	)

	var markErr error
	if dead {
		p.metrics.Counter(observability.MetricOutboxDead, 1, observability.T("routing_key", msg.RoutingKey))
		p.recordFailure(err, true)
		markErr = p.repo.MarkDead(ctx, msg.ID, err.Error())
	} else {
		p.metrics.Counter(observability.MetricOutboxRetried, 1, observability.T("routing_key", msg.RoutingKey))
		p.recordFailure(err, false)
		markErr = p.repo.MarkFailed(ctx, msg.ID, err.Error(), p.now().Add(p.retryBackoff(msg.RetryCount+1)))
	}
	if markErr != nil {
		p.logger.ErrorContext(ctx, "failed to record publish failure", "id", msg.ID, "error", markErr)
	}
}

func (p *Processor) retryBackoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	backoff := p.config.RetryBackoffBase * time.Duration(convert.ShiftClamped(attempt-1, 30))
	if backoff <= 0 || backoff > p.config.RetryBackoffMax {
		return p.config.RetryBackoffMax
	}
	return backoff
}

type messageMeta struct {
	CorrelationID string
	CausationID   string
	UserID        string
}

func (p *Processor) metadata(msg *Message) messageMeta {
	envelope, err := msg.Envelope()
	if err != nil {
		return messageMeta{}
	}
	var meta messageMeta
	if id := envelope.Metadata.CorrelationID; id != uuid.Nil {
		meta.CorrelationID = id.String()
	}
	if id := envelope.Metadata.CausationID; id != uuid.Nil {
		meta.CausationID = id.String()
	}
	if id := envelope.Metadata.UserID; id != uuid.Nil {
		meta.UserID = id.String()
	}
	return meta
}

// Stats is a snapshot of the processor's counters.
type Stats struct {
	IsRunning       bool
	PublishedCount  uint64
	FailedCount     uint64
	DeadCount       uint64
	LagSeconds      float64
	LastError       string
	LastErrorAt     *time.Time
	LastProcessedAt *time.Time
	OldestMessageAt *time.Time
}

// GetStats returns current processor statistics.
func (p *Processor) GetStats() Stats {
	running := p.IsRunning()
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	s := p.stats
	s.IsRunning = running
	return s
}

func (p *Processor) recordFailure(err error, dead bool) {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	if dead {
		p.stats.DeadCount++
	} else {
		p.stats.FailedCount++
	}
	p.setLastError(err)
}

func (p *Processor) recordError(err error) {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	p.setLastError(err)
}

func (p *Processor) setLastError(err error) {
	now := p.now()
	p.stats.LastError = err.Error()
	p.stats.LastErrorAt = &now
}

// recordProcessed tracks how far the processor lags behind the engine.
func (p *Processor) recordProcessed(messages []*Message) {
	now := p.now()
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	p.stats.LastProcessedAt = &now
	if len(messages) == 0 {
		p.stats.LagSeconds = 0
		p.stats.OldestMessageAt = nil
		p.metrics.Gauge(observability.MetricOutboxLag, 0)
		return
	}

	oldest := messages[0].CreatedAt
	for _, msg := range messages[1:] {
		if msg.CreatedAt.Before(oldest) {
			oldest = msg.CreatedAt
		}
	}
	p.stats.OldestMessageAt = &oldest
	p.stats.LagSeconds = now.Sub(oldest).Seconds()
	p.metrics.Gauge(observability.MetricOutboxLag, p.stats.LagSeconds)
}
