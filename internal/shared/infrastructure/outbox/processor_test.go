package outbox_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/felixgeelhaar/gadfly/internal/shared/domain"
	"github.com/felixgeelhaar/gadfly/internal/shared/infrastructure/outbox"
	"github.com/felixgeelhaar/gadfly/pkg/observability"
)

// mockPublisher is a test double for eventbus.Publisher
type mockPublisher struct {
	mu          sync.Mutex
	published   []string
	failForKeys map[string]bool
}

func newMockPublisher() *mockPublisher {
	return &mockPublisher{failForKeys: make(map[string]bool)}
}

func (p *mockPublisher) Publish(ctx context.Context, routingKey string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.failForKeys[routingKey] {
		return errors.New("publish failed")
	}
	p.published = append(p.published, routingKey)
	return nil
}

func (p *mockPublisher) Close() error {
	return nil
}

func (p *mockPublisher) Published() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.published...)
}

type firedEvent struct {
	domain.BaseEvent
	Message string `json:"message"`
}

func createTestMessage(t *testing.T, routingKey string) *outbox.Message {
	t.Helper()
	msg, err := outbox.NewMessage(&firedEvent{
		BaseEvent: domain.NewBaseEvent("task-1", "NagSchedule", routingKey, time.Now()),
		Message:   "hello",
	})
	require.NoError(t, err)
	return msg
}

func TestProcessor_ProcessOnce(t *testing.T) {
	ctx := context.Background()
	repo := outbox.NewMemoryRepository()
	publisher := newMockPublisher()
	processor := outbox.NewProcessor(repo, publisher, outbox.DefaultProcessorConfig(), nil)

	require.NoError(t, repo.Save(ctx, createTestMessage(t, "nag.reminder.fired")))
	require.NoError(t, repo.Save(ctx, createTestMessage(t, "rewards.points.credited")))

	require.NoError(t, processor.ProcessOnce(ctx))

	assert.Equal(t, []string{"nag.reminder.fired", "rewards.points.credited"}, publisher.Published())

	pending, err := repo.GetUnpublished(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	stats := processor.GetStats()
	assert.Equal(t, uint64(2), stats.PublishedCount)
	assert.NotNil(t, stats.LastProcessedAt)
	assert.NotNil(t, stats.OldestMessageAt)
	assert.GreaterOrEqual(t, stats.LagSeconds, 0.0)
}

func TestProcessor_ProcessOnce_PublishFailure(t *testing.T) {
	ctx := context.Background()
	repo := outbox.NewMemoryRepository()
	publisher := newMockPublisher()
	publisher.failForKeys["nag.permission.lost"] = true
	processor := outbox.NewProcessor(repo, publisher, outbox.DefaultProcessorConfig(), nil)

	require.NoError(t, repo.Save(ctx, createTestMessage(t, "nag.reminder.fired")))
	require.NoError(t, repo.Save(ctx, createTestMessage(t, "nag.permission.lost")))

	require.NoError(t, processor.ProcessOnce(ctx), "publish failures are recorded, not returned")

	assert.Equal(t, []string{"nag.reminder.fired"}, publisher.Published())

	// The failed message waits for its backoff before it is due again.
	pending, err := repo.GetUnpublished(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	stats := processor.GetStats()
	assert.Equal(t, uint64(1), stats.PublishedCount)
	assert.Equal(t, uint64(1), stats.FailedCount)
	assert.NotNil(t, stats.LastErrorAt)
}

func TestProcessor_DeadLettersAfterMaxRetries(t *testing.T) {
	ctx := context.Background()
	repo := outbox.NewMemoryRepository()
	publisher := newMockPublisher()
	publisher.failForKeys["nag.reminder.fired"] = true
	config := outbox.DefaultProcessorConfig()
	config.MaxRetries = 1
	processor := outbox.NewProcessor(repo, publisher, config, nil)

	require.NoError(t, repo.Save(ctx, createTestMessage(t, "nag.reminder.fired")))

	require.NoError(t, processor.ProcessOnce(ctx))

	dead, err := repo.GetDead(ctx, 10)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, "publish failed", *dead[0].DeadLetterReason)
	assert.Equal(t, uint64(1), processor.GetStats().DeadCount)
}

func TestProcessor_Drain(t *testing.T) {
	ctx := context.Background()
	repo := outbox.NewMemoryRepository()
	publisher := newMockPublisher()
	config := outbox.DefaultProcessorConfig()
	config.BatchSize = 2
	processor := outbox.NewProcessor(repo, publisher, config, nil)

	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Save(ctx, createTestMessage(t, "nag.reminder.fired")))
	}

	n, err := processor.Drain(ctx)

	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Len(t, publisher.Published(), 5)
}

func TestProcessor_StartStop(t *testing.T) {
	defer goleak.VerifyNone(t)

	repo := outbox.NewMemoryRepository()
	publisher := newMockPublisher()
	config := outbox.ProcessorConfig{
		PollInterval:     5 * time.Millisecond,
		BatchSize:        10,
		MaxRetries:       3,
		RetryBackoffBase: time.Millisecond,
		RetryBackoffMax:  10 * time.Millisecond,
	}
	processor := outbox.NewProcessor(repo, publisher, config, nil)

	require.NoError(t, processor.Start(context.Background()))
	assert.True(t, processor.IsRunning())
	assert.True(t, processor.GetStats().IsRunning)

	require.NoError(t, repo.Save(context.Background(), createTestMessage(t, "nag.reminder.fired")))

	assert.Eventually(t, func() bool {
		return len(publisher.Published()) == 1
	}, time.Second, 5*time.Millisecond)

	processor.Stop()
	assert.False(t, processor.IsRunning())
	assert.False(t, processor.GetStats().IsRunning)
}

func TestProcessor_StartStopIdempotent(t *testing.T) {
	defer goleak.VerifyNone(t)

	processor := outbox.NewProcessor(outbox.NewMemoryRepository(), newMockPublisher(), outbox.DefaultProcessorConfig(), nil)

	require.NoError(t, processor.Start(context.Background()))
	require.NoError(t, processor.Start(context.Background()))

	processor.Stop()
	processor.Stop()
}

func TestProcessor_StopsOnContextCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	config := outbox.DefaultProcessorConfig()
	config.PollInterval = time.Millisecond
	processor := outbox.NewProcessor(outbox.NewMemoryRepository(), newMockPublisher(), config, nil)

	require.NoError(t, processor.Start(ctx))
	cancel()
	processor.Stop()
}

func TestProcessor_ReportsMetrics(t *testing.T) {
	ctx := context.Background()
	repo := outbox.NewMemoryRepository()
	publisher := newMockPublisher()
	publisher.failForKeys["nag.permission.lost"] = true
	metrics := observability.NewInMemoryMetrics()
	now := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)
	processor := outbox.NewProcessor(repo, publisher, outbox.ProcessorConfig{MaxRetries: 3}, nil,
		outbox.WithMetrics(metrics),
		outbox.WithClock(func() time.Time { return now }),
	)

	require.NoError(t, repo.Save(ctx, createTestMessage(t, "nag.reminder.fired")))
	require.NoError(t, repo.Save(ctx, createTestMessage(t, "nag.permission.lost")))
	require.NoError(t, processor.ProcessOnce(ctx))

	assert.Equal(t, int64(1), metrics.GetCounter(observability.MetricEventsPublished, observability.T("routing_key", "nag.reminder.fired")))
	assert.Equal(t, int64(1), metrics.GetCounter(observability.MetricOutboxRetried, observability.T("routing_key", "nag.permission.lost")))
	assert.Len(t, metrics.GetTimings(observability.MetricOutboxPublish, observability.T("routing_key", "nag.reminder.fired")), 1)

	stats := processor.GetStats()
	require.NotNil(t, stats.LastErrorAt)
	assert.Equal(t, now, *stats.LastErrorAt)
}
