package eventbus_test

import (
	"context"
	"errors"
	"testing"

	"github.com/felixgeelhaar/gadfly/internal/shared/infrastructure/eventbus"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockConsumer struct {
	eventTypes []string
	events     []*eventbus.ConsumedEvent
	err        error
}

func (m *mockConsumer) EventTypes() []string {
	return m.eventTypes
}

func (m *mockConsumer) Handle(ctx context.Context, event *eventbus.ConsumedEvent) error {
	m.events = append(m.events, event)
	return m.err
}

func TestConsumerRegistry_GetConsumers(t *testing.T) {
	registry := eventbus.NewConsumerRegistry(nil)

	exact := &mockConsumer{eventTypes: []string{"nag.reminder.fired"}}
	wildcard := &mockConsumer{eventTypes: []string{"taskstore.task.*", "taskstore.#"}}
	registry.Register(exact)
	registry.Register(wildcard)

	assert.Len(t, registry.GetConsumers("nag.reminder.fired"), 1)
	assert.Len(t, registry.GetConsumers("taskstore.task.completed"), 1, "matched twice, returned once")
	assert.Empty(t, registry.GetConsumers("rewards.points.credited"))
	assert.Equal(t, []string{"nag.reminder.fired", "taskstore.#", "taskstore.task.*"}, registry.Patterns())
}

func TestConsumerRegistry_Dispatch(t *testing.T) {
	t.Run("delivers to every matching consumer", func(t *testing.T) {
		registry := eventbus.NewConsumerRegistry(nil)
		first := &mockConsumer{eventTypes: []string{"rewards.#"}}
		second := &mockConsumer{eventTypes: []string{"rewards.points.credited"}}
		registry.Register(first)
		registry.Register(second)

		event := &eventbus.ConsumedEvent{EventID: uuid.New(), RoutingKey: "rewards.points.credited"}
		require.NoError(t, registry.Dispatch(context.Background(), event))

		assert.Len(t, first.events, 1)
		assert.Len(t, second.events, 1)
	})

	t.Run("keeps going after a failure and joins errors", func(t *testing.T) {
		registry := eventbus.NewConsumerRegistry(nil)
		boom := errors.New("boom")
		failing := &mockConsumer{eventTypes: []string{"nag.#"}, err: boom}
		ok := &mockConsumer{eventTypes: []string{"nag.reminder.fired"}}
		registry.Register(failing)
		registry.Register(ok)

		err := registry.Dispatch(context.Background(), &eventbus.ConsumedEvent{RoutingKey: "nag.reminder.fired"})

		assert.ErrorIs(t, err, boom)
		assert.Len(t, ok.events, 1)
	})

	t.Run("no consumers is not an error", func(t *testing.T) {
		registry := eventbus.NewConsumerRegistry(nil)
		assert.NoError(t, registry.Dispatch(context.Background(), &eventbus.ConsumedEvent{RoutingKey: "x.y"}))
	})
}

func TestMatchTopic(t *testing.T) {
	tests := []struct {
		pattern string
		key     string
		want    bool
	}{
		{"nag.reminder.fired", "nag.reminder.fired", true},
		{"nag.*.fired", "nag.reminder.fired", true},
		{"nag.*", "nag.reminder.fired", false},
		{"nag.#", "nag.reminder.fired", true},
		{"nag.#", "nag", true},
		{"#.fired", "nag.reminder.fired", true},
		{"#", "anything.at.all", true},
		{"taskstore.task.*", "taskstore.goal.created", false},
		{"*.task.created", "taskstore.task.created", true},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+"→"+tt.key, func(t *testing.T) {
			assert.Equal(t, tt.want, eventbus.MatchTopic(tt.pattern, tt.key))
		})
	}
}
