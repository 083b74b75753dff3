package domain_test

import (
	"testing"
	"time"

	"github.com/felixgeelhaar/gadfly/internal/shared/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestNewBaseEvent(t *testing.T) {
	at := time.Date(2026, 3, 1, 9, 30, 0, 0, time.FixedZone("CET", 3600))

	event := domain.NewBaseEvent("task-1", "NagSchedule", "nag.reminder.fired", at)

	assert.NotEqual(t, uuid.Nil, event.EventID())
	assert.Equal(t, "task-1", event.AggregateID())
	assert.Equal(t, "NagSchedule", event.AggregateType())
	assert.Equal(t, "nag.reminder.fired", event.RoutingKey())
	assert.True(t, at.Equal(event.OccurredAt()))
	assert.Equal(t, time.UTC, event.OccurredAt().Location())
}

func TestBaseEvent_WithMetadata(t *testing.T) {
	metadata := domain.EventMetadata{
		CorrelationID: uuid.New(),
		CausationID:   uuid.New(),
		UserID:        uuid.New(),
	}

	event := domain.NewBaseEvent("ledger", "Ledger", "rewards.points.credited", time.Now())
	event.SetMetadata(metadata)

	assert.Equal(t, metadata, event.Metadata())
}

func TestNewBaseEvent_IDsAreTimeOrdered(t *testing.T) {
	first := domain.NewBaseEvent("t-1", "NagSchedule", "nag.reminder.fired", time.Now())
	second := domain.NewBaseEvent("t-1", "NagSchedule", "nag.reminder.fired", time.Now())

	assert.Equal(t, uuid.Version(7), first.EventID().Version())
	assert.Less(t, first.EventID().String(), second.EventID().String())
}
