// Package consumers feeds lifecycle events of the external task store
// into the engine.
package consumers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/gadfly/internal/engine"
	sharedDomain "github.com/felixgeelhaar/gadfly/internal/shared/domain"
	"github.com/felixgeelhaar/gadfly/internal/shared/infrastructure/eventbus"
)

// Routing keys published by the task store.
const (
	RoutingKeyTaskCreated    = "taskstore.task.created"
	RoutingKeyTaskCompleted  = "taskstore.task.completed"
	RoutingKeyTaskDueChanged = "taskstore.task.due_changed"
	RoutingKeyTaskDeleted    = "taskstore.task.deleted"
)

var ErrMissingTaskID = errors.New("task event without task id")

// TaskEngine is the part of the engine task events drive.
type TaskEngine interface {
	TaskCreated(ctx context.Context, sig engine.TaskSignal) error
	TaskDueChanged(ctx context.Context, taskID string, dueAt *time.Time) error
	TaskCompleted(ctx context.Context, sig engine.CompletionSignal) (engine.CompletionResult, error)
	TaskDeleted(ctx context.Context, taskID string) error
}

// TaskEvent is the payload of every task store event.
type TaskEvent struct {
	TaskID      string                `json:"task_id"`
	Title       string                `json:"title,omitempty"`
	Priority    sharedDomain.Priority `json:"priority,omitempty"`
	CreatedAt   time.Time             `json:"created_at,omitempty"`
	DueAt       *time.Time            `json:"due_at,omitempty"`
	Nag         *bool                 `json:"nag,omitempty"`
	CompletedAt time.Time             `json:"completed_at,omitempty"`
}

// TaskEventConsumer applies task store events to the engine.
type TaskEventConsumer struct {
	engine TaskEngine
	logger *slog.Logger
}

func NewTaskEventConsumer(eng TaskEngine, logger *slog.Logger) *TaskEventConsumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskEventConsumer{engine: eng, logger: logger}
}

func (c *TaskEventConsumer) EventTypes() []string {
	return []string{"taskstore.task.*"}
}

func (c *TaskEventConsumer) Handle(ctx context.Context, event *eventbus.ConsumedEvent) error {
	var payload TaskEvent
	if err := event.Decode(&payload); err != nil {
		return fmt.Errorf("decode task event: %w", err)
	}
	if payload.TaskID == "" {
		payload.TaskID = event.AggregateID
	}
	if payload.TaskID == "" {
		return ErrMissingTaskID
	}

	switch event.RoutingKey {
	case RoutingKeyTaskCreated:
		created := payload.CreatedAt
		if created.IsZero() {
			created = event.OccurredAt
		}
		return c.engine.TaskCreated(ctx, engine.TaskSignal{
			ID:        payload.TaskID,
			Title:     payload.Title,
			Priority:  payload.Priority,
			CreatedAt: created,
			DueAt:     payload.DueAt,
			Nag:       payload.Nag,
		})
	case RoutingKeyTaskDueChanged:
		return c.engine.TaskDueChanged(ctx, payload.TaskID, payload.DueAt)
	case RoutingKeyTaskCompleted:
		at := payload.CompletedAt
		if at.IsZero() {
			at = event.OccurredAt
		}
		res, err := c.engine.TaskCompleted(ctx, engine.CompletionSignal{
			ID:          payload.TaskID,
			Priority:    payload.Priority,
			CompletedAt: at,
		})
		if err != nil {
			return err
		}
		c.logger.DebugContext(ctx, "task completion applied",
			"task_id", payload.TaskID,
			"points", res.Points,
			"duplicate", res.Duplicate,
		)
		return nil
	case RoutingKeyTaskDeleted:
		return c.engine.TaskDeleted(ctx, payload.TaskID)
	default:
		c.logger.DebugContext(ctx, "ignoring task event", "routing_key", event.RoutingKey)
		return nil
	}
}
