package engine

import (
	"time"

	sharedDomain "github.com/felixgeelhaar/gadfly/internal/shared/domain"
)

// RoutingKeyDuePushRequested asks the external task store to move a due date.
const RoutingKeyDuePushRequested = "tasks.due.push_requested"

// DuePushRequested is an outbound command; the engine's own mirror only
// changes once the store reports the new due date.
type DuePushRequested struct {
	sharedDomain.BaseEvent
	TaskID string    `json:"task_id"`
	Mode   PushMode  `json:"mode"`
	Hours  int       `json:"hours,omitempty"`
	DueAt  time.Time `json:"due_at"`
}

func newDuePushRequested(taskID string, req PushRequest, dueAt, at time.Time) *DuePushRequested {
	return &DuePushRequested{
		BaseEvent: sharedDomain.NewBaseEvent(taskID, "Task", RoutingKeyDuePushRequested, at),
		TaskID:    taskID,
		Mode:      req.Mode,
		Hours:     req.Hours,
		DueAt:     dueAt.UTC(),
	}
}
