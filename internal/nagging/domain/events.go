package domain

import (
	"time"

	sharedDomain "github.com/felixgeelhaar/gadfly/internal/shared/domain"
)

const aggregateType = "NagSchedule"

const (
	RoutingKeyNagFired           = "nag.reminder.fired"
	RoutingKeyNagCancelled       = "nag.reminder.cancelled"
	RoutingKeyPermissionLost     = "nag.permission.lost"
	RoutingKeyPermissionRestored = "nag.permission.restored"
)

// NagFired asks the notification layer to interrupt the user about a task.
type NagFired struct {
	sharedDomain.BaseEvent
	TaskID    string `json:"task_id"`
	Message   string `json:"message"`
	Category  string `json:"category,omitempty"`
	FireCount int    `json:"fire_count"`
	Retry     bool   `json:"retry,omitempty"`
}

func newNagFired(f Fire) *NagFired {
	return &NagFired{
		BaseEvent: sharedDomain.NewBaseEvent(f.TaskID, aggregateType, RoutingKeyNagFired, f.FiredAt),
		TaskID:    f.TaskID,
		Message:   f.Message,
		Category:  f.Category,
		FireCount: f.FireCount,
		Retry:     f.Retry,
	}
}

// NagCancelled tells the notification layer to withdraw pending reminders.
// Withdrawing an already delivered one is a best-effort no-op downstream.
type NagCancelled struct {
	sharedDomain.BaseEvent
	TaskID string `json:"task_id"`
}

func newNagCancelled(taskID string, at time.Time) *NagCancelled {
	return &NagCancelled{
		BaseEvent: sharedDomain.NewBaseEvent(taskID, aggregateType, RoutingKeyNagCancelled, at),
		TaskID:    taskID,
	}
}

// PermissionLost is the user-visible condition raised once when the OS
// denies notifications.
type PermissionLost struct {
	sharedDomain.BaseEvent
	TaskID string `json:"task_id"`
}

func newPermissionLost(taskID string, at time.Time) *PermissionLost {
	return &PermissionLost{
		BaseEvent: sharedDomain.NewBaseEvent(ScheduleID, aggregateType, RoutingKeyPermissionLost, at),
		TaskID:    taskID,
	}
}

// PermissionRestored clears the condition raised by PermissionLost.
type PermissionRestored struct {
	sharedDomain.BaseEvent
}

func newPermissionRestored(at time.Time) *PermissionRestored {
	return &PermissionRestored{
		BaseEvent: sharedDomain.NewBaseEvent(ScheduleID, aggregateType, RoutingKeyPermissionRestored, at),
	}
}
