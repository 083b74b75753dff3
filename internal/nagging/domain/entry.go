package domain

import (
	"errors"
	"time"

	agingDomain "github.com/felixgeelhaar/gadfly/internal/aging/domain"
	sharedDomain "github.com/felixgeelhaar/gadfly/internal/shared/domain"
)

var (
	ErrInvalidInterval = errors.New("nag interval must be positive")
	ErrEmptyTaskID     = errors.New("task id cannot be empty")
)

// Entry is the nag schedule of one task. At most one exists per task.
type Entry struct {
	TaskID        string                `json:"task_id"`
	Interval      time.Duration         `json:"interval"`
	NextFireAt    time.Time             `json:"next_fire_at"`
	Active        bool                  `json:"active"`
	Tier          agingDomain.Tier      `json:"tier"`
	Priority      sharedDomain.Priority `json:"priority"`
	TaskCreatedAt time.Time             `json:"task_created_at"`
	LastFiredAt   *time.Time            `json:"last_fired_at,omitempty"`
	FireCount     int                   `json:"fire_count"`
	// Override is an explicitly requested interval, set while the task was
	// in OverrideTier. Zero when the interval follows priority and tier.
	Override     time.Duration    `json:"override,omitempty"`
	OverrideTier agingDomain.Tier `json:"override_tier,omitempty"`
	// RetryPending asks the next tick to fire again after a transient delivery failure.
	RetryPending bool `json:"retry_pending,omitempty"`
	// RetryUsed is set once the single retry of the current fire is spent.
	RetryUsed bool `json:"retry_used,omitempty"`
}

// Spec holds the parameters of a schedule call.
type Spec struct {
	TaskID        string
	Interval      time.Duration
	Tier          agingDomain.Tier
	Priority      sharedDomain.Priority
	TaskCreatedAt time.Time
	Override      time.Duration
	OverrideTier  agingDomain.Tier
}

func (s Spec) validate() error {
	if s.TaskID == "" {
		return ErrEmptyTaskID
	}
	if s.Interval <= 0 || s.Override < 0 {
		return ErrInvalidInterval
	}
	return nil
}

func (e *Entry) matches(s Spec) bool {
	return e.Interval == s.Interval &&
		e.Tier == s.Tier &&
		e.Priority == s.Priority &&
		e.Override == s.Override &&
		e.OverrideTier == s.OverrideTier &&
		e.TaskCreatedAt.Equal(s.TaskCreatedAt)
}

// due reports whether the regular cadence says the entry should fire at now.
func (e *Entry) due(now time.Time) bool {
	return e.Active && !e.NextFireAt.After(now)
}

// fireOrder sorts critical tiers first, then older tasks, then by id.
func fireOrder(a, b *Entry) bool {
	if a.Tier != b.Tier {
		return a.Tier > b.Tier
	}
	if !a.TaskCreatedAt.Equal(b.TaskCreatedAt) {
		return a.TaskCreatedAt.Before(b.TaskCreatedAt)
	}
	return a.TaskID < b.TaskID
}

// DeliveryOutcome is what the notification layer reports back after a fire.
type DeliveryOutcome string

const (
	DeliveryDelivered DeliveryOutcome = "delivered"
	DeliveryTransient DeliveryOutcome = "transient"
	DeliveryPermanent DeliveryOutcome = "permanent"
)

var ErrInvalidOutcome = errors.New("invalid delivery outcome")

// ParseDeliveryOutcome parses an outcome name.
func ParseDeliveryOutcome(s string) (DeliveryOutcome, error) {
	switch o := DeliveryOutcome(s); o {
	case DeliveryDelivered, DeliveryTransient, DeliveryPermanent:
		return o, nil
	default:
		return "", ErrInvalidOutcome
	}
}
