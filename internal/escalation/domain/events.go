package domain

import (
	"time"

	sharedDomain "github.com/felixgeelhaar/gadfly/internal/shared/domain"
)

const (
	trackerAggregateType = "EscalationTracker"
	goalAggregateType    = "Goal"
)

const (
	RoutingKeyLevelChanged       = "escalation.level.changed"
	RoutingKeyGoalCreated        = "goals.goal.created"
	RoutingKeyMilestoneCompleted = "goals.milestone.completed"
	RoutingKeyGoalCompleted      = "goals.goal.completed"
	RoutingKeyGoalStatusChanged  = "goals.goal.status_changed"
)

// LevelChanged is published whenever a scope's level moves.
type LevelChanged struct {
	sharedDomain.BaseEvent
	Scope    Scope `json:"scope"`
	From     int   `json:"from"`
	To       int   `json:"to"`
	IdleDays int   `json:"idle_days"`
}

func newLevelChanged(st *ScopeState, from int, at time.Time) *LevelChanged {
	return &LevelChanged{
		BaseEvent: sharedDomain.NewBaseEvent(string(st.Scope), trackerAggregateType, RoutingKeyLevelChanged, at),
		Scope:     st.Scope,
		From:      from,
		To:        st.Level,
		IdleDays:  st.IdleDays,
	}
}

// GoalCreated is emitted when the user creates a goal.
type GoalCreated struct {
	sharedDomain.BaseEvent
	GoalID     string `json:"goal_id"`
	Title      string `json:"title"`
	Milestones int    `json:"milestones"`
}

// MilestoneCompleted is emitted when the goal cursor advances.
type MilestoneCompleted struct {
	sharedDomain.BaseEvent
	GoalID    string `json:"goal_id"`
	Index     int    `json:"index"`
	Title     string `json:"title"`
	Remaining int    `json:"remaining"`
}

// GoalCompletedEvent is emitted when the final milestone completes.
type GoalCompletedEvent struct {
	sharedDomain.BaseEvent
	GoalID string `json:"goal_id"`
	Title  string `json:"title"`
}

// GoalStatusChanged is emitted on pause, resume and abandon.
type GoalStatusChanged struct {
	sharedDomain.BaseEvent
	GoalID string     `json:"goal_id"`
	From   GoalStatus `json:"from"`
	To     GoalStatus `json:"to"`
}
