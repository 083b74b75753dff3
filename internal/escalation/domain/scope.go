package domain

import (
	"errors"
	"strings"
	"time"

	sharedDomain "github.com/felixgeelhaar/gadfly/internal/shared/domain"
)

// Scope names what an escalation level is measured over: the user overall
// or one goal.
type Scope string

// GlobalScope is the user-level scope.
const GlobalScope Scope = "global"

const goalPrefix = "goal:"

var ErrInvalidScope = errors.New("invalid escalation scope")

// GoalScope returns the scope of a goal.
func GoalScope(goalID string) Scope {
	return Scope(goalPrefix + goalID)
}

// ParseScope accepts "global" or "goal:<id>".
func ParseScope(s string) (Scope, error) {
	s = strings.TrimSpace(s)
	if s == string(GlobalScope) {
		return GlobalScope, nil
	}
	if id, ok := strings.CutPrefix(s, goalPrefix); ok && id != "" {
		return Scope(s), nil
	}
	return "", ErrInvalidScope
}

// IsGoal reports whether the scope belongs to a goal.
func (s Scope) IsGoal() bool { return strings.HasPrefix(string(s), goalPrefix) }

// GoalID returns the goal id of a goal scope, or "".
func (s Scope) GoalID() string {
	id, ok := strings.CutPrefix(string(s), goalPrefix)
	if !ok {
		return ""
	}
	return id
}

func (s Scope) String() string { return string(s) }

// TodayStats are the per-day counters of a scope, cleared at rollover.
type TodayStats struct {
	TasksCompleted  int           `json:"tasks_completed"`
	GoalsProgressed int           `json:"goals_progressed"`
	TimeInScope     time.Duration `json:"time_in_scope"`
}

// ScopeState is the escalation state of one scope.
type ScopeState struct {
	Scope           Scope            `json:"scope"`
	Level           int              `json:"level"`
	IdleDays        int              `json:"idle_days"`
	LastProgressDay sharedDomain.Day `json:"last_progress_day"`
	Active          bool             `json:"active"`
	Today           TodayStats       `json:"today"`
}
