package domain

import (
	"sort"
	"time"

	sharedDomain "github.com/felixgeelhaar/gadfly/internal/shared/domain"
)

// TrackerID identifies the single escalation tracker of an engine.
const TrackerID = "escalation"

// ScopeChange is one level movement produced by a recompute.
type ScopeChange struct {
	Scope Scope
	From  int
	To    int
}

// Tracker keeps the escalation state of the global scope and every goal.
type Tracker struct {
	sharedDomain.BaseAggregateRoot
	policy Policy
	scopes map[Scope]*ScopeState
}

// NewTracker creates a tracker whose global scope last progressed today.
func NewTracker(policy Policy, today sharedDomain.Day, now time.Time) *Tracker {
	t := &Tracker{
		BaseAggregateRoot: sharedDomain.NewBaseAggregateRoot(TrackerID, now),
		policy:            policy,
		scopes:            make(map[Scope]*ScopeState),
	}
	t.EnsureScope(GlobalScope, today)
	return t
}

// RehydrateTracker rebuilds a tracker from stored scope states.
func RehydrateTracker(policy Policy, states []ScopeState, today sharedDomain.Day, now time.Time) *Tracker {
	t := &Tracker{
		BaseAggregateRoot: sharedDomain.NewBaseAggregateRoot(TrackerID, now),
		policy:            policy,
		scopes:            make(map[Scope]*ScopeState),
	}
	for i := range states {
		st := states[i]
		t.scopes[st.Scope] = &st
	}
	t.EnsureScope(GlobalScope, today)
	return t
}

// Policy returns the level policy in use.
func (t *Tracker) Policy() Policy { return t.policy }

// EnsureScope registers a scope that starts with no idle days.
// Existing scopes are left alone.
func (t *Tracker) EnsureScope(scope Scope, today sharedDomain.Day) *ScopeState {
	if st, ok := t.scopes[scope]; ok {
		return st
	}
	st := &ScopeState{Scope: scope, LastProgressDay: today, Active: true}
	t.scopes[scope] = st
	return st
}

// RemoveScope forgets a scope, e.g. a deleted goal.
func (t *Tracker) RemoveScope(scope Scope) bool {
	if scope == GlobalScope {
		return false
	}
	if _, ok := t.scopes[scope]; !ok {
		return false
	}
	delete(t.scopes, scope)
	return true
}

// SetActive includes or excludes a goal scope from the global maximum.
func (t *Tracker) SetActive(scope Scope, active bool) {
	if st, ok := t.scopes[scope]; ok {
		st.Active = active
	}
}

// State returns a copy of a scope's state.
func (t *Tracker) State(scope Scope) (ScopeState, bool) {
	st, ok := t.scopes[scope]
	if !ok {
		return ScopeState{}, false
	}
	return *st, true
}

// States returns copies of every scope, global first.
func (t *Tracker) States() []ScopeState {
	out := make([]ScopeState, 0, len(t.scopes))
	for _, st := range t.scopes {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Scope == GlobalScope {
			return out[j].Scope != GlobalScope
		}
		if out[j].Scope == GlobalScope {
			return false
		}
		return out[i].Scope < out[j].Scope
	})
	return out
}

// OnCompletion records progress in scope and recomputes every level at
// once with the new velocity. Progress on a goal is also progress overall.
func (t *Tracker) OnCompletion(scope Scope, velocity int, today sharedDomain.Day, now time.Time) []ScopeChange {
	st := t.EnsureScope(scope, today)
	st.IdleDays = 0
	st.LastProgressDay = today
	if scope.IsGoal() {
		st.Today.GoalsProgressed++
		global := t.scopes[GlobalScope]
		global.IdleDays = 0
		global.LastProgressDay = today
		global.Today.GoalsProgressed++
	} else {
		st.Today.TasksCompleted++
	}
	return t.recompute(velocity, now)
}

// AddTimeInScope accumulates time the user spent working in a scope today.
func (t *Tracker) AddTimeInScope(scope Scope, d time.Duration, today sharedDomain.Day) {
	if d <= 0 {
		return
	}
	t.EnsureScope(scope, today).Today.TimeInScope += d
}

// OnInactivityRollover runs once per local day: idle days are recomputed
// from the last progress day, today's stats clear, and levels republish.
func (t *Tracker) OnInactivityRollover(today sharedDomain.Day, velocity int, now time.Time) []ScopeChange {
	for _, st := range t.scopes {
		st.IdleDays = sharedDomain.DaysBetween(st.LastProgressDay, today)
		if st.IdleDays < 0 {
			st.IdleDays = 0
		}
		st.Today = TodayStats{}
	}
	return t.recompute(velocity, now)
}

// Recompute reapplies the policy, e.g. after velocity changed.
func (t *Tracker) Recompute(velocity int, now time.Time) []ScopeChange {
	return t.recompute(velocity, now)
}

func (t *Tracker) recompute(velocity int, now time.Time) []ScopeChange {
	var changes []ScopeChange
	for _, st := range t.States() {
		cur := t.scopes[st.Scope]
		level := t.policy.Level(cur.IdleDays, velocity)
		if level == cur.Level {
			continue
		}
		from := cur.Level
		cur.Level = level
		changes = append(changes, ScopeChange{Scope: cur.Scope, From: from, To: level})
		t.AddDomainEvent(newLevelChanged(cur, from, now))
	}
	t.Touch(now)
	return changes
}

// CurrentLevel returns a scope's level. The global level is the maximum of
// its own level and every active goal's level. Unknown scopes are level 0.
func (t *Tracker) CurrentLevel(scope Scope) int {
	st, ok := t.scopes[scope]
	if !ok {
		return 0
	}
	if scope != GlobalScope {
		return st.Level
	}
	level := st.Level
	for _, other := range t.scopes {
		if other.Scope.IsGoal() && other.Active && other.Level > level {
			level = other.Level
		}
	}
	return level
}
