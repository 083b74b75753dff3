package engine

import (
	"context"
	"time"

	agingDomain "github.com/felixgeelhaar/gadfly/internal/aging/domain"
	escalationDomain "github.com/felixgeelhaar/gadfly/internal/escalation/domain"
	momentumDomain "github.com/felixgeelhaar/gadfly/internal/momentum/domain"
	sharedDomain "github.com/felixgeelhaar/gadfly/internal/shared/domain"
)

// CurrentLevel returns a scope's escalation level; the global scope is as
// escalated as its most neglected active goal.
func (e *Engine) CurrentLevel(scope escalationDomain.Scope) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tracker.CurrentLevel(scope)
}

// EscalationState returns a scope's stored state and its effective level.
func (e *Engine) EscalationState(scope escalationDomain.Scope) (escalationDomain.ScopeState, int, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.tracker.State(scope)
	return st, e.tracker.CurrentLevel(scope), ok
}

// EscalationStates returns every scope, global first.
func (e *Engine) EscalationStates() []escalationDomain.ScopeState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tracker.States()
}

// AddTimeInScope records time the user spent working in a scope today.
func (e *Engine) AddTimeInScope(ctx context.Context, scope escalationDomain.Scope, d time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	if err := e.catchUp(ctx, now); err != nil {
		return err
	}
	if scope.IsGoal() {
		if _, ok := e.goals[scope.GoalID()]; !ok {
			return escalationDomain.ErrGoalNotFound
		}
	}
	e.tracker.AddTimeInScope(scope, d, e.today)
	cs := newChangeset()
	e.stageScopes(cs)
	return e.commit(ctx, cs)
}

// AgingView is a mirrored task with its classification at now.
type AgingView struct {
	Task  agingDomain.TaskMirror     `json:"task"`
	Class agingDomain.Classification `json:"classification"`
}

// Aging classifies a tracked task at the engine clock's now.
func (e *Engine) Aging(taskID string) (AgingView, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, ok := e.monitor.Get(taskID)
	if !ok {
		return AgingView{}, agingDomain.ErrTaskNotTracked
	}
	return AgingView{Task: *m, Class: m.Classify(e.clock.Now())}, nil
}

// Tasks returns copies of every mirrored task.
func (e *Engine) Tasks() []agingDomain.TaskMirror {
	e.mu.Lock()
	defer e.mu.Unlock()
	tasks := e.monitor.Tasks()
	out := make([]agingDomain.TaskMirror, 0, len(tasks))
	for _, m := range tasks {
		out = append(out, *m)
	}
	return out
}

// Momentum returns today's completion counters.
func (e *Engine) Momentum() momentumDomain.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.momentum.State()
}

// CelebrationFor previews the celebration a completion of p would earn now.
func (e *Engine) CelebrationFor(p sharedDomain.Priority) momentumDomain.CelebrationLevel {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.momentum.LevelFor(p, e.clock.Now())
}
