package engine

import (
	"context"
	"fmt"
	"sort"

	escalationDomain "github.com/felixgeelhaar/gadfly/internal/escalation/domain"
	rewardsDomain "github.com/felixgeelhaar/gadfly/internal/rewards/domain"
)

// GoalProgress is the outcome of completing a milestone.
type GoalProgress struct {
	Goal         escalationDomain.GoalState
	GoalComplete bool
	Points       int64
	Balance      int64
}

// CreateGoal creates an active goal and starts tracking its escalation scope.
func (e *Engine) CreateGoal(ctx context.Context, title string, milestones []escalationDomain.MilestoneSpec) (escalationDomain.GoalState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	if err := e.catchUp(ctx, now); err != nil {
		return escalationDomain.GoalState{}, err
	}

	g, err := escalationDomain.NewGoal(title, milestones, now)
	if err != nil {
		return escalationDomain.GoalState{}, err
	}
	e.goals[g.ID()] = g
	e.tracker.EnsureScope(g.Scope(), e.today)

	cs := newChangeset()
	e.stageGoal(cs, g)
	e.stageScopes(cs)
	if err := e.commit(ctx, cs); err != nil {
		return escalationDomain.GoalState{}, err
	}
	return g.Snapshot(), nil
}

// CompleteMilestone completes the goal's current milestone. It counts as
// progress for the goal and the global scope and credits milestone points;
// the final milestone also credits the goal completion award.
func (e *Engine) CompleteMilestone(ctx context.Context, goalID string) (GoalProgress, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	if err := e.catchUp(ctx, now); err != nil {
		return GoalProgress{}, err
	}
	g, ok := e.goals[goalID]
	if !ok {
		return GoalProgress{}, escalationDomain.ErrGoalNotFound
	}

	index := g.Cursor()
	done, err := g.CompleteMilestone(now)
	if err != nil {
		return GoalProgress{}, err
	}
	e.tracker.OnCompletion(g.Scope(), e.momentum.VelocityToday(), e.today, now)

	var points int64
	key := fmt.Sprintf("milestone:%s/%d", g.ID(), index)
	credited, err := e.ledger.CreditOnce(key, rewardsDomain.Credit{
		Amount: e.cfg.GoalMilestonePoints,
		Reason: rewardsDomain.ReasonGoalMilestone,
		Ref:    g.ID(),
	}, e.today, now)
	if err != nil {
		return GoalProgress{}, e.fail(ctx, err)
	}
	if credited {
		points += e.cfg.GoalMilestonePoints
	}

	if done {
		// A finished goal no longer counts toward the global level.
		e.tracker.SetActive(g.Scope(), false)
		credited, err := e.ledger.CreditOnce("goal:"+g.ID(), rewardsDomain.Credit{
			Amount:      e.cfg.GoalCompletionPoints,
			Reason:      rewardsDomain.ReasonGoalCompleted,
			Ref:         g.ID(),
			Celebration: "epic",
		}, e.today, now)
		if err != nil {
			return GoalProgress{}, e.fail(ctx, err)
		}
		if credited {
			points += e.cfg.GoalCompletionPoints
		}
	}

	cs := newChangeset()
	e.stageGoal(cs, g)
	e.stageScopes(cs)
	e.stageLedger(cs)
	if err := e.commit(ctx, cs); err != nil {
		return GoalProgress{}, err
	}
	e.recordCredit(points, string(rewardsDomain.ReasonGoalMilestone))
	return GoalProgress{
		Goal:         g.Snapshot(),
		GoalComplete: done,
		Points:       points,
		Balance:      e.ledger.Balance(),
	}, nil
}

// SetGoalStatus pauses, resumes or abandons a goal. Only active goals
// count toward the global escalation level.
func (e *Engine) SetGoalStatus(ctx context.Context, goalID string, status escalationDomain.GoalStatus) (escalationDomain.GoalState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	g, ok := e.goals[goalID]
	if !ok {
		return escalationDomain.GoalState{}, escalationDomain.ErrGoalNotFound
	}
	if err := g.SetStatus(status, e.clock.Now()); err != nil {
		return escalationDomain.GoalState{}, err
	}
	e.tracker.SetActive(g.Scope(), g.Status() == escalationDomain.GoalActive)

	cs := newChangeset()
	e.stageGoal(cs, g)
	e.stageScopes(cs)
	if err := e.commit(ctx, cs); err != nil {
		return escalationDomain.GoalState{}, err
	}
	return g.Snapshot(), nil
}

// Goal returns a goal's state.
func (e *Engine) Goal(goalID string) (escalationDomain.GoalState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	g, ok := e.goals[goalID]
	if !ok {
		return escalationDomain.GoalState{}, escalationDomain.ErrGoalNotFound
	}
	return g.Snapshot(), nil
}

// Goals returns every goal, oldest first.
func (e *Engine) Goals() []escalationDomain.GoalState {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]escalationDomain.GoalState, 0, len(e.goals))
	for _, g := range e.goals {
		out = append(out, g.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
