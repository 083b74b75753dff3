package engine

import (
	"context"
	"time"

	escalationDomain "github.com/felixgeelhaar/gadfly/internal/escalation/domain"
	sharedDomain "github.com/felixgeelhaar/gadfly/internal/shared/domain"
	"github.com/felixgeelhaar/gadfly/pkg/observability"
)

// RolloverResult reports what a rollover did.
type RolloverResult struct {
	Day     sharedDomain.Day
	Rolled  bool
	Changes []escalationDomain.ScopeChange
}

// Rollover runs the local-midnight job: momentum counters reset, idle days
// are recomputed for every scope, today's stats clear, the daily
// challenges regenerate and old completion keys are pruned. Running it
// again on the same day does nothing.
func (e *Engine) Rollover(ctx context.Context) (RolloverResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	today := e.dayOf(now)
	if !e.today.Before(today) {
		return RolloverResult{Day: e.today}, nil
	}

	cs := newChangeset()
	changes := e.rollover(ctx, today, now, cs)
	if err := e.commit(ctx, cs); err != nil {
		return RolloverResult{}, err
	}
	return RolloverResult{Day: today, Rolled: true, Changes: changes}, nil
}

func (e *Engine) rollover(ctx context.Context, today sharedDomain.Day, now time.Time, cs *changeset) []escalationDomain.ScopeChange {
	e.momentum.Rollover(today)
	changes := e.tracker.OnInactivityRollover(today, e.momentum.VelocityToday(), now)
	e.today = today

	e.ledger.RefreshDailyChallenges(today, e.cfg.Challenges, now)
	cutoff := today.AddDays(-e.cfg.CreditRetentionDays)
	e.ledger.Prune(cutoff)
	e.pruneChallengeSets(ctx, cutoff, cs)

	e.stageMomentum(cs)
	e.stageScopes(cs)
	e.stageLedger(cs)

	level := e.tracker.CurrentLevel(escalationDomain.GlobalScope)
	e.metrics.Gauge(observability.MetricEscalationLevel, float64(level))
	e.logger.InfoContext(ctx, "daily rollover", "day", today, "level", level, "changes", len(changes))
	return changes
}
