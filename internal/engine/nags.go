package engine

import (
	"context"
	"fmt"
	"time"

	agingDomain "github.com/felixgeelhaar/gadfly/internal/aging/domain"
	escalationDomain "github.com/felixgeelhaar/gadfly/internal/escalation/domain"
	nagDomain "github.com/felixgeelhaar/gadfly/internal/nagging/domain"
	sharedDomain "github.com/felixgeelhaar/gadfly/internal/shared/domain"
	"github.com/felixgeelhaar/gadfly/pkg/observability"
)

// NagRequest schedules a nag explicitly.
type NagRequest struct {
	TaskID string
	// Interval overrides the priority and tier derived interval when positive.
	Interval time.Duration
	// Priority is used when the task is not mirrored yet.
	Priority sharedDomain.Priority
}

// ScheduleNag creates or replaces the nag of a task. Tasks the engine has
// not seen yet are mirrored as created now.
func (e *Engine) ScheduleNag(ctx context.Context, req NagRequest) (nagDomain.Entry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	if err := e.catchUp(ctx, now); err != nil {
		return nagDomain.Entry{}, err
	}
	cs := newChangeset()

	m, ok := e.monitor.Get(req.TaskID)
	if !ok {
		var err error
		m, err = agingDomain.NewTaskMirror(req.TaskID, "", req.Priority, now, nil, now)
		if err != nil {
			return nagDomain.Entry{}, err
		}
		e.monitor.Track(m)
		e.stageMirror(cs, m.ID)
	}

	spec := nagDomain.Spec{
		TaskID:        m.ID,
		Interval:      e.cfg.NagInterval(m.Priority, m.Tier),
		Tier:          m.Tier,
		Priority:      m.Priority,
		TaskCreatedAt: m.CreatedAt,
	}
	if req.Interval > 0 {
		spec.Interval = req.Interval
		spec.Override = req.Interval
		spec.OverrideTier = m.Tier
	}
	entry, changed, err := e.schedule.Schedule(spec, now)
	if err != nil {
		return nagDomain.Entry{}, e.fail(ctx, err)
	}
	if changed {
		e.stageEntry(cs, m.ID)
	}
	if err := e.commit(ctx, cs); err != nil {
		return nagDomain.Entry{}, err
	}
	e.metrics.Gauge(observability.MetricNagActive, float64(len(e.schedule.Entries())))
	return entry, nil
}

// CancelNag removes a task's nag. Cancelling a task without one is a no-op.
func (e *Engine) CancelNag(ctx context.Context, taskID string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	if !e.schedule.CancelAll(taskID, now) {
		return false, nil
	}
	cs := newChangeset()
	e.stageEntry(cs, taskID)
	if err := e.commit(ctx, cs); err != nil {
		return false, err
	}
	e.metrics.Counter(observability.MetricNagCancelled, 1)
	return true, nil
}

// IsNagActive reports whether a task still has an active nag. The delivery
// side asks this before interrupting the user, so a cancel that landed
// after the fire was queued still wins.
func (e *Engine) IsNagActive(taskID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	entry, ok := e.schedule.Get(taskID)
	return ok && entry.Active
}

// Nag returns a task's schedule entry.
func (e *Engine) Nag(taskID string) (nagDomain.Entry, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.schedule.Get(taskID)
}

// Nags returns every schedule entry, most urgent first.
func (e *Engine) Nags() []nagDomain.Entry {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.schedule.Entries()
}

// PermissionLost reports whether notifications are currently denied.
func (e *Engine) PermissionLost() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.schedule.PermissionLost()
}

// TickResult summarizes one tick.
type TickResult struct {
	Fires       []nagDomain.Fire
	Suppressed  int
	TierChanges []agingDomain.TierChange
	Dropped     []string
}

// nagCategory is the phrase category for nags at an escalation level.
func nagCategory(level int) string {
	if level <= 0 {
		return "nag"
	}
	return fmt.Sprintf("nag.%d", level)
}

// Tick rescans task tiers and fires every nag due at the engine clock's
// now. Missed fires are not replayed; a due entry fires once and moves on.
func (e *Engine) Tick(ctx context.Context) (TickResult, error) {
	category := nagCategory(e.CurrentLevel(escalationDomain.GlobalScope))
	pool := e.nagPool(ctx, category)

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	if err := e.catchUp(ctx, now); err != nil {
		return TickResult{}, err
	}
	// A rollover during catch-up may have moved the level. Refetching under
	// the lock only happens on the first tick of a day.
	if current := nagCategory(e.tracker.CurrentLevel(escalationDomain.GlobalScope)); current != category {
		category = current
		pool = e.nagPool(ctx, category)
	}
	cs := newChangeset()
	var res TickResult

	// Rescan tiers first so a task that just went critical nags at its
	// shorter interval.
	res.TierChanges, res.Dropped = e.monitor.Scan(now, nil)
	for _, c := range res.TierChanges {
		e.stageMirror(cs, c.TaskID)
		if !c.Increased() {
			continue
		}
		e.metrics.Counter(observability.MetricTierChanges, 1, observability.T("tier", c.To.String()))
		if m, ok := e.monitor.Get(c.TaskID); ok && e.schedule.Has(c.TaskID) {
			if err := e.scheduleFor(m, now, cs); err != nil {
				return TickResult{}, e.fail(ctx, err)
			}
		}
	}

	var orphaned []string
	fires, touched := e.schedule.Tick(now, nagDomain.TickHooks{
		Suppress: func(entry nagDomain.Entry) bool {
			m, ok := e.monitor.Get(entry.TaskID)
			if !ok {
				orphaned = append(orphaned, entry.TaskID)
				return true
			}
			if m.NagsSuppressed() {
				res.Suppressed++
				return true
			}
			return false
		},
		Compose: func(entry nagDomain.Entry) (string, string) {
			return e.composeNag(entry, pool, category, now), category
		},
	})
	res.Fires = fires

	for _, id := range touched {
		e.stageEntry(cs, id)
	}
	for _, f := range fires {
		if m, ok := e.monitor.Get(f.TaskID); ok {
			m.RecordNag(now)
			e.stageMirror(cs, f.TaskID)
		}
	}
	for _, id := range orphaned {
		e.logger.DebugContext(ctx, "dropping nag of untracked task", "task_id", id)
		e.schedule.CancelAll(id, now)
		e.stageEntry(cs, id)
	}
	e.stageSpoken(cs)

	if err := e.commit(ctx, cs); err != nil {
		return TickResult{}, err
	}

	if len(fires) > 0 {
		e.metrics.Counter(observability.MetricNagFired, int64(len(fires)))
	}
	if res.Suppressed > 0 {
		e.metrics.Counter(observability.MetricNagSuppressed, int64(res.Suppressed))
	}
	if e.schedule.PermissionLost() && len(touched) > 0 {
		e.logger.DebugContext(ctx, "notifications denied, nags advanced silently", "due", len(touched))
	}
	return res, nil
}

func (e *Engine) nagPool(ctx context.Context, category string) []string {
	pool, err := e.phrases.Phrases(ctx, e.cfg.Tone, category)
	if err != nil {
		e.logger.WarnContext(ctx, "no nag phrases, using plain reminders", "category", category, "error", err)
	}
	return pool
}

func (e *Engine) composeNag(entry nagDomain.Entry, pool []string, category string, now time.Time) string {
	title := entry.TaskID
	if m, ok := e.monitor.Get(entry.TaskID); ok && m.Title != "" {
		title = m.Title
	}
	phrase, err := e.selector.Pick(pool, category, now)
	if err != nil {
		return "Reminder: " + title
	}
	return title + ": " + phrase
}

// ReportDelivery records the notification layer's result for a task's last fire.
func (e *Engine) ReportDelivery(ctx context.Context, taskID string, outcome nagDomain.DeliveryOutcome) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	changed, err := e.schedule.ReportDelivery(taskID, outcome, now)
	if err != nil || !changed {
		return err
	}
	cs := newChangeset()
	e.stageEntry(cs, taskID)
	e.stagePermission(cs)
	return e.commit(ctx, cs)
}

// RestorePermission clears a lost notification permission. Nothing missed
// meanwhile is backfilled.
func (e *Engine) RestorePermission(ctx context.Context) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.schedule.RestorePermission(e.clock.Now()) {
		return false, nil
	}
	cs := newChangeset()
	e.stagePermission(cs)
	return true, e.commit(ctx, cs)
}
