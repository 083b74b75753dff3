package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	agingDomain "github.com/felixgeelhaar/gadfly/internal/aging/domain"
	escalationDomain "github.com/felixgeelhaar/gadfly/internal/escalation/domain"
	momentumDomain "github.com/felixgeelhaar/gadfly/internal/momentum/domain"
	nagDomain "github.com/felixgeelhaar/gadfly/internal/nagging/domain"
	rewardsDomain "github.com/felixgeelhaar/gadfly/internal/rewards/domain"
	sharedDomain "github.com/felixgeelhaar/gadfly/internal/shared/domain"
	"github.com/felixgeelhaar/gadfly/pkg/observability"
)

// ErrInvalidPush is returned for a due-date push without a usable mode.
var ErrInvalidPush = errors.New("invalid due date push")

// TaskSignal is a created or updated task as reported by the task store.
type TaskSignal struct {
	ID        string
	Title     string
	Priority  sharedDomain.Priority
	CreatedAt time.Time
	DueAt     *time.Time
	// Nag overrides Config.AutoNag for this task when set.
	Nag *bool
}

// CompletionSignal reports a completed task.
type CompletionSignal struct {
	ID       string
	Priority sharedDomain.Priority
	// CompletedAt defaults to the engine clock.
	CompletedAt time.Time
}

// CompletionResult is what a completion earned.
type CompletionResult struct {
	TaskID      string
	Duplicate   bool
	Points      int64
	StreakBonus int64
	Celebration momentumDomain.CelebrationLevel
	Streak      rewardsDomain.Streak
	Challenges  []rewardsDomain.Challenge
	Balance     int64
}

func (e *Engine) wantsNag(sig TaskSignal) bool {
	if sig.Nag != nil {
		return *sig.Nag
	}
	return e.cfg.AutoNag
}

// scheduleFor (re)schedules the nag of a mirrored task at the interval its
// priority and tier call for. An explicitly requested interval is kept and
// rescaled to the task's current tier.
func (e *Engine) scheduleFor(m *agingDomain.TaskMirror, now time.Time, cs *changeset) error {
	spec := nagDomain.Spec{
		TaskID:        m.ID,
		Interval:      e.cfg.NagInterval(m.Priority, m.Tier),
		Tier:          m.Tier,
		Priority:      m.Priority,
		TaskCreatedAt: m.CreatedAt,
	}
	if cur, ok := e.schedule.Get(m.ID); ok && cur.Override > 0 {
		spec.Interval = e.cfg.OverrideInterval(cur.Override, cur.OverrideTier, m.Tier)
		spec.Override = cur.Override
		spec.OverrideTier = cur.OverrideTier
	}
	if _, changed, err := e.schedule.Schedule(spec, now); err != nil {
		return err
	} else if changed {
		e.stageEntry(cs, m.ID)
		e.metrics.Gauge(observability.MetricNagActive, float64(len(e.schedule.Entries())))
	}
	return nil
}

// TaskCreated starts mirroring a task and, when nagging applies, schedules it.
// A repeated signal refreshes the mirror and leaves one schedule entry.
func (e *Engine) TaskCreated(ctx context.Context, sig TaskSignal) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	if err := e.catchUp(ctx, now); err != nil {
		return err
	}
	cs := newChangeset()

	m, err := agingDomain.NewTaskMirror(sig.ID, sig.Title, sig.Priority, sig.CreatedAt, sig.DueAt, now)
	if err != nil {
		return err
	}
	e.monitor.Track(m)
	e.stageMirror(cs, m.ID)

	if e.wantsNag(sig) {
		if err := e.scheduleFor(m, now, cs); err != nil {
			return e.fail(ctx, err)
		}
	}
	return e.commit(ctx, cs)
}

// TaskDueChanged updates a mirror's due time, reclassifies it and adjusts
// its nag interval. Unknown tasks are ignored.
func (e *Engine) TaskDueChanged(ctx context.Context, taskID string, dueAt *time.Time) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	if err := e.catchUp(ctx, now); err != nil {
		return err
	}
	cs := newChangeset()

	m, ok := e.monitor.Get(taskID)
	if !ok {
		e.logger.DebugContext(ctx, "due change for untracked task", "task_id", taskID)
		return e.commit(ctx, cs)
	}
	if dueAt != nil {
		d := dueAt.UTC()
		m.DueAt = &d
	} else {
		m.DueAt = nil
	}
	if _, err := e.monitor.Reclassify(taskID, now); err != nil {
		return err
	}
	e.stageMirror(cs, taskID)

	if e.schedule.Has(taskID) || (dueAt != nil && e.cfg.AutoNag) {
		if err := e.scheduleFor(m, now, cs); err != nil {
			return e.fail(ctx, err)
		}
	}
	return e.commit(ctx, cs)
}

// forget cancels a task's nag and drops its mirror and blocker.
func (e *Engine) forget(taskID string, now time.Time, cs *changeset) {
	if e.schedule.CancelAll(taskID, now) {
		e.metrics.Counter(observability.MetricNagCancelled, 1)
	}
	e.stageEntry(cs, taskID)
	e.monitor.Untrack(taskID)
	e.stageMirror(cs, taskID)
}

// TaskCompleted cancels the task's nag, then credits points, streak and
// challenges. Completions are credited at most once per task id.
func (e *Engine) TaskCompleted(ctx context.Context, sig CompletionSignal) (CompletionResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	res := CompletionResult{TaskID: sig.ID}
	if err := e.catchUp(ctx, now); err != nil {
		return res, err
	}
	cs := newChangeset()
	if sig.ID == "" {
		return res, agingDomain.ErrEmptyTaskID
	}

	priority := sig.Priority
	if m, ok := e.monitor.Get(sig.ID); ok && priority == 0 {
		priority = m.Priority
	}
	priority = priority.OrDefault()

	e.forget(sig.ID, now, cs)

	creditKey := "task:" + sig.ID
	if e.ledger.WasCredited(creditKey) {
		res.Duplicate = true
		res.Balance = e.ledger.Balance()
		e.logger.DebugContext(ctx, "duplicate completion ignored", "task_id", sig.ID)
		return res, e.commit(ctx, cs)
	}

	at := sig.CompletedAt
	if at.IsZero() || at.After(now) {
		at = now
	}
	day := e.dayOf(at)

	res.Celebration = e.momentum.RecordCompletion(priority, at, day)
	e.tracker.OnCompletion(escalationDomain.GlobalScope, e.momentum.VelocityToday(), e.today, now)

	points := e.cfg.Points.Points(priority)
	credited, err := e.ledger.CreditOnce(creditKey, rewardsDomain.Credit{
		Amount:      points,
		Reason:      rewardsDomain.ReasonTaskCompleted,
		Ref:         sig.ID,
		Celebration: res.Celebration.String(),
	}, day, now)
	if err != nil {
		return res, e.fail(ctx, err)
	}
	if credited {
		res.Points = points
	}

	update := e.ledger.RecordCompletionForStreak(day)
	res.Streak = update.Streak
	bonus, err := e.streakBonus(update, day, now)
	if err != nil {
		return res, e.fail(ctx, err)
	}
	res.StreakBonus = bonus

	completed, err := e.ledger.RecordChallengeProgress(sig.ID, priority, day, now)
	if err != nil {
		return res, e.fail(ctx, err)
	}
	res.Challenges = completed
	res.Balance = e.ledger.Balance()

	e.stageMomentum(cs)
	e.stageScopes(cs)
	e.stageLedger(cs)

	if err := e.commit(ctx, cs); err != nil {
		return CompletionResult{TaskID: sig.ID}, err
	}
	e.recordCredit(res.Points+res.StreakBonus, string(rewardsDomain.ReasonTaskCompleted))
	if len(completed) > 0 {
		e.metrics.Counter(observability.MetricChallengesCompleted, int64(len(completed)))
	}
	e.metrics.Gauge(observability.MetricEscalationLevel, float64(e.tracker.CurrentLevel(escalationDomain.GlobalScope)))
	return res, nil
}

// streakBonus credits the bonus when the streak just reached a multiple
// of StreakBonusEvery days.
func (e *Engine) streakBonus(update rewardsDomain.StreakUpdate, day sharedDomain.Day, now time.Time) (int64, error) {
	every := e.cfg.StreakBonusEvery
	if !update.Extended || every <= 0 || e.cfg.StreakBonusPoints <= 0 || update.Current%every != 0 {
		return 0, nil
	}
	ok, err := e.ledger.CreditOnce("streak:"+day.String(), rewardsDomain.Credit{
		Amount: e.cfg.StreakBonusPoints,
		Reason: rewardsDomain.ReasonStreakBonus,
		Ref:    fmt.Sprintf("%d days", update.Current),
	}, day, now)
	if err != nil || !ok {
		return 0, err
	}
	return e.cfg.StreakBonusPoints, nil
}

// fail rolls memory back to the stored state after a rejected change
// that already touched several aggregates.
func (e *Engine) fail(ctx context.Context, err error) error {
	if rerr := e.restoreLocked(ctx); rerr != nil {
		e.logger.ErrorContext(ctx, "reload after rejected change", "error", rerr)
	}
	return err
}

func (e *Engine) recordCredit(amount int64, reason string) {
	if amount <= 0 {
		return
	}
	e.metrics.Counter(observability.MetricLedgerCredited, amount, observability.T("reason", reason))
	e.metrics.Gauge(observability.MetricLedgerBalance, float64(e.ledger.Balance()))
}

// TaskDeleted cancels the task's nag and forgets it. Unknown ids are a no-op.
func (e *Engine) TaskDeleted(ctx context.Context, taskID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	if err := e.catchUp(ctx, now); err != nil {
		return err
	}
	cs := newChangeset()
	e.forget(taskID, now, cs)
	return e.commit(ctx, cs)
}

// SetBlocker attaches a blocker reason to a tracked task.
func (e *Engine) SetBlocker(ctx context.Context, taskID string, reason agingDomain.BlockerReason, note string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	if err := e.monitor.SetBlocker(taskID, reason, note, now); err != nil {
		return err
	}
	cs := newChangeset()
	e.stageMirror(cs, taskID)
	return e.commit(ctx, cs)
}

// ClearBlocker removes a task's blocker.
func (e *Engine) ClearBlocker(ctx context.Context, taskID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.monitor.ClearBlocker(taskID, e.clock.Now()); err != nil {
		return err
	}
	cs := newChangeset()
	e.stageMirror(cs, taskID)
	return e.commit(ctx, cs)
}

// PushMode says how far a due date should move.
type PushMode string

const (
	PushTomorrow PushMode = "tomorrow"
	PushHours    PushMode = "hours"
)

// PushRequest is a "push to tomorrow" or "push by N hours" command.
type PushRequest struct {
	Mode  PushMode
	Hours int
}

// defaultDueHour is used when pushing a task that had no due time.
const defaultDueHour = 9

// PushDue asks the task store to move a due date. The mirror is not
// changed here; it follows the store's due-changed signal.
func (e *Engine) PushDue(ctx context.Context, taskID string, req PushRequest) (time.Time, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	m, ok := e.monitor.Get(taskID)
	if !ok {
		return time.Time{}, agingDomain.ErrTaskNotTracked
	}

	now := e.clock.Now()
	loc := e.cfg.Location
	var target time.Time
	switch req.Mode {
	case PushTomorrow:
		hour, minute := defaultDueHour, 0
		if m.DueAt != nil {
			local := m.DueAt.In(loc)
			hour, minute = local.Hour(), local.Minute()
		}
		start := e.dayOf(now).AddDays(1).Start(loc)
		target = time.Date(start.Year(), start.Month(), start.Day(), hour, minute, 0, 0, loc)
	case PushHours:
		if req.Hours <= 0 {
			return time.Time{}, ErrInvalidPush
		}
		base := now
		if m.DueAt != nil && m.DueAt.After(now) {
			base = *m.DueAt
		}
		target = base.Add(time.Duration(req.Hours) * time.Hour)
	default:
		return time.Time{}, ErrInvalidPush
	}

	cs := newChangeset()
	cs.emit(newDuePushRequested(taskID, req, target, now))
	if err := e.commit(ctx, cs); err != nil {
		return time.Time{}, err
	}
	return target.UTC(), nil
}
