package domain

import (
	"sort"
	"time"

	sharedDomain "github.com/felixgeelhaar/gadfly/internal/shared/domain"
)

// MonitorID identifies the single aging monitor of an engine.
const MonitorID = "aging"

// TierChange describes one mirror whose tier moved during a scan.
type TierChange struct {
	TaskID string
	From   Tier
	To     Tier
}

// Increased reports whether the task became more urgent.
func (c TierChange) Increased() bool { return c.To > c.From }

// Monitor tracks the mirrors of every open task and rescans their tiers.
type Monitor struct {
	sharedDomain.BaseAggregateRoot
	tasks map[string]*TaskMirror
}

// NewMonitor creates an empty monitor.
func NewMonitor(now time.Time) *Monitor {
	return &Monitor{
		BaseAggregateRoot: sharedDomain.NewBaseAggregateRoot(MonitorID, now),
		tasks:             make(map[string]*TaskMirror),
	}
}

// Track adds or replaces a mirror. The previous blocker and nag
// bookkeeping survive a replacement.
func (m *Monitor) Track(mirror *TaskMirror) {
	if prev, ok := m.tasks[mirror.ID]; ok {
		if mirror.Blocker == nil {
			mirror.Blocker = prev.Blocker
		}
		if mirror.LastNagAt == nil {
			mirror.LastNagAt = prev.LastNagAt
			mirror.NagCount = prev.NagCount
		}
	}
	m.tasks[mirror.ID] = mirror
}

// Untrack removes a mirror; unknown ids are ignored.
func (m *Monitor) Untrack(taskID string) bool {
	if _, ok := m.tasks[taskID]; !ok {
		return false
	}
	delete(m.tasks, taskID)
	return true
}

// Get returns the mirror for taskID.
func (m *Monitor) Get(taskID string) (*TaskMirror, bool) {
	t, ok := m.tasks[taskID]
	return t, ok
}

// Tasks returns all mirrors ordered by id.
func (m *Monitor) Tasks() []*TaskMirror {
	out := make([]*TaskMirror, 0, len(m.tasks))
	for _, t := range m.tasks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of tracked tasks.
func (m *Monitor) Len() int { return len(m.tasks) }

// Reclassify recomputes one mirror, e.g. after its due time moved.
// Only an increase emits TierChanged.
func (m *Monitor) Reclassify(taskID string, now time.Time) (TierChange, error) {
	t, ok := m.tasks[taskID]
	if !ok {
		return TierChange{}, ErrTaskNotTracked
	}
	return m.reclassify(t, now), nil
}

func (m *Monitor) reclassify(t *TaskMirror, now time.Time) TierChange {
	c := t.Classify(now)
	change := TierChange{TaskID: t.ID, From: t.Tier, To: c.Tier}
	if c.Tier == t.Tier {
		return change
	}
	t.Tier = c.Tier
	if change.Increased() {
		m.AddDomainEvent(newTierChanged(t, change.From, c.HoursOld, now))
	}
	m.Touch(now)
	return change
}

// Scan recomputes every mirror and returns the tiers that moved.
// present, when non-nil, reports whether the external store still has the
// task; mirrors it denies are dropped silently.
func (m *Monitor) Scan(now time.Time, present func(taskID string) bool) (changes []TierChange, dropped []string) {
	for _, t := range m.Tasks() {
		if present != nil && !present(t.ID) {
			delete(m.tasks, t.ID)
			dropped = append(dropped, t.ID)
			continue
		}
		if change := m.reclassify(t, now); change.From != change.To {
			changes = append(changes, change)
		}
	}
	return changes, dropped
}

// SetBlocker attaches a blocker reason to a tracked task.
func (m *Monitor) SetBlocker(taskID string, reason BlockerReason, note string, now time.Time) error {
	if !reason.IsValid() {
		return ErrInvalidBlockerReason
	}
	t, ok := m.tasks[taskID]
	if !ok {
		return ErrTaskNotTracked
	}
	t.Blocker = &Blocker{Reason: reason, Note: note, SetAt: now.UTC()}
	m.Touch(now)
	return nil
}

// ClearBlocker removes any blocker; clearing twice is harmless.
func (m *Monitor) ClearBlocker(taskID string, now time.Time) error {
	t, ok := m.tasks[taskID]
	if !ok {
		return ErrTaskNotTracked
	}
	t.Blocker = nil
	m.Touch(now)
	return nil
}
