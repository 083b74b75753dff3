package domain

import (
	"sort"
	"strings"
	"time"

	sharedDomain "github.com/felixgeelhaar/gadfly/internal/shared/domain"
)

// ScheduleID identifies the single nag schedule of an engine.
const ScheduleID = "nag"

// Fire is one reminder emitted by Tick.
type Fire struct {
	TaskID    string
	Message   string
	Category  string
	FiredAt   time.Time
	FireCount int
	Retry     bool
}

// TickHooks lets the caller decide per entry whether to stay silent and what to say.
type TickHooks struct {
	// Suppress silences a due entry without firing; the entry still advances.
	Suppress func(e Entry) bool
	// Compose returns the message and phrase category for a fire.
	Compose func(e Entry) (message, category string)
}

// Schedule holds every nag entry plus the notification permission state.
type Schedule struct {
	sharedDomain.BaseAggregateRoot
	entries        map[string]*Entry
	permissionLost bool
}

// NewSchedule creates an empty schedule.
func NewSchedule(now time.Time) *Schedule {
	return &Schedule{
		BaseAggregateRoot: sharedDomain.NewBaseAggregateRoot(ScheduleID, now),
		entries:           make(map[string]*Entry),
	}
}

// RehydrateSchedule rebuilds a schedule from stored entries.
func RehydrateSchedule(entries []Entry, permissionLost bool, now time.Time) *Schedule {
	s := NewSchedule(now)
	for i := range entries {
		e := entries[i]
		s.entries[e.TaskID] = &e
	}
	s.permissionLost = permissionLost
	return s
}

// Schedule creates or replaces the entry for spec.TaskID.
// Repeating an identical call changes nothing and reports false. A new
// interval never pushes the next fire further out than it already was.
func (s *Schedule) Schedule(spec Spec, now time.Time) (Entry, bool, error) {
	spec.TaskID = strings.TrimSpace(spec.TaskID)
	if err := spec.validate(); err != nil {
		return Entry{}, false, err
	}
	spec.Priority = spec.Priority.OrDefault()
	if spec.TaskCreatedAt.IsZero() {
		spec.TaskCreatedAt = now
	}
	spec.TaskCreatedAt = spec.TaskCreatedAt.UTC()

	if e, ok := s.entries[spec.TaskID]; ok && e.Active {
		if e.matches(spec) {
			return *e, false, nil
		}
		candidate := now.Add(spec.Interval).UTC()
		if e.Interval != spec.Interval && candidate.Before(e.NextFireAt) {
			e.NextFireAt = candidate
		}
		e.Interval = spec.Interval
		e.Tier = spec.Tier
		e.Priority = spec.Priority
		e.TaskCreatedAt = spec.TaskCreatedAt
		e.Override = spec.Override
		e.OverrideTier = spec.OverrideTier
		s.Touch(now)
		return *e, true, nil
	}

	e := &Entry{
		TaskID:        spec.TaskID,
		Interval:      spec.Interval,
		NextFireAt:    now.Add(spec.Interval).UTC(),
		Active:        true,
		Tier:          spec.Tier,
		Priority:      spec.Priority,
		TaskCreatedAt: spec.TaskCreatedAt,
		Override:      spec.Override,
		OverrideTier:  spec.OverrideTier,
	}
	s.entries[e.TaskID] = e
	s.Touch(now)
	return *e, true, nil
}

// CancelAll removes the task's entry. A missing entry is a no-op.
func (s *Schedule) CancelAll(taskID string, now time.Time) bool {
	if _, ok := s.entries[taskID]; !ok {
		return false
	}
	delete(s.entries, taskID)
	s.AddDomainEvent(newNagCancelled(taskID, now))
	s.Touch(now)
	return true
}

// Get returns a copy of the task's entry.
func (s *Schedule) Get(taskID string) (Entry, bool) {
	e, ok := s.entries[taskID]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Has reports whether the task has an active entry.
func (s *Schedule) Has(taskID string) bool {
	e, ok := s.entries[taskID]
	return ok && e.Active
}

// Entries returns copies of every entry in fire order.
func (s *Schedule) Entries() []Entry {
	sorted := s.sorted()
	out := make([]Entry, len(sorted))
	for i, e := range sorted {
		out[i] = *e
	}
	return out
}

func (s *Schedule) sorted() []*Entry {
	out := make([]*Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return fireOrder(out[i], out[j]) })
	return out
}

// PermissionLost reports whether notifications are currently denied.
func (s *Schedule) PermissionLost() bool { return s.permissionLost }

// Tick fires every entry due at now, most urgent first, and returns the
// fires together with the ids of entries it touched. Due entries advance
// to now+interval whether they fired or were silenced; missed fires are
// never replayed.
func (s *Schedule) Tick(now time.Time, hooks TickHooks) (fires []Fire, touched []string) {
	now = now.UTC()
	for _, e := range s.sorted() {
		regular := e.due(now)
		if !regular && !e.RetryPending {
			continue
		}
		touched = append(touched, e.TaskID)

		retry := e.RetryPending && !regular
		e.RetryPending = false
		if regular {
			e.NextFireAt = now.Add(e.Interval)
			e.RetryUsed = false
		}

		if s.permissionLost || (hooks.Suppress != nil && hooks.Suppress(*e)) {
			continue
		}

		e.FireCount++
		fired := now
		e.LastFiredAt = &fired

		f := Fire{TaskID: e.TaskID, FiredAt: now, FireCount: e.FireCount, Retry: retry}
		if hooks.Compose != nil {
			f.Message, f.Category = hooks.Compose(*e)
		}
		fires = append(fires, f)
		s.AddDomainEvent(newNagFired(f))
	}
	if len(touched) > 0 {
		s.Touch(now)
	}
	return fires, touched
}

// ReportDelivery records the notification layer's result for the task's
// last fire. Reports for tasks without an entry are ignored. A transient
// failure is retried once on the next tick; a permanent one raises
// PermissionLost the first time and silences fires until restored.
func (s *Schedule) ReportDelivery(taskID string, outcome DeliveryOutcome, now time.Time) (bool, error) {
	switch outcome {
	case DeliveryDelivered, DeliveryTransient, DeliveryPermanent:
	default:
		return false, ErrInvalidOutcome
	}

	e, ok := s.entries[taskID]

	switch outcome {
	case DeliveryPermanent:
		if s.permissionLost {
			return false, nil
		}
		s.permissionLost = true
		s.AddDomainEvent(newPermissionLost(taskID, now))
		s.Touch(now)
		return true, nil
	case DeliveryDelivered:
		changed := s.RestorePermission(now)
		if ok && e.RetryUsed {
			e.RetryUsed = false
			changed = true
		}
		return changed, nil
	default:
		if !ok || e.RetryUsed {
			return false, nil
		}
		e.RetryPending = true
		e.RetryUsed = true
		s.Touch(now)
		return true, nil
	}
}

// RestorePermission clears a lost notification permission.
// Schedules kept advancing meanwhile, so nothing is backfilled.
func (s *Schedule) RestorePermission(now time.Time) bool {
	if !s.permissionLost {
		return false
	}
	s.permissionLost = false
	s.AddDomainEvent(newPermissionRestored(now))
	s.Touch(now)
	return true
}
