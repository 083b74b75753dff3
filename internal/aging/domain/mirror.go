package domain

import (
	"errors"
	"strings"
	"time"

	sharedDomain "github.com/felixgeelhaar/gadfly/internal/shared/domain"
)

var (
	ErrEmptyTaskID    = errors.New("task id cannot be empty")
	ErrTaskNotTracked = errors.New("task is not tracked")
)

// TaskMirror is the engine's lightweight copy of an open task from the
// external task store, plus the fields the engine computes itself.
type TaskMirror struct {
	ID        string                `json:"id"`
	Title     string                `json:"title,omitempty"`
	Priority  sharedDomain.Priority `json:"priority"`
	CreatedAt time.Time             `json:"created_at"`
	DueAt     *time.Time            `json:"due_at,omitempty"`
	Tier      Tier                  `json:"tier"`
	LastNagAt *time.Time            `json:"last_nag_at,omitempty"`
	NagCount  int                   `json:"nag_count"`
	Blocker   *Blocker              `json:"blocker,omitempty"`
}

// NewTaskMirror creates a mirror classified at now.
func NewTaskMirror(id, title string, priority sharedDomain.Priority, createdAt time.Time, dueAt *time.Time, now time.Time) (*TaskMirror, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrEmptyTaskID
	}
	if createdAt.IsZero() {
		createdAt = now
	}
	m := &TaskMirror{
		ID:        id,
		Title:     strings.TrimSpace(title),
		Priority:  priority.OrDefault(),
		CreatedAt: createdAt.UTC(),
		DueAt:     utcPtr(dueAt),
	}
	m.Tier = m.Classify(now).Tier
	return m, nil
}

// Classify classifies the mirrored task at now.
func (m *TaskMirror) Classify(now time.Time) Classification {
	return Classify(m.CreatedAt, m.DueAt, now)
}

// RecordNag notes that a reminder fired for the task.
func (m *TaskMirror) RecordNag(at time.Time) {
	at = at.UTC()
	m.LastNagAt = &at
	m.NagCount++
}

// NagsSuppressed reports whether the attached blocker silences reminders.
func (m *TaskMirror) NagsSuppressed() bool {
	return m.Blocker != nil && m.Blocker.Reason.SuppressesNags()
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
