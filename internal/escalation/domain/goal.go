package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	sharedDomain "github.com/felixgeelhaar/gadfly/internal/shared/domain"
)

var (
	ErrGoalEmptyTitle        = errors.New("goal title cannot be empty")
	ErrGoalNoMilestones      = errors.New("goal needs at least one milestone")
	ErrGoalNotActive         = errors.New("goal is not active")
	ErrGoalNotFound          = errors.New("goal not found")
	ErrInvalidGoalStatus     = errors.New("invalid goal status")
	ErrInvalidGoalTransition = errors.New("invalid goal status transition")
	ErrMilestoneEmptyTitle   = errors.New("milestone title cannot be empty")
)

// GoalStatus is the lifecycle state of a goal.
type GoalStatus string

const (
	GoalActive    GoalStatus = "active"
	GoalPaused    GoalStatus = "paused"
	GoalCompleted GoalStatus = "completed"
	GoalAbandoned GoalStatus = "abandoned"
)

// ParseGoalStatus parses a status name.
func ParseGoalStatus(s string) (GoalStatus, error) {
	switch st := GoalStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case GoalActive, GoalPaused, GoalCompleted, GoalAbandoned:
		return st, nil
	default:
		return "", ErrInvalidGoalStatus
	}
}

// IsTerminal reports whether no further transitions are allowed.
func (s GoalStatus) IsTerminal() bool {
	return s == GoalCompleted || s == GoalAbandoned
}

// Milestone is one ordered step of a goal.
type Milestone struct {
	Title     string        `json:"title"`
	Completed bool          `json:"completed"`
	Estimate  time.Duration `json:"estimate,omitempty"`
}

// MilestoneSpec describes a milestone at goal creation.
type MilestoneSpec struct {
	Title    string
	Estimate time.Duration
}

// Goal is an explicit user commitment made of ordered milestones.
type Goal struct {
	sharedDomain.BaseAggregateRoot
	title          string
	milestones     []Milestone
	cursor         int
	status         GoalStatus
	lastProgressAt *time.Time
}

// NewGoal creates an active goal.
func NewGoal(title string, milestones []MilestoneSpec, now time.Time) (*Goal, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrGoalEmptyTitle
	}
	if len(milestones) == 0 {
		return nil, ErrGoalNoMilestones
	}
	ms := make([]Milestone, 0, len(milestones))
	for _, spec := range milestones {
		t := strings.TrimSpace(spec.Title)
		if t == "" {
			return nil, ErrMilestoneEmptyTitle
		}
		ms = append(ms, Milestone{Title: t, Estimate: spec.Estimate})
	}

	g := &Goal{
		BaseAggregateRoot: sharedDomain.NewBaseAggregateRoot(uuid.NewString(), now),
		title:             title,
		milestones:        ms,
		status:            GoalActive,
	}
	g.AddDomainEvent(&GoalCreated{
		BaseEvent:  sharedDomain.NewBaseEvent(g.ID(), goalAggregateType, RoutingKeyGoalCreated, now),
		GoalID:     g.ID(),
		Title:      g.title,
		Milestones: len(ms),
	})
	return g, nil
}

// GoalState is the stored form of a goal.
type GoalState struct {
	ID             string      `json:"id"`
	Title          string      `json:"title"`
	Milestones     []Milestone `json:"milestones"`
	Cursor         int         `json:"cursor"`
	Status         GoalStatus  `json:"status"`
	LastProgressAt *time.Time  `json:"last_progress_at,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
	Version        int         `json:"version"`
}

// RehydrateGoal rebuilds a goal from stored state.
func RehydrateGoal(st GoalState) *Goal {
	return &Goal{
		BaseAggregateRoot: sharedDomain.RehydrateBaseAggregateRoot(st.ID, st.CreatedAt, st.UpdatedAt, st.Version),
		title:             st.Title,
		milestones:        append([]Milestone(nil), st.Milestones...),
		cursor:            st.Cursor,
		status:            st.Status,
		lastProgressAt:    st.LastProgressAt,
	}
}

// Snapshot returns the stored form of the goal.
func (g *Goal) Snapshot() GoalState {
	return GoalState{
		ID:             g.ID(),
		Title:          g.title,
		Milestones:     g.Milestones(),
		Cursor:         g.cursor,
		Status:         g.status,
		LastProgressAt: g.lastProgressAt,
		CreatedAt:      g.CreatedAt(),
		UpdatedAt:      g.UpdatedAt(),
		Version:        g.Version(),
	}
}

func (g *Goal) Title() string              { return g.title }
func (g *Goal) Status() GoalStatus         { return g.status }
func (g *Goal) Cursor() int                { return g.cursor }
func (g *Goal) LastProgressAt() *time.Time { return g.lastProgressAt }
func (g *Goal) Scope() Scope               { return GoalScope(g.ID()) }
func (g *Goal) Milestones() []Milestone    { return append([]Milestone(nil), g.milestones...) }

// Remaining returns how many milestones are still open.
func (g *Goal) Remaining() int { return len(g.milestones) - g.cursor }

// CompleteMilestone completes the milestone under the cursor and advances
// it. It reports whether that finished the goal.
func (g *Goal) CompleteMilestone(now time.Time) (bool, error) {
	if g.status != GoalActive {
		return false, ErrGoalNotActive
	}

	m := &g.milestones[g.cursor]
	m.Completed = true
	idx := g.cursor
	g.cursor++
	at := now.UTC()
	g.lastProgressAt = &at
	g.Touch(now)

	g.AddDomainEvent(&MilestoneCompleted{
		BaseEvent: sharedDomain.NewBaseEvent(g.ID(), goalAggregateType, RoutingKeyMilestoneCompleted, now),
		GoalID:    g.ID(),
		Index:     idx,
		Title:     m.Title,
		Remaining: g.Remaining(),
	})

	if g.cursor < len(g.milestones) {
		return false, nil
	}
	g.status = GoalCompleted
	g.AddDomainEvent(&GoalCompletedEvent{
		BaseEvent: sharedDomain.NewBaseEvent(g.ID(), goalAggregateType, RoutingKeyGoalCompleted, now),
		GoalID:    g.ID(),
		Title:     g.title,
	})
	return true, nil
}

// SetStatus pauses, resumes or abandons the goal. Completion only happens
// through milestones; completed and abandoned goals are final.
func (g *Goal) SetStatus(status GoalStatus, now time.Time) error {
	if status == g.status {
		return nil
	}
	if g.status.IsTerminal() || status == GoalCompleted {
		return ErrInvalidGoalTransition
	}
	switch status {
	case GoalActive, GoalPaused, GoalAbandoned:
	default:
		return ErrInvalidGoalStatus
	}

	from := g.status
	g.status = status
	g.Touch(now)
	g.AddDomainEvent(&GoalStatusChanged{
		BaseEvent: sharedDomain.NewBaseEvent(g.ID(), goalAggregateType, RoutingKeyGoalStatusChanged, now),
		GoalID:    g.ID(),
		From:      from,
		To:        status,
	})
	return nil
}
