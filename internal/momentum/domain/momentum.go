// Package domain holds the same-day completion counter that feeds both
// celebration playback and the escalation discount.
package domain

import (
	"errors"
	"strings"
	"time"

	sharedDomain "github.com/felixgeelhaar/gadfly/internal/shared/domain"
)

// CelebrationLevel is how loudly a completion should be celebrated.
type CelebrationLevel int

const (
	CelebrationSubtle CelebrationLevel = iota
	CelebrationStandard
	CelebrationBig
	CelebrationEpic
)

var ErrInvalidCelebrationLevel = errors.New("invalid celebration level")

var celebrationNames = []string{"subtle", "standard", "big", "epic"}

func (l CelebrationLevel) String() string {
	if l < 0 || int(l) >= len(celebrationNames) {
		return "unknown"
	}
	return celebrationNames[l]
}

func (l CelebrationLevel) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

func (l *CelebrationLevel) UnmarshalText(text []byte) error {
	s := strings.ToLower(string(text))
	for i, name := range celebrationNames {
		if name == s {
			*l = CelebrationLevel(i)
			return nil
		}
	}
	return ErrInvalidCelebrationLevel
}

// DefaultLull is the gap after which a completion counts as breaking a lull.
const DefaultLull = 24 * time.Hour

// State is the stored form of the tracker.
type State struct {
	Day              sharedDomain.Day `json:"day"`
	Completions      int              `json:"completions"`
	Weighted         int              `json:"weighted"`
	LastCompletionAt *time.Time       `json:"last_completion_at,omitempty"`
}

// Tracker counts completions of the current local day.
type Tracker struct {
	lull  time.Duration
	state State
}

// NewTracker creates a tracker for today. A non-positive lull uses DefaultLull.
func NewTracker(today sharedDomain.Day, lull time.Duration) *Tracker {
	if lull <= 0 {
		lull = DefaultLull
	}
	return &Tracker{lull: lull, state: State{Day: today}}
}

// RehydrateTracker rebuilds a tracker from stored state.
func RehydrateTracker(st State, lull time.Duration) *Tracker {
	t := NewTracker(st.Day, lull)
	t.state = st
	return t
}

// State returns the stored form.
func (t *Tracker) State() State { return t.state }

// Day returns the day the counters belong to.
func (t *Tracker) Day() sharedDomain.Day { return t.state.Day }

// RecordCompletion counts a completion and returns the celebration level it earned.
// A completion stamped on a later day rolls the counters first.
func (t *Tracker) RecordCompletion(p sharedDomain.Priority, at time.Time, day sharedDomain.Day) CelebrationLevel {
	if t.state.Day.Before(day) {
		t.Rollover(day)
	}
	level := t.LevelFor(p, at)
	t.state.Completions++
	t.state.Weighted += int(p.OrDefault())
	at = at.UTC()
	t.state.LastCompletionAt = &at
	return level
}

// VelocityToday is the number of completions recorded today.
func (t *Tracker) VelocityToday() int { return t.state.Completions }

// WeightedToday sums completion priorities (low 1, medium 2, high 3).
func (t *Tracker) WeightedToday() int { return t.state.Weighted }

// LevelFor returns the celebration a completion of priority p would earn at
// now. Priority sets the base; ending a lull bumps it one step.
func (t *Tracker) LevelFor(p sharedDomain.Priority, now time.Time) CelebrationLevel {
	var level CelebrationLevel
	switch p.OrDefault() {
	case sharedDomain.PriorityHigh:
		level = CelebrationBig
	case sharedDomain.PriorityMedium:
		level = CelebrationStandard
	default:
		level = CelebrationSubtle
	}
	if t.state.LastCompletionAt == nil || now.Sub(*t.state.LastCompletionAt) >= t.lull {
		level++
	}
	if level > CelebrationEpic {
		level = CelebrationEpic
	}
	return level
}

// Rollover resets the counters for a new day. Rolling to the same or an
// earlier day is a no-op.
func (t *Tracker) Rollover(today sharedDomain.Day) bool {
	if !t.state.Day.Before(today) {
		return false
	}
	t.state.Day = today
	t.state.Completions = 0
	t.state.Weighted = 0
	return true
}
