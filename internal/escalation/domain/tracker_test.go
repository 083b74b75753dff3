package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/gadfly/internal/escalation/domain"
	sharedDomain "github.com/felixgeelhaar/gadfly/internal/shared/domain"
)

var (
	now   = time.Date(2026, 2, 2, 20, 0, 0, 0, time.UTC)
	today = sharedDomain.Day("2026-02-02")
)

func TestPolicy_Level(t *testing.T) {
	p := domain.DefaultPolicy()
	cases := []struct {
		idle, velocity, want int
	}{
		{0, 0, 0},
		{1, 0, 1},
		{2, 0, 1},
		{3, 0, 2},
		{6, 0, 2},
		{7, 0, 3},
		{13, 0, 3},
		{14, 0, 4},
		{400, 0, 4},
		{3, 3, 1},
		{3, 2, 2},
		{0, 5, 0},
		{1, 3, 0},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, p.Level(tc.idle, tc.velocity), "idle=%d velocity=%d", tc.idle, tc.velocity)
	}
	assert.Equal(t, 4, p.MaxLevel())
}

func TestParseScope(t *testing.T) {
	s, err := domain.ParseScope("global")
	require.NoError(t, err)
	assert.Equal(t, domain.GlobalScope, s)

	s, err = domain.ParseScope("goal:g1")
	require.NoError(t, err)
	assert.True(t, s.IsGoal())
	assert.Equal(t, "g1", s.GoalID())

	_, err = domain.ParseScope("goal:")
	assert.ErrorIs(t, err, domain.ErrInvalidScope)
	_, err = domain.ParseScope("team")
	assert.ErrorIs(t, err, domain.ErrInvalidScope)
	assert.Empty(t, domain.GlobalScope.GoalID())
}

func TestTracker_RolloverIsMonotone(t *testing.T) {
	tr := domain.NewTracker(domain.DefaultPolicy(), today, now)

	prev := 0
	for d := 1; d <= 20; d++ {
		tr.OnInactivityRollover(today.AddDays(d), 0, now)
		level := tr.CurrentLevel(domain.GlobalScope)
		assert.GreaterOrEqual(t, level, prev, "day %d", d)
		prev = level
	}
	assert.Equal(t, 4, prev)

	st, _ := tr.State(domain.GlobalScope)
	assert.Equal(t, 20, st.IdleDays)
}

func TestTracker_CompletionResetsImmediately(t *testing.T) {
	tr := domain.NewTracker(domain.DefaultPolicy(), today, now)
	tr.OnInactivityRollover(today.AddDays(8), 0, now)
	require.Equal(t, 3, tr.CurrentLevel(domain.GlobalScope))
	tr.ClearDomainEvents()

	changes := tr.OnCompletion(domain.GlobalScope, 1, today.AddDays(8), now)

	assert.Equal(t, 0, tr.CurrentLevel(domain.GlobalScope))
	require.Len(t, changes, 1)
	assert.Equal(t, domain.ScopeChange{Scope: domain.GlobalScope, From: 3, To: 0}, changes[0])

	events := tr.DomainEvents()
	require.Len(t, events, 1)
	evt := events[0].(*domain.LevelChanged)
	assert.Equal(t, domain.RoutingKeyLevelChanged, evt.RoutingKey())
	assert.Equal(t, 3, evt.From)
	assert.Equal(t, 0, evt.To)

	st, _ := tr.State(domain.GlobalScope)
	assert.Equal(t, 1, st.Today.TasksCompleted)
}

func TestTracker_MomentumDiscount(t *testing.T) {
	tr := domain.NewTracker(domain.DefaultPolicy(), today, now)
	goal := domain.GoalScope("g")
	tr.EnsureScope(goal, today)
	tr.OnInactivityRollover(today.AddDays(4), 0, now)
	require.Equal(t, 2, tr.CurrentLevel(goal))

	day := today.AddDays(4)
	tr.OnCompletion(domain.GlobalScope, 1, day, now)
	tr.OnCompletion(domain.GlobalScope, 2, day, now)
	assert.Equal(t, 2, tr.CurrentLevel(goal))

	tr.OnCompletion(domain.GlobalScope, 3, day, now)
	assert.Equal(t, 1, tr.CurrentLevel(goal), "third completion today discounts every scope")
}

func TestTracker_GlobalIsMaxOfActiveGoals(t *testing.T) {
	tr := domain.NewTracker(domain.DefaultPolicy(), today, now)
	neglected := domain.GoalScope("neglected")
	fresh := domain.GoalScope("fresh")
	tr.EnsureScope(neglected, today)
	tr.OnInactivityRollover(today.AddDays(7), 0, now)
	tr.EnsureScope(fresh, today.AddDays(7))

	// Work on tasks resets the global scope but not the neglected goal.
	tr.OnCompletion(domain.GlobalScope, 1, today.AddDays(7), now)

	assert.Equal(t, 3, tr.CurrentLevel(neglected))
	assert.Equal(t, 0, tr.CurrentLevel(fresh))
	assert.Equal(t, 3, tr.CurrentLevel(domain.GlobalScope))

	tr.SetActive(neglected, false)
	assert.Equal(t, 0, tr.CurrentLevel(domain.GlobalScope), "paused goals do not count")

	assert.Equal(t, 0, tr.CurrentLevel(domain.GoalScope("unknown")))
}

func TestTracker_GoalProgressResetsGlobal(t *testing.T) {
	tr := domain.NewTracker(domain.DefaultPolicy(), today, now)
	goal := domain.GoalScope("g")
	tr.EnsureScope(goal, today)
	tr.OnInactivityRollover(today.AddDays(3), 0, now)

	tr.OnCompletion(goal, 0, today.AddDays(3), now)

	assert.Equal(t, 0, tr.CurrentLevel(goal))
	assert.Equal(t, 0, tr.CurrentLevel(domain.GlobalScope))
	st, _ := tr.State(domain.GlobalScope)
	assert.Equal(t, 1, st.Today.GoalsProgressed)
}

func TestTracker_RolloverClearsTodayStats(t *testing.T) {
	tr := domain.NewTracker(domain.DefaultPolicy(), today, now)
	tr.OnCompletion(domain.GlobalScope, 1, today, now)
	tr.AddTimeInScope(domain.GlobalScope, 25*time.Minute, today)

	st, _ := tr.State(domain.GlobalScope)
	assert.Equal(t, 25*time.Minute, st.Today.TimeInScope)

	tr.OnInactivityRollover(today.AddDays(1), 0, now)
	st, _ = tr.State(domain.GlobalScope)
	assert.Equal(t, domain.TodayStats{}, st.Today)
	assert.Equal(t, 1, st.IdleDays)
}

func TestRehydrateTracker(t *testing.T) {
	tr := domain.NewTracker(domain.DefaultPolicy(), today, now)
	tr.EnsureScope(domain.GoalScope("g"), today)
	tr.OnInactivityRollover(today.AddDays(5), 0, now)

	restored := domain.RehydrateTracker(domain.DefaultPolicy(), tr.States(), today.AddDays(5), now)

	assert.Equal(t, tr.States(), restored.States())
	assert.Equal(t, 2, restored.CurrentLevel(domain.GlobalScope))
	assert.False(t, restored.RemoveScope(domain.GlobalScope))
	assert.True(t, restored.RemoveScope(domain.GoalScope("g")))
}
