package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/gadfly/internal/escalation/domain"
)

func newGoal(t *testing.T, milestones ...string) *domain.Goal {
	t.Helper()
	specs := make([]domain.MilestoneSpec, len(milestones))
	for i, m := range milestones {
		specs[i] = domain.MilestoneSpec{Title: m, Estimate: time.Hour}
	}
	g, err := domain.NewGoal("Ship the book", specs, now)
	require.NoError(t, err)
	return g
}

func TestNewGoal(t *testing.T) {
	t.Run("creates active goal", func(t *testing.T) {
		g := newGoal(t, "outline", "draft")

		assert.NotEmpty(t, g.ID())
		assert.Equal(t, domain.GoalActive, g.Status())
		assert.Equal(t, 2, g.Remaining())
		assert.Equal(t, domain.GoalScope(g.ID()), g.Scope())
		require.Len(t, g.DomainEvents(), 1)
		assert.Equal(t, domain.RoutingKeyGoalCreated, g.DomainEvents()[0].RoutingKey())
	})

	t.Run("validates input", func(t *testing.T) {
		_, err := domain.NewGoal(" ", []domain.MilestoneSpec{{Title: "a"}}, now)
		assert.ErrorIs(t, err, domain.ErrGoalEmptyTitle)
		_, err = domain.NewGoal("x", nil, now)
		assert.ErrorIs(t, err, domain.ErrGoalNoMilestones)
		_, err = domain.NewGoal("x", []domain.MilestoneSpec{{Title: ""}}, now)
		assert.ErrorIs(t, err, domain.ErrMilestoneEmptyTitle)
	})
}

func TestGoal_CompleteMilestone(t *testing.T) {
	g := newGoal(t, "outline", "draft")
	g.ClearDomainEvents()

	done, err := g.CompleteMilestone(now)
	require.NoError(t, err)
	assert.False(t, done)
	assert.Equal(t, 1, g.Cursor())
	assert.NotNil(t, g.LastProgressAt())

	done, err = g.CompleteMilestone(now.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, domain.GoalCompleted, g.Status())

	keys := []string{}
	for _, e := range g.DomainEvents() {
		keys = append(keys, e.RoutingKey())
	}
	assert.Equal(t, []string{
		domain.RoutingKeyMilestoneCompleted,
		domain.RoutingKeyMilestoneCompleted,
		domain.RoutingKeyGoalCompleted,
	}, keys)

	_, err = g.CompleteMilestone(now)
	assert.ErrorIs(t, err, domain.ErrGoalNotActive)
}

func TestGoal_SetStatus(t *testing.T) {
	t.Run("pause and resume", func(t *testing.T) {
		g := newGoal(t, "a")
		require.NoError(t, g.SetStatus(domain.GoalPaused, now))

		_, err := g.CompleteMilestone(now)
		assert.ErrorIs(t, err, domain.ErrGoalNotActive)

		require.NoError(t, g.SetStatus(domain.GoalActive, now))
		require.NoError(t, g.SetStatus(domain.GoalActive, now), "same status is a no-op")
	})

	t.Run("terminal states are final", func(t *testing.T) {
		g := newGoal(t, "a")
		require.NoError(t, g.SetStatus(domain.GoalAbandoned, now))
		assert.ErrorIs(t, g.SetStatus(domain.GoalActive, now), domain.ErrInvalidGoalTransition)
	})

	t.Run("completion only through milestones", func(t *testing.T) {
		g := newGoal(t, "a")
		assert.ErrorIs(t, g.SetStatus(domain.GoalCompleted, now), domain.ErrInvalidGoalTransition)
		assert.ErrorIs(t, g.SetStatus("sleeping", now), domain.ErrInvalidGoalStatus)
	})
}

func TestGoal_SnapshotRoundTrip(t *testing.T) {
	g := newGoal(t, "a", "b")
	_, err := g.CompleteMilestone(now)
	require.NoError(t, err)

	restored := domain.RehydrateGoal(g.Snapshot())

	assert.Equal(t, g.Snapshot(), restored.Snapshot())
	assert.Empty(t, restored.DomainEvents())
}

func TestParseGoalStatus(t *testing.T) {
	s, err := domain.ParseGoalStatus(" Paused ")
	require.NoError(t, err)
	assert.Equal(t, domain.GoalPaused, s)
	_, err = domain.ParseGoalStatus("nope")
	assert.ErrorIs(t, err, domain.ErrInvalidGoalStatus)
}
