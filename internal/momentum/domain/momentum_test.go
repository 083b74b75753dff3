package domain_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/gadfly/internal/momentum/domain"
	sharedDomain "github.com/felixgeelhaar/gadfly/internal/shared/domain"
)

var (
	now   = time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)
	today = sharedDomain.Day("2026-07-01")
)

func TestTracker_Velocity(t *testing.T) {
	tr := domain.NewTracker(today, 0)

	tr.RecordCompletion(sharedDomain.PriorityLow, now, today)
	tr.RecordCompletion(sharedDomain.PriorityHigh, now.Add(time.Minute), today)

	assert.Equal(t, 2, tr.VelocityToday())
	assert.Equal(t, 4, tr.WeightedToday())
}

func TestTracker_LevelFor(t *testing.T) {
	t.Run("first completion breaks the lull", func(t *testing.T) {
		tr := domain.NewTracker(today, 0)
		assert.Equal(t, domain.CelebrationEpic, tr.LevelFor(sharedDomain.PriorityHigh, now))
		assert.Equal(t, domain.CelebrationStandard, tr.LevelFor(sharedDomain.PriorityLow, now))
	})

	t.Run("routine completions use the priority base", func(t *testing.T) {
		tr := domain.NewTracker(today, 0)
		tr.RecordCompletion(sharedDomain.PriorityLow, now, today)

		soon := now.Add(time.Hour)
		assert.Equal(t, domain.CelebrationSubtle, tr.LevelFor(sharedDomain.PriorityLow, soon))
		assert.Equal(t, domain.CelebrationStandard, tr.LevelFor(sharedDomain.PriorityMedium, soon))
		assert.Equal(t, domain.CelebrationBig, tr.LevelFor(sharedDomain.PriorityHigh, soon))
	})

	t.Run("high priority after a long lull is bigger than routine", func(t *testing.T) {
		tr := domain.NewTracker(today, 0)
		tr.RecordCompletion(sharedDomain.PriorityLow, now, today)

		level := tr.RecordCompletion(sharedDomain.PriorityHigh, now.Add(30*time.Hour), today.AddDays(1))
		assert.Equal(t, domain.CelebrationEpic, level)
	})
}

func TestTracker_Rollover(t *testing.T) {
	tr := domain.NewTracker(today, 0)
	tr.RecordCompletion(sharedDomain.PriorityMedium, now, today)

	assert.False(t, tr.Rollover(today))
	assert.True(t, tr.Rollover(today.AddDays(1)))
	assert.Zero(t, tr.VelocityToday())
	assert.False(t, tr.Rollover(today), "rolling backwards is ignored")
	assert.Equal(t, today.AddDays(1), tr.Day())
}

func TestTracker_RecordOnNewDayRollsFirst(t *testing.T) {
	tr := domain.NewTracker(today, 0)
	tr.RecordCompletion(sharedDomain.PriorityMedium, now, today)

	tr.RecordCompletion(sharedDomain.PriorityMedium, now.Add(20*time.Hour), today.AddDays(1))

	assert.Equal(t, 1, tr.VelocityToday())
}

func TestTracker_StateRoundTrip(t *testing.T) {
	tr := domain.NewTracker(today, time.Hour)
	tr.RecordCompletion(sharedDomain.PriorityHigh, now, today)

	raw, err := json.Marshal(tr.State())
	require.NoError(t, err)
	var st domain.State
	require.NoError(t, json.Unmarshal(raw, &st))

	restored := domain.RehydrateTracker(st, time.Hour)
	assert.Equal(t, 1, restored.VelocityToday())
	assert.Equal(t, domain.CelebrationBig, restored.LevelFor(sharedDomain.PriorityHigh, now.Add(time.Minute)))
}

func TestCelebrationLevel_Text(t *testing.T) {
	raw, err := json.Marshal(domain.CelebrationBig)
	require.NoError(t, err)
	assert.Equal(t, `"big"`, string(raw))

	var l domain.CelebrationLevel
	require.NoError(t, json.Unmarshal([]byte(`"epic"`), &l))
	assert.Equal(t, domain.CelebrationEpic, l)
	assert.Error(t, json.Unmarshal([]byte(`"loud"`), &l))
}
