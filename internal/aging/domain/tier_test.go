package domain_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/gadfly/internal/aging/domain"
)

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func at(d time.Duration) *time.Time {
	t := now.Add(d)
	return &t
}

func TestClassify_ByAge(t *testing.T) {
	cases := []struct {
		name string
		age  time.Duration
		want domain.Tier
	}{
		{"brand new", 0, domain.TierFresh},
		{"just under a day", 24*time.Hour - time.Minute, domain.TierFresh},
		{"exactly a day", 24 * time.Hour, domain.TierAging},
		{"just under two days", 48*time.Hour - time.Second, domain.TierAging},
		{"exactly two days", 48 * time.Hour, domain.TierStale},
		{"exactly four days", 96 * time.Hour, domain.TierStale},
		{"past four days", 96*time.Hour + time.Minute, domain.TierCritical},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := domain.Classify(now.Add(-tc.age), nil, now)
			assert.Equal(t, tc.want, c.Tier)
			assert.Equal(t, int(tc.age/time.Hour), c.HoursOld)
		})
	}
}

func TestClassify_ByDue(t *testing.T) {
	created := now.Add(-time.Hour)
	cases := []struct {
		name string
		due  time.Duration
		want domain.Tier
	}{
		{"due in two days", 48 * time.Hour, domain.TierFresh},
		{"due in exactly a day", 24 * time.Hour, domain.TierAging},
		{"due now", 0, domain.TierAging},
		{"overdue an hour", -time.Hour, domain.TierStale},
		{"overdue exactly a day", -24 * time.Hour, domain.TierStale},
		{"overdue more than a day", -25 * time.Hour, domain.TierCritical},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, domain.Classify(created, at(tc.due), now).Tier)
		})
	}
}

func TestClassify_MoreSevereSignalWins(t *testing.T) {
	cases := []struct {
		name string
		age  time.Duration
		due  time.Duration
		want domain.Tier
	}{
		{"old task due later", 6 * 24 * time.Hour, 3 * 24 * time.Hour, domain.TierCritical},
		{"aging task due later", 30 * time.Hour, 3 * 24 * time.Hour, domain.TierAging},
		{"new task overdue", time.Hour, -25 * time.Hour, domain.TierCritical},
		{"new task due soon", time.Hour, 2 * time.Hour, domain.TierAging},
		{"both fresh", time.Hour, 48 * time.Hour, domain.TierFresh},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, domain.Classify(now.Add(-tc.age), at(tc.due), now).Tier)
		})
	}
}

func TestClassify_FutureCreation(t *testing.T) {
	c := domain.Classify(now.Add(time.Hour), nil, now)
	assert.Equal(t, domain.TierFresh, c.Tier)
	assert.Zero(t, c.HoursOld)
}

func TestTier_Text(t *testing.T) {
	raw, err := json.Marshal(domain.TierCritical)
	require.NoError(t, err)
	assert.Equal(t, `"critical"`, string(raw))

	var tier domain.Tier
	require.NoError(t, json.Unmarshal([]byte(`"stale"`), &tier))
	assert.Equal(t, domain.TierStale, tier)

	_, err = domain.ParseTier("rotten")
	assert.ErrorIs(t, err, domain.ErrInvalidTier)
}

func TestParseBlockerReason(t *testing.T) {
	r, err := domain.ParseBlockerReason("External-Block")
	require.NoError(t, err)
	assert.Equal(t, domain.BlockerExternalBlock, r)
	assert.True(t, r.SuppressesNags())

	r, err = domain.ParseBlockerReason("unclear-how")
	require.NoError(t, err)
	assert.Equal(t, domain.BlockerUnclearHow, r)
	assert.False(t, r.SuppressesNags())

	_, err = domain.ParseBlockerReason("lazy")
	assert.ErrorIs(t, err, domain.ErrInvalidBlockerReason)
}
