package domain_test

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/gadfly/internal/rewards/domain"
	sharedDomain "github.com/felixgeelhaar/gadfly/internal/shared/domain"
)

var (
	now   = time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)
	today = sharedDomain.Day("2026-07-01")
)

func fundedLedger(t *testing.T, amount int64) *domain.Ledger {
	t.Helper()
	l := domain.NewLedger(now)
	require.NoError(t, l.Credit(domain.Credit{Amount: amount, Reason: domain.ReasonManual}, now))
	l.ClearDomainEvents()
	return l
}

func TestLedger_Credit(t *testing.T) {
	t.Run("adds to balance and lifetime", func(t *testing.T) {
		l := domain.NewLedger(now)
		require.NoError(t, l.Credit(domain.Credit{Amount: 10, Reason: domain.ReasonTaskCompleted, Ref: "t1"}, now))

		assert.Equal(t, int64(10), l.Balance())
		assert.Equal(t, int64(10), l.Lifetime())
		require.Len(t, l.DomainEvents(), 1)
		ev := l.DomainEvents()[0].(*domain.PointsCredited)
		assert.Equal(t, domain.RoutingKeyPointsCredited, ev.RoutingKey())
		assert.Equal(t, int64(10), ev.Balance)
	})

	t.Run("rejects negative amounts", func(t *testing.T) {
		l := domain.NewLedger(now)
		assert.ErrorIs(t, l.Credit(domain.Credit{Amount: -1}, now), domain.ErrInvalidAmount)
		assert.Zero(t, l.Balance())
	})

	t.Run("rejects credits that would overflow", func(t *testing.T) {
		l := fundedLedger(t, math.MaxInt64)

		assert.ErrorIs(t, l.Credit(domain.Credit{Amount: 1}, now), domain.ErrInvalidAmount)
		assert.Equal(t, int64(math.MaxInt64), l.Balance())
		assert.Equal(t, int64(math.MaxInt64), l.Lifetime())
		assert.Empty(t, l.DomainEvents())

		_, err := l.CreditOnce("task:t1", domain.Credit{Amount: 1}, today, now)
		assert.ErrorIs(t, err, domain.ErrInvalidAmount)
		assert.False(t, l.WasCredited("task:t1"))
	})

	t.Run("zero is a no-op", func(t *testing.T) {
		l := domain.NewLedger(now)
		require.NoError(t, l.Credit(domain.Credit{}, now))
		assert.Empty(t, l.DomainEvents())
	})

	t.Run("credit once pays a key one time", func(t *testing.T) {
		l := domain.NewLedger(now)
		c := domain.Credit{Amount: 10, Reason: domain.ReasonTaskCompleted, Ref: "t1"}

		ok, err := l.CreditOnce("task:t1", c, today, now)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = l.CreditOnce("task:t1", c, today, now)
		require.NoError(t, err)
		assert.False(t, ok)

		assert.Equal(t, int64(10), l.Balance())
		assert.True(t, l.WasCredited("task:t1"))
	})

	t.Run("prune forgets old keys", func(t *testing.T) {
		l := domain.NewLedger(now)
		_, err := l.CreditOnce("task:old", domain.Credit{Amount: 1}, today.AddDays(-10), now)
		require.NoError(t, err)
		_, err = l.CreditOnce("task:new", domain.Credit{Amount: 1}, today, now)
		require.NoError(t, err)

		l.Prune(today.AddDays(-7))

		assert.False(t, l.WasCredited("task:old"))
		assert.True(t, l.WasCredited("task:new"))
	})
}

func TestLedger_Streak(t *testing.T) {
	l := domain.NewLedger(now)

	u := l.RecordCompletionForStreak(today)
	assert.True(t, u.Extended)
	assert.Equal(t, 1, u.Current)

	u = l.RecordCompletionForStreak(today)
	assert.False(t, u.Extended, "second completion of a day does not move the streak")
	assert.Equal(t, 2, l.CompletedOn(today))

	l.RecordCompletionForStreak(today.AddDays(1))
	u = l.RecordCompletionForStreak(today.AddDays(2))
	assert.Equal(t, 3, u.Current)
	assert.Equal(t, 3, u.Longest)

	u = l.RecordCompletionForStreak(today.AddDays(4))
	assert.True(t, u.Extended)
	assert.Equal(t, 1, u.Current)
	assert.Equal(t, 3, u.Longest)

	u = l.RecordCompletionForStreak(today.AddDays(3))
	assert.False(t, u.Extended, "late completions for an earlier day only count")
	assert.Equal(t, 1, u.Current)
	assert.Equal(t, 1, l.CompletedOn(today.AddDays(3)))
}

func TestLedger_Redemption(t *testing.T) {
	t.Run("request debits and creates pending", func(t *testing.T) {
		l := fundedLedger(t, 100)

		r, err := l.RequestRedemption("movie", 60, now)
		require.NoError(t, err)

		assert.Equal(t, domain.RedemptionPending, r.Status)
		assert.Equal(t, int64(40), l.Balance())
		assert.Equal(t, int64(100), l.Lifetime())
		require.Len(t, l.DomainEvents(), 1)
		assert.Equal(t, domain.RoutingKeyRedemptionRequested, l.DomainEvents()[0].RoutingKey())
	})

	t.Run("cannot double spend", func(t *testing.T) {
		l := fundedLedger(t, 100)

		_, err := l.RequestRedemption("movie", 60, now)
		require.NoError(t, err)
		_, err = l.RequestRedemption("movie", 60, now)

		assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
		assert.Equal(t, int64(40), l.Balance())
		assert.Len(t, l.Redemptions(), 1)
	})

	t.Run("rejects non-positive cost", func(t *testing.T) {
		l := fundedLedger(t, 100)
		_, err := l.RequestRedemption("movie", 0, now)
		assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	})

	t.Run("approve then fulfill", func(t *testing.T) {
		l := fundedLedger(t, 100)
		r, err := l.RequestRedemption("movie", 60, now)
		require.NoError(t, err)

		r, err = l.Approve(r.ID, now)
		require.NoError(t, err)
		assert.Equal(t, domain.RedemptionApproved, r.Status)

		r, err = l.Fulfill(r.ID, now)
		require.NoError(t, err)
		assert.Equal(t, domain.RedemptionFulfilled, r.Status)
		assert.NotNil(t, r.DecidedAt)

		_, err = l.Deny(r.ID, now)
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
		assert.Equal(t, int64(40), l.Balance())
	})

	t.Run("fulfill requires approval", func(t *testing.T) {
		l := fundedLedger(t, 100)
		r, err := l.RequestRedemption("movie", 60, now)
		require.NoError(t, err)

		_, err = l.Fulfill(r.ID, now)
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	})

	t.Run("deny refunds exactly once", func(t *testing.T) {
		l := fundedLedger(t, 100)
		r, err := l.RequestRedemption("movie", 60, now)
		require.NoError(t, err)

		r, err = l.Deny(r.ID, now)
		require.NoError(t, err)
		assert.True(t, r.Refunded)
		assert.Equal(t, int64(100), l.Balance())
		assert.Equal(t, int64(100), l.Lifetime(), "refunds are not earnings")

		_, err = l.Deny(r.ID, now)
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
		assert.Equal(t, int64(100), l.Balance())
	})

	t.Run("unknown id", func(t *testing.T) {
		l := domain.NewLedger(now)
		_, err := l.Approve("missing", now)
		assert.ErrorIs(t, err, domain.ErrRedemptionNotFound)
	})
}

func TestLedger_Challenges(t *testing.T) {
	templates := []domain.ChallengeTemplate{
		{Key: "three", Title: "Three tasks", Target: 3, BonusPoints: 15, MinPriority: sharedDomain.PriorityLow},
		{Key: "high", Title: "One high", Target: 1, BonusPoints: 10, MinPriority: sharedDomain.PriorityHigh},
	}

	t.Run("refresh only on a new day", func(t *testing.T) {
		l := domain.NewLedger(now)
		assert.True(t, l.RefreshDailyChallenges(today, templates, now))
		assert.False(t, l.RefreshDailyChallenges(today, templates, now))
		assert.Len(t, l.Challenges().Challenges, 2)
		assert.True(t, l.RefreshDailyChallenges(today.AddDays(1), templates, now))
		assert.Equal(t, today.AddDays(1), l.Challenges().Day)
	})

	t.Run("an earlier day keeps the current set", func(t *testing.T) {
		l := domain.NewLedger(now)
		l.RefreshDailyChallenges(today, templates, now)
		_, err := l.RecordChallengeProgress("t1", sharedDomain.PriorityLow, today, now)
		require.NoError(t, err)

		assert.False(t, l.RefreshDailyChallenges(today.AddDays(-1), templates, now))
		assert.Equal(t, today, l.Challenges().Day)
		assert.Equal(t, 1, l.Challenges().Challenges[0].Progress)
	})

	t.Run("partial progress does not pay", func(t *testing.T) {
		l := domain.NewLedger(now)
		l.RefreshDailyChallenges(today, templates, now)

		_, err := l.RecordChallengeProgress("t1", sharedDomain.PriorityLow, today, now)
		require.NoError(t, err)
		_, err = l.RecordChallengeProgress("t2", sharedDomain.PriorityLow, today, now)
		require.NoError(t, err)

		c := l.Challenges().Challenges[0]
		assert.Equal(t, 2, c.Progress)
		assert.False(t, c.Completed)
		assert.Zero(t, l.Balance())
	})

	t.Run("bonus is paid exactly once", func(t *testing.T) {
		l := domain.NewLedger(now)
		l.RefreshDailyChallenges(today, templates, now)

		for _, id := range []string{"t1", "t2"} {
			_, err := l.RecordChallengeProgress(id, sharedDomain.PriorityLow, today, now)
			require.NoError(t, err)
		}
		done, err := l.RecordChallengeProgress("t3", sharedDomain.PriorityLow, today, now)
		require.NoError(t, err)
		require.Len(t, done, 1)
		assert.Equal(t, "three", done[0].Key)

		done, err = l.RecordChallengeProgress("t3", sharedDomain.PriorityLow, today, now)
		require.NoError(t, err)
		assert.Empty(t, done)
		done, err = l.RecordChallengeProgress("t4", sharedDomain.PriorityLow, today, now)
		require.NoError(t, err)
		assert.Empty(t, done)

		assert.Equal(t, int64(15), l.Balance())
	})

	t.Run("duplicate keys are not counted twice", func(t *testing.T) {
		l := domain.NewLedger(now)
		l.RefreshDailyChallenges(today, templates, now)

		for i := 0; i < 3; i++ {
			_, err := l.RecordChallengeProgress("t1", sharedDomain.PriorityLow, today, now)
			require.NoError(t, err)
		}
		assert.Equal(t, 1, l.Challenges().Challenges[0].Progress)
	})

	t.Run("priority filter", func(t *testing.T) {
		l := domain.NewLedger(now)
		l.RefreshDailyChallenges(today, templates, now)

		_, err := l.RecordChallengeProgress("t1", sharedDomain.PriorityMedium, today, now)
		require.NoError(t, err)
		assert.False(t, l.Challenges().Challenges[1].Completed)

		done, err := l.RecordChallengeProgress("t2", sharedDomain.PriorityHigh, today, now)
		require.NoError(t, err)
		require.Len(t, done, 1)
		assert.Equal(t, "high", done[0].Key)
	})

	t.Run("progress for another day is ignored", func(t *testing.T) {
		l := domain.NewLedger(now)
		l.RefreshDailyChallenges(today, templates, now)

		done, err := l.RecordChallengeProgress("t1", sharedDomain.PriorityHigh, today.AddDays(-1), now)
		require.NoError(t, err)
		assert.Empty(t, done)
		assert.Zero(t, l.Challenges().Challenges[0].Progress)
	})
}

func TestLedger_Rehydrate(t *testing.T) {
	l := fundedLedger(t, 50)
	l.RecordCompletionForStreak(today)
	r, err := l.RequestRedemption("movie", 20, now)
	require.NoError(t, err)
	l.RefreshDailyChallenges(today, domain.DefaultChallengeTemplates(), now)

	restored := domain.RehydrateLedger(l.State(), l.Redemptions(), l.Challenges(), now)

	assert.Equal(t, l.Balance(), restored.Balance())
	assert.Equal(t, l.Lifetime(), restored.Lifetime())
	assert.Equal(t, l.Streak(), restored.Streak())
	got, ok := restored.Redemption(r.ID)
	require.True(t, ok)
	assert.Equal(t, domain.RedemptionPending, got.Status)
	assert.Equal(t, l.Challenges(), restored.Challenges())
}
