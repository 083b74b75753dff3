package domain

import (
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	sharedDomain "github.com/felixgeelhaar/gadfly/internal/shared/domain"
)

// LedgerID identifies the single points ledger of an engine.
const LedgerID = "ledger"

// Streak tracks consecutive days with at least one completion.
type Streak struct {
	Current         int              `json:"current"`
	Longest         int              `json:"longest"`
	LastCreditedDay sharedDomain.Day `json:"last_credited_day,omitempty"`
}

// StreakUpdate is the result of recording a completion for the streak.
type StreakUpdate struct {
	Streak
	// Extended is true on the first completion of a day, when the streak moved.
	Extended bool
}

// Credit is one point award.
type Credit struct {
	Amount      int64
	Reason      Reason
	Ref         string
	Celebration string
}

// LedgerState is the stored form of the ledger, without redemptions and
// challenges, which are stored under their own keys.
type LedgerState struct {
	Balance        int64                       `json:"balance"`
	Lifetime       int64                       `json:"lifetime"`
	DailyCompleted map[sharedDomain.Day]int    `json:"daily_completed"`
	Streak         Streak                      `json:"streak"`
	Credited       map[string]sharedDomain.Day `json:"credited"`
	Version        int                         `json:"version"`
}

// Ledger holds the point balance, streaks, redemptions and the day's
// challenges. Balance never goes negative.
type Ledger struct {
	sharedDomain.BaseAggregateRoot
	balance        int64
	lifetime       int64
	dailyCompleted map[sharedDomain.Day]int
	streak         Streak
	credited       map[string]sharedDomain.Day
	redemptions    map[string]*Redemption
	challenges     ChallengeSet
}

// NewLedger creates an empty ledger.
func NewLedger(now time.Time) *Ledger {
	return &Ledger{
		BaseAggregateRoot: sharedDomain.NewBaseAggregateRoot(LedgerID, now),
		dailyCompleted:    make(map[sharedDomain.Day]int),
		credited:          make(map[string]sharedDomain.Day),
		redemptions:       make(map[string]*Redemption),
	}
}

// RehydrateLedger rebuilds a ledger from its stored parts.
func RehydrateLedger(st LedgerState, redemptions []Redemption, challenges ChallengeSet, now time.Time) *Ledger {
	l := NewLedger(now)
	l.SetVersion(st.Version)
	l.balance = st.Balance
	l.lifetime = st.Lifetime
	l.streak = st.Streak
	for d, n := range st.DailyCompleted {
		l.dailyCompleted[d] = n
	}
	for k, d := range st.Credited {
		l.credited[k] = d
	}
	for i := range redemptions {
		r := redemptions[i]
		l.redemptions[r.ID] = &r
	}
	l.challenges = cloneChallengeSet(challenges)
	return l
}

// State returns a deep copy of the stored form.
func (l *Ledger) State() LedgerState {
	st := LedgerState{
		Balance:        l.balance,
		Lifetime:       l.lifetime,
		DailyCompleted: make(map[sharedDomain.Day]int, len(l.dailyCompleted)),
		Streak:         l.streak,
		Credited:       make(map[string]sharedDomain.Day, len(l.credited)),
		Version:        l.Version(),
	}
	for d, n := range l.dailyCompleted {
		st.DailyCompleted[d] = n
	}
	for k, d := range l.credited {
		st.Credited[k] = d
	}
	return st
}

func (l *Ledger) Balance() int64  { return l.balance }
func (l *Ledger) Lifetime() int64 { return l.lifetime }
func (l *Ledger) Streak() Streak  { return l.streak }

// CompletedOn returns the completion count recorded for day.
func (l *Ledger) CompletedOn(day sharedDomain.Day) int { return l.dailyCompleted[day] }

// Credit adds points to balance and lifetime. Zero is a no-op. Amounts
// that would overflow either total are rejected.
func (l *Ledger) Credit(c Credit, now time.Time) error {
	if c.Amount < 0 || c.Amount > math.MaxInt64-l.lifetime || c.Amount > math.MaxInt64-l.balance {
		return ErrInvalidAmount
	}
	if c.Amount == 0 {
		return nil
	}
	l.balance += c.Amount
	l.lifetime += c.Amount
	l.Touch(now)
	l.AddDomainEvent(&PointsCredited{
		BaseEvent:   sharedDomain.NewBaseEvent(LedgerID, aggregateType, RoutingKeyPointsCredited, now),
		Amount:      c.Amount,
		Reason:      c.Reason,
		Ref:         c.Ref,
		Celebration: c.Celebration,
		Balance:     l.balance,
		Lifetime:    l.lifetime,
	})
	return nil
}

// CreditOnce credits only the first time key is seen, so a duplicated
// completion event never pays twice. It reports whether it credited.
func (l *Ledger) CreditOnce(key string, c Credit, day sharedDomain.Day, now time.Time) (bool, error) {
	if _, seen := l.credited[key]; seen {
		return false, nil
	}
	if err := l.Credit(c, now); err != nil {
		return false, err
	}
	l.credited[key] = day
	return true, nil
}

// WasCredited reports whether key has already been paid.
func (l *Ledger) WasCredited(key string) bool {
	_, ok := l.credited[key]
	return ok
}

// Prune forgets credit keys and daily counters older than before.
func (l *Ledger) Prune(before sharedDomain.Day) {
	for k, d := range l.credited {
		if d.Before(before) {
			delete(l.credited, k)
		}
	}
	for d := range l.dailyCompleted {
		if d.Before(before) {
			delete(l.dailyCompleted, d)
		}
	}
}

// RecordCompletionForStreak counts a completion on day. The first
// completion of a day extends the streak if the previous day had one,
// otherwise restarts it at 1. Completions for days older than the last
// credited day only bump that day's counter.
func (l *Ledger) RecordCompletionForStreak(day sharedDomain.Day) StreakUpdate {
	l.dailyCompleted[day]++
	if l.dailyCompleted[day] > 1 || day.Before(l.streak.LastCreditedDay) || day == l.streak.LastCreditedDay {
		return StreakUpdate{Streak: l.streak}
	}

	if !l.streak.LastCreditedDay.IsZero() && l.streak.LastCreditedDay == day.AddDays(-1) {
		l.streak.Current++
	} else {
		l.streak.Current = 1
	}
	if l.streak.Current > l.streak.Longest {
		l.streak.Longest = l.streak.Current
	}
	l.streak.LastCreditedDay = day
	return StreakUpdate{Streak: l.streak, Extended: true}
}

// RequestRedemption debits cost and creates a pending request in one step.
// On failure nothing changes.
func (l *Ledger) RequestRedemption(rewardID string, cost int64, now time.Time) (Redemption, error) {
	if cost <= 0 {
		return Redemption{}, ErrInvalidAmount
	}
	if rewardID == "" {
		return Redemption{}, ErrUnknownReward
	}
	if l.balance < cost {
		return Redemption{}, ErrInsufficientBalance
	}

	r := &Redemption{
		ID:          uuid.NewString(),
		RewardID:    rewardID,
		Points:      cost,
		Status:      RedemptionPending,
		RequestedAt: now.UTC(),
	}
	l.balance -= cost
	l.redemptions[r.ID] = r
	l.Touch(now)
	l.AddDomainEvent(newRedemptionChanged(r, 0, l.balance, now))
	return *r, nil
}

// Approve moves a pending request to approved.
func (l *Ledger) Approve(id string, now time.Time) (Redemption, error) {
	return l.transition(id, RedemptionApproved, now)
}

// Fulfill moves an approved request to fulfilled.
func (l *Ledger) Fulfill(id string, now time.Time) (Redemption, error) {
	return l.transition(id, RedemptionFulfilled, now)
}

// Deny moves a pending or approved request to denied and refunds its
// points. Denied is terminal, so a second deny fails and refunds nothing.
// Refunds do not count toward lifetime earnings.
func (l *Ledger) Deny(id string, now time.Time) (Redemption, error) {
	return l.transition(id, RedemptionDenied, now)
}

func (l *Ledger) transition(id string, to RedemptionStatus, now time.Time) (Redemption, error) {
	r, ok := l.redemptions[id]
	if !ok {
		return Redemption{}, ErrRedemptionNotFound
	}
	if !r.canMoveTo(to) {
		return *r, ErrInvalidTransition
	}

	r.Status = to
	at := now.UTC()
	r.DecidedAt = &at

	var refunded int64
	if to == RedemptionDenied && !r.Refunded {
		refunded = r.Points
		l.balance += refunded
		r.Refunded = true
	}
	l.Touch(now)
	l.AddDomainEvent(newRedemptionChanged(r, refunded, l.balance, now))
	return *r, nil
}

// Redemption returns a copy of a request.
func (l *Ledger) Redemption(id string) (Redemption, bool) {
	r, ok := l.redemptions[id]
	if !ok {
		return Redemption{}, false
	}
	return *r, true
}

// Redemptions lists requests, newest first.
func (l *Ledger) Redemptions() []Redemption {
	out := make([]Redemption, 0, len(l.redemptions))
	for _, r := range l.redemptions {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].RequestedAt.Equal(out[j].RequestedAt) {
			return out[i].RequestedAt.After(out[j].RequestedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Challenges returns a copy of the current challenge set.
func (l *Ledger) Challenges() ChallengeSet {
	return cloneChallengeSet(l.challenges)
}

// RefreshDailyChallenges regenerates the set when day is later than the
// set's day; otherwise it does nothing and reports false.
func (l *Ledger) RefreshDailyChallenges(day sharedDomain.Day, templates []ChallengeTemplate, now time.Time) bool {
	if !l.challenges.Day.Before(day) {
		return false
	}
	set := ChallengeSet{Day: day, Challenges: make([]Challenge, 0, len(templates))}
	for _, tpl := range templates {
		if tpl.Target <= 0 || tpl.BonusPoints < 0 {
			continue
		}
		set.Challenges = append(set.Challenges, Challenge{
			ID:          day.String() + "/" + tpl.Key,
			Key:         tpl.Key,
			Title:       tpl.Title,
			Target:      tpl.Target,
			BonusPoints: tpl.BonusPoints,
			MinPriority: tpl.MinPriority.OrDefault(),
			Day:         day,
		})
	}
	l.challenges = set
	l.Touch(now)
	return true
}

// RecordChallengeProgress applies a qualifying completion, identified by
// key, to the challenges of day. A challenge reaching its target pays its
// bonus exactly once. Returns the challenges completed by this call.
func (l *Ledger) RecordChallengeProgress(key string, p sharedDomain.Priority, day sharedDomain.Day, now time.Time) ([]Challenge, error) {
	if l.challenges.Day != day {
		return nil, nil
	}
	var completed []Challenge
	for i := range l.challenges.Challenges {
		c := &l.challenges.Challenges[i]
		if c.Completed || !c.qualifies(p) || c.counted(key) {
			continue
		}
		c.Counted = append(c.Counted, key)
		c.Progress++
		if c.Progress < c.Target {
			continue
		}
		c.Completed = true
		if _, err := l.CreditOnce("challenge:"+c.ID, Credit{
			Amount: c.BonusPoints,
			Reason: ReasonChallengeBonus,
			Ref:    c.ID,
		}, day, now); err != nil {
			return completed, err
		}
		l.AddDomainEvent(&ChallengeCompleted{
			BaseEvent:   sharedDomain.NewBaseEvent(c.ID, aggregateType, RoutingKeyChallengeCompleted, now),
			ChallengeID: c.ID,
			Title:       c.Title,
			BonusPoints: c.BonusPoints,
			Day:         day,
		})
		completed = append(completed, *c)
	}
	if len(completed) > 0 {
		l.Touch(now)
	}
	return completed, nil
}

func cloneChallengeSet(s ChallengeSet) ChallengeSet {
	out := ChallengeSet{Day: s.Day, Challenges: make([]Challenge, len(s.Challenges))}
	for i, c := range s.Challenges {
		c.Counted = append([]string(nil), c.Counted...)
		out.Challenges[i] = c
	}
	return out
}
