package engine

import (
	"time"

	agingDomain "github.com/felixgeelhaar/gadfly/internal/aging/domain"
	escalationDomain "github.com/felixgeelhaar/gadfly/internal/escalation/domain"
	"github.com/felixgeelhaar/gadfly/internal/phrases"
	rewardsDomain "github.com/felixgeelhaar/gadfly/internal/rewards/domain"
	rotationDomain "github.com/felixgeelhaar/gadfly/internal/rotation/domain"
	sharedDomain "github.com/felixgeelhaar/gadfly/internal/shared/domain"
)

// Config is the plain data the engine is built with. The engine never
// reads configuration storage itself.
type Config struct {
	// NagIntervals is the base nag interval per task priority.
	NagIntervals map[sharedDomain.Priority]time.Duration
	// TierDivisors shortens the base interval as a task ages.
	TierDivisors map[agingDomain.Tier]int
	// MinNagInterval is the floor for divided intervals.
	MinNagInterval time.Duration
	// AutoNag schedules a nag for every created task unless it opts out.
	AutoNag bool

	Escalation escalationDomain.Policy

	Points               rewardsDomain.PointsTable
	GoalMilestonePoints  int64
	GoalCompletionPoints int64
	// Every StreakBonusEvery consecutive days earn StreakBonusPoints.
	StreakBonusEvery  int
	StreakBonusPoints int64
	Challenges        []rewardsDomain.ChallengeTemplate
	Catalog           *rewardsDomain.Catalog
	// CreditRetentionDays bounds how long completion keys and old daily
	// challenge sets are kept.
	CreditRetentionDays int

	RotationWindow int
	RotationTTL    time.Duration
	Tone           string

	// Lull is the gap after which a completion counts as a comeback.
	Lull time.Duration
	// Location defines the local midnight for rollovers and streaks.
	Location *time.Location
}

// DefaultConfig returns the standard engine parameters.
func DefaultConfig() Config {
	catalog, _ := rewardsDomain.NewCatalog(
		rewardsDomain.Reward{ID: "break", Title: "Guilt-free break", Cost: 30},
		rewardsDomain.Reward{ID: "treat", Title: "Favourite treat", Cost: 60},
		rewardsDomain.Reward{ID: "movie", Title: "Movie night", Cost: 150},
	)
	return Config{
		NagIntervals: map[sharedDomain.Priority]time.Duration{
			sharedDomain.PriorityHigh:   15 * time.Minute,
			sharedDomain.PriorityMedium: time.Hour,
			sharedDomain.PriorityLow:    4 * time.Hour,
		},
		TierDivisors: map[agingDomain.Tier]int{
			agingDomain.TierFresh:    1,
			agingDomain.TierAging:    1,
			agingDomain.TierStale:    2,
			agingDomain.TierCritical: 4,
		},
		MinNagInterval:       5 * time.Minute,
		AutoNag:              true,
		Escalation:           escalationDomain.DefaultPolicy(),
		Points:               rewardsDomain.DefaultPointsTable(),
		GoalMilestonePoints:  25,
		GoalCompletionPoints: 100,
		StreakBonusEvery:     7,
		StreakBonusPoints:    50,
		Challenges:           rewardsDomain.DefaultChallengeTemplates(),
		Catalog:              catalog,
		CreditRetentionDays:  30,
		RotationWindow:       rotationDomain.DefaultWindow,
		RotationTTL:          rotationDomain.DefaultTTL,
		Tone:                 phrases.DefaultTone,
		Lull:                 24 * time.Hour,
		Location:             time.Local,
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if len(c.NagIntervals) == 0 {
		c.NagIntervals = d.NagIntervals
	}
	if len(c.TierDivisors) == 0 {
		c.TierDivisors = d.TierDivisors
	}
	if c.MinNagInterval <= 0 {
		c.MinNagInterval = d.MinNagInterval
	}
	if len(c.Escalation.Thresholds) == 0 {
		c.Escalation = d.Escalation
	}
	if len(c.Points) == 0 {
		c.Points = d.Points
	}
	if c.Catalog == nil {
		c.Catalog = d.Catalog
	}
	if c.CreditRetentionDays <= 0 {
		c.CreditRetentionDays = d.CreditRetentionDays
	}
	if c.Tone == "" {
		c.Tone = d.Tone
	}
	if c.Location == nil {
		c.Location = d.Location
	}
	return c
}

// NagInterval is the interval for a task of priority p in tier t:
// the priority's base interval divided by the tier divisor, never below
// MinNagInterval.
func (c Config) NagInterval(p sharedDomain.Priority, t agingDomain.Tier) time.Duration {
	base, ok := c.NagIntervals[p.OrDefault()]
	if !ok || base <= 0 {
		base = c.NagIntervals[sharedDomain.PriorityMedium]
	}
	if base <= 0 {
		base = time.Hour
	}
	base /= time.Duration(c.divisor(t))
	if base < c.MinNagInterval {
		base = c.MinNagInterval
	}
	return base
}

// OverrideInterval rescales an interval requested while the task was in
// tier from to tier to. The result never exceeds the request and only
// drops below MinNagInterval when the request did.
func (c Config) OverrideInterval(requested time.Duration, from, to agingDomain.Tier) time.Duration {
	d := requested * time.Duration(c.divisor(from)) / time.Duration(c.divisor(to))
	return min(max(d, min(c.MinNagInterval, requested)), requested)
}

func (c Config) divisor(t agingDomain.Tier) int {
	if div := c.TierDivisors[t]; div > 1 {
		return div
	}
	return 1
}
