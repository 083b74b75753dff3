package domain

import (
	"errors"
	"strings"
	"time"
)

// Tier is the coarse urgency of an open task.
type Tier int

const (
	TierFresh Tier = iota
	TierAging
	TierStale
	TierCritical
)

var ErrInvalidTier = errors.New("invalid aging tier")

var tierNames = map[Tier]string{
	TierFresh:    "fresh",
	TierAging:    "aging",
	TierStale:    "stale",
	TierCritical: "critical",
}

// ParseTier parses a tier name.
func ParseTier(s string) (Tier, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for t, name := range tierNames {
		if name == s {
			return t, nil
		}
	}
	return 0, ErrInvalidTier
}

func (t Tier) String() string {
	if name, ok := tierNames[t]; ok {
		return name
	}
	return "unknown"
}

func (t Tier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *Tier) UnmarshalText(text []byte) error {
	parsed, err := ParseTier(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

const day = 24 * time.Hour

// Classification is the derived aging state of a task at a point in time.
type Classification struct {
	Tier     Tier `json:"tier"`
	HoursOld int  `json:"hours_old"`
}

// Classify derives the tier of a task from its creation and optional due
// time. Each signal gives a tier and the more severe one wins.
//
// Age: under 24h fresh, [24h, 48h) aging, [48h, 96h] stale, beyond 96h
// critical. Due: more than 24h away fresh, due within 24h (inclusive)
// aging, overdue by up to 24h stale, overdue by more critical.
func Classify(createdAt time.Time, dueAt *time.Time, now time.Time) Classification {
	age := now.Sub(createdAt)
	if age < 0 {
		age = 0
	}
	c := Classification{HoursOld: int(age / time.Hour), Tier: ageTier(age)}
	if dueAt != nil {
		c.Tier = max(c.Tier, dueTier(dueAt.Sub(now)))
	}
	return c
}

func ageTier(age time.Duration) Tier {
	switch {
	case age < day:
		return TierFresh
	case age < 2*day:
		return TierAging
	case age <= 4*day:
		return TierStale
	default:
		return TierCritical
	}
}

func dueTier(until time.Duration) Tier {
	switch {
	case until > day:
		return TierFresh
	case until >= 0:
		return TierAging
	case -until <= day:
		return TierStale
	default:
		return TierCritical
	}
}
