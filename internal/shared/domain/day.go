package domain

import (
	"errors"
	"time"
)

const dayLayout = "2006-01-02"

// ErrInvalidDay is returned when a day string cannot be parsed.
var ErrInvalidDay = errors.New("invalid day, expected YYYY-MM-DD")

// Day is a local calendar date. Streaks, rollovers and daily challenges are
// keyed by Day rather than by instant so they follow the user's midnight.
type Day string

// DayOf returns the calendar day containing t in loc.
func DayOf(t time.Time, loc *time.Location) Day {
	if loc == nil {
		loc = time.Local
	}
	return Day(t.In(loc).Format(dayLayout))
}

// ParseDay validates and returns a Day.
func ParseDay(s string) (Day, error) {
	if _, err := time.Parse(dayLayout, s); err != nil {
		return "", ErrInvalidDay
	}
	return Day(s), nil
}

// String returns the YYYY-MM-DD form.
func (d Day) String() string { return string(d) }

// IsZero reports whether the day is unset.
func (d Day) IsZero() bool { return d == "" }

// date returns midnight UTC of the day, used only for calendar arithmetic.
func (d Day) date() time.Time {
	t, err := time.Parse(dayLayout, string(d))
	if err != nil {
		return time.Time{}
	}
	return t
}

// AddDays returns the day n calendar days later (or earlier for negative n).
func (d Day) AddDays(n int) Day {
	return Day(d.date().AddDate(0, 0, n).Format(dayLayout))
}

// Before reports whether d is strictly earlier than other.
func (d Day) Before(other Day) bool { return d < other }

// DaysBetween returns the number of calendar days from a to b.
// It is negative when b is earlier than a.
func DaysBetween(a, b Day) int {
	if a.IsZero() || b.IsZero() {
		return 0
	}
	return int(b.date().Sub(a.date()).Hours() / 24)
}

// Start returns the instant the day begins in loc.
func (d Day) Start(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	t := d.date()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
