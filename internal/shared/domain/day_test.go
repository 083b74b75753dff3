package domain_test

import (
	"testing"
	"time"

	"github.com/felixgeelhaar/gadfly/internal/shared/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDayOf(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	// 03:00 UTC is still the previous evening in New York.
	instant := time.Date(2026, 5, 10, 3, 0, 0, 0, time.UTC)

	assert.Equal(t, domain.Day("2026-05-09"), domain.DayOf(instant, loc))
	assert.Equal(t, domain.Day("2026-05-10"), domain.DayOf(instant, time.UTC))
}

func TestDay_Arithmetic(t *testing.T) {
	d := domain.Day("2026-02-27")

	assert.Equal(t, domain.Day("2026-03-01"), d.AddDays(2))
	assert.Equal(t, domain.Day("2026-02-26"), d.AddDays(-1))
	assert.Equal(t, 2, domain.DaysBetween(d, d.AddDays(2)))
	assert.Equal(t, -1, domain.DaysBetween(d, d.AddDays(-1)))
	assert.Equal(t, 0, domain.DaysBetween("", d))
	assert.True(t, d.Before(d.AddDays(1)))
}

func TestDay_StartAcrossDST(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	// The last Sunday of March has only 23 hours in Berlin.
	assert.Equal(t, 1, domain.DaysBetween("2026-03-29", "2026-03-30"))
	start := domain.Day("2026-03-29").Start(loc)
	assert.Equal(t, 0, start.Hour())
	assert.Equal(t, domain.Day("2026-03-29"), domain.DayOf(start, loc))
}

func TestParseDay(t *testing.T) {
	d, err := domain.ParseDay("2026-12-31")
	require.NoError(t, err)
	assert.Equal(t, domain.Day("2026-12-31"), d)

	_, err = domain.ParseDay("31/12/2026")
	assert.ErrorIs(t, err, domain.ErrInvalidDay)
}
