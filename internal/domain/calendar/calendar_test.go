package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var manila = MustLoad(DefaultZone)

func TestLoad_UnknownZone(t *testing.T) {
	_, err := Load("Nowhere/Special")
	assert.Error(t, err)
}

func TestNew_NilLocationIsUTC(t *testing.T) {
	assert.Equal(t, time.UTC, New(nil).Location())
	assert.Equal(t, time.UTC, Calendar{}.Location())
}

func TestStartOfDay(t *testing.T) {
	// 2024-03-10 17:30 UTC is 2024-03-11 01:30 in Manila.
	in := time.Date(2024, 3, 10, 17, 30, 0, 0, time.UTC)
	got := manila.StartOfDay(in)
	assert.Equal(t, manila.Date(2024, 3, 11), got)
}

func TestDaysBetween(t *testing.T) {
	tests := []struct {
		name string
		a, b time.Time
		want int
	}{
		{"same instant", manila.Date(2024, 5, 1), manila.Date(2024, 5, 1), 0},
		{"late same day", manila.Date(2024, 5, 1).Add(23 * time.Hour), manila.Date(2024, 5, 1), 0},
		{"one day", manila.Date(2024, 5, 2), manila.Date(2024, 5, 1).Add(23 * time.Hour), 1},
		{"negative", manila.Date(2024, 4, 30), manila.Date(2024, 5, 1), -1},
		{"leap february", manila.Date(2024, 3, 1), manila.Date(2024, 2, 28), 2},
		{"across year", manila.Date(2025, 1, 15), manila.Date(2024, 12, 31), 15},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, manila.DaysBetween(tt.a, tt.b))
		})
	}
}

func TestDaysBetween_UsesCanonicalZone(t *testing.T) {
	// Both instants are on 2024-06-01 in Manila but on different UTC days.
	a := time.Date(2024, 5, 31, 16, 30, 0, 0, time.UTC)
	b := time.Date(2024, 6, 1, 15, 0, 0, 0, time.UTC)
	assert.Equal(t, 0, manila.DaysBetween(a, b))
	assert.Equal(t, -1, New(time.UTC).DaysBetween(a, b))
}

func TestDaysBetween_DSTZone(t *testing.T) {
	ny := MustLoad("America/New_York")
	a := ny.Date(2024, 3, 11)
	b := ny.Date(2024, 3, 10)
	assert.Equal(t, 1, ny.DaysBetween(a, b))
	assert.Equal(t, ny.Date(2024, 3, 11), ny.AddDays(b, 1))
}

func TestIsAfterDay(t *testing.T) {
	d := manila.Date(2024, 12, 31)
	assert.False(t, manila.IsAfterDay(d.Add(23*time.Hour), d))
	assert.True(t, manila.IsAfterDay(manila.Date(2025, 1, 1), d))
	assert.False(t, manila.IsAfterDay(manila.Date(2024, 12, 30), d))
	assert.True(t, manila.IsBeforeDay(manila.Date(2024, 12, 30), d))
	assert.True(t, manila.SameDay(d, d.Add(time.Hour)))
}

func TestWithinInclusiveDayRange(t *testing.T) {
	lo := manila.Date(2024, 12, 1).Add(15 * time.Hour)
	hi := manila.Date(2025, 1, 15).Add(2 * time.Hour)

	assert.True(t, manila.WithinInclusiveDayRange(manila.Date(2024, 12, 1), lo, hi))
	assert.True(t, manila.WithinInclusiveDayRange(manila.Date(2025, 1, 15).Add(23*time.Hour), lo, hi))
	assert.False(t, manila.WithinInclusiveDayRange(manila.Date(2024, 11, 30).Add(23*time.Hour), lo, hi))
	assert.False(t, manila.WithinInclusiveDayRange(manila.Date(2025, 1, 16), lo, hi))
}

func TestAddDays_LeapYear(t *testing.T) {
	approved := manila.Date(2024, 1, 1).Add(9 * time.Hour)
	expiry := manila.AddDays(approved, 365)

	y, m, d := expiry.Date()
	assert.Equal(t, 2024, y)
	assert.Equal(t, time.December, m)
	assert.Equal(t, 31, d)
	assert.Equal(t, 9, expiry.Hour())
	assert.Equal(t, manila.Location(), expiry.Location())
}

func TestAddYears(t *testing.T) {
	got := manila.AddYears(manila.Date(2024, 2, 29), 1)
	assert.Equal(t, manila.Date(2025, 3, 1), got)
	assert.Equal(t, manila.Date(2025, 1, 1), manila.AddYears(manila.Date(2024, 1, 1), 1))
}

func TestFixedClock(t *testing.T) {
	start := manila.Date(2024, 1, 1)
	c := NewFixedClock(start)
	require.Equal(t, start, c.Now())

	c.Advance(24 * time.Hour)
	assert.True(t, manila.Date(2024, 1, 2).Equal(c.Now()))

	c.Set(start)
	assert.Equal(t, start, c.Now())

	assert.WithinDuration(t, time.Now(), SystemClock().Now(), time.Second)
}
