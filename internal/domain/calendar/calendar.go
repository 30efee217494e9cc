// Package calendar implements day-granularity date arithmetic in a single
// canonical time zone. Every comparison in the franchise lifecycle goes
// through a Calendar so that "same day" means the same wall-clock date in the
// municipality, not the same UTC instant.
package calendar

import (
	"fmt"
	"time"
)

// DefaultZone is the zone franchise dates are evaluated in unless configured.
const DefaultZone = "Asia/Manila"

// Calendar evaluates instants as calendar days in one location.
type Calendar struct {
	loc *time.Location
}

// New returns a Calendar bound to loc. A nil loc means UTC.
func New(loc *time.Location) Calendar {
	if loc == nil {
		loc = time.UTC
	}
	return Calendar{loc: loc}
}

// Load returns a Calendar for the IANA zone name.
func Load(zone string) (Calendar, error) {
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return Calendar{}, fmt.Errorf("calendar: load zone %q: %w", zone, err)
	}
	return New(loc), nil
}

// MustLoad is Load that panics. Intended for tests and package-level setup.
func MustLoad(zone string) Calendar {
	c, err := Load(zone)
	if err != nil {
		panic(err)
	}
	return c
}

// Location returns the canonical zone.
func (c Calendar) Location() *time.Location {
	if c.loc == nil {
		return time.UTC
	}
	return c.loc
}

// StartOfDay returns midnight of t's calendar day in the canonical zone.
func (c Calendar) StartOfDay(t time.Time) time.Time {
	y, m, d := t.In(c.Location()).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, c.Location())
}

// Date builds midnight of the given date in the canonical zone.
func (c Calendar) Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, c.Location())
}

// IsAfterDay reports whether a falls on a strictly later calendar day than b.
func (c Calendar) IsAfterDay(a, b time.Time) bool {
	return c.DaysBetween(a, b) > 0
}

// IsBeforeDay reports whether a falls on a strictly earlier calendar day than b.
func (c Calendar) IsBeforeDay(a, b time.Time) bool {
	return c.DaysBetween(a, b) < 0
}

// SameDay reports whether a and b fall on the same calendar day.
func (c Calendar) SameDay(a, b time.Time) bool {
	return c.DaysBetween(a, b) == 0
}

// WithinInclusiveDayRange reports whether p's calendar day lies in [lo, hi].
func (c Calendar) WithinInclusiveDayRange(p, lo, hi time.Time) bool {
	return !c.IsBeforeDay(p, lo) && !c.IsAfterDay(p, hi)
}

// AddDays adds n calendar days, keeping the wall-clock time in the zone.
func (c Calendar) AddDays(t time.Time, n int) time.Time {
	return t.In(c.Location()).AddDate(0, 0, n)
}

// AddYears adds n calendar years in the zone. Feb 29 normalises to Mar 1.
func (c Calendar) AddYears(t time.Time, n int) time.Time {
	return t.In(c.Location()).AddDate(n, 0, 0)
}

// DaysBetween returns the signed number of calendar days from b to a.
// DaysBetween(a, b) > 0 means a is on a later day than b.
func (c Calendar) DaysBetween(a, b time.Time) int {
	ay, am, ad := a.In(c.Location()).Date()
	by, bm, bd := b.In(c.Location()).Date()
	// Civil dates are compared in UTC so DST shifts cannot skew the count.
	ua := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	ub := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(ua.Sub(ub).Hours() / 24)
}
