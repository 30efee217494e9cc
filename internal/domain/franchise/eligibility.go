package franchise

import (
	"time"

	"github.com/turtacn/toda-franchise/internal/domain/approval"
	"github.com/turtacn/toda-franchise/internal/domain/calendar"
)

// Window is the renewal window around an expiry date, in calendar days.
type Window struct {
	Before int
	After  int
}

// DefaultWindow opens 30 days before expiry and closes 15 days after.
var DefaultWindow = Window{Before: 30, After: 15}

// Source names which record an effective status came from.
type Source string

const (
	SourceFranchise Source = "franchise"
	SourceRenewal   Source = "renewal"
)

// Effective is the record that currently carries a franchise's lifecycle.
type Effective struct {
	Record  *Lifecycle
	Source  Source
	Renewal *Renewal
}

// ExpiryStatus is the derived lifecycle summary of a franchise.
type ExpiryStatus struct {
	IsExpired       bool            `json:"is_expired"`
	CanRenew        bool            `json:"can_renew"`
	EffectiveStatus approval.Status `json:"effective_status"`
	EffectiveSource Source          `json:"effective_source"`
	ExpiryDate      *time.Time      `json:"expiry_date,omitempty"`
}

// EffectiveRecord returns the latest renewal, or the base franchise when the
// chain is empty.
func EffectiveRecord(f *Franchise) Effective {
	if r := f.LatestRenewal(); r != nil {
		return Effective{Record: &r.Lifecycle, Source: SourceRenewal, Renewal: r}
	}
	return Effective{Record: &f.Lifecycle, Source: SourceFranchise}
}

// PriorExpiry returns the expiry that r renews: the nearest older renewal
// with an expiry date, else the base franchise's expiry.
func PriorExpiry(f *Franchise, r *Renewal) *time.Time {
	chain := append([]*Renewal(nil), f.Renewals...)
	SortRenewals(chain)
	seen := false
	for _, cur := range chain {
		if !seen {
			seen = cur.ID == r.ID
			continue
		}
		if cur.ExpiresAt != nil {
			return cur.ExpiresAt
		}
	}
	return f.ExpiresAt
}

// InWindow reports whether now lies within [expiry-Before, expiry+After] by
// calendar day. A nil expiry is never in a window.
func InWindow(cal calendar.Calendar, now time.Time, expiry *time.Time, w Window) bool {
	if expiry == nil {
		return false
	}
	lo := cal.AddDays(*expiry, -w.Before)
	hi := cal.AddDays(*expiry, w.After)
	return cal.WithinInclusiveDayRange(now, lo, hi)
}

// IsExpired reports whether the effective record's expiry day has passed.
func IsExpired(cal calendar.Calendar, now time.Time, f *Franchise) bool {
	exp := EffectiveRecord(f).Record.ExpiresAt
	if exp == nil {
		return false
	}
	return cal.IsAfterDay(now, *exp)
}

// renewalBasis is the expiry a renewal would extend. A rejected or canceled
// renewal never got an expiry of its own, so the previous record's counts.
func renewalBasis(f *Franchise, eff Effective) *time.Time {
	if eff.Renewal != nil {
		switch eff.Record.Status {
		case approval.StatusRejected, approval.StatusCanceled:
			return PriorExpiry(f, eff.Renewal)
		}
	}
	return eff.Record.ExpiresAt
}

// CanRenew reports whether a new renewal may be filed at now.
func CanRenew(cal calendar.Calendar, now time.Time, f *Franchise, w Window) bool {
	return InWindow(cal, now, renewalBasis(f, EffectiveRecord(f)), w)
}

// Evaluate computes the full ExpiryStatus at now.
func Evaluate(cal calendar.Calendar, now time.Time, f *Franchise, w Window) ExpiryStatus {
	eff := EffectiveRecord(f)
	return ExpiryStatus{
		IsExpired:       IsExpired(cal, now, f),
		CanRenew:        CanRenew(cal, now, f, w),
		EffectiveStatus: eff.Record.Status,
		EffectiveSource: eff.Source,
		ExpiryDate:      eff.Record.ExpiresAt,
	}
}

// HoldsPlate reports whether f still claims its plate number, blocking
// another member from registering the same vehicle.
func HoldsPlate(cal calendar.Calendar, now time.Time, f *Franchise, w Window) bool {
	eff := EffectiveRecord(f)
	switch eff.Record.Status {
	case approval.StatusValidated, approval.StatusPaid, approval.StatusRevoked:
		return true
	case approval.StatusApproved:
		return !IsExpired(cal, now, f) || CanRenew(cal, now, f, w)
	case approval.StatusPendingValidation:
		// A pending renewal still rides on an issued franchise.
		return eff.Source == SourceRenewal
	default:
		return eff.Source == SourceRenewal && CanRenew(cal, now, f, w)
	}
}
