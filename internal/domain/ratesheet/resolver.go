package ratesheet

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/turtacn/toda-franchise/internal/domain/approval"
	"github.com/turtacn/toda-franchise/internal/domain/calendar"
	"github.com/turtacn/toda-franchise/internal/domain/franchise"
	apperrors "github.com/turtacn/toda-franchise/pkg/errors"
)

// Subject is what the resolver needs to know about a franchise.
type Subject struct {
	FranchiseID            int64
	RegistrationStatus     approval.Status
	RegistrationApprovedAt *time.Time

	HasRenewal        bool
	RenewalStatus     approval.Status
	RenewalApprovedAt *time.Time
	// PriorExpiry is the expiry the current renewal extends.
	PriorExpiry *time.Time
}

// SubjectOf builds a Subject from a franchise with its renewal chain loaded.
func SubjectOf(f *franchise.Franchise) Subject {
	s := Subject{
		FranchiseID:            f.ID,
		RegistrationStatus:     f.Status,
		RegistrationApprovedAt: f.ApprovedAt,
	}
	if r := f.LatestRenewal(); r != nil {
		s.HasRenewal = true
		s.RenewalStatus = r.Status
		s.RenewalApprovedAt = r.ApprovedAt
		s.PriorExpiry = franchise.PriorExpiry(f, r)
	}
	return s
}

// Resolution is the pair of rate sheets that price a franchise.
type Resolution struct {
	FranchiseID         int64      `json:"franchise_id"`
	Registration        *RateSheet `json:"registration"`
	Renewal             *RateSheet `json:"renewal"`
	RegistrationMissing bool       `json:"registration_missing"`
	RenewalMissing      bool       `json:"renewal_missing"`
	// PenaltyDays is the day difference the penalty tiers were evaluated at.
	PenaltyDays   *int `json:"penalty_days,omitempty"`
	ActivePenalty *Fee `json:"active_penalty,omitempty"`
}

// Sheet returns the resolved sheet for a fee type.
func (r *Resolution) Sheet(t FeeType) *RateSheet {
	if t == FeeTypeRegistration {
		return r.Registration
	}
	return r.Renewal
}

// Total sums the regular fees of a sheet plus its active penalty, in pesos.
func (r *Resolution) Total(t FeeType) decimal.Decimal {
	total := decimal.Zero
	sheet := r.Sheet(t)
	if sheet == nil {
		return total
	}
	for _, f := range sheet.Fees {
		if !f.IsPenalty || f.IsPenaltyActive {
			total = total.Add(f.Pesos())
		}
	}
	return total
}

// SheetFinder looks up the newest sheet of a fee type. A non-nil asOf
// restricts the search to sheets last updated at or before it. A missing
// sheet is a NotFound-class error.
type SheetFinder interface {
	Latest(ctx context.Context, t FeeType, asOf *time.Time) (*RateSheet, error)
}

// Resolver picks the rate sheets and penalty tier that apply to a franchise.
type Resolver struct {
	sheets SheetFinder
	cal    calendar.Calendar
}

func NewResolver(sheets SheetFinder, cal calendar.Calendar) *Resolver {
	return &Resolver{sheets: sheets, cal: cal}
}

// find returns the sheet in force. Settled records are priced by the sheet
// that existed when they were approved.
func (r *Resolver) find(ctx context.Context, t FeeType, status approval.Status, approvedAt *time.Time) (*RateSheet, error) {
	var asOf *time.Time
	if status.IsSettled() && approvedAt != nil {
		asOf = approvedAt
	}
	sheet, err := r.sheets.Latest(ctx, t, asOf)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return sheet, nil
}

// Resolve computes the Resolution for subj at now. Missing sheets are
// reported through the *Missing flags rather than as errors.
func (r *Resolver) Resolve(ctx context.Context, subj Subject, now time.Time) (*Resolution, error) {
	res := &Resolution{FranchiseID: subj.FranchiseID}

	reg, err := r.find(ctx, FeeTypeRegistration, subj.RegistrationStatus, subj.RegistrationApprovedAt)
	if err != nil {
		return nil, err
	}
	res.Registration = reg.Clone()
	res.RegistrationMissing = reg == nil

	ren, err := r.find(ctx, FeeTypeRenewal, subj.RenewalStatus, subj.RenewalApprovedAt)
	if err != nil {
		return nil, err
	}
	res.Renewal = ren.Clone()
	res.RenewalMissing = ren == nil

	if !subj.HasRenewal || !ren.HasPenalties() || subj.PriorExpiry == nil {
		return res, nil
	}

	asOf := now
	if subj.RenewalStatus.IsSettled() && subj.RenewalApprovedAt != nil {
		asOf = *subj.RenewalApprovedAt
	}
	diff := r.cal.DaysBetween(asOf, *subj.PriorExpiry)

	marked, active, err := MarkPenalty(ren, diff)
	if err != nil {
		return nil, err
	}
	res.Renewal = marked
	res.PenaltyDays = &diff
	res.ActivePenalty = active
	return res, nil
}
