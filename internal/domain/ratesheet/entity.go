// Package ratesheet holds the versioned fee schedules used to price franchise
// registrations and renewals, and resolves which schedule applies to a
// given franchise at a given time.
package ratesheet

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	apperrors "github.com/turtacn/toda-franchise/pkg/errors"
)

// FeeType identifies which transaction a rate sheet prices.
type FeeType string

const (
	FeeTypeRegistration FeeType = "franchise-registration"
	FeeTypeRenewal      FeeType = "franchise-renewal"
)

func (t FeeType) IsValid() bool {
	return t == FeeTypeRegistration || t == FeeTypeRenewal
}

// ParseFeeType parses a fee type string.
func ParseFeeType(raw string) (FeeType, error) {
	t := FeeType(strings.ToLower(strings.TrimSpace(raw)))
	if !t.IsValid() {
		return "", apperrors.Validation("unknown fee type").WithDetail(raw)
	}
	return t, nil
}

// minorUnits is the number of minor currency units per peso.
var minorUnits = decimal.NewFromInt(100)

// Fee is one line of a rate sheet. Amount is in centavos.
type Fee struct {
	ID                             int64  `json:"id"`
	RateSheetID                    int64  `json:"rate_sheet_id"`
	Name                           string `json:"name"`
	Amount                         int64  `json:"amount"`
	IsPenalty                      bool   `json:"is_penalty"`
	ActivatePenaltyAfterExpiryDays int    `json:"activate_penalty_after_expiry_days"`
	// IsPenaltyActive is computed per request and never stored.
	IsPenaltyActive bool `json:"is_penalty_active"`
}

// Pesos returns Amount in major units.
func (f *Fee) Pesos() decimal.Decimal {
	return decimal.NewFromInt(f.Amount).Div(minorUnits)
}

// RateSheet is an immutable-in-practice fee schedule.
type RateSheet struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	FeeType   FeeType    `json:"fee_type"`
	Fees      []*Fee     `json:"fees"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"-"`
}

// Validate checks the sheet before it is stored.
func (s *RateSheet) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return apperrors.Validation("rate sheet name is required")
	}
	if !s.FeeType.IsValid() {
		return apperrors.Validation("unknown fee type").WithDetail(string(s.FeeType))
	}
	for _, f := range s.Fees {
		if strings.TrimSpace(f.Name) == "" {
			return apperrors.Validation("fee name is required")
		}
		if f.Amount < 0 {
			return apperrors.Validation("fee amount must not be negative").WithDetail(f.Name)
		}
		if f.IsPenalty && f.ActivatePenaltyAfterExpiryDays < 0 {
			return apperrors.Validation("penalty threshold must not be negative").WithDetail(f.Name)
		}
	}
	return nil
}

// Clone returns a deep copy so computed flags never leak into shared data.
func (s *RateSheet) Clone() *RateSheet {
	if s == nil {
		return nil
	}
	c := *s
	c.Fees = make([]*Fee, len(s.Fees))
	for i, f := range s.Fees {
		fc := *f
		c.Fees[i] = &fc
	}
	return &c
}

// HasPenalties reports whether any fee is a penalty tier.
func (s *RateSheet) HasPenalties() bool {
	if s == nil {
		return false
	}
	for _, f := range s.Fees {
		if f.IsPenalty {
			return true
		}
	}
	return false
}
