package ratesheet

import (
	"context"
	"time"
)

// Repository persists rate sheets together with their fees.
type Repository interface {
	// Create inserts the sheet and its fees, assigning IDs.
	Create(ctx context.Context, s *RateSheet) error
	// Update replaces the sheet's name and full fee list.
	Update(ctx context.Context, s *RateSheet) error
	SoftDelete(ctx context.Context, id int64) error
	GetByID(ctx context.Context, id int64) (*RateSheet, error)
	// List returns live sheets of a type (all types when t is empty), newest first.
	List(ctx context.Context, t FeeType) ([]*RateSheet, error)
	SheetFinder
}

// UsageChecker reports whether a sheet of type t has priced an approved
// record, i.e. any approval on or after since.
type UsageChecker interface {
	ApprovedSince(ctx context.Context, t FeeType, since time.Time) (bool, error)
}
