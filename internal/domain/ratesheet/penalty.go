package ratesheet

import (
	"fmt"
	"sort"

	"github.com/samber/lo"

	apperrors "github.com/turtacn/toda-franchise/pkg/errors"
)

// SelectPenalty returns the penalty tier with the largest threshold not
// exceeding diffDays, or nil when no tier qualifies. Ties on the threshold go
// to the lower fee ID.
func SelectPenalty(fees []*Fee, diffDays int) *Fee {
	tiers := lo.Filter(fees, func(f *Fee, _ int) bool {
		return f.IsPenalty && f.ActivatePenaltyAfterExpiryDays <= diffDays
	})
	if len(tiers) == 0 {
		return nil
	}
	sort.SliceStable(tiers, func(i, j int) bool {
		if tiers[i].ActivatePenaltyAfterExpiryDays == tiers[j].ActivatePenaltyAfterExpiryDays {
			return tiers[i].ID < tiers[j].ID
		}
		return tiers[i].ActivatePenaltyAfterExpiryDays > tiers[j].ActivatePenaltyAfterExpiryDays
	})
	return tiers[0]
}

// MarkPenalty returns a copy of sheet with at most one penalty flagged active.
func MarkPenalty(sheet *RateSheet, diffDays int) (*RateSheet, *Fee, error) {
	out := sheet.Clone()
	chosen := SelectPenalty(out.Fees, diffDays)
	if chosen == nil {
		return out, nil, nil
	}
	fee, ok := lo.Find(out.Fees, func(f *Fee) bool { return f.ID == chosen.ID })
	if !ok {
		return nil, nil, apperrors.New(apperrors.ErrCodeRateSheetFeeNotFound, "rate sheet fee not found").
			WithDetail(fmt.Sprintf("fee_id=%d", chosen.ID))
	}
	fee.IsPenaltyActive = true
	return out, fee, nil
}
