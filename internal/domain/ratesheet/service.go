package ratesheet

import (
	"context"
	"fmt"
	"strings"

	"github.com/turtacn/toda-franchise/internal/infrastructure/monitoring/logging"
	apperrors "github.com/turtacn/toda-franchise/pkg/errors"
)

// FeeInput is one fee line of a create or update request.
type FeeInput struct {
	Name                           string `json:"name" validate:"required"`
	Amount                         int64  `json:"amount" validate:"gte=0"`
	IsPenalty                      bool   `json:"is_penalty"`
	ActivatePenaltyAfterExpiryDays int    `json:"activate_penalty_after_expiry_days" validate:"gte=0"`
}

// SheetInput carries the writable fields of a rate sheet.
type SheetInput struct {
	Name    string     `json:"name" validate:"required"`
	FeeType FeeType    `json:"fee_type" validate:"required"`
	Fees    []FeeInput `json:"fees" validate:"dive"`
}

func (in SheetInput) fees() []*Fee {
	out := make([]*Fee, 0, len(in.Fees))
	for _, f := range in.Fees {
		out = append(out, &Fee{
			Name:                           strings.TrimSpace(f.Name),
			Amount:                         f.Amount,
			IsPenalty:                      f.IsPenalty,
			ActivatePenaltyAfterExpiryDays: f.ActivatePenaltyAfterExpiryDays,
		})
	}
	return out
}

// Service manages rate sheet versions.
type Service struct {
	repo  Repository
	usage UsageChecker
	log   logging.Logger
}

func NewService(repo Repository, usage UsageChecker, log logging.Logger) *Service {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &Service{repo: repo, usage: usage, log: log}
}

func (s *Service) Create(ctx context.Context, in SheetInput) (*RateSheet, error) {
	sheet := &RateSheet{
		Name:    strings.TrimSpace(in.Name),
		FeeType: in.FeeType,
		Fees:    in.fees(),
	}
	if err := sheet.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, sheet); err != nil {
		return nil, err
	}
	s.log.Info("rate sheet created",
		logging.Int64("rate_sheet_id", sheet.ID),
		logging.String("fee_type", string(sheet.FeeType)),
		logging.Int("fees", len(sheet.Fees)))
	return sheet, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*RateSheet, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, t FeeType) ([]*RateSheet, error) {
	if t != "" && !t.IsValid() {
		return nil, apperrors.Validation("unknown fee type").WithDetail(string(t))
	}
	return s.repo.List(ctx, t)
}

// Latest returns the newest sheet of each fee type. Types without a sheet
// are omitted.
func (s *Service) Latest(ctx context.Context) ([]*RateSheet, error) {
	var out []*RateSheet
	for _, t := range []FeeType{FeeTypeRegistration, FeeTypeRenewal} {
		sheet, err := s.repo.Latest(ctx, t, nil)
		if err != nil {
			if apperrors.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		out = append(out, sheet)
	}
	return out, nil
}

// History returns every version of a fee type, newest first.
func (s *Service) History(ctx context.Context, t FeeType) ([]*RateSheet, error) {
	if !t.IsValid() {
		return nil, apperrors.Validation("unknown fee type").WithDetail(string(t))
	}
	return s.repo.List(ctx, t)
}

// Update rewrites a sheet that has not yet priced an approved record. The
// fee type is fixed at creation.
func (s *Service) Update(ctx context.Context, id int64, in SheetInput) (*RateSheet, error) {
	sheet, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.FeeType != "" && in.FeeType != sheet.FeeType {
		return nil, apperrors.Validation("fee type cannot be changed").WithDetail(string(in.FeeType))
	}
	if err := s.ensureUnlocked(ctx, sheet); err != nil {
		return nil, err
	}
	sheet.Name = strings.TrimSpace(in.Name)
	sheet.Fees = in.fees()
	if err := sheet.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, sheet); err != nil {
		return nil, err
	}
	s.log.Info("rate sheet updated", logging.Int64("rate_sheet_id", sheet.ID))
	return sheet, nil
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	sheet, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.ensureUnlocked(ctx, sheet); err != nil {
		return err
	}
	if err := s.repo.SoftDelete(ctx, id); err != nil {
		return err
	}
	s.log.Info("rate sheet deleted", logging.Int64("rate_sheet_id", id))
	return nil
}

// ensureUnlocked rejects changes to a sheet once a record approved after its
// creation may have been priced by it.
func (s *Service) ensureUnlocked(ctx context.Context, sheet *RateSheet) error {
	if s.usage == nil {
		return nil
	}
	used, err := s.usage.ApprovedSince(ctx, sheet.FeeType, sheet.CreatedAt)
	if err != nil {
		return err
	}
	if used {
		return apperrors.New(apperrors.ErrCodeRateSheetLocked, "rate sheet is locked").
			WithDetail(fmt.Sprintf("rate_sheet_id=%d", sheet.ID))
	}
	return nil
}
