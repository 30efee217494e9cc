package franchise

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/turtacn/toda-franchise/internal/domain/approval"
	"github.com/turtacn/toda-franchise/internal/domain/calendar"
	"github.com/turtacn/toda-franchise/internal/infrastructure/monitoring/logging"
	apperrors "github.com/turtacn/toda-franchise/pkg/errors"
)

// View is a franchise together with its derived expiry status.
type View struct {
	*Franchise
	Expiry ExpiryStatus `json:"expiry_status"`
}

// FranchiseInput carries the applicant-supplied registration fields. On
// update, empty strings leave the stored value unchanged.
type FranchiseInput struct {
	AssociationID              int64
	MVFileNo                   string
	PlateNo                    string
	VehicleMake                string
	VehicleMotorNo             string
	VehicleChassisNo           string
	OwnerDriverLicenseNo       string
	OwnerDriverLicenseNoImgURL string
	IsDriverOwner              bool
	DriverProfileID            *int64
	Documents                  Documents
}

// RenewalInput carries the applicant-supplied renewal fields.
type RenewalInput struct {
	FranchiseID           int64
	AssociationID         int64
	IsDriverOwner         bool
	DriverProfileID       *int64
	DriverLicenseNoImgURL string
	CtcCedulaImgURL       string
	Documents             Documents
}

// RemarkInput is a reviewer note submitted with a status change.
type RemarkInput struct {
	FieldName string `json:"field_name"`
	Remark    string `json:"remark" validate:"required"`
}

// TransitionRequest asks for a status change. An empty Status advances along
// the happy path.
type TransitionRequest struct {
	Kind    Kind
	ID      int64
	Status  approval.Status
	Remarks []RemarkInput
}

// TransitionOutcome describes a committed status change.
type TransitionOutcome struct {
	Kind        Kind
	ID          int64
	FranchiseID int64
	OwnerID     int64
	PlateNo     string
	Change      approval.Change
}

// Service implements franchise and renewal use cases on top of a Repository.
type Service struct {
	repo    Repository
	assocs  AssociationRepository
	machine *approval.Machine
	cal     calendar.Calendar
	window  Window
	log     logging.Logger
}

func NewService(repo Repository, assocs AssociationRepository, machine *approval.Machine, cal calendar.Calendar, window Window, log logging.Logger) *Service {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &Service{repo: repo, assocs: assocs, machine: machine, cal: cal, window: window, log: log}
}

// Repository exposes the underlying store so callers can open transactions.
func (s *Service) Repository() Repository { return s.repo }

func (s *Service) view(f *Franchise, now time.Time) *View {
	return &View{Franchise: f, Expiry: Evaluate(s.cal, now, f, s.window)}
}

func (s *Service) requireAssociation(ctx context.Context, id int64) error {
	if _, err := s.assocs.GetByID(ctx, id); err != nil {
		return err
	}
	return nil
}

func requireDriver(isDriverOwner bool, driverProfileID *int64) error {
	if !isDriverOwner && driverProfileID == nil {
		return apperrors.Validation("driver is required")
	}
	return nil
}

// checkPlate rejects a plate that the same member already registered or
// that another record still holds.
func (s *Service) checkPlate(ctx context.Context, plateNo string, ownerID, excludeID int64, now time.Time) error {
	existing, err := s.repo.FindByPlate(ctx, plateNo)
	if err != nil {
		return err
	}
	for _, e := range existing {
		if e.ID == excludeID {
			continue
		}
		if excludeID == 0 && e.OwnerID == ownerID {
			return apperrors.New(apperrors.ErrCodeConflictingRecord, "vehicle already exists").
				WithDetail(fmt.Sprintf("plate_no=%s franchise_id=%d", plateNo, e.ID))
		}
		if HoldsPlate(s.cal, now, e, s.window) {
			return apperrors.New(apperrors.ErrCodeConflictingRecord, "vehicle already registered").
				WithDetail(fmt.Sprintf("plate_no=%s franchise_id=%d", plateNo, e.ID))
		}
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Franchises
// ─────────────────────────────────────────────────────────────────────────────

// CreateFranchise registers a vehicle for ownerID in PendingValidation.
func (s *Service) CreateFranchise(ctx context.Context, ownerID int64, in FranchiseInput, now time.Time) (*View, error) {
	if err := s.requireAssociation(ctx, in.AssociationID); err != nil {
		return nil, err
	}
	if err := requireDriver(in.IsDriverOwner, in.DriverProfileID); err != nil {
		return nil, err
	}

	f := &Franchise{
		OwnerID:                    ownerID,
		AssociationID:              in.AssociationID,
		MVFileNo:                   strings.TrimSpace(in.MVFileNo),
		PlateNo:                    in.PlateNo,
		VehicleMake:                in.VehicleMake,
		VehicleMotorNo:             in.VehicleMotorNo,
		VehicleChassisNo:           in.VehicleChassisNo,
		OwnerDriverLicenseNo:       strings.TrimSpace(in.OwnerDriverLicenseNo),
		OwnerDriverLicenseNoImgURL: in.OwnerDriverLicenseNoImgURL,
		IsDriverOwner:              in.IsDriverOwner,
		Documents:                  in.Documents,
		Lifecycle:                  Lifecycle{Status: approval.StatusPendingValidation},
	}
	if !f.IsDriverOwner {
		f.DriverProfileID = in.DriverProfileID
	}
	f.Normalize()
	if f.PlateNo == "" {
		return nil, apperrors.Validation("plate number is required")
	}

	if err := s.checkPlate(ctx, f.PlateNo, ownerID, 0, now); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, f); err != nil {
		return nil, err
	}

	s.log.Info("franchise registered",
		logging.Int64("franchise_id", f.ID),
		logging.Int64("owner_id", ownerID),
		logging.String("plate_no", f.PlateNo))
	return s.view(f, now), nil
}

func (s *Service) loadOwned(ctx context.Context, id int64, ownerID *int64) (*Franchise, error) {
	f, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if ownerID != nil && f.OwnerID != *ownerID {
		return nil, apperrors.New(apperrors.ErrCodeFranchiseNotFound, "franchise not found").
			WithDetail(fmt.Sprintf("id=%d", id))
	}
	return f, nil
}

func requireEditable(lc *Lifecycle, what string) error {
	if lc.Status != approval.StatusPendingValidation {
		return apperrors.InvalidTransition(what + " can only be changed while pending validation").
			WithDetail(fmt.Sprintf("status=%s", lc.Status))
	}
	return nil
}

// UpdateFranchise edits a pending franchise owned by ownerID.
func (s *Service) UpdateFranchise(ctx context.Context, ownerID, id int64, in FranchiseInput, now time.Time) (*View, error) {
	f, err := s.loadOwned(ctx, id, &ownerID)
	if err != nil {
		return nil, err
	}
	if err := requireEditable(&f.Lifecycle, "franchise"); err != nil {
		return nil, err
	}
	if f.HasRenewals() {
		return nil, apperrors.InvalidTransition("renewed franchise cannot be edited")
	}

	if in.AssociationID != 0 && in.AssociationID != f.AssociationID {
		if err := s.requireAssociation(ctx, in.AssociationID); err != nil {
			return nil, err
		}
		f.AssociationID = in.AssociationID
	}
	setIfPresent(&f.MVFileNo, strings.TrimSpace(in.MVFileNo))
	setIfPresent(&f.PlateNo, in.PlateNo)
	setIfPresent(&f.VehicleMake, in.VehicleMake)
	setIfPresent(&f.VehicleMotorNo, in.VehicleMotorNo)
	setIfPresent(&f.VehicleChassisNo, in.VehicleChassisNo)
	setIfPresent(&f.OwnerDriverLicenseNo, strings.TrimSpace(in.OwnerDriverLicenseNo))
	setIfPresent(&f.OwnerDriverLicenseNoImgURL, in.OwnerDriverLicenseNoImgURL)
	mergeDocuments(&f.Documents, in.Documents)
	f.IsDriverOwner = in.IsDriverOwner
	f.DriverProfileID = nil
	if !in.IsDriverOwner {
		f.DriverProfileID = in.DriverProfileID
	}
	if err := requireDriver(f.IsDriverOwner, f.DriverProfileID); err != nil {
		return nil, err
	}
	f.Normalize()

	if err := s.checkPlate(ctx, f.PlateNo, ownerID, f.ID, now); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, f); err != nil {
		return nil, err
	}
	return s.view(f, now), nil
}

// DeleteFranchise soft-deletes a pending franchise owned by ownerID.
func (s *Service) DeleteFranchise(ctx context.Context, ownerID, id int64) error {
	f, err := s.loadOwned(ctx, id, &ownerID)
	if err != nil {
		return err
	}
	if err := requireEditable(&f.Lifecycle, "franchise"); err != nil {
		return err
	}
	return s.repo.SoftDelete(ctx, id)
}

// GetFranchise returns a franchise with its renewal chain. A non-nil ownerID
// hides other members' records.
func (s *Service) GetFranchise(ctx context.Context, id int64, ownerID *int64, now time.Time) (*View, error) {
	f, err := s.loadOwned(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	return s.view(f, now), nil
}

// EffectiveStatus evaluates the franchise's expiry status at now.
func (s *Service) EffectiveStatus(ctx context.Context, id int64, now time.Time) (*ExpiryStatus, error) {
	f, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	st := Evaluate(s.cal, now, f, s.window)
	return &st, nil
}

// ListFranchises lists franchises. Status filters apply to the effective record.
func (s *Service) ListFranchises(ctx context.Context, now time.Time, opts ...ListOption) ([]*View, error) {
	o := ApplyListOptions(opts...)
	items, err := s.repo.List(ctx, opts...)
	if err != nil {
		return nil, err
	}
	if len(o.Statuses) > 0 {
		items = lo.Filter(items, func(f *Franchise, _ int) bool {
			return lo.Contains(o.Statuses, EffectiveRecord(f).Record.Status)
		})
	}
	return lo.Map(items, func(f *Franchise, _ int) *View { return s.view(f, now) }), nil
}

// GetByPlate finds the franchise holding a plate, skipping rejected and
// canceled registrations.
func (s *Service) GetByPlate(ctx context.Context, plateNo string, now time.Time) (*View, error) {
	plateNo = NormalizeIdentifier(plateNo)
	items, err := s.repo.FindByPlate(ctx, plateNo)
	if err != nil {
		return nil, err
	}
	f, ok := lo.Find(items, func(f *Franchise) bool {
		return f.Status != approval.StatusRejected && f.Status != approval.StatusCanceled
	})
	if !ok {
		return nil, apperrors.New(apperrors.ErrCodeFranchiseNotFound, "franchise not found").
			WithDetail("plate_no=" + plateNo)
	}
	return s.view(f, now), nil
}

// GetForTreasurer returns the franchise only when its effective record is
// awaiting or has received payment.
func (s *Service) GetForTreasurer(ctx context.Context, id int64, now time.Time) (*View, error) {
	f, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	switch EffectiveRecord(f).Record.Status {
	case approval.StatusValidated, approval.StatusPaid:
		return s.view(f, now), nil
	}
	return nil, apperrors.New(apperrors.ErrCodeFranchiseNotFound, "franchise not awaiting payment").
		WithDetail(fmt.Sprintf("id=%d", id))
}

// ─────────────────────────────────────────────────────────────────────────────
// Renewals
// ─────────────────────────────────────────────────────────────────────────────

// CreateRenewal files a renewal against an approved franchise inside its window.
func (s *Service) CreateRenewal(ctx context.Context, ownerID int64, in RenewalInput, now time.Time) (*Renewal, error) {
	if err := s.requireAssociation(ctx, in.AssociationID); err != nil {
		return nil, err
	}
	if err := requireDriver(in.IsDriverOwner, in.DriverProfileID); err != nil {
		return nil, err
	}
	f, err := s.loadOwned(ctx, in.FranchiseID, &ownerID)
	if err != nil {
		return nil, err
	}
	if f.Status != approval.StatusApproved {
		return nil, apperrors.InvalidTransition("franchise not yet approved").
			WithDetail(fmt.Sprintf("franchise_id=%d status=%s", f.ID, f.Status))
	}
	if !CanRenew(s.cal, now, f, s.window) {
		return nil, apperrors.IneligibleWindow("franchise cannot be renewed now").
			WithDetail(fmt.Sprintf("franchise_id=%d", f.ID))
	}

	r := &Renewal{
		FranchiseID:           f.ID,
		AssociationID:         in.AssociationID,
		IsDriverOwner:         in.IsDriverOwner,
		DriverLicenseNoImgURL: in.DriverLicenseNoImgURL,
		CtcCedulaImgURL:       in.CtcCedulaImgURL,
		Documents:             in.Documents,
		Lifecycle:             Lifecycle{Status: approval.StatusPendingValidation},
	}
	if !r.IsDriverOwner {
		r.DriverProfileID = in.DriverProfileID
	}
	if err := s.repo.CreateRenewal(ctx, r); err != nil {
		return nil, err
	}

	s.log.Info("franchise renewal filed",
		logging.Int64("renewal_id", r.ID),
		logging.Int64("franchise_id", f.ID))
	return r, nil
}

func (s *Service) loadOwnedRenewal(ctx context.Context, id int64, ownerID *int64) (*Renewal, *Franchise, error) {
	r, err := s.repo.GetRenewal(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	f, err := s.repo.GetByID(ctx, r.FranchiseID)
	if err != nil {
		return nil, nil, err
	}
	if ownerID != nil && f.OwnerID != *ownerID {
		return nil, nil, apperrors.New(apperrors.ErrCodeRenewalNotFound, "franchise renewal not found").
			WithDetail(fmt.Sprintf("id=%d", id))
	}
	return r, f, nil
}

// UpdateRenewal edits a pending renewal owned by ownerID.
func (s *Service) UpdateRenewal(ctx context.Context, ownerID, id int64, in RenewalInput) (*Renewal, error) {
	r, _, err := s.loadOwnedRenewal(ctx, id, &ownerID)
	if err != nil {
		return nil, err
	}
	if err := requireEditable(&r.Lifecycle, "renewal"); err != nil {
		return nil, err
	}
	if in.AssociationID != 0 && in.AssociationID != r.AssociationID {
		if err := s.requireAssociation(ctx, in.AssociationID); err != nil {
			return nil, err
		}
		r.AssociationID = in.AssociationID
	}
	setIfPresent(&r.DriverLicenseNoImgURL, in.DriverLicenseNoImgURL)
	setIfPresent(&r.CtcCedulaImgURL, in.CtcCedulaImgURL)
	mergeDocuments(&r.Documents, in.Documents)
	r.IsDriverOwner = in.IsDriverOwner
	r.DriverProfileID = nil
	if !in.IsDriverOwner {
		r.DriverProfileID = in.DriverProfileID
	}
	if err := requireDriver(r.IsDriverOwner, r.DriverProfileID); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateRenewal(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// DeleteRenewal soft-deletes a pending renewal owned by ownerID.
func (s *Service) DeleteRenewal(ctx context.Context, ownerID, id int64) error {
	r, _, err := s.loadOwnedRenewal(ctx, id, &ownerID)
	if err != nil {
		return err
	}
	if err := requireEditable(&r.Lifecycle, "renewal"); err != nil {
		return err
	}
	return s.repo.SoftDeleteRenewal(ctx, id)
}

// GetRenewal returns a renewal, optionally scoped to its franchise owner.
func (s *Service) GetRenewal(ctx context.Context, id int64, ownerID *int64) (*Renewal, error) {
	r, _, err := s.loadOwnedRenewal(ctx, id, ownerID)
	return r, err
}

// ─────────────────────────────────────────────────────────────────────────────
// Lifecycle
// ─────────────────────────────────────────────────────────────────────────────

type target struct {
	kind      Kind
	id        int64
	franchise *Franchise
	renewal   *Renewal
	lc        *Lifecycle
}

// loadTarget locks the record and enforces chain ownership: a franchise with
// renewals is frozen and only the newest renewal may move.
func (s *Service) loadTarget(ctx context.Context, tx Repository, kind Kind, id int64) (*target, error) {
	switch kind {
	case KindFranchise:
		f, err := tx.GetByIDForUpdate(ctx, id)
		if err != nil {
			return nil, err
		}
		if f.HasRenewals() {
			return nil, apperrors.InvalidTransition("franchise status is managed by its renewals").
				WithDetail(fmt.Sprintf("franchise_id=%d", id))
		}
		return &target{kind: kind, id: id, franchise: f, lc: &f.Lifecycle}, nil

	case KindRenewal:
		r, err := tx.GetRenewalForUpdate(ctx, id)
		if err != nil {
			return nil, err
		}
		f, err := tx.GetByID(ctx, r.FranchiseID)
		if err != nil {
			return nil, err
		}
		if latest := f.LatestRenewal(); latest == nil || latest.ID != r.ID {
			return nil, apperrors.New(apperrors.ErrCodeRenewalSuperseded, "franchise renewal is not the latest").
				WithDetail(fmt.Sprintf("renewal_id=%d", id))
		}
		return &target{kind: kind, id: id, franchise: f, renewal: r, lc: &r.Lifecycle}, nil
	}
	return nil, apperrors.Validation("unknown record kind").WithDetail(string(kind))
}

// checkWindow requires the renewed record to be inside its renewal window.
// Revocation is exempt.
func (s *Service) checkWindow(t *target, to approval.Status, now time.Time) error {
	if t.renewal == nil {
		return nil
	}
	if !InWindow(s.cal, now, PriorExpiry(t.franchise, t.renewal), s.window) {
		return apperrors.IneligibleWindow("previous franchise period is outside its renewal window").
			WithDetail(fmt.Sprintf("renewal_id=%d", t.id))
	}
	return nil
}

func (s *Service) persist(ctx context.Context, tx Repository, t *target, prev approval.Status, remarks []RemarkInput, now time.Time) error {
	var err error
	if t.kind == KindFranchise {
		err = tx.SaveLifecycle(ctx, t.id, prev, *t.lc)
	} else {
		err = tx.SaveRenewalLifecycle(ctx, t.id, prev, *t.lc)
	}
	if err != nil {
		return err
	}

	rows := make([]*StatusRemark, 0, len(remarks))
	for _, rm := range remarks {
		if strings.TrimSpace(rm.Remark) == "" {
			continue
		}
		row := &StatusRemark{FieldName: rm.FieldName, Remark: rm.Remark, CreatedAt: now}
		id := t.id
		if t.kind == KindFranchise {
			row.FranchiseID = &id
		} else {
			row.RenewalID = &id
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil
	}
	return tx.AddRemarks(ctx, rows)
}

func (t *target) outcome(ch approval.Change) *TransitionOutcome {
	return &TransitionOutcome{
		Kind:        t.kind,
		ID:          t.id,
		FranchiseID: t.franchise.ID,
		OwnerID:     t.franchise.OwnerID,
		PlateNo:     t.franchise.PlateNo,
		Change:      ch,
	}
}

// Transition applies a status change inside tx. The caller owns the
// transaction and must pass the same now to every check.
func (s *Service) Transition(ctx context.Context, tx Repository, req TransitionRequest, now time.Time) (*TransitionOutcome, error) {
	t, err := s.loadTarget(ctx, tx, req.Kind, req.ID)
	if err != nil {
		return nil, err
	}
	ch, err := s.machine.Plan(t.lc, req.Status, now)
	if err != nil {
		return nil, err
	}
	if err := s.checkWindow(t, ch.To, now); err != nil {
		return nil, err
	}
	if _, err := s.machine.Apply(t.lc, ch.To, now); err != nil {
		return nil, err
	}
	if err := s.persist(ctx, tx, t, ch.From, req.Remarks, now); err != nil {
		return nil, err
	}
	return t.outcome(ch), nil
}

// RecordPayment moves a validated record to paid and stores the official
// receipt number.
func (s *Service) RecordPayment(ctx context.Context, tx Repository, kind Kind, id int64, orNo string, now time.Time) (*TransitionOutcome, error) {
	orNo = strings.TrimSpace(orNo)
	if orNo == "" {
		return nil, apperrors.Validation("invalid OR number")
	}
	t, err := s.loadTarget(ctx, tx, kind, id)
	if err != nil {
		return nil, err
	}
	if t.lc.Status != approval.StatusValidated {
		return nil, apperrors.InvalidTransition("payment requires a validated record").
			WithDetail(fmt.Sprintf("status=%s", t.lc.Status))
	}
	ch, err := s.machine.Plan(t.lc, approval.StatusPaid, now)
	if err != nil {
		return nil, err
	}
	if err := s.checkWindow(t, ch.To, now); err != nil {
		return nil, err
	}
	if _, err := s.machine.Apply(t.lc, ch.To, now); err != nil {
		return nil, err
	}
	t.lc.PaymentORNo = orNo
	if err := s.persist(ctx, tx, t, ch.From, nil, now); err != nil {
		return nil, err
	}
	return t.outcome(ch), nil
}

func setIfPresent(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func mergeDocuments(dst *Documents, src Documents) {
	setIfPresent(&dst.VehicleORImgURL, src.VehicleORImgURL)
	setIfPresent(&dst.VehicleCRImgURL, src.VehicleCRImgURL)
	setIfPresent(&dst.TodaAssocMembershipImgURL, src.TodaAssocMembershipImgURL)
	setIfPresent(&dst.BrgyClearanceImgURL, src.BrgyClearanceImgURL)
	setIfPresent(&dst.VoterRegRecordImgURL, src.VoterRegRecordImgURL)
}
