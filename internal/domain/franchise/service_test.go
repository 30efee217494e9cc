package franchise_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/turtacn/toda-franchise/internal/domain/approval"
	"github.com/turtacn/toda-franchise/internal/domain/calendar"
	"github.com/turtacn/toda-franchise/internal/domain/franchise"
	"github.com/turtacn/toda-franchise/internal/testutil"
	apperrors "github.com/turtacn/toda-franchise/pkg/errors"
)

var cal = calendar.MustLoad(calendar.DefaultZone)

type ServiceTestSuite struct {
	suite.Suite
	ctx   context.Context
	store *testutil.MemFranchiseStore
	svc   *franchise.Service
	log   *testutil.MockLogger
	assoc *franchise.Association
}

func (s *ServiceTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = testutil.NewMemFranchiseStore()
	s.log = testutil.NewMockLogger()
	machine := approval.NewMachine(cal, approval.DefaultPolicy)
	s.svc = franchise.NewService(s.store, s.store.Associations(), machine, cal, franchise.DefaultWindow, s.log)
	s.assoc = s.store.SeedAssociation(&franchise.Association{Name: "Poblacion TODA"})
}

func (s *ServiceTestSuite) input(plate string) franchise.FranchiseInput {
	return franchise.FranchiseInput{
		AssociationID:    s.assoc.ID,
		MVFileNo:         "MV-001",
		PlateNo:          plate,
		VehicleMake:      "Honda",
		VehicleMotorNo:   "M-1",
		VehicleChassisNo: "C-1",
		IsDriverOwner:    true,
	}
}

// approved seeds an approved franchise owned by ownerID.
func (s *ServiceTestSuite) approved(ownerID int64, plate string, approvedAt time.Time) *franchise.Franchise {
	exp := cal.AddDays(approvedAt, 365)
	return s.store.SeedFranchise(&franchise.Franchise{
		OwnerID:       ownerID,
		AssociationID: s.assoc.ID,
		PlateNo:       plate,
		Lifecycle:     franchise.Lifecycle{Status: approval.StatusApproved, ApprovedAt: &approvedAt, ExpiresAt: &exp},
	})
}

func (s *ServiceTestSuite) transition(kind franchise.Kind, id int64, to approval.Status, now time.Time) (*franchise.TransitionOutcome, error) {
	return s.svc.Transition(s.ctx, s.store, franchise.TransitionRequest{Kind: kind, ID: id, Status: to}, now)
}

func (s *ServiceTestSuite) TestCreateFranchise_NormalizesAndStartsPending() {
	now := cal.Date(2024, 1, 1)
	v, err := s.svc.CreateFranchise(s.ctx, 7, s.input("ABC 123"), now)
	s.Require().NoError(err)

	s.Equal("abc 123", v.PlateNo)
	s.Equal("honda", v.VehicleMake)
	s.Equal(approval.StatusPendingValidation, v.Status)
	s.Nil(v.ApprovedAt)
	s.False(v.Expiry.CanRenew)
	s.True(s.log.HasMessage("info", "franchise registered"))
}

func (s *ServiceTestSuite) TestCreateFranchise_Validation() {
	now := cal.Date(2024, 1, 1)

	in := s.input("abc")
	in.AssociationID = 999
	_, err := s.svc.CreateFranchise(s.ctx, 7, in, now)
	s.True(apperrors.IsCode(err, apperrors.ErrCodeAssociationNotFound))

	in = s.input("abc")
	in.IsDriverOwner = false
	_, err = s.svc.CreateFranchise(s.ctx, 7, in, now)
	s.True(apperrors.IsValidation(err))
}

func (s *ServiceTestSuite) TestCreateFranchise_PlateConflicts() {
	now := cal.Date(2024, 6, 1)
	s.approved(1, "abc123", cal.Date(2024, 1, 1))

	_, err := s.svc.CreateFranchise(s.ctx, 1, s.input("ABC123"), now)
	s.True(apperrors.IsCode(err, apperrors.ErrCodeConflictingRecord), "same member")

	_, err = s.svc.CreateFranchise(s.ctx, 2, s.input("abc123"), now)
	s.True(apperrors.IsCode(err, apperrors.ErrCodeConflictingRecord), "held by another member")

	// Long expired and past its grace period: the plate is free again.
	_, err = s.svc.CreateFranchise(s.ctx, 2, s.input("abc123"), cal.Date(2025, 3, 1))
	s.NoError(err)
}

func (s *ServiceTestSuite) TestUpdateAndDelete_PendingOnly() {
	now := cal.Date(2024, 1, 1)
	v, err := s.svc.CreateFranchise(s.ctx, 7, s.input("abc"), now)
	s.Require().NoError(err)

	in := s.input("")
	in.VehicleMake = "Yamaha"
	updated, err := s.svc.UpdateFranchise(s.ctx, 7, v.ID, in, now)
	s.Require().NoError(err)
	s.Equal("yamaha", updated.VehicleMake)
	s.Equal("abc", updated.PlateNo)

	_, err = s.svc.UpdateFranchise(s.ctx, 8, v.ID, in, now)
	s.True(apperrors.IsNotFound(err), "other members cannot see it")

	_, err = s.transition(franchise.KindFranchise, v.ID, "", now)
	s.Require().NoError(err)

	_, err = s.svc.UpdateFranchise(s.ctx, 7, v.ID, in, now)
	s.True(apperrors.IsInvalidTransition(err))
	s.True(apperrors.IsInvalidTransition(s.svc.DeleteFranchise(s.ctx, 7, v.ID)))
}

func (s *ServiceTestSuite) TestDeleteFranchise() {
	now := cal.Date(2024, 1, 1)
	v, err := s.svc.CreateFranchise(s.ctx, 7, s.input("abc"), now)
	s.Require().NoError(err)

	s.Require().NoError(s.svc.DeleteFranchise(s.ctx, 7, v.ID))
	_, err = s.svc.GetFranchise(s.ctx, v.ID, nil, now)
	s.True(apperrors.IsNotFound(err))
}

func (s *ServiceTestSuite) TestTransition_FullWorkflowWithRemarks() {
	now := cal.Date(2024, 1, 1).Add(10 * time.Hour)
	v, err := s.svc.CreateFranchise(s.ctx, 7, s.input("abc"), now)
	s.Require().NoError(err)

	out, err := s.svc.Transition(s.ctx, s.store, franchise.TransitionRequest{
		Kind:    franchise.KindFranchise,
		ID:      v.ID,
		Remarks: []franchise.RemarkInput{{FieldName: "plate_no", Remark: "checked"}, {Remark: "  "}},
	}, now)
	s.Require().NoError(err)
	s.Equal(approval.StatusValidated, out.Change.To)
	s.Equal(int64(7), out.OwnerID)
	s.Equal("abc", out.PlateNo)
	s.Len(s.store.Remarks, 1)

	out, err = s.svc.RecordPayment(s.ctx, s.store, franchise.KindFranchise, v.ID, " OR-55 ", now)
	s.Require().NoError(err)
	s.Equal(approval.StatusPaid, out.Change.To)

	_, err = s.transition(franchise.KindFranchise, v.ID, approval.StatusApproved, now)
	s.Require().NoError(err)

	got, err := s.svc.GetFranchise(s.ctx, v.ID, nil, now)
	s.Require().NoError(err)
	s.Equal(approval.StatusApproved, got.Status)
	s.Equal("OR-55", got.PaymentORNo)
	s.Require().NotNil(got.ExpiresAt)
	s.True(cal.SameDay(*got.ExpiresAt, cal.Date(2024, 12, 31)))
	s.Len(got.Remarks, 1)
}

func (s *ServiceTestSuite) TestRecordPayment_Guards() {
	now := cal.Date(2024, 1, 1)
	v, err := s.svc.CreateFranchise(s.ctx, 7, s.input("abc"), now)
	s.Require().NoError(err)

	_, err = s.svc.RecordPayment(s.ctx, s.store, franchise.KindFranchise, v.ID, "  ", now)
	s.True(apperrors.IsValidation(err))

	_, err = s.svc.RecordPayment(s.ctx, s.store, franchise.KindFranchise, v.ID, "OR-1", now)
	s.True(apperrors.IsInvalidTransition(err), "pending records cannot be paid")

	_, err = s.svc.RecordPayment(s.ctx, s.store, franchise.KindFranchise, 404, "OR-1", now)
	s.True(apperrors.IsCode(err, apperrors.ErrCodeFranchiseNotFound))
}

func (s *ServiceTestSuite) TestTransition_RevokeFromPaidFails() {
	paidAt := cal.Date(2024, 1, 1)
	f := s.store.SeedFranchise(&franchise.Franchise{
		OwnerID:   1,
		PlateNo:   "abc",
		Lifecycle: franchise.Lifecycle{Status: approval.StatusPaid, ApprovedAt: &paidAt},
	})
	_, err := s.transition(franchise.KindFranchise, f.ID, approval.StatusRevoked, paidAt)
	s.True(apperrors.IsInvalidTransition(err))
}

func (s *ServiceTestSuite) TestTransition_BaseFranchiseFrozenOnceRenewed() {
	f := s.approved(1, "abc", cal.Date(2024, 1, 1))
	_, err := s.svc.CreateRenewal(s.ctx, 1, franchise.RenewalInput{
		FranchiseID: f.ID, AssociationID: s.assoc.ID, IsDriverOwner: true,
	}, cal.Date(2024, 12, 10))
	s.Require().NoError(err)

	_, err = s.transition(franchise.KindFranchise, f.ID, approval.StatusRevoked, cal.Date(2024, 12, 11))
	s.True(apperrors.IsInvalidTransition(err))
}

func (s *ServiceTestSuite) TestCreateRenewal_Guards() {
	f := s.approved(1, "abc", cal.Date(2024, 1, 1))
	in := franchise.RenewalInput{FranchiseID: f.ID, AssociationID: s.assoc.ID, IsDriverOwner: true}

	_, err := s.svc.CreateRenewal(s.ctx, 1, in, cal.Date(2024, 11, 30))
	s.True(apperrors.IsIneligibleWindow(err))

	_, err = s.svc.CreateRenewal(s.ctx, 2, in, cal.Date(2024, 12, 1))
	s.True(apperrors.IsNotFound(err))

	r, err := s.svc.CreateRenewal(s.ctx, 1, in, cal.Date(2024, 12, 1))
	s.Require().NoError(err)
	s.Equal(approval.StatusPendingValidation, r.Status)

	// The pending renewal has no expiry, so a second one is not allowed.
	_, err = s.svc.CreateRenewal(s.ctx, 1, in, cal.Date(2024, 12, 2))
	s.True(apperrors.IsIneligibleWindow(err))

	pending := s.store.SeedFranchise(&franchise.Franchise{OwnerID: 1, PlateNo: "xyz",
		Lifecycle: franchise.Lifecycle{Status: approval.StatusPendingValidation}})
	in.FranchiseID = pending.ID
	_, err = s.svc.CreateRenewal(s.ctx, 1, in, cal.Date(2024, 12, 2))
	s.True(apperrors.IsInvalidTransition(err))
}

func (s *ServiceTestSuite) TestRenewal_WorkflowAndWindow() {
	f := s.approved(1, "abc", cal.Date(2024, 1, 1))
	r, err := s.svc.CreateRenewal(s.ctx, 1, franchise.RenewalInput{
		FranchiseID: f.ID, AssociationID: s.assoc.ID, IsDriverOwner: true,
	}, cal.Date(2024, 12, 20))
	s.Require().NoError(err)

	_, err = s.transition(franchise.KindRenewal, r.ID, "", cal.Date(2024, 12, 21))
	s.Require().NoError(err)
	_, err = s.svc.RecordPayment(s.ctx, s.store, franchise.KindRenewal, r.ID, "OR-9", cal.Date(2024, 12, 22))
	s.Require().NoError(err)

	// Approval after the grace period closed is refused.
	_, err = s.transition(franchise.KindRenewal, r.ID, approval.StatusApproved, cal.Date(2025, 1, 16))
	s.True(apperrors.IsIneligibleWindow(err))

	out, err := s.transition(franchise.KindRenewal, r.ID, approval.StatusApproved, cal.Date(2025, 1, 15))
	s.Require().NoError(err)
	s.Equal(f.ID, out.FranchiseID)
	s.Require().NotNil(out.Change.ExpiryDate)
	s.True(cal.SameDay(*out.Change.ExpiryDate, cal.Date(2026, 1, 15)))

	// Revocation is gated by the same window as every other target.
	_, err = s.transition(franchise.KindRenewal, r.ID, approval.StatusRevoked, cal.Date(2025, 9, 1))
	s.True(apperrors.IsIneligibleWindow(err))

	st, err := s.svc.EffectiveStatus(s.ctx, f.ID, cal.Date(2025, 9, 1))
	s.Require().NoError(err)
	s.Equal(approval.StatusApproved, st.EffectiveStatus)

	_, err = s.transition(franchise.KindRenewal, r.ID, approval.StatusRevoked, cal.Date(2025, 1, 15))
	s.Require().NoError(err)

	st, err = s.svc.EffectiveStatus(s.ctx, f.ID, cal.Date(2025, 1, 15))
	s.Require().NoError(err)
	s.Equal(approval.StatusRevoked, st.EffectiveStatus)
	s.Equal(franchise.SourceRenewal, st.EffectiveSource)
}

func (s *ServiceTestSuite) TestRenewal_OlderRenewalIsSuperseded() {
	approvedAt := cal.Date(2023, 1, 1)
	firstExp := cal.AddDays(cal.Date(2023, 12, 20), 365)
	older := &franchise.Renewal{CreatedAt: cal.Date(2023, 12, 15),
		Lifecycle: franchise.Lifecycle{Status: approval.StatusApproved, ApprovedAt: tp(cal.Date(2023, 12, 20)), ExpiresAt: &firstExp}}
	newer := &franchise.Renewal{CreatedAt: cal.Date(2024, 12, 10),
		Lifecycle: franchise.Lifecycle{Status: approval.StatusPendingValidation}}
	exp := cal.AddDays(approvedAt, 365)
	s.store.SeedFranchise(&franchise.Franchise{
		OwnerID:   1,
		PlateNo:   "abc",
		Lifecycle: franchise.Lifecycle{Status: approval.StatusApproved, ApprovedAt: &approvedAt, ExpiresAt: &exp},
		Renewals:  []*franchise.Renewal{older, newer},
	})

	_, err := s.transition(franchise.KindRenewal, older.ID, approval.StatusRevoked, cal.Date(2024, 12, 11))
	s.Require().Error(err)
	s.True(apperrors.IsCode(err, apperrors.ErrCodeRenewalSuperseded))
	s.True(apperrors.IsNotFound(err))

	_, err = s.transition(franchise.KindRenewal, newer.ID, "", cal.Date(2024, 12, 11))
	s.NoError(err)
}

func (s *ServiceTestSuite) TestTransition_ConcurrentModification() {
	now := cal.Date(2024, 1, 1)
	v, err := s.svc.CreateFranchise(s.ctx, 7, s.input("abc"), now)
	s.Require().NoError(err)

	s.store.BeforeSaveLifecycle = func(kind franchise.Kind, id int64) {
		s.store.ForceStatus(kind, id, approval.StatusCanceled)
	}
	_, err = s.transition(franchise.KindFranchise, v.ID, "", now)
	s.True(apperrors.IsCode(err, apperrors.ErrCodeConcurrentModification))
	s.True(apperrors.IsConflict(err))
}

func (s *ServiceTestSuite) TestTransition_UnknownKind() {
	_, err := s.transition(franchise.Kind("permit"), 1, "", cal.Date(2024, 1, 1))
	s.True(apperrors.IsValidation(err))
}

func (s *ServiceTestSuite) TestListAndLookups() {
	now := cal.Date(2024, 6, 1)
	a := s.approved(1, "aaa", cal.Date(2024, 1, 1))
	b, err := s.svc.CreateFranchise(s.ctx, 2, s.input("bbb"), now)
	s.Require().NoError(err)
	_, err = s.transition(franchise.KindFranchise, b.ID, "", now)
	s.Require().NoError(err)

	all, err := s.svc.ListFranchises(s.ctx, now)
	s.Require().NoError(err)
	s.Len(all, 2)

	validated, err := s.svc.ListFranchises(s.ctx, now, franchise.WithStatuses(approval.StatusValidated))
	s.Require().NoError(err)
	s.Require().Len(validated, 1)
	s.Equal(b.ID, validated[0].ID)

	mine, err := s.svc.ListFranchises(s.ctx, now, franchise.WithOwner(1))
	s.Require().NoError(err)
	s.Require().Len(mine, 1)
	s.Equal(a.ID, mine[0].ID)

	byPlate, err := s.svc.GetByPlate(s.ctx, "AAA", now)
	s.Require().NoError(err)
	s.Equal(a.ID, byPlate.ID)

	_, err = s.svc.GetByPlate(s.ctx, "zzz", now)
	s.True(apperrors.IsNotFound(err))

	_, err = s.svc.GetForTreasurer(s.ctx, a.ID, now)
	s.True(apperrors.IsNotFound(err))
	tv, err := s.svc.GetForTreasurer(s.ctx, b.ID, now)
	s.Require().NoError(err)
	s.Equal(b.ID, tv.ID)

	owner := int64(1)
	_, err = s.svc.GetFranchise(s.ctx, b.ID, &owner, now)
	s.True(apperrors.IsNotFound(err))
}

func (s *ServiceTestSuite) TestRenewalCRUD() {
	f := s.approved(1, "abc", cal.Date(2024, 1, 1))
	r, err := s.svc.CreateRenewal(s.ctx, 1, franchise.RenewalInput{
		FranchiseID: f.ID, AssociationID: s.assoc.ID, IsDriverOwner: true,
	}, cal.Date(2024, 12, 20))
	s.Require().NoError(err)

	updated, err := s.svc.UpdateRenewal(s.ctx, 1, r.ID, franchise.RenewalInput{IsDriverOwner: true, CtcCedulaImgURL: "s3://cedula"})
	s.Require().NoError(err)
	s.Equal("s3://cedula", updated.CtcCedulaImgURL)

	_, err = s.svc.UpdateRenewal(s.ctx, 2, r.ID, franchise.RenewalInput{IsDriverOwner: true})
	s.True(apperrors.IsCode(err, apperrors.ErrCodeRenewalNotFound))

	got, err := s.svc.GetRenewal(s.ctx, r.ID, nil)
	s.Require().NoError(err)
	s.Equal("s3://cedula", got.CtcCedulaImgURL)

	s.Require().NoError(s.svc.DeleteRenewal(s.ctx, 1, r.ID))
	_, err = s.svc.GetRenewal(s.ctx, r.ID, nil)
	s.True(apperrors.IsNotFound(err))
}

func TestServiceTestSuite(t *testing.T) {
	suite.Run(t, new(ServiceTestSuite))
}

func tp(t time.Time) *time.Time { return &t }

func TestApplyListOptions(t *testing.T) {
	o := franchise.ApplyListOptions(franchise.WithSort("drop table", true), franchise.WithLimit(10_000))
	assert.Equal(t, "plate_no", o.SortBy)
	assert.True(t, o.SortDesc)
	assert.Equal(t, 500, o.Limit)

	o = franchise.ApplyListOptions(franchise.WithSort("created_at", false), franchise.WithQuery("abc"), franchise.WithIDs(1, 2))
	require.Equal(t, "created_at", o.SortBy)
	assert.Equal(t, "abc", o.Query)
	assert.Equal(t, []int64{1, 2}, o.IDs)
}
