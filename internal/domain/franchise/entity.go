// Package franchise models tricycle franchise registrations, their renewal
// chain and the expiry and renewal-eligibility rules evaluated over them.
package franchise

import (
	"sort"
	"strings"
	"time"

	"github.com/turtacn/toda-franchise/internal/domain/approval"
)

// Kind distinguishes the two record types that share the approval workflow.
type Kind string

const (
	KindFranchise Kind = "franchise"
	KindRenewal   Kind = "renewal"
)

func (k Kind) IsValid() bool { return k == KindFranchise || k == KindRenewal }

// Lifecycle is the approval state embedded in franchises and renewals. It
// implements approval.Record.
type Lifecycle struct {
	Status      approval.Status `json:"approval_status"`
	ApprovedAt  *time.Time      `json:"approval_date,omitempty"`
	ExpiresAt   *time.Time      `json:"expiry_date,omitempty"`
	PaymentORNo string          `json:"payment_or_no,omitempty"`
}

func (l *Lifecycle) ApprovalStatus() approval.Status     { return l.Status }
func (l *Lifecycle) SetApprovalStatus(s approval.Status) { l.Status = s }
func (l *Lifecycle) ApprovalDate() *time.Time            { return l.ApprovedAt }
func (l *Lifecycle) SetApprovalDate(t *time.Time)        { l.ApprovedAt = t }
func (l *Lifecycle) ExpiryDate() *time.Time              { return l.ExpiresAt }
func (l *Lifecycle) SetExpiryDate(t *time.Time)          { l.ExpiresAt = t }

// Documents holds the uploaded document URLs common to both record types.
// The URLs are opaque; upload happens elsewhere.
type Documents struct {
	VehicleORImgURL           string `json:"vehicle_or_img_url"`
	VehicleCRImgURL           string `json:"vehicle_cr_img_url"`
	TodaAssocMembershipImgURL string `json:"toda_assoc_membership_img_url"`
	BrgyClearanceImgURL       string `json:"brgy_clearance_img_url"`
	VoterRegRecordImgURL      string `json:"voter_reg_record_img_url,omitempty"`
}

// Franchise is a vehicle's base registration. Once it has renewals, the
// latest renewal carries the lifecycle.
type Franchise struct {
	ID                         int64   `json:"id"`
	OwnerID                    int64   `json:"owner_id"`
	AssociationID              int64   `json:"toda_association_id"`
	MVFileNo                   string  `json:"mv_file_no"`
	PlateNo                    string  `json:"plate_no"`
	VehicleMake                string  `json:"vehicle_make"`
	VehicleMotorNo             string  `json:"vehicle_motor_no"`
	VehicleChassisNo           string  `json:"vehicle_chassis_no"`
	OwnerDriverLicenseNo       string  `json:"owner_driver_license_no"`
	IsDriverOwner              bool    `json:"is_driver_owner"`
	DriverProfileID            *int64  `json:"driver_profile_id,omitempty"`
	OwnerDriverLicenseNoImgURL string  `json:"owner_driver_license_no_img_url"`
	Documents
	Lifecycle

	Renewals []*Renewal     `json:"renewals,omitempty"`
	Remarks  []*StatusRemark `json:"remarks,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"-"`
}

// Renewal is one period extension of a franchise.
type Renewal struct {
	ID                    int64  `json:"id"`
	FranchiseID           int64  `json:"franchise_id"`
	AssociationID         int64  `json:"toda_association_id"`
	IsDriverOwner         bool   `json:"is_driver_owner"`
	DriverProfileID       *int64 `json:"driver_profile_id,omitempty"`
	DriverLicenseNoImgURL string `json:"driver_license_no_img_url"`
	CtcCedulaImgURL       string `json:"ctc_cedula_img_url"`
	Documents
	Lifecycle

	Remarks []*StatusRemark `json:"remarks,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"-"`
}

// StatusRemark is an append-only note attached to a status change. Exactly
// one of FranchiseID and RenewalID is set.
type StatusRemark struct {
	ID          int64     `json:"id"`
	FranchiseID *int64    `json:"franchise_id,omitempty"`
	RenewalID   *int64    `json:"renewal_id,omitempty"`
	FieldName   string    `json:"field_name,omitempty"`
	Remark      string    `json:"remark"`
	CreatedAt   time.Time `json:"created_at"`
}

// Association is a TODA (tricycle operators and drivers association).
type Association struct {
	ID                  int64     `json:"id"`
	Name                string    `json:"name"`
	AuthorizedRoute     string    `json:"authorized_route,omitempty"`
	PresidentFirstName  string    `json:"president_first_name"`
	PresidentLastName   string    `json:"president_last_name"`
	PresidentMiddleName string    `json:"president_middle_name,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// NormalizeIdentifier lower-cases and trims plate and vehicle identifiers.
func NormalizeIdentifier(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Normalize lower-cases the identifiers that are matched case-insensitively.
func (f *Franchise) Normalize() {
	f.PlateNo = NormalizeIdentifier(f.PlateNo)
	f.VehicleMake = NormalizeIdentifier(f.VehicleMake)
	f.VehicleMotorNo = NormalizeIdentifier(f.VehicleMotorNo)
	f.VehicleChassisNo = NormalizeIdentifier(f.VehicleChassisNo)
}

// SortRenewals orders renewals newest first. Equal creation times fall back
// to the higher ID so the order is total.
func SortRenewals(rs []*Renewal) {
	sort.SliceStable(rs, func(i, j int) bool { return newerRenewal(rs[i], rs[j]) })
}

func newerRenewal(a, b *Renewal) bool {
	if a.CreatedAt.Equal(b.CreatedAt) {
		return a.ID > b.ID
	}
	return a.CreatedAt.After(b.CreatedAt)
}

// LatestRenewal returns the newest renewal or nil. The chain is left in its
// loaded order.
func (f *Franchise) LatestRenewal() *Renewal {
	var latest *Renewal
	for _, r := range f.Renewals {
		if latest == nil || newerRenewal(r, latest) {
			latest = r
		}
	}
	return latest
}

// HasRenewals reports whether the renewal chain owns the lifecycle.
func (f *Franchise) HasRenewals() bool { return len(f.Renewals) > 0 }

// RenewalByID looks a renewal up in the loaded chain.
func (f *Franchise) RenewalByID(id int64) *Renewal {
	for _, r := range f.Renewals {
		if r.ID == id {
			return r
		}
	}
	return nil
}
