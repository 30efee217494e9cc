package client

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Record kinds accepted by Transition and Pay.
const (
	KindFranchise = "franchise"
	KindRenewal   = "renewal"
)

// Franchise is the subset of a franchise record the SDK exposes.
type Franchise struct {
	ID             int64        `json:"id"`
	OwnerID        int64        `json:"owner_id"`
	AssociationID  int64        `json:"toda_association_id"`
	PlateNo        string       `json:"plate_no"`
	MVFileNo       string       `json:"mv_file_no"`
	IsDriverOwner  bool         `json:"is_driver_owner"`
	ApprovalStatus string       `json:"approval_status"`
	ApprovalDate   *time.Time   `json:"approval_date,omitempty"`
	ExpiryDate     *time.Time   `json:"expiry_date,omitempty"`
	PaymentORNo    string       `json:"payment_or_no,omitempty"`
	Expiry         ExpiryStatus `json:"expiry_status"`
	CreatedAt      time.Time    `json:"created_at"`
}

// ExpiryStatus is the effective status of a franchise and its renewal chain.
type ExpiryStatus struct {
	IsExpired       bool       `json:"is_expired"`
	CanRenew        bool       `json:"can_renew"`
	EffectiveStatus string     `json:"effective_status"`
	EffectiveSource string     `json:"effective_source"`
	ExpiryDate      *time.Time `json:"expiry_date,omitempty"`
}

// Remark is a reviewer note attached to a transition.
type Remark struct {
	FieldName string `json:"field_name,omitempty"`
	Remark    string `json:"remark"`
}

// TransitionResult describes a committed status change.
type TransitionResult struct {
	Kind         string     `json:"kind"`
	ID           int64      `json:"id"`
	FranchiseID  int64      `json:"franchise_id"`
	OwnerID      int64      `json:"owner_id"`
	PlateNo      string     `json:"plate_no"`
	From         string     `json:"from"`
	To           string     `json:"to"`
	ApprovalDate *time.Time `json:"approval_date,omitempty"`
	ExpiryDate   *time.Time `json:"expiry_date,omitempty"`
	OccurredAt   time.Time  `json:"occurred_at"`
}

// Fee is one line of a rate sheet. Amount is in centavos.
type Fee struct {
	ID                             int64  `json:"id"`
	Name                           string `json:"name"`
	Amount                         int64  `json:"amount"`
	IsPenalty                      bool   `json:"is_penalty"`
	ActivatePenaltyAfterExpiryDays int    `json:"activate_penalty_after_expiry_days"`
	IsPenaltyActive                bool   `json:"is_penalty_active"`
}

type RateSheet struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	FeeType   string    `json:"fee_type"`
	Fees      []Fee     `json:"fees"`
	CreatedAt time.Time `json:"created_at"`
}

// Rates is the fee resolution for one franchise with peso totals.
type Rates struct {
	FranchiseID         int64      `json:"franchise_id"`
	Registration        *RateSheet `json:"registration"`
	Renewal             *RateSheet `json:"renewal"`
	RegistrationMissing bool       `json:"registration_missing"`
	RenewalMissing      bool       `json:"renewal_missing"`
	PenaltyDays         *int       `json:"penalty_days,omitempty"`
	ActivePenalty       *Fee       `json:"active_penalty,omitempty"`
	RegistrationTotal   string     `json:"registration_total"`
	RenewalTotal        string     `json:"renewal_total"`
}

// FranchisesClient covers franchise reads and lifecycle actions.
type FranchisesClient struct {
	client *Client
}

func (fc *FranchisesClient) Get(ctx context.Context, id int64) (*Franchise, error) {
	var out Franchise
	if err := fc.client.get(ctx, fmt.Sprintf("/api/v1/franchises/%d", id), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (fc *FranchisesClient) GetByPlate(ctx context.Context, plateNo string) (*Franchise, error) {
	if strings.TrimSpace(plateNo) == "" {
		return nil, fmt.Errorf("client: plate number is required")
	}
	var out Franchise
	if err := fc.client.get(ctx, "/api/v1/franchises/plate/"+url.PathEscape(plateNo), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Status returns the effective status at the server's current time.
func (fc *FranchisesClient) Status(ctx context.Context, id int64) (*ExpiryStatus, error) {
	var out ExpiryStatus
	if err := fc.client.get(ctx, fmt.Sprintf("/api/v1/franchises/%d/status", id), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (fc *FranchisesClient) Rates(ctx context.Context, id int64) (*Rates, error) {
	var out Rates
	if err := fc.client.get(ctx, fmt.Sprintf("/api/v1/franchises/%d/rates", id), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Transition requests a status change on a franchise or renewal. An empty
// status advances the record along the approval path.
func (fc *FranchisesClient) Transition(ctx context.Context, kind string, id int64, status string, remarks ...Remark) (*TransitionResult, error) {
	base, err := kindPath(kind)
	if err != nil {
		return nil, err
	}
	body := struct {
		Status  string   `json:"status,omitempty"`
		Remarks []Remark `json:"remarks,omitempty"`
	}{Status: status, Remarks: remarks}

	var out TransitionResult
	if err := fc.client.patch(ctx, fmt.Sprintf("%s/%d/approval-status", base, id), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Pay records the official receipt number for a validated record.
func (fc *FranchisesClient) Pay(ctx context.Context, kind string, id int64, orNo string) (*TransitionResult, error) {
	base, err := kindPath(kind)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(orNo) == "" {
		return nil, fmt.Errorf("client: official receipt number is required")
	}
	var out TransitionResult
	if err := fc.client.patch(ctx, fmt.Sprintf("%s/%d/payment", base, id), map[string]string{"or_no": orNo}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func kindPath(kind string) (string, error) {
	switch kind {
	case KindFranchise:
		return "/api/v1/franchises", nil
	case KindRenewal:
		return "/api/v1/franchise-renewals", nil
	default:
		return "", fmt.Errorf("client: unknown record kind %q", kind)
	}
}
