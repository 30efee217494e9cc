package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	appFranchise "github.com/turtacn/toda-franchise/internal/application/franchise"
	"github.com/turtacn/toda-franchise/internal/domain/approval"
	"github.com/turtacn/toda-franchise/internal/domain/calendar"
	"github.com/turtacn/toda-franchise/internal/domain/franchise"
	"github.com/turtacn/toda-franchise/internal/domain/ratesheet"
	"github.com/turtacn/toda-franchise/internal/infrastructure/monitoring/logging"
)

// FranchiseRecords is the record-keeping side of the franchise service.
type FranchiseRecords interface {
	UpdateFranchise(ctx context.Context, ownerID, id int64, in franchise.FranchiseInput, now time.Time) (*franchise.View, error)
	DeleteFranchise(ctx context.Context, ownerID, id int64) error
	GetFranchise(ctx context.Context, id int64, ownerID *int64, now time.Time) (*franchise.View, error)
	ListFranchises(ctx context.Context, now time.Time, opts ...franchise.ListOption) ([]*franchise.View, error)
	GetByPlate(ctx context.Context, plateNo string, now time.Time) (*franchise.View, error)
	GetForTreasurer(ctx context.Context, id int64, now time.Time) (*franchise.View, error)

	UpdateRenewal(ctx context.Context, ownerID, id int64, in franchise.RenewalInput) (*franchise.Renewal, error)
	DeleteRenewal(ctx context.Context, ownerID, id int64) error
	GetRenewal(ctx context.Context, id int64, ownerID *int64) (*franchise.Renewal, error)
}

// FranchiseHandler serves /franchises and /franchise-renewals.
type FranchiseHandler struct {
	lifecycle appFranchise.LifecycleService
	records   FranchiseRecords
	clock     calendar.Clock
	logger    logging.Logger
}

func NewFranchiseHandler(lifecycle appFranchise.LifecycleService, records FranchiseRecords, clock calendar.Clock, logger logging.Logger) *FranchiseHandler {
	if clock == nil {
		clock = calendar.SystemClock()
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &FranchiseHandler{lifecycle: lifecycle, records: records, clock: clock, logger: logger}
}

// FranchiseRequest is the body of franchise create and update.
type FranchiseRequest struct {
	AssociationID              int64  `json:"toda_association_id" validate:"required,gt=0"`
	MVFileNo                   string `json:"mv_file_no" validate:"max=64"`
	PlateNo                    string `json:"plate_no" validate:"required,max=32"`
	VehicleMake                string `json:"vehicle_make" validate:"max=64"`
	VehicleMotorNo             string `json:"vehicle_motor_no" validate:"max=64"`
	VehicleChassisNo           string `json:"vehicle_chassis_no" validate:"max=64"`
	OwnerDriverLicenseNo       string `json:"owner_driver_license_no" validate:"max=64"`
	OwnerDriverLicenseNoImgURL string `json:"owner_driver_license_no_img_url"`
	IsDriverOwner              bool   `json:"is_driver_owner"`
	DriverProfileID            *int64 `json:"driver_profile_id" validate:"omitempty,gt=0"`
	franchise.Documents
}

func (req FranchiseRequest) input() franchise.FranchiseInput {
	return franchise.FranchiseInput{
		AssociationID:              req.AssociationID,
		MVFileNo:                   req.MVFileNo,
		PlateNo:                    req.PlateNo,
		VehicleMake:                req.VehicleMake,
		VehicleMotorNo:             req.VehicleMotorNo,
		VehicleChassisNo:           req.VehicleChassisNo,
		OwnerDriverLicenseNo:       req.OwnerDriverLicenseNo,
		OwnerDriverLicenseNoImgURL: req.OwnerDriverLicenseNoImgURL,
		IsDriverOwner:              req.IsDriverOwner,
		DriverProfileID:            req.DriverProfileID,
		Documents:                  req.Documents,
	}
}

// RenewalRequest is the body of renewal create and update. FranchiseID is
// ignored on update.
type RenewalRequest struct {
	FranchiseID           int64  `json:"franchise_id" validate:"gte=0"`
	AssociationID         int64  `json:"toda_association_id" validate:"required,gt=0"`
	IsDriverOwner         bool   `json:"is_driver_owner"`
	DriverProfileID       *int64 `json:"driver_profile_id" validate:"omitempty,gt=0"`
	DriverLicenseNoImgURL string `json:"driver_license_no_img_url"`
	CtcCedulaImgURL       string `json:"ctc_cedula_img_url"`
	franchise.Documents
}

func (req RenewalRequest) input() franchise.RenewalInput {
	return franchise.RenewalInput{
		FranchiseID:           req.FranchiseID,
		AssociationID:         req.AssociationID,
		IsDriverOwner:         req.IsDriverOwner,
		DriverProfileID:       req.DriverProfileID,
		DriverLicenseNoImgURL: req.DriverLicenseNoImgURL,
		CtcCedulaImgURL:       req.CtcCedulaImgURL,
		Documents:             req.Documents,
	}
}

// TransitionRequest asks for a status change. An empty status advances
// along the happy path.
type TransitionRequest struct {
	Status  string                  `json:"status"`
	Remarks []franchise.RemarkInput `json:"remarks" validate:"dive"`
}

// PaymentRequest records the treasurer's official receipt.
type PaymentRequest struct {
	ORNo string `json:"or_no" validate:"required,max=64"`
}

// RatesResponse is a rate resolution with peso totals.
type RatesResponse struct {
	*ratesheet.Resolution
	RegistrationTotal string `json:"registration_total"`
	RenewalTotal      string `json:"renewal_total"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Franchises
// ─────────────────────────────────────────────────────────────────────────────

// List handles GET /franchises?q=&status=&sort=&order=&limit=&owner_id=
func (h *FranchiseHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := []franchise.ListOption{franchise.WithQuery(q.Get("q"))}

	if scope := ownerScope(r); scope != nil {
		opts = append(opts, franchise.WithOwner(*scope))
	} else if raw := q.Get("owner_id"); raw != "" {
		ownerID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeAppError(w, h.logger, validationErrorf("owner_id", raw))
			return
		}
		opts = append(opts, franchise.WithOwner(ownerID))
	}
	if raw := q.Get("status"); raw != "" {
		statuses, err := approval.ParseStatusList(raw)
		if err != nil {
			writeAppError(w, h.logger, err)
			return
		}
		opts = append(opts, franchise.WithStatuses(statuses...))
	}
	limit, err := queryInt(r, "limit", 100)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	opts = append(opts,
		franchise.WithSort(q.Get("sort"), strings.EqualFold(q.Get("order"), "desc")),
		franchise.WithLimit(limit))

	items, err := h.records.ListFranchises(r.Context(), h.clock.Now(), opts...)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	if items == nil {
		items = []*franchise.View{}
	}
	writeJSON(w, http.StatusOK, items)
}

// Create handles POST /franchises
func (h *FranchiseHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req FranchiseRequest
	if err := decodeBody(r, &req); err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	v, err := h.lifecycle.RegisterFranchise(r.Context(), member(r).ID, req.input())
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

// Get handles GET /franchises/{id}
func (h *FranchiseHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	v, err := h.records.GetFranchise(r.Context(), id, ownerScope(r), h.clock.Now())
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// GetByPlate handles GET /franchises/plate/{plateNo}
func (h *FranchiseHandler) GetByPlate(w http.ResponseWriter, r *http.Request) {
	v, err := h.records.GetByPlate(r.Context(), chiParam(r, "plateNo"), h.clock.Now())
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// Update handles PUT /franchises/{id}
func (h *FranchiseHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	var req FranchiseRequest
	if err := decodeBody(r, &req); err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	v, err := h.records.UpdateFranchise(r.Context(), member(r).ID, id, req.input(), h.clock.Now())
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// Delete handles DELETE /franchises/{id}
func (h *FranchiseHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	if err := h.records.DeleteFranchise(r.Context(), member(r).ID, id); err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Status handles GET /franchises/{id}/status
func (h *FranchiseHandler) Status(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	st, err := h.lifecycle.QueryEffectiveStatus(r.Context(), id)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// Rates handles GET /franchises/{id}/rates
func (h *FranchiseHandler) Rates(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	res, err := h.lifecycle.QueryRates(r.Context(), id)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, RatesResponse{
		Resolution:        res,
		RegistrationTotal: res.Total(ratesheet.FeeTypeRegistration).StringFixed(2),
		RenewalTotal:      res.Total(ratesheet.FeeTypeRenewal).StringFixed(2),
	})
}

// Treasurer handles GET /franchises/{id}/treasurer
func (h *FranchiseHandler) Treasurer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	v, err := h.records.GetForTreasurer(r.Context(), id, h.clock.Now())
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// FranchiseTransition handles PATCH /franchises/{id}/approval-status
func (h *FranchiseHandler) FranchiseTransition(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, franchise.KindFranchise)
}

// FranchisePayment handles PATCH /franchises/{id}/payment
func (h *FranchiseHandler) FranchisePayment(w http.ResponseWriter, r *http.Request) {
	h.payment(w, r, franchise.KindFranchise)
}

// ─────────────────────────────────────────────────────────────────────────────
// Renewals
// ─────────────────────────────────────────────────────────────────────────────

// CreateRenewal handles POST /franchise-renewals
func (h *FranchiseHandler) CreateRenewal(w http.ResponseWriter, r *http.Request) {
	var req RenewalRequest
	if err := decodeBody(r, &req); err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	if req.FranchiseID == 0 {
		writeAppError(w, h.logger, validationErrorf("franchise_id", "0"))
		return
	}
	rn, err := h.lifecycle.FileRenewal(r.Context(), member(r).ID, req.input())
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, rn)
}

// GetRenewal handles GET /franchise-renewals/{id}
func (h *FranchiseHandler) GetRenewal(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	rn, err := h.records.GetRenewal(r.Context(), id, ownerScope(r))
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, rn)
}

// UpdateRenewal handles PUT /franchise-renewals/{id}
func (h *FranchiseHandler) UpdateRenewal(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	var req RenewalRequest
	if err := decodeBody(r, &req); err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	rn, err := h.records.UpdateRenewal(r.Context(), member(r).ID, id, req.input())
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, rn)
}

// DeleteRenewal handles DELETE /franchise-renewals/{id}
func (h *FranchiseHandler) DeleteRenewal(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	if err := h.records.DeleteRenewal(r.Context(), member(r).ID, id); err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RenewalTransition handles PATCH /franchise-renewals/{id}/approval-status
func (h *FranchiseHandler) RenewalTransition(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, franchise.KindRenewal)
}

// RenewalPayment handles PATCH /franchise-renewals/{id}/payment
func (h *FranchiseHandler) RenewalPayment(w http.ResponseWriter, r *http.Request) {
	h.payment(w, r, franchise.KindRenewal)
}

// ─────────────────────────────────────────────────────────────────────────────
// Shared
// ─────────────────────────────────────────────────────────────────────────────

func (h *FranchiseHandler) transition(w http.ResponseWriter, r *http.Request, kind franchise.Kind) {
	id, err := pathID(r, "id")
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	var req TransitionRequest
	if err := decodeBody(r, &req); err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	var to approval.Status
	if strings.TrimSpace(req.Status) != "" {
		if to, err = approval.ParseStatus(req.Status); err != nil {
			writeAppError(w, h.logger, err)
			return
		}
	}
	res, err := h.lifecycle.RequestTransition(r.Context(), franchise.TransitionRequest{
		Kind:    kind,
		ID:      id,
		Status:  to,
		Remarks: req.Remarks,
	})
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *FranchiseHandler) payment(w http.ResponseWriter, r *http.Request, kind franchise.Kind) {
	id, err := pathID(r, "id")
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	var req PaymentRequest
	if err := decodeBody(r, &req); err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	res, err := h.lifecycle.RecordPayment(r.Context(), kind, id, req.ORNo)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
