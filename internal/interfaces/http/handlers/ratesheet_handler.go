package handlers

import (
	"context"
	"net/http"

	"github.com/turtacn/toda-franchise/internal/domain/ratesheet"
	"github.com/turtacn/toda-franchise/internal/infrastructure/monitoring/logging"
)

// RateSheets is the rate sheet use-case surface.
type RateSheets interface {
	Create(ctx context.Context, in ratesheet.SheetInput) (*ratesheet.RateSheet, error)
	Get(ctx context.Context, id int64) (*ratesheet.RateSheet, error)
	List(ctx context.Context, t ratesheet.FeeType) ([]*ratesheet.RateSheet, error)
	Latest(ctx context.Context) ([]*ratesheet.RateSheet, error)
	History(ctx context.Context, t ratesheet.FeeType) ([]*ratesheet.RateSheet, error)
	Update(ctx context.Context, id int64, in ratesheet.SheetInput) (*ratesheet.RateSheet, error)
	Delete(ctx context.Context, id int64) error
}

// RateSheetHandler serves /rate-sheets.
type RateSheetHandler struct {
	sheets RateSheets
	logger logging.Logger
}

func NewRateSheetHandler(sheets RateSheets, logger logging.Logger) *RateSheetHandler {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &RateSheetHandler{sheets: sheets, logger: logger}
}

func feeTypeParam(r *http.Request, required bool) (ratesheet.FeeType, error) {
	raw := r.URL.Query().Get("fee_type")
	if raw == "" && !required {
		return "", nil
	}
	return ratesheet.ParseFeeType(raw)
}

func nonNil(sheets []*ratesheet.RateSheet) []*ratesheet.RateSheet {
	if sheets == nil {
		return []*ratesheet.RateSheet{}
	}
	return sheets
}

// List handles GET /rate-sheets?fee_type=
func (h *RateSheetHandler) List(w http.ResponseWriter, r *http.Request) {
	t, err := feeTypeParam(r, false)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	sheets, err := h.sheets.List(r.Context(), t)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(sheets))
}

// Latest handles GET /rate-sheets/latest
func (h *RateSheetHandler) Latest(w http.ResponseWriter, r *http.Request) {
	sheets, err := h.sheets.Latest(r.Context())
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(sheets))
}

// History handles GET /rate-sheets/history?fee_type=
func (h *RateSheetHandler) History(w http.ResponseWriter, r *http.Request) {
	t, err := feeTypeParam(r, true)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	sheets, err := h.sheets.History(r.Context(), t)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(sheets))
}

// Get handles GET /rate-sheets/{id}
func (h *RateSheetHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	sheet, err := h.sheets.Get(r.Context(), id)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, sheet)
}

// Create handles POST /rate-sheets
func (h *RateSheetHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in ratesheet.SheetInput
	if err := decodeBody(r, &in); err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	sheet, err := h.sheets.Create(r.Context(), in)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, sheet)
}

// Update handles PUT /rate-sheets/{id}
func (h *RateSheetHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	var in ratesheet.SheetInput
	if err := decodeBody(r, &in); err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	sheet, err := h.sheets.Update(r.Context(), id, in)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, sheet)
}

// Delete handles DELETE /rate-sheets/{id}
func (h *RateSheetHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	if err := h.sheets.Delete(r.Context(), id); err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
