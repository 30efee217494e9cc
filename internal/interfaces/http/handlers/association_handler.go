package handlers

import (
	"net/http"
	"strings"

	"github.com/turtacn/toda-franchise/internal/domain/franchise"
	"github.com/turtacn/toda-franchise/internal/infrastructure/monitoring/logging"
)

// AssociationHandler serves /associations. Associations are reference data
// maintained by the franchising office.
type AssociationHandler struct {
	repo   franchise.AssociationRepository
	logger logging.Logger
}

func NewAssociationHandler(repo franchise.AssociationRepository, logger logging.Logger) *AssociationHandler {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &AssociationHandler{repo: repo, logger: logger}
}

type AssociationRequest struct {
	Name                string `json:"name" validate:"required,max=128"`
	AuthorizedRoute     string `json:"authorized_route" validate:"max=256"`
	PresidentFirstName  string `json:"president_first_name" validate:"required,max=64"`
	PresidentLastName   string `json:"president_last_name" validate:"required,max=64"`
	PresidentMiddleName string `json:"president_middle_name" validate:"max=64"`
}

// List handles GET /associations?q=
func (h *AssociationHandler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.repo.List(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	if items == nil {
		items = []*franchise.Association{}
	}
	writeJSON(w, http.StatusOK, items)
}

// Get handles GET /associations/{id}
func (h *AssociationHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	a, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// Create handles POST /associations
func (h *AssociationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req AssociationRequest
	if err := decodeBody(r, &req); err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	a := &franchise.Association{
		Name:                strings.TrimSpace(req.Name),
		AuthorizedRoute:     strings.TrimSpace(req.AuthorizedRoute),
		PresidentFirstName:  strings.TrimSpace(req.PresidentFirstName),
		PresidentLastName:   strings.TrimSpace(req.PresidentLastName),
		PresidentMiddleName: strings.TrimSpace(req.PresidentMiddleName),
	}
	if err := h.repo.Create(r.Context(), a); err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	h.logger.Info("association created", logging.Int64("association_id", a.ID), logging.String("name", a.Name))
	writeJSON(w, http.StatusCreated, a)
}
