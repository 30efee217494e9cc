package franchise

import (
	"context"

	"github.com/turtacn/toda-franchise/internal/domain/approval"
)

// ListOptions filters franchise listings.
type ListOptions struct {
	OwnerID *int64
	IDs     []int64
	Query   string
	// Statuses filters on the effective record and is applied after loading.
	Statuses []approval.Status
	SortBy   string
	SortDesc bool
	Limit    int
}

// ListOption defines a functional option for franchise listings.
type ListOption func(*ListOptions)

func WithOwner(ownerID int64) ListOption {
	return func(o *ListOptions) { o.OwnerID = &ownerID }
}

func WithIDs(ids ...int64) ListOption {
	return func(o *ListOptions) { o.IDs = ids }
}

// WithQuery matches plate, make, motor and chassis numbers.
func WithQuery(q string) ListOption {
	return func(o *ListOptions) { o.Query = q }
}

func WithStatuses(statuses ...approval.Status) ListOption {
	return func(o *ListOptions) { o.Statuses = statuses }
}

func WithSort(field string, desc bool) ListOption {
	return func(o *ListOptions) {
		o.SortBy = field
		o.SortDesc = desc
	}
}

func WithLimit(limit int) ListOption {
	return func(o *ListOptions) { o.Limit = limit }
}

// sortable maps accepted sort keys to columns.
var sortable = map[string]string{
	"plate_no":     "plate_no",
	"created_at":   "created_at",
	"updated_at":   "updated_at",
	"vehicle_make": "vehicle_make",
}

// SortColumn returns the column for a sort key, defaulting to plate_no.
func SortColumn(key string) string {
	if col, ok := sortable[key]; ok {
		return col
	}
	return "plate_no"
}

// ApplyListOptions applies the options and clamps the limit.
func ApplyListOptions(opts ...ListOption) ListOptions {
	o := ListOptions{SortBy: "plate_no"}
	for _, opt := range opts {
		opt(&o)
	}
	o.SortBy = SortColumn(o.SortBy)
	if o.Limit < 0 {
		o.Limit = 0
	}
	if o.Limit > 500 {
		o.Limit = 500
	}
	return o
}

// Repository persists franchises, their renewals and status remarks. Reads
// return the franchise with its renewal chain loaded newest first.
type Repository interface {
	WithTx(ctx context.Context, fn func(Repository) error) error

	Create(ctx context.Context, f *Franchise) error
	// Update writes the applicant-editable fields only.
	Update(ctx context.Context, f *Franchise) error
	SoftDelete(ctx context.Context, id int64) error
	GetByID(ctx context.Context, id int64) (*Franchise, error)
	// GetByIDForUpdate locks the franchise row for the enclosing transaction.
	GetByIDForUpdate(ctx context.Context, id int64) (*Franchise, error)
	List(ctx context.Context, opts ...ListOption) ([]*Franchise, error)
	// FindByPlate returns every non-deleted franchise with the plate number.
	FindByPlate(ctx context.Context, plateNo string) ([]*Franchise, error)
	// SaveLifecycle writes the lifecycle columns only if the stored status
	// still equals prev. A lost race is reported as ErrCodeConcurrentModification.
	SaveLifecycle(ctx context.Context, id int64, prev approval.Status, lc Lifecycle) error

	CreateRenewal(ctx context.Context, r *Renewal) error
	UpdateRenewal(ctx context.Context, r *Renewal) error
	SoftDeleteRenewal(ctx context.Context, id int64) error
	GetRenewal(ctx context.Context, id int64) (*Renewal, error)
	GetRenewalForUpdate(ctx context.Context, id int64) (*Renewal, error)
	SaveRenewalLifecycle(ctx context.Context, id int64, prev approval.Status, lc Lifecycle) error

	AddRemarks(ctx context.Context, remarks []*StatusRemark) error
}

// AssociationRepository persists TODA associations.
type AssociationRepository interface {
	Create(ctx context.Context, a *Association) error
	GetByID(ctx context.Context, id int64) (*Association, error)
	List(ctx context.Context, query string) ([]*Association, error)
}
