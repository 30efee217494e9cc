package testutil

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/turtacn/toda-franchise/internal/domain/approval"
	"github.com/turtacn/toda-franchise/internal/domain/franchise"
	apperrors "github.com/turtacn/toda-franchise/pkg/errors"
)

// MemFranchiseStore is an in-memory franchise.Repository and
// franchise.AssociationRepository. Reads return copies so callers can
// mutate freely; WithTx does not roll back.
type MemFranchiseStore struct {
	mu           sync.Mutex
	nextID       int64
	franchises   map[int64]*franchise.Franchise
	renewals     map[int64]*franchise.Renewal
	associations map[int64]*franchise.Association
	Remarks      []*franchise.StatusRemark

	// BeforeSaveLifecycle runs just before the conditional status write.
	BeforeSaveLifecycle func(kind franchise.Kind, id int64)
	// Now stamps created_at. Defaults to time.Now.
	Now func() time.Time
}

func NewMemFranchiseStore() *MemFranchiseStore {
	return &MemFranchiseStore{
		franchises:   map[int64]*franchise.Franchise{},
		renewals:     map[int64]*franchise.Renewal{},
		associations: map[int64]*franchise.Association{},
		Now:          time.Now,
	}
}

func (m *MemFranchiseStore) id() int64 {
	m.nextID++
	return m.nextID
}

func copyRenewal(r *franchise.Renewal) *franchise.Renewal {
	c := *r
	c.Remarks = append([]*franchise.StatusRemark(nil), r.Remarks...)
	return &c
}

func (m *MemFranchiseStore) assemble(f *franchise.Franchise) *franchise.Franchise {
	c := *f
	c.Renewals = nil
	for _, r := range m.renewals {
		if r.FranchiseID == f.ID && r.DeletedAt == nil {
			c.Renewals = append(c.Renewals, copyRenewal(r))
		}
	}
	franchise.SortRenewals(c.Renewals)
	c.Remarks = nil
	for _, rm := range m.Remarks {
		if rm.FranchiseID != nil && *rm.FranchiseID == f.ID {
			c.Remarks = append(c.Remarks, rm)
		}
	}
	return &c
}

func franchiseNotFound(id int64) error {
	return apperrors.New(apperrors.ErrCodeFranchiseNotFound, "franchise not found").WithDetail(fmt.Sprintf("id=%d", id))
}

func renewalNotFound(id int64) error {
	return apperrors.New(apperrors.ErrCodeRenewalNotFound, "franchise renewal not found").WithDetail(fmt.Sprintf("id=%d", id))
}

func (m *MemFranchiseStore) WithTx(ctx context.Context, fn func(franchise.Repository) error) error {
	return fn(m)
}

// SeedFranchise stores f as-is, assigning an ID when zero.
func (m *MemFranchiseStore) SeedFranchise(f *franchise.Franchise) *franchise.Franchise {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f.ID == 0 {
		f.ID = m.id()
	}
	c := *f
	c.Renewals = nil
	m.franchises[c.ID] = &c
	for _, r := range f.Renewals {
		if r.ID == 0 {
			r.ID = m.id()
		}
		r.FranchiseID = c.ID
		m.renewals[r.ID] = copyRenewal(r)
	}
	return f
}

// SeedAssociation stores a and returns it with its ID.
func (m *MemFranchiseStore) SeedAssociation(a *franchise.Association) *franchise.Association {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == 0 {
		a.ID = m.id()
	}
	c := *a
	m.associations[c.ID] = &c
	return a
}

func (m *MemFranchiseStore) Create(ctx context.Context, f *franchise.Franchise) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f.ID = m.id()
	f.CreatedAt = m.Now()
	f.UpdatedAt = f.CreatedAt
	c := *f
	m.franchises[f.ID] = &c
	return nil
}

func (m *MemFranchiseStore) Update(ctx context.Context, f *franchise.Franchise) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.franchises[f.ID]
	if !ok || cur.DeletedAt != nil {
		return franchiseNotFound(f.ID)
	}
	lc := cur.Lifecycle
	c := *f
	c.Lifecycle = lc
	c.Renewals = nil
	m.franchises[f.ID] = &c
	return nil
}

func (m *MemFranchiseStore) SoftDelete(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.franchises[id]
	if !ok || cur.DeletedAt != nil {
		return franchiseNotFound(id)
	}
	now := m.Now()
	cur.DeletedAt = &now
	return nil
}

func (m *MemFranchiseStore) GetByID(ctx context.Context, id int64) (*franchise.Franchise, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.franchises[id]
	if !ok || f.DeletedAt != nil {
		return nil, franchiseNotFound(id)
	}
	return m.assemble(f), nil
}

func (m *MemFranchiseStore) GetByIDForUpdate(ctx context.Context, id int64) (*franchise.Franchise, error) {
	return m.GetByID(ctx, id)
}

func (m *MemFranchiseStore) List(ctx context.Context, opts ...franchise.ListOption) ([]*franchise.Franchise, error) {
	o := franchise.ApplyListOptions(opts...)
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*franchise.Franchise, 0)
	for _, f := range m.franchises {
		if f.DeletedAt != nil {
			continue
		}
		if o.OwnerID != nil && f.OwnerID != *o.OwnerID {
			continue
		}
		if q := strings.ToLower(strings.TrimSpace(o.Query)); q != "" &&
			!strings.Contains(f.PlateNo, q) && !strings.Contains(f.VehicleMake, q) &&
			!strings.Contains(f.VehicleMotorNo, q) && !strings.Contains(f.VehicleChassisNo, q) {
			continue
		}
		out = append(out, m.assemble(f))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlateNo < out[j].PlateNo })
	if o.Limit > 0 && len(out) > o.Limit {
		out = out[:o.Limit]
	}
	return out, nil
}

func (m *MemFranchiseStore) FindByPlate(ctx context.Context, plateNo string) ([]*franchise.Franchise, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*franchise.Franchise, 0)
	for _, f := range m.franchises {
		if f.DeletedAt == nil && f.PlateNo == plateNo {
			out = append(out, m.assemble(f))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemFranchiseStore) SaveLifecycle(ctx context.Context, id int64, prev approval.Status, lc franchise.Lifecycle) error {
	if m.BeforeSaveLifecycle != nil {
		m.BeforeSaveLifecycle(franchise.KindFranchise, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.franchises[id]
	if !ok {
		return franchiseNotFound(id)
	}
	if cur.Status != prev {
		return apperrors.New(apperrors.ErrCodeConcurrentModification, "record was modified concurrently")
	}
	cur.Lifecycle = lc
	return nil
}

func (m *MemFranchiseStore) CreateRenewal(ctx context.Context, r *franchise.Renewal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r.ID = m.id()
	r.CreatedAt = m.Now()
	r.UpdatedAt = r.CreatedAt
	m.renewals[r.ID] = copyRenewal(r)
	return nil
}

func (m *MemFranchiseStore) UpdateRenewal(ctx context.Context, r *franchise.Renewal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.renewals[r.ID]
	if !ok || cur.DeletedAt != nil {
		return renewalNotFound(r.ID)
	}
	c := copyRenewal(r)
	c.Lifecycle = cur.Lifecycle
	m.renewals[r.ID] = c
	return nil
}

func (m *MemFranchiseStore) SoftDeleteRenewal(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.renewals[id]
	if !ok || cur.DeletedAt != nil {
		return renewalNotFound(id)
	}
	now := m.Now()
	cur.DeletedAt = &now
	return nil
}

func (m *MemFranchiseStore) GetRenewal(ctx context.Context, id int64) (*franchise.Renewal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.renewals[id]
	if !ok || r.DeletedAt != nil {
		return nil, renewalNotFound(id)
	}
	return copyRenewal(r), nil
}

func (m *MemFranchiseStore) GetRenewalForUpdate(ctx context.Context, id int64) (*franchise.Renewal, error) {
	return m.GetRenewal(ctx, id)
}

func (m *MemFranchiseStore) SaveRenewalLifecycle(ctx context.Context, id int64, prev approval.Status, lc franchise.Lifecycle) error {
	if m.BeforeSaveLifecycle != nil {
		m.BeforeSaveLifecycle(franchise.KindRenewal, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.renewals[id]
	if !ok {
		return renewalNotFound(id)
	}
	if cur.Status != prev {
		return apperrors.New(apperrors.ErrCodeConcurrentModification, "record was modified concurrently")
	}
	cur.Lifecycle = lc
	return nil
}

func (m *MemFranchiseStore) AddRemarks(ctx context.Context, remarks []*franchise.StatusRemark) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rm := range remarks {
		rm.ID = m.id()
		m.Remarks = append(m.Remarks, rm)
	}
	return nil
}

// ForceStatus overwrites a stored status, simulating a concurrent writer.
func (m *MemFranchiseStore) ForceStatus(kind franchise.Kind, id int64, s approval.Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if kind == franchise.KindFranchise {
		if f, ok := m.franchises[id]; ok {
			f.Status = s
		}
		return
	}
	if r, ok := m.renewals[id]; ok {
		r.Status = s
	}
}

// Associations returns an AssociationRepository view of the store.
func (m *MemFranchiseStore) Associations() franchise.AssociationRepository {
	return memAssociations{m}
}

type memAssociations struct{ m *MemFranchiseStore }

func (a memAssociations) Create(ctx context.Context, as *franchise.Association) error {
	a.m.SeedAssociation(as)
	return nil
}

func (a memAssociations) GetByID(ctx context.Context, id int64) (*franchise.Association, error) {
	a.m.mu.Lock()
	defer a.m.mu.Unlock()
	as, ok := a.m.associations[id]
	if !ok {
		return nil, apperrors.New(apperrors.ErrCodeAssociationNotFound, "TODA association not found").
			WithDetail(fmt.Sprintf("id=%d", id))
	}
	c := *as
	return &c, nil
}

func (a memAssociations) List(ctx context.Context, query string) ([]*franchise.Association, error) {
	a.m.mu.Lock()
	defer a.m.mu.Unlock()
	out := make([]*franchise.Association, 0, len(a.m.associations))
	for _, as := range a.m.associations {
		if query == "" || strings.Contains(strings.ToLower(as.Name), strings.ToLower(query)) {
			c := *as
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
