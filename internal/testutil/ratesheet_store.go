package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/turtacn/toda-franchise/internal/domain/ratesheet"
	apperrors "github.com/turtacn/toda-franchise/pkg/errors"
)

// MemRateSheetStore is an in-memory ratesheet.Repository. It also serves as
// a ratesheet.UsageChecker driven by the Used field.
type MemRateSheetStore struct {
	mu     sync.Mutex
	nextID int64
	sheets map[int64]*ratesheet.RateSheet

	// Used is returned by ApprovedSince.
	Used bool
	Now  func() time.Time
}

func NewMemRateSheetStore() *MemRateSheetStore {
	return &MemRateSheetStore{sheets: map[int64]*ratesheet.RateSheet{}, Now: time.Now}
}

func (m *MemRateSheetStore) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *MemRateSheetStore) assignFeeIDs(s *ratesheet.RateSheet) {
	for _, f := range s.Fees {
		f.ID = m.id()
		f.RateSheetID = s.ID
	}
}

func sheetNotFound(detail string) error {
	return apperrors.New(apperrors.ErrCodeRateSheetNotFound, "rate sheet not found").WithDetail(detail)
}

// Seed stores s as given, keeping its timestamps, and assigns IDs.
func (m *MemRateSheetStore) Seed(s *ratesheet.RateSheet) *ratesheet.RateSheet {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.ID = m.id()
	m.assignFeeIDs(s)
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = s.CreatedAt
	}
	m.sheets[s.ID] = s.Clone()
	return s
}

func (m *MemRateSheetStore) Create(ctx context.Context, s *ratesheet.RateSheet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.ID = m.id()
	m.assignFeeIDs(s)
	s.CreatedAt = m.Now()
	s.UpdatedAt = s.CreatedAt
	m.sheets[s.ID] = s.Clone()
	return nil
}

func (m *MemRateSheetStore) Update(ctx context.Context, s *ratesheet.RateSheet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.sheets[s.ID]
	if !ok || cur.DeletedAt != nil {
		return sheetNotFound(fmt.Sprintf("id=%d", s.ID))
	}
	m.assignFeeIDs(s)
	s.UpdatedAt = m.Now()
	m.sheets[s.ID] = s.Clone()
	return nil
}

func (m *MemRateSheetStore) SoftDelete(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.sheets[id]
	if !ok || cur.DeletedAt != nil {
		return sheetNotFound(fmt.Sprintf("id=%d", id))
	}
	now := m.Now()
	cur.DeletedAt = &now
	return nil
}

func (m *MemRateSheetStore) GetByID(ctx context.Context, id int64) (*ratesheet.RateSheet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.sheets[id]
	if !ok || cur.DeletedAt != nil {
		return nil, sheetNotFound(fmt.Sprintf("id=%d", id))
	}
	return cur.Clone(), nil
}

func (m *MemRateSheetStore) live(t ratesheet.FeeType) []*ratesheet.RateSheet {
	var out []*ratesheet.RateSheet
	for _, s := range m.sheets {
		if s.DeletedAt == nil && (t == "" || s.FeeType == t) {
			out = append(out, s.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (m *MemRateSheetStore) List(ctx context.Context, t ratesheet.FeeType) ([]*ratesheet.RateSheet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live(t), nil
}

func (m *MemRateSheetStore) Latest(ctx context.Context, t ratesheet.FeeType, asOf *time.Time) (*ratesheet.RateSheet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.live(t) {
		if asOf == nil || !s.UpdatedAt.After(*asOf) {
			return s, nil
		}
	}
	return nil, sheetNotFound(string(t))
}

func (m *MemRateSheetStore) ApprovedSince(ctx context.Context, t ratesheet.FeeType, since time.Time) (bool, error) {
	return m.Used, nil
}
