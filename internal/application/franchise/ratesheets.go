package franchise

import (
	"context"
	"fmt"
	"time"

	"github.com/turtacn/toda-franchise/internal/domain/ratesheet"
	"github.com/turtacn/toda-franchise/internal/infrastructure/monitoring/logging"
)

const (
	rateSheetCachePrefix = "ratesheet:"
	defaultSheetCacheTTL = 10 * time.Minute
)

// CacheMetrics records cache hits and misses.
type CacheMetrics interface {
	RecordCacheAccess(cache string, hit bool)
}

// CachedSheetFinder memoises SheetFinder.Latest in redis. Entries are keyed
// by fee type and cutoff and dropped on every rate sheet write.
type CachedSheetFinder struct {
	next    ratesheet.SheetFinder
	cache   CachePort
	ttl     time.Duration
	metrics CacheMetrics
	logger  logging.Logger
}

func NewCachedSheetFinder(next ratesheet.SheetFinder, cache CachePort, ttl time.Duration, metrics CacheMetrics, logger logging.Logger) *CachedSheetFinder {
	if ttl <= 0 {
		ttl = defaultSheetCacheTTL
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &CachedSheetFinder{next: next, cache: cache, ttl: ttl, metrics: metrics, logger: logger}
}

func sheetCacheKey(t ratesheet.FeeType, asOf *time.Time) string {
	if asOf == nil {
		return fmt.Sprintf("%slatest:%s:now", rateSheetCachePrefix, t)
	}
	return fmt.Sprintf("%slatest:%s:%d", rateSheetCachePrefix, t, asOf.UnixNano())
}

func (c *CachedSheetFinder) Latest(ctx context.Context, t ratesheet.FeeType, asOf *time.Time) (*ratesheet.RateSheet, error) {
	hit := true
	var sheet ratesheet.RateSheet
	err := c.cache.GetOrSet(ctx, sheetCacheKey(t, asOf), &sheet, c.ttl, func(ctx context.Context) (interface{}, error) {
		hit = false
		return c.next.Latest(ctx, t, asOf)
	})
	if c.metrics != nil {
		c.metrics.RecordCacheAccess("rate_sheet", hit)
	}
	if err != nil {
		return nil, err
	}
	return &sheet, nil
}

// Invalidate drops every cached lookup.
func (c *CachedSheetFinder) Invalidate(ctx context.Context) {
	n, err := c.cache.DeleteByPrefix(ctx, rateSheetCachePrefix)
	if err != nil {
		c.logger.Warn("failed to invalidate rate sheet cache", logging.Err(err))
		return
	}
	c.logger.Debug("rate sheet cache invalidated", logging.Int64("keys", n))
}

// Invalidator is notified after rate sheet writes.
type Invalidator interface {
	Invalidate(ctx context.Context)
}

// RateSheetService wraps the rate sheet domain service and invalidates
// cached lookups after every successful write.
type RateSheetService struct {
	*ratesheet.Service
	invalidators []Invalidator
}

func NewRateSheetService(svc *ratesheet.Service, invalidators ...Invalidator) *RateSheetService {
	return &RateSheetService{Service: svc, invalidators: invalidators}
}

func (s *RateSheetService) invalidate(ctx context.Context) {
	for _, inv := range s.invalidators {
		inv.Invalidate(ctx)
	}
}

func (s *RateSheetService) Create(ctx context.Context, in ratesheet.SheetInput) (*ratesheet.RateSheet, error) {
	sheet, err := s.Service.Create(ctx, in)
	if err == nil {
		s.invalidate(ctx)
	}
	return sheet, err
}

func (s *RateSheetService) Update(ctx context.Context, id int64, in ratesheet.SheetInput) (*ratesheet.RateSheet, error) {
	sheet, err := s.Service.Update(ctx, id, in)
	if err == nil {
		s.invalidate(ctx)
	}
	return sheet, err
}

func (s *RateSheetService) Delete(ctx context.Context, id int64) error {
	err := s.Service.Delete(ctx, id)
	if err == nil {
		s.invalidate(ctx)
	}
	return err
}
