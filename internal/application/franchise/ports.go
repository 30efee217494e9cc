// Package franchise orchestrates the franchise lifecycle use cases: it wraps
// the domain services with record locking, transactions, event publishing
// and metrics.
package franchise

import (
	"context"
	"time"
)

// ---------------------------------------------------------------------------
// Port interfaces
// ---------------------------------------------------------------------------

// EventPublisher emits lifecycle events (kafka.EventPublisher in production).
type EventPublisher interface {
	Publish(ctx context.Context, topic string, key string, payload interface{}) error
}

// Metrics records use-case outcomes (prometheus.AppMetrics in production).
type Metrics interface {
	RecordTransition(kind, to string, err error, d time.Duration)
	RecordPayment(kind string, err error)
	RecordLockWait(kind string, d time.Duration)
	RecordRateResolution(err error, penalty bool)
	RecordEventPublished(topic string, err error)
}

// Locker serialises transitions on one record across service instances.
// The returned release function must be called exactly once.
type Locker interface {
	Acquire(ctx context.Context, name string) (release func(context.Context) error, err error)
}

// CachePort is the subset of the redis cache used for rate sheet lookups.
type CachePort interface {
	GetOrSet(ctx context.Context, key string, dest interface{}, ttl time.Duration, loader func(ctx context.Context) (interface{}, error)) error
	DeleteByPrefix(ctx context.Context, prefix string) (int64, error)
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, string, string, interface{}) error { return nil }

type noopMetrics struct{}

func (noopMetrics) RecordTransition(string, string, error, time.Duration) {}
func (noopMetrics) RecordPayment(string, error)                           {}
func (noopMetrics) RecordLockWait(string, time.Duration)                  {}
func (noopMetrics) RecordRateResolution(error, bool)                      {}
func (noopMetrics) RecordEventPublished(string, error)                    {}

// localLocker is used when no distributed lock is configured; the row lock
// taken inside the transaction still serialises writers.
type localLocker struct{}

func (localLocker) Acquire(context.Context, string) (func(context.Context) error, error) {
	return func(context.Context) error { return nil }, nil
}
