package franchise

import (
	"context"

	"github.com/turtacn/toda-franchise/internal/infrastructure/database/redis"
)

type redisLocker struct {
	factory redis.LockFactory
	opts    []redis.LockOption
}

// NewRedisLocker adapts a redis lock factory to Locker. Each Acquire
// creates a fresh mutex so concurrent callers hold distinct owner tokens.
func NewRedisLocker(factory redis.LockFactory, opts ...redis.LockOption) Locker {
	return &redisLocker{factory: factory, opts: opts}
}

func (l *redisLocker) Acquire(ctx context.Context, name string) (func(context.Context) error, error) {
	m := l.factory.NewMutex(name, l.opts...)
	if err := m.Lock(ctx); err != nil {
		return nil, err
	}
	return m.Unlock, nil
}
