package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/toda-franchise/internal/config"
	"github.com/turtacn/toda-franchise/internal/infrastructure/monitoring/logging"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	return NewClientFromRedis(rdb, "tricycle:", logging.NewNopLogger()), mr
}

func TestNewClient(t *testing.T) {
	mr := miniredis.RunT(t)
	c, err := NewClient(context.Background(), config.RedisConfig{Addr: mr.Addr(), KeyPrefix: "tricycle"}, logging.NewNopLogger())
	require.NoError(t, err)
	assert.NoError(t, c.Ping(context.Background()))
	assert.NoError(t, c.Close())
	assert.NoError(t, c.Close())
	assert.ErrorIs(t, c.Ping(context.Background()), ErrClientClosed)
}

func TestNewClient_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewClient(context.Background(), config.RedisConfig{Addr: addr}, logging.NewNopLogger())
	assert.Error(t, err)
}

func TestClient_Key(t *testing.T) {
	c, _ := newTestClient(t)
	assert.Equal(t, "tricycle:lock:mutex:franchise:7", c.Key("lock", "mutex", "franchise:7"))

	bare := NewClientFromRedis(c.Underlying(), "", nil)
	assert.Equal(t, "a:b", bare.Key("a", "b"))
}
