package redis

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/suite"

	"github.com/turtacn/toda-franchise/internal/infrastructure/monitoring/logging"
)

type CacheTestSuite struct {
	suite.Suite
	mr    *miniredis.Miniredis
	cache Cache
	ctx   context.Context
}

type cachedSheet struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

func (s *CacheTestSuite) SetupTest() {
	var client *Client
	client, s.mr = newTestClient(s.T())
	s.cache = NewRedisCache(client, logging.NewNopLogger(), WithDefaultTTL(time.Minute))
	s.ctx = context.Background()
}

func (s *CacheTestSuite) TestSetGet() {
	s.Require().NoError(s.cache.Set(s.ctx, "ratesheet:latest:franchise-renewal", cachedSheet{ID: 3, Name: "2024"}, 0))
	s.True(s.mr.Exists("tricycle:cache:ratesheet:latest:franchise-renewal"))

	var got cachedSheet
	s.Require().NoError(s.cache.Get(s.ctx, "ratesheet:latest:franchise-renewal", &got))
	s.Equal(cachedSheet{ID: 3, Name: "2024"}, got)
}

func (s *CacheTestSuite) TestGet_Miss() {
	var got cachedSheet
	s.ErrorIs(s.cache.Get(s.ctx, "absent", &got), ErrCacheMiss)
}

func (s *CacheTestSuite) TestTTLExpires() {
	s.Require().NoError(s.cache.Set(s.ctx, "k", cachedSheet{ID: 1}, time.Second))
	s.mr.FastForward(2 * time.Second)

	var got cachedSheet
	s.ErrorIs(s.cache.Get(s.ctx, "k", &got), ErrCacheMiss)
}

func (s *CacheTestSuite) TestGetOrSet() {
	var calls int32
	loader := func(ctx context.Context) (interface{}, error) {
		atomic.AddInt32(&calls, 1)
		return cachedSheet{ID: 9, Name: "loaded"}, nil
	}

	var first, second cachedSheet
	s.Require().NoError(s.cache.GetOrSet(s.ctx, "k", &first, 0, loader))
	s.Require().NoError(s.cache.GetOrSet(s.ctx, "k", &second, 0, loader))
	s.Equal("loaded", first.Name)
	s.Equal(first, second)
	s.Equal(int32(1), atomic.LoadInt32(&calls))
}

func (s *CacheTestSuite) TestGetOrSet_LoaderError() {
	boom := errors.New("boom")
	var got cachedSheet
	err := s.cache.GetOrSet(s.ctx, "k", &got, 0, func(ctx context.Context) (interface{}, error) { return nil, boom })
	s.ErrorIs(err, boom)
	s.False(s.mr.Exists("tricycle:cache:k"))
}

func (s *CacheTestSuite) TestDeleteAndDeleteByPrefix() {
	s.Require().NoError(s.cache.Set(s.ctx, "ratesheet:a", 1, 0))
	s.Require().NoError(s.cache.Set(s.ctx, "ratesheet:b", 2, 0))
	s.Require().NoError(s.cache.Set(s.ctx, "other", 3, 0))

	n, err := s.cache.DeleteByPrefix(s.ctx, "ratesheet:")
	s.Require().NoError(err)
	s.Equal(int64(2), n)
	s.True(s.mr.Exists("tricycle:cache:other"))

	s.Require().NoError(s.cache.Delete(s.ctx, "other"))
	s.False(s.mr.Exists("tricycle:cache:other"))
	s.NoError(s.cache.Delete(s.ctx))
}

func TestCacheTestSuite(t *testing.T) {
	suite.Run(t, new(CacheTestSuite))
}
