package sheets

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingFeed struct {
	mu       sync.Mutex
	branches []string
	err      error
	calls    int
}

func (f *countingFeed) ActiveBranches(_ context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.branches, f.err
}

func (f *countingFeed) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *countingFeed) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func newTestCache(t *testing.T, feed BranchLister) (*BranchCache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	logger := zerolog.New(io.Discard)
	return NewBranchCache(feed, rdb, &logger), mr
}

func TestBranchCacheRefresh(t *testing.T) {
	feed := &countingFeed{branches: []string{"Центральный", "Северный"}}
	cache, mr := newTestCache(t, feed)
	ctx := context.Background()

	require.NoError(t, cache.Refresh(ctx))

	branches, err := cache.Get(ctx, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, []string{"Центральный", "Северный"}, branches)
	assert.Equal(t, 1, feed.callCount(), "a fresh cache serves from memory")

	assert.True(t, mr.Exists("scheduler:active_branches"),
		"refresh mirrors the list into redis")
}

func TestBranchCacheStalenessTriggersRefresh(t *testing.T) {
	feed := &countingFeed{branches: []string{"Центральный"}}
	cache, _ := newTestCache(t, feed)
	ctx := context.Background()

	require.NoError(t, cache.Refresh(ctx))

	// Zero staleness bound: every Get refreshes.
	_, err := cache.Get(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, feed.callCount())
}

func TestBranchCacheFallsBackToRedis(t *testing.T) {
	feed := &countingFeed{branches: []string{"Центральный"}}
	cache, mr := newTestCache(t, feed)
	ctx := context.Background()

	require.NoError(t, cache.Refresh(ctx))

	// A fresh process with the same redis behind it and a dead feed still
	// serves the mirrored list.
	feed2 := &countingFeed{err: errors.New("upstream unavailable")}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	logger := zerolog.New(io.Discard)
	restarted := NewBranchCache(feed2, rdb, &logger)

	branches, err := restarted.Get(ctx, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, []string{"Центральный"}, branches)
}

func TestBranchCacheServesStaleOnFailure(t *testing.T) {
	feed := &countingFeed{branches: []string{"Центральный"}}
	logger := zerolog.New(io.Discard)
	cache := NewBranchCache(feed, nil, &logger)
	ctx := context.Background()

	require.NoError(t, cache.Refresh(ctx))
	feed.fail(errors.New("upstream unavailable"))

	branches, err := cache.Get(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"Центральный"}, branches,
		"stale memory beats an error when the feed is down")
}

func TestBranchCacheEmptyAndFailing(t *testing.T) {
	feed := &countingFeed{err: errors.New("upstream unavailable")}
	logger := zerolog.New(io.Discard)
	cache := NewBranchCache(feed, nil, &logger)

	_, err := cache.Get(context.Background(), time.Minute)
	assert.Error(t, err, "nothing cached and no feed leaves nothing to serve")
}
