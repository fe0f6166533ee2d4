package sheets

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const branchCacheKey = "scheduler:active_branches"

// BranchLister is the part of the feed the cache needs.
type BranchLister interface {
	ActiveBranches(ctx context.Context) ([]string, error)
}

// BranchCache holds the list of branches open this week. Refresh pulls from
// the feed; Get serves from memory (or Redis, surviving restarts) while the
// data is younger than the caller's staleness bound and only then falls back
// to a synchronous refresh.
type BranchCache struct {
	feed   BranchLister
	rdb    *redis.Client // optional
	logger *zerolog.Logger

	mu        sync.RWMutex
	branches  []string
	fetchedAt time.Time
}

func NewBranchCache(feed BranchLister, rdb *redis.Client, logger *zerolog.Logger) *BranchCache {
	return &BranchCache{
		feed:   feed,
		rdb:    rdb,
		logger: logger,
	}
}

// Refresh fetches the active branches from the feed and stores them.
func (c *BranchCache) Refresh(ctx context.Context) error {
	branches, err := c.feed.ActiveBranches(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.branches = branches
	c.fetchedAt = time.Now()
	c.mu.Unlock()

	if c.rdb != nil {
		data, err := json.Marshal(branches)
		if err == nil {
			if err := c.rdb.Set(ctx, branchCacheKey, data, time.Hour).Err(); err != nil {
				c.logger.Warn().Err(err).Msg("Failed to store branch cache in redis")
			}
		}
	}

	c.logger.Debug().Strs("branches", branches).Msg("Branch cache refreshed")
	return nil
}

// Get returns the cached branches if they are younger than maxStaleness,
// otherwise refreshes synchronously. A failed refresh falls back to Redis and
// finally to whatever stale data is still in memory.
func (c *BranchCache) Get(ctx context.Context, maxStaleness time.Duration) ([]string, error) {
	c.mu.RLock()
	branches, fetchedAt := c.branches, c.fetchedAt
	c.mu.RUnlock()

	if !fetchedAt.IsZero() && time.Since(fetchedAt) < maxStaleness {
		return branches, nil
	}

	if err := c.Refresh(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("Branch refresh failed, serving stale data")

		if fromRedis, ok := c.fromRedis(ctx); ok {
			return fromRedis, nil
		}
		if !fetchedAt.IsZero() {
			return branches, nil
		}
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.branches, nil
}

func (c *BranchCache) fromRedis(ctx context.Context) ([]string, bool) {
	if c.rdb == nil {
		return nil, false
	}
	data, err := c.rdb.Get(ctx, branchCacheKey).Bytes()
	if err != nil {
		return nil, false
	}
	var branches []string
	if err := json.Unmarshal(data, &branches); err != nil {
		return nil, false
	}
	return branches, true
}

// StartRefreshing refreshes the cache on a fixed cadence until ctx is done.
func (c *BranchCache) StartRefreshing(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if err := c.Refresh(ctx); err != nil {
		c.logger.Error().Err(err).Msg("Initial branch refresh failed")
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Refresh(ctx); err != nil {
				c.logger.Error().Err(err).Msg("Branch refresh failed")
			}
		}
	}
}
