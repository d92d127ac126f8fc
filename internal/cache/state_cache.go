// Package cache provides the Redis read-through cache for resolved asset
// states.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/scene-continuity/internal/config"
	"github.com/iliyamo/scene-continuity/internal/continuity"
	"github.com/iliyamo/scene-continuity/internal/model"
)

// StateCache stores resolved states under a per-(branch, asset) generation.
// Invalidate bumps the generation, which orphans every older entry at once;
// orphans expire through their TTL.  Any Redis error is a miss.
type StateCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
	log    *zap.Logger
}

var _ continuity.StateCache = (*StateCache)(nil)

// NewStateCache returns a Redis-backed cache, or continuity.NoopCache when
// caching is disabled or no client is available.
func NewStateCache(rdb *redis.Client, cfg config.StateCacheConfig, log *zap.Logger) continuity.StateCache {
	if rdb == nil || !cfg.Enabled {
		return continuity.NoopCache{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &StateCache{rdb: rdb, ttl: cfg.TTL, prefix: cfg.Prefix, log: log.Named("state_cache")}
}

// GenerationKey is the counter bumped by Invalidate.
func GenerationKey(prefix, branchID, assetID string) string {
	return fmt.Sprintf("%s:gen:%s:%s", prefix, branchID, assetID)
}

// EntryKey addresses one resolved state.
func EntryKey(prefix, branchID, assetID string, gen int64, before int) string {
	return fmt.Sprintf("%s:state:%s:%s:g%d:b%d", prefix, branchID, assetID, gen, before)
}

func (c *StateCache) generation(ctx context.Context, branchID, assetID string) (int64, error) {
	gen, err := c.rdb.Get(ctx, GenerationKey(c.prefix, branchID, assetID)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return gen, err
}

func (c *StateCache) Get(ctx context.Context, branchID, assetID string, before int) (model.AssetState, bool) {
	gen, err := c.generation(ctx, branchID, assetID)
	if err != nil {
		c.log.Debug("generation read failed", zap.Error(err))
		return model.AssetState{}, false
	}
	raw, err := c.rdb.Get(ctx, EntryKey(c.prefix, branchID, assetID, gen, before)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.log.Debug("entry read failed", zap.Error(err))
		}
		return model.AssetState{}, false
	}
	var st model.AssetState
	if err := json.Unmarshal(raw, &st); err != nil {
		c.log.Warn("dropping undecodable cache entry", zap.String("asset_id", assetID), zap.Error(err))
		return model.AssetState{}, false
	}
	st.StatusTags = model.CloneTags(st.StatusTags)
	return st, true
}

func (c *StateCache) Put(ctx context.Context, branchID, assetID string, before int, st model.AssetState) {
	gen, err := c.generation(ctx, branchID, assetID)
	if err != nil {
		return
	}
	raw, err := json.Marshal(st)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, EntryKey(c.prefix, branchID, assetID, gen, before), raw, c.ttl).Err(); err != nil {
		c.log.Debug("entry write failed", zap.Error(err))
	}
}

func (c *StateCache) Invalidate(ctx context.Context, branchID, assetID string) {
	if err := c.rdb.Incr(ctx, GenerationKey(c.prefix, branchID, assetID)).Err(); err != nil {
		// A lost bump leaves stale entries alive until their TTL.
		c.log.Warn("invalidate failed", zap.String("branch_id", branchID), zap.String("asset_id", assetID), zap.Error(err))
	}
}
