package eligibility

import (
	"context"
	"encoding/json"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"

	id "civitas/pkg/domain"
)

// Cache holds recent eligibility snapshots for display reads. Gating
// evaluations never consult it; its only job is keeping the public
// eligibility endpoint cheap.
type Cache interface {
	Get(ctx context.Context, account id.AccountID) (Snapshot, bool)
	Set(ctx context.Context, account id.AccountID, snapshot Snapshot)
	Invalidate(ctx context.Context, account id.AccountID)
}

// MemoryCache is the default TTL cache for deployments without Redis.
type MemoryCache struct {
	cache *gocache.Cache
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{cache: gocache.New(ttl, 2*ttl)}
}

func (c *MemoryCache) Get(_ context.Context, account id.AccountID) (Snapshot, bool) {
	v, ok := c.cache.Get(account.String())
	if !ok {
		return Snapshot{}, false
	}
	snapshot, ok := v.(Snapshot)
	return snapshot, ok
}

func (c *MemoryCache) Set(_ context.Context, account id.AccountID, snapshot Snapshot) {
	c.cache.SetDefault(account.String(), snapshot)
}

func (c *MemoryCache) Invalidate(_ context.Context, account id.AccountID) {
	c.cache.Delete(account.String())
}

// RedisCache shares snapshots across instances. Failures degrade to cache
// misses; the endpoint recomputes rather than erroring.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func redisKey(account id.AccountID) string {
	return "civitas:eligibility:" + account.String()
}

func (c *RedisCache) Get(ctx context.Context, account id.AccountID) (Snapshot, bool) {
	raw, err := c.client.Get(ctx, redisKey(account)).Bytes()
	if err != nil {
		return Snapshot{}, false
	}
	var snapshot Snapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return Snapshot{}, false
	}
	return snapshot, true
}

func (c *RedisCache) Set(ctx context.Context, account id.AccountID, snapshot Snapshot) {
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, redisKey(account), raw, c.ttl).Err()
}

func (c *RedisCache) Invalidate(ctx context.Context, account id.AccountID) {
	_ = c.client.Del(ctx, redisKey(account)).Err()
}
