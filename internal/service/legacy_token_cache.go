package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// LegacyTokenCache is the distributed cache behind the legacy token rotator.
// Get reports a miss with ok=false and a nil error.
type LegacyTokenCache interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	ListKeysByPrefix(ctx context.Context, prefix string) ([]string, error)
}

type RedisLegacyTokenCache struct {
	client redis.UniversalClient
}

func NewRedisLegacyTokenCache(client redis.UniversalClient) *RedisLegacyTokenCache {
	return &RedisLegacyTokenCache{client: client}
}

func (c *RedisLegacyTokenCache) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (c *RedisLegacyTokenCache) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

func (c *RedisLegacyTokenCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

// ListKeysByPrefix walks the keyspace with SCAN so large databases are not
// blocked the way KEYS would block them.
func (c *RedisLegacyTokenCache) ListKeysByPrefix(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	iter := c.client.Scan(ctx, 0, escapeGlob(prefix)+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	return keys, iter.Err()
}

func escapeGlob(s string) string {
	r := strings.NewReplacer(`\`, `\\`, "*", `\*`, "?", `\?`, "[", `\[`, "]", `\]`)
	return r.Replace(s)
}

type legacyCacheEntry struct {
	value     string
	expiresAt time.Time
}

// InMemoryLegacyTokenCache is process local and does not survive restarts.
type InMemoryLegacyTokenCache struct {
	mu   sync.Mutex
	data map[string]legacyCacheEntry
	now  func() time.Time
}

func NewInMemoryLegacyTokenCache() *InMemoryLegacyTokenCache {
	return &InMemoryLegacyTokenCache{data: map[string]legacyCacheEntry{}, now: time.Now}
}

func (c *InMemoryLegacyTokenCache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.data[key]
	if !ok {
		return "", false, nil
	}
	if !c.now().Before(e.expiresAt) {
		delete(c.data, key)
		return "", false, nil
	}
	return e.value, true, nil
}

func (c *InMemoryLegacyTokenCache) SetWithTTL(_ context.Context, key, value string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = legacyCacheEntry{value: value, expiresAt: c.now().Add(ttl)}
	return nil
}

func (c *InMemoryLegacyTokenCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

func (c *InMemoryLegacyTokenCache) ListKeysByPrefix(_ context.Context, prefix string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	var keys []string
	for k, e := range c.data {
		if !now.Before(e.expiresAt) {
			delete(c.data, k)
			continue
		}
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}
