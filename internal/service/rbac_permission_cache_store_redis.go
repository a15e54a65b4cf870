package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// epochRetention bounds how long an idle epoch counter lives. It must stay far
// above any permission cache TTL: an expired counter restarts at zero, which
// only addresses entries older than the retention.
const epochRetention = 30 * 24 * time.Hour

// RedisRBACPermissionCacheStore shares resolved permissions across instances.
// A user's epoch and entries carry the same hash tag so they live in one
// cluster slot.
type RedisRBACPermissionCacheStore struct {
	client redis.UniversalClient
	prefix string
}

type cachedPermissions struct {
	Permissions []string `json:"p"`
	CachedAt    int64    `json:"t"`
}

func NewRedisRBACPermissionCacheStore(client redis.UniversalClient, prefix string) *RedisRBACPermissionCacheStore {
	if prefix == "" {
		prefix = "authd:perm"
	}
	return &RedisRBACPermissionCacheStore{client: client, prefix: prefix}
}

func (s *RedisRBACPermissionCacheStore) Get(ctx context.Context, userID uint, jti string) ([]string, bool, error) {
	key, err := s.entryKey(ctx, userID, jti)
	if err != nil {
		return nil, false, err
	}
	raw, err := s.client.Get(ctx, key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, false, nil
	case err != nil:
		return nil, false, err
	}
	var entry cachedPermissions
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, false, fmt.Errorf("decode cached permissions: %w", err)
	}
	return entry.Permissions, true, nil
}

func (s *RedisRBACPermissionCacheStore) Set(ctx context.Context, userID uint, jti string, permissions []string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	key, err := s.entryKey(ctx, userID, jti)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(cachedPermissions{Permissions: permissions, CachedAt: time.Now().Unix()})
	if err != nil {
		return err
	}
	return s.client.Set(ctx, key, payload, ttl).Err()
}

func (s *RedisRBACPermissionCacheStore) InvalidateUser(ctx context.Context, userID uint) error {
	return s.bump(ctx, s.userEpochKey(userID))
}

func (s *RedisRBACPermissionCacheStore) InvalidateAll(ctx context.Context) error {
	return s.bump(ctx, s.globalEpochKey())
}

func (s *RedisRBACPermissionCacheStore) bump(ctx context.Context, key string) error {
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Incr(ctx, key)
		p.Expire(ctx, key, epochRetention)
		return nil
	})
	return err
}

// entryKey resolves the current epochs in one round trip.
func (s *RedisRBACPermissionCacheStore) entryKey(ctx context.Context, userID uint, jti string) (string, error) {
	var global, user *redis.StringCmd
	_, err := s.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		global = p.Get(ctx, s.globalEpochKey())
		user = p.Get(ctx, s.userEpochKey(userID))
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", err
	}
	g, err := epochValue(global)
	if err != nil {
		return "", err
	}
	u, err := epochValue(user)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%s:%s", s.prefix, userTag(userID), permissionCacheKey(g, u, userID, jti)), nil
}

func epochValue(cmd *redis.StringCmd) (uint64, error) {
	n, err := cmd.Uint64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("parse cache epoch: %w", err)
	}
	return n, nil
}

func userTag(userID uint) string { return fmt.Sprintf("{u%d}", userID) }

func (s *RedisRBACPermissionCacheStore) globalEpochKey() string {
	return s.prefix + ":epoch"
}

func (s *RedisRBACPermissionCacheStore) userEpochKey(userID uint) string {
	return fmt.Sprintf("%s:%s:epoch", s.prefix, userTag(userID))
}
