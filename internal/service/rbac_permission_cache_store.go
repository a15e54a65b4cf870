package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// RBACPermissionCacheStore caches resolved permissions per (user, jti). Keys
// embed a global and a per-user epoch, so invalidation bumps a counter and
// old entries simply stop being addressed.
type RBACPermissionCacheStore interface {
	Get(ctx context.Context, userID uint, jti string) ([]string, bool, error)
	Set(ctx context.Context, userID uint, jti string, permissions []string, ttl time.Duration) error
	InvalidateUser(ctx context.Context, userID uint) error
	InvalidateAll(ctx context.Context) error
}

type permissionCacheEntry struct {
	permissions []string
	expiresAt   time.Time
}

type InMemoryRBACPermissionCacheStore struct {
	mu          sync.Mutex
	data        map[string]permissionCacheEntry
	globalEpoch uint64
	userEpoch   map[uint]uint64
	now         func() time.Time
}

func NewInMemoryRBACPermissionCacheStore() *InMemoryRBACPermissionCacheStore {
	return &InMemoryRBACPermissionCacheStore{
		data:      make(map[string]permissionCacheEntry),
		userEpoch: make(map[uint]uint64),
		now:       time.Now,
	}
}

func (s *InMemoryRBACPermissionCacheStore) Get(_ context.Context, userID uint, jti string) ([]string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := s.keyLocked(userID, jti)
	entry, ok := s.data[key]
	if !ok {
		return nil, false, nil
	}
	if !s.now().Before(entry.expiresAt) {
		delete(s.data, key)
		return nil, false, nil
	}
	return append([]string(nil), entry.permissions...), true, nil
}

func (s *InMemoryRBACPermissionCacheStore) Set(_ context.Context, userID uint, jti string, permissions []string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[s.keyLocked(userID, jti)] = permissionCacheEntry{
		permissions: append([]string(nil), permissions...),
		expiresAt:   s.now().Add(ttl),
	}
	return nil
}

// InvalidateUser also drops the user's entries, since in-process memory has
// no TTL eviction of unreachable keys.
func (s *InMemoryRBACPermissionCacheStore) InvalidateUser(_ context.Context, userID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prefix := fmt.Sprintf(":user:%d:", userID)
	for k := range s.data {
		if strings.Contains(k, prefix) {
			delete(s.data, k)
		}
	}
	s.userEpoch[userID]++
	return nil
}

func (s *InMemoryRBACPermissionCacheStore) InvalidateAll(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = make(map[string]permissionCacheEntry)
	s.globalEpoch++
	return nil
}

func (s *InMemoryRBACPermissionCacheStore) keyLocked(userID uint, jti string) string {
	return permissionCacheKey(s.globalEpoch, s.userEpoch[userID], userID, jti)
}

func permissionCacheKey(globalEpoch, userEpoch uint64, userID uint, jti string) string {
	if jti == "" {
		jti = "none"
	}
	return fmt.Sprintf("g%d:u%d:user:%d:jti:%s", globalEpoch, userEpoch, userID, jti)
}
