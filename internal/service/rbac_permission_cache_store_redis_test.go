package service

import (
	"context"
	"slices"
	"testing"
	"time"
)

func TestRedisRBACPermissionCacheStore(t *testing.T) {
	ctx := context.Background()
	server, client := startRedis(t)
	store := NewRedisRBACPermissionCacheStore(client, "perm_test")
	perms := []string{"sessions.read", "sessions.revoke"}

	if _, ok, err := store.Get(ctx, 42, "jti-1"); err != nil || ok {
		t.Fatalf("expected clean miss, ok=%v err=%v", ok, err)
	}
	if err := store.Set(ctx, 42, "jti-1", perms, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, ok, err := store.Get(ctx, 42, "jti-1")
	if err != nil || !ok || !slices.Equal(got, perms) {
		t.Fatalf("get after set: %v %v %v", got, ok, err)
	}
	if ttl := server.TTL("perm_test:{u42}:g0:u0:user:42:jti:jti-1"); ttl != time.Minute {
		t.Fatalf("unexpected ttl %s", ttl)
	}

	steps := []struct {
		name       string
		invalidate func() error
	}{
		{"user", func() error { return store.InvalidateUser(ctx, 42) }},
		{"global", func() error { return store.InvalidateAll(ctx) }},
	}
	for _, step := range steps {
		if err := store.Set(ctx, 42, "jti-1", perms, time.Minute); err != nil {
			t.Fatalf("set before %s invalidation: %v", step.name, err)
		}
		if err := step.invalidate(); err != nil {
			t.Fatalf("%s invalidation: %v", step.name, err)
		}
		if _, ok, err := store.Get(ctx, 42, "jti-1"); err != nil || ok {
			t.Fatalf("expected miss after %s invalidation, ok=%v err=%v", step.name, ok, err)
		}
	}
}

func TestRedisRBACPermissionCacheStoreRejectsBadEpoch(t *testing.T) {
	ctx := context.Background()
	server, client := startRedis(t)
	store := NewRedisRBACPermissionCacheStore(client, "")

	if err := server.Set(store.userEpochKey(9), "not-a-number"); err != nil {
		t.Fatalf("seed epoch: %v", err)
	}
	if _, _, err := store.Get(ctx, 9, "jti"); err == nil {
		t.Fatal("expected epoch parse error")
	}
	if _, _, err := store.Get(ctx, 10, "jti"); err != nil {
		t.Fatalf("other users are unaffected: %v", err)
	}
}

func TestRedisRBACPermissionCacheEpochsExpire(t *testing.T) {
	ctx := context.Background()
	server, client := startRedis(t)
	store := NewRedisRBACPermissionCacheStore(client, "")

	if err := store.InvalidateUser(ctx, 7); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if ttl := server.TTL(store.userEpochKey(7)); ttl != epochRetention {
		t.Fatalf("user epoch ttl=%s want %s", ttl, epochRetention)
	}
	if err := store.InvalidateAll(ctx); err != nil {
		t.Fatalf("invalidate all: %v", err)
	}
	if got, _ := server.Get(store.globalEpochKey()); got != "1" {
		t.Fatalf("global epoch=%q want 1", got)
	}
	if ttl := server.TTL(store.globalEpochKey()); ttl != epochRetention {
		t.Fatalf("global epoch ttl=%s", ttl)
	}
}

func TestRedisRBACPermissionCacheStoreUnavailable(t *testing.T) {
	ctx := context.Background()
	server, client := startRedis(t)
	store := NewRedisRBACPermissionCacheStore(client, "")
	server.Close()

	if _, _, err := store.Get(ctx, 1, "jti"); err == nil {
		t.Fatal("expected an error when redis is down")
	}
	if err := store.InvalidateUser(ctx, 1); err == nil {
		t.Fatal("expected invalidation to report the outage")
	}
}
