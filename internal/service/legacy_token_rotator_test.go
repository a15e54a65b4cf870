package service

import (
	"context"
	"strings"
	"testing"
	"time"
)

func newRotatorForTest(cache LegacyTokenCache, clock *testClock, keep int) *LegacyTokenRotator {
	return NewLegacyTokenRotator(cache, discardLogger(), LegacyTokenConfig{
		StaticToken: "static-legacy-token",
		MaxAge:      24 * time.Hour,
		Keep:        keep,
		Pepper:      "legacy-pepper",
		Now:         clock.Now,
	})
}

func TestLegacyTokenRotatorValidate(t *testing.T) {
	ctx := context.Background()
	_, client := startRedis(t)
	r := newRotatorForTest(NewRedisLegacyTokenCache(client), newTestClock(), 10)

	tests := []struct {
		token string
		want  LegacyValidation
	}{
		{"static-legacy-token", LegacyValidation{Valid: true, Reason: LegacyTokenValid}},
		{"static-legacy-token-x", LegacyValidation{Reason: LegacyTokenInvalidUnknown}},
		{"", LegacyValidation{Reason: LegacyTokenInvalidUnknown}},
	}
	for _, tc := range tests {
		if got := r.Validate(ctx, tc.token); got != tc.want {
			t.Fatalf("Validate(%q) = %+v, want %+v", tc.token, got, tc.want)
		}
	}
}

func TestLegacyTokenRotatorRotateKeepsPreviousUntilMaxAge(t *testing.T) {
	ctx := context.Background()
	server, client := startRedis(t)
	clock := newTestClock()
	r := newRotatorForTest(NewRedisLegacyTokenCache(client), clock, 10)

	next, err := r.Rotate(ctx)
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if next == "static-legacy-token" || r.Current() != next {
		t.Fatalf("rotate did not replace the current token")
	}
	if got := r.Validate(ctx, "static-legacy-token"); !got.Valid {
		t.Fatalf("previous token should still validate: %+v", got)
	}
	if got := r.Validate(ctx, next); !got.Valid {
		t.Fatalf("new token should validate: %+v", got)
	}

	var stored int
	for _, k := range server.Keys() {
		if strings.HasPrefix(k, legacyTokenKeyPrefix) {
			stored++
			if strings.Contains(k, "static-legacy-token") {
				t.Fatalf("raw token used as cache key: %s", k)
			}
			if ttl := server.TTL(k); ttl != 25*time.Hour {
				t.Fatalf("unexpected ttl for %s: %s", k, ttl)
			}
		}
	}
	if stored != 2 {
		t.Fatalf("expected 2 stored tokens, got %d", stored)
	}

	clock.Advance(24*time.Hour + time.Minute)
	if got := r.Validate(ctx, "static-legacy-token"); got.Reason != LegacyTokenInvalidExpired {
		t.Fatalf("expected expired, got %+v", got)
	}
	if got := r.Validate(ctx, next); !got.Valid {
		t.Fatalf("current token must not expire through the cache: %+v", got)
	}
}

func TestLegacyTokenRotatorPrunesToKeep(t *testing.T) {
	ctx := context.Background()
	server, client := startRedis(t)
	clock := newTestClock()
	r := newRotatorForTest(NewRedisLegacyTokenCache(client), clock, 3)

	if err := client.Set(ctx, "unrelated", "1", 0).Err(); err != nil {
		t.Fatalf("seed unrelated key: %v", err)
	}
	var issued []string
	for i := 0; i < 6; i++ {
		clock.Advance(time.Second)
		tok, err := r.Rotate(ctx)
		if err != nil {
			t.Fatalf("rotate %d: %v", i, err)
		}
		issued = append(issued, tok)
	}

	var stored int
	for _, k := range server.Keys() {
		if strings.HasPrefix(k, legacyTokenKeyPrefix) {
			stored++
		}
	}
	if stored != 3 {
		t.Fatalf("expected 3 stored tokens after pruning, got %d", stored)
	}
	if got := r.Validate(ctx, issued[0]); got.Reason != LegacyTokenInvalidUnknown {
		t.Fatalf("pruned token should be unknown: %+v", got)
	}
	if got := r.Validate(ctx, issued[3]); !got.Valid {
		t.Fatalf("recent token should validate: %+v", got)
	}
	if !server.Exists("unrelated") {
		t.Fatal("prune removed a key outside its prefix")
	}
}

func TestLegacyTokenRotatorFallsBackWhenRedisIsDown(t *testing.T) {
	ctx := context.Background()
	server, client := startRedis(t)
	r := newRotatorForTest(NewRedisLegacyTokenCache(client), newTestClock(), 10)

	server.Close()
	next, err := r.Rotate(ctx)
	if err != nil {
		t.Fatalf("rotate with redis down: %v", err)
	}
	if got := r.Validate(ctx, "static-legacy-token"); !got.Valid {
		t.Fatalf("previous token should validate from the local fallback: %+v", got)
	}
	if got := r.Validate(ctx, next); !got.Valid {
		t.Fatalf("current token should validate: %+v", got)
	}
}

func TestLegacyTokenRotatorWithoutCache(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	r := newRotatorForTest(nil, clock, 10)

	if _, err := r.Rotate(ctx); err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if got := r.Validate(ctx, "static-legacy-token"); !got.Valid {
		t.Fatalf("previous token should validate: %+v", got)
	}
	clock.Advance(26 * time.Hour)
	if got := r.Validate(ctx, "static-legacy-token"); got.Reason != LegacyTokenInvalidUnknown {
		t.Fatalf("entry past its ttl should be gone: %+v", got)
	}
}

func TestRedisLegacyTokenCacheListKeysByPrefix(t *testing.T) {
	ctx := context.Background()
	_, client := startRedis(t)
	cache := NewRedisLegacyTokenCache(client)

	for _, k := range []string{"legacy_token:a", "legacy_token:b", "legacy_tokens", "other:a", "legacy*token:c"} {
		if err := cache.SetWithTTL(ctx, k, "1", time.Minute); err != nil {
			t.Fatalf("set %s: %v", k, err)
		}
	}
	keys, err := cache.ListKeysByPrefix(ctx, "legacy_token:")
	if err != nil {
		t.Fatalf("list keys: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("expected 2 keys, got %v", keys)
	}

	if err := cache.Delete(ctx, "legacy_token:a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, err := cache.Get(ctx, "legacy_token:a"); err != nil || ok {
		t.Fatalf("expected miss after delete, ok=%v err=%v", ok, err)
	}
}
