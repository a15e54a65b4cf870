package service

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/berry-13/vicsam-group-sub002/internal/observability"
	"github.com/berry-13/vicsam-group-sub002/internal/security"
)

const (
	LegacyTokenValid          = "valid"
	LegacyTokenInvalidExpired = "invalid:expired"
	LegacyTokenInvalidUnknown = "invalid:unknown"

	legacyTokenKeyPrefix = "legacy_token:"
	legacyTokenTTLGrace  = time.Hour
)

type LegacyValidation struct {
	Valid  bool
	Reason string
}

type LegacyTokenConfig struct {
	StaticToken string
	MaxAge      time.Duration
	Keep        int
	Pepper      string
	Now         func() time.Time
}

// LegacyTokenRotator keeps backward compatibility for static bearer tokens.
// The current token is held in memory; every issued token is also written to
// the cache keyed by its storage hash with its issue time, so peers and
// rotated-out tokens validate until they age out. When the distributed cache
// errors, a process local map takes over. That map is lost on restart, which
// can surface as invalid:unknown for tokens rotated during an outage.
type LegacyTokenRotator struct {
	cache    LegacyTokenCache
	fallback *InMemoryLegacyTokenCache
	logger   *slog.Logger
	cfg      LegacyTokenConfig

	mu       sync.RWMutex
	current  string
	issuedAt time.Time
}

// NewLegacyTokenRotator accepts a nil cache, in which case only the
// in-process map is used.
func NewLegacyTokenRotator(cache LegacyTokenCache, logger *slog.Logger, cfg LegacyTokenConfig) *LegacyTokenRotator {
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 24 * time.Hour
	}
	if cfg.Keep <= 0 {
		cfg.Keep = 10
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	fallback := NewInMemoryLegacyTokenCache()
	fallback.now = cfg.Now
	return &LegacyTokenRotator{
		cache:    cache,
		fallback: fallback,
		logger:   logger,
		cfg:      cfg,
		current:  cfg.StaticToken,
		issuedAt: cfg.Now(),
	}
}

func (r *LegacyTokenRotator) Validate(ctx context.Context, token string) LegacyValidation {
	res := r.validate(ctx, token)
	observability.RecordLegacyTokenValidation(ctx, res.Reason)
	return res
}

func (r *LegacyTokenRotator) validate(ctx context.Context, token string) LegacyValidation {
	if token == "" {
		return LegacyValidation{Reason: LegacyTokenInvalidUnknown}
	}
	r.mu.RLock()
	current := r.current
	r.mu.RUnlock()
	if current != "" && subtle.ConstantTimeCompare([]byte(token), []byte(current)) == 1 {
		return LegacyValidation{Valid: true, Reason: LegacyTokenValid}
	}

	raw, ok := r.get(ctx, r.key(token))
	if !ok {
		return LegacyValidation{Reason: LegacyTokenInvalidUnknown}
	}
	issued, err := parseIssuedAt(raw)
	if err != nil {
		r.logger.WarnContext(ctx, "malformed legacy token entry", "error", err)
		return LegacyValidation{Reason: LegacyTokenInvalidUnknown}
	}
	if r.cfg.Now().Sub(issued) > r.cfg.MaxAge {
		return LegacyValidation{Reason: LegacyTokenInvalidExpired}
	}
	return LegacyValidation{Valid: true, Reason: LegacyTokenValid}
}

// Rotate issues a new static token. The previous one stays valid until it is
// older than MaxAge or is pruned as one of more than Keep entries.
func (r *LegacyTokenRotator) Rotate(ctx context.Context) (string, error) {
	next, err := security.SecureToken(security.TokenBytes)
	if err != nil {
		return "", err
	}
	now := r.cfg.Now()

	r.mu.Lock()
	prev, prevIssued := r.current, r.issuedAt
	r.current, r.issuedAt = next, now
	r.mu.Unlock()

	ttl := r.cfg.MaxAge + legacyTokenTTLGrace
	if prev != "" {
		r.set(ctx, r.key(prev), formatIssuedAt(prevIssued), ttl)
	}
	r.set(ctx, r.key(next), formatIssuedAt(now), ttl)
	r.prune(ctx)
	r.logger.InfoContext(ctx, "legacy token rotated")
	return next, nil
}

// Current returns the token accepted without a cache lookup.
func (r *LegacyTokenRotator) Current() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

func (r *LegacyTokenRotator) key(token string) string {
	return legacyTokenKeyPrefix + security.HashForStorage(token, r.cfg.Pepper)
}

func (r *LegacyTokenRotator) get(ctx context.Context, key string) (string, bool) {
	if r.cache != nil {
		v, ok, err := r.cache.Get(ctx, key)
		if err == nil && ok {
			return v, true
		}
		if err != nil {
			r.logger.WarnContext(ctx, "legacy token cache unavailable, using local fallback", "error", err)
		}
	}
	v, ok, _ := r.fallback.Get(ctx, key)
	return v, ok
}

func (r *LegacyTokenRotator) set(ctx context.Context, key, value string, ttl time.Duration) {
	if r.cache != nil {
		err := r.cache.SetWithTTL(ctx, key, value, ttl)
		if err == nil {
			return
		}
		r.logger.WarnContext(ctx, "legacy token cache unavailable, using local fallback", "error", err)
	}
	_ = r.fallback.SetWithTTL(ctx, key, value, ttl)
}

// prune keeps the newest Keep entries in each store.
func (r *LegacyTokenRotator) prune(ctx context.Context) {
	if r.cache != nil {
		if err := r.pruneStore(ctx, r.cache); err != nil {
			r.logger.WarnContext(ctx, "prune legacy token cache", "error", err)
		}
	}
	_ = r.pruneStore(ctx, r.fallback)
}

func (r *LegacyTokenRotator) pruneStore(ctx context.Context, store LegacyTokenCache) error {
	keys, err := store.ListKeysByPrefix(ctx, legacyTokenKeyPrefix)
	if err != nil {
		return err
	}
	if len(keys) <= r.cfg.Keep {
		return nil
	}
	type entry struct {
		key    string
		issued time.Time
	}
	entries := make([]entry, 0, len(keys))
	for _, k := range keys {
		raw, ok, err := store.Get(ctx, k)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		issued, err := parseIssuedAt(raw)
		if err != nil {
			// Unreadable entries sort oldest and are pruned first.
			issued = time.Time{}
		}
		entries = append(entries, entry{key: k, issued: issued})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].issued.After(entries[j].issued) })
	for _, e := range entries[min(r.cfg.Keep, len(entries)):] {
		if err := store.Delete(ctx, e.key); err != nil {
			return err
		}
	}
	return nil
}

func formatIssuedAt(t time.Time) string {
	return strconv.FormatInt(t.UnixNano(), 10)
}

func parseIssuedAt(raw string) (time.Time, error) {
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(0, n), nil
}
