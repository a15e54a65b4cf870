package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/berry-13/vicsam-group-sub002/internal/observability"
)

// PermissionSource returns the live, expiry-filtered permissions of a user.
type PermissionSource interface {
	GetUserPermissions(ctx context.Context, userID uint) ([]string, error)
}

// CachedPermissionResolver replaces the permissions embedded in an access
// token with the user's current grants, cached per session jti. Cache
// failures fall through to the source.
type CachedPermissionResolver struct {
	store  RBACPermissionCacheStore
	source PermissionSource
	ttl    time.Duration
	logger *slog.Logger
}

func NewCachedPermissionResolver(store RBACPermissionCacheStore, source PermissionSource, ttl time.Duration, logger *slog.Logger) *CachedPermissionResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedPermissionResolver{store: store, source: source, ttl: ttl, logger: logger}
}

func (r *CachedPermissionResolver) ResolvePermissions(ctx context.Context, identity *Identity) ([]string, error) {
	if identity == nil {
		return nil, errors.New("missing identity")
	}
	if identity.Legacy {
		return identity.Permissions, nil
	}
	caching := r.store != nil && r.ttl > 0
	if caching {
		cached, ok, err := r.store.Get(ctx, identity.UserID, identity.JTI)
		switch {
		case err != nil:
			observability.RecordRBACPermissionCacheEvent(ctx, "error")
			r.logger.WarnContext(ctx, "permission cache read failed", "error", err)
		case ok:
			observability.RecordRBACPermissionCacheEvent(ctx, "hit")
			return cached, nil
		default:
			observability.RecordRBACPermissionCacheEvent(ctx, "miss")
		}
	}

	perms, err := r.source.GetUserPermissions(ctx, identity.UserID)
	if err != nil {
		return nil, err
	}
	if caching {
		if err := r.store.Set(ctx, identity.UserID, identity.JTI, perms, r.ttl); err != nil {
			observability.RecordRBACPermissionCacheEvent(ctx, "error")
		}
	}
	return perms, nil
}

func (r *CachedPermissionResolver) InvalidateUser(ctx context.Context, userID uint) error {
	if r.store == nil {
		return nil
	}
	observability.RecordRBACPermissionCacheEvent(ctx, "invalidate_user")
	return r.store.InvalidateUser(ctx, userID)
}

func (r *CachedPermissionResolver) InvalidateAll(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	observability.RecordRBACPermissionCacheEvent(ctx, "invalidate_all")
	return r.store.InvalidateAll(ctx)
}
