package repository

import (
	"context"
	"errors"
	"time"

	"github.com/berry-13/vicsam-group-sub002/internal/domain"

	"gorm.io/gorm"
)

var ErrRefreshTokenNotFound = errors.New("refresh token not found")

type RefreshTokenRepository interface {
	Create(ctx context.Context, t *domain.RefreshToken) error
	FindByHash(ctx context.Context, hash string) (*domain.RefreshToken, error)
	MarkUsed(ctx context.Context, id uint, now time.Time) (bool, error)
	RevokeBySessionID(ctx context.Context, sessionID, reason string, now time.Time) (int64, error)
	RevokeByUserID(ctx context.Context, userID uint, reason string, now time.Time) (int64, error)
	RevokeExpired(ctx context.Context, now time.Time) (int64, error)
}

type GormRefreshTokenRepository struct{ db *gorm.DB }

func NewRefreshTokenRepository(db *gorm.DB) RefreshTokenRepository {
	return &GormRefreshTokenRepository{db: db}
}

func (r *GormRefreshTokenRepository) Create(ctx context.Context, t *domain.RefreshToken) error {
	err := r.db.WithContext(ctx).Create(t).Error
	return record(ctx, "refresh_token", "create", translateWriteError(err))
}

func (r *GormRefreshTokenRepository) FindByHash(ctx context.Context, hash string) (*domain.RefreshToken, error) {
	var t domain.RefreshToken
	err := r.db.WithContext(ctx).Where("token_hash = ?", hash).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		err = ErrRefreshTokenNotFound
	}
	if err := record(ctx, "refresh_token", "find_by_hash", err, ErrRefreshTokenNotFound); err != nil {
		return nil, err
	}
	return &t, nil
}

// MarkUsed claims a live token. Only one caller can claim a given token; the
// others get false.
func (r *GormRefreshTokenRepository) MarkUsed(ctx context.Context, id uint, now time.Time) (bool, error) {
	now = now.UTC()
	res := r.db.WithContext(ctx).Model(&domain.RefreshToken{}).
		Where("id = ? AND used_at IS NULL AND revoked = ? AND expires_at > ?", id, false, now).
		Update("used_at", now)
	if err := record(ctx, "refresh_token", "mark_used", res.Error); err != nil {
		return false, err
	}
	return res.RowsAffected == 1, nil
}

func (r *GormRefreshTokenRepository) RevokeBySessionID(ctx context.Context, sessionID, reason string, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&domain.RefreshToken{}).
		Where("session_id = ? AND revoked = ?", sessionID, false).
		Updates(revocation(reason, now))
	return res.RowsAffected, record(ctx, "refresh_token", "revoke_by_session_id", res.Error)
}

func (r *GormRefreshTokenRepository) RevokeByUserID(ctx context.Context, userID uint, reason string, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&domain.RefreshToken{}).
		Where("user_id = ? AND revoked = ?", userID, false).
		Updates(revocation(reason, now))
	return res.RowsAffected, record(ctx, "refresh_token", "revoke_by_user_id", res.Error)
}

func (r *GormRefreshTokenRepository) RevokeExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&domain.RefreshToken{}).
		Where("revoked = ? AND expires_at <= ?", false, now.UTC()).
		Updates(revocation(domain.RevokeReasonExpired, now))
	return res.RowsAffected, record(ctx, "refresh_token", "revoke_expired", res.Error)
}

func revocation(reason string, now time.Time) map[string]any {
	return map[string]any{
		"revoked":        true,
		"revoked_at":     now.UTC(),
		"revoked_reason": reason,
	}
}
