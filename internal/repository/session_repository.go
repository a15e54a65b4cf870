package repository

import (
	"context"
	"errors"
	"time"

	"github.com/berry-13/vicsam-group-sub002/internal/domain"

	"gorm.io/gorm"
)

var ErrSessionNotFound = errors.New("session not found")

type SessionRepository interface {
	Create(ctx context.Context, s *domain.Session) error
	FindByID(ctx context.Context, id string) (*domain.Session, error)
	FindLiveByJTI(ctx context.Context, jti string, now time.Time) (*domain.Session, error)
	ListActiveByUserID(ctx context.Context, userID uint, now time.Time) ([]domain.Session, error)
	RotateJTI(ctx context.Context, id, newJTI, refreshTokenHash string, now time.Time) error
	Deactivate(ctx context.Context, id, reason string, now time.Time) (bool, error)
	DeactivateByUserID(ctx context.Context, userID uint, reason string, now time.Time) (int64, error)
	DeactivateExpired(ctx context.Context, now time.Time) (int64, error)
}

type GormSessionRepository struct{ db *gorm.DB }

func NewSessionRepository(db *gorm.DB) SessionRepository { return &GormSessionRepository{db: db} }

func (r *GormSessionRepository) Create(ctx context.Context, s *domain.Session) error {
	err := r.db.WithContext(ctx).Create(s).Error
	return record(ctx, "session", "create", translateWriteError(err))
}

func (r *GormSessionRepository) FindByID(ctx context.Context, id string) (*domain.Session, error) {
	var s domain.Session
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		err = ErrSessionNotFound
	}
	if err := record(ctx, "session", "find_by_id", err, ErrSessionNotFound); err != nil {
		return nil, err
	}
	return &s, nil
}

// FindLiveByJTI returns the active, unexpired session currently bound to jti.
func (r *GormSessionRepository) FindLiveByJTI(ctx context.Context, jti string, now time.Time) (*domain.Session, error) {
	var s domain.Session
	err := r.db.WithContext(ctx).
		Where("jti = ? AND is_active = ? AND revoked_at IS NULL AND expires_at > ?", jti, true, now.UTC()).
		First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		err = ErrSessionNotFound
	}
	if err := record(ctx, "session", "find_live_by_jti", err, ErrSessionNotFound); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *GormSessionRepository) ListActiveByUserID(ctx context.Context, userID uint, now time.Time) ([]domain.Session, error) {
	var sessions []domain.Session
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND is_active = ? AND expires_at > ?", userID, true, now.UTC()).
		Order("created_at DESC").
		Find(&sessions).Error
	return sessions, record(ctx, "session", "list_active_by_user_id", err)
}

// RotateJTI binds a live session to a new jti and refresh token hash and bumps
// its activity timestamp. Sessions that are no longer live are left alone.
func (r *GormSessionRepository) RotateJTI(ctx context.Context, id, newJTI, refreshTokenHash string, now time.Time) error {
	now = now.UTC()
	updates := map[string]any{
		"jti":              newJTI,
		"last_activity_at": now,
	}
	if refreshTokenHash != "" {
		updates["refresh_token_hash"] = refreshTokenHash
	}
	res := r.db.WithContext(ctx).Model(&domain.Session{}).
		Where("id = ? AND is_active = ? AND expires_at > ?", id, true, now).
		Updates(updates)
	err := translateWriteError(res.Error)
	if err == nil && res.RowsAffected == 0 {
		err = ErrSessionNotFound
	}
	return record(ctx, "session", "rotate_jti", err, ErrSessionNotFound)
}

// Deactivate reports whether the session changed state. Deactivating an
// unknown or already inactive session is not an error.
func (r *GormSessionRepository) Deactivate(ctx context.Context, id, reason string, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&domain.Session{}).
		Where("id = ? AND is_active = ?", id, true).
		Updates(deactivation(reason, now))
	if err := record(ctx, "session", "deactivate", res.Error); err != nil {
		return false, err
	}
	return res.RowsAffected > 0, nil
}

func (r *GormSessionRepository) DeactivateByUserID(ctx context.Context, userID uint, reason string, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&domain.Session{}).
		Where("user_id = ? AND is_active = ?", userID, true).
		Updates(deactivation(reason, now))
	return res.RowsAffected, record(ctx, "session", "deactivate_by_user_id", res.Error)
}

// DeactivateExpired is storage hygiene. Liveness checks already ignore
// expired sessions.
func (r *GormSessionRepository) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&domain.Session{}).
		Where("is_active = ? AND expires_at <= ?", true, now.UTC()).
		Updates(deactivation(domain.RevokeReasonExpired, now))
	return res.RowsAffected, record(ctx, "session", "deactivate_expired", res.Error)
}

func deactivation(reason string, now time.Time) map[string]any {
	return map[string]any{
		"is_active":      false,
		"revoked_at":     now.UTC(),
		"revoked_reason": reason,
	}
}
