package repository

import (
	"context"
	"errors"
	"time"

	"github.com/berry-13/vicsam-group-sub002/internal/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrUserNotFound = errors.New("user not found")

// LockoutPolicy is the failed-login threshold and the lock duration applied
// once it is reached.
type LockoutPolicy struct {
	MaxAttempts int
	Duration    time.Duration
}

// FailedLoginResult is the counter state after a recorded failure.
type FailedLoginResult struct {
	Attempts    int
	LockedUntil *time.Time
}

type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	FindByID(ctx context.Context, id uint) (*domain.User, error)
	FindByUUID(ctx context.Context, uuid string) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	RecordFailedLogin(ctx context.Context, userID uint, policy LockoutPolicy, now time.Time) (FailedLoginResult, error)
	RecordSuccessfulLogin(ctx context.Context, userID uint, now time.Time) error
	UpdatePassword(ctx context.Context, userID uint, hash, algorithm string, now time.Time) error
	SetActive(ctx context.Context, userID uint, active bool) error
	Unlock(ctx context.Context, userID uint) error
	AssignRole(ctx context.Context, userID, roleID uint, expiresAt *time.Time, assignedBy *uint) error
	RemoveRole(ctx context.Context, userID, roleID uint) error
	RoleNames(ctx context.Context, userID uint, now time.Time) ([]string, error)
	PermissionNames(ctx context.Context, userID uint, now time.Time) ([]string, error)
}

type GormUserRepository struct{ db *gorm.DB }

func NewUserRepository(db *gorm.DB) UserRepository { return &GormUserRepository{db: db} }

func (r *GormUserRepository) Create(ctx context.Context, user *domain.User) error {
	err := r.db.WithContext(ctx).Create(user).Error
	return record(ctx, "user", "create", translateWriteError(err))
}

func (r *GormUserRepository) FindByID(ctx context.Context, id uint) (*domain.User, error) {
	return r.findOne(ctx, "find_by_id", "id = ?", id)
}

func (r *GormUserRepository) FindByUUID(ctx context.Context, uuid string) (*domain.User, error) {
	return r.findOne(ctx, "find_by_uuid", "uuid = ?", uuid)
}

func (r *GormUserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.findOne(ctx, "find_by_email", "email = ?", email)
}

func (r *GormUserRepository) findOne(ctx context.Context, op, query string, arg any) (*domain.User, error) {
	var u domain.User
	err := r.db.WithContext(ctx).Where(query, arg).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		err = ErrUserNotFound
	}
	if err := record(ctx, "user", op, err, ErrUserNotFound); err != nil {
		return nil, err
	}
	return &u, nil
}

// RecordFailedLogin increments the failure counter and applies the lock in a
// single statement. The WHERE clause skips rows that are currently locked, so
// concurrent failures can never push the counter past the threshold without
// the lock being set. A lock that has already elapsed restarts the count.
func (r *GormUserRepository) RecordFailedLogin(ctx context.Context, userID uint, policy LockoutPolicy, now time.Time) (FailedLoginResult, error) {
	now = now.UTC()
	lockUntil := now.Add(policy.Duration)
	next := gorm.Expr("CASE WHEN locked_until IS NOT NULL AND locked_until <= ? THEN 1 ELSE failed_login_attempts + 1 END", now)
	lock := gorm.Expr(
		"CASE WHEN (CASE WHEN locked_until IS NOT NULL AND locked_until <= ? THEN 1 ELSE failed_login_attempts + 1 END) >= ? THEN ? ELSE NULL END",
		now, policy.MaxAttempts, lockUntil,
	)
	res := r.db.WithContext(ctx).Model(&domain.User{}).
		Where("id = ? AND (locked_until IS NULL OR locked_until <= ?)", userID, now).
		Updates(map[string]any{
			"failed_login_attempts": next,
			"locked_until":          lock,
			"updated_at":            now,
		})
	if res.Error != nil {
		return FailedLoginResult{}, record(ctx, "user", "record_failed_login", res.Error)
	}

	var u domain.User
	if err := r.db.WithContext(ctx).Select("failed_login_attempts", "locked_until").Where("id = ?", userID).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			err = ErrUserNotFound
		}
		return FailedLoginResult{}, record(ctx, "user", "record_failed_login", err, ErrUserNotFound)
	}
	_ = record(ctx, "user", "record_failed_login", nil)
	return FailedLoginResult{Attempts: u.FailedLoginAttempts, LockedUntil: u.LockedUntil}, nil
}

func (r *GormUserRepository) RecordSuccessfulLogin(ctx context.Context, userID uint, now time.Time) error {
	err := r.db.WithContext(ctx).Model(&domain.User{}).Where("id = ?", userID).Updates(map[string]any{
		"failed_login_attempts": 0,
		"locked_until":          nil,
		"last_login_at":         now.UTC(),
	}).Error
	return record(ctx, "user", "record_successful_login", err)
}

func (r *GormUserRepository) UpdatePassword(ctx context.Context, userID uint, hash, algorithm string, now time.Time) error {
	res := r.db.WithContext(ctx).Model(&domain.User{}).Where("id = ?", userID).Updates(map[string]any{
		"password_hash":       hash,
		"password_algorithm":  algorithm,
		"password_changed_at": now.UTC(),
	})
	err := res.Error
	if err == nil && res.RowsAffected == 0 {
		err = ErrUserNotFound
	}
	return record(ctx, "user", "update_password", err, ErrUserNotFound)
}

func (r *GormUserRepository) SetActive(ctx context.Context, userID uint, active bool) error {
	res := r.db.WithContext(ctx).Model(&domain.User{}).Where("id = ?", userID).Update("is_active", active)
	err := res.Error
	if err == nil && res.RowsAffected == 0 {
		err = ErrUserNotFound
	}
	return record(ctx, "user", "set_active", err, ErrUserNotFound)
}

func (r *GormUserRepository) Unlock(ctx context.Context, userID uint) error {
	res := r.db.WithContext(ctx).Model(&domain.User{}).Where("id = ?", userID).Updates(map[string]any{
		"failed_login_attempts": 0,
		"locked_until":          nil,
	})
	err := res.Error
	if err == nil && res.RowsAffected == 0 {
		err = ErrUserNotFound
	}
	return record(ctx, "user", "unlock", err, ErrUserNotFound)
}

// AssignRole inserts the edge or refreshes its expiry when it already exists.
func (r *GormUserRepository) AssignRole(ctx context.Context, userID, roleID uint, expiresAt *time.Time, assignedBy *uint) error {
	if expiresAt != nil {
		utc := expiresAt.UTC()
		expiresAt = &utc
	}
	edge := domain.UserRole{UserID: userID, RoleID: roleID, ExpiresAt: expiresAt, AssignedBy: assignedBy}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "role_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"expires_at", "assigned_by"}),
	}).Create(&edge).Error
	return record(ctx, "user", "assign_role", err)
}

func (r *GormUserRepository) RemoveRole(ctx context.Context, userID, roleID uint) error {
	err := r.db.WithContext(ctx).Where("user_id = ? AND role_id = ?", userID, roleID).Delete(&domain.UserRole{}).Error
	return record(ctx, "user", "remove_role", err)
}

// RoleNames returns the names of roles whose assignment has not expired.
func (r *GormUserRepository) RoleNames(ctx context.Context, userID uint, now time.Time) ([]string, error) {
	var names []string
	err := r.db.WithContext(ctx).Table("roles").
		Joins("JOIN user_roles ur ON ur.role_id = roles.id").
		Where("ur.user_id = ? AND (ur.expires_at IS NULL OR ur.expires_at > ?)", userID, now.UTC()).
		Order("roles.name").
		Pluck("roles.name", &names).Error
	if err := record(ctx, "user", "role_names", err); err != nil {
		return nil, err
	}
	return names, nil
}

// PermissionNames returns the distinct permissions granted through roles
// whose assignment has not expired.
func (r *GormUserRepository) PermissionNames(ctx context.Context, userID uint, now time.Time) ([]string, error) {
	var names []string
	err := r.db.WithContext(ctx).Table("permissions").
		Distinct("permissions.name").
		Joins("JOIN role_permissions rp ON rp.permission_id = permissions.id").
		Joins("JOIN user_roles ur ON ur.role_id = rp.role_id").
		Where("ur.user_id = ? AND (ur.expires_at IS NULL OR ur.expires_at > ?)", userID, now.UTC()).
		Order("permissions.name").
		Pluck("permissions.name", &names).Error
	if err := record(ctx, "user", "permission_names", err); err != nil {
		return nil, err
	}
	return names, nil
}
