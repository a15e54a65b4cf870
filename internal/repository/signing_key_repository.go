package repository

import (
	"context"
	"errors"
	"time"

	"github.com/berry-13/vicsam-group-sub002/internal/domain"

	"gorm.io/gorm"
)

var (
	ErrSigningKeyNotFound = errors.New("signing key not found")
	ErrSigningKeyActive   = errors.New("active signing key cannot be retired")
)

type SigningKeyRepository interface {
	FindActive(ctx context.Context) (*domain.SigningKey, error)
	FindByKeyID(ctx context.Context, keyID string) (*domain.SigningKey, error)
	ListVerifiable(ctx context.Context) ([]domain.SigningKey, error)
	CreateActive(ctx context.Context, key *domain.SigningKey) error
	Rotate(ctx context.Context, next *domain.SigningKey, now time.Time) error
	Retire(ctx context.Context, keyID string, now time.Time) error
}

type GormSigningKeyRepository struct{ db *gorm.DB }

func NewSigningKeyRepository(db *gorm.DB) SigningKeyRepository {
	return &GormSigningKeyRepository{db: db}
}

func (r *GormSigningKeyRepository) FindActive(ctx context.Context) (*domain.SigningKey, error) {
	var k domain.SigningKey
	err := r.db.WithContext(ctx).Where("active_slot = ?", domain.ActiveSigningKeySlot).First(&k).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		err = ErrSigningKeyNotFound
	}
	if err := record(ctx, "signing_key", "find_active", err, ErrSigningKeyNotFound); err != nil {
		return nil, err
	}
	return &k, nil
}

func (r *GormSigningKeyRepository) FindByKeyID(ctx context.Context, keyID string) (*domain.SigningKey, error) {
	var k domain.SigningKey
	err := r.db.WithContext(ctx).Where("key_id = ?", keyID).First(&k).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		err = ErrSigningKeyNotFound
	}
	if err := record(ctx, "signing_key", "find_by_key_id", err, ErrSigningKeyNotFound); err != nil {
		return nil, err
	}
	return &k, nil
}

// ListVerifiable returns every key that has not been retired.
func (r *GormSigningKeyRepository) ListVerifiable(ctx context.Context) ([]domain.SigningKey, error) {
	var keys []domain.SigningKey
	err := r.db.WithContext(ctx).Where("retired_at IS NULL").Order("created_at DESC").Find(&keys).Error
	return keys, record(ctx, "signing_key", "list_verifiable", err)
}

// CreateActive inserts key into the single active slot. If another writer
// already holds the slot the insert fails with ErrDuplicate.
func (r *GormSigningKeyRepository) CreateActive(ctx context.Context, key *domain.SigningKey) error {
	slot := domain.ActiveSigningKeySlot
	key.IsActive = true
	key.ActiveSlot = &slot
	err := r.db.WithContext(ctx).Create(key).Error
	return record(ctx, "signing_key", "create_active", translateWriteError(err))
}

// Rotate demotes the current active key and activates next in one
// transaction. The demoted key stays available for verification.
func (r *GormSigningKeyRepository) Rotate(ctx context.Context, next *domain.SigningKey, now time.Time) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&domain.SigningKey{}).
			Where("active_slot = ?", domain.ActiveSigningKeySlot).
			Updates(map[string]any{"is_active": false, "active_slot": nil, "rotated_at": now.UTC()}).Error; err != nil {
			return err
		}
		slot := domain.ActiveSigningKeySlot
		next.IsActive = true
		next.ActiveSlot = &slot
		return translateWriteError(tx.Create(next).Error)
	})
	return record(ctx, "signing_key", "rotate", err)
}

func (r *GormSigningKeyRepository) Retire(ctx context.Context, keyID string, now time.Time) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var k domain.SigningKey
		if err := tx.Where("key_id = ?", keyID).First(&k).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrSigningKeyNotFound
			}
			return err
		}
		if k.ActiveSlot != nil {
			return ErrSigningKeyActive
		}
		if k.RetiredAt != nil {
			return nil
		}
		return tx.Model(&domain.SigningKey{}).Where("id = ?", k.ID).Update("retired_at", now.UTC()).Error
	})
	return record(ctx, "signing_key", "retire", err, ErrSigningKeyNotFound)
}
