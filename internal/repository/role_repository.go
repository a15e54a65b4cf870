package repository

import (
	"context"
	"errors"

	"github.com/berry-13/vicsam-group-sub002/internal/domain"

	"gorm.io/gorm"
)

var ErrRoleNotFound = errors.New("role not found")

type RoleRepository interface {
	FindByName(ctx context.Context, name string) (*domain.Role, error)
	List(ctx context.Context) ([]domain.Role, error)
	Create(ctx context.Context, role *domain.Role, permissionIDs []uint) error
	SetPermissions(ctx context.Context, roleID uint, permissionIDs []uint) error
}

type GormRoleRepository struct{ db *gorm.DB }

func NewRoleRepository(db *gorm.DB) RoleRepository { return &GormRoleRepository{db: db} }

func (r *GormRoleRepository) FindByName(ctx context.Context, name string) (*domain.Role, error) {
	var role domain.Role
	err := r.db.WithContext(ctx).Preload("Permissions").Where("name = ?", name).First(&role).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		err = ErrRoleNotFound
	}
	if err := record(ctx, "role", "find_by_name", err, ErrRoleNotFound); err != nil {
		return nil, err
	}
	return &role, nil
}

func (r *GormRoleRepository) List(ctx context.Context) ([]domain.Role, error) {
	var roles []domain.Role
	err := r.db.WithContext(ctx).Preload("Permissions").Order("name").Find(&roles).Error
	return roles, record(ctx, "role", "list", err)
}

func (r *GormRoleRepository) Create(ctx context.Context, role *domain.Role, permissionIDs []uint) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Permissions").Create(role).Error; err != nil {
			return translateWriteError(err)
		}
		return replaceRolePermissions(tx, role, permissionIDs)
	})
	return record(ctx, "role", "create", err)
}

func (r *GormRoleRepository) SetPermissions(ctx context.Context, roleID uint, permissionIDs []uint) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var role domain.Role
		if err := tx.First(&role, roleID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRoleNotFound
			}
			return err
		}
		return replaceRolePermissions(tx, &role, permissionIDs)
	})
	return record(ctx, "role", "set_permissions", err, ErrRoleNotFound)
}

func replaceRolePermissions(tx *gorm.DB, role *domain.Role, permissionIDs []uint) error {
	var perms []domain.Permission
	if len(permissionIDs) > 0 {
		if err := tx.Where("id IN ?", permissionIDs).Find(&perms).Error; err != nil {
			return err
		}
	}
	if err := tx.Model(role).Association("Permissions").Replace(perms); err != nil {
		return err
	}
	role.Permissions = perms
	return nil
}
