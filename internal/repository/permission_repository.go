package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/berry-13/vicsam-group-sub002/internal/domain"

	"gorm.io/gorm"
)

var ErrPermissionNotFound = errors.New("permission not found")

type PermissionRepository interface {
	List(ctx context.Context) ([]domain.Permission, error)
	FindByName(ctx context.Context, name string) (*domain.Permission, error)
	Ensure(ctx context.Context, name string) (*domain.Permission, error)
	ListResources(ctx context.Context) ([]string, error)
}

type GormPermissionRepository struct{ db *gorm.DB }

func NewPermissionRepository(db *gorm.DB) PermissionRepository {
	return &GormPermissionRepository{db: db}
}

func (r *GormPermissionRepository) List(ctx context.Context) ([]domain.Permission, error) {
	var perms []domain.Permission
	err := r.db.WithContext(ctx).Order("name").Find(&perms).Error
	return perms, record(ctx, "permission", "list", err)
}

func (r *GormPermissionRepository) FindByName(ctx context.Context, name string) (*domain.Permission, error) {
	var p domain.Permission
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		err = ErrPermissionNotFound
	}
	if err := record(ctx, "permission", "find_by_name", err, ErrPermissionNotFound); err != nil {
		return nil, err
	}
	return &p, nil
}

// Ensure returns the permission named name, creating it when missing. Names
// are "resource.action" or the bare super-permission "*".
func (r *GormPermissionRepository) Ensure(ctx context.Context, name string) (*domain.Permission, error) {
	resource, action := SplitPermissionName(name)
	p := domain.Permission{Name: name, Resource: resource, Action: action}
	err := r.db.WithContext(ctx).Where(domain.Permission{Name: name}).FirstOrCreate(&p).Error
	if err := record(ctx, "permission", "ensure", err); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListResources returns the distinct resource names present in storage.
func (r *GormPermissionRepository) ListResources(ctx context.Context) ([]string, error) {
	var resources []string
	err := r.db.WithContext(ctx).Model(&domain.Permission{}).
		Where("resource <> ?", "*").
		Distinct("resource").
		Order("resource").
		Pluck("resource", &resources).Error
	return resources, record(ctx, "permission", "list_resources", err)
}

func SplitPermissionName(name string) (resource, action string) {
	if name == "*" {
		return "*", "*"
	}
	resource, action, found := strings.Cut(name, ".")
	if !found {
		return name, ""
	}
	return resource, action
}
