package repository

import (
	"context"
	"time"

	"github.com/berry-13/vicsam-group-sub002/internal/domain"

	"gorm.io/gorm"
)

type AuditListQuery struct {
	PageRequest
	UserID *uint
	Action string
	Since  *time.Time
}

// AuditRepository is append-only: there is no update or delete.
type AuditRepository interface {
	Append(ctx context.Context, entry *domain.AuditEntry) error
	ListPaged(ctx context.Context, query AuditListQuery) (PageResult[domain.AuditEntry], error)
}

type GormAuditRepository struct{ db *gorm.DB }

func NewAuditRepository(db *gorm.DB) AuditRepository { return &GormAuditRepository{db: db} }

func (r *GormAuditRepository) Append(ctx context.Context, entry *domain.AuditEntry) error {
	err := r.db.WithContext(ctx).Create(entry).Error
	return record(ctx, "audit", "append", err)
}

func (r *GormAuditRepository) ListPaged(ctx context.Context, query AuditListQuery) (PageResult[domain.AuditEntry], error) {
	req := query.PageRequest.normalized()
	base := r.db.WithContext(ctx).Model(&domain.AuditEntry{})
	if query.UserID != nil {
		base = base.Where("user_id = ?", *query.UserID)
	}
	if query.Action != "" {
		base = base.Where("action = ?", query.Action)
	}
	if query.Since != nil {
		base = base.Where("created_at >= ?", query.Since.UTC())
	}

	var total int64
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return PageResult[domain.AuditEntry]{}, record(ctx, "audit", "list_paged", err)
	}
	var items []domain.AuditEntry
	if err := base.Order("created_at DESC").Order("id DESC").Offset(req.Offset()).Limit(req.PageSize).Find(&items).Error; err != nil {
		return PageResult[domain.AuditEntry]{}, record(ctx, "audit", "list_paged", err)
	}
	_ = record(ctx, "audit", "list_paged", nil)
	return newPageResult(req, total, items), nil
}
