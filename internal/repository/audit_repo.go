package repository

import (
	"context"

	"eamcrm/internal/apperr"
	"eamcrm/internal/models"

	"gorm.io/gorm"
)

type AuditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

type AuditFilter struct {
	TenantID     string
	UserID       string
	ResourceType string
	Page         Page
}

// Record writes one audit entry. Called on the request transaction so the
// entry commits or rolls back with the change it describes.
func (r *AuditRepository) Record(ctx context.Context, e *models.AuditLog) error {
	if e.Metadata == nil {
		e.Metadata = models.JSONB("{}")
	}
	if err := r.db.WithContext(ctx).Create(e).Error; err != nil {
		return apperr.Internal(err, "write audit log")
	}
	return nil
}

func (r *AuditRepository) List(ctx context.Context, f AuditFilter) ([]models.AuditLog, error) {
	if err := checkIDFilter("tenant_id", f.TenantID); err != nil {
		return nil, err
	}
	if err := checkIDFilter("user_id", f.UserID); err != nil {
		return nil, err
	}
	page, err := f.Page.Normalize()
	if err != nil {
		return nil, err
	}
	q := r.db.WithContext(ctx)
	if f.TenantID != "" {
		q = q.Where("tenant_id = ?", f.TenantID)
	}
	if f.UserID != "" {
		q = q.Where("user_id = ?", f.UserID)
	}
	if f.ResourceType != "" {
		q = q.Where("resource_type = ?", f.ResourceType)
	}
	logs := []models.AuditLog{}
	if err := q.Order("created_at desc, id desc").Offset(page.Skip).Limit(page.Limit).Find(&logs).Error; err != nil {
		return nil, apperr.Internal(err, "list audit logs")
	}
	return logs, nil
}
