package repository

import (
	"context"

	"eamcrm/internal/apperr"
	"eamcrm/internal/models"

	"gorm.io/gorm"
)

type CategoryRepository struct {
	db *gorm.DB
}

func NewCategoryRepository(db *gorm.DB) *CategoryRepository {
	return &CategoryRepository{db: db}
}

// ListForTenant returns active platform categories plus tenantID's own.
func (r *CategoryRepository) ListForTenant(ctx context.Context, tenantID string) ([]models.ProductCategory, error) {
	q := r.db.WithContext(ctx).Where("is_active = ?", true)
	if tenantID == "" {
		q = q.Where("tenant_id IS NULL")
	} else {
		q = q.Where("tenant_id IS NULL OR tenant_id = ?", tenantID)
	}
	cats := []models.ProductCategory{}
	if err := q.Order("sort_order, name").Find(&cats).Error; err != nil {
		return nil, apperr.Internal(err, "list categories")
	}
	return cats, nil
}

func (r *CategoryRepository) ListDefaults(ctx context.Context) ([]models.ProductCategory, error) {
	return r.ListForTenant(ctx, "")
}

// CreateDefault adds a platform category. Codes are unique among platform
// categories.
func (r *CategoryRepository) CreateDefault(ctx context.Context, c *models.ProductCategory) error {
	if c.Code == "" || len(c.Code) > 50 {
		return apperr.Invalid("code is required and must be at most 50 characters")
	}
	if c.Name == "" {
		return apperr.Invalid("name is required")
	}
	var n int64
	err := r.db.WithContext(ctx).Model(&models.ProductCategory{}).
		Where("tenant_id IS NULL AND code = ?", c.Code).
		Count(&n).Error
	if err != nil {
		return apperr.Internal(err, "check category code")
	}
	if n > 0 {
		return apperr.Conflict("Category with code '%s' already exists", c.Code)
	}
	c.TenantID = nil
	c.IsActive = true
	return dbErr(r.db.WithContext(ctx).Create(c).Error, "create category")
}
