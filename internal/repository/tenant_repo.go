package repository

import (
	"context"
	"regexp"

	"eamcrm/internal/apperr"
	"eamcrm/internal/models"

	"gorm.io/gorm"
)

var slugRe = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

type TenantRepository struct {
	db *gorm.DB
}

func NewTenantRepository(db *gorm.DB) *TenantRepository {
	return &TenantRepository{db: db}
}

type TenantFilter struct {
	Search          string
	IncludeInactive bool
	Page            Page
}

type TenantUpdate struct {
	Name         *string
	ContactEmail *string
	ContactPhone *string
	Branding     models.JSONB
	Settings     models.JSONB
	IsActive     *bool
}

func (r *TenantRepository) Get(ctx context.Context, id string) (*models.Tenant, error) {
	if !validID(id) {
		return nil, apperr.NotFound("Tenant not found")
	}
	var t models.Tenant
	if err := r.db.WithContext(ctx).First(&t, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "Tenant")
	}
	return &t, nil
}

func (r *TenantRepository) List(ctx context.Context, f TenantFilter) ([]models.Tenant, error) {
	page, err := f.Page.Normalize()
	if err != nil {
		return nil, err
	}
	q := r.db.WithContext(ctx).Model(&models.Tenant{})
	if !f.IncludeInactive {
		q = q.Where("is_active = ?", true)
	}
	if f.Search != "" {
		pat := likePattern(f.Search)
		q = q.Where(`LOWER(name) LIKE ? ESCAPE '\' OR LOWER(slug) LIKE ? ESCAPE '\'`, pat, pat)
	}
	tenants := []models.Tenant{}
	if err := q.Order("name, id").Offset(page.Skip).Limit(page.Limit).Find(&tenants).Error; err != nil {
		return nil, apperr.Internal(err, "list tenants")
	}
	return tenants, nil
}

func (r *TenantRepository) Create(ctx context.Context, t *models.Tenant) error {
	if t.Name == "" {
		return apperr.Invalid("name is required")
	}
	if len(t.Slug) > 100 || !slugRe.MatchString(t.Slug) {
		return apperr.Invalid("slug must be lowercase letters, digits and dashes")
	}
	var n int64
	if err := r.db.WithContext(ctx).Model(&models.Tenant{}).Where("slug = ?", t.Slug).Count(&n).Error; err != nil {
		return apperr.Internal(err, "check slug")
	}
	if n > 0 {
		return apperr.Conflict("Tenant with slug '%s' already exists", t.Slug)
	}
	t.IsActive = true
	return dbErr(r.db.WithContext(ctx).Create(t).Error, "create tenant")
}

func (r *TenantRepository) Update(ctx context.Context, t *models.Tenant, u TenantUpdate) error {
	updates := map[string]any{}
	if u.Name != nil {
		if *u.Name == "" {
			return apperr.Invalid("name must not be empty")
		}
		updates["name"] = *u.Name
	}
	if u.ContactEmail != nil {
		updates["contact_email"] = *u.ContactEmail
	}
	if u.ContactPhone != nil {
		updates["contact_phone"] = *u.ContactPhone
	}
	if u.Branding != nil {
		updates["branding"] = u.Branding
	}
	if u.Settings != nil {
		updates["settings"] = u.Settings
	}
	if u.IsActive != nil {
		updates["is_active"] = *u.IsActive
	}
	if len(updates) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Model(t).Updates(updates).Error; err != nil {
		return dbErr(err, "update tenant")
	}
	if u.IsActive != nil && !*u.IsActive {
		if err := NewSessionRepository(r.db).RevokeTenant(ctx, t.ID); err != nil {
			return err
		}
	}
	if err := r.db.WithContext(ctx).First(t, "id = ?", t.ID).Error; err != nil {
		return notFound(err, "Tenant")
	}
	return nil
}

// Deactivate soft-deletes a tenant and signs its users out. Its data stays
// in place.
func (r *TenantRepository) Deactivate(ctx context.Context, t *models.Tenant) error {
	if err := r.db.WithContext(ctx).Model(t).Update("is_active", false).Error; err != nil {
		return apperr.Internal(err, "deactivate tenant")
	}
	return NewSessionRepository(r.db).RevokeTenant(ctx, t.ID)
}

// RequireExisting fails with InvalidInput naming the first id that is not
// a tenant.
func (r *TenantRepository) RequireExisting(ctx context.Context, ids []string) error {
	ids = uniqueStrings(ids)
	if len(ids) == 0 {
		return nil
	}
	for _, id := range ids {
		if !validID(id) {
			return apperr.Invalid("Tenant '%s' not found", id)
		}
	}
	var found []string
	if err := r.db.WithContext(ctx).Model(&models.Tenant{}).Where("id IN ?", ids).Pluck("id", &found).Error; err != nil {
		return apperr.Internal(err, "check tenants")
	}
	have := make(map[string]struct{}, len(found))
	for _, id := range found {
		have[id] = struct{}{}
	}
	for _, id := range ids {
		if _, ok := have[id]; !ok {
			return apperr.Invalid("Tenant '%s' not found", id)
		}
	}
	return nil
}
