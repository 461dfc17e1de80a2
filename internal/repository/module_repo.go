package repository

import (
	"context"
	"errors"
	"regexp"

	"eamcrm/internal/apperr"
	"eamcrm/internal/models"
	"eamcrm/internal/visibility"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var moduleCodeRe = regexp.MustCompile(`^[a-z0-9_]{2,50}$`)

type ModuleRepository struct {
	db *gorm.DB
}

func NewModuleRepository(db *gorm.DB) *ModuleRepository {
	return &ModuleRepository{db: db}
}

// TenantModuleStatus is a module as one tenant sees it.
type TenantModuleStatus struct {
	models.Module
	IsEnabled bool `json:"is_enabled"`
}

// ModuleUpdate holds the mutable module fields. Code and IsCore are fixed
// at creation.
type ModuleUpdate struct {
	Name          *string
	NameZh        *string
	Description   *string
	DescriptionZh *string
	Category      *models.ModuleCategory
	IsActive      *bool
	Version       *string
}

func (r *ModuleRepository) Get(ctx context.Context, id string) (*models.Module, error) {
	if !validID(id) {
		return nil, apperr.NotFound("Module not found")
	}
	var m models.Module
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "Module")
	}
	return &m, nil
}

func (r *ModuleRepository) GetByCode(ctx context.Context, code string) (*models.Module, error) {
	var m models.Module
	if err := r.db.WithContext(ctx).First(&m, "code = ?", code).Error; err != nil {
		return nil, notFound(err, "Module")
	}
	return &m, nil
}

func (r *ModuleRepository) List(ctx context.Context, includeInactive bool) ([]models.Module, error) {
	q := r.db.WithContext(ctx).Order("category, code")
	if !includeInactive {
		q = q.Where("is_active = ?", true)
	}
	var ms []models.Module
	if err := q.Find(&ms).Error; err != nil {
		return nil, apperr.Internal(err, "list modules")
	}
	return ms, nil
}

func (r *ModuleRepository) Create(ctx context.Context, m *models.Module) error {
	if !moduleCodeRe.MatchString(m.Code) {
		return apperr.Invalid("code must match ^[a-z0-9_]+$ and be 2-50 characters")
	}
	if len(m.Name) < 2 {
		return apperr.Invalid("name must be at least 2 characters")
	}
	if m.Category == "" {
		m.Category = models.ModuleBasic
	}
	if !m.Category.Valid() {
		return apperr.Invalid("unknown module category %q", m.Category)
	}
	if m.Version == "" {
		m.Version = "1.0.0"
	}
	var n int64
	if err := r.db.WithContext(ctx).Model(&models.Module{}).Where("code = ?", m.Code).Count(&n).Error; err != nil {
		return apperr.Internal(err, "check module code")
	}
	if n > 0 {
		return apperr.Conflict("Module with code '%s' already exists", m.Code)
	}
	return dbErr(r.db.WithContext(ctx).Create(m).Error, "create module")
}

// Update applies u. Deactivating a core module would switch it off for
// every tenant, so it is rejected like a per-tenant disable.
func (r *ModuleRepository) Update(ctx context.Context, id string, u ModuleUpdate) (*models.Module, error) {
	m, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if u.IsActive != nil && !*u.IsActive && m.IsCore {
		return nil, apperr.Forbidden("Core modules cannot be disabled")
	}
	if u.Category != nil && !u.Category.Valid() {
		return nil, apperr.Invalid("unknown module category %q", *u.Category)
	}
	if u.Name != nil {
		if len(*u.Name) < 2 {
			return nil, apperr.Invalid("name must be at least 2 characters")
		}
		m.Name = *u.Name
	}
	if u.NameZh != nil {
		m.NameZh = u.NameZh
	}
	if u.Description != nil {
		m.Description = u.Description
	}
	if u.DescriptionZh != nil {
		m.DescriptionZh = u.DescriptionZh
	}
	if u.Category != nil {
		m.Category = *u.Category
	}
	if u.IsActive != nil {
		m.IsActive = *u.IsActive
	}
	if u.Version != nil {
		m.Version = *u.Version
	}
	if err := r.db.WithContext(ctx).Save(m).Error; err != nil {
		return nil, dbErr(err, "update module")
	}
	return m, nil
}

// GetTenantModule returns the entitlement row, or nil when none exists.
func (r *ModuleRepository) GetTenantModule(ctx context.Context, tenantID, moduleID string) (*models.TenantModule, error) {
	var tm models.TenantModule
	err := r.db.WithContext(ctx).First(&tm, "tenant_id = ? AND module_id = ?", tenantID, moduleID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Internal(err, "load tenant module")
	}
	return &tm, nil
}

// IsModuleEnabled reports whether m is on for tenantID.
func (r *ModuleRepository) IsModuleEnabled(ctx context.Context, tenantID string, m models.Module) (bool, error) {
	if !m.IsActive {
		return false, nil
	}
	if m.IsCore {
		return true, nil
	}
	tm, err := r.GetTenantModule(ctx, tenantID, m.ID)
	if err != nil {
		return false, err
	}
	return visibility.ModuleEnabled(m, tm), nil
}

// EnabledModuleIDs is a subquery selecting the ids of modules enabled for
// tenantID.
func (r *ModuleRepository) EnabledModuleIDs(ctx context.Context, tenantID string) *gorm.DB {
	entitled := r.db.WithContext(ctx).Model(&models.TenantModule{}).
		Select("module_id").
		Where("tenant_id = ? AND is_enabled = ?", tenantID, true)
	return r.db.WithContext(ctx).Model(&models.Module{}).
		Select("modules.id").
		Where("modules.is_active = ?", true).
		Where("(modules.is_core = ? OR modules.id IN (?))", true, entitled)
}

// ListForTenant returns every active module with its enabled state for
// tenantID.
func (r *ModuleRepository) ListForTenant(ctx context.Context, tenantID string) ([]TenantModuleStatus, error) {
	ms, err := r.List(ctx, false)
	if err != nil {
		return nil, err
	}
	var rows []models.TenantModule
	if err := r.db.WithContext(ctx).Where("tenant_id = ?", tenantID).Find(&rows).Error; err != nil {
		return nil, apperr.Internal(err, "list tenant modules")
	}
	byModule := make(map[string]*models.TenantModule, len(rows))
	for i := range rows {
		byModule[rows[i].ModuleID] = &rows[i]
	}
	out := make([]TenantModuleStatus, 0, len(ms))
	for _, m := range ms {
		out = append(out, TenantModuleStatus{Module: m, IsEnabled: visibility.ModuleEnabled(m, byModule[m.ID])})
	}
	return out, nil
}

// SetEnabled turns a gated module on or off for tenantID. Core modules
// cannot be disabled; enabling one is a no-op that still reports success.
func (r *ModuleRepository) SetEnabled(ctx context.Context, tenantID, moduleID string, enabled bool, config models.JSONB) (*models.TenantModule, error) {
	m, err := r.Get(ctx, moduleID)
	if err != nil {
		return nil, err
	}
	if m.IsCore {
		if !enabled {
			return nil, apperr.Forbidden("Core modules cannot be disabled")
		}
		return &models.TenantModule{TenantID: tenantID, ModuleID: m.ID, IsEnabled: true}, nil
	}
	tm := models.TenantModule{TenantID: tenantID, ModuleID: m.ID, IsEnabled: enabled, Config: config}
	assign := []string{"is_enabled", "updated_at"}
	if len(config) > 0 {
		assign = append(assign, "config")
	}
	err = r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "module_id"}},
		DoUpdates: clause.AssignmentColumns(assign),
	}).Create(&tm).Error
	if err != nil {
		return nil, dbErr(err, "set tenant module")
	}
	stored, err := r.GetTenantModule(ctx, tenantID, m.ID)
	if err != nil {
		return nil, err
	}
	return stored, nil
}
