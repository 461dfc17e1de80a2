package repository

import (
	"context"
	"errors"

	"eamcrm/internal/apperr"
	"eamcrm/internal/models"
	"eamcrm/internal/visibility"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ProductRepository struct {
	db      *gorm.DB
	modules *ModuleRepository
}

func NewProductRepository(db *gorm.DB) *ProductRepository {
	return &ProductRepository{db: db, modules: NewModuleRepository(db)}
}

// ProductFilter narrows a tenant product listing.
type ProductFilter struct {
	ModuleID    string
	ModuleCode  string
	CategoryID  string
	RiskLevel   string
	VisibleOnly bool
	Page        Page
}

// ProductAccess is a product together with the tenant's TenantProduct row
// (nil for tenant-owned products and never-toggled unlocked products).
type ProductAccess struct {
	Product       models.Product
	TenantProduct *models.TenantProduct
}

func (a ProductAccess) EffectiveVisible() bool {
	return visibility.Effective(a.Product, a.TenantProduct)
}

// Get loads a product with its module and category.
func (r *ProductRepository) Get(ctx context.Context, id string) (*models.Product, error) {
	if !validID(id) {
		return nil, apperr.NotFound("Product not found")
	}
	var p models.Product
	err := r.db.WithContext(ctx).Preload("Module").Preload("CategoryRel").First(&p, "id = ?", id).Error
	if err != nil {
		return nil, notFound(err, "Product")
	}
	return &p, nil
}

// GetByCode looks a code up in exactly one scope: the platform when
// tenantID is nil, that tenant otherwise.
func (r *ProductRepository) GetByCode(ctx context.Context, code, moduleID string, tenantID *string) (*models.Product, error) {
	q := r.db.WithContext(ctx).Where("code = ? AND module_id = ?", code, moduleID)
	if tenantID == nil {
		q = q.Where("tenant_id IS NULL")
	} else {
		q = q.Where("tenant_id = ?", *tenantID)
	}
	var p models.Product
	err := q.First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Internal(err, "load product by code")
	}
	return &p, nil
}

// ListVisibleProducts returns the products tenantID can reach through an
// enabled module, ordered by category then name. With VisibleOnly the
// per-origin visibility rule is applied in SQL so pagination counts only
// listed rows.
func (r *ProductRepository) ListVisibleProducts(ctx context.Context, tenantID string, f ProductFilter) ([]ProductAccess, error) {
	if tenantID == "" {
		return nil, apperr.Invalid("User must belong to a tenant")
	}
	for _, id := range [][2]string{{"tenant_id", tenantID}, {"module_id", f.ModuleID}, {"category_id", f.CategoryID}} {
		if err := checkIDFilter(id[0], id[1]); err != nil {
			return nil, err
		}
	}
	page, err := f.Page.Normalize()
	if err != nil {
		return nil, err
	}
	moduleID := f.ModuleID
	if moduleID == "" && f.ModuleCode != "" {
		m, err := r.modules.GetByCode(ctx, f.ModuleCode)
		if apperr.Is(err, apperr.KindNotFound) {
			return []ProductAccess{}, nil
		}
		if err != nil {
			return nil, err
		}
		moduleID = m.ID
	}

	q := r.db.WithContext(ctx).Model(&models.Product{}).
		Select("products.*").
		Joins("LEFT JOIN tenant_products tp ON tp.product_id = products.id AND tp.tenant_id = ?", tenantID).
		Where("products.module_id IN (?)", r.modules.EnabledModuleIDs(ctx, tenantID)).
		Where("((products.tenant_id IS NULL AND products.is_default = ? AND (products.is_unlocked_for_all = ? OR tp.id IS NOT NULL)) OR products.tenant_id = ?)",
			true, true, tenantID)

	if moduleID != "" {
		q = q.Where("products.module_id = ?", moduleID)
	}
	if f.CategoryID != "" {
		q = q.Where("products.category_id = ?", f.CategoryID)
	}
	if f.RiskLevel != "" {
		q = q.Where("products.risk_level = ?", f.RiskLevel)
	}
	if f.VisibleOnly {
		q = q.Where("((products.tenant_id = ? AND products.is_visible = ?)"+
			" OR (products.tenant_id IS NULL AND products.is_unlocked_for_all = ? AND (tp.is_visible = ? OR (tp.id IS NULL AND products.is_visible = ?)))"+
			" OR (products.tenant_id IS NULL AND products.is_unlocked_for_all = ? AND tp.is_visible = ?))",
			tenantID, true, true, true, true, false, true)
	}

	var products []models.Product
	err = q.Preload("Module").Preload("CategoryRel").
		Order("products.category, products.name, products.id").
		Offset(page.Skip).Limit(page.Limit).
		Find(&products).Error
	if err != nil {
		return nil, apperr.Internal(err, "list products")
	}
	return r.attachTenantProducts(ctx, tenantID, products)
}

func (r *ProductRepository) attachTenantProducts(ctx context.Context, tenantID string, products []models.Product) ([]ProductAccess, error) {
	out := make([]ProductAccess, 0, len(products))
	if len(products) == 0 {
		return out, nil
	}
	ids := make([]string, 0, len(products))
	for _, p := range products {
		if p.IsPlatform() {
			ids = append(ids, p.ID)
		}
	}
	byProduct := map[string]*models.TenantProduct{}
	if len(ids) > 0 {
		var tps []models.TenantProduct
		if err := r.db.WithContext(ctx).Where("tenant_id = ? AND product_id IN ?", tenantID, ids).Find(&tps).Error; err != nil {
			return nil, apperr.Internal(err, "load tenant products")
		}
		for i := range tps {
			byProduct[tps[i].ProductID] = &tps[i]
		}
	}
	for _, p := range products {
		out = append(out, ProductAccess{Product: p, TenantProduct: byProduct[p.ID]})
	}
	return out, nil
}

// GetForTenant is the single-product form of ListVisibleProducts. Instead
// of omitting an ineligible product it says which precondition failed.
func (r *ProductRepository) GetForTenant(ctx context.Context, tenantID, productID string) (ProductAccess, error) {
	p, err := r.Get(ctx, productID)
	if err != nil {
		return ProductAccess{}, err
	}
	if tenantID == "" {
		return ProductAccess{}, apperr.Invalid("User must belong to a tenant")
	}
	if p.TenantID != nil && *p.TenantID != tenantID {
		return ProductAccess{}, apperr.Forbidden("Access denied")
	}
	m := p.Module
	if m == nil {
		return ProductAccess{}, apperr.NotFound("Product module not found")
	}
	if !m.IsActive {
		return ProductAccess{}, apperr.Forbidden("Module is not active")
	}
	enabled, err := r.modules.IsModuleEnabled(ctx, tenantID, *m)
	if err != nil {
		return ProductAccess{}, err
	}
	if !enabled {
		return ProductAccess{}, apperr.Forbidden("Module not enabled for this tenant")
	}
	var tp *models.TenantProduct
	if p.IsPlatform() {
		if tp, err = r.GetTenantProduct(ctx, tenantID, p.ID); err != nil {
			return ProductAccess{}, err
		}
	}
	if visibility.Classify(*p, tenantID, tp) == visibility.Unreachable {
		return ProductAccess{}, apperr.Forbidden("Product not available for this tenant")
	}
	return ProductAccess{Product: *p, TenantProduct: tp}, nil
}

// ListDefaults returns platform default products.
func (r *ProductRepository) ListDefaults(ctx context.Context, moduleID string, visibleOnly bool) ([]models.Product, error) {
	if err := checkIDFilter("module_id", moduleID); err != nil {
		return nil, err
	}
	q := r.db.WithContext(ctx).Where("tenant_id IS NULL AND is_default = ?", true)
	if moduleID != "" {
		q = q.Where("module_id = ?", moduleID)
	}
	if visibleOnly {
		q = q.Where("is_visible = ?", true)
	}
	var ps []models.Product
	err := q.Preload("Module").Preload("CategoryRel").Order("category, name, id").Find(&ps).Error
	if err != nil {
		return nil, apperr.Internal(err, "list default products")
	}
	return ps, nil
}

func (r *ProductRepository) validateNew(ctx context.Context, p *models.Product) error {
	if p.Code == "" || len(p.Code) > 50 {
		return apperr.Invalid("code is required and must be at most 50 characters")
	}
	if p.Name == "" {
		return apperr.Invalid("name is required")
	}
	if _, err := r.modules.Get(ctx, p.ModuleID); err != nil {
		return err
	}
	if p.CategoryID != nil {
		if err := r.checkCategory(ctx, *p.CategoryID, p.TenantID); err != nil {
			return err
		}
	}
	if p.Currency == "" {
		p.Currency = "USD"
	}
	return nil
}

// checkCategory accepts platform categories and the owning tenant's own.
func (r *ProductRepository) checkCategory(ctx context.Context, categoryID string, tenantID *string) error {
	if !validID(categoryID) {
		return apperr.Invalid("Category not found")
	}
	q := r.db.WithContext(ctx).Model(&models.ProductCategory{}).Where("id = ?", categoryID)
	if tenantID == nil {
		q = q.Where("tenant_id IS NULL")
	} else {
		q = q.Where("tenant_id IS NULL OR tenant_id = ?", *tenantID)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return apperr.Internal(err, "check category")
	}
	if n == 0 {
		return apperr.Invalid("Category not found")
	}
	return nil
}

// CreateDefault creates a platform product. Unless it is unlocked for all,
// it is synced to tenantIDs in the same transaction.
func (r *ProductRepository) CreateDefault(ctx context.Context, p *models.Product, tenantIDs []string) error {
	p.TenantID = nil
	p.IsDefault = true
	if err := r.validateNew(ctx, p); err != nil {
		return err
	}
	existing, err := r.GetByCode(ctx, p.Code, p.ModuleID, nil)
	if err != nil {
		return err
	}
	if existing != nil {
		return apperr.Conflict("Default product with code '%s' already exists in this module", p.Code)
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txr := NewProductRepository(tx)
		if !p.IsUnlockedForAll && len(tenantIDs) > 0 {
			if err := NewTenantRepository(tx).RequireExisting(ctx, tenantIDs); err != nil {
				return err
			}
		}
		if err := tx.Create(p).Error; err != nil {
			return dbErr(err, "create product")
		}
		if !p.IsUnlockedForAll && len(tenantIDs) > 0 {
			if _, err := txr.SyncToTenants(ctx, p.ID, tenantIDs); err != nil {
				return err
			}
		}
		return nil
	})
}

// CreateForTenant creates a product owned by tenantID. The module must be
// enabled for the tenant.
func (r *ProductRepository) CreateForTenant(ctx context.Context, p *models.Product, tenantID string) error {
	if tenantID == "" {
		return apperr.Invalid("User must belong to a tenant")
	}
	p.TenantID = &tenantID
	p.IsDefault = false
	p.IsUnlockedForAll = false
	if err := r.validateNew(ctx, p); err != nil {
		return err
	}
	m, err := r.modules.Get(ctx, p.ModuleID)
	if err != nil {
		return err
	}
	enabled, err := r.modules.IsModuleEnabled(ctx, tenantID, *m)
	if err != nil {
		return err
	}
	if !enabled {
		return apperr.Forbidden("Module not enabled for this tenant")
	}
	existing, err := r.GetByCode(ctx, p.Code, p.ModuleID, &tenantID)
	if err != nil {
		return err
	}
	if existing != nil {
		return apperr.Conflict("Product with code '%s' already exists in this module", p.Code)
	}
	return dbErr(r.db.WithContext(ctx).Create(p).Error, "create product")
}

// ProductUpdate holds the mutable catalog fields. Code and module are
// fixed at creation.
type ProductUpdate struct {
	CategoryID     *string
	Name           *string
	NameZh         *string
	Description    *string
	DescriptionZh  *string
	Category       *string
	RiskLevel      *string
	MinInvestment  *string
	Currency       *string
	ExpectedReturn *string
	IsVisible      *bool
	ExtraData      models.JSONB
}

func (r *ProductRepository) Update(ctx context.Context, p *models.Product, u ProductUpdate) error {
	updates := map[string]any{}
	if u.CategoryID != nil {
		if *u.CategoryID == "" {
			updates["category_id"] = nil
		} else {
			if err := r.checkCategory(ctx, *u.CategoryID, p.TenantID); err != nil {
				return err
			}
			updates["category_id"] = *u.CategoryID
		}
	}
	if u.Name != nil {
		if *u.Name == "" {
			return apperr.Invalid("name must not be empty")
		}
		updates["name"] = *u.Name
	}
	set := func(col string, v *string) {
		if v != nil {
			updates[col] = *v
		}
	}
	set("name_zh", u.NameZh)
	set("description", u.Description)
	set("description_zh", u.DescriptionZh)
	set("category", u.Category)
	set("risk_level", u.RiskLevel)
	set("currency", u.Currency)
	set("expected_return", u.ExpectedReturn)
	if u.MinInvestment != nil {
		d, err := parseDecimal(*u.MinInvestment, "min_investment")
		if err != nil {
			return err
		}
		updates["min_investment"] = d
	}
	if u.IsVisible != nil {
		updates["is_visible"] = *u.IsVisible
	}
	if u.ExtraData != nil {
		updates["extra_data"] = u.ExtraData
	}
	if len(updates) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Model(&models.Product{}).Where("id = ?", p.ID).Updates(updates).Error; err != nil {
		return dbErr(err, "update product")
	}
	return nil
}

// Delete removes p and, for platform products, every sync row.
func (r *ProductRepository) Delete(ctx context.Context, p *models.Product) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("product_id = ?", p.ID).Delete(&models.TenantProduct{}).Error; err != nil {
			return apperr.Internal(err, "delete tenant products")
		}
		if err := tx.Delete(&models.Product{}, "id = ?", p.ID).Error; err != nil {
			return apperr.Internal(err, "delete product")
		}
		return nil
	})
}

// GetTenantProduct returns the sync row, or nil when none exists.
func (r *ProductRepository) GetTenantProduct(ctx context.Context, tenantID, productID string) (*models.TenantProduct, error) {
	var tp models.TenantProduct
	err := r.db.WithContext(ctx).First(&tp, "tenant_id = ? AND product_id = ?", tenantID, productID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Internal(err, "load tenant product")
	}
	return &tp, nil
}

func (r *ProductRepository) GetSyncedTenantIDs(ctx context.Context, productID string) ([]string, error) {
	ids := []string{}
	err := r.db.WithContext(ctx).Model(&models.TenantProduct{}).
		Where("product_id = ?", productID).
		Order("tenant_id").
		Pluck("tenant_id", &ids).Error
	if err != nil {
		return nil, apperr.Internal(err, "list synced tenants")
	}
	return ids, nil
}

// SyncedTenantIDsFor is GetSyncedTenantIDs for many products in one query.
// Every requested product has an entry, empty when it is not synced.
func (r *ProductRepository) SyncedTenantIDsFor(ctx context.Context, productIDs []string) (map[string][]string, error) {
	out := make(map[string][]string, len(productIDs))
	for _, id := range productIDs {
		out[id] = []string{}
	}
	if len(productIDs) == 0 {
		return out, nil
	}
	var rows []models.TenantProduct
	err := r.db.WithContext(ctx).Select("product_id", "tenant_id").
		Where("product_id IN ?", productIDs).
		Order("product_id, tenant_id").
		Find(&rows).Error
	if err != nil {
		return nil, apperr.Internal(err, "list synced tenants")
	}
	for _, row := range rows {
		out[row.ProductID] = append(out[row.ProductID], row.TenantID)
	}
	return out, nil
}

// SyncToTenants creates missing sync rows (visible by default) and skips
// existing ones. It returns only the rows it created.
func (r *ProductRepository) SyncToTenants(ctx context.Context, productID string, tenantIDs []string) ([]models.TenantProduct, error) {
	current, err := r.GetSyncedTenantIDs(ctx, productID)
	if err != nil {
		return nil, err
	}
	have := make(map[string]struct{}, len(current))
	for _, id := range current {
		have[id] = struct{}{}
	}
	var rows []models.TenantProduct
	for _, tid := range uniqueStrings(tenantIDs) {
		if _, ok := have[tid]; ok {
			continue
		}
		rows = append(rows, models.TenantProduct{TenantID: tid, ProductID: productID, IsVisible: true})
	}
	if len(rows) == 0 {
		return nil, nil
	}
	err = r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "product_id"}},
		DoNothing: true,
	}).Create(&rows).Error
	if err != nil {
		return nil, dbErr(err, "sync product")
	}
	return rows, nil
}

func (r *ProductRepository) UnsyncFromTenants(ctx context.Context, productID string, tenantIDs []string) (int64, error) {
	if len(tenantIDs) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Where("product_id = ? AND tenant_id IN ?", productID, tenantIDs).
		Delete(&models.TenantProduct{})
	if res.Error != nil {
		return 0, apperr.Internal(res.Error, "unsync product")
	}
	return res.RowsAffected, nil
}

// SyncChange reports what SetSyncedTenants did.
type SyncChange struct {
	Added   []string `json:"added"`
	Removed []string `json:"removed"`
}

// SetSyncedTenants makes the set of tenants synced to a platform product
// exactly tenantIDs. Removals and insertions share one transaction.
func (r *ProductRepository) SetSyncedTenants(ctx context.Context, productID string, tenantIDs []string) (SyncChange, error) {
	var change SyncChange
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txr := NewProductRepository(tx)
		p, err := txr.Get(ctx, productID)
		if err != nil {
			return err
		}
		if !p.IsPlatform() {
			return apperr.Invalid("Only platform products can have sync settings")
		}
		current, err := txr.GetSyncedTenantIDs(ctx, productID)
		if err != nil {
			return err
		}
		want := uniqueStrings(tenantIDs)
		wantSet := make(map[string]struct{}, len(want))
		for _, id := range want {
			wantSet[id] = struct{}{}
		}
		haveSet := make(map[string]struct{}, len(current))
		for _, id := range current {
			haveSet[id] = struct{}{}
			if _, ok := wantSet[id]; !ok {
				change.Removed = append(change.Removed, id)
			}
		}
		for _, id := range want {
			if _, ok := haveSet[id]; !ok {
				change.Added = append(change.Added, id)
			}
		}
		if _, err := txr.UnsyncFromTenants(ctx, productID, change.Removed); err != nil {
			return err
		}
		_, err = txr.SyncToTenants(ctx, productID, change.Added)
		return err
	})
	return change, err
}

// SyncSettings is a platform admin's change to how a product is shared.
// Nil fields are left as they are.
type SyncSettings struct {
	IsUnlockedForAll *bool
	TenantIDs        *[]string
}

// ConfigureSync applies s to a platform product. Rows created while the
// product was unlocked survive a switch to locked and act as explicit
// syncs unless s.TenantIDs replaces them.
func (r *ProductRepository) ConfigureSync(ctx context.Context, productID string, s SyncSettings) (SyncChange, error) {
	var change SyncChange
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txr := NewProductRepository(tx)
		p, err := txr.Get(ctx, productID)
		if err != nil {
			return err
		}
		if !p.IsPlatform() {
			return apperr.Invalid("Only platform products can have sync settings")
		}
		if s.IsUnlockedForAll != nil && *s.IsUnlockedForAll != p.IsUnlockedForAll {
			if err := tx.Model(&models.Product{}).Where("id = ?", p.ID).Update("is_unlocked_for_all", *s.IsUnlockedForAll).Error; err != nil {
				return dbErr(err, "update product sync")
			}
		}
		if s.TenantIDs != nil {
			if err := NewTenantRepository(tx).RequireExisting(ctx, *s.TenantIDs); err != nil {
				return err
			}
			change, err = txr.SetSyncedTenants(ctx, productID, *s.TenantIDs)
			return err
		}
		return nil
	})
	return change, err
}

// UpdateVisibility sets tenantID's visibility of a product. Tenant-owned
// products change their own flag; unlocked platform products get a sync
// row on first toggle; synced-only products need an existing row.
func (r *ProductRepository) UpdateVisibility(ctx context.Context, tenantID, productID string, isVisible bool) (ProductAccess, error) {
	if tenantID == "" {
		return ProductAccess{}, apperr.Invalid("User must belong to a tenant")
	}
	if _, err := NewTenantRepository(r.db).Get(ctx, tenantID); err != nil {
		return ProductAccess{}, err
	}
	p, err := r.Get(ctx, productID)
	if err != nil {
		return ProductAccess{}, err
	}
	var tp *models.TenantProduct
	if p.IsPlatform() {
		if tp, err = r.GetTenantProduct(ctx, tenantID, p.ID); err != nil {
			return ProductAccess{}, err
		}
	}
	switch visibility.Classify(*p, tenantID, tp) {
	case visibility.TenantOwned:
		if err := r.db.WithContext(ctx).Model(&models.Product{}).Where("id = ?", p.ID).Update("is_visible", isVisible).Error; err != nil {
			return ProductAccess{}, dbErr(err, "update product visibility")
		}
		p.IsVisible = isVisible
		return ProductAccess{Product: *p}, nil
	case visibility.PlatformUnlocked:
		if tp == nil {
			created := models.TenantProduct{TenantID: tenantID, ProductID: p.ID, IsVisible: isVisible}
			err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "product_id"}},
				DoNothing: true,
			}).Create(&created).Error
			if err != nil {
				return ProductAccess{}, dbErr(err, "create tenant product")
			}
			if tp, err = r.GetTenantProduct(ctx, tenantID, p.ID); err != nil {
				return ProductAccess{}, err
			}
		}
		return r.setTenantVisibility(ctx, p, tp, isVisible)
	case visibility.PlatformSynced:
		return r.setTenantVisibility(ctx, p, tp, isVisible)
	default:
		if p.TenantID != nil {
			return ProductAccess{}, apperr.Forbidden("Access denied")
		}
		return ProductAccess{}, apperr.Forbidden("Product not synced to this tenant")
	}
}

func (r *ProductRepository) setTenantVisibility(ctx context.Context, p *models.Product, tp *models.TenantProduct, isVisible bool) (ProductAccess, error) {
	if tp == nil {
		return ProductAccess{}, apperr.Internal(errors.New("missing tenant product"), "update visibility")
	}
	if tp.IsVisible != isVisible {
		if err := r.db.WithContext(ctx).Model(tp).Update("is_visible", isVisible).Error; err != nil {
			return ProductAccess{}, dbErr(err, "update tenant product visibility")
		}
		tp.IsVisible = isVisible
	}
	return ProductAccess{Product: *p, TenantProduct: tp}, nil
}
