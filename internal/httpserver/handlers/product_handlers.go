package handlers

import (
	"net/http"

	"eamcrm/internal/apperr"
	"eamcrm/internal/auth"
	"eamcrm/internal/events"
	"eamcrm/internal/models"
	"eamcrm/internal/repository"
	"eamcrm/internal/visibility"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// productResponse is a product as one audience sees it. IsVisible is the
// effective visibility for the requesting tenant.
type productResponse struct {
	models.Product
	IsVisible       bool     `json:"is_visible"`
	ModuleCode      *string  `json:"module_code"`
	ModuleName      *string  `json:"module_name"`
	CategoryName    *string  `json:"category_name"`
	SyncedTenantIDs []string `json:"synced_tenant_ids,omitempty"`
}

func toProductResponse(p models.Product, tp *models.TenantProduct, synced []string) productResponse {
	out := productResponse{Product: p, IsVisible: visibility.Effective(p, tp), SyncedTenantIDs: synced}
	if p.Module != nil {
		out.ModuleCode, out.ModuleName = &p.Module.Code, &p.Module.Name
	}
	if p.CategoryRel != nil {
		out.CategoryName = &p.CategoryRel.Name
	}
	return out
}

// ListProducts is the tenant catalog: products reachable through enabled
// modules, filtered and paged.
func ListProducts(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := idParams(r, "tenant_id", "module_id", "category_id"); err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		c := auth.FromContext(r.Context())
		q := r.URL.Query()
		scope, err := auth.ListScope(c, q.Get("tenant_id"))
		if err == nil {
			scope, err = tenantFor(c, scope)
		}
		if err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		page, err := pageParams(r)
		if err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		visibleOnly, err := boolParam(r, "visible_only", true)
		if err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		rows, err := repository.NewProductRepository(env.DB).ListVisibleProducts(r.Context(), scope, repository.ProductFilter{
			ModuleID:    q.Get("module_id"),
			ModuleCode:  q.Get("module_code"),
			CategoryID:  q.Get("category_id"),
			RiskLevel:   q.Get("risk_level"),
			VisibleOnly: visibleOnly,
			Page:        page,
		})
		if err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		out := make([]productResponse, 0, len(rows))
		for _, row := range rows {
			out = append(out, toProductResponse(row.Product, row.TenantProduct, nil))
		}
		respondJSON(w, out)
	}
}

// ListDefaultProducts returns platform products with the tenants each is
// synced to.
func ListDefaultProducts(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := idParams(r, "module_id"); err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		visibleOnly, err := boolParam(r, "visible_only", true)
		if err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		repo := repository.NewProductRepository(env.DB)
		ps, err := repo.ListDefaults(r.Context(), r.URL.Query().Get("module_id"), visibleOnly)
		if err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		ids := make([]string, len(ps))
		for i, p := range ps {
			ids[i] = p.ID
		}
		synced, err := repo.SyncedTenantIDsFor(r.Context(), ids)
		if err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		out := make([]productResponse, 0, len(ps))
		for _, p := range ps {
			out = append(out, toProductResponse(p, nil, synced[p.ID]))
		}
		respondJSON(w, out)
	}
}

// GetProduct returns one product. Cross-tenant readers get the raw
// product and its sync list; everyone else gets the tenant view with an
// explicit reason when it is not available.
func GetProduct(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := auth.FromContext(r.Context())
		id := chi.URLParam(r, "id")
		repo := repository.NewProductRepository(env.DB)
		if c.Can(auth.ActionReadPlatform) {
			p, err := repo.Get(r.Context(), id)
			if err != nil {
				respondError(w, r, env.Log, err)
				return
			}
			synced, err := repo.GetSyncedTenantIDs(r.Context(), p.ID)
			if err != nil {
				respondError(w, r, env.Log, err)
				return
			}
			respondJSON(w, toProductResponse(*p, nil, synced))
			return
		}
		acc, err := repo.GetForTenant(r.Context(), c.TenantID, id)
		if err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		respondJSON(w, toProductResponse(acc.Product, acc.TenantProduct, nil))
	}
}

type productReq struct {
	ModuleID         string       `json:"module_id"`
	CategoryID       *string      `json:"category_id"`
	Code             string       `json:"code"`
	Name             string       `json:"name"`
	NameZh           *string      `json:"name_zh"`
	Description      *string      `json:"description"`
	DescriptionZh    *string      `json:"description_zh"`
	Category         string       `json:"category"`
	RiskLevel        *string      `json:"risk_level"`
	MinInvestment    *string      `json:"min_investment"`
	Currency         string       `json:"currency"`
	ExpectedReturn   *string      `json:"expected_return"`
	IsVisible        *bool        `json:"is_visible"`
	IsUnlockedForAll bool         `json:"is_unlocked_for_all"`
	TenantIDs        []string     `json:"tenant_ids"`
	ExtraData        models.JSONB `json:"extra_data"`
}

func (req productReq) product() (models.Product, error) {
	p := models.Product{
		ModuleID: req.ModuleID, CategoryID: req.CategoryID, Code: req.Code, Name: req.Name,
		NameZh: req.NameZh, Description: req.Description, DescriptionZh: req.DescriptionZh,
		Category: req.Category, RiskLevel: req.RiskLevel, Currency: req.Currency,
		ExpectedReturn: req.ExpectedReturn, IsVisible: true, ExtraData: req.ExtraData,
	}
	if req.IsVisible != nil {
		p.IsVisible = *req.IsVisible
	}
	if req.MinInvestment != nil && *req.MinInvestment != "" {
		d, err := decimal.NewFromString(*req.MinInvestment)
		if err != nil || d.IsNegative() {
			return p, apperr.Invalid("min_investment must be a non-negative decimal")
		}
		p.MinInvestment = &d
	}
	if p.Category == "" {
		return p, apperr.Invalid("category is required")
	}
	return p, nil
}

// CreateProduct adds a product owned by the caller's tenant.
func CreateProduct(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := auth.FromContext(r.Context())
		tenantID, err := tenantFor(c, "")
		if err == nil {
			err = auth.Authorize(c, auth.ActionManageTenant, &tenantID)
		}
		if err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		var req productReq
		if err := decodeJSON(r, &req); err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		p, err := req.product()
		if err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		ev := event(events.ProductCreated, c, &tenantID, "", nil)
		err = env.inTx(r.Context(), func(tx *gorm.DB) error {
			repo := repository.NewProductRepository(tx)
			if err := repo.CreateForTenant(r.Context(), &p, tenantID); err != nil {
				return err
			}
			ev.ResourceID = p.ID
			ev.Data = map[string]any{"code": p.Code, "module_id": p.ModuleID}
			return audit(r.Context(), tx, c, &tenantID, "product.create", "product", p.ID, ev.Data)
		}, ev)
		if err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		stored, err := repository.NewProductRepository(env.DB).Get(r.Context(), p.ID)
		if err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		respondStatus(w, http.StatusCreated, toProductResponse(*stored, nil, nil))
	}
}

// CreateDefaultProduct adds a platform product and syncs it to the given
// tenants unless it is unlocked for all.
func CreateDefaultProduct(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := auth.FromContext(r.Context())
		if err := auth.Authorize(c, auth.ActionManagePlatform, nil); err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		var req productReq
		if err := decodeJSON(r, &req); err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		p, err := req.product()
		if err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		p.IsUnlockedForAll = req.IsUnlockedForAll
		var synced []string
		created := event(events.ProductCreated, c, nil, "", nil)
		sync := event(events.ProductSynced, c, nil, "", nil)
		err = env.inTx(r.Context(), func(tx *gorm.DB) error {
			repo := repository.NewProductRepository(tx)
			if err := repo.CreateDefault(r.Context(), &p, req.TenantIDs); err != nil {
				return err
			}
			var err error
			if synced, err = repo.GetSyncedTenantIDs(r.Context(), p.ID); err != nil {
				return err
			}
			created.ResourceID = p.ID
			created.Data = map[string]any{"code": p.Code, "module_id": p.ModuleID, "is_unlocked_for_all": p.IsUnlockedForAll}
			if len(synced) > 0 {
				sync.ResourceID = p.ID
				sync.Data = map[string]any{"added": synced}
			} else {
				sync.Type = ""
			}
			return audit(r.Context(), tx, c, nil, "product.create_default", "product", p.ID,
				map[string]any{"code": p.Code, "tenant_ids": synced, "is_unlocked_for_all": p.IsUnlockedForAll})
		}, created, sync)
		if err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		stored, err := repository.NewProductRepository(env.DB).Get(r.Context(), p.ID)
		if err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		respondStatus(w, http.StatusCreated, toProductResponse(*stored, nil, synced))
	}
}

type productUpdateReq struct {
	CategoryID     *string      `json:"category_id"`
	Name           *string      `json:"name"`
	NameZh         *string      `json:"name_zh"`
	Description    *string      `json:"description"`
	DescriptionZh  *string      `json:"description_zh"`
	Category       *string      `json:"category"`
	RiskLevel      *string      `json:"risk_level"`
	MinInvestment  *string      `json:"min_investment"`
	Currency       *string      `json:"currency"`
	ExpectedReturn *string      `json:"expected_return"`
	IsVisible      *bool        `json:"is_visible"`
	ExtraData      models.JSONB `json:"extra_data"`
}

// loadOwned loads a product and checks c may write it: platform products
// need platform write, tenant products their own tenant.
func loadOwned(r *http.Request, tx *gorm.DB, c auth.Claims, id string) (*models.Product, error) {
	p, err := repository.NewProductRepository(tx).Get(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if err := auth.Authorize(c, auth.ActionManageTenant, p.TenantID); err != nil {
		return nil, err
	}
	return p, nil
}

func UpdateProduct(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := auth.FromContext(r.Context())
		var req productUpdateReq
		if err := decodeJSON(r, &req); err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		id := chi.URLParam(r, "id")
		ev := event(events.ProductUpdated, c, nil, id, nil)
		err := env.inTx(r.Context(), func(tx *gorm.DB) error {
			p, err := loadOwned(r, tx, c, id)
			if err != nil {
				return err
			}
			ev.TenantID = p.TenantID
			err = repository.NewProductRepository(tx).Update(r.Context(), p, repository.ProductUpdate{
				CategoryID: req.CategoryID, Name: req.Name, NameZh: req.NameZh,
				Description: req.Description, DescriptionZh: req.DescriptionZh,
				Category: req.Category, RiskLevel: req.RiskLevel, MinInvestment: req.MinInvestment,
				Currency: req.Currency, ExpectedReturn: req.ExpectedReturn,
				IsVisible: req.IsVisible, ExtraData: req.ExtraData,
			})
			if err != nil {
				return err
			}
			return audit(r.Context(), tx, c, p.TenantID, "product.update", "product", p.ID, nil)
		}, ev)
		if err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		repo := repository.NewProductRepository(env.DB)
		p, err := repo.Get(r.Context(), id)
		if err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		var synced []string
		if p.IsPlatform() {
			if synced, err = repo.GetSyncedTenantIDs(r.Context(), p.ID); err != nil {
				respondError(w, r, env.Log, err)
				return
			}
		}
		respondJSON(w, toProductResponse(*p, nil, synced))
	}
}

func DeleteProduct(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := auth.FromContext(r.Context())
		id := chi.URLParam(r, "id")
		ev := event(events.ProductDeleted, c, nil, id, nil)
		err := env.inTx(r.Context(), func(tx *gorm.DB) error {
			p, err := loadOwned(r, tx, c, id)
			if err != nil {
				return err
			}
			ev.TenantID = p.TenantID
			ev.Data = map[string]any{"code": p.Code}
			if err := repository.NewProductRepository(tx).Delete(r.Context(), p); err != nil {
				return err
			}
			return audit(r.Context(), tx, c, p.TenantID, "product.delete", "product", p.ID, ev.Data)
		}, ev)
		if err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

type visibilityReq struct {
	IsVisible *bool `json:"is_visible"`
}

// UpdateProductVisibility sets a tenant's visibility of a product. The
// tenant is the caller's own unless a platform manager names another with
// ?tenant_id=.
func UpdateProductVisibility(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := idParams(r, "tenant_id"); err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		c := auth.FromContext(r.Context())
		var req visibilityReq
		if err := decodeJSON(r, &req); err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		if req.IsVisible == nil {
			respondError(w, r, env.Log, apperr.Invalid("is_visible is required"))
			return
		}
		tenantID, err := tenantFor(c, r.URL.Query().Get("tenant_id"))
		if err == nil {
			err = auth.Authorize(c, auth.ActionManageTenant, &tenantID)
		}
		if err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		id := chi.URLParam(r, "id")
		var acc repository.ProductAccess
		ev := event(events.ProductVisibility, c, &tenantID, id, map[string]any{"is_visible": *req.IsVisible})
		err = env.inTx(r.Context(), func(tx *gorm.DB) error {
			var err error
			acc, err = repository.NewProductRepository(tx).UpdateVisibility(r.Context(), tenantID, id, *req.IsVisible)
			if err != nil {
				return err
			}
			origin := visibility.Classify(acc.Product, tenantID, acc.TenantProduct).String()
			ev.Data["origin"] = origin
			return audit(r.Context(), tx, c, &tenantID, "product.visibility", "product", id, ev.Data)
		}, ev)
		if err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		if env.Metrics != nil {
			env.Metrics.VisibilityToggles.WithLabelValues(ev.Data["origin"].(string)).Inc()
		}
		respondJSON(w, toProductResponse(acc.Product, acc.TenantProduct, nil))
	}
}

type syncReq struct {
	IsUnlockedForAll *bool     `json:"is_unlocked_for_all"`
	TenantIDs        *[]string `json:"tenant_ids"`
}

// UpdateProductSync changes the unlocked flag and/or the exact set of
// tenants a platform product is synced to.
func UpdateProductSync(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := auth.FromContext(r.Context())
		if err := auth.Authorize(c, auth.ActionManagePlatform, nil); err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		var req syncReq
		if err := decodeJSON(r, &req); err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		id := chi.URLParam(r, "id")
		var change repository.SyncChange
		ev := event(events.ProductSynced, c, nil, id, nil)
		err := env.inTx(r.Context(), func(tx *gorm.DB) error {
			var err error
			change, err = repository.NewProductRepository(tx).ConfigureSync(r.Context(), id, repository.SyncSettings{
				IsUnlockedForAll: req.IsUnlockedForAll,
				TenantIDs:        req.TenantIDs,
			})
			if err != nil {
				return err
			}
			ev.Data = map[string]any{"added": change.Added, "removed": change.Removed}
			if req.IsUnlockedForAll != nil {
				ev.Data["is_unlocked_for_all"] = *req.IsUnlockedForAll
			}
			return audit(r.Context(), tx, c, nil, "product.sync", "product", id, ev.Data)
		}, ev)
		if err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		if env.Metrics != nil {
			env.Metrics.SyncChanges.WithLabelValues("added").Add(float64(len(change.Added)))
			env.Metrics.SyncChanges.WithLabelValues("removed").Add(float64(len(change.Removed)))
		}
		repo := repository.NewProductRepository(env.DB)
		p, err := repo.Get(r.Context(), id)
		if err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		synced, err := repo.GetSyncedTenantIDs(r.Context(), id)
		if err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		respondJSON(w, toProductResponse(*p, nil, synced))
	}
}

// ListCategories returns platform categories plus the caller's tenant's.
func ListCategories(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := idParams(r, "tenant_id"); err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		c := auth.FromContext(r.Context())
		scope, err := auth.ListScope(c, r.URL.Query().Get("tenant_id"))
		if err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		if scope == "" {
			scope = c.TenantID
		}
		cats, err := repository.NewCategoryRepository(env.DB).ListForTenant(r.Context(), scope)
		if err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		respondJSON(w, cats)
	}
}

type categoryReq struct {
	Code      string  `json:"code"`
	Name      string  `json:"name"`
	NameZh    *string `json:"name_zh"`
	SortOrder int     `json:"sort_order"`
}

func CreateDefaultCategory(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := auth.FromContext(r.Context())
		if err := auth.Authorize(c, auth.ActionManagePlatform, nil); err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		var req categoryReq
		if err := decodeJSON(r, &req); err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		cat := models.ProductCategory{Code: req.Code, Name: req.Name, NameZh: req.NameZh, SortOrder: req.SortOrder}
		err := env.inTx(r.Context(), func(tx *gorm.DB) error {
			if err := repository.NewCategoryRepository(tx).CreateDefault(r.Context(), &cat); err != nil {
				return err
			}
			return audit(r.Context(), tx, c, nil, "category.create_default", "product_category", cat.ID, map[string]any{"code": cat.Code})
		})
		if err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		respondStatus(w, http.StatusCreated, cat)
	}
}
