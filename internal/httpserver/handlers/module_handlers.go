package handlers

import (
	"net/http"

	"eamcrm/internal/apperr"
	"eamcrm/internal/auth"
	"eamcrm/internal/events"
	"eamcrm/internal/models"
	"eamcrm/internal/repository"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"
)

// ListModules returns active modules with their enabled state for the
// caller's tenant. Cross-tenant readers may pass ?tenant_id=.
func ListModules(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := idParams(r, "tenant_id"); err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		c := auth.FromContext(r.Context())
		scope, err := auth.ListScope(c, r.URL.Query().Get("tenant_id"))
		if err == nil {
			scope, err = tenantFor(c, scope)
		}
		if err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		out, err := repository.NewModuleRepository(env.DB).ListForTenant(r.Context(), scope)
		if err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		respondJSON(w, out)
	}
}

// ListAllModules returns the whole registry, inactive modules included.
func ListAllModules(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ms, err := repository.NewModuleRepository(env.DB).List(r.Context(), true)
		if err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		respondJSON(w, ms)
	}
}

type moduleReq struct {
	Code          string                `json:"code"`
	Name          string                `json:"name"`
	NameZh        *string               `json:"name_zh"`
	Description   *string               `json:"description"`
	DescriptionZh *string               `json:"description_zh"`
	Version       string                `json:"version"`
	Category      models.ModuleCategory `json:"category"`
	IsCore        bool                  `json:"is_core"`
	IsActive      *bool                 `json:"is_active"`
	ConfigSchema  models.JSONB          `json:"config_schema"`
}

func CreateModule(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := auth.FromContext(r.Context())
		if err := auth.Authorize(c, auth.ActionManagePlatform, nil); err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		var req moduleReq
		if err := decodeJSON(r, &req); err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		m := models.Module{
			Code: req.Code, Name: req.Name, NameZh: req.NameZh,
			Description: req.Description, DescriptionZh: req.DescriptionZh,
			Version: req.Version, Category: req.Category, IsCore: req.IsCore,
			IsActive: true, ConfigSchema: req.ConfigSchema,
		}
		if req.IsActive != nil {
			m.IsActive = *req.IsActive
		}
		if m.IsCore {
			m.IsActive = true
		}
		ev := event(events.ModuleCreated, c, nil, "", nil)
		err := env.inTx(r.Context(), func(tx *gorm.DB) error {
			if err := repository.NewModuleRepository(tx).Create(r.Context(), &m); err != nil {
				return err
			}
			ev.ResourceID = m.ID
			ev.Data = map[string]any{"code": m.Code, "is_core": m.IsCore}
			return audit(r.Context(), tx, c, nil, "module.create", "module", m.ID, ev.Data)
		}, ev)
		if err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		respondStatus(w, http.StatusCreated, m)
	}
}

type moduleUpdateReq struct {
	Name          *string                `json:"name"`
	NameZh        *string                `json:"name_zh"`
	Description   *string                `json:"description"`
	DescriptionZh *string                `json:"description_zh"`
	Category      *models.ModuleCategory `json:"category"`
	IsActive      *bool                  `json:"is_active"`
	Version       *string                `json:"version"`
	Code          *string                `json:"code"`
	IsCore        *bool                  `json:"is_core"`
}

func UpdateModule(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := auth.FromContext(r.Context())
		if err := auth.Authorize(c, auth.ActionManagePlatform, nil); err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		var req moduleUpdateReq
		if err := decodeJSON(r, &req); err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		if req.Code != nil || req.IsCore != nil {
			respondError(w, r, env.Log, apperr.Invalid("code and is_core cannot be changed"))
			return
		}
		id := chi.URLParam(r, "id")
		var m *models.Module
		ev := event(events.ModuleUpdated, c, nil, id, nil)
		err := env.inTx(r.Context(), func(tx *gorm.DB) error {
			var err error
			m, err = repository.NewModuleRepository(tx).Update(r.Context(), id, repository.ModuleUpdate{
				Name: req.Name, NameZh: req.NameZh, Description: req.Description,
				DescriptionZh: req.DescriptionZh, Category: req.Category,
				IsActive: req.IsActive, Version: req.Version,
			})
			if err != nil {
				return err
			}
			ev.Data = map[string]any{"code": m.Code, "is_active": m.IsActive}
			return audit(r.Context(), tx, c, nil, "module.update", "module", m.ID, ev.Data)
		}, ev)
		if err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		respondJSON(w, m)
	}
}

type entitlementReq struct {
	Config models.JSONB `json:"config"`
}

// SetModuleEnabled enables or disables a gated module for ?tenant_id=.
func SetModuleEnabled(env *Env, enabled bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := idParams(r, "tenant_id"); err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		c := auth.FromContext(r.Context())
		tenantID := r.URL.Query().Get("tenant_id")
		if tenantID == "" {
			respondError(w, r, env.Log, apperr.Invalid("tenant_id is required"))
			return
		}
		if err := auth.Authorize(c, auth.ActionManagePlatform, &tenantID); err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		var req entitlementReq
		if r.ContentLength > 0 {
			if err := decodeJSON(r, &req); err != nil {
				respondError(w, r, env.Log, err)
				return
			}
		}
		moduleID := chi.URLParam(r, "id")
		var tm *models.TenantModule
		ev := event(events.ModuleEntitlement, c, &tenantID, moduleID, map[string]any{"is_enabled": enabled})
		err := env.inTx(r.Context(), func(tx *gorm.DB) error {
			if _, err := repository.NewTenantRepository(tx).Get(r.Context(), tenantID); err != nil {
				return err
			}
			var err error
			tm, err = repository.NewModuleRepository(tx).SetEnabled(r.Context(), tenantID, moduleID, enabled, req.Config)
			if err != nil {
				return err
			}
			return audit(r.Context(), tx, c, &tenantID, "module.entitlement", "module", moduleID, ev.Data)
		}, ev)
		if err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		if env.Metrics != nil {
			env.Metrics.EntitlementChange.WithLabelValues(boolLabel(enabled)).Inc()
		}
		respondJSON(w, tm)
	}
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
