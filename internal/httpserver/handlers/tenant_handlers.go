package handlers

import (
	"net/http"

	"eamcrm/internal/apperr"
	"eamcrm/internal/auth"
	"eamcrm/internal/events"
	"eamcrm/internal/models"
	"eamcrm/internal/repository"
	"eamcrm/internal/seed"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"
)

func ListTenants(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, err := pageParams(r)
		if err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		inactive, err := boolParam(r, "include_inactive", false)
		if err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		ts, err := repository.NewTenantRepository(env.DB).List(r.Context(), repository.TenantFilter{
			Search: r.URL.Query().Get("search"), IncludeInactive: inactive, Page: page,
		})
		if err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		respondJSON(w, ts)
	}
}

func GetTenant(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := auth.Authorize(auth.FromContext(r.Context()), auth.ActionRead, &id); err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		t, err := repository.NewTenantRepository(env.DB).Get(r.Context(), id)
		if err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		respondJSON(w, t)
	}
}

type tenantReq struct {
	Name         string       `json:"name"`
	Slug         string       `json:"slug"`
	ContactEmail *string      `json:"contact_email"`
	ContactPhone *string      `json:"contact_phone"`
	Branding     models.JSONB `json:"branding"`
	Settings     models.JSONB `json:"settings"`
}

func CreateTenant(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := auth.FromContext(r.Context())
		if err := auth.Authorize(c, auth.ActionManagePlatform, nil); err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		var req tenantReq
		if err := decodeJSON(r, &req); err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		if req.ContactEmail != nil && *req.ContactEmail != "" {
			email, err := repository.NormalizeEmail(*req.ContactEmail)
			if err != nil {
				respondError(w, r, env.Log, err)
				return
			}
			req.ContactEmail = &email
		}
		t := models.Tenant{
			Name: req.Name, Slug: req.Slug, ContactEmail: req.ContactEmail,
			ContactPhone: req.ContactPhone, Branding: req.Branding, Settings: req.Settings,
		}
		ev := event(events.TenantCreated, c, nil, "", nil)
		err := env.inTx(r.Context(), func(tx *gorm.DB) error {
			if err := repository.NewTenantRepository(tx).Create(r.Context(), &t); err != nil {
				return err
			}
			ev.TenantID, ev.ResourceID = &t.ID, t.ID
			ev.Data = map[string]any{"slug": t.Slug}
			return audit(r.Context(), tx, c, &t.ID, "tenant.create", "tenant", t.ID, ev.Data)
		}, ev)
		if err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		respondStatus(w, http.StatusCreated, t)
	}
}

type tenantUpdateReq struct {
	Name         *string      `json:"name"`
	ContactEmail *string      `json:"contact_email"`
	ContactPhone *string      `json:"contact_phone"`
	Branding     models.JSONB `json:"branding"`
	Settings     models.JSONB `json:"settings"`
	IsActive     *bool        `json:"is_active"`
}

// UpdateTenant lets tenant admins edit their own tenant's profile. Only
// platform managers may change is_active.
func UpdateTenant(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := auth.FromContext(r.Context())
		id := chi.URLParam(r, "id")
		if err := auth.Authorize(c, auth.ActionManageTenant, &id); err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		var req tenantUpdateReq
		if err := decodeJSON(r, &req); err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		if req.IsActive != nil && !c.Can(auth.ActionManagePlatform) {
			respondError(w, r, env.Log, apperr.Forbidden("Only platform admins can activate or deactivate tenants"))
			return
		}
		if req.IsActive != nil && !*req.IsActive && id == seed.PlatformTenantID {
			respondError(w, r, env.Log, apperr.Forbidden("The platform tenant cannot be deactivated"))
			return
		}
		var t *models.Tenant
		ev := event(events.TenantUpdated, c, &id, id, nil)
		err := env.inTx(r.Context(), func(tx *gorm.DB) error {
			repo := repository.NewTenantRepository(tx)
			var err error
			if t, err = repo.Get(r.Context(), id); err != nil {
				return err
			}
			err = repo.Update(r.Context(), t, repository.TenantUpdate{
				Name: req.Name, ContactEmail: req.ContactEmail, ContactPhone: req.ContactPhone,
				Branding: req.Branding, Settings: req.Settings, IsActive: req.IsActive,
			})
			if err != nil {
				return err
			}
			return audit(r.Context(), tx, c, &id, "tenant.update", "tenant", id, nil)
		}, ev)
		if err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		respondJSON(w, t)
	}
}

// DeleteTenant deactivates a tenant; its data is kept.
func DeleteTenant(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := auth.FromContext(r.Context())
		id := chi.URLParam(r, "id")
		if err := auth.Authorize(c, auth.ActionManagePlatform, &id); err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		if id == seed.PlatformTenantID {
			respondError(w, r, env.Log, apperr.Forbidden("The platform tenant cannot be deactivated"))
			return
		}
		ev := event(events.TenantDeactivated, c, &id, id, nil)
		err := env.inTx(r.Context(), func(tx *gorm.DB) error {
			repo := repository.NewTenantRepository(tx)
			t, err := repo.Get(r.Context(), id)
			if err != nil {
				return err
			}
			if err := repo.Deactivate(r.Context(), t); err != nil {
				return err
			}
			return audit(r.Context(), tx, c, &id, "tenant.deactivate", "tenant", id, nil)
		}, ev)
		if err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
