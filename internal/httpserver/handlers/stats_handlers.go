package handlers

import (
	"net/http"

	"eamcrm/internal/auth"
	"eamcrm/internal/repository"
)

type dashboardResponse struct {
	Tenant   *repository.TenantStats   `json:"tenant,omitempty"`
	Platform *repository.PlatformStats `json:"platform,omitempty"`
}

// Dashboard returns the caller's tenant figures, plus platform-wide
// counts for platform managers.
func Dashboard(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := auth.FromContext(r.Context())
		repo := repository.NewStatsRepository(env.DB)
		var out dashboardResponse
		if c.TenantID != "" {
			ts, err := repo.Tenant(r.Context(), c.TenantID)
			if err != nil {
				respondError(w, r, env.Log, err)
				return
			}
			out.Tenant = &ts
		}
		if c.Can(auth.ActionManagePlatform) {
			ps, err := repo.Platform(r.Context())
			if err != nil {
				respondError(w, r, env.Log, err)
				return
			}
			out.Platform = &ps
		}
		respondJSON(w, out)
	}
}

// TenantStats reports figures for ?tenant_id=, defaulting to the caller's
// tenant.
func TenantStats(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := idParams(r, "tenant_id"); err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		c := auth.FromContext(r.Context())
		tenantID, err := tenantFor(c, r.URL.Query().Get("tenant_id"))
		if err == nil {
			err = auth.Authorize(c, auth.ActionRead, &tenantID)
		}
		if err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		ts, err := repository.NewStatsRepository(env.DB).Tenant(r.Context(), tenantID)
		if err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		respondJSON(w, ts)
	}
}

// Health always answers 200; the body says whether the database is up.
func Health(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := map[string]string{"status": "healthy", "database": "ok"}
		if err := repository.NewStatsRepository(env.DB).Ping(r.Context()); err != nil {
			env.Log.Warnw("health check", "err", err)
			status = map[string]string{"status": "degraded", "database": "unavailable"}
		}
		respondJSON(w, status)
	}
}
