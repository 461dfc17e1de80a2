package handlers

import (
	"net/http"

	"eamcrm/internal/auth"
	"eamcrm/internal/repository"
)

// ListAuditLogs returns audit entries newest first. Platform readers see
// any tenant, tenant admins their own tenant, everyone else only their
// own entries.
func ListAuditLogs(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := idParams(r, "tenant_id", "user_id"); err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		c := auth.FromContext(r.Context())
		q := r.URL.Query()
		page, err := pageParams(r)
		if err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		f := repository.AuditFilter{
			UserID: q.Get("user_id"), ResourceType: q.Get("resource_type"), Page: page,
		}
		switch {
		case c.Can(auth.ActionReadPlatform):
			f.TenantID = q.Get("tenant_id")
		case c.Can(auth.ActionManageTenant):
			if f.TenantID, err = auth.ListScope(c, q.Get("tenant_id")); err != nil {
				respondError(w, r, env.Log, err)
				return
			}
		default:
			f.TenantID, f.UserID = c.TenantID, c.Subject
		}
		logs, err := repository.NewAuditRepository(env.DB).List(r.Context(), f)
		if err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		respondJSON(w, logs)
	}
}
