package handlers

import (
	"net/http"

	"eamcrm/internal/apperr"
	"eamcrm/internal/auth"
	"eamcrm/internal/models"
	"eamcrm/internal/repository"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"
)

var platformRoles = []string{models.RoleSuperAdmin, models.RolePlatformAdmin, models.RolePlatformUser}

func hasPlatformRole(u models.User) bool {
	for _, name := range u.RoleNames() {
		for _, p := range platformRoles {
			if name == p {
				return true
			}
		}
	}
	return false
}

// ListUsers lists the caller's tenant's users. Cross-tenant readers see
// every tenant unless they pass ?tenant_id=.
func ListUsers(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := idParams(r, "tenant_id"); err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		c := auth.FromContext(r.Context())
		if !c.Can(auth.ActionManageTenant) && !c.Can(auth.ActionReadPlatform) {
			respondError(w, r, env.Log, apperr.Forbidden("Insufficient permissions"))
			return
		}
		scope, err := auth.ListScope(c, r.URL.Query().Get("tenant_id"))
		if err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		page, err := pageParams(r)
		if err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		users, err := repository.NewUserRepository(env.DB).List(r.Context(), repository.UserFilter{
			TenantID: scope, Search: r.URL.Query().Get("search"), Page: page,
		})
		if err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		out := make([]userResponse, 0, len(users))
		for _, u := range users {
			out = append(out, toUserResponse(u))
		}
		respondJSON(w, out)
	}
}

func GetUser(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := auth.FromContext(r.Context())
		id := chi.URLParam(r, "id")
		scope := readScope(c)
		if id == c.Subject {
			scope = ""
		}
		u, err := repository.NewUserRepository(env.DB).Get(r.Context(), id, scope)
		if err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		respondJSON(w, toUserResponse(*u))
	}
}

type userReq struct {
	TenantID  *string  `json:"tenant_id"`
	Email     string   `json:"email"`
	FirstName string   `json:"first_name"`
	LastName  string   `json:"last_name"`
	Password  string   `json:"password"`
	Roles     []string `json:"roles"`
}

// CreateUser adds a user to the caller's tenant, or to tenant_id for
// platform managers. Tenant admins cannot grant platform roles.
func CreateUser(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := auth.FromContext(r.Context())
		var req userReq
		if err := decodeJSON(r, &req); err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		explicit := ""
		if req.TenantID != nil {
			explicit = *req.TenantID
		}
		tenantID, err := tenantFor(c, explicit)
		if err == nil {
			err = auth.Authorize(c, auth.ActionManageTenant, &tenantID)
		}
		if len(req.Roles) == 0 {
			req.Roles = []string{models.RoleTenantUser}
		}
		if err == nil {
			err = auth.GrantableRoles(c, req.Roles)
		}
		if err == nil {
			err = auth.ValidatePassword(req.Password)
		}
		if err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		hash, err := auth.HashPassword(req.Password)
		if err != nil {
			respondError(w, r, env.Log, apperr.Internal(err, "hash password"))
			return
		}
		u := models.User{TenantID: &tenantID, Email: req.Email, FirstName: req.FirstName, LastName: req.LastName}
		err = env.inTx(r.Context(), func(tx *gorm.DB) error {
			if err := repository.NewUserRepository(tx).Create(r.Context(), &u, hash, req.Roles); err != nil {
				return err
			}
			return audit(r.Context(), tx, c, &tenantID, "user.create", "user", u.ID, map[string]any{"email": u.Email, "roles": req.Roles})
		})
		if err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		respondStatus(w, http.StatusCreated, toUserResponse(u))
	}
}

type userUpdateReq struct {
	Email     *string   `json:"email"`
	FirstName *string   `json:"first_name"`
	LastName  *string   `json:"last_name"`
	IsActive  *bool     `json:"is_active"`
	Roles     *[]string `json:"roles"`
}

// loadManagedUser loads a user c may administer. Other tenants' users read
// as missing; platform staff can only be changed by platform managers.
func loadManagedUser(r *http.Request, tx *gorm.DB, c auth.Claims, id string) (*models.User, error) {
	if !c.Can(auth.ActionManageTenant) {
		return nil, apperr.Forbidden("Insufficient permissions")
	}
	u, err := repository.NewUserRepository(tx).Get(r.Context(), id, writeScope(c))
	if err != nil {
		return nil, err
	}
	if hasPlatformRole(*u) && !c.Can(auth.ActionManagePlatform) {
		return nil, apperr.Forbidden("Only platform admins can modify platform users")
	}
	return u, nil
}

func UpdateUser(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := auth.FromContext(r.Context())
		var req userUpdateReq
		if err := decodeJSON(r, &req); err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		if req.Roles != nil {
			if err := auth.GrantableRoles(c, *req.Roles); err != nil {
				respondError(w, r, env.Log, err)
				return
			}
		}
		id := chi.URLParam(r, "id")
		var u *models.User
		err := env.inTx(r.Context(), func(tx *gorm.DB) error {
			var err error
			if u, err = loadManagedUser(r, tx, c, id); err != nil {
				return err
			}
			if u.ID == c.Subject && req.IsActive != nil && !*req.IsActive {
				return apperr.Invalid("You cannot deactivate yourself")
			}
			err = repository.NewUserRepository(tx).Update(r.Context(), u, repository.UserUpdate{
				Email: req.Email, FirstName: req.FirstName, LastName: req.LastName,
				IsActive: req.IsActive, Roles: req.Roles,
			})
			if err != nil {
				return err
			}
			// Roles ride in the token, so a role change signs the user out.
			if (req.IsActive != nil && !*req.IsActive) || req.Roles != nil {
				if err := repository.NewSessionRepository(tx).RevokeAll(r.Context(), u.ID); err != nil {
					return err
				}
			}
			return audit(r.Context(), tx, c, u.TenantID, "user.update", "user", u.ID, nil)
		})
		if err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		respondJSON(w, toUserResponse(*u))
	}
}

// DeleteUser deactivates a user and revokes their sessions.
func DeleteUser(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := auth.FromContext(r.Context())
		id := chi.URLParam(r, "id")
		if id == c.Subject {
			respondError(w, r, env.Log, apperr.Invalid("You cannot deactivate yourself"))
			return
		}
		err := env.inTx(r.Context(), func(tx *gorm.DB) error {
			u, err := loadManagedUser(r, tx, c, id)
			if err != nil {
				return err
			}
			if err := repository.NewUserRepository(tx).Deactivate(r.Context(), u); err != nil {
				return err
			}
			return audit(r.Context(), tx, c, u.TenantID, "user.deactivate", "user", u.ID, nil)
		})
		if err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func ListRoles(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roles, err := repository.NewUserRepository(env.DB).ListRoles(r.Context())
		if err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		respondJSON(w, roles)
	}
}
