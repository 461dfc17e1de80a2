package handlers

import (
	"net/http"
	"time"

	"eamcrm/internal/apperr"
	"eamcrm/internal/auth"
	"eamcrm/internal/models"
	"eamcrm/internal/repository"

	"gorm.io/gorm"
)

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userResponse struct {
	models.User
	Roles []string `json:"roles"`
}

func toUserResponse(u models.User) userResponse {
	return userResponse{User: u, Roles: u.RoleNames()}
}

func Login(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginReq
		if err := decodeJSON(r, &req); err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		fail := func(reason string) {
			if env.Metrics != nil {
				env.Metrics.Logins.WithLabelValues(reason).Inc()
			}
			respondError(w, r, env.Log, apperr.Unauthorized("Incorrect email or password"))
		}
		u, err := repository.NewUserRepository(env.DB).GetByEmail(r.Context(), req.Email)
		if err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		if u == nil || auth.CheckPassword(u.PasswordHash, req.Password) != nil {
			fail("bad_credentials")
			return
		}
		if !u.IsActive {
			fail("inactive")
			return
		}
		claims := auth.Claims{Subject: u.ID, Roles: u.RoleNames()}
		if u.TenantID != nil {
			t, err := repository.NewTenantRepository(env.DB).Get(r.Context(), *u.TenantID)
			if err != nil {
				respondError(w, r, env.Log, err)
				return
			}
			if !t.IsActive {
				if env.Metrics != nil {
					env.Metrics.Logins.WithLabelValues("tenant_inactive").Inc()
				}
				respondError(w, r, env.Log, apperr.Forbidden("Tenant is not active"))
				return
			}
			claims.TenantID = t.ID
		}
		tok, claims, exp, err := env.Issuer.Sign(claims)
		if err != nil {
			respondError(w, r, env.Log, apperr.Internal(err, "sign token"))
			return
		}
		if err := repository.NewSessionRepository(env.DB).Create(r.Context(), claims.JWTID, u.ID, exp); err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		if env.Metrics != nil {
			env.Metrics.Logins.WithLabelValues("ok").Inc()
		}
		env.Log.Infow("login", "user_id", u.ID, "tenant_id", claims.TenantID)
		respondJSON(w, map[string]any{
			"access_token": tok,
			"token_type":   "bearer",
			"expires_at":   exp.UTC().Format(time.RFC3339),
			"user":         toUserResponse(*u),
		})
	}
}

func Logout(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := auth.FromContext(r.Context())
		if err := repository.NewSessionRepository(env.DB).Revoke(r.Context(), c.JWTID); err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func Me(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := auth.FromContext(r.Context())
		u, err := repository.NewUserRepository(env.DB).Get(r.Context(), c.Subject, "")
		if err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		var tenant *models.Tenant
		if u.TenantID != nil {
			if tenant, err = repository.NewTenantRepository(env.DB).Get(r.Context(), *u.TenantID); err != nil {
				respondError(w, r, env.Log, err)
				return
			}
		}
		respondJSON(w, map[string]any{"user": toUserResponse(*u), "tenant": tenant})
	}
}

type changePasswordReq struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// ChangePassword replaces the caller's password and revokes every other
// session.
func ChangePassword(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req changePasswordReq
		if err := decodeJSON(r, &req); err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		c := auth.FromContext(r.Context())
		err := env.inTx(r.Context(), func(tx *gorm.DB) error {
			users := repository.NewUserRepository(tx)
			u, err := users.Get(r.Context(), c.Subject, "")
			if err != nil {
				return err
			}
			if auth.CheckPassword(u.PasswordHash, req.CurrentPassword) != nil {
				return apperr.Invalid("Current password is incorrect")
			}
			if err := auth.ValidatePassword(req.NewPassword); err != nil {
				return err
			}
			hash, err := auth.HashPassword(req.NewPassword)
			if err != nil {
				return apperr.Internal(err, "hash password")
			}
			if err := users.SetPassword(r.Context(), u.ID, hash); err != nil {
				return err
			}
			if err := repository.NewSessionRepository(tx).RevokeOthers(r.Context(), u.ID, c.JWTID); err != nil {
				return err
			}
			return audit(r.Context(), tx, c, u.TenantID, "user.password_change", "user", u.ID, nil)
		})
		if err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		respondJSON(w, map[string]any{"updated": true})
	}
}
