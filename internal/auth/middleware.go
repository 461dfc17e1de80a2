package auth

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"eamcrm/internal/models"

	"gorm.io/gorm"
)

func deny(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"detail": detail})
}

// JWTAuth verifies the bearer token and its backing session, then puts
// the claims into the request context.
func JWTAuth(db *gorm.DB, issuer *Issuer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := r.Header.Get("Authorization")
			if !strings.HasPrefix(h, "Bearer ") {
				deny(w, http.StatusUnauthorized, "Authentication required")
				return
			}
			raw := strings.TrimPrefix(h, "Bearer ")
			claims, err := issuer.Verify(raw)
			if err != nil {
				deny(w, http.StatusUnauthorized, "Invalid or expired token")
				return
			}
			var sess models.Session
			if claims.JWTID == "" || db.WithContext(r.Context()).First(&sess, "jti = ?", claims.JWTID).Error != nil {
				deny(w, http.StatusUnauthorized, "Session not found")
				return
			}
			if sess.RevokedAt != nil || time.Now().After(sess.ExpiresAt) || sess.UserID != claims.Subject {
				deny(w, http.StatusUnauthorized, "Session expired or revoked")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// RequireCapability rejects callers whose roles do not grant a.
func RequireCapability(a Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !FromContext(r.Context()).Can(a) {
				deny(w, http.StatusForbidden, "Insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
