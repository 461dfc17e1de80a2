package repository

import (
	"context"
	"time"

	"eamcrm/internal/apperr"
	"eamcrm/internal/models"

	"gorm.io/gorm"
)

// SessionRepository backs issued tokens so logout can revoke them.
type SessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(ctx context.Context, jti, userID string, expiresAt time.Time) error {
	s := models.Session{JTI: jti, UserID: userID, ExpiresAt: expiresAt}
	return dbErr(r.db.WithContext(ctx).Create(&s).Error, "create session")
}

func (r *SessionRepository) Revoke(ctx context.Context, jti string) error {
	err := r.db.WithContext(ctx).Model(&models.Session{}).
		Where("jti = ? AND revoked_at IS NULL", jti).
		Update("revoked_at", time.Now()).Error
	if err != nil {
		return apperr.Internal(err, "revoke session")
	}
	return nil
}

func (r *SessionRepository) RevokeAll(ctx context.Context, userID string) error {
	err := r.db.WithContext(ctx).Model(&models.Session{}).
		Where("user_id = ? AND revoked_at IS NULL", userID).
		Update("revoked_at", time.Now()).Error
	if err != nil {
		return apperr.Internal(err, "revoke sessions")
	}
	return nil
}

// RevokeOthers revokes every open session of userID except keep.
func (r *SessionRepository) RevokeOthers(ctx context.Context, userID, keep string) error {
	err := r.db.WithContext(ctx).Model(&models.Session{}).
		Where("user_id = ? AND jti <> ? AND revoked_at IS NULL", userID, keep).
		Update("revoked_at", time.Now()).Error
	if err != nil {
		return apperr.Internal(err, "revoke sessions")
	}
	return nil
}

// RevokeTenant revokes every open session of tenantID's users.
func (r *SessionRepository) RevokeTenant(ctx context.Context, tenantID string) error {
	users := r.db.WithContext(ctx).Model(&models.User{}).Select("id").Where("tenant_id = ?", tenantID)
	err := r.db.WithContext(ctx).Model(&models.Session{}).
		Where("user_id IN (?) AND revoked_at IS NULL", users).
		Update("revoked_at", time.Now()).Error
	if err != nil {
		return apperr.Internal(err, "revoke tenant sessions")
	}
	return nil
}
