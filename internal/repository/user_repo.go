package repository

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"eamcrm/internal/apperr"
	"eamcrm/internal/models"

	"gorm.io/gorm"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// UserFilter lists users of TenantID, or of every tenant when TenantID is
// empty.
type UserFilter struct {
	TenantID string
	Search   string
	Page     Page
}

type UserUpdate struct {
	Email     *string
	FirstName *string
	LastName  *string
	IsActive  *bool
	Roles     *[]string
}

// NormalizeEmail trims and lowercases an address and checks its syntax.
func NormalizeEmail(s string) (string, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if _, err := mail.ParseAddress(s); err != nil || s == "" {
		return "", apperr.Invalid("invalid email address")
	}
	return s, nil
}

// Get loads a user with roles. A non-empty scope restricts the lookup to
// that tenant, so other tenants' users read as missing.
func (r *UserRepository) Get(ctx context.Context, id, scope string) (*models.User, error) {
	if !validID(id) {
		return nil, apperr.NotFound("User not found")
	}
	q := r.db.WithContext(ctx).Preload("Roles")
	if scope != "" {
		q = q.Where("tenant_id = ?", scope)
	}
	var u models.User
	if err := q.First(&u, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "User")
	}
	return &u, nil
}

// GetByEmail returns nil when no user has that address.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	err := r.db.WithContext(ctx).Preload("Roles").First(&u, "email = ?", strings.ToLower(strings.TrimSpace(email))).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Internal(err, "load user")
	}
	return &u, nil
}

func (r *UserRepository) List(ctx context.Context, f UserFilter) ([]models.User, error) {
	if err := checkIDFilter("tenant_id", f.TenantID); err != nil {
		return nil, err
	}
	page, err := f.Page.Normalize()
	if err != nil {
		return nil, err
	}
	q := r.db.WithContext(ctx).Preload("Roles")
	if f.TenantID != "" {
		q = q.Where("tenant_id = ?", f.TenantID)
	}
	if f.Search != "" {
		pat := likePattern(f.Search)
		q = q.Where(`LOWER(email) LIKE ? ESCAPE '\' OR LOWER(first_name) LIKE ? ESCAPE '\' OR LOWER(last_name) LIKE ? ESCAPE '\'`, pat, pat, pat)
	}
	users := []models.User{}
	if err := q.Order("created_at desc, id").Offset(page.Skip).Limit(page.Limit).Find(&users).Error; err != nil {
		return nil, apperr.Internal(err, "list users")
	}
	return users, nil
}

func (r *UserRepository) ListRoles(ctx context.Context) ([]models.Role, error) {
	roles := []models.Role{}
	if err := r.db.WithContext(ctx).Order("id").Find(&roles).Error; err != nil {
		return nil, apperr.Internal(err, "list roles")
	}
	return roles, nil
}

func (r *UserRepository) rolesByName(ctx context.Context, names []string) ([]models.Role, error) {
	names = uniqueStrings(names)
	roles := []models.Role{}
	if len(names) == 0 {
		return roles, nil
	}
	if err := r.db.WithContext(ctx).Where("name IN ?", names).Find(&roles).Error; err != nil {
		return nil, apperr.Internal(err, "load roles")
	}
	if len(roles) != len(names) {
		return nil, apperr.Invalid("unknown role in %v", names)
	}
	return roles, nil
}

// Create stores u with a hashed password and the named roles. The caller
// has already checked the roles may be granted.
func (r *UserRepository) Create(ctx context.Context, u *models.User, passwordHash string, roles []string) error {
	email, err := NormalizeEmail(u.Email)
	if err != nil {
		return err
	}
	u.Email = email
	if u.TenantID != nil {
		if err := NewTenantRepository(r.db).RequireExisting(ctx, []string{*u.TenantID}); err != nil {
			return err
		}
	}
	existing, err := r.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if existing != nil {
		return apperr.Conflict("User with email '%s' already exists", email)
	}
	u.Roles, err = r.rolesByName(ctx, roles)
	if err != nil {
		return err
	}
	u.PasswordHash = passwordHash
	u.IsActive = true
	return dbErr(r.db.WithContext(ctx).Create(u).Error, "create user")
}

func (r *UserRepository) Update(ctx context.Context, u *models.User, up UserUpdate) error {
	updates := map[string]any{}
	if up.Email != nil {
		email, err := NormalizeEmail(*up.Email)
		if err != nil {
			return err
		}
		if email != u.Email {
			existing, err := r.GetByEmail(ctx, email)
			if err != nil {
				return err
			}
			if existing != nil {
				return apperr.Conflict("User with email '%s' already exists", email)
			}
			updates["email"] = email
		}
	}
	if up.FirstName != nil {
		updates["first_name"] = *up.FirstName
	}
	if up.LastName != nil {
		updates["last_name"] = *up.LastName
	}
	if up.IsActive != nil {
		updates["is_active"] = *up.IsActive
	}
	db := r.db.WithContext(ctx)
	if len(updates) > 0 {
		if err := db.Model(&models.User{}).Where("id = ?", u.ID).Updates(updates).Error; err != nil {
			return dbErr(err, "update user")
		}
	}
	if up.Roles != nil {
		roles, err := r.rolesByName(ctx, *up.Roles)
		if err != nil {
			return err
		}
		if err := db.Model(u).Association("Roles").Replace(roles); err != nil {
			return apperr.Internal(err, "replace roles")
		}
	}
	if err := db.Preload("Roles").First(u, "id = ?", u.ID).Error; err != nil {
		return notFound(err, "User")
	}
	return nil
}

func (r *UserRepository) SetPassword(ctx context.Context, userID, hash string) error {
	err := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Update("password_hash", hash).Error
	if err != nil {
		return apperr.Internal(err, "update password")
	}
	return nil
}

// Deactivate disables the account and revokes its open sessions.
func (r *UserRepository) Deactivate(ctx context.Context, u *models.User) error {
	db := r.db.WithContext(ctx)
	if err := db.Model(&models.User{}).Where("id = ?", u.ID).Update("is_active", false).Error; err != nil {
		return apperr.Internal(err, "deactivate user")
	}
	if err := NewSessionRepository(r.db).RevokeAll(ctx, u.ID); err != nil {
		return err
	}
	u.IsActive = false
	return nil
}
