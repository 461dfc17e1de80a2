package repository

import (
	"context"
	"fmt"

	"eamcrm/internal/apperr"
	"eamcrm/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type StatsRepository struct {
	db *gorm.DB
}

func NewStatsRepository(db *gorm.DB) *StatsRepository {
	return &StatsRepository{db: db}
}

// PlatformStats counts tenants and users across the platform. It carries
// no client or AUM figures.
type PlatformStats struct {
	TotalTenants  int64 `json:"total_tenants"`
	ActiveTenants int64 `json:"active_tenants"`
	TotalUsers    int64 `json:"total_users"`
	ActiveUsers   int64 `json:"active_users"`
}

// TenantStats describes one tenant's book.
type TenantStats struct {
	TotalUsers   int64           `json:"total_users"`
	ActiveUsers  int64           `json:"active_users"`
	TotalClients int64           `json:"total_clients"`
	TotalAUM     decimal.Decimal `json:"total_aum"`
	FormattedAUM string          `json:"formatted_aum"`
}

var (
	billion  = decimal.NewFromInt(1_000_000_000)
	million  = decimal.NewFromInt(1_000_000)
	thousand = decimal.NewFromInt(1_000)
)

// FormatAUM renders an amount as $1.2B, $3.4M, $5.6K or $7.00.
func FormatAUM(amount decimal.Decimal) string {
	switch {
	case amount.GreaterThanOrEqual(billion):
		return fmt.Sprintf("$%sB", amount.Div(billion).StringFixed(1))
	case amount.GreaterThanOrEqual(million):
		return fmt.Sprintf("$%sM", amount.Div(million).StringFixed(1))
	case amount.GreaterThanOrEqual(thousand):
		return fmt.Sprintf("$%sK", amount.Div(thousand).StringFixed(1))
	default:
		return "$" + amount.StringFixed(2)
	}
}

func (r *StatsRepository) count(ctx context.Context, model any, where string, args ...any) (int64, error) {
	var n int64
	q := r.db.WithContext(ctx).Model(model)
	if where != "" {
		q = q.Where(where, args...)
	}
	if err := q.Count(&n).Error; err != nil {
		return 0, apperr.Internal(err, "count")
	}
	return n, nil
}

func (r *StatsRepository) Tenant(ctx context.Context, tenantID string) (TenantStats, error) {
	var s TenantStats
	var err error
	if tenantID == "" {
		return s, apperr.Invalid("User must belong to a tenant")
	}
	if s.TotalUsers, err = r.count(ctx, &models.User{}, "tenant_id = ?", tenantID); err != nil {
		return s, err
	}
	if s.ActiveUsers, err = r.count(ctx, &models.User{}, "tenant_id = ? AND is_active = ?", tenantID, true); err != nil {
		return s, err
	}
	if s.TotalClients, err = r.count(ctx, &models.Client{}, "tenant_id = ?", tenantID); err != nil {
		return s, err
	}
	if s.TotalAUM, err = NewAccountRepository(r.db).TotalAUM(ctx, tenantID); err != nil {
		return s, err
	}
	s.FormattedAUM = FormatAUM(s.TotalAUM)
	return s, nil
}

func (r *StatsRepository) Platform(ctx context.Context) (PlatformStats, error) {
	var s PlatformStats
	var err error
	if s.TotalTenants, err = r.count(ctx, &models.Tenant{}, ""); err != nil {
		return s, err
	}
	if s.ActiveTenants, err = r.count(ctx, &models.Tenant{}, "is_active = ?", true); err != nil {
		return s, err
	}
	if s.TotalUsers, err = r.count(ctx, &models.User{}, ""); err != nil {
		return s, err
	}
	if s.ActiveUsers, err = r.count(ctx, &models.User{}, "is_active = ?", true); err != nil {
		return s, err
	}
	return s, nil
}

// Ping reports whether the database answers.
func (r *StatsRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
