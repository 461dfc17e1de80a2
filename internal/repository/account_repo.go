package repository

import (
	"context"

	"eamcrm/internal/apperr"
	"eamcrm/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var accountTypes = map[string]bool{
	"custody": true, "advisory": true, "discretionary": true, "execution_only": true,
}

type AccountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

type AccountFilter struct {
	TenantID string
	ClientID string
	Page     Page
}

func (r *AccountRepository) Get(ctx context.Context, id, scope string) (*models.Account, error) {
	if !validID(id) {
		return nil, apperr.NotFound("Account not found")
	}
	q := r.db.WithContext(ctx)
	if scope != "" {
		q = q.Where("tenant_id = ?", scope)
	}
	var a models.Account
	if err := q.First(&a, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "Account")
	}
	return &a, nil
}

func (r *AccountRepository) List(ctx context.Context, f AccountFilter) ([]models.Account, error) {
	if err := checkIDFilter("tenant_id", f.TenantID); err != nil {
		return nil, err
	}
	if err := checkIDFilter("client_id", f.ClientID); err != nil {
		return nil, err
	}
	page, err := f.Page.Normalize()
	if err != nil {
		return nil, err
	}
	q := r.db.WithContext(ctx)
	if f.TenantID != "" {
		q = q.Where("tenant_id = ?", f.TenantID)
	}
	if f.ClientID != "" {
		q = q.Where("client_id = ?", f.ClientID)
	}
	accounts := []models.Account{}
	if err := q.Order("account_number, id").Offset(page.Skip).Limit(page.Limit).Find(&accounts).Error; err != nil {
		return nil, apperr.Internal(err, "list accounts")
	}
	return accounts, nil
}

// Create opens an account for a client of the same tenant.
func (r *AccountRepository) Create(ctx context.Context, a *models.Account) error {
	if a.AccountNumber == "" || len(a.AccountNumber) > 50 {
		return apperr.Invalid("account_number is required and must be at most 50 characters")
	}
	if a.Name == "" {
		return apperr.Invalid("name is required")
	}
	if a.AccountType == "" {
		a.AccountType = "custody"
	}
	if !accountTypes[a.AccountType] {
		return apperr.Invalid("unknown account_type %q", a.AccountType)
	}
	if a.Currency == "" {
		a.Currency = "USD"
	}
	if len(a.Currency) != 3 {
		return apperr.Invalid("currency must be a 3-letter code")
	}
	if a.TotalValue.IsNegative() {
		return apperr.Invalid("total_value must not be negative")
	}
	client, err := NewClientRepository(r.db).Get(ctx, a.ClientID, a.TenantID)
	if err != nil {
		return err
	}
	a.TenantID = client.TenantID
	var n int64
	err = r.db.WithContext(ctx).Model(&models.Account{}).
		Where("tenant_id = ? AND account_number = ?", a.TenantID, a.AccountNumber).
		Count(&n).Error
	if err != nil {
		return apperr.Internal(err, "check account number")
	}
	if n > 0 {
		return apperr.Conflict("Account number '%s' already exists", a.AccountNumber)
	}
	return dbErr(r.db.WithContext(ctx).Create(a).Error, "create account")
}

// TotalAUM sums account values for tenantID, or the whole platform when
// tenantID is empty.
func (r *AccountRepository) TotalAUM(ctx context.Context, tenantID string) (decimal.Decimal, error) {
	var row struct{ Total decimal.Decimal }
	q := r.db.WithContext(ctx).Model(&models.Account{}).Select("COALESCE(SUM(total_value), 0) AS total")
	if tenantID != "" {
		q = q.Where("tenant_id = ?", tenantID)
	}
	if err := q.Scan(&row).Error; err != nil {
		return decimal.Zero, apperr.Internal(err, "sum aum")
	}
	return row.Total, nil
}
