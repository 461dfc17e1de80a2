package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ProductCategory groups products; tenant_id NULL marks a platform default.
type ProductCategory struct {
	ID        string    `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID  *string   `gorm:"type:uuid;index" json:"tenant_id"`
	Code      string    `gorm:"size:50;not null" json:"code"`
	Name      string    `gorm:"size:255;not null" json:"name"`
	NameZh    *string   `gorm:"size:255" json:"name_zh,omitempty"`
	SortOrder int       `gorm:"not null;default:0" json:"sort_order"`
	IsActive  bool      `gorm:"not null" json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (c *ProductCategory) BeforeCreate(*gorm.DB) error { newID(&c.ID); return nil }

// Product is a catalog entry. TenantID nil means a platform product shared
// through TenantProduct rows or the unlocked-for-all flag.
type Product struct {
	ID               string           `gorm:"type:uuid;primaryKey" json:"id"`
	ModuleID         string           `gorm:"type:uuid;not null;index;uniqueIndex:uq_product_code" json:"module_id"`
	TenantID         *string          `gorm:"type:uuid;index;uniqueIndex:uq_product_code" json:"tenant_id"`
	CategoryID       *string          `gorm:"type:uuid" json:"category_id"`
	Code             string           `gorm:"size:50;not null;uniqueIndex:uq_product_code" json:"code"`
	Name             string           `gorm:"size:255;not null" json:"name"`
	NameZh           *string          `gorm:"size:255" json:"name_zh,omitempty"`
	Description      *string          `gorm:"size:2000" json:"description,omitempty"`
	DescriptionZh    *string          `gorm:"size:2000" json:"description_zh,omitempty"`
	Category         string           `gorm:"size:100;not null" json:"category"`
	RiskLevel        *string          `gorm:"size:20" json:"risk_level,omitempty"`
	MinInvestment    *decimal.Decimal `gorm:"type:numeric(20,4)" json:"min_investment,omitempty"`
	Currency         string           `gorm:"size:3;not null;default:USD" json:"currency"`
	ExpectedReturn   *string          `gorm:"size:50" json:"expected_return,omitempty"`
	IsVisible        bool             `gorm:"not null" json:"is_visible"`
	IsDefault        bool             `gorm:"not null" json:"is_default"`
	IsUnlockedForAll bool             `gorm:"not null" json:"is_unlocked_for_all"`
	ExtraData        JSONB            `gorm:"type:jsonb" json:"extra_data"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`

	Module      *Module          `gorm:"foreignKey:ModuleID" json:"-"`
	CategoryRel *ProductCategory `gorm:"foreignKey:CategoryID" json:"-"`
}

func (p *Product) BeforeCreate(*gorm.DB) error { newID(&p.ID); return nil }

// IsPlatform reports whether p is a platform product.
func (p Product) IsPlatform() bool { return p.TenantID == nil }

// OwnedBy reports whether p is a tenant product owned by tenantID.
func (p Product) OwnedBy(tenantID string) bool {
	return p.TenantID != nil && *p.TenantID == tenantID
}

// TenantProduct records that a platform product is synced to a tenant and
// carries that tenant's visibility override.
type TenantProduct struct {
	ID        string    `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID  string    `gorm:"type:uuid;not null;uniqueIndex:uq_tenant_product" json:"tenant_id"`
	ProductID string    `gorm:"type:uuid;not null;index;uniqueIndex:uq_tenant_product" json:"product_id"`
	IsVisible bool      `gorm:"not null" json:"is_visible"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (tp *TenantProduct) BeforeCreate(*gorm.DB) error { newID(&tp.ID); return nil }
