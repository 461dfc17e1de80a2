package models

import (
	"time"

	"gorm.io/gorm"
)

type ModuleCategory string

const (
	ModuleBasic      ModuleCategory = "BASIC"
	ModuleInvestment ModuleCategory = "INVESTMENT"
	ModuleAnalytics  ModuleCategory = "ANALYTICS"
)

func (c ModuleCategory) Valid() bool {
	switch c {
	case ModuleBasic, ModuleInvestment, ModuleAnalytics:
		return true
	}
	return false
}

// Module is a feature category. Core modules are on for every tenant.
type Module struct {
	ID            string         `gorm:"type:uuid;primaryKey" json:"id"`
	Code          string         `gorm:"size:50;uniqueIndex;not null" json:"code"`
	Name          string         `gorm:"size:255;not null" json:"name"`
	NameZh        *string        `gorm:"size:255" json:"name_zh,omitempty"`
	Description   *string        `gorm:"size:1000" json:"description,omitempty"`
	DescriptionZh *string        `gorm:"size:1000" json:"description_zh,omitempty"`
	Version       string         `gorm:"size:20;not null;default:1.0.0" json:"version"`
	Category      ModuleCategory `gorm:"size:20;not null;default:BASIC" json:"category"`
	IsActive      bool           `gorm:"not null" json:"is_active"`
	IsCore        bool           `gorm:"not null" json:"is_core"`
	ConfigSchema  JSONB          `gorm:"type:jsonb" json:"config_schema"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

func (m *Module) BeforeCreate(*gorm.DB) error { newID(&m.ID); return nil }

type TenantModule struct {
	ID        string    `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID  string    `gorm:"type:uuid;not null;uniqueIndex:uq_tenant_module" json:"tenant_id"`
	ModuleID  string    `gorm:"type:uuid;not null;uniqueIndex:uq_tenant_module" json:"module_id"`
	IsEnabled bool      `gorm:"not null" json:"is_enabled"`
	Config    JSONB     `gorm:"type:jsonb" json:"config"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (tm *TenantModule) BeforeCreate(*gorm.DB) error { newID(&tm.ID); return nil }
