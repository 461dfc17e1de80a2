// Package dbtest opens throwaway SQLite databases with the full schema for
// repository and handler tests.
package dbtest

import (
	"context"
	"testing"

	"eamcrm/internal/models"
	"eamcrm/internal/seed"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open returns an empty in-memory database with every table migrated.
// It is closed when t finishes.
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// One connection, or every new connection would get a fresh empty database.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

// Seeded is Open plus roles and the system module registry.
func Seeded(t testing.TB) *gorm.DB {
	t.Helper()
	db := Open(t)
	ctx := context.Background()
	require.NoError(t, seed.Roles(ctx, db))
	require.NoError(t, seed.Modules(ctx, db))
	require.NoError(t, seed.Admin(ctx, db, zap.NewNop().Sugar(), "", ""))
	return db
}

// Module loads a seeded module by code.
func Module(t testing.TB, db *gorm.DB, code string) models.Module {
	t.Helper()
	var m models.Module
	require.NoError(t, db.First(&m, "code = ?", code).Error)
	return m
}

// Tenant creates an active tenant.
func Tenant(t testing.TB, db *gorm.DB, slug string) models.Tenant {
	t.Helper()
	tn := models.Tenant{Name: slug, Slug: slug, IsActive: true}
	require.NoError(t, db.Create(&tn).Error)
	return tn
}

// Enable turns a gated module on for a tenant.
func Enable(t testing.TB, db *gorm.DB, tenantID, moduleID string) {
	t.Helper()
	require.NoError(t, db.Create(&models.TenantModule{TenantID: tenantID, ModuleID: moduleID, IsEnabled: true}).Error)
}

// Product creates a product, applying opts to the defaults first. The
// default is a visible platform product.
func Product(t testing.TB, db *gorm.DB, moduleID, code string, opts ...func(*models.Product)) models.Product {
	t.Helper()
	p := models.Product{
		ModuleID: moduleID, Code: code, Name: code, Category: "General",
		Currency: "USD", IsVisible: true, IsDefault: true,
	}
	for _, o := range opts {
		o(&p)
	}
	require.NoError(t, db.Create(&p).Error)
	return p
}

func Unlocked(p *models.Product) { p.IsUnlockedForAll = true }
func Hidden(p *models.Product)   { p.IsVisible = false }
func OwnedBy(tenantID string) func(*models.Product) {
	return func(p *models.Product) {
		p.TenantID = &tenantID
		p.IsDefault = false
	}
}
func InCategory(c string) func(*models.Product) {
	return func(p *models.Product) { p.Category = c }
}

// Sync creates a TenantProduct row.
func Sync(t testing.TB, db *gorm.DB, tenantID, productID string, visible bool) models.TenantProduct {
	t.Helper()
	tp := models.TenantProduct{TenantID: tenantID, ProductID: productID, IsVisible: visible}
	require.NoError(t, db.Create(&tp).Error)
	return tp
}
