package repository

import (
	"context"
	"testing"

	"eamcrm/internal/apperr"
	"eamcrm/internal/dbtest"
	"eamcrm/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoreModulesEnabledForNewTenant(t *testing.T) {
	db := dbtest.Seeded(t)
	ctx := context.Background()
	repo := NewModuleRepository(db)
	tn := dbtest.Tenant(t, db, "fresh")

	core := dbtest.Module(t, db, "core_platform")
	ok, err := repo.IsModuleEnabled(ctx, tn.ID, core)
	require.NoError(t, err)
	assert.True(t, ok)

	gated := dbtest.Module(t, db, "private_banking")
	ok, err = repo.IsModuleEnabled(ctx, tn.ID, gated)
	require.NoError(t, err)
	assert.False(t, ok)

	statuses, err := repo.ListForTenant(ctx, tn.ID)
	require.NoError(t, err)
	require.Len(t, statuses, 15)
	enabled := 0
	for _, s := range statuses {
		if s.IsEnabled {
			enabled++
			assert.True(t, s.IsCore, s.Code)
		}
	}
	assert.Equal(t, 4, enabled)
}

func TestSetEnabledUpserts(t *testing.T) {
	db := dbtest.Seeded(t)
	ctx := context.Background()
	repo := NewModuleRepository(db)
	tn := dbtest.Tenant(t, db, "t1")
	m := dbtest.Module(t, db, "macro_analysis")

	tm, err := repo.SetEnabled(ctx, tn.ID, m.ID, true, nil)
	require.NoError(t, err)
	assert.True(t, tm.IsEnabled)
	firstID := tm.ID

	tm, err = repo.SetEnabled(ctx, tn.ID, m.ID, false, models.JSONB(`{"limit":3}`))
	require.NoError(t, err)
	assert.False(t, tm.IsEnabled)
	assert.Equal(t, firstID, tm.ID)
	assert.JSONEq(t, `{"limit":3}`, string(tm.Config))

	var n int64
	require.NoError(t, db.Model(&models.TenantModule{}).Where("tenant_id = ?", tn.ID).Count(&n).Error)
	assert.EqualValues(t, 1, n)

	ok, err := repo.IsModuleEnabled(ctx, tn.ID, m)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCoreModuleCannotBeDisabled(t *testing.T) {
	db := dbtest.Seeded(t)
	ctx := context.Background()
	repo := NewModuleRepository(db)
	tn := dbtest.Tenant(t, db, "t1")
	core := dbtest.Module(t, db, "client_onboarding")

	_, err := repo.SetEnabled(ctx, tn.ID, core.ID, false, nil)
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	tm, err := repo.SetEnabled(ctx, tn.ID, core.ID, true, nil)
	require.NoError(t, err)
	assert.True(t, tm.IsEnabled)

	off := false
	_, err = repo.Update(ctx, core.ID, ModuleUpdate{IsActive: &off})
	assert.True(t, apperr.Is(err, apperr.KindForbidden))
}

func TestInactiveModuleDisablesEntitlement(t *testing.T) {
	db := dbtest.Seeded(t)
	ctx := context.Background()
	repo := NewModuleRepository(db)
	tn := dbtest.Tenant(t, db, "t1")
	m := dbtest.Module(t, db, "quant_investing")
	dbtest.Enable(t, db, tn.ID, m.ID)

	off := false
	updated, err := repo.Update(ctx, m.ID, ModuleUpdate{IsActive: &off})
	require.NoError(t, err)
	ok, err := repo.IsModuleEnabled(ctx, tn.ID, *updated)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCreateModuleValidation(t *testing.T) {
	db := dbtest.Seeded(t)
	ctx := context.Background()
	repo := NewModuleRepository(db)

	err := repo.Create(ctx, &models.Module{Code: "Bad-Code", Name: "Bad"})
	assert.True(t, apperr.Is(err, apperr.KindInvalid))

	err = repo.Create(ctx, &models.Module{Code: "core_platform", Name: "Dup"})
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	m := models.Module{Code: "esg_screening", Name: "ESG Screening", Category: models.ModuleAnalytics, IsActive: true}
	require.NoError(t, repo.Create(ctx, &m))
	assert.Equal(t, "1.0.0", m.Version)
	assert.False(t, m.IsCore)
}
