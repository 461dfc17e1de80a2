package visibility

import (
	"testing"

	"eamcrm/internal/models"

	"github.com/stretchr/testify/assert"
)

func strp(s string) *string { return &s }

func TestModuleEnabled(t *testing.T) {
	core := models.Module{ID: "m-core", IsCore: true, IsActive: true}
	gated := models.Module{ID: "m-gated", IsActive: true}
	inactiveCore := models.Module{ID: "m-off", IsCore: true}

	on := &models.TenantModule{ModuleID: "m-gated", IsEnabled: true}
	off := &models.TenantModule{ModuleID: "m-gated", IsEnabled: false}

	assert.True(t, ModuleEnabled(core, nil), "core module needs no entitlement row")
	assert.True(t, ModuleEnabled(core, off), "core module ignores a disabled row")
	assert.False(t, ModuleEnabled(gated, nil))
	assert.False(t, ModuleEnabled(gated, off))
	assert.True(t, ModuleEnabled(gated, on))
	assert.False(t, ModuleEnabled(inactiveCore, nil), "inactive modules are off even when core")
	assert.False(t, ModuleEnabled(gated, &models.TenantModule{ModuleID: "other", IsEnabled: true}))
}

func TestClassify(t *testing.T) {
	tp := &models.TenantProduct{TenantID: "t1", ProductID: "p"}
	tests := []struct {
		name string
		p    models.Product
		tp   *models.TenantProduct
		want Origin
	}{
		{"own product", models.Product{TenantID: strp("t1")}, nil, TenantOwned},
		{"foreign product", models.Product{TenantID: strp("t2")}, nil, Unreachable},
		{"unlocked platform", models.Product{IsDefault: true, IsUnlockedForAll: true}, nil, PlatformUnlocked},
		{"unlocked platform with override", models.Product{IsDefault: true, IsUnlockedForAll: true}, tp, PlatformUnlocked},
		{"synced platform", models.Product{IsDefault: true}, tp, PlatformSynced},
		{"unsynced platform", models.Product{IsDefault: true}, nil, Unreachable},
		{"row for another tenant", models.Product{IsDefault: true}, &models.TenantProduct{TenantID: "t2"}, Unreachable},
		{"platform row without default flag", models.Product{IsUnlockedForAll: true}, nil, Unreachable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.p, "t1", tt.tp))
		})
	}
}

func TestVisibleUnlockedFallsBackToProductFlag(t *testing.T) {
	for _, productVisible := range []bool{true, false} {
		p := models.Product{IsDefault: true, IsUnlockedForAll: true, IsVisible: productVisible}
		o := Classify(p, "t1", nil)
		assert.Equal(t, productVisible, Visible(o, p, nil))
	}
}

func TestVisibleUnlockedUsesOverride(t *testing.T) {
	p := models.Product{IsDefault: true, IsUnlockedForAll: true, IsVisible: true}
	hidden := &models.TenantProduct{TenantID: "t1", IsVisible: false}
	assert.False(t, Visible(Classify(p, "t1", hidden), p, hidden))

	p.IsVisible = false
	shown := &models.TenantProduct{TenantID: "t1", IsVisible: true}
	assert.True(t, Visible(Classify(p, "t1", shown), p, shown))
}

func TestLockedPlatformWithoutRowNeverVisible(t *testing.T) {
	for _, productVisible := range []bool{true, false} {
		p := models.Product{IsDefault: true, IsVisible: productVisible}
		o := Classify(p, "t1", nil)
		assert.Equal(t, Unreachable, o)
		assert.False(t, Visible(o, p, nil))
		assert.False(t, Visible(PlatformSynced, p, nil), "synced rule has no fallback")
	}
}

func TestSyncedUsesRowOnly(t *testing.T) {
	p := models.Product{IsDefault: true, IsVisible: false}
	row := &models.TenantProduct{TenantID: "t1", IsVisible: true}
	assert.True(t, Visible(Classify(p, "t1", row), p, row))
	row.IsVisible = false
	p.IsVisible = true
	assert.False(t, Visible(Classify(p, "t1", row), p, row))
}

func TestEvaluate(t *testing.T) {
	gated := models.Module{ID: "m", IsActive: true}
	p := models.Product{ModuleID: "m", IsDefault: true, IsUnlockedForAll: true, IsVisible: true}

	d := Evaluate(gated, nil, p, "t1", nil)
	assert.False(t, d.Eligible(), "module gate comes first")
	assert.False(t, d.Listed(false))

	d = Evaluate(gated, &models.TenantModule{ModuleID: "m", IsEnabled: true}, p, "t1", nil)
	assert.True(t, d.Listed(true))

	hidden := &models.TenantProduct{TenantID: "t1", IsVisible: false}
	d = Evaluate(gated, &models.TenantModule{ModuleID: "m", IsEnabled: true}, p, "t1", hidden)
	assert.False(t, d.Listed(true))
	assert.True(t, d.Listed(false), "hidden products still list when visible_only is off")
}

func TestEffective(t *testing.T) {
	p := models.Product{IsVisible: true}
	assert.True(t, Effective(p, nil))
	assert.False(t, Effective(p, &models.TenantProduct{IsVisible: false}))
}
