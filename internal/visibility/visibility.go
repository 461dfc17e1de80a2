// Package visibility decides whether a module is on for a tenant and
// whether a catalog product is reachable and visible to it. Everything
// here is pure; callers load the rows and pass them in.
package visibility

import "eamcrm/internal/models"

// Origin says how a tenant reaches a product.
type Origin int

const (
	// Unreachable products are neither owned by nor shared with the tenant.
	Unreachable Origin = iota
	// TenantOwned products carry the tenant's own tenant_id.
	TenantOwned
	// PlatformUnlocked products are platform defaults unlocked for all tenants.
	PlatformUnlocked
	// PlatformSynced products are platform defaults with a TenantProduct row.
	PlatformSynced
)

func (o Origin) String() string {
	switch o {
	case TenantOwned:
		return "tenant_owned"
	case PlatformUnlocked:
		return "platform_unlocked"
	case PlatformSynced:
		return "platform_synced"
	default:
		return "unreachable"
	}
}

// ModuleEnabled reports whether m is on for the tenant whose entitlement
// row is tm. tm may be nil.
func ModuleEnabled(m models.Module, tm *models.TenantModule) bool {
	if !m.IsActive {
		return false
	}
	if m.IsCore {
		return true
	}
	return tm != nil && tm.IsEnabled && tm.ModuleID == m.ID
}

// Classify returns how tenantID reaches p. tp is the tenant's
// TenantProduct row for p, or nil.
func Classify(p models.Product, tenantID string, tp *models.TenantProduct) Origin {
	if p.TenantID != nil {
		if *p.TenantID == tenantID {
			return TenantOwned
		}
		return Unreachable
	}
	if !p.IsDefault {
		return Unreachable
	}
	if p.IsUnlockedForAll {
		return PlatformUnlocked
	}
	if tp != nil && tp.TenantID == tenantID {
		return PlatformSynced
	}
	return Unreachable
}

func tenantOwnedVisible(p models.Product) bool { return p.IsVisible }

// An unlocked product falls back to its own default when the tenant has
// never toggled it.
func platformUnlockedVisible(p models.Product, tp *models.TenantProduct) bool {
	if tp != nil {
		return tp.IsVisible
	}
	return p.IsVisible
}

// A synced-only product has no fallback: no row means not visible.
func platformSyncedVisible(tp *models.TenantProduct) bool {
	return tp != nil && tp.IsVisible
}

// Visible applies the per-origin visibility rule.
func Visible(o Origin, p models.Product, tp *models.TenantProduct) bool {
	switch o {
	case TenantOwned:
		return tenantOwnedVisible(p)
	case PlatformUnlocked:
		return platformUnlockedVisible(p, tp)
	case PlatformSynced:
		return platformSyncedVisible(tp)
	default:
		return false
	}
}

// Effective is the visibility a tenant sees for p: the override when one
// exists, the product's own flag otherwise.
func Effective(p models.Product, tp *models.TenantProduct) bool {
	if tp != nil {
		return tp.IsVisible
	}
	return p.IsVisible
}

// Decision is the full outcome of evaluating one product for one tenant.
type Decision struct {
	ModuleEnabled bool
	Origin        Origin
	Visible       bool
}

// Eligible reports whether the product belongs in the tenant's listing
// before the visible_only filter.
func (d Decision) Eligible() bool {
	return d.ModuleEnabled && d.Origin != Unreachable
}

// Listed reports whether the product appears in a listing with the given
// visible_only flag.
func (d Decision) Listed(visibleOnly bool) bool {
	if !d.Eligible() {
		return false
	}
	return !visibleOnly || d.Visible
}

// Evaluate runs module gating, reachability and visibility in one pass.
func Evaluate(m models.Module, tm *models.TenantModule, p models.Product, tenantID string, tp *models.TenantProduct) Decision {
	o := Classify(p, tenantID, tp)
	return Decision{
		ModuleEnabled: ModuleEnabled(m, tm),
		Origin:        o,
		Visible:       Visible(o, p, tp),
	}
}
