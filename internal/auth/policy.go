package auth

import (
	"eamcrm/internal/apperr"
	"eamcrm/internal/models"
)

// Action is a capability granted to roles.
type Action string

const (
	// ActionRead reads resources of the caller's own tenant.
	ActionRead Action = "tenant:read"
	// ActionWriteClients creates and edits clients and accounts.
	ActionWriteClients Action = "clients:write"
	// ActionManageTenant manages users, products and settings of a tenant.
	ActionManageTenant Action = "tenant:manage"
	// ActionReadPlatform reads across tenants.
	ActionReadPlatform Action = "platform:read"
	// ActionManagePlatform writes across tenants and owns platform defaults.
	ActionManagePlatform Action = "platform:manage"
)

func (a Action) writes() bool {
	return a != ActionRead && a != ActionReadPlatform
}

var allActions = []Action{ActionRead, ActionWriteClients, ActionManageTenant, ActionReadPlatform, ActionManagePlatform}

// permissions is the role → capability matrix.
var permissions = map[string][]Action{
	models.RoleTenantUser:    {ActionRead, ActionWriteClients},
	models.RoleTenantAdmin:   {ActionRead, ActionWriteClients, ActionManageTenant},
	models.RolePlatformUser:  {ActionRead, ActionReadPlatform},
	models.RolePlatformAdmin: allActions,
	models.RoleSuperAdmin:    allActions,
}

// SystemRoles lists the seeded roles with their descriptions.
var SystemRoles = []models.Role{
	{Name: models.RoleSuperAdmin, Description: "Super admin - unrestricted platform access", IsSystem: true},
	{Name: models.RolePlatformAdmin, Description: "Platform admin - full access to all platform features and tenant management", IsSystem: true},
	{Name: models.RolePlatformUser, Description: "Platform user - read-only view across tenants", IsSystem: true},
	{Name: models.RoleTenantAdmin, Description: "Tenant admin - manage users, clients and products within their tenant", IsSystem: true},
	{Name: models.RoleTenantUser, Description: "Tenant user - work with clients, no user or settings management", IsSystem: true},
}

// Can reports whether any of the caller's roles grants a.
func (c Claims) Can(a Action) bool {
	for _, r := range c.Roles {
		for _, granted := range permissions[r] {
			if granted == a {
				return true
			}
		}
	}
	return false
}

// IsPlatform reports whether the caller holds a platform role.
func (c Claims) IsPlatform() bool {
	return c.Can(ActionReadPlatform)
}

// Authorize checks that c may perform a on a resource owned by
// resourceTenant (nil for platform resources).
//
// Writes on platform resources need ActionManagePlatform. Anything on
// another tenant's resource needs ActionReadPlatform for reads and
// ActionManagePlatform for writes.
func Authorize(c Claims, a Action, resourceTenant *string) error {
	if !c.Can(a) {
		return apperr.Forbidden("Insufficient permissions")
	}
	if resourceTenant == nil {
		if a.writes() && !c.Can(ActionManagePlatform) {
			return apperr.Forbidden("Only platform admins can modify platform resources")
		}
		return nil
	}
	if c.TenantID != "" && *resourceTenant == c.TenantID {
		return nil
	}
	if a.writes() {
		if c.Can(ActionManagePlatform) {
			return nil
		}
		return apperr.Forbidden("Access denied")
	}
	if c.Can(ActionReadPlatform) {
		return nil
	}
	return apperr.Forbidden("Access denied")
}

// GrantableRoles reports whether c may assign every role in roles.
// Platform roles can only be granted by platform managers.
func GrantableRoles(c Claims, roles []string) error {
	for _, r := range roles {
		if _, ok := permissions[r]; !ok {
			return apperr.Invalid("unknown role %q", r)
		}
		switch r {
		case models.RolePlatformAdmin, models.RolePlatformUser, models.RoleSuperAdmin:
			if !c.Can(ActionManagePlatform) {
				return apperr.Forbidden("Only platform admins can grant platform roles")
			}
		}
	}
	return nil
}

// ListScope returns the tenant a listing must be restricted to, or ""
// when the caller may list across tenants. requested narrows a
// cross-tenant listing.
func ListScope(c Claims, requested string) (string, error) {
	if c.Can(ActionReadPlatform) {
		return requested, nil
	}
	if c.TenantID == "" {
		return "", apperr.Invalid("User must belong to a tenant")
	}
	if requested != "" && requested != c.TenantID {
		return "", apperr.Forbidden("Access denied")
	}
	return c.TenantID, nil
}
