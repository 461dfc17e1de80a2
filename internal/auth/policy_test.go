package auth

import (
	"testing"

	"eamcrm/internal/apperr"
	"eamcrm/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allRoles = []string{
	models.RoleTenantUser, models.RoleTenantAdmin, models.RolePlatformUser,
	models.RolePlatformAdmin, models.RoleSuperAdmin,
}

func strp(s string) *string { return &s }

func TestRoleScopeIncreases(t *testing.T) {
	tu := Claims{Roles: []string{models.RoleTenantUser}}
	ta := Claims{Roles: []string{models.RoleTenantAdmin}}
	pu := Claims{Roles: []string{models.RolePlatformUser}}
	pa := Claims{Roles: []string{models.RolePlatformAdmin}}

	assert.False(t, tu.Can(ActionManageTenant))
	assert.True(t, ta.Can(ActionManageTenant))
	assert.False(t, ta.Can(ActionReadPlatform))
	assert.True(t, pu.Can(ActionReadPlatform))
	assert.False(t, pu.Can(ActionManagePlatform), "platform_user is read-only")
	assert.False(t, pu.Can(ActionWriteClients))
	for _, a := range allActions {
		assert.True(t, pa.Can(a), a)
	}
	assert.False(t, Claims{Roles: []string{"eam_manager"}}.Can(ActionRead), "unknown roles grant nothing")
}

// Every role, acting from tenant A, against every action on a resource of
// tenant B: only platform capabilities may cross.
func TestAuthorizeCrossTenantIsolation(t *testing.T) {
	for _, role := range allRoles {
		c := Claims{Subject: "u", TenantID: "A", Roles: []string{role}}
		for _, a := range allActions {
			err := Authorize(c, a, strp("B"))
			if !c.Can(a) {
				require.Error(t, err)
				continue
			}
			switch {
			case a.writes() && !c.Can(ActionManagePlatform):
				assert.True(t, apperr.Is(err, apperr.KindForbidden), "%s %s", role, a)
			case !a.writes() && !c.Can(ActionReadPlatform):
				assert.True(t, apperr.Is(err, apperr.KindForbidden), "%s %s", role, a)
			default:
				assert.NoError(t, err, "%s %s", role, a)
			}
		}
	}
}

func TestAuthorizeOwnTenant(t *testing.T) {
	for _, role := range allRoles {
		c := Claims{Subject: "u", TenantID: "A", Roles: []string{role}}
		for _, a := range allActions {
			err := Authorize(c, a, strp("A"))
			assert.Equal(t, c.Can(a), err == nil, "%s %s", role, a)
		}
	}
}

func TestAuthorizePlatformResources(t *testing.T) {
	for _, role := range allRoles {
		c := Claims{Subject: "u", TenantID: "A", Roles: []string{role}}
		for _, a := range allActions {
			err := Authorize(c, a, nil)
			want := c.Can(a) && (!a.writes() || c.Can(ActionManagePlatform))
			assert.Equal(t, want, err == nil, "%s %s", role, a)
		}
	}
}

func TestAuthorizeWithoutTenantNeverMatches(t *testing.T) {
	c := Claims{Subject: "u", Roles: []string{models.RoleTenantAdmin}}
	assert.Error(t, Authorize(c, ActionManageTenant, strp("")))
}

func TestGrantableRoles(t *testing.T) {
	ta := Claims{TenantID: "A", Roles: []string{models.RoleTenantAdmin}}
	assert.NoError(t, GrantableRoles(ta, []string{models.RoleTenantUser, models.RoleTenantAdmin}))
	assert.True(t, apperr.Is(GrantableRoles(ta, []string{models.RolePlatformAdmin}), apperr.KindForbidden))
	assert.True(t, apperr.Is(GrantableRoles(ta, []string{"root"}), apperr.KindInvalid))

	pa := Claims{Roles: []string{models.RolePlatformAdmin}}
	assert.NoError(t, GrantableRoles(pa, []string{models.RoleSuperAdmin}))
}

func TestListScope(t *testing.T) {
	ta := Claims{TenantID: "A", Roles: []string{models.RoleTenantAdmin}}
	scope, err := ListScope(ta, "")
	require.NoError(t, err)
	assert.Equal(t, "A", scope)
	_, err = ListScope(ta, "B")
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	pu := Claims{Roles: []string{models.RolePlatformUser}}
	scope, err = ListScope(pu, "")
	require.NoError(t, err)
	assert.Empty(t, scope)
	scope, _ = ListScope(pu, "B")
	assert.Equal(t, "B", scope)

	_, err = ListScope(Claims{Roles: []string{models.RoleTenantUser}}, "")
	assert.True(t, apperr.Is(err, apperr.KindInvalid))
}
