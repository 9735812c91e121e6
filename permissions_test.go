package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPermissionsForRole(t *testing.T) {
	superAdmin := PermissionsForRole(RoleSuperAdmin)
	assert.Contains(t, superAdmin, "users.delete")
	assert.Contains(t, superAdmin, "settings.update")
	assert.Contains(t, superAdmin, "logs.read")

	admin := PermissionsForRole(RoleAdmin)
	assert.Contains(t, admin, "surat.approve")
	assert.Contains(t, admin, "penduduk.create")
	assert.NotContains(t, admin, "users.create")
	assert.NotContains(t, admin, "settings.read")

	operator := PermissionsForRole(RoleOperator)
	assert.Contains(t, operator, "surat.update")
	assert.Contains(t, operator, "penduduk.read")
	assert.NotContains(t, operator, "surat.delete")
	assert.NotContains(t, operator, "surat.approve")

	user := PermissionsForRole(RoleUser)
	assert.Equal(t, []string{"surat.create", "surat.read"}, user)
}

func TestPermissionsForUnknownRole(t *testing.T) {
	perms := PermissionsForRole(Role("editor"))
	assert.NotNil(t, perms)
	assert.Empty(t, perms)
}

func TestPermissionsForRoleReturnsCopy(t *testing.T) {
	first := PermissionsForRole(RoleOperator)
	first[0] = "tampered"
	assert.NotContains(t, PermissionsForRole(RoleOperator), "tampered")
}

func TestHasPermissions(t *testing.T) {
	// ALL of the named permissions must be held.
	assert.True(t, HasPermissions(RoleOperator, "surat.create"))
	assert.True(t, HasPermissions(RoleOperator, "surat.create", "penduduk.read"))
	assert.False(t, HasPermissions(RoleOperator, "surat.create", "surat.delete"))
	assert.False(t, HasPermissions(RoleUser, "penduduk.read"))

	// No required permissions means any known role passes; unknown roles
	// fail closed either way.
	assert.True(t, HasPermissions(RoleUser))
	assert.False(t, HasPermissions(Role("editor")))

	assert.True(t, HasPermissions(RoleSuperAdmin, "surat.delete", "users.delete", "reports.read"))
}
