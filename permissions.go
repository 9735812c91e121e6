package auth

// rolePermissions is the static role-to-capability table of the portal.
// It is configuration, not behavior: unknown roles resolve to no
// capabilities at all (fail closed).
var rolePermissions = map[Role][]string{
	RoleSuperAdmin: {
		"users.create", "users.read", "users.update", "users.delete",
		"surat.create", "surat.read", "surat.update", "surat.delete", "surat.approve",
		"penduduk.create", "penduduk.read", "penduduk.update", "penduduk.delete",
		"settings.read", "settings.update",
		"reports.read", "logs.read",
	},
	RoleAdmin: {
		"surat.create", "surat.read", "surat.update", "surat.approve",
		"penduduk.create", "penduduk.read", "penduduk.update",
		"reports.read",
	},
	RoleOperator: {
		"surat.create", "surat.read", "surat.update",
		"penduduk.read", "penduduk.update",
	},
	RoleUser: {
		"surat.create", "surat.read",
	},
}

// PermissionsForRole returns the capability set for a role. The returned
// slice is a copy; mutating it does not affect the table.
func PermissionsForRole(role Role) []string {
	perms, ok := rolePermissions[role]
	if !ok {
		return []string{}
	}
	out := make([]string, len(perms))
	copy(out, perms)
	return out
}

// HasPermissions reports whether the role holds every one of the requested
// capabilities. An empty request is trivially satisfied.
func HasPermissions(role Role, required ...string) bool {
	perms, ok := rolePermissions[role]
	if !ok {
		return false
	}

	set := make(map[string]struct{}, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}

	for _, r := range required {
		if _, ok := set[r]; !ok {
			return false
		}
	}
	return true
}
