package auth

// Principal represents a user with resolved roles and permissions.
type Principal struct {
	User        *User
	Assignments []RoleAssignment
	Permissions map[string]struct{}
}

// HasPermission reports whether the principal holds the permission key.
func (p Principal) HasPermission(key string) bool {
	_, ok := p.Permissions[key]
	return ok
}

// IsReadOnly reports whether the principal is a view-only admin. Read-only
// admins pass permission checks for reads but must be rejected before any
// mutation is attempted.
func (p Principal) IsReadOnly() bool {
	return p.HasPermission(PermAdminReadOnly)
}
