package auth

import "strings"

// RolePreset is a named, fixed permission bundle for common admin levels.
// Creating a role from a preset copies the bundle verbatim.
type RolePreset struct {
	Name        string
	Permissions []string
}

var rolePresets = map[string]RolePreset{
	"super_admin": {
		Name: "Super Admin",
		Permissions: []string{
			PermAdminAccess,
			PermAdminReadOnly,
			PermManageUsers,
			PermManageRoles,
			PermManagePrayers,
			PermManagePrayerResponses,
			PermManageParishes,
			PermManageAnnouncements,
			PermManageEvents,
			PermManageTestimonials,
			PermViewAuditLogs,
			PermExportData,
		},
	},
	"admin": {
		Name: "Admin",
		Permissions: []string{
			PermAdminAccess,
			PermManageUsers,
			PermManagePrayers,
			PermManagePrayerResponses,
			PermManageAnnouncements,
			PermManageEvents,
			PermManageTestimonials,
			PermViewAuditLogs,
		},
	},
	"moderator": {
		Name: "Moderator",
		Permissions: []string{
			PermAdminAccess,
			PermAdminReadOnly,
			PermManagePrayers,
			PermManagePrayerResponses,
			PermManageTestimonials,
		},
	},
	"read_only_admin": {
		Name: "Read-Only Admin",
		Permissions: []string{
			PermAdminAccess,
			PermAdminReadOnly,
			PermViewAuditLogs,
		},
	},
}

// Preset looks up a role preset by name, case-insensitively.
func Preset(name string) (RolePreset, bool) {
	p, ok := rolePresets[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return RolePreset{}, false
	}
	// Copy the bundle so callers cannot mutate the catalog.
	perms := make([]string, len(p.Permissions))
	copy(perms, p.Permissions)
	return RolePreset{Name: p.Name, Permissions: perms}, true
}
