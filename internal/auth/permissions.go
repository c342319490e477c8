package auth

import "fmt"

// Permission keys form a closed catalog. Roles may only be created with keys
// listed here, so a typo cannot silently grant nothing.
const (
	PermAdminAccess           = "admin_access"
	PermAdminReadOnly         = "admin_read_only"
	PermManageUsers           = "manage_users"
	PermManageRoles           = "manage_roles"
	PermManagePrayers         = "manage_prayers"
	PermManagePrayerResponses = "manage_prayer_responses"
	PermManageParishes        = "manage_parishes"
	PermManageAnnouncements   = "manage_announcements"
	PermManageEvents          = "manage_events"
	PermManageTestimonials    = "manage_testimonials"
	PermViewAuditLogs         = "view_audit_logs"
	PermExportData            = "export_data"
)

var permissionCatalog = map[string]struct{}{
	PermAdminAccess:           {},
	PermAdminReadOnly:         {},
	PermManageUsers:           {},
	PermManageRoles:           {},
	PermManagePrayers:         {},
	PermManagePrayerResponses: {},
	PermManageParishes:        {},
	PermManageAnnouncements:   {},
	PermManageEvents:          {},
	PermManageTestimonials:    {},
	PermViewAuditLogs:         {},
	PermExportData:            {},
}

// KnownPermission reports whether key is part of the catalog.
func KnownPermission(key string) bool {
	_, ok := permissionCatalog[key]
	return ok
}

// ValidatePermissions rejects unknown keys with ErrInvalidInput.
func ValidatePermissions(keys []string) error {
	for _, key := range keys {
		if !KnownPermission(key) {
			return fmt.Errorf("%w: unknown permission %q", ErrInvalidInput, key)
		}
	}
	return nil
}
