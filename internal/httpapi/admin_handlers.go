package httpapi

import (
	"net/http"
	"strings"
	"time"

	"parishnet.org/internal/audit"
	"parishnet.org/internal/auth"
	"parishnet.org/internal/community"
)

func (a *API) handleAdminMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	p, ok := a.requireAdmin(w, r, "")
	if !ok {
		return
	}
	perms := make([]string, 0, len(p.Permissions))
	for key := range p.Permissions {
		perms = append(perms, key)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user":        p.User,
		"permissions": perms,
		"read_only":   p.IsReadOnly(),
	})
}

func (a *API) handleAdminDashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if _, ok := a.requireAdmin(w, r, ""); !ok {
		return
	}
	stats, err := a.community.DashboardStats(r.Context())
	if err != nil {
		handleCommunityError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// --- users ---

func (a *API) handleAdminUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if _, ok := a.requireAdmin(w, r, auth.PermManageUsers); !ok {
		return
	}
	page, err := parsePositiveInt(r.URL.Query().Get("page"), 1, 1, 1_000_000)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "validation_error", "page: "+err.Error())
		return
	}
	limit, err := parsePositiveInt(r.URL.Query().Get("limit"), 20, 1, 100)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "validation_error", "limit: "+err.Error())
		return
	}
	users, total, err := a.auth.ListUsers(r.Context(), auth.UserFilter{
		Search:   r.URL.Query().Get("search"),
		ParishID: r.URL.Query().Get("parish_id"),
		Page:     page,
		Limit:    limit,
	})
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"users": users,
		"total": total,
		"page":  page,
		"limit": limit,
	})
}

type adminUserUpdateRequest struct {
	FullName   *string `json:"full_name"`
	Email      *string `json:"email"`
	IsActive   *bool   `json:"is_active"`
	IsVerified *bool   `json:"is_verified"`
	ParishID   *string `json:"parish_id"`
}

type assignRoleRequest struct {
	RoleID string `json:"role_id"`
}

func (a *API) handleAdminUserResource(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/admin/users/")
	parts := strings.Split(rest, "/")
	if len(parts) == 0 || parts[0] == "" {
		writeError(w, r, http.StatusNotFound, "not_found", "resource not found")
		return
	}
	id := parts[0]

	switch {
	case len(parts) == 1:
		switch r.Method {
		case http.MethodGet:
			a.adminGetUser(w, r, id)
		case http.MethodPatch:
			a.adminUpdateUser(w, r, id)
		case http.MethodDelete:
			a.adminDeleteUser(w, r, id)
		default:
			methodNotAllowed(w, r, http.MethodGet, http.MethodPatch, http.MethodDelete)
		}
	case len(parts) == 2 && parts[1] == "roles":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.adminAssignRole(w, r, id)
	case len(parts) == 3 && parts[1] == "roles":
		if r.Method != http.MethodDelete {
			methodNotAllowed(w, r, http.MethodDelete)
			return
		}
		a.adminRemoveRole(w, r, id, parts[2])
	default:
		writeError(w, r, http.StatusNotFound, "not_found", "resource not found")
	}
}

func (a *API) adminGetUser(w http.ResponseWriter, r *http.Request, id string) {
	if _, ok := a.requireAdmin(w, r, auth.PermManageUsers); !ok {
		return
	}
	principal, err := a.auth.Principal(r.Context(), id)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user":        principal.User,
		"assignments": principal.Assignments,
	})
}

func (a *API) adminUpdateUser(w http.ResponseWriter, r *http.Request, id string) {
	p, ok := a.requireAdminWrite(w, r, auth.PermManageUsers)
	if !ok {
		return
	}
	if !a.allowAdminMutation(w, r, p) {
		return
	}
	var req adminUserUpdateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_json", err.Error())
		return
	}
	user, err := a.auth.UpdateUser(r.Context(), id, auth.UserUpdate{
		FullName:   req.FullName,
		Email:      req.Email,
		IsActive:   req.IsActive,
		IsVerified: req.IsVerified,
		ParishID:   req.ParishID,
	})
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	a.audit(r, p.User.ID, "USER_UPDATED", "user", id, nil)
	writeJSON(w, http.StatusOK, user)
}

func (a *API) adminDeleteUser(w http.ResponseWriter, r *http.Request, id string) {
	p, ok := a.requireAdminWrite(w, r, auth.PermManageUsers)
	if !ok {
		return
	}
	if !a.allowAdminMutation(w, r, p) {
		return
	}
	if err := a.auth.DeleteUser(r.Context(), id); err != nil {
		handleAuthError(w, r, err)
		return
	}
	a.audit(r, p.User.ID, "USER_DELETED", "user", id, nil)
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

func (a *API) adminAssignRole(w http.ResponseWriter, r *http.Request, userID string) {
	p, ok := a.requireAdminWrite(w, r, auth.PermManageRoles)
	if !ok {
		return
	}
	if !a.allowAdminMutation(w, r, p) {
		return
	}
	var req assignRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_json", err.Error())
		return
	}
	assignment, err := a.auth.AssignRole(r.Context(), userID, req.RoleID)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	a.audit(r, p.User.ID, "ROLE_ASSIGNED", "user", userID, map[string]any{
		"role_id": req.RoleID,
	})
	writeJSON(w, http.StatusCreated, assignment)
}

func (a *API) adminRemoveRole(w http.ResponseWriter, r *http.Request, userID, roleID string) {
	p, ok := a.requireAdminWrite(w, r, auth.PermManageRoles)
	if !ok {
		return
	}
	if !a.allowAdminMutation(w, r, p) {
		return
	}
	if err := a.auth.RemoveAssignment(r.Context(), userID, roleID); err != nil {
		handleAuthError(w, r, err)
		return
	}
	a.audit(r, p.User.ID, "ROLE_UNASSIGNED", "user", userID, map[string]any{
		"role_id": roleID,
	})
	writeJSON(w, http.StatusOK, map[string]any{"removed": true})
}

// --- roles ---

type createRoleRequest struct {
	Name        string   `json:"name"`
	Permissions []string `json:"permissions"`
	Preset      string   `json:"preset"`
}

type updateRoleRequest struct {
	Name        *string  `json:"name"`
	Permissions []string `json:"permissions"`
}

func (a *API) handleAdminRoles(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if _, ok := a.requireAdmin(w, r, auth.PermManageRoles); !ok {
			return
		}
		roles, err := a.auth.ListRoles(r.Context())
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"roles": roles})
	case http.MethodPost:
		p, ok := a.requireAdminWrite(w, r, auth.PermManageRoles)
		if !ok {
			return
		}
		if !a.allowAdminMutation(w, r, p) {
			return
		}
		var req createRoleRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, "bad_json", err.Error())
			return
		}
		role, err := a.auth.CreateRole(r.Context(), auth.CreateRoleInput{
			Name:        req.Name,
			Permissions: req.Permissions,
			Preset:      req.Preset,
		})
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		meta := map[string]any{"name": role.Name}
		if req.Preset != "" {
			meta["preset"] = req.Preset
		}
		a.audit(r, p.User.ID, "ROLE_CREATED", "role", role.ID, meta)
		w.Header().Set("Location", "/v1/admin/roles/"+role.ID)
		writeJSON(w, http.StatusCreated, role)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleAdminRoleResource(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/admin/roles/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "not_found", "resource not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		if _, ok := a.requireAdmin(w, r, auth.PermManageRoles); !ok {
			return
		}
		role, err := a.auth.GetRole(r.Context(), id)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, role)
	case http.MethodPatch:
		p, ok := a.requireAdminWrite(w, r, auth.PermManageRoles)
		if !ok {
			return
		}
		if !a.allowAdminMutation(w, r, p) {
			return
		}
		var req updateRoleRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, "bad_json", err.Error())
			return
		}
		role, err := a.auth.UpdateRole(r.Context(), id, auth.RoleUpdate{
			Name:        req.Name,
			Permissions: req.Permissions,
		})
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		a.audit(r, p.User.ID, "ROLE_UPDATED", "role", id, nil)
		writeJSON(w, http.StatusOK, role)
	case http.MethodDelete:
		p, ok := a.requireAdminWrite(w, r, auth.PermManageRoles)
		if !ok {
			return
		}
		if !a.allowAdminMutation(w, r, p) {
			return
		}
		if err := a.auth.DeleteRole(r.Context(), id); err != nil {
			handleAuthError(w, r, err)
			return
		}
		a.audit(r, p.User.ID, "ROLE_DELETED", "role", id, nil)
		writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPatch, http.MethodDelete)
	}
}

// --- prayers moderation ---

type adminPrayerPatchRequest struct {
	IsApproved *bool `json:"is_approved"`
}

type adminResponsePatchRequest struct {
	Content string `json:"content"`
}

func (a *API) handleAdminPrayers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if _, ok := a.requireAdmin(w, r, auth.PermManagePrayers); !ok {
		return
	}
	page, err := parsePositiveInt(r.URL.Query().Get("page"), 1, 1, 1_000_000)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "validation_error", "page: "+err.Error())
		return
	}
	limit, err := parsePositiveInt(r.URL.Query().Get("limit"), 20, 1, 100)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "validation_error", "limit: "+err.Error())
		return
	}
	filter := community.PrayerFilter{
		ParishID: r.URL.Query().Get("parish_id"),
		Page:     page,
		Limit:    limit,
	}
	var (
		prayers []*community.Prayer
		total   int
	)
	if r.URL.Query().Get("include_deleted") == "true" {
		prayers, total, err = a.community.ListPrayersForExport(r.Context(), filter)
	} else {
		prayers, total, err = a.community.ListPrayers(r.Context(), filter)
	}
	if err != nil {
		handleCommunityError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"prayers": prayers,
		"total":   total,
		"page":    page,
		"limit":   limit,
	})
}

func (a *API) handleAdminPrayerResource(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/admin/prayers/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "not_found", "resource not found")
		return
	}
	switch r.Method {
	case http.MethodPatch:
		p, ok := a.requireAdminWrite(w, r, auth.PermManagePrayers)
		if !ok {
			return
		}
		if !a.allowAdminMutation(w, r, p) {
			return
		}
		var req adminPrayerPatchRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, "bad_json", err.Error())
			return
		}
		if req.IsApproved == nil {
			writeError(w, r, http.StatusBadRequest, "validation_error", "is_approved is required")
			return
		}
		if err := a.community.SetPrayerApproved(r.Context(), id, *req.IsApproved); err != nil {
			handleCommunityError(w, r, err)
			return
		}
		a.audit(r, p.User.ID, "PRAYER_MODERATED", "prayer", id, map[string]any{
			"is_approved": *req.IsApproved,
		})
		writeJSON(w, http.StatusOK, map[string]any{"is_approved": *req.IsApproved})
	case http.MethodDelete:
		p, ok := a.requireAdminWrite(w, r, auth.PermManagePrayers)
		if !ok {
			return
		}
		if !a.allowAdminMutation(w, r, p) {
			return
		}
		affected, err := a.community.SoftDeletePrayer(r.Context(), id)
		if err != nil {
			handleCommunityError(w, r, err)
			return
		}
		a.audit(r, p.User.ID, "PRAYER_DELETED", "prayer", id, map[string]any{
			"affected_rows": affected,
		})
		writeJSON(w, http.StatusOK, map[string]any{"deleted": true, "affected_rows": affected})
	default:
		methodNotAllowed(w, r, http.MethodPatch, http.MethodDelete)
	}
}

func (a *API) handleAdminResponseResource(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/admin/responses/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "not_found", "resource not found")
		return
	}
	if r.Method != http.MethodPatch {
		methodNotAllowed(w, r, http.MethodPatch)
		return
	}
	p, ok := a.requireAdminWrite(w, r, auth.PermManagePrayerResponses)
	if !ok {
		return
	}
	if !a.allowAdminMutation(w, r, p) {
		return
	}
	var req adminResponsePatchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_json", err.Error())
		return
	}
	resp, err := a.community.UpdateResponseContent(r.Context(), id, req.Content)
	if err != nil {
		handleCommunityError(w, r, err)
		return
	}
	a.audit(r, p.User.ID, "RESPONSE_MODERATED", "prayer_response", id, nil)
	writeJSON(w, http.StatusOK, resp)
}

// --- parishes ---

type createParishRequest struct {
	Name    string `json:"name"`
	City    string `json:"city"`
	Address string `json:"address"`
}

func (a *API) handleAdminParishes(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if _, ok := a.requireAdmin(w, r, auth.PermManageParishes); !ok {
			return
		}
		parishes, err := a.community.ListParishes(r.Context())
		if err != nil {
			handleCommunityError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"parishes": parishes})
	case http.MethodPost:
		p, ok := a.requireAdminWrite(w, r, auth.PermManageParishes)
		if !ok {
			return
		}
		if !a.allowAdminMutation(w, r, p) {
			return
		}
		var req createParishRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, "bad_json", err.Error())
			return
		}
		parish, err := a.community.CreateParish(r.Context(), req.Name, req.City, req.Address)
		if err != nil {
			handleCommunityError(w, r, err)
			return
		}
		a.audit(r, p.User.ID, "PARISH_CREATED", "parish", parish.ID, map[string]any{
			"name": parish.Name,
		})
		writeJSON(w, http.StatusCreated, parish)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleAdminParishResource(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/admin/parishes/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "not_found", "resource not found")
		return
	}
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}
	p, ok := a.requireAdminWrite(w, r, auth.PermManageParishes)
	if !ok {
		return
	}
	if !a.allowAdminMutation(w, r, p) {
		return
	}
	if err := a.community.DeleteParish(r.Context(), id); err != nil {
		handleCommunityError(w, r, err)
		return
	}
	a.audit(r, p.User.ID, "PARISH_DELETED", "parish", id, nil)
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

// --- audit trail ---

func (a *API) handleAdminActivities(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if _, ok := a.requireAdmin(w, r, auth.PermViewAuditLogs); !ok {
		return
	}
	page, err := parsePositiveInt(r.URL.Query().Get("page"), 1, 1, 1_000_000)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "validation_error", "page: "+err.Error())
		return
	}
	limit, err := parsePositiveInt(r.URL.Query().Get("limit"), 10, 1, 100)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "validation_error", "limit: "+err.Error())
		return
	}
	filter := audit.Filter{
		Action:     r.URL.Query().Get("action"),
		EntityType: r.URL.Query().Get("entity_type"),
		Page:       page,
		Limit:      limit,
	}
	if raw := r.URL.Query().Get("from"); raw != "" {
		from, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "validation_error", "from must be RFC3339")
			return
		}
		filter.From = from
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		to, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "validation_error", "to must be RFC3339")
			return
		}
		filter.To = to
	}
	entries, total, err := a.auditlog.List(r.Context(), filter)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal", "operation failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"activities": entries,
		"total":      total,
		"page":       page,
		"limit":      limit,
	})
}
