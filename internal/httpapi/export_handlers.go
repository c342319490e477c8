package httpapi

import (
	"encoding/csv"
	"net/http"
	"strconv"
	"strings"
	"time"

	"parishnet.org/internal/auth"
	"parishnet.org/internal/community"
)

// handleAdminExport streams CSV snapshots. Exports include soft-deleted rows
// so that a dump taken before a purge is complete.
func (a *API) handleAdminExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	p, ok := a.requireAdmin(w, r, auth.PermExportData)
	if !ok {
		return
	}
	target := strings.TrimPrefix(r.URL.Path, "/v1/admin/export/")
	switch target {
	case "users":
		a.exportUsers(w, r, p)
	case "prayers":
		a.exportPrayers(w, r, p)
	default:
		writeError(w, r, http.StatusNotFound, "not_found", "unknown export target")
	}
}

func (a *API) exportUsers(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	var users []*auth.User
	for page := 1; ; page++ {
		batch, total, err := a.auth.ListUsers(r.Context(), auth.UserFilter{
			Page:           page,
			Limit:          100,
			IncludeDeleted: true,
		})
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		users = append(users, batch...)
		if len(batch) == 0 || len(users) >= total {
			break
		}
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="users.csv"`)
	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"id", "full_name", "email", "parish_id", "is_active", "is_verified", "is_deleted", "created_at"})
	for _, u := range users {
		_ = cw.Write([]string{
			u.ID,
			u.FullName,
			u.Email,
			u.ParishID,
			strconv.FormatBool(u.IsActive),
			strconv.FormatBool(u.IsVerified),
			strconv.FormatBool(u.IsDeleted),
			u.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	cw.Flush()

	a.audit(r, p.User.ID, "DATA_EXPORTED", "user", "", map[string]any{
		"target": "users",
		"rows":   len(users),
	})
}

func (a *API) exportPrayers(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	var prayers []*community.Prayer
	for page := 1; ; page++ {
		batch, total, err := a.community.ListPrayersForExport(r.Context(), community.PrayerFilter{
			Page:  page,
			Limit: 100,
		})
		if err != nil {
			handleCommunityError(w, r, err)
			return
		}
		prayers = append(prayers, batch...)
		if len(batch) == 0 || len(prayers) >= total {
			break
		}
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="prayers.csv"`)
	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"id", "user_id", "author_name", "parish_id", "title", "content", "is_anonymous", "is_approved", "is_deleted", "expires_at", "created_at"})
	for _, pr := range prayers {
		author := ""
		if pr.AuthorName != nil {
			author = *pr.AuthorName
		}
		_ = cw.Write([]string{
			pr.ID,
			pr.UserID,
			author,
			pr.ParishID,
			pr.Title,
			pr.Content,
			strconv.FormatBool(pr.IsAnonymous),
			strconv.FormatBool(pr.IsApproved),
			strconv.FormatBool(pr.IsDeleted),
			pr.ExpiresAt.UTC().Format(time.RFC3339),
			pr.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	cw.Flush()

	a.audit(r, p.User.ID, "DATA_EXPORTED", "prayer", "", map[string]any{
		"target": "prayers",
		"rows":   len(prayers),
	})
}
