package httpapi

import (
	"net/http"
	"strings"

	"parishnet.org/internal/auth"
	"parishnet.org/internal/obs"
)

var publicPaths = []string{
	"/healthz",
	"/readyz",
	"/metrics",
	"/v1/info",
}

var publicPrefixes = []string{
	"/v1/auth/",
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	for _, prefix := range publicPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// withAuth resolves the bearer token into a principal and stores it on the
// request context. Public paths pass through untouched. Stream endpoints also
// accept a ?token= query parameter because EventSource cannot set headers.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token := extractBearerToken(r)
		if token == "" && strings.HasSuffix(r.URL.Path, "/stream") {
			token = strings.TrimSpace(r.URL.Query().Get("token"))
		}
		if token == "" {
			writeError(w, r, http.StatusUnauthorized, "unauthenticated", "authentication required")
			return
		}

		principal, err := a.auth.Authenticate(r.Context(), token)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.ContextWithPrincipal(r.Context(), principal)))
	})
}

func extractBearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// principal returns the authenticated principal or writes a 401.
func (a *API) principal(w http.ResponseWriter, r *http.Request) (auth.Principal, bool) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthenticated", "authentication required")
		return auth.Principal{}, false
	}
	return p, true
}

// requireAdmin gates admin routes on admin_access plus, for reads beyond the
// dashboard, the specific permission. Writes a response on failure.
func (a *API) requireAdmin(w http.ResponseWriter, r *http.Request, perm string) (auth.Principal, bool) {
	p, ok := a.principal(w, r)
	if !ok {
		return auth.Principal{}, false
	}
	if !p.HasPermission(auth.PermAdminAccess) {
		writeError(w, r, http.StatusForbidden, "permission_denied", "admin access required")
		return auth.Principal{}, false
	}
	if perm != "" && perm != auth.PermAdminAccess && !p.HasPermission(perm) {
		writeError(w, r, http.StatusForbidden, "permission_denied", "permission denied")
		return auth.Principal{}, false
	}
	return p, true
}

// requireAdminWrite gates admin mutations: admin access first, then the
// read-only flag, then the specific permission. The read-only flag wins even
// when the principal also holds the permission the mutation would otherwise
// require.
func (a *API) requireAdminWrite(w http.ResponseWriter, r *http.Request, perm string) (auth.Principal, bool) {
	p, ok := a.principal(w, r)
	if !ok {
		return auth.Principal{}, false
	}
	if !p.HasPermission(auth.PermAdminAccess) {
		writeError(w, r, http.StatusForbidden, "permission_denied", "admin access required")
		return auth.Principal{}, false
	}
	if err := auth.RequireWritable(p); err != nil {
		handleAuthError(w, r, err)
		return auth.Principal{}, false
	}
	if perm != "" && perm != auth.PermAdminAccess && !p.HasPermission(perm) {
		writeError(w, r, http.StatusForbidden, "permission_denied", "permission denied")
		return auth.Principal{}, false
	}
	return p, true
}

// allowAdminMutation applies the fixed per-minute cap on sensitive admin
// mutations, keyed by acting user.
func (a *API) allowAdminMutation(w http.ResponseWriter, r *http.Request, p auth.Principal) bool {
	if !a.adminLimiter.Allow(p.User.ID) {
		writeError(w, r, http.StatusTooManyRequests, "rate_limited", "too many admin mutations, slow down")
		return false
	}
	return true
}

// audit records an admin action. A failed write never fails the request; it
// is logged and counted instead.
func (a *API) audit(r *http.Request, adminUserID, action, entityType, entityID string, metadata map[string]any) {
	if a.auditlog == nil {
		return
	}
	err := a.auditlog.Record(r.Context(), adminUserID, action, entityType, entityID, metadata, clientIP(r))
	if err != nil {
		obs.AuditWriteFailed()
		obs.Warn("audit write failed", map[string]any{
			"action":      action,
			"entity_type": entityType,
			"entity_id":   entityID,
			"error":       err.Error(),
			"request_id":  RequestIDFromContext(r.Context()),
		})
	}
}
