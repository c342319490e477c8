package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"parishnet.org/internal/audit"
	"parishnet.org/internal/auth"
	"parishnet.org/internal/community"
	"parishnet.org/internal/feed"
	"parishnet.org/internal/obs"
)

// ReadyProbe reports service readiness, pinging the database when present.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	auth       *auth.Service
	auditlog   *audit.Logger
	community  *community.Service
	prayerBus  *feed.Bus
	testimony  *feed.Bus
	readyProbe ReadyProbe
	version    string

	adminLimiter *fixedWindowLimiter
}

// New wires the route table.
func New(authSvc *auth.Service, auditLog *audit.Logger, communitySvc *community.Service, prayerBus, testimonyBus *feed.Bus, rp ReadyProbe, version string) *API {
	a := &API{
		mux:          http.NewServeMux(),
		auth:         authSvc,
		auditlog:     auditLog,
		community:    communitySvc,
		prayerBus:    prayerBus,
		testimony:    testimonyBus,
		readyProbe:   rp,
		version:      version,
		adminLimiter: newFixedWindowLimiter(5, time.Minute),
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// auth
	a.mux.HandleFunc("/v1/auth/register", a.handleRegister)
	a.mux.HandleFunc("/v1/auth/login", a.handleLogin)
	a.mux.HandleFunc("/v1/auth/forgot-password", a.handleForgotPassword)
	a.mux.HandleFunc("/v1/auth/reset-password", a.handleResetPassword)
	a.mux.HandleFunc("/v1/auth/verify-email", a.handleVerifyEmail)

	// community
	a.mux.HandleFunc("/v1/prayers", a.handlePrayersCollection)
	a.mux.HandleFunc("/v1/prayers/stream", a.streamPrayers)
	a.mux.HandleFunc("/v1/prayers/", a.handlePrayerResource)
	a.mux.HandleFunc("/v1/testimonies", a.handleTestimoniesCollection)
	a.mux.HandleFunc("/v1/testimonies/my", a.handleMyTestimonies)
	a.mux.HandleFunc("/v1/testimonies/stream", a.streamTestimonies)
	a.mux.HandleFunc("/v1/testimonies/", a.handleTestimonyResource)
	a.mux.HandleFunc("/v1/notifications", a.handleNotifications)
	a.mux.HandleFunc("/v1/notifications/", a.handleNotificationResource)
	a.mux.HandleFunc("/v1/announcements", a.handleAnnouncementsCollection)
	a.mux.HandleFunc("/v1/announcements/", a.handleAnnouncementResource)
	a.mux.HandleFunc("/v1/events", a.handleEventsCollection)
	a.mux.HandleFunc("/v1/events/", a.handleEventResource)

	// admin
	a.mux.HandleFunc("/v1/admin/me", a.handleAdminMe)
	a.mux.HandleFunc("/v1/admin/dashboard", a.handleAdminDashboard)
	a.mux.HandleFunc("/v1/admin/users", a.handleAdminUsers)
	a.mux.HandleFunc("/v1/admin/users/", a.handleAdminUserResource)
	a.mux.HandleFunc("/v1/admin/roles", a.handleAdminRoles)
	a.mux.HandleFunc("/v1/admin/roles/", a.handleAdminRoleResource)
	a.mux.HandleFunc("/v1/admin/prayers", a.handleAdminPrayers)
	a.mux.HandleFunc("/v1/admin/prayers/", a.handleAdminPrayerResource)
	a.mux.HandleFunc("/v1/admin/responses/", a.handleAdminResponseResource)
	a.mux.HandleFunc("/v1/admin/parishes", a.handleAdminParishes)
	a.mux.HandleFunc("/v1/admin/parishes/", a.handleAdminParishResource)
	a.mux.HandleFunc("/v1/admin/activities", a.handleAdminActivities)
	a.mux.HandleFunc("/v1/admin/export/", a.handleAdminExport)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the fully wrapped handler chain.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = Logging(h)
	h = obs.Instrument(h)
	h = RateLimit(h, 30, 10)
	h = RequestID(h)
	h = CORS(h)
	h = SecurityHeaders(h)
	return h
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "parishnet-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "parishnet-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, errCode, msg string) {
	payload := map[string]any{
		"error": msg,
		"code":  errCode,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func parsePositiveInt(raw string, def, min, max int) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return def, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New("value must be an integer")
	}
	if val < min || val > max {
		return 0, errors.New("value out of range")
	}
	return val, nil
}

// handleAuthError maps auth-domain sentinels to responses with stable codes.
func handleAuthError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrUnauthenticated), errors.Is(err, auth.ErrInvalidToken):
		writeError(w, r, http.StatusUnauthorized, "unauthenticated", "authentication required")
	case errors.Is(err, auth.ErrReadOnly):
		writeError(w, r, http.StatusForbidden, "read_only_forbidden", "read-only administrators cannot modify data")
	case errors.Is(err, auth.ErrPermissionDenied):
		writeError(w, r, http.StatusForbidden, "permission_denied", "permission denied")
	case errors.Is(err, auth.ErrUnknownPreset):
		writeError(w, r, http.StatusBadRequest, "unknown_preset", err.Error())
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, auth.ErrConflict):
		writeError(w, r, http.StatusConflict, "uniqueness_violation", err.Error())
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "not_found", "resource not found")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal", "operation failed")
	}
}

// handleCommunityError maps community-domain sentinels likewise.
func handleCommunityError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, community.ErrInvalidReaction):
		writeError(w, r, http.StatusBadRequest, "invalid_reaction", err.Error())
	case errors.Is(err, community.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, community.ErrConflict):
		writeError(w, r, http.StatusConflict, "uniqueness_violation", err.Error())
	case errors.Is(err, community.ErrPermissionDenied):
		writeError(w, r, http.StatusForbidden, "permission_denied", "permission denied")
	case errors.Is(err, community.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "not_found", "resource not found")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal", "operation failed")
	}
}
