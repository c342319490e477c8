package httpapi

import (
	"net/http"
	"strings"

	"parishnet.org/internal/auth"
	"parishnet.org/internal/community"
)

func (a *API) handleAnnouncementsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if _, ok := a.principal(w, r); !ok {
			return
		}
		announcements, err := a.community.ListAnnouncements(r.Context(), r.URL.Query().Get("parish_id"))
		if err != nil {
			handleCommunityError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"announcements": announcements})
	case http.MethodPost:
		p, ok := a.requireAdminWrite(w, r, auth.PermManageAnnouncements)
		if !ok {
			return
		}
		var in community.AnnouncementInput
		if err := decodeJSON(w, r, &in); err != nil {
			writeError(w, r, http.StatusBadRequest, "bad_json", err.Error())
			return
		}
		announcement, err := a.community.CreateAnnouncement(r.Context(), p.User.ID, in)
		if err != nil {
			handleCommunityError(w, r, err)
			return
		}
		a.audit(r, p.User.ID, "ANNOUNCEMENT_CREATED", "announcement", announcement.ID, map[string]any{
			"title": announcement.Title,
		})
		w.Header().Set("Location", "/v1/announcements/"+announcement.ID)
		writeJSON(w, http.StatusCreated, announcement)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleAnnouncementResource(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/announcements/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "not_found", "resource not found")
		return
	}
	switch r.Method {
	case http.MethodPut:
		p, ok := a.requireAdminWrite(w, r, auth.PermManageAnnouncements)
		if !ok {
			return
		}
		var in community.AnnouncementInput
		if err := decodeJSON(w, r, &in); err != nil {
			writeError(w, r, http.StatusBadRequest, "bad_json", err.Error())
			return
		}
		announcement, err := a.community.UpdateAnnouncement(r.Context(), id, in)
		if err != nil {
			handleCommunityError(w, r, err)
			return
		}
		a.audit(r, p.User.ID, "ANNOUNCEMENT_UPDATED", "announcement", id, nil)
		writeJSON(w, http.StatusOK, announcement)
	case http.MethodDelete:
		p, ok := a.requireAdminWrite(w, r, auth.PermManageAnnouncements)
		if !ok {
			return
		}
		if err := a.community.DeleteAnnouncement(r.Context(), id); err != nil {
			handleCommunityError(w, r, err)
			return
		}
		a.audit(r, p.User.ID, "ANNOUNCEMENT_DELETED", "announcement", id, nil)
		writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
	default:
		methodNotAllowed(w, r, http.MethodPut, http.MethodDelete)
	}
}

func (a *API) handleEventsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if _, ok := a.principal(w, r); !ok {
			return
		}
		events, err := a.community.ListEvents(r.Context(), r.URL.Query().Get("parish_id"))
		if err != nil {
			handleCommunityError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"events": events})
	case http.MethodPost:
		p, ok := a.requireAdminWrite(w, r, auth.PermManageEvents)
		if !ok {
			return
		}
		var in community.EventInput
		if err := decodeJSON(w, r, &in); err != nil {
			writeError(w, r, http.StatusBadRequest, "bad_json", err.Error())
			return
		}
		event, err := a.community.CreateEvent(r.Context(), p.User.ID, in)
		if err != nil {
			handleCommunityError(w, r, err)
			return
		}
		a.audit(r, p.User.ID, "EVENT_CREATED", "event", event.ID, map[string]any{
			"title": event.Title,
		})
		w.Header().Set("Location", "/v1/events/"+event.ID)
		writeJSON(w, http.StatusCreated, event)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleEventResource(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/events/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "not_found", "resource not found")
		return
	}
	switch r.Method {
	case http.MethodPut:
		p, ok := a.requireAdminWrite(w, r, auth.PermManageEvents)
		if !ok {
			return
		}
		var in community.EventInput
		if err := decodeJSON(w, r, &in); err != nil {
			writeError(w, r, http.StatusBadRequest, "bad_json", err.Error())
			return
		}
		event, err := a.community.UpdateEvent(r.Context(), id, in)
		if err != nil {
			handleCommunityError(w, r, err)
			return
		}
		a.audit(r, p.User.ID, "EVENT_UPDATED", "event", id, nil)
		writeJSON(w, http.StatusOK, event)
	case http.MethodDelete:
		p, ok := a.requireAdminWrite(w, r, auth.PermManageEvents)
		if !ok {
			return
		}
		if err := a.community.DeleteEvent(r.Context(), id); err != nil {
			handleCommunityError(w, r, err)
			return
		}
		a.audit(r, p.User.ID, "EVENT_DELETED", "event", id, nil)
		writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
	default:
		methodNotAllowed(w, r, http.MethodPut, http.MethodDelete)
	}
}
