package httpapi

import (
	"net/http"
	"strings"

	"parishnet.org/internal/community"
)

type createPrayerRequest struct {
	Title       string `json:"title"`
	Content     string `json:"content"`
	ParishID    string `json:"parish_id"`
	IsAnonymous bool   `json:"is_anonymous"`
}

func (a *API) handlePrayersCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listPrayers(w, r)
	case http.MethodPost:
		a.createPrayer(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) listPrayers(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.principal(w, r); !ok {
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
	prayers, total, err := a.community.ListPrayers(r.Context(), community.PrayerFilter{
		ParishID: r.URL.Query().Get("parish_id"),
		Page:     page,
		Limit:    limit,
	})
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

func (a *API) createPrayer(w http.ResponseWriter, r *http.Request) {
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	var req createPrayerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_json", err.Error())
		return
	}
	prayer, err := a.community.CreatePrayer(r.Context(), community.CreatePrayerInput{
		UserID:      p.User.ID,
		AuthorName:  p.User.FullName,
		ParishID:    req.ParishID,
		Title:       req.Title,
		Content:     req.Content,
		IsAnonymous: req.IsAnonymous,
	})
	if err != nil {
		handleCommunityError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/prayers/"+prayer.ID)
	writeJSON(w, http.StatusCreated, prayer)
}

type respondRequest struct {
	Content     string `json:"content"`
	IsAnonymous bool   `json:"is_anonymous"`
}

type reactRequest struct {
	Reaction string `json:"reaction"`
}

func (a *API) handlePrayerResource(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/prayers/")
	parts := strings.Split(rest, "/")
	if len(parts) == 0 || parts[0] == "" {
		writeError(w, r, http.StatusNotFound, "not_found", "resource not found")
		return
	}
	id := parts[0]

	switch {
	case len(parts) == 1:
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.getPrayer(w, r, id)
	case len(parts) == 2 && parts[1] == "respond":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.respondToPrayer(w, r, id)
	case len(parts) == 2 && parts[1] == "responses":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.listPrayerResponses(w, r, id)
	case len(parts) == 2 && parts[1] == "react":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.reactToPrayer(w, r, id)
	case len(parts) == 2 && parts[1] == "reactions":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.prayerReactionCounts(w, r, id)
	default:
		writeError(w, r, http.StatusNotFound, "not_found", "resource not found")
	}
}

func (a *API) getPrayer(w http.ResponseWriter, r *http.Request, id string) {
	if _, ok := a.principal(w, r); !ok {
		return
	}
	prayer, err := a.community.GetPrayer(r.Context(), id)
	if err != nil {
		handleCommunityError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, prayer)
}

func (a *API) respondToPrayer(w http.ResponseWriter, r *http.Request, id string) {
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	var req respondRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_json", err.Error())
		return
	}
	resp, err := a.community.RespondToPrayer(r.Context(), community.RespondInput{
		PrayerID:    id,
		UserID:      p.User.ID,
		AuthorName:  p.User.FullName,
		Content:     req.Content,
		IsAnonymous: req.IsAnonymous,
	})
	if err != nil {
		handleCommunityError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (a *API) listPrayerResponses(w http.ResponseWriter, r *http.Request, id string) {
	if _, ok := a.principal(w, r); !ok {
		return
	}
	responses, err := a.community.ListResponses(r.Context(), id)
	if err != nil {
		handleCommunityError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"responses": responses})
}

func (a *API) reactToPrayer(w http.ResponseWriter, r *http.Request, id string) {
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	var req reactRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_json", err.Error())
		return
	}
	result, err := a.community.ReactToPrayer(r.Context(), community.ReactInput{
		TargetID:    id,
		UserID:      p.User.ID,
		ReactorName: p.User.FullName,
		Reaction:    req.Reaction,
	})
	if err != nil {
		handleCommunityError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) prayerReactionCounts(w http.ResponseWriter, r *http.Request, id string) {
	if _, ok := a.principal(w, r); !ok {
		return
	}
	counts, err := a.community.PrayerReactionCounts(r.Context(), id)
	if err != nil {
		handleCommunityError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reactions": counts})
}
