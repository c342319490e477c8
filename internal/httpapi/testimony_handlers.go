package httpapi

import (
	"net/http"
	"strings"

	"parishnet.org/internal/auth"
	"parishnet.org/internal/community"
)

type createTestimonyRequest struct {
	Content     string `json:"content"`
	ParishID    string `json:"parish_id"`
	IsAnonymous bool   `json:"is_anonymous"`
}

func (a *API) handleTestimoniesCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listTestimonies(w, r)
	case http.MethodPost:
		a.createTestimony(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) listTestimonies(w http.ResponseWriter, r *http.Request) {
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
	testimonies, total, err := a.community.ListTestimonies(r.Context(), community.TestimonyFilter{
		ParishID: r.URL.Query().Get("parish_id"),
		Page:     page,
		Limit:    limit,
	})
	if err != nil {
		handleCommunityError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"testimonies": testimonies,
		"total":       total,
		"page":        page,
		"limit":       limit,
	})
}

func (a *API) handleMyTestimonies(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	testimonies, total, err := a.community.ListTestimonies(r.Context(), community.TestimonyFilter{
		UserID: p.User.ID,
		Page:   1,
		Limit:  100,
	})
	if err != nil {
		handleCommunityError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"testimonies": testimonies,
		"total":       total,
	})
}

func (a *API) createTestimony(w http.ResponseWriter, r *http.Request) {
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	var req createTestimonyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_json", err.Error())
		return
	}
	testimony, err := a.community.CreateTestimony(r.Context(), community.CreateTestimonyInput{
		UserID:      p.User.ID,
		AuthorName:  p.User.FullName,
		ParishID:    req.ParishID,
		Content:     req.Content,
		IsAnonymous: req.IsAnonymous,
	})
	if err != nil {
		handleCommunityError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/testimonies/"+testimony.ID)
	writeJSON(w, http.StatusCreated, testimony)
}

func (a *API) handleTestimonyResource(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/testimonies/")
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
			a.getTestimony(w, r, id)
		case http.MethodDelete:
			a.deleteTestimony(w, r, id)
		default:
			methodNotAllowed(w, r, http.MethodGet, http.MethodDelete)
		}
	case len(parts) == 2 && parts[1] == "react":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.reactToTestimony(w, r, id)
	case len(parts) == 2 && parts[1] == "reactions":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.testimonyReactionCounts(w, r, id)
	default:
		writeError(w, r, http.StatusNotFound, "not_found", "resource not found")
	}
}

func (a *API) getTestimony(w http.ResponseWriter, r *http.Request, id string) {
	if _, ok := a.principal(w, r); !ok {
		return
	}
	testimony, err := a.community.GetTestimony(r.Context(), id)
	if err != nil {
		handleCommunityError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, testimony)
}

// deleteTestimony allows owners to delete their own testimony; moderators
// with manage_testimonials may delete any. A read-only moderator keeps only
// the owner path.
func (a *API) deleteTestimony(w http.ResponseWriter, r *http.Request, id string) {
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	force := p.HasPermission(auth.PermManageTestimonials) && auth.RequireWritable(p) == nil
	affected, err := a.community.DeleteTestimony(r.Context(), id, p.User.ID, force)
	if err != nil {
		handleCommunityError(w, r, err)
		return
	}
	if force {
		a.audit(r, p.User.ID, "TESTIMONY_DELETED", "testimony", id, map[string]any{
			"affected_rows": affected,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true, "affected_rows": affected})
}

func (a *API) reactToTestimony(w http.ResponseWriter, r *http.Request, id string) {
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	var req reactRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_json", err.Error())
		return
	}
	result, err := a.community.ReactToTestimony(r.Context(), community.ReactInput{
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

func (a *API) testimonyReactionCounts(w http.ResponseWriter, r *http.Request, id string) {
	if _, ok := a.principal(w, r); !ok {
		return
	}
	counts, err := a.community.TestimonyReactionCounts(r.Context(), id)
	if err != nil {
		handleCommunityError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reactions": counts})
}
