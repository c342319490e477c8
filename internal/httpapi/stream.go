package httpapi

import (
	"encoding/json"
	"net/http"

	"parishnet.org/internal/feed"
)

func (a *API) streamPrayers(w http.ResponseWriter, r *http.Request) {
	a.stream(w, r, a.prayerBus)
}

func (a *API) streamTestimonies(w http.ResponseWriter, r *http.Request) {
	a.stream(w, r, a.testimony)
}

// stream serves an SSE connection fed from a live bus. The bus injects pings
// on idle, so every subscriber sees traffic often enough to keep proxies from
// cutting the connection.
func (a *API) stream(w http.ResponseWriter, r *http.Request, bus *feed.Bus) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if _, ok := a.principal(w, r); !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "streaming_unsupported", "streaming unsupported")
		return
	}
	if bus == nil {
		writeError(w, r, http.StatusServiceUnavailable, "feed_unavailable", "live feed is not running")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if _, err := w.Write([]byte(": stream started\n\n")); err != nil {
		return
	}
	flusher.Flush()

	events := bus.Subscribe(r.Context())
	for evt := range events {
		data, err := json.Marshal(evt)
		if err != nil {
			continue
		}
		if _, err := w.Write([]byte("data: ")); err != nil {
			return
		}
		if _, err := w.Write(data); err != nil {
			return
		}
		if _, err := w.Write([]byte("\n\n")); err != nil {
			return
		}
		flusher.Flush()
	}
}
