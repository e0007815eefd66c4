package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/facefeed/facefeed/internal/feed"
	"github.com/facefeed/facefeed/internal/store"
	"github.com/facefeed/facefeed/internal/web/middleware"
)

// FeedHandler serves the viewer's personalized feed.
type FeedHandler struct {
	reader *feed.Reader
}

// NewFeedHandler creates a new feed handler.
func NewFeedHandler(reader *feed.Reader) *FeedHandler {
	return &FeedHandler{reader: reader}
}

func feedEntryJSON(e *store.FeedEntry) map[string]any {
	return map[string]any{
		"content_id": e.ContentID,
		"owner_id":   e.OwnerID,
		"object_key": e.ObjectKey,
		"media_type": e.MediaType,
		"method":     string(e.Method),
		"confidence": e.Confidence,
		"granted_at": e.EdgeCreatedAt,
	}
}

// List returns the viewer's feed, newest grants first. Pagination is keyset:
// pass the granted_at of the last entry as ?before= to get the next page.
func (h *FeedHandler) List(w http.ResponseWriter, r *http.Request) {
	viewerID := middleware.UserFromContext(r.Context())

	var before time.Time
	if s := r.URL.Query().Get("before"); s != "" {
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid before parameter, expected RFC3339")
			return
		}
		before = t
	}

	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		limit, _ = strconv.Atoi(s)
	}

	entries, err := h.reader.List(r.Context(), viewerID, before, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load feed")
		return
	}

	items := make([]map[string]any, 0, len(entries))
	for i := range entries {
		items = append(items, feedEntryJSON(&entries[i]))
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"entries": items,
		"count":   len(items),
	})
}
