package handlers

import (
	"net/http"
	"strconv"

	"github.com/facefeed/facefeed/internal/store"
	"github.com/facefeed/facefeed/internal/web/middleware"
)

// FacesHandler serves the owner's unknown-face directory. The owner id always
// comes from the authenticated context, never from the request, so nobody can
// enumerate another user's unknown faces.
type FacesHandler struct {
	identities store.IdentityStore
}

// NewFacesHandler creates a new faces handler.
func NewFacesHandler(identities store.IdentityStore) *FacesHandler {
	return &FacesHandler{identities: identities}
}

// ListUnknown lists the caller's unresolved face identities with detection
// counts. Signatures are never exposed.
func (h *FacesHandler) ListUnknown(w http.ResponseWriter, r *http.Request) {
	ownerID := middleware.UserFromContext(r.Context())

	afterID := r.URL.Query().Get("after")
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	identities, err := h.identities.ListUnknownByOwner(r.Context(), ownerID, afterID, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list unknown faces")
		return
	}

	items := make([]map[string]any, 0, len(identities))
	for i := range identities {
		identity := &identities[i]
		items = append(items, map[string]any{
			"id":                    identity.ID,
			"detection_count":       identity.DetectionCount,
			"first_seen_content_id": identity.FirstSeenContentID,
			"last_seen_content_id":  identity.LastSeenContentID,
			"created_at":            identity.CreatedAt,
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"faces": items,
		"count": len(items),
	})
}
