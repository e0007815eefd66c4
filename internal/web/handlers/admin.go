package handlers

import (
	"log"
	"net/http"

	"github.com/facefeed/facefeed/internal/feed"
	"github.com/facefeed/facefeed/internal/store"
)

// AdminHandler exposes operational endpoints.
type AdminHandler struct {
	graph   store.RecipientGraph
	content store.ContentStore
	feed    store.FeedStore
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(graph store.RecipientGraph, content store.ContentStore, feedStore store.FeedStore) *AdminHandler {
	return &AdminHandler{graph: graph, content: content, feed: feedStore}
}

// RebuildFeed re-derives the entire feed projection from the recipient graph.
// Safe at any time; the projection is disposable.
func (h *AdminHandler) RebuildFeed(w http.ResponseWriter, r *http.Request) {
	rebuilt, err := feed.Rebuild(r.Context(), h.graph, h.content, h.feed, nil)
	if err != nil {
		log.Printf("admin: feed rebuild failed after %d entries: %v", rebuilt, err)
		respondError(w, http.StatusInternalServerError, "feed rebuild failed")
		return
	}
	log.Printf("admin: feed rebuilt, %d entries", rebuilt)
	respondJSON(w, http.StatusOK, map[string]any{"rebuilt": rebuilt})
}
