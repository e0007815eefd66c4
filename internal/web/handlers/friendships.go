package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/facefeed/facefeed/internal/store"
	"github.com/facefeed/facefeed/internal/web/middleware"
)

// FriendshipHandler handles friendship requests and acceptance.
type FriendshipHandler struct {
	friendships store.FriendshipStore
	queue       store.WorkQueue
}

// NewFriendshipHandler creates a new friendship handler.
func NewFriendshipHandler(friendships store.FriendshipStore, queue store.WorkQueue) *FriendshipHandler {
	return &FriendshipHandler{friendships: friendships, queue: queue}
}

func friendshipJSON(f *store.Friendship) map[string]any {
	out := map[string]any{
		"id":           f.ID,
		"requester_id": f.RequesterID,
		"users":        []string{f.UserLow, f.UserHigh},
		"status":       string(f.Status),
		"requested_at": f.RequestedAt,
	}
	if f.AcceptedAt != nil {
		out["accepted_at"] = *f.AcceptedAt
	}
	return out
}

type friendshipRequest struct {
	UserID string `json:"user_id"`
}

// Request creates a pending friendship between the caller and another user.
// Requesting an existing pair returns the existing friendship unchanged.
func (h *FriendshipHandler) Request(w http.ResponseWriter, r *http.Request) {
	viewerID := middleware.UserFromContext(r.Context())

	var req friendshipRequest
	if err := decodeJSON(r, &req); err != nil || req.UserID == "" {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.UserID == viewerID {
		respondError(w, http.StatusBadRequest, "cannot befriend yourself")
		return
	}

	low, high := store.CanonicalPair(viewerID, req.UserID)
	friendship, err := h.friendships.Create(r.Context(), &store.Friendship{
		ID:          store.FriendshipID(viewerID, req.UserID),
		UserLow:     low,
		UserHigh:    high,
		RequesterID: viewerID,
		Status:      store.FriendshipPending,
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create friendship")
		return
	}
	respondJSON(w, http.StatusCreated, friendshipJSON(friendship))
}

// Accept accepts a pending friendship request and enqueues retroactive
// matching for the pair. Only the user who did not send the request may
// accept it; accepting twice is a no-op and does not re-enqueue.
func (h *FriendshipHandler) Accept(w http.ResponseWriter, r *http.Request) {
	viewerID := middleware.UserFromContext(r.Context())
	friendshipID := chi.URLParam(r, "id")

	friendship, err := h.friendships.GetByID(r.Context(), friendshipID)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "friendship not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load friendship")
		return
	}

	if viewerID != friendship.UserLow && viewerID != friendship.UserHigh {
		respondError(w, http.StatusForbidden, "not a party to this friendship")
		return
	}
	if viewerID == friendship.RequesterID {
		respondError(w, http.StatusForbidden, "the requester cannot accept their own request")
		return
	}

	accepted, err := h.friendships.Accept(r.Context(), friendshipID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to accept friendship")
		return
	}

	// Duplicate acceptance deliveries collapse in the queue, the pair is
	// unique there.
	if err := h.queue.EnqueueRetro(r.Context(), accepted.UserLow, accepted.UserHigh); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to schedule retroactive matching")
		return
	}

	log.Printf("friendship %s accepted by %s", friendshipID, sanitizeForLog(viewerID))
	respondJSON(w, http.StatusOK, friendshipJSON(accepted))
}
