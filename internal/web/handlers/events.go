package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/facefeed/facefeed/internal/access"
	"github.com/facefeed/facefeed/internal/store"
	"github.com/facefeed/facefeed/internal/web/middleware"
)

// EventsHandler handles events: named contexts whose accepted members see all
// content attached to them via shared-event grants.
type EventsHandler struct {
	events  store.EventStore
	engine  *access.Engine
	uploads *ContentHandler
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(events store.EventStore, engine *access.Engine, uploads *ContentHandler) *EventsHandler {
	return &EventsHandler{events: events, engine: engine, uploads: uploads}
}

func eventJSON(e *store.Event) map[string]any {
	return map[string]any{
		"id":         e.ID,
		"owner_id":   e.OwnerID,
		"name":       e.Name,
		"slug":       e.Slug,
		"created_at": e.CreatedAt,
	}
}

type createEventRequest struct {
	Name string `json:"name"`
}

// Create creates an event owned by the caller. The owner is a member from the
// start.
func (h *EventsHandler) Create(w http.ResponseWriter, r *http.Request) {
	ownerID := middleware.UserFromContext(r.Context())

	var req createEventRequest
	if err := decodeJSON(r, &req); err != nil || req.Name == "" {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	event := &store.Event{
		ID:      store.NewID(),
		OwnerID: ownerID,
		Name:    req.Name,
		Slug:    store.Slugify(req.Name),
	}
	if err := h.events.CreateEvent(r.Context(), event); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create event")
		return
	}
	respondJSON(w, http.StatusCreated, eventJSON(event))
}

type inviteRequest struct {
	UserID string `json:"user_id"`
}

// Invite invites a user to an event. Owner only; re-inviting is a no-op.
func (h *EventsHandler) Invite(w http.ResponseWriter, r *http.Request) {
	viewerID := middleware.UserFromContext(r.Context())
	eventID := chi.URLParam(r, "id")

	var req inviteRequest
	if err := decodeJSON(r, &req); err != nil || req.UserID == "" {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	event, err := h.events.GetEvent(r.Context(), eventID)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "event not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load event")
		return
	}
	if event.OwnerID != viewerID {
		respondError(w, http.StatusForbidden, "only the event owner can invite")
		return
	}

	if err := h.events.Invite(r.Context(), eventID, req.UserID); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to invite")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"event_id": eventID,
		"user_id":  req.UserID,
		"status":   string(store.MemberInvited),
	})
}

// Accept accepts the caller's own invitation and grants them visibility of
// all content already attached to the event. Both the membership transition
// and the grants are idempotent, so redelivered acceptances converge.
func (h *EventsHandler) Accept(w http.ResponseWriter, r *http.Request) {
	viewerID := middleware.UserFromContext(r.Context())
	eventID := chi.URLParam(r, "id")

	if err := h.events.AcceptInvite(r.Context(), eventID, viewerID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusNotFound, "no invitation found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to accept invitation")
		return
	}

	items, err := h.events.ListEventContent(r.Context(), eventID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load event content")
		return
	}
	granted := 0
	for i := range items {
		if err := h.engine.GrantEvent(r.Context(), &items[i], viewerID); err != nil {
			respondError(w, http.StatusInternalServerError, "failed to grant event content")
			return
		}
		if items[i].OwnerID != viewerID {
			granted++
		}
	}

	log.Printf("event %s: %s joined, %d items granted", eventID, sanitizeForLog(viewerID), granted)
	respondJSON(w, http.StatusOK, map[string]any{
		"event_id": eventID,
		"status":   string(store.MemberAccepted),
		"granted":  granted,
	})
}

// UploadContent uploads content into an event. Any accepted member may post;
// every other accepted member receives a shared-event grant immediately, face
// processing runs asynchronously on top of that.
func (h *EventsHandler) UploadContent(w http.ResponseWriter, r *http.Request) {
	viewerID := middleware.UserFromContext(r.Context())
	eventID := chi.URLParam(r, "id")

	if _, err := h.events.GetEvent(r.Context(), eventID); errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "event not found")
		return
	} else if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load event")
		return
	}

	member, err := h.events.IsAcceptedMember(r.Context(), eventID, viewerID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to check membership")
		return
	}
	if !member {
		respondError(w, http.StatusForbidden, "only accepted members can post to an event")
		return
	}

	content, status, err := h.uploads.createContent(r, viewerID, &eventID)
	if err != nil {
		respondError(w, status, err.Error())
		return
	}

	members, err := h.events.AcceptedMembers(r.Context(), eventID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load members")
		return
	}
	for _, memberID := range members {
		if err := h.engine.GrantEvent(r.Context(), content, memberID); err != nil {
			respondError(w, http.StatusInternalServerError, "failed to grant event content")
			return
		}
	}

	respondJSON(w, http.StatusAccepted, contentJSON(content))
}
