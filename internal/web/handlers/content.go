package handlers

import (
	"errors"
	"fmt"
	"log"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/facefeed/facefeed/internal/access"
	"github.com/facefeed/facefeed/internal/blob"
	"github.com/facefeed/facefeed/internal/feed"
	"github.com/facefeed/facefeed/internal/store"
	"github.com/facefeed/facefeed/internal/web/middleware"
)

// maxUploadSize limits multipart uploads to 100 MB.
const maxUploadSize = 100 << 20

// ContentHandler handles content upload, retrieval, deletion and sharing.
type ContentHandler struct {
	content store.ContentStore
	blobs   blob.Storage
	queue   store.WorkQueue
	reader  *feed.Reader
	engine  *access.Engine
}

// NewContentHandler creates a new content handler.
func NewContentHandler(
	content store.ContentStore,
	blobs blob.Storage,
	queue store.WorkQueue,
	reader *feed.Reader,
	engine *access.Engine,
) *ContentHandler {
	return &ContentHandler{
		content: content,
		blobs:   blobs,
		queue:   queue,
		reader:  reader,
		engine:  engine,
	}
}

func contentJSON(c *store.Content) map[string]any {
	out := map[string]any{
		"id":         c.ID,
		"owner_id":   c.OwnerID,
		"object_key": c.ObjectKey,
		"media_type": c.MediaType,
		"state":      string(c.State),
		"created_at": c.CreatedAt,
	}
	if c.EventID != nil {
		out["event_id"] = *c.EventID
	}
	return out
}

// mediaTypeOf returns the declared media type of an uploaded file, or "" when
// it is not a supported image or video type.
func mediaTypeOf(header *multipart.FileHeader) string {
	mediaType := header.Header.Get("Content-Type")
	if strings.HasPrefix(mediaType, "image/") || strings.HasPrefix(mediaType, "video/") {
		return mediaType
	}
	return ""
}

// createContent stores the uploaded bytes, records the content row in state
// pending and enqueues it for face processing. Shared by the plain upload and
// the event-scoped upload.
func (h *ContentHandler) createContent(r *http.Request, ownerID string, eventID *string) (*store.Content, int, error) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		return nil, http.StatusBadRequest, errors.New("failed to parse multipart form")
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, http.StatusBadRequest, errors.New("file is required")
	}
	defer file.Close()

	mediaType := mediaTypeOf(header)
	if mediaType == "" {
		return nil, http.StatusBadRequest, errors.New("unsupported media type")
	}

	content := &store.Content{
		ID:        store.NewID(),
		OwnerID:   ownerID,
		EventID:   eventID,
		MediaType: mediaType,
		State:     store.ContentPending,
	}
	content.ObjectKey = blob.ContentKey(ownerID, content.ID)

	if err := h.blobs.Save(r.Context(), content.ObjectKey, file, mediaType); err != nil {
		return nil, http.StatusInternalServerError, fmt.Errorf("failed to store upload: %w", err)
	}
	if err := h.content.Create(r.Context(), content); err != nil {
		return nil, http.StatusInternalServerError, fmt.Errorf("failed to record content: %w", err)
	}
	if err := h.queue.EnqueueIngest(r.Context(), content.ID); err != nil {
		return nil, http.StatusInternalServerError, fmt.Errorf("failed to enqueue processing: %w", err)
	}

	log.Printf("content %s uploaded by %s (%s)", content.ID, sanitizeForLog(ownerID), mediaType)
	return content, 0, nil
}

// Upload handles a multipart content upload. Processing is asynchronous: the
// response carries state pending and the ingest worker takes it from there.
func (h *ContentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	ownerID := middleware.UserFromContext(r.Context())

	content, status, err := h.createContent(r, ownerID, nil)
	if err != nil {
		respondError(w, status, err.Error())
		return
	}
	respondJSON(w, http.StatusAccepted, contentJSON(content))
}

// Get returns a single content item if the caller may see it.
func (h *ContentHandler) Get(w http.ResponseWriter, r *http.Request) {
	viewerID := middleware.UserFromContext(r.Context())
	contentID := chi.URLParam(r, "id")

	content, err := h.reader.GetContent(r.Context(), viewerID, contentID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		respondError(w, http.StatusNotFound, "content not found")
		return
	case errors.Is(err, store.ErrForbidden):
		respondError(w, http.StatusForbidden, "access denied")
		return
	case errors.Is(err, store.ErrContentDeleted):
		respondError(w, http.StatusGone, "content deleted")
		return
	case err != nil:
		respondError(w, http.StatusInternalServerError, "failed to load content")
		return
	}
	respondJSON(w, http.StatusOK, contentJSON(content))
}

// Delete soft-deletes a content item. Owner only; edges and feed entries are
// cleaned up by the reconcile pass, not inline.
func (h *ContentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	viewerID := middleware.UserFromContext(r.Context())
	contentID := chi.URLParam(r, "id")

	content, err := h.content.Get(r.Context(), contentID)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "content not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load content")
		return
	}
	if content.OwnerID != viewerID {
		respondError(w, http.StatusForbidden, "only the owner can delete content")
		return
	}

	if err := h.content.SoftDelete(r.Context(), contentID); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to delete content")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"state": string(store.ContentDeleted)})
}

type shareRequest struct {
	UserID string `json:"user_id"`
}

// Share grants another user manual visibility of the owner's content.
func (h *ContentHandler) Share(w http.ResponseWriter, r *http.Request) {
	viewerID := middleware.UserFromContext(r.Context())
	contentID := chi.URLParam(r, "id")

	var req shareRequest
	if err := decodeJSON(r, &req); err != nil || req.UserID == "" {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	content, err := h.content.Get(r.Context(), contentID)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "content not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load content")
		return
	}
	if content.OwnerID != viewerID {
		respondError(w, http.StatusForbidden, "only the owner can share content")
		return
	}
	if content.State == store.ContentDeleted {
		respondError(w, http.StatusGone, "content deleted")
		return
	}
	if req.UserID == viewerID {
		respondError(w, http.StatusBadRequest, "cannot share content with yourself")
		return
	}

	if err := h.engine.GrantManual(r.Context(), content, req.UserID); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to share content")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"content_id": contentID,
		"user_id":    req.UserID,
	})
}
