package handlers

import (
	"bytes"
	"io"
	"log"
	"net/http"

	"github.com/facefeed/facefeed/internal/blob"
	"github.com/facefeed/facefeed/internal/recognizer"
	"github.com/facefeed/facefeed/internal/store"
	"github.com/facefeed/facefeed/internal/web/middleware"
)

// EnrollHandler handles profile face enrollment.
type EnrollHandler struct {
	detector    recognizer.Recognizer
	enrollments store.EnrollmentStore
	enrolled    *recognizer.EnrolledIndex
	blobs       blob.Storage
	maxImage    int
}

// NewEnrollHandler creates a new enrollment handler.
func NewEnrollHandler(
	detector recognizer.Recognizer,
	enrollments store.EnrollmentStore,
	enrolled *recognizer.EnrolledIndex,
	blobs blob.Storage,
	maxImage int,
) *EnrollHandler {
	return &EnrollHandler{
		detector:    detector,
		enrollments: enrollments,
		enrolled:    enrolled,
		blobs:       blobs,
		maxImage:    maxImage,
	}
}

// Enroll stores the caller's profile face signature from an uploaded selfie.
// The selfie must contain exactly one face. Re-enrolling replaces the
// previous signature; existing grants are untouched.
func (h *EnrollHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserFromContext(r.Context())

	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to read upload")
		return
	}

	resized, err := recognizer.ResizeImage(data, h.maxImage)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid image")
		return
	}

	detections, err := h.detector.Detect(r.Context(), resized)
	if err != nil {
		respondError(w, http.StatusBadGateway, "face detection failed")
		return
	}
	if len(detections) == 0 {
		respondError(w, http.StatusBadRequest, "no face detected in the selfie")
		return
	}
	if len(detections) > 1 {
		respondError(w, http.StatusBadRequest, "selfie must contain exactly one face")
		return
	}

	signature := detections[0].Signature
	if err := h.enrollments.Save(r.Context(), &store.Enrollment{
		UserID:    userID,
		Signature: signature,
	}); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to save enrollment")
		return
	}
	h.enrolled.Add(userID, signature)

	// Keep the selfie so enrollment can be audited or re-run after a model
	// change.
	if err := h.blobs.Save(r.Context(), blob.EnrollmentKey(userID), bytes.NewReader(data), "image/jpeg"); err != nil {
		log.Printf("enroll: failed to store selfie for %s: %v", sanitizeForLog(userID), err)
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"user_id":  userID,
		"enrolled": true,
	})
}
