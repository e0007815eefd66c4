// Package recognizer talks to the external face detection service and holds
// the in-memory candidate index used to match detected faces to enrolled
// users. The service detects faces and computes signature vectors; every
// access decision stays on our side.
package recognizer

import (
	"context"
)

// Detection is one face found in an image.
type Detection struct {
	BBox      []float64 `json:"bbox"`      // [x1, y1, x2, y2] in pixel coordinates
	Signature []float32 `json:"signature"` // normalized embedding vector
	DetScore  float64   `json:"det_score"` // detector confidence, 0.0-1.0
}

// Recognizer detects faces in an image and returns one signature per face.
type Recognizer interface {
	Detect(ctx context.Context, image []byte) ([]Detection, error)
}

// Confidence converts a cosine distance to the 0-100 integer scale used for
// matching thresholds and edge records.
func Confidence(distance float64) int {
	c := int((1 - distance) * 100)
	if c < 0 {
		return 0
	}
	if c > 100 {
		return 100
	}
	return c
}
