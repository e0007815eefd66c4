package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/facefeed/facefeed/internal/store"
)

func TestListUnknownFacesIsOwnerScoped(t *testing.T) {
	f := newFixture()
	h := NewFacesHandler(f.identities)

	f.identities.AddIdentity(store.FaceIdentity{
		ID:                 "face-alice-1",
		OwnerID:            "alice",
		Signature:          make([]float32, 8),
		Status:             store.FaceUnknown,
		FirstSeenContentID: "photo-1",
		LastSeenContentID:  "photo-3",
		DetectionCount:     3,
	})
	f.identities.AddIdentity(store.FaceIdentity{
		ID:             "face-bob-1",
		OwnerID:        "bob",
		Signature:      make([]float32, 8),
		Status:         store.FaceUnknown,
		DetectionCount: 1,
	})
	resolved := "carol"
	f.identities.AddIdentity(store.FaceIdentity{
		ID:             "face-alice-2",
		OwnerID:        "alice",
		Signature:      make([]float32, 8),
		Status:         store.FaceResolved,
		ResolvedUserID: &resolved,
	})

	req := authedRequest(t, http.MethodGet, "/api/v1/faces/unknown", nil, "alice")
	recorder := httptest.NewRecorder()
	h.ListUnknown(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)

	var resp struct {
		Faces []map[string]any `json:"faces"`
		Count int              `json:"count"`
	}
	parseJSONResponse(t, recorder, &resp)

	if resp.Count != 1 {
		t.Fatalf("expected exactly alice's unknown face, got %d", resp.Count)
	}
	face := resp.Faces[0]
	if face["id"] != "face-alice-1" {
		t.Errorf("unexpected face %v", face["id"])
	}
	if count, _ := face["detection_count"].(float64); count != 3 {
		t.Errorf("expected detection count 3, got %v", face["detection_count"])
	}
	// Signatures stay server-side.
	if _, ok := face["signature"]; ok {
		t.Error("signature must never be exposed")
	}
}
