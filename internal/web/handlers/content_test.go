package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/facefeed/facefeed/internal/store"
)

func TestContentUpload(t *testing.T) {
	f := newFixture()
	h := f.contentHandler()

	body, contentType := multipartUpload(t, "file", "party.jpg", "image/jpeg", testJPEG(t))
	req := authedRequest(t, http.MethodPost, "/api/v1/content", body, "alice")
	req.Header.Set("Content-Type", contentType)

	recorder := httptest.NewRecorder()
	h.Upload(recorder, req)

	assertStatusCode(t, recorder, http.StatusAccepted)

	var resp map[string]any
	parseJSONResponse(t, recorder, &resp)
	if resp["state"] != string(store.ContentPending) {
		t.Errorf("expected pending state, got %v", resp["state"])
	}
	if resp["owner_id"] != "alice" {
		t.Errorf("expected owner alice, got %v", resp["owner_id"])
	}

	if f.blobs.Len() != 1 {
		t.Errorf("expected 1 stored object, got %d", f.blobs.Len())
	}
	if f.queue.PendingIngest() != 1 {
		t.Errorf("expected 1 queued ingest task, got %d", f.queue.PendingIngest())
	}

	contentID, _ := resp["id"].(string)
	content, err := f.content.Get(context.Background(), contentID)
	if err != nil {
		t.Fatalf("content row not recorded: %v", err)
	}
	if content.ObjectKey != "media/alice/"+contentID {
		t.Errorf("unexpected object key %s", content.ObjectKey)
	}
}

func TestContentUploadRejectsUnsupportedType(t *testing.T) {
	f := newFixture()
	h := f.contentHandler()

	body, contentType := multipartUpload(t, "file", "notes.txt", "text/plain", []byte("hello"))
	req := authedRequest(t, http.MethodPost, "/api/v1/content", body, "alice")
	req.Header.Set("Content-Type", contentType)

	recorder := httptest.NewRecorder()
	h.Upload(recorder, req)

	assertStatusCode(t, recorder, http.StatusBadRequest)
	assertJSONError(t, recorder, "unsupported media type")
	if f.queue.PendingIngest() != 0 {
		t.Error("rejected upload must not enqueue work")
	}
}

func TestContentGetEnforcesAccess(t *testing.T) {
	f := newFixture()
	h := f.contentHandler()
	f.addContent("photo-1", "alice")

	get := func(viewerID string) *httptest.ResponseRecorder {
		req := authedRequest(t, http.MethodGet, "/api/v1/content/photo-1", nil, viewerID)
		req = requestWithChiParams(req, map[string]string{"id": "photo-1"})
		recorder := httptest.NewRecorder()
		h.Get(recorder, req)
		return recorder
	}

	t.Run("Owner", func(t *testing.T) {
		assertStatusCode(t, get("alice"), http.StatusOK)
	})

	t.Run("Stranger", func(t *testing.T) {
		assertStatusCode(t, get("mallory"), http.StatusForbidden)
	})

	t.Run("GrantedRecipient", func(t *testing.T) {
		_, err := f.graph.Grant(context.Background(), &store.RecipientEdge{
			ID:          store.EdgeID("photo-1", "bob", store.MethodFaceMatch),
			ContentID:   "photo-1",
			RecipientID: "bob",
			OwnerID:     "alice",
			Method:      store.MethodFaceMatch,
			Confidence:  90,
			Provenance:  store.ProvenanceRealtime,
		})
		if err != nil {
			t.Fatalf("failed to grant: %v", err)
		}
		assertStatusCode(t, get("bob"), http.StatusOK)
	})

	t.Run("Deleted", func(t *testing.T) {
		if err := f.content.SoftDelete(context.Background(), "photo-1"); err != nil {
			t.Fatalf("failed to delete: %v", err)
		}
		assertStatusCode(t, get("alice"), http.StatusGone)
	})

	t.Run("Missing", func(t *testing.T) {
		req := authedRequest(t, http.MethodGet, "/api/v1/content/nope", nil, "alice")
		req = requestWithChiParams(req, map[string]string{"id": "nope"})
		recorder := httptest.NewRecorder()
		h.Get(recorder, req)
		assertStatusCode(t, recorder, http.StatusNotFound)
	})
}

func TestContentDeleteIsOwnerOnly(t *testing.T) {
	f := newFixture()
	h := f.contentHandler()
	f.addContent("photo-1", "alice")

	del := func(viewerID string) *httptest.ResponseRecorder {
		req := authedRequest(t, http.MethodDelete, "/api/v1/content/photo-1", nil, viewerID)
		req = requestWithChiParams(req, map[string]string{"id": "photo-1"})
		recorder := httptest.NewRecorder()
		h.Delete(recorder, req)
		return recorder
	}

	recorder := del("bob")
	assertStatusCode(t, recorder, http.StatusForbidden)

	recorder = del("alice")
	assertStatusCode(t, recorder, http.StatusOK)

	content, err := f.content.Get(context.Background(), "photo-1")
	if err != nil {
		t.Fatalf("failed to load content: %v", err)
	}
	if content.State != store.ContentDeleted {
		t.Errorf("expected deleted state, got %s", content.State)
	}
}

func TestContentShare(t *testing.T) {
	f := newFixture()
	h := f.contentHandler()
	f.addContent("photo-1", "alice")

	share := func(viewerID, targetID string) *httptest.ResponseRecorder {
		req := jsonRequest(t, http.MethodPost, "/api/v1/content/photo-1/share",
			map[string]string{"user_id": targetID}, viewerID)
		req = requestWithChiParams(req, map[string]string{"id": "photo-1"})
		recorder := httptest.NewRecorder()
		h.Share(recorder, req)
		return recorder
	}

	t.Run("NonOwnerForbidden", func(t *testing.T) {
		assertStatusCode(t, share("bob", "carol"), http.StatusForbidden)
	})

	t.Run("SelfShareRejected", func(t *testing.T) {
		assertStatusCode(t, share("alice", "alice"), http.StatusBadRequest)
	})

	t.Run("OwnerGrantsManualEdge", func(t *testing.T) {
		assertStatusCode(t, share("alice", "bob"), http.StatusOK)

		edges, err := f.graph.ListByContent(context.Background(), "photo-1")
		if err != nil {
			t.Fatalf("failed to list edges: %v", err)
		}
		if len(edges) != 1 {
			t.Fatalf("expected 1 edge, got %d", len(edges))
		}
		if edges[0].Method != store.MethodManual || edges[0].Confidence != 100 {
			t.Errorf("expected manual edge with confidence 100, got %s/%d", edges[0].Method, edges[0].Confidence)
		}

		// Sharing again converges.
		assertStatusCode(t, share("alice", "bob"), http.StatusOK)
		edges, _ = f.graph.ListByContent(context.Background(), "photo-1")
		if len(edges) != 1 {
			t.Errorf("expected share to stay idempotent, got %d edges", len(edges))
		}
	})
}
