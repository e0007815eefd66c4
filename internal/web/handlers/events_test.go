package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/facefeed/facefeed/internal/store"
)

// createTestEvent seeds an event through the handler and returns its id.
func createTestEvent(t *testing.T, h *EventsHandler, ownerID, name string) string {
	t.Helper()
	req := jsonRequest(t, http.MethodPost, "/api/v1/events", map[string]string{"name": name}, ownerID)
	recorder := httptest.NewRecorder()
	h.Create(recorder, req)
	assertStatusCode(t, recorder, http.StatusCreated)

	var resp map[string]any
	parseJSONResponse(t, recorder, &resp)
	id, _ := resp["id"].(string)
	if id == "" {
		t.Fatal("event creation returned no id")
	}
	return id
}

func invite(t *testing.T, h *EventsHandler, eventID, viewerID, targetID string) *httptest.ResponseRecorder {
	t.Helper()
	req := jsonRequest(t, http.MethodPost, "/api/v1/events/"+eventID+"/invite",
		map[string]string{"user_id": targetID}, viewerID)
	req = requestWithChiParams(req, map[string]string{"id": eventID})
	recorder := httptest.NewRecorder()
	h.Invite(recorder, req)
	return recorder
}

func acceptInvite(t *testing.T, h *EventsHandler, eventID, viewerID string) *httptest.ResponseRecorder {
	t.Helper()
	req := authedRequest(t, http.MethodPost, "/api/v1/events/"+eventID+"/accept", nil, viewerID)
	req = requestWithChiParams(req, map[string]string{"id": eventID})
	recorder := httptest.NewRecorder()
	h.Accept(recorder, req)
	return recorder
}

func TestEventCreateNormalizesSlug(t *testing.T) {
	f := newFixture()
	h := f.eventsHandler()

	req := jsonRequest(t, http.MethodPost, "/api/v1/events", map[string]string{"name": "Letní oslava"}, "alice")
	recorder := httptest.NewRecorder()
	h.Create(recorder, req)

	assertStatusCode(t, recorder, http.StatusCreated)
	var resp map[string]any
	parseJSONResponse(t, recorder, &resp)
	if resp["slug"] != "letni-oslava" {
		t.Errorf("expected normalized slug, got %v", resp["slug"])
	}
}

func TestEventInviteIsOwnerOnly(t *testing.T) {
	f := newFixture()
	h := f.eventsHandler()
	eventID := createTestEvent(t, h, "alice", "Wedding")

	assertStatusCode(t, invite(t, h, eventID, "bob", "carol"), http.StatusForbidden)
	assertStatusCode(t, invite(t, h, eventID, "alice", "bob"), http.StatusOK)
}

func TestEventAcceptGrantsExistingContent(t *testing.T) {
	f := newFixture()
	h := f.eventsHandler()
	ctx := context.Background()

	eventID := createTestEvent(t, h, "alice", "Wedding")

	// Attach two processed photos to the event before bob joins.
	for _, id := range []string{"photo-1", "photo-2"} {
		eid := eventID
		f.content.AddContent(store.Content{
			ID:        id,
			OwnerID:   "alice",
			EventID:   &eid,
			ObjectKey: "media/alice/" + id,
			MediaType: "image/jpeg",
			State:     store.ContentProcessed,
		})
	}

	assertStatusCode(t, invite(t, h, eventID, "alice", "bob"), http.StatusOK)

	recorder := acceptInvite(t, h, eventID, "bob")
	assertStatusCode(t, recorder, http.StatusOK)

	var resp map[string]any
	parseJSONResponse(t, recorder, &resp)
	if granted, _ := resp["granted"].(float64); granted != 2 {
		t.Errorf("expected 2 granted items, got %v", resp["granted"])
	}

	for _, id := range []string{"photo-1", "photo-2"} {
		has, err := f.graph.HasAccess(ctx, id, "bob")
		if err != nil {
			t.Fatalf("failed to check access: %v", err)
		}
		if !has {
			t.Errorf("expected bob to have access to %s", id)
		}
	}

	// Accepting again converges: edges are deterministic.
	acceptInvite(t, h, eventID, "bob")
	edges, _ := f.graph.ListByContent(ctx, "photo-1")
	if len(edges) != 1 {
		t.Errorf("expected 1 edge after re-accept, got %d", len(edges))
	}
}

func TestEventAcceptWithoutInvite(t *testing.T) {
	f := newFixture()
	h := f.eventsHandler()
	eventID := createTestEvent(t, h, "alice", "Wedding")

	assertStatusCode(t, acceptInvite(t, h, eventID, "mallory"), http.StatusNotFound)
}

func TestEventUploadGrantsMembers(t *testing.T) {
	f := newFixture()
	h := f.eventsHandler()
	ctx := context.Background()

	eventID := createTestEvent(t, h, "alice", "Wedding")
	assertStatusCode(t, invite(t, h, eventID, "alice", "bob"), http.StatusOK)
	assertStatusCode(t, acceptInvite(t, h, eventID, "bob"), http.StatusOK)

	upload := func(viewerID string) *httptest.ResponseRecorder {
		body, contentType := multipartUpload(t, "file", "dance.jpg", "image/jpeg", testJPEG(t))
		req := authedRequest(t, http.MethodPost, "/api/v1/events/"+eventID+"/content", body, viewerID)
		req.Header.Set("Content-Type", contentType)
		req = requestWithChiParams(req, map[string]string{"id": eventID})
		recorder := httptest.NewRecorder()
		h.UploadContent(recorder, req)
		return recorder
	}

	t.Run("NonMemberForbidden", func(t *testing.T) {
		assertStatusCode(t, upload("mallory"), http.StatusForbidden)
	})

	t.Run("MemberUploadGrantsOthers", func(t *testing.T) {
		recorder := upload("bob")
		assertStatusCode(t, recorder, http.StatusAccepted)

		var resp map[string]any
		parseJSONResponse(t, recorder, &resp)
		contentID, _ := resp["id"].(string)
		if resp["event_id"] != eventID {
			t.Errorf("expected content bound to event, got %v", resp["event_id"])
		}

		// Owner alice gets the shared-event edge; uploader bob does not need one.
		has, err := f.graph.HasAccess(ctx, contentID, "alice")
		if err != nil {
			t.Fatalf("failed to check access: %v", err)
		}
		if !has {
			t.Error("expected event owner to receive a grant")
		}
		has, _ = f.graph.HasAccess(ctx, contentID, "bob")
		if has {
			t.Error("uploader must not receive a self grant")
		}

		// Face processing still queued.
		if f.queue.PendingIngest() != 1 {
			t.Errorf("expected 1 queued ingest task, got %d", f.queue.PendingIngest())
		}
	})
}
