package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/facefeed/facefeed/internal/store"
)

func TestFriendshipRequest(t *testing.T) {
	f := newFixture()
	h := NewFriendshipHandler(f.friendships, f.queue)

	req := jsonRequest(t, http.MethodPost, "/api/v1/friendships",
		map[string]string{"user_id": "bob"}, "alice")
	recorder := httptest.NewRecorder()
	h.Request(recorder, req)

	assertStatusCode(t, recorder, http.StatusCreated)

	var resp map[string]any
	parseJSONResponse(t, recorder, &resp)
	if resp["status"] != string(store.FriendshipPending) {
		t.Errorf("expected pending status, got %v", resp["status"])
	}
	if resp["requester_id"] != "alice" {
		t.Errorf("expected requester alice, got %v", resp["requester_id"])
	}

	// Duplicate request returns the same friendship.
	recorder = httptest.NewRecorder()
	h.Request(recorder, jsonRequest(t, http.MethodPost, "/api/v1/friendships",
		map[string]string{"user_id": "alice"}, "bob"))
	assertStatusCode(t, recorder, http.StatusCreated)

	var dup map[string]any
	parseJSONResponse(t, recorder, &dup)
	if dup["id"] != resp["id"] {
		t.Errorf("expected same friendship id, got %v and %v", resp["id"], dup["id"])
	}
}

func TestFriendshipRequestRejectsSelf(t *testing.T) {
	f := newFixture()
	h := NewFriendshipHandler(f.friendships, f.queue)

	req := jsonRequest(t, http.MethodPost, "/api/v1/friendships",
		map[string]string{"user_id": "alice"}, "alice")
	recorder := httptest.NewRecorder()
	h.Request(recorder, req)

	assertStatusCode(t, recorder, http.StatusBadRequest)
	assertJSONError(t, recorder, "cannot befriend yourself")
}

func TestFriendshipAccept(t *testing.T) {
	f := newFixture()
	h := NewFriendshipHandler(f.friendships, f.queue)

	friendship, err := f.friendships.Create(context.Background(), &store.Friendship{
		ID:          store.FriendshipID("alice", "bob"),
		UserLow:     "alice",
		UserHigh:    "bob",
		RequesterID: "alice",
		Status:      store.FriendshipPending,
	})
	if err != nil {
		t.Fatalf("failed to seed friendship: %v", err)
	}

	accept := func(viewerID string) *httptest.ResponseRecorder {
		req := authedRequest(t, http.MethodPost, "/api/v1/friendships/"+friendship.ID+"/accept", nil, viewerID)
		req = requestWithChiParams(req, map[string]string{"id": friendship.ID})
		recorder := httptest.NewRecorder()
		h.Accept(recorder, req)
		return recorder
	}

	t.Run("RequesterCannotAccept", func(t *testing.T) {
		assertStatusCode(t, accept("alice"), http.StatusForbidden)
	})

	t.Run("StrangerCannotAccept", func(t *testing.T) {
		assertStatusCode(t, accept("mallory"), http.StatusForbidden)
	})

	t.Run("CounterpartyAccepts", func(t *testing.T) {
		recorder := accept("bob")
		assertStatusCode(t, recorder, http.StatusOK)

		var resp map[string]any
		parseJSONResponse(t, recorder, &resp)
		if resp["status"] != string(store.FriendshipAccepted) {
			t.Errorf("expected accepted status, got %v", resp["status"])
		}
		if f.queue.PendingRetro() != 1 {
			t.Errorf("expected 1 queued retro task, got %d", f.queue.PendingRetro())
		}
	})

	t.Run("DuplicateAcceptCollapses", func(t *testing.T) {
		assertStatusCode(t, accept("bob"), http.StatusOK)
		// The pair is unique in the retro queue.
		if f.queue.PendingRetro() != 1 {
			t.Errorf("expected duplicate accept not to re-enqueue, got %d tasks", f.queue.PendingRetro())
		}
	})

	t.Run("MissingFriendship", func(t *testing.T) {
		req := authedRequest(t, http.MethodPost, "/api/v1/friendships/nope/accept", nil, "bob")
		req = requestWithChiParams(req, map[string]string{"id": "nope"})
		recorder := httptest.NewRecorder()
		h.Accept(recorder, req)
		assertStatusCode(t, recorder, http.StatusNotFound)
	})
}
