package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/facefeed/facefeed/internal/store"
)

func TestFeedList(t *testing.T) {
	f := newFixture()
	h := NewFeedHandler(f.reader)

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"photo-1", "photo-2", "photo-3"} {
		if err := f.feedStore.Upsert(context.Background(), &store.FeedEntry{
			RecipientID:   "bob",
			ContentID:     id,
			OwnerID:       "alice",
			ObjectKey:     "media/alice/" + id,
			MediaType:     "image/jpeg",
			Method:        store.MethodFaceMatch,
			Confidence:    85 + i,
			EdgeCreatedAt: base.Add(time.Duration(i) * time.Hour),
		}); err != nil {
			t.Fatalf("failed to seed feed: %v", err)
		}
	}

	req := authedRequest(t, http.MethodGet, "/api/v1/feed", nil, "bob")
	recorder := httptest.NewRecorder()
	h.List(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)

	var resp struct {
		Entries []map[string]any `json:"entries"`
		Count   int              `json:"count"`
	}
	parseJSONResponse(t, recorder, &resp)

	if resp.Count != 3 {
		t.Fatalf("expected 3 entries, got %d", resp.Count)
	}
	// Newest grant first.
	if resp.Entries[0]["content_id"] != "photo-3" {
		t.Errorf("expected photo-3 first, got %v", resp.Entries[0]["content_id"])
	}

	// Keyset pagination from the middle entry.
	req = authedRequest(t, http.MethodGet,
		"/api/v1/feed?before="+base.Add(time.Hour).Format(time.RFC3339Nano), nil, "bob")
	recorder = httptest.NewRecorder()
	h.List(recorder, req)
	assertStatusCode(t, recorder, http.StatusOK)
	parseJSONResponse(t, recorder, &resp)
	if resp.Count != 1 || resp.Entries[0]["content_id"] != "photo-1" {
		t.Errorf("expected only photo-1 before cursor, got %+v", resp.Entries)
	}
}

func TestFeedListEmptyForNewUser(t *testing.T) {
	f := newFixture()
	h := NewFeedHandler(f.reader)

	req := authedRequest(t, http.MethodGet, "/api/v1/feed", nil, "newcomer")
	recorder := httptest.NewRecorder()
	h.List(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)
	var resp struct {
		Count int `json:"count"`
	}
	parseJSONResponse(t, recorder, &resp)
	if resp.Count != 0 {
		t.Errorf("expected empty feed, got %d entries", resp.Count)
	}
}

func TestFeedListRejectsBadCursor(t *testing.T) {
	f := newFixture()
	h := NewFeedHandler(f.reader)

	req := authedRequest(t, http.MethodGet, "/api/v1/feed?before=yesterday", nil, "bob")
	recorder := httptest.NewRecorder()
	h.List(recorder, req)

	assertStatusCode(t, recorder, http.StatusBadRequest)
}
