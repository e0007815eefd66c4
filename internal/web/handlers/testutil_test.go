package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/jpeg"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/facefeed/facefeed/internal/access"
	"github.com/facefeed/facefeed/internal/blob"
	"github.com/facefeed/facefeed/internal/config"
	"github.com/facefeed/facefeed/internal/feed"
	"github.com/facefeed/facefeed/internal/recognizer"
	"github.com/facefeed/facefeed/internal/store"
	"github.com/facefeed/facefeed/internal/store/mock"
	"github.com/facefeed/facefeed/internal/web/middleware"
)

// stubDetector is a Recognizer returning canned detections.
type stubDetector struct {
	detections []recognizer.Detection
	err        error
}

func (s *stubDetector) Detect(ctx context.Context, image []byte) ([]recognizer.Detection, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.detections, nil
}

// fixture wires every handler dependency against in-memory stores.
type fixture struct {
	identities  *mock.MockIdentityStore
	faces       *mock.MockFaceIndex
	graph       *mock.MockRecipientGraph
	feedStore   *mock.MockFeedStore
	friendships *mock.MockFriendshipStore
	content     *mock.MockContentStore
	enrollments *mock.MockEnrollmentStore
	events      *mock.MockEventStore
	queue       *mock.MockWorkQueue
	blobs       *blob.MemoryStorage
	enrolled    *recognizer.EnrolledIndex
	detector    *stubDetector
	engine      *access.Engine
	reader      *feed.Reader
}

func newFixture() *fixture {
	f := &fixture{
		identities:  mock.NewMockIdentityStore(),
		faces:       mock.NewMockFaceIndex(),
		graph:       mock.NewMockRecipientGraph(),
		feedStore:   mock.NewMockFeedStore(),
		friendships: mock.NewMockFriendshipStore(),
		content:     mock.NewMockContentStore(),
		enrollments: mock.NewMockEnrollmentStore(),
		queue:       mock.NewMockWorkQueue(),
		blobs:       blob.NewMemoryStorage(),
		enrolled:    recognizer.NewEnrolledIndex(),
		detector:    &stubDetector{},
	}
	f.events = mock.NewMockEventStore(f.content)
	thresholds := config.MatchingThresholds{
		GrantThreshold:    80,
		IdentityThreshold: 90,
		CandidateLimit:    5,
		MaxImageSize:      1600,
	}
	f.engine = access.NewEngine(f.identities, f.faces, f.graph, f.friendships, f.enrolled, thresholds)
	f.reader = feed.NewReader(f.feedStore, f.graph, f.content)
	return f
}

func (f *fixture) contentHandler() *ContentHandler {
	return NewContentHandler(f.content, f.blobs, f.queue, f.reader, f.engine)
}

func (f *fixture) eventsHandler() *EventsHandler {
	return NewEventsHandler(f.events, f.engine, f.contentHandler())
}

// addContent seeds a processed content row.
func (f *fixture) addContent(id, owner string) {
	f.content.AddContent(store.Content{
		ID:        id,
		OwnerID:   owner,
		ObjectKey: blob.ContentKey(owner, id),
		MediaType: "image/jpeg",
		State:     store.ContentProcessed,
		CreatedAt: time.Now(),
	})
}

// authedRequest creates a request with the given user in context.
func authedRequest(t *testing.T, method, path string, body *bytes.Buffer, userID string) *http.Request {
	t.Helper()
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, body)
	return req.WithContext(middleware.SetUserInContext(req.Context(), userID))
}

// jsonRequest creates an authed request with a JSON body.
func jsonRequest(t *testing.T, method, path string, payload any, userID string) *http.Request {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("failed to marshal payload: %v", err)
	}
	req := authedRequest(t, method, path, bytes.NewBuffer(data), userID)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// testJPEG encodes a small valid JPEG.
func testJPEG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("failed to encode test image: %v", err)
	}
	return buf.Bytes()
}

// multipartUpload builds a multipart body with one file part carrying an
// explicit content type.
func multipartUpload(t *testing.T, field, filename, contentType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="`+field+`"; filename="`+filename+`"`)
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	if err != nil {
		t.Fatalf("failed to create multipart part: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("failed to write multipart data: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close multipart writer: %v", err)
	}
	return &buf, writer.FormDataContentType()
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertJSONError checks if the response is a JSON error with the expected message
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result["error"] != expectedMessage {
		t.Errorf("expected error '%s', got '%s'", expectedMessage, result["error"])
	}
}
