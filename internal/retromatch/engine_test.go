package retromatch

import (
	"context"
	"errors"
	"testing"

	"github.com/facefeed/facefeed/internal/config"
	"github.com/facefeed/facefeed/internal/store"
	"github.com/facefeed/facefeed/internal/store/mock"
)

type retroFixture struct {
	identities  *mock.MockIdentityStore
	faces       *mock.MockFaceIndex
	graph       *mock.MockRecipientGraph
	enrollments *mock.MockEnrollmentStore
	checkpoints *mock.MockWorkQueue
	engine      *Engine
}

func newRetroFixture(batchSize int) *retroFixture {
	f := &retroFixture{
		identities:  mock.NewMockIdentityStore(),
		faces:       mock.NewMockFaceIndex(),
		graph:       mock.NewMockRecipientGraph(),
		enrollments: mock.NewMockEnrollmentStore(),
		checkpoints: mock.NewMockWorkQueue(),
	}
	f.engine = NewEngine(f.identities, f.faces, f.graph, f.enrollments, f.checkpoints, config.MatchingThresholds{
		GrantThreshold:    80,
		IdentityThreshold: 90,
		CandidateLimit:    5,
	}, batchSize)
	return f
}

func signature(dim, axis int) []float32 {
	sig := make([]float32, dim)
	sig[axis] = 1
	return sig
}

// seedUnknown registers an unknown identity for owner appearing in the given
// content items.
func (f *retroFixture) seedUnknown(t *testing.T, id, owner string, sig []float32, contentIDs ...string) {
	t.Helper()
	f.identities.AddIdentity(store.FaceIdentity{
		ID:                 id,
		OwnerID:            owner,
		Signature:          sig,
		Status:             store.FaceUnknown,
		FirstSeenContentID: contentIDs[0],
		LastSeenContentID:  contentIDs[len(contentIDs)-1],
		DetectionCount:     len(contentIDs),
	})
	for _, contentID := range contentIDs {
		_, err := f.faces.Put(context.Background(), &store.ContentFace{
			ID:             store.ContentFaceID(contentID, sig),
			ContentID:      contentID,
			FaceIdentityID: id,
			BBox:           []float64{0, 0, 10, 10},
			Confidence:     95,
		})
		if err != nil {
			t.Fatalf("Failed to seed face: %v", err)
		}
	}
}

func (f *retroFixture) enroll(t *testing.T, userID string, sig []float32) {
	t.Helper()
	if err := f.enrollments.Save(context.Background(), &store.Enrollment{UserID: userID, Signature: sig}); err != nil {
		t.Fatalf("Failed to enroll: %v", err)
	}
}

// Scenario: Alice's photos contain Bob's face from before they were friends.
// Acceptance resolves the identity and grants Bob every item retroactively.
func TestRetroactiveMatchGrantsBackCatalog(t *testing.T) {
	f := newRetroFixture(10)
	ctx := context.Background()

	f.enroll(t, "bob", signature(8, 0))
	f.seedUnknown(t, "identity-1", "alice", signature(8, 0), "photo-1", "photo-2", "photo-3")

	if err := f.engine.ProcessPair(ctx, "alice", "bob"); err != nil {
		t.Fatalf("ProcessPair failed: %v", err)
	}

	for _, contentID := range []string{"photo-1", "photo-2", "photo-3"} {
		has, err := f.graph.HasAccess(ctx, contentID, "bob")
		if err != nil {
			t.Fatalf("Failed to check access: %v", err)
		}
		if !has {
			t.Errorf("Expected bob to have access to %s", contentID)
		}
	}

	edges, _ := f.graph.ListByRecipient(ctx, "bob")
	for _, edge := range edges {
		if edge.Provenance != store.ProvenanceRetroactive {
			t.Errorf("Expected RETROACTIVE provenance, got %s", edge.Provenance)
		}
		if edge.Method != store.MethodFaceMatch {
			t.Errorf("Expected FACE_MATCH, got %s", edge.Method)
		}
	}

	identity, err := f.identities.Get(ctx, "identity-1")
	if err != nil {
		t.Fatalf("Failed to get identity: %v", err)
	}
	if identity.ResolvedTo() != "bob" {
		t.Errorf("Expected identity resolved to bob, got %q", identity.ResolvedTo())
	}
}

// Scenario: the same acceptance event delivered twice produces exactly one
// edge and one change-feed event per content item.
func TestDuplicateDeliveryIsIdempotent(t *testing.T) {
	f := newRetroFixture(10)
	ctx := context.Background()

	f.enroll(t, "bob", signature(8, 0))
	f.seedUnknown(t, "identity-1", "alice", signature(8, 0), "photo-1")

	for i := 0; i < 2; i++ {
		if err := f.engine.ProcessPair(ctx, "alice", "bob"); err != nil {
			t.Fatalf("ProcessPair delivery %d failed: %v", i+1, err)
		}
	}

	count, _ := f.graph.Count(ctx)
	if count != 1 {
		t.Fatalf("Expected 1 edge after duplicate delivery, got %d", count)
	}

	events, err := f.graph.ReadBatch(ctx, "feed", 10)
	if err != nil {
		t.Fatalf("Failed to read change feed: %v", err)
	}
	if len(events) != 1 {
		t.Errorf("Expected 1 change-feed event, got %d", len(events))
	}
}

// An interrupted scan resumes from its checkpoint: nothing is re-granted,
// nothing is skipped.
func TestInterruptedScanResumes(t *testing.T) {
	f := newRetroFixture(1)
	ctx := context.Background()

	f.enroll(t, "bob", signature(8, 0))
	f.seedUnknown(t, "identity-1", "alice", signature(8, 0), "photo-1")
	f.seedUnknown(t, "identity-2", "alice", signature(8, 0), "photo-2")

	// First run dies on the grant write.
	f.graph.GrantError = errors.New("store throttled")
	if err := f.engine.ProcessPair(ctx, "alice", "bob"); err == nil {
		t.Fatal("Expected first run to fail")
	}

	// Retry succeeds and completes the scan.
	f.graph.GrantError = nil
	if err := f.engine.ProcessPair(ctx, "alice", "bob"); err != nil {
		t.Fatalf("Resumed run failed: %v", err)
	}

	for _, contentID := range []string{"photo-1", "photo-2"} {
		has, _ := f.graph.HasAccess(ctx, contentID, "bob")
		if !has {
			t.Errorf("Expected bob to have access to %s after resume", contentID)
		}
	}

	count, _ := f.graph.Count(ctx)
	if count != 2 {
		t.Errorf("Expected exactly 2 edges, got %d", count)
	}

	// A completed scan leaves no cursor behind.
	cursor, err := f.checkpoints.GetCheckpoint(ctx, checkpointKey("alice", "bob"))
	if err != nil {
		t.Fatalf("Failed to read checkpoint: %v", err)
	}
	if cursor != "" {
		t.Errorf("Expected cleared checkpoint, got %q", cursor)
	}
}

// Both directions run: Alice's unknowns resolve to Bob and Bob's to Alice.
func TestBothDirectionsScanned(t *testing.T) {
	f := newRetroFixture(10)
	ctx := context.Background()

	f.enroll(t, "alice", signature(8, 1))
	f.enroll(t, "bob", signature(8, 0))
	f.seedUnknown(t, "identity-a", "alice", signature(8, 0), "alice-photo")
	f.seedUnknown(t, "identity-b", "bob", signature(8, 1), "bob-photo")

	if err := f.engine.ProcessPair(ctx, "alice", "bob"); err != nil {
		t.Fatalf("ProcessPair failed: %v", err)
	}

	if has, _ := f.graph.HasAccess(ctx, "alice-photo", "bob"); !has {
		t.Error("Expected bob granted on alice's photo")
	}
	if has, _ := f.graph.HasAccess(ctx, "bob-photo", "alice"); !has {
		t.Error("Expected alice granted on bob's photo")
	}
}

// Faces below the grant threshold stay unknown and confer no access.
func TestBelowThresholdStaysUnknown(t *testing.T) {
	f := newRetroFixture(10)
	ctx := context.Background()

	f.enroll(t, "bob", signature(8, 0))
	// Orthogonal signature: confidence 0.
	f.seedUnknown(t, "identity-1", "alice", signature(8, 1), "photo-1")

	if err := f.engine.ProcessPair(ctx, "alice", "bob"); err != nil {
		t.Fatalf("ProcessPair failed: %v", err)
	}

	count, _ := f.graph.Count(ctx)
	if count != 0 {
		t.Errorf("Expected no edges, got %d", count)
	}

	unknowns, _ := f.identities.ListUnknownByOwner(ctx, "alice", "", 10)
	if len(unknowns) != 1 {
		t.Errorf("Expected identity to stay unknown, got %d unknowns", len(unknowns))
	}
}

// A pair where the trusted user never enrolled is a no-op.
func TestUnenrolledUserIsNoop(t *testing.T) {
	f := newRetroFixture(10)
	ctx := context.Background()

	f.seedUnknown(t, "identity-1", "alice", signature(8, 0), "photo-1")

	if err := f.engine.ProcessPair(ctx, "alice", "bob"); err != nil {
		t.Fatalf("ProcessPair failed: %v", err)
	}

	count, _ := f.graph.Count(ctx)
	if count != 0 {
		t.Errorf("Expected no edges, got %d", count)
	}
}

// An identity already resolved to someone else is left alone; the grant to
// the earlier user stands and no anomaly aborts the scan.
func TestAlreadyResolvedToOtherUserIsSkipped(t *testing.T) {
	f := newRetroFixture(10)
	ctx := context.Background()

	f.enroll(t, "bob", signature(8, 0))
	carol := "carol"
	f.identities.AddIdentity(store.FaceIdentity{
		ID:             "identity-1",
		OwnerID:        "alice",
		Signature:      signature(8, 0),
		Status:         store.FaceResolved,
		ResolvedUserID: &carol,
	})

	if err := f.engine.ProcessPair(ctx, "alice", "bob"); err != nil {
		t.Fatalf("ProcessPair failed: %v", err)
	}

	identity, _ := f.identities.Get(ctx, "identity-1")
	if identity.ResolvedTo() != "carol" {
		t.Errorf("Expected resolution to carol to stand, got %q", identity.ResolvedTo())
	}
}
