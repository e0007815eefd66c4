//go:build integration

package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/facefeed/facefeed/internal/config"
	"github.com/facefeed/facefeed/internal/store"
)

func setupTestContainer(t *testing.T) (*Pool, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "pgvector/pgvector:pg16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Docker not available or container failed to start, skipping integration test: %v", err)
		return nil, func() {}
	}
	if container == nil {
		t.Skip("Docker not available, skipping integration test")
		return nil, func() {}
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	dbURL := fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port())

	cfg := &config.DatabaseConfig{
		URL:          dbURL,
		MaxOpenConns: 5,
		MaxIdleConns: 2,
	}

	pool, err := NewPool(cfg)
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("Failed to create pool: %v", err)
	}

	if err := pool.Migrate(ctx); err != nil {
		pool.Close()
		container.Terminate(ctx)
		t.Fatalf("Failed to run migrations: %v", err)
	}

	cleanup := func() {
		pool.Close()
		container.Terminate(ctx)
	}

	return pool, cleanup
}

func testSignature(seed int) []float32 {
	sig := make([]float32, 512)
	for i := range sig {
		sig[i] = float32((i+seed)%100) / 100.0
	}
	return sig
}

func mustCreateContent(t *testing.T, pool *Pool, id, ownerID string) {
	t.Helper()
	repo := NewContentRepository(pool)
	err := repo.Create(context.Background(), &store.Content{
		ID:        id,
		OwnerID:   ownerID,
		ObjectKey: "media/" + ownerID + "/" + id,
		MediaType: "image/jpeg",
		State:     store.ContentPending,
	})
	if err != nil {
		t.Fatalf("Failed to create content: %v", err)
	}
}

func TestIdentityRepository(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	repo := NewIdentityRepository(pool)
	mustCreateContent(t, pool, "content-1", "owner-1")

	identity := &store.FaceIdentity{
		ID:                 store.NewID(),
		OwnerID:            "owner-1",
		Signature:          testSignature(0),
		Status:             store.FaceUnknown,
		FirstSeenContentID: "content-1",
		LastSeenContentID:  "content-1",
		DetectionCount:     1,
	}

	t.Run("CreateAndGet", func(t *testing.T) {
		if err := repo.Create(ctx, identity); err != nil {
			t.Fatalf("Failed to create identity: %v", err)
		}

		got, err := repo.Get(ctx, identity.ID)
		if err != nil {
			t.Fatalf("Failed to get identity: %v", err)
		}
		if got.OwnerID != "owner-1" {
			t.Errorf("Expected owner-1, got %s", got.OwnerID)
		}
		if got.Status != store.FaceUnknown {
			t.Errorf("Expected unknown status, got %s", got.Status)
		}
		if len(got.Signature) != 512 {
			t.Errorf("Expected 512 dimensions, got %d", len(got.Signature))
		}
	})

	t.Run("CreateDuplicateIsNoop", func(t *testing.T) {
		if err := repo.Create(ctx, identity); err != nil {
			t.Fatalf("Duplicate create should be a no-op, got: %v", err)
		}
	})

	t.Run("NearestByOwner", func(t *testing.T) {
		other := &store.FaceIdentity{
			ID:                 store.NewID(),
			OwnerID:            "owner-1",
			Signature:          testSignature(50),
			Status:             store.FaceUnknown,
			FirstSeenContentID: "content-1",
			LastSeenContentID:  "content-1",
			DetectionCount:     1,
		}
		if err := repo.Create(ctx, other); err != nil {
			t.Fatalf("Failed to create identity: %v", err)
		}

		results, distances, err := repo.NearestByOwner(ctx, "owner-1", testSignature(0), 5)
		if err != nil {
			t.Fatalf("Failed to search: %v", err)
		}
		if len(results) != 2 {
			t.Fatalf("Expected 2 results, got %d", len(results))
		}
		if results[0].ID != identity.ID {
			t.Errorf("Expected exact match first, got %s", results[0].ID)
		}
		if distances[0] > distances[1] {
			t.Error("Distances not sorted ascending")
		}
		if distances[0] > 0.001 {
			t.Errorf("Expected near-zero distance for exact match, got %f", distances[0])
		}

		// Scoped to the owner.
		results, _, err = repo.NearestByOwner(ctx, "owner-2", testSignature(0), 5)
		if err != nil {
			t.Fatalf("Failed to search: %v", err)
		}
		if len(results) != 0 {
			t.Errorf("Expected no results for another owner, got %d", len(results))
		}
	})

	t.Run("Resolve", func(t *testing.T) {
		if err := repo.Resolve(ctx, identity.ID, "user-42"); err != nil {
			t.Fatalf("Failed to resolve: %v", err)
		}

		// Same user again is a no-op.
		if err := repo.Resolve(ctx, identity.ID, "user-42"); err != nil {
			t.Fatalf("Re-resolving to the same user should succeed, got: %v", err)
		}

		// Different user is rejected.
		if err := repo.Resolve(ctx, identity.ID, "user-43"); err != store.ErrAlreadyResolved {
			t.Fatalf("Expected ErrAlreadyResolved, got: %v", err)
		}

		got, err := repo.Get(ctx, identity.ID)
		if err != nil {
			t.Fatalf("Failed to get identity: %v", err)
		}
		if got.ResolvedTo() != "user-42" {
			t.Errorf("Expected resolved to user-42, got %q", got.ResolvedTo())
		}
	})

	t.Run("ListUnknownByOwnerPaging", func(t *testing.T) {
		first, err := repo.ListUnknownByOwner(ctx, "owner-1", "", 1)
		if err != nil {
			t.Fatalf("Failed to list: %v", err)
		}
		if len(first) != 1 {
			t.Fatalf("Expected 1 unknown identity, got %d", len(first))
		}

		rest, err := repo.ListUnknownByOwner(ctx, "owner-1", first[0].ID, 10)
		if err != nil {
			t.Fatalf("Failed to list after cursor: %v", err)
		}
		for _, identity := range rest {
			if identity.ID <= first[0].ID {
				t.Error("Cursor not respected")
			}
		}
	})
}

func TestRecipientGraphRepository(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	repo := NewRecipientGraphRepository(pool)
	queue := NewQueueRepository(pool, 0)
	mustCreateContent(t, pool, "content-1", "owner-1")

	edge := &store.RecipientEdge{
		ID:          store.EdgeID("content-1", "user-1", store.MethodFaceMatch),
		ContentID:   "content-1",
		RecipientID: "user-1",
		OwnerID:     "owner-1",
		Method:      store.MethodFaceMatch,
		Confidence:  92,
		Provenance:  store.ProvenanceRealtime,
	}

	t.Run("GrantEmitsEventOnce", func(t *testing.T) {
		created, err := repo.Grant(ctx, edge)
		if err != nil {
			t.Fatalf("Failed to grant: %v", err)
		}
		if !created {
			t.Fatal("Expected edge to be created")
		}

		// Replay with the same deterministic id creates nothing.
		created, err = repo.Grant(ctx, edge)
		if err != nil {
			t.Fatalf("Failed to replay grant: %v", err)
		}
		if created {
			t.Fatal("Replay must not create a second edge")
		}

		events, err := queue.ReadBatch(ctx, "feed", 10)
		if err != nil {
			t.Fatalf("Failed to read change feed: %v", err)
		}
		if len(events) != 1 {
			t.Fatalf("Expected exactly 1 event after replay, got %d", len(events))
		}
		if events[0].Edge.ID != edge.ID {
			t.Errorf("Event carries wrong edge: %s", events[0].Edge.ID)
		}
	})

	t.Run("HasAccess", func(t *testing.T) {
		has, err := repo.HasAccess(ctx, "content-1", "user-1")
		if err != nil {
			t.Fatalf("Failed to check access: %v", err)
		}
		if !has {
			t.Error("Expected access")
		}

		has, err = repo.HasAccess(ctx, "content-1", "user-2")
		if err != nil {
			t.Fatalf("Failed to check access: %v", err)
		}
		if has {
			t.Error("Expected no access for user-2")
		}
	})

	t.Run("ChangeFeedCheckpoint", func(t *testing.T) {
		events, err := queue.ReadBatch(ctx, "feed", 10)
		if err != nil {
			t.Fatalf("Failed to read: %v", err)
		}
		if len(events) != 1 {
			t.Fatalf("Expected 1 event, got %d", len(events))
		}

		if err := queue.Commit(ctx, "feed", events[0].Seq); err != nil {
			t.Fatalf("Failed to commit: %v", err)
		}

		events, err = queue.ReadBatch(ctx, "feed", 10)
		if err != nil {
			t.Fatalf("Failed to read after commit: %v", err)
		}
		if len(events) != 0 {
			t.Errorf("Expected no events past checkpoint, got %d", len(events))
		}

		// An independent consumer still sees everything.
		events, err = queue.ReadBatch(ctx, "other", 10)
		if err != nil {
			t.Fatalf("Failed to read as other consumer: %v", err)
		}
		if len(events) != 1 {
			t.Errorf("Expected 1 event for fresh consumer, got %d", len(events))
		}
	})
}

func TestWorkQueues(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	queue := NewQueueRepository(pool, 0)
	mustCreateContent(t, pool, "content-1", "owner-1")

	t.Run("IngestClaimComplete", func(t *testing.T) {
		if err := queue.EnqueueIngest(ctx, "content-1"); err != nil {
			t.Fatalf("Failed to enqueue: %v", err)
		}

		task, err := queue.ClaimIngest(ctx)
		if err != nil {
			t.Fatalf("Failed to claim: %v", err)
		}
		if task == nil || task.ContentID != "content-1" {
			t.Fatalf("Expected task for content-1, got %+v", task)
		}

		// Claimed task is invisible to other workers.
		second, err := queue.ClaimIngest(ctx)
		if err != nil {
			t.Fatalf("Failed to claim: %v", err)
		}
		if second != nil {
			t.Fatal("Claimed task handed out twice")
		}

		if err := queue.CompleteIngest(ctx, task.ID); err != nil {
			t.Fatalf("Failed to complete: %v", err)
		}
	})

	t.Run("RetroEnqueueIdempotent", func(t *testing.T) {
		if err := queue.EnqueueRetro(ctx, "bob", "alice"); err != nil {
			t.Fatalf("Failed to enqueue: %v", err)
		}
		// Same pair in either order collapses into one task.
		if err := queue.EnqueueRetro(ctx, "alice", "bob"); err != nil {
			t.Fatalf("Failed to re-enqueue: %v", err)
		}

		task, err := queue.ClaimRetro(ctx)
		if err != nil {
			t.Fatalf("Failed to claim: %v", err)
		}
		if task == nil {
			t.Fatal("Expected a retro task")
		}
		if task.UserLow != "alice" || task.UserHigh != "bob" {
			t.Errorf("Expected canonical pair (alice, bob), got (%s, %s)", task.UserLow, task.UserHigh)
		}

		second, err := queue.ClaimRetro(ctx)
		if err != nil {
			t.Fatalf("Failed to claim: %v", err)
		}
		if second != nil {
			t.Fatal("Duplicate enqueue created a second task")
		}
	})

	t.Run("FailExhaustsAttempts", func(t *testing.T) {
		if err := queue.EnqueueIngest(ctx, "content-1"); err != nil {
			t.Fatalf("Failed to enqueue: %v", err)
		}
		task, err := queue.ClaimIngest(ctx)
		if err != nil || task == nil {
			t.Fatalf("Failed to claim: %v", err)
		}

		exhausted, err := queue.FailIngest(ctx, task.ID, task.Attempts, 2)
		if err != nil {
			t.Fatalf("Failed to fail task: %v", err)
		}
		if exhausted {
			t.Fatal("First failure should not exhaust with 2 attempts")
		}

		task, err = queue.ClaimIngest(ctx)
		if err != nil || task == nil {
			t.Fatalf("Failed to re-claim: %v", err)
		}
		if task.Attempts != 1 {
			t.Errorf("Expected 1 attempt recorded, got %d", task.Attempts)
		}

		exhausted, err = queue.FailIngest(ctx, task.ID, task.Attempts, 2)
		if err != nil {
			t.Fatalf("Failed to fail task: %v", err)
		}
		if !exhausted {
			t.Fatal("Second failure should exhaust with 2 attempts")
		}
	})

	// A worker that dies between claim and complete never calls FailIngest;
	// the task must still come back once its claim goes stale.
	t.Run("StaleIngestClaimIsRedelivered", func(t *testing.T) {
		impatient := NewQueueRepository(pool, 50*time.Millisecond)
		mustCreateContent(t, pool, "content-stale", "owner-1")

		if err := impatient.EnqueueIngest(ctx, "content-stale"); err != nil {
			t.Fatalf("Failed to enqueue: %v", err)
		}
		task, err := impatient.ClaimIngest(ctx)
		if err != nil || task == nil {
			t.Fatalf("Failed to claim: %v", err)
		}

		if second, err := impatient.ClaimIngest(ctx); err != nil || second != nil {
			t.Fatalf("Expected no task while the claim is fresh, got %+v (err %v)", second, err)
		}

		time.Sleep(100 * time.Millisecond)
		again, err := impatient.ClaimIngest(ctx)
		if err != nil {
			t.Fatalf("Failed to reclaim: %v", err)
		}
		if again == nil || again.ID != task.ID {
			t.Fatalf("Expected task %d redelivered after the claim went stale, got %+v", task.ID, again)
		}
		if err := impatient.CompleteIngest(ctx, again.ID); err != nil {
			t.Fatalf("Failed to complete: %v", err)
		}
	})

	t.Run("StaleRetroClaimIsRedelivered", func(t *testing.T) {
		impatient := NewQueueRepository(pool, 50*time.Millisecond)

		if err := impatient.EnqueueRetro(ctx, "dave", "carol"); err != nil {
			t.Fatalf("Failed to enqueue: %v", err)
		}
		task, err := impatient.ClaimRetro(ctx)
		if err != nil || task == nil {
			t.Fatalf("Failed to claim: %v", err)
		}

		// The stranded pair blocks re-enqueue via the unique constraint, so
		// redelivery is the only way it can ever finish.
		if err := impatient.EnqueueRetro(ctx, "carol", "dave"); err != nil {
			t.Fatalf("Failed to re-enqueue: %v", err)
		}

		time.Sleep(100 * time.Millisecond)
		again, err := impatient.ClaimRetro(ctx)
		if err != nil {
			t.Fatalf("Failed to reclaim: %v", err)
		}
		if again == nil || again.ID != task.ID {
			t.Fatalf("Expected task %d redelivered after the claim went stale, got %+v", task.ID, again)
		}
		if err := impatient.CompleteRetro(ctx, again.ID); err != nil {
			t.Fatalf("Failed to complete: %v", err)
		}
	})
}

func TestFriendshipRepository(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	repo := NewFriendshipRepository(pool)

	low, high := store.CanonicalPair("bob", "alice")
	friendship := &store.Friendship{
		ID:          store.FriendshipID("bob", "alice"),
		UserLow:     low,
		UserHigh:    high,
		RequesterID: "bob",
		Status:      store.FriendshipPending,
	}

	t.Run("CreateAndAccept", func(t *testing.T) {
		created, err := repo.Create(ctx, friendship)
		if err != nil {
			t.Fatalf("Failed to create: %v", err)
		}
		if created.Status != store.FriendshipPending {
			t.Errorf("Expected pending, got %s", created.Status)
		}

		accepted, err := repo.Accept(ctx, friendship.ID)
		if err != nil {
			t.Fatalf("Failed to accept: %v", err)
		}
		if accepted.Status != store.FriendshipAccepted {
			t.Errorf("Expected accepted, got %s", accepted.Status)
		}
		if accepted.AcceptedAt == nil {
			t.Fatal("Expected AcceptedAt to be set")
		}

		// Accepting again keeps the original timestamp.
		again, err := repo.Accept(ctx, friendship.ID)
		if err != nil {
			t.Fatalf("Failed to re-accept: %v", err)
		}
		if !again.AcceptedAt.Equal(*accepted.AcceptedAt) {
			t.Error("Re-acceptance changed AcceptedAt")
		}
	})

	t.Run("AreFriends", func(t *testing.T) {
		friends, err := repo.AreFriends(ctx, "alice", "bob")
		if err != nil {
			t.Fatalf("Failed to check: %v", err)
		}
		if !friends {
			t.Error("Expected alice and bob to be friends")
		}

		friends, err = repo.AreFriends(ctx, "alice", "carol")
		if err != nil {
			t.Fatalf("Failed to check: %v", err)
		}
		if friends {
			t.Error("Expected alice and carol not to be friends")
		}
	})

	t.Run("AcceptedFriends", func(t *testing.T) {
		friends, err := repo.AcceptedFriends(ctx, "alice")
		if err != nil {
			t.Fatalf("Failed to list: %v", err)
		}
		if len(friends) != 1 {
			t.Fatalf("Expected 1 friend, got %d", len(friends))
		}
		if _, ok := friends["bob"]; !ok {
			t.Error("Expected bob in alice's friends")
		}
	})
}

func TestFeedRepository(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	repo := NewFeedRepository(pool)

	base := time.Now().UTC().Truncate(time.Millisecond)
	for i := 0; i < 3; i++ {
		entry := &store.FeedEntry{
			RecipientID:   "user-1",
			ContentID:     fmt.Sprintf("content-%d", i),
			OwnerID:       "owner-1",
			ObjectKey:     fmt.Sprintf("media/owner-1/content-%d", i),
			MediaType:     "image/jpeg",
			Method:        store.MethodFaceMatch,
			Confidence:    90,
			EdgeCreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := repo.Upsert(ctx, entry); err != nil {
			t.Fatalf("Failed to upsert: %v", err)
		}
		// Upsert again; the projection must converge, not duplicate.
		if err := repo.Upsert(ctx, entry); err != nil {
			t.Fatalf("Failed to re-upsert: %v", err)
		}
	}

	t.Run("ListNewestFirst", func(t *testing.T) {
		entries, err := repo.List(ctx, "user-1", time.Time{}, 10)
		if err != nil {
			t.Fatalf("Failed to list: %v", err)
		}
		if len(entries) != 3 {
			t.Fatalf("Expected 3 entries, got %d", len(entries))
		}
		for i := 1; i < len(entries); i++ {
			if entries[i].EdgeCreatedAt.After(entries[i-1].EdgeCreatedAt) {
				t.Error("Feed not ordered newest first")
			}
		}
	})

	t.Run("ListBefore", func(t *testing.T) {
		entries, err := repo.List(ctx, "user-1", base.Add(90*time.Second), 10)
		if err != nil {
			t.Fatalf("Failed to list: %v", err)
		}
		if len(entries) != 2 {
			t.Fatalf("Expected 2 entries before cursor, got %d", len(entries))
		}
	})

	t.Run("DeleteByContent", func(t *testing.T) {
		removed, err := repo.DeleteByContent(ctx, "content-0")
		if err != nil {
			t.Fatalf("Failed to delete: %v", err)
		}
		if removed != 1 {
			t.Errorf("Expected 1 row removed, got %d", removed)
		}
	})
}
