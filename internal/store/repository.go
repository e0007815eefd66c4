package store

import (
	"context"
	"time"
)

// IdentityStore is the owner-scoped face identity directory.
type IdentityStore interface {
	// Get retrieves a face identity by id. Returns ErrNotFound if absent.
	Get(ctx context.Context, id string) (*FaceIdentity, error)
	// Create inserts a new identity. Inserting an existing id is a no-op so
	// redelivered uploads cannot duplicate an identity.
	Create(ctx context.Context, identity *FaceIdentity) error
	// NearestByOwner finds the owner's identities closest to the signature,
	// nearest first, with cosine distances.
	NearestByOwner(ctx context.Context, ownerID string, signature []float32, limit int) ([]FaceIdentity, []float64, error)
	// ListUnknownByOwner pages through the owner's unknown identities ordered
	// by id, strictly after afterID. The ordering is what makes retroactive
	// scans checkpointable.
	ListUnknownByOwner(ctx context.Context, ownerID, afterID string, limit int) ([]FaceIdentity, error)
	// Resolve transitions an identity to resolved for userID. Resolving an
	// identity already resolved to the same user is a no-op; to a different
	// user it returns ErrAlreadyResolved.
	Resolve(ctx context.Context, id, userID string) error
	// RecordDetection bumps the detection count and last-seen content.
	RecordDetection(ctx context.Context, id, contentID string) error
}

// FaceIndex is the reverse index from face identities to content.
type FaceIndex interface {
	// Put writes a content face if its deterministic id is new. Returns
	// whether a row was created.
	Put(ctx context.Context, face *ContentFace) (bool, error)
	ListByContent(ctx context.Context, contentID string) ([]ContentFace, error)
	ListByIdentity(ctx context.Context, faceIdentityID string) ([]ContentFace, error)
}

// RecipientGraph is the authoritative edge set for content visibility.
type RecipientGraph interface {
	// Grant upserts an edge keyed by its deterministic id. When a new edge is
	// created a change-feed event is appended atomically with it; replays and
	// concurrent duplicates create nothing and emit nothing. Returns whether
	// the edge was created.
	Grant(ctx context.Context, edge *RecipientEdge) (bool, error)
	HasAccess(ctx context.Context, contentID, recipientID string) (bool, error)
	ListByContent(ctx context.Context, contentID string) ([]RecipientEdge, error)
	ListByRecipient(ctx context.Context, recipientID string) ([]RecipientEdge, error)
	// ListAll pages every edge ordered by (recipient, content) for projection
	// rebuilds.
	ListAll(ctx context.Context, afterRecipient, afterContent string, limit int) ([]RecipientEdge, error)
	Count(ctx context.Context) (int, error)
	// DeleteByContent removes all edges for deleted content (reconcile pass).
	DeleteByContent(ctx context.Context, contentID string) (int, error)
}

// FeedStore is the derived, disposable per-recipient projection.
type FeedStore interface {
	// Upsert writes a feed entry keyed by (recipient, content). Writing the
	// same derived entry twice yields the same state.
	Upsert(ctx context.Context, entry *FeedEntry) error
	// List returns the recipient's feed ordered by edge creation time
	// descending. A zero `before` means from the top.
	List(ctx context.Context, recipientID string, before time.Time, limit int) ([]FeedEntry, error)
	DeleteByContent(ctx context.Context, contentID string) (int, error)
	// Truncate drops the whole projection ahead of a rebuild.
	Truncate(ctx context.Context) error
}

// FriendshipStore holds the symmetric trust edges.
type FriendshipStore interface {
	// Create inserts a pending request for a canonical pair. Duplicate
	// requests for the same pair are rejected with ErrNotFound-free no-op
	// semantics: the existing edge is returned.
	Create(ctx context.Context, friendship *Friendship) (*Friendship, error)
	Get(ctx context.Context, userA, userB string) (*Friendship, error)
	GetByID(ctx context.Context, id string) (*Friendship, error)
	// Accept transitions pending -> accepted exactly once and stamps
	// AcceptedAt. Accepting an accepted edge is a no-op returning the edge.
	Accept(ctx context.Context, id string) (*Friendship, error)
	AreFriends(ctx context.Context, userA, userB string) (bool, error)
	// AcceptedFriends maps friend id -> acceptance time for a user. The
	// timestamps break ties between candidates matching at equal confidence.
	AcceptedFriends(ctx context.Context, userID string) (map[string]time.Time, error)
}

// ContentStore holds upload metadata; bytes live in object storage.
type ContentStore interface {
	Create(ctx context.Context, content *Content) error
	Get(ctx context.Context, id string) (*Content, error)
	SetState(ctx context.Context, id string, state ContentState) error
	ListByOwner(ctx context.Context, ownerID string) ([]Content, error)
	// SoftDelete marks content deleted; edges and feed rows are reconciled
	// later, not removed inline.
	SoftDelete(ctx context.Context, id string) error
	// ListByState pages content in a given state by id; pass the last id of
	// the previous page as afterID, or "" to start.
	ListByState(ctx context.Context, state ContentState, afterID string, limit int) ([]Content, error)
}

// EnrollmentStore holds profile face signatures, the candidate set for grants.
type EnrollmentStore interface {
	// Save upserts the user's profile signature.
	Save(ctx context.Context, enrollment *Enrollment) error
	Get(ctx context.Context, userID string) (*Enrollment, error)
	All(ctx context.Context) ([]Enrollment, error)
}

// EventStore holds events and memberships.
type EventStore interface {
	CreateEvent(ctx context.Context, event *Event) error
	GetEvent(ctx context.Context, id string) (*Event, error)
	Invite(ctx context.Context, eventID, userID string) error
	// AcceptInvite transitions invited -> accepted; accepting twice is a no-op.
	AcceptInvite(ctx context.Context, eventID, userID string) error
	AcceptedMembers(ctx context.Context, eventID string) ([]string, error)
	IsAcceptedMember(ctx context.Context, eventID, userID string) (bool, error)
	ListEventContent(ctx context.Context, eventID string) ([]Content, error)
}

// WorkQueue hands units of work to the pipeline workers. Claims are
// single-consumer; completion or failure must be recorded explicitly, and a
// claim left hanging past the visibility timeout is handed out again.
// Task handlers must therefore tolerate redelivery.
type WorkQueue interface {
	// EnqueueIngest records that an upload awaits face processing.
	EnqueueIngest(ctx context.Context, contentID string) error
	// ClaimIngest picks the oldest unclaimed task, or nil when idle.
	ClaimIngest(ctx context.Context) (*IngestTask, error)
	CompleteIngest(ctx context.Context, taskID int64) error
	// FailIngest re-queues the task with a bumped attempt count, or drops it
	// once attempts are exhausted (the content is then marked failed).
	FailIngest(ctx context.Context, taskID int64, attempts, maxAttempts int) (exhausted bool, err error)

	// EnqueueRetro records an accepted friendship awaiting retroactive
	// matching. Enqueueing an already-queued pair is a no-op, so duplicate
	// acceptance deliveries collapse into one task.
	EnqueueRetro(ctx context.Context, userA, userB string) error
	ClaimRetro(ctx context.Context) (*RetroTask, error)
	CompleteRetro(ctx context.Context, taskID int64) error
	FailRetro(ctx context.Context, taskID int64, attempts, maxAttempts int) (exhausted bool, err error)
}

// ChangeFeed is the ordered, at-least-once stream of recipient edge creations
// consumed by the feed materializer.
type ChangeFeed interface {
	// ReadBatch returns events after the consumer's committed checkpoint,
	// ordered by sequence.
	ReadBatch(ctx context.Context, consumer string, limit int) ([]EdgeEvent, error)
	// Commit advances the consumer checkpoint. Crash before commit means the
	// batch is re-read; downstream writes must therefore be idempotent.
	Commit(ctx context.Context, consumer string, seq int64) error
	// DeadLetter parks a record that failed deterministically.
	DeadLetter(ctx context.Context, consumer string, event EdgeEvent, reason string) error
	ListDeadLetters(ctx context.Context, consumer string) ([]DeadLetter, error)
}

// CheckpointStore persists cursors for long-running resumable scans.
type CheckpointStore interface {
	GetCheckpoint(ctx context.Context, key string) (string, error)
	SetCheckpoint(ctx context.Context, key, value string) error
	ClearCheckpoint(ctx context.Context, key string) error
}
