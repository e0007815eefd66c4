// Package store defines the persistent entities of the access graph and the
// repository interfaces implemented by the postgres and mock backends.
package store

import (
	"time"
)

// ContentState tracks the processing lifecycle of an upload.
type ContentState string

const (
	ContentPending   ContentState = "pending"   // stored, faces not yet processed
	ContentProcessed ContentState = "processed" // detection and grant decisions done
	ContentFailed    ContentState = "failed"    // detection exhausted retries, needs reconciliation
	ContentDeleted   ContentState = "deleted"   // soft-deleted by the owner
)

// FaceStatus is the resolution state of a FaceIdentity.
type FaceStatus string

const (
	FaceUnknown  FaceStatus = "unknown"
	FaceResolved FaceStatus = "resolved"
)

// GrantMethod says how a recipient edge came to exist.
type GrantMethod string

const (
	MethodFaceMatch   GrantMethod = "FACE_MATCH"
	MethodSharedEvent GrantMethod = "SHARED_EVENT"
	MethodManual      GrantMethod = "MANUAL"
)

// Provenance distinguishes grants made at upload time from grants made later
// by retroactive matching.
type Provenance string

const (
	ProvenanceRealtime    Provenance = "REALTIME"
	ProvenanceRetroactive Provenance = "RETROACTIVE"
)

// FriendshipStatus is the state of a trust edge between two users.
type FriendshipStatus string

const (
	FriendshipPending  FriendshipStatus = "pending"
	FriendshipAccepted FriendshipStatus = "accepted"
)

// MemberStatus is the state of an event membership.
type MemberStatus string

const (
	MemberInvited  MemberStatus = "invited"
	MemberAccepted MemberStatus = "accepted"
)

// Content is an uploaded photo or video. Bytes live in object storage under
// ObjectKey; this row carries the denormalized metadata the feed needs.
type Content struct {
	ID        string
	OwnerID   string
	EventID   *string
	ObjectKey string
	MediaType string // e.g. image/jpeg, video/mp4
	State     ContentState
	CreatedAt time.Time
	UpdatedAt time.Time
}

// FaceIdentity is an owner-scoped record of a distinct face signature seen in
// the owner's content. It starts unknown and resolves to a user at most once;
// resolved is terminal. Only the owner may ever enumerate their unknown rows.
type FaceIdentity struct {
	ID                 string
	OwnerID            string
	Signature          []float32
	Status             FaceStatus
	ResolvedUserID     *string
	FirstSeenContentID string
	LastSeenContentID  string
	DetectionCount     int
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// ResolvedTo returns the resolved user id, or "" while the identity is unknown.
func (f *FaceIdentity) ResolvedTo() string {
	if f.Status != FaceResolved || f.ResolvedUserID == nil {
		return ""
	}
	return *f.ResolvedUserID
}

// ContentFace joins a content item to a face identity appearing in it.
// The ID is deterministic over (content, signature) so redelivered uploads
// cannot create duplicate rows. Immutable once written.
type ContentFace struct {
	ID             string
	ContentID      string
	FaceIdentityID string
	BBox           []float64 // [x1, y1, x2, y2] in pixel coordinates
	Confidence     int       // detection confidence, 0-100
	CreatedAt      time.Time
}

// RecipientEdge is the authoritative grant: recipient may view content.
// The ID is deterministic over (content, recipient, method), which is the
// sole idempotency and concurrency-safety mechanism for grants.
type RecipientEdge struct {
	ID          string
	ContentID   string
	RecipientID string
	OwnerID     string
	Method      GrantMethod
	Confidence  int // 0-100
	Provenance  Provenance
	CreatedAt   time.Time
}

// EdgeEvent is a change-feed record for a newly created recipient edge.
// Seq orders events; delivery is at-least-once.
type EdgeEvent struct {
	Seq       int64
	Edge      RecipientEdge
	CreatedAt time.Time
}

// FeedEntry is the denormalized per-recipient projection of a recipient edge.
// Strictly a cache: fully rebuildable from RecipientEdge + Content.
type FeedEntry struct {
	RecipientID   string
	ContentID     string
	OwnerID       string
	ObjectKey     string
	MediaType     string
	Method        GrantMethod
	Confidence    int
	EdgeCreatedAt time.Time // ordering key, descending
	CreatedAt     time.Time
}

// Friendship is a symmetric trust edge. UserLow < UserHigh lexicographically,
// so a pair can never appear twice in reverse order.
type Friendship struct {
	ID          string
	UserLow     string
	UserHigh    string
	RequesterID string
	Status      FriendshipStatus
	RequestedAt time.Time
	AcceptedAt  *time.Time
}

// Other returns the friend of userID within this edge.
func (f *Friendship) Other(userID string) string {
	if f.UserLow == userID {
		return f.UserHigh
	}
	return f.UserLow
}

// Enrollment is a user's profile face signature, the candidate set for
// matching detected faces to people.
type Enrollment struct {
	UserID     string
	Signature  []float32
	EnrolledAt time.Time
}

// Event is a named context whose accepted members receive SHARED_EVENT
// visibility of content attached to it.
type Event struct {
	ID        string
	OwnerID   string
	Name      string
	Slug      string // normalized name for lookup
	CreatedAt time.Time
}

type EventMember struct {
	EventID   string
	UserID    string
	Status    MemberStatus
	InvitedAt time.Time
	JoinedAt  *time.Time
}

// IngestTask is one pending upload awaiting face processing.
type IngestTask struct {
	ID        int64
	ContentID string
	Attempts  int
	CreatedAt time.Time
}

// RetroTask is one accepted friendship awaiting retroactive matching.
type RetroTask struct {
	ID       int64
	UserLow  string
	UserHigh string
	Attempts int
}

// DeadLetter is a change-feed record that failed deterministically and was
// shunted aside so it cannot block the rest of its batch.
type DeadLetter struct {
	ID        int64
	Consumer  string
	Seq       int64
	EdgeID    string
	Reason    string
	CreatedAt time.Time
}
