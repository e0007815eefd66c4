package store

import (
	"encoding/binary"
	"math"

	"github.com/google/uuid"
)

// idNamespace is the fixed UUIDv5 namespace for all deterministic identifiers.
// Workers on different hosts derive identical ids for the same logical write,
// which is what makes every graph mutation an idempotent upsert.
var idNamespace = uuid.MustParse("a41f9c52-88d1-4c17-9e44-3d6b27a90f10")

// ContentFaceID derives the id for a (content, detected signature) pair.
// Redelivery of the same upload event produces the same id, so the face row
// is written at most once.
func ContentFaceID(contentID string, signature []float32) string {
	buf := make([]byte, 0, len(contentID)+1+len(signature)*4)
	buf = append(buf, contentID...)
	buf = append(buf, 0)
	var w [4]byte
	for _, v := range signature {
		binary.BigEndian.PutUint32(w[:], math.Float32bits(v))
		buf = append(buf, w[:]...)
	}
	return uuid.NewSHA1(idNamespace, buf).String()
}

// EdgeID derives the id for a (content, recipient, method) grant. At most one
// edge may exist per triple; concurrent workers colliding on the same triple
// produce the same id and the insert de-duplicates.
func EdgeID(contentID, recipientID string, method GrantMethod) string {
	key := contentID + "\x00" + recipientID + "\x00" + string(method)
	return uuid.NewSHA1(idNamespace, []byte(key)).String()
}

// CanonicalPair orders two user ids deterministically so a friendship pair
// has exactly one representation.
func CanonicalPair(a, b string) (low, high string) {
	if a < b {
		return a, b
	}
	return b, a
}

// FriendshipID derives the id for a user pair regardless of direction.
func FriendshipID(a, b string) string {
	low, high := CanonicalPair(a, b)
	return uuid.NewSHA1(idNamespace, []byte("friendship\x00"+low+"\x00"+high)).String()
}

// NewID returns a random identifier for entities without a natural
// deterministic key (content, face identities, events).
func NewID() string {
	return uuid.NewString()
}
