// Package access implements the decision engine that turns detected faces
// into recipient grants. All writes are idempotent on deterministic keys, so
// redelivered uploads and concurrent workers converge on the same graph.
package access

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/facefeed/facefeed/internal/config"
	"github.com/facefeed/facefeed/internal/recognizer"
	"github.com/facefeed/facefeed/internal/store"
)

// Engine decides, per detected face, whether and to whom to grant visibility
// of a content item.
type Engine struct {
	identities  store.IdentityStore
	faces       store.FaceIndex
	graph       store.RecipientGraph
	friendships store.FriendshipStore
	enrolled    *recognizer.EnrolledIndex
	thresholds  config.MatchingThresholds
}

// NewEngine creates an access decision engine.
func NewEngine(
	identities store.IdentityStore,
	faces store.FaceIndex,
	graph store.RecipientGraph,
	friendships store.FriendshipStore,
	enrolled *recognizer.EnrolledIndex,
	thresholds config.MatchingThresholds,
) *Engine {
	return &Engine{
		identities:  identities,
		faces:       faces,
		graph:       graph,
		friendships: friendships,
		enrolled:    enrolled,
		thresholds:  thresholds,
	}
}

// ProcessContent runs the access decision for every face detected in a
// content item. Faces are processed independently; the first error aborts so
// the ingest task retries, which is safe because every write is idempotent.
func (e *Engine) ProcessContent(ctx context.Context, content *store.Content, detections []recognizer.Detection) error {
	for i := range detections {
		if err := e.handleFace(ctx, content, &detections[i]); err != nil {
			return fmt.Errorf("face %d of content %s: %w", i, content.ID, err)
		}
	}
	return nil
}

func (e *Engine) handleFace(ctx context.Context, content *store.Content, detection *recognizer.Detection) error {
	identity, err := e.findOrCreateIdentity(ctx, content, detection.Signature)
	if err != nil {
		return err
	}

	face := &store.ContentFace{
		ID:             store.ContentFaceID(content.ID, detection.Signature),
		ContentID:      content.ID,
		FaceIdentityID: identity.ID,
		BBox:           detection.BBox,
		Confidence:     int(detection.DetScore * 100),
	}
	created, err := e.faces.Put(ctx, face)
	if err != nil {
		return fmt.Errorf("index face: %w", err)
	}
	if created {
		if err := e.identities.RecordDetection(ctx, identity.ID, content.ID); err != nil {
			return fmt.Errorf("record detection: %w", err)
		}
	}

	if identity.Status == store.FaceResolved {
		// A known face in new content: the resolved user gets this item too.
		return e.grantResolved(ctx, content, identity)
	}
	return e.tryResolve(ctx, content, identity, detection.Signature)
}

// findOrCreateIdentity folds the signature into the owner's nearest existing
// identity when it is close enough, otherwise registers a new unknown one.
func (e *Engine) findOrCreateIdentity(ctx context.Context, content *store.Content, signature []float32) (*store.FaceIdentity, error) {
	nearest, distances, err := e.identities.NearestByOwner(ctx, content.OwnerID, signature, e.thresholds.CandidateLimit)
	if err != nil {
		return nil, fmt.Errorf("search identities: %w", err)
	}
	if len(nearest) > 0 && recognizer.Confidence(distances[0]) >= e.thresholds.IdentityThreshold {
		return &nearest[0], nil
	}

	identity := &store.FaceIdentity{
		ID:                 store.NewID(),
		OwnerID:            content.OwnerID,
		Signature:          signature,
		Status:             store.FaceUnknown,
		FirstSeenContentID: content.ID,
		LastSeenContentID:  content.ID,
	}
	if err := e.identities.Create(ctx, identity); err != nil {
		return nil, fmt.Errorf("create identity: %w", err)
	}
	return identity, nil
}

// grantResolved emits the edge for a face that already resolved to a user.
// The owner never needs an edge to their own content.
func (e *Engine) grantResolved(ctx context.Context, content *store.Content, identity *store.FaceIdentity) error {
	recipient := identity.ResolvedTo()
	if recipient == "" || recipient == content.OwnerID {
		return nil
	}

	confidence := recognizer.Confidence(recognizer.CosineDistance(identity.Signature, e.enrolled.Signature(recipient)))
	if confidence < e.thresholds.GrantThreshold {
		confidence = e.thresholds.GrantThreshold
	}

	_, err := e.graph.Grant(ctx, &store.RecipientEdge{
		ID:          store.EdgeID(content.ID, recipient, store.MethodFaceMatch),
		ContentID:   content.ID,
		RecipientID: recipient,
		OwnerID:     content.OwnerID,
		Method:      store.MethodFaceMatch,
		Confidence:  confidence,
		Provenance:  store.ProvenanceRealtime,
	})
	if err != nil {
		return fmt.Errorf("grant resolved face: %w", err)
	}
	return nil
}

// tryResolve matches an unknown identity against the enrolled candidate set.
// A match with the owner resolves without a grant; a match with an accepted
// friend resolves and grants. Anything else leaves the identity unknown,
// which confers no access.
func (e *Engine) tryResolve(ctx context.Context, content *store.Content, identity *store.FaceIdentity, signature []float32) error {
	candidates := e.enrolled.Search(signature, e.thresholds.CandidateLimit)
	if len(candidates) == 0 {
		return nil
	}

	friends, err := e.friendships.AcceptedFriends(ctx, content.OwnerID)
	if err != nil {
		return fmt.Errorf("list friends: %w", err)
	}

	winner := selectCandidate(candidates, content.OwnerID, friends, e.thresholds.GrantThreshold)
	if winner == nil {
		return nil
	}

	if err := e.identities.Resolve(ctx, identity.ID, winner.UserID); err != nil {
		if errors.Is(err, store.ErrAlreadyResolved) {
			// A concurrent worker resolved this identity to someone else.
			// The earlier resolution wins; record the anomaly and move on.
			log.Printf("integrity anomaly: identity %s already resolved, wanted %s", identity.ID, winner.UserID)
			return nil
		}
		return fmt.Errorf("resolve identity: %w", err)
	}

	if winner.UserID == content.OwnerID {
		return nil
	}

	_, err = e.graph.Grant(ctx, &store.RecipientEdge{
		ID:          store.EdgeID(content.ID, winner.UserID, store.MethodFaceMatch),
		ContentID:   content.ID,
		RecipientID: winner.UserID,
		OwnerID:     content.OwnerID,
		Method:      store.MethodFaceMatch,
		Confidence:  winner.Confidence,
		Provenance:  store.ProvenanceRealtime,
	})
	if err != nil {
		return fmt.Errorf("grant face match: %w", err)
	}
	return nil
}

// GrantManual records an owner-initiated share of a content item.
func (e *Engine) GrantManual(ctx context.Context, content *store.Content, recipientID string) error {
	_, err := e.graph.Grant(ctx, &store.RecipientEdge{
		ID:          store.EdgeID(content.ID, recipientID, store.MethodManual),
		ContentID:   content.ID,
		RecipientID: recipientID,
		OwnerID:     content.OwnerID,
		Method:      store.MethodManual,
		Confidence:  100,
		Provenance:  store.ProvenanceRealtime,
	})
	if err != nil {
		return fmt.Errorf("manual grant: %w", err)
	}
	return nil
}

// GrantEvent records a shared-event grant for an accepted event member.
func (e *Engine) GrantEvent(ctx context.Context, content *store.Content, memberID string) error {
	if memberID == content.OwnerID {
		return nil
	}
	_, err := e.graph.Grant(ctx, &store.RecipientEdge{
		ID:          store.EdgeID(content.ID, memberID, store.MethodSharedEvent),
		ContentID:   content.ID,
		RecipientID: memberID,
		OwnerID:     content.OwnerID,
		Method:      store.MethodSharedEvent,
		Confidence:  100,
		Provenance:  store.ProvenanceRealtime,
	})
	if err != nil {
		return fmt.Errorf("event grant: %w", err)
	}
	return nil
}
