// Package retromatch re-evaluates unknown face identities when a friendship
// is accepted. A scan may touch many content items, so it proceeds in small
// independently-committed steps with a persisted cursor instead of one large
// transaction: an interrupted scan resumes where it stopped, and a re-run
// re-grants nothing thanks to deterministic edge ids.
package retromatch

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/facefeed/facefeed/internal/config"
	"github.com/facefeed/facefeed/internal/recognizer"
	"github.com/facefeed/facefeed/internal/store"
)

// Engine runs retroactive matching scans for accepted friendship pairs.
type Engine struct {
	identities  store.IdentityStore
	faces       store.FaceIndex
	graph       store.RecipientGraph
	enrollments store.EnrollmentStore
	checkpoints store.CheckpointStore
	thresholds  config.MatchingThresholds
	batchSize   int
}

// NewEngine creates a retroactive matching engine.
func NewEngine(
	identities store.IdentityStore,
	faces store.FaceIndex,
	graph store.RecipientGraph,
	enrollments store.EnrollmentStore,
	checkpoints store.CheckpointStore,
	thresholds config.MatchingThresholds,
	batchSize int,
) *Engine {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Engine{
		identities:  identities,
		faces:       faces,
		graph:       graph,
		enrollments: enrollments,
		checkpoints: checkpoints,
		thresholds:  thresholds,
		batchSize:   batchSize,
	}
}

// ProcessPair runs both scan directions for an accepted pair: the first
// user's unknowns against the second's enrollment, and the reverse.
func (e *Engine) ProcessPair(ctx context.Context, userA, userB string) error {
	if err := e.scanDirection(ctx, userA, userB); err != nil {
		return fmt.Errorf("scan %s for %s: %w", userA, userB, err)
	}
	if err := e.scanDirection(ctx, userB, userA); err != nil {
		return fmt.Errorf("scan %s for %s: %w", userB, userA, err)
	}
	return nil
}

func checkpointKey(ownerID, trustedID string) string {
	return "retromatch\x00" + ownerID + "\x00" + trustedID
}

// scanDirection walks ownerID's unknown identities in id order, resolving and
// granting those that match trustedID's enrolled signature. The cursor is
// persisted after every identity, so a crash mid-scan loses at most one
// identity's worth of idempotent work.
func (e *Engine) scanDirection(ctx context.Context, ownerID, trustedID string) error {
	enrollment, err := e.enrollments.Get(ctx, trustedID)
	if errors.Is(err, store.ErrNotFound) {
		// Nothing to match against until the user enrolls.
		return nil
	}
	if err != nil {
		return fmt.Errorf("load enrollment: %w", err)
	}

	key := checkpointKey(ownerID, trustedID)
	cursor, err := e.checkpoints.GetCheckpoint(ctx, key)
	if err != nil {
		return fmt.Errorf("load checkpoint: %w", err)
	}

	for {
		identities, err := e.identities.ListUnknownByOwner(ctx, ownerID, cursor, e.batchSize)
		if err != nil {
			return fmt.Errorf("list unknown identities: %w", err)
		}
		if len(identities) == 0 {
			break
		}

		for i := range identities {
			identity := &identities[i]
			if err := e.matchIdentity(ctx, identity, ownerID, trustedID, enrollment.Signature); err != nil {
				return err
			}
			cursor = identity.ID
			if err := e.checkpoints.SetCheckpoint(ctx, key, cursor); err != nil {
				return fmt.Errorf("save checkpoint: %w", err)
			}
		}
	}

	// A finished scan clears its cursor; a future re-acceptance of the same
	// pair starts fresh and converges through idempotent grants.
	if err := e.checkpoints.ClearCheckpoint(ctx, key); err != nil {
		return fmt.Errorf("clear checkpoint: %w", err)
	}
	return nil
}

// matchIdentity grants every content item the identity appears in, then
// resolves the identity. Grants come first: an interrupted run leaves the
// identity unknown, so the resumed scan picks it up again and the replayed
// grants collapse on their deterministic ids. Resolving first would hide a
// partially-granted identity from the unknown scan for good.
func (e *Engine) matchIdentity(ctx context.Context, identity *store.FaceIdentity, ownerID, trustedID string, trustedSignature []float32) error {
	confidence := recognizer.Confidence(recognizer.CosineDistance(identity.Signature, trustedSignature))
	if confidence < e.thresholds.GrantThreshold {
		return nil
	}

	faces, err := e.faces.ListByIdentity(ctx, identity.ID)
	if err != nil {
		return fmt.Errorf("list faces for identity %s: %w", identity.ID, err)
	}

	for _, face := range faces {
		_, err := e.graph.Grant(ctx, &store.RecipientEdge{
			ID:          store.EdgeID(face.ContentID, trustedID, store.MethodFaceMatch),
			ContentID:   face.ContentID,
			RecipientID: trustedID,
			OwnerID:     ownerID,
			Method:      store.MethodFaceMatch,
			Confidence:  confidence,
			Provenance:  store.ProvenanceRetroactive,
		})
		if err != nil {
			return fmt.Errorf("grant content %s: %w", face.ContentID, err)
		}
	}

	if err := e.identities.Resolve(ctx, identity.ID, trustedID); err != nil {
		if errors.Is(err, store.ErrAlreadyResolved) {
			// Another scan or the realtime path got here first with a
			// different user. The earlier resolution stands.
			log.Printf("integrity anomaly: identity %s already resolved, wanted %s", identity.ID, trustedID)
			return nil
		}
		return fmt.Errorf("resolve identity %s: %w", identity.ID, err)
	}
	return nil
}
