package access

import (
	"time"

	"github.com/facefeed/facefeed/internal/recognizer"
)

// selectCandidate picks the user a detected face should resolve to. Only the
// content owner and the owner's accepted friends are eligible, and only at or
// above the grant threshold. The highest-confidence match wins; the owner
// beats a friend at equal confidence, and between friends the more recently
// accepted friendship wins.
func selectCandidate(candidates []recognizer.Candidate, ownerID string, friends map[string]time.Time, threshold int) *recognizer.Candidate {
	var best *recognizer.Candidate
	var bestAccepted time.Time

	for i := range candidates {
		c := &candidates[i]
		if c.Confidence < threshold {
			continue
		}
		isOwner := c.UserID == ownerID
		acceptedAt, isFriend := friends[c.UserID]
		if !isOwner && !isFriend {
			continue
		}

		if best == nil || c.Confidence > best.Confidence {
			best = c
			bestAccepted = acceptedAt
			continue
		}
		if c.Confidence == best.Confidence {
			if isOwner {
				best = c
				bestAccepted = acceptedAt
			} else if best.UserID != ownerID && acceptedAt.After(bestAccepted) {
				best = c
				bestAccepted = acceptedAt
			}
		}
	}
	return best
}
