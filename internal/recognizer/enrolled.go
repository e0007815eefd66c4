package recognizer

import (
	"sync"

	"github.com/coder/hnsw"

	"github.com/facefeed/facefeed/internal/store"
)

// EnrolledMaxNeighbors is the HNSW M parameter for the enrolled-user index.
const EnrolledMaxNeighbors = 16

// EnrolledIndex is an in-memory HNSW index over enrolled users' profile
// signatures, keyed by user id. Workers build it at startup from the
// enrollment store and add new enrollments as they arrive.
type EnrolledIndex struct {
	mu         sync.RWMutex
	graph      *hnsw.Graph[string]
	signatures map[string][]float32
}

// NewEnrolledIndex creates an empty enrolled-user index.
func NewEnrolledIndex() *EnrolledIndex {
	return &EnrolledIndex{
		signatures: make(map[string][]float32),
	}
}

// BuildFromEnrollments replaces the index contents with the given enrollments.
func (e *EnrolledIndex) BuildFromEnrollments(enrollments []store.Enrollment) {
	e.mu.Lock()
	defer e.mu.Unlock()

	g := hnsw.NewGraph[string]()
	g.M = EnrolledMaxNeighbors
	g.Ml = 1.0 / float64(EnrolledMaxNeighbors)
	g.Distance = hnsw.CosineDistance

	e.signatures = make(map[string][]float32, len(enrollments))
	for i := range enrollments {
		enrollment := &enrollments[i]
		if len(enrollment.Signature) == 0 {
			continue
		}
		g.Add(hnsw.MakeNode(enrollment.UserID, enrollment.Signature))
		e.signatures[enrollment.UserID] = enrollment.Signature
	}

	e.graph = g
}

// Add inserts or refreshes a single user's signature.
func (e *EnrolledIndex) Add(userID string, signature []float32) {
	if len(signature) == 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.graph == nil {
		g := hnsw.NewGraph[string]()
		g.M = EnrolledMaxNeighbors
		g.Ml = 1.0 / float64(EnrolledMaxNeighbors)
		g.Distance = hnsw.CosineDistance
		e.graph = g
	}
	e.graph.Add(hnsw.MakeNode(userID, signature))
	e.signatures[userID] = signature
}

// Candidate is an enrolled user matched against a detected signature.
type Candidate struct {
	UserID     string
	Confidence int
}

// Search returns up to k enrolled users nearest to the signature, nearest
// first, with confidences on the 0-100 scale.
func (e *EnrolledIndex) Search(signature []float32, k int) []Candidate {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.graph == nil {
		return nil
	}

	neighbors := e.graph.Search(signature, k)
	candidates := make([]Candidate, 0, len(neighbors))
	for _, n := range neighbors {
		candidates = append(candidates, Candidate{
			UserID:     n.Key,
			Confidence: Confidence(CosineDistance(signature, n.Value)),
		})
	}
	return candidates
}

// Signature returns the indexed signature for a user, or nil.
func (e *EnrolledIndex) Signature(userID string) []float32 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.signatures[userID]
}

// Count returns the number of indexed users.
func (e *EnrolledIndex) Count() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.signatures)
}
