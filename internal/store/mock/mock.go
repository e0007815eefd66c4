// Package mock provides in-memory implementations of the store interfaces for
// testing.
package mock

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/facefeed/facefeed/internal/store"
)

// MockIdentityStore is a mock implementation of store.IdentityStore.
type MockIdentityStore struct {
	mu         sync.RWMutex
	identities map[string]*store.FaceIdentity

	// Error injection
	GetError             error
	CreateError          error
	NearestError         error
	ListUnknownError     error
	ResolveError         error
	RecordDetectionError error
}

// NewMockIdentityStore creates a new mock identity store.
func NewMockIdentityStore() *MockIdentityStore {
	return &MockIdentityStore{
		identities: make(map[string]*store.FaceIdentity),
	}
}

// AddIdentity seeds an identity into the mock store.
func (m *MockIdentityStore) AddIdentity(identity store.FaceIdentity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.identities[identity.ID] = &identity
}

func (m *MockIdentityStore) Get(ctx context.Context, id string) (*store.FaceIdentity, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	identity, ok := m.identities[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *identity
	return &cp, nil
}

func (m *MockIdentityStore) Create(ctx context.Context, identity *store.FaceIdentity) error {
	if m.CreateError != nil {
		return m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.identities[identity.ID]; ok {
		return nil
	}
	cp := *identity
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	m.identities[identity.ID] = &cp
	return nil
}

func (m *MockIdentityStore) NearestByOwner(ctx context.Context, ownerID string, signature []float32, limit int) ([]store.FaceIdentity, []float64, error) {
	if m.NearestError != nil {
		return nil, nil, m.NearestError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	type scored struct {
		identity store.FaceIdentity
		distance float64
	}
	var candidates []scored
	for _, identity := range m.identities {
		if identity.OwnerID != ownerID {
			continue
		}
		candidates = append(candidates, scored{*identity, cosineDistance(signature, identity.Signature)})
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].distance < candidates[j].distance
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	var identities []store.FaceIdentity
	var distances []float64
	for _, c := range candidates {
		identities = append(identities, c.identity)
		distances = append(distances, c.distance)
	}
	return identities, distances, nil
}

func (m *MockIdentityStore) ListUnknownByOwner(ctx context.Context, ownerID, afterID string, limit int) ([]store.FaceIdentity, error) {
	if m.ListUnknownError != nil {
		return nil, m.ListUnknownError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var results []store.FaceIdentity
	for _, identity := range m.identities {
		if identity.OwnerID == ownerID && identity.Status == store.FaceUnknown && identity.ID > afterID {
			results = append(results, *identity)
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].ID < results[j].ID })
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (m *MockIdentityStore) Resolve(ctx context.Context, id, userID string) error {
	if m.ResolveError != nil {
		return m.ResolveError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	identity, ok := m.identities[id]
	if !ok {
		return store.ErrNotFound
	}
	if identity.Status == store.FaceResolved {
		if identity.ResolvedUserID != nil && *identity.ResolvedUserID == userID {
			return nil
		}
		return store.ErrAlreadyResolved
	}
	identity.Status = store.FaceResolved
	identity.ResolvedUserID = &userID
	identity.UpdatedAt = time.Now()
	return nil
}

func (m *MockIdentityStore) RecordDetection(ctx context.Context, id, contentID string) error {
	if m.RecordDetectionError != nil {
		return m.RecordDetectionError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	identity, ok := m.identities[id]
	if !ok {
		return store.ErrNotFound
	}
	identity.DetectionCount++
	identity.LastSeenContentID = contentID
	identity.UpdatedAt = time.Now()
	return nil
}

// MockFaceIndex is a mock implementation of store.FaceIndex.
type MockFaceIndex struct {
	mu    sync.RWMutex
	faces map[string]*store.ContentFace

	// Error injection
	PutError  error
	ListError error
}

// NewMockFaceIndex creates a new mock face index.
func NewMockFaceIndex() *MockFaceIndex {
	return &MockFaceIndex{
		faces: make(map[string]*store.ContentFace),
	}
}

func (m *MockFaceIndex) Put(ctx context.Context, face *store.ContentFace) (bool, error) {
	if m.PutError != nil {
		return false, m.PutError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.faces[face.ID]; ok {
		return false, nil
	}
	cp := *face
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	m.faces[face.ID] = &cp
	return true, nil
}

func (m *MockFaceIndex) ListByContent(ctx context.Context, contentID string) ([]store.ContentFace, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var results []store.ContentFace
	for _, face := range m.faces {
		if face.ContentID == contentID {
			results = append(results, *face)
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].ID < results[j].ID })
	return results, nil
}

func (m *MockFaceIndex) ListByIdentity(ctx context.Context, faceIdentityID string) ([]store.ContentFace, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var results []store.ContentFace
	for _, face := range m.faces {
		if face.FaceIdentityID == faceIdentityID {
			results = append(results, *face)
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].ID < results[j].ID })
	return results, nil
}

// MockRecipientGraph is a mock implementation of store.RecipientGraph and
// store.ChangeFeed. Grant appends an event only when the edge is new, matching
// the transactional behavior of the postgres backend.
type MockRecipientGraph struct {
	mu          sync.RWMutex
	edges       map[string]*store.RecipientEdge
	events      []store.EdgeEvent
	checkpoints map[string]int64
	deadLetters []store.DeadLetter
	seq         int64

	// Error injection
	GrantError      error
	HasAccessError  error
	ListError       error
	DeleteError     error
	ReadBatchError  error
	CommitError     error
	DeadLetterError error
}

// NewMockRecipientGraph creates a new mock recipient graph.
func NewMockRecipientGraph() *MockRecipientGraph {
	return &MockRecipientGraph{
		edges:       make(map[string]*store.RecipientEdge),
		checkpoints: make(map[string]int64),
	}
}

func (m *MockRecipientGraph) Grant(ctx context.Context, edge *store.RecipientEdge) (bool, error) {
	if m.GrantError != nil {
		return false, m.GrantError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.edges[edge.ID]; ok {
		return false, nil
	}
	cp := *edge
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	m.edges[edge.ID] = &cp
	m.seq++
	m.events = append(m.events, store.EdgeEvent{Seq: m.seq, Edge: cp, CreatedAt: cp.CreatedAt})
	return true, nil
}

func (m *MockRecipientGraph) HasAccess(ctx context.Context, contentID, recipientID string) (bool, error) {
	if m.HasAccessError != nil {
		return false, m.HasAccessError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, edge := range m.edges {
		if edge.ContentID == contentID && edge.RecipientID == recipientID {
			return true, nil
		}
	}
	return false, nil
}

func (m *MockRecipientGraph) ListByContent(ctx context.Context, contentID string) ([]store.RecipientEdge, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var results []store.RecipientEdge
	for _, edge := range m.edges {
		if edge.ContentID == contentID {
			results = append(results, *edge)
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].ID < results[j].ID })
	return results, nil
}

func (m *MockRecipientGraph) ListByRecipient(ctx context.Context, recipientID string) ([]store.RecipientEdge, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var results []store.RecipientEdge
	for _, edge := range m.edges {
		if edge.RecipientID == recipientID {
			results = append(results, *edge)
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].ID < results[j].ID })
	return results, nil
}

func (m *MockRecipientGraph) ListAll(ctx context.Context, afterRecipient, afterContent string, limit int) ([]store.RecipientEdge, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var results []store.RecipientEdge
	for _, edge := range m.edges {
		if edge.RecipientID > afterRecipient ||
			(edge.RecipientID == afterRecipient && edge.ContentID > afterContent) {
			results = append(results, *edge)
		}
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].RecipientID != results[j].RecipientID {
			return results[i].RecipientID < results[j].RecipientID
		}
		return results[i].ContentID < results[j].ContentID
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (m *MockRecipientGraph) Count(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.edges), nil
}

func (m *MockRecipientGraph) DeleteByContent(ctx context.Context, contentID string) (int, error) {
	if m.DeleteError != nil {
		return 0, m.DeleteError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for id, edge := range m.edges {
		if edge.ContentID == contentID {
			delete(m.edges, id)
			count++
		}
	}
	return count, nil
}

func (m *MockRecipientGraph) ReadBatch(ctx context.Context, consumer string, limit int) ([]store.EdgeEvent, error) {
	if m.ReadBatchError != nil {
		return nil, m.ReadBatchError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	after := m.checkpoints[consumer]
	var batch []store.EdgeEvent
	for _, ev := range m.events {
		if ev.Seq > after {
			batch = append(batch, ev)
			if len(batch) >= limit {
				break
			}
		}
	}
	return batch, nil
}

func (m *MockRecipientGraph) Commit(ctx context.Context, consumer string, seq int64) error {
	if m.CommitError != nil {
		return m.CommitError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkpoints[consumer] = seq
	return nil
}

func (m *MockRecipientGraph) DeadLetter(ctx context.Context, consumer string, event store.EdgeEvent, reason string) error {
	if m.DeadLetterError != nil {
		return m.DeadLetterError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deadLetters = append(m.deadLetters, store.DeadLetter{
		ID:        int64(len(m.deadLetters) + 1),
		Consumer:  consumer,
		Seq:       event.Seq,
		EdgeID:    event.Edge.ID,
		Reason:    reason,
		CreatedAt: time.Now(),
	})
	return nil
}

func (m *MockRecipientGraph) ListDeadLetters(ctx context.Context, consumer string) ([]store.DeadLetter, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var results []store.DeadLetter
	for _, dl := range m.deadLetters {
		if dl.Consumer == consumer {
			results = append(results, dl)
		}
	}
	return results, nil
}

// Checkpoint returns the committed checkpoint for a consumer.
func (m *MockRecipientGraph) Checkpoint(consumer string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.checkpoints[consumer]
}

// MockFeedStore is a mock implementation of store.FeedStore.
type MockFeedStore struct {
	mu      sync.RWMutex
	entries map[string]*store.FeedEntry // keyed by recipientID + "\x00" + contentID

	// Track calls
	UpsertCalls int

	// Error injection
	UpsertError   error
	ListError     error
	DeleteError   error
	TruncateError error
}

// NewMockFeedStore creates a new mock feed store.
func NewMockFeedStore() *MockFeedStore {
	return &MockFeedStore{
		entries: make(map[string]*store.FeedEntry),
	}
}

func feedKey(recipientID, contentID string) string {
	return recipientID + "\x00" + contentID
}

func (m *MockFeedStore) Upsert(ctx context.Context, entry *store.FeedEntry) error {
	if m.UpsertError != nil {
		return m.UpsertError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UpsertCalls++
	cp := *entry
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	m.entries[feedKey(entry.RecipientID, entry.ContentID)] = &cp
	return nil
}

func (m *MockFeedStore) List(ctx context.Context, recipientID string, before time.Time, limit int) ([]store.FeedEntry, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var results []store.FeedEntry
	for _, entry := range m.entries {
		if entry.RecipientID != recipientID {
			continue
		}
		if !before.IsZero() && !entry.EdgeCreatedAt.Before(before) {
			continue
		}
		results = append(results, *entry)
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].EdgeCreatedAt.After(results[j].EdgeCreatedAt)
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (m *MockFeedStore) DeleteByContent(ctx context.Context, contentID string) (int, error) {
	if m.DeleteError != nil {
		return 0, m.DeleteError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for key, entry := range m.entries {
		if entry.ContentID == contentID {
			delete(m.entries, key)
			count++
		}
	}
	return count, nil
}

func (m *MockFeedStore) Truncate(ctx context.Context) error {
	if m.TruncateError != nil {
		return m.TruncateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]*store.FeedEntry)
	return nil
}

// Len returns the number of feed entries.
func (m *MockFeedStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Get returns a feed entry by recipient and content, or nil.
func (m *MockFeedStore) Get(recipientID, contentID string) *store.FeedEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.entries[feedKey(recipientID, contentID)]
	if !ok {
		return nil
	}
	cp := *entry
	return &cp
}

// MockFriendshipStore is a mock implementation of store.FriendshipStore.
type MockFriendshipStore struct {
	mu          sync.RWMutex
	friendships map[string]*store.Friendship // keyed by canonical pair

	// Error injection
	CreateError  error
	GetError     error
	AcceptError  error
	FriendsError error
}

// NewMockFriendshipStore creates a new mock friendship store.
func NewMockFriendshipStore() *MockFriendshipStore {
	return &MockFriendshipStore{
		friendships: make(map[string]*store.Friendship),
	}
}

func pairKey(userA, userB string) string {
	low, high := store.CanonicalPair(userA, userB)
	return low + "\x00" + high
}

// AddAccepted seeds an accepted friendship between two users.
func (m *MockFriendshipStore) AddAccepted(userA, userB string, acceptedAt time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	low, high := store.CanonicalPair(userA, userB)
	m.friendships[pairKey(userA, userB)] = &store.Friendship{
		ID:          store.FriendshipID(userA, userB),
		UserLow:     low,
		UserHigh:    high,
		RequesterID: userA,
		Status:      store.FriendshipAccepted,
		RequestedAt: acceptedAt,
		AcceptedAt:  &acceptedAt,
	}
}

func (m *MockFriendshipStore) Create(ctx context.Context, friendship *store.Friendship) (*store.Friendship, error) {
	if m.CreateError != nil {
		return nil, m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := pairKey(friendship.UserLow, friendship.UserHigh)
	if existing, ok := m.friendships[key]; ok {
		cp := *existing
		return &cp, nil
	}
	cp := *friendship
	if cp.RequestedAt.IsZero() {
		cp.RequestedAt = time.Now()
	}
	m.friendships[key] = &cp
	out := cp
	return &out, nil
}

func (m *MockFriendshipStore) Get(ctx context.Context, userA, userB string) (*store.Friendship, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	friendship, ok := m.friendships[pairKey(userA, userB)]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *friendship
	return &cp, nil
}

func (m *MockFriendshipStore) GetByID(ctx context.Context, id string) (*store.Friendship, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, friendship := range m.friendships {
		if friendship.ID == id {
			cp := *friendship
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *MockFriendshipStore) Accept(ctx context.Context, id string) (*store.Friendship, error) {
	if m.AcceptError != nil {
		return nil, m.AcceptError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, friendship := range m.friendships {
		if friendship.ID != id {
			continue
		}
		if friendship.Status == store.FriendshipPending {
			now := time.Now()
			friendship.Status = store.FriendshipAccepted
			friendship.AcceptedAt = &now
		}
		cp := *friendship
		return &cp, nil
	}
	return nil, store.ErrNotFound
}

func (m *MockFriendshipStore) AreFriends(ctx context.Context, userA, userB string) (bool, error) {
	if m.FriendsError != nil {
		return false, m.FriendsError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	friendship, ok := m.friendships[pairKey(userA, userB)]
	return ok && friendship.Status == store.FriendshipAccepted, nil
}

func (m *MockFriendshipStore) AcceptedFriends(ctx context.Context, userID string) (map[string]time.Time, error) {
	if m.FriendsError != nil {
		return nil, m.FriendsError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	friends := make(map[string]time.Time)
	for _, friendship := range m.friendships {
		if friendship.Status != store.FriendshipAccepted || friendship.AcceptedAt == nil {
			continue
		}
		if friendship.UserLow == userID {
			friends[friendship.UserHigh] = *friendship.AcceptedAt
		} else if friendship.UserHigh == userID {
			friends[friendship.UserLow] = *friendship.AcceptedAt
		}
	}
	return friends, nil
}

// MockContentStore is a mock implementation of store.ContentStore.
type MockContentStore struct {
	mu      sync.RWMutex
	content map[string]*store.Content

	// Error injection
	CreateError   error
	GetError      error
	SetStateError error
	ListError     error
}

// NewMockContentStore creates a new mock content store.
func NewMockContentStore() *MockContentStore {
	return &MockContentStore{
		content: make(map[string]*store.Content),
	}
}

// AddContent seeds a content row.
func (m *MockContentStore) AddContent(content store.Content) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.content[content.ID] = &content
}

func (m *MockContentStore) Create(ctx context.Context, content *store.Content) error {
	if m.CreateError != nil {
		return m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.content[content.ID]; ok {
		return nil
	}
	cp := *content
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	m.content[content.ID] = &cp
	return nil
}

func (m *MockContentStore) Get(ctx context.Context, id string) (*store.Content, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	content, ok := m.content[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *content
	return &cp, nil
}

func (m *MockContentStore) SetState(ctx context.Context, id string, state store.ContentState) error {
	if m.SetStateError != nil {
		return m.SetStateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	content, ok := m.content[id]
	if !ok {
		return store.ErrNotFound
	}
	content.State = state
	content.UpdatedAt = time.Now()
	return nil
}

func (m *MockContentStore) ListByOwner(ctx context.Context, ownerID string) ([]store.Content, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var results []store.Content
	for _, content := range m.content {
		if content.OwnerID == ownerID && content.State != store.ContentDeleted {
			results = append(results, *content)
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].CreatedAt.After(results[j].CreatedAt) })
	return results, nil
}

func (m *MockContentStore) SoftDelete(ctx context.Context, id string) error {
	return m.SetState(ctx, id, store.ContentDeleted)
}

func (m *MockContentStore) ListByState(ctx context.Context, state store.ContentState, afterID string, limit int) ([]store.Content, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var results []store.Content
	for _, content := range m.content {
		if content.State == state && content.ID > afterID {
			results = append(results, *content)
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].ID < results[j].ID })
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// MockEnrollmentStore is a mock implementation of store.EnrollmentStore.
type MockEnrollmentStore struct {
	mu          sync.RWMutex
	enrollments map[string]*store.Enrollment

	// Error injection
	SaveError error
	GetError  error
	AllError  error
}

// NewMockEnrollmentStore creates a new mock enrollment store.
func NewMockEnrollmentStore() *MockEnrollmentStore {
	return &MockEnrollmentStore{
		enrollments: make(map[string]*store.Enrollment),
	}
}

func (m *MockEnrollmentStore) Save(ctx context.Context, enrollment *store.Enrollment) error {
	if m.SaveError != nil {
		return m.SaveError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *enrollment
	if cp.EnrolledAt.IsZero() {
		cp.EnrolledAt = time.Now()
	}
	m.enrollments[enrollment.UserID] = &cp
	return nil
}

func (m *MockEnrollmentStore) Get(ctx context.Context, userID string) (*store.Enrollment, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	enrollment, ok := m.enrollments[userID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *enrollment
	return &cp, nil
}

func (m *MockEnrollmentStore) All(ctx context.Context) ([]store.Enrollment, error) {
	if m.AllError != nil {
		return nil, m.AllError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var results []store.Enrollment
	for _, enrollment := range m.enrollments {
		results = append(results, *enrollment)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].UserID < results[j].UserID })
	return results, nil
}

// MockEventStore is a mock implementation of store.EventStore.
type MockEventStore struct {
	mu      sync.RWMutex
	events  map[string]*store.Event
	members map[string][]store.EventMember // keyed by eventID
	content *MockContentStore

	// Error injection
	CreateEventError error
	GetEventError    error
	InviteError      error
	AcceptError      error
	MembersError     error
}

// NewMockEventStore creates a new mock event store. The content store is used
// by ListEventContent; pass nil if the test does not list event content.
func NewMockEventStore(content *MockContentStore) *MockEventStore {
	return &MockEventStore{
		events:  make(map[string]*store.Event),
		members: make(map[string][]store.EventMember),
		content: content,
	}
}

func (m *MockEventStore) CreateEvent(ctx context.Context, event *store.Event) error {
	if m.CreateEventError != nil {
		return m.CreateEventError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *event
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	m.events[event.ID] = &cp
	now := time.Now()
	m.members[event.ID] = append(m.members[event.ID], store.EventMember{
		EventID:   event.ID,
		UserID:    event.OwnerID,
		Status:    store.MemberAccepted,
		InvitedAt: now,
		JoinedAt:  &now,
	})
	return nil
}

func (m *MockEventStore) GetEvent(ctx context.Context, id string) (*store.Event, error) {
	if m.GetEventError != nil {
		return nil, m.GetEventError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	event, ok := m.events[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *event
	return &cp, nil
}

func (m *MockEventStore) Invite(ctx context.Context, eventID, userID string) error {
	if m.InviteError != nil {
		return m.InviteError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, member := range m.members[eventID] {
		if member.UserID == userID {
			return nil
		}
	}
	m.members[eventID] = append(m.members[eventID], store.EventMember{
		EventID:   eventID,
		UserID:    userID,
		Status:    store.MemberInvited,
		InvitedAt: time.Now(),
	})
	return nil
}

func (m *MockEventStore) AcceptInvite(ctx context.Context, eventID, userID string) error {
	if m.AcceptError != nil {
		return m.AcceptError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	members := m.members[eventID]
	for i := range members {
		if members[i].UserID == userID {
			if members[i].Status == store.MemberInvited {
				now := time.Now()
				members[i].Status = store.MemberAccepted
				members[i].JoinedAt = &now
			}
			return nil
		}
	}
	return store.ErrNotFound
}

func (m *MockEventStore) AcceptedMembers(ctx context.Context, eventID string) ([]string, error) {
	if m.MembersError != nil {
		return nil, m.MembersError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []string
	for _, member := range m.members[eventID] {
		if member.Status == store.MemberAccepted {
			ids = append(ids, member.UserID)
		}
	}
	return ids, nil
}

func (m *MockEventStore) IsAcceptedMember(ctx context.Context, eventID, userID string) (bool, error) {
	if m.MembersError != nil {
		return false, m.MembersError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, member := range m.members[eventID] {
		if member.UserID == userID && member.Status == store.MemberAccepted {
			return true, nil
		}
	}
	return false, nil
}

func (m *MockEventStore) ListEventContent(ctx context.Context, eventID string) ([]store.Content, error) {
	if m.content == nil {
		return nil, nil
	}
	m.content.mu.RLock()
	defer m.content.mu.RUnlock()
	var results []store.Content
	for _, content := range m.content.content {
		if content.EventID != nil && *content.EventID == eventID && content.State != store.ContentDeleted {
			results = append(results, *content)
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].CreatedAt.Before(results[j].CreatedAt) })
	return results, nil
}

// MockWorkQueue is a mock implementation of store.WorkQueue and
// store.CheckpointStore. A claimed task stays in the queue but is invisible
// to further claims until it is completed, failed, or its claim is expired
// via ExpireClaims.
type MockWorkQueue struct {
	mu           sync.Mutex
	ingest       []*store.IngestTask
	retro        []*store.RetroTask
	ingestClaims map[int64]bool
	retroClaims  map[int64]bool
	checkpoints  map[string]string
	nextID       int64

	// Error injection
	EnqueueError    error
	ClaimError      error
	CheckpointError error
}

// NewMockWorkQueue creates a new mock work queue.
func NewMockWorkQueue() *MockWorkQueue {
	return &MockWorkQueue{
		ingestClaims: make(map[int64]bool),
		retroClaims:  make(map[int64]bool),
		checkpoints:  make(map[string]string),
	}
}

func (m *MockWorkQueue) EnqueueIngest(ctx context.Context, contentID string) error {
	if m.EnqueueError != nil {
		return m.EnqueueError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.ingest = append(m.ingest, &store.IngestTask{ID: m.nextID, ContentID: contentID, CreatedAt: time.Now()})
	return nil
}

func (m *MockWorkQueue) ClaimIngest(ctx context.Context) (*store.IngestTask, error) {
	if m.ClaimError != nil {
		return nil, m.ClaimError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, task := range m.ingest {
		if m.ingestClaims[task.ID] {
			continue
		}
		m.ingestClaims[task.ID] = true
		cp := *task
		return &cp, nil
	}
	return nil, nil
}

func (m *MockWorkQueue) CompleteIngest(ctx context.Context, taskID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeIngest(taskID)
	return nil
}

func (m *MockWorkQueue) FailIngest(ctx context.Context, taskID int64, attempts, maxAttempts int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if attempts+1 >= maxAttempts {
		m.removeIngest(taskID)
		return true, nil
	}
	for _, task := range m.ingest {
		if task.ID == taskID {
			task.Attempts = attempts + 1
		}
	}
	delete(m.ingestClaims, taskID)
	return false, nil
}

func (m *MockWorkQueue) removeIngest(taskID int64) {
	for i, task := range m.ingest {
		if task.ID == taskID {
			m.ingest = append(m.ingest[:i], m.ingest[i+1:]...)
			break
		}
	}
	delete(m.ingestClaims, taskID)
}

func (m *MockWorkQueue) EnqueueRetro(ctx context.Context, userA, userB string) error {
	if m.EnqueueError != nil {
		return m.EnqueueError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	low, high := store.CanonicalPair(userA, userB)
	for _, task := range m.retro {
		if task.UserLow == low && task.UserHigh == high {
			return nil
		}
	}
	m.nextID++
	m.retro = append(m.retro, &store.RetroTask{ID: m.nextID, UserLow: low, UserHigh: high})
	return nil
}

func (m *MockWorkQueue) ClaimRetro(ctx context.Context) (*store.RetroTask, error) {
	if m.ClaimError != nil {
		return nil, m.ClaimError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, task := range m.retro {
		if m.retroClaims[task.ID] {
			continue
		}
		m.retroClaims[task.ID] = true
		cp := *task
		return &cp, nil
	}
	return nil, nil
}

func (m *MockWorkQueue) CompleteRetro(ctx context.Context, taskID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeRetro(taskID)
	return nil
}

func (m *MockWorkQueue) FailRetro(ctx context.Context, taskID int64, attempts, maxAttempts int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if attempts+1 >= maxAttempts {
		m.removeRetro(taskID)
		return true, nil
	}
	for _, task := range m.retro {
		if task.ID == taskID {
			task.Attempts = attempts + 1
		}
	}
	delete(m.retroClaims, taskID)
	return false, nil
}

func (m *MockWorkQueue) removeRetro(taskID int64) {
	for i, task := range m.retro {
		if task.ID == taskID {
			m.retro = append(m.retro[:i], m.retro[i+1:]...)
			break
		}
	}
	delete(m.retroClaims, taskID)
}

// ExpireClaims releases every outstanding claim, standing in for the claim
// visibility timeout passing.
func (m *MockWorkQueue) ExpireClaims() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ingestClaims = make(map[int64]bool)
	m.retroClaims = make(map[int64]bool)
}

// PendingIngest returns the number of queued ingest tasks.
func (m *MockWorkQueue) PendingIngest() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.ingest)
}

// PendingRetro returns the number of queued retro tasks.
func (m *MockWorkQueue) PendingRetro() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.retro)
}

func (m *MockWorkQueue) GetCheckpoint(ctx context.Context, key string) (string, error) {
	if m.CheckpointError != nil {
		return "", m.CheckpointError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.checkpoints[key], nil
}

func (m *MockWorkQueue) SetCheckpoint(ctx context.Context, key, value string) error {
	if m.CheckpointError != nil {
		return m.CheckpointError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkpoints[key] = value
	return nil
}

func (m *MockWorkQueue) ClearCheckpoint(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.checkpoints, key)
	return nil
}

func cosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 1
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
}

// Verify interface compliance
var _ store.IdentityStore = (*MockIdentityStore)(nil)
var _ store.FaceIndex = (*MockFaceIndex)(nil)
var _ store.RecipientGraph = (*MockRecipientGraph)(nil)
var _ store.ChangeFeed = (*MockRecipientGraph)(nil)
var _ store.FeedStore = (*MockFeedStore)(nil)
var _ store.FriendshipStore = (*MockFriendshipStore)(nil)
var _ store.ContentStore = (*MockContentStore)(nil)
var _ store.EnrollmentStore = (*MockEnrollmentStore)(nil)
var _ store.EventStore = (*MockEventStore)(nil)
var _ store.WorkQueue = (*MockWorkQueue)(nil)
var _ store.CheckpointStore = (*MockWorkQueue)(nil)
