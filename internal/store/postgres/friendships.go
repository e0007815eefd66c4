package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/facefeed/facefeed/internal/store"
)

// FriendshipRepository implements store.FriendshipStore on PostgreSQL.
type FriendshipRepository struct {
	pool *Pool
}

func NewFriendshipRepository(pool *Pool) *FriendshipRepository {
	return &FriendshipRepository{pool: pool}
}

const friendshipColumns = `id, user_low, user_high, requester_id, status, requested_at, accepted_at`

func scanFriendship(row interface{ Scan(...any) error }) (*store.Friendship, error) {
	var f store.Friendship
	err := row.Scan(&f.ID, &f.UserLow, &f.UserHigh, &f.RequesterID, &f.Status, &f.RequestedAt, &f.AcceptedAt)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// Create inserts a pending request for the canonical pair. If an edge already
// exists for the pair it is returned unchanged.
func (r *FriendshipRepository) Create(ctx context.Context, friendship *store.Friendship) (*store.Friendship, error) {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO friendships (id, user_low, user_high, requester_id, status)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_low, user_high) DO NOTHING
	`, friendship.ID, friendship.UserLow, friendship.UserHigh, friendship.RequesterID, friendship.Status)
	if err != nil {
		return nil, fmt.Errorf("create friendship: %w", err)
	}
	return r.Get(ctx, friendship.UserLow, friendship.UserHigh)
}

func (r *FriendshipRepository) Get(ctx context.Context, userA, userB string) (*store.Friendship, error) {
	low, high := store.CanonicalPair(userA, userB)
	row := r.pool.QueryRow(ctx, `SELECT `+friendshipColumns+` FROM friendships WHERE user_low = $1 AND user_high = $2`, low, high)
	f, err := scanFriendship(row)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get friendship: %w", err)
	}
	return f, nil
}

func (r *FriendshipRepository) GetByID(ctx context.Context, id string) (*store.Friendship, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+friendshipColumns+` FROM friendships WHERE id = $1`, id)
	f, err := scanFriendship(row)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get friendship: %w", err)
	}
	return f, nil
}

// Accept transitions pending -> accepted exactly once. The guard keeps the
// original accepted_at when the acceptance event is delivered twice.
func (r *FriendshipRepository) Accept(ctx context.Context, id string) (*store.Friendship, error) {
	_, err := r.pool.Exec(ctx, `
		UPDATE friendships SET status = 'accepted', accepted_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`, id)
	if err != nil {
		return nil, fmt.Errorf("accept friendship: %w", err)
	}
	return r.GetByID(ctx, id)
}

func (r *FriendshipRepository) AreFriends(ctx context.Context, userA, userB string) (bool, error) {
	low, high := store.CanonicalPair(userA, userB)
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM friendships WHERE user_low = $1 AND user_high = $2 AND status = 'accepted')
	`, low, high).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check friendship: %w", err)
	}
	return exists, nil
}

// AcceptedFriends maps friend id -> acceptance time for a user.
func (r *FriendshipRepository) AcceptedFriends(ctx context.Context, userID string) (map[string]time.Time, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT user_low, user_high, accepted_at
		FROM friendships
		WHERE (user_low = $1 OR user_high = $1) AND status = 'accepted'
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list accepted friends: %w", err)
	}
	defer rows.Close()

	friends := make(map[string]time.Time)
	for rows.Next() {
		var low, high string
		var acceptedAt time.Time
		if err := rows.Scan(&low, &high, &acceptedAt); err != nil {
			return nil, fmt.Errorf("scan friendship: %w", err)
		}
		if low == userID {
			friends[high] = acceptedAt
		} else {
			friends[low] = acceptedAt
		}
	}
	return friends, rows.Err()
}
