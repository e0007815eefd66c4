package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/facefeed/facefeed/internal/store"
)

// FeedRepository implements store.FeedStore on PostgreSQL.
type FeedRepository struct {
	pool *Pool
}

func NewFeedRepository(pool *Pool) *FeedRepository {
	return &FeedRepository{pool: pool}
}

// Upsert writes a feed entry keyed by (recipient, content). The update branch
// makes redelivered change-feed records converge on the same state.
func (r *FeedRepository) Upsert(ctx context.Context, entry *store.FeedEntry) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO feed_entries
			(recipient_id, content_id, owner_id, object_key, media_type, method, confidence, edge_created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (recipient_id, content_id) DO UPDATE SET
			object_key = EXCLUDED.object_key,
			media_type = EXCLUDED.media_type,
			method = EXCLUDED.method,
			confidence = EXCLUDED.confidence,
			edge_created_at = EXCLUDED.edge_created_at
	`, entry.RecipientID, entry.ContentID, entry.OwnerID, entry.ObjectKey,
		entry.MediaType, entry.Method, entry.Confidence, entry.EdgeCreatedAt)
	if err != nil {
		return fmt.Errorf("upsert feed entry: %w", err)
	}
	return nil
}

// List returns a recipient's feed ordered by edge creation time descending,
// with keyset pagination on edge_created_at.
func (r *FeedRepository) List(ctx context.Context, recipientID string, before time.Time, limit int) ([]store.FeedEntry, error) {
	query := `
		SELECT recipient_id, content_id, owner_id, object_key, media_type, method, confidence, edge_created_at, created_at
		FROM feed_entries
		WHERE recipient_id = $1`
	args := []any{recipientID}
	if !before.IsZero() {
		query += ` AND edge_created_at < $2`
		args = append(args, before)
	}
	query += fmt.Sprintf(` ORDER BY edge_created_at DESC LIMIT %d`, limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list feed: %w", err)
	}
	defer rows.Close()

	var entries []store.FeedEntry
	for rows.Next() {
		var entry store.FeedEntry
		if err := rows.Scan(&entry.RecipientID, &entry.ContentID, &entry.OwnerID, &entry.ObjectKey,
			&entry.MediaType, &entry.Method, &entry.Confidence, &entry.EdgeCreatedAt, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan feed entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (r *FeedRepository) DeleteByContent(ctx context.Context, contentID string) (int, error) {
	result, err := r.pool.Exec(ctx, `DELETE FROM feed_entries WHERE content_id = $1`, contentID)
	if err != nil {
		return 0, fmt.Errorf("delete feed entries: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete feed entries: %w", err)
	}
	return int(affected), nil
}

// Truncate drops the projection. Safe because the feed is derived state.
func (r *FeedRepository) Truncate(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, `TRUNCATE feed_entries`); err != nil {
		return fmt.Errorf("truncate feed: %w", err)
	}
	return nil
}
