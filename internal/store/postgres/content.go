package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/facefeed/facefeed/internal/store"
)

// ContentRepository implements store.ContentStore on PostgreSQL.
type ContentRepository struct {
	pool *Pool
}

func NewContentRepository(pool *Pool) *ContentRepository {
	return &ContentRepository{pool: pool}
}

const contentColumns = `id, owner_id, event_id, object_key, media_type, state, created_at, updated_at`

func scanContent(row interface{ Scan(...any) error }) (*store.Content, error) {
	var c store.Content
	err := row.Scan(&c.ID, &c.OwnerID, &c.EventID, &c.ObjectKey, &c.MediaType, &c.State, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *ContentRepository) Create(ctx context.Context, content *store.Content) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO content (id, owner_id, event_id, object_key, media_type, state)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`, content.ID, content.OwnerID, content.EventID, content.ObjectKey, content.MediaType, content.State)
	if err != nil {
		return fmt.Errorf("create content: %w", err)
	}
	return nil
}

func (r *ContentRepository) Get(ctx context.Context, id string) (*store.Content, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+contentColumns+` FROM content WHERE id = $1`, id)
	c, err := scanContent(row)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get content: %w", err)
	}
	return c, nil
}

func (r *ContentRepository) SetState(ctx context.Context, id string, state store.ContentState) error {
	_, err := r.pool.Exec(ctx, `UPDATE content SET state = $2, updated_at = NOW() WHERE id = $1`, id, state)
	if err != nil {
		return fmt.Errorf("set content state: %w", err)
	}
	return nil
}

func (r *ContentRepository) ListByOwner(ctx context.Context, ownerID string) ([]store.Content, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+contentColumns+` FROM content
		WHERE owner_id = $1 AND state != 'deleted'
		ORDER BY created_at DESC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list content by owner: %w", err)
	}
	defer rows.Close()
	return collectContent(rows)
}

// SoftDelete marks the content deleted. Deletion never cascades inline; the
// reconcile pass removes edges and feed rows afterwards.
func (r *ContentRepository) SoftDelete(ctx context.Context, id string) error {
	return r.SetState(ctx, id, store.ContentDeleted)
}

func (r *ContentRepository) ListByState(ctx context.Context, state store.ContentState, afterID string, limit int) ([]store.Content, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+contentColumns+` FROM content WHERE state = $1 AND id > $2 ORDER BY id LIMIT $3
	`, state, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("list content by state: %w", err)
	}
	defer rows.Close()
	return collectContent(rows)
}

func collectContent(rows *sql.Rows) ([]store.Content, error) {
	var items []store.Content
	for rows.Next() {
		c, err := scanContent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan content: %w", err)
		}
		items = append(items, *c)
	}
	return items, rows.Err()
}
