package postgres

import (
	"context"
	"fmt"

	"github.com/facefeed/facefeed/internal/store"
)

// RecipientGraphRepository implements store.RecipientGraph on PostgreSQL.
type RecipientGraphRepository struct {
	pool *Pool
}

func NewRecipientGraphRepository(pool *Pool) *RecipientGraphRepository {
	return &RecipientGraphRepository{pool: pool}
}

// Grant inserts an edge and its change-feed event in one transaction. The
// deterministic id (and the unique triple constraint behind it) absorbs
// replays and concurrent duplicates: when the insert conflicts, no event is
// appended and created=false.
func (r *RecipientGraphRepository) Grant(ctx context.Context, edge *store.RecipientEdge) (bool, error) {
	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		INSERT INTO recipient_edges (id, content_id, recipient_id, owner_id, method, confidence, provenance)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT DO NOTHING
	`, edge.ID, edge.ContentID, edge.RecipientID, edge.OwnerID, edge.Method, edge.Confidence, edge.Provenance)
	if err != nil {
		return false, fmt.Errorf("insert recipient edge: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert recipient edge: %w", err)
	}
	if affected == 0 {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO edge_events (edge_id) VALUES ($1)`, edge.ID); err != nil {
		return false, fmt.Errorf("append edge event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit grant: %w", err)
	}
	return true, nil
}

// HasAccess reports whether at least one edge exists for the pair.
func (r *RecipientGraphRepository) HasAccess(ctx context.Context, contentID, recipientID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM recipient_edges WHERE content_id = $1 AND recipient_id = $2)
	`, contentID, recipientID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check access: %w", err)
	}
	return exists, nil
}

const edgeColumns = `id, content_id, recipient_id, owner_id, method, confidence, provenance, created_at`

func scanEdges(rows interface {
	Next() bool
	Scan(...any) error
	Err() error
}) ([]store.RecipientEdge, error) {
	var edges []store.RecipientEdge
	for rows.Next() {
		var edge store.RecipientEdge
		if err := rows.Scan(&edge.ID, &edge.ContentID, &edge.RecipientID, &edge.OwnerID,
			&edge.Method, &edge.Confidence, &edge.Provenance, &edge.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan recipient edge: %w", err)
		}
		edges = append(edges, edge)
	}
	return edges, rows.Err()
}

func (r *RecipientGraphRepository) ListByContent(ctx context.Context, contentID string) ([]store.RecipientEdge, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+edgeColumns+` FROM recipient_edges WHERE content_id = $1 ORDER BY created_at`, contentID)
	if err != nil {
		return nil, fmt.Errorf("list edges by content: %w", err)
	}
	defer rows.Close()
	return scanEdges(rows)
}

func (r *RecipientGraphRepository) ListByRecipient(ctx context.Context, recipientID string) ([]store.RecipientEdge, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+edgeColumns+` FROM recipient_edges WHERE recipient_id = $1 ORDER BY created_at DESC`, recipientID)
	if err != nil {
		return nil, fmt.Errorf("list edges by recipient: %w", err)
	}
	defer rows.Close()
	return scanEdges(rows)
}

// ListAll pages edges in (recipient, content) order for projection rebuilds.
func (r *RecipientGraphRepository) ListAll(ctx context.Context, afterRecipient, afterContent string, limit int) ([]store.RecipientEdge, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+edgeColumns+`
		FROM recipient_edges
		WHERE (recipient_id, content_id::text) > ($1, $2)
		ORDER BY recipient_id, content_id
		LIMIT $3
	`, afterRecipient, afterContent, limit)
	if err != nil {
		return nil, fmt.Errorf("list all edges: %w", err)
	}
	defer rows.Close()
	return scanEdges(rows)
}

func (r *RecipientGraphRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM recipient_edges`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count edges: %w", err)
	}
	return count, nil
}

// DeleteByContent removes every edge for a content item. Used by the
// reconcile pass after a soft delete; grants racing the delete are cleaned up
// by the next pass.
func (r *RecipientGraphRepository) DeleteByContent(ctx context.Context, contentID string) (int, error) {
	result, err := r.pool.Exec(ctx, `DELETE FROM recipient_edges WHERE content_id = $1`, contentID)
	if err != nil {
		return 0, fmt.Errorf("delete edges by content: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete edges by content: %w", err)
	}
	return int(affected), nil
}
