package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/facefeed/facefeed/internal/store"
)

// EventRepository implements store.EventStore on PostgreSQL.
type EventRepository struct {
	pool *Pool
}

func NewEventRepository(pool *Pool) *EventRepository {
	return &EventRepository{pool: pool}
}

func (r *EventRepository) CreateEvent(ctx context.Context, event *store.Event) error {
	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO events (id, owner_id, name, slug) VALUES ($1, $2, $3, $4)
	`, event.ID, event.OwnerID, event.Name, event.Slug); err != nil {
		return fmt.Errorf("create event: %w", err)
	}
	// The creator is an accepted member from the start.
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO event_members (event_id, user_id, status, joined_at) VALUES ($1, $2, 'accepted', NOW())
	`, event.ID, event.OwnerID); err != nil {
		return fmt.Errorf("add event owner: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit event: %w", err)
	}
	return nil
}

func (r *EventRepository) GetEvent(ctx context.Context, id string) (*store.Event, error) {
	var e store.Event
	err := r.pool.QueryRow(ctx, `
		SELECT id, owner_id, name, slug, created_at FROM events WHERE id = $1
	`, id).Scan(&e.ID, &e.OwnerID, &e.Name, &e.Slug, &e.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}
	return &e, nil
}

func (r *EventRepository) Invite(ctx context.Context, eventID, userID string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_members (event_id, user_id, status) VALUES ($1, $2, 'invited')
		ON CONFLICT (event_id, user_id) DO NOTHING
	`, eventID, userID)
	if err != nil {
		return fmt.Errorf("invite member: %w", err)
	}
	return nil
}

// AcceptInvite transitions invited -> accepted; a second acceptance finds no
// invited row and is a no-op.
func (r *EventRepository) AcceptInvite(ctx context.Context, eventID, userID string) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE event_members SET status = 'accepted', joined_at = NOW()
		WHERE event_id = $1 AND user_id = $2 AND status = 'invited'
	`, eventID, userID)
	if err != nil {
		return fmt.Errorf("accept invite: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("accept invite: %w", err)
	}
	if affected == 0 {
		var exists bool
		if err := r.pool.QueryRow(ctx, `
			SELECT EXISTS(SELECT 1 FROM event_members WHERE event_id = $1 AND user_id = $2)
		`, eventID, userID).Scan(&exists); err != nil {
			return fmt.Errorf("accept invite: %w", err)
		}
		if !exists {
			return store.ErrNotFound
		}
	}
	return nil
}

func (r *EventRepository) AcceptedMembers(ctx context.Context, eventID string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT user_id FROM event_members WHERE event_id = $1 AND status = 'accepted'
	`, eventID)
	if err != nil {
		return nil, fmt.Errorf("list event members: %w", err)
	}
	defer rows.Close()

	var members []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, id)
	}
	return members, rows.Err()
}

func (r *EventRepository) IsAcceptedMember(ctx context.Context, eventID, userID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM event_members WHERE event_id = $1 AND user_id = $2 AND status = 'accepted')
	`, eventID, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check membership: %w", err)
	}
	return exists, nil
}

func (r *EventRepository) ListEventContent(ctx context.Context, eventID string) ([]store.Content, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+contentColumns+` FROM content
		WHERE event_id = $1 AND state != 'deleted'
		ORDER BY created_at
	`, eventID)
	if err != nil {
		return nil, fmt.Errorf("list event content: %w", err)
	}
	defer rows.Close()
	return collectContent(rows)
}
