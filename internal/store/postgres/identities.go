package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/facefeed/facefeed/internal/store"
	"github.com/pgvector/pgvector-go"
)

// IdentityRepository implements store.IdentityStore on PostgreSQL.
type IdentityRepository struct {
	pool *Pool
}

func NewIdentityRepository(pool *Pool) *IdentityRepository {
	return &IdentityRepository{pool: pool}
}

const identityColumns = `id, owner_id, signature, status, resolved_user_id,
	first_seen_content_id, last_seen_content_id, detection_count, created_at, updated_at`

func scanIdentity(row interface{ Scan(...any) error }) (*store.FaceIdentity, error) {
	var identity store.FaceIdentity
	var vec pgvector.Vector
	err := row.Scan(
		&identity.ID,
		&identity.OwnerID,
		&vec,
		&identity.Status,
		&identity.ResolvedUserID,
		&identity.FirstSeenContentID,
		&identity.LastSeenContentID,
		&identity.DetectionCount,
		&identity.CreatedAt,
		&identity.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	identity.Signature = vec.Slice()
	return &identity, nil
}

// Get retrieves a face identity by id.
func (r *IdentityRepository) Get(ctx context.Context, id string) (*store.FaceIdentity, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+identityColumns+` FROM face_identities WHERE id = $1`, id)
	identity, err := scanIdentity(row)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get face identity: %w", err)
	}
	return identity, nil
}

// Create inserts a new identity; an existing id is left untouched.
func (r *IdentityRepository) Create(ctx context.Context, identity *store.FaceIdentity) error {
	vec := pgvector.NewVector(identity.Signature)
	_, err := r.pool.Exec(ctx, `
		INSERT INTO face_identities
			(id, owner_id, signature, status, resolved_user_id,
			 first_seen_content_id, last_seen_content_id, detection_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING
	`, identity.ID, identity.OwnerID, vec, identity.Status, identity.ResolvedUserID,
		identity.FirstSeenContentID, identity.LastSeenContentID, identity.DetectionCount)
	if err != nil {
		return fmt.Errorf("create face identity: %w", err)
	}
	return nil
}

// NearestByOwner finds the owner's identities closest to the signature using
// cosine distance, nearest first.
func (r *IdentityRepository) NearestByOwner(ctx context.Context, ownerID string, signature []float32, limit int) ([]store.FaceIdentity, []float64, error) {
	vec := pgvector.NewVector(signature)
	rows, err := r.pool.Query(ctx, `
		SELECT `+identityColumns+`, signature <=> $2 AS distance
		FROM face_identities
		WHERE owner_id = $1
		ORDER BY signature <=> $2
		LIMIT $3
	`, ownerID, vec, limit)
	if err != nil {
		return nil, nil, fmt.Errorf("nearest identities: %w", err)
	}
	defer rows.Close()

	var identities []store.FaceIdentity
	var distances []float64
	for rows.Next() {
		var identity store.FaceIdentity
		var v pgvector.Vector
		var distance float64
		if err := rows.Scan(
			&identity.ID, &identity.OwnerID, &v, &identity.Status, &identity.ResolvedUserID,
			&identity.FirstSeenContentID, &identity.LastSeenContentID, &identity.DetectionCount,
			&identity.CreatedAt, &identity.UpdatedAt, &distance,
		); err != nil {
			return nil, nil, fmt.Errorf("scan identity: %w", err)
		}
		identity.Signature = v.Slice()
		identities = append(identities, identity)
		distances = append(distances, distance)
	}
	return identities, distances, rows.Err()
}

// ListUnknownByOwner pages unknown identities ordered by id after afterID.
func (r *IdentityRepository) ListUnknownByOwner(ctx context.Context, ownerID, afterID string, limit int) ([]store.FaceIdentity, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+identityColumns+`
		FROM face_identities
		WHERE owner_id = $1 AND status = 'unknown' AND id::text > $2
		ORDER BY id
		LIMIT $3
	`, ownerID, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("list unknown identities: %w", err)
	}
	defer rows.Close()

	var identities []store.FaceIdentity
	for rows.Next() {
		identity, err := scanIdentity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		identities = append(identities, *identity)
	}
	return identities, rows.Err()
}

// Resolve transitions unknown -> resolved(userID) exactly once. The guard in
// the WHERE clause makes re-resolution to the same user a no-op; resolution to
// a different user finds zero rows and is rejected as an integrity anomaly.
func (r *IdentityRepository) Resolve(ctx context.Context, id, userID string) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE face_identities
		SET status = 'resolved', resolved_user_id = $2, updated_at = NOW()
		WHERE id = $1 AND (status = 'unknown' OR resolved_user_id = $2)
	`, id, userID)
	if err != nil {
		return fmt.Errorf("resolve face identity: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("resolve face identity: %w", err)
	}
	if affected == 0 {
		var exists bool
		if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM face_identities WHERE id = $1)`, id).Scan(&exists); err != nil {
			return fmt.Errorf("resolve face identity: %w", err)
		}
		if !exists {
			return store.ErrNotFound
		}
		return store.ErrAlreadyResolved
	}
	return nil
}

// RecordDetection bumps the detection count and last-seen content.
func (r *IdentityRepository) RecordDetection(ctx context.Context, id, contentID string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE face_identities
		SET detection_count = detection_count + 1, last_seen_content_id = $2, updated_at = NOW()
		WHERE id = $1
	`, id, contentID)
	if err != nil {
		return fmt.Errorf("record detection: %w", err)
	}
	return nil
}
