package postgres

import (
	"context"
	"fmt"

	"github.com/facefeed/facefeed/internal/store"
	"github.com/lib/pq"
)

// FaceIndexRepository implements store.FaceIndex on PostgreSQL.
type FaceIndexRepository struct {
	pool *Pool
}

func NewFaceIndexRepository(pool *Pool) *FaceIndexRepository {
	return &FaceIndexRepository{pool: pool}
}

// Put writes a content face keyed by its deterministic id. Replays hit the
// conflict clause and create nothing.
func (r *FaceIndexRepository) Put(ctx context.Context, face *store.ContentFace) (bool, error) {
	result, err := r.pool.Exec(ctx, `
		INSERT INTO content_faces (id, content_id, face_identity_id, bbox, confidence)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT DO NOTHING
	`, face.ID, face.ContentID, face.FaceIdentityID, pq.Array(face.BBox), face.Confidence)
	if err != nil {
		return false, fmt.Errorf("put content face: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("put content face: %w", err)
	}
	return affected > 0, nil
}

func (r *FaceIndexRepository) list(ctx context.Context, where string, arg any) ([]store.ContentFace, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, content_id, face_identity_id, bbox, confidence, created_at
		FROM content_faces
		WHERE `+where+`
		ORDER BY created_at
	`, arg)
	if err != nil {
		return nil, fmt.Errorf("list content faces: %w", err)
	}
	defer rows.Close()

	var faces []store.ContentFace
	for rows.Next() {
		var face store.ContentFace
		if err := rows.Scan(&face.ID, &face.ContentID, &face.FaceIdentityID,
			pq.Array(&face.BBox), &face.Confidence, &face.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan content face: %w", err)
		}
		faces = append(faces, face)
	}
	return faces, rows.Err()
}

// ListByContent retrieves all faces detected in a content item.
func (r *FaceIndexRepository) ListByContent(ctx context.Context, contentID string) ([]store.ContentFace, error) {
	return r.list(ctx, "content_id = $1", contentID)
}

// ListByIdentity is the reverse index: every content item a face identity
// appears in. Retroactive matching fans out over this.
func (r *FaceIndexRepository) ListByIdentity(ctx context.Context, faceIdentityID string) ([]store.ContentFace, error) {
	return r.list(ctx, "face_identity_id = $1", faceIdentityID)
}
