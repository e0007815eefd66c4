package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/facefeed/facefeed/internal/store"
	"github.com/pgvector/pgvector-go"
)

// EnrollmentRepository implements store.EnrollmentStore on PostgreSQL.
type EnrollmentRepository struct {
	pool *Pool
}

func NewEnrollmentRepository(pool *Pool) *EnrollmentRepository {
	return &EnrollmentRepository{pool: pool}
}

// Save upserts the user's profile signature. Re-enrolling replaces it.
func (r *EnrollmentRepository) Save(ctx context.Context, enrollment *store.Enrollment) error {
	vec := pgvector.NewVector(enrollment.Signature)
	_, err := r.pool.Exec(ctx, `
		INSERT INTO enrollments (user_id, signature)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET signature = EXCLUDED.signature, enrolled_at = NOW()
	`, enrollment.UserID, vec)
	if err != nil {
		return fmt.Errorf("save enrollment: %w", err)
	}
	return nil
}

func (r *EnrollmentRepository) Get(ctx context.Context, userID string) (*store.Enrollment, error) {
	var e store.Enrollment
	var vec pgvector.Vector
	err := r.pool.QueryRow(ctx, `
		SELECT user_id, signature, enrolled_at FROM enrollments WHERE user_id = $1
	`, userID).Scan(&e.UserID, &vec, &e.EnrolledAt)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get enrollment: %w", err)
	}
	e.Signature = vec.Slice()
	return &e, nil
}

// All returns every enrollment, used to build the in-memory candidate index
// at worker startup.
func (r *EnrollmentRepository) All(ctx context.Context) ([]store.Enrollment, error) {
	rows, err := r.pool.Query(ctx, `SELECT user_id, signature, enrolled_at FROM enrollments`)
	if err != nil {
		return nil, fmt.Errorf("list enrollments: %w", err)
	}
	defer rows.Close()

	var enrollments []store.Enrollment
	for rows.Next() {
		var e store.Enrollment
		var vec pgvector.Vector
		if err := rows.Scan(&e.UserID, &vec, &e.EnrolledAt); err != nil {
			return nil, fmt.Errorf("scan enrollment: %w", err)
		}
		e.Signature = vec.Slice()
		enrollments = append(enrollments, e)
	}
	return enrollments, rows.Err()
}
