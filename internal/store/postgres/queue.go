package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/facefeed/facefeed/internal/store"
)

// DefaultClaimTimeout bounds how long a claim stays exclusive. A worker that
// dies between claim and complete loses the claim after this long and the
// task is handed out again.
const DefaultClaimTimeout = 5 * time.Minute

// QueueRepository implements store.WorkQueue, store.ChangeFeed and
// store.CheckpointStore on PostgreSQL. Claims use SKIP LOCKED so horizontally
// scaled workers never hand the same task to two processes; claims older than
// the visibility timeout count as abandoned and become claimable again.
type QueueRepository struct {
	pool         *Pool
	claimTimeout time.Duration
}

func NewQueueRepository(pool *Pool, claimTimeout time.Duration) *QueueRepository {
	if claimTimeout <= 0 {
		claimTimeout = DefaultClaimTimeout
	}
	return &QueueRepository{pool: pool, claimTimeout: claimTimeout}
}

// ---- ingest queue ----

func (r *QueueRepository) EnqueueIngest(ctx context.Context, contentID string) error {
	if _, err := r.pool.Exec(ctx, `INSERT INTO ingest_queue (content_id) VALUES ($1)`, contentID); err != nil {
		return fmt.Errorf("enqueue ingest: %w", err)
	}
	return nil
}

func (r *QueueRepository) ClaimIngest(ctx context.Context) (*store.IngestTask, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE ingest_queue SET claimed_at = NOW()
		WHERE id = (
			SELECT id FROM ingest_queue
			WHERE claimed_at IS NULL OR claimed_at < NOW() - ($1 * interval '1 second')
			ORDER BY id
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, content_id, attempts, created_at
	`, r.claimTimeout.Seconds())
	var task store.IngestTask
	err := row.Scan(&task.ID, &task.ContentID, &task.Attempts, &task.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim ingest task: %w", err)
	}
	return &task, nil
}

func (r *QueueRepository) CompleteIngest(ctx context.Context, taskID int64) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM ingest_queue WHERE id = $1`, taskID); err != nil {
		return fmt.Errorf("complete ingest task: %w", err)
	}
	return nil
}

// FailIngest releases the claim with a bumped attempt count, or removes the
// task once attempts are exhausted.
func (r *QueueRepository) FailIngest(ctx context.Context, taskID int64, attempts, maxAttempts int) (bool, error) {
	if attempts+1 >= maxAttempts {
		if _, err := r.pool.Exec(ctx, `DELETE FROM ingest_queue WHERE id = $1`, taskID); err != nil {
			return false, fmt.Errorf("drop exhausted ingest task: %w", err)
		}
		return true, nil
	}
	if _, err := r.pool.Exec(ctx, `
		UPDATE ingest_queue SET attempts = attempts + 1, claimed_at = NULL WHERE id = $1
	`, taskID); err != nil {
		return false, fmt.Errorf("fail ingest task: %w", err)
	}
	return false, nil
}

// ---- retroactive matching queue ----

// EnqueueRetro records an accepted pair; duplicate acceptance deliveries hit
// the unique pair constraint and collapse into the existing task.
func (r *QueueRepository) EnqueueRetro(ctx context.Context, userA, userB string) error {
	low, high := store.CanonicalPair(userA, userB)
	if _, err := r.pool.Exec(ctx, `
		INSERT INTO retro_queue (user_low, user_high) VALUES ($1, $2)
		ON CONFLICT (user_low, user_high) DO NOTHING
	`, low, high); err != nil {
		return fmt.Errorf("enqueue retro task: %w", err)
	}
	return nil
}

func (r *QueueRepository) ClaimRetro(ctx context.Context) (*store.RetroTask, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE retro_queue SET claimed_at = NOW()
		WHERE id = (
			SELECT id FROM retro_queue
			WHERE claimed_at IS NULL OR claimed_at < NOW() - ($1 * interval '1 second')
			ORDER BY id
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, user_low, user_high, attempts
	`, r.claimTimeout.Seconds())
	var task store.RetroTask
	err := row.Scan(&task.ID, &task.UserLow, &task.UserHigh, &task.Attempts)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim retro task: %w", err)
	}
	return &task, nil
}

func (r *QueueRepository) CompleteRetro(ctx context.Context, taskID int64) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM retro_queue WHERE id = $1`, taskID); err != nil {
		return fmt.Errorf("complete retro task: %w", err)
	}
	return nil
}

func (r *QueueRepository) FailRetro(ctx context.Context, taskID int64, attempts, maxAttempts int) (bool, error) {
	if attempts+1 >= maxAttempts {
		if _, err := r.pool.Exec(ctx, `DELETE FROM retro_queue WHERE id = $1`, taskID); err != nil {
			return false, fmt.Errorf("drop exhausted retro task: %w", err)
		}
		return true, nil
	}
	if _, err := r.pool.Exec(ctx, `
		UPDATE retro_queue SET attempts = attempts + 1, claimed_at = NULL WHERE id = $1
	`, taskID); err != nil {
		return false, fmt.Errorf("fail retro task: %w", err)
	}
	return false, nil
}

// ---- change feed ----

// ReadBatch returns edge events past the consumer's checkpoint in sequence
// order, joined with the edge rows so the materializer needs no second read.
func (r *QueueRepository) ReadBatch(ctx context.Context, consumer string, limit int) ([]store.EdgeEvent, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT ev.seq, ev.created_at,
		       e.id, e.content_id, e.recipient_id, e.owner_id, e.method, e.confidence, e.provenance, e.created_at
		FROM edge_events ev
		JOIN recipient_edges e ON e.id = ev.edge_id
		WHERE ev.seq > COALESCE((SELECT seq FROM consumer_checkpoints WHERE consumer = $1), 0)
		ORDER BY ev.seq
		LIMIT $2
	`, consumer, limit)
	if err != nil {
		return nil, fmt.Errorf("read change feed: %w", err)
	}
	defer rows.Close()

	var events []store.EdgeEvent
	for rows.Next() {
		var ev store.EdgeEvent
		if err := rows.Scan(&ev.Seq, &ev.CreatedAt,
			&ev.Edge.ID, &ev.Edge.ContentID, &ev.Edge.RecipientID, &ev.Edge.OwnerID,
			&ev.Edge.Method, &ev.Edge.Confidence, &ev.Edge.Provenance, &ev.Edge.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan edge event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func (r *QueueRepository) Commit(ctx context.Context, consumer string, seq int64) error {
	if _, err := r.pool.Exec(ctx, `
		INSERT INTO consumer_checkpoints (consumer, seq) VALUES ($1, $2)
		ON CONFLICT (consumer) DO UPDATE SET seq = EXCLUDED.seq, committed_at = NOW()
	`, consumer, seq); err != nil {
		return fmt.Errorf("commit checkpoint: %w", err)
	}
	return nil
}

func (r *QueueRepository) DeadLetter(ctx context.Context, consumer string, event store.EdgeEvent, reason string) error {
	if _, err := r.pool.Exec(ctx, `
		INSERT INTO dead_letters (consumer, seq, edge_id, reason) VALUES ($1, $2, $3, $4)
	`, consumer, event.Seq, event.Edge.ID, reason); err != nil {
		return fmt.Errorf("dead letter: %w", err)
	}
	return nil
}

func (r *QueueRepository) ListDeadLetters(ctx context.Context, consumer string) ([]store.DeadLetter, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, consumer, seq, edge_id, reason, created_at
		FROM dead_letters WHERE consumer = $1 ORDER BY id
	`, consumer)
	if err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}
	defer rows.Close()

	var letters []store.DeadLetter
	for rows.Next() {
		var dl store.DeadLetter
		if err := rows.Scan(&dl.ID, &dl.Consumer, &dl.Seq, &dl.EdgeID, &dl.Reason, &dl.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan dead letter: %w", err)
		}
		letters = append(letters, dl)
	}
	return letters, rows.Err()
}

// ---- scan checkpoints ----

func (r *QueueRepository) GetCheckpoint(ctx context.Context, key string) (string, error) {
	var value string
	err := r.pool.QueryRow(ctx, `SELECT value FROM scan_checkpoints WHERE key = $1`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get checkpoint: %w", err)
	}
	return value, nil
}

func (r *QueueRepository) SetCheckpoint(ctx context.Context, key, value string) error {
	if _, err := r.pool.Exec(ctx, `
		INSERT INTO scan_checkpoints (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`, key, value); err != nil {
		return fmt.Errorf("set checkpoint: %w", err)
	}
	return nil
}

func (r *QueueRepository) ClearCheckpoint(ctx context.Context, key string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM scan_checkpoints WHERE key = $1`, key); err != nil {
		return fmt.Errorf("clear checkpoint: %w", err)
	}
	return nil
}
