// Package feed maintains the per-recipient feed projection: a change-feed
// consumer that denormalizes recipient edges into feed entries, a full
// rebuild from the authoritative graph, and the access-enforced read path.
package feed

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/facefeed/facefeed/internal/store"
)

// DefaultConsumer is the checkpoint name of the main feed materializer.
const DefaultConsumer = "feed-materializer"

// Materializer consumes recipient edge events and upserts feed entries.
// Delivery is at-least-once, so every write is an idempotent upsert; a record
// that keeps failing is dead-lettered rather than blocking the batch behind it.
type Materializer struct {
	feed       store.FeedStore
	changes    store.ChangeFeed
	content    store.ContentStore
	consumer   string
	batchSize  int
	attempts   int
	retryDelay time.Duration
}

// NewMaterializer creates a feed materializer for the given consumer name.
func NewMaterializer(
	feed store.FeedStore,
	changes store.ChangeFeed,
	content store.ContentStore,
	consumer string,
	batchSize, attempts int,
	retryDelay time.Duration,
) *Materializer {
	if consumer == "" {
		consumer = DefaultConsumer
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	if attempts <= 0 {
		attempts = 5
	}
	return &Materializer{
		feed:       feed,
		changes:    changes,
		content:    content,
		consumer:   consumer,
		batchSize:  batchSize,
		attempts:   attempts,
		retryDelay: retryDelay,
	}
}

// RunOnce reads and processes one batch past the checkpoint. Returns the
// number of events handled; zero means the consumer is caught up.
func (m *Materializer) RunOnce(ctx context.Context) (int, error) {
	events, err := m.changes.ReadBatch(ctx, m.consumer, m.batchSize)
	if err != nil {
		return 0, fmt.Errorf("read change feed: %w", err)
	}
	if len(events) == 0 {
		return 0, nil
	}

	for _, event := range events {
		if err := m.processWithRetry(ctx, event); err != nil {
			if ctx.Err() != nil {
				// Shutdown, not a bad record; leave the batch uncommitted so
				// the record is redelivered on the next run.
				return 0, ctx.Err()
			}
			reason := err.Error()
			if dlErr := m.changes.DeadLetter(ctx, m.consumer, event, reason); dlErr != nil {
				// Cannot park the record; stop without committing so the
				// batch is re-read.
				return 0, fmt.Errorf("dead letter seq %d: %w", event.Seq, dlErr)
			}
			log.Printf("feed: dead-lettered seq %d (edge %s): %s", event.Seq, event.Edge.ID, reason)
		}
	}

	lastSeq := events[len(events)-1].Seq
	if err := m.changes.Commit(ctx, m.consumer, lastSeq); err != nil {
		return 0, fmt.Errorf("commit checkpoint: %w", err)
	}
	return len(events), nil
}

// processWithRetry retries one record with doubling delay up to the bounded
// attempt count. The unit of retry is the individual record, never the batch.
func (m *Materializer) processWithRetry(ctx context.Context, event store.EdgeEvent) error {
	delay := m.retryDelay
	var lastErr error

	for attempt := 1; attempt <= m.attempts; attempt++ {
		if attempt > 1 && delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
			delay *= 2
		}
		if lastErr = m.processRecord(ctx, event); lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("after %d attempts: %w", m.attempts, lastErr)
}

// processRecord projects one edge into the recipient's feed. Edges whose
// content vanished or was deleted in flight are skipped; the reconcile pass
// owns that cleanup.
func (m *Materializer) processRecord(ctx context.Context, event store.EdgeEvent) error {
	edge := event.Edge

	content, err := m.content.Get(ctx, edge.ContentID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load content %s: %w", edge.ContentID, err)
	}
	if content.State == store.ContentDeleted {
		return nil
	}

	entry := &store.FeedEntry{
		RecipientID:   edge.RecipientID,
		ContentID:     edge.ContentID,
		OwnerID:       edge.OwnerID,
		ObjectKey:     content.ObjectKey,
		MediaType:     content.MediaType,
		Method:        edge.Method,
		Confidence:    edge.Confidence,
		EdgeCreatedAt: edge.CreatedAt,
	}
	if err := m.feed.Upsert(ctx, entry); err != nil {
		return fmt.Errorf("upsert feed entry: %w", err)
	}
	return nil
}

// Run polls the change feed until the context is cancelled.
func (m *Materializer) Run(ctx context.Context, pollInterval time.Duration) error {
	for {
		n, err := m.RunOnce(ctx)
		if err != nil {
			log.Printf("feed: batch failed: %v", err)
		}
		if n == 0 || err != nil {
			select {
			case <-time.After(pollInterval):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}
