package feed

import (
	"context"
	"errors"
	"fmt"

	"github.com/facefeed/facefeed/internal/store"
)

const rebuildPageSize = 500

// Rebuild drops the whole feed projection and re-derives it from the
// recipient graph and content metadata. The projection is strictly a cache,
// so this is always safe; it is the recovery path for projection drift and
// the proof that the graph stays the single source of truth.
// onEdge, if non-nil, is called once per processed edge (progress reporting).
func Rebuild(ctx context.Context, graph store.RecipientGraph, content store.ContentStore, feedStore store.FeedStore, onEdge func()) (int, error) {
	if err := feedStore.Truncate(ctx); err != nil {
		return 0, fmt.Errorf("truncate feed: %w", err)
	}

	var afterRecipient, afterContent string
	rebuilt := 0

	for {
		edges, err := graph.ListAll(ctx, afterRecipient, afterContent, rebuildPageSize)
		if err != nil {
			return rebuilt, fmt.Errorf("list edges: %w", err)
		}
		if len(edges) == 0 {
			return rebuilt, nil
		}

		for _, edge := range edges {
			if onEdge != nil {
				onEdge()
			}

			item, err := content.Get(ctx, edge.ContentID)
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			if err != nil {
				return rebuilt, fmt.Errorf("load content %s: %w", edge.ContentID, err)
			}
			if item.State == store.ContentDeleted {
				continue
			}

			entry := &store.FeedEntry{
				RecipientID:   edge.RecipientID,
				ContentID:     edge.ContentID,
				OwnerID:       edge.OwnerID,
				ObjectKey:     item.ObjectKey,
				MediaType:     item.MediaType,
				Method:        edge.Method,
				Confidence:    edge.Confidence,
				EdgeCreatedAt: edge.CreatedAt,
			}
			if err := feedStore.Upsert(ctx, entry); err != nil {
				return rebuilt, fmt.Errorf("upsert feed entry: %w", err)
			}
			rebuilt++
		}

		last := edges[len(edges)-1]
		afterRecipient, afterContent = last.RecipientID, last.ContentID
	}
}
