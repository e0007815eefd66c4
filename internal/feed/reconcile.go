package feed

import (
	"context"
	"fmt"
	"log"

	"github.com/facefeed/facefeed/internal/store"
)

const reconcilePageSize = 1000

// Reconcile removes recipient edges and feed entries that still reference
// soft-deleted content. Grants racing a deletion are tolerated transiently;
// this pass is what makes them right. Returns the number of edges and feed
// entries removed.
func Reconcile(ctx context.Context, content store.ContentStore, graph store.RecipientGraph, feedStore store.FeedStore) (int, int, error) {
	removedEdges, removedEntries := 0, 0
	afterID := ""

	for {
		deleted, err := content.ListByState(ctx, store.ContentDeleted, afterID, reconcilePageSize)
		if err != nil {
			return removedEdges, removedEntries, fmt.Errorf("list deleted content: %w", err)
		}
		if len(deleted) == 0 {
			return removedEdges, removedEntries, nil
		}

		for _, item := range deleted {
			edges, err := graph.DeleteByContent(ctx, item.ID)
			if err != nil {
				return removedEdges, removedEntries, fmt.Errorf("delete edges for %s: %w", item.ID, err)
			}
			entries, err := feedStore.DeleteByContent(ctx, item.ID)
			if err != nil {
				return removedEdges, removedEntries, fmt.Errorf("delete feed entries for %s: %w", item.ID, err)
			}
			if edges > 0 || entries > 0 {
				log.Printf("reconcile: content %s: removed %d edges, %d feed entries", item.ID, edges, entries)
			}
			removedEdges += edges
			removedEntries += entries
		}

		afterID = deleted[len(deleted)-1].ID
	}
}
