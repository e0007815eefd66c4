package feed

import (
	"context"
	"fmt"
	"time"

	"github.com/facefeed/facefeed/internal/store"
)

// Reader is the access-enforced read path. Every content lookup filters
// through the recipient graph; ownership is the only other way in.
type Reader struct {
	feed    store.FeedStore
	graph   store.RecipientGraph
	content store.ContentStore
}

// NewReader creates a feed reader.
func NewReader(feed store.FeedStore, graph store.RecipientGraph, content store.ContentStore) *Reader {
	return &Reader{feed: feed, graph: graph, content: content}
}

// List returns the viewer's feed, newest edges first. A zero `before` starts
// from the top; otherwise entries strictly older than `before` are returned.
func (r *Reader) List(ctx context.Context, viewerID string, before time.Time, limit int) ([]store.FeedEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	entries, err := r.feed.List(ctx, viewerID, before, limit)
	if err != nil {
		return nil, fmt.Errorf("list feed: %w", err)
	}
	return entries, nil
}

// GetContent returns a content item iff the viewer may see it: owners always
// may, anyone else needs a recipient edge. Deleted content is gone for
// everyone, owner included.
func (r *Reader) GetContent(ctx context.Context, viewerID, contentID string) (*store.Content, error) {
	content, err := r.content.Get(ctx, contentID)
	if err != nil {
		return nil, err
	}

	if content.OwnerID != viewerID {
		has, err := r.graph.HasAccess(ctx, contentID, viewerID)
		if err != nil {
			return nil, fmt.Errorf("check access: %w", err)
		}
		if !has {
			return nil, store.ErrForbidden
		}
	}

	if content.State == store.ContentDeleted {
		return nil, store.ErrContentDeleted
	}
	return content, nil
}
