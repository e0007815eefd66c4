// Package blob stores content bytes in an S3-compatible object store.
// The database keeps only object keys; bytes never touch postgres.
package blob

import (
	"context"
	"fmt"
	"io"
)

// Storage reads and writes media objects by key.
type Storage interface {
	Save(ctx context.Context, key string, body io.Reader, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// ContentKey builds the object key for a content item, scoped by owner so
// bucket listings group per user.
func ContentKey(ownerID, contentID string) string {
	return fmt.Sprintf("media/%s/%s", ownerID, contentID)
}

// EnrollmentKey builds the object key for a user's enrollment selfie.
func EnrollmentKey(userID string) string {
	return fmt.Sprintf("enrollments/%s", userID)
}
