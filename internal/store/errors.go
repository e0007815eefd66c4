package store

import "errors"

var (
	// ErrNotFound is returned when a looked-up entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyResolved is returned when a resolve attempt targets a face
	// identity already resolved to a different user. Callers must treat this
	// as a data-integrity anomaly and log it, never overwrite.
	ErrAlreadyResolved = errors.New("face identity already resolved to a different user")

	// ErrContentDeleted is returned by read paths when the referenced content
	// has been soft-deleted.
	ErrContentDeleted = errors.New("content deleted")

	// ErrForbidden is returned when the requesting user has no recipient edge
	// for the content and is not its owner.
	ErrForbidden = errors.New("access denied")
)
