// Package objectstore provides a pluggable key-value backend for binary
// objects: raw uploaded files, knowledge-base metadata records, and persisted
// processing statuses.
//
// Keys are hierarchical paths ("raw/shared/doc-1/notes.pdf"), values are
// opaque []byte. Implementations must be safe for concurrent use.
package objectstore

import (
	"context"
	"errors"
)

// ErrNotFound indicates the requested key does not exist.
var ErrNotFound = errors.New("object not found")

// Store is the pluggable backend interface for object operations.
//
// Implementations:
//   - MinIO: S3-compatible object storage
//   - Memory: in-process map for tests
type Store interface {
	// Put stores data at key, overwriting any existing value.
	Put(ctx context.Context, key string, data []byte) error

	// Get retrieves the data stored at key.
	// Returns ErrNotFound if the key does not exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// List returns all keys matching the given prefix, in lexicographic
	// order. An empty prefix lists everything. No matches yields an empty
	// slice, not an error.
	List(ctx context.Context, prefix string) ([]string, error)

	// Delete removes the data at key. Deleting a missing key is not an
	// error (idempotent).
	Delete(ctx context.Context, key string) error
}
