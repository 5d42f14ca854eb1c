package ingest

import (
	"context"
	"fmt"

	"github.com/edusim/knowledge/internal/objectstore"
)

// RawStore persists original uploaded files, keyed by scope and source.
type RawStore interface {
	PutRaw(ctx context.Context, scope, sourceID, filename string, data []byte) error
	PurgeRaw(ctx context.Context, scope, sourceID string) error
}

// RawFiles lays out raw uploads under raw/<scope>/<sourceId>/<filename>.
type RawFiles struct {
	store objectstore.Store
}

// NewRawFiles wraps an object store with the raw-file key layout.
func NewRawFiles(store objectstore.Store) *RawFiles {
	return &RawFiles{store: store}
}

func rawPrefix(scope, sourceID string) string {
	return fmt.Sprintf("raw/%s/%s/", scope, sourceID)
}

// PutRaw stores one uploaded file.
func (r *RawFiles) PutRaw(ctx context.Context, scope, sourceID, filename string, data []byte) error {
	key := rawPrefix(scope, sourceID) + filename
	if err := r.store.Put(ctx, key, data); err != nil {
		return fmt.Errorf("storing raw file %s: %w", key, err)
	}
	return nil
}

// PurgeRaw removes every raw file stored under the source. Missing files
// are not an error.
func (r *RawFiles) PurgeRaw(ctx context.Context, scope, sourceID string) error {
	keys, err := r.store.List(ctx, rawPrefix(scope, sourceID))
	if err != nil {
		return fmt.Errorf("listing raw files for %s: %w", sourceID, err)
	}
	for _, key := range keys {
		if err := r.store.Delete(ctx, key); err != nil {
			return fmt.Errorf("deleting raw file %s: %w", key, err)
		}
	}
	return nil
}
