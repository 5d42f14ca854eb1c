// Package vectorindex provides the multi-tenant vector index used by the
// knowledge pipeline: one shared namespace plus one namespace per avatar,
// with batched upserts, per-namespace similarity queries, and a combined
// shared+avatar search.
//
// The Index interface deliberately assumes nothing beyond upsert, query, and
// delete-by-ID, so the deletion reconciler works against backends that lack
// delete-by-metadata-filter. Backends that do support filtered deletes can
// additionally implement SourceDeleter.
package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"
)

// ErrIndexNotReady indicates the index did not become ready within the
// readiness polling bounds.
var ErrIndexNotReady = errors.New("vector index not ready")

// VectorDimension is the embedding dimension stored in the index. It matches
// the vectors table schema in db/migrations and the embedder output.
const VectorDimension = 768

// SharedNamespace is the cross-avatar knowledge pool.
const SharedNamespace = "shared"

// avatarNamespacePrefix keeps avatar namespaces disjoint from the shared
// pool by construction.
const avatarNamespacePrefix = "avatar-"

// AvatarNamespace returns the namespace for one avatar's private pool.
func AvatarNamespace(avatarID string) string {
	return avatarNamespacePrefix + avatarID
}

// VectorID derives the deterministic record ID for one chunk of a document.
// This determinism is what makes the first deletion pass possible without a
// metadata-filtered delete.
func VectorID(sourceID string, chunkIndex int) string {
	return fmt.Sprintf("%s_chunk_%d", sourceID, chunkIndex)
}

// Record is one stored vector with its metadata.
type Record struct {
	ID       string
	Values   []float32
	Metadata map[string]any
}

// Match is one ranked result of a similarity query.
type Match struct {
	ID       string
	Score    float32
	Metadata map[string]any
}

// Stats reports per-namespace record counts.
type Stats struct {
	Namespaces map[string]int64
	Total      int64
}

// Index is the abstraction over a multi-tenant vector database.
type Index interface {
	// EnsureReady verifies the index exists and is queryable, polling with
	// bounded retries. Returns ErrIndexNotReady when the bound is exceeded.
	EnsureReady(ctx context.Context) error

	// Upsert stores records in the namespace in fixed-size sequential
	// batches.
	Upsert(ctx context.Context, namespace string, records []Record) error

	// Query returns up to topK matches ranked by descending similarity.
	// filter restricts matches to records whose metadata contains every
	// given key/value pair; nil means unfiltered.
	Query(ctx context.Context, namespace string, vector []float32, topK int, filter map[string]string) ([]Match, error)

	// DeleteByIDs removes the given records from the namespace. Missing IDs
	// are not an error.
	DeleteByIDs(ctx context.Context, namespace string, ids []string) error

	// DeleteNamespace wipes every record in the namespace. Used when an
	// entire avatar is removed.
	DeleteNamespace(ctx context.Context, namespace string) error

	// Stats reports record counts per namespace.
	Stats(ctx context.Context) (Stats, error)
}

// SourceDeleter is optionally implemented by backends that can remove every
// record of a source directly. The deletion reconciler prefers it over the
// probe-based fallback when available.
type SourceDeleter interface {
	// DeleteBySource removes all records in the namespace whose metadata
	// sourceId equals sourceID, returning the number removed.
	DeleteBySource(ctx context.Context, namespace, sourceID string) (int64, error)
}

// SearchCombined concurrently queries the shared namespace and the avatar's
// namespace, each for ceil(topK/2) matches, then merges both lists by
// descending score and truncates to topK. The two sub-queries are the one
// place in the pipeline where true parallelism matters.
func SearchCombined(ctx context.Context, idx Index, avatarID string, vector []float32, topK int) ([]Match, error) {
	if topK <= 0 {
		return nil, nil
	}
	perPool := (topK + 1) / 2

	var shared, avatar []Match
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		shared, err = idx.Query(gctx, SharedNamespace, vector, perPool, nil)
		return err
	})
	g.Go(func() error {
		var err error
		avatar, err = idx.Query(gctx, AvatarNamespace(avatarID), vector, perPool, nil)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("combined search: %w", err)
	}

	merged := make([]Match, 0, len(shared)+len(avatar))
	merged = append(merged, shared...)
	merged = append(merged, avatar...)
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Score > merged[j].Score
	})
	if len(merged) > topK {
		merged = merged[:topK]
	}
	return merged, nil
}
