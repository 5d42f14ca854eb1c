package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/edusim/knowledge/internal/log"
	"github.com/edusim/knowledge/internal/metadata"
	"github.com/edusim/knowledge/internal/vectorindex"
)

// ErrPartialDeletion indicates some vectors for the source may remain in
// the index after a best-effort deletion pass.
var ErrPartialDeletion = errors.New("ingest: deletion could not be fully confirmed")

const (
	// deterministicIDBound caps the chunk indices enumerated during the
	// deterministic deletion pass.
	deterministicIDBound = 1000
	deleteBatchSize = 100
	probeTopK       = 200

	// maxProbePages bounds saturation paging per probe vector so a
	// misbehaving index cannot spin the deletion pass forever.
	maxProbePages = 50
)

// Reconciler removes every trace of a document: its vectors, its catalog
// entry, and its raw files.
type Reconciler struct {
	index   vectorindex.Index
	catalog *metadata.Catalog
	raw     RawStore
	logger  log.Logger
}

// NewReconciler creates a deletion reconciler.
func NewReconciler(index vectorindex.Index, catalog *metadata.Catalog, raw RawStore, logger log.Logger) *Reconciler {
	return &Reconciler{index: index, catalog: catalog, raw: raw, logger: logger}
}

// Delete removes a document from the given scope. Vector removal runs
// first, then the catalog entry and raw files. When the index cannot
// confirm full vector removal the catalog and raw files are still cleaned
// up and ErrPartialDeletion is returned.
func (r *Reconciler) Delete(ctx context.Context, sourceID, scope string) error {
	vectorErr := r.deleteVectors(ctx, sourceID, scope)

	if err := r.catalog.Delete(ctx, scope, sourceID); err != nil {
		return fmt.Errorf("removing catalog entry for %s: %w", sourceID, err)
	}
	if err := r.raw.PurgeRaw(ctx, scope, sourceID); err != nil {
		return fmt.Errorf("purging raw files for %s: %w", sourceID, err)
	}

	if vectorErr != nil {
		return vectorErr
	}

	r.logger.Info("document deleted", "source_id", sourceID, "scope", scope)
	return nil
}

func (r *Reconciler) deleteVectors(ctx context.Context, sourceID, scope string) error {
	// An index with native metadata-filtered deletion makes the
	// enumeration passes unnecessary.
	if deleter, ok := r.index.(vectorindex.SourceDeleter); ok {
		deleted, err := deleter.DeleteBySource(ctx, scope, sourceID)
		if err != nil {
			return fmt.Errorf("%w: delete by source for %s: %v", ErrPartialDeletion, sourceID, err)
		}
		r.logger.Debug("vectors removed by source filter",
			"source_id", sourceID, "count", deleted)
		return nil
	}

	// Pass one: the deterministic ID scheme covers chunk indices up to
	// the bound. Missing IDs delete as a no-op.
	ids := make([]string, 0, deleteBatchSize)
	for i := 0; i < deterministicIDBound; i++ {
		ids = append(ids, vectorindex.VectorID(sourceID, i))
		if len(ids) == deleteBatchSize {
			if err := r.index.DeleteByIDs(ctx, scope, ids); err != nil {
				return fmt.Errorf("%w: batch delete for %s: %v", ErrPartialDeletion, sourceID, err)
			}
			ids = ids[:0]
		}
	}
	if len(ids) > 0 {
		if err := r.index.DeleteByIDs(ctx, scope, ids); err != nil {
			return fmt.Errorf("%w: batch delete for %s: %v", ErrPartialDeletion, sourceID, err)
		}
	}

	// Pass two: probe queries catch records created outside the
	// deterministic scheme. Best effort; far-off vectors can be missed.
	removed, err := r.probeDeleteLeftovers(ctx, sourceID, scope)
	if err != nil {
		return fmt.Errorf("%w: probe pass for %s: %v", ErrPartialDeletion, sourceID, err)
	}
	if removed > 0 {
		r.logger.Warn("probe pass removed vectors outside the deterministic ID range",
			"source_id", sourceID, "count", removed)
	}
	return nil
}

// probeDeleteLeftovers issues filtered probe queries and deletes whatever
// they surface. A saturated page means more matches may be hiding behind
// the topK cut, so the same probe repeats until a page comes back short.
func (r *Reconciler) probeDeleteLeftovers(ctx context.Context, sourceID, scope string) (int, error) {
	probes := [][]float32{
		fillVector(0.01),
		fillVector(-0.01),
		fillVector(0),
	}
	filter := map[string]string{"sourceId": sourceID}

	removed := 0
	for _, probe := range probes {
		for page := 0; ; page++ {
			if page == maxProbePages {
				return removed, fmt.Errorf("probe paging did not drain matches for %s", sourceID)
			}

			matches, err := r.index.Query(ctx, scope, probe, probeTopK, filter)
			if err != nil {
				return removed, err
			}
			if len(matches) == 0 {
				break
			}

			ids := make([]string, len(matches))
			for i, m := range matches {
				ids[i] = m.ID
			}
			if err := r.index.DeleteByIDs(ctx, scope, ids); err != nil {
				return removed, err
			}
			removed += len(ids)

			if len(matches) < probeTopK {
				break
			}
		}
	}
	return removed, nil
}

func fillVector(value float32) []float32 {
	v := make([]float32, vectorindex.VectorDimension)
	for i := range v {
		v[i] = value
	}
	return v
}
