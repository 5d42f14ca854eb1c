package vectorindex

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

const (
	// upsertBatchSize bounds the per-statement payload. Batches are issued
	// sequentially to respect database limits.
	upsertBatchSize = 100

	// Readiness polling bounds for EnsureReady.
	readinessAttempts = 10
	readinessDelay    = 500 * time.Millisecond
)

// Postgres implements Index (and SourceDeleter) on PostgreSQL with pgvector.
// Namespaces are rows sharing a namespace column; similarity is cosine.
//
// Safe for concurrent use.
type Postgres struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgres creates a pgvector-backed index over an existing pool. The
// knowledge_vectors table itself is created by db/migrations. logger may be
// nil.
func NewPostgres(pool *pgxpool.Pool, logger *slog.Logger) *Postgres {
	if logger == nil {
		logger = slog.Default()
	}
	return &Postgres{pool: pool, logger: logger}
}

// EnsureReady polls until the vectors table is queryable, with bounded
// retries and a fixed delay. Idempotent: creation itself happens in
// migrations, so readiness is purely an existence check.
func (p *Postgres) EnsureReady(ctx context.Context) error {
	var lastErr error
	for attempt := 1; attempt <= readinessAttempts; attempt++ {
		var regclass *string
		err := p.pool.QueryRow(ctx, `SELECT to_regclass('knowledge_vectors')::text`).Scan(&regclass)
		if err == nil && regclass != nil {
			return nil
		}
		if err != nil {
			lastErr = err
		}

		p.logger.Debug("vector index not ready", "attempt", attempt, "error", lastErr)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(readinessDelay):
		}
	}
	if lastErr != nil {
		return fmt.Errorf("%w after %d attempts: %v", ErrIndexNotReady, readinessAttempts, lastErr)
	}
	return fmt.Errorf("%w after %d attempts: knowledge_vectors table missing", ErrIndexNotReady, readinessAttempts)
}

// Upsert stores records in sequential batches of upsertBatchSize.
func (p *Postgres) Upsert(ctx context.Context, namespace string, records []Record) error {
	for start := 0; start < len(records); start += upsertBatchSize {
		end := min(start+upsertBatchSize, len(records))
		if err := p.upsertBatch(ctx, namespace, records[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (p *Postgres) upsertBatch(ctx context.Context, namespace string, records []Record) error {
	batch := &pgx.Batch{}
	for _, rec := range records {
		metadataJSON, err := json.Marshal(rec.Metadata)
		if err != nil {
			return fmt.Errorf("marshaling metadata for %q: %w", rec.ID, err)
		}
		batch.Queue(
			`INSERT INTO knowledge_vectors (id, namespace, embedding, metadata)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (id) DO UPDATE
			 SET namespace = EXCLUDED.namespace,
			     embedding = EXCLUDED.embedding,
			     metadata  = EXCLUDED.metadata`,
			rec.ID, namespace, pgvector.NewVector(rec.Values), metadataJSON,
		)
	}

	results := p.pool.SendBatch(ctx, batch)
	defer func() {
		_ = results.Close()
	}()

	for range records {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("upserting batch into %q: %w", namespace, err)
		}
	}

	p.logger.Debug("upserted vectors", "namespace", namespace, "count", len(records))
	return nil
}

// Query returns up to topK matches in the namespace ranked by descending
// cosine similarity.
func (p *Postgres) Query(ctx context.Context, namespace string, vector []float32, topK int, filter map[string]string) ([]Match, error) {
	if topK <= 0 {
		return nil, nil
	}

	queryVec := pgvector.NewVector(vector)

	var (
		rows pgx.Rows
		err  error
	)
	if len(filter) > 0 {
		filterJSON, marshalErr := json.Marshal(filter)
		if marshalErr != nil {
			return nil, fmt.Errorf("marshaling filter: %w", marshalErr)
		}
		rows, err = p.pool.Query(ctx,
			`SELECT id, metadata, 1 - (embedding <=> $1) AS score
			 FROM knowledge_vectors
			 WHERE namespace = $2 AND metadata @> $3
			 ORDER BY embedding <=> $1
			 LIMIT $4`,
			queryVec, namespace, filterJSON, topK)
	} else {
		rows, err = p.pool.Query(ctx,
			`SELECT id, metadata, 1 - (embedding <=> $1) AS score
			 FROM knowledge_vectors
			 WHERE namespace = $2
			 ORDER BY embedding <=> $1
			 LIMIT $3`,
			queryVec, namespace, topK)
	}
	if err != nil {
		return nil, fmt.Errorf("querying namespace %q: %w", namespace, err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var (
			id           string
			metadataJSON []byte
			score        float64
		)
		if err := rows.Scan(&id, &metadataJSON, &score); err != nil {
			return nil, fmt.Errorf("scanning match: %w", err)
		}

		var metadata map[string]any
		if err := json.Unmarshal(metadataJSON, &metadata); err != nil {
			p.logger.Warn("unparsable vector metadata", "id", id, "error", err)
			metadata = map[string]any{}
		}

		matches = append(matches, Match{ID: id, Score: float32(score), Metadata: metadata})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading matches from %q: %w", namespace, err)
	}
	return matches, nil
}

// DeleteByIDs removes the given records. Missing IDs are silently ignored,
// which makes the deterministic deletion pass idempotent.
func (p *Postgres) DeleteByIDs(ctx context.Context, namespace string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := p.pool.Exec(ctx,
		`DELETE FROM knowledge_vectors WHERE namespace = $1 AND id = ANY($2)`,
		namespace, ids)
	if err != nil {
		return fmt.Errorf("deleting %d records from %q: %w", len(ids), namespace, err)
	}
	return nil
}

// DeleteBySource removes every record of a source in the namespace and
// reports how many were removed. Satisfies SourceDeleter.
func (p *Postgres) DeleteBySource(ctx context.Context, namespace, sourceID string) (int64, error) {
	tag, err := p.pool.Exec(ctx,
		`DELETE FROM knowledge_vectors WHERE namespace = $1 AND metadata->>'sourceId' = $2`,
		namespace, sourceID)
	if err != nil {
		return 0, fmt.Errorf("deleting source %q from %q: %w", sourceID, namespace, err)
	}
	return tag.RowsAffected(), nil
}

// DeleteNamespace wipes every record in the namespace.
func (p *Postgres) DeleteNamespace(ctx context.Context, namespace string) error {
	tag, err := p.pool.Exec(ctx,
		`DELETE FROM knowledge_vectors WHERE namespace = $1`, namespace)
	if err != nil {
		return fmt.Errorf("deleting namespace %q: %w", namespace, err)
	}
	p.logger.Info("deleted namespace", "namespace", namespace, "records", tag.RowsAffected())
	return nil
}

// Stats reports record counts per namespace.
func (p *Postgres) Stats(ctx context.Context) (Stats, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT namespace, count(*) FROM knowledge_vectors GROUP BY namespace`)
	if err != nil {
		return Stats{}, fmt.Errorf("counting vectors: %w", err)
	}
	defer rows.Close()

	stats := Stats{Namespaces: make(map[string]int64)}
	for rows.Next() {
		var (
			namespace string
			count     int64
		)
		if err := rows.Scan(&namespace, &count); err != nil {
			return Stats{}, fmt.Errorf("scanning stats: %w", err)
		}
		stats.Namespaces[namespace] = count
		stats.Total += count
	}
	if err := rows.Err(); err != nil {
		return Stats{}, fmt.Errorf("reading stats: %w", err)
	}
	return stats, nil
}
