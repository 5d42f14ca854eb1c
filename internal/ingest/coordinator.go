// Package ingest orchestrates the document pipeline: extraction, chunking,
// embedding, vector storage, and catalog bookkeeping, with progress
// checkpoints written to the status tracker throughout.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/edusim/knowledge/internal/chunk"
	"github.com/edusim/knowledge/internal/extract"
	"github.com/edusim/knowledge/internal/log"
	"github.com/edusim/knowledge/internal/metadata"
	"github.com/edusim/knowledge/internal/status"
	"github.com/edusim/knowledge/internal/vectorindex"
)

// ErrInsufficientContent indicates extraction produced no usable text, so
// there is nothing to index.
var ErrInsufficientContent = errors.New("ingest: document has no extractable content")

// Embedder produces vectors for chunk texts. Satisfied by embed.Client.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Request carries one document into the pipeline.
type Request struct {
	Data      []byte
	MediaType string
	Filename  string
	Title     string
	TenantID  string
	Shared    bool
}

// Scope returns the vector namespace the document belongs to.
func (r Request) Scope() string {
	if r.Shared || r.TenantID == "" {
		return vectorindex.SharedNamespace
	}
	return vectorindex.AvatarNamespace(r.TenantID)
}

func (r Request) validate() error {
	if len(r.Data) == 0 {
		return errors.New("ingest: empty document buffer")
	}
	if r.MediaType == "" {
		return errors.New("ingest: media type is required")
	}
	if r.Filename == "" {
		return errors.New("ingest: filename is required")
	}
	return nil
}

// Coordinator runs the ingestion pipeline. All dependencies are injected;
// the coordinator holds no global state.
type Coordinator struct {
	extractor *extract.Extractor
	embedder  Embedder
	index     vectorindex.Index
	catalog   *metadata.Catalog
	tracker   *status.Tracker
	raw       RawStore
	logger    log.Logger

	maxTokens     int
	overlapTokens int
}

// NewCoordinator wires the pipeline together. maxTokens and overlapTokens
// are the chunking budgets applied to every document.
func NewCoordinator(
	extractor *extract.Extractor,
	embedder Embedder,
	index vectorindex.Index,
	catalog *metadata.Catalog,
	tracker *status.Tracker,
	raw RawStore,
	maxTokens, overlapTokens int,
	logger log.Logger,
) *Coordinator {
	return &Coordinator{
		extractor:     extractor,
		embedder:      embedder,
		index:         index,
		catalog:       catalog,
		tracker:       tracker,
		raw:           raw,
		logger:        logger,
		maxTokens:     maxTokens,
		overlapTokens: overlapTokens,
	}
}

// Ingest runs the full pipeline for one document and returns the
// processing ID the caller can poll. Validation problems surface
// synchronously; pipeline failures are recorded on the status and the
// processing ID is still returned.
func (c *Coordinator) Ingest(ctx context.Context, req Request) (string, error) {
	if err := req.validate(); err != nil {
		return "", err
	}

	processingID := uuid.NewString()
	sourceID := uuid.NewString()

	if err := c.tracker.Start(ctx, processingID); err != nil {
		return "", fmt.Errorf("starting status for run %s: %w", processingID, err)
	}

	if err := c.run(ctx, processingID, sourceID, req); err != nil {
		c.logger.Error("ingestion failed",
			"processing_id", processingID,
			"source_id", sourceID,
			"filename", req.Filename,
			"error", err)
		if failErr := c.tracker.Fail(ctx, processingID, err); failErr != nil {
			c.logger.Error("recording failure status",
				"processing_id", processingID, "error", failErr)
		}
		return processingID, nil
	}

	return processingID, nil
}

func (c *Coordinator) run(ctx context.Context, processingID, sourceID string, req Request) error {
	scope := req.Scope()
	title := req.Title
	if title == "" {
		title = req.Filename
	}
	uploadedAt := time.Now().UTC()

	// The raw file lands first so a later failure never loses the upload.
	// It is not rolled back on failure; cleanup is the operator's job.
	if err := c.raw.PutRaw(ctx, scope, sourceID, req.Filename, req.Data); err != nil {
		return fmt.Errorf("storing raw file: %w", err)
	}

	if err := c.tracker.Progress(ctx, processingID, 10, "extracting text"); err != nil {
		return err
	}
	text, err := c.extractor.Extract(req.Data, req.MediaType)
	if err != nil {
		return fmt.Errorf("extracting %s: %w", req.Filename, err)
	}

	chunks := chunk.Split(text, c.maxTokens, c.overlapTokens)
	if len(chunks) == 0 {
		return fmt.Errorf("%w: %s", ErrInsufficientContent, req.Filename)
	}
	if err := c.tracker.Progress(ctx, processingID, 30, "chunking complete"); err != nil {
		return err
	}

	if err := c.tracker.Progress(ctx, processingID, 60, "generating embeddings"); err != nil {
		return err
	}
	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}
	vectors, err := c.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embedding %d chunks: %w", len(chunks), err)
	}

	if err := c.tracker.Progress(ctx, processingID, 90, "storing vectors"); err != nil {
		return err
	}
	records := make([]vectorindex.Record, len(chunks))
	for i, ch := range chunks {
		records[i] = vectorindex.Record{
			ID:     vectorindex.VectorID(sourceID, ch.Index),
			Values: vectors[i],
			Metadata: map[string]any{
				"sourceId":     sourceID,
				"title":        title,
				"originalText": ch.Text,
				"chunkIndex":   ch.Index,
				"totalChunks":  ch.Total,
				"filename":     req.Filename,
				"scope":        scope,
				"uploadedAt":   uploadedAt.Format(time.RFC3339),
			},
		}
	}
	if err := c.index.Upsert(ctx, scope, records); err != nil {
		return fmt.Errorf("storing %d vectors: %w", len(records), err)
	}

	entry := metadata.Entry{
		SourceID:    sourceID,
		Title:       title,
		Filename:    req.Filename,
		MediaType:   req.MediaType,
		Scope:       scope,
		ChunkCount:  len(chunks),
		SizeBytes:   int64(len(req.Data)),
		UploadedAt:  uploadedAt,
		ProcessedAt: time.Now().UTC(),
	}
	if err := c.catalog.Save(ctx, entry); err != nil {
		return fmt.Errorf("writing catalog entry: %w", err)
	}

	if err := c.tracker.Complete(ctx, processingID, "processing complete"); err != nil {
		return err
	}

	c.logger.Info("document ingested",
		"processing_id", processingID,
		"source_id", sourceID,
		"scope", scope,
		"chunks", len(chunks))

	return nil
}
