// Package embed wraps a Genkit ai.Embedder with the batching and atomicity
// guarantees the ingestion pipeline relies on: one vector per input in input
// order, and no partial success within a document.
package embed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/firebase/genkit/go/ai"
	"golang.org/x/time/rate"
)

// ErrProvider indicates the embedding provider rejected or failed a request.
var ErrProvider = errors.New("embedding provider error")

// maxBatchSize is the per-request item limit sent to the provider. Larger
// inputs are split internally; a failure in any sub-batch aborts the whole
// call so a document is never half-embedded.
const maxBatchSize = 100

// defaultRequestsPerSecond caps calls to the provider. Batches are issued
// sequentially, so the limiter bounds total request rate per client.
const defaultRequestsPerSecond = 10

// Client generates embeddings through a Genkit ai.Embedder.
// Safe for concurrent use.
type Client struct {
	embedder  ai.Embedder
	limiter   *rate.Limiter
	logger    *slog.Logger
	options   any
	dimension int
}

// Option configures a Client.
type Option func(*Client)

// WithRequestOptions sets provider-specific options forwarded on every embed
// request, such as a Gemini genai.EmbedContentConfig pinning
// OutputDimensionality to the index's vector width.
func WithRequestOptions(opts any) Option {
	return func(c *Client) { c.options = opts }
}

// WithDimension makes the client reject any returned vector whose length is
// not n. The vector index's column width is fixed; catching a mismatched
// provider here fails the document instead of every later upsert.
func WithDimension(n int) Option {
	return func(c *Client) { c.dimension = n }
}

// New creates an embedding client. logger may be nil.
func New(embedder ai.Embedder, logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		embedder: embedder,
		limiter:  rate.NewLimiter(rate.Limit(defaultRequestsPerSecond), defaultRequestsPerSecond),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// EmbedBatch returns one vector per input text, in input order. The batch is
// split into provider-sized sub-batches internally; any failure aborts the
// whole call and no vectors are returned.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += maxBatchSize {
		end := min(start+maxBatchSize, len(texts))

		sub, err := c.embedSubBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, sub...)
	}

	c.logger.Debug("embedded batch", "texts", len(texts), "dimension", len(vectors[0]))
	return vectors, nil
}

// EmbedOne embeds a single text, typically a retrieval query.
func (c *Client) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (c *Client) embedSubBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for rate limiter: %w", err)
	}

	input := make([]*ai.Document, len(texts))
	for i, text := range texts {
		input[i] = ai.DocumentFromText(text, nil)
	}

	resp, err := c.embedder.Embed(ctx, &ai.EmbedRequest{Input: input, Options: c.options})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProvider, err)
	}

	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d inputs", ErrProvider, len(resp.Embeddings), len(texts))
	}

	vectors := make([][]float32, len(texts))
	for i, emb := range resp.Embeddings {
		if emb == nil || len(emb.Embedding) == 0 {
			return nil, fmt.Errorf("%w: empty embedding at position %d", ErrProvider, i)
		}
		if c.dimension > 0 && len(emb.Embedding) != c.dimension {
			return nil, fmt.Errorf("%w: expected %d-dimensional vector, got %d at position %d",
				ErrProvider, c.dimension, len(emb.Embedding), i)
		}
		vectors[i] = emb.Embedding
	}
	return vectors, nil
}
