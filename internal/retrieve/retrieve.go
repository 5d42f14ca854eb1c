// Package retrieve builds knowledge context for a chat turn: it embeds the
// query, searches the relevant vector namespaces, and formats the surviving
// matches. Failures degrade to an empty context so the chat flow is never
// blocked by a knowledge-base outage.
package retrieve

import (
	"context"

	"github.com/edusim/knowledge/internal/log"
	"github.com/edusim/knowledge/internal/vectorindex"
)

// minSimilarity is the cosine-similarity cutoff; matches at or below it
// are dropped.
const minSimilarity = 0.2

// DefaultTopK is the number of matches requested when the caller does not
// specify one.
const DefaultTopK = 5

// QueryEmbedder produces a single query vector. Satisfied by embed.Client.
type QueryEmbedder interface {
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}

// Chunk is one retrieved passage.
type Chunk struct {
	Text     string         `json:"text"`
	Source   string         `json:"source"`
	Score    float32        `json:"score"`
	Metadata map[string]any `json:"metadata"`
}

// Context is the formatted retrieval result handed to the chat flow.
type Context struct {
	Chunks  []Chunk  `json:"chunks"`
	Sources []string `json:"sources"`
}

// Retriever embeds queries and searches the vector index.
type Retriever struct {
	embedder QueryEmbedder
	index    vectorindex.Index
	logger   log.Logger
}

// New creates a retriever.
func New(embedder QueryEmbedder, index vectorindex.Index, logger log.Logger) *Retriever {
	return &Retriever{embedder: embedder, index: index, logger: logger}
}

// Search returns the best-matching knowledge chunks for a query. With a
// tenant ID it searches the shared and avatar pools combined; without one
// it searches the shared pool only. topK <= 0 uses DefaultTopK. Errors are
// logged and swallowed; the caller always gets a usable (possibly empty)
// context.
func (r *Retriever) Search(ctx context.Context, query, tenantID string, topK int) Context {
	empty := Context{Chunks: []Chunk{}, Sources: []string{}}
	if query == "" {
		return empty
	}
	if topK <= 0 {
		topK = DefaultTopK
	}

	vector, err := r.embedder.EmbedOne(ctx, query)
	if err != nil {
		r.logger.Warn("query embedding failed, returning empty context", "error", err)
		return empty
	}

	var matches []vectorindex.Match
	if tenantID != "" {
		matches, err = vectorindex.SearchCombined(ctx, r.index, tenantID, vector, topK)
	} else {
		matches, err = r.index.Query(ctx, vectorindex.SharedNamespace, vector, topK, nil)
	}
	if err != nil {
		r.logger.Warn("vector search failed, returning empty context",
			"tenant_id", tenantID, "error", err)
		return empty
	}

	return formatContext(matches)
}

func formatContext(matches []vectorindex.Match) Context {
	result := Context{Chunks: []Chunk{}, Sources: []string{}}
	seen := make(map[string]struct{})

	for _, m := range matches {
		if m.Score <= minSimilarity {
			continue
		}

		text, _ := m.Metadata["originalText"].(string)
		source, _ := m.Metadata["title"].(string)

		result.Chunks = append(result.Chunks, Chunk{
			Text:     text,
			Source:   source,
			Score:    m.Score,
			Metadata: m.Metadata,
		})

		if source == "" {
			continue
		}
		if _, dup := seen[source]; !dup {
			seen[source] = struct{}{}
			result.Sources = append(result.Sources, source)
		}
	}
	return result
}
