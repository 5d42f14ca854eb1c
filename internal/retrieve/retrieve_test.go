package retrieve

import (
	"context"
	"errors"
	"testing"

	"github.com/edusim/knowledge/internal/log"
	"github.com/edusim/knowledge/internal/vectorindex"
)

type stubQueryEmbedder struct {
	vector []float32
	err    error
}

func (s *stubQueryEmbedder) EmbedOne(context.Context, string) ([]float32, error) {
	return s.vector, s.err
}

func axisVector(hot int) []float32 {
	v := make([]float32, vectorindex.VectorDimension)
	v[hot] = 1
	return v
}

func seedRecord(t *testing.T, index *vectorindex.Memory, namespace, id string, vector []float32, title, text string) {
	t.Helper()
	rec := vectorindex.Record{
		ID:     id,
		Values: vector,
		Metadata: map[string]any{
			"sourceId":     id,
			"title":        title,
			"originalText": text,
		},
	}
	if err := index.Upsert(context.Background(), namespace, []vectorindex.Record{rec}); err != nil {
		t.Fatalf("seeding %s: %v", id, err)
	}
}

func TestRetriever_SearchSharedOnly(t *testing.T) {
	index := vectorindex.NewMemory()
	seedRecord(t, index, vectorindex.SharedNamespace, "anatomy", axisVector(0), "Anatomy", "The heart has four chambers.")
	seedRecord(t, index, vectorindex.SharedNamespace, "botany", axisVector(1), "Botany", "Leaves photosynthesize.")
	seedRecord(t, index, vectorindex.AvatarNamespace("a1"), "private", axisVector(0), "Private", "Avatar-only detail.")

	retriever := New(&stubQueryEmbedder{vector: axisVector(0)}, index, log.NewNop())

	result := retriever.Search(context.Background(), "heart chambers", "", 5)
	if len(result.Chunks) != 1 {
		t.Fatalf("expected 1 chunk above the cutoff, got %d", len(result.Chunks))
	}
	chunk := result.Chunks[0]
	if chunk.Text != "The heart has four chambers." || chunk.Source != "Anatomy" {
		t.Errorf("unexpected chunk: %+v", chunk)
	}
	if chunk.Score <= minSimilarity {
		t.Errorf("returned chunk at or below cutoff: %f", chunk.Score)
	}
	if len(result.Sources) != 1 || result.Sources[0] != "Anatomy" {
		t.Errorf("unexpected sources: %v", result.Sources)
	}
}

func TestRetriever_SearchCombinesTenantAndShared(t *testing.T) {
	index := vectorindex.NewMemory()
	seedRecord(t, index, vectorindex.SharedNamespace, "shared-doc", axisVector(0), "Shared Doc", "shared text")
	seedRecord(t, index, vectorindex.AvatarNamespace("a1"), "avatar-doc", axisVector(0), "Avatar Doc", "avatar text")
	seedRecord(t, index, vectorindex.AvatarNamespace("other"), "foreign", axisVector(0), "Foreign", "must not appear")

	retriever := New(&stubQueryEmbedder{vector: axisVector(0)}, index, log.NewNop())

	result := retriever.Search(context.Background(), "query", "a1", 5)
	if len(result.Chunks) != 2 {
		t.Fatalf("expected shared+avatar chunks, got %d", len(result.Chunks))
	}
	for _, chunk := range result.Chunks {
		if chunk.Source == "Foreign" {
			t.Error("result leaked another tenant's chunk")
		}
	}
}

func TestRetriever_DropsLowScores(t *testing.T) {
	index := vectorindex.NewMemory()
	// Orthogonal to the query vector: cosine similarity 0.
	seedRecord(t, index, vectorindex.SharedNamespace, "unrelated", axisVector(3), "Unrelated", "noise")

	retriever := New(&stubQueryEmbedder{vector: axisVector(0)}, index, log.NewNop())

	result := retriever.Search(context.Background(), "query", "", 5)
	if len(result.Chunks) != 0 {
		t.Errorf("expected all matches filtered out, got %+v", result.Chunks)
	}
	if result.Chunks == nil || result.Sources == nil {
		t.Error("empty context must use empty slices, not nil")
	}
}

func TestRetriever_EmbeddingFailureReturnsEmptyContext(t *testing.T) {
	index := vectorindex.NewMemory()
	seedRecord(t, index, vectorindex.SharedNamespace, "doc", axisVector(0), "Doc", "text")

	retriever := New(&stubQueryEmbedder{err: errors.New("provider down")}, index, log.NewNop())

	result := retriever.Search(context.Background(), "query", "", 5)
	if len(result.Chunks) != 0 || len(result.Sources) != 0 {
		t.Errorf("expected empty context on embedding failure, got %+v", result)
	}
}

type failingIndex struct {
	*vectorindex.Memory
}

func (f *failingIndex) Query(context.Context, string, []float32, int, map[string]string) ([]vectorindex.Match, error) {
	return nil, errors.New("index unavailable")
}

func TestRetriever_IndexFailureReturnsEmptyContext(t *testing.T) {
	index := &failingIndex{Memory: vectorindex.NewMemory()}
	retriever := New(&stubQueryEmbedder{vector: axisVector(0)}, index, log.NewNop())

	result := retriever.Search(context.Background(), "query", "a1", 5)
	if len(result.Chunks) != 0 {
		t.Errorf("expected empty context on index failure, got %+v", result)
	}
}

func TestRetriever_SourcesAreDeduplicatedInOrder(t *testing.T) {
	index := vectorindex.NewMemory()
	// Two chunks of the same document plus one from another document.
	near := axisVector(0)
	nearer := make([]float32, vectorindex.VectorDimension)
	nearer[0] = 1
	nearer[1] = 0.01

	seedRecord(t, index, vectorindex.SharedNamespace, "a0", near, "Alpha", "alpha chunk one")
	seedRecord(t, index, vectorindex.SharedNamespace, "a1", nearer, "Alpha", "alpha chunk two")
	seedRecord(t, index, vectorindex.SharedNamespace, "b0", axisVector(1), "Beta", "beta chunk")

	retriever := New(&stubQueryEmbedder{vector: axisVector(0)}, index, log.NewNop())

	result := retriever.Search(context.Background(), "query", "", 5)
	count := make(map[string]int)
	for _, s := range result.Sources {
		count[s]++
	}
	if count["Alpha"] != 1 {
		t.Errorf("expected Alpha deduplicated to one source entry, got %d", count["Alpha"])
	}
	if len(result.Sources) > 0 && result.Sources[0] != "Alpha" {
		t.Errorf("expected the best match's source first, got %v", result.Sources)
	}
}

func TestRetriever_EmptyQueryAndDefaultTopK(t *testing.T) {
	index := vectorindex.NewMemory()
	retriever := New(&stubQueryEmbedder{vector: axisVector(0)}, index, log.NewNop())

	result := retriever.Search(context.Background(), "", "", 5)
	if len(result.Chunks) != 0 {
		t.Errorf("empty query must return empty context, got %+v", result)
	}

	// topK <= 0 falls back to the default rather than erroring.
	for i := 0; i < DefaultTopK+3; i++ {
		seedRecord(t, index, vectorindex.SharedNamespace, vectorindex.VectorID("bulk", i), axisVector(0), "Bulk", "text")
	}
	result = retriever.Search(context.Background(), "query", "", 0)
	if len(result.Chunks) != DefaultTopK {
		t.Errorf("expected %d chunks with default topK, got %d", DefaultTopK, len(result.Chunks))
	}
}
