package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestVectorID_Deterministic(t *testing.T) {
	if got := VectorID("doc-1", 0); got != "doc-1_chunk_0" {
		t.Errorf("VectorID = %q", got)
	}
	if got := VectorID("doc-1", 42); got != "doc-1_chunk_42" {
		t.Errorf("VectorID = %q", got)
	}
}

func TestAvatarNamespace_NeverOverlapsShared(t *testing.T) {
	if got := AvatarNamespace("tutor-7"); got != "avatar-tutor-7" {
		t.Errorf("AvatarNamespace = %q", got)
	}
	// Even a malicious avatar ID cannot collide with the shared pool.
	if AvatarNamespace("shared") == SharedNamespace {
		t.Error("avatar namespace collided with shared pool")
	}
}

// stubIndex records Query calls and serves canned matches per namespace.
type stubIndex struct {
	Memory
	matches  map[string][]Match
	queryKs  map[string]int
	queryErr error
}

func newStubIndex() *stubIndex {
	return &stubIndex{
		matches: make(map[string][]Match),
		queryKs: make(map[string]int),
	}
}

func (s *stubIndex) Query(_ context.Context, namespace string, _ []float32, topK int, _ map[string]string) ([]Match, error) {
	s.queryKs[namespace] = topK
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	out := s.matches[namespace]
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

func matchesWithScores(prefix string, scores ...float32) []Match {
	out := make([]Match, len(scores))
	for i, score := range scores {
		out[i] = Match{ID: fmt.Sprintf("%s-%d", prefix, i), Score: score}
	}
	return out
}

func TestSearchCombined_MergeSortTruncate(t *testing.T) {
	idx := newStubIndex()
	idx.matches[SharedNamespace] = matchesWithScores("shared", 0.9, 0.5, 0.3)
	idx.matches[AvatarNamespace("a1")] = matchesWithScores("avatar", 0.8, 0.7, 0.1)

	got, err := SearchCombined(context.Background(), idx, "a1", []float32{1}, 5)
	if err != nil {
		t.Fatalf("SearchCombined() = %v", err)
	}

	if len(got) > 5 {
		t.Errorf("len = %d, want <= 5", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].Score > got[i-1].Score {
			t.Errorf("matches not sorted descending at %d: %v > %v", i, got[i].Score, got[i-1].Score)
		}
	}
	if got[0].ID != "shared-0" {
		t.Errorf("top match = %q, want shared-0", got[0].ID)
	}
}

func TestSearchCombined_HalvesTopKPerPool(t *testing.T) {
	idx := newStubIndex()

	if _, err := SearchCombined(context.Background(), idx, "a1", []float32{1}, 5); err != nil {
		t.Fatalf("SearchCombined() = %v", err)
	}

	// ceil(5/2) = 3 per pool.
	if idx.queryKs[SharedNamespace] != 3 {
		t.Errorf("shared topK = %d, want 3", idx.queryKs[SharedNamespace])
	}
	if idx.queryKs[AvatarNamespace("a1")] != 3 {
		t.Errorf("avatar topK = %d, want 3", idx.queryKs[AvatarNamespace("a1")])
	}
}

func TestSearchCombined_TruncatesToTopK(t *testing.T) {
	idx := newStubIndex()
	idx.matches[SharedNamespace] = matchesWithScores("shared", 0.9, 0.8)
	idx.matches[AvatarNamespace("a1")] = matchesWithScores("avatar", 0.7, 0.6)

	got, err := SearchCombined(context.Background(), idx, "a1", []float32{1}, 3)
	if err != nil {
		t.Fatalf("SearchCombined() = %v", err)
	}
	if len(got) != 3 {
		t.Errorf("len = %d, want 3", len(got))
	}
}

func TestSearchCombined_PropagatesQueryError(t *testing.T) {
	idx := newStubIndex()
	idx.queryErr = errors.New("index unavailable")

	if _, err := SearchCombined(context.Background(), idx, "a1", []float32{1}, 5); err == nil {
		t.Error("expected error, got nil")
	}
}

func TestSearchCombined_ZeroTopK(t *testing.T) {
	idx := newStubIndex()
	got, err := SearchCombined(context.Background(), idx, "a1", []float32{1}, 0)
	if err != nil || got != nil {
		t.Errorf("SearchCombined(0) = %v, %v; want nil, nil", got, err)
	}
}
