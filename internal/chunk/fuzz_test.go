package chunk

import (
	"strings"
	"testing"
	"unicode/utf8"
)

// FuzzSplit_TerminatesAndHoldsInvariants checks that splitting any input
// terminates, makes forward progress, and preserves the index/total
// invariants, including pathological budgets where overlap approaches or
// exceeds the chunk size.
func FuzzSplit_TerminatesAndHoldsInvariants(f *testing.F) {
	f.Add("Hello world. How are you?", 10, 2)
	f.Add(strings.Repeat("a", 5000), 100, 99)
	f.Add(strings.Repeat("word ", 1000), 50, 50)
	f.Add("no terminals here just words all the way down", 2, 1)
	f.Add("héllo wörld 你好世界", 3, 1)
	f.Add("", 100, 10)
	f.Add("....", 1, 0)
	f.Add("   ", 5, 5)

	f.Fuzz(func(t *testing.T, text string, maxTokens, overlapTokens int) {
		// Budgets outside the configured range are rejected at config
		// validation; keep the fuzz domain near it but include the
		// overlap >= max pathology.
		if maxTokens < 1 || maxTokens > 1000 {
			t.Skip()
		}
		if overlapTokens < 0 || overlapTokens > maxTokens {
			t.Skip()
		}

		chunks := Split(text, maxTokens, overlapTokens)

		for i, c := range chunks {
			if c.Index != i {
				t.Fatalf("chunk %d has Index %d", i, c.Index)
			}
			if c.Total != len(chunks) {
				t.Fatalf("chunk %d has Total %d, want %d", i, c.Total, len(chunks))
			}
			if strings.TrimSpace(c.Text) == "" {
				t.Fatalf("chunk %d is blank", i)
			}
			if !utf8.ValidString(c.Text) {
				t.Fatalf("chunk %d contains invalid UTF-8", i)
			}
		}

		// Whitespace-only input must yield no chunks; anything else must
		// yield at least one.
		if strings.TrimSpace(text) != "" && utf8.ValidString(text) && len(chunks) == 0 {
			t.Fatalf("non-empty input produced no chunks")
		}
	})
}
