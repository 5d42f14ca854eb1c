// Package chunk splits cleaned document text into overlapping, bounded-size
// segments along sentence and word boundaries. Each segment is the unit that
// receives one embedding vector.
//
// Splitting is deterministic: the same (text, maxTokens, overlapTokens)
// always produces identical boundaries.
package chunk

import (
	"strings"
)

// CharsPerToken approximates the provider's tokenizer: token budgets are
// converted to character budgets at 4 characters per token.
const CharsPerToken = 4

// boundaryWindow is how far back from a tentative cut point Split searches
// for a sentence or word boundary.
const boundaryWindow = 100

// Chunk is one contiguous segment of a document's text.
// For a document split into N chunks, Index runs exactly 0..N-1 and every
// chunk carries Total == N.
type Chunk struct {
	Text  string
	Index int
	Total int
}

// Split divides text into chunks of at most maxTokens*CharsPerToken
// characters, consecutive chunks overlapping by about
// overlapTokens*CharsPerToken characters.
//
// Each cut prefers, in order: the latest sentence-terminal punctuation
// ('.', '?', '!') within the boundary window, the latest space within the
// window, and finally the raw character boundary. Boundaries are computed
// over runes so multi-byte characters are never split.
//
// Total is backfilled after generation; the count is unknown until the whole
// text has been consumed.
func Split(text string, maxTokens, overlapTokens int) []Chunk {
	maxChars := maxTokens * CharsPerToken
	if maxChars <= 0 {
		return nil
	}
	overlapChars := overlapTokens * CharsPerToken
	if overlapChars < 0 {
		overlapChars = 0
	}

	runes := []rune(text)

	var chunks []Chunk
	start := 0
	for start < len(runes) {
		end := cutPoint(runes, start, maxChars)

		if piece := strings.TrimSpace(string(runes[start:end])); piece != "" {
			chunks = append(chunks, Chunk{Text: piece, Index: len(chunks)})
		}

		// The last chunk consumes the rest of the text; stepping back by the
		// overlap here would re-emit its tail as an extra chunk.
		if end >= len(runes) {
			break
		}

		// Step back by the overlap; when the overlap covers the whole chunk,
		// continue from the cut instead so the loop always advances.
		next := end - overlapChars
		if next <= start {
			next = end
		}
		start = next
	}

	for i := range chunks {
		chunks[i].Total = len(chunks)
	}
	return chunks
}

// cutPoint returns the exclusive end index for a chunk starting at start.
func cutPoint(runes []rune, start, maxChars int) int {
	end := start + maxChars
	if end >= len(runes) {
		return len(runes)
	}

	windowStart := end - boundaryWindow
	if windowStart < start {
		windowStart = start
	}

	// Latest sentence terminal in the window, cut inclusive.
	for i := end - 1; i >= windowStart; i-- {
		switch runes[i] {
		case '.', '?', '!':
			if i+1 > start {
				return i + 1
			}
		}
	}

	// Latest word boundary in the window.
	for i := end - 1; i >= windowStart; i-- {
		if runes[i] == ' ' && i > start {
			return i
		}
	}

	// Raw character boundary.
	return end
}
