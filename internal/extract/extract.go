// Package extract converts raw uploaded bytes into plain text suitable for
// chunking and embedding.
//
// Supported media types:
//   - application/pdf
//   - text/plain (and any text/* subtype), with an encoding fallback chain
//   - application/vnd.openxmlformats-officedocument.wordprocessingml.document
//
// Extraction concatenates per-page (PDF) or per-paragraph (DOCX) text in
// document order, separated by blank lines.
package extract

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnsupportedFormat indicates the declared media type has no extractor.
	ErrUnsupportedFormat = errors.New("unsupported document format")

	// ErrExtractionFailed indicates the document could not be parsed or
	// produced no usable text.
	ErrExtractionFailed = errors.New("text extraction failed")

	// ErrEncodingFallbackExhausted indicates no codec in the fallback chain
	// decoded the input cleanly.
	ErrEncodingFallbackExhausted = errors.New("encoding fallback exhausted")
)

// Media types recognized by Extract.
const (
	MediaTypePDF  = "application/pdf"
	MediaTypeText = "text/plain"
	MediaTypeDocx = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

// Extractor converts raw document bytes into plain text.
type Extractor struct{}

// New creates an Extractor.
func New() *Extractor {
	return &Extractor{}
}

// Extract converts data of the declared media type into plain text.
// Media type parameters ("text/plain; charset=utf-8") are ignored.
// Returns ErrUnsupportedFormat for unrecognized types and ErrExtractionFailed
// when parsing succeeds but yields no text.
func (e *Extractor) Extract(data []byte, mediaType string) (string, error) {
	base := normalizeMediaType(mediaType)

	var (
		text string
		err  error
	)
	switch {
	case base == MediaTypePDF:
		text, err = extractPDF(data)
	case base == MediaTypeDocx:
		text, err = extractDocx(data)
	case base == MediaTypeText || strings.HasPrefix(base, "text/"):
		text, err = decodeText(data)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, mediaType)
	}
	if err != nil {
		return "", err
	}

	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: document contains no extractable text", ErrExtractionFailed)
	}
	return text, nil
}

// normalizeMediaType strips parameters and lowercases the base type.
func normalizeMediaType(mediaType string) string {
	base, _, _ := strings.Cut(mediaType, ";")
	return strings.ToLower(strings.TrimSpace(base))
}
