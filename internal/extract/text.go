package extract

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// decodeText decodes plain-text bytes with a fallback chain:
// strict UTF-8, then Latin-1, then a printable-ASCII filter.
// Returns ErrEncodingFallbackExhausted when no step produces usable text.
func decodeText(data []byte) (string, error) {
	if utf8.Valid(data) {
		return string(data), nil
	}

	// Latin-1 maps every byte to a code point, so decoding only fails on
	// internal transformer errors; treat any failure as a signal to fall
	// through to ASCII.
	if decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(data); err == nil {
		return string(decoded), nil
	}

	ascii := toASCII(data)
	if strings.TrimSpace(ascii) == "" {
		return "", fmt.Errorf("%w: input is not UTF-8, Latin-1, or ASCII", ErrEncodingFallbackExhausted)
	}
	return ascii, nil
}

// toASCII keeps printable ASCII and common whitespace, dropping everything
// else.
func toASCII(data []byte) string {
	var b strings.Builder
	b.Grow(len(data))
	for _, c := range data {
		switch {
		case c >= 0x20 && c < 0x7f:
			b.WriteByte(c)
		case c == '\n' || c == '\r' || c == '\t':
			b.WriteByte(c)
		}
	}
	return b.String()
}
