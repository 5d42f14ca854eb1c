package extract

import (
	"archive/zip"
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestExtract_UnsupportedFormat(t *testing.T) {
	e := New()
	_, err := e.Extract([]byte("data"), "image/png")
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("Extract() = %v, want ErrUnsupportedFormat", err)
	}
}

func TestExtract_PlainTextUTF8(t *testing.T) {
	e := New()
	text, err := e.Extract([]byte("héllo wörld"), "text/plain; charset=utf-8")
	if err != nil {
		t.Fatalf("Extract() = %v", err)
	}
	if text != "héllo wörld" {
		t.Errorf("Extract() = %q", text)
	}
}

func TestExtract_PlainTextLatin1Fallback(t *testing.T) {
	e := New()
	// "café" in Latin-1: 0xE9 is not valid UTF-8.
	input := []byte{'c', 'a', 'f', 0xE9}

	text, err := e.Extract(input, "text/plain")
	if err != nil {
		t.Fatalf("Extract() = %v", err)
	}
	if text != "café" {
		t.Errorf("Extract() = %q, want %q", text, "café")
	}
}

func TestExtract_MarkdownTreatedAsText(t *testing.T) {
	e := New()
	text, err := e.Extract([]byte("# Heading"), "text/markdown")
	if err != nil {
		t.Fatalf("Extract() = %v", err)
	}
	if text != "# Heading" {
		t.Errorf("Extract() = %q", text)
	}
}

func TestExtract_EmptyTextRejected(t *testing.T) {
	e := New()
	_, err := e.Extract([]byte("   \n\t  "), "text/plain")
	if !errors.Is(err, ErrExtractionFailed) {
		t.Errorf("Extract() = %v, want ErrExtractionFailed", err)
	}
}

func TestExtract_MalformedPDF(t *testing.T) {
	e := New()
	_, err := e.Extract([]byte("definitely not a pdf"), MediaTypePDF)
	if !errors.Is(err, ErrExtractionFailed) {
		t.Errorf("Extract() = %v, want ErrExtractionFailed", err)
	}
}

func TestExtract_Docx(t *testing.T) {
	docXML := `<?xml version="1.0"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>First paragraph.</w:t></w:r></w:p>
    <w:p><w:r><w:t>Second </w:t></w:r><w:r><w:t>paragraph.</w:t></w:r></w:p>
    <w:p></w:p>
  </w:body>
</w:document>`

	e := New()
	text, err := e.Extract(buildDocx(t, docXML), MediaTypeDocx)
	if err != nil {
		t.Fatalf("Extract() = %v", err)
	}

	want := "First paragraph.\n\nSecond paragraph."
	if text != want {
		t.Errorf("Extract() = %q, want %q", text, want)
	}
}

func TestExtract_DocxWithoutTextLayer(t *testing.T) {
	docXML := `<?xml version="1.0"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body><w:p></w:p></w:body>
</w:document>`

	e := New()
	_, err := e.Extract(buildDocx(t, docXML), MediaTypeDocx)
	if !errors.Is(err, ErrExtractionFailed) {
		t.Errorf("Extract() = %v, want ErrExtractionFailed", err)
	}
}

func TestExtract_DocxNotAZip(t *testing.T) {
	e := New()
	_, err := e.Extract([]byte("plain bytes"), MediaTypeDocx)
	if !errors.Is(err, ErrExtractionFailed) {
		t.Errorf("Extract() = %v, want ErrExtractionFailed", err)
	}
}

func TestDecodeText_ControlBytesFallThroughToASCII(t *testing.T) {
	// Invalid UTF-8 that survives Latin-1 decoding; verifies the chain stops
	// at Latin-1 rather than stripping to ASCII.
	input := []byte{0xFF, 0xFE, 'o', 'k'}
	text, err := decodeText(input)
	if err != nil {
		t.Fatalf("decodeText() = %v", err)
	}
	if !strings.Contains(text, "ok") {
		t.Errorf("decodeText() = %q, want it to contain %q", text, "ok")
	}
}

// buildDocx assembles a minimal DOCX container around the given
// word/document.xml payload.
func buildDocx(t *testing.T, documentXML string) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	w, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatalf("creating zip entry: %v", err)
	}
	if _, err := w.Write([]byte(documentXML)); err != nil {
		t.Fatalf("writing zip entry: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("closing zip: %v", err)
	}

	return buf.Bytes()
}
