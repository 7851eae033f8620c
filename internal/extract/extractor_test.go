package extract

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestExtract_PlainText(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	content := "chest width 52cm\n\nwaist 40cm"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	e := NewExtractor()
	text, err := e.Extract(path)
	if err != nil {
		t.Fatal(err)
	}
	if text != content {
		t.Errorf("plain text changed: %q", text)
	}
}

func TestExtractBytes_InvalidUTF8Replaced(t *testing.T) {
	e := NewExtractor()
	text, err := e.ExtractBytes([]byte{'o', 'k', 0xff, 0xfe}, ".txt")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(text, "ok") {
		t.Errorf("valid prefix lost: %q", text)
	}
	if !strings.ContainsRune(text, 0xfffd) {
		t.Errorf("invalid bytes not replaced: %q", text)
	}
}

// buildDOCX assembles a minimal .docx zip containing the given paragraphs.
func buildDOCX(t *testing.T, paragraphs []string) []byte {
	t.Helper()
	var body strings.Builder
	body.WriteString(`<?xml version="1.0"?><w:document><w:body>`)
	for _, p := range paragraphs {
		body.WriteString(`<w:p ><w:r><w:t>` + p + `</w:t></w:r></w:p>`)
	}
	body.WriteString(`</w:body></w:document>`)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	f, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.Write([]byte(body.String())); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestExtractBytes_DOCX(t *testing.T) {
	e := NewExtractor()
	content := buildDOCX(t, []string{"Size chart for jackets", "Chest: 52cm"})
	text, err := e.ExtractBytes(content, ".docx")
	if err != nil {
		t.Fatal(err)
	}
	want := "Size chart for jackets\n\nChest: 52cm"
	if text != want {
		t.Errorf("docx text = %q, want %q", text, want)
	}
}

func TestExtractBytes_DOCXNotAZip(t *testing.T) {
	e := NewExtractor()
	if _, err := e.ExtractBytes([]byte("plain bytes"), ".docx"); err == nil {
		t.Error("expected error for non-zip docx")
	}
}

func TestExtractBytes_DOCXMissingDocument(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	f, _ := zw.Create("word/other.xml")
	_, _ = f.Write([]byte("<w:document/>"))
	_ = zw.Close()

	e := NewExtractor()
	if _, err := e.ExtractBytes(buf.Bytes(), ".docx"); err == nil {
		t.Error("expected error when word/document.xml is absent")
	}
}

func TestExtractBytes_UnknownExtensionTreatedAsPlain(t *testing.T) {
	e := NewExtractor()
	text, err := e.ExtractBytes([]byte("some,csv,data"), ".csv")
	if err != nil {
		t.Fatal(err)
	}
	if text != "some,csv,data" {
		t.Errorf("unknown extension text = %q", text)
	}
}

func TestSupported(t *testing.T) {
	for _, ext := range []string{".txt", ".md", ".pdf", ".docx", ".xlsx", ".PDF"} {
		if !Supported(ext) {
			t.Errorf("Supported(%s) = false", ext)
		}
	}
	for _, ext := range []string{".exe", ".png", ""} {
		if Supported(ext) {
			t.Errorf("Supported(%s) = true", ext)
		}
	}
}
