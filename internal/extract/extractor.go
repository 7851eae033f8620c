// Package extract pulls plain text out of research documents so they can be
// chunked and embedded. Paragraph boundaries (blank lines) are preserved
// because the ingestion chunker splits on them.
package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Extractor extracts plain text from knowledge document files.
type Extractor struct{}

// NewExtractor returns a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract reads the file at path and returns its text content.
// Plain text files (.txt, .md) are returned as-is (UTF-8 validated).
// PDF, DOCX, and XLSX are converted from their binary formats; unknown
// extensions are treated as plain text.
func (e *Extractor) Extract(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	ext := strings.ToLower(filepath.Ext(path))
	return e.ExtractBytes(content, ext)
}

// ExtractBytes extracts text from content based on the given extension.
// ext should include the leading dot (e.g. ".pdf").
func (e *Extractor) ExtractBytes(content []byte, ext string) (string, error) {
	switch ext {
	case ".pdf":
		return extractPDF(content)
	case ".docx":
		return extractDOCX(content)
	case ".xlsx":
		return extractExcel(content)
	default:
		return extractPlain(content)
	}
}

// Supported reports whether the extension is one of the formats the
// ingestion pipeline accepts.
func Supported(ext string) bool {
	switch strings.ToLower(ext) {
	case ".txt", ".md", ".pdf", ".docx", ".xlsx":
		return true
	default:
		return false
	}
}
