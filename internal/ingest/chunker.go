// Package ingest splits knowledge documents into bounded chunks and feeds
// them to the chunk store.
package ingest

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var blankLine = regexp.MustCompile(`\n[ \t]*\n`)

// SplitParagraphs splits text on blank-line boundaries and returns the
// trimmed, non-empty paragraphs in order.
func SplitParagraphs(text string) []string {
	parts := blankLine.Split(strings.ReplaceAll(text, "\r\n", "\n"), -1)
	paragraphs := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			paragraphs = append(paragraphs, p)
		}
	}
	return paragraphs
}

// Chunk splits text on paragraph boundaries and greedily accumulates
// paragraphs until adding the next one would exceed maxSize, measured in
// characters (runes). A single paragraph longer than maxSize is emitted as
// its own oversized chunk rather than split mid-paragraph (documented
// limitation). Paragraph order is preserved; nothing is dropped or
// duplicated. Empty or whitespace-only text yields no chunks.
func Chunk(text string, maxSize int) []string {
	paragraphs := SplitParagraphs(text)
	if len(paragraphs) == 0 {
		return nil
	}
	if maxSize <= 0 {
		return []string{strings.Join(paragraphs, "\n\n")}
	}

	var chunks []string
	var current []string
	currentSize := 0
	for _, para := range paragraphs {
		paraSize := utf8.RuneCountInString(para)
		if len(current) > 0 && currentSize+paraSize > maxSize {
			chunks = append(chunks, strings.Join(current, "\n\n"))
			current = current[:0]
			currentSize = 0
		}
		current = append(current, para)
		currentSize += paraSize
	}
	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, "\n\n"))
	}
	return chunks
}
