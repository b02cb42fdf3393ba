package models

import (
	"strings"
	"unicode/utf8"

	"github.com/tmc/langchaingo/schema"
)

// SourceKey is the metadata key holding a chunk's originating URL.
const SourceKey = "source"

// IDKey is the metadata key holding the entry identifier assigned at ingestion.
const IDKey = "id"

type Document struct {
	ID       string
	URL      string
	Title    string
	Content  string
	Metadata map[string]interface{}
}

type Chunk struct {
	ID        string
	Text      string
	SourceURL string
	Index     int
}

// Answer is the result of a single question. It is never persisted.
type Answer struct {
	Text    string
	Sources []string
}

// SourcesText returns the sources joined by newlines, or "" when there are none.
func (a Answer) SourcesText() string {
	return strings.Join(a.Sources, "\n")
}

// SourceOf returns the source URL stored on a retrieved entry, or "".
func SourceOf(doc schema.Document) string {
	source, _ := doc.Metadata[SourceKey].(string)
	return source
}

// ValidText drops invalid UTF-8 sequences from s.
func ValidText(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	return strings.ToValidUTF8(s, "")
}
