package ingest

import (
	"fmt"
	"maps"

	"github.com/tmc/langchaingo/schema"

	"github.com/fyrsmithlabs/ragstore/internal/splitter"
)

// DocumentData is a parsed document ready to be vectorized.
type DocumentData struct {
	// ID is the document id used for vector mappings.
	ID string `json:"docId"`
	// PageContent is the full text.
	PageContent string `json:"pageContent"`
	// Metadata is copied onto every vector. Well-known keys are "title" and
	// "published".
	Metadata map[string]any `json:"metadata,omitempty"`
}

// FromSchema converts a langchaingo document.
func FromSchema(docID string, doc schema.Document) DocumentData {
	return DocumentData{
		ID:          docID,
		PageContent: doc.PageContent,
		Metadata:    maps.Clone(doc.Metadata),
	}
}

// header builds the chunk header from the title and published metadata.
func (d DocumentData) header() splitter.Header {
	return splitter.Header{
		SourceDocument: stringField(d.Metadata, "title"),
		Published:      stringField(d.Metadata, "published"),
	}
}

// chunkMetadata is the document metadata plus the chunk text.
func (d DocumentData) chunkMetadata(text string) map[string]any {
	meta := make(map[string]any, len(d.Metadata)+1)
	maps.Copy(meta, d.Metadata)
	meta["text"] = text
	return meta
}

func stringField(m map[string]any, key string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
