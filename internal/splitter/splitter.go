// Package splitter breaks document text into overlapping chunks.
package splitter

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"
)

// ErrInvalidOptions is returned for non-positive chunk sizes or an overlap
// that is not smaller than the chunk size.
var ErrInvalidOptions = errors.New("invalid splitter options")

// Options controls a single Split call.
type Options struct {
	ChunkSize    int
	ChunkOverlap int
	// Header is prepended to every chunk when non-empty.
	Header Header
}

// Header is the document metadata block placed in front of each chunk so
// the embedding carries the document's identity.
type Header struct {
	SourceDocument string
	Published      string
}

// String renders the header block, or "" when no field is set.
func (h Header) String() string {
	if h.SourceDocument == "" && h.Published == "" {
		return ""
	}
	var b strings.Builder
	b.WriteString("<document_metadata>\n")
	if h.SourceDocument != "" {
		b.WriteString("sourceDocument: " + h.SourceDocument + "\n")
	}
	if h.Published != "" {
		b.WriteString("published: " + h.Published + "\n")
	}
	b.WriteString("</document_metadata>\n\n")
	return b.String()
}

// Splitter splits text into ordered chunks.
type Splitter interface {
	Split(text string, opts Options) ([]string, error)
}

// RecursiveSplitter splits on paragraph, line, then word boundaries.
type RecursiveSplitter struct {
	separators []string
}

// NewRecursive returns a splitter using langchaingo's default separators.
func NewRecursive() *RecursiveSplitter {
	return &RecursiveSplitter{separators: []string{"\n\n", "\n", " ", ""}}
}

// Split returns the chunks of text in document order. Whitespace-only chunks
// are dropped.
func (s *RecursiveSplitter) Split(text string, opts Options) ([]string, error) {
	if opts.ChunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidOptions, opts.ChunkSize)
	}
	if opts.ChunkOverlap < 0 || opts.ChunkOverlap >= opts.ChunkSize {
		return nil, fmt.Errorf("%w: chunk overlap %d must be in [0, %d)", ErrInvalidOptions, opts.ChunkOverlap, opts.ChunkSize)
	}

	rc := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(opts.ChunkSize),
		textsplitter.WithChunkOverlap(opts.ChunkOverlap),
		textsplitter.WithSeparators(s.separators),
	)
	parts, err := rc.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("splitting text: %w", err)
	}

	header := opts.Header.String()
	chunks := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			continue
		}
		chunks = append(chunks, header+p)
	}
	return chunks, nil
}

// EffectiveChunkSize caps preferred at the embedder's limit. A non-positive
// preferred size takes the limit; a non-positive limit means uncapped.
func EffectiveChunkSize(preferred, limit int) int {
	if limit <= 0 {
		return preferred
	}
	if preferred <= 0 || preferred > limit {
		return limit
	}
	return preferred
}
