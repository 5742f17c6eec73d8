package ingest

import (
	"context"
	"fmt"
	"maps"

	"github.com/fyrsmithlabs/ragstore/internal/cache"
	"github.com/fyrsmithlabs/ragstore/internal/embeddings"
	"github.com/fyrsmithlabs/ragstore/internal/splitter"
)

// Chunk is one vector and its metadata before an id is assigned.
type Chunk struct {
	Values   []float32
	Metadata map[string]any
}

// ChunkSource yields the vectors to write for one document.
type ChunkSource interface {
	// Chunks returns vectors in document order.
	Chunks(ctx context.Context) ([]Chunk, error)
	// Name labels the source in logs and metrics.
	Name() string
	// Cacheable reports whether the result should be written to the cache.
	Cacheable() bool
}

// cachedSource replays a cache entry. The cached ids are dropped so every
// ingest mints fresh vector ids.
type cachedSource struct {
	entry cache.Entry
}

func (s cachedSource) Chunks(context.Context) ([]Chunk, error) {
	out := make([]Chunk, 0, s.entry.Chunks())
	for _, batch := range s.entry {
		for _, c := range batch {
			meta := maps.Clone(c.Metadata)
			if meta == nil {
				meta = map[string]any{}
			}
			delete(meta, "id")
			out = append(out, Chunk{Values: c.Values, Metadata: meta})
		}
	}
	return out, nil
}

func (cachedSource) Name() string    { return "cache" }
func (cachedSource) Cacheable() bool { return false }

// embeddedSource splits the document and embeds every chunk in one call.
type embeddedSource struct {
	doc      DocumentData
	splitter splitter.Splitter
	embedder embeddings.Embedder
	opts     splitter.Options
}

func (s embeddedSource) Chunks(ctx context.Context) ([]Chunk, error) {
	opts := s.opts
	opts.Header = s.doc.header()

	texts, err := s.splitter.Split(s.doc.PageContent, opts)
	if err != nil {
		return nil, err
	}
	if len(texts) == 0 {
		return nil, ErrEmbeddingFailure
	}

	vectors, err := s.embedder.EmbedChunks(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, ErrEmbeddingFailure
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w (got %d vectors for %d chunks)", ErrEmbeddingFailure, len(vectors), len(texts))
	}

	out := make([]Chunk, len(vectors))
	for i, v := range vectors {
		out[i] = Chunk{Values: v, Metadata: s.doc.chunkMetadata(texts[i])}
	}
	return out, nil
}

func (embeddedSource) Name() string    { return "embedder" }
func (embeddedSource) Cacheable() bool { return true }
