// Package ingest turns a document into vectors in a namespace.
//
// A document is either replayed from the embedding cache or split and
// embedded. Both paths end the same way: fresh vector ids, one write to the
// namespace, the cache refreshed, and document-to-vector mappings persisted.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragstore/internal/cache"
	"github.com/fyrsmithlabs/ragstore/internal/embeddings"
	"github.com/fyrsmithlabs/ragstore/internal/logging"
	"github.com/fyrsmithlabs/ragstore/internal/metadata"
	"github.com/fyrsmithlabs/ragstore/internal/splitter"
	"github.com/fyrsmithlabs/ragstore/internal/vectorstore"
)

var tracer = otel.Tracer("ragstore.ingest")

// ErrEmbeddingFailure is returned when the embedder yields no vectors for a
// non-empty document.
var ErrEmbeddingFailure = errors.New("Could not embed document chunks! This document will not be recorded.") //nolint:staticcheck // user-facing message

// CacheBatchSize is the number of records per cached batch.
const CacheBatchSize = 500

// Chunking fallbacks when the settings table has no value.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 20
)

// Result is the outcome of one Ingest call. Error is nil on success and
// serializes as null.
type Result struct {
	Vectorized bool    `json:"vectorized"`
	Error      *string `json:"error"`
}

// Failed returns an unvectorized Result carrying msg.
func Failed(msg string) Result {
	return Result{Vectorized: false, Error: &msg}
}

// Message returns the error message, or "" on success.
func (r Result) Message() string {
	if r.Error == nil {
		return ""
	}
	return *r.Error
}

// NamespaceWriter writes records into a namespace, creating it if needed.
type NamespaceWriter interface {
	CreateOrUpdate(ctx context.Context, records []vectorstore.Record, namespace string) error
}

// Deps are the collaborators of a Pipeline. Cache may be nil.
type Deps struct {
	Namespaces NamespaceWriter
	Embedder   embeddings.Embedder
	Splitter   splitter.Splitter
	Cache      cache.Cache
	Mappings   metadata.DocumentVectorStore
	Settings   metadata.SettingsProvider
}

// Pipeline ingests documents. It holds no per-call state and is safe for
// concurrent use.
type Pipeline struct {
	deps      Deps
	fallbacks splitter.Options
	logger    *logging.Logger
	newID     func() string
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithChunkFallbacks overrides the chunk size and overlap used when the
// settings table has no value.
func WithChunkFallbacks(size, overlap int) Option {
	return func(p *Pipeline) {
		if size > 0 {
			p.fallbacks.ChunkSize = size
		}
		if overlap >= 0 {
			p.fallbacks.ChunkOverlap = overlap
		}
	}
}

// WithIDGenerator replaces the UUID generator for vector ids.
func WithIDGenerator(fn func() string) Option {
	return func(p *Pipeline) { p.newID = fn }
}

// New creates a Pipeline.
func New(deps Deps, opts ...Option) *Pipeline {
	p := &Pipeline{
		deps:      deps,
		fallbacks: splitter.Options{ChunkSize: DefaultChunkSize, ChunkOverlap: DefaultChunkOverlap},
		logger:    logging.NewNop(),
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Ingest vectorizes doc into namespace. It never returns an error: failures
// and panics are reported in Result.Error with Vectorized false.
func (p *Pipeline) Ingest(ctx context.Context, namespace string, doc DocumentData, sourceFilePath string, skipCache bool) (res Result) {
	ctx, span := tracer.Start(ctx, "Pipeline.Ingest")
	defer span.End()
	ctx = logging.WithDocumentID(logging.WithNamespace(ctx, namespace), doc.ID)
	span.SetAttributes(
		attribute.String("namespace", namespace),
		attribute.String("document.id", doc.ID),
		attribute.Bool("skip_cache", skipCache),
	)

	source := "none"
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error(ctx, "ingestion panicked", zap.Any("panic", r))
			res = Failed(fmt.Sprint(r))
		}
		switch {
		case res.Error != nil:
			span.SetStatus(codes.Error, *res.Error)
			vectorstore.RecordIngest(source, "error")
		case res.Vectorized:
			vectorstore.RecordIngest(source, "success")
		default:
			vectorstore.RecordIngest(source, "skipped")
		}
	}()

	if doc.PageContent == "" {
		return Result{Vectorized: false}
	}

	src, err := p.source(ctx, doc, sourceFilePath, skipCache)
	if err != nil {
		return p.fail(ctx, err)
	}
	source = src.Name()
	span.SetAttributes(attribute.String("source", source))

	n, err := p.write(ctx, namespace, doc, src, sourceFilePath)
	if err != nil {
		return p.fail(ctx, err)
	}

	p.logger.Info(ctx, "document vectorized", zap.String("source", source), zap.Int("vectors", n))
	return Result{Vectorized: true}
}

func (p *Pipeline) fail(ctx context.Context, err error) Result {
	p.logger.Error(ctx, "ingestion failed", zap.Error(err))
	return Failed(err.Error())
}

// source picks the cache when it holds the file, the embedder otherwise.
// An entry without chunks is dropped so the embedded result replaces it.
func (p *Pipeline) source(ctx context.Context, doc DocumentData, sourceFilePath string, skipCache bool) (ChunkSource, error) {
	if !skipCache && p.deps.Cache != nil && sourceFilePath != "" {
		entry, hit, err := p.deps.Cache.Lookup(ctx, sourceFilePath)
		switch {
		case err != nil:
			p.logger.Warn(ctx, "vector cache lookup failed, embedding instead",
				zap.String("source", sourceFilePath), zap.Error(err))
		case hit && entry.Chunks() > 0:
			return cachedSource{entry: entry}, nil
		case hit:
			p.logger.Warn(ctx, "empty vector cache entry, embedding instead", zap.String("source", sourceFilePath))
			if err := p.deps.Cache.Delete(ctx, sourceFilePath); err != nil {
				p.logger.Warn(ctx, "dropping vector cache entry failed",
					zap.String("source", sourceFilePath), zap.Error(err))
			}
		}
	}

	return embeddedSource{
		doc:      doc,
		splitter: p.deps.Splitter,
		embedder: p.deps.Embedder,
		opts:     p.chunkOptions(ctx),
	}, nil
}

// chunkOptions reads the chunking settings and caps the size at the
// embedder's limit.
func (p *Pipeline) chunkOptions(ctx context.Context) splitter.Options {
	size := p.intSetting(ctx, metadata.SettingChunkSize, p.fallbacks.ChunkSize, 1)
	overlap := p.intSetting(ctx, metadata.SettingChunkOverlap, p.fallbacks.ChunkOverlap, 0)

	size = splitter.EffectiveChunkSize(size, p.deps.Embedder.MaxChunkLength())
	if overlap >= size {
		p.logger.Warn(ctx, "chunk overlap not smaller than chunk size, disabling overlap",
			zap.Int("chunk_size", size), zap.Int("chunk_overlap", overlap))
		overlap = 0
	}
	return splitter.Options{ChunkSize: size, ChunkOverlap: overlap}
}

// intSetting returns the setting as an int, or fallback when it is unset,
// unreadable or below floor.
func (p *Pipeline) intSetting(ctx context.Context, label string, fallback, floor int) int {
	if p.deps.Settings == nil {
		return fallback
	}
	raw, err := p.deps.Settings.GetValueOrFallback(ctx, label, strconv.Itoa(fallback))
	if err != nil {
		p.logger.Warn(ctx, "reading setting failed, using fallback", zap.String("label", label), zap.Error(err))
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < floor {
		p.logger.Warn(ctx, "invalid setting, using fallback", zap.String("label", label), zap.String("value", raw))
		return fallback
	}
	return v
}

// write is the shared tail of both sources. It returns the number of
// vectors written.
func (p *Pipeline) write(ctx context.Context, namespace string, doc DocumentData, src ChunkSource, sourceFilePath string) (int, error) {
	chunks, err := src.Chunks(ctx)
	if err != nil {
		return 0, err
	}

	records := make([]vectorstore.Record, len(chunks))
	mappings := make([]metadata.DocumentVector, len(chunks))
	for i, c := range chunks {
		id := p.newID()
		records[i] = vectorstore.Record{ID: id, Values: c.Values, Metadata: c.Metadata}
		mappings[i] = metadata.DocumentVector{DocID: doc.ID, VectorID: id}
	}

	if err := p.deps.Namespaces.CreateOrUpdate(ctx, records, namespace); err != nil {
		return 0, err
	}

	if src.Cacheable() && p.deps.Cache != nil && sourceFilePath != "" {
		if err := p.deps.Cache.Store(ctx, toBatches(records), sourceFilePath); err != nil {
			p.logger.Warn(ctx, "vector cache store failed",
				zap.String("source", sourceFilePath), zap.Error(err))
		}
	}

	if err := p.deps.Mappings.BulkInsert(ctx, mappings); err != nil {
		return 0, fmt.Errorf("persisting document vectors: %w", err)
	}
	return len(records), nil
}

// toBatches groups records into cache batches of CacheBatchSize.
func toBatches(records []vectorstore.Record) cache.Entry {
	entry := make(cache.Entry, 0, (len(records)+CacheBatchSize-1)/CacheBatchSize)
	for start := 0; start < len(records); start += CacheBatchSize {
		end := min(start+CacheBatchSize, len(records))
		batch := make(cache.ChunkBatch, 0, end-start)
		for _, r := range records[start:end] {
			batch = append(batch, cache.CachedChunk{ID: r.ID, Values: r.Values, Metadata: r.Metadata})
		}
		entry = append(entry, batch)
	}
	return entry
}
