package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/schema"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/ragstore/internal/cache"
	"github.com/fyrsmithlabs/ragstore/internal/logging"
	"github.com/fyrsmithlabs/ragstore/internal/metadata"
	"github.com/fyrsmithlabs/ragstore/internal/namespace"
	"github.com/fyrsmithlabs/ragstore/internal/splitter"
	"github.com/fyrsmithlabs/ragstore/internal/vectorstore"
)

// fakeEmbedder returns [1, len(text), i+1] per chunk and counts calls.
type fakeEmbedder struct {
	mu       sync.Mutex
	calls    int
	inputs   [][]string
	maxChunk int
	empty    bool
	panicMsg string
	err      error
}

func (f *fakeEmbedder) EmbedChunks(_ context.Context, chunks []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.inputs = append(f.inputs, chunks)
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.empty {
		return nil, nil
	}
	out := make([][]float32, len(chunks))
	for i, c := range chunks {
		out[i] = []float32{1, float32(len(c)), float32(i + 1)}
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedTextInput(context.Context, string) ([]float32, error) {
	return []float32{1, 1, 1}, nil
}

func (f *fakeEmbedder) MaxChunkLength() int { return f.maxChunk }

// recordingSplitter captures the options of every Split call.
type recordingSplitter struct {
	inner splitter.Splitter
	opts  []splitter.Options
}

func (r *recordingSplitter) Split(text string, opts splitter.Options) ([]string, error) {
	r.opts = append(r.opts, opts)
	return r.inner.Split(text, opts)
}

type fixture struct {
	pipeline *Pipeline
	manager  *namespace.Manager
	embedder *fakeEmbedder
	splitter *recordingSplitter
	cache    *cache.FileCache
	mappings *metadata.MemoryDocumentVectors
	settings *metadata.MemorySettings
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	backend, err := vectorstore.NewChromemBackend(vectorstore.ChromemConfig{}, zap.NewNop())
	require.NoError(t, err)
	fc, err := cache.NewFileCache(t.TempDir(), nil)
	require.NoError(t, err)

	f := &fixture{
		manager:  namespace.NewManager(vectorstore.StaticConnection(backend), nil),
		embedder: &fakeEmbedder{maxChunk: 8191},
		splitter: &recordingSplitter{inner: splitter.NewRecursive()},
		cache:    fc,
		mappings: metadata.NewMemoryDocumentVectors(),
		settings: metadata.NewMemorySettings(nil),
	}
	f.pipeline = New(Deps{
		Namespaces: f.manager,
		Embedder:   f.embedder,
		Splitter:   f.splitter,
		Cache:      f.cache,
		Mappings:   f.mappings,
		Settings:   f.settings,
	}, opts...)
	return f
}

func sampleDoc(id string) DocumentData {
	return DocumentData{
		ID:          id,
		PageContent: strings.Repeat("Retrieval augmented generation grounds answers in documents. ", 40),
		Metadata: map[string]any{
			"title":     "rag.txt",
			"published": "1/1/2024, 10:00:00 AM",
			"url":       "file://rag.txt",
		},
	}
}

// stored returns every vector of a namespace via a broad query.
func stored(t *testing.T, m *namespace.Manager, ns string) []vectorstore.QueryItem {
	t.Helper()
	ctx := context.Background()
	coll, err := m.Get(ctx, ns)
	require.NoError(t, err)
	n, err := coll.Count(ctx)
	require.NoError(t, err)
	items, err := coll.Query(ctx, vectorstore.Query{Vector: []float32{1, 1, 1}, TopN: n})
	require.NoError(t, err)
	return items
}

func TestIngest_EmptyContentIsNoop(t *testing.T) {
	f := newFixture(t)
	res := f.pipeline.Ingest(context.Background(), "ws", DocumentData{ID: "d"}, "a.json", false)

	assert.Equal(t, Result{Vectorized: false}, res)
	assert.Zero(t, f.embedder.calls)
	ok, err := f.manager.Exists(context.Background(), "ws")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, f.mappings.Len())
}

func TestIngest_EmbedsOnCacheMiss(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := sampleDoc("doc-1")

	res := f.pipeline.Ingest(ctx, "ws", doc, "custom-documents/rag.json", false)
	require.Equal(t, Result{Vectorized: true}, res)

	require.Equal(t, 1, f.embedder.calls)
	chunks := f.embedder.inputs[0]
	require.Greater(t, len(chunks), 1)
	header := "<document_metadata>\nsourceDocument: rag.txt\npublished: 1/1/2024, 10:00:00 AM\n</document_metadata>\n\n"
	for _, c := range chunks {
		assert.True(t, strings.HasPrefix(c, header))
	}

	count, err := f.manager.Count(ctx, "ws")
	require.NoError(t, err)
	assert.Equal(t, len(chunks), count)

	rows, err := f.mappings.Where(ctx, "doc-1")
	require.NoError(t, err)
	assert.Len(t, rows, len(chunks))

	ids := map[string]bool{}
	for _, r := range rows {
		ids[r.VectorID] = true
	}
	for _, item := range stored(t, f.manager, "ws") {
		assert.True(t, ids[item.ID], "vector %s has no mapping", item.ID)
		assert.Equal(t, "rag.txt", item.Metadata["title"])
		assert.Equal(t, "file://rag.txt", item.Metadata["url"])
		assert.Contains(t, item.Metadata["text"], "Retrieval augmented")
	}

	entry, hit, err := f.cache.Lookup(ctx, "custom-documents/rag.json")
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, len(chunks), entry.Chunks())
}

func TestIngest_CacheHitSkipsEmbedderAndMintsIDs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cached := cache.Entry{{
		{ID: "old-1", Values: []float32{1, 2, 3}, Metadata: map[string]any{"id": "old-1", "text": "one", "title": "t"}},
		{ID: "old-2", Values: []float32{1, 3, 2}, Metadata: map[string]any{"id": "old-2", "text": "two", "title": "t"}},
	}}
	require.NoError(t, f.cache.Store(ctx, cached, "doc.json"))

	res := f.pipeline.Ingest(ctx, "ws", sampleDoc("doc-2"), "doc.json", false)
	require.Equal(t, Result{Vectorized: true}, res)
	assert.Zero(t, f.embedder.calls)

	items := stored(t, f.manager, "ws")
	require.Len(t, items, 2)
	for _, item := range items {
		assert.NotEqual(t, "old-1", item.ID)
		assert.NotEqual(t, "old-2", item.ID)
		assert.NotContains(t, item.Metadata, "id")
		assert.Equal(t, "t", item.Metadata["title"])
	}

	rows, err := f.mappings.Where(ctx, "doc-2")
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	// The cached entry itself is untouched.
	entry, hit, err := f.cache.Lookup(ctx, "doc.json")
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, "old-1", entry[0][0].Metadata["id"])
}

func TestIngest_EmptyCacheEntryIsReplaced(t *testing.T) {
	tl := logging.NewTestLogger()
	f := newFixture(t, WithLogger(tl.Logger))
	ctx := context.Background()
	require.NoError(t, f.cache.Store(ctx, cache.Entry{}, "doc.json"))

	res := f.pipeline.Ingest(ctx, "ws", sampleDoc("doc-5"), "doc.json", false)
	require.True(t, res.Vectorized, res.Message())
	assert.Equal(t, 1, f.embedder.calls)
	tl.AssertLogged(t, zapcore.WarnLevel, "empty vector cache entry")

	entry, hit, err := f.cache.Lookup(ctx, "doc.json")
	require.NoError(t, err)
	require.True(t, hit)
	assert.Positive(t, entry.Chunks())
}

func TestIngest_LogsCarryNamespaceAndDocument(t *testing.T) {
	tl := logging.NewTestLogger()
	f := newFixture(t, WithLogger(tl.Logger))
	ctx := logging.WithRequestID(context.Background(), "req-7")

	require.True(t, f.pipeline.Ingest(ctx, "ws", sampleDoc("doc-6"), "", false).Vectorized)

	tl.AssertField(t, "document vectorized", "namespace", "ws")
	tl.AssertField(t, "document vectorized", "document.id", "doc-6")
	tl.AssertField(t, "document vectorized", "request.id", "req-7")
}

func TestIngest_SkipCacheAlwaysEmbeds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := sampleDoc("doc-3")

	require.True(t, f.pipeline.Ingest(ctx, "ws", doc, "doc.json", false).Vectorized)
	require.True(t, f.pipeline.Ingest(ctx, "ws", doc, "doc.json", true).Vectorized)
	assert.Equal(t, 2, f.embedder.calls)

	require.True(t, f.pipeline.Ingest(ctx, "ws", doc, "doc.json", false).Vectorized)
	assert.Equal(t, 2, f.embedder.calls)
}

func TestIngest_EmptyEmbeddingWritesNothing(t *testing.T) {
	f := newFixture(t)
	f.embedder.empty = true
	ctx := context.Background()

	res := f.pipeline.Ingest(ctx, "ws", sampleDoc("doc-4"), "doc.json", false)
	assert.False(t, res.Vectorized)
	assert.Equal(t, "Could not embed document chunks! This document will not be recorded.", res.Message())

	ok, err := f.manager.Exists(ctx, "ws")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, f.mappings.Len())
	_, hit, err := f.cache.Lookup(ctx, "doc.json")
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestIngest_ErrorsBecomeResults(t *testing.T) {
	t.Run("embedder error", func(t *testing.T) {
		f := newFixture(t)
		f.embedder.err = errors.New("model offline")
		res := f.pipeline.Ingest(context.Background(), "ws", sampleDoc("d"), "", false)
		assert.Equal(t, Failed("model offline"), res)
	})

	t.Run("panic", func(t *testing.T) {
		f := newFixture(t)
		f.embedder.panicMsg = "onnx session crashed"
		res := f.pipeline.Ingest(context.Background(), "ws", sampleDoc("d"), "", false)
		assert.False(t, res.Vectorized)
		assert.Equal(t, "onnx session crashed", res.Message())
	})

	t.Run("mapping failure", func(t *testing.T) {
		f := newFixture(t)
		f.mappings.Err = errors.New("database is locked")
		res := f.pipeline.Ingest(context.Background(), "ws", sampleDoc("d"), "", false)
		assert.False(t, res.Vectorized)
		assert.Contains(t, res.Message(), "database is locked")
	})
}

func TestIngest_ChunkSettings(t *testing.T) {
	tests := []struct {
		name        string
		settings    map[string]string
		maxChunk    int
		wantSize    int
		wantOverlap int
	}{
		{name: "fallbacks", maxChunk: 8191, wantSize: 1000, wantOverlap: 20},
		{
			name:     "settings win",
			settings: map[string]string{metadata.SettingChunkSize: "400", metadata.SettingChunkOverlap: "40"},
			maxChunk: 8191, wantSize: 400, wantOverlap: 40,
		},
		{name: "embedder caps size", maxChunk: 300, wantSize: 300, wantOverlap: 20},
		{
			name:     "garbage setting falls back",
			settings: map[string]string{metadata.SettingChunkSize: "lots"},
			maxChunk: 8191, wantSize: 1000, wantOverlap: 20,
		},
		{
			name:     "overlap not below size",
			settings: map[string]string{metadata.SettingChunkSize: "50", metadata.SettingChunkOverlap: "60"},
			maxChunk: 8191, wantSize: 50, wantOverlap: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.embedder.maxChunk = tt.maxChunk
			for k, v := range tt.settings {
				require.NoError(t, f.settings.SetValue(context.Background(), k, v))
			}

			res := f.pipeline.Ingest(context.Background(), "ws", sampleDoc("d"), "", true)
			require.True(t, res.Vectorized, res.Message())
			require.Len(t, f.splitter.opts, 1)
			assert.Equal(t, tt.wantSize, f.splitter.opts[0].ChunkSize)
			assert.Equal(t, tt.wantOverlap, f.splitter.opts[0].ChunkOverlap)
		})
	}
}

func TestIngest_ChunkFallbackOption(t *testing.T) {
	f := newFixture(t, WithChunkFallbacks(600, 0))
	require.True(t, f.pipeline.Ingest(context.Background(), "ws", sampleDoc("d"), "", true).Vectorized)
	assert.Equal(t, splitter.Options{ChunkSize: 600, ChunkOverlap: 0, Header: sampleDoc("d").header()}, f.splitter.opts[0])
}

func TestIngest_DeterministicIDs(t *testing.T) {
	n := 0
	f := newFixture(t, WithIDGenerator(func() string {
		n++
		return fmt.Sprintf("00000000-0000-0000-0000-%012d", n)
	}))
	ctx := context.Background()
	require.True(t, f.pipeline.Ingest(ctx, "ws", sampleDoc("d"), "", true).Vectorized)

	rows, err := f.mappings.Where(ctx, "d")
	require.NoError(t, err)
	assert.Equal(t, "00000000-0000-0000-0000-000000000001", rows[0].VectorID)
}

func TestToBatches(t *testing.T) {
	records := make([]vectorstore.Record, 1201)
	for i := range records {
		records[i] = vectorstore.Record{ID: fmt.Sprint(i)}
	}
	entry := toBatches(records)
	require.Len(t, entry, 3)
	assert.Len(t, entry[0], 500)
	assert.Len(t, entry[1], 500)
	assert.Len(t, entry[2], 201)
	assert.Equal(t, "1200", entry[2][200].ID)

	assert.Empty(t, toBatches(nil))
}

func TestFromSchema(t *testing.T) {
	src := schema.Document{PageContent: "hello", Metadata: map[string]any{"title": "greeting"}}
	doc := FromSchema("doc-9", src)
	assert.Equal(t, "doc-9", doc.ID)
	assert.Equal(t, "hello", doc.PageContent)
	assert.Equal(t, "greeting", doc.header().SourceDocument)

	doc.Metadata["title"] = "changed"
	assert.Equal(t, "greeting", src.Metadata["title"])
}
