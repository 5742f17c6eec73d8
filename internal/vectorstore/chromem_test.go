package vectorstore_test

import (
	"context"
	"errors"
	"testing"

	"github.com/fyrsmithlabs/ragstore/internal/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestChromemBackend_CollectionLifecycle(t *testing.T) {
	ctx := context.Background()
	b := newMemoryBackend(t)

	names, err := b.ListCollections(ctx)
	require.NoError(t, err)
	assert.Empty(t, names)

	_, err = b.GetCollection(ctx, "docs")
	assert.True(t, errors.Is(err, vectorstore.ErrNamespaceNotFound))

	_, err = b.CreateCollection(ctx, "docs", 3)
	require.NoError(t, err)
	_, err = b.CreateCollection(ctx, "docs", 3)
	assert.True(t, errors.Is(err, vectorstore.ErrCollectionExists))

	_, err = b.CreateCollection(ctx, "alpha", 3)
	require.NoError(t, err)

	names, err = b.ListCollections(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "docs"}, names)

	require.NoError(t, b.DeleteCollection(ctx, "docs"))
	err = b.DeleteCollection(ctx, "docs")
	assert.True(t, errors.Is(err, vectorstore.ErrNamespaceNotFound))

	require.NoError(t, b.Reset(ctx))
	names, err = b.ListCollections(ctx)
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestChromemBackend_EmptyNameRejected(t *testing.T) {
	b := newMemoryBackend(t)
	_, err := b.CreateCollection(context.Background(), "", 3)
	assert.True(t, errors.Is(err, vectorstore.ErrInvalidArgument))
}

func TestChromemCollection_QueryOrderAndDistance(t *testing.T) {
	ctx := context.Background()
	b := newMemoryBackend(t)

	c, err := b.CreateCollection(ctx, "docs", 3)
	require.NoError(t, err)
	require.NoError(t, c.Add(ctx, []vectorstore.Record{
		record("a", []float32{1, 0, 0}, "exact"),
		record("b", []float32{0, 1, 0}, "orthogonal"),
		record("c", []float32{0.6, 0.8, 0}, "close"),
		record("d", []float32{-1, 0, 0}, "opposite"),
	}))

	n, err := c.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	// TopN above the stored count is clamped rather than rejected.
	items, err := c.Query(ctx, vectorstore.Query{Vector: []float32{1, 0, 0}, TopN: 10})
	require.NoError(t, err)
	require.Len(t, items, 4)

	assert.Equal(t, "a", items[0].ID)
	assert.Equal(t, "c", items[1].ID)
	assert.Equal(t, "b", items[2].ID)
	assert.Equal(t, "d", items[3].ID)

	assert.InDelta(t, 0.0, items[0].Distance, 1e-5)
	assert.InDelta(t, 0.4, items[1].Distance, 1e-5)
	assert.InDelta(t, 1.0, items[2].Distance, 1e-5)
	assert.InDelta(t, 2.0, items[3].Distance, 1e-5)

	// Scores stay within [0,1].
	for i, want := range []float64{1, 0.6, 0, 0} {
		require.NotNil(t, items[i].Score, items[i].ID)
		assert.InDelta(t, want, *items[i].Score, 1e-5, items[i].ID)
	}
	assert.Equal(t, "exact", items[0].Metadata["text"])
	assert.Equal(t, "a.txt", items[0].Metadata["title"])
}

func TestChromemCollection_UpsertIsIdempotentByID(t *testing.T) {
	ctx := context.Background()
	b := newMemoryBackend(t)

	c, err := b.CreateCollection(ctx, "docs", 2)
	require.NoError(t, err)

	recs := []vectorstore.Record{record("a", []float32{1, 0}, "one")}
	require.NoError(t, c.Upsert(ctx, recs))
	require.NoError(t, c.Upsert(ctx, recs))

	n, err := c.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestChromemCollection_DimensionMismatch(t *testing.T) {
	ctx := context.Background()
	b := newMemoryBackend(t)

	c, err := b.CreateCollection(ctx, "docs", 2)
	require.NoError(t, err)

	err = c.Add(ctx, []vectorstore.Record{
		record("a", []float32{1, 0}, "one"),
		record("b", []float32{1, 0, 0}, "two"),
	})
	assert.True(t, errors.Is(err, vectorstore.ErrDimensionMismatch))
}

func TestChromemCollection_DeleteAndClear(t *testing.T) {
	ctx := context.Background()
	b := newMemoryBackend(t)

	c, err := b.CreateCollection(ctx, "docs", 2)
	require.NoError(t, err)
	require.NoError(t, c.Add(ctx, []vectorstore.Record{
		record("a", []float32{1, 0}, "one"),
		record("b", []float32{0, 1}, "two"),
		record("c", []float32{1, 1}, "three"),
	}))

	require.NoError(t, c.Delete(ctx, []string{"a", "b"}))
	n, err := c.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, c.Clear(ctx))
	n, err = c.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	// The namespace survives a clear.
	names, err := b.ListCollections(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"docs"}, names)

	// The handle stays usable after a clear.
	require.NoError(t, c.Add(ctx, []vectorstore.Record{record("d", []float32{1, 0}, "four")}))
	n, err = c.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestChromemBackend_PersistsTypedMetadata(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	b, err := vectorstore.NewChromemBackend(vectorstore.ChromemConfig{Path: dir}, zap.NewNop())
	require.NoError(t, err)

	c, err := b.CreateCollection(ctx, "docs", 2)
	require.NoError(t, err)
	require.NoError(t, c.Add(ctx, []vectorstore.Record{{
		ID:     "a",
		Values: []float32{1, 0},
		Metadata: map[string]any{
			"text":      "hello",
			"pinned":    true,
			"wordCount": 42,
		},
	}}))
	require.NoError(t, b.Close())

	reopened, err := vectorstore.NewChromemBackend(vectorstore.ChromemConfig{Path: dir}, zap.NewNop())
	require.NoError(t, err)

	c, err = reopened.GetCollection(ctx, "docs")
	require.NoError(t, err)
	items, err := c.Query(ctx, vectorstore.Query{Vector: []float32{1, 0}, TopN: 1})
	require.NoError(t, err)
	require.Len(t, items, 1)

	assert.Equal(t, "hello", items[0].Metadata["text"])
	assert.Equal(t, true, items[0].Metadata["pinned"])
	assert.Equal(t, float64(42), items[0].Metadata["wordCount"])
	assert.NotContains(t, items[0].Metadata, "_payload")
	assert.NoError(t, reopened.Heartbeat(ctx))
}
