package vectorstore_test

import (
	"context"
	"testing"

	"github.com/fyrsmithlabs/ragstore/internal/vectorstore"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// newMemoryBackend returns an in-memory chromem backend.
func newMemoryBackend(t *testing.T) *vectorstore.ChromemBackend {
	t.Helper()
	b, err := vectorstore.NewChromemBackend(vectorstore.ChromemConfig{}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func record(id string, values []float32, text string) vectorstore.Record {
	return vectorstore.Record{
		ID:     id,
		Values: values,
		Metadata: map[string]any{
			"text":  text,
			"title": id + ".txt",
		},
	}
}

// countingBackend records how often it was opened and closed.
type countingBackend struct {
	vectorstore.Backend
	closed int
}

func (b *countingBackend) Close() error {
	b.closed++
	return nil
}

func (b *countingBackend) Heartbeat(context.Context) error { return nil }
