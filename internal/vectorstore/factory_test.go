package vectorstore_test

import (
	"context"
	"errors"
	"testing"

	"github.com/fyrsmithlabs/ragstore/internal/config"
	"github.com/fyrsmithlabs/ragstore/internal/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestConnection_DialsOnceAndReuses(t *testing.T) {
	dials := 0
	backend := &countingBackend{}
	conn := vectorstore.NewConnection(func(context.Context) (vectorstore.Backend, error) {
		dials++
		return backend, nil
	}, zap.NewNop())

	for i := 0; i < 3; i++ {
		b, err := conn.Backend(context.Background())
		require.NoError(t, err)
		assert.Same(t, backend, b)
	}
	assert.Equal(t, 1, dials)

	require.NoError(t, conn.Close())
	assert.Equal(t, 1, backend.closed)

	_, err := conn.Backend(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, dials)
}

func TestConnection_FailedDialIsRetried(t *testing.T) {
	fail := true
	conn := vectorstore.NewConnection(func(context.Context) (vectorstore.Backend, error) {
		if fail {
			return nil, errors.New("refused")
		}
		return &countingBackend{}, nil
	}, nil)

	_, err := conn.Backend(context.Background())
	require.Error(t, err)

	fail = false
	_, err = conn.Backend(context.Background())
	assert.NoError(t, err)
}

func TestConnection_NoDialer(t *testing.T) {
	conn := vectorstore.NewConnection(nil, nil)
	_, err := conn.Backend(context.Background())
	assert.True(t, errors.Is(err, vectorstore.ErrConfiguration))
}

func TestNewDialer_Chromem(t *testing.T) {
	cfg := config.Default()
	cfg.VectorStore.Chromem.Path = t.TempDir()

	dial, err := vectorstore.NewDialer(cfg, zap.NewNop())
	require.NoError(t, err)

	b, err := dial(context.Background())
	require.NoError(t, err)
	defer b.Close()

	assert.IsType(t, &vectorstore.ChromemBackend{}, b)
}

func TestNewDialer_UnknownProvider(t *testing.T) {
	cfg := config.Default()
	cfg.VectorStore.Provider = "lancedb"

	_, err := vectorstore.NewDialer(cfg, zap.NewNop())
	assert.True(t, errors.Is(err, vectorstore.ErrConfiguration))
}
