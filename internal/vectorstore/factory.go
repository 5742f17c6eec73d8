package vectorstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/fyrsmithlabs/ragstore/internal/config"
	"go.uber.org/zap"
)

// Dialer opens a backend. It is called at most once per successful connection.
type Dialer func(ctx context.Context) (Backend, error)

// Connection lazily opens one backend handle and shares it between callers.
//
// A failed dial is not cached; the next call retries. Close drops the handle
// so a later call reconnects (used after Reset wipes on-disk state).
type Connection struct {
	mu      sync.Mutex
	dial    Dialer
	backend Backend
	logger  *zap.Logger
}

// NewConnection wraps a dialer. Nothing is opened until Backend is called.
func NewConnection(dial Dialer, logger *zap.Logger) *Connection {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Connection{dial: dial, logger: logger}
}

// StaticConnection wraps an already-open backend.
func StaticConnection(backend Backend) *Connection {
	return &Connection{
		dial:    func(context.Context) (Backend, error) { return backend, nil },
		backend: backend,
		logger:  zap.NewNop(),
	}
}

// Backend returns the shared backend, dialing on first use.
func (c *Connection) Backend(ctx context.Context) (Backend, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.backend != nil {
		return c.backend, nil
	}
	if c.dial == nil {
		return nil, fmt.Errorf("%w: no vector backend configured", ErrConfiguration)
	}
	b, err := c.dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("connecting to vector backend: %w", err)
	}
	c.backend = b
	return b, nil
}

// Close releases the backend, if one is open.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.backend == nil {
		return nil
	}
	err := c.backend.Close()
	c.backend = nil
	return err
}

// NewDialer builds a Dialer for the configured provider:
//   - "chromem" (default): embedded chromem-go under vectorstore.chromem.path
//   - "qdrant": external Qdrant server over gRPC
//
// An unknown provider is an ErrConfiguration.
func NewDialer(cfg *config.Config, logger *zap.Logger) (Dialer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	switch cfg.VectorStore.Provider {
	case "chromem", "":
		chromemCfg := ChromemConfig{
			Path:     cfg.VectorStore.Chromem.Path,
			Compress: cfg.VectorStore.Chromem.Compress,
		}
		return func(context.Context) (Backend, error) {
			return NewChromemBackend(chromemCfg, logger)
		}, nil

	case "qdrant":
		q := cfg.VectorStore.Qdrant
		qdrantCfg := QdrantConfig{
			Host:           q.Host,
			Port:           q.Port,
			APIKey:         q.APIKey.Value(),
			UseTLS:         q.UseTLS,
			MaxMessageSize: q.MaxMessageSize,
		}
		return func(ctx context.Context) (Backend, error) {
			return NewQdrantBackend(ctx, qdrantCfg, logger)
		}, nil

	default:
		return nil, fmt.Errorf("%w: unsupported vectorstore provider %q (supported: chromem, qdrant)", ErrConfiguration, cfg.VectorStore.Provider)
	}
}
