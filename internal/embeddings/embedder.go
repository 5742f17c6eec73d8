package embeddings

import (
	"context"
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/ragstore/internal/config"
	"go.uber.org/zap"
)

var (
	// ErrEmptyInput indicates empty or nil input texts.
	ErrEmptyInput = errors.New("empty or nil input texts")

	// ErrInvalidConfig indicates invalid provider configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmbeddingFailed indicates the provider could not produce vectors.
	ErrEmbeddingFailed = errors.New("embedding generation failed")
)

// Embedder produces vectors for document chunks and search queries.
type Embedder interface {
	// EmbedChunks returns one vector per chunk, in order.
	EmbedChunks(ctx context.Context, chunks []string) ([][]float32, error)
	// EmbedTextInput embeds a single search query.
	EmbedTextInput(ctx context.Context, text string) ([]float32, error)
	// MaxChunkLength is the largest chunk, in characters, the model accepts.
	MaxChunkLength() int
}

// Provider is an Embedder that owns resources.
type Provider interface {
	Embedder
	// Dimension returns the vector size, 0 if unknown until first call.
	Dimension() int
	Close() error
}

// New builds the configured provider, instrumented with OTEL metrics.
func New(ctx context.Context, cfg config.EmbeddingsConfig, logger *zap.Logger) (Provider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var (
		p   Provider
		err error
	)
	switch cfg.Provider {
	case "fastembed", "":
		p, err = NewFastEmbedProvider(ctx, FastEmbedConfig{
			Model:          cfg.Model,
			CacheDir:       cfg.CacheDir,
			BatchSize:      cfg.BatchSize,
			MaxChunkLength: cfg.MaxChunkLength,
		}, logger)
	case "openai":
		p, err = NewOpenAIProvider(OpenAIConfig{
			BaseURL:        cfg.BaseURL,
			Model:          cfg.Model,
			APIKey:         cfg.APIKey.Value(),
			BatchSize:      cfg.BatchSize,
			MaxChunkLength: cfg.MaxChunkLength,
		})
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	logger.Info("embedding provider ready",
		zap.String("provider", cfg.Provider),
		zap.String("model", cfg.Model),
		zap.Int("max_chunk_length", p.MaxChunkLength()))
	return Instrument(p, cfg.Model, NewMetrics(logger)), nil
}
