package embeddings

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

// DefaultOpenAIMaxChunkLength matches the 8191 token input limit of the
// text-embedding-3 family.
const DefaultOpenAIMaxChunkLength = 8191

// OpenAIConfig configures an OpenAI-compatible embedding endpoint.
type OpenAIConfig struct {
	// BaseURL defaults to the public OpenAI API. A TEI server exposing the
	// OpenAI routes works as well, e.g. http://localhost:8080/v1.
	BaseURL        string
	Model          string
	APIKey         string
	BatchSize      int
	MaxChunkLength int
}

// OpenAIProvider embeds through langchaingo's OpenAI client.
type OpenAIProvider struct {
	embedder  *embeddings.EmbedderImpl
	config    OpenAIConfig
	dimension atomic.Int64
}

// NewOpenAIProvider creates a provider. No request is made until the first
// embedding call.
func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: model required", ErrInvalidConfig)
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 512
	}
	if cfg.MaxChunkLength <= 0 {
		cfg.MaxChunkLength = DefaultOpenAIMaxChunkLength
	}

	token := cfg.APIKey
	if token == "" {
		// langchaingo insists on a token; TEI ignores it.
		token = "placeholder"
	}
	opts := []openai.Option{
		openai.WithModel(cfg.Model),
		openai.WithEmbeddingModel(cfg.Model),
		openai.WithToken(token),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating OpenAI client: %w", err)
	}
	embedder, err := embeddings.NewEmbedder(llm,
		embeddings.WithBatchSize(cfg.BatchSize),
		embeddings.WithStripNewLines(false),
	)
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}

	return &OpenAIProvider{embedder: embedder, config: cfg}, nil
}

// EmbedChunks embeds every chunk; langchaingo splits the request into
// BatchSize groups.
func (p *OpenAIProvider) EmbedChunks(ctx context.Context, chunks []string) ([][]float32, error) {
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: chunks cannot be empty", ErrEmptyInput)
	}
	vectors, err := p.embedder.EmbedDocuments(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	if len(vectors) > 0 {
		p.dimension.Store(int64(len(vectors[0])))
	}
	return vectors, nil
}

// EmbedTextInput embeds a search query.
func (p *OpenAIProvider) EmbedTextInput(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
	}
	vector, err := p.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	p.dimension.Store(int64(len(vector)))
	return vector, nil
}

func (p *OpenAIProvider) MaxChunkLength() int { return p.config.MaxChunkLength }

// Dimension is learned from the first response.
func (p *OpenAIProvider) Dimension() int { return int(p.dimension.Load()) }

func (p *OpenAIProvider) Close() error { return nil }
