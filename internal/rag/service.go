// Package rag is the single entry point for retrieval-augmented storage:
// ingesting documents into namespaces, similarity search, document deletion
// and the admin operations on top of them.
package rag

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragstore/internal/cache"
	"github.com/fyrsmithlabs/ragstore/internal/embeddings"
	"github.com/fyrsmithlabs/ragstore/internal/ingest"
	"github.com/fyrsmithlabs/ragstore/internal/logging"
	"github.com/fyrsmithlabs/ragstore/internal/metadata"
	"github.com/fyrsmithlabs/ragstore/internal/namespace"
	"github.com/fyrsmithlabs/ragstore/internal/retrieval"
	"github.com/fyrsmithlabs/ragstore/internal/splitter"
	"github.com/fyrsmithlabs/ragstore/internal/vectorstore"
)

var tracer = otel.Tracer("ragstore.rag")

// Options configures the service with its collaborators.
type Options struct {
	Connection *vectorstore.Connection
	Embedder   embeddings.Embedder
	Splitter   splitter.Splitter
	// Cache is optional.
	Cache    cache.Cache
	Mappings metadata.DocumentVectorStore
	Settings metadata.SettingsProvider

	// ChromemDir is removed on Reset. Empty for in-memory or remote backends.
	ChromemDir string

	// ChunkSize and ChunkOverlap are used when the settings table is empty.
	ChunkSize    int
	ChunkOverlap int

	Logger *logging.Logger
}

// Service ties the namespace manager, ingestion pipeline and retrieval
// engine to one backend connection.
type Service struct {
	conn       *vectorstore.Connection
	namespaces *namespace.Manager
	pipeline   *ingest.Pipeline
	engine     *retrieval.Engine
	embedder   embeddings.Embedder
	mappings   metadata.DocumentVectorStore
	cache      cache.Cache
	chromemDir string
	logger     *logging.Logger
}

// ResetResult is returned by Reset.
type ResetResult struct {
	Reset bool `json:"reset"`
}

// HeartbeatResult is returned by Heartbeat.
type HeartbeatResult struct {
	Heartbeat int64 `json:"heartbeat"`
}

// NewService creates a Service.
func NewService(opts Options) (*Service, error) {
	if opts.Connection == nil {
		return nil, fmt.Errorf("%w: vector connection is required", vectorstore.ErrConfiguration)
	}
	if opts.Embedder == nil || opts.Splitter == nil || opts.Mappings == nil {
		return nil, fmt.Errorf("%w: embedder, splitter and document vector store are required", vectorstore.ErrConfiguration)
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	manager := namespace.NewManager(opts.Connection, logger.Named("namespace"))

	pipelineOpts := []ingest.Option{ingest.WithLogger(logger.Named("ingest"))}
	if opts.ChunkSize > 0 {
		pipelineOpts = append(pipelineOpts, ingest.WithChunkFallbacks(opts.ChunkSize, opts.ChunkOverlap))
	}

	return &Service{
		conn:       opts.Connection,
		namespaces: manager,
		pipeline: ingest.New(ingest.Deps{
			Namespaces: manager,
			Embedder:   opts.Embedder,
			Splitter:   opts.Splitter,
			Cache:      opts.Cache,
			Mappings:   opts.Mappings,
			Settings:   opts.Settings,
		}, pipelineOpts...),
		engine:     retrieval.NewEngine(manager, logger.Named("retrieval")),
		embedder:   opts.Embedder,
		mappings:   opts.Mappings,
		cache:      opts.Cache,
		chromemDir: opts.ChromemDir,
		logger:     logger,
	}, nil
}

// Ingest vectorizes one document. See ingest.Pipeline.Ingest.
func (s *Service) Ingest(ctx context.Context, ns string, doc ingest.DocumentData, sourceFilePath string, skipCache bool) ingest.Result {
	return s.pipeline.Ingest(ctx, ns, doc, sourceFilePath, skipCache)
}

// Search runs a similarity search. A request without an embedder uses the
// service's own.
func (s *Service) Search(ctx context.Context, req retrieval.Request) (*retrieval.Response, error) {
	if req.Embedder == nil {
		req.Embedder = s.embedder
	}
	return s.engine.Search(ctx, req)
}

// NewSearchRequest returns a request with default threshold and TopN bound to
// the service's embedder.
func (s *Service) NewSearchRequest(ns, query string) retrieval.Request {
	return retrieval.NewRequest(ns, query, s.embedder)
}

func (s *Service) Exists(ctx context.Context, ns string) (bool, error) {
	return s.namespaces.Exists(ctx, ns)
}

func (s *Service) Count(ctx context.Context, ns string) (int, error) {
	return s.namespaces.Count(ctx, ns)
}

func (s *Service) Stats(ctx context.Context, ns string) (*namespace.Stats, error) {
	return s.namespaces.Stats(ctx, ns)
}

func (s *Service) DeleteNamespace(ctx context.Context, ns string) error {
	return s.namespaces.DeleteNamespace(ctx, ns)
}

func (s *Service) DeleteAllVectors(ctx context.Context, ns string) error {
	return s.namespaces.DeleteAllVectors(ctx, ns)
}

func (s *Service) TotalVectors(ctx context.Context) (int, error) {
	return s.namespaces.TotalVectors(ctx)
}

// Heartbeat checks the backend and reports the current time in unix millis.
func (s *Service) Heartbeat(ctx context.Context) (*HeartbeatResult, error) {
	backend, err := s.conn.Backend(ctx)
	if err != nil {
		return nil, err
	}
	if err := backend.Heartbeat(ctx); err != nil {
		return nil, fmt.Errorf("vector backend heartbeat: %w", err)
	}
	return &HeartbeatResult{Heartbeat: time.Now().UnixMilli()}, nil
}

// Reset drops every namespace, closes the connection, removes the on-disk
// chromem data and purges the embedding cache. It cannot be undone.
// Document-to-vector mappings are left in place.
func (s *Service) Reset(ctx context.Context) (*ResetResult, error) {
	ctx, span := tracer.Start(ctx, "Service.Reset")
	defer span.End()
	span.SetAttributes(attribute.String("chromem_dir", s.chromemDir))

	backend, err := s.conn.Backend(ctx)
	if err != nil {
		return nil, err
	}
	if err := backend.Reset(ctx); err != nil {
		return nil, err
	}

	var errs []error
	if err := s.conn.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing vector backend: %w", err))
	}
	if s.chromemDir != "" {
		if err := os.RemoveAll(s.chromemDir); err != nil {
			errs = append(errs, fmt.Errorf("removing %s: %w", s.chromemDir, err))
		}
	}
	if s.cache != nil {
		if err := s.cache.Purge(ctx); err != nil {
			errs = append(errs, fmt.Errorf("purging vector cache: %w", err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	s.logger.Warn(ctx, "vector storage reset", zap.String("chromem_dir", s.chromemDir))
	return &ResetResult{Reset: true}, nil
}

// Close releases the backend connection.
func (s *Service) Close() error {
	return s.conn.Close()
}
