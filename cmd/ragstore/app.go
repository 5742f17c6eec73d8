package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.opentelemetry.io/otel/log"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragstore/internal/cache"
	"github.com/fyrsmithlabs/ragstore/internal/config"
	"github.com/fyrsmithlabs/ragstore/internal/embeddings"
	"github.com/fyrsmithlabs/ragstore/internal/logging"
	"github.com/fyrsmithlabs/ragstore/internal/metadata"
	"github.com/fyrsmithlabs/ragstore/internal/rag"
	"github.com/fyrsmithlabs/ragstore/internal/splitter"
	"github.com/fyrsmithlabs/ragstore/internal/telemetry"
	"github.com/fyrsmithlabs/ragstore/internal/vectorstore"
)

// app holds every long-lived dependency of a command.
type app struct {
	cfg       *config.Config
	logger    *logging.Logger
	telemetry *telemetry.Telemetry
	embedder  embeddings.Provider
	cache     cache.Cache
	db        *metadata.DB
	svc       *rag.Service
}

// newApp loads configuration and wires the service. Server mode logs to
// stdout; one-shot commands log to stderr so stdout carries only results.
func newApp(ctx context.Context, opts *rootOptions, server bool) (_ *app, err error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg}
	defer func() {
		if err != nil {
			_ = a.Close(context.Background())
		}
	}()

	a.telemetry, err = telemetry.New(ctx, telemetry.FromAppConfig(cfg.Telemetry, version))
	if err != nil {
		return nil, fmt.Errorf("initializing telemetry: %w", err)
	}

	logCfg, err := logging.FromAppConfig(cfg.Logging)
	if err != nil {
		return nil, err
	}
	if !server {
		logCfg.Output.Stdout = false
		logCfg.Output.Stderr = true
	}
	var logProvider log.LoggerProvider
	if a.telemetry.IsEnabled() {
		logCfg.Output.OTEL = true
		logProvider = a.telemetry.LoggerProvider()
	}
	a.logger, err = logging.NewLogger(logCfg, logProvider)
	if err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}
	zl := a.logger.Underlying()

	dial, err := vectorstore.NewDialer(cfg, zl.Named("vectorstore"))
	if err != nil {
		return nil, err
	}
	conn := vectorstore.NewConnection(dial, zl.Named("vectorstore"))

	a.embedder, err = embeddings.New(ctx, cfg.Embeddings, zl.Named("embeddings"))
	if err != nil {
		return nil, fmt.Errorf("initializing embeddings: %w", err)
	}

	a.cache, err = cache.New(ctx, cfg.Cache, zl.Named("cache"))
	if err != nil {
		return nil, fmt.Errorf("initializing vector cache: %w", err)
	}

	dbCfg := metadata.DefaultConfig(cfg.Metadata.Path)
	dbCfg.BusyTimeout = cfg.Metadata.BusyTimeout.Duration()
	a.db, err = metadata.Open(ctx, dbCfg)
	if err != nil {
		return nil, fmt.Errorf("opening metadata database: %w", err)
	}

	chromemDir := ""
	if cfg.VectorStore.Provider == "chromem" {
		chromemDir = cfg.VectorStore.Chromem.Path
	}

	a.svc, err = rag.NewService(rag.Options{
		Connection:   conn,
		Embedder:     a.embedder,
		Splitter:     splitter.NewRecursive(),
		Cache:        a.cache,
		Mappings:     metadata.NewDocumentVectors(a.db),
		Settings:     metadata.NewSettings(a.db),
		ChromemDir:   chromemDir,
		ChunkSize:    cfg.Splitter.ChunkSize,
		ChunkOverlap: cfg.Splitter.ChunkOverlap,
		Logger:       a.logger,
	})
	if err != nil {
		return nil, err
	}

	a.logger.Debug(ctx, "ragstore initialized",
		zap.String("vectorstore", cfg.VectorStore.Provider),
		zap.String("embeddings", cfg.Embeddings.Provider),
		zap.String("cache", cfg.Cache.Backend),
		zap.String("metadata", a.db.Path()))
	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	if a.svc != nil {
		errs = append(errs, a.svc.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	if closer, ok := a.cache.(io.Closer); ok {
		errs = append(errs, closer.Close())
	}
	if a.embedder != nil {
		errs = append(errs, a.embedder.Close())
	}
	if a.telemetry != nil {
		// Flush even when ctx was cancelled by a signal.
		errs = append(errs, a.telemetry.Shutdown(context.WithoutCancel(ctx)))
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
	return errors.Join(errs...)
}
