// Package logging provides structured logging with OpenTelemetry integration.
//
// Logger wraps Zap with:
//   - a Trace level (-2, below Debug)
//   - stdout and/or OpenTelemetry output
//   - context field injection (trace_id, namespace, document id, request id)
//   - encoder-level secret redaction
//   - level-aware sampling (errors never sampled)
//
// Create a logger from config:
//
//	cfg := logging.NewDefaultConfig()
//	logger, err := logging.NewLogger(cfg, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
// Log with context:
//
//	ctx = logging.WithNamespace(ctx, "workspace-1")
//	ctx = logging.WithDocumentID(ctx, docID)
//	logger.Info(ctx, "document vectorized", zap.Int("chunks", n))
//
// Components that only need a *zap.Logger receive logger.Underlying().
//
// Use TestLogger for assertions in tests:
//
//	tl := logging.NewTestLogger()
//	tl.Info(ctx, "test message", zap.String("key", "value"))
//	tl.AssertLogged(t, zapcore.InfoLevel, "test message")
package logging
