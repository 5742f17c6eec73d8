package logging

import (
	"context"
	"unicode/utf8"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// maxContextValueLen caps correlation values copied into every log line.
const maxContextValueLen = 256

type namespaceCtxKey struct{}
type documentCtxKey struct{}
type requestCtxKey struct{}
type loggerCtxKey struct{}

// ContextFields extracts correlation data from context.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 6)

	if sc := trace.SpanFromContext(ctx).SpanContext(); sc.IsValid() {
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
		if sc.IsSampled() {
			fields = append(fields, zap.Bool("trace_sampled", true))
		}
	}
	if ns := NamespaceFromContext(ctx); ns != "" {
		fields = append(fields, zap.String("namespace", ns))
	}
	if doc := DocumentIDFromContext(ctx); doc != "" {
		fields = append(fields, zap.String("document.id", doc))
	}
	if req := RequestIDFromContext(ctx); req != "" {
		fields = append(fields, zap.String("request.id", req))
	}
	return fields
}

// sanitize replaces invalid UTF-8 and truncates values to maxContextValueLen bytes.
func sanitize(v string) string {
	if !utf8.ValidString(v) {
		v = string([]rune(v))
	}
	if len(v) > maxContextValueLen {
		v = v[:maxContextValueLen]
		for !utf8.ValidString(v) {
			v = v[:len(v)-1]
		}
	}
	return v
}

func stringValue(ctx context.Context, key any) string {
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// WithNamespace tags the context with the namespace being operated on.
func WithNamespace(ctx context.Context, namespace string) context.Context {
	if namespace == "" {
		return ctx
	}
	return context.WithValue(ctx, namespaceCtxKey{}, sanitize(namespace))
}

// NamespaceFromContext returns the namespace tag, or "".
func NamespaceFromContext(ctx context.Context) string {
	return stringValue(ctx, namespaceCtxKey{})
}

// WithDocumentID tags the context with a document id.
func WithDocumentID(ctx context.Context, docID string) context.Context {
	if docID == "" {
		return ctx
	}
	return context.WithValue(ctx, documentCtxKey{}, sanitize(docID))
}

// DocumentIDFromContext returns the document id tag, or "".
func DocumentIDFromContext(ctx context.Context) string {
	return stringValue(ctx, documentCtxKey{})
}

// WithRequestID tags the context with an HTTP request id.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestCtxKey{}, sanitize(requestID))
}

// RequestIDFromContext returns the request id tag, or "".
func RequestIDFromContext(ctx context.Context) string {
	return stringValue(ctx, requestCtxKey{})
}

// WithLogger stores logger in context.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, logger)
}

// FromContext retrieves the logger from context, or a no-op logger.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerCtxKey{}).(*Logger); ok {
		return l
	}
	return NewNop()
}
