// Package embeddings turns text into vectors.
//
// Two providers are supported: FastEmbed runs ONNX models locally (cgo
// builds only) and OpenAI talks to any OpenAI-compatible /embeddings
// endpoint, including a Text Embeddings Inference server. New selects one
// from configuration and wraps it with OTEL latency and batch-size metrics.
package embeddings
