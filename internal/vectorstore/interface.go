// Package vectorstore defines the backend interface for namespace-scoped vector storage.
package vectorstore

import (
	"context"
	"fmt"
	"unicode/utf8"
)

// maxNamespaceLength bounds namespace names so every backend can store them.
const maxNamespaceLength = 255

// Record is a single vector written to a namespace.
//
// Metadata always carries a "text" entry holding the chunk's source text, plus
// the caller-supplied document metadata (source path, title, pinned flag, ...).
// len(Values) is fixed by the embedding engine and identical across a namespace.
type Record struct {
	// ID is the unique vector id (a UUID).
	ID string `json:"id"`

	// Values is the embedding.
	Values []float32 `json:"values"`

	// Metadata is stored alongside the vector and returned on query.
	Metadata map[string]any `json:"metadata"`
}

// Query is a k-nearest-neighbor request against a single collection.
type Query struct {
	// Vector is the embedded query text.
	Vector []float32

	// TopN is the maximum number of items to return.
	TopN int
}

// QueryItem is one nearest-neighbor hit as reported by a backend.
type QueryItem struct {
	// ID is the vector id.
	ID string

	// Vector is the stored embedding, when the backend returns it.
	Vector []float32

	// Distance is the backend distance, normalized so that 0 means identical.
	// Convert it with ToSimilarity.
	Distance float64

	// Score is set when the backend reports a similarity score directly.
	// It takes precedence over Distance.
	Score *float64

	// Metadata is the stored record metadata, including "text".
	Metadata map[string]any
}

// Collection is a handle on one backend collection (one namespace).
type Collection interface {
	// Name returns the collection name.
	Name() string

	// Count returns the number of vectors stored in the collection.
	Count(ctx context.Context) (int, error)

	// Upsert writes records, replacing any existing record with the same id.
	Upsert(ctx context.Context, records []Record) error

	// Add writes records into a freshly created collection.
	Add(ctx context.Context, records []Record) error

	// Query returns up to q.TopN nearest items in backend ranking order.
	Query(ctx context.Context, q Query) ([]QueryItem, error)

	// Delete removes the vectors with the given ids in a single call.
	Delete(ctx context.Context, ids []string) error

	// Clear removes every vector but keeps the collection itself.
	Clear(ctx context.Context) error
}

// Backend is the vector database transport.
//
// Implementations:
//   - ChromemBackend: embedded chromem-go (default)
//   - QdrantBackend: external Qdrant over gRPC
type Backend interface {
	// ListCollections returns the names of all collections.
	ListCollections(ctx context.Context) ([]string, error)

	// CreateCollection creates an empty collection sized for dimension-length vectors.
	// Returns ErrCollectionExists if it is already present.
	CreateCollection(ctx context.Context, name string, dimension int) (Collection, error)

	// GetCollection returns a handle on an existing collection.
	// Returns ErrNamespaceNotFound if it does not exist.
	GetCollection(ctx context.Context, name string) (Collection, error)

	// DeleteCollection drops a collection and all of its vectors.
	DeleteCollection(ctx context.Context, name string) error

	// Heartbeat reports whether the backend is reachable.
	Heartbeat(ctx context.Context) error

	// Reset drops every collection. Irreversible.
	Reset(ctx context.Context) error

	// Close releases the connection.
	Close() error
}

// ValidateNamespace checks a namespace name before it reaches a backend.
func ValidateNamespace(name string) error {
	if name == "" {
		return fmt.Errorf("%w: namespace cannot be empty", ErrInvalidArgument)
	}
	if !utf8.ValidString(name) {
		return fmt.Errorf("%w: namespace contains invalid UTF-8", ErrInvalidArgument)
	}
	if len(name) > maxNamespaceLength {
		return fmt.Errorf("%w: namespace exceeds %d bytes", ErrInvalidArgument, maxNamespaceLength)
	}
	return nil
}
