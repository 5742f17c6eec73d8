// Package cache persists the embedding results of a source document so a
// re-ingest of the same file skips the embedder.
//
// Entries are keyed by a name-based UUID of the source file path and hold the
// records exactly as they were written to the vector backend, in batches.
package cache

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ErrInvalidPath is returned for an empty source file path.
var ErrInvalidPath = errors.New("source file path is required")

// CachedChunk is one embedded chunk as it was stored in a namespace.
type CachedChunk struct {
	ID       string         `json:"id"`
	Values   []float32      `json:"values"`
	Metadata map[string]any `json:"metadata"`
}

// ChunkBatch is a group of chunks written together.
type ChunkBatch []CachedChunk

// Entry is every batch cached for one source file, in write order.
type Entry []ChunkBatch

// Chunks counts the chunks across all batches.
func (e Entry) Chunks() int {
	n := 0
	for _, b := range e {
		n += len(b)
	}
	return n
}

// Cache stores embedding results per source file.
type Cache interface {
	// Lookup returns the cached entry, or false on a miss.
	Lookup(ctx context.Context, sourceFilePath string) (Entry, bool, error)
	// Store replaces the entry for sourceFilePath.
	Store(ctx context.Context, batches Entry, sourceFilePath string) error
	// Delete drops one entry. Missing entries are not an error.
	Delete(ctx context.Context, sourceFilePath string) error
	// Purge removes every entry.
	Purge(ctx context.Context) error
}

// Key derives the storage key of a source file path.
func Key(sourceFilePath string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(sourceFilePath)).String()
}

var lookups = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ragstore",
	Subsystem: "cache",
	Name:      "lookups_total",
	Help:      "Embedding cache lookups by backend and result (hit, miss, error).",
}, []string{"backend", "result"})

func recordLookup(backend string, hit bool, err error) {
	result := "miss"
	switch {
	case err != nil:
		result = "error"
	case hit:
		result = "hit"
	}
	lookups.WithLabelValues(backend, result).Inc()
}
