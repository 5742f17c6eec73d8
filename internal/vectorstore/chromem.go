package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

const chromemBackendName = "chromem"

// payloadKey holds the JSON-encoded record metadata. chromem only stores
// string metadata, so typed values round-trip through this key.
const payloadKey = "_payload"

var chromemTracer = otel.Tracer("ragstore.vectorstore.chromem")

// errEmbedNotSupported is returned if chromem ever tries to embed on its own.
// Every record and query arrives with a precomputed vector.
var errEmbedNotSupported = errors.New("chromem: embeddings must be supplied by the caller")

// ChromemConfig holds configuration for the embedded chromem-go backend.
type ChromemConfig struct {
	// Path is the directory for persistent storage.
	// Empty keeps everything in memory.
	Path string

	// Compress enables gzip compression for stored data.
	Compress bool

	// Concurrency bounds parallel document inserts. Default: 4.
	Concurrency int
}

// ApplyDefaults sets default values for unset fields.
func (c *ChromemConfig) ApplyDefaults() {
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
}

// ChromemBackend implements Backend using chromem-go.
//
// chromem-go is an embeddable vector database with no external service.
// With a Path it persists collections to gob files under that directory.
type ChromemBackend struct {
	mu     sync.Mutex
	db     *chromem.DB
	config ChromemConfig
	logger *zap.Logger
}

var _ Backend = (*ChromemBackend)(nil)

// NewChromemBackend opens (or creates) a chromem database.
func NewChromemBackend(config ChromemConfig, logger *zap.Logger) (*ChromemBackend, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	config.ApplyDefaults()

	var db *chromem.DB
	if config.Path == "" {
		db = chromem.NewDB()
	} else {
		path, err := expandPath(config.Path)
		if err != nil {
			return nil, fmt.Errorf("%w: expanding path: %v", ErrConfiguration, err)
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, fmt.Errorf("creating directory %s: %w", path, err)
		}
		db, err = chromem.NewPersistentDB(path, config.Compress)
		if err != nil {
			return nil, fmt.Errorf("opening chromem DB: %w", err)
		}
		config.Path = path
	}

	logger.Info("chromem backend initialized",
		zap.String("path", config.Path),
		zap.Bool("persistent", config.Path != ""),
		zap.Bool("compress", config.Compress),
	)

	return &ChromemBackend{db: db, config: config, logger: logger}, nil
}

// expandPath expands a leading ~ to the home directory.
func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

func refuseEmbed(context.Context, string) ([]float32, error) {
	return nil, errEmbedNotSupported
}

// ListCollections returns collection names in sorted order.
func (b *ChromemBackend) ListCollections(ctx context.Context) ([]string, error) {
	_, span := chromemTracer.Start(ctx, "ChromemBackend.ListCollections")
	defer span.End()

	start := time.Now()
	collections := b.db.ListCollections()
	names := make([]string, 0, len(collections))
	for name := range collections {
		names = append(names, name)
	}
	sort.Strings(names)

	observe(chromemBackendName, "list_collections", start, nil)
	span.SetAttributes(attribute.Int("collection_count", len(names)))
	return names, nil
}

// CreateCollection creates an empty collection. dimension is informational;
// chromem enforces vector length at query time.
func (b *ChromemBackend) CreateCollection(ctx context.Context, name string, dimension int) (Collection, error) {
	_, span := chromemTracer.Start(ctx, "ChromemBackend.CreateCollection")
	defer span.End()
	span.SetAttributes(attribute.String("namespace", name), attribute.Int("dimension", dimension))

	if err := ValidateNamespace(name); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	start := time.Now()
	if b.db.GetCollection(name, refuseEmbed) != nil {
		observe(chromemBackendName, "create_collection", start, ErrCollectionExists)
		return nil, fmt.Errorf("%w: %s", ErrCollectionExists, name)
	}

	c, err := b.db.CreateCollection(name, nil, refuseEmbed)
	observe(chromemBackendName, "create_collection", start, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create failed")
		return nil, fmt.Errorf("creating collection %s: %w", name, err)
	}

	b.logger.Debug("collection created", zap.String("namespace", name), zap.Int("dimension", dimension))
	return &chromemCollection{backend: b, name: name, coll: c}, nil
}

// GetCollection returns a handle on an existing collection.
func (b *ChromemBackend) GetCollection(ctx context.Context, name string) (Collection, error) {
	_, span := chromemTracer.Start(ctx, "ChromemBackend.GetCollection")
	defer span.End()
	span.SetAttributes(attribute.String("namespace", name))

	if err := ValidateNamespace(name); err != nil {
		return nil, err
	}

	c := b.db.GetCollection(name, refuseEmbed)
	if c == nil {
		return nil, fmt.Errorf("%w: %s", ErrNamespaceNotFound, name)
	}
	return &chromemCollection{backend: b, name: name, coll: c}, nil
}

// DeleteCollection drops a collection and its persisted files.
func (b *ChromemBackend) DeleteCollection(ctx context.Context, name string) error {
	_, span := chromemTracer.Start(ctx, "ChromemBackend.DeleteCollection")
	defer span.End()
	span.SetAttributes(attribute.String("namespace", name))

	b.mu.Lock()
	defer b.mu.Unlock()

	start := time.Now()
	if b.db.GetCollection(name, refuseEmbed) == nil {
		return fmt.Errorf("%w: %s", ErrNamespaceNotFound, name)
	}
	err := b.db.DeleteCollection(name)
	observe(chromemBackendName, "delete_collection", start, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delete failed")
		return fmt.Errorf("deleting collection %s: %w", name, err)
	}
	return nil
}

// Heartbeat checks the persistence directory is still reachable.
// An in-memory database is always alive.
func (b *ChromemBackend) Heartbeat(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if b.config.Path == "" {
		return nil
	}
	if _, err := os.Stat(b.config.Path); err != nil {
		return fmt.Errorf("chromem storage unavailable: %w", err)
	}
	return nil
}

// Reset drops every collection.
func (b *ChromemBackend) Reset(ctx context.Context) error {
	_, span := chromemTracer.Start(ctx, "ChromemBackend.Reset")
	defer span.End()

	b.mu.Lock()
	defer b.mu.Unlock()

	start := time.Now()
	err := b.db.Reset()
	observe(chromemBackendName, "reset", start, err)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("resetting chromem: %w", err)
	}
	b.logger.Warn("chromem backend reset", zap.String("path", b.config.Path))
	return nil
}

// Close is a no-op; chromem persists on every write.
func (b *ChromemBackend) Close() error {
	return nil
}

// chromemCollection adapts *chromem.Collection to Collection.
type chromemCollection struct {
	backend *ChromemBackend
	name    string
	coll    *chromem.Collection
}

func (c *chromemCollection) Name() string { return c.name }

func (c *chromemCollection) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return c.coll.Count(), nil
}

// Upsert relies on chromem overwriting documents that share an id.
func (c *chromemCollection) Upsert(ctx context.Context, records []Record) error {
	return c.write(ctx, "upsert", records)
}

func (c *chromemCollection) Add(ctx context.Context, records []Record) error {
	return c.write(ctx, "add", records)
}

func (c *chromemCollection) write(ctx context.Context, op string, records []Record) error {
	ctx, span := chromemTracer.Start(ctx, "ChromemBackend."+op)
	defer span.End()
	span.SetAttributes(attribute.String("namespace", c.name), attribute.Int("record_count", len(records)))

	if len(records) == 0 {
		return nil
	}

	docs := make([]chromem.Document, 0, len(records))
	dimension := len(records[0].Values)
	for _, r := range records {
		if len(r.Values) != dimension {
			return fmt.Errorf("%w: record %s has %d values, expected %d", ErrDimensionMismatch, r.ID, len(r.Values), dimension)
		}
		doc, err := toChromemDocument(r)
		if err != nil {
			return err
		}
		docs = append(docs, doc)
	}

	start := time.Now()
	err := c.coll.AddDocuments(ctx, docs, c.backend.config.Concurrency)
	observe(chromemBackendName, op, start, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, op+" failed")
		return fmt.Errorf("writing %d records to %s: %w", len(docs), c.name, err)
	}
	VectorsWritten.WithLabelValues(chromemBackendName).Add(float64(len(docs)))
	return nil
}

// Query returns up to TopN hits. chromem rejects requests for more results
// than stored documents, so TopN is clamped to the collection size.
func (c *chromemCollection) Query(ctx context.Context, q Query) ([]QueryItem, error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemBackend.Query")
	defer span.End()
	span.SetAttributes(attribute.String("namespace", c.name), attribute.Int("top_n", q.TopN))

	n := q.TopN
	if count := c.coll.Count(); n > count {
		n = count
	}
	if n <= 0 || len(q.Vector) == 0 {
		return []QueryItem{}, nil
	}

	start := time.Now()
	results, err := c.coll.QueryEmbedding(ctx, q.Vector, n, nil, nil)
	observe(chromemBackendName, "query", start, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		return nil, fmt.Errorf("querying %s: %w", c.name, err)
	}

	// chromem reports cosine similarity in [-1,1]. The score is clamped to
	// [0,1] so orthogonal and opposite vectors never pass a threshold.
	items := make([]QueryItem, 0, len(results))
	for _, r := range results {
		score := min(max(float64(r.Similarity), 0), 1)
		items = append(items, QueryItem{
			ID:       r.ID,
			Vector:   r.Embedding,
			Distance: 1 - float64(r.Similarity),
			Score:    &score,
			Metadata: fromChromemMetadata(r.Metadata, r.Content, c.backend.logger),
		})
	}
	span.SetAttributes(attribute.Int("result_count", len(items)))
	return items, nil
}

func (c *chromemCollection) Delete(ctx context.Context, ids []string) error {
	ctx, span := chromemTracer.Start(ctx, "ChromemBackend.Delete")
	defer span.End()
	span.SetAttributes(attribute.String("namespace", c.name), attribute.Int("id_count", len(ids)))

	if len(ids) == 0 {
		return nil
	}
	start := time.Now()
	err := c.coll.Delete(ctx, nil, nil, ids...)
	observe(chromemBackendName, "delete", start, err)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("deleting %d vectors from %s: %w", len(ids), c.name, err)
	}
	return nil
}

// Clear drops and recreates the collection; chromem cannot delete without a filter.
func (c *chromemCollection) Clear(ctx context.Context) error {
	_, span := chromemTracer.Start(ctx, "ChromemBackend.Clear")
	defer span.End()
	span.SetAttributes(attribute.String("namespace", c.name))

	b := c.backend
	b.mu.Lock()
	defer b.mu.Unlock()

	start := time.Now()
	if err := b.db.DeleteCollection(c.name); err != nil {
		observe(chromemBackendName, "clear", start, err)
		return fmt.Errorf("clearing %s: %w", c.name, err)
	}
	coll, err := b.db.CreateCollection(c.name, nil, refuseEmbed)
	observe(chromemBackendName, "clear", start, err)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("recreating %s: %w", c.name, err)
	}
	c.coll = coll
	return nil
}

// toChromemDocument flattens metadata to strings and keeps the typed form in payloadKey.
func toChromemDocument(r Record) (chromem.Document, error) {
	payload, err := json.Marshal(r.Metadata)
	if err != nil {
		return chromem.Document{}, fmt.Errorf("encoding metadata for %s: %w", r.ID, err)
	}

	meta := make(map[string]string, len(r.Metadata)+1)
	for k, v := range r.Metadata {
		meta[k] = stringify(v)
	}
	meta[payloadKey] = string(payload)

	content, _ := r.Metadata["text"].(string)
	return chromem.Document{
		ID:        r.ID,
		Metadata:  meta,
		Embedding: r.Values,
		Content:   content,
	}, nil
}

func fromChromemMetadata(meta map[string]string, content string, logger *zap.Logger) map[string]any {
	if raw, ok := meta[payloadKey]; ok {
		out := make(map[string]any)
		err := json.Unmarshal([]byte(raw), &out)
		if err == nil {
			return out
		}
		logger.Warn("undecodable chromem payload, falling back to flat metadata", zap.Error(err))
	}

	out := make(map[string]any, len(meta)+1)
	for k, v := range meta {
		if k == payloadKey {
			continue
		}
		out[k] = v
	}
	if _, ok := out["text"]; !ok && content != "" {
		out["text"] = content
	}
	return out
}

func stringify(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case nil:
		return ""
	case fmt.Stringer:
		return val.String()
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(b)
	}
}
