package vectorstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const qdrantBackendName = "qdrant"

var qdrantTracer = otel.Tracer("ragstore.vectorstore.qdrant")

// QdrantConfig holds configuration for the Qdrant gRPC client.
type QdrantConfig struct {
	// Host is the Qdrant server hostname or IP address.
	// Default: "localhost"
	Host string

	// Port is the Qdrant gRPC port (NOT the HTTP REST port).
	// Default: 6334
	Port int

	// APIKey authenticates against Qdrant Cloud. Optional.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool

	// Distance is the similarity metric for new collections.
	// Default: Cosine
	Distance qdrant.Distance

	// MaxMessageSize is the maximum gRPC message size in bytes.
	// Default: 50MB
	MaxMessageSize int

	// DialTimeout bounds the initial health check. Default: 5s.
	DialTimeout time.Duration
}

// ApplyDefaults sets default values for unset fields.
func (c *QdrantConfig) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.Distance == qdrant.Distance_UnknownDistance {
		c.Distance = qdrant.Distance_Cosine
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 50 * 1024 * 1024
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = 5 * time.Second
	}
}

// Validate validates the configuration.
func (c QdrantConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: qdrant host required", ErrConfiguration)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid qdrant port: %d", ErrConfiguration, c.Port)
	}
	return nil
}

// QdrantBackend implements Backend against an external Qdrant server.
//
// Qdrant reports a similarity score; items carry it in QueryItem.Score and
// the derived distance (1 - score) in QueryItem.Distance.
type QdrantBackend struct {
	client *qdrant.Client
	config QdrantConfig
	logger *zap.Logger
}

var _ Backend = (*QdrantBackend)(nil)

// NewQdrantBackend connects to Qdrant and verifies the server answers a health check.
func NewQdrantBackend(ctx context.Context, config QdrantConfig, logger *zap.Logger) (*QdrantBackend, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	if !config.UseTLS {
		logger.Warn("qdrant gRPC using plaintext (TLS disabled)", zap.String("host", config.Host))
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   config.Host,
		Port:   config.Port,
		APIKey: config.APIKey,
		UseTLS: config.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(config.MaxMessageSize),
				grpc.MaxCallSendMsgSize(config.MaxMessageSize),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: creating qdrant client: %v", ErrConfiguration, err)
	}

	b := &QdrantBackend{client: client, config: config, logger: logger}

	hctx, cancel := context.WithTimeout(ctx, config.DialTimeout)
	defer cancel()
	if err := b.Heartbeat(hctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	logger.Info("qdrant backend connected",
		zap.String("host", config.Host),
		zap.Int("port", config.Port),
		zap.Bool("tls", config.UseTLS),
	)
	return b, nil
}

func (b *QdrantBackend) ListCollections(ctx context.Context) ([]string, error) {
	ctx, span := qdrantTracer.Start(ctx, "QdrantBackend.ListCollections")
	defer span.End()

	start := time.Now()
	names, err := b.client.ListCollections(ctx)
	observe(qdrantBackendName, "list_collections", start, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list failed")
		return nil, fmt.Errorf("listing collections: %w", err)
	}
	span.SetAttributes(attribute.Int("collection_count", len(names)))
	return names, nil
}

func (b *QdrantBackend) CreateCollection(ctx context.Context, name string, dimension int) (Collection, error) {
	ctx, span := qdrantTracer.Start(ctx, "QdrantBackend.CreateCollection")
	defer span.End()
	span.SetAttributes(attribute.String("namespace", name), attribute.Int("dimension", dimension))

	if err := ValidateNamespace(name); err != nil {
		return nil, err
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: dimension must be positive", ErrInvalidArgument)
	}

	start := time.Now()
	err := b.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dimension),
			Distance: b.config.Distance,
		}),
	})
	observe(qdrantBackendName, "create_collection", start, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create failed")
		if st, ok := status.FromError(err); ok && st.Code() == grpccodes.AlreadyExists {
			return nil, fmt.Errorf("%w: %s", ErrCollectionExists, name)
		}
		return nil, fmt.Errorf("creating collection %s: %w", name, err)
	}
	return &qdrantCollection{backend: b, name: name}, nil
}

func (b *QdrantBackend) GetCollection(ctx context.Context, name string) (Collection, error) {
	ctx, span := qdrantTracer.Start(ctx, "QdrantBackend.GetCollection")
	defer span.End()
	span.SetAttributes(attribute.String("namespace", name))

	if err := ValidateNamespace(name); err != nil {
		return nil, err
	}

	start := time.Now()
	_, err := b.client.GetCollectionInfo(ctx, name)
	observe(qdrantBackendName, "get_collection", start, err)
	if err != nil {
		if st, ok := status.FromError(err); ok && st.Code() == grpccodes.NotFound {
			return nil, fmt.Errorf("%w: %s", ErrNamespaceNotFound, name)
		}
		span.RecordError(err)
		return nil, fmt.Errorf("getting collection %s: %w", name, err)
	}
	return &qdrantCollection{backend: b, name: name}, nil
}

func (b *QdrantBackend) DeleteCollection(ctx context.Context, name string) error {
	ctx, span := qdrantTracer.Start(ctx, "QdrantBackend.DeleteCollection")
	defer span.End()
	span.SetAttributes(attribute.String("namespace", name))

	start := time.Now()
	err := b.client.DeleteCollection(ctx, name)
	observe(qdrantBackendName, "delete_collection", start, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delete failed")
		return fmt.Errorf("deleting collection %s: %w", name, err)
	}
	return nil
}

func (b *QdrantBackend) Heartbeat(ctx context.Context) error {
	ctx, span := qdrantTracer.Start(ctx, "QdrantBackend.Heartbeat")
	defer span.End()

	if _, err := b.client.HealthCheck(ctx); err != nil {
		span.RecordError(err)
		return fmt.Errorf("qdrant health check: %w", err)
	}
	return nil
}

// Reset deletes every collection on the server.
func (b *QdrantBackend) Reset(ctx context.Context) error {
	names, err := b.ListCollections(ctx)
	if err != nil {
		return err
	}
	for _, name := range names {
		if err := b.DeleteCollection(ctx, name); err != nil {
			return err
		}
	}
	b.logger.Warn("qdrant backend reset", zap.Int("collections_dropped", len(names)))
	return nil
}

func (b *QdrantBackend) Close() error {
	if b.client != nil {
		return b.client.Close()
	}
	return nil
}

type qdrantCollection struct {
	backend *QdrantBackend
	name    string
}

func (c *qdrantCollection) Name() string { return c.name }

func (c *qdrantCollection) Count(ctx context.Context) (int, error) {
	ctx, span := qdrantTracer.Start(ctx, "QdrantBackend.Count")
	defer span.End()

	start := time.Now()
	info, err := c.backend.client.GetCollectionInfo(ctx, c.name)
	observe(qdrantBackendName, "count", start, err)
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("counting %s: %w", c.name, err)
	}
	if info.PointsCount == nil {
		return 0, nil
	}
	return int(*info.PointsCount), nil
}

func (c *qdrantCollection) Upsert(ctx context.Context, records []Record) error {
	return c.write(ctx, "upsert", records)
}

// Add is an upsert; Qdrant has no insert-only write.
func (c *qdrantCollection) Add(ctx context.Context, records []Record) error {
	return c.write(ctx, "add", records)
}

func (c *qdrantCollection) write(ctx context.Context, op string, records []Record) error {
	ctx, span := qdrantTracer.Start(ctx, "QdrantBackend."+op)
	defer span.End()
	span.SetAttributes(attribute.String("namespace", c.name), attribute.Int("record_count", len(records)))

	if len(records) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, 0, len(records))
	for _, r := range records {
		if _, err := uuid.Parse(r.ID); err != nil {
			return fmt.Errorf("%w: vector id %q is not a UUID", ErrInvalidArgument, r.ID)
		}
		payload, err := toQdrantPayload(r.Metadata)
		if err != nil {
			return fmt.Errorf("encoding metadata for %s: %w", r.ID, err)
		}
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(r.ID),
			Vectors: qdrant.NewVectors(r.Values...),
			Payload: payload,
		})
	}

	start := time.Now()
	_, err := c.backend.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: c.name,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	observe(qdrantBackendName, op, start, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, op+" failed")
		return fmt.Errorf("writing %d points to %s: %w", len(points), c.name, err)
	}
	VectorsWritten.WithLabelValues(qdrantBackendName).Add(float64(len(points)))
	return nil
}

func (c *qdrantCollection) Query(ctx context.Context, q Query) ([]QueryItem, error) {
	ctx, span := qdrantTracer.Start(ctx, "QdrantBackend.Query")
	defer span.End()
	span.SetAttributes(attribute.String("namespace", c.name), attribute.Int("top_n", q.TopN))

	if q.TopN <= 0 || len(q.Vector) == 0 {
		return []QueryItem{}, nil
	}

	start := time.Now()
	points, err := c.backend.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: c.name,
		Query:          qdrant.NewQuery(q.Vector...),
		Limit:          qdrant.PtrOf(uint64(q.TopN)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	observe(qdrantBackendName, "query", start, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		return nil, fmt.Errorf("querying %s: %w", c.name, err)
	}

	items := make([]QueryItem, 0, len(points))
	for _, p := range points {
		score := float64(p.Score)
		items = append(items, QueryItem{
			ID:       p.GetId().GetUuid(),
			Distance: 1 - score,
			Score:    &score,
			Metadata: fromQdrantPayload(p.Payload),
		})
	}
	span.SetAttributes(attribute.Int("result_count", len(items)))
	return items, nil
}

func (c *qdrantCollection) Delete(ctx context.Context, ids []string) error {
	ctx, span := qdrantTracer.Start(ctx, "QdrantBackend.Delete")
	defer span.End()
	span.SetAttributes(attribute.String("namespace", c.name), attribute.Int("id_count", len(ids)))

	if len(ids) == 0 {
		return nil
	}
	pointIDs := make([]*qdrant.PointId, 0, len(ids))
	for _, id := range ids {
		pointIDs = append(pointIDs, qdrant.NewIDUUID(id))
	}

	return c.deletePoints(ctx, "delete", &qdrant.PointsSelector{
		PointsSelectorOneOf: &qdrant.PointsSelector_Points{
			Points: &qdrant.PointsIdsList{Ids: pointIDs},
		},
	})
}

// Clear deletes every point with an empty filter, which matches all points.
func (c *qdrantCollection) Clear(ctx context.Context) error {
	ctx, span := qdrantTracer.Start(ctx, "QdrantBackend.Clear")
	defer span.End()
	span.SetAttributes(attribute.String("namespace", c.name))

	return c.deletePoints(ctx, "clear", &qdrant.PointsSelector{
		PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
			Filter: &qdrant.Filter{},
		},
	})
}

func (c *qdrantCollection) deletePoints(ctx context.Context, op string, selector *qdrant.PointsSelector) error {
	start := time.Now()
	_, err := c.backend.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: c.name,
		Wait:           qdrant.PtrOf(true),
		Points:         selector,
	})
	observe(qdrantBackendName, op, start, err)
	if err != nil {
		return fmt.Errorf("%s on %s: %w", op, c.name, err)
	}
	return nil
}
