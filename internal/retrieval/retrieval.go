// Package retrieval answers similarity queries against a namespace.
package retrieval

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragstore/internal/embeddings"
	"github.com/fyrsmithlabs/ragstore/internal/logging"
	"github.com/fyrsmithlabs/ragstore/internal/vectorstore"
)

var tracer = otel.Tracer("ragstore.retrieval")

// Search defaults.
const (
	DefaultSimilarityThreshold = 0.25
	DefaultTopN                = 4
)

// NoDocumentsMessage is returned when the namespace does not exist.
const NoDocumentsMessage = "Invalid query - no documents found for workspace!"

// Request is one similarity search.
type Request struct {
	Namespace string
	Query     string
	Embedder  embeddings.Embedder
	// SimilarityThreshold drops hits scoring below it. Zero keeps everything.
	SimilarityThreshold float64
	// TopN is the number of neighbors requested from the backend.
	// Non-positive values use DefaultTopN.
	TopN int
	// FilterIdentifiers are source identifiers of documents to exclude,
	// typically documents already pinned into the prompt.
	FilterIdentifiers []string
}

// NewRequest returns a request with the default threshold and TopN.
func NewRequest(namespace, query string, embedder embeddings.Embedder) Request {
	return Request{
		Namespace:           namespace,
		Query:               query,
		Embedder:            embedder,
		SimilarityThreshold: DefaultSimilarityThreshold,
		TopN:                DefaultTopN,
	}
}

// Response carries the surviving chunk texts and their curated sources.
type Response struct {
	ContextTexts []string         `json:"contextTexts"`
	Sources      []map[string]any `json:"sources"`
	Message      string           `json:"message"`
}

// Namespaces is the subset of namespace.Manager used for search.
type Namespaces interface {
	Exists(ctx context.Context, name string) (bool, error)
	Get(ctx context.Context, name string) (vectorstore.Collection, error)
}

// Engine runs searches.
type Engine struct {
	namespaces Namespaces
	logger     *logging.Logger
}

func NewEngine(namespaces Namespaces, logger *logging.Logger) *Engine {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Engine{namespaces: namespaces, logger: logger}
}

// similarityResult is the filtered hit list before curation.
type similarityResult struct {
	contextTexts    []string
	sourceDocuments []map[string]any
	scores          []float64
}

// Search embeds the query, asks the backend for TopN neighbors and filters
// them by threshold and source identifier, keeping backend order.
func (e *Engine) Search(ctx context.Context, req Request) (*Response, error) {
	ctx, span := tracer.Start(ctx, "Engine.Search")
	defer span.End()
	span.SetAttributes(attribute.String("namespace", req.Namespace))

	if req.Namespace == "" || req.Query == "" || req.Embedder == nil {
		return nil, fmt.Errorf("%w: namespace, query and embedder are required", vectorstore.ErrInvalidArgument)
	}
	if req.TopN <= 0 {
		req.TopN = DefaultTopN
	}
	ctx = logging.WithNamespace(ctx, req.Namespace)

	exists, err := e.namespaces.Exists(ctx, req.Namespace)
	if err != nil {
		return nil, err
	}
	if !exists {
		return &Response{
			ContextTexts: []string{},
			Sources:      []map[string]any{},
			Message:      NoDocumentsMessage,
		}, nil
	}

	vector, err := req.Embedder.EmbedTextInput(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	coll, err := e.namespaces.Get(ctx, req.Namespace)
	if err != nil {
		return nil, err
	}
	items, err := coll.Query(ctx, vectorstore.Query{Vector: vector, TopN: req.TopN})
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", req.Namespace, err)
	}

	result := e.filter(ctx, req, items)
	span.SetAttributes(
		attribute.Int("hits", len(items)),
		attribute.Int("returned", len(result.contextTexts)),
	)
	e.logger.Debug(ctx, "search completed",
		zap.Int("hits", len(items)), zap.Int("returned", len(result.contextTexts)))

	return &Response{
		ContextTexts: result.contextTexts,
		Sources:      curateSources(result.sourceDocuments),
		Message:      "",
	}, nil
}

func (e *Engine) filter(ctx context.Context, req Request, items []vectorstore.QueryItem) similarityResult {
	result := similarityResult{
		contextTexts:    []string{},
		sourceDocuments: []map[string]any{},
		scores:          []float64{},
	}
	below, pinned := 0, 0

	for _, item := range items {
		score := similarity(item)
		if score < req.SimilarityThreshold {
			below++
			continue
		}
		if id := SourceIdentifier(item.Metadata); slices.Contains(req.FilterIdentifiers, id) {
			e.logger.Debug(ctx, "skipping pinned source", zap.String("source", id))
			pinned++
			continue
		}

		doc := maps.Clone(item.Metadata)
		if doc == nil {
			doc = map[string]any{}
		}
		doc["_distance"] = item.Distance
		doc["score"] = score

		result.contextTexts = append(result.contextTexts, text(item.Metadata))
		result.sourceDocuments = append(result.sourceDocuments, doc)
		result.scores = append(result.scores, score)
	}

	vectorstore.RecordSearch(len(result.contextTexts), below, pinned)
	return result
}

// similarity prefers a backend score over converting the distance.
func similarity(item vectorstore.QueryItem) float64 {
	if item.Score != nil {
		return *item.Score
	}
	return vectorstore.ToSimilarity(item.Distance)
}

// SourceIdentifier names the document a chunk came from. Chunks without both
// a title and a published date get a random identifier that matches nothing.
func SourceIdentifier(meta map[string]any) string {
	title := text(map[string]any{"text": meta["title"]})
	published := text(map[string]any{"text": meta["published"]})
	if title == "" || published == "" {
		return uuid.NewString()
	}
	return "title:" + title + "-timestamp:" + published
}

// curateSources removes internal fields and drops sources with no metadata
// left besides their text.
func curateSources(sources []map[string]any) []map[string]any {
	curated := make([]map[string]any, 0, len(sources))
	for _, src := range sources {
		meta := maps.Clone(src)
		body := text(meta)
		delete(meta, "text")
		delete(meta, "vector")
		delete(meta, "_distance")
		if len(meta) == 0 {
			continue
		}
		if body != "" {
			meta["text"] = body
		}
		curated = append(curated, meta)
	}
	return curated
}

func text(meta map[string]any) string {
	switch v := meta["text"].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}
