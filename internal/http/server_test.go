package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragstore/internal/ingest"
	"github.com/fyrsmithlabs/ragstore/internal/logging"
	"github.com/fyrsmithlabs/ragstore/internal/metadata"
	"github.com/fyrsmithlabs/ragstore/internal/namespace"
	"github.com/fyrsmithlabs/ragstore/internal/rag"
	"github.com/fyrsmithlabs/ragstore/internal/retrieval"
	"github.com/fyrsmithlabs/ragstore/internal/splitter"
	"github.com/fyrsmithlabs/ragstore/internal/vectorstore"
)

// fakeService records calls and returns canned results.
type fakeService struct {
	ingested   []ingest.DocumentData
	ingestPath string
	skipCache  bool
	ingestRes  ingest.Result
	searchReq  retrieval.Request
	searchResp *retrieval.Response
	deleted    []string
	execOp     rag.Operation
	execOut    any
	err        error
	requestID  string
	namespace  string
}

func (f *fakeService) Ingest(ctx context.Context, ns string, doc ingest.DocumentData, path string, skip bool) ingest.Result {
	f.namespace = logging.NamespaceFromContext(ctx)
	f.ingested = append(f.ingested, doc)
	f.ingestPath, f.skipCache = path, skip
	return f.ingestRes
}

func (f *fakeService) Search(ctx context.Context, req retrieval.Request) (*retrieval.Response, error) {
	f.requestID = logging.RequestIDFromContext(ctx)
	f.searchReq = req
	return f.searchResp, f.err
}

func (f *fakeService) NewSearchRequest(ns, query string) retrieval.Request {
	return retrieval.NewRequest(ns, query, nil)
}

func (f *fakeService) DeleteDocument(_ context.Context, ns, docID string) error {
	f.deleted = append(f.deleted, ns+"/"+docID)
	return f.err
}

func (f *fakeService) Exec(_ context.Context, op rag.Operation, _ string) (any, error) {
	f.execOp = op
	return f.execOut, f.err
}

func (f *fakeService) Reset(context.Context) (*rag.ResetResult, error) {
	return &rag.ResetResult{Reset: true}, f.err
}

func (f *fakeService) Heartbeat(context.Context) (*rag.HeartbeatResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &rag.HeartbeatResult{Heartbeat: 1700000000000}, nil
}

func serve(t *testing.T, s *Server, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

func newTestServer(t *testing.T, svc Service) *Server {
	t.Helper()
	s, err := NewServer(svc, zap.NewNop(), nil)
	require.NoError(t, err)
	return s
}

func TestNewServer(t *testing.T) {
	t.Run("uses defaults when config is nil", func(t *testing.T) {
		s, err := NewServer(&fakeService{}, zap.NewNop(), nil)
		require.NoError(t, err)
		assert.Equal(t, "127.0.0.1", s.config.Host)
		assert.Equal(t, 8765, s.config.Port)
	})

	t.Run("returns error when logger is nil", func(t *testing.T) {
		_, err := NewServer(&fakeService{}, nil, nil)
		assert.ErrorContains(t, err, "logger is required")
	})

	t.Run("returns error when service is nil", func(t *testing.T) {
		_, err := NewServer(nil, zap.NewNop(), nil)
		assert.ErrorContains(t, err, "service cannot be nil")
	})
}

func TestHandleHealth(t *testing.T) {
	rec := serve(t, newTestServer(t, &fakeService{}), http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestHandleHeartbeat(t *testing.T) {
	rec := serve(t, newTestServer(t, &fakeService{}), http.MethodGet, "/heartbeat", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"heartbeat":1700000000000}`, rec.Body.String())

	rec = serve(t, newTestServer(t, &fakeService{err: errors.New("disk gone")}), http.MethodGet, "/heartbeat", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleMetrics(t *testing.T) {
	s := newTestServer(t, &fakeService{})
	vectorstore.RecordSearch(1, 0, 0)

	rec := serve(t, s, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ragstore_retrieval_results_returned")
}

func TestHandleIngest(t *testing.T) {
	t.Run("vectorized", func(t *testing.T) {
		svc := &fakeService{ingestRes: ingest.Result{Vectorized: true}}
		rec := serve(t, newTestServer(t, svc), http.MethodPost, "/api/v1/namespaces/proj/documents", IngestRequest{
			DocID:          "doc-1",
			PageContent:    "The sky is blue.",
			Metadata:       map[string]any{"title": "sky.txt"},
			SourceFilePath: "custom-documents/sky.json",
			SkipCache:      true,
		})

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"vectorized":true,"error":null}`, rec.Body.String())
		require.Len(t, svc.ingested, 1)
		assert.Equal(t, "doc-1", svc.ingested[0].ID)
		assert.Equal(t, "sky.txt", svc.ingested[0].Metadata["title"])
		assert.Equal(t, "custom-documents/sky.json", svc.ingestPath)
		assert.True(t, svc.skipCache)
		assert.Equal(t, "proj", svc.namespace)
	})

	t.Run("failure is reported in the body", func(t *testing.T) {
		svc := &fakeService{ingestRes: ingest.Failed(ingest.ErrEmbeddingFailure.Error())}
		rec := serve(t, newTestServer(t, svc), http.MethodPost, "/api/v1/namespaces/proj/documents",
			IngestRequest{DocID: "doc-1", PageContent: "x"})

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Contains(t, rec.Body.String(), "Could not embed document chunks!")
	})

	t.Run("docId is required", func(t *testing.T) {
		svc := &fakeService{}
		rec := serve(t, newTestServer(t, svc), http.MethodPost, "/api/v1/namespaces/proj/documents",
			IngestRequest{PageContent: "x"})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Empty(t, svc.ingested)
	})

	t.Run("malformed body", func(t *testing.T) {
		s := newTestServer(t, &fakeService{})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/namespaces/proj/documents", strings.NewReader("{"))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		s.echo.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHandleSearch(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		svc := &fakeService{searchResp: &retrieval.Response{ContextTexts: []string{"a"}, Sources: []map[string]any{{"text": "a"}}}}
		rec := serve(t, newTestServer(t, svc), http.MethodPost, "/api/v1/namespaces/proj/search", SearchRequest{Query: "sky"})

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"contextTexts":["a"],"sources":[{"text":"a"}],"message":""}`, rec.Body.String())
		assert.Equal(t, "proj", svc.searchReq.Namespace)
		assert.Equal(t, "sky", svc.searchReq.Query)
		assert.InDelta(t, retrieval.DefaultSimilarityThreshold, svc.searchReq.SimilarityThreshold, 1e-9)
		assert.Equal(t, retrieval.DefaultTopN, svc.searchReq.TopN)
		assert.NotEmpty(t, svc.requestID)
	})

	t.Run("overrides", func(t *testing.T) {
		zero := 0.0
		svc := &fakeService{searchResp: &retrieval.Response{}}
		serve(t, newTestServer(t, svc), http.MethodPost, "/api/v1/namespaces/proj/search", SearchRequest{
			Query:               "sky",
			SimilarityThreshold: &zero,
			TopN:                10,
			FilterIdentifiers:   []string{"title:a-timestamp:b"},
		})

		assert.Zero(t, svc.searchReq.SimilarityThreshold)
		assert.Equal(t, 10, svc.searchReq.TopN)
		assert.Equal(t, []string{"title:a-timestamp:b"}, svc.searchReq.FilterIdentifiers)
	})
}

func TestErrorStatusMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: query required", vectorstore.ErrInvalidArgument), http.StatusBadRequest},
		{fmt.Errorf("%w: proj", vectorstore.ErrNamespaceNotFound), http.StatusNotFound},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			svc := &fakeService{err: tt.err}
			rec := serve(t, newTestServer(t, svc), http.MethodPost, "/api/v1/namespaces/proj/search", SearchRequest{Query: "q"})
			assert.Equal(t, tt.want, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.err.Error())
		})
	}
}

func TestHandleNamespaceOperations(t *testing.T) {
	svc := &fakeService{execOut: &namespace.Stats{Name: "proj", VectorCount: 3}}
	s := newTestServer(t, svc)

	rec := serve(t, s, http.MethodGet, "/api/v1/namespaces/proj", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"name":"proj","vectorCount":3}`, rec.Body.String())
	assert.Equal(t, rag.OpNamespaceStats, svc.execOp)

	svc.execOut = &rag.MessageResult{Message: "Namespace proj was deleted along with 3 vectors."}
	rec = serve(t, s, http.MethodDelete, "/api/v1/namespaces/proj", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, rag.OpDeleteNamespace, svc.execOp)
	assert.Contains(t, rec.Body.String(), "deleted along with 3 vectors")
}

func TestHandleOperationByName(t *testing.T) {
	svc := &fakeService{execOut: &namespace.Stats{Name: "proj", VectorCount: 2}}
	s := newTestServer(t, svc)

	rec := serve(t, s, http.MethodPost, "/api/v1/namespaces/proj/operations/namespace-stats", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, rag.OpNamespaceStats, svc.execOp)

	svc.execOut = &rag.MessageResult{Message: "Namespace proj was deleted along with 2 vectors."}
	rec = serve(t, s, http.MethodPost, "/api/v1/namespaces/proj/operations/delete-namespace", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, rag.OpDeleteNamespace, svc.execOp)

	svc.execOp = 0
	rec = serve(t, s, http.MethodPost, "/api/v1/namespaces/proj/operations/compact", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, svc.execOp)
}

func TestHandleDeleteDocument(t *testing.T) {
	svc := &fakeService{}
	rec := serve(t, newTestServer(t, svc), http.MethodDelete, "/api/v1/namespaces/proj/documents/doc-1", nil)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"proj/doc-1"}, svc.deleted)
}

func TestHandleReset(t *testing.T) {
	rec := serve(t, newTestServer(t, &fakeService{}), http.MethodPost, "/api/v1/reset", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"reset":true}`, rec.Body.String())
}

// constEmbedder embeds everything as the same vector.
type constEmbedder struct{}

func (constEmbedder) EmbedChunks(_ context.Context, chunks []string) ([][]float32, error) {
	out := make([][]float32, len(chunks))
	for i := range chunks {
		out[i] = []float32{1, 2, 0}
	}
	return out, nil
}

func (constEmbedder) EmbedTextInput(context.Context, string) ([]float32, error) {
	return []float32{2, 1, 0}, nil
}

func (constEmbedder) MaxChunkLength() int { return 1000 }

func TestServer_EndToEnd(t *testing.T) {
	backend, err := vectorstore.NewChromemBackend(vectorstore.ChromemConfig{}, nil)
	require.NoError(t, err)
	svc, err := rag.NewService(rag.Options{
		Connection: vectorstore.StaticConnection(backend),
		Embedder:   constEmbedder{},
		Splitter:   splitter.NewRecursive(),
		Mappings:   metadata.NewMemoryDocumentVectors(),
	})
	require.NoError(t, err)
	s := newTestServer(t, svc)

	rec := serve(t, s, http.MethodPost, "/api/v1/namespaces/proj/search", SearchRequest{Query: "sky"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), retrieval.NoDocumentsMessage)

	rec = serve(t, s, http.MethodPost, "/api/v1/namespaces/proj/documents",
		IngestRequest{DocID: "doc-1", PageContent: "The sky is blue.", Metadata: map[string]any{"title": "sky.txt"}})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(t, s, http.MethodGet, "/api/v1/namespaces/proj", nil)
	assert.JSONEq(t, `{"name":"proj","vectorCount":1}`, rec.Body.String())

	var resp retrieval.Response
	rec = serve(t, s, http.MethodPost, "/api/v1/namespaces/proj/search", SearchRequest{Query: "sky"})
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.ContextTexts, 1)
	assert.Contains(t, resp.ContextTexts[0], "The sky is blue.")

	rec = serve(t, s, http.MethodDelete, "/api/v1/namespaces/proj/documents/doc-1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = serve(t, s, http.MethodGet, "/api/v1/namespaces/proj", nil)
	assert.JSONEq(t, `{"name":"proj","vectorCount":0}`, rec.Body.String())

	rec = serve(t, s, http.MethodDelete, "/api/v1/namespaces/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_RequestContextReachesServiceLogs(t *testing.T) {
	backend, err := vectorstore.NewChromemBackend(vectorstore.ChromemConfig{}, nil)
	require.NoError(t, err)
	tl := logging.NewTestLogger()
	svc, err := rag.NewService(rag.Options{
		Connection: vectorstore.StaticConnection(backend),
		Embedder:   constEmbedder{},
		Splitter:   splitter.NewRecursive(),
		Mappings:   metadata.NewMemoryDocumentVectors(),
		Logger:     tl.Logger,
	})
	require.NoError(t, err)
	s := newTestServer(t, svc)

	raw, err := json.Marshal(IngestRequest{DocID: "doc-1", PageContent: "The sky is blue."})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/namespaces/proj/documents", bytes.NewReader(raw))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(echo.HeaderXRequestID, "req-42")
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	tl.AssertField(t, "document vectorized", "namespace", "proj")
	tl.AssertField(t, "document vectorized", "document.id", "doc-1")
	tl.AssertField(t, "document vectorized", "request.id", "req-42")
	tl.AssertField(t, "namespace created", "request.id", "req-42")
}
