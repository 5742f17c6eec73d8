package http

import "github.com/fyrsmithlabs/ragstore/internal/ingest"

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// IngestRequest is the request body for POST /api/v1/namespaces/:ns/documents.
type IngestRequest struct {
	DocID       string         `json:"docId"`
	PageContent string         `json:"pageContent"`
	Metadata    map[string]any `json:"metadata"`
	// SourceFilePath keys the embedding cache. Empty disables caching.
	SourceFilePath string `json:"sourceFilePath"`
	SkipCache      bool   `json:"skipCache"`
}

func (r IngestRequest) document() ingest.DocumentData {
	return ingest.DocumentData{ID: r.DocID, PageContent: r.PageContent, Metadata: r.Metadata}
}

// SearchRequest is the request body for POST /api/v1/namespaces/:ns/search.
// Omitted fields take the retrieval defaults.
type SearchRequest struct {
	Query               string   `json:"query"`
	SimilarityThreshold *float64 `json:"similarityThreshold,omitempty"`
	TopN                int      `json:"topN,omitempty"`
	FilterIdentifiers   []string `json:"filterIdentifiers,omitempty"`
}
