package vectorstore

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OperationsTotal counts backend operations.
	// Labels: backend (chromem, qdrant), operation, result (success, error)
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragstore",
			Subsystem: "vectorstore",
			Name:      "operations_total",
			Help:      "Total number of vector backend operations",
		},
		[]string{"backend", "operation", "result"},
	)

	// OperationDuration tracks backend operation latency.
	// Labels: backend, operation
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ragstore",
			Subsystem: "vectorstore",
			Name:      "operation_duration_seconds",
			Help:      "Duration of vector backend operations in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"backend", "operation"},
	)

	// VectorsWritten counts vectors written by upsert or add.
	VectorsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragstore",
			Subsystem: "vectorstore",
			Name:      "vectors_written_total",
			Help:      "Total number of vectors written to the backend",
		},
		[]string{"backend"},
	)

	// IngestTotal counts ingestion outcomes.
	// Labels: source (cache, embedder, none), result (vectorized, skipped, error)
	IngestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragstore",
			Subsystem: "ingest",
			Name:      "documents_total",
			Help:      "Total number of documents submitted for ingestion",
		},
		[]string{"source", "result"},
	)

	// SearchResults tracks how many items survive filtering per search.
	SearchResults = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "ragstore",
			Subsystem: "retrieval",
			Name:      "results_returned",
			Help:      "Number of context texts returned per search",
			Buckets:   []float64{0, 1, 2, 4, 8, 16, 32},
		},
	)

	// SearchFiltered counts items dropped from search results.
	// Labels: reason (threshold, pinned)
	SearchFiltered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragstore",
			Subsystem: "retrieval",
			Name:      "items_filtered_total",
			Help:      "Total number of search hits dropped before returning",
		},
		[]string{"reason"},
	)
)

// observe records one backend operation.
func observe(backend, operation string, start time.Time, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	OperationsTotal.WithLabelValues(backend, operation, result).Inc()
	OperationDuration.WithLabelValues(backend, operation).Observe(time.Since(start).Seconds())
}

// RecordIngest records the outcome of one ingestion call.
func RecordIngest(source, result string) {
	IngestTotal.WithLabelValues(source, result).Inc()
}

// RecordSearch records how many hits a search returned and why others were dropped.
func RecordSearch(returned, belowThreshold, pinned int) {
	SearchResults.Observe(float64(returned))
	if belowThreshold > 0 {
		SearchFiltered.WithLabelValues("threshold").Add(float64(belowThreshold))
	}
	if pinned > 0 {
		SearchFiltered.WithLabelValues("pinned").Add(float64(pinned))
	}
}
