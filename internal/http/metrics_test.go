package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
)

func TestHTTPMetrics_MetricsMiddleware(t *testing.T) {
	reader := metric.NewManualReader()
	mp := metric.NewMeterProvider(metric.WithReader(reader))

	m := &HTTPMetrics{
		meter:  mp.Meter(httpInstrumentationName),
		logger: zap.NewNop(),
	}
	m.init()

	e := echo.New()
	e.Use(m.MetricsMiddleware())
	e.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.POST("/api/v1/namespaces/:ns/search", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusNotFound, "no such namespace")
	})

	for _, r := range []struct{ method, target string }{
		{http.MethodGet, "/health"},
		{http.MethodPost, "/api/v1/namespaces/a/search"},
		{http.MethodPost, "/api/v1/namespaces/b/search"},
	} {
		e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(r.method, r.target, nil))
	}

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	byName := map[string]metricdata.Metrics{}
	for _, sm := range rm.ScopeMetrics {
		for _, met := range sm.Metrics {
			byName[met.Name] = met
		}
	}
	require.Contains(t, byName, "ragstore.http.requests_total")
	require.Contains(t, byName, "ragstore.http.request_duration_seconds")
	require.Contains(t, byName, "ragstore.http.response_size_bytes")
	require.Contains(t, byName, "ragstore.http.active_requests")

	sum, ok := byName["ragstore.http.requests_total"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	counts := map[string]int64{}
	for _, dp := range sum.DataPoints {
		route, _ := dp.Attributes.Value(attribute.Key("route"))
		status, _ := dp.Attributes.Value(attribute.Key("status"))
		counts[route.AsString()+" "+status.Emit()] += dp.Value
	}
	assert.Equal(t, map[string]int64{
		"/health 200": 1,
		"/api/v1/namespaces/:ns/search 404": 2,
	}, counts)

	hist, ok := byName["ragstore.http.request_duration_seconds"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	var recorded uint64
	for _, dp := range hist.DataPoints {
		recorded += dp.Count
	}
	assert.Equal(t, uint64(3), recorded)
}

func TestRouteLabel(t *testing.T) {
	assert.Equal(t, "unmatched", routeLabel(""))
	assert.Equal(t, "/api/v1/namespaces/:ns", routeLabel("/api/v1/namespaces/:ns"))
}
