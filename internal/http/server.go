// Package http provides the HTTP API for ragstore.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragstore/internal/ingest"
	"github.com/fyrsmithlabs/ragstore/internal/logging"
	"github.com/fyrsmithlabs/ragstore/internal/rag"
	"github.com/fyrsmithlabs/ragstore/internal/retrieval"
	"github.com/fyrsmithlabs/ragstore/internal/vectorstore"
)

// Service is the subset of rag.Service the API needs.
type Service interface {
	Ingest(ctx context.Context, ns string, doc ingest.DocumentData, sourceFilePath string, skipCache bool) ingest.Result
	Search(ctx context.Context, req retrieval.Request) (*retrieval.Response, error)
	NewSearchRequest(ns, query string) retrieval.Request
	DeleteDocument(ctx context.Context, ns, docID string) error
	Exec(ctx context.Context, op rag.Operation, ns string) (any, error)
	Reset(ctx context.Context) (*rag.ResetResult, error)
	Heartbeat(ctx context.Context) (*rag.HeartbeatResult, error)
}

// Server provides HTTP endpoints for ragstore.
type Server struct {
	echo    *echo.Echo
	svc     Service
	logger  *zap.Logger
	config  *Config
	metrics *HTTPMetrics
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// NewServer creates a new HTTP server.
func NewServer(svc Service, logger *zap.Logger, cfg *Config) (*Server, error) {
	if svc == nil {
		return nil, fmt.Errorf("service cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "127.0.0.1",
			Port: 8765,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(e)

	s := &Server{
		echo:    e,
		svc:     svc,
		logger:  logger,
		config:  cfg,
		metrics: NewHTTPMetrics(logger),
	}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(s.metrics.MetricsMiddleware())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			requestID := c.Response().Header().Get(echo.HeaderXRequestID)
			req := c.Request()
			c.SetRequest(req.WithContext(logging.WithRequestID(req.Context(), requestID)))

			if err := next(c); err != nil {
				c.Error(err)
			}

			logger.Info("http request",
				zap.String("method", req.Method),
				zap.String("uri", req.RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request.id", requestID),
			)
			return nil
		}
	})

	s.registerRoutes()
	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/heartbeat", s.handleHeartbeat)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/reset", s.handleReset)

	ns := v1.Group("/namespaces/:ns")
	ns.GET("", s.handleNamespaceStats)
	ns.DELETE("", s.handleDeleteNamespace)
	ns.POST("/documents", s.handleIngest)
	ns.DELETE("/documents/:docId", s.handleDeleteDocument)
	ns.POST("/search", s.handleSearch)
	ns.POST("/operations/:op", s.handleOperation)
}

// errorHandler maps domain errors to status codes before echo renders them.
func errorHandler(e *echo.Echo) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		var he *echo.HTTPError
		if !errors.As(err, &he) {
			he = echo.NewHTTPError(statusFor(err), err.Error())
		}
		e.DefaultHTTPErrorHandler(he, c)
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, vectorstore.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, vectorstore.ErrNamespaceNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleHeartbeat(c echo.Context) error {
	res, err := s.svc.Heartbeat(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	return c.JSON(http.StatusOK, res)
}

// handleIngest vectorizes one document. Ingestion failures are reported in
// the body with 422 rather than as an error.
func (s *Server) handleIngest(c echo.Context) error {
	var req IngestRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid ingest request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.DocID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "docId field is required")
	}

	ns := c.Param("ns")
	ctx := logging.WithDocumentID(logging.WithNamespace(c.Request().Context(), ns), req.DocID)
	res := s.svc.Ingest(ctx, ns, req.document(), req.SourceFilePath, req.SkipCache)
	if res.Error != nil {
		return c.JSON(http.StatusUnprocessableEntity, res)
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) handleDeleteDocument(c echo.Context) error {
	ns, docID := c.Param("ns"), c.Param("docId")
	ctx := logging.WithDocumentID(logging.WithNamespace(c.Request().Context(), ns), docID)
	if err := s.svc.DeleteDocument(ctx, ns, docID); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleSearch(c echo.Context) error {
	var body SearchRequest
	if err := c.Bind(&body); err != nil {
		s.logger.Warn("invalid search request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	ns := c.Param("ns")
	req := s.svc.NewSearchRequest(ns, body.Query)
	if body.SimilarityThreshold != nil {
		req.SimilarityThreshold = *body.SimilarityThreshold
	}
	if body.TopN > 0 {
		req.TopN = body.TopN
	}
	req.FilterIdentifiers = body.FilterIdentifiers

	resp, err := s.svc.Search(logging.WithNamespace(c.Request().Context(), ns), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleNamespaceStats(c echo.Context) error {
	return s.exec(c, rag.OpNamespaceStats)
}

func (s *Server) handleDeleteNamespace(c echo.Context) error {
	return s.exec(c, rag.OpDeleteNamespace)
}

// handleOperation runs an admin operation named in the path, e.g.
// POST /api/v1/namespaces/docs/operations/namespace-stats.
func (s *Server) handleOperation(c echo.Context) error {
	op, err := rag.ParseOperation(c.Param("op"))
	if err != nil {
		return err
	}
	return s.exec(c, op)
}

func (s *Server) exec(c echo.Context, op rag.Operation) error {
	ns := c.Param("ns")
	out, err := s.svc.Exec(logging.WithNamespace(c.Request().Context(), ns), op, ns)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleReset(c echo.Context) error {
	res, err := s.svc.Reset(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}

var _ Service = (*rag.Service)(nil)
