// Package server exposes a published index over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/davidvella/catidx"
	"github.com/davidvella/catidx/lookup"
	"github.com/davidvella/catidx/metrics"
	"github.com/gin-gonic/gin"
)

const shutdownTimeout = 10 * time.Second

// LookupResponse lists the virtual offsets of every record with Key.
type LookupResponse struct {
	Key     string   `json:"key"`
	Count   int      `json:"count"`
	Offsets []uint64 `json:"offsets"`
}

// Record is one catalog line and the offset it starts at.
type Record struct {
	Offset uint64 `json:"offset"`
	Line   string `json:"line"`
}

// RecordsResponse carries the catalog lines of every record with Key.
type RecordsResponse struct {
	Key     string   `json:"key"`
	Count   int      `json:"count"`
	Records []Record `json:"records"`
}

// Server answers lookups for one index.
type Server struct {
	engine   *lookup.Engine
	resolver *lookup.Resolver
	metrics  *metrics.Registry
	logger   *slog.Logger
	router   *gin.Engine
}

// Option configures a Server.
type Option func(*Server)

// WithResolver enables /records, which reads lines back from the catalog.
func WithResolver(r *lookup.Resolver) Option {
	return func(s *Server) {
		s.resolver = r
	}
}

// WithMetrics records lookups in r and serves it on /metrics.
func WithMetrics(r *metrics.Registry) Option {
	return func(s *Server) {
		s.metrics = r
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

func New(engine *lookup.Engine, opts ...Option) *Server {
	s := &Server{
		engine: engine,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = metrics.NewRegistry()
	}
	catidx.RegisterMetrics(s.metrics)

	s.router = gin.New()
	s.router.Use(gin.Recovery(), requestLogger(s.logger))
	s.setupRoutes()

	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/healthz", s.healthHandler)
	s.router.GET("/info", s.infoHandler)
	s.router.GET("/metrics", s.metricsHandler)
	s.router.GET("/lookup/:key", s.lookupHandler)
	if s.resolver != nil {
		s.router.GET("/records/:key", s.recordsHandler)
	}
}

// Handler returns the HTTP handler serving every route.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("serving index", "addr", addr, "index", s.engine.Info().Index)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) infoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.Info())
}

func (s *Server) metricsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, s.metrics.GetMetrics())
}

func (s *Server) lookupHandler(c *gin.Context) {
	key := c.Param("key")
	offsets, err := s.engine.LookupString(c.Request.Context(), key)
	s.recordLookup("lookup", len(offsets), err)
	if err != nil {
		sendLookupError(c, err)
		return
	}

	c.JSON(http.StatusOK, LookupResponse{Key: key, Count: len(offsets), Offsets: offsets})
}

func (s *Server) recordsHandler(c *gin.Context) {
	ctx := c.Request.Context()
	key := c.Param("key")
	offsets, err := s.engine.LookupString(ctx, key)
	s.recordLookup("records", len(offsets), err)
	if err != nil {
		sendLookupError(c, err)
		return
	}

	lines, err := s.resolver.Lines(ctx, offsets)
	if err != nil {
		SendError(c, http.StatusInternalServerError, ErrorCodeReadFailed, "Failed to read records: "+err.Error())
		return
	}

	records := make([]Record, len(lines))
	for i, l := range lines {
		records[i] = Record{Offset: offsets[i], Line: l}
	}
	c.JSON(http.StatusOK, RecordsResponse{Key: key, Count: len(records), Records: records})
}

func (s *Server) recordLookup(route string, hits int, err error) {
	result := "hit"
	switch {
	case err != nil:
		result = "error"
	case hits == 0:
		result = "miss"
	}
	s.metrics.RecordCounter(catidx.MetricLookups, 1, map[string]string{"route": route, "result": result})
}

// requestLogger logs each request once it has been served.
func requestLogger(l *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		l.DebugContext(c.Request.Context(), "request served",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"elapsed", time.Since(start),
		)
	}
}
