// Package server exposes health, metrics and publication counters over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/elitevogue/newsbot/internal/metrics"
	"github.com/elitevogue/newsbot/internal/ratelimit"
	"github.com/elitevogue/newsbot/internal/storage"
)

type Server struct {
	engine  *gin.Engine
	metrics *metrics.Metrics
	stats   storage.StatsStore
	budget  *ratelimit.Budget
	nextRun func() time.Time
	logger  *slog.Logger
}

// New builds the router. budget and nextRun may be nil.
func New(m *metrics.Metrics, stats storage.StatsStore, budget *ratelimit.Budget, nextRun func() time.Time, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		engine:  gin.New(),
		metrics: m,
		stats:   stats,
		budget:  budget,
		nextRun: nextRun,
		logger:  logger,
	}
	s.engine.Use(gin.Recovery(), s.requestLog())
	s.RegisterRoutes(s.engine)
	return s
}

func (s *Server) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", s.Health)
	r.GET("/metrics", s.Metrics)
	r.GET("/stats", s.Stats)
}

func (s *Server) Handler() http.Handler { return s.engine }

// Health answers 503 once a run has failed and no run has succeeded since.
func (s *Server) Health(c *gin.Context) {
	stats := s.metrics.GetStats()

	status := "ok"
	code := http.StatusOK
	if !s.metrics.Healthy() {
		status = "error"
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":     status,
		"last_run":   stats["last_run_time"],
		"last_error": stats["last_error"],
	})
}

func (s *Server) Metrics(c *gin.Context) {
	out := s.metrics.GetStats()
	if s.budget != nil {
		out["budget"] = s.budget.GetStats()
	}
	if s.nextRun != nil {
		if next := s.nextRun(); !next.IsZero() {
			out["next_run"] = next.UTC().Format(time.RFC3339)
		}
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) Stats(c *gin.Context) {
	if s.stats == nil {
		c.JSON(http.StatusOK, gin.H{})
		return
	}
	c.JSON(http.StatusOK, s.stats.LoadStats(c.Request.Context()))
}

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("monitoring server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}
