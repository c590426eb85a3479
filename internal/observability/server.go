// Package observability exposes a minimal gin-based status surface over the
// running daemon: a liveness probe and a counters dump. It intentionally
// does not resurrect a full query API; that's out of scope for the oracle
// daemon, which only ever needs to report its own health to an operator or
// load balancer.
package observability

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sentibridge/oracle/internal/orchestrator"
)

// healthChecker is the narrow interface the status surface needs from the
// store, so this package never imports database/sql directly.
type healthChecker interface {
	HealthCheck(ctx context.Context) error
}

// poolStatsProvider is implemented by *store.DB; checked with a type
// assertion in handleStatus so this package stays decoupled from the store
// package's concrete type.
type poolStatsProvider interface {
	PoolStats() (open, inUse, idle int)
}

// Config holds the status server's HTTP settings.
type Config struct {
	HTTPPort int
}

// Server is the gin-based status/health HTTP surface.
type Server struct {
	cfg     Config
	db      healthChecker
	metrics *orchestrator.Metrics
	logger  *slog.Logger
	engine  *gin.Engine
}

// New constructs a status Server. metrics is read-only from this package's
// perspective; the Orchestrator owns all writes to it.
func New(cfg Config, db healthChecker, metrics *orchestrator.Metrics, logger *slog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(loggingMiddleware(logger), recoveryMiddleware(logger))

	s := &Server{cfg: cfg, db: db, metrics: metrics, logger: logger.With("component", "observability"), engine: engine}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.engine.GET("/healthz", s.handleHealthz)
	s.engine.GET("/status", s.handleStatus)
}

func (s *Server) handleHealthz(c *gin.Context) {
	if err := s.db.HealthCheck(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "database": "disconnected"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

func (s *Server) handleStatus(c *gin.Context) {
	body := gin.H{
		"cycles_run":        s.metrics.CyclesRun.Load(),
		"cycle_timeouts":    s.metrics.CycleTimeouts.Load(),
		"samples_vetoed":    s.metrics.SamplesVetoed.Load(),
		"samples_submitted": s.metrics.SamplesSubmitted.Load(),
	}
	if provider, ok := s.db.(poolStatsProvider); ok {
		open, inUse, idle := provider.PoolStats()
		body["db_pool"] = gin.H{"open": open, "in_use": inUse, "idle": idle}
	}
	c.JSON(http.StatusOK, body)
}

// Run starts the HTTP server and blocks until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.HTTPPort),
		Handler:      s.engine,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func loggingMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("status request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}

func recoveryMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("status server panic recovered", "panic", r)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_server_error"})
			}
		}()
		c.Next()
	}
}
