package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/joshp123/geocosy/internal/logger"
)

const shutdownTimeout = 5 * time.Second

// NewEngine builds the gin engine serving health, metrics, and dashboards.
func NewEngine(log *logger.Logger, registry *prometheus.Registry, dashboards map[string][]byte) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(log))

	engine.GET("/health", HealthHandler)
	engine.GET("/metrics", MetricsHandler(registry))
	engine.GET("/dashboards/*path", DashboardsHandler(dashboards))
	return engine
}

// HTTPServer serves the engine until its context is cancelled.
type HTTPServer struct {
	Server *http.Server
	log    *logger.Logger
}

func NewHTTPServer(addr string, handler http.Handler, log *logger.Logger) *HTTPServer {
	return &HTTPServer{
		Server: &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second},
		log:    log,
	}
}

// Run listens until ctx is cancelled, then shuts down gracefully.
func (s *HTTPServer) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Infow("http listening", "addr", s.Server.Addr)
		if err := s.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.Server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

func requestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if c.Request.URL.Path == "/metrics" || c.Request.URL.Path == "/health" {
			return
		}
		log.Debugw("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
