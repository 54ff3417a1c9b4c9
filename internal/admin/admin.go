package admin

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/static"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/ghostferry/resolver/internal/cache"
	"github.com/ghostferry/resolver/internal/upstream"

	_ "github.com/ghostferry/resolver/internal/admin/docs"
)

// Config controls where the admin surface listens and whether it serves a
// static status page alongside the JSON endpoints.
type Config struct {
	Host         string
	Port         int
	StaticAssets string // optional directory to serve at / (e.g. a small status page); empty disables it
}

// Server is the admin HTTP server: /healthz, /stats, and /metrics.
//
// Routes here are intentionally read-only. There is no config reload,
// blocklist edit, or zone mutation endpoint; the admin surface observes the
// pipeline, it does not steer it.
type Server struct {
	logger     *slog.Logger
	engine     *gin.Engine
	httpServer *http.Server
	metrics    *Metrics
}

// New builds an admin Server wired to the given pipeline components. Any of
// c, bal, statsFn may be nil.
func New(cfg Config, logger *slog.Logger, c *cache.Cache, bal *upstream.Balancer, statsFn StatsFunc, reg *prometheus.Registry) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(slogRequestLogger(logger))

	metrics := NewMetrics(reg)
	h := NewHandler(c, bal, statsFn, metrics)

	engine.GET("/healthz", h.Healthz)
	engine.GET("/stats", h.Stats)
	engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	if cfg.StaticAssets != "" {
		engine.Use(static.Serve("/", static.LocalFile(cfg.StaticAssets, false)))
	}

	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &Server{logger: logger, engine: engine, httpServer: httpServer, metrics: metrics}
}

// Addr returns the listen address the server was configured with.
func (s *Server) Addr() string {
	if s.httpServer == nil {
		return ""
	}
	return s.httpServer.Addr
}

// Engine returns the underlying gin engine, mainly for tests.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// ListenAndServe blocks serving the admin surface until Shutdown is called.
func (s *Server) ListenAndServe() error {
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the admin HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func slogRequestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		if logger != nil {
			logger.Debug("admin request",
				"method", method,
				"path", path,
				"status", c.Writer.Status(),
				"latency_ms", time.Since(start).Milliseconds(),
			)
		}
	}
}
