// Package server exposes the downloader over HTTP.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/wapuda/ytbatch/internal/config"
	"github.com/wapuda/ytbatch/internal/orchestrator"
	"github.com/wapuda/ytbatch/internal/resolver"
)

// Resolver looks up the items behind a video or playlist URL.
type Resolver interface {
	Resolve(ctx context.Context, rawURL string) (resolver.Result, error)
	Configured() bool
}

type Server struct {
	cfg      config.Config
	orch     *orchestrator.Orchestrator
	resolver Resolver
	engine   *gin.Engine
	srv      *http.Server
}

func New(cfg config.Config, orch *orchestrator.Orchestrator, res Resolver) *Server {
	switch cfg.GinMode {
	case gin.DebugMode, gin.ReleaseMode, gin.TestMode:
		gin.SetMode(cfg.GinMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{cfg: cfg, orch: orch, resolver: res}
	s.engine = gin.New()
	s.engine.Use(gin.Recovery())
	s.engine.Use(requestLogger())

	api := s.engine.Group("/api")
	api.GET("/health", s.handleHealth)
	api.POST("/parse", s.handleParse)
	api.GET("/job-status", s.handleJobStatus)
	api.POST("/download-one", s.handleDownloadOne)
	api.POST("/download-all", s.handleDownloadAll)

	s.srv = &http.Server{
		Addr:              cfg.Addr(),
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      0, // archives stream for as long as retrieval takes
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler { return s.engine }

// ListenAndServe blocks until the server stops. It returns nil after Shutdown.
func (s *Server) ListenAndServe() error {
	log.Info().Str("addr", s.srv.Addr).Msg("http server listening")
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and cancels the contexts of in-flight
// ones once ctx expires, which tears down running batches.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.srv.Shutdown(ctx)
	if err != nil {
		_ = s.srv.Close()
	}
	return err
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		ev := log.Info()
		if c.Writer.Status() >= http.StatusInternalServerError {
			ev = log.Warn()
		}
		ev.Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Int("bytes", c.Writer.Size()).
			Str("ip", c.ClientIP()).
			Dur("dur", time.Since(start)).
			Msg("request")
	}
}
