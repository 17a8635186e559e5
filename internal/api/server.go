package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samcharles93/rollout/internal/logger"
	"github.com/samcharles93/rollout/internal/version"
)

type Server struct {
	service Service
	log     logger.Logger
	clock   func() time.Time
	metrics http.Handler
}

func NewServer(service Service, log logger.Logger) *Server {
	if log == nil {
		log = logger.Discard()
	}
	return &Server{
		service: service,
		log:     log,
		clock:   time.Now,
		metrics: promhttp.Handler(),
	}
}

func (s *Server) Register(e *echo.Echo) {
	e.Use(serverHeader)

	e.GET("/healthz", s.handleHealth)
	e.GET("/metrics", s.handleMetrics)

	e.GET("/v1/models", s.handleListModels)
	e.POST("/v1/completions", s.handleCompletions)
	e.POST("/v1/tokenize", s.handleTokenize)
	e.POST("/v1/detokenize", s.handleDetokenize)
	e.POST("/v1/embeddings", s.handleEmbeddings)
}

func serverHeader(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c *echo.Context) error {
		c.Response().Header().Set("Server", version.UserAgent())
		return next(c)
	}
}

func (s *Server) handleHealth(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":  "ok",
		"version": version.String(),
	})
}

func (s *Server) handleMetrics(c *echo.Context) error {
	s.metrics.ServeHTTP(c.Response(), c.Request())
	return nil
}

func (s *Server) handleListModels(c *echo.Context) error {
	if s.service == nil {
		return writeError(c, http.StatusInternalServerError, "server_error", "inference service not configured", "", "")
	}
	return c.JSON(http.StatusOK, map[string]any{
		"object": "list",
		"data":   []ModelInfo{s.service.Info()},
	})
}
