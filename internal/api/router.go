// Package api is the HTTP surface of the service: caregiver chat, book
// creation and reading progress, plus health and metrics endpoints.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"finlit-workers/internal/common/logger"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type RouterConfig struct {
	Chat   *ChatHandler
	Books  *BookHandler
	Health *HealthHandler
	Logger logger.Logger
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(cfg.Logger))

	router.GET("/health", cfg.Health.Health)
	router.GET("/ready", cfg.Health.Ready)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	v1.Use(RequireUser())
	{
		v1.POST("/chat", cfg.Chat.Ask)

		v1.POST("/books", cfg.Books.Create)
		v1.GET("/books", cfg.Books.List)
		v1.GET("/books/:id", cfg.Books.Get)
		v1.POST("/books/:id/progress", cfg.Books.Progress)
	}

	return router
}

// Server runs the router until Shutdown.
type Server struct {
	srv    *http.Server
	logger logger.Logger
}

func NewServer(addr string, handler http.Handler, log logger.Logger) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: log,
	}
}

// Start serves in the background. Listen errors are logged.
func (s *Server) Start() {
	go func() {
		s.logger.Info("http server listening", map[string]interface{}{"addr": s.srv.Addr})
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server stopped", map[string]interface{}{"error": err.Error()})
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
