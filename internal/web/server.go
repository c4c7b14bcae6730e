package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"

	"github.com/camuig/smartapi-proxy/internal/config"
	"github.com/camuig/smartapi-proxy/internal/logger"
	"github.com/camuig/smartapi-proxy/internal/metrics"
)

type Server struct {
	httpServer *http.Server
	svc        Service
	port       int
	logger     *logger.Logger
}

func NewServer(svc Service, m *metrics.Metrics, cfg *config.Config, log *logger.Logger) *Server {
	s := &Server{
		svc:    svc,
		port:   cfg.Server.Port,
		logger: log,
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	if m != nil {
		router.Use(m.Middleware())
	}
	router.Use(RequestLogger(log), Error(log), Timeout(cfg.RequestTimeout()))

	api := router.Group("/api")
	api.POST("/login", s.handleLogin)
	api.GET("/quotes", s.handleQuotes)
	api.GET("/health", s.handleHealth)
	api.GET("/option-chain", s.handleOptionChain)
	api.GET("/status", s.handleStatus)
	if m != nil {
		router.GET("/metrics", gin.WrapH(m.Handler()))
	}

	c := cors.New(cors.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})

	// WriteTimeout leaves room for the request timeout response.
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      c.Handler(router),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout() + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the full HTTP handler including CORS.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) Start() error {
	s.logger.Info("web server starting", "port", s.port)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("web server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
