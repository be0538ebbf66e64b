// Package server exposes the resolution pipeline over HTTP.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	coalesce "github.com/tributary-data/coalesce"
	"github.com/tributary-data/coalesce/pkg/config"
	"github.com/tributary-data/coalesce/pkg/pipeline"
	"github.com/tributary-data/coalesce/pkg/server/handlers"
)

// Server is the HTTP front end over a coalesce client.
type Server struct {
	config *config.Config
	client coalesce.Coalesce
	opts   pipeline.Options
	logger *slog.Logger
	router *gin.Engine
	server *http.Server
}

// New creates a server instance.
func New(cfg *config.Config, client coalesce.Coalesce, opts pipeline.Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{config: cfg, client: client, opts: opts, logger: logger}
}

// Setup wires routes and middleware.
func (s *Server) Setup() {
	gin.SetMode(s.config.Server.Mode)

	s.router = gin.New()
	s.router.Use(gin.Logger())
	s.router.Use(gin.Recovery())
	s.router.Use(corsMiddleware())

	s.setupRoutes()

	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}
}

func (s *Server) setupRoutes() {
	healthHandler := handlers.NewHealthHandler(s.client)
	recordsHandler := handlers.NewRecordsHandler(s.client)
	resolveHandler := handlers.NewResolveHandler(s.client, s.opts, s.logger)

	s.router.GET("/health", healthHandler.HealthCheck)
	s.router.GET("/ready", healthHandler.ReadinessCheck)
	s.router.GET("/live", healthHandler.LivenessCheck)

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/records", recordsHandler.IngestRecords)
		v1.GET("/records/:collection/:id", recordsHandler.GetRecord)

		resolve := v1.Group("/resolve")
		{
			resolve.POST("/run", resolveHandler.Run)
			resolve.GET("/report", resolveHandler.Report)
		}

		v1.GET("/clusters", resolveHandler.Clusters)
		v1.GET("/golden", resolveHandler.GoldenRecords)
	}
}

// Router exposes the configured router, mainly for tests.
func (s *Server) Router() *gin.Engine { return s.router }

// Start runs the server until it is stopped.
func (s *Server) Start() error {
	s.logger.Info("starting http server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping http server")
	return s.server.Shutdown(ctx)
}

// corsMiddleware adds permissive CORS headers.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Header("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
