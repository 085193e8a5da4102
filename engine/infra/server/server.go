package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/flowmatic/flowmatic/pkg/logger"
	"github.com/gin-gonic/gin"
)

const shutdownTimeout = 10 * time.Second

// Server hosts the HTTP API over the engine: submission, polling, and the
// discovery catalog.
type Server struct {
	host string
	port int
	log  logger.Logger
	http *http.Server
}

func New(host string, port int, h *Handlers, log logger.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	registerRoutes(router, h)
	return &Server{
		host: host,
		port: port,
		log:  log,
		http: &http.Server{
			Addr:              fmt.Sprintf("%s:%d", host, port),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

func registerRoutes(router *gin.Engine, h *Handlers) {
	api := router.Group("/api")
	api.GET("/health", h.Health)

	workflows := api.Group("/workflows")
	workflows.POST("/submit/:workflowId", h.Submit)
	workflows.GET("/status/:jobId", h.Status)

	discovery := api.Group("/discovery")
	discovery.GET("/workflows", h.ListWorkflows)
	discovery.GET("/agents", h.ListAgents)
}

// Start serves until the context is canceled, then drains connections.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", "addr", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.log.Info("shutting down http server")
	return s.http.Shutdown(shutdownCtx)
}
