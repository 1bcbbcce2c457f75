package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/radiowatch/radiowatch/internal/domain"
	"github.com/radiowatch/radiowatch/internal/scoring"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, repo domain.Repository, cache domain.Cache, bus domain.EventBus, svc *scoring.Service, version string) *Server {
	handler := NewHandler(repo, cache, bus, svc, version)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)
	router.Use(RecoverMiddleware)
	router.Use(TracingMiddleware)
	router.Use(LoggingMiddleware)
	router.Use(middleware.RealIP)
	router.Use(middleware.Compress(5))

	// Operational endpoints
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)
	router.Handle("/metrics", promhttp.Handler())

	// Home location
	router.Get("/home", handler.GetHome)
	router.Put("/home", handler.SetHome)
	router.Delete("/home", handler.ClearHome)

	// Trained model coefficients
	router.Get("/models/{type}", handler.GetModel)
	router.Put("/models/{type}", handler.SaveModel)

	// Observation feed
	router.Post("/observations", handler.IngestObservations)

	// Networks
	router.Route("/networks", func(r chi.Router) {
		r.Post("/query", handler.QueryNetworks)
		r.Post("/geospatial", handler.QueryGeospatial)

		r.Get("/{id}/score", handler.GetScore)
		r.Post("/{id}/score", handler.RecomputeScore)

		r.Get("/{id}/tag", handler.GetTag)
		r.Put("/{id}/tag", handler.SetTag)
		r.Delete("/{id}/tag", handler.DeleteTag)
	})

	// Scoring
	router.Post("/scores/recompute", handler.Recompute)
	router.Get("/threats/severity", handler.Severity)

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadTimeout:       time.Duration(s.config.ReadTimeout) * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}
