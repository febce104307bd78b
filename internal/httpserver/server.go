package httpserver

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sirosfoundation/go-realtime-shell/internal/service"
	"github.com/sirosfoundation/go-realtime-shell/internal/websocket"
	"github.com/sirosfoundation/go-realtime-shell/pkg/config"
	"github.com/sirosfoundation/go-realtime-shell/pkg/metrics"
	"github.com/sirosfoundation/go-realtime-shell/pkg/middleware"
)

// ServiceName is the name the HTTP service registers under
const ServiceName = "http"

// ServiceLister lists the services reported by the health endpoints
type ServiceLister interface {
	All() []service.Service
}

// Deps are the collaborators of the HTTP service. All fields are optional.
type Deps struct {
	Services  ServiceLister
	Directory func() *websocket.Directory
	Metrics   *metrics.Metrics
	Version   string
	StartedAt time.Time
}

// Service serves the HTTP API and hosts mounted handlers
type Service struct {
	cfg    *config.Config
	deps   Deps
	logger *zap.Logger
	router *gin.Engine

	mu       sync.RWMutex
	srv      *http.Server
	listener *Listener
}

// New creates the HTTP service and builds its router
func New(cfg *config.Config, deps Deps, logger *zap.Logger) *Service {
	if deps.Version == "" {
		deps.Version = "unknown"
	}
	if deps.StartedAt.IsZero() {
		deps.StartedAt = time.Now()
	}

	s := &Service{
		cfg:    cfg,
		deps:   deps,
		logger: logger.Named("http"),
	}
	s.router = s.buildRouter()
	return s
}

func (s *Service) Name() string { return ServiceName }

// Handler returns the full request handler, mainly for tests
func (s *Service) Handler() http.Handler { return s }

// ServeHTTP hands mounted paths straight to their handler and everything
// else to the router. Mounted handlers apply their own origin policy, so
// they bypass the HTTP CORS middleware.
func (s *Service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if ln := s.Listener(); ln != nil {
		if h, ok := ln.lookup(r.URL.Path); ok {
			h.ServeHTTP(w, r)
			return
		}
	}
	s.router.ServeHTTP(w, r)
}

// buildRouter creates the router with common middleware and every route
func (s *Service) buildRouter() *gin.Engine {
	router := gin.New()
	router.Use(middleware.Recovery(s.logger, s.cfg.Server.IsDevelopment()))
	router.Use(middleware.Logger(s.logger))
	if s.deps.Metrics != nil {
		router.Use(s.deps.Metrics.Middleware())
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     s.cfg.CORS.AllowedOrigins,
		AllowMethods:     s.cfg.CORS.AllowedMethods,
		AllowHeaders:     s.cfg.CORS.AllowedHeaders,
		ExposeHeaders:    s.cfg.CORS.ExposedHeaders,
		AllowCredentials: s.cfg.CORS.AllowCredentials,
		MaxAge:           time.Duration(s.cfg.CORS.MaxAge) * time.Second,
	}))

	router.SetHTMLTemplate(template.Must(template.ParseFS(assets, "static/*.html")))

	s.registerRoutes(router)

	if s.cfg.Metrics.Enabled && s.deps.Metrics != nil {
		router.GET(s.cfg.Metrics.Path, gin.WrapH(s.deps.Metrics.Handler()))
	}

	router.NoRoute(middleware.NotFound())
	return router
}

// Start binds the listener and serves in the background
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.srv != nil {
		return nil
	}

	addr := s.cfg.Server.Address()
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:      s,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	s.srv = srv
	s.listener = newListener(ln.Addr())

	go func() {
		s.logger.Info("HTTP server listening", zap.String("address", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop gracefully shuts the server down
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.srv = nil
	s.listener = nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("HTTP server shutdown: %w", err)
	}
	s.logger.Info("HTTP server stopped")
	return nil
}

func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.srv != nil
}

// Listener returns the bound listener, nil before Start
func (s *Service) Listener() *Listener {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listener
}
