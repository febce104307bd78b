package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sirosfoundation/go-realtime-shell/internal/events"
	"github.com/sirosfoundation/go-realtime-shell/internal/httpserver"
	"github.com/sirosfoundation/go-realtime-shell/internal/modes"
	"github.com/sirosfoundation/go-realtime-shell/internal/service"
	"github.com/sirosfoundation/go-realtime-shell/internal/websocket"
	"github.com/sirosfoundation/go-realtime-shell/pkg/config"
	"github.com/sirosfoundation/go-realtime-shell/pkg/logging"
	"github.com/sirosfoundation/go-realtime-shell/pkg/metrics"
)

var (
	configFile = flag.String("config", "configs/config.yaml", "Path to configuration file")
	modeFlag   = flag.String("mode", string(modes.ModeAll), "Services to run: all or http")
	version    = "dev"
	buildTime  = "unknown"
)

func main() {
	flag.Parse()

	mode, err := modes.ParseMode(*modeFlag)
	if err != nil {
		log.Fatalf("Invalid mode: %v", err)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting realtime shell",
		zap.String("version", version),
		zap.String("build_time", buildTime),
		zap.String("mode", string(mode)),
		zap.String("environment", cfg.Server.Environment),
	)

	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	manager, err := buildServices(cfg, mode, logger)
	if err != nil {
		logger.Fatal("Failed to register services", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := manager.StartAll(ctx); err != nil {
		logger.Error("Failed to start services", zap.Error(err))
		shutdown(manager, cfg, logger)
		os.Exit(1)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	sig := <-quit

	logger.Info("Shutting down", zap.String("signal", sig.String()))
	shutdown(manager, cfg, logger)
	logger.Info("Server exited")
}

// buildServices wires every service in start order: HTTP first, then the
// WebSocket service that mounts itself on the HTTP listener
func buildServices(cfg *config.Config, mode modes.Mode, logger *zap.Logger) (*service.Manager, error) {
	startedAt := time.Now()
	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(cfg.Metrics.Namespace)
	}
	manager := service.NewManager(logger)

	var wsService *websocket.Service
	directory := func() *websocket.Directory {
		if wsService == nil {
			return nil
		}
		return wsService.Directory()
	}

	httpService := httpserver.New(cfg, httpserver.Deps{
		Services:  manager,
		Directory: directory,
		Metrics:   m,
		Version:   version,
		StartedAt: startedAt,
	}, logger)
	if err := manager.Register(httpService); err != nil {
		return nil, err
	}

	if !mode.RunsWebSocket() {
		return manager, nil
	}

	registry := websocket.NewRegistry(logger, m)
	listener := func() websocket.Listener {
		if ln := httpService.Listener(); ln != nil {
			return ln
		}
		return nil
	}
	wsService = websocket.NewService(websocket.ServiceConfigFrom(cfg.WebSocket, m), registry, listener, logger)

	events.Register(registry, events.New(logger, wsService.Directory, events.Info{
		ServerID:  cfg.Server.ServerID,
		Version:   version,
		StartedAt: startedAt,
	}))

	if err := manager.Register(wsService); err != nil {
		return nil, err
	}
	return manager, nil
}

func shutdown(manager *service.Manager, cfg *config.Config, logger *zap.Logger) {
	timeout := time.Duration(cfg.ShutdownTimeoutSeconds) * time.Second
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		manager.StopAll(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		logger.Error("Graceful shutdown timed out", zap.Duration("timeout", timeout))
	}
}
