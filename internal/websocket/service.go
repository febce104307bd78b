package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sirosfoundation/go-realtime-shell/pkg/config"
	"github.com/sirosfoundation/go-realtime-shell/pkg/metrics"
)

// ServiceName is the name the WebSocket service registers under
const ServiceName = "websocket"

var (
	// ErrListenerUnavailable means the HTTP listener never became available
	ErrListenerUnavailable = errors.New("http listener not available")
	// ErrAlreadyStarting is returned by a Start racing another Start
	ErrAlreadyStarting = errors.New("websocket service is already starting")
	// ErrStoppedWhileStarting is returned by a Start cancelled by Stop
	ErrStoppedWhileStarting = errors.New("websocket service stopped while starting")
)

// Listener is the bound HTTP listener the transport is mounted on
type Listener interface {
	Addr() string
	Mount(path string, handler http.Handler)
	Unmount(path string)
}

// ListenerFunc returns the current listener, or nil while none is bound
type ListenerFunc func() Listener

// State is the lifecycle state of the WebSocket service
type State int

const (
	StateUninitialized State = iota
	StateStarting
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// ServiceConfig configures the WebSocket service
type ServiceConfig struct {
	// Path is the mount path on the listener
	Path    string
	Options Options

	// ListenerAttempts and ListenerDelay bound the wait for the listener
	ListenerAttempts int
	ListenerDelay    time.Duration
}

// ServiceConfigFrom builds the service configuration from application config
func ServiceConfigFrom(cfg config.WebSocketConfig, m *metrics.Metrics) ServiceConfig {
	opts := DefaultOptions()
	opts.AllowedOrigins = cfg.AllowedOrigins
	opts.AllowedMethods = cfg.AllowedMethods
	opts.MaxMessageSize = cfg.MaxMessageSize
	opts.SendBuffer = cfg.SendBuffer
	opts.Metrics = m
	if cfg.RateLimit.Burst > 0 && cfg.RateLimit.PerSeconds > 0 {
		window := time.Duration(cfg.RateLimit.PerSeconds * float64(time.Second))
		opts.RateLimit = RateLimit{
			Burst: cfg.RateLimit.Burst,
			Every: window / time.Duration(cfg.RateLimit.Burst),
		}
	}

	return ServiceConfig{
		Path:    cfg.Path,
		Options: opts,
	}
}

func (c ServiceConfig) withDefaults() ServiceConfig {
	if c.Path == "" {
		c.Path = "/socket"
	}
	if c.ListenerAttempts <= 0 {
		c.ListenerAttempts = 5
	}
	if c.ListenerDelay <= 0 {
		c.ListenerDelay = time.Second
	}
	return c
}

// Service owns a transport for as long as it runs and attaches the registry
// to every connection
type Service struct {
	cfg      ServiceConfig
	logger   *zap.Logger
	registry *Registry
	listener ListenerFunc

	mu        sync.RWMutex
	state     State
	server    *Server
	mounted   Listener
	directory *Directory
	cancel    context.CancelFunc
	// attempt identifies the Start that owns StateStarting
	attempt uint64
}

// NewService creates the WebSocket service
func NewService(cfg ServiceConfig, registry *Registry, listener ListenerFunc, logger *zap.Logger) *Service {
	return &Service{
		cfg:      cfg.withDefaults(),
		logger:   logger.Named("websocket-service"),
		registry: registry,
		listener: listener,
	}
}

func (s *Service) Name() string { return ServiceName }

// Start waits for the HTTP listener, mounts a new transport on it and
// begins serving connections
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case StateRunning:
		s.mu.Unlock()
		return nil
	case StateStarting:
		s.mu.Unlock()
		return ErrAlreadyStarting
	}
	s.state = StateStarting
	s.attempt++
	attempt := s.attempt
	s.mu.Unlock()

	ln, err := s.awaitListener(ctx)
	if err != nil {
		s.mu.Lock()
		if s.state == StateStarting && s.attempt == attempt {
			s.state = StateUninitialized
		}
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	if s.state != StateStarting || s.attempt != attempt {
		s.mu.Unlock()
		s.logger.Info("WebSocket service stopped before the transport was mounted")
		return ErrStoppedWhileStarting
	}
	server := NewServer(s.cfg.Options, s.logger)
	connCtx, cancel := context.WithCancel(context.Background())
	s.registry.Freeze()
	server.OnConnection(func(sock Socket) { s.wire(connCtx, sock) })
	ln.Mount(s.cfg.Path, server)

	s.server = server
	s.mounted = ln
	s.directory = NewDirectory(server)
	s.cancel = cancel
	s.state = StateRunning
	s.mu.Unlock()

	s.logger.Info("WebSocket service started",
		zap.String("addr", ln.Addr()),
		zap.String("path", s.cfg.Path),
		zap.Strings("events", s.registry.Events()))
	return nil
}

func (s *Service) awaitListener(ctx context.Context) (Listener, error) {
	for attempt := 1; attempt <= s.cfg.ListenerAttempts; attempt++ {
		if ln := s.listener(); ln != nil {
			return ln, nil
		}
		if attempt == s.cfg.ListenerAttempts {
			break
		}

		s.logger.Debug("HTTP listener not ready, retrying",
			zap.Int("attempt", attempt), zap.Duration("delay", s.cfg.ListenerDelay))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.cfg.ListenerDelay):
		}
	}

	s.logger.Error("HTTP listener not available", zap.Int("attempts", s.cfg.ListenerAttempts))
	return nil, ErrListenerUnavailable
}

// wire attaches the registry to one connection: connect hooks, the
// disconnect subscription, then one subscription per event known now
func (s *Service) wire(ctx context.Context, sock Socket) {
	s.registry.OnConnect(ctx, sock)

	sock.OnDisconnect(func(reason string) {
		s.registry.OnDisconnect(ctx, sock, reason)
	})

	for event, h := range s.registry.Handlers() {
		sock.On(event, func(payload json.RawMessage) {
			s.registry.Invoke(ctx, sock, event, h, payload)
		})
	}
}

// Stop closes every connection and unmounts the transport
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	server, ln, cancel := s.server, s.mounted, s.cancel
	s.server, s.mounted, s.directory, s.cancel = nil, nil, nil, nil
	if s.state == StateRunning || s.state == StateStarting {
		s.state = StateStopped
	}
	s.mu.Unlock()

	if server == nil {
		return nil
	}

	err := server.Shutdown(ctx)
	cancel()
	ln.Unmount(s.cfg.Path)

	if err != nil {
		return fmt.Errorf("failed to close transport: %w", err)
	}
	s.logger.Info("WebSocket service stopped")
	return nil
}

func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.server != nil
}

// State returns the current lifecycle state
func (s *Service) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Directory returns the room directory, nil while not running
func (s *Service) Directory() *Directory {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.directory
}

// ConnectionCount returns the number of live connections
func (s *Service) ConnectionCount() int {
	s.mu.RLock()
	server := s.server
	s.mu.RUnlock()
	if server == nil {
		return 0
	}
	return server.ConnectionCount()
}
