package service

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Manager owns a registry of named services
type Manager struct {
	logger *zap.Logger

	mu       sync.RWMutex
	services []Service
	byName   map[string]Service
}

// NewManager creates an empty service manager
func NewManager(logger *zap.Logger) *Manager {
	return &Manager{
		logger: logger.Named("service-manager"),
		byName: make(map[string]Service),
	}
}

// Register adds a service. Names must be unique; a duplicate is a
// configuration error and nothing is registered.
func (m *Manager) Register(svc Service) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	name := svc.Name()
	if _, exists := m.byName[name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateService, name)
	}

	m.services = append(m.services, svc)
	m.byName[name] = svc
	m.logger.Info("Registered service", zap.String("service", name))
	return nil
}

// Get returns the service registered under name
func (m *Manager) Get(name string) (Service, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	svc, ok := m.byName[name]
	return svc, ok
}

// All returns the services in registration order
func (m *Manager) All() []Service {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Service, len(m.services))
	copy(out, m.services)
	return out
}

// StartAll starts every service concurrently and waits for all of them.
// The first failure is returned; siblings may or may not be running.
func (m *Manager) StartAll(ctx context.Context) error {
	m.logger.Info("Starting all services")

	g, gctx := errgroup.WithContext(ctx)
	for _, svc := range m.All() {
		g.Go(func() error {
			if err := svc.Start(gctx); err != nil {
				m.logger.Error("Failed to start service", zap.String("service", svc.Name()), zap.Error(err))
				return fmt.Errorf("start %s: %w", svc.Name(), err)
			}
			m.logger.Info("Started service", zap.String("service", svc.Name()))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	m.logger.Info("All services started")
	return nil
}

// StopAll stops every running service, launched in reverse registration
// order. Failures are logged and never abort the shutdown.
func (m *Manager) StopAll(ctx context.Context) {
	m.logger.Info("Stopping all services")

	services := m.All()
	var wg sync.WaitGroup
	for i := len(services) - 1; i >= 0; i-- {
		svc := services[i]
		if !svc.IsRunning() {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					m.logger.Error("Service panicked while stopping", zap.String("service", svc.Name()), zap.Any("panic", r))
				}
			}()
			if err := svc.Stop(ctx); err != nil {
				m.logger.Error("Error stopping service", zap.String("service", svc.Name()), zap.Error(err))
				return
			}
			m.logger.Info("Stopped service", zap.String("service", svc.Name()))
		}()
	}
	wg.Wait()

	m.logger.Info("All services stopped")
}
