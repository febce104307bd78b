// Package service provides the lifecycle shell of the application: the Service
// capability and the Manager that starts and stops a set of named services.
//
// Services are registered once at composition time. StartAll starts every
// service concurrently and fails as a whole when any one fails; StopAll stops
// them in reverse registration order on a best-effort basis.
package service

import (
	"context"
	"errors"
)

// ErrDuplicateService is returned when a service name is registered twice
var ErrDuplicateService = errors.New("service already registered")

// Service is anything the Manager can start and stop
type Service interface {
	// Name returns the unique lookup and display name
	Name() string

	// Start brings the service up. It must return once the service is
	// running; long-lived work belongs in goroutines owned by the service.
	Start(ctx context.Context) error

	// Stop shuts the service down. Stopping a stopped service is a no-op.
	Stop(ctx context.Context) error

	// IsRunning reports whether the service is currently up
	IsRunning() bool
}

// State is the coarse lifecycle state of a service
type State int

const (
	StateStopped State = iota
	StateRunning
)

// String returns the string representation of State
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateRunning:
		return "running"
	default:
		return "unknown"
	}
}

// StateOf returns the state of svc as seen from the outside
func StateOf(svc Service) State {
	if svc.IsRunning() {
		return StateRunning
	}
	return StateStopped
}
