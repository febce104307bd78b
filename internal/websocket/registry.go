package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sirosfoundation/go-realtime-shell/pkg/metrics"
)

// Handler processes one inbound event for one connection
type Handler func(ctx context.Context, s Socket, payload json.RawMessage) error

// EventHandler binds a Handler to an event name
type EventHandler struct {
	Event   string
	Handler Handler
}

// ConnectionHook observes connection lifecycle. Either callback may be nil.
type ConnectionHook struct {
	OnConnect    func(ctx context.Context, s Socket) error
	OnDisconnect func(ctx context.Context, s Socket, reason string) error
}

// Registry maps event names to handlers and holds the connection hooks.
// There is at most one handler per event; hooks all run, in order.
type Registry struct {
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu       sync.RWMutex
	handlers map[string]Handler
	hooks    []ConnectionHook
	frozen   bool
}

// NewRegistry creates an empty registry. m may be nil.
func NewRegistry(logger *zap.Logger, m *metrics.Metrics) *Registry {
	return &Registry{
		logger:   logger.Named("event-registry"),
		metrics:  m,
		handlers: make(map[string]Handler),
	}
}

// Register binds handler to event, replacing an earlier binding
func (r *Registry) Register(event string, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[event]; exists {
		r.logger.Warn("Overwriting handler", zap.String("event", event))
	}
	if r.frozen {
		r.logger.Warn("Handler registered after the transport started; existing connections keep their handler set",
			zap.String("event", event))
	}
	r.handlers[event] = handler
	r.logger.Debug("Registered handler", zap.String("event", event))
}

// RegisterMany registers entries in order
func (r *Registry) RegisterMany(entries ...EventHandler) {
	for _, e := range entries {
		r.Register(e.Event, e.Handler)
	}
}

// RegisterConnectionHook appends a lifecycle hook
func (r *Registry) RegisterConnectionHook(hook ConnectionHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks = append(r.hooks, hook)
}

// Freeze marks the start of serving connections
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// Handlers returns a copy of the current bindings
func (r *Registry) Handlers() map[string]Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]Handler, len(r.handlers))
	for event, h := range r.handlers {
		out[event] = h
	}
	return out
}

// Events returns the registered event names, sorted
func (r *Registry) Events() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	events := make([]string, 0, len(r.handlers))
	for event := range r.handlers {
		events = append(events, event)
	}
	sort.Strings(events)
	return events
}

// Lookup returns the current handler of event
func (r *Registry) Lookup(event string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[event]
	return h, ok
}

// Dispatch runs the current handler of event. Unknown events are logged and
// produce no output.
func (r *Registry) Dispatch(ctx context.Context, s Socket, event string, payload json.RawMessage) {
	h, ok := r.Lookup(event)
	if !ok {
		r.logger.Warn("No handler registered for event", zap.String("event", event), zap.String("socket", s.ID()))
		r.metrics.EventDone("unknown", metrics.OutcomeUnhandled, time.Now())
		return
	}
	r.Invoke(ctx, s, event, h, payload)
}

// Invoke runs h for one event. An error or panic is logged and reported to
// the originating socket only.
func (r *Registry) Invoke(ctx context.Context, s Socket, event string, h Handler, payload json.RawMessage) {
	start := time.Now()
	err := safeCall(func() error { return h(ctx, s, payload) })
	if err == nil {
		r.metrics.EventDone(event, metrics.OutcomeOK, start)
		return
	}

	r.metrics.EventDone(event, metrics.OutcomeError, start)
	r.logger.Error("Error handling event",
		zap.String("event", event),
		zap.String("socket", s.ID()),
		zap.Error(err))

	if emitErr := s.Emit("error", ErrorPayload{
		Event:     event,
		Message:   "Error processing event",
		Timestamp: Timestamp(),
	}); emitErr != nil {
		r.logger.Debug("Could not report handler error", zap.String("socket", s.ID()), zap.Error(emitErr))
	}
}

// ErrorPayload is the body of the generic error event
type ErrorPayload struct {
	Event     string `json:"event,omitempty"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp,omitempty"`
}

// OnConnect runs every OnConnect hook in order
func (r *Registry) OnConnect(ctx context.Context, s Socket) {
	for i, hook := range r.snapshotHooks() {
		if hook.OnConnect == nil {
			continue
		}
		if err := safeCall(func() error { return hook.OnConnect(ctx, s) }); err != nil {
			r.logger.Error("Connection hook failed",
				zap.Int("hook", i), zap.String("socket", s.ID()), zap.Error(err))
		}
	}
}

// OnDisconnect runs every OnDisconnect hook in order
func (r *Registry) OnDisconnect(ctx context.Context, s Socket, reason string) {
	for i, hook := range r.snapshotHooks() {
		if hook.OnDisconnect == nil {
			continue
		}
		if err := safeCall(func() error { return hook.OnDisconnect(ctx, s, reason) }); err != nil {
			r.logger.Error("Disconnect hook failed",
				zap.Int("hook", i), zap.String("socket", s.ID()), zap.String("reason", reason), zap.Error(err))
		}
	}
}

func (r *Registry) snapshotHooks() []ConnectionHook {
	r.mu.RLock()
	defer r.mu.RUnlock()
	hooks := make([]ConnectionHook, len(r.hooks))
	copy(hooks, r.hooks)
	return hooks
}

func safeCall(fn func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return fn()
}
