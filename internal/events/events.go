// Package events is the catalog of realtime event handlers the server ships
// with: echo and broadcast messaging, room membership, room queries, a few
// example computations and the default connection hook.
package events

import (
	"context"
	"encoding/json"
	"math/rand/v2"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/sirosfoundation/go-realtime-shell/internal/websocket"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Info describes the running server for server_info
type Info struct {
	ServerID  string
	Version   string
	StartedAt time.Time
}

// DirectoryFunc returns the live room directory, nil while the transport is down
type DirectoryFunc func() *websocket.Directory

// Catalog holds what the handlers need
type Catalog struct {
	logger    *zap.Logger
	directory DirectoryFunc
	info      Info
	random    func() float64
}

// New creates the handler catalog
func New(logger *zap.Logger, directory DirectoryFunc, info Info) *Catalog {
	if info.StartedAt.IsZero() {
		info.StartedAt = time.Now()
	}
	if info.Version == "" {
		info.Version = "unknown"
	}
	return &Catalog{
		logger:    logger.Named("events"),
		directory: directory,
		info:      info,
		random:    rand.Float64,
	}
}

// Register adds every handler and the default connection hook to registry
func Register(registry *websocket.Registry, c *Catalog) {
	registry.RegisterMany(c.Handlers()...)
	registry.RegisterConnectionHook(c.ConnectionHook())
}

// Handlers returns the event handlers of the catalog
func (c *Catalog) Handlers() []websocket.EventHandler {
	return []websocket.EventHandler{
		{Event: "message", Handler: c.message},
		{Event: "broadcast", Handler: c.broadcast},
		{Event: "join_room", Handler: c.joinRoom},
		{Event: "leave_room", Handler: c.leaveRoom},
		{Event: "ping", Handler: c.ping},
		{Event: "server_info", Handler: c.serverInfo},
		{Event: "client_info", Handler: c.clientInfo},
		{Event: "sum", Handler: Typed("sum", `Both "a" and "b" must be numbers`, c.sum)},
		{Event: "reverse_text", Handler: Typed("reverse_text", "Text must be a string", c.reverseText)},
		{Event: "random_number", Handler: Typed("random_number", "Both min and max must be numbers", c.randomNumber)},
		{Event: "get_rooms", Handler: c.getRooms},
		{Event: "get_room_users", Handler: Typed("room_users", "Room name must be provided as a string", c.getRoomUsers)},
		{Event: "get_rooms_info", Handler: c.getRoomsInfo},
	}
}

// InputError is the body of the <event>_error replies
type InputError struct {
	Error     string          `json:"error"`
	Message   string          `json:"message"`
	Received  json.RawMessage `json:"received"`
	Timestamp string          `json:"timestamp"`
}

func invalidInput(kind, message string, received json.RawMessage) InputError {
	if len(received) == 0 {
		received = json.RawMessage("null")
	}
	return InputError{
		Error:     kind,
		Message:   message,
		Received:  received,
		Timestamp: websocket.Timestamp(),
	}
}

// Typed adapts fn to a websocket.Handler. The payload is decoded into T and
// validated; on failure "<prefix>_error" is sent back with message and the
// raw payload, and fn is not called.
func Typed[T any](prefix, message string, fn func(ctx context.Context, s websocket.Socket, in T) error) websocket.Handler {
	return func(ctx context.Context, s websocket.Socket, payload json.RawMessage) error {
		var in T
		if len(payload) == 0 || json.Unmarshal(payload, &in) != nil || validate.Struct(in) != nil {
			return s.Emit(prefix+"_error", invalidInput("Invalid input", message, payload))
		}
		return fn(ctx, s, in)
	}
}

// lenient decodes payload into v, leaving v untouched when it does not fit
func lenient(payload json.RawMessage, v any) {
	if len(payload) > 0 {
		_ = json.Unmarshal(payload, v)
	}
}

// raw returns payload as a JSON value, null when empty
func raw(payload json.RawMessage) json.RawMessage {
	if len(payload) == 0 {
		return json.RawMessage("null")
	}
	return payload
}
