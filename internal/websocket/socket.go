// Package websocket implements the realtime side of the shell: a WebSocket
// transport with rooms, the event registry dispatching inbound events to
// handlers, the room directory and the lifecycle-managed Service that mounts
// the transport on the HTTP listener.
//
// Every frame on the wire is a single JSON text message of the form
//
//	{"event": "join_room", "data": {"room": "lobby"}}
//
// Handlers of one transport never run concurrently: connect wiring, inbound
// events and disconnect hooks are all executed by the transport's dispatcher
// goroutine in arrival order.
package websocket

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrConnClosed is returned when emitting to a connection that is gone
	ErrConnClosed = errors.New("connection closed")
	// ErrServerClosed is returned by operations on a closed transport
	ErrServerClosed = errors.New("transport closed")
)

// Disconnect reasons reported to OnDisconnect callbacks
const (
	ReasonTransportClose = "transport close"
	ReasonTransportError = "transport error"
	ReasonServerShutdown = "server shutting down"
	ReasonPingTimeout    = "ping timeout"
)

// TimestampLayout is ISO-8601 UTC with millisecond precision
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// Timestamp returns the current time formatted with TimestampLayout
func Timestamp() string {
	return FormatTimestamp(time.Now())
}

// FormatTimestamp formats t in UTC with TimestampLayout
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// Frame is the wire envelope of one event
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// EncodeFrame marshals payload into a wire frame for event
func EncodeFrame(event string, payload any) ([]byte, error) {
	frame := Frame{Event: event}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %q payload: %w", event, err)
		}
		frame.Data = data
	}
	return json.Marshal(frame)
}

// DecodeFrame parses a wire frame. A frame without an event name is invalid.
func DecodeFrame(raw []byte) (Frame, error) {
	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return Frame{}, fmt.Errorf("invalid frame: %w", err)
	}
	if frame.Event == "" {
		return Frame{}, errors.New("invalid frame: missing event")
	}
	return frame, nil
}

// Emitter sends one event to a set of connections
type Emitter interface {
	Emit(event string, payload any) error
}

// Socket is the capability handlers get for one live connection
type Socket interface {
	Emitter

	// ID returns the unique connection id
	ID() string

	// Join adds the connection to room, creating the room if needed
	Join(room string)

	// Leave removes the connection from room. Leaving a room the connection
	// is not in does nothing.
	Leave(room string)

	// To targets every member of room except this connection
	To(room string) Emitter

	// Broadcast targets every connection except this one
	Broadcast() Emitter

	// Rooms lists the rooms this connection is in, its own room included
	Rooms() []string

	// On subscribes fn to inbound frames named event, replacing any previous
	// subscription for that event
	On(event string, fn func(payload json.RawMessage))

	// OnDisconnect subscribes fn to the connection's termination
	OnDisconnect(fn func(reason string))
}

// Adapter is the global view of room membership
type Adapter interface {
	// Rooms returns every room with its member ids, self-rooms included
	Rooms() map[string][]string

	// Room returns the member ids of one room
	Room(name string) ([]string, bool)
}
