package websocket

import (
	"encoding/json"
	"errors"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/sirosfoundation/go-realtime-shell/pkg/metrics"
)

// Conn is one live connection. It implements Socket.
type Conn struct {
	id         string
	server     *Server
	ws         *websocket.Conn
	remoteAddr string
	logger     *zap.Logger

	send      chan []byte
	closing   chan struct{}
	closeOnce sync.Once
	reason    string

	// guarded by server.mu
	rooms map[string]struct{}

	mu            sync.Mutex
	handlers      map[string]func(json.RawMessage)
	disconnectFns []func(string)
}

func newConn(s *Server, ws *websocket.Conn, remoteAddr string) *Conn {
	id := uuid.NewString()
	return &Conn{
		id:         id,
		server:     s,
		ws:         ws,
		remoteAddr: remoteAddr,
		logger:     s.logger.With(zap.String("id", id)),
		send:       make(chan []byte, s.opts.SendBuffer),
		closing:    make(chan struct{}),
		rooms:      make(map[string]struct{}),
		handlers:   make(map[string]func(json.RawMessage)),
	}
}

// ID returns the connection id
func (c *Conn) ID() string { return c.id }

// Emit sends one event to this connection
func (c *Conn) Emit(event string, payload any) error {
	frame, err := EncodeFrame(event, payload)
	if err != nil {
		return err
	}
	return c.deliver(frame)
}

func (c *Conn) Join(room string) { c.server.join(c, room) }

func (c *Conn) Leave(room string) { c.server.leave(c, room) }

func (c *Conn) To(room string) Emitter {
	return roomEmitter{server: c.server, room: room, except: c.id}
}

func (c *Conn) Broadcast() Emitter {
	return broadcastEmitter{server: c.server, except: c.id}
}

// Rooms returns the sorted rooms of this connection
func (c *Conn) Rooms() []string {
	c.server.mu.RLock()
	defer c.server.mu.RUnlock()
	return sortedKeys(c.rooms)
}

func (c *Conn) On(event string, fn func(json.RawMessage)) {
	c.mu.Lock()
	c.handlers[event] = fn
	c.mu.Unlock()
}

func (c *Conn) OnDisconnect(fn func(reason string)) {
	c.mu.Lock()
	c.disconnectFns = append(c.disconnectFns, fn)
	c.mu.Unlock()
}

// Subscriptions returns the sorted event names this connection listens to
func (c *Conn) Subscriptions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	events := make([]string, 0, len(c.handlers))
	for event := range c.handlers {
		events = append(events, event)
	}
	sort.Strings(events)
	return events
}

// deliver queues a frame for the write pump. A connection whose buffer is
// full is too slow to keep and gets dropped.
func (c *Conn) deliver(frame []byte) error {
	select {
	case <-c.closing:
		return ErrConnClosed
	default:
	}

	select {
	case c.send <- frame:
		return nil
	default:
		c.logger.Warn("Send buffer full, dropping connection")
		c.server.opts.Metrics.FrameDropped("send_buffer_full")
		c.close(ReasonTransportError)
		return ErrConnClosed
	}
}

// close starts the termination of the connection; the first reason wins
func (c *Conn) close(reason string) {
	c.closeOnce.Do(func() {
		c.reason = reason
		close(c.closing)
	})
}

func (c *Conn) exitReason(err error) string {
	select {
	case <-c.closing:
		return c.reason
	default:
	}

	var netErr net.Error
	switch {
	case errors.As(err, &netErr) && netErr.Timeout():
		return ReasonPingTimeout
	case errors.Is(err, websocket.ErrReadLimit):
		return ReasonTransportError
	default:
		return ReasonTransportClose
	}
}

func (c *Conn) readPump() {
	var err error
	defer func() {
		reason := c.exitReason(err)
		c.close(reason)
		_ = c.ws.Close()

		c.server.detach(c)
		c.server.opts.Metrics.Disconnected(reason)
		c.logger.Info("Client disconnected", zap.String("reason", reason))

		c.server.enqueue(func() { c.disconnected(reason) })
		c.server.pumps.Done()
	}()

	pongWait := c.server.opts.PongWait
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var raw []byte
		_, raw, err = c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				c.logger.Debug("Read error", zap.Error(err))
			}
			return
		}

		if !c.server.limiter.Allow(c.id) {
			c.logger.Warn("Rate limit exceeded, discarding frame")
			c.server.opts.Metrics.FrameDropped("rate_limited")
			continue
		}

		frame, ferr := DecodeFrame(raw)
		if ferr != nil {
			c.logger.Warn("Discarding invalid frame", zap.Error(ferr))
			c.server.opts.Metrics.FrameDropped("invalid_frame")
			continue
		}

		c.server.enqueue(func() { c.dispatch(frame) })
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(c.server.opts.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
		c.server.pumps.Done()
	}()

	writeWait := c.server.opts.WriteWait
	for {
		select {
		case frame := <-c.send:
			if err := c.write(frame); err != nil {
				c.logger.Debug("Write failed", zap.Error(err))
				c.close(ReasonTransportError)
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.close(ReasonTransportError)
				return
			}
		case <-c.closing:
			c.flush()
			code := websocket.CloseNormalClosure
			if c.reason == ReasonServerShutdown {
				code = websocket.CloseGoingAway
			}
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(code, c.reason),
				time.Now().Add(writeWait))
			return
		}
	}
}

func (c *Conn) write(frame []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.server.opts.WriteWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, frame)
}

// flush writes what is still queued, best effort
func (c *Conn) flush() {
	for {
		select {
		case frame := <-c.send:
			if err := c.write(frame); err != nil {
				return
			}
		default:
			return
		}
	}
}

// dispatch runs on the dispatcher goroutine
func (c *Conn) dispatch(frame Frame) {
	c.mu.Lock()
	fn, ok := c.handlers[frame.Event]
	c.mu.Unlock()

	if !ok {
		c.logger.Warn("No handler for event", zap.String("event", frame.Event))
		c.server.opts.Metrics.EventDone("unknown", metrics.OutcomeUnhandled, time.Now())
		return
	}
	fn(frame.Data)
}

// disconnected runs on the dispatcher goroutine
func (c *Conn) disconnected(reason string) {
	c.mu.Lock()
	fns := make([]func(string), len(c.disconnectFns))
	copy(fns, c.disconnectFns)
	c.mu.Unlock()

	for _, fn := range fns {
		func() {
			defer func() {
				if r := recover(); r != nil {
					c.logger.Error("Recovered panic in disconnect callback", zap.Any("panic", r))
				}
			}()
			fn(reason)
		}()
	}
}

type roomEmitter struct {
	server *Server
	room   string
	except string
}

func (e roomEmitter) Emit(event string, payload any) error {
	frame, err := EncodeFrame(event, payload)
	if err != nil {
		return err
	}
	e.server.emitRoom(e.room, e.except, frame)
	return nil
}

type broadcastEmitter struct {
	server *Server
	except string
}

func (e broadcastEmitter) Emit(event string, payload any) error {
	frame, err := EncodeFrame(event, payload)
	if err != nil {
		return err
	}
	e.server.emitAll(e.except, frame)
	return nil
}
