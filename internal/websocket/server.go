package websocket

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/sirosfoundation/go-realtime-shell/pkg/metrics"
)

// Options configures a transport
type Options struct {
	AllowedOrigins []string
	// AllowedMethods filters handshake requests. The upgrade itself only
	// succeeds for GET, so any other method listed here still fails with 405.
	AllowedMethods []string
	MaxMessageSize int64
	SendBuffer     int
	RateLimit      RateLimit

	PingInterval time.Duration
	PongWait     time.Duration
	WriteWait    time.Duration

	// Metrics may be nil
	Metrics *metrics.Metrics
}

// DefaultOptions returns the transport defaults
func DefaultOptions() Options {
	return Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet},
		MaxMessageSize: 64 * 1024,
		SendBuffer:     256,
		PingInterval:   54 * time.Second,
		PongWait:       60 * time.Second,
		WriteWait:      10 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if len(o.AllowedOrigins) == 0 {
		o.AllowedOrigins = d.AllowedOrigins
	}
	if len(o.AllowedMethods) == 0 {
		o.AllowedMethods = d.AllowedMethods
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = d.MaxMessageSize
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = d.SendBuffer
	}
	if o.PongWait <= 0 {
		o.PongWait = d.PongWait
	}
	if o.PingInterval <= 0 || o.PingInterval >= o.PongWait {
		o.PingInterval = o.PongWait * 9 / 10
	}
	if o.WriteWait <= 0 {
		o.WriteWait = d.WriteWait
	}
	return o
}

// Server is the connection transport. It upgrades HTTP requests, tracks live
// connections and room membership, and runs every callback on a single
// dispatcher goroutine.
type Server struct {
	opts     Options
	logger   *zap.Logger
	upgrader websocket.Upgrader
	origins  originPolicy
	limiter  *connLimiter

	tasks  chan func()
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu           sync.RWMutex
	conns        map[string]*Conn
	rooms        map[string]map[string]struct{}
	closed       bool
	onConnection func(Socket)

	pumps sync.WaitGroup
}

// NewServer creates a transport and starts its dispatcher
func NewServer(opts Options, logger *zap.Logger) *Server {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		opts:    opts,
		logger:  logger.Named("transport"),
		limiter: newConnLimiter(opts.RateLimit),
		tasks:   make(chan func(), 1024),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
		conns:   make(map[string]*Conn),
		rooms:   make(map[string]map[string]struct{}),
	}
	s.origins = newOriginPolicy(opts.AllowedOrigins, s.logger)
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if s.origins.check(r) {
				return true
			}
			s.logger.Warn("Blocked connection from disallowed origin", zap.String("origin", r.Header.Get("Origin")))
			return false
		},
	}

	go s.run()
	return s
}

// OnConnection sets the callback run on the dispatcher for every new
// connection, before any of its frames are dispatched
func (s *Server) OnConnection(fn func(Socket)) {
	s.mu.Lock()
	s.onConnection = fn
	s.mu.Unlock()
}

func (s *Server) run() {
	defer close(s.done)
	for {
		select {
		case task := <-s.tasks:
			s.execute(task)
		case <-s.ctx.Done():
			for {
				select {
				case task := <-s.tasks:
					s.execute(task)
				default:
					return
				}
			}
		}
	}
}

func (s *Server) execute(task func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Recovered panic in dispatcher", zap.Any("panic", r))
		}
	}()
	task()
}

func (s *Server) enqueue(task func()) {
	select {
	case s.tasks <- task:
	case <-s.done:
	}
}

// ServeHTTP upgrades the request and registers the new connection
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !s.methodAllowed(r.Method) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		http.Error(w, ErrServerClosed.Error(), http.StatusServiceUnavailable)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Failed to upgrade connection", zap.String("remote_addr", r.RemoteAddr), zap.Error(err))
		return
	}
	ws.SetReadLimit(s.opts.MaxMessageSize)

	c := newConn(s, ws, r.RemoteAddr)
	if err := s.attach(c); err != nil {
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, ReasonServerShutdown),
			time.Now().Add(s.opts.WriteWait))
		_ = ws.Close()
		return
	}

	s.logger.Info("Client connected", zap.String("id", c.id), zap.String("remote_addr", c.remoteAddr))
	s.opts.Metrics.Connected()

	s.enqueue(func() { s.connected(c) })

	go c.writePump()
	go c.readPump()
}

func (s *Server) methodAllowed(method string) bool {
	for _, m := range s.opts.AllowedMethods {
		if strings.EqualFold(m, method) {
			return true
		}
	}
	return false
}

func (s *Server) connected(c *Conn) {
	s.mu.RLock()
	fn := s.onConnection
	s.mu.RUnlock()
	if fn != nil {
		fn(c)
	}
}

func (s *Server) attach(c *Conn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrServerClosed
	}
	s.conns[c.id] = c
	s.joinLocked(c, c.id)
	s.pumps.Add(2)
	s.recordRoomsLocked()
	return nil
}

func (s *Server) detach(c *Conn) {
	s.mu.Lock()
	for room := range c.rooms {
		s.leaveLocked(c, room)
	}
	delete(s.conns, c.id)
	s.recordRoomsLocked()
	s.mu.Unlock()

	s.limiter.Forget(c.id)
}

func (s *Server) join(c *Conn, room string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conns[c.id] != c {
		return
	}
	s.joinLocked(c, room)
	s.recordRoomsLocked()
}

func (s *Server) leave(c *Conn, room string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.leaveLocked(c, room)
	s.recordRoomsLocked()
}

func (s *Server) joinLocked(c *Conn, room string) {
	members, ok := s.rooms[room]
	if !ok {
		members = make(map[string]struct{})
		s.rooms[room] = members
	}
	members[c.id] = struct{}{}
	c.rooms[room] = struct{}{}
}

func (s *Server) leaveLocked(c *Conn, room string) {
	delete(c.rooms, room)
	members, ok := s.rooms[room]
	if !ok {
		return
	}
	delete(members, c.id)
	if len(members) == 0 {
		delete(s.rooms, room)
	}
}

// self-rooms are not counted
func (s *Server) recordRoomsLocked() {
	s.opts.Metrics.SetRooms(len(s.rooms) - len(s.conns))
}

func (s *Server) emitRoom(room, except string, frame []byte) {
	s.mu.RLock()
	members := s.rooms[room]
	targets := make([]*Conn, 0, len(members))
	for id := range members {
		if id == except {
			continue
		}
		if c, ok := s.conns[id]; ok {
			targets = append(targets, c)
		}
	}
	s.mu.RUnlock()

	for _, c := range targets {
		_ = c.deliver(frame)
	}
}

func (s *Server) emitAll(except string, frame []byte) {
	s.mu.RLock()
	targets := make([]*Conn, 0, len(s.conns))
	for id, c := range s.conns {
		if id != except {
			targets = append(targets, c)
		}
	}
	s.mu.RUnlock()

	for _, c := range targets {
		_ = c.deliver(frame)
	}
}

// Rooms returns every room with its sorted member ids
func (s *Server) Rooms() map[string][]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string][]string, len(s.rooms))
	for name, members := range s.rooms {
		out[name] = sortedKeys(members)
	}
	return out
}

// Room returns the sorted member ids of one room
func (s *Server) Room(name string) ([]string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	members, ok := s.rooms[name]
	if !ok {
		return nil, false
	}
	return sortedKeys(members), true
}

// ConnectionCount returns the number of live connections
func (s *Server) ConnectionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns)
}

// Close terminates every connection with ReasonServerShutdown, waits for
// their disconnect callbacks and stops the dispatcher. It is idempotent.
func (s *Server) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		<-s.done
		return
	}
	s.closed = true
	conns := make([]*Conn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	s.logger.Info("Closing transport", zap.Int("connections", len(conns)))
	for _, c := range conns {
		c.close(ReasonServerShutdown)
	}

	s.pumps.Wait()
	s.cancel()
	<-s.done
}

// Shutdown is Close bounded by ctx
func (s *Server) Shutdown(ctx context.Context) error {
	finished := make(chan struct{})
	go func() {
		s.Close()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
