package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// recordingSocket is a Socket that records what is emitted through it
type recordingSocket struct {
	id string

	mu     sync.Mutex
	frames []Frame
	rooms  map[string]struct{}
}

func newRecordingSocket(id string) *recordingSocket {
	return &recordingSocket{id: id, rooms: map[string]struct{}{id: {}}}
}

func (r *recordingSocket) ID() string { return r.id }

func (r *recordingSocket) Emit(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.frames = append(r.frames, Frame{Event: event, Data: data})
	r.mu.Unlock()
	return nil
}

func (r *recordingSocket) Join(room string) {
	r.mu.Lock()
	r.rooms[room] = struct{}{}
	r.mu.Unlock()
}

func (r *recordingSocket) Leave(room string) {
	r.mu.Lock()
	delete(r.rooms, room)
	r.mu.Unlock()
}

func (r *recordingSocket) To(string) Emitter { return r }

func (r *recordingSocket) Broadcast() Emitter { return r }

func (r *recordingSocket) On(string, func(json.RawMessage)) {}

func (r *recordingSocket) OnDisconnect(func(string)) {}

func (r *recordingSocket) Rooms() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.rooms))
	for room := range r.rooms {
		out = append(out, room)
	}
	sort.Strings(out)
	return out
}

func (r *recordingSocket) Frames() []Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Frame, len(r.frames))
	copy(out, r.frames)
	return out
}

// testListener stands in for the HTTP service's listener
type testListener struct {
	mu     sync.RWMutex
	mounts map[string]http.Handler
	srv    *httptest.Server
}

func newTestListener(t *testing.T) *testListener {
	l := &testListener{mounts: make(map[string]http.Handler)}
	l.srv = httptest.NewServer(l)
	t.Cleanup(l.srv.Close)
	return l
}

func (l *testListener) Addr() string { return l.srv.Listener.Addr().String() }

func (l *testListener) Mount(path string, h http.Handler) {
	l.mu.Lock()
	l.mounts[path] = h
	l.mu.Unlock()
}

func (l *testListener) Unmount(path string) {
	l.mu.Lock()
	delete(l.mounts, path)
	l.mu.Unlock()
}

func (l *testListener) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	l.mu.RLock()
	h, ok := l.mounts[r.URL.Path]
	l.mu.RUnlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	h.ServeHTTP(w, r)
}

func wsURL(base, path string) string {
	return "ws" + strings.TrimPrefix(base, "http") + path
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, event string, payload any) {
	t.Helper()
	frame, err := EncodeFrame(event, payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame))
}

// waitFor reads frames until one named event arrives
func waitFor(t *testing.T, conn *websocket.Conn, event string) Frame {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		require.NoError(t, conn.SetReadDeadline(deadline))
		_, raw, err := conn.ReadMessage()
		require.NoError(t, err, "waiting for %q", event)
		frame, err := DecodeFrame(raw)
		require.NoError(t, err)
		if frame.Event == event {
			return frame
		}
	}
}

// expectSilence asserts that no frame arrives within d
func expectSilence(t *testing.T, conn *websocket.Conn, d time.Duration) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(d)))
	_, raw, err := conn.ReadMessage()
	require.Error(t, err, "unexpected frame: %s", raw)
}

func decode[T any](t *testing.T, data json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(data, &v))
	return v
}
