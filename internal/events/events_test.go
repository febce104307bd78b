package events

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sirosfoundation/go-realtime-shell/internal/websocket"
)

type mountListener struct {
	mu     sync.RWMutex
	mounts map[string]http.Handler
	srv    *httptest.Server
}

func (l *mountListener) Addr() string { return l.srv.Listener.Addr().String() }

func (l *mountListener) Mount(path string, h http.Handler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.mounts[path] = h
}

func (l *mountListener) Unmount(path string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.mounts, path)
}

func (l *mountListener) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	l.mu.RLock()
	h, ok := l.mounts[r.URL.Path]
	l.mu.RUnlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	h.ServeHTTP(w, r)
}

type harness struct {
	url     string
	catalog *Catalog
	service *websocket.Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	ln := &mountListener{mounts: make(map[string]http.Handler)}
	ln.srv = httptest.NewServer(ln)
	t.Cleanup(ln.srv.Close)

	logger := zap.NewNop()
	registry := websocket.NewRegistry(logger, nil)
	svc := websocket.NewService(websocket.ServiceConfig{Path: "/socket"}, registry,
		func() websocket.Listener { return ln }, logger)

	catalog := New(logger, svc.Directory, Info{ServerID: "test-server", Version: "1.2.3"})
	Register(registry, catalog)

	require.NoError(t, svc.Start(context.Background()))
	t.Cleanup(func() { _ = svc.Stop(context.Background()) })

	return &harness{
		url:     "ws" + strings.TrimPrefix(ln.srv.URL, "http") + "/socket",
		catalog: catalog,
		service: svc,
	}
}

type client struct {
	t    *testing.T
	conn *gws.Conn
	id   string
}

// connect dials and consumes the welcome frame
func (h *harness) connect(t *testing.T) *client {
	t.Helper()
	conn, _, err := gws.DefaultDialer.Dial(h.url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	c := &client{t: t, conn: conn}
	welcome := c.expect("connected")
	assert.Equal(t, "Welcome to the WebSocket server!", welcome["message"])
	c.id = welcome["clientId"].(string)
	return c
}

func (c *client) send(event string, payload any) {
	c.t.Helper()
	frame, err := websocket.EncodeFrame(event, payload)
	require.NoError(c.t, err)
	require.NoError(c.t, c.conn.WriteMessage(gws.TextMessage, frame))
}

func (c *client) sendRaw(event, data string) {
	c.t.Helper()
	frame := `{"event":"` + event + `","data":` + data + `}`
	require.NoError(c.t, c.conn.WriteMessage(gws.TextMessage, []byte(frame)))
}

// expect skips frames until event arrives and returns its data object
func (c *client) expect(event string) map[string]any {
	c.t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		require.NoError(c.t, c.conn.SetReadDeadline(deadline))
		_, raw, err := c.conn.ReadMessage()
		require.NoError(c.t, err, "waiting for %q", event)
		frame, err := websocket.DecodeFrame(raw)
		require.NoError(c.t, err)
		if frame.Event != event {
			continue
		}
		var data map[string]any
		require.NoError(c.t, json.Unmarshal(frame.Data, &data))
		return data
	}
}

func (c *client) expectSilence(d time.Duration) {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(d)))
	_, raw, err := c.conn.ReadMessage()
	require.Error(c.t, err, "unexpected frame: %s", raw)
}

func toStrings(v any) []string {
	items, _ := v.([]any)
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.(string))
	}
	return out
}

func assertTimestamp(t *testing.T, v any) {
	t.Helper()
	s, ok := v.(string)
	require.True(t, ok)
	_, err := time.Parse(websocket.TimestampLayout, s)
	assert.NoError(t, err)
}
