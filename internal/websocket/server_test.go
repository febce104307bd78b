package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// newTestServer starts a transport whose connections echo "echo" frames,
// join rooms on "join" and fan out on "shout"
func newTestServer(t *testing.T, opts Options) (*Server, string) {
	t.Helper()
	s := NewServer(opts, zap.NewNop())
	s.OnConnection(func(sock Socket) {
		sock.On("echo", func(payload json.RawMessage) {
			_ = sock.Emit("echo", payload)
		})
		sock.On("join", func(payload json.RawMessage) {
			var room string
			_ = json.Unmarshal(payload, &room)
			sock.Join(room)
			_ = sock.Emit("joined", sock.Rooms())
		})
		sock.On("leave", func(payload json.RawMessage) {
			var room string
			_ = json.Unmarshal(payload, &room)
			sock.Leave(room)
			_ = sock.Emit("left", room)
		})
		sock.On("shout", func(payload json.RawMessage) {
			var room string
			_ = json.Unmarshal(payload, &room)
			_ = sock.To(room).Emit("shout", sock.ID())
		})
		sock.On("everyone", func(payload json.RawMessage) {
			_ = sock.Broadcast().Emit("everyone", sock.ID())
		})
		sock.On("whoami", func(payload json.RawMessage) {
			_ = sock.Emit("whoami", sock.ID())
		})
	})

	srv := httptest.NewServer(s)
	t.Cleanup(func() {
		s.Close()
		srv.Close()
	})
	return s, wsURL(srv.URL, "/")
}

func whoami(t *testing.T, conn *websocket.Conn) string {
	send(t, conn, "whoami", nil)
	return decode[string](t, waitFor(t, conn, "whoami").Data)
}

func TestServer_Echo(t *testing.T) {
	_, url := newTestServer(t, Options{})
	conn := dial(t, url)

	send(t, conn, "echo", map[string]any{"hello": "world"})

	frame := waitFor(t, conn, "echo")
	assert.JSONEq(t, `{"hello":"world"}`, string(frame.Data))
}

func TestServer_SelfRoom(t *testing.T) {
	s, url := newTestServer(t, Options{})
	conn := dial(t, url)

	id := whoami(t, conn)
	assert.True(t, IsSelfRoom(id))

	members, ok := s.Room(id)
	require.True(t, ok)
	assert.Equal(t, []string{id}, members)
}

func TestServer_RoomMembership(t *testing.T) {
	s, url := newTestServer(t, Options{})
	a := dial(t, url)
	b := dial(t, url)
	idA, idB := whoami(t, a), whoami(t, b)

	send(t, a, "join", "lobby")
	assert.ElementsMatch(t, []string{idA, "lobby"}, decode[[]string](t, waitFor(t, a, "joined").Data))
	send(t, b, "join", "lobby")
	waitFor(t, b, "joined")

	members, ok := s.Room("lobby")
	require.True(t, ok)
	assert.ElementsMatch(t, []string{idA, idB}, members)

	// To(room) excludes the sender
	send(t, a, "shout", "lobby")
	assert.Equal(t, idA, decode[string](t, waitFor(t, b, "shout").Data))

	send(t, a, "leave", "lobby")
	waitFor(t, a, "left")
	send(t, b, "leave", "lobby")
	waitFor(t, b, "left")

	_, ok = s.Room("lobby")
	assert.False(t, ok, "empty rooms are removed")
}

func TestServer_LeaveUnknownRoom(t *testing.T) {
	s, url := newTestServer(t, Options{})
	conn := dial(t, url)

	send(t, conn, "leave", "nowhere")
	assert.Equal(t, "nowhere", decode[string](t, waitFor(t, conn, "left").Data))

	_, ok := s.Room("nowhere")
	assert.False(t, ok)
}

func TestServer_BroadcastExcludesSender(t *testing.T) {
	_, url := newTestServer(t, Options{})
	a := dial(t, url)
	b := dial(t, url)
	c := dial(t, url)
	idA := whoami(t, a)
	whoami(t, b)
	whoami(t, c)

	send(t, a, "everyone", nil)

	assert.Equal(t, idA, decode[string](t, waitFor(t, b, "everyone").Data))
	assert.Equal(t, idA, decode[string](t, waitFor(t, c, "everyone").Data))
	expectSilence(t, a, 200*time.Millisecond)
}

func TestServer_InvalidFramesAreSkipped(t *testing.T) {
	_, url := newTestServer(t, Options{})
	conn := dial(t, url)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"data":1}`)))
	send(t, conn, "unknown_event", nil)
	send(t, conn, "echo", "still alive")

	assert.Equal(t, "still alive", decode[string](t, waitFor(t, conn, "echo").Data))
}

func TestServer_DisconnectCleansUp(t *testing.T) {
	s, url := newTestServer(t, Options{})
	conn := dial(t, url)
	id := whoami(t, conn)
	send(t, conn, "join", "lobby")
	waitFor(t, conn, "joined")

	require.NoError(t, conn.Close())

	assert.Eventually(t, func() bool {
		_, inLobby := s.Room("lobby")
		_, self := s.Room(id)
		return s.ConnectionCount() == 0 && !inLobby && !self
	}, 3*time.Second, 10*time.Millisecond)
}

func TestServer_DisconnectReason(t *testing.T) {
	s := NewServer(Options{}, zap.NewNop())
	reasons := make(chan string, 1)
	s.OnConnection(func(sock Socket) {
		sock.OnDisconnect(func(reason string) { reasons <- reason })
	})
	srv := httptest.NewServer(s)
	defer srv.Close()
	defer s.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv.URL, "/"), nil)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	_ = conn.Close()

	select {
	case reason := <-reasons:
		assert.Equal(t, ReasonTransportClose, reason)
	case <-time.After(3 * time.Second):
		t.Fatal("disconnect callback not called")
	}
}

func TestServer_CloseTerminatesConnections(t *testing.T) {
	s := NewServer(Options{}, zap.NewNop())

	var mu sync.Mutex
	var reasons []string
	s.OnConnection(func(sock Socket) {
		sock.OnDisconnect(func(reason string) {
			mu.Lock()
			reasons = append(reasons, reason)
			mu.Unlock()
		})
	})
	srv := httptest.NewServer(s)
	defer srv.Close()

	a := dial(t, wsURL(srv.URL, "/"))
	b := dial(t, wsURL(srv.URL, "/"))
	require.Eventually(t, func() bool { return s.ConnectionCount() == 2 }, 3*time.Second, 10*time.Millisecond)

	s.Close()

	// Close returns only after the disconnect callbacks ran
	mu.Lock()
	assert.Equal(t, []string{ReasonServerShutdown, ReasonServerShutdown}, reasons)
	mu.Unlock()

	for _, conn := range []*websocket.Conn{a, b} {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
		_, _, err := conn.ReadMessage()
		assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
	}

	// closed transports refuse new connections
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv.URL, "/"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	assert.NotPanics(t, s.Close)
}

func TestServer_OriginPolicy(t *testing.T) {
	_, url := newTestServer(t, Options{AllowedOrigins: []string{"https://app.example.com"}})

	header := http.Header{"Origin": []string{"https://evil.example.com"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header = http.Header{"Origin": []string{"https://APP.example.com"}}
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	_ = conn.Close()
}

func TestServer_MethodNotAllowed(t *testing.T) {
	s := NewServer(Options{AllowedMethods: []string{http.MethodPost}}, zap.NewNop())
	defer s.Close()

	w := httptest.NewRecorder()
	s.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestServer_RateLimit(t *testing.T) {
	_, url := newTestServer(t, Options{RateLimit: RateLimit{Burst: 2, Every: time.Hour}})
	conn := dial(t, url)

	for i := 0; i < 5; i++ {
		send(t, conn, "echo", i)
	}

	assert.Equal(t, 0, decode[int](t, waitFor(t, conn, "echo").Data))
	assert.Equal(t, 1, decode[int](t, waitFor(t, conn, "echo").Data))
	expectSilence(t, conn, 200*time.Millisecond)
}

func TestServer_MaxMessageSize(t *testing.T) {
	s, url := newTestServer(t, Options{MaxMessageSize: 64})
	conn := dial(t, url)
	whoami(t, conn)

	big := make([]byte, 256)
	for i := range big {
		big[i] = 'x'
	}
	send(t, conn, "echo", string(big))

	assert.Eventually(t, func() bool { return s.ConnectionCount() == 0 }, 3*time.Second, 10*time.Millisecond)
}

func TestFrameCodec(t *testing.T) {
	raw, err := EncodeFrame("sum", map[string]int{"a": 1})
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"sum","data":{"a":1}}`, string(raw))

	frame, err := DecodeFrame(raw)
	require.NoError(t, err)
	assert.Equal(t, "sum", frame.Event)

	_, err = DecodeFrame([]byte(`{"data":{}}`))
	assert.Error(t, err)

	raw, err = EncodeFrame("ping", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"ping"}`, string(raw))
}

func TestFormatTimestamp(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 30, 45, 123456789, time.FixedZone("CET", 3600))
	assert.Equal(t, "2024-03-01T11:30:45.123Z", FormatTimestamp(ts))
}

func TestServer_DefaultMethodsAreGETOnly(t *testing.T) {
	assert.Equal(t, []string{http.MethodGet}, DefaultOptions().AllowedMethods)

	s := NewServer(Options{}, zap.NewNop())
	defer s.Close()

	w := httptest.NewRecorder()
	s.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}
