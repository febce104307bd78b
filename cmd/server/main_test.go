package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sirosfoundation/go-realtime-shell/internal/httpserver"
	"github.com/sirosfoundation/go-realtime-shell/internal/modes"
	"github.com/sirosfoundation/go-realtime-shell/internal/service"
	"github.com/sirosfoundation/go-realtime-shell/pkg/config"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// harness runs the fully wired service set on an ephemeral port
type harness struct {
	t       *testing.T
	manager *service.Manager
	baseURL string
	wsURL   string
}

func newHarness(t *testing.T, mode modes.Mode) *harness {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.ShutdownTimeoutSeconds = 5

	manager, err := buildServices(cfg, mode, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, manager.StartAll(context.Background()))
	t.Cleanup(func() { shutdown(manager, cfg, zap.NewNop()) })

	svc, ok := manager.Get(httpserver.ServiceName)
	require.True(t, ok)
	addr := svc.(*httpserver.Service).Listener().Addr()

	return &harness{
		t:       t,
		manager: manager,
		baseURL: "http://" + addr,
		wsURL:   "ws://" + addr + cfg.WebSocket.Path,
	}
}

func (h *harness) get(path string) (int, []byte) {
	h.t.Helper()
	resp, err := http.Get(h.baseURL + path)
	require.NoError(h.t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(h.t, err)
	return resp.StatusCode, body
}

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func expect(t *testing.T, conn *gws.Conn, event string) map[string]any {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		require.NoError(t, conn.SetReadDeadline(deadline))
		var f frame
		require.NoError(t, conn.ReadJSON(&f), "waiting for %q", event)
		if f.Event != event {
			continue
		}
		var data map[string]any
		require.NoError(t, json.Unmarshal(f.Data, &data))
		return data
	}
}

func TestBuildServices_All(t *testing.T) {
	h := newHarness(t, modes.ModeAll)

	names := make([]string, 0)
	for _, svc := range h.manager.All() {
		names = append(names, svc.Name())
		assert.True(t, svc.IsRunning(), svc.Name())
	}
	assert.Equal(t, []string{"http", "websocket"}, names)

	conn, _, err := gws.DefaultDialer.Dial(h.wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	welcome := expect(t, conn, "connected")
	clientID, _ := welcome["clientId"].(string)
	assert.NotEmpty(t, clientID)

	require.NoError(t, conn.WriteJSON(map[string]any{"event": "sum", "data": map[string]any{"a": 2, "b": 3}}))
	result := expect(t, conn, "sum_result")
	assert.Equal(t, float64(5), result["result"])

	code, body := h.get("/api/rooms")
	require.Equal(t, http.StatusOK, code)
	var rooms struct {
		Rooms []struct {
			Name  string   `json:"name"`
			Users []string `json:"users"`
		} `json:"rooms"`
	}
	require.NoError(t, json.Unmarshal(body, &rooms))
	require.Len(t, rooms.Rooms, 1)
	assert.Equal(t, "general", rooms.Rooms[0].Name)
	assert.Equal(t, []string{clientID}, rooms.Rooms[0].Users)

	code, body = h.get("/health")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(body), `"healthy"`)
}

func TestBuildServices_HTTPOnly(t *testing.T) {
	h := newHarness(t, modes.ModeHTTP)

	_, ok := h.manager.Get("websocket")
	assert.False(t, ok)

	_, _, err := gws.DefaultDialer.Dial(h.wsURL, nil)
	assert.Error(t, err)

	code, _ := h.get("/api/rooms")
	assert.Equal(t, http.StatusServiceUnavailable, code)

	code, _ = h.get("/health")
	assert.Equal(t, http.StatusOK, code)
}
