package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sirosfoundation/go-realtime-shell/internal/websocket"
)

type pingRequest struct {
	// Timestamp is the client clock in milliseconds since the epoch
	Timestamp float64 `json:"timestamp"`
}

func (c *Catalog) ping(ctx context.Context, s websocket.Socket, payload json.RawMessage) error {
	var in pingRequest
	lenient(payload, &in)

	var latency *float64
	if in.Timestamp != 0 {
		l := float64(time.Now().UnixMilli()) - in.Timestamp
		latency = &l
	}

	return s.Emit("pong", map[string]any{
		"timestamp": websocket.Timestamp(),
		"latency":   latency,
	})
}

func (c *Catalog) serverInfo(ctx context.Context, s websocket.Socket, _ json.RawMessage) error {
	return s.Emit("server_info", map[string]any{
		"serverId":  c.info.ServerID,
		"timestamp": websocket.Timestamp(),
		"uptime":    time.Since(c.info.StartedAt).Seconds(),
		"version":   c.info.Version,
	})
}

func (c *Catalog) clientInfo(ctx context.Context, s websocket.Socket, _ json.RawMessage) error {
	joined := make([]string, 0)
	for _, room := range s.Rooms() {
		if room != s.ID() {
			joined = append(joined, room)
		}
	}

	return s.Emit("client_info", map[string]any{
		"clientId":    s.ID(),
		"joinedRooms": joined,
		"timestamp":   websocket.Timestamp(),
	})
}
