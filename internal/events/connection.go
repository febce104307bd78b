package events

import (
	"context"

	"go.uber.org/zap"

	"github.com/sirosfoundation/go-realtime-shell/internal/websocket"
)

// DefaultRoom is joined by every connection
const DefaultRoom = "general"

// ConnectionHook greets new connections, puts them in DefaultRoom and tells
// everyone else about arrivals and departures
func (c *Catalog) ConnectionHook() websocket.ConnectionHook {
	return websocket.ConnectionHook{
		OnConnect:    c.onConnect,
		OnDisconnect: c.onDisconnect,
	}
}

func (c *Catalog) onConnect(ctx context.Context, s websocket.Socket) error {
	c.logger.Info("Client connected", zap.String("socket", s.ID()))

	if err := s.Emit("connected", map[string]any{
		"message":   "Welcome to the WebSocket server!",
		"clientId":  s.ID(),
		"timestamp": websocket.Timestamp(),
	}); err != nil {
		return err
	}

	s.Join(DefaultRoom)

	return s.Broadcast().Emit("user_connected", map[string]any{
		"userId":    s.ID(),
		"timestamp": websocket.Timestamp(),
	})
}

func (c *Catalog) onDisconnect(ctx context.Context, s websocket.Socket, reason string) error {
	c.logger.Info("Client disconnected", zap.String("socket", s.ID()), zap.String("reason", reason))

	return s.Broadcast().Emit("user_disconnected", map[string]any{
		"userId":    s.ID(),
		"reason":    reason,
		"timestamp": websocket.Timestamp(),
	})
}
