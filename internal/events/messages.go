package events

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/sirosfoundation/go-realtime-shell/internal/websocket"
)

type roomRequest struct {
	Room string `json:"room"`
}

func (c *Catalog) message(ctx context.Context, s websocket.Socket, payload json.RawMessage) error {
	c.logger.Debug("Message received", zap.String("socket", s.ID()))
	return s.Emit("message", map[string]any{
		"echo":      raw(payload),
		"timestamp": websocket.Timestamp(),
		"from":      "server",
	})
}

func (c *Catalog) broadcast(ctx context.Context, s websocket.Socket, payload json.RawMessage) error {
	c.logger.Debug("Broadcasting message", zap.String("socket", s.ID()))
	if err := s.Broadcast().Emit("broadcast", map[string]any{
		"from":      s.ID(),
		"message":   raw(payload),
		"timestamp": websocket.Timestamp(),
	}); err != nil {
		return err
	}
	return s.Emit("broadcast_sent", map[string]any{
		"message":   "Message broadcasted successfully",
		"timestamp": websocket.Timestamp(),
	})
}

func (c *Catalog) joinRoom(ctx context.Context, s websocket.Socket, payload json.RawMessage) error {
	var in roomRequest
	lenient(payload, &in)
	if in.Room == "" {
		return s.Emit("error", websocket.ErrorPayload{Message: "Room name is required"})
	}

	s.Join(in.Room)
	c.logger.Debug("Joined room", zap.String("socket", s.ID()), zap.String("room", in.Room))

	if err := s.Emit("room_joined", map[string]any{
		"room":      in.Room,
		"message":   "Successfully joined room: " + in.Room,
		"timestamp": websocket.Timestamp(),
	}); err != nil {
		return err
	}
	return s.To(in.Room).Emit("user_joined", map[string]any{
		"userId":    s.ID(),
		"room":      in.Room,
		"timestamp": websocket.Timestamp(),
	})
}

// leaveRoom confirms even when the socket was not in the room
func (c *Catalog) leaveRoom(ctx context.Context, s websocket.Socket, payload json.RawMessage) error {
	var in roomRequest
	lenient(payload, &in)
	if in.Room == "" {
		return s.Emit("error", websocket.ErrorPayload{Message: "Room name is required"})
	}

	s.Leave(in.Room)
	c.logger.Debug("Left room", zap.String("socket", s.ID()), zap.String("room", in.Room))

	if err := s.Emit("room_left", map[string]any{
		"room":      in.Room,
		"message":   "Successfully left room: " + in.Room,
		"timestamp": websocket.Timestamp(),
	}); err != nil {
		return err
	}
	return s.To(in.Room).Emit("user_left", map[string]any{
		"userId":    s.ID(),
		"room":      in.Room,
		"timestamp": websocket.Timestamp(),
	})
}
