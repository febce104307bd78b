package events

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/sirosfoundation/go-realtime-shell/internal/websocket"
)

var errNoDirectory = errors.New("room directory unavailable")

type roomUsersRequest struct {
	Room string `json:"room" validate:"required"`
}

func (c *Catalog) rooms() (*websocket.Directory, error) {
	if c.directory == nil {
		return nil, errNoDirectory
	}
	d := c.directory()
	if d == nil {
		return nil, errNoDirectory
	}
	return d, nil
}

func (c *Catalog) getRooms(ctx context.Context, s websocket.Socket, _ json.RawMessage) error {
	d, err := c.rooms()
	if err != nil {
		return err
	}

	rooms := d.ListRooms()
	return s.Emit("rooms_list", map[string]any{
		"rooms":     rooms,
		"count":     len(rooms),
		"timestamp": websocket.Timestamp(),
	})
}

func (c *Catalog) getRoomUsers(ctx context.Context, s websocket.Socket, in roomUsersRequest) error {
	d, err := c.rooms()
	if err != nil {
		return err
	}

	users, exists := d.RoomUsers(in.Room)
	return s.Emit("room_users", map[string]any{
		"room":      in.Room,
		"users":     users,
		"count":     len(users),
		"exists":    exists,
		"timestamp": websocket.Timestamp(),
	})
}

func (c *Catalog) getRoomsInfo(ctx context.Context, s websocket.Socket, _ json.RawMessage) error {
	d, err := c.rooms()
	if err != nil {
		return err
	}

	info := d.AllRoomsInfo()
	return s.Emit("rooms_info", map[string]any{
		"rooms":      info.Rooms,
		"totalRooms": info.TotalRooms,
		"totalUsers": info.TotalUsers,
		"timestamp":  websocket.Timestamp(),
	})
}
