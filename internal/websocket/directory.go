package websocket

import (
	"regexp"
	"sort"
)

// selfRoomPattern matches the synthetic per-connection rooms. It is a name
// heuristic: a user room that happens to match is hidden as well.
var selfRoomPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{20,}$`)

// IsSelfRoom reports whether name looks like a connection's own room
func IsSelfRoom(name string) bool {
	return selfRoomPattern.MatchString(name)
}

// RoomInfo describes one room
type RoomInfo struct {
	Name      string   `json:"name"`
	UserCount int      `json:"userCount"`
	Users     []string `json:"users"`
}

// RoomsInfo describes every user-visible room
type RoomsInfo struct {
	Rooms      []RoomInfo `json:"rooms"`
	TotalRooms int        `json:"totalRooms"`
	TotalUsers int        `json:"totalUsers"`
}

// Directory is a read-only view of room membership. It never caches: every
// call reads the adapter.
type Directory struct {
	adapter Adapter
}

// NewDirectory creates a directory over adapter
func NewDirectory(adapter Adapter) *Directory {
	return &Directory{adapter: adapter}
}

// ListRooms returns the sorted names of all rooms except self-rooms
func (d *Directory) ListRooms() []string {
	rooms := make([]string, 0)
	for name := range d.adapter.Rooms() {
		if !IsSelfRoom(name) {
			rooms = append(rooms, name)
		}
	}
	sort.Strings(rooms)
	return rooms
}

// RoomUsers returns the members of room. A missing room is not an error.
func (d *Directory) RoomUsers(room string) ([]string, bool) {
	users, ok := d.adapter.Room(room)
	if !ok {
		return []string{}, false
	}
	return users, true
}

// AllRoomsInfo returns every user-visible room with its members.
// TotalUsers counts memberships, so a connection in two rooms counts twice.
func (d *Directory) AllRoomsInfo() RoomsInfo {
	all := d.adapter.Rooms()

	info := RoomsInfo{Rooms: make([]RoomInfo, 0, len(all))}
	for name, users := range all {
		if IsSelfRoom(name) {
			continue
		}
		info.Rooms = append(info.Rooms, RoomInfo{Name: name, UserCount: len(users), Users: users})
		info.TotalUsers += len(users)
	}
	sort.Slice(info.Rooms, func(i, j int) bool { return info.Rooms[i].Name < info.Rooms[j].Name })
	info.TotalRooms = len(info.Rooms)
	return info
}
