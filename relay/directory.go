package main

import (
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/hollowpoint/doomgate-mp/shared/netconfig"
	"github.com/hollowpoint/doomgate-mp/shared/protocol"
)

var (
	ErrRoomExists   = errors.New("room already exists")
	ErrRoomNotFound = errors.New("room not found")
	ErrRoomFull     = errors.New("room is full")
)

type room struct {
	code    string
	mode    protocol.Mode
	members []string // join order
}

// Directory is the authoritative record of which rooms exist and who is in
// them. It does no I/O; the relay handler turns its results into messages.
type Directory struct {
	mu       sync.RWMutex
	rooms    map[string]*room
	memberOf map[string]string // playerID -> room code
	capacity int
}

func NewDirectory() *Directory {
	return &Directory{
		rooms:    make(map[string]*room),
		memberOf: make(map[string]string),
		capacity: netconfig.RoomCapacity,
	}
}

// normalizeCode makes room codes case-insensitive.
func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// CreateRoom creates a room with the creator as sole member. The creator is
// silently removed from any room it was in before.
func (d *Directory) CreateRoom(code string, mode protocol.Mode, creator string) error {
	code = normalizeCode(code)

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.rooms[code]; exists {
		return ErrRoomExists
	}

	d.removeLocked(creator)
	d.rooms[code] = &room{code: code, mode: mode, members: []string{creator}}
	d.memberOf[creator] = code
	return nil
}

// JoinRoom adds a participant to an existing room and returns the members
// present before the join. On failure no state changes.
func (d *Directory) JoinRoom(code, player string) ([]string, error) {
	code = normalizeCode(code)

	d.mu.Lock()
	defer d.mu.Unlock()

	r, exists := d.rooms[code]
	if !exists {
		return nil, ErrRoomNotFound
	}
	if len(r.members) >= d.capacity {
		return nil, ErrRoomFull
	}

	existing := append([]string(nil), r.members...)
	d.removeLocked(player)
	r.members = append(r.members, player)
	d.memberOf[player] = code
	return existing, nil
}

// LeaveRoom removes a participant from its room and returns the room code
// and remaining members. ok is false when the participant was not in a room;
// that is not an error. Empty rooms are deleted.
func (d *Directory) LeaveRoom(player string) (code string, remaining []string, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	code, exists := d.memberOf[player]
	if !exists {
		return "", nil, false
	}
	d.removeLocked(player)

	if r, alive := d.rooms[code]; alive {
		remaining = append([]string(nil), r.members...)
	}
	return code, remaining, true
}

// Members returns the current member set of a room, or nil if it does not
// exist.
func (d *Directory) Members(code string) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	r, exists := d.rooms[normalizeCode(code)]
	if !exists {
		return nil
	}
	return append([]string(nil), r.members...)
}

// RoomOf returns the room code a participant is currently in.
func (d *Directory) RoomOf(player string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	code, ok := d.memberOf[player]
	return code, ok
}

// List returns a snapshot of all rooms, sorted by code.
func (d *Directory) List() []protocol.RoomInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()

	list := make([]protocol.RoomInfo, 0, len(d.rooms))
	for _, r := range d.rooms {
		list = append(list, protocol.RoomInfo{
			Code:       r.code,
			Players:    len(r.members),
			MaxPlayers: d.capacity,
		})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Code < list[j].Code })
	return list
}

// removeLocked takes the participant out of whatever room it is in and
// deletes the room if it becomes empty. Caller holds d.mu.
func (d *Directory) removeLocked(player string) {
	code, exists := d.memberOf[player]
	if !exists {
		return
	}
	delete(d.memberOf, player)

	r, alive := d.rooms[code]
	if !alive {
		return
	}
	for i, id := range r.members {
		if id == player {
			r.members = append(r.members[:i], r.members[i+1:]...)
			break
		}
	}
	if len(r.members) == 0 {
		delete(d.rooms, code)
	}
}
