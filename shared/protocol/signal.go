package protocol

import (
	"encoding/json"
	"fmt"
)

// SignalingMessage is the tagged union of every message carried over the
// reliable relay channel.
type SignalingMessage interface {
	typed
	isSignaling()
}

// Register makes a participant addressable on the relay. Registering the
// same identifier twice is an idempotent overwrite.
type Register struct {
	PlayerID string `json:"playerId"`
}

// Registered acknowledges a Register.
type Registered struct {
	PlayerID string `json:"playerId"`
}

// CreateRoom asks the relay to create a room with the sender as sole member.
type CreateRoom struct {
	RoomCode string `json:"roomCode"`
	Mode     Mode   `json:"mode"`
	PlayerID string `json:"playerId"`
}

// RoomCreated confirms a CreateRoom to the creator.
type RoomCreated struct {
	RoomCode string `json:"roomCode"`
	Mode     Mode   `json:"mode"`
}

// JoinRoom asks the relay to add the sender to an existing room.
type JoinRoom struct {
	RoomCode string `json:"roomCode"`
	PlayerID string `json:"playerId"`
}

// RoomJoined confirms a JoinRoom to the joiner. Players lists the members
// present before the join; the joiner initiates a peer link to each.
type RoomJoined struct {
	RoomCode string   `json:"roomCode"`
	Players  []string `json:"players"`
}

// PlayerJoined notifies existing members that a new participant joined.
type PlayerJoined struct {
	PlayerID string `json:"playerId"`
}

// LeaveRoom removes the sender from its room. No-op if not in a room.
type LeaveRoom struct {
	PlayerID string `json:"playerId"`
}

// PlayerLeft notifies remaining members that a participant left.
type PlayerLeft struct {
	PlayerID string `json:"playerId"`
}

// Signal carries an opaque negotiation payload between two participants.
// To may be "all" to reach every other member of the sender's room. The
// relay re-stamps From with the authenticated sender identifier.
type Signal struct {
	From   string          `json:"from"`
	To     string          `json:"to"`
	Signal json.RawMessage `json:"signal"`
}

// GetRooms requests the current room list.
type GetRooms struct{}

// RoomInfo is one entry of a room list snapshot.
type RoomInfo struct {
	Code       string `json:"code"`
	Players    int    `json:"players"`
	MaxPlayers int    `json:"maxPlayers"`
}

// RoomList answers a GetRooms.
type RoomList struct {
	Rooms []RoomInfo `json:"rooms"`
}

// ErrorMessage surfaces a non-fatal failure to the requesting participant.
type ErrorMessage struct {
	Message string `json:"message"`
}

func (Register) wireType() string     { return "register" }
func (Registered) wireType() string   { return "registered" }
func (CreateRoom) wireType() string   { return "create-room" }
func (RoomCreated) wireType() string  { return "room-created" }
func (JoinRoom) wireType() string     { return "join-room" }
func (RoomJoined) wireType() string   { return "room-joined" }
func (PlayerJoined) wireType() string { return "player-joined" }
func (LeaveRoom) wireType() string    { return "leave-room" }
func (PlayerLeft) wireType() string   { return "player-left" }
func (Signal) wireType() string       { return "signal" }
func (GetRooms) wireType() string     { return "get-rooms" }
func (RoomList) wireType() string     { return "room-list" }
func (ErrorMessage) wireType() string { return "error" }

func (Register) isSignaling()     {}
func (Registered) isSignaling()   {}
func (CreateRoom) isSignaling()   {}
func (RoomCreated) isSignaling()  {}
func (JoinRoom) isSignaling()     {}
func (RoomJoined) isSignaling()   {}
func (PlayerJoined) isSignaling() {}
func (LeaveRoom) isSignaling()    {}
func (PlayerLeft) isSignaling()   {}
func (Signal) isSignaling()       {}
func (GetRooms) isSignaling()     {}
func (RoomList) isSignaling()     {}
func (ErrorMessage) isSignaling() {}

// EncodeSignaling serializes a signaling message into its wire form.
func EncodeSignaling(m SignalingMessage) ([]byte, error) {
	return encode(m)
}

// DecodeSignaling parses one relay channel frame. Unknown or malformed
// frames are reported as errors so the caller can drop them.
func DecodeSignaling(data []byte) (SignalingMessage, error) {
	kind, err := decodeEnvelope(data)
	if err != nil {
		return nil, err
	}

	var (
		msg SignalingMessage
		e   error
	)
	switch kind {
	case "register":
		msg, e = decodeAs[Register](data)
	case "registered":
		msg, e = decodeAs[Registered](data)
	case "create-room":
		msg, e = decodeAs[CreateRoom](data)
	case "room-created":
		msg, e = decodeAs[RoomCreated](data)
	case "join-room":
		msg, e = decodeAs[JoinRoom](data)
	case "room-joined":
		msg, e = decodeAs[RoomJoined](data)
	case "player-joined":
		msg, e = decodeAs[PlayerJoined](data)
	case "leave-room":
		msg, e = decodeAs[LeaveRoom](data)
	case "player-left":
		msg, e = decodeAs[PlayerLeft](data)
	case "signal":
		msg, e = decodeAs[Signal](data)
	case "get-rooms":
		msg, e = decodeAs[GetRooms](data)
	case "room-list":
		msg, e = decodeAs[RoomList](data)
	case "error":
		msg, e = decodeAs[ErrorMessage](data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, kind)
	}
	return msg, e
}

func decodeAs[T SignalingMessage](data []byte) (SignalingMessage, error) {
	var m T
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode %s: %w", m.wireType(), err)
	}
	return m, nil
}
