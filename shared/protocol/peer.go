package protocol

import (
	"encoding/json"
	"fmt"
)

// PeerMessage is the tagged union of every message carried over the
// unreliable peer data channels. Delivery and ordering are not guaranteed;
// anything that must converge is either a continuously-refreshed stream
// (player_state) or an idempotent event applied on every replica.
type PeerMessage interface {
	typed
	isPeer()
}

// PlayerState is the continuously-refreshed state stream. The newest
// snapshot supersedes the last; lost samples are never retransmitted.
type PlayerState struct {
	State EntitySnapshot `json:"state"`
}

// PlayerShoot announces a shot for remote muzzle-flash and audio effects.
type PlayerShoot struct {
	Weapon    string `json:"weapon"`
	Direction Vec3   `json:"direction"`
}

// PlayerHit reports damage dealt to a target participant.
type PlayerHit struct {
	TargetID string  `json:"targetId"`
	Damage   float64 `json:"damage"`
}

// PlayerDeath announces the sender's death. KillerID is empty for
// environmental deaths.
type PlayerDeath struct {
	KillerID string `json:"killerId,omitempty"`
}

// PlayerRespawn broadcasts the canonical post-respawn state so replicas
// converge on the same spawn position.
type PlayerRespawn struct {
	PlayerID string `json:"playerId"`
	Position Vec3   `json:"position"`
}

// ChatMessage is one chat line.
type ChatMessage struct {
	PlayerID  string `json:"playerId"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

// FlagPickup reports that the sender picked up the given team's flag.
type FlagPickup struct {
	Team Team `json:"team"`
}

// FlagDrop reports that the sender dropped the given team's flag at Position.
type FlagDrop struct {
	Team     Team `json:"team"`
	Position Vec3 `json:"position"`
}

// FlagCapture reports that the sender carried the given team's flag into
// their own base.
type FlagCapture struct {
	Team Team `json:"team"`
}

// FlagReturn reports that the given team's flag was returned to its base.
type FlagReturn struct {
	Team Team `json:"team"`
}

// GameStart resets match state on every replica.
type GameStart struct {
	Mode Mode `json:"mode"`
}

// GameEnd announces the match result.
type GameEnd struct {
	Winner     Team           `json:"winner"`
	Scores     map[string]int `json:"scores"`
	TeamScores map[Team]int   `json:"teamScores,omitempty"`
}

func (PlayerState) wireType() string   { return "player_state" }
func (PlayerShoot) wireType() string   { return "player_shoot" }
func (PlayerHit) wireType() string     { return "player_hit" }
func (PlayerDeath) wireType() string   { return "player_death" }
func (PlayerRespawn) wireType() string { return "player_respawn" }
func (ChatMessage) wireType() string   { return "chat_message" }
func (FlagPickup) wireType() string    { return "flag_pickup" }
func (FlagDrop) wireType() string      { return "flag_drop" }
func (FlagCapture) wireType() string   { return "flag_capture" }
func (FlagReturn) wireType() string    { return "flag_return" }
func (GameStart) wireType() string     { return "game_start" }
func (GameEnd) wireType() string       { return "game_end" }

func (PlayerState) isPeer()   {}
func (PlayerShoot) isPeer()   {}
func (PlayerHit) isPeer()     {}
func (PlayerDeath) isPeer()   {}
func (PlayerRespawn) isPeer() {}
func (ChatMessage) isPeer()   {}
func (FlagPickup) isPeer()    {}
func (FlagDrop) isPeer()      {}
func (FlagCapture) isPeer()   {}
func (FlagReturn) isPeer()    {}
func (GameStart) isPeer()     {}
func (GameEnd) isPeer()       {}

// EncodePeer serializes a peer message into its wire form.
func EncodePeer(m PeerMessage) ([]byte, error) {
	return encode(m)
}

// DecodePeer parses one data channel payload. Unknown or malformed payloads
// are reported as errors so the caller can drop them.
func DecodePeer(data []byte) (PeerMessage, error) {
	kind, err := decodeEnvelope(data)
	if err != nil {
		return nil, err
	}

	var (
		msg PeerMessage
		e   error
	)
	switch kind {
	case "player_state":
		msg, e = decodePeerAs[PlayerState](data)
	case "player_shoot":
		msg, e = decodePeerAs[PlayerShoot](data)
	case "player_hit":
		msg, e = decodePeerAs[PlayerHit](data)
	case "player_death":
		msg, e = decodePeerAs[PlayerDeath](data)
	case "player_respawn":
		msg, e = decodePeerAs[PlayerRespawn](data)
	case "chat_message":
		msg, e = decodePeerAs[ChatMessage](data)
	case "flag_pickup":
		msg, e = decodePeerAs[FlagPickup](data)
	case "flag_drop":
		msg, e = decodePeerAs[FlagDrop](data)
	case "flag_capture":
		msg, e = decodePeerAs[FlagCapture](data)
	case "flag_return":
		msg, e = decodePeerAs[FlagReturn](data)
	case "game_start":
		msg, e = decodePeerAs[GameStart](data)
	case "game_end":
		msg, e = decodePeerAs[GameEnd](data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, kind)
	}
	return msg, e
}

func decodePeerAs[T PeerMessage](data []byte) (PeerMessage, error) {
	var m T
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode %s: %w", m.wireType(), err)
	}
	return m, nil
}
