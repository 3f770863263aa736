// Package netconfig defines the tunable network constants shared between the
// relay process and game clients. It must stay free of graphics or engine
// dependencies so the relay binary stays headless.
package netconfig

import "time"

const (
	// RoomCodeLength is the number of characters in a room code.
	RoomCodeLength = 6

	// RoomCapacity is the maximum number of participants per room.
	RoomCapacity = 4

	// SnapshotRate is how often the local player state is broadcast, in Hz.
	// The send path is gated by elapsed wall-clock time, not frames.
	SnapshotRate = 60

	// SnapshotBufferSize bounds the per-entity snapshot history used for
	// interpolation. Oldest entries are evicted once the bound is hit.
	SnapshotBufferSize = 20

	// InterpolationDelay is subtracted from "now" when reconstructing remote
	// entity state, so bracketing snapshots are usually available.
	InterpolationDelay = 100 * time.Millisecond

	// NegotiationTimeout bounds how long a peer link may stay in the
	// negotiating state before it is closed and the peer treated as
	// disconnected.
	NegotiationTimeout = 15 * time.Second

	// ChatHistorySize bounds the retained chat message history.
	ChatHistorySize = 50

	// CaptureWinThreshold is the team score that ends a capture-the-flag match.
	CaptureWinThreshold = 3

	// RespawnDelay is the wait between a local player death and the automatic
	// respawn broadcast.
	RespawnDelay = 3 * time.Second
)

// Match-start defaults applied on every respawn.
const (
	SpawnHealth = 100
	SpawnArmor  = 0
)

// DefaultSTUNServers are the public STUN servers offered to clients when the
// relay has no embedded TURN server configured.
var DefaultSTUNServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
}
