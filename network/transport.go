// Package network provides the client-side transports of the multiplayer
// core: the reliable signaling client used to reach the relay, and the
// unreliable per-peer links used for game state. Links are established
// through out-of-band negotiation over the signaling channel and carry
// opaque payloads; message semantics live one layer up.
package network

import "encoding/json"

// LinkState is the lifecycle of one peer link.
type LinkState int

const (
	LinkNone LinkState = iota
	LinkNegotiating
	LinkOpen
	LinkClosed
)

func (s LinkState) String() string {
	switch s {
	case LinkNegotiating:
		return "negotiating"
	case LinkOpen:
		return "open"
	case LinkClosed:
		return "closed"
	default:
		return "none"
	}
}

// Transport maintains one unreliable bidirectional link per remote
// participant. Implementations provide no delivery or ordering guarantee;
// Send and Broadcast silently drop payloads for links that are not open.
//
// The WebRTC implementation is used against real networks; the loopback
// implementation connects participants in the same process so local play
// and tests run deterministically without a network.
type Transport interface {
	// Connect initiates negotiation with a remote participant. Idempotent
	// while a link is negotiating or open.
	Connect(remoteID string)

	// HandleSignal feeds an inbound out-of-band negotiation payload.
	HandleSignal(from string, payload json.RawMessage)

	// Send transmits over the link if it is open. Reports whether the
	// payload was handed to the link.
	Send(remoteID string, data []byte) bool

	// Broadcast transmits over every open link and reports how many links
	// accepted the payload.
	Broadcast(data []byte) int

	// LinkState reports the state of the link to remoteID.
	LinkState(remoteID string) LinkState

	// Disconnect closes the link to remoteID, if any.
	Disconnect(remoteID string)

	// Close closes every link.
	Close()

	OnLinkOpen(fn func(remoteID string))
	OnLinkClosed(fn func(remoteID string))
	OnMessage(fn func(remoteID string, data []byte))
}
