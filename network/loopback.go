package network

import (
	"encoding/json"
	"sync"
)

// LoopbackHub wires Transports together inside one process. It stands in
// for the real network during same-machine play and in tests: links open
// instantly, delivery is synchronous, and nothing is lost or reordered, so
// test runs are deterministic.
type LoopbackHub struct {
	mu    sync.Mutex
	peers map[string]*LoopbackTransport
}

func NewLoopbackHub() *LoopbackHub {
	return &LoopbackHub{peers: make(map[string]*LoopbackTransport)}
}

// Attach registers a participant and returns its transport.
func (h *LoopbackHub) Attach(id string) *LoopbackTransport {
	t := &LoopbackTransport{
		hub:   h,
		id:    id,
		links: make(map[string]LinkState),
	}
	h.mu.Lock()
	h.peers[id] = t
	h.mu.Unlock()
	return t
}

// Detach removes a participant and closes all of its links.
func (h *LoopbackHub) Detach(id string) {
	h.mu.Lock()
	t, ok := h.peers[id]
	delete(h.peers, id)
	h.mu.Unlock()
	if ok {
		t.Close()
	}
}

func (h *LoopbackHub) lookup(id string) *LoopbackTransport {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.peers[id]
}

// LoopbackTransport is the in-process Transport implementation.
type LoopbackTransport struct {
	hub *LoopbackHub
	id  string

	mu    sync.Mutex
	links map[string]LinkState

	onOpen    func(string)
	onClosed  func(string)
	onMessage func(string, []byte)
}

var _ Transport = (*LoopbackTransport)(nil)

func (t *LoopbackTransport) OnLinkOpen(fn func(string)) {
	t.mu.Lock()
	t.onOpen = fn
	t.mu.Unlock()
}

func (t *LoopbackTransport) OnLinkClosed(fn func(string)) {
	t.mu.Lock()
	t.onClosed = fn
	t.mu.Unlock()
}

func (t *LoopbackTransport) OnMessage(fn func(string, []byte)) {
	t.mu.Lock()
	t.onMessage = fn
	t.mu.Unlock()
}

// Connect opens a link to an attached participant immediately, on both
// ends. A missing participant counts as a failed negotiation and the link
// goes straight to closed.
func (t *LoopbackTransport) Connect(remoteID string) {
	t.mu.Lock()
	if s := t.links[remoteID]; s == LinkNegotiating || s == LinkOpen {
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()

	remote := t.hub.lookup(remoteID)
	if remote == nil {
		t.setState(remoteID, LinkClosed)
		t.notifyClosed(remoteID)
		return
	}

	t.setState(remoteID, LinkOpen)
	remote.setState(t.id, LinkOpen)
	t.notifyOpen(remoteID)
	remote.notifyOpen(t.id)
}

// HandleSignal is a no-op: loopback links need no out-of-band negotiation.
func (t *LoopbackTransport) HandleSignal(string, json.RawMessage) {}

// Send delivers synchronously to the remote handler, dropping the payload
// if either side of the link is not open.
func (t *LoopbackTransport) Send(remoteID string, data []byte) bool {
	t.mu.Lock()
	open := t.links[remoteID] == LinkOpen
	t.mu.Unlock()
	if !open {
		return false
	}

	remote := t.hub.lookup(remoteID)
	if remote == nil {
		return false
	}
	return remote.deliver(t.id, data)
}

// Broadcast delivers to every open link.
func (t *LoopbackTransport) Broadcast(data []byte) int {
	t.mu.Lock()
	ids := make([]string, 0, len(t.links))
	for id, s := range t.links {
		if s == LinkOpen {
			ids = append(ids, id)
		}
	}
	t.mu.Unlock()

	sent := 0
	for _, id := range ids {
		if t.Send(id, data) {
			sent++
		}
	}
	return sent
}

func (t *LoopbackTransport) LinkState(remoteID string) LinkState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.links[remoteID]
}

// Disconnect closes both directions of the link.
func (t *LoopbackTransport) Disconnect(remoteID string) {
	t.mu.Lock()
	open := t.links[remoteID] == LinkOpen
	t.mu.Unlock()
	if !open {
		return
	}

	t.setState(remoteID, LinkClosed)
	t.notifyClosed(remoteID)

	if remote := t.hub.lookup(remoteID); remote != nil {
		remote.setState(t.id, LinkClosed)
		remote.notifyClosed(t.id)
	}
}

// Close closes every link.
func (t *LoopbackTransport) Close() {
	t.mu.Lock()
	ids := make([]string, 0, len(t.links))
	for id, s := range t.links {
		if s == LinkOpen {
			ids = append(ids, id)
		}
	}
	t.mu.Unlock()

	for _, id := range ids {
		t.Disconnect(id)
	}
}

func (t *LoopbackTransport) deliver(from string, data []byte) bool {
	t.mu.Lock()
	open := t.links[from] == LinkOpen
	onMessage := t.onMessage
	t.mu.Unlock()

	if !open {
		return false
	}
	if onMessage != nil {
		onMessage(from, data)
	}
	return true
}

func (t *LoopbackTransport) setState(remoteID string, s LinkState) {
	t.mu.Lock()
	t.links[remoteID] = s
	t.mu.Unlock()
}

func (t *LoopbackTransport) notifyOpen(remoteID string) {
	t.mu.Lock()
	fn := t.onOpen
	t.mu.Unlock()
	if fn != nil {
		fn(remoteID)
	}
}

func (t *LoopbackTransport) notifyClosed(remoteID string) {
	t.mu.Lock()
	fn := t.onClosed
	t.mu.Unlock()
	if fn != nil {
		fn(remoteID)
	}
}
