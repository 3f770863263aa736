package network

import (
	"encoding/json"
	"sync"
	"testing"
)

type fakeSignalSender struct {
	mu   sync.Mutex
	sent []struct {
		to      string
		payload json.RawMessage
	}
}

func (f *fakeSignalSender) SendSignal(to string, payload json.RawMessage) error {
	f.mu.Lock()
	f.sent = append(f.sent, struct {
		to      string
		payload json.RawMessage
	}{to, payload})
	f.mu.Unlock()
	return nil
}

func TestPeerManagerDropsMalformedSignals(t *testing.T) {
	m := NewPeerManager(&fakeSignalSender{}, nil)

	m.HandleSignal("p2", json.RawMessage(`not json`))
	m.HandleSignal("p2", json.RawMessage(`{"type":"warp-drive"}`))

	// No link may come into existence from garbage input.
	if s := m.LinkState("p2"); s != LinkNone {
		t.Fatalf("link state = %v, want none", s)
	}
}

func TestPeerManagerCandidateForUnknownPeer(t *testing.T) {
	m := NewPeerManager(&fakeSignalSender{}, nil)

	payload := json.RawMessage(`{"type":"ice-candidate","candidate":{"candidate":"candidate:1 1 udp 1 127.0.0.1 9 typ host"}}`)
	m.HandleSignal("ghost", payload)

	if s := m.LinkState("ghost"); s != LinkNone {
		t.Fatalf("link state = %v, want none", s)
	}
}

func TestPeerManagerSendWithoutLink(t *testing.T) {
	m := NewPeerManager(&fakeSignalSender{}, nil)

	if m.Send("p2", []byte("x")) {
		t.Fatal("send succeeded with no link")
	}
	if n := m.Broadcast([]byte("x")); n != 0 {
		t.Fatalf("broadcast reached %d links", n)
	}
}

func TestPeerManagerAnswerWithoutOffer(t *testing.T) {
	m := NewPeerManager(&fakeSignalSender{}, nil)

	// An answer for a link we never initiated is ignored, not an error.
	m.HandleSignal("p2", json.RawMessage(`{"type":"answer","sdp":"v=0"}`))
	if s := m.LinkState("p2"); s != LinkNone {
		t.Fatalf("link state = %v, want none", s)
	}
}
