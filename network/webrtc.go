package network

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/hollowpoint/doomgate-mp/shared/netconfig"
)

// SignalSender delivers out-of-band negotiation payloads. Implemented by
// SignalingClient; tests substitute an in-process pipe.
type SignalSender interface {
	SendSignal(to string, payload json.RawMessage) error
}

// signalPayload is the negotiation message carried inside protocol.Signal.
type signalPayload struct {
	Kind      string                   `json:"type"` // offer | answer | ice-candidate
	SDP       string                   `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit `json:"candidate,omitempty"`
}

type peerLink struct {
	remoteID string
	state    LinkState
	pc       *webrtc.PeerConnection
	channel  *webrtc.DataChannel

	// Candidates arriving before the remote description are held back;
	// pion rejects them otherwise.
	pending    []webrtc.ICECandidateInit
	haveRemote bool

	timeout *time.Timer
}

// PeerManager is the WebRTC Transport: one peer connection and one
// unordered, no-retransmit data channel per remote participant. Negotiation
// runs over the signaling channel; a link that fails to open within the
// negotiation timeout is closed and never retried here. Rejoining is the
// caller's decision.
type PeerManager struct {
	mu sync.Mutex

	signaler SignalSender
	config   webrtc.Configuration
	timeout  time.Duration
	links    map[string]*peerLink

	onOpen    func(string)
	onClosed  func(string)
	onMessage func(string, []byte)
}

var _ Transport = (*PeerManager)(nil)

func NewPeerManager(signaler SignalSender, iceServers []webrtc.ICEServer) *PeerManager {
	if len(iceServers) == 0 {
		iceServers = []webrtc.ICEServer{{URLs: netconfig.DefaultSTUNServers}}
	}
	return &PeerManager{
		signaler: signaler,
		config:   webrtc.Configuration{ICEServers: iceServers},
		timeout:  netconfig.NegotiationTimeout,
		links:    make(map[string]*peerLink),
	}
}

func (m *PeerManager) OnLinkOpen(fn func(string)) {
	m.mu.Lock()
	m.onOpen = fn
	m.mu.Unlock()
}

func (m *PeerManager) OnLinkClosed(fn func(string)) {
	m.mu.Lock()
	m.onClosed = fn
	m.mu.Unlock()
}

func (m *PeerManager) OnMessage(fn func(string, []byte)) {
	m.mu.Lock()
	m.onMessage = fn
	m.mu.Unlock()
}

// Connect starts negotiation with remoteID by creating the data channel and
// sending an offer. Idempotent while a link is negotiating or open.
func (m *PeerManager) Connect(remoteID string) {
	m.mu.Lock()
	if l, ok := m.links[remoteID]; ok && l.state != LinkClosed {
		m.mu.Unlock()
		return
	}
	link, err := m.newLinkLocked(remoteID, true)
	if err != nil {
		m.mu.Unlock()
		log.Printf("[peers] create connection to %s: %v", remoteID, err)
		return
	}
	m.links[remoteID] = link
	m.mu.Unlock()

	offer, err := link.pc.CreateOffer(nil)
	if err == nil {
		err = link.pc.SetLocalDescription(offer)
	}
	if err != nil {
		log.Printf("[peers] offer to %s: %v", remoteID, err)
		m.closeLink(remoteID)
		return
	}
	m.sendPayload(remoteID, signalPayload{Kind: "offer", SDP: offer.SDP})
}

// HandleSignal feeds one inbound negotiation payload from the signaling
// channel. Malformed payloads are dropped.
func (m *PeerManager) HandleSignal(from string, payload json.RawMessage) {
	var p signalPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		log.Printf("[peers] dropping signal from %s: %v", from, err)
		return
	}

	switch p.Kind {
	case "offer":
		m.handleOffer(from, p.SDP)
	case "answer":
		m.handleAnswer(from, p.SDP)
	case "ice-candidate":
		m.handleCandidate(from, p.Candidate)
	default:
		log.Printf("[peers] dropping signal from %s: unknown kind %q", from, p.Kind)
	}
}

func (m *PeerManager) handleOffer(from, sdp string) {
	m.mu.Lock()
	link, ok := m.links[from]
	if !ok || link.state == LinkClosed {
		var err error
		link, err = m.newLinkLocked(from, false)
		if err != nil {
			m.mu.Unlock()
			log.Printf("[peers] accept connection from %s: %v", from, err)
			return
		}
		m.links[from] = link
	}
	m.mu.Unlock()

	err := link.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  sdp,
	})
	if err != nil {
		log.Printf("[peers] remote offer from %s: %v", from, err)
		m.closeLink(from)
		return
	}
	m.flushCandidates(link)

	answer, err := link.pc.CreateAnswer(nil)
	if err == nil {
		err = link.pc.SetLocalDescription(answer)
	}
	if err != nil {
		log.Printf("[peers] answer to %s: %v", from, err)
		m.closeLink(from)
		return
	}
	m.sendPayload(from, signalPayload{Kind: "answer", SDP: answer.SDP})
}

func (m *PeerManager) handleAnswer(from, sdp string) {
	m.mu.Lock()
	link, ok := m.links[from]
	m.mu.Unlock()
	if !ok {
		return
	}

	err := link.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  sdp,
	})
	if err != nil {
		log.Printf("[peers] remote answer from %s: %v", from, err)
		m.closeLink(from)
		return
	}
	m.flushCandidates(link)
}

func (m *PeerManager) handleCandidate(from string, candidate *webrtc.ICECandidateInit) {
	if candidate == nil {
		return
	}

	m.mu.Lock()
	link, ok := m.links[from]
	if ok && !link.haveRemote {
		link.pending = append(link.pending, *candidate)
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	if err := link.pc.AddICECandidate(*candidate); err != nil {
		log.Printf("[peers] candidate from %s: %v", from, err)
	}
}

func (m *PeerManager) flushCandidates(link *peerLink) {
	m.mu.Lock()
	link.haveRemote = true
	pending := link.pending
	link.pending = nil
	m.mu.Unlock()

	for _, c := range pending {
		if err := link.pc.AddICECandidate(c); err != nil {
			log.Printf("[peers] buffered candidate for %s: %v", link.remoteID, err)
		}
	}
}

// newLinkLocked builds the peer connection and arms the negotiation timer.
// Caller holds m.mu.
func (m *PeerManager) newLinkLocked(remoteID string, initiator bool) (*peerLink, error) {
	pc, err := webrtc.NewPeerConnection(m.config)
	if err != nil {
		return nil, err
	}
	link := &peerLink{remoteID: remoteID, state: LinkNegotiating, pc: pc}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		init := c.ToJSON()
		m.sendPayload(remoteID, signalPayload{Kind: "ice-candidate", Candidate: &init})
	})

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		switch s {
		case webrtc.PeerConnectionStateFailed,
			webrtc.PeerConnectionStateDisconnected,
			webrtc.PeerConnectionStateClosed:
			m.closeLink(remoteID)
		}
	})

	if initiator {
		// The link opens only once this channel's handshake completes on
		// both ends; the transport handshake alone is not enough.
		ordered := false
		var maxRetransmits uint16
		dc, err := pc.CreateDataChannel("game", &webrtc.DataChannelInit{
			Ordered:        &ordered,
			MaxRetransmits: &maxRetransmits,
		})
		if err != nil {
			_ = pc.Close()
			return nil, err
		}
		m.wireChannel(link, dc)
	} else {
		pc.OnDataChannel(func(dc *webrtc.DataChannel) {
			m.wireChannel(link, dc)
		})
	}

	link.timeout = time.AfterFunc(m.timeout, func() {
		m.mu.Lock()
		l, ok := m.links[remoteID]
		stillNegotiating := ok && l == link && l.state == LinkNegotiating
		m.mu.Unlock()
		if stillNegotiating {
			log.Printf("[peers] negotiation with %s timed out", remoteID)
			m.closeLink(remoteID)
		}
	})

	return link, nil
}

func (m *PeerManager) wireChannel(link *peerLink, dc *webrtc.DataChannel) {
	dc.OnOpen(func() {
		m.mu.Lock()
		link.state = LinkOpen
		link.channel = dc
		if link.timeout != nil {
			link.timeout.Stop()
		}
		onOpen := m.onOpen
		m.mu.Unlock()

		log.Printf("[peers] link open: %s", link.remoteID)
		if onOpen != nil {
			onOpen(link.remoteID)
		}
	})

	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		m.mu.Lock()
		onMessage := m.onMessage
		m.mu.Unlock()
		if onMessage != nil {
			onMessage(link.remoteID, msg.Data)
		}
	})

	dc.OnClose(func() {
		m.closeLink(link.remoteID)
	})
}

// Send transmits over the open link to remoteID, silently dropping the
// payload otherwise. There is no queueing: state is a refreshed stream and
// stale payloads are worthless by the time a link recovers.
func (m *PeerManager) Send(remoteID string, data []byte) bool {
	m.mu.Lock()
	link, ok := m.links[remoteID]
	var channel *webrtc.DataChannel
	if ok && link.state == LinkOpen {
		channel = link.channel
	}
	m.mu.Unlock()

	if channel == nil {
		return false
	}
	return channel.Send(data) == nil
}

// Broadcast transmits over every open link.
func (m *PeerManager) Broadcast(data []byte) int {
	m.mu.Lock()
	channels := make([]*webrtc.DataChannel, 0, len(m.links))
	for _, link := range m.links {
		if link.state == LinkOpen && link.channel != nil {
			channels = append(channels, link.channel)
		}
	}
	m.mu.Unlock()

	sent := 0
	for _, ch := range channels {
		if ch.Send(data) == nil {
			sent++
		}
	}
	return sent
}

// LinkState reports the state of the link to remoteID.
func (m *PeerManager) LinkState(remoteID string) LinkState {
	m.mu.Lock()
	defer m.mu.Unlock()
	if link, ok := m.links[remoteID]; ok {
		return link.state
	}
	return LinkNone
}

// Disconnect closes the link to remoteID.
func (m *PeerManager) Disconnect(remoteID string) {
	m.closeLink(remoteID)
}

// Close closes every link.
func (m *PeerManager) Close() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.links))
	for id := range m.links {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.closeLink(id)
	}
}

func (m *PeerManager) closeLink(remoteID string) {
	m.mu.Lock()
	link, ok := m.links[remoteID]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.links, remoteID)
	link.state = LinkClosed
	if link.timeout != nil {
		link.timeout.Stop()
	}
	onClosed := m.onClosed
	m.mu.Unlock()

	_ = link.pc.Close()
	log.Printf("[peers] link closed: %s", remoteID)
	if onClosed != nil {
		onClosed(remoteID)
	}
}

func (m *PeerManager) sendPayload(to string, p signalPayload) {
	raw, err := json.Marshal(p)
	if err != nil {
		log.Printf("[peers] marshal %s payload: %v", p.Kind, err)
		return
	}
	if err := m.signaler.SendSignal(to, raw); err != nil {
		log.Printf("[peers] signal %s to %s: %v", p.Kind, to, err)
	}
}
