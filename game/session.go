package game

import (
	"crypto/rand"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hollowpoint/doomgate-mp/network"
	"github.com/hollowpoint/doomgate-mp/shared/netconfig"
	"github.com/hollowpoint/doomgate-mp/shared/protocol"
)

// Status is the transport-liveness view of a participant.
type Status int

const (
	StatusConnecting Status = iota
	StatusConnected
	StatusDisconnected
)

// Participant is one remote player in the current session.
type Participant struct {
	ID     string
	Team   protocol.Team
	Status Status
}

// RoomSignaler is the slice of the signaling client the session drives.
// SignalingClient implements it; tests substitute an in-process fake.
type RoomSignaler interface {
	Send(msg protocol.SignalingMessage) error
	OnMessage(fn func(protocol.SignalingMessage))
	OnDisconnect(fn func(error))
	Close()
}

// Callbacks notify the UI and simulation layers. All fields are optional.
// Handlers run on network goroutines and must not block.
type Callbacks struct {
	// Notice carries transient user-visible text: join/leave, room errors.
	Notice func(text string)

	// RoomChange fires when the local player enters or leaves a room.
	RoomChange func(code string, isHost bool)

	RoomList func(rooms []protocol.RoomInfo)

	Chat   func(msg protocol.ChatMessage)
	Scores func(scores map[string]int, teamScores map[protocol.Team]int)

	GameStart func(mode protocol.Mode)
	GameEnd   func(winner protocol.Team, scores map[string]int, teamScores map[protocol.Team]int)

	// Respawn reports the canonical post-respawn position for any player,
	// including the local one.
	Respawn func(playerID string, position protocol.Vec3)

	// Shot reports a remote player firing, for muzzle flash and audio.
	Shot func(playerID, weapon string, direction protocol.Vec3)

	// LocalHit reports damage dealt to the local player.
	LocalHit func(damage float64)
}

// Session ties the multiplayer core together: room membership over the
// signaling channel, one unreliable link per remote participant, the
// snapshot synchronizer, and the match rules. The simulation layer supplies
// local state through SetLocalState and reads remote state back through
// RemoteState.
type Session struct {
	mu sync.Mutex

	playerID  string
	signaler  RoomSignaler
	transport network.Transport
	sync      *Synchronizer
	match     *Match

	roomCode     string
	isHost       bool
	relayDown    bool
	participants map[string]*Participant
	chat         []protocol.ChatMessage

	localState func() protocol.EntitySnapshot
	cb         Callbacks
}

// NewSession wires a session onto its two transports. The caller connects
// the signaler separately (after registering callbacks, before any room
// operation).
func NewSession(playerID string, signaler RoomSignaler, transport network.Transport) *Session {
	s := &Session{
		playerID:     playerID,
		signaler:     signaler,
		transport:    transport,
		sync:         NewSynchronizer(),
		match:        NewMatch(protocol.ModeDeathmatch),
		participants: make(map[string]*Participant),
	}

	signaler.OnMessage(s.handleSignaling)
	signaler.OnDisconnect(s.handleRelayDisconnect)
	transport.OnLinkOpen(s.handleLinkOpen)
	transport.OnLinkClosed(s.handleLinkClosed)
	transport.OnMessage(s.handlePeerMessage)
	return s
}

// NewPlayerID generates a session-unique participant identifier.
func NewPlayerID() string {
	return "player_" + uuid.NewString()[:8]
}

// SetCallbacks installs the UI/simulation notification hooks.
func (s *Session) SetCallbacks(cb Callbacks) {
	s.mu.Lock()
	s.cb = cb
	s.mu.Unlock()
}

// SetLocalState installs the provider polled for the local player's
// snapshot on every broadcast tick.
func (s *Session) SetLocalState(fn func() protocol.EntitySnapshot) {
	s.mu.Lock()
	s.localState = fn
	s.mu.Unlock()
}

// PlayerID returns the local participant identifier.
func (s *Session) PlayerID() string {
	return s.playerID
}

// RoomCode returns the current room code, empty when not in a room.
func (s *Session) RoomCode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomCode
}

// IsHost reports whether the local player created the current room.
func (s *Session) IsHost() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isHost
}

// Match exposes the current match state.
func (s *Session) Match() *Match {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.match
}

// Participants returns a snapshot of the remote participant table.
func (s *Session) Participants() []Participant {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Participant, 0, len(s.participants))
	for _, p := range s.participants {
		out = append(out, *p)
	}
	return out
}

const roomCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// NewRoomCode generates a random room code.
func NewRoomCode() string {
	b := make([]byte, netconfig.RoomCodeLength)
	_, _ = rand.Read(b)
	for i := range b {
		b[i] = roomCodeAlphabet[int(b[i])%len(roomCodeAlphabet)]
	}
	return string(b)
}

// CreateRoom asks the relay for a new room in the given mode and returns
// the generated code. Confirmation arrives asynchronously as a RoomChange
// callback.
func (s *Session) CreateRoom(mode protocol.Mode) (string, error) {
	s.mu.Lock()
	if s.relayDown {
		s.mu.Unlock()
		return "", fmt.Errorf("signaling disconnected")
	}
	s.mu.Unlock()

	code := NewRoomCode()
	err := s.signaler.Send(protocol.CreateRoom{
		RoomCode: code,
		Mode:     mode,
		PlayerID: s.playerID,
	})
	if err != nil {
		return "", fmt.Errorf("create room: %w", err)
	}
	return code, nil
}

// JoinRoom asks the relay to join an existing room.
func (s *Session) JoinRoom(code string) error {
	s.mu.Lock()
	if s.relayDown {
		s.mu.Unlock()
		return fmt.Errorf("signaling disconnected")
	}
	s.mu.Unlock()

	err := s.signaler.Send(protocol.JoinRoom{RoomCode: code, PlayerID: s.playerID})
	if err != nil {
		return fmt.Errorf("join room: %w", err)
	}
	return nil
}

// LeaveRoom leaves the current room and closes every peer link.
func (s *Session) LeaveRoom() {
	s.mu.Lock()
	code := s.roomCode
	s.roomCode = ""
	s.isHost = false
	s.participants = make(map[string]*Participant)
	s.chat = nil
	cb := s.cb
	s.mu.Unlock()

	if code == "" {
		return
	}

	_ = s.signaler.Send(protocol.LeaveRoom{PlayerID: s.playerID})
	s.transport.Close()
	log.Printf("[session] left room %s", code)
	if cb.RoomChange != nil {
		cb.RoomChange("", false)
	}
}

// RequestRooms asks the relay for the current room list, answered via the
// RoomList callback.
func (s *Session) RequestRooms() error {
	return s.signaler.Send(protocol.GetRooms{})
}

// Update drives the fixed-cadence snapshot broadcast. Call it every
// simulation tick; it only transmits when enough wall-clock time has
// passed.
func (s *Session) Update(now time.Time) {
	s.mu.Lock()
	inRoom := s.roomCode != ""
	localState := s.localState
	match := s.match
	s.mu.Unlock()

	if !inRoom || localState == nil || !s.sync.ShouldSend(now) {
		return
	}

	if match.Mode().TeamMode() && match.TeamOf(s.playerID) == protocol.TeamNone {
		match.AssignTeam(s.playerID)
	}

	snap := localState()
	snap.Timestamp = now.UnixMilli()
	snap.Team = match.TeamOf(s.playerID)
	s.broadcastPeer(protocol.PlayerState{State: snap})
}

// RemoteState reconstructs a remote participant's renderable state for now.
func (s *Session) RemoteState(id string, now time.Time) (RenderedState, bool) {
	return s.sync.Render(id, s.sync.RenderTime(now))
}

// SendChat broadcasts a chat line and records it locally.
func (s *Session) SendChat(text string) {
	msg := protocol.ChatMessage{
		PlayerID:  s.playerID,
		Message:   text,
		Timestamp: time.Now().UnixMilli(),
	}
	s.recordChat(msg)
	s.broadcastPeer(msg)
}

// ChatHistory returns a copy of the retained chat log.
func (s *Session) ChatHistory() []protocol.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]protocol.ChatMessage(nil), s.chat...)
}

// Shoot announces a local shot to all peers.
func (s *Session) Shoot(weapon string, direction protocol.Vec3) {
	s.broadcastPeer(protocol.PlayerShoot{Weapon: weapon, Direction: direction})
}

// ReportHit announces damage the local player dealt to a target.
func (s *Session) ReportHit(targetID string, damage float64) {
	s.broadcastPeer(protocol.PlayerHit{TargetID: targetID, Damage: damage})
}

// ReportDeath announces the local player's death, credits the killer, and
// schedules the automatic respawn.
func (s *Session) ReportDeath(killerID string) {
	s.broadcastPeer(protocol.PlayerDeath{KillerID: killerID})

	s.mu.Lock()
	match := s.match
	cb := s.cb
	s.mu.Unlock()

	if killerID != "" {
		match.AddScore(killerID, 1)
		if cb.Scores != nil {
			cb.Scores(match.Scores(), match.TeamScores())
		}
	}

	if match.Mode() != protocol.ModeCoopCampaign {
		time.AfterFunc(netconfig.RespawnDelay, s.RespawnLocal)
	}
}

// RespawnLocal computes the local spawn point, resets to match-start
// defaults via the Respawn callback, and broadcasts the canonical position
// so all replicas converge.
func (s *Session) RespawnLocal() {
	s.mu.Lock()
	match := s.match
	cb := s.cb
	s.mu.Unlock()

	spawn := match.SpawnPoint(s.playerID)
	s.broadcastPeer(protocol.PlayerRespawn{PlayerID: s.playerID, Position: spawn})
	if cb.Respawn != nil {
		cb.Respawn(s.playerID, spawn)
	}
}

// PickupFlag reports the local player picking up the given team's flag.
func (s *Session) PickupFlag(team protocol.Team) {
	s.mu.Lock()
	match := s.match
	s.mu.Unlock()

	match.PickupFlag(team, s.playerID)
	s.broadcastPeer(protocol.FlagPickup{Team: team})
}

// DropFlag reports the local player dropping the given team's flag.
func (s *Session) DropFlag(team protocol.Team, position protocol.Vec3) {
	s.mu.Lock()
	match := s.match
	s.mu.Unlock()

	match.DropFlag(team, position)
	s.broadcastPeer(protocol.FlagDrop{Team: team, Position: position})
}

// ReturnFlag reports the given team's flag returning to its base.
func (s *Session) ReturnFlag(team protocol.Team) {
	s.mu.Lock()
	match := s.match
	s.mu.Unlock()

	match.ReturnFlag(team)
	s.broadcastPeer(protocol.FlagReturn{Team: team})
}

// CaptureFlag reports the local player capturing the given team's flag.
// If this capture reaches the win threshold, the session broadcasts the
// single game_end for the match.
func (s *Session) CaptureFlag(team protocol.Team) {
	s.mu.Lock()
	match := s.match
	s.mu.Unlock()

	winner, won := match.CaptureFlag(s.playerID, team)
	s.broadcastPeer(protocol.FlagCapture{Team: team})
	s.notifyScores()
	if won {
		s.endGame(winner, true)
	}
}

// StartGame resets match state on every replica and respawns the local
// player. Typically invoked by the host.
func (s *Session) StartGame() {
	s.mu.Lock()
	match := s.match
	cb := s.cb
	s.mu.Unlock()

	match.Reset()
	s.broadcastPeer(protocol.GameStart{Mode: match.Mode()})
	if cb.GameStart != nil {
		cb.GameStart(match.Mode())
	}
	s.RespawnLocal()
}

// Close leaves the room and tears down both transports.
func (s *Session) Close() {
	s.LeaveRoom()
	s.signaler.Close()
}

// --- signaling plane ---

func (s *Session) handleSignaling(msg protocol.SignalingMessage) {
	switch m := msg.(type) {
	case protocol.Registered:
		log.Printf("[session] registered as %s", m.PlayerID)

	case protocol.RoomCreated:
		s.mu.Lock()
		s.roomCode = m.RoomCode
		s.isHost = true
		s.match = NewMatch(m.Mode)
		cb := s.cb
		s.mu.Unlock()

		log.Printf("[session] created room %s (%s)", m.RoomCode, m.Mode)
		if cb.RoomChange != nil {
			cb.RoomChange(m.RoomCode, true)
		}

	case protocol.RoomJoined:
		s.mu.Lock()
		s.roomCode = m.RoomCode
		s.isHost = false
		for _, id := range m.Players {
			s.participants[id] = &Participant{ID: id, Status: StatusConnecting}
		}
		cb := s.cb
		s.mu.Unlock()

		log.Printf("[session] joined room %s with %d player(s)", m.RoomCode, len(m.Players))
		if cb.RoomChange != nil {
			cb.RoomChange(m.RoomCode, false)
		}
		// The joiner initiates every link, so concurrent joins never race
		// to offer each other.
		for _, id := range m.Players {
			s.transport.Connect(id)
		}

	case protocol.PlayerJoined:
		s.mu.Lock()
		s.participants[m.PlayerID] = &Participant{ID: m.PlayerID, Status: StatusConnecting}
		s.mu.Unlock()
		// The joiner offers to us; nothing to initiate here.

	case protocol.PlayerLeft:
		s.removePeer(m.PlayerID, "left the game")

	case protocol.Signal:
		s.transport.HandleSignal(m.From, m.Signal)

	case protocol.RoomList:
		s.mu.Lock()
		cb := s.cb
		s.mu.Unlock()
		if cb.RoomList != nil {
			cb.RoomList(m.Rooms)
		}

	case protocol.ErrorMessage:
		s.notify(m.Message)

	default:
		log.Printf("[session] ignoring signaling message %T", msg)
	}
}

func (s *Session) handleRelayDisconnect(err error) {
	s.mu.Lock()
	s.relayDown = true
	s.mu.Unlock()

	// Open peer links are unaffected; only new joins and negotiations are
	// blocked until a fresh session reconnects.
	log.Printf("[session] signaling lost: %v", err)
	s.notify("Connection to server lost")
}

// --- peer plane ---

func (s *Session) handleLinkOpen(id string) {
	s.mu.Lock()
	p, ok := s.participants[id]
	if !ok {
		p = &Participant{ID: id}
		s.participants[id] = p
	}
	p.Status = StatusConnected
	localState := s.localState
	match := s.match
	s.mu.Unlock()

	log.Printf("[session] player connected: %s", id)
	s.notify(fmt.Sprintf("%s joined the game", id))

	// Seed the new peer immediately instead of waiting for the next tick.
	if localState != nil {
		snap := localState()
		snap.Timestamp = time.Now().UnixMilli()
		snap.Team = match.TeamOf(s.playerID)
		if data, err := protocol.EncodePeer(protocol.PlayerState{State: snap}); err == nil {
			s.transport.Send(id, data)
		}
	}
}

func (s *Session) handleLinkClosed(id string) {
	s.removePeer(id, "left the game")
}

func (s *Session) handlePeerMessage(from string, data []byte) {
	msg, err := protocol.DecodePeer(data)
	if err != nil {
		log.Printf("[session] dropping peer message from %s: %v", from, err)
		return
	}

	s.mu.Lock()
	match := s.match
	cb := s.cb
	s.mu.Unlock()

	switch m := msg.(type) {
	case protocol.PlayerState:
		s.sync.Ingest(from, m.State)
		if m.State.Team != protocol.TeamNone {
			match.SetTeam(from, m.State.Team)
			s.mu.Lock()
			if p, ok := s.participants[from]; ok {
				p.Team = m.State.Team
			}
			s.mu.Unlock()
		}

	case protocol.PlayerShoot:
		if cb.Shot != nil {
			cb.Shot(from, m.Weapon, m.Direction)
		}

	case protocol.PlayerHit:
		if m.TargetID == s.playerID && cb.LocalHit != nil {
			cb.LocalHit(m.Damage)
		}

	case protocol.PlayerDeath:
		if m.KillerID != "" {
			match.AddScore(m.KillerID, 1)
			s.notifyScores()
		}

	case protocol.PlayerRespawn:
		if cb.Respawn != nil {
			cb.Respawn(m.PlayerID, m.Position)
		}

	case protocol.ChatMessage:
		s.recordChat(m)

	case protocol.FlagPickup:
		match.PickupFlag(m.Team, from)
		s.notify(fmt.Sprintf("%s picked up the %s flag!", from, m.Team))

	case protocol.FlagDrop:
		match.DropFlag(m.Team, m.Position)
		s.notify(fmt.Sprintf("%s dropped the %s flag!", from, m.Team))

	case protocol.FlagReturn:
		match.ReturnFlag(m.Team)
		s.notify(fmt.Sprintf("The %s flag was returned!", m.Team))

	case protocol.FlagCapture:
		winner, won := match.CaptureFlag(from, m.Team)
		s.notify(fmt.Sprintf("%s captured the %s flag!", from, m.Team))
		s.notifyScores()
		if won {
			// The capturer broadcasts the game_end; replicas only surface it.
			s.endGame(winner, false)
		}

	case protocol.GameStart:
		s.handleGameStart(m.Mode)

	case protocol.GameEnd:
		if match.End(m.Winner) && cb.GameEnd != nil {
			cb.GameEnd(m.Winner, m.Scores, m.TeamScores)
		}
	}
}

// --- helpers ---

func (s *Session) handleGameStart(mode protocol.Mode) {
	s.mu.Lock()
	if s.match.Mode() != mode {
		s.match = NewMatch(mode)
	} else {
		s.match.Reset()
	}
	cb := s.cb
	s.mu.Unlock()

	if cb.GameStart != nil {
		cb.GameStart(mode)
	}
	s.RespawnLocal()
}

func (s *Session) endGame(winner protocol.Team, broadcast bool) {
	s.mu.Lock()
	match := s.match
	cb := s.cb
	s.mu.Unlock()

	scores := match.Scores()
	teamScores := match.TeamScores()

	if broadcast {
		s.broadcastPeer(protocol.GameEnd{
			Winner:     winner,
			Scores:     scores,
			TeamScores: teamScores,
		})
	}
	if cb.GameEnd != nil {
		cb.GameEnd(winner, scores, teamScores)
	}
}

func (s *Session) removePeer(id, reason string) {
	s.mu.Lock()
	_, known := s.participants[id]
	delete(s.participants, id)
	match := s.match
	s.mu.Unlock()

	if !known {
		return
	}

	s.transport.Disconnect(id)
	s.sync.Drop(id)
	match.RemovePlayer(id)

	log.Printf("[session] player disconnected: %s", id)
	s.notify(fmt.Sprintf("%s %s", id, reason))
}

func (s *Session) recordChat(msg protocol.ChatMessage) {
	s.mu.Lock()
	s.chat = append(s.chat, msg)
	if len(s.chat) > netconfig.ChatHistorySize {
		s.chat = s.chat[len(s.chat)-netconfig.ChatHistorySize:]
	}
	cb := s.cb
	s.mu.Unlock()

	if cb.Chat != nil {
		cb.Chat(msg)
	}
}

func (s *Session) broadcastPeer(msg protocol.PeerMessage) {
	data, err := protocol.EncodePeer(msg)
	if err != nil {
		log.Printf("[session] encode peer message: %v", err)
		return
	}
	s.transport.Broadcast(data)
}

func (s *Session) notify(text string) {
	s.mu.Lock()
	cb := s.cb
	s.mu.Unlock()
	if cb.Notice != nil {
		cb.Notice(text)
	}
}

func (s *Session) notifyScores() {
	s.mu.Lock()
	match := s.match
	cb := s.cb
	s.mu.Unlock()
	if cb.Scores != nil {
		cb.Scores(match.Scores(), match.TeamScores())
	}
}

var _ RoomSignaler = (*network.SignalingClient)(nil)
