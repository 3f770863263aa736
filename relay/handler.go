package main

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/hollowpoint/doomgate-mp/shared/protocol"
)

const writeTimeout = 5 * time.Second

// client is one registered signaling connection.
type client struct {
	id   string
	conn *websocket.Conn
	mu   sync.Mutex // serializes writes; coder/websocket allows one writer
}

func (c *client) send(msg protocol.SignalingMessage) {
	data, err := protocol.EncodeSignaling(msg)
	if err != nil {
		log.Printf("[relay] encode for %s: %v", c.id, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.Write(ctx, websocket.MessageText, data); err != nil {
		log.Printf("[relay] write to %s: %v", c.id, err)
	}
}

// Relay accepts signaling connections, tracks registered participants, and
// relays room control and negotiation messages between them.
type Relay struct {
	dir *Directory

	mu      sync.RWMutex
	clients map[string]*client
}

func NewRelay() *Relay {
	return &Relay{
		dir:     NewDirectory(),
		clients: make(map[string]*client),
	}
}

// Directory exposes the room bookkeeping for the HTTP lobby endpoints.
func (s *Relay) Directory() *Directory {
	return s.dir
}

// HandleWS upgrades the connection and runs the per-client read loop until
// the connection drops. A dropped connection implies leave-room.
func (s *Relay) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		log.Printf("[relay] accept: %v", err)
		return
	}
	defer conn.CloseNow()

	c := &client{conn: conn}
	log.Println("[relay] new connection")

	ctx := r.Context()
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			log.Printf("[relay] connection closed: %s", c.id)
			break
		}
		s.handleMessage(c, data)
	}

	s.dropClient(c)
}

func (s *Relay) handleMessage(c *client, data []byte) {
	msg, err := protocol.DecodeSignaling(data)
	if err != nil {
		log.Printf("[relay] dropping message from %s: %v", c.id, err)
		return
	}

	switch m := msg.(type) {
	case protocol.Register:
		s.register(c, m.PlayerID)

	case protocol.CreateRoom:
		s.createRoom(c, m)

	case protocol.JoinRoom:
		s.joinRoom(c, m)

	case protocol.LeaveRoom:
		s.leaveRoom(m.PlayerID)

	case protocol.Signal:
		s.relaySignal(c, m)

	case protocol.GetRooms:
		c.send(protocol.RoomList{Rooms: s.dir.List()})

	default:
		// Server-to-client kinds are valid protocol but not accepted here.
		log.Printf("[relay] ignoring %T from %s", msg, c.id)
	}
}

// register is an idempotent overwrite: the newest connection for an
// identifier wins.
func (s *Relay) register(c *client, playerID string) {
	if playerID == "" {
		return
	}
	c.id = playerID

	s.mu.Lock()
	s.clients[playerID] = c
	s.mu.Unlock()

	log.Printf("[relay] player registered: %s", playerID)
	c.send(protocol.Registered{PlayerID: playerID})
}

func (s *Relay) createRoom(c *client, m protocol.CreateRoom) {
	if err := s.dir.CreateRoom(m.RoomCode, m.Mode, m.PlayerID); err != nil {
		c.send(protocol.ErrorMessage{Message: "Room already exists"})
		return
	}
	log.Printf("[relay] room created: %s by %s", normalizeCode(m.RoomCode), m.PlayerID)
	c.send(protocol.RoomCreated{RoomCode: normalizeCode(m.RoomCode), Mode: m.Mode})
}

func (s *Relay) joinRoom(c *client, m protocol.JoinRoom) {
	existing, err := s.dir.JoinRoom(m.RoomCode, m.PlayerID)
	if err != nil {
		switch err {
		case ErrRoomNotFound:
			c.send(protocol.ErrorMessage{Message: "Room not found"})
		case ErrRoomFull:
			c.send(protocol.ErrorMessage{Message: "Room is full"})
		default:
			c.send(protocol.ErrorMessage{Message: err.Error()})
		}
		return
	}

	c.send(protocol.RoomJoined{RoomCode: normalizeCode(m.RoomCode), Players: existing})
	for _, id := range existing {
		s.sendTo(id, protocol.PlayerJoined{PlayerID: m.PlayerID})
	}
	log.Printf("[relay] player %s joined room %s", m.PlayerID, normalizeCode(m.RoomCode))
}

func (s *Relay) leaveRoom(playerID string) {
	code, remaining, ok := s.dir.LeaveRoom(playerID)
	if !ok {
		return
	}
	for _, id := range remaining {
		s.sendTo(id, protocol.PlayerLeft{PlayerID: playerID})
	}
	if len(remaining) == 0 {
		log.Printf("[relay] room deleted: %s", code)
	}
	log.Printf("[relay] player %s left room %s", playerID, code)
}

// relaySignal forwards a negotiation payload. From is re-stamped with the
// authenticated sender so peers cannot impersonate each other.
func (s *Relay) relaySignal(c *client, m protocol.Signal) {
	if c.id == "" {
		return
	}
	out := protocol.Signal{From: c.id, To: m.To, Signal: m.Signal}

	if m.To == "all" {
		code, ok := s.dir.RoomOf(c.id)
		if !ok {
			return
		}
		for _, id := range s.dir.Members(code) {
			if id != c.id {
				s.sendTo(id, out)
			}
		}
		return
	}

	s.sendTo(m.To, out)
}

func (s *Relay) sendTo(playerID string, msg protocol.SignalingMessage) {
	s.mu.RLock()
	c, ok := s.clients[playerID]
	s.mu.RUnlock()
	if !ok {
		return
	}
	c.send(msg)
}

func (s *Relay) dropClient(c *client) {
	if c.id == "" {
		return
	}
	s.leaveRoom(c.id)

	s.mu.Lock()
	// A reconnect may have overwritten this identifier already.
	if cur, ok := s.clients[c.id]; ok && cur == c {
		delete(s.clients, c.id)
	}
	s.mu.Unlock()

	log.Printf("[relay] player deregistered: %s", c.id)
}
