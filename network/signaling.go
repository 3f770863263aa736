package network

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/hollowpoint/doomgate-mp/shared/protocol"
)

// SignalingState is the relay connection lifecycle.
type SignalingState int

const (
	SignalingDisconnected SignalingState = iota
	SignalingConnecting
	SignalingConnected
)

const signalingWriteTimeout = 5 * time.Second

// SignalingClient is the reliable channel to the relay. It exists solely to
// manage room membership and to bootstrap peer links; losing it does not
// affect links that are already open, but it blocks new joins and
// negotiations until a fresh session reconnects.
type SignalingClient struct {
	mu sync.RWMutex

	url      string
	playerID string
	state    SignalingState
	conn     *websocket.Conn
	cancel   context.CancelFunc

	writeMu sync.Mutex

	onMessage    func(protocol.SignalingMessage)
	onDisconnect func(error)
}

func NewSignalingClient(url, playerID string) *SignalingClient {
	return &SignalingClient{
		url:      url,
		playerID: playerID,
		state:    SignalingDisconnected,
	}
}

// OnMessage registers the handler invoked once per decoded relay message.
// Must be called before Connect.
func (c *SignalingClient) OnMessage(fn func(protocol.SignalingMessage)) {
	c.mu.Lock()
	c.onMessage = fn
	c.mu.Unlock()
}

// OnDisconnect registers the handler invoked once when the relay connection
// drops. Must be called before Connect.
func (c *SignalingClient) OnDisconnect(fn func(error)) {
	c.mu.Lock()
	c.onDisconnect = fn
	c.mu.Unlock()
}

// Connect dials the relay, registers the local participant, and starts the
// read loop.
func (c *SignalingClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state != SignalingDisconnected {
		c.mu.Unlock()
		return fmt.Errorf("already connected to relay")
	}
	c.state = SignalingConnecting
	c.mu.Unlock()

	conn, _, err := websocket.Dial(ctx, c.url, nil)
	if err != nil {
		c.mu.Lock()
		c.state = SignalingDisconnected
		c.mu.Unlock()
		return fmt.Errorf("dial relay: %w", err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.conn = conn
	c.cancel = cancel
	c.state = SignalingConnected
	c.mu.Unlock()

	if err := c.Send(protocol.Register{PlayerID: c.playerID}); err != nil {
		c.Close()
		return err
	}

	go c.readLoop(loopCtx, conn)
	log.Printf("[signaling] connected to relay as %s", c.playerID)
	return nil
}

// State reports the relay connection state.
func (c *SignalingClient) State() SignalingState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// PlayerID returns the registered local identifier.
func (c *SignalingClient) PlayerID() string {
	return c.playerID
}

// Send encodes and writes one message to the relay. Fire-and-forget beyond
// the TCP guarantees of the underlying connection.
func (c *SignalingClient) Send(msg protocol.SignalingMessage) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return fmt.Errorf("not connected to relay")
	}

	data, err := protocol.EncodeSignaling(msg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), signalingWriteTimeout)
	defer cancel()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.Write(ctx, websocket.MessageText, data)
}

// SendSignal wraps a negotiation payload for a specific participant, or
// "all" for the whole room.
func (c *SignalingClient) SendSignal(to string, payload json.RawMessage) error {
	return c.Send(protocol.Signal{From: c.playerID, To: to, Signal: payload})
}

// Close tears down the relay connection without firing OnDisconnect.
func (c *SignalingClient) Close() {
	c.mu.Lock()
	conn := c.conn
	cancel := c.cancel
	c.conn = nil
	c.cancel = nil
	c.state = SignalingDisconnected
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "client closing")
	}
}

func (c *SignalingClient) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			c.mu.Lock()
			wasConnected := c.state == SignalingConnected
			c.state = SignalingDisconnected
			c.conn = nil
			onDisconnect := c.onDisconnect
			c.mu.Unlock()

			if wasConnected {
				log.Printf("[signaling] relay connection lost: %v", err)
				if onDisconnect != nil {
					onDisconnect(err)
				}
			}
			return
		}

		msg, err := protocol.DecodeSignaling(data)
		if err != nil {
			log.Printf("[signaling] dropping message: %v", err)
			continue
		}

		c.mu.RLock()
		onMessage := c.onMessage
		c.mu.RUnlock()
		if onMessage != nil {
			onMessage(msg)
		}
	}
}
