package network

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/hollowpoint/doomgate-mp/shared/protocol"
)

// echoRelay accepts one connection, acknowledges registration, and echoes
// every later frame back to the sender.
func echoRelay(t *testing.T) string {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
		if err != nil {
			return
		}
		defer conn.CloseNow()

		ctx := r.Context()
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			msg, err := protocol.DecodeSignaling(data)
			if err != nil {
				continue
			}
			if reg, ok := msg.(protocol.Register); ok {
				ack, _ := protocol.EncodeSignaling(protocol.Registered{PlayerID: reg.PlayerID})
				_ = conn.Write(ctx, websocket.MessageText, ack)
				continue
			}
			_ = conn.Write(ctx, websocket.MessageText, data)
		}
	}))
	t.Cleanup(srv.Close)

	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestSignalingClientConnectRegisters(t *testing.T) {
	url := echoRelay(t)
	c := NewSignalingClient(url, "p1")
	t.Cleanup(c.Close)

	got := make(chan protocol.SignalingMessage, 1)
	c.OnMessage(func(msg protocol.SignalingMessage) { got <- msg })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if c.State() != SignalingConnected {
		t.Fatalf("state = %v", c.State())
	}

	select {
	case msg := <-got:
		ack, ok := msg.(protocol.Registered)
		if !ok || ack.PlayerID != "p1" {
			t.Fatalf("ack = %#v", msg)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no registration ack")
	}
}

func TestSignalingClientConnectTwice(t *testing.T) {
	url := echoRelay(t)
	c := NewSignalingClient(url, "p1")
	t.Cleanup(c.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := c.Connect(ctx); err == nil {
		t.Fatal("second connect succeeded")
	}
}

func TestSignalingClientSendSignalWrapsPayload(t *testing.T) {
	url := echoRelay(t)
	c := NewSignalingClient(url, "p1")
	t.Cleanup(c.Close)

	got := make(chan protocol.SignalingMessage, 2)
	c.OnMessage(func(msg protocol.SignalingMessage) { got <- msg })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	<-got // registration ack

	if err := c.SendSignal("p2", []byte(`{"type":"offer","sdp":"v=0"}`)); err != nil {
		t.Fatalf("send signal: %v", err)
	}

	select {
	case msg := <-got:
		sig, ok := msg.(protocol.Signal)
		if !ok {
			t.Fatalf("echo = %#v", msg)
		}
		if sig.From != "p1" || sig.To != "p2" {
			t.Fatalf("signal = %+v", sig)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no echo")
	}
}

func TestSignalingClientDisconnectCallback(t *testing.T) {
	url := echoRelay(t)
	c := NewSignalingClient(url, "p1")

	var (
		mu     sync.Mutex
		fired  int
		closed = make(chan struct{})
	)
	c.OnDisconnect(func(error) {
		mu.Lock()
		fired++
		mu.Unlock()
		close(closed)
	})
	c.OnMessage(func(protocol.SignalingMessage) {})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}

	// Simulate the relay dying rather than a local Close, which must not
	// fire the callback.
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	conn.CloseNow()

	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		t.Fatal("disconnect callback never fired")
	}
	mu.Lock()
	defer mu.Unlock()
	if fired != 1 {
		t.Fatalf("disconnect fired %d times", fired)
	}
}

func TestSignalingClientSendWhileDisconnected(t *testing.T) {
	c := NewSignalingClient("ws://127.0.0.1:1/ws", "p1")
	if err := c.Send(protocol.GetRooms{}); err == nil {
		t.Fatal("send succeeded without a connection")
	}
}
