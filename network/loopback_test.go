package network

import (
	"testing"
)

func TestLoopbackConnectOpensBothEnds(t *testing.T) {
	hub := NewLoopbackHub()
	a := hub.Attach("p1")
	b := hub.Attach("p2")

	var aOpened, bOpened string
	a.OnLinkOpen(func(id string) { aOpened = id })
	b.OnLinkOpen(func(id string) { bOpened = id })

	a.Connect("p2")

	if aOpened != "p2" || bOpened != "p1" {
		t.Fatalf("open callbacks = (%q, %q)", aOpened, bOpened)
	}
	if a.LinkState("p2") != LinkOpen || b.LinkState("p1") != LinkOpen {
		t.Fatalf("states = (%v, %v)", a.LinkState("p2"), b.LinkState("p1"))
	}
}

func TestLoopbackConnectUnknownPeerFails(t *testing.T) {
	hub := NewLoopbackHub()
	a := hub.Attach("p1")

	var closed string
	a.OnLinkClosed(func(id string) { closed = id })

	a.Connect("ghost")

	if closed != "ghost" {
		t.Fatalf("closed callback = %q, want ghost", closed)
	}
	if a.LinkState("ghost") != LinkClosed {
		t.Fatalf("state = %v, want closed", a.LinkState("ghost"))
	}
}

func TestLoopbackSendAndBroadcast(t *testing.T) {
	hub := NewLoopbackHub()
	a := hub.Attach("p1")
	b := hub.Attach("p2")
	c := hub.Attach("p3")

	received := make(map[string]string)
	b.OnMessage(func(from string, data []byte) { received["b"] = from + ":" + string(data) })
	c.OnMessage(func(from string, data []byte) { received["c"] = from + ":" + string(data) })

	a.Connect("p2")
	a.Connect("p3")

	if !a.Send("p2", []byte("hello")) {
		t.Fatal("send to open link failed")
	}
	if received["b"] != "p1:hello" {
		t.Fatalf("b received %q", received["b"])
	}

	if n := a.Broadcast([]byte("all")); n != 2 {
		t.Fatalf("broadcast reached %d links, want 2", n)
	}
	if received["b"] != "p1:all" || received["c"] != "p1:all" {
		t.Fatalf("broadcast results = %v", received)
	}
}

func TestLoopbackSendToClosedLinkDrops(t *testing.T) {
	hub := NewLoopbackHub()
	a := hub.Attach("p1")
	b := hub.Attach("p2")

	delivered := false
	b.OnMessage(func(string, []byte) { delivered = true })

	if a.Send("p2", []byte("x")) {
		t.Fatal("send succeeded before connect")
	}

	a.Connect("p2")
	a.Disconnect("p2")

	if a.Send("p2", []byte("x")) {
		t.Fatal("send succeeded after disconnect")
	}
	if delivered {
		t.Fatal("payload delivered over closed link")
	}
}

func TestLoopbackDisconnectNotifiesBothEnds(t *testing.T) {
	hub := NewLoopbackHub()
	a := hub.Attach("p1")
	b := hub.Attach("p2")

	var aClosed, bClosed string
	a.OnLinkClosed(func(id string) { aClosed = id })
	b.OnLinkClosed(func(id string) { bClosed = id })

	a.Connect("p2")
	b.Disconnect("p1")

	if aClosed != "p2" || bClosed != "p1" {
		t.Fatalf("closed callbacks = (%q, %q)", aClosed, bClosed)
	}
}

func TestLoopbackDetachClosesLinks(t *testing.T) {
	hub := NewLoopbackHub()
	a := hub.Attach("p1")
	b := hub.Attach("p2")

	var aClosed string
	a.OnLinkOpen(func(string) {})
	a.OnLinkClosed(func(id string) { aClosed = id })

	a.Connect("p2")
	hub.Detach("p2")

	if aClosed != "p2" {
		t.Fatalf("closed callback = %q, want p2", aClosed)
	}
	if b.LinkState("p1") != LinkClosed {
		t.Fatalf("detached transport link state = %v", b.LinkState("p1"))
	}
}

func TestLoopbackConnectIdempotent(t *testing.T) {
	hub := NewLoopbackHub()
	a := hub.Attach("p1")
	hub.Attach("p2")

	opens := 0
	a.OnLinkOpen(func(string) { opens++ })

	a.Connect("p2")
	a.Connect("p2")

	if opens != 1 {
		t.Fatalf("open fired %d times, want 1", opens)
	}
}
