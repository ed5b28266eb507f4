package chat

import (
	"context"
	"reflect"
	"testing"

	"github.com/tokenchat/tokenchat/internal/client"
	"github.com/tokenchat/tokenchat/pkg/protocol"
)

func TestOpenBroadcast_SendsWho(t *testing.T) {
	dialer := newFakeDialer()
	c := New("alice", dialer.dial, noDecisions(t))

	if err := c.OpenBroadcast(context.Background()); err != nil {
		t.Fatalf("OpenBroadcast failed: %v", err)
	}
	defer c.Close()

	sent := dialer.conn(client.Broadcast()).sentFrames()
	if len(sent) != 1 || sent[0].Type != protocol.TypeWho {
		t.Errorf("Expected a who frame on open, got %+v", sent)
	}
}

func TestSendChat_BeforeOpenIsNoOp(t *testing.T) {
	c := New("alice", newFakeDialer().dial, noDecisions(t))

	if err := c.SendChat("hi"); err != client.ErrNotOpen {
		t.Errorf("Expected ErrNotOpen, got %v", err)
	}
}

func TestSendChat_GoesToBroadcast(t *testing.T) {
	dialer := newFakeDialer()
	c := New("alice", dialer.dial, noDecisions(t))
	if err := c.OpenBroadcast(context.Background()); err != nil {
		t.Fatalf("OpenBroadcast failed: %v", err)
	}
	defer c.Close()

	if err := c.SendChat("hi"); err != nil {
		t.Fatalf("SendChat failed: %v", err)
	}

	sent := dialer.conn(client.Broadcast()).sentFrames()
	last := sent[len(sent)-1]
	if last.Type != protocol.TypeChat || last.Text != "hi" {
		t.Errorf("Expected chat frame, got %+v", last)
	}
}

func TestPresence_ReplacedWholesale(t *testing.T) {
	dialer := newFakeDialer()
	c := New("alice", dialer.dial, noDecisions(t))
	if err := c.OpenBroadcast(context.Background()); err != nil {
		t.Fatalf("OpenBroadcast failed: %v", err)
	}
	defer c.Close()

	bc := dialer.conn(client.Broadcast())
	bc.deliver(protocol.Frame{Type: protocol.TypeUsers, Users: []string{"alice", "bob", "carol"}})
	waitEvent(t, c, EventPresence)

	bc.deliver(protocol.Frame{Type: protocol.TypeUsers, Users: []string{"alice"}})
	waitEvent(t, c, EventPresence)

	if got := c.Presence(); !reflect.DeepEqual(got, []string{"alice"}) {
		t.Errorf("Presence should be fully replaced, got %v", got)
	}
}

func TestChatFrame_EmitsMessageEvent(t *testing.T) {
	dialer := newFakeDialer()
	c := New("alice", dialer.dial, noDecisions(t))
	if err := c.OpenBroadcast(context.Background()); err != nil {
		t.Fatalf("OpenBroadcast failed: %v", err)
	}
	defer c.Close()

	dialer.conn(client.Broadcast()).deliver(protocol.Frame{
		Type: protocol.TypeChat, From: "bob", Text: "hello", TS: "10:00:00",
	})

	e := waitEvent(t, c, EventMessage)
	if e.Frame.From != "bob" || e.Frame.Text != "hello" {
		t.Errorf("Unexpected message event: %+v", e.Frame)
	}
	if !e.Room.IsBroadcast() {
		t.Errorf("Expected broadcast room, got %s", e.Room)
	}
}

func TestUnknownFrame_Dropped(t *testing.T) {
	dialer := newFakeDialer()
	c := New("alice", dialer.dial, noDecisions(t))
	if err := c.OpenBroadcast(context.Background()); err != nil {
		t.Fatalf("OpenBroadcast failed: %v", err)
	}
	defer c.Close()

	bc := dialer.conn(client.Broadcast())
	// a who frame is outbound-only; inbound it hits the default arm
	bc.deliver(protocol.Frame{Type: protocol.TypeWho})
	bc.deliver(protocol.Frame{Type: protocol.TypeChat, From: "bob", Text: "after"})

	e := waitEvent(t, c, EventMessage)
	if e.Frame.Text != "after" {
		t.Errorf("Expected the frame after the dropped one, got %+v", e.Frame)
	}
}

func TestBroadcastClose_EmitsDisconnected(t *testing.T) {
	dialer := newFakeDialer()
	c := New("alice", dialer.dial, noDecisions(t))
	if err := c.OpenBroadcast(context.Background()); err != nil {
		t.Fatalf("OpenBroadcast failed: %v", err)
	}

	dialer.conn(client.Broadcast()).Close()

	e := waitEvent(t, c, EventDisconnected)
	if !e.Room.IsBroadcast() {
		t.Errorf("Expected broadcast disconnect, got %s", e.Room)
	}
}
