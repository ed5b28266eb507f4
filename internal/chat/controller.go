// Package chat provides the multi-room connection controller: one
// broadcast connection, any number of token-bound private connections,
// presence tracking, and the private-invite handshake.
package chat

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/tokenchat/tokenchat/internal/client"
	"github.com/tokenchat/tokenchat/pkg/protocol"
)

// RoomConn is what the controller needs from a live room connection.
// *client.Conn satisfies it; tests substitute fakes.
type RoomConn interface {
	Key() client.Key
	State() client.State
	Send(protocol.Frame) error
	Frames() <-chan protocol.Frame
	Log() []protocol.Frame
	Close() error
}

// Dialer opens a room connection on behalf of an identity.
type Dialer func(ctx context.Context, key client.Key, identity string) (RoomConn, error)

// WebSocketDialer returns a Dialer backed by the websocket client.
func WebSocketDialer(baseURL string) Dialer {
	return func(ctx context.Context, key client.Key, identity string) (RoomConn, error) {
		return client.Dial(ctx, baseURL, key, identity)
	}
}

const eventBuffer = 32

// ErrClosed is returned by operations on a controller after Close.
var ErrClosed = errors.New("controller closed")

// Controller multiplexes the broadcast room and the open private rooms
// for a single resolved identity. All exported methods are safe for
// concurrent use; frames on one connection are handled in arrival order,
// with no ordering across connections.
type Controller struct {
	identity  string
	dial      Dialer
	decisions DecisionRequester
	events    chan Event

	mu        sync.RWMutex
	closed    bool
	broadcast RoomConn
	tabs      map[string]*tab
	order     []string
	active    string
	presence  []string
	inbound   map[inviteKey]bool
	outbound  map[string]string

	wg sync.WaitGroup
}

// New creates a controller for identity. The identity is resolved once by
// the session layer and immutable for the controller's lifetime.
func New(identity string, dial Dialer, decisions DecisionRequester) *Controller {
	return &Controller{
		identity:  identity,
		dial:      dial,
		decisions: decisions,
		events:    make(chan Event, eventBuffer),
		tabs:      make(map[string]*tab),
		inbound:   make(map[inviteKey]bool),
		outbound:  make(map[string]string),
	}
}

// Identity returns the identity the controller was created with.
func (c *Controller) Identity() string {
	return c.identity
}

// Events returns the controller's notification channel for the UI layer.
// Slow consumers never stall frame handling; overflow events are dropped
// with a logged warning.
func (c *Controller) Events() <-chan Event {
	return c.events
}

// OpenBroadcast dials the broadcast room and asks for the current
// presence set. It must be called once before chat or invite operations.
func (c *Controller) OpenBroadcast(ctx context.Context) error {
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return ErrClosed
	}

	conn, err := c.dial(ctx, client.Broadcast(), c.identity)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		// Close won the race while the dial was in flight; the
		// connection must not outlive the controller.
		c.mu.Unlock()
		_ = conn.Close()
		return ErrClosed
	}
	c.broadcast = conn
	c.mu.Unlock()

	c.wg.Add(1)
	go c.pump(conn)

	return conn.Send(protocol.Who())
}

// SendChat sends a chat message to the broadcast room.
func (c *Controller) SendChat(text string) error {
	c.mu.RLock()
	conn := c.broadcast
	c.mu.RUnlock()

	if conn == nil {
		log.Printf("drop chat message: broadcast not open")
		return client.ErrNotOpen
	}
	return conn.Send(protocol.Chat(text))
}

// Presence returns a snapshot of the identities currently online in the
// broadcast room.
func (c *Controller) Presence() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, len(c.presence))
	copy(out, c.presence)
	return out
}

// BroadcastLog returns the broadcast room's message log.
func (c *Controller) BroadcastLog() []protocol.Frame {
	c.mu.RLock()
	conn := c.broadcast
	c.mu.RUnlock()

	if conn == nil {
		return nil
	}
	return conn.Log()
}

// Close shuts down the broadcast connection and every open tab. It is
// idempotent. Dials still in flight when Close runs are refused with
// ErrClosed and their connections closed, so no connection ever escapes
// the shutdown.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	conns := make([]RoomConn, 0, len(c.tabs)+1)
	if c.broadcast != nil {
		conns = append(conns, c.broadcast)
	}
	for _, t := range c.tabs {
		conns = append(conns, t.conn)
	}
	c.mu.Unlock()

	for _, conn := range conns {
		_ = conn.Close()
	}
	c.wg.Wait()
	close(c.events)
}

// pump drains one connection's frames, dispatching each in arrival order,
// and reports the close when the channel drains.
func (c *Controller) pump(conn RoomConn) {
	defer c.wg.Done()

	key := conn.Key()
	for f := range conn.Frames() {
		c.handleFrame(key, f)
	}
	c.emit(Event{Kind: EventDisconnected, Room: key})
}

// handleFrame is the tagged dispatch over inbound frame types. Unknown
// variants are dropped with a log line and never terminate the
// connection.
func (c *Controller) handleFrame(key client.Key, f protocol.Frame) {
	if !key.IsBroadcast() {
		switch f.Type {
		case protocol.TypeChat, protocol.TypeSystem:
			c.emit(Event{Kind: EventMessage, Room: key, Frame: f})
		default:
			log.Printf("drop unexpected %s frame on %s", f.Type, key)
		}
		return
	}

	switch f.Type {
	case protocol.TypeChat, protocol.TypeSystem:
		c.emit(Event{Kind: EventMessage, Room: key, Frame: f})
	case protocol.TypeUsers:
		c.replacePresence(f.Users)
	case protocol.TypePrivateInvite, protocol.TypePrivateRequest:
		c.handleInvite(f.From, f.Token)
	case protocol.TypePrivateAccept:
		c.handleAccept(f.From, f.Token)
	case protocol.TypePrivateDeny:
		c.handleDeny(f.From, f.Token)
	default:
		log.Printf("drop unexpected %s frame on %s", f.Type, key)
	}
}

// replacePresence swaps the presence set wholesale; users updates are
// full snapshots, never patches.
func (c *Controller) replacePresence(users []string) {
	c.mu.Lock()
	c.presence = append(c.presence[:0], users...)
	c.mu.Unlock()
	c.emit(Event{Kind: EventPresence, Users: users})
}

func (c *Controller) sendBroadcast(f protocol.Frame) error {
	c.mu.RLock()
	conn := c.broadcast
	c.mu.RUnlock()

	if conn == nil {
		log.Printf("drop %s frame: broadcast not open", f.Type)
		return client.ErrNotOpen
	}
	return conn.Send(f)
}

func (c *Controller) emit(e Event) {
	select {
	case c.events <- e:
	default:
		log.Printf("drop %v event: consumer too slow", e.Kind)
	}
}
