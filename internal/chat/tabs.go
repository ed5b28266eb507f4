package chat

import (
	"context"
	"errors"
	"log"

	"github.com/tokenchat/tokenchat/internal/client"
	"github.com/tokenchat/tokenchat/pkg/protocol"
)

var (
	// ErrNoSuchTab is returned when an operation names a token with no tab.
	ErrNoSuchTab = errors.New("no tab for token")
	// ErrNoActiveTab is returned by SendPrivate when no tab is focused.
	ErrNoActiveTab = errors.New("no active tab")
)

// tab binds a private-room token to its single live connection.
type tab struct {
	token string
	conn  RoomConn
}

// TabInfo is a UI-facing snapshot of one tab.
type TabInfo struct {
	Token  string
	State  client.State
	Active bool
}

// EnsureTab makes sure a tab exists for token and focuses it. If the tab
// already exists this is a pure focus switch; otherwise a new private
// connection is dialed and bound. At most one connection per token ever
// exists because the tab map is the only way to open one.
func (c *Controller) EnsureTab(ctx context.Context, token string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if _, ok := c.tabs[token]; ok {
		c.active = token
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	// Dial outside the lock: handlers triggered mid-dial may touch the
	// registry themselves.
	conn, err := c.dial(ctx, client.Private(token), c.identity)
	if err != nil {
		log.Printf("open private room %s: %v", token, err)
		return err
	}

	c.mu.Lock()
	if c.closed {
		// Close ran while the dial was in flight. Registering now would
		// add a connection the shutdown never sees.
		c.mu.Unlock()
		_ = conn.Close()
		return ErrClosed
	}
	if _, ok := c.tabs[token]; ok {
		// Lost the race with a concurrent EnsureTab for the same token;
		// the existing connection wins.
		c.active = token
		c.mu.Unlock()
		_ = conn.Close()
		return nil
	}
	c.tabs[token] = &tab{token: token, conn: conn}
	c.order = append(c.order, token)
	c.active = token
	c.mu.Unlock()

	c.wg.Add(1)
	go c.pump(conn)

	c.emit(Event{Kind: EventTabOpened, Room: client.Private(token)})
	return nil
}

// SwitchTo re-focuses an existing tab without touching any connection.
func (c *Controller) SwitchTo(token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.tabs[token]; !ok {
		log.Printf("switch to %s: %v", token, ErrNoSuchTab)
		return ErrNoSuchTab
	}
	c.active = token
	return nil
}

// CloseTab closes the tab's connection and removes the tab. Closing the
// focused tab leaves no tab focused until the user selects another.
func (c *Controller) CloseTab(token string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	t, ok := c.tabs[token]
	if !ok {
		c.mu.Unlock()
		log.Printf("close tab %s: %v", token, ErrNoSuchTab)
		return ErrNoSuchTab
	}
	delete(c.tabs, token)
	for i, tok := range c.order {
		if tok == token {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	if c.active == token {
		c.active = ""
	}
	c.mu.Unlock()

	_ = t.conn.Close()
	c.emit(Event{Kind: EventTabClosed, Room: client.Private(token)})
	return nil
}

// SendPrivate sends a chat message to the focused private room. With no
// focused tab this is a logged no-op reported as ErrNoActiveTab.
func (c *Controller) SendPrivate(text string) error {
	c.mu.RLock()
	t := c.tabs[c.active]
	c.mu.RUnlock()

	if t == nil {
		log.Printf("drop private message: %v", ErrNoActiveTab)
		return ErrNoActiveTab
	}
	return t.conn.Send(protocol.Chat(text))
}

// ActiveTab returns the focused token, or "" when no tab is focused.
func (c *Controller) ActiveTab() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.active
}

// Tabs returns tab snapshots in creation order.
func (c *Controller) Tabs() []TabInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]TabInfo, 0, len(c.order))
	for _, token := range c.order {
		t := c.tabs[token]
		out = append(out, TabInfo{
			Token:  token,
			State:  t.conn.State(),
			Active: token == c.active,
		})
	}
	return out
}

// TabLog returns the message log of the tab's connection.
func (c *Controller) TabLog(token string) []protocol.Frame {
	c.mu.RLock()
	t := c.tabs[token]
	c.mu.RUnlock()

	if t == nil {
		return nil
	}
	return t.conn.Log()
}
