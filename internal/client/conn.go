// Package client implements the room connection: one duplex websocket
// channel to either the broadcast room or a single private room.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/url"
	"sync"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/tokenchat/tokenchat/pkg/protocol"
)

// State tracks the connection lifecycle. Closed is terminal; a connection
// never reconnects on its own.
type State int

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ErrNotOpen is returned by Send when the connection is not open.
var ErrNotOpen = errors.New("connection is not open")

const frameBuffer = 16

// Conn is one live room connection. Inbound frames are decoded and
// delivered in arrival order on Frames(); chat and system frames are also
// appended to the connection's message log. When the connection closes,
// for any reason, a local system notice is appended to the log, Frames()
// is closed, and the state becomes Closed.
type Conn struct {
	key      Key
	identity string

	conn net.Conn
	rw   io.ReadWriter

	frames chan protocol.Frame
	done   chan struct{}

	mu    sync.RWMutex
	state State
	log   []protocol.Frame

	// writeMu serializes frame writes; wsutil writes header and payload
	// separately, so concurrent senders would interleave bytes.
	writeMu sync.Mutex

	closeOnce sync.Once
	wg        sync.WaitGroup
}

// Dial opens a connection to the room named by key on behalf of identity.
// baseURL is the server root, e.g. "ws://192.168.1.10:8000".
func Dial(ctx context.Context, baseURL string, key Key, identity string) (*Conn, error) {
	endpoint := fmt.Sprintf("%s/ws/%s/%s", baseURL, url.PathEscape(key.Room()), url.PathEscape(identity))

	c := &Conn{
		key:      key,
		identity: identity,
		frames:   make(chan protocol.Frame, frameBuffer),
		done:     make(chan struct{}),
		state:    StateConnecting,
	}

	conn, br, _, err := ws.Dialer{}.Dial(ctx, endpoint)
	if err != nil {
		c.setState(StateClosed)
		return nil, fmt.Errorf("dial %s: %w", key, err)
	}

	c.conn = conn
	c.rw = conn
	if br != nil {
		// The dialer may have buffered frames past the handshake.
		c.rw = struct {
			io.Reader
			io.Writer
		}{br, conn}
	}
	c.setState(StateOpen)

	c.wg.Add(1)
	go c.readLoop()

	return c, nil
}

// Key returns the room key this connection is bound to.
func (c *Conn) Key() Key {
	return c.key
}

// Identity returns the identity the connection was opened with.
func (c *Conn) Identity() string {
	return c.identity
}

// State returns the current connection state.
func (c *Conn) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Frames returns the channel of decoded inbound frames. The channel is
// closed when the connection closes.
func (c *Conn) Frames() <-chan protocol.Frame {
	return c.frames
}

// Log returns a snapshot of the connection's message log: inbound chat and
// system frames in arrival order, plus the local disconnect notice once
// the connection has closed.
func (c *Conn) Log() []protocol.Frame {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]protocol.Frame, len(c.log))
	copy(out, c.log)
	return out
}

// Send encodes and writes a frame. Sending on a connection that is not
// open is a logged no-op reported as ErrNotOpen.
func (c *Conn) Send(f protocol.Frame) error {
	if c.State() != StateOpen {
		log.Printf("drop %s frame to %s: %v", f.Type, c.key, ErrNotOpen)
		return ErrNotOpen
	}
	data, err := f.Encode()
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	err = wsutil.WriteClientText(c.conn, data)
	c.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("send to %s: %w", c.key, err)
	}
	return nil
}

// Close shuts the connection down. It is idempotent, and safe to call
// concurrently with the read loop; explicit close, server close, and
// network failure all surface identically through the read loop.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		_ = wsutil.WriteClientMessage(c.conn, ws.OpClose, nil)
		c.writeMu.Unlock()
		_ = c.conn.Close()
	})
	c.wg.Wait()
	return nil
}

func (c *Conn) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Conn) readLoop() {
	defer c.wg.Done()
	defer c.finish()

	for {
		data, err := wsutil.ReadServerText(c.rw)
		if err != nil {
			select {
			case <-c.done:
			default:
				log.Printf("connection to %s lost: %v", c.key, err)
			}
			return
		}

		frame, err := protocol.Decode(data)
		if err != nil {
			log.Printf("drop malformed frame on %s: %v", c.key, err)
			continue
		}

		if frame.Type == protocol.TypeChat || frame.Type == protocol.TypeSystem {
			c.appendLog(frame)
		}

		select {
		case c.frames <- frame:
		case <-c.done:
			return
		}
	}
}

// finish records the terminal state: Closed, a local disconnect notice in
// the log, and a closed frame channel.
func (c *Conn) finish() {
	c.mu.Lock()
	c.state = StateClosed
	c.log = append(c.log, protocol.Frame{
		Type:    protocol.TypeSystem,
		Message: fmt.Sprintf("Disconnected from %s.", c.key),
	})
	c.mu.Unlock()
	close(c.frames)
}

func (c *Conn) appendLog(f protocol.Frame) {
	c.mu.Lock()
	c.log = append(c.log, f)
	c.mu.Unlock()
}
