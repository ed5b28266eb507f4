package chat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/tokenchat/tokenchat/internal/client"
	"github.com/tokenchat/tokenchat/pkg/protocol"
)

// fakeConn is an in-memory RoomConn for controller tests.
type fakeConn struct {
	key client.Key

	mu    sync.Mutex
	state client.State
	sent  []protocol.Frame

	frames    chan protocol.Frame
	closeOnce sync.Once
}

func newFakeConn(key client.Key) *fakeConn {
	return &fakeConn{
		key:    key,
		state:  client.StateOpen,
		frames: make(chan protocol.Frame, 16),
	}
}

func (f *fakeConn) Key() client.Key { return f.key }

func (f *fakeConn) State() client.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// setState simulates a connection outage without tearing the conn down.
func (f *fakeConn) setState(s client.State) {
	f.mu.Lock()
	f.state = s
	f.mu.Unlock()
}

func (f *fakeConn) Send(frame protocol.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != client.StateOpen {
		return client.ErrNotOpen
	}
	f.sent = append(f.sent, frame)
	return nil
}

func (f *fakeConn) Frames() <-chan protocol.Frame { return f.frames }

func (f *fakeConn) Log() []protocol.Frame { return nil }

func (f *fakeConn) Close() error {
	f.closeOnce.Do(func() {
		f.mu.Lock()
		f.state = client.StateClosed
		f.mu.Unlock()
		close(f.frames)
	})
	return nil
}

// deliver simulates an inbound frame from the server.
func (f *fakeConn) deliver(frame protocol.Frame) {
	f.frames <- frame
}

func (f *fakeConn) sentFrames() []protocol.Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]protocol.Frame, len(f.sent))
	copy(out, f.sent)
	return out
}

// fakeDialer hands out fakeConns and records every dial.
type fakeDialer struct {
	mu    sync.Mutex
	conns map[string]*fakeConn
	dials map[string]int
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{
		conns: make(map[string]*fakeConn),
		dials: make(map[string]int),
	}
}

func (d *fakeDialer) dial(_ context.Context, key client.Key, _ string) (RoomConn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	conn := newFakeConn(key)
	d.conns[key.String()] = conn
	d.dials[key.String()]++
	return conn, nil
}

func (d *fakeDialer) conn(key client.Key) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns[key.String()]
}

func (d *fakeDialer) dialCount(key client.Key) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials[key.String()]
}

// noDecisions fails the test if a decision is ever requested.
func noDecisions(t *testing.T) DecisionRequester {
	return DecisionFunc(func(d *Decision) {
		t.Errorf("Unexpected decision request for invite %+v", d.Invite())
	})
}

// waitEvent drains the controller's events until one of the wanted kind
// arrives.
func waitEvent(t *testing.T, c *Controller, kind EventKind) Event {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case e := <-c.Events():
			if e.Kind == kind {
				return e
			}
		case <-deadline:
			t.Fatalf("Timeout waiting for %v event", kind)
		}
	}
}

// waitFor polls until cond holds.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Timeout waiting for %s", what)
}
