package chat

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/tokenchat/tokenchat/pkg/protocol"
)

// ErrResolved is returned when a decision is accepted or denied twice.
var ErrResolved = errors.New("invite already resolved")

// ErrRequestPending is returned when a private request to the same user
// is already outstanding.
var ErrRequestPending = errors.New("private request already pending")

// Invite identifies one private-chat negotiation.
type Invite struct {
	From  string
	To    string
	Token string
}

// inviteKey coalesces duplicate inbound invites while one is pending.
type inviteKey struct {
	from  string
	token string
}

// DecisionRequester is the asynchronous prompt primitive: the controller
// hands it a pending decision and the UI layer resolves it later, from
// any goroutine. The controller never assumes synchronous user input.
type DecisionRequester interface {
	RequestDecision(d *Decision)
}

// DecisionFunc adapts a function to DecisionRequester.
type DecisionFunc func(d *Decision)

// RequestDecision implements DecisionRequester.
func (f DecisionFunc) RequestDecision(d *Decision) {
	f(d)
}

// Decision is one pending inbound invite. Exactly one of Accept or Deny
// may be called; either resolves the invite terminally.
type Decision struct {
	invite Invite
	c      *Controller

	mu       sync.Mutex
	resolved bool
}

// Invite returns the negotiation this decision belongs to.
func (d *Decision) Invite() Invite {
	return d.invite
}

// Accept accepts the invite: the acceptance is relayed to the requester
// over the broadcast connection and a tab is opened for the token. A
// reply that never leaves the broadcast connection re-arms the decision
// so the user can retry.
func (d *Decision) Accept(ctx context.Context) error {
	if err := d.resolve(); err != nil {
		return err
	}
	if err := d.c.sendBroadcast(protocol.PrivateAccept(d.invite.From, d.invite.Token)); err != nil {
		d.rearm()
		return err
	}
	return d.c.EnsureTab(ctx, d.invite.Token)
}

// Deny denies the invite and discards it. A failed send re-arms the
// decision like Accept.
func (d *Decision) Deny() error {
	if err := d.resolve(); err != nil {
		return err
	}
	if err := d.c.sendBroadcast(protocol.PrivateDeny(d.invite.From, d.invite.Token)); err != nil {
		d.rearm()
		return err
	}
	return nil
}

// resolve marks the decision terminal exactly once and clears the
// pending entry so a future invite for the same pair prompts again.
func (d *Decision) resolve() error {
	d.mu.Lock()
	if d.resolved {
		d.mu.Unlock()
		log.Printf("ignore duplicate resolution of invite from %s (token %s): %v",
			d.invite.From, d.invite.Token, ErrResolved)
		return ErrResolved
	}
	d.resolved = true
	d.mu.Unlock()

	d.c.mu.Lock()
	delete(d.c.inbound, inviteKey{from: d.invite.From, token: d.invite.Token})
	d.c.mu.Unlock()
	return nil
}

// rearm undoes a resolution whose reply was never sent: the decision
// becomes resolvable again and the pending key is restored so duplicate
// invites stay coalesced in the meantime.
func (d *Decision) rearm() {
	d.c.mu.Lock()
	d.c.inbound[inviteKey{from: d.invite.From, token: d.invite.Token}] = true
	d.c.mu.Unlock()

	d.mu.Lock()
	d.resolved = false
	d.mu.Unlock()
}

// RequestPrivate asks another identity for a private chat over the
// broadcast connection. An empty token lets the server mint one. A
// second request to the same user while one is pending is coalesced.
func (c *Controller) RequestPrivate(to, token string) error {
	c.mu.Lock()
	if _, ok := c.outbound[to]; ok {
		c.mu.Unlock()
		log.Printf("coalesce private request to %s: %v", to, ErrRequestPending)
		return ErrRequestPending
	}
	c.outbound[to] = token
	c.mu.Unlock()

	if err := c.sendBroadcast(protocol.PrivateRequest(to, token)); err != nil {
		c.mu.Lock()
		delete(c.outbound, to)
		c.mu.Unlock()
		return err
	}
	return nil
}

// handleInvite processes an inbound invite frame. Duplicates for a
// pending (from, token) pair are coalesced so the user is prompted at
// most once per negotiation.
func (c *Controller) handleInvite(from, token string) {
	if from == "" || token == "" {
		log.Printf("drop invite with missing fields (from=%q token=%q)", from, token)
		return
	}

	key := inviteKey{from: from, token: token}
	c.mu.Lock()
	if c.inbound[key] {
		c.mu.Unlock()
		log.Printf("coalesce duplicate invite from %s (token %s)", from, token)
		return
	}
	c.inbound[key] = true
	c.mu.Unlock()

	d := &Decision{
		invite: Invite{From: from, To: c.identity, Token: token},
		c:      c,
	}
	// The requester may block on user input; never stall the frame pump.
	go c.decisions.RequestDecision(d)
}

// handleAccept processes the counterpart accepting an outbound request:
// the requester transitions into the private room for the token.
func (c *Controller) handleAccept(from, token string) {
	c.mu.Lock()
	requested, ok := c.outbound[from]
	if ok {
		delete(c.outbound, from)
	}
	c.mu.Unlock()

	if !ok {
		log.Printf("drop unsolicited private_accept from %s", from)
		return
	}
	if token == "" {
		token = requested
	}
	if token == "" {
		log.Printf("drop private_accept from %s without a token", from)
		return
	}

	inv := Invite{From: c.identity, To: from, Token: token}
	if err := c.EnsureTab(context.Background(), token); err != nil {
		return
	}
	c.emit(Event{Kind: EventInviteAccepted, Invite: inv})
}

// handleDeny discards a pending outbound request and notifies the UI.
func (c *Controller) handleDeny(from, token string) {
	c.mu.Lock()
	_, ok := c.outbound[from]
	if ok {
		delete(c.outbound, from)
	}
	c.mu.Unlock()

	if !ok {
		log.Printf("drop unsolicited private_deny from %s", from)
		return
	}
	c.emit(Event{Kind: EventInviteDenied, Invite: Invite{From: c.identity, To: from, Token: token}})
}
