package chat

import (
	"github.com/tokenchat/tokenchat/internal/client"
	"github.com/tokenchat/tokenchat/pkg/protocol"
)

// EventKind discriminates controller notifications.
type EventKind int

const (
	// EventMessage carries a chat or system frame for a room.
	EventMessage EventKind = iota
	// EventPresence carries the replaced broadcast presence set.
	EventPresence
	// EventTabOpened reports a new private tab; Room names it.
	EventTabOpened
	// EventTabClosed reports a removed private tab.
	EventTabClosed
	// EventDisconnected reports that a room connection closed.
	EventDisconnected
	// EventInviteAccepted reports the counterpart accepting an outbound
	// private request; Invite carries the negotiated token.
	EventInviteAccepted
	// EventInviteDenied reports the counterpart denying an outbound
	// private request.
	EventInviteDenied
)

// String returns the event kind name.
func (k EventKind) String() string {
	switch k {
	case EventMessage:
		return "message"
	case EventPresence:
		return "presence"
	case EventTabOpened:
		return "tab_opened"
	case EventTabClosed:
		return "tab_closed"
	case EventDisconnected:
		return "disconnected"
	case EventInviteAccepted:
		return "invite_accepted"
	case EventInviteDenied:
		return "invite_denied"
	default:
		return "unknown"
	}
}

// Event is a controller notification for the UI layer. Fields beyond
// Kind are populated per kind.
type Event struct {
	Kind   EventKind
	Room   client.Key
	Frame  protocol.Frame
	Users  []string
	Invite Invite
}
