package server

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"

	"github.com/tokenchat/tokenchat/pkg/protocol"
	"github.com/tokenchat/tokenchat/pkg/token"
)

const (
	publicRoom = "public"
	outBuffer  = 16
)

// member is one websocket participant in one room.
type member struct {
	id       string
	identity string
	room     string
	conn     *websocket.Conn
	out      chan []byte

	closeOnce sync.Once
}

func (m *member) enqueue(data []byte) {
	select {
	case m.out <- data:
	default:
		log.Printf("drop frame for %s in %s: send buffer full", m.identity, m.room)
	}
}

func (m *member) shutdown() {
	m.closeOnce.Do(func() { close(m.out) })
}

// Hub owns the room membership, the token directory, and the public-room
// signaling map used to relay private invites.
type Hub struct {
	mu          sync.Mutex
	rooms       map[string][]*member
	tokens      map[string]string
	publicUsers map[string]*member
}

// NewHub returns a hub with the public room and an empty token directory.
func NewHub() *Hub {
	return &Hub{
		rooms:       map[string][]*member{publicRoom: nil},
		tokens:      make(map[string]string),
		publicUsers: make(map[string]*member),
	}
}

// CreateToken mints a fresh token and registers its room.
func (h *Hub) CreateToken() string {
	tok := token.Generate()
	h.mu.Lock()
	h.registerToken(tok)
	h.mu.Unlock()
	return tok
}

// Tokens lists the known tokens.
func (h *Hub) Tokens() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.tokens))
	for tok := range h.tokens {
		out = append(out, tok)
	}
	return out
}

// DeleteToken forgets a token. New joins for it are refused; members
// already in the room stay until they disconnect.
func (h *Hub) DeleteToken(tok string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.tokens[tok]; !ok {
		return false
	}
	delete(h.tokens, tok)
	return true
}

// registerToken must be called with the mutex held.
func (h *Hub) registerToken(tok string) string {
	room := "room_" + tok
	h.tokens[tok] = room
	if _, ok := h.rooms[room]; !ok {
		h.rooms[room] = nil
	}
	return room
}

// resolveRoom maps the path segment to an internal room name.
func (h *Hub) resolveRoom(segment string) (string, bool) {
	if segment == publicRoom {
		return publicRoom, true
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.tokens[segment]
	return room, ok
}

// HandleConn runs one websocket session to completion. segment is the
// raw room path segment ("public" or a token).
func (h *Hub) HandleConn(conn *websocket.Conn, segment, identity string) {
	room, ok := h.resolveRoom(segment)
	if !ok {
		notice, _ := protocol.Frame{Type: protocol.TypeSystem, Message: "Invalid room/token"}.Encode()
		_ = conn.WriteMessage(websocket.TextMessage, notice)
		_ = conn.Close()
		return
	}

	m := &member{
		id:       uuid.NewString(),
		identity: identity,
		room:     room,
		conn:     conn,
		out:      make(chan []byte, outBuffer),
	}

	h.join(m)
	go m.writePump()
	h.readLoop(m)
	h.leave(m)
}

func (m *member) writePump() {
	for data := range m.out {
		if err := m.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
	_ = m.conn.Close()
}

func (h *Hub) join(m *member) {
	h.mu.Lock()
	h.rooms[m.room] = append(h.rooms[m.room], m)
	if m.room == publicRoom {
		h.publicUsers[m.identity] = m
	}
	h.mu.Unlock()

	if m.room == publicRoom {
		h.broadcastUsers()
	}
	h.broadcast(m.room, protocol.Frame{
		Type:    protocol.TypeSystem,
		Message: m.identity + " joined " + m.room,
		TS:      protocol.Timestamp(time.Now()),
	})
}

func (h *Hub) leave(m *member) {
	h.mu.Lock()
	members := h.rooms[m.room]
	for i, other := range members {
		if other == m {
			h.rooms[m.room] = append(members[:i], members[i+1:]...)
			break
		}
	}
	if m.room == publicRoom && h.publicUsers[m.identity] == m {
		delete(h.publicUsers, m.identity)
	}
	h.mu.Unlock()

	m.shutdown()

	if m.room == publicRoom {
		h.broadcastUsers()
	}
	h.broadcast(m.room, protocol.Frame{
		Type:    protocol.TypeSystem,
		Message: m.identity + " left " + m.room,
		TS:      protocol.Timestamp(time.Now()),
	})
}

func (h *Hub) readLoop(m *member) {
	for {
		kind, data, err := m.conn.ReadMessage()
		if err != nil {
			return
		}
		if kind != websocket.TextMessage {
			continue
		}

		frame, err := protocol.Decode(data)
		if err != nil {
			// raw text from a bare client is treated as chat
			if !json.Valid(data) {
				h.broadcastChat(m, string(data))
			} else {
				log.Printf("ignore frame from %s: %v", m.identity, err)
			}
			continue
		}

		h.dispatch(m, frame)
	}
}

func (h *Hub) dispatch(m *member, f protocol.Frame) {
	switch f.Type {
	case protocol.TypeChat:
		h.broadcastChat(m, f.Text)
	case protocol.TypeWho:
		h.sendUsers(m)
	case protocol.TypePrivateRequest:
		h.relayRequest(m, f)
	case protocol.TypePrivateAccept:
		h.relay(m, f, protocol.TypePrivateAccept)
	case protocol.TypePrivateDeny:
		h.relay(m, f, protocol.TypePrivateDeny)
	default:
		log.Printf("ignore %s frame from %s", f.Type, m.identity)
	}
}

func (h *Hub) broadcastChat(m *member, text string) {
	h.broadcast(m.room, protocol.Frame{
		Type: protocol.TypeChat,
		From: m.identity,
		Text: text,
		TS:   protocol.Timestamp(time.Now()),
	})
}

// relayRequest forwards a private request from the public room to the
// target identity as an invite, minting a token when the requester left
// it empty. Offline targets are dropped silently; the requester decides
// how long to wait.
func (h *Hub) relayRequest(m *member, f protocol.Frame) {
	if m.room != publicRoom {
		return
	}

	tok := f.Token
	h.mu.Lock()
	if tok == "" {
		tok = token.Generate()
	}
	if _, ok := h.tokens[tok]; !ok {
		h.registerToken(tok)
	}
	target := h.publicUsers[f.To]
	h.mu.Unlock()

	if target == nil {
		log.Printf("drop private request from %s: %s is offline", m.identity, f.To)
		return
	}

	invite, err := protocol.Frame{
		Type:  protocol.TypePrivateInvite,
		From:  m.identity,
		Token: tok,
		TS:    protocol.Timestamp(time.Now()),
	}.Encode()
	if err != nil {
		return
	}
	target.enqueue(invite)
}

// relay forwards an accept or deny back through the public signaling map.
func (h *Hub) relay(m *member, f protocol.Frame, kind protocol.Type) {
	if m.room != publicRoom {
		return
	}

	h.mu.Lock()
	target := h.publicUsers[f.To]
	h.mu.Unlock()
	if target == nil {
		log.Printf("drop %s from %s: %s is offline", kind, m.identity, f.To)
		return
	}

	data, err := protocol.Frame{
		Type:  kind,
		From:  m.identity,
		Token: f.Token,
		TS:    protocol.Timestamp(time.Now()),
	}.Encode()
	if err != nil {
		return
	}
	target.enqueue(data)
}

func (h *Hub) sendUsers(m *member) {
	data, err := protocol.Frame{Type: protocol.TypeUsers, Users: h.roomUsers(m.room)}.Encode()
	if err != nil {
		return
	}
	m.enqueue(data)
}

// broadcastUsers pushes the public presence set to everyone in the
// public room; the set is always a full replacement.
func (h *Hub) broadcastUsers() {
	h.broadcast(publicRoom, protocol.Frame{Type: protocol.TypeUsers, Users: h.roomUsers(publicRoom)})
}

func (h *Hub) roomUsers(room string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	users := make([]string, 0, len(h.rooms[room]))
	for _, m := range h.rooms[room] {
		users = append(users, m.identity)
	}
	return users
}

func (h *Hub) broadcast(room string, f protocol.Frame) {
	data, err := f.Encode()
	if err != nil {
		return
	}

	h.mu.Lock()
	members := make([]*member, len(h.rooms[room]))
	copy(members, h.rooms[room])
	h.mu.Unlock()

	for _, m := range members {
		m.enqueue(data)
	}
}
