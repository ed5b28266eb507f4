// Package protocol defines the JSON frame vocabulary shared by the chat
// client and the room server. Every frame on the wire is a single JSON
// object tagged by its "type" field.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Type discriminates the frame variants.
type Type string

const (
	TypeChat           Type = "chat"
	TypeSystem         Type = "system"
	TypeUsers          Type = "users"
	TypeWho            Type = "who"
	TypePrivateRequest Type = "private_request"
	TypePrivateInvite  Type = "private_invite"
	TypePrivateAccept  Type = "private_accept"
	TypePrivateDeny    Type = "private_deny"
)

// String returns the wire representation of the type.
func (t Type) String() string {
	return string(t)
}

// ErrUnknownType is returned by Decode for frames whose type field is
// missing or not part of the protocol. Callers drop such frames and keep
// the connection open.
var ErrUnknownType = errors.New("unknown frame type")

// Frame is a single protocol message. Which fields are populated depends
// on Type; unused fields stay empty and are omitted on the wire.
type Frame struct {
	Type    Type     `json:"type"`
	From    string   `json:"from,omitempty"`
	To      string   `json:"to,omitempty"`
	Text    string   `json:"text,omitempty"`
	Message string   `json:"message,omitempty"`
	Token   string   `json:"token,omitempty"`
	TS      string   `json:"ts,omitempty"`
	Users   []string `json:"users,omitempty"`
}

// Encode serializes the frame to its wire form.
func (f Frame) Encode() ([]byte, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("encode %s frame: %w", f.Type, err)
	}
	return data, nil
}

// Decode parses a wire frame. Malformed JSON and unrecognized types are
// errors; the caller decides whether to drop or surface them.
func Decode(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("decode frame: %w", err)
	}
	switch f.Type {
	case TypeChat, TypeSystem, TypeUsers, TypeWho,
		TypePrivateRequest, TypePrivateInvite, TypePrivateAccept, TypePrivateDeny:
		return f, nil
	default:
		return Frame{}, fmt.Errorf("%w: %q", ErrUnknownType, f.Type)
	}
}

// Timestamp formats t the way frames carry timestamps.
func Timestamp(t time.Time) string {
	return t.Format("15:04:05")
}

// Chat builds an outbound chat frame.
func Chat(text string) Frame {
	return Frame{Type: TypeChat, Text: text}
}

// Who builds a presence query frame.
func Who() Frame {
	return Frame{Type: TypeWho}
}

// PrivateRequest builds a private chat request to another identity. An
// empty token asks the server to mint one.
func PrivateRequest(to, token string) Frame {
	return Frame{Type: TypePrivateRequest, To: to, Token: token}
}

// PrivateAccept builds the acceptance reply for an invite.
func PrivateAccept(to, token string) Frame {
	return Frame{Type: TypePrivateAccept, To: to, Token: token}
}

// PrivateDeny builds the denial reply for an invite.
func PrivateDeny(to, token string) Frame {
	return Frame{Type: TypePrivateDeny, To: to, Token: token}
}
