package client

// Key identifies the room a connection is bound to: the single broadcast
// room or one private room named by its token.
type Key struct {
	token string
}

// Broadcast returns the key of the shared broadcast room.
func Broadcast() Key {
	return Key{}
}

// Private returns the key of the private room named by token.
func Private(token string) Key {
	return Key{token: token}
}

// IsBroadcast reports whether the key names the broadcast room.
func (k Key) IsBroadcast() bool {
	return k.token == ""
}

// Token returns the private room token, or "" for the broadcast room.
func (k Key) Token() string {
	return k.token
}

// Room returns the path segment the server expects for this key.
func (k Key) Room() string {
	if k.IsBroadcast() {
		return "public"
	}
	return k.token
}

// String returns a human-readable room name for logs and notices.
func (k Key) String() string {
	if k.IsBroadcast() {
		return "public"
	}
	return "private:" + k.token
}
