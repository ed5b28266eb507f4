// Package preview keeps the short tail of recent broadcast messages shown
// on the landing view before a user signs in.
package preview

import (
	"fmt"

	"github.com/tokenchat/tokenchat/pkg/protocol"
)

// DefaultCapacity matches the landing view, which shows two lines.
const DefaultCapacity = 2

// Buffer is a bounded FIFO of recent chat frames, oldest evicted first.
// It is not safe for concurrent use; the owning view drives it from one
// goroutine.
type Buffer struct {
	capacity int
	entries  []protocol.Frame
}

// New returns a buffer holding at most capacity messages. A capacity of
// zero or less falls back to DefaultCapacity.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{capacity: capacity}
}

// Push appends a message, evicting from the front while over capacity.
// Non-chat frames are ignored.
func (b *Buffer) Push(f protocol.Frame) {
	if f.Type != protocol.TypeChat {
		return
	}
	b.entries = append(b.entries, f)
	for len(b.entries) > b.capacity {
		b.entries = b.entries[1:]
	}
}

// Len returns the number of buffered messages.
func (b *Buffer) Len() int {
	return len(b.entries)
}

// Render formats the buffered messages oldest first.
func (b *Buffer) Render() []string {
	out := make([]string, 0, len(b.entries))
	for _, f := range b.entries {
		out = append(out, fmt.Sprintf("[%s] %s: %s", f.TS, f.From, f.Text))
	}
	return out
}
