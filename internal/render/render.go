// Package render turns protocol frames into display nodes safe to insert
// into a markup document. Escaping user-supplied text here is a security
// property, not cosmetics.
package render

import (
	"fmt"
	"html"

	"github.com/tokenchat/tokenchat/pkg/protocol"
)

// Variant selects the visual treatment of a node.
type Variant string

const (
	VariantSelf   Variant = "self"
	VariantOther  Variant = "other"
	VariantSystem Variant = "system"
)

// Node is a renderer output: escaped body text plus a metadata line.
type Node struct {
	Variant Variant
	Body    string
	Meta    string
}

// Message renders a chat frame for the given local identity. Both the
// body and the sender name are escaped; the timestamp is server-minted
// and passed through.
func Message(f protocol.Frame, localIdentity string) Node {
	variant := VariantOther
	if f.From == localIdentity {
		variant = VariantSelf
	}
	return Node{
		Variant: variant,
		Body:    html.EscapeString(f.Text),
		Meta:    fmt.Sprintf("%s • %s", html.EscapeString(f.From), f.TS),
	}
}

// System renders a system notice.
func System(message string) Node {
	return Node{
		Variant: VariantSystem,
		Body:    html.EscapeString(message),
	}
}
