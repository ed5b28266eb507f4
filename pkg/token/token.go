// Package token mints the opaque identifiers that name private rooms.
package token

import (
	"crypto/rand"
	"encoding/hex"
)

// shortBytes keeps tokens easy to share out of band (6 hex characters).
const shortBytes = 3

// Generate returns a random short hex token, e.g. "a3f9b2".
func Generate() string {
	b := make([]byte, shortBytes)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
