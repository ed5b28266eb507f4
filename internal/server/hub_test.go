package server

import "testing"

func TestHub_TokenLifecycle(t *testing.T) {
	h := NewHub()

	tok := h.CreateToken()
	if tok == "" {
		t.Fatal("CreateToken returned empty token")
	}

	if room, ok := h.resolveRoom(tok); !ok || room != "room_"+tok {
		t.Errorf("Expected token to resolve to its room, got %q (%v)", room, ok)
	}

	found := false
	for _, listed := range h.Tokens() {
		if listed == tok {
			found = true
		}
	}
	if !found {
		t.Errorf("Token %q missing from %v", tok, h.Tokens())
	}

	if !h.DeleteToken(tok) {
		t.Error("DeleteToken should succeed for a known token")
	}
	if h.DeleteToken(tok) {
		t.Error("Second DeleteToken should report false")
	}
	if _, ok := h.resolveRoom(tok); ok {
		t.Error("Deleted token should no longer resolve")
	}
}

func TestHub_ResolveRoom(t *testing.T) {
	h := NewHub()

	if room, ok := h.resolveRoom("public"); !ok || room != "public" {
		t.Errorf("public should always resolve, got %q (%v)", room, ok)
	}
	if _, ok := h.resolveRoom("ffffff"); ok {
		t.Error("Unknown token should not resolve")
	}
}
