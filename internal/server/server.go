// Package server is the room-routing collaborator the client controller
// talks to: websocket rooms with public-room signaling relay, plus the
// token directory REST endpoints. It ships with the repo so the client
// is runnable and testable end to end on a LAN.
package server

import (
	"fmt"
	"net"
	"net/url"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

// Server wires the hub into a fiber app.
type Server struct {
	app      *fiber.App
	hub      *Hub
	listener net.Listener
}

// New builds the app and its routes.
func New() *Server {
	s := &Server{
		app: fiber.New(fiber.Config{DisableStartupMessage: true}),
		hub: NewHub(),
	}

	s.app.Post("/api/create_token", s.handleCreateToken)
	s.app.Get("/api/tokens", s.handleListTokens)
	s.app.Delete("/api/tokens/:token", s.handleDeleteToken)

	s.app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	s.app.Get("/ws/:room/:identity", websocket.New(s.handleWS))

	return s
}

// Start listens on addr and serves until Stop. Use ":0" to pick a free
// port and read it back from Addr.
func (s *Server) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	s.listener = listener
	return s.app.Listener(listener)
}

// Stop shuts the server down gracefully.
func (s *Server) Stop() error {
	return s.app.Shutdown()
}

// Addr returns the bound listen address.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Hub exposes the room hub, mainly for tests.
func (s *Server) Hub() *Hub {
	return s.hub
}

func (s *Server) handleCreateToken(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"token": s.hub.CreateToken()})
}

func (s *Server) handleListTokens(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"tokens": s.hub.Tokens()})
}

func (s *Server) handleDeleteToken(c *fiber.Ctx) error {
	tok := c.Params("token")
	if !s.hub.DeleteToken(tok) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "unknown token"})
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleWS(conn *websocket.Conn) {
	room := conn.Params("room")
	identity, err := url.PathUnescape(conn.Params("identity"))
	if err != nil || identity == "" {
		_ = conn.Close()
		return
	}
	s.hub.HandleConn(conn, room, identity)
}
