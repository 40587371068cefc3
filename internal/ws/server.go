package ws

import (
	"context"
	"time"

	"github.com/fathima-sithara/classroom-chat/internal/domain"
	"github.com/fathima-sithara/classroom-chat/internal/metrics"
	"github.com/fathima-sithara/classroom-chat/internal/middleware"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// ChatAuthorizer decides whether a user may listen to a chat.
type ChatAuthorizer interface {
	CanJoin(ctx context.Context, userID primitive.ObjectID, rawChatID string) error
}

type Server struct {
	hub   *Hub
	auth  middleware.TokenValidator
	chats ChatAuthorizer
	log   *zap.Logger
}

func NewServer(hub *Hub, auth middleware.TokenValidator, chats ChatAuthorizer, log *zap.Logger) *Server {
	return &Server{hub: hub, auth: auth, chats: chats, log: log}
}

// Upgrade authenticates the token query parameter before the handshake.
// Browsers cannot set headers on websocket requests.
func (s *Server) Upgrade() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		claims, err := s.auth.Validate(c.Query("token"))
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"success": false, "message": "invalid token"})
		}
		ident, ok := middleware.IdentityFromClaims(claims)
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"success": false, "message": "invalid token subject"})
		}
		c.Locals(middleware.IdentityKey, ident)
		return c.Next()
	}
}

func (s *Server) Handler() fiber.Handler {
	return websocket.New(s.serve)
}

func (s *Server) serve(conn *websocket.Conn) {
	ident, ok := conn.Locals(middleware.IdentityKey).(domain.Identity)
	if !ok {
		_ = conn.Close()
		return
	}
	client := newClient(conn, ident.UserID.Hex())
	s.hub.Subscribe(client.userID, client)
	metrics.Connections.Inc()
	defer func() {
		s.hub.Remove(client)
		metrics.Connections.Dec()
	}()

	if chatID := conn.Query("chat_id"); chatID != "" {
		s.join(client, ident, chatID)
	}

	done := make(chan struct{})
	go client.writePump(done)
	client.readPump(func(in inbound) {
		switch in.Type {
		case "join":
			s.join(client, ident, in.ChatID)
		case "leave":
			s.hub.Unsubscribe(in.ChatID, client)
			client.reply(outbound{Type: "left", ChatID: in.ChatID})
		case "ping":
			client.reply(outbound{Type: "pong"})
		default:
			client.reply(outbound{Type: "error", Message: "unknown frame type"})
		}
	})
	close(done)
}

func (s *Server) join(c *Client, ident domain.Identity, chatID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.chats.CanJoin(ctx, ident.UserID, chatID); err != nil {
		s.log.Debug("join refused", zap.String("user_id", c.userID), zap.String("chat_id", chatID), zap.Error(err))
		c.reply(outbound{Type: "error", ChatID: chatID, Message: "cannot join chat"})
		return
	}
	s.hub.Subscribe(chatID, c)
	c.reply(outbound{Type: "joined", ChatID: chatID})
}
