package api

import (
	"context"
	"time"

	"github.com/fathima-sithara/classroom-chat/internal/domain"
	"github.com/fathima-sithara/classroom-chat/internal/middleware"
	"github.com/fathima-sithara/classroom-chat/internal/service"
	"github.com/gofiber/fiber/v2"
)

type ChatHandler struct {
	svc     *service.ChatService
	timeout time.Duration
}

func NewChatHandler(svc *service.ChatService, timeout time.Duration) *ChatHandler {
	return &ChatHandler{svc: svc, timeout: timeout}
}

// caller returns the authenticated identity and a request scoped context.
func caller(c *fiber.Ctx, timeout time.Duration) (domain.Identity, context.Context, context.CancelFunc, error) {
	ident, ok := middleware.Identity(c)
	if !ok {
		return domain.Identity{}, nil, nil, fiber.ErrUnauthorized
	}
	ctx, cancel := context.WithTimeout(c.UserContext(), timeout)
	return ident, ctx, cancel, nil
}

func (h *ChatHandler) resolve(chatType domain.ChatType) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ident, ctx, cancel, err := caller(c, h.timeout)
		if err != nil {
			return err
		}
		defer cancel()
		view, err := h.svc.ResolveChat(ctx, ident, c.Params("studentId"), chatType)
		if err != nil {
			return err
		}
		return JSONSuccess(c, fiber.StatusOK, view)
	}
}

// GET /student/:studentId infers the chat type from the caller's role.
func (h *ChatHandler) Resolve() fiber.Handler { return h.resolve("") }

// GET /student-chat/:studentId
func (h *ChatHandler) ResolveStudentChat() fiber.Handler { return h.resolve(domain.ChatTeacherStudent) }

// GET /parent-chat/:studentId
func (h *ChatHandler) ResolveParentChat() fiber.Handler { return h.resolve(domain.ChatTeacherParent) }

func (h *ChatHandler) UserChats(c *fiber.Ctx) error {
	ident, ctx, cancel, err := caller(c, h.timeout)
	if err != nil {
		return err
	}
	defer cancel()
	chats, err := h.svc.ListUserChats(ctx, ident)
	if err != nil {
		return err
	}
	return JSONSuccess(c, fiber.StatusOK, chats)
}

func (h *ChatHandler) Clear(c *fiber.Ctx) error {
	ident, ctx, cancel, err := caller(c, h.timeout)
	if err != nil {
		return err
	}
	defer cancel()
	n, err := h.svc.ClearChat(ctx, ident, c.Params("chatId"))
	if err != nil {
		return err
	}
	return JSONMessage(c, fiber.StatusOK, "Chat cleared", fiber.Map{"cleared": n})
}
