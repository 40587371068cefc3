package api

import (
	"strconv"
	"strings"
	"time"

	"github.com/fathima-sithara/classroom-chat/internal/domain"
	"github.com/fathima-sithara/classroom-chat/internal/service"
	"github.com/gofiber/fiber/v2"
)

type MessageHandler struct {
	svc     *service.MessageService
	timeout time.Duration
}

func NewMessageHandler(svc *service.MessageService, timeout time.Duration) *MessageHandler {
	return &MessageHandler{svc: svc, timeout: timeout}
}

func queryInt(c *fiber.Ctx, key string, def int) int {
	n, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return def
	}
	return n
}

func (h *MessageHandler) List(c *fiber.Ctx) error {
	ident, ctx, cancel, err := caller(c, h.timeout)
	if err != nil {
		return err
	}
	defer cancel()
	page, err := h.svc.List(ctx, ident, c.Params("chatId"), queryInt(c, "page", 1), queryInt(c, "limit", service.DefaultPageSize))
	if err != nil {
		return err
	}
	return JSONSuccess(c, fiber.StatusOK, page)
}

func (h *MessageHandler) Send(c *fiber.Ctx) error {
	var req sendRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	ident, ctx, cancel, err := caller(c, h.timeout)
	if err != nil {
		return err
	}
	defer cancel()
	m, err := h.svc.Send(ctx, ident, c.Params("chatId"), service.SendInput{
		Content:     req.Content,
		MessageType: domain.MessageType(req.MessageType),
		ReplyTo:     req.ReplyTo,
		Attachments: req.attachments(),
	})
	if err != nil {
		return err
	}
	return JSONSuccess(c, fiber.StatusCreated, m)
}

func (h *MessageHandler) Seen(c *fiber.Ctx) error {
	ident, ctx, cancel, err := caller(c, h.timeout)
	if err != nil {
		return err
	}
	defer cancel()
	n, err := h.svc.MarkSeen(ctx, ident, c.Params("chatId"))
	if err != nil {
		return err
	}
	return JSONMessage(c, fiber.StatusOK, "Messages marked as seen", fiber.Map{"updated": n})
}

func (h *MessageHandler) Edit(c *fiber.Ctx) error {
	var req editRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	ident, ctx, cancel, err := caller(c, h.timeout)
	if err != nil {
		return err
	}
	defer cancel()
	m, err := h.svc.Edit(ctx, ident, c.Params("messageId"), req.Content)
	if err != nil {
		return err
	}
	return JSONSuccess(c, fiber.StatusOK, m)
}

func (h *MessageHandler) React(c *fiber.Ctx) error {
	var req reactRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	ident, ctx, cancel, err := caller(c, h.timeout)
	if err != nil {
		return err
	}
	defer cancel()
	res, err := h.svc.React(ctx, ident, c.Params("messageId"), req.Emoji)
	if err != nil {
		return err
	}
	return JSONSuccess(c, fiber.StatusOK, res)
}

func (h *MessageHandler) Star(c *fiber.Ctx) error {
	ident, ctx, cancel, err := caller(c, h.timeout)
	if err != nil {
		return err
	}
	defer cancel()
	res, err := h.svc.Star(ctx, ident, c.Params("messageId"))
	if err != nil {
		return err
	}
	return JSONSuccess(c, fiber.StatusOK, res)
}

func (h *MessageHandler) Pin(c *fiber.Ctx) error {
	ident, ctx, cancel, err := caller(c, h.timeout)
	if err != nil {
		return err
	}
	defer cancel()
	res, err := h.svc.Pin(ctx, ident, c.Params("messageId"))
	if err != nil {
		return err
	}
	return JSONSuccess(c, fiber.StatusOK, res)
}

func (h *MessageHandler) Delete(c *fiber.Ctx) error {
	ident, ctx, cancel, err := caller(c, h.timeout)
	if err != nil {
		return err
	}
	defer cancel()
	forEveryone := strings.EqualFold(c.Query("deleteForEveryone"), "true")
	m, err := h.svc.Delete(ctx, ident, c.Params("messageId"), forEveryone)
	if err != nil {
		return err
	}
	return JSONMessage(c, fiber.StatusOK, "Message deleted", fiber.Map{
		"messageId":         m.ID.Hex(),
		"deleteForEveryone": forEveryone,
	})
}

func (h *MessageHandler) Forward(c *fiber.Ctx) error {
	var req forwardRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	ident, ctx, cancel, err := caller(c, h.timeout)
	if err != nil {
		return err
	}
	defer cancel()
	m, err := h.svc.Forward(ctx, ident, c.Params("messageId"), req.ChatID)
	if err != nil {
		return err
	}
	return JSONSuccess(c, fiber.StatusCreated, m)
}
