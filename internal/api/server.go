package api

import (
	"time"

	"github.com/fathima-sithara/classroom-chat/internal/middleware"
	"github.com/fathima-sithara/classroom-chat/internal/service"
	"github.com/fathima-sithara/classroom-chat/internal/ws"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type Deps struct {
	Chats    *service.ChatService
	Messages *service.MessageService
	Uploads  *service.UploadService
	Auth     middleware.TokenValidator
	// optional
	IPLimiter   *middleware.IPRateLimiter
	SendLimiter fiber.Handler
	WS          *ws.Server

	Log            *zap.Logger
	BodyLimit      int
	RequestTimeout time.Duration
}

// NewApp wires every route of the chat service.
func NewApp(d Deps) *fiber.App {
	if d.RequestTimeout == 0 {
		d.RequestTimeout = 10 * time.Second
	}
	app := fiber.New(fiber.Config{
		AppName:      "classroom-chat",
		BodyLimit:    d.BodyLimit,
		ErrorHandler: ErrorHandler(d.Log),
	})
	app.Use(recover.New())
	app.Use(middleware.RequestLogger(d.Log))

	app.Get("/healthz", func(c *fiber.Ctx) error { return c.SendString("ok") })
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	if d.WS != nil {
		app.Get("/ws", d.WS.Upgrade(), d.WS.Handler())
	}

	chats := NewChatHandler(d.Chats, d.RequestTimeout)
	msgs := NewMessageHandler(d.Messages, d.RequestTimeout)

	api := app.Group("/api/chat")
	if d.IPLimiter != nil {
		api.Use(d.IPLimiter.Handler())
	}
	api.Use(middleware.RequireAuth(d.Auth))

	send := []fiber.Handler{}
	if d.SendLimiter != nil {
		send = append(send, d.SendLimiter)
	}
	send = append(send, msgs.Send)

	api.Get("/student/:studentId", chats.Resolve())
	api.Get("/student-chat/:studentId", chats.ResolveStudentChat())
	api.Get("/parent-chat/:studentId", chats.ResolveParentChat())
	api.Get("/user-chats", chats.UserChats)
	if d.Uploads != nil {
		up := NewUploadHandler(d.Uploads, d.RequestTimeout)
		api.Post("/upload", up.Upload)
		api.Get("/upload/:id/url", up.URL)
	}

	api.Post("/message/:messageId/react", msgs.React)
	api.Put("/message/:messageId/edit", msgs.Edit)
	api.Post("/message/:messageId/star", msgs.Star)
	api.Post("/message/:messageId/pin", msgs.Pin)
	api.Post("/message/:messageId/forward", msgs.Forward)
	api.Delete("/message/:messageId", msgs.Delete)

	api.Get("/:chatId/messages", msgs.List)
	api.Post("/:chatId/send", send...)
	api.Put("/:chatId/seen", msgs.Seen)
	api.Delete("/:chatId", chats.Clear)

	return app
}
