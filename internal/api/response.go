package api

import (
	"errors"

	"github.com/fathima-sithara/classroom-chat/internal/domain"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

func JSONSuccess(c *fiber.Ctx, status int, payload interface{}) error {
	return c.Status(status).JSON(fiber.Map{"success": true, "data": payload})
}

func JSONMessage(c *fiber.Ctx, status int, msg string, payload interface{}) error {
	return c.Status(status).JSON(fiber.Map{"success": true, "message": msg, "data": payload})
}

func JSONError(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(fiber.Map{"success": false, "message": msg})
}

// StatusFor maps an error kind onto its HTTP status.
func StatusFor(err error) int {
	var ferr *fiber.Error
	switch {
	case errors.As(err, &ferr):
		return ferr.Code
	case errors.Is(err, domain.ErrInvalidArgument), errors.Is(err, domain.ErrPayloadTooLarge):
		return fiber.StatusBadRequest
	case errors.Is(err, domain.ErrForbidden):
		return fiber.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return fiber.StatusNotFound
	}
	return fiber.StatusInternalServerError
}

// ErrorHandler writes every error returned by a handler. Server errors are
// logged in full and reported with a generic message.
func ErrorHandler(log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status := StatusFor(err)
		if status >= fiber.StatusInternalServerError {
			log.Error("request failed",
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.Error(err))
			return JSONError(c, status, "Server error")
		}
		return JSONError(c, status, err.Error())
	}
}
