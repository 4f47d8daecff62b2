package server

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/raga-mitra/raga_mitra/internal/autherr"
)

// ErrorHandler renders every returned error as the shared JSON envelope.
func ErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).JSON(autherr.Body{
				Error:   autherr.KindFromStatus(fe.Code),
				Message: fe.Message,
			})
		}

		body := autherr.ToBody(err)
		status := autherr.HTTPStatus(body.Error)
		if status >= fiber.StatusInternalServerError {
			logger.Error("request failed", slog.String("path", c.Path()), slog.Any("error", err))
		}
		return c.Status(status).JSON(body)
	}
}
