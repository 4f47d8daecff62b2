package middleware

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/raga-mitra/raga_mitra/internal/auth"
	"github.com/raga-mitra/raga_mitra/internal/autherr"
)

// Audit emits one structured log line per request. Auth failures are logged with their
// error kind so lockouts and code abuse stand out.
func Audit(logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			status = autherr.HTTPStatus(autherr.KindOf(err))
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			}
		}
		requestID := RequestIDFrom(c)

		attrs := []any{
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.Int("status", status),
			slog.Duration("duration", time.Since(start)),
		}
		if requestID != "" {
			attrs = append(attrs, slog.String("request_id", requestID))
		}
		if uid, ok := c.Locals(auth.LocalUserID).(string); ok && uid != "" {
			attrs = append(attrs, slog.String("user_id", uid))
		}
		switch {
		case err != nil && status >= fiber.StatusInternalServerError:
			attrs = append(attrs, slog.Any("error", err))
			logger.Error("request completed", attrs...)
		case err != nil:
			attrs = append(attrs, slog.String("kind", string(autherr.KindOf(err))))
			logger.Warn("request completed", attrs...)
		default:
			logger.Info("request completed", attrs...)
		}
		return err
	}
}
