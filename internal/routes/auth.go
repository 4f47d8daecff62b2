package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/raga-mitra/raga_mitra/internal/auth"
)

// AuthLimits carries the per-route guards of the auth group.
type AuthLimits struct {
	SendCode fiber.Handler
	Login    fiber.Handler
	Session  fiber.Handler
}

// RegisterAuthRoutes wires authentication endpoints.
func RegisterAuthRoutes(r fiber.Router, h *auth.Handler, l AuthLimits) {
	group := r.Group("/auth")
	group.Post("/send-code", guarded(l.SendCode, h.SendCode)...)
	group.Post("/verify-code", h.VerifyCode)
	group.Post("/register", h.Register)
	group.Post("/login", guarded(l.Login, h.Login)...)
	group.Post("/reset-pin", h.ResetPIN)
	group.Post("/logout", guarded(l.Session, h.Logout)...)
	group.Get("/me", guarded(l.Session, h.Me)...)
}

func guarded(guard, h fiber.Handler) []fiber.Handler {
	if guard == nil {
		return []fiber.Handler{h}
	}
	return []fiber.Handler{guard, h}
}
