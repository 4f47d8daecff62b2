package auth

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/raga-mitra/raga_mitra/internal/autherr"
	"github.com/raga-mitra/raga_mitra/internal/identity"
)

// LocalUserID is the fiber local holding the authenticated user id.
const LocalUserID = "user_id"

// Handler exposes the auth endpoints.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type phoneRequest struct {
	Phone string `json:"phone"`
}

type verifyRequest struct {
	Phone string `json:"phone"`
	Code  string `json:"code"`
}

type registerRequest struct {
	Phone   string `json:"phone"`
	PIN     string `json:"pin"`
	Code    string `json:"code"`
	IDToken string `json:"id_token"`
}

type loginRequest struct {
	Phone string `json:"phone"`
	PIN   string `json:"pin"`
}

type resetRequest struct {
	Phone   string `json:"phone"`
	NewPIN  string `json:"new_pin"`
	Code    string `json:"code"`
	IDToken string `json:"id_token"`
}

type userResponse struct {
	ID        string     `json:"id"`
	Phone     string     `json:"phone"`
	CreatedAt time.Time  `json:"created_at"`
	LastLogin *time.Time `json:"last_login,omitempty"`
}

type sessionResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      userResponse `json:"user"`
}

func toUser(u identity.User) userResponse {
	return userResponse{ID: u.ID, Phone: u.Phone, CreatedAt: u.CreatedAt, LastLogin: u.LastLogin}
}

func toSession(s Session) sessionResponse {
	return sessionResponse{Token: s.Token, ExpiresAt: s.ExpiresAt, User: toUser(s.User)}
}

func parse(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return autherr.Invalid("malformed request body")
	}
	return nil
}

// SendCode issues a verification code by SMS.
func (h *Handler) SendCode(c *fiber.Ctx) error {
	var req phoneRequest
	if err := parse(c, &req); err != nil {
		return err
	}
	e164, expires, err := h.svc.SendCode(c.UserContext(), req.Phone)
	if err != nil {
		return err
	}
	return c.Status(http.StatusAccepted).JSON(fiber.Map{
		"phone":       e164,
		"expires_at":  expires.UTC(),
		"code_length": h.svc.codes.CodeLength(),
	})
}

// VerifyCode checks a code without consuming it.
func (h *Handler) VerifyCode(c *fiber.Ctx) error {
	var req verifyRequest
	if err := parse(c, &req); err != nil {
		return err
	}
	e164, err := h.svc.VerifyCode(c.UserContext(), req.Phone, req.Code)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"phone": e164, "verified": true})
}

// Register creates an account and returns a session.
func (h *Handler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := parse(c, &req); err != nil {
		return err
	}
	sess, err := h.svc.Register(c.UserContext(), req.Phone, req.PIN, Proof{Code: req.Code, IDToken: req.IDToken})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(toSession(sess))
}

// Login validates the PIN and returns a session.
func (h *Handler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := parse(c, &req); err != nil {
		return err
	}
	sess, err := h.svc.Login(c.UserContext(), req.Phone, req.PIN)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(toSession(sess))
}

// ResetPIN replaces the PIN and returns a fresh session.
func (h *Handler) ResetPIN(c *fiber.Ctx) error {
	var req resetRequest
	if err := parse(c, &req); err != nil {
		return err
	}
	sess, err := h.svc.ResetPIN(c.UserContext(), req.Phone, req.NewPIN, Proof{Code: req.Code, IDToken: req.IDToken})
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(toSession(sess))
}

// Logout invalidates existing tokens by bumping the token version.
func (h *Handler) Logout(c *fiber.Ctx) error {
	uid, _ := c.Locals(LocalUserID).(string)
	if uid == "" {
		return fiber.NewError(http.StatusUnauthorized, "missing session")
	}
	if err := h.svc.Logout(c.UserContext(), uid); err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"status": "logged_out"})
}

// Me returns the authenticated account.
func (h *Handler) Me(c *fiber.Ctx) error {
	uid, _ := c.Locals(LocalUserID).(string)
	if uid == "" {
		return fiber.NewError(http.StatusUnauthorized, "missing session")
	}
	user, err := h.svc.Me(c.UserContext(), uid)
	if err != nil {
		return err
	}
	return c.JSON(toUser(user))
}
