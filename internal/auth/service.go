package auth

import (
	"context"
	"log/slog"
	"time"

	"github.com/raga-mitra/raga_mitra/internal/autherr"
	"github.com/raga-mitra/raga_mitra/internal/identity"
	"github.com/raga-mitra/raga_mitra/internal/phone"
	"github.com/raga-mitra/raga_mitra/internal/verification"
)

// Proof shows that the caller controls a phone number: either a code issued by this server
// or an ID token from the primary identity provider.
type Proof struct {
	Code    string
	IDToken string
}

// Session is an issued session token with its owner.
type Session struct {
	Token     string
	ExpiresAt time.Time
	User      identity.User
}

// Service implements the auth API operations on top of identity and verification.
type Service struct {
	ids                *identity.Service
	codes              *verification.Service
	tokens             *Tokens
	provider           PhoneTokenVerifier
	defaultCountryCode string
	logger             *slog.Logger
}

// NewService wires the auth operations. provider may be nil, which disables ID-token proofs.
func NewService(ids *identity.Service, codes *verification.Service, tokens *Tokens, provider PhoneTokenVerifier, defaultCountryCode string, logger *slog.Logger) *Service {
	return &Service{
		ids:                ids,
		codes:              codes,
		tokens:             tokens,
		provider:           provider,
		defaultCountryCode: defaultCountryCode,
		logger:             logger,
	}
}

// SendCode issues a verification code by SMS.
func (s *Service) SendCode(ctx context.Context, rawPhone string) (string, time.Time, error) {
	e164, err := phone.Normalize(rawPhone, s.defaultCountryCode)
	if err != nil {
		return "", time.Time{}, err
	}
	expires, err := s.codes.Send(ctx, e164)
	if err != nil {
		return "", time.Time{}, err
	}
	return e164, expires, nil
}

// VerifyCode checks a code without consuming it, so it can still back register or reset.
func (s *Service) VerifyCode(ctx context.Context, rawPhone, code string) (string, error) {
	e164, err := phone.Normalize(rawPhone, s.defaultCountryCode)
	if err != nil {
		return "", err
	}
	return e164, s.codes.Check(ctx, e164, code)
}

// Register creates the account for a proven phone number and opens a session.
func (s *Service) Register(ctx context.Context, rawPhone, pin string, proof Proof) (Session, error) {
	e164, err := s.prepare(ctx, rawPhone, pin)
	if err != nil {
		return Session{}, err
	}
	exists, err := s.ids.Exists(ctx, e164)
	if err != nil {
		return Session{}, err
	}
	if exists {
		return Session{}, autherr.New(autherr.KindConflict, "phone number is already registered")
	}
	if err := s.proveOwnership(ctx, e164, proof); err != nil {
		return Session{}, err
	}
	user, err := s.ids.Register(ctx, e164, pin)
	if err != nil {
		return Session{}, err
	}
	s.logger.Info("account registered", slog.String("user_id", user.ID), slog.String("phone", phone.Mask(e164)))
	return s.issue(user)
}

// Login verifies the PIN under the lockout policy and opens a session.
func (s *Service) Login(ctx context.Context, rawPhone, pin string) (Session, error) {
	e164, err := s.prepare(ctx, rawPhone, pin)
	if err != nil {
		return Session{}, err
	}
	user, err := s.ids.Authenticate(ctx, e164, pin)
	if err != nil {
		if autherr.KindOf(err) == autherr.KindLocked {
			s.logger.Warn("login rejected, account locked", slog.String("phone", phone.Mask(e164)))
		}
		return Session{}, err
	}
	return s.issue(user)
}

// ResetPIN replaces the PIN of a proven phone number. Earlier sessions stop verifying.
func (s *Service) ResetPIN(ctx context.Context, rawPhone, newPIN string, proof Proof) (Session, error) {
	e164, err := s.prepare(ctx, rawPhone, newPIN)
	if err != nil {
		return Session{}, err
	}
	exists, err := s.ids.Exists(ctx, e164)
	if err != nil {
		return Session{}, err
	}
	if !exists {
		return Session{}, autherr.New(autherr.KindNotFound, "no account for this phone number")
	}
	if err := s.proveOwnership(ctx, e164, proof); err != nil {
		return Session{}, err
	}
	user, err := s.ids.ResetPIN(ctx, e164, newPIN)
	if err != nil {
		return Session{}, err
	}
	s.logger.Info("PIN reset", slog.String("user_id", user.ID))
	return s.issue(user)
}

// Logout revokes every session of userID.
func (s *Service) Logout(ctx context.Context, userID string) error {
	return s.ids.RevokeSessions(ctx, userID)
}

// Me returns the account behind a verified token.
func (s *Service) Me(ctx context.Context, userID string) (identity.User, error) {
	return s.ids.Find(ctx, userID)
}

// Authorize verifies a bearer token and checks it was not revoked.
func (s *Service) Authorize(ctx context.Context, raw string) (Claims, error) {
	claims, err := s.tokens.Parse(raw)
	if err != nil {
		return Claims{}, err
	}
	user, err := s.ids.Find(ctx, claims.UserID)
	if err != nil {
		return Claims{}, err
	}
	if user.TokenVersion != claims.Version {
		return Claims{}, autherr.New(autherr.KindInvalidCredential, "token invalidated")
	}
	return claims, nil
}

func (s *Service) prepare(_ context.Context, rawPhone, pin string) (string, error) {
	e164, err := phone.Normalize(rawPhone, s.defaultCountryCode)
	if err != nil {
		return "", err
	}
	if err := phone.ValidateDigits(pin, s.ids.PINLength(), "PIN"); err != nil {
		return "", err
	}
	return e164, nil
}

func (s *Service) proveOwnership(ctx context.Context, e164 string, proof Proof) error {
	switch {
	case proof.IDToken != "":
		if s.provider == nil {
			return autherr.Invalid("id_token proofs are not enabled")
		}
		got, err := s.provider.VerifyPhone(ctx, proof.IDToken)
		if err != nil {
			s.logger.Warn("provider token rejected", slog.Any("error", err))
			return autherr.Wrap(autherr.KindInvalidCode, "invalid identity token", err)
		}
		if got != e164 {
			return autherr.Invalid("identity token does not match phone number")
		}
		return nil
	case proof.Code != "":
		return s.codes.Consume(ctx, e164, proof.Code)
	default:
		return autherr.Invalid("code or id_token is required")
	}
}

func (s *Service) issue(user identity.User) (Session, error) {
	token, exp, err := s.tokens.Issue(user)
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token, ExpiresAt: exp, User: user}, nil
}
