// Package verification issues and checks the one-time SMS codes served by the auth API
// when the primary identity provider cannot be used.
package verification

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/raga-mitra/raga_mitra/internal/autherr"
	"github.com/raga-mitra/raga_mitra/internal/notification"
	"github.com/raga-mitra/raga_mitra/internal/phone"
)

const (
	DefaultCodeLength  = 6
	DefaultTTL         = 5 * time.Minute
	DefaultMaxAttempts = 5
)

// Config tunes code generation and checking.
type Config struct {
	CodeLength  int
	TTL         time.Duration
	MaxAttempts int
}

// Service sends and checks verification codes.
type Service struct {
	store    Store
	sender   notification.Sender
	cfg      Config
	logger   *slog.Logger
	generate func(n int) (string, error)
	now      func() time.Time
}

// Option customises a Service.
type Option func(*Service)

// WithGenerator replaces the random code generator, for tests.
func WithGenerator(fn func(n int) (string, error)) Option {
	return func(s *Service) { s.generate = fn }
}

// WithNowTime injects the clock used for expiry timestamps.
func WithNowTime(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a verification service. Zero config fields take the defaults.
func NewService(store Store, sender notification.Sender, cfg Config, logger *slog.Logger, opts ...Option) *Service {
	if cfg.CodeLength <= 0 {
		cfg.CodeLength = DefaultCodeLength
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	s := &Service{
		store:    store,
		sender:   sender,
		cfg:      cfg,
		logger:   logger,
		generate: randomDigits,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CodeLength returns the number of digits in issued codes.
func (s *Service) CodeLength() int { return s.cfg.CodeLength }

// Send issues a fresh code for phone, replacing any pending one, and returns its expiry.
func (s *Service) Send(ctx context.Context, e164 string) (time.Time, error) {
	code, err := s.generate(s.cfg.CodeLength)
	if err != nil {
		return time.Time{}, fmt.Errorf("generate code: %w", err)
	}
	if err := s.store.Save(ctx, e164, code, s.cfg.TTL); err != nil {
		return time.Time{}, err
	}
	msg := notification.Message{
		Kind:        notification.KindVerificationCode,
		Destination: e164,
		Body:        fmt.Sprintf("Your Raga-Mitra verification code is %s. It expires in %d minutes.", code, int(s.cfg.TTL.Minutes())),
	}
	if err := s.sender.Send(ctx, msg); err != nil {
		_ = s.store.Delete(ctx, e164)
		return time.Time{}, autherr.Unavailable(fmt.Errorf("deliver sms: %w", err))
	}
	s.logger.Info("verification code sent", slog.String("phone", phone.Mask(e164)))
	return s.now().Add(s.cfg.TTL), nil
}

// Check verifies code without consuming it. A missing code is reported as expired; after
// MaxAttempts wrong codes the pending code is discarded.
func (s *Service) Check(ctx context.Context, e164, code string) error {
	if err := phone.ValidateDigits(code, s.cfg.CodeLength, "code"); err != nil {
		return err
	}
	stored, err := s.store.Get(ctx, e164)
	if err != nil {
		return err
	}
	if stored == "" {
		return autherr.ErrExpiredCode
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(code)) == 1 {
		return nil
	}
	return s.wrongCode(ctx, e164)
}

// Consume deletes code if it matches, so of several concurrent callers only one succeeds.
func (s *Service) Consume(ctx context.Context, e164, code string) error {
	if err := phone.ValidateDigits(code, s.cfg.CodeLength, "code"); err != nil {
		return err
	}
	found, taken, err := s.store.Take(ctx, e164, code)
	if err != nil {
		return err
	}
	if !found {
		return autherr.ErrExpiredCode
	}
	if taken {
		return nil
	}
	return s.wrongCode(ctx, e164)
}

func (s *Service) wrongCode(ctx context.Context, e164 string) error {
	attempts, err := s.store.IncrAttempts(ctx, e164)
	if err != nil {
		return err
	}
	if attempts >= s.cfg.MaxAttempts {
		_ = s.store.Delete(ctx, e164)
		s.logger.Warn("verification code discarded after too many attempts", slog.String("phone", phone.Mask(e164)))
	}
	return autherr.ErrInvalidCode
}

func randomDigits(n int) (string, error) {
	const digits = "0123456789"
	b := make([]byte, n)
	for i := range b {
		v, err := rand.Int(rand.Reader, big.NewInt(int64(len(digits))))
		if err != nil {
			return "", err
		}
		b[i] = digits[v.Int64()]
	}
	return string(b), nil
}
