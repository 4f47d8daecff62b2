package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/raga-mitra/raga_mitra/internal/autherr"
	"github.com/raga-mitra/raga_mitra/internal/lockout"
	"github.com/raga-mitra/raga_mitra/internal/phone"
)

const DefaultPINLength = 4

// Service manages accounts and PIN credentials.
type Service struct {
	repo      Repository
	policy    *lockout.Policy
	pinLength int
	now       func() time.Time
}

// NewService creates a new identity service. A zero pinLength means DefaultPINLength.
func NewService(repo Repository, policy *lockout.Policy, pinLength int) *Service {
	if pinLength <= 0 {
		pinLength = DefaultPINLength
	}
	return &Service{repo: repo, policy: policy, pinLength: pinLength, now: time.Now}
}

// Register creates an account for an already verified phone number.
func (s *Service) Register(ctx context.Context, e164, pin string) (User, error) {
	if err := phone.ValidateDigits(pin, s.pinLength, "PIN"); err != nil {
		return User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}

	user := User{
		ID:        uuid.New().String(),
		Phone:     e164,
		PINHash:   hash,
		CreatedAt: s.now().UTC(),
	}

	if err := s.repo.Create(ctx, user); err != nil {
		if errors.Is(err, ErrExists) {
			return User{}, autherr.New(autherr.KindConflict, "phone number is already registered")
		}
		return User{}, fmt.Errorf("create user: %w", err)
	}
	if err := s.policy.Succeed(ctx, e164); err != nil {
		return User{}, err
	}
	return user, nil
}

// Authenticate verifies a PIN under the lockout policy. A locked phone is rejected before
// the PIN is compared, so even the correct PIN fails until the lock expires.
func (s *Service) Authenticate(ctx context.Context, e164, pin string) (User, error) {
	if err := phone.ValidateDigits(pin, s.pinLength, "PIN"); err != nil {
		return User{}, err
	}
	if err := s.policy.Check(ctx, e164); err != nil {
		return User{}, err
	}

	user, err := s.repo.FindByPhone(ctx, e164)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return User{}, autherr.New(autherr.KindNotFound, "no account for this phone number")
		}
		return User{}, err
	}

	if err := bcrypt.CompareHashAndPassword(user.PINHash, []byte(pin)); err != nil {
		_, failErr := s.policy.Fail(ctx, e164)
		return User{}, failErr
	}

	if err := s.policy.Succeed(ctx, e164); err != nil {
		return User{}, err
	}
	now := s.now()
	if err := s.repo.TouchLogin(ctx, user.ID, now); err != nil {
		return User{}, err
	}
	t := now.UTC()
	user.LastLogin = &t
	return user, nil
}

// ResetPIN replaces the PIN of an already verified phone. Existing sessions are invalidated
// and any lockout is cleared.
func (s *Service) ResetPIN(ctx context.Context, e164, pin string) (User, error) {
	if err := phone.ValidateDigits(pin, s.pinLength, "PIN"); err != nil {
		return User{}, err
	}
	user, err := s.repo.FindByPhone(ctx, e164)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return User{}, autherr.New(autherr.KindNotFound, "no account for this phone number")
		}
		return User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}
	version, err := s.repo.UpdatePIN(ctx, user.ID, hash)
	if err != nil {
		return User{}, err
	}
	if err := s.policy.Succeed(ctx, e164); err != nil {
		return User{}, err
	}
	user.PINHash = hash
	user.TokenVersion = version
	return user, nil
}

// Find returns the user with id.
func (s *Service) Find(ctx context.Context, id string) (User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return User{}, autherr.New(autherr.KindNotFound, "account not found")
	}
	return user, err
}

// RevokeSessions bumps the token version so every issued token stops verifying.
func (s *Service) RevokeSessions(ctx context.Context, id string) error {
	_, err := s.repo.UpdateTokenVersion(ctx, id)
	return err
}

// PINLength returns the required number of PIN digits.
func (s *Service) PINLength() int { return s.pinLength }

// Exists reports whether phone already has an account.
func (s *Service) Exists(ctx context.Context, e164 string) (bool, error) {
	_, err := s.repo.FindByPhone(ctx, e164)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}
