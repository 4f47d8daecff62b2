package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/raga-mitra/raga_mitra/internal/autherr"
	"github.com/raga-mitra/raga_mitra/internal/identity"
	"github.com/raga-mitra/raga_mitra/internal/lockout"
	"github.com/raga-mitra/raga_mitra/internal/logging"
	"github.com/raga-mitra/raga_mitra/internal/notification"
	"github.com/raga-mitra/raga_mitra/internal/verification"
)

type fixture struct {
	svc  *Service
	key  *rsa.PrivateKey
	sent []notification.Message
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	f := &fixture{key: key}

	sender := notification.SenderFunc(func(_ context.Context, m notification.Message) error {
		f.sent = append(f.sent, m)
		return nil
	})
	ids := identity.NewService(identity.NewMemoryRepository(), lockout.NewPolicy(lockout.NewMemoryStore()), 4)
	codes := verification.NewService(verification.NewMemoryStore(), sender, verification.Config{}, logging.Discard(),
		verification.WithGenerator(func(int) (string, error) { return "000000", nil }))
	f.svc = NewService(ids, codes, NewTokens("secret", time.Hour),
		NewStaticOIDCVerifier(testIssuer, testAudience, &key.PublicKey), "+91", logging.Discard())
	return f
}

func (f *fixture) idToken(t *testing.T, phone string) string {
	now := time.Now()
	return signIDToken(t, f.key, jwtlib.MapClaims{
		"iss": testIssuer, "aud": testAudience, "sub": "provider-uid",
		"iat": now.Unix(), "exp": now.Add(time.Hour).Unix(), "phone_number": phone,
	})
}

func TestRegisterWithServerCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	e164, _, err := f.svc.SendCode(ctx, "+91 12345 67890")
	require.NoError(t, err)
	require.Equal(t, "+911234567890", e164)
	require.Len(t, f.sent, 1)

	sess, err := f.svc.Register(ctx, e164, "1234", Proof{Code: "000000"})
	require.NoError(t, err)
	require.NotEmpty(t, sess.Token)

	claims, err := f.svc.Authorize(ctx, sess.Token)
	require.NoError(t, err)
	require.Equal(t, sess.User.ID, claims.UserID)
}

func TestRegisterWithProviderToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sess, err := f.svc.Register(ctx, "+911234567890", "1234", Proof{IDToken: f.idToken(t, "+911234567890")})
	require.NoError(t, err)
	require.Equal(t, "+911234567890", sess.User.Phone)
	require.Empty(t, f.sent)
}

func TestProviderTokenMustMatchPhone(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Register(context.Background(), "+911234567890", "1234", Proof{IDToken: f.idToken(t, "+919876543210")})
	require.ErrorIs(t, err, autherr.ErrInvalidInput)

	_, err = f.svc.Register(context.Background(), "+911234567890", "1234", Proof{IDToken: "garbage"})
	require.ErrorIs(t, err, autherr.ErrInvalidCode)
}

func TestBadPINDoesNotBurnCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, _, err := f.svc.SendCode(ctx, "+911234567890")
	require.NoError(t, err)

	_, err = f.svc.Register(ctx, "+911234567890", "12345", Proof{Code: "000000"})
	require.ErrorIs(t, err, autherr.ErrInvalidInput)

	_, err = f.svc.Register(ctx, "+911234567890", "1234", Proof{Code: "000000"})
	require.NoError(t, err)
}

func TestResetPINRequiresAccount(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.ResetPIN(context.Background(), "+911234567890", "4321", Proof{Code: "000000"})
	require.ErrorIs(t, err, autherr.ErrNotFound)
}

func TestLogoutRevokesToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess, err := f.svc.Register(ctx, "+911234567890", "1234", Proof{IDToken: f.idToken(t, "+911234567890")})
	require.NoError(t, err)

	require.NoError(t, f.svc.Logout(ctx, sess.User.ID))
	_, err = f.svc.Authorize(ctx, sess.Token)
	require.ErrorIs(t, err, autherr.ErrInvalidCredential)
}
