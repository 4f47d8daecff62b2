package apiclient

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/raga-mitra/raga_mitra/internal/autherr"
	"github.com/raga-mitra/raga_mitra/internal/config"
	"github.com/raga-mitra/raga_mitra/internal/logging"
	"github.com/raga-mitra/raga_mitra/internal/notification"
	"github.com/raga-mitra/raga_mitra/internal/provider"
	"github.com/raga-mitra/raga_mitra/internal/routes"
	"github.com/raga-mitra/raga_mitra/internal/server"
)

const testPhone = "+911234567890"

type inbox struct {
	mu    sync.Mutex
	codes map[string]string
}

func (i *inbox) Send(_ context.Context, m notification.Message) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	fields := strings.Fields(m.Body)
	for n, f := range fields {
		if f == "is" && n+1 < len(fields) {
			i.codes[m.Destination] = strings.TrimSuffix(fields[n+1], ".")
		}
	}
	return nil
}

func (i *inbox) code(phone string) string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.codes[phone]
}

func newAPI(t *testing.T) (*Client, *inbox) {
	t.Helper()
	return newAPIWith(t, nil, nil)
}

// newAPIWith serves the route stack with an optional Redis cache and wraps the client
// transport with rt when it is set.
func newAPIWith(t *testing.T, cache *redis.Client, rt func(http.RoundTripper) http.RoundTripper) (*Client, *inbox) {
	t.Helper()
	logger := logging.Discard()
	box := &inbox{codes: map[string]string{}}
	cfg := config.Config{
		AppEnv:             "test",
		JWTSecret:          "test-secret",
		SessionTTL:         time.Hour,
		CodeLength:         6,
		CodeTTL:            5 * time.Minute,
		CodeMaxAttempts:    5,
		PINLength:          4,
		LockoutThreshold:   5,
		LockoutDuration:    15 * time.Minute,
		IdempotencyTTL:     time.Hour,
		SendCodePerMinute:  100,
		LoginPerMinute:     100,
		DefaultCountryCode: "+91",
	}
	app := fiber.New(fiber.Config{ErrorHandler: server.ErrorHandler(logger)})
	require.NoError(t, routes.Setup(app, routes.Deps{Cfg: cfg, Cache: cache, Sender: box, Logger: logger}))
	srv := httptest.NewServer(adaptor.FiberApp(app))
	t.Cleanup(srv.Close)
	httpClient := srv.Client()
	if rt != nil {
		httpClient.Transport = rt(httpClient.Transport)
	}
	return New(srv.URL, httpClient), box
}

func TestClientRoundTrip(t *testing.T) {
	client, box := newAPI(t)
	ctx := context.Background()

	expires, err := client.SendCode(ctx, testPhone)
	require.NoError(t, err)
	require.True(t, expires.After(time.Now()))

	require.NoError(t, client.VerifyCode(ctx, testPhone, box.code(testPhone)))

	sess, err := client.Register(ctx, testPhone, "1234", Proof{Code: box.code(testPhone)}, "")
	require.NoError(t, err)
	require.Equal(t, testPhone, sess.User.Phone)

	sess, err = client.Login(ctx, testPhone, "1234")
	require.NoError(t, err)

	me, err := client.Me(ctx, sess.Token)
	require.NoError(t, err)
	require.Equal(t, sess.User.ID, me.ID)

	require.NoError(t, client.Logout(ctx, sess.Token))
	_, err = client.Me(ctx, sess.Token)
	require.ErrorIs(t, err, autherr.ErrInvalidCredential)
}

func TestClientDecodesLockout(t *testing.T) {
	client, box := newAPI(t)
	ctx := context.Background()
	_, err := client.SendCode(ctx, testPhone)
	require.NoError(t, err)
	_, err = client.Register(ctx, testPhone, "1234", Proof{Code: box.code(testPhone)}, "")
	require.NoError(t, err)

	for i := 1; i < 5; i++ {
		_, err = client.Login(ctx, testPhone, "0000")
		require.ErrorIs(t, err, autherr.ErrInvalidCredential)
		remaining, ok := autherr.Remaining(err)
		require.True(t, ok)
		require.Equal(t, 5-i, remaining)
	}
	_, err = client.Login(ctx, testPhone, "0000")
	require.ErrorIs(t, err, autherr.ErrLocked)
	until, ok := autherr.LockedUntil(err)
	require.True(t, ok)
	require.True(t, until.After(time.Now()))
}

func TestClientTransportErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := New(srv.URL, nil).SendCode(context.Background(), testPhone)
	require.ErrorIs(t, err, autherr.ErrProviderUnavailable)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = New(srv.URL, nil).Login(ctx, testPhone, "1234")
	require.ErrorIs(t, err, autherr.ErrCanceled)
}

func TestCodeDeliveryAsProvider(t *testing.T) {
	client, box := newAPI(t)
	var p provider.IdentityProvider = NewCodeDelivery(client)
	ctx := context.Background()

	h, err := p.StartVerification(ctx, testPhone)
	require.NoError(t, err)
	require.Equal(t, provider.SourceFallback, h.Source)

	_, err = p.ConfirmCode(ctx, h, "bad")
	require.ErrorIs(t, err, autherr.ErrInvalidInput)

	conf, err := p.ConfirmCode(ctx, h, box.code(testPhone))
	require.NoError(t, err)
	require.Equal(t, box.code(testPhone), conf.Code)
	require.Equal(t, testPhone, conf.Phone)
}

// dropFirstResponse lets the server handle the first request to path, then loses its response.
type dropFirstResponse struct {
	path    string
	base    http.RoundTripper
	mu      sync.Mutex
	dropped bool
}

func (d *dropFirstResponse) RoundTrip(r *http.Request) (*http.Response, error) {
	resp, err := d.base.RoundTrip(r)
	if err != nil || r.URL.Path != d.path {
		return resp, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.dropped {
		return resp, nil
	}
	d.dropped = true
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return nil, errors.New("connection reset by peer")
}

func TestRegisterRetryReplaysAfterLostResponse(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { cache.Close() })

	client, box := newAPIWith(t, cache, func(base http.RoundTripper) http.RoundTripper {
		return &dropFirstResponse{path: "/auth/register", base: base}
	})
	backend := NewSessionBackend(client)
	ctx := context.Background()

	_, err := client.SendCode(ctx, testPhone)
	require.NoError(t, err)
	proof := provider.Confirmation{Phone: testPhone, Code: box.code(testPhone), Source: provider.SourceFallback}

	_, err = backend.Register(ctx, testPhone, "1234", proof, "verified-H1")
	require.ErrorIs(t, err, autherr.ErrProviderUnavailable)

	sess, err := backend.Register(ctx, testPhone, "1234", proof, "verified-H1")
	require.NoError(t, err)
	require.Equal(t, testPhone, sess.User.Phone)

	me, err := client.Me(ctx, sess.Token)
	require.NoError(t, err)
	require.Equal(t, sess.User.ID, me.ID)

	_, err = backend.Register(ctx, testPhone, "1234", proof, "another-key")
	require.ErrorIs(t, err, autherr.ErrConflict)
}
