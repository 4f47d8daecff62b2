package verification

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/raga-mitra/raga_mitra/internal/autherr"
	"github.com/raga-mitra/raga_mitra/internal/logging"
	"github.com/raga-mitra/raga_mitra/internal/notification"
)

const testPhone = "+911234567890"

type outbox struct{ sent []notification.Message }

func (o *outbox) Send(_ context.Context, m notification.Message) error {
	o.sent = append(o.sent, m)
	return nil
}

func fixedCode(code string) Option {
	return WithGenerator(func(int) (string, error) { return code, nil })
}

func newRedisService(t *testing.T, opts ...Option) (*Service, *outbox, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	box := &outbox{}
	return NewService(NewRedisStore(client), box, Config{}, logging.Discard(), opts...), box, mr
}

func TestSendDeliversCodeBySMS(t *testing.T) {
	svc, box, mr := newRedisService(t, fixedCode("000000"))

	_, err := svc.Send(context.Background(), testPhone)
	require.NoError(t, err)
	require.Len(t, box.sent, 1)
	require.Equal(t, testPhone, box.sent[0].Destination)
	require.True(t, strings.Contains(box.sent[0].Body, "000000"))

	got, err := mr.Get("otp:" + testPhone)
	require.NoError(t, err)
	require.Equal(t, "000000", got)
	require.Equal(t, DefaultTTL, mr.TTL("otp:"+testPhone))
}

func TestConsumeIsSingleUse(t *testing.T) {
	svc, _, _ := newRedisService(t, fixedCode("000000"))
	ctx := context.Background()

	_, err := svc.Send(ctx, testPhone)
	require.NoError(t, err)

	require.NoError(t, svc.Check(ctx, testPhone, "000000"))
	require.NoError(t, svc.Consume(ctx, testPhone, "000000"))
	require.ErrorIs(t, svc.Consume(ctx, testPhone, "000000"), autherr.ErrExpiredCode)
}

func TestWrongCodeAndDiscardAfterMaxAttempts(t *testing.T) {
	svc, _, _ := newRedisService(t, fixedCode("000000"))
	ctx := context.Background()
	_, err := svc.Send(ctx, testPhone)
	require.NoError(t, err)

	for i := 0; i < DefaultMaxAttempts; i++ {
		require.ErrorIs(t, svc.Check(ctx, testPhone, "111111"), autherr.ErrInvalidCode)
	}
	require.ErrorIs(t, svc.Check(ctx, testPhone, "000000"), autherr.ErrExpiredCode)
}

func TestCodeExpires(t *testing.T) {
	svc, _, mr := newRedisService(t, fixedCode("000000"))
	ctx := context.Background()
	_, err := svc.Send(ctx, testPhone)
	require.NoError(t, err)

	mr.FastForward(DefaultTTL + time.Second)
	require.ErrorIs(t, svc.Check(ctx, testPhone, "000000"), autherr.ErrExpiredCode)
}

func TestCheckRejectsMalformedCode(t *testing.T) {
	svc, _, _ := newRedisService(t)
	require.ErrorIs(t, svc.Check(context.Background(), testPhone, "12ab56"), autherr.ErrInvalidInput)
	require.ErrorIs(t, svc.Check(context.Background(), testPhone, "12345"), autherr.ErrInvalidInput)
}

func TestSendFailureIsProviderUnavailable(t *testing.T) {
	failing := notification.SenderFunc(func(context.Context, notification.Message) error {
		return errors.New("gateway down")
	})
	svc := NewService(NewMemoryStore(), failing, Config{}, logging.Discard(), fixedCode("000000"))

	_, err := svc.Send(context.Background(), testPhone)
	require.ErrorIs(t, err, autherr.ErrProviderUnavailable)
	require.ErrorIs(t, svc.Check(context.Background(), testPhone, "000000"), autherr.ErrExpiredCode)
}

func TestMemoryStoreMatchesRedisSemantics(t *testing.T) {
	box := &outbox{}
	svc := NewService(NewMemoryStore(), box, Config{MaxAttempts: 2}, logging.Discard(), fixedCode("424242"))
	ctx := context.Background()

	_, err := svc.Send(ctx, testPhone)
	require.NoError(t, err)
	require.ErrorIs(t, svc.Check(ctx, testPhone, "000000"), autherr.ErrInvalidCode)
	require.ErrorIs(t, svc.Check(ctx, testPhone, "000000"), autherr.ErrInvalidCode)
	require.ErrorIs(t, svc.Check(ctx, testPhone, "424242"), autherr.ErrExpiredCode)
}

func TestRandomDigits(t *testing.T) {
	code, err := randomDigits(6)
	require.NoError(t, err)
	require.Len(t, code, 6)
	for _, r := range code {
		require.True(t, r >= '0' && r <= '9')
	}
}

func TestConcurrentConsumeSucceedsOnce(t *testing.T) {
	redisSvc, _, _ := newRedisService(t, fixedCode("000000"))
	memorySvc := NewService(NewMemoryStore(), &outbox{}, Config{}, logging.Discard(), fixedCode("000000"))

	for name, svc := range map[string]*Service{"redis": redisSvc, "memory": memorySvc} {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, err := svc.Send(ctx, testPhone)
			require.NoError(t, err)

			var ok, expired atomic.Int32
			var wg sync.WaitGroup
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					switch err := svc.Consume(ctx, testPhone, "000000"); {
					case err == nil:
						ok.Add(1)
					case errors.Is(err, autherr.ErrExpiredCode):
						expired.Add(1)
					}
				}()
			}
			wg.Wait()
			require.EqualValues(t, 1, ok.Load())
			require.EqualValues(t, 7, expired.Load())
		})
	}
}

func TestConsumeWrongCodeCountsAttempt(t *testing.T) {
	box := &outbox{}
	svc := NewService(NewMemoryStore(), box, Config{MaxAttempts: 2}, logging.Discard(), fixedCode("424242"))
	ctx := context.Background()

	_, err := svc.Send(ctx, testPhone)
	require.NoError(t, err)
	require.ErrorIs(t, svc.Consume(ctx, testPhone, "000000"), autherr.ErrInvalidCode)
	require.ErrorIs(t, svc.Consume(ctx, testPhone, "000000"), autherr.ErrInvalidCode)
	require.ErrorIs(t, svc.Consume(ctx, testPhone, "424242"), autherr.ErrExpiredCode)
}
