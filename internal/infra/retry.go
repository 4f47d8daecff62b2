package infra

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Retry runs connect with exponential backoff until it succeeds, returns a permanent error
// or ctx ends.
func Retry(ctx context.Context, logger *slog.Logger, what string, connect func(context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = 0

	attempt := 0
	return backoff.RetryNotify(func() error {
		attempt++
		return connect(ctx)
	}, backoff.WithContext(b, ctx), func(err error, wait time.Duration) {
		logger.Warn("backend not ready, retrying",
			slog.String("backend", what), slog.Int("attempt", attempt),
			slog.Duration("wait", wait), slog.Any("error", err))
	})
}
