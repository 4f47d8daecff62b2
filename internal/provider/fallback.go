package provider

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/raga-mitra/raga_mitra/internal/autherr"
	"github.com/raga-mitra/raga_mitra/internal/phone"
)

// Fallback starts verifications on the primary provider and retries exactly once on the
// secondary when the primary cannot serve the request. Confirmations go back to whichever
// provider issued the handle and are never retried.
type Fallback struct {
	primary   IdentityProvider
	secondary IdentityProvider
	timeout   time.Duration
	logger    *slog.Logger
}

// NewFallback combines two providers. primary may be nil, in which case every verification
// goes straight to the secondary. Each provider call gets its own timeout; the caller's
// context must allow for two attempts (see AttemptBudget) or a hanging primary leaves no
// time for the secondary.
func NewFallback(primary, secondary IdentityProvider, timeout time.Duration, logger *slog.Logger) *Fallback {
	return &Fallback{primary: primary, secondary: secondary, timeout: timeout, logger: logger}
}

// AttemptBudget is the longest StartVerification can take: one attempt on each provider.
func (f *Fallback) AttemptBudget() time.Duration {
	if f.timeout <= 0 || f.primary == nil {
		return f.timeout
	}
	return 2 * f.timeout
}

func (f *Fallback) attempt(ctx context.Context) (context.Context, context.CancelFunc) {
	if f.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, f.timeout)
}

func (f *Fallback) start(ctx context.Context, p IdentityProvider, e164 string) (Handle, error) {
	actx, cancel := f.attempt(ctx)
	defer cancel()
	return p.StartVerification(actx, e164)
}

func (f *Fallback) StartVerification(ctx context.Context, e164 string) (Handle, error) {
	if f.primary == nil {
		return f.start(ctx, f.secondary, e164)
	}
	h, err := f.start(ctx, f.primary, e164)
	if err == nil {
		return h, nil
	}
	if !shouldFallback(ctx, err) {
		return Handle{}, err
	}
	f.logger.Warn("primary verification failed, using fallback delivery",
		slog.String("phone", phone.Mask(e164)), slog.Any("error", err))

	h, fbErr := f.start(ctx, f.secondary, e164)
	if fbErr != nil {
		return Handle{}, fmt.Errorf("fallback after primary failure (%v): %w", err, fbErr)
	}
	return h, nil
}

func (f *Fallback) ConfirmCode(ctx context.Context, h Handle, code string) (Confirmation, error) {
	ctx, cancel := f.attempt(ctx)
	defer cancel()
	switch h.Source {
	case SourcePrimary:
		if f.primary == nil {
			return Confirmation{}, autherr.Invalid("verification handle is not valid")
		}
		return f.primary.ConfirmCode(ctx, h, code)
	case SourceFallback:
		return f.secondary.ConfirmCode(ctx, h, code)
	default:
		return Confirmation{}, autherr.Invalid("verification handle is not valid")
	}
}

// shouldFallback is true only for provider unavailability (network, quota, configuration,
// attempt timeout) while the caller is still waiting.
func shouldFallback(ctx context.Context, err error) bool {
	return ctx.Err() == nil && autherr.KindOf(err) == autherr.KindProviderUnavailable
}
