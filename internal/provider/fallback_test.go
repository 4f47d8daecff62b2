package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/raga-mitra/raga_mitra/internal/autherr"
	"github.com/raga-mitra/raga_mitra/internal/logging"
)

type fakeProvider struct {
	source   Source
	startErr error
	block    bool
	starts   int
	confirms int
}

func (f *fakeProvider) StartVerification(ctx context.Context, phone string) (Handle, error) {
	f.starts++
	if f.block {
		<-ctx.Done()
		return Handle{}, autherr.Unavailable(ctx.Err())
	}
	if f.startErr != nil {
		return Handle{}, f.startErr
	}
	return Handle{ID: string(f.source) + "-handle", Phone: phone, Source: f.source, IssuedAt: time.Now()}, nil
}

func (f *fakeProvider) ConfirmCode(_ context.Context, h Handle, code string) (Confirmation, error) {
	f.confirms++
	return Confirmation{Phone: h.Phone, Code: code, Source: f.source}, nil
}

func TestFallbackUsedOnceWhenPrimaryUnavailable(t *testing.T) {
	primary := &fakeProvider{source: SourcePrimary, startErr: autherr.Unavailable(errors.New("quota"))}
	secondary := &fakeProvider{source: SourceFallback}
	fb := NewFallback(primary, secondary, time.Second, logging.Discard())

	h, err := fb.StartVerification(context.Background(), "+911234567890")
	require.NoError(t, err)
	require.Equal(t, SourceFallback, h.Source)
	require.Equal(t, 1, primary.starts)
	require.Equal(t, 1, secondary.starts)

	conf, err := fb.ConfirmCode(context.Background(), h, "000000")
	require.NoError(t, err)
	require.Equal(t, SourceFallback, conf.Source)
	require.Zero(t, primary.confirms)
}

func TestFallbackOnlyOnProviderUnavailable(t *testing.T) {
	for _, primaryErr := range []error{
		autherr.Invalid("bad number"),
		autherr.New(autherr.KindRateLimited, "slow down"),
		autherr.ErrInvalidCode,
		autherr.ErrConflict,
		errors.New("unexpected provider response"),
	} {
		primary := &fakeProvider{source: SourcePrimary, startErr: primaryErr}
		secondary := &fakeProvider{source: SourceFallback}
		fb := NewFallback(primary, secondary, time.Second, logging.Discard())

		_, err := fb.StartVerification(context.Background(), "+911234567890")
		require.Equal(t, autherr.KindOf(primaryErr), autherr.KindOf(err))
		require.Zero(t, secondary.starts)
	}
}

func TestFallbackFailureSurfacesSecondaryError(t *testing.T) {
	primary := &fakeProvider{source: SourcePrimary, startErr: autherr.Unavailable(errors.New("down"))}
	secondary := &fakeProvider{source: SourceFallback, startErr: autherr.Unavailable(errors.New("also down"))}
	fb := NewFallback(primary, secondary, time.Second, logging.Discard())

	_, err := fb.StartVerification(context.Background(), "+911234567890")
	require.ErrorIs(t, err, autherr.ErrProviderUnavailable)
	require.Equal(t, 1, secondary.starts)
}

func TestHungPrimaryTimesOutThenFallsBack(t *testing.T) {
	primary := &fakeProvider{source: SourcePrimary, block: true}
	secondary := &fakeProvider{source: SourceFallback}
	fb := NewFallback(primary, secondary, 20*time.Millisecond, logging.Discard())

	h, err := fb.StartVerification(context.Background(), "+911234567890")
	require.NoError(t, err)
	require.Equal(t, SourceFallback, h.Source)
}

func TestCanceledCallerDoesNotFallBack(t *testing.T) {
	primary := &fakeProvider{source: SourcePrimary, block: true}
	secondary := &fakeProvider{source: SourceFallback}
	fb := NewFallback(primary, secondary, time.Second, logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := fb.StartVerification(ctx, "+911234567890")
	require.Error(t, err)
	require.Zero(t, secondary.starts)
}

func TestWithoutPrimary(t *testing.T) {
	secondary := &fakeProvider{source: SourceFallback}
	fb := NewFallback(nil, secondary, 0, logging.Discard())

	h, err := fb.StartVerification(context.Background(), "+911234567890")
	require.NoError(t, err)
	require.Equal(t, SourceFallback, h.Source)

	_, err = fb.ConfirmCode(context.Background(), Handle{ID: "x", Source: SourcePrimary}, "000000")
	require.ErrorIs(t, err, autherr.ErrInvalidInput)
}

func TestAttemptBudget(t *testing.T) {
	secondary := &fakeProvider{source: SourceFallback}
	require.Equal(t, 2*time.Second, NewFallback(&fakeProvider{}, secondary, time.Second, logging.Discard()).AttemptBudget())
	require.Equal(t, time.Second, NewFallback(nil, secondary, time.Second, logging.Discard()).AttemptBudget())
}
