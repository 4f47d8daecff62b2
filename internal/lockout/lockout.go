// Package lockout tracks failed PIN attempts per phone number and enforces a temporary
// lock once a threshold is crossed.
package lockout

import (
	"context"
	"time"

	"github.com/raga-mitra/raga_mitra/internal/autherr"
)

const (
	DefaultThreshold  = 5
	DefaultDuration   = 15 * time.Minute
	DefaultCounterTTL = 24 * time.Hour
)

// State is the lockout record of a single phone number.
type State struct {
	Phone          string
	FailedAttempts int
	LockedUntil    time.Time
}

// Locked reports whether the lock is still running at now.
func (s State) Locked(now time.Time) bool {
	return !s.LockedUntil.IsZero() && now.Before(s.LockedUntil)
}

// Store persists lockout state. RecordFailure must be atomic per phone.
type Store interface {
	Load(ctx context.Context, phone string) (State, error)
	// RecordFailure increments the counter, starting over if a previous lock has expired,
	// and sets LockedUntil to lockUntil once the counter reaches threshold.
	RecordFailure(ctx context.Context, phone string, threshold int, now, lockUntil time.Time, ttl time.Duration) (State, error)
	Lock(ctx context.Context, phone string, until time.Time, ttl time.Duration) error
	Reset(ctx context.Context, phone string) error
}

// Policy applies the threshold and lock duration on top of a Store.
type Policy struct {
	store      Store
	threshold  int
	duration   time.Duration
	counterTTL time.Duration
	now        func() time.Time
}

// Option customises a Policy.
type Option func(*Policy)

// WithThreshold sets the number of consecutive failures that triggers a lock.
func WithThreshold(n int) Option {
	return func(p *Policy) {
		if n > 0 {
			p.threshold = n
		}
	}
}

// WithDuration sets how long a lock lasts.
func WithDuration(d time.Duration) Option {
	return func(p *Policy) {
		if d > 0 {
			p.duration = d
		}
	}
}

// WithNowTime injects the clock, mainly for tests.
func WithNowTime(now func() time.Time) Option {
	return func(p *Policy) {
		if now != nil {
			p.now = now
		}
	}
}

// NewPolicy builds a policy with the default threshold (5) and duration (15m).
func NewPolicy(store Store, opts ...Option) *Policy {
	p := &Policy{
		store:      store,
		threshold:  DefaultThreshold,
		duration:   DefaultDuration,
		counterTTL: DefaultCounterTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.counterTTL < p.duration {
		p.counterTTL = p.duration
	}
	return p
}

// Threshold returns the configured failure threshold.
func (p *Policy) Threshold() int { return p.threshold }

// State returns the current record for phone.
func (p *Policy) State(ctx context.Context, phone string) (State, error) {
	return p.store.Load(ctx, phone)
}

// Check returns a locked error while phone is locked.
func (p *Policy) Check(ctx context.Context, phone string) error {
	st, err := p.store.Load(ctx, phone)
	if err != nil {
		return err
	}
	if st.Locked(p.now()) {
		return autherr.Locked(st.LockedUntil)
	}
	return nil
}

// Fail records a failed attempt. The returned error is either a credential error carrying
// the remaining attempts, or a locked error when this failure crossed the threshold.
func (p *Policy) Fail(ctx context.Context, phone string) (State, error) {
	now := p.now()
	st, err := p.store.RecordFailure(ctx, phone, p.threshold, now, now.Add(p.duration), p.counterTTL)
	if err != nil {
		return State{}, err
	}
	if st.Locked(now) {
		return st, autherr.Locked(st.LockedUntil)
	}
	return st, autherr.Credential(p.threshold - st.FailedAttempts)
}

// Lock adopts a lock decided elsewhere (for example reported by the server).
func (p *Policy) Lock(ctx context.Context, phone string, until time.Time) error {
	ttl := until.Sub(p.now())
	if ttl < p.counterTTL {
		ttl = p.counterTTL
	}
	return p.store.Lock(ctx, phone, until, ttl)
}

// Succeed clears the failure counter after a successful verification.
func (p *Policy) Succeed(ctx context.Context, phone string) error {
	return p.store.Reset(ctx, phone)
}
