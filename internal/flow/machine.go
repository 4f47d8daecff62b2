// Package flow is the client-side registration and login state machine: phone entry, code
// request and confirmation, PIN set or verification, and session bootstrap.
//
// A Machine is safe for concurrent use, but it models a single user flow. Provider and
// backend calls run without holding the machine lock; their results are applied only if the
// flow was not abandoned or restarted in the meantime.
package flow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/raga-mitra/raga_mitra/internal/autherr"
	"github.com/raga-mitra/raga_mitra/internal/lockout"
	"github.com/raga-mitra/raga_mitra/internal/logging"
	"github.com/raga-mitra/raga_mitra/internal/phone"
	"github.com/raga-mitra/raga_mitra/internal/provider"
	"github.com/raga-mitra/raga_mitra/internal/session"
)

const (
	DefaultProviderTimeout = 30 * time.Second
	DefaultCodeLength      = 6
	DefaultPINLength       = 4
	DefaultCountryCode     = "+91"
)

// Backend owns accounts and PIN credentials. Register and ResetPIN receive a key that stays
// the same for every retry of one verified phone; a backend that has already applied the
// request for that key returns the original session.
type Backend interface {
	Register(ctx context.Context, phone, pin string, proof provider.Confirmation, key string) (session.Session, error)
	Login(ctx context.Context, phone, pin string) (session.Session, error)
	ResetPIN(ctx context.Context, phone, pin string, proof provider.Confirmation, key string) (session.Session, error)
	Logout(ctx context.Context, token string) error
}

type Machine struct {
	provider provider.IdentityProvider
	backend  Backend
	boot     *session.Bootstrap
	policy   *lockout.Policy
	logger   *slog.Logger
	now      func() time.Time
	timeout  time.Duration
	resend   *rate.Limiter
	group    singleflight.Group

	codeLength  int
	pinLength   int
	countryCode string

	lockoutStore lockout.Store
	lockoutOpts  []lockout.Option

	mu       sync.Mutex
	state    State
	gen      uint64
	inflight map[uint64]context.CancelFunc
	nextCall uint64
}

type Option func(*Machine)

func WithLogger(l *slog.Logger) Option {
	return func(m *Machine) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithNowTime injects the clock used by the machine and its lockout policy.
func WithNowTime(now func() time.Time) Option {
	return func(m *Machine) {
		if now != nil {
			m.now = now
		}
	}
}

// WithLockoutStore replaces the in-memory lockout store.
func WithLockoutStore(s lockout.Store) Option {
	return func(m *Machine) { m.lockoutStore = s }
}

// WithLockout sets the failure threshold and the lock duration.
func WithLockout(threshold int, duration time.Duration) Option {
	return func(m *Machine) {
		m.lockoutOpts = append(m.lockoutOpts, lockout.WithThreshold(threshold), lockout.WithDuration(duration))
	}
}

// WithProviderTimeout bounds every provider attempt and backend call.
func WithProviderTimeout(d time.Duration) Option {
	return func(m *Machine) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithResendInterval rejects code requests that come sooner than d after the previous one.
func WithResendInterval(d time.Duration) Option {
	return func(m *Machine) {
		if d > 0 {
			m.resend = rate.NewLimiter(rate.Every(d), 1)
		}
	}
}

func WithCodeLength(n int) Option {
	return func(m *Machine) {
		if n > 0 {
			m.codeLength = n
		}
	}
}

func WithPINLength(n int) Option {
	return func(m *Machine) {
		if n > 0 {
			m.pinLength = n
		}
	}
}

func WithDefaultCountryCode(cc string) Option {
	return func(m *Machine) {
		if cc != "" {
			m.countryCode = cc
		}
	}
}

// New builds a machine in the phone state.
func New(p provider.IdentityProvider, backend Backend, boot *session.Bootstrap, opts ...Option) *Machine {
	m := &Machine{
		provider:    p,
		backend:     backend,
		boot:        boot,
		logger:      logging.Discard(),
		now:         time.Now,
		timeout:     DefaultProviderTimeout,
		codeLength:  DefaultCodeLength,
		pinLength:   DefaultPINLength,
		countryCode: DefaultCountryCode,
		state:       PhoneEntry{},
		inflight:    map[uint64]context.CancelFunc{},
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.lockoutStore == nil {
		m.lockoutStore = lockout.NewMemoryStore()
	}
	m.policy = lockout.NewPolicy(m.lockoutStore, append(m.lockoutOpts, lockout.WithNowTime(m.now))...)
	return m
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Session is the read-only session view for the rest of the application.
func (m *Machine) Session() session.View {
	return m.boot
}

// Lockout returns the local lockout record of a phone number.
func (m *Machine) Lockout(ctx context.Context, raw string) (lockout.State, error) {
	e164, err := phone.Normalize(raw, m.countryCode)
	if err != nil {
		return lockout.State{}, err
	}
	return m.policy.State(ctx, e164)
}

func errAbandoned(cause error) error {
	return autherr.Wrap(autherr.KindCanceled, "flow was abandoned", cause)
}

// begin checks the current state and registers a cancellable call. The returned generation
// must be passed to commit or settle once the call returns.
func (m *Machine) begin(ctx context.Context, op string, allowed func(State) bool) (context.Context, uint64, func(), error) {
	return m.beginWithin(ctx, m.timeout, op, allowed)
}

// attemptBudgeter is implemented by providers that make more than one attempt per call,
// such as provider.Fallback.
type attemptBudgeter interface {
	AttemptBudget() time.Duration
}

// startBudget bounds a code request. ProviderTimeout applies per provider attempt, so a
// provider that falls back gets room for both attempts.
func (m *Machine) startBudget() time.Duration {
	if b, ok := m.provider.(attemptBudgeter); ok && b.AttemptBudget() > m.timeout {
		return b.AttemptBudget()
	}
	return m.timeout
}

func (m *Machine) beginWithin(ctx context.Context, budget time.Duration, op string, allowed func(State) bool) (context.Context, uint64, func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.state.(Abandoned); ok {
		return nil, 0, nil, autherr.Invalid("flow was abandoned, restart it before %s", op)
	}
	if !allowed(m.state) {
		return nil, 0, nil, autherr.Invalid("%s is not allowed in state %s", op, m.state.Kind())
	}
	cctx, cancel := context.WithTimeout(ctx, budget)
	id := m.nextCall
	m.nextCall++
	m.inflight[id] = cancel
	done := func() {
		m.mu.Lock()
		delete(m.inflight, id)
		m.mu.Unlock()
		cancel()
	}
	return cctx, m.gen, done, nil
}

// commit moves to next unless the flow changed generation while the call was in flight.
func (m *Machine) commit(gen uint64, next State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen {
		return errAbandoned(nil)
	}
	m.state = next
	return nil
}

// settle returns err, or a canceled error if the result arrived after an abandon.
func (m *Machine) settle(gen uint64, err error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen {
		return errAbandoned(err)
	}
	return err
}

// resetTo cancels every in-flight call and starts a new generation. Callers hold mu.
func (m *Machine) resetTo(next State) {
	m.gen++
	for id, cancel := range m.inflight {
		cancel()
		delete(m.inflight, id)
	}
	m.state = next
}

// activate enters the active state and hands the session to the bootstrap.
func (m *Machine) activate(ctx context.Context, gen uint64, s session.Session) error {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return errAbandoned(nil)
	}
	prev := m.state
	m.state = Active{Session: s}
	m.mu.Unlock()

	if err := m.boot.Activate(ctx, s); err != nil {
		m.mu.Lock()
		if gen == m.gen {
			m.state = prev
		}
		m.mu.Unlock()
		return fmt.Errorf("persist session: %w", err)
	}
	return nil
}
