package flow

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/raga-mitra/raga_mitra/internal/autherr"
	"github.com/raga-mitra/raga_mitra/internal/phone"
	"github.com/raga-mitra/raga_mitra/internal/provider"
)

func canRequestCode(st State) bool {
	switch st.(type) {
	case PhoneEntry, CodeSent, CodeVerified, PinEntry, Locked:
		return true
	}
	return false
}

func canVerifyPin(st State) bool {
	switch st.(type) {
	case PhoneEntry, PinEntry, Locked:
		return true
	}
	return false
}

// RequestCode starts a phone verification. The verified phone registers a new account, or
// resets the PIN when the phone is currently locked.
func (m *Machine) RequestCode(ctx context.Context, raw string) (provider.Handle, error) {
	return m.requestCode(ctx, raw, PurposeRegister)
}

// RequestReset starts a phone verification that ends in a PIN reset.
func (m *Machine) RequestReset(ctx context.Context, raw string) (provider.Handle, error) {
	return m.requestCode(ctx, raw, PurposeReset)
}

func (m *Machine) requestCode(ctx context.Context, raw string, purpose Purpose) (provider.Handle, error) {
	e164, err := phone.Normalize(raw, m.countryCode)
	if err != nil {
		return provider.Handle{}, err
	}
	cctx, gen, done, err := m.beginWithin(ctx, m.startBudget(), "requesting a code", canRequestCode)
	if err != nil {
		return provider.Handle{}, err
	}
	defer done()

	if m.resend != nil && !m.resend.AllowN(m.now(), 1) {
		return provider.Handle{}, autherr.New(autherr.KindRateLimited, "a code was just sent, wait before requesting another")
	}
	if purpose == PurposeRegister {
		err := m.policy.Check(cctx, e164)
		switch autherr.KindOf(err) {
		case "":
		case autherr.KindLocked:
			purpose = PurposeReset
		default:
			return provider.Handle{}, err
		}
	}

	v, err, shared := m.group.Do("start:"+e164, func() (any, error) {
		return m.provider.StartVerification(cctx, e164)
	})
	if err != nil {
		m.logger.Warn("code request failed", slog.String("phone", phone.Mask(e164)), slog.Any("error", err))
		return provider.Handle{}, m.settle(gen, err)
	}
	h := v.(provider.Handle)
	if err := m.commit(gen, CodeSent{Handle: h, Purpose: purpose}); err != nil {
		return provider.Handle{}, err
	}
	m.logger.Info("verification code requested",
		slog.String("phone", phone.Mask(e164)),
		slog.String("source", string(h.Source)),
		slog.String("purpose", string(purpose)),
		slog.Bool("shared", shared))
	return h, nil
}

// SubmitCode confirms the code for the current handle. A wrong or expired code leaves the
// machine in otp-sent so the code can be submitted again.
func (m *Machine) SubmitCode(ctx context.Context, h provider.Handle, code string) error {
	if err := phone.ValidateDigits(code, m.codeLength, "verification code"); err != nil {
		return err
	}
	var purpose Purpose
	cctx, gen, done, err := m.begin(ctx, "submitting a code", func(st State) bool {
		cs, ok := st.(CodeSent)
		purpose = cs.Purpose
		return ok && cs.Handle.ID == h.ID
	})
	if err != nil {
		return err
	}
	defer done()

	v, err, _ := m.group.Do("confirm:"+h.ID+":"+code, func() (any, error) {
		return m.provider.ConfirmCode(cctx, h, code)
	})
	if err != nil {
		return m.settle(gen, err)
	}
	conf := v.(provider.Confirmation)
	if conf.Phone == "" {
		conf.Phone = h.Phone
	}
	return m.commit(gen, CodeVerified{Confirmation: conf, Purpose: purpose, RequestKey: uuid.NewString()})
}

// SetPin registers the account or resets its PIN with the verified phone, then activates
// the returned session.
func (m *Machine) SetPin(ctx context.Context, pin string) error {
	var cv CodeVerified
	cctx, gen, done, err := m.begin(ctx, "setting a PIN", func(st State) bool {
		v, ok := st.(CodeVerified)
		cv = v
		return ok
	})
	if err != nil {
		return err
	}
	defer done()
	if err := phone.ValidateDigits(pin, m.pinLength, "PIN"); err != nil {
		return err
	}

	e164 := cv.Confirmation.Phone
	set := m.backend.Register
	if cv.Purpose == PurposeReset {
		set = m.backend.ResetPIN
	}
	s, err := set(cctx, e164, pin, cv.Confirmation, cv.RequestKey)
	if err != nil {
		return m.settle(gen, err)
	}
	if cv.Purpose == PurposeReset {
		if err := m.policy.Succeed(cctx, e164); err != nil {
			m.logger.Warn("clear local lockout", slog.String("phone", phone.Mask(e164)), slog.Any("error", err))
		}
	}
	return m.activate(ctx, gen, s)
}

// VerifyPin logs a returning user in. While the phone is locked every attempt is rejected,
// including the correct PIN.
func (m *Machine) VerifyPin(ctx context.Context, raw, pin string) error {
	e164, err := phone.Normalize(raw, m.countryCode)
	if err != nil {
		return err
	}
	if err := phone.ValidateDigits(pin, m.pinLength, "PIN"); err != nil {
		return err
	}
	cctx, gen, done, err := m.begin(ctx, "verifying a PIN", canVerifyPin)
	if err != nil {
		return err
	}
	defer done()

	if err := m.policy.Check(cctx, e164); err != nil {
		if until, ok := autherr.LockedUntil(err); ok {
			if cerr := m.commit(gen, Locked{Phone: e164, Until: until}); cerr != nil {
				return cerr
			}
		}
		return err
	}

	s, err := m.backend.Login(cctx, e164, pin)
	if err != nil {
		return m.loginFailed(cctx, gen, e164, err)
	}
	if err := m.policy.Succeed(cctx, e164); err != nil {
		m.logger.Warn("reset local lockout", slog.String("phone", phone.Mask(e164)), slog.Any("error", err))
	}
	return m.activate(ctx, gen, s)
}

func (m *Machine) loginFailed(ctx context.Context, gen uint64, e164 string, err error) error {
	if err := m.settle(gen, err); autherr.KindOf(err) == autherr.KindCanceled {
		return err
	}
	switch autherr.KindOf(err) {
	case autherr.KindInvalidCredential:
		st, ferr := m.policy.Fail(ctx, e164)
		if st.Locked(m.now()) {
			m.logger.Warn("phone locked after failed PIN attempts",
				slog.String("phone", phone.Mask(e164)), slog.Time("locked_until", st.LockedUntil))
			if cerr := m.commit(gen, Locked{Phone: e164, Until: st.LockedUntil}); cerr != nil {
				return cerr
			}
			return ferr
		}
		if autherr.KindOf(ferr) != autherr.KindInvalidCredential {
			return ferr
		}
		remaining, _ := autherr.Remaining(ferr)
		if cerr := m.commit(gen, PinEntry{Phone: e164, Remaining: remaining}); cerr != nil {
			return cerr
		}
		return ferr
	case autherr.KindLocked:
		until, _ := autherr.LockedUntil(err)
		if lerr := m.policy.Lock(ctx, e164, until); lerr != nil {
			m.logger.Warn("adopt server lockout", slog.String("phone", phone.Mask(e164)), slog.Any("error", lerr))
		}
		if cerr := m.commit(gen, Locked{Phone: e164, Until: until}); cerr != nil {
			return cerr
		}
		return err
	default:
		return err
	}
}

// Abandon cancels in-flight calls and leaves the flow. Results that arrive afterwards are
// discarded. An active session is left alone; use Logout to end it.
func (m *Machine) Abandon() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.state.(Active); ok {
		return autherr.Invalid("session is active, log out instead")
	}
	m.resetTo(Abandoned{})
	return nil
}

// Restart returns an abandoned or unfinished flow to the phone state.
func (m *Machine) Restart() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.state.(Active); ok {
		return autherr.Invalid("session is active, log out instead")
	}
	m.resetTo(PhoneEntry{})
	return nil
}

// Resume restores a persisted session. It reports false when none is stored.
func (m *Machine) Resume(ctx context.Context) (bool, error) {
	m.mu.Lock()
	if _, ok := m.state.(PhoneEntry); !ok {
		kind := m.state.Kind()
		m.mu.Unlock()
		return false, autherr.Invalid("resuming a session is not allowed in state %s", kind)
	}
	gen := m.gen
	m.mu.Unlock()

	s, ok, err := m.boot.Restore(ctx)
	if err != nil || !ok {
		return false, err
	}
	if err := m.commit(gen, Active{Session: s}); err != nil {
		return false, err
	}
	return true, nil
}

// Logout revokes the session on the backend and clears it locally. A backend failure is
// logged; the local session is cleared regardless.
func (m *Machine) Logout(ctx context.Context) error {
	var active Active
	cctx, _, done, err := m.begin(ctx, "logging out", func(st State) bool {
		a, ok := st.(Active)
		active = a
		return ok
	})
	if err != nil {
		return err
	}
	err = m.backend.Logout(cctx, active.Session.Token)
	done()
	if err != nil {
		m.logger.Warn("server logout failed", slog.String("user_id", active.Session.User.ID), slog.Any("error", err))
	}
	if err := m.boot.Logout(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	m.resetTo(PhoneEntry{})
	m.mu.Unlock()
	return nil
}
