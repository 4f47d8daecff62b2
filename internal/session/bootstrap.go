package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/raga-mitra/raga_mitra/internal/phone"
)

// View is the read-only side of the session handed to the rest of the application.
type View interface {
	Current() (Session, bool)
	Subscribe(fn func(Event)) (cancel func())
}

// Bootstrap owns the session: it persists it, holds the in-memory copy and notifies
// subscribers. Subscribers run synchronously, after the state change, in subscription order.
type Bootstrap struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	current *Session
	subs    map[int]func(Event)
	order   []int
	nextSub int
}

var _ View = (*Bootstrap)(nil)

func NewBootstrap(store Store, logger *slog.Logger) *Bootstrap {
	return &Bootstrap{store: store, logger: logger, now: time.Now, subs: map[int]func(Event){}}
}

func (b *Bootstrap) Current() (Session, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current == nil {
		return Session{}, false
	}
	return *b.current, true
}

func (b *Bootstrap) Subscribe(fn func(Event)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextSub
	b.nextSub++
	b.subs[id] = fn
	b.order = append(b.order, id)
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs, id)
	}
}

// Activate persists s and announces the login. Activating the session that is already
// current does nothing.
func (b *Bootstrap) Activate(ctx context.Context, s Session) error {
	if s.Token == "" {
		return errors.New("session token is empty")
	}
	b.mu.Lock()
	if b.current != nil && b.current.Token == s.Token {
		b.mu.Unlock()
		return nil
	}
	if s.IssuedAt.IsZero() {
		s.IssuedAt = b.now()
	}
	if err := b.store.Save(ctx, s); err != nil {
		b.mu.Unlock()
		return err
	}
	b.current = &s
	b.mu.Unlock()

	b.logger.Info("session activated", slog.String("user_id", s.User.ID), slog.String("phone", phone.Mask(s.User.Phone)))
	b.emit(Event{Kind: LoggedIn, Session: s})
	return nil
}

// Restore loads the stored session at startup. An expired session is cleared.
func (b *Bootstrap) Restore(ctx context.Context) (Session, bool, error) {
	s, err := b.store.Load(ctx)
	if errors.Is(err, ErrNoSession) {
		return Session{}, false, nil
	}
	if err != nil {
		return Session{}, false, err
	}
	if s.Expired(b.now()) {
		b.logger.Info("stored session expired", slog.String("user_id", s.User.ID))
		return Session{}, false, b.store.Clear(ctx)
	}
	if err := b.Activate(ctx, s); err != nil {
		return Session{}, false, err
	}
	return s, true, nil
}

// Logout clears storage and announces the logout if a session was active.
func (b *Bootstrap) Logout(ctx context.Context) error {
	b.mu.Lock()
	if err := b.store.Clear(ctx); err != nil {
		b.mu.Unlock()
		return err
	}
	prev := b.current
	b.current = nil
	b.mu.Unlock()

	if prev != nil {
		b.emit(Event{Kind: LoggedOut, Session: *prev})
	}
	return nil
}

func (b *Bootstrap) emit(ev Event) {
	b.mu.Lock()
	fns := make([]func(Event), 0, len(b.subs))
	live := b.order[:0]
	for _, id := range b.order {
		if fn, ok := b.subs[id]; ok {
			fns = append(fns, fn)
			live = append(live, id)
		}
	}
	b.order = live
	b.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}
