package apiclient

import (
	"context"
	"time"

	"github.com/raga-mitra/raga_mitra/internal/provider"
	"github.com/raga-mitra/raga_mitra/internal/session"
)

// SessionBackend exposes the account endpoints in the shape the flow machine consumes.
type SessionBackend struct {
	client *Client
	now    func() time.Time
}

func NewSessionBackend(client *Client) *SessionBackend {
	return &SessionBackend{client: client, now: time.Now}
}

func proofOf(c provider.Confirmation) Proof {
	return Proof{Code: c.Code, IDToken: c.IDToken}
}

func (b *SessionBackend) toSession(s Session) session.Session {
	return session.Session{
		Token:     s.Token,
		User:      session.User{ID: s.User.ID, Phone: s.User.Phone, CreatedAt: s.User.CreatedAt},
		IssuedAt:  b.now(),
		ExpiresAt: s.ExpiresAt,
	}
}

func (b *SessionBackend) Register(ctx context.Context, phone, pin string, proof provider.Confirmation, key string) (session.Session, error) {
	s, err := b.client.Register(ctx, phone, pin, proofOf(proof), key)
	if err != nil {
		return session.Session{}, err
	}
	return b.toSession(s), nil
}

func (b *SessionBackend) Login(ctx context.Context, phone, pin string) (session.Session, error) {
	s, err := b.client.Login(ctx, phone, pin)
	if err != nil {
		return session.Session{}, err
	}
	return b.toSession(s), nil
}

func (b *SessionBackend) ResetPIN(ctx context.Context, phone, pin string, proof provider.Confirmation, key string) (session.Session, error) {
	s, err := b.client.ResetPIN(ctx, phone, pin, proofOf(proof), key)
	if err != nil {
		return session.Session{}, err
	}
	return b.toSession(s), nil
}

func (b *SessionBackend) Logout(ctx context.Context, token string) error {
	return b.client.Logout(ctx, token)
}
