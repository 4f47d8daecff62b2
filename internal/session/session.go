// Package session keeps the authenticated session of the client process. Bootstrap is the
// only writer; the rest of the application reads it through View.
package session

import (
	"context"
	"errors"
	"time"
)

// ErrNoSession is returned by stores that hold no session.
var ErrNoSession = errors.New("no stored session")

type User struct {
	ID        string    `json:"id"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"created_at"`
}

// Session is created only after a successful PIN verification or PIN set/reset.
type Session struct {
	Token     string    `json:"token"`
	User      User      `json:"user"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the token lifetime is over at now. Sessions without an expiry
// never expire locally.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Store is durable client storage for the current session.
type Store interface {
	Load(ctx context.Context) (Session, error)
	Save(ctx context.Context, s Session) error
	Clear(ctx context.Context) error
}

type EventKind string

const (
	LoggedIn  EventKind = "logged_in"
	LoggedOut EventKind = "logged_out"
)

// Event is delivered to subscribers on every login or logout.
type Event struct {
	Kind    EventKind
	Session Session
}
