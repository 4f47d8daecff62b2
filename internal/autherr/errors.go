package autherr

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Kind classifies an authentication failure for callers that need to react to it.
type Kind string

const (
	KindInvalidInput        Kind = "invalid_input"
	KindInvalidCode         Kind = "invalid_code"
	KindExpiredCode         Kind = "expired_code"
	KindInvalidCredential   Kind = "invalid_credential"
	KindLocked              Kind = "locked"
	KindProviderUnavailable Kind = "provider_unavailable"
	KindRateLimited         Kind = "rate_limited"
	KindConflict            Kind = "conflict"
	KindNotFound            Kind = "not_found"
	KindCanceled            Kind = "canceled"
	KindUnknown             Kind = "unknown"
)

// Error is the single error type shared by the flow, the API client and the server.
type Error struct {
	Kind    Kind
	Message string
	// Remaining is the number of PIN attempts left before lockout (invalid_credential only).
	Remaining int
	// LockedUntil is set for KindLocked.
	LockedUntil time.Time
	Err         error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so the package sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrInvalidInput        = &Error{Kind: KindInvalidInput, Message: "invalid input"}
	ErrInvalidCode         = &Error{Kind: KindInvalidCode, Message: "invalid verification code"}
	ErrExpiredCode         = &Error{Kind: KindExpiredCode, Message: "verification code expired"}
	ErrInvalidCredential   = &Error{Kind: KindInvalidCredential, Message: "invalid PIN"}
	ErrLocked              = &Error{Kind: KindLocked, Message: "account locked"}
	ErrProviderUnavailable = &Error{Kind: KindProviderUnavailable, Message: "verification provider unavailable"}
	ErrRateLimited         = &Error{Kind: KindRateLimited, Message: "too many requests"}
	ErrConflict            = &Error{Kind: KindConflict, Message: "already exists"}
	ErrNotFound            = &Error{Kind: KindNotFound, Message: "not found"}
	ErrCanceled            = &Error{Kind: KindCanceled, Message: "canceled"}
)

// Invalid reports malformed input with a user-facing message.
func Invalid(format string, args ...any) error {
	return &Error{Kind: KindInvalidInput, Message: fmt.Sprintf(format, args...)}
}

// Credential reports a wrong PIN with the attempts left before lockout.
func Credential(remaining int) error {
	if remaining < 0 {
		remaining = 0
	}
	return &Error{
		Kind:      KindInvalidCredential,
		Message:   fmt.Sprintf("invalid PIN, %d attempts remaining", remaining),
		Remaining: remaining,
	}
}

// Locked reports a lockout that lasts until the given instant.
func Locked(until time.Time) error {
	return &Error{
		Kind:        KindLocked,
		Message:     fmt.Sprintf("too many failed attempts, locked until %s", until.UTC().Format(time.RFC3339)),
		LockedUntil: until,
	}
}

// Unavailable wraps a provider-side failure that is worth a fallback.
func Unavailable(err error) error {
	return &Error{Kind: KindProviderUnavailable, Message: "verification provider unavailable", Err: err}
}

// New builds an error of an arbitrary kind.
func New(kind Kind, message string) error {
	return &Error{Kind: kind, Message: message}
}

// Wrap attaches a kind to an underlying error.
func Wrap(kind Kind, message string, err error) error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf classifies err. Deadlines count as provider unavailability, cancellation as canceled.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return KindProviderUnavailable
	case errors.Is(err, context.Canceled):
		return KindCanceled
	}
	return KindUnknown
}

// LockedUntil extracts the lock expiry from err, if any.
func LockedUntil(err error) (time.Time, bool) {
	var e *Error
	if errors.As(err, &e) && e.Kind == KindLocked {
		return e.LockedUntil, true
	}
	return time.Time{}, false
}

// Remaining extracts the remaining PIN attempts from err, if any.
func Remaining(err error) (int, bool) {
	var e *Error
	if errors.As(err, &e) && e.Kind == KindInvalidCredential {
		return e.Remaining, true
	}
	return 0, false
}
