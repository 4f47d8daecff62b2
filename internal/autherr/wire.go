package autherr

import (
	"errors"
	"net/http"
	"time"
)

// Body is the JSON error envelope exchanged between the auth API and its clients.
type Body struct {
	Error             Kind       `json:"error"`
	Message           string     `json:"message"`
	RemainingAttempts *int       `json:"remaining_attempts,omitempty"`
	LockedUntil       *time.Time `json:"locked_until,omitempty"`
}

// ToBody renders err for the wire. Errors without a kind become "unknown" with a generic message.
func ToBody(err error) Body {
	var e *Error
	if !errors.As(err, &e) {
		kind := KindOf(err)
		msg := "internal error"
		if kind == KindProviderUnavailable {
			msg = ErrProviderUnavailable.Message
		}
		return Body{Error: kind, Message: msg}
	}
	b := Body{Error: e.Kind, Message: e.Error()}
	switch e.Kind {
	case KindInvalidCredential:
		n := e.Remaining
		b.RemainingAttempts = &n
	case KindLocked:
		t := e.LockedUntil.UTC()
		b.LockedUntil = &t
	case KindProviderUnavailable:
		b.Message = ErrProviderUnavailable.Message
	}
	return b
}

// Err turns a decoded envelope back into an *Error. status is used when the kind is missing.
func (b Body) Err(status int) error {
	kind := b.Error
	if kind == "" {
		kind = KindFromStatus(status)
	}
	e := &Error{Kind: kind, Message: b.Message}
	if b.RemainingAttempts != nil {
		e.Remaining = *b.RemainingAttempts
	}
	if b.LockedUntil != nil {
		e.LockedUntil = *b.LockedUntil
	}
	return e
}

// HTTPStatus maps a kind to its response status.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindInvalidInput, KindInvalidCode, KindExpiredCode, KindInvalidCredential:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindLocked:
		return http.StatusLocked
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindProviderUnavailable:
		return http.StatusServiceUnavailable
	case KindCanceled:
		return 499
	default:
		return http.StatusInternalServerError
	}
}

// KindFromStatus guesses a kind from a bare status code.
func KindFromStatus(status int) Kind {
	switch {
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return KindInvalidInput
	case status == http.StatusUnauthorized:
		return KindInvalidCredential
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusConflict:
		return KindConflict
	case status == http.StatusLocked:
		return KindLocked
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status >= 500:
		return KindProviderUnavailable
	default:
		return KindUnknown
	}
}
