// Package provider abstracts phone-number verification services. The primary service is a
// managed identity provider; the fallback is the auth API's own SMS code delivery.
package provider

import (
	"context"
	"time"
)

// Source identifies which verification service issued a handle.
type Source string

const (
	SourcePrimary  Source = "primary"
	SourceFallback Source = "fallback"
)

// Handle is the opaque reference to an in-progress verification.
type Handle struct {
	ID       string
	Phone    string
	Source   Source
	IssuedAt time.Time
}

// Confirmation proves that the holder controls the phone number. Primary confirmations
// carry an ID token; fallback confirmations carry the verified code, which the auth API
// consumes when the PIN is set.
type Confirmation struct {
	UID     string
	Phone   string
	IDToken string
	Code    string
	Source  Source
}

// IdentityProvider starts and confirms phone verifications.
type IdentityProvider interface {
	StartVerification(ctx context.Context, phone string) (Handle, error)
	ConfirmCode(ctx context.Context, h Handle, code string) (Confirmation, error)
}
