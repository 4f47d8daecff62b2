package identity

import "time"

// User is a registered listener account keyed by phone number.
type User struct {
	ID           string
	Phone        string
	PINHash      []byte
	TokenVersion int
	CreatedAt    time.Time
	LastLogin    *time.Time
}
