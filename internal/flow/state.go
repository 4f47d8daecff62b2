package flow

import (
	"time"

	"github.com/raga-mitra/raga_mitra/internal/provider"
	"github.com/raga-mitra/raga_mitra/internal/session"
)

// Kind names a state of the machine.
type Kind string

const (
	KindPhone        Kind = "phone"
	KindCodeSent     Kind = "otp-sent"
	KindCodeVerified Kind = "otp-verified"
	KindPinEntry     Kind = "pin-entry"
	KindLocked       Kind = "locked"
	KindActive       Kind = "session-active"
	KindAbandoned    Kind = "abandoned"
)

// Purpose tells SetPin whether the verified phone registers a new account or resets the
// PIN of an existing one.
type Purpose string

const (
	PurposeRegister Purpose = "register"
	PurposeReset    Purpose = "reset"
)

// State is one of PhoneEntry, CodeSent, CodeVerified, PinEntry, Locked, Active or Abandoned.
type State interface {
	Kind() Kind
	state()
}

type PhoneEntry struct{}

type CodeSent struct {
	Handle  provider.Handle
	Purpose Purpose
}

// CodeVerified holds the ownership proof. RequestKey identifies the PIN request made with
// it, so a SetPin retried after a lost response is recognised by the backend.
type CodeVerified struct {
	Confirmation provider.Confirmation
	Purpose      Purpose
	RequestKey   string
}

// PinEntry follows a wrong PIN that did not lock the phone.
type PinEntry struct {
	Phone     string
	Remaining int
}

type Locked struct {
	Phone string
	Until time.Time
}

type Active struct {
	Session session.Session
}

type Abandoned struct{}

func (PhoneEntry) Kind() Kind   { return KindPhone }
func (CodeSent) Kind() Kind     { return KindCodeSent }
func (CodeVerified) Kind() Kind { return KindCodeVerified }
func (PinEntry) Kind() Kind     { return KindPinEntry }
func (Locked) Kind() Kind       { return KindLocked }
func (Active) Kind() Kind       { return KindActive }
func (Abandoned) Kind() Kind    { return KindAbandoned }

func (PhoneEntry) state()   {}
func (CodeSent) state()     {}
func (CodeVerified) state() {}
func (PinEntry) state()     {}
func (Locked) state()       {}
func (Active) state()       {}
func (Abandoned) state()    {}
