package session

import "errors"

var (
	ErrNotAuthenticated     = errors.New("session: not authenticated")
	ErrAlreadyAuthenticated = errors.New("session: already authenticated")
	ErrAlreadyStarted       = errors.New("session: already started")
	ErrNotStarted           = errors.New("session: not started")
	ErrClosed               = errors.New("session: closed")
)

// State is a point in a tab's session lifecycle:
//
//	Unauthenticated -> Verifying -> Authenticated -> (IdleExpired | LoggedOut) -> Unauthenticated
//
// IdleExpired and LoggedOut are transient; a tab passes through them on the
// way back to Unauthenticated.
type State int

const (
	Unauthenticated State = iota
	Verifying
	Authenticated
	IdleExpired
	LoggedOut
)

func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case Verifying:
		return "verifying"
	case Authenticated:
		return "authenticated"
	case IdleExpired:
		return "idle_expired"
	case LoggedOut:
		return "logged_out"
	default:
		return "unknown"
	}
}
