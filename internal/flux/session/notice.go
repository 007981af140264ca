package session

import (
	"errors"

	"github.com/aussiebroadwan/flux/internal/flux/domain"
	"github.com/aussiebroadwan/flux/internal/flux/policy"
	"github.com/aussiebroadwan/flux/pkg/fluxsdk"
)

// NoticeKind classifies a message shown to the user.
type NoticeKind string

const (
	NoticeIdle           NoticeKind = "idle"
	NoticeLoggedOut      NoticeKind = "logged-out"
	NoticeCrossTabLogout NoticeKind = "cross-tab-logout"
	NoticeSessionExpired NoticeKind = "session-expired"
	NoticeForbidden      NoticeKind = "forbidden"
	NoticeDenied         NoticeKind = "denied"
	NoticeValidation     NoticeKind = "validation"
	NoticeNetwork        NoticeKind = "network"
	NoticeInfo           NoticeKind = "info"
)

const (
	IdleMessage           = "Your session expired due to inactivity. Please sign in again."
	LoggedOutMessage      = "You have been signed out."
	CrossTabLogoutMessage = "You were signed out in another window."
	SessionExpiredMessage = "Your session has expired. Please sign in again."
)

// Notice is a short user-facing message.
type Notice struct {
	Kind    NoticeKind
	Message string
}

// Notifier receives notices. Implementations must not call back into the
// Manager synchronously.
type Notifier interface {
	Notify(Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notice)

func (f NotifierFunc) Notify(n Notice) { f(n) }

type discardNotifier struct{}

func (discardNotifier) Notify(Notice) {}

// NoticeFor maps an error from a user action to the notice describing it.
func NoticeFor(err error) Notice {
	var (
		denied *policy.DeniedError
		fields domain.FieldErrors
		apiErr *fluxsdk.APIError
	)

	switch {
	case errors.As(err, &denied):
		return Notice{Kind: NoticeDenied, Message: denied.Message}
	case errors.As(err, &fields):
		return Notice{Kind: NoticeValidation, Message: domain.FormInvalidMessage}
	case errors.Is(err, ErrNotAuthenticated), errors.Is(err, fluxsdk.ErrUnauthorized):
		return Notice{Kind: NoticeSessionExpired, Message: SessionExpiredMessage}
	case errors.Is(err, fluxsdk.ErrForbidden):
		return Notice{Kind: NoticeForbidden, Message: fluxsdk.ForbiddenMessage}
	case errors.Is(err, fluxsdk.ErrTransport):
		return Notice{Kind: NoticeNetwork, Message: fluxsdk.TransportMessage}
	case errors.As(err, &apiErr):
		return Notice{Kind: NoticeInfo, Message: apiErr.Message}
	default:
		return Notice{Kind: NoticeInfo, Message: fluxsdk.UnexpectedMessage}
	}
}
