package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/aussiebroadwan/flux/internal/flux/credstore"
	"github.com/aussiebroadwan/flux/internal/flux/domain"
	"github.com/aussiebroadwan/flux/pkg/fluxsdk"
	"github.com/aussiebroadwan/flux/pkg/jwtx"
)

// DefaultIdleWindow is how long a session may go without activity.
const DefaultIdleWindow = 10 * time.Minute

// Status is the outcome of startup verification.
type Status int

const (
	// Absent means there was no stored session to verify.
	Absent Status = iota
	// Resumed means the stored session is valid and now active.
	Resumed
	// Rejected means a stored session existed but was discarded.
	Rejected
)

func (s Status) String() string {
	switch s {
	case Absent:
		return "absent"
	case Resumed:
		return "resumed"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Reason explains a rejection.
type Reason string

const (
	ReasonNone        Reason = ""
	ReasonIdleExpired Reason = "idle_expired"
	ReasonExpired     Reason = "expired"
	ReasonInvalid     Reason = "invalid"
	ReasonUnreachable Reason = "unreachable"
)

// Result of VerifyOnStartup. Session is set only when Status is Resumed.
type Result struct {
	Status  Status
	Reason  Reason
	Session domain.Session
}

// TokenVerifier confirms a token with the API.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (*fluxsdk.VerifyResponse, error)
}

// Verifier decides whether a stored session may be resumed.
type Verifier struct {
	Creds      *credstore.Credentials
	API        TokenVerifier
	Clock      clockwork.Clock
	IdleWindow time.Duration
	Logger     *slog.Logger
}

// VerifyOnStartup loads the stored session and confirms it. Any session that
// is idle, expired or refused by the API is cleared from the store. The
// returned error is only set when the store itself fails.
func (v *Verifier) VerifyOnStartup(ctx context.Context) (Result, error) {
	s, err := v.Creds.Load(ctx)
	switch {
	case errors.Is(err, credstore.ErrNoSession):
		return Result{Status: Absent}, nil
	case errors.Is(err, credstore.ErrCorrupt):
		v.Logger.Warn("stored session is unreadable", "error", err)
		return v.reject(ctx, ReasonInvalid), nil
	case err != nil:
		return Result{}, err
	}

	now := v.Clock.Now()
	if now.Sub(s.LastActivityAt) >= v.idleWindow() {
		v.Logger.Info("stored session idle too long", "last_activity", s.LastActivityAt)
		return v.reject(ctx, ReasonIdleExpired), nil
	}

	// Opaque tokens fail to decode and go straight to the API.
	if claims, err := jwtx.Decode(s.Token); err == nil {
		if err := claims.ValidateExpiryWithLeeway(now, 0); errors.Is(err, jwtx.ErrExpired) {
			v.Logger.Info("stored token has expired", "expires_at", claims.ExpiresAt.Time)
			return v.reject(ctx, ReasonExpired), nil
		}
	}

	resp, err := v.API.VerifyToken(ctx, s.Token)
	if err != nil {
		reason := ReasonInvalid
		if errors.Is(err, fluxsdk.ErrTransport) {
			reason = ReasonUnreachable
		}
		v.Logger.Info("token verification failed", "error", err)
		return v.reject(ctx, reason), nil
	}
	if !resp.Valid {
		return v.reject(ctx, ReasonInvalid), nil
	}

	if resp.User != nil && resp.User.ID == s.UserID {
		s = domain.NewSession(*resp.User, s.Token, now)
	}
	s.LastActivityAt = now

	if err := v.Creds.Save(ctx, s); err != nil {
		return Result{}, err
	}
	return Result{Status: Resumed, Session: s}, nil
}

func (v *Verifier) reject(ctx context.Context, reason Reason) Result {
	if err := v.Creds.Clear(ctx); err != nil {
		v.Logger.Warn("failed to clear rejected session", "error", err)
	}
	return Result{Status: Rejected, Reason: reason}
}

func (v *Verifier) idleWindow() time.Duration {
	if v.IdleWindow <= 0 {
		return DefaultIdleWindow
	}
	return v.IdleWindow
}
