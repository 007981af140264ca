package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/flux/internal/flux/credstore"
)

// Target is the tab state the Synchronizer drives.
type Target interface {
	HasSession() bool
	// LogoutFromOtherTab ends the local session without writing to the store.
	LogoutFromOtherTab(ctx context.Context)
	ObserveActivity(at time.Time)
	AdoptSession(ctx context.Context) error
}

// Synchronizer mirrors changes made by sibling tabs into this tab. Its
// handlers are idempotent; events may arrive in any interleaving.
type Synchronizer struct {
	Target Target
	Logger *slog.Logger
}

// OnStorageEvent handles a change made by another tab. An empty newValue
// means the key was removed.
func (s *Synchronizer) OnStorageEvent(ctx context.Context, key, newValue string) {
	switch key {
	case credstore.KeyLogout:
		if newValue == "" {
			return
		}
		s.Logger.Debug("logout observed from another tab")
		s.Target.LogoutFromOtherTab(ctx)

	case credstore.KeyLastActivity:
		if newValue == "" {
			return
		}
		at, err := credstore.ParseMillis(newValue)
		if err != nil {
			s.Logger.Debug("ignoring malformed activity timestamp", "value", newValue)
			return
		}
		s.Target.ObserveActivity(at)

	case credstore.KeyUser:
		if newValue == "" || s.Target.HasSession() {
			return
		}
		s.Logger.Debug("session observed from another tab")
		if err := s.Target.AdoptSession(ctx); err != nil {
			s.Logger.Warn("failed to adopt session from another tab", "error", err)
		}
	}
}

// Handle adapts OnStorageEvent to credstore.Credentials.Watch.
func (s *Synchronizer) Handle(ctx context.Context) func(credstore.Change) {
	return func(c credstore.Change) {
		value := c.NewValue
		if c.Deleted {
			value = ""
		}
		s.OnStorageEvent(ctx, c.Key, value)
	}
}
