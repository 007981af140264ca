package credstore

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/flux/pkg/idx"
)

var (
	ErrNotFound  = errors.New("credstore: not found")
	ErrNoSession = errors.New("credstore: no session")
	ErrCorrupt   = errors.New("credstore: corrupt session payload")
	ErrClosed    = errors.New("credstore: closed")
)

// Keys shared by every tab. The names match what the web dashboard keeps in
// localStorage so a profile can be inspected with the same vocabulary.
const (
	KeyToken        = "flux_token"
	KeyUser         = "flux_user"
	KeyLastActivity = "lastActivity"
	KeyLogout       = "logout-event"
)

// Event describes one change to the store. Drivers deliver events for writes
// that actually changed something: setting an identical value or deleting a
// missing key is silent.
type Event struct {
	Key     string    `json:"key"`
	Value   string    `json:"value,omitempty"`
	Deleted bool      `json:"deleted,omitempty"`
	Origin  idx.ID    `json:"origin"`
	At      time.Time `json:"at"`
}

// Store is a string key/value space visible to every tab of a profile.
// Concrete drivers (memory, sqlite, redis) implement this. Writers are not
// coordinated: concurrent writes are last-write-wins.
type Store interface {
	// Get returns the value for key or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value under key on behalf of the origin tab.
	Set(ctx context.Context, key, value string, origin idx.ID) error

	// Delete removes key on behalf of the origin tab.
	Delete(ctx context.Context, key string, origin idx.ID) error

	// Subscribe registers fn for every subsequent change, including the
	// subscriber's own writes (Credentials filters those). The returned cancel
	// func stops delivery and is safe to call more than once.
	Subscribe(fn func(Event)) (cancel func(), err error)

	// Close releases the driver's resources.
	Close() error
}
