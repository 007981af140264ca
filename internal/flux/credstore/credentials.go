package credstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/aussiebroadwan/flux/internal/flux/domain"
	"github.com/aussiebroadwan/flux/pkg/cryptox"
	"github.com/aussiebroadwan/flux/pkg/idx"
)

// Change is a store event as seen by a tab that did not cause it.
type Change struct {
	Key      string
	NewValue string
	Deleted  bool
	Origin   idx.ID
}

// Credentials is the typed view of the Store for one tab. Every write is
// tagged with the tab's id so sibling tabs can tell their own echoes apart.
type Credentials struct {
	store  Store
	tab    idx.ID
	sealer *cryptox.Sealer
	clock  clockwork.Clock
}

// Option configures Credentials.
type Option func(*Credentials)

// WithSealer seals the token at rest.
func WithSealer(s *cryptox.Sealer) Option {
	return func(c *Credentials) { c.sealer = s }
}

// WithClock overrides the clock used for the logout marker.
func WithClock(clock clockwork.Clock) Option {
	return func(c *Credentials) { c.clock = clock }
}

// New returns the credential view of store for tab.
func New(store Store, tab idx.ID, opts ...Option) *Credentials {
	c := &Credentials{
		store: store,
		tab:   tab,
		clock: clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Tab returns the id this view writes under.
func (c *Credentials) Tab() idx.ID { return c.tab }

// storedUser is the user payload kept under KeyUser.
type storedUser struct {
	ID    string      `json:"id"`
	Email string      `json:"email"`
	Name  string      `json:"name"`
	Role  domain.Role `json:"role"`
}

// Save persists the whole session. The user payload is written last: sibling
// tabs adopt a session when that key changes, by which point the token and
// activity timestamp are already in place.
func (c *Credentials) Save(ctx context.Context, s domain.Session) error {
	token, err := c.sealer.Seal(s.Token)
	if err != nil {
		return fmt.Errorf("seal token: %w", err)
	}

	user, err := json.Marshal(storedUser{
		ID:    s.UserID,
		Email: s.Email,
		Name:  s.DisplayName,
		Role:  s.Role,
	})
	if err != nil {
		return fmt.Errorf("encode user: %w", err)
	}

	if err := c.store.Set(ctx, KeyToken, token, c.tab); err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	if err := c.Touch(ctx, s.LastActivityAt); err != nil {
		return err
	}
	if err := c.store.Set(ctx, KeyUser, string(user), c.tab); err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	return nil
}

// Load reads the session. A missing key yields ErrNoSession; a payload that
// cannot be decoded yields ErrCorrupt.
func (c *Credentials) Load(ctx context.Context) (domain.Session, error) {
	token, err := c.get(ctx, KeyToken)
	if err != nil {
		return domain.Session{}, err
	}
	token, err = c.sealer.Open(token)
	if err != nil {
		return domain.Session{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	user, err := c.User(ctx)
	if err != nil {
		return domain.Session{}, err
	}

	last, err := c.LastActivity(ctx)
	if err != nil {
		return domain.Session{}, err
	}

	return domain.NewSession(user, token, last), nil
}

// User decodes the stored user payload.
func (c *Credentials) User(ctx context.Context) (domain.User, error) {
	raw, err := c.get(ctx, KeyUser)
	if err != nil {
		return domain.User{}, err
	}
	return DecodeUser(raw)
}

// DecodeUser parses a KeyUser payload.
func DecodeUser(raw string) (domain.User, error) {
	var u storedUser
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		return domain.User{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if u.ID == "" && u.Email == "" {
		return domain.User{}, fmt.Errorf("%w: empty user", ErrCorrupt)
	}
	return domain.User{ID: u.ID, Email: u.Email, Name: u.Name, Role: u.Role}, nil
}

// Clear removes the session keys and then writes a fresh logout marker.
// Deletions are not reliably observable everywhere, the marker always is.
func (c *Credentials) Clear(ctx context.Context) error {
	var errs []error
	for _, key := range []string{KeyToken, KeyUser, KeyLastActivity} {
		if err := c.store.Delete(ctx, key, c.tab); err != nil {
			errs = append(errs, fmt.Errorf("delete %s: %w", key, err))
		}
	}

	// The event id keeps two logouts in the same millisecond distinct.
	now := c.clock.Now()
	marker := FormatMillis(now) + ":" + idx.NewAt(now).String()
	if err := c.store.Set(ctx, KeyLogout, marker, c.tab); err != nil {
		errs = append(errs, fmt.Errorf("write logout marker: %w", err))
	}

	return errors.Join(errs...)
}

// Touch records user activity at t.
func (c *Credentials) Touch(ctx context.Context, t time.Time) error {
	if err := c.store.Set(ctx, KeyLastActivity, FormatMillis(t), c.tab); err != nil {
		return fmt.Errorf("save last activity: %w", err)
	}
	return nil
}

// LastActivity returns the shared last-activity timestamp.
func (c *Credentials) LastActivity(ctx context.Context) (time.Time, error) {
	raw, err := c.get(ctx, KeyLastActivity)
	if err != nil {
		return time.Time{}, err
	}
	t, err := ParseMillis(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return t, nil
}

// Token returns the stored bearer token, or "" when there is none.
func (c *Credentials) Token(ctx context.Context) (string, error) {
	raw, err := c.store.Get(ctx, KeyToken)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return c.sealer.Open(raw)
}

// Watch delivers changes made by other tabs. Echoes of this tab's own writes
// are dropped.
func (c *Credentials) Watch(fn func(Change)) (cancel func(), err error) {
	return c.store.Subscribe(func(ev Event) {
		if ev.Origin == c.tab {
			return
		}
		fn(Change{Key: ev.Key, NewValue: ev.Value, Deleted: ev.Deleted, Origin: ev.Origin})
	})
}

func (c *Credentials) get(ctx context.Context, key string) (string, error) {
	v, err := c.store.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return "", ErrNoSession
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", key, err)
	}
	return v, nil
}

// FormatMillis encodes t as Unix milliseconds.
func FormatMillis(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

// ParseMillis decodes Unix milliseconds. Anything after a ':' is ignored so
// logout markers parse too.
func ParseMillis(s string) (time.Time, error) {
	s, _, _ = strings.Cut(strings.TrimSpace(s), ":")
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms), nil
}
