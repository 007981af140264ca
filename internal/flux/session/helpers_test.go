package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/flux/internal/flux/credstore"
	"github.com/aussiebroadwan/flux/internal/flux/credstore/drivers/memory"
	"github.com/aussiebroadwan/flux/internal/flux/domain"
	"github.com/aussiebroadwan/flux/pkg/fluxsdk"
	"github.com/aussiebroadwan/flux/pkg/idx"
	"github.com/aussiebroadwan/flux/pkg/slogx"
)

var (
	t0    = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	alice = domain.User{ID: "u-alice", Email: "alice@example.com", Name: "Alice", Role: domain.RoleAdmin}
	bob   = domain.User{ID: "u-bob", Email: "bob@example.com", Name: "Bob", Role: domain.RoleViewer}
)

// fakeAPI answers sign-in and verification without a network.
type fakeAPI struct {
	mu          sync.Mutex
	valid       bool
	verifyErr   error
	verifyUser  *domain.User
	verifyCalls int
	authUser    domain.User
	authToken   string
	authErr     error
	authCalls   int
}

func (f *fakeAPI) VerifyToken(_ context.Context, _ string) (*fluxsdk.VerifyResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verifyCalls++
	if f.verifyErr != nil {
		return nil, f.verifyErr
	}
	return &fluxsdk.VerifyResponse{Valid: f.valid, User: f.verifyUser}, nil
}

func (f *fakeAPI) GoogleAuth(_ context.Context, _ string) (*fluxsdk.AuthResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.authCalls++
	if f.authErr != nil {
		return nil, f.authErr
	}
	return &fluxsdk.AuthResponse{User: f.authUser, Token: f.authToken}, nil
}

func (f *fakeAPI) verifications() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.verifyCalls
}

// notices records everything a Manager tells the user.
type notices struct {
	mu  sync.Mutex
	all []Notice
}

func (n *notices) Notify(x Notice) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.all = append(n.all, x)
}

func (n *notices) kinds() []NoticeKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]NoticeKind, 0, len(n.all))
	for _, x := range n.all {
		out = append(out, x.Kind)
	}
	return out
}

func (n *notices) count(kind NoticeKind) int {
	c := 0
	for _, k := range n.kinds() {
		if k == kind {
			c++
		}
	}
	return c
}

// storeSpy counts writes per key.
type storeSpy struct {
	mu     sync.Mutex
	writes map[string]int
}

func spyOn(t *testing.T, store credstore.Store) *storeSpy {
	t.Helper()
	s := &storeSpy{writes: map[string]int{}}
	cancel, err := store.Subscribe(func(ev credstore.Event) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.writes[ev.Key]++
	})
	require.NoError(t, err)
	t.Cleanup(cancel)
	return s
}

func (s *storeSpy) count(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes[key]
}

// tab bundles what one browser tab would own.
type tab struct {
	creds   *credstore.Credentials
	bus     *ActivityBus
	manager *Manager
	notices *notices
}

func newTab(t *testing.T, store credstore.Store, api API, clock clockwork.Clock) *tab {
	t.Helper()

	tb := &tab{
		creds:   credstore.New(store, idx.New(), credstore.WithClock(clock)),
		bus:     NewActivityBus(),
		notices: &notices{},
	}
	tb.manager = NewManager(tb.creds, api, tb.bus,
		WithClock(clock),
		WithLogger(slogx.Discard()),
		WithNotifier(tb.notices),
		WithTrackerConfig(TrackerConfig{
			IdleWindow:    10 * time.Minute,
			PollInterval:  time.Second,
			WriteInterval: time.Second,
		}),
	)
	t.Cleanup(func() { _ = tb.manager.Close() })
	return tb
}

func newStore(t *testing.T, clock clockwork.Clock) *memory.Store {
	t.Helper()
	s := memory.NewStore().WithNow(clock.Now)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// seed stores a session the way a previous run would have left it.
func seed(t *testing.T, store credstore.Store, u domain.User, token string, lastActivity time.Time) {
	t.Helper()
	creds := credstore.New(store, idx.New())
	require.NoError(t, creds.Save(context.Background(), domain.NewSession(u, token, lastActivity)))
}

func requireCleared(t *testing.T, store credstore.Store) {
	t.Helper()
	for _, key := range []string{credstore.KeyToken, credstore.KeyUser, credstore.KeyLastActivity} {
		_, err := store.Get(context.Background(), key)
		require.ErrorIs(t, err, credstore.ErrNotFound, key)
	}
}

// advance moves the fake clock once the tracker's ticker is waiting on it.
func advance(t *testing.T, clock *clockwork.FakeClock, d time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(d)
}

const (
	eventually = 2 * time.Second
	tick       = time.Millisecond
	quiet      = 50 * time.Millisecond
)
