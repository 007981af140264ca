package session

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/flux/internal/flux/credstore"
	"github.com/aussiebroadwan/flux/pkg/idx"
	"github.com/aussiebroadwan/flux/pkg/slogx"
)

type trackerFixture struct {
	clock   *clockwork.FakeClock
	store   credstore.Store
	creds   *credstore.Credentials
	bus     *ActivityBus
	tracker *Tracker
	idle    atomic.Int32
}

func newTrackerFixture(t *testing.T) *trackerFixture {
	t.Helper()
	clock := clockwork.NewFakeClockAt(t0)
	store := newStore(t, clock)
	f := &trackerFixture{
		clock: clock,
		store: store,
		creds: credstore.New(store, idx.New(), credstore.WithClock(clock)),
		bus:   NewActivityBus(),
	}
	f.tracker = NewTracker(f.creds, f.bus, clock, slogx.Discard(), TrackerConfig{
		IdleWindow:    10 * time.Minute,
		PollInterval:  time.Second,
		WriteInterval: time.Second,
	})
	t.Cleanup(f.tracker.Stop)
	return f
}

func (f *trackerFixture) start(t *testing.T) {
	t.Helper()
	require.NoError(t, f.tracker.Start(f.clock.Now(), func() { f.idle.Add(1) }))
}

func TestTrackerIdleFiresExactlyOnce(t *testing.T) {
	f := newTrackerFixture(t)
	f.start(t)

	advance(t, f.clock, 9*time.Minute)
	require.Never(t, func() bool { return f.idle.Load() > 0 }, quiet, tick)

	advance(t, f.clock, time.Minute)
	require.Eventually(t, func() bool { return f.idle.Load() == 1 }, eventually, tick)

	// The loop has exited; more time changes nothing.
	f.clock.Advance(time.Hour)
	require.Never(t, func() bool { return f.idle.Load() > 1 }, quiet, tick)
	require.Zero(t, f.bus.Listeners())
}

func TestTrackerActivityResetsIdleClock(t *testing.T) {
	f := newTrackerFixture(t)
	f.start(t)

	advance(t, f.clock, 9*time.Minute)
	f.bus.Emit(KeyDown)
	require.Equal(t, f.clock.Now(), f.tracker.LastActivity())

	advance(t, f.clock, 9*time.Minute)
	require.Never(t, func() bool { return f.idle.Load() > 0 }, quiet, tick)

	advance(t, f.clock, time.Minute)
	require.Eventually(t, func() bool { return f.idle.Load() == 1 }, eventually, tick)
}

func TestTrackerIgnoresUntrackedKinds(t *testing.T) {
	f := newTrackerFixture(t)
	f.start(t)

	advance(t, f.clock, 5*time.Minute)
	f.bus.Emit(ActivityKind("mouse-move"))
	require.Equal(t, t0, f.tracker.LastActivity())
}

func TestTrackerHonoursSiblingActivityInStore(t *testing.T) {
	f := newTrackerFixture(t)
	f.start(t)

	advance(t, f.clock, 9*time.Minute)

	// Another tab records activity; nothing reaches this tab's mirror directly.
	sibling := credstore.New(f.store, idx.New())
	require.NoError(t, sibling.Touch(context.Background(), f.clock.Now()))

	advance(t, f.clock, 9*time.Minute)
	require.Never(t, func() bool { return f.idle.Load() > 0 }, quiet, tick)

	advance(t, f.clock, time.Minute)
	require.Eventually(t, func() bool { return f.idle.Load() == 1 }, eventually, tick)
}

func TestTrackerObserveKeepsLatest(t *testing.T) {
	f := newTrackerFixture(t)
	f.start(t)

	later := t0.Add(time.Minute)
	f.tracker.Observe(later)
	f.tracker.Observe(t0)
	require.Equal(t, later, f.tracker.LastActivity())
}

func TestTrackerThrottlesStoreWrites(t *testing.T) {
	f := newTrackerFixture(t)
	spy := spyOn(t, f.store)
	f.start(t)

	for i := 0; i < 5; i++ {
		f.bus.Emit(Click)
	}
	require.Equal(t, 1, spy.count(credstore.KeyLastActivity))

	advance(t, f.clock, time.Second)
	f.bus.Emit(Scroll)
	require.Equal(t, 2, spy.count(credstore.KeyLastActivity))

	// The mirror still moves on every event.
	f.bus.Emit(TouchStart)
	require.Equal(t, f.clock.Now(), f.tracker.LastActivity())
	require.Equal(t, 2, spy.count(credstore.KeyLastActivity))
}

func TestTrackerStop(t *testing.T) {
	f := newTrackerFixture(t)
	f.start(t)
	require.Equal(t, 1, f.bus.Listeners())
	require.True(t, f.tracker.Running())

	f.tracker.Stop()
	f.tracker.Stop()
	require.Zero(t, f.bus.Listeners())
	require.False(t, f.tracker.Running())

	f.clock.Advance(time.Hour)
	require.Never(t, func() bool { return f.idle.Load() > 0 }, quiet, tick)

	// Events after Stop are not recorded.
	f.bus.Emit(KeyDown)
	require.Equal(t, t0, f.tracker.LastActivity())
}

func TestTrackerStartTwice(t *testing.T) {
	f := newTrackerFixture(t)
	f.start(t)
	require.ErrorIs(t, f.tracker.Start(t0, nil), ErrAlreadyStarted)

	// A stopped tracker can start again.
	f.tracker.Stop()
	f.start(t)
}

func TestTrackerStopFromIdleCallback(t *testing.T) {
	f := newTrackerFixture(t)

	done := make(chan struct{})
	require.NoError(t, f.tracker.Start(t0, func() {
		f.tracker.Stop()
		close(done)
	}))

	advance(t, f.clock, 10*time.Minute)

	select {
	case <-done:
	case <-time.After(eventually):
		t.Fatal("idle callback did not return")
	}
	require.False(t, f.tracker.Running())
}
