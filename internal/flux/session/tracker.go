package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"

	"github.com/aussiebroadwan/flux/internal/flux/credstore"
)

// Defaults for TrackerConfig.
const (
	DefaultPollInterval  = time.Second
	DefaultWriteInterval = time.Second
)

// TrackerConfig tunes idle detection.
type TrackerConfig struct {
	// IdleWindow is the inactivity span that ends a session.
	IdleWindow time.Duration

	// PollInterval is how often the idle check runs.
	PollInterval time.Duration

	// WriteInterval is the minimum spacing of persisted activity writes.
	// The in-memory mirror is updated on every event regardless.
	WriteInterval time.Duration
}

func (c TrackerConfig) withDefaults() TrackerConfig {
	if c.IdleWindow <= 0 {
		c.IdleWindow = DefaultIdleWindow
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.WriteInterval < 0 {
		c.WriteInterval = 0
	}
	return c
}

// Tracker records user activity and ends the session after the idle window.
// The idle check reads the shared store so activity in a sibling tab keeps
// this tab alive too.
type Tracker struct {
	creds  *credstore.Credentials
	source ActivitySource
	clock  clockwork.Clock
	logger *slog.Logger
	cfg    TrackerConfig

	mu      sync.Mutex
	mirror  time.Time
	limiter *rate.Limiter
	run     *trackerRun
}

type trackerRun struct {
	stopCh    chan struct{}
	doneCh    chan struct{}
	stopOnce  sync.Once
	unsubOnce sync.Once
	unsub     func()
}

func (r *trackerRun) detach() {
	r.unsubOnce.Do(r.unsub)
}

func (r *trackerRun) stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	<-r.doneCh
	r.detach()
}

// NewTracker returns a stopped tracker. Start begins watching source.
func NewTracker(creds *credstore.Credentials, source ActivitySource, clock clockwork.Clock, logger *slog.Logger, cfg TrackerConfig) *Tracker {
	return &Tracker{
		creds:  creds,
		source: source,
		clock:  clock,
		logger: logger,
		cfg:    cfg.withDefaults(),
	}
}

// Start begins tracking from lastActivity. onIdle is called at most once,
// from the tracker's goroutine, after the tracker has already detached; it
// may call Stop.
func (t *Tracker) Start(lastActivity time.Time, onIdle func()) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.run != nil {
		return ErrAlreadyStarted
	}

	t.mirror = lastActivity
	t.limiter = newWriteLimiter(t.cfg.WriteInterval)

	r := &trackerRun{
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	r.unsub = t.source.Subscribe(TrackedKinds, t.record)
	t.run = r

	ticker := t.clock.NewTicker(t.cfg.PollInterval)
	go t.loop(r, ticker, onIdle)
	return nil
}

// Stop detaches from the activity source and cancels the idle check. It is
// safe to call more than once and from within onIdle.
func (t *Tracker) Stop() {
	t.mu.Lock()
	r := t.run
	t.run = nil
	t.mu.Unlock()

	if r != nil {
		r.stop()
	}
}

// Running reports whether Start has been called without a matching Stop.
func (t *Tracker) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.run != nil
}

// Observe merges an activity time seen elsewhere. Later times win.
func (t *Tracker) Observe(at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if at.After(t.mirror) {
		t.mirror = at
	}
}

// LastActivity returns the in-memory mirror.
func (t *Tracker) LastActivity() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.mirror
}

// Record registers one interaction directly, bypassing the source.
func (t *Tracker) Record(kind ActivityKind) {
	t.record(kind)
}

func (t *Tracker) record(kind ActivityKind) {
	now := t.clock.Now()

	t.mu.Lock()
	if t.run == nil {
		t.mu.Unlock()
		return
	}
	if now.After(t.mirror) {
		t.mirror = now
	}
	persist := t.limiter.AllowN(now, 1)
	t.mu.Unlock()

	if !persist {
		return
	}
	if err := t.creds.Touch(context.Background(), now); err != nil {
		t.logger.Warn("failed to persist activity", "kind", kind, "error", err)
	}
}

func (t *Tracker) loop(r *trackerRun, ticker clockwork.Ticker, onIdle func()) {
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			close(r.doneCh)
			return
		case <-ticker.Chan():
			if !t.idle() {
				continue
			}
			r.detach()
			close(r.doneCh)
			if onIdle != nil {
				onIdle()
			}
			return
		}
	}
}

func (t *Tracker) idle() bool {
	last := t.LastActivity()

	stored, err := t.creds.LastActivity(context.Background())
	if err == nil && stored.After(last) {
		last = stored
		t.Observe(stored)
	}

	return t.clock.Since(last) >= t.cfg.IdleWindow
}

func newWriteLimiter(interval time.Duration) *rate.Limiter {
	if interval <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(interval), 1)
}
