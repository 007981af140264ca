package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/aussiebroadwan/flux/internal/flux/credstore"
	"github.com/aussiebroadwan/flux/internal/flux/domain"
	"github.com/aussiebroadwan/flux/pkg/fluxsdk"
	"github.com/aussiebroadwan/flux/pkg/slogx"
)

// API is the part of the Flux API the session lifecycle needs.
type API interface {
	TokenVerifier
	GoogleAuth(ctx context.Context, credential string) (*fluxsdk.AuthResponse, error)
}

// Manager owns one tab's session: startup verification, login and logout,
// idle expiry and cross-tab sync. It is safe for concurrent use.
type Manager struct {
	creds    *credstore.Credentials
	api      API
	clock    clockwork.Clock
	logger   *slog.Logger
	notifier Notifier
	cfg      TrackerConfig

	verifier *Verifier
	tracker  *Tracker
	sync     *Synchronizer

	mu      sync.Mutex
	state   State
	session *domain.Session
	gen     uint64
	started bool
	closed  bool
	unwatch func()
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the clock used for expiry and idle checks.
func WithClock(clock clockwork.Clock) Option {
	return func(m *Manager) { m.clock = clock }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithNotifier routes user-facing messages to n.
func WithNotifier(n Notifier) Option {
	return func(m *Manager) { m.notifier = n }
}

// WithTrackerConfig overrides the idle tracker settings.
func WithTrackerConfig(cfg TrackerConfig) Option {
	return func(m *Manager) { m.cfg = cfg }
}

// NewManager builds the session manager for one tab. Call Start to resume a
// stored session.
func NewManager(creds *credstore.Credentials, api API, activity ActivitySource, opts ...Option) *Manager {
	m := &Manager{
		creds:    creds,
		api:      api,
		clock:    clockwork.NewRealClock(),
		logger:   slog.Default(),
		notifier: discardNotifier{},
	}
	for _, opt := range opts {
		opt(m)
	}

	m.logger = m.logger.With("tab", creds.Tab().Short())
	m.cfg = m.cfg.withDefaults()
	m.verifier = &Verifier{
		Creds:      creds,
		API:        api,
		Clock:      m.clock,
		IdleWindow: m.cfg.IdleWindow,
		Logger:     m.logger,
	}
	m.tracker = NewTracker(creds, activity, m.clock, m.logger, m.cfg)
	m.sync = &Synchronizer{Target: m, Logger: m.logger}
	return m
}

// Start verifies the stored session and then begins listening to sibling
// tabs. It runs once per Manager.
func (m *Manager) Start(ctx context.Context) (Result, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return Result{}, ErrClosed
	}
	if m.started {
		m.mu.Unlock()
		return Result{}, ErrAlreadyStarted
	}
	m.started = true
	m.transitionLocked(Verifying, "startup")
	m.mu.Unlock()

	ctx = slogx.WithContext(ctx, m.logger)

	res, err := m.verifier.VerifyOnStartup(ctx)
	if err != nil {
		m.mu.Lock()
		m.transitionLocked(Unauthenticated, "store_error")
		m.mu.Unlock()
		return Result{}, fmt.Errorf("verify stored session: %w", err)
	}

	switch res.Status {
	case Resumed:
		m.authenticate(res.Session, "resumed")
	default:
		m.mu.Lock()
		m.transitionLocked(Unauthenticated, res.Status.String())
		m.mu.Unlock()
		if n, ok := rejectionNotice(res.Reason); ok {
			m.notifier.Notify(n)
		}
	}

	unwatch, err := m.creds.Watch(m.sync.Handle(context.WithoutCancel(ctx)))
	if err != nil {
		return res, fmt.Errorf("watch credential store: %w", err)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		unwatch()
		return res, ErrClosed
	}
	m.unwatch = unwatch
	m.mu.Unlock()

	return res, nil
}

func rejectionNotice(r Reason) (Notice, bool) {
	switch r {
	case ReasonIdleExpired:
		return Notice{Kind: NoticeIdle, Message: IdleMessage}, true
	case ReasonExpired, ReasonInvalid:
		return Notice{Kind: NoticeSessionExpired, Message: SessionExpiredMessage}, true
	case ReasonUnreachable:
		return Notice{Kind: NoticeNetwork, Message: fluxsdk.TransportMessage}, true
	}
	return Notice{}, false
}

// Login exchanges a Google identity token for a session and stores it.
func (m *Manager) Login(ctx context.Context, credential string) (domain.Session, error) {
	m.mu.Lock()
	state := m.state
	m.mu.Unlock()

	if state == Authenticated {
		return domain.Session{}, ErrAlreadyAuthenticated
	}

	resp, err := m.api.GoogleAuth(ctx, credential)
	if err != nil {
		m.notifier.Notify(loginFailureNotice(err))
		return domain.Session{}, fmt.Errorf("google sign-in: %w", err)
	}
	if resp.Token == "" {
		return domain.Session{}, errors.New("google sign-in: no session token in response")
	}

	s := domain.NewSession(resp.User, resp.Token, m.clock.Now())
	if err := m.creds.Save(ctx, s); err != nil {
		return domain.Session{}, fmt.Errorf("save session: %w", err)
	}

	m.authenticate(s, "login")
	m.notifier.Notify(Notice{
		Kind:    NoticeInfo,
		Message: fmt.Sprintf("Welcome, %s (%s)", displayName(s), s.Role.Label()),
	})
	return s, nil
}

func loginFailureNotice(err error) Notice {
	var apiErr *fluxsdk.APIError
	if errors.As(err, &apiErr) {
		// Sign-in refusals carry the reason, e.g. a domain restriction.
		return Notice{Kind: NoticeDenied, Message: apiErr.Message}
	}
	return NoticeFor(err)
}

func displayName(s domain.Session) string {
	if s.DisplayName != "" {
		return s.DisplayName
	}
	return s.Email
}

// Logout ends the session here and in every sibling tab.
func (m *Manager) Logout(ctx context.Context) error {
	if !m.endSession(LoggedOut, "logout") {
		return ErrNotAuthenticated
	}

	err := m.creds.Clear(ctx)
	m.finish("logout")
	m.notifier.Notify(Notice{Kind: NoticeLoggedOut, Message: LoggedOutMessage})
	if err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// HandleUnauthorized is the API client's 401 hook: the token is no longer
// accepted, so the shared session is cleared.
func (m *Manager) HandleUnauthorized(ctx context.Context) {
	if !m.endSession(LoggedOut, "unauthorized") {
		return
	}

	if err := m.creds.Clear(ctx); err != nil {
		m.logger.Warn("failed to clear session after 401", "error", err)
	}
	m.finish("unauthorized")
	m.notifier.Notify(Notice{Kind: NoticeSessionExpired, Message: SessionExpiredMessage})
}

// LogoutFromOtherTab ends the local session after a sibling logged out. It
// never writes the logout marker itself.
func (m *Manager) LogoutFromOtherTab(ctx context.Context) {
	if !m.endSession(LoggedOut, "cross_tab_logout") {
		return
	}
	m.finish("cross_tab_logout")
	m.notifier.Notify(Notice{Kind: NoticeCrossTabLogout, Message: CrossTabLogoutMessage})
}

// AdoptSession takes over a session a sibling tab just stored. A tab that
// already holds a session keeps it.
func (m *Manager) AdoptSession(ctx context.Context) error {
	if m.HasSession() {
		return nil
	}

	s, err := m.creds.Load(ctx)
	if err != nil {
		return err
	}

	if !m.authenticate(s, "adopted") {
		return nil
	}
	m.notifier.Notify(Notice{
		Kind:    NoticeInfo,
		Message: fmt.Sprintf("Signed in as %s in another window.", displayName(s)),
	})
	return nil
}

// ObserveActivity merges a sibling's activity timestamp.
func (m *Manager) ObserveActivity(at time.Time) {
	m.tracker.Observe(at)
}

// RecordActivity registers an interaction in this tab.
func (m *Manager) RecordActivity(kind ActivityKind) {
	m.tracker.Record(kind)
}

// HasSession reports whether this tab is signed in.
func (m *Manager) HasSession() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session != nil
}

// Session returns the active session.
func (m *Manager) Session() (domain.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return domain.Session{}, false
	}
	s := *m.session
	s.LastActivityAt = m.tracker.LastActivity()
	return s, true
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Close stops tracking and cross-tab listening. The stored session is left
// in place for other tabs and later runs.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	unwatch := m.unwatch
	m.unwatch = nil
	m.mu.Unlock()

	m.tracker.Stop()
	if unwatch != nil {
		unwatch()
	}
	return nil
}

// authenticate installs s and starts idle tracking. It reports false when
// another path got there first. The tracker is started and stopped under mu;
// it never calls back into the Manager while holding its own lock, and
// onIdle runs only after its loop has exited.
func (m *Manager) authenticate(s domain.Session, reason string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed || m.session != nil {
		return false
	}
	m.gen++
	gen := m.gen
	m.session = &s
	m.transitionLocked(Authenticated, reason)

	// A previous run may still be detaching after an idle expiry.
	m.tracker.Stop()
	if err := m.tracker.Start(s.LastActivityAt, func() { m.expireIdle(gen) }); err != nil {
		m.logger.Warn("failed to start activity tracker", "error", err)
	}
	return true
}

func (m *Manager) expireIdle(gen uint64) {
	m.mu.Lock()
	if m.gen != gen || m.session == nil {
		m.mu.Unlock()
		return
	}
	m.session = nil
	m.gen++
	m.transitionLocked(IdleExpired, "idle")
	m.tracker.Stop()
	m.mu.Unlock()

	if err := m.creds.Clear(context.Background()); err != nil {
		m.logger.Warn("failed to clear idle session", "error", err)
	}
	m.finish("idle")
	m.notifier.Notify(Notice{Kind: NoticeIdle, Message: IdleMessage})
}

// endSession drops the in-memory session and stops tracking. It reports
// false when there was no session.
func (m *Manager) endSession(to State, reason string) bool {
	m.mu.Lock()
	if m.session == nil {
		m.mu.Unlock()
		return false
	}
	m.session = nil
	m.gen++
	m.transitionLocked(to, reason)
	m.tracker.Stop()
	m.mu.Unlock()
	return true
}

// finish completes a transient state's return to Unauthenticated, unless a
// new session was installed in between.
func (m *Manager) finish(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == IdleExpired || m.state == LoggedOut {
		m.transitionLocked(Unauthenticated, reason)
	}
}

func (m *Manager) transitionLocked(to State, reason string) {
	from := m.state
	m.state = to
	m.logger.Info("session state changed", "from", from.String(), "to", to.String(), "reason", reason)
}
