// Package app assembles one Flux tab: logger, credential store, API client,
// session manager and the dashboard services.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/aussiebroadwan/flux/internal/flux/credstore"
	"github.com/aussiebroadwan/flux/internal/flux/service"
	"github.com/aussiebroadwan/flux/internal/flux/session"
	"github.com/aussiebroadwan/flux/pkg/cryptox"
	"github.com/aussiebroadwan/flux/pkg/fluxsdk"
	"github.com/aussiebroadwan/flux/pkg/idx"
	"github.com/aussiebroadwan/flux/pkg/slogx"
)

// BuildVersion is overridden at build time via ldflags.
var BuildVersion = "v0.1.0"

// Application is one tab with all its dependencies.
type Application struct {
	cfg    Config
	logger *slog.Logger

	store        credstore.Store
	ownsStore    bool
	housekeeper  *credstore.Housekeeper
	housekeeping bool

	Tab           idx.ID
	Creds         *credstore.Credentials
	API           *fluxsdk.Client
	Activity      *session.ActivityBus
	Session       *session.Manager
	Opportunities *service.Opportunities
	People        *service.People
}

type options struct {
	logger   *slog.Logger
	notifier session.Notifier
	clock    clockwork.Clock
	store    credstore.Store
}

// Option customises New.
type Option func(*options)

// WithLogger replaces the logger built from the config.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithNotifier receives every user-facing notice.
func WithNotifier(n session.Notifier) Option {
	return func(o *options) { o.notifier = n }
}

// WithClock drives idle tracking and timestamps.
func WithClock(clock clockwork.Clock) Option {
	return func(o *options) { o.clock = clock }
}

// WithStore uses st instead of opening the configured store. The caller
// keeps ownership and closes it.
func WithStore(st credstore.Store) Option {
	return func(o *options) { o.store = st }
}

// New creates a new Application instance with all dependencies initialized.
func New(ctx context.Context, cfg Config, opts ...Option) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := options{clock: clockwork.NewRealClock()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slogx.New(slogx.Config{
			Service: "flux",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		})
	}
	if o.notifier == nil {
		o.notifier = session.NotifierFunc(func(session.Notice) {})
	}

	app := &Application{
		cfg:    cfg,
		Tab:    idx.New(),
		store:  o.store,
		logger: o.logger,
	}
	app.logger = app.logger.With("tab", app.Tab.Short())

	if app.store == nil {
		st, hk, err := openStore(ctx, cfg, app.logger)
		if err != nil {
			return nil, err
		}
		app.store, app.housekeeper, app.ownsStore = st, hk, true
	}

	if err := app.initSession(o); err != nil {
		_ = app.closeStore()
		return nil, err
	}
	return app, nil
}

func (app *Application) initSession(o options) error {
	credOpts := []credstore.Option{credstore.WithClock(o.clock)}
	if app.cfg.StoreKeyFile != "" {
		sealer, err := cryptox.LoadSealer(app.cfg.StoreKeyFile)
		if err != nil {
			return fmt.Errorf("failed to load store key: %w", err)
		}
		credOpts = append(credOpts, credstore.WithSealer(sealer))
	}
	app.Creds = credstore.New(app.store, app.Tab, credOpts...)
	app.Activity = session.NewActivityBus()

	// The manager needs the client and the client's 401 hook needs the
	// manager, so the hook is bound after both exist.
	var manager *session.Manager
	app.API = fluxsdk.NewClient(app.cfg.APIURL,
		fluxsdk.WithTimeout(app.cfg.RequestTimeout),
		fluxsdk.WithLogger(app.logger),
		fluxsdk.WithTokenSource(app.Creds),
		fluxsdk.WithUnauthorizedHandler(func(ctx context.Context) {
			if manager != nil {
				manager.HandleUnauthorized(ctx)
			}
		}),
	)

	notifier := &resettingNotifier{next: o.notifier}
	manager = session.NewManager(app.Creds, app.API, app.Activity,
		session.WithClock(o.clock),
		session.WithLogger(app.logger),
		session.WithNotifier(notifier),
		session.WithTrackerConfig(session.TrackerConfig{
			IdleWindow:    app.cfg.IdleTimeout,
			PollInterval:  app.cfg.IdlePollInterval,
			WriteInterval: app.cfg.ActivityWriteInterval,
		}),
	)
	app.Session = manager

	app.Opportunities = service.NewOpportunities(app.API, manager, o.notifier)
	app.People = service.NewPeople(app.API, manager, o.notifier)
	notifier.opps = app.Opportunities
	return nil
}

// resettingNotifier discards the cached opportunity list whenever the
// session ends, then forwards the notice.
type resettingNotifier struct {
	next session.Notifier
	opps *service.Opportunities
}

func (n *resettingNotifier) Notify(x session.Notice) {
	switch x.Kind {
	case session.NoticeIdle, session.NoticeLoggedOut, session.NoticeCrossTabLogout, session.NoticeSessionExpired:
		if n.opps != nil {
			n.opps.Reset()
		}
	}
	n.next.Notify(x)
}

// Start verifies the stored session and starts background work.
func (app *Application) Start(ctx context.Context) (session.Result, error) {
	if app.housekeeper != nil && !app.housekeeping {
		app.housekeeper.Start()
		app.housekeeping = true
	}

	res, err := app.Session.Start(slogx.WithContext(ctx, app.logger))
	if err != nil {
		return res, err
	}

	app.logger.Debug("tab started",
		"status", res.Status.String(),
		"reason", string(res.Reason),
		"store", app.cfg.Store,
	)
	return res, nil
}

// Context returns ctx carrying the tab's logger.
func (app *Application) Context(ctx context.Context) context.Context {
	return slogx.WithContext(ctx, app.logger)
}

// Logger returns the tab's logger.
func (app *Application) Logger() *slog.Logger {
	return app.logger
}

// Shutdown stops tracking, watchers and housekeeping, then closes the store
// if the application opened it.
func (app *Application) Shutdown() error {
	var errs []error
	if err := app.Session.Close(); err != nil {
		errs = append(errs, err)
	}
	if app.housekeeping {
		app.housekeeper.Stop()
		app.housekeeping = false
	}
	if err := app.closeStore(); err != nil {
		app.logger.Error("error closing credential store", "error", err)
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (app *Application) closeStore() error {
	if !app.ownsStore || app.store == nil {
		return nil
	}
	app.ownsStore = false
	return app.store.Close()
}
