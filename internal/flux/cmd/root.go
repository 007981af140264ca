// Package cmd implements the flux command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/spf13/cobra"

	"github.com/aussiebroadwan/flux/internal/flux/app"
	"github.com/aussiebroadwan/flux/internal/flux/domain"
	"github.com/aussiebroadwan/flux/internal/flux/session"
)

var errNotSignedIn = errors.New("not signed in, run 'flux login --credential <token>' first")

// reportedError marks a failure the user has already seen as a notice.
type reportedError struct{ err error }

func (e *reportedError) Error() string { return e.err.Error() }
func (e *reportedError) Unwrap() error { return e.err }

// Reported reports whether err was already shown to the user as a notice.
func Reported(err error) bool {
	var r *reportedError
	return errors.As(err, &r)
}

// runtime carries what every command needs to open a tab.
type runtime struct {
	cfg     app.Config
	appOpts []app.Option
}

// NewRootCmd builds the command tree. cfg is usually app.LoadConfig();
// persistent flags override it. appOpts are passed to every tab the commands
// open.
func NewRootCmd(cfg app.Config, appOpts ...app.Option) *cobra.Command {
	rt := &runtime{cfg: cfg, appOpts: appOpts}

	root := &cobra.Command{
		Use:   "flux",
		Short: "Presales opportunity tracker",
		Long: `flux signs in to the Flux API and manages presales opportunities.

The session is shared through the credential store: every flux process using
the same store sees the same signed-in user, and signing out anywhere signs
out everywhere. An idle session expires after FLUX_IDLE_TIMEOUT.

Examples:
  flux login --credential <google-id-token>
  flux opportunities list --status "In Progress" --sort deal_value_usd --desc
  flux analytics --region EMEA
  flux shell`,
		Version:       app.BuildVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&rt.cfg.APIURL, "api-url", cfg.APIURL, "Flux API base URL")
	flags.StringVar(&rt.cfg.Store, "store", cfg.Store, "credential store driver (sqlite, redis, memory)")
	flags.StringVar(&rt.cfg.StoreFile, "store-file", cfg.StoreFile, "sqlite credential store file")
	flags.StringVar(&rt.cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")

	root.AddCommand(
		newLoginCmd(rt),
		newLogoutCmd(rt),
		newWhoamiCmd(rt),
		newOpportunitiesCmd(rt),
		newUsersCmd(rt),
		newAnalyticsCmd(rt),
		newShellCmd(rt),
	)
	return root
}

// ExecuteContext runs the command tree with the environment's configuration.
func ExecuteContext(ctx context.Context) error {
	return NewRootCmd(app.LoadConfig()).ExecuteContext(ctx)
}

// open starts a tab whose notices are written to the command's stderr.
func (rt *runtime) open(cmd *cobra.Command) (*app.Application, *noticePrinter, error) {
	notices := &noticePrinter{w: cmd.ErrOrStderr()}
	opts := append([]app.Option{app.WithNotifier(notices)}, rt.appOpts...)

	a, err := app.New(cmd.Context(), rt.cfg, opts...)
	if err != nil {
		return nil, nil, err
	}
	if _, err := a.Start(a.Context(cmd.Context())); err != nil {
		_ = a.Shutdown()
		return nil, nil, err
	}
	return a, notices, nil
}

// withTab opens a tab, runs fn and shuts the tab down. Errors that produced a
// notice while fn ran come back marked as reported.
func (rt *runtime) withTab(cmd *cobra.Command, fn func(ctx context.Context, a *app.Application) error) (err error) {
	a, notices, err := rt.open(cmd)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Shutdown(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	before := notices.count()
	if err := fn(a.Context(cmd.Context()), a); err != nil {
		var fields domain.FieldErrors
		if errors.As(err, &fields) {
			printFieldErrors(cmd.ErrOrStderr(), fields)
		}
		if notices.count() > before {
			return &reportedError{err: err}
		}
		return err
	}
	return nil
}

// withSession is withTab for commands that need a signed-in user.
func (rt *runtime) withSession(cmd *cobra.Command, fn func(ctx context.Context, a *app.Application) error) error {
	return rt.withTab(cmd, func(ctx context.Context, a *app.Application) error {
		if !a.Session.HasSession() {
			return errNotSignedIn
		}
		return fn(ctx, a)
	})
}

// noticePrinter writes notices one per line. The idle tracker notifies from
// its own goroutine, hence the lock.
type noticePrinter struct {
	mu sync.Mutex
	w  io.Writer
	n  int
}

func (p *noticePrinter) Notify(n session.Notice) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.n++
	if n.Kind == session.NoticeInfo {
		fmt.Fprintln(p.w, n.Message)
		return
	}
	fmt.Fprintf(p.w, "%s: %s\n", n.Kind, n.Message)
}

func (p *noticePrinter) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.n
}
