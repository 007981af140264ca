package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aussiebroadwan/flux/internal/flux/analytics"
	"github.com/aussiebroadwan/flux/internal/flux/app"
	"github.com/aussiebroadwan/flux/internal/flux/service"
	"github.com/aussiebroadwan/flux/internal/flux/session"
)

const shellHelp = `Commands:
  login <credential>   sign in with a Google identity token
  logout               sign out everywhere
  whoami               show the signed-in user
  list [search]        list opportunities
  get <id>             show one opportunity
  delete <id>          delete an opportunity
  analytics            summarise the pipeline
  users                list users
  help                 show this help
  quit                 leave the shell`

func newShellCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Keep a session open interactively",
		Long: `Start an interactive shell that stays signed in while you work.

Every line you type counts as activity. After FLUX_IDLE_TIMEOUT without input
the session ends here and in every other flux process, and the shell returns
to the login prompt. Sign-ins and sign-outs made elsewhere show up here too.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, notices, err := rt.open(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = a.Shutdown() }()

			sh := &shell{
				app:     a,
				in:      cmd.InOrStdin(),
				out:     cmd.OutOrStdout(),
				errOut:  cmd.ErrOrStderr(),
				notices: notices,
			}
			return sh.run(a.Context(cmd.Context()))
		},
	}
}

type shell struct {
	app     *app.Application
	in      io.Reader
	out     io.Writer
	errOut  io.Writer
	notices *noticePrinter
}

func (sh *shell) prompt() {
	if s, ok := sh.app.Session.Session(); ok {
		fmt.Fprintf(sh.out, "flux (%s)> ", s.Email)
		return
	}
	fmt.Fprint(sh.out, "login> ")
}

func (sh *shell) run(ctx context.Context) error {
	scanner := bufio.NewScanner(sh.in)
	sh.prompt()
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		sh.app.Activity.Emit(session.KeyDown)

		fields := strings.Fields(scanner.Text())
		if len(fields) > 0 {
			if fields[0] == "quit" || fields[0] == "exit" {
				return nil
			}

			before := sh.notices.count()
			if err := sh.exec(ctx, fields[0], fields[1:]); err != nil && sh.notices.count() == before {
				fmt.Fprintf(sh.errOut, "error: %v\n", err)
			}
		}
		sh.prompt()
	}
	return scanner.Err()
}

func (sh *shell) exec(ctx context.Context, name string, args []string) error {
	a := sh.app

	switch name {
	case "help":
		fmt.Fprintln(sh.out, shellHelp)
		return nil
	case "login":
		if len(args) != 1 {
			return errors.New("usage: login <credential>")
		}
		_, err := a.Session.Login(ctx, args[0])
		return err
	case "logout":
		err := a.Session.Logout(ctx)
		if errors.Is(err, session.ErrNotAuthenticated) {
			return errNotSignedIn
		}
		return err
	}

	s, ok := a.Session.Session()
	if !ok {
		return errNotSignedIn
	}

	switch name {
	case "whoami":
		printSession(sh.out, s)
	case "list":
		opps, err := a.Opportunities.Load(ctx)
		if err != nil {
			return err
		}
		p, err := service.Table{Filter: service.Filter{Search: strings.Join(args, " ")}}.Apply(opps)
		if err != nil {
			return err
		}
		printOpportunityTable(sh.out, p.Items)
		fmt.Fprintf(sh.out, "Showing %d-%d of %d\n", p.From(), p.To(), p.Total)
	case "get", "delete":
		if len(args) != 1 {
			return fmt.Errorf("usage: %s <id>", name)
		}
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		if name == "delete" {
			return a.Opportunities.Delete(ctx, id)
		}
		o, err := a.Opportunities.Get(ctx, id)
		if err != nil {
			return err
		}
		printOpportunity(sh.out, o)
	case "analytics":
		opps, err := a.Opportunities.Load(ctx)
		if err != nil {
			return err
		}
		printSummary(sh.out, analytics.Summarize(opps, analytics.Filter{}))
	case "users":
		users, err := a.People.List(ctx)
		if err != nil {
			return err
		}
		printUsers(sh.out, users)
	default:
		return fmt.Errorf("unknown command %q, type help", name)
	}
	return nil
}
