package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/aussiebroadwan/flux/internal/flux/app"
	"github.com/aussiebroadwan/flux/internal/flux/domain"
	"github.com/aussiebroadwan/flux/internal/flux/session"
)

func newLoginCmd(rt *runtime) *cobra.Command {
	var credential string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with a Google identity token",
		Long: `Exchange a Google identity token for a Flux session.

The session is written to the credential store, so every other flux process
sharing the store is signed in as well.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rt.withTab(cmd, func(ctx context.Context, a *app.Application) error {
				if s, ok := a.Session.Session(); ok {
					return fmt.Errorf("already signed in as %s, run 'flux logout' first", s.Email)
				}
				s, err := a.Session.Login(ctx, credential)
				if err != nil {
					return err
				}
				printSession(cmd.OutOrStdout(), s)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&credential, "credential", "", "Google identity token (required)")
	_ = cmd.MarkFlagRequired("credential")
	return cmd
}

func newLogoutCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out here and in every other flux process",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rt.withTab(cmd, func(ctx context.Context, a *app.Application) error {
				err := a.Session.Logout(ctx)
				if errors.Is(err, session.ErrNotAuthenticated) {
					return errNotSignedIn
				}
				return err
			})
		},
	}
}

func newWhoamiCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user and their permissions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rt.withSession(cmd, func(ctx context.Context, a *app.Application) error {
				s, _ := a.Session.Session()
				printSession(cmd.OutOrStdout(), s)
				return nil
			})
		},
	}
}

func printSession(w io.Writer, s domain.Session) {
	tw := newTable(w)
	fmt.Fprintf(tw, "User:\t%s\n", s.DisplayName)
	fmt.Fprintf(tw, "Email:\t%s\n", s.Email)
	fmt.Fprintf(tw, "Role:\t%s\n", s.Role.Label())
	fmt.Fprintf(tw, "Can:\t%s\n", permissions(s.Role))
	if !s.LastActivityAt.IsZero() {
		fmt.Fprintf(tw, "Last activity:\t%s\n", s.LastActivityAt.Local().Format(time.DateTime))
	}
	_ = tw.Flush()
}
