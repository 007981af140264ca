package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aussiebroadwan/flux/internal/flux/app"
	"github.com/aussiebroadwan/flux/internal/flux/domain"
	"github.com/aussiebroadwan/flux/internal/flux/service"
)

func newUsersCmd(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage who can access Flux (admin only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(
		newUsersListCmd(rt),
		newUsersAddCmd(rt),
		newUsersRoleCmd(rt),
		newUsersDeleteCmd(rt),
	)
	return cmd
}

func newUsersListCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rt.withSession(cmd, func(ctx context.Context, a *app.Application) error {
				users, err := a.People.List(ctx)
				if err != nil {
					return err
				}
				printUsers(cmd.OutOrStdout(), users)
				return nil
			})
		},
	}
}

func newUsersAddCmd(rt *runtime) *cobra.Command {
	var name, role string

	cmd := &cobra.Command{
		Use:   "add <email>",
		Short: "Add a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := roleArg(role)
			if err != nil {
				return err
			}
			return rt.withSession(cmd, func(ctx context.Context, a *app.Application) error {
				u, err := a.People.Add(ctx, args[0], name, r)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), u.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&role, "role", string(service.DefaultRole), "admin, creator or viewer")
	return cmd
}

func newUsersRoleCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "role <user-id> <role>",
		Short: "Change a user's role",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := roleArg(args[1])
			if err != nil {
				return err
			}
			return rt.withSession(cmd, func(ctx context.Context, a *app.Application) error {
				_, err := a.People.ChangeRole(ctx, args[0], r)
				return err
			})
		},
	}
}

func newUsersDeleteCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <user-id>",
		Short: "Remove a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rt.withSession(cmd, func(ctx context.Context, a *app.Application) error {
				return a.People.Remove(ctx, args[0])
			})
		},
	}
}

func roleArg(s string) (domain.Role, error) {
	r, ok := domain.ParseRole(s)
	if !ok {
		return "", fmt.Errorf("unknown role %q (want admin, creator or viewer)", s)
	}
	return r, nil
}
