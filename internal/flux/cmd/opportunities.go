package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aussiebroadwan/flux/internal/flux/app"
	"github.com/aussiebroadwan/flux/internal/flux/domain"
	"github.com/aussiebroadwan/flux/internal/flux/service"
)

func newOpportunitiesCmd(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "opportunities",
		Aliases: []string{"opps", "opp"},
		Short:   "List and manage presales opportunities",
		Long: `List and manage presales opportunities.

Creating and editing require the creator or admin role, deleting requires
admin. The role check happens before anything is sent to the API.

Create and update read the opportunity from a YAML or JSON file whose keys are
the API field names:

  account_name: Acme
  opportunity: Data platform
  region: EMEA
  deal_value_usd: 50000
  status: In Progress
  presales_start_date: 2025-03-01`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(
		newOpportunitiesListCmd(rt),
		newOpportunitiesGetCmd(rt),
		newOpportunitiesCreateCmd(rt),
		newOpportunitiesUpdateCmd(rt),
		newOpportunitiesDeleteCmd(rt),
	)
	return cmd
}

func newOpportunitiesListCmd(rt *runtime) *cobra.Command {
	var (
		table  service.Table
		sortBy string
		page   int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List opportunities",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			table.SortBy = service.SortField(sortBy)
			table.Page = page - 1

			return rt.withSession(cmd, func(ctx context.Context, a *app.Application) error {
				opps, err := a.Opportunities.Load(ctx)
				if err != nil {
					return err
				}

				p, err := table.Apply(opps)
				if err != nil {
					return err
				}
				if p.Total == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No opportunities found.")
					return nil
				}

				printOpportunityTable(cmd.OutOrStdout(), p.Items)
				fmt.Fprintf(cmd.OutOrStdout(), "\nShowing %d-%d of %d (page %d of %d)\n",
					p.From(), p.To(), p.Total, p.Page+1, p.Pages)
				return nil
			})
		},
	}

	fields := make([]string, 0)
	for _, f := range service.SortFields() {
		fields = append(fields, string(f))
	}

	flags := cmd.Flags()
	flags.StringVarP(&table.Filter.Search, "search", "s", "", "case-insensitive search across every field")
	flags.StringVar(&table.Filter.Status, "status", "", "only this status")
	flags.StringVar(&table.Filter.Region, "region", "", "only this region")
	flags.StringVar(&sortBy, "sort", "", "sort column: "+strings.Join(fields, ", "))
	flags.BoolVar(&table.Desc, "desc", false, "sort descending")
	flags.IntVar(&page, "page", 1, "page number")
	flags.IntVar(&table.PerPage, "per-page", service.DefaultPerPage, "rows per page")
	return cmd
}

func newOpportunitiesGetCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one opportunity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return rt.withSession(cmd, func(ctx context.Context, a *app.Application) error {
				o, err := a.Opportunities.Get(ctx, id)
				if err != nil {
					return err
				}
				printOpportunity(cmd.OutOrStdout(), o)
				return nil
			})
		},
	}
}

func newOpportunitiesCreateCmd(rt *runtime) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "create --file <path>",
		Short: "Create an opportunity from a YAML or JSON file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var form domain.OpportunityForm
			if err := readForm(cmd.InOrStdin(), file, &form); err != nil {
				return err
			}
			return rt.withSession(cmd, func(ctx context.Context, a *app.Application) error {
				o, err := a.Opportunities.Create(ctx, form)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d\n", o.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "opportunity file, - for stdin (required)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newOpportunitiesUpdateCmd(rt *runtime) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "update <id> --file <path>",
		Short: "Update an opportunity; fields missing from the file are kept",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return rt.withSession(cmd, func(ctx context.Context, a *app.Application) error {
				current, err := a.Opportunities.Get(ctx, id)
				if err != nil {
					return err
				}

				form := domain.FormFromOpportunity(current)
				if err := readForm(cmd.InOrStdin(), file, &form); err != nil {
					return err
				}

				if _, err := a.Opportunities.Update(ctx, id, form); err != nil {
					return err
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "opportunity file, - for stdin (required)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newOpportunitiesDeleteCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an opportunity (admin only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return rt.withSession(cmd, func(ctx context.Context, a *app.Application) error {
				return a.Opportunities.Delete(ctx, id)
			})
		},
	}
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid opportunity id %q", s)
	}
	return id, nil
}
