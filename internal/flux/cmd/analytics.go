package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/aussiebroadwan/flux/internal/flux/analytics"
	"github.com/aussiebroadwan/flux/internal/flux/app"
)

func newAnalyticsCmd(rt *runtime) *cobra.Command {
	var filter analytics.Filter

	cmd := &cobra.Command{
		Use:   "analytics",
		Short: "Summarise the pipeline",
		Long: `Summarise the opportunity pipeline: totals, active share, value by region
and status, and the monthly trend of presales starts.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rt.withSession(cmd, func(ctx context.Context, a *app.Application) error {
				opps, err := a.Opportunities.Load(ctx)
				if err != nil {
					return err
				}
				printSummary(cmd.OutOrStdout(), analytics.Summarize(opps, filter))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&filter.Status, "status", "", "only this status")
	cmd.Flags().StringVar(&filter.Region, "region", "", "only this region")
	return cmd
}
