package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/streamline/internal/bootstrap"
)

func newStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print catalog counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, app *bootstrap.App) error {
				stats, err := app.Titles.Stats(ctx)
				if err != nil {
					return err
				}
				renderStats(cmd.OutOrStdout(), stats)
				return nil
			})
		},
	}
}
